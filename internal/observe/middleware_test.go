package observe

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

// instrumentedRouter mounts Middleware on a chi router with a few routes and
// swaps in recording metric and trace providers. Not parallel-safe: it
// replaces the global tracer provider.
func instrumentedRouter(t *testing.T) (http.Handler, *sdkmetric.ManualReader, *tracetest.InMemoryExporter) {
	t.Helper()

	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })
	m, err := NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}

	exp := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exp))
	orig := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() {
		otel.SetTracerProvider(orig)
		_ = tp.Shutdown(context.Background())
	})

	r := chi.NewRouter()
	r.Use(Middleware(m))
	r.Get("/api/cues/{name}", func(w http.ResponseWriter, r *http.Request) {
		if chi.URLParam(r, "name") == "doorbell" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte("RIFF"))
	})
	r.Post("/api/rephrase", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})
	r.Get("/api/cid", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(CorrelationID(r.Context())))
	})
	return r, reader, exp
}

func TestMiddleware_Requests(t *testing.T) {
	tests := []struct {
		method, path string
		wantStatus   int
		wantRoute    string
		wantError    bool
	}{
		{http.MethodGet, "/api/cues/error", http.StatusOK, "/api/cues/{name}", false},
		{http.MethodGet, "/api/cues/doorbell", http.StatusNotFound, "/api/cues/{name}", false},
		{http.MethodPost, "/api/rephrase", http.StatusBadGateway, "/api/rephrase", true},
	}
	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			h, reader, exp := instrumentedRouter(t)

			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, httptest.NewRequest(tt.method, tt.path, nil))
			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			if cid := rec.Header().Get(CorrelationHeader); len(cid) != 32 {
				t.Errorf("%s = %q, want 32 hex chars", CorrelationHeader, cid)
			}

			spans := exp.GetSpans()
			if len(spans) != 1 {
				t.Fatalf("spans = %d, want 1", len(spans))
			}
			if want := tt.method + " " + tt.wantRoute; spans[0].Name != want {
				t.Errorf("span name = %q, want %q", spans[0].Name, want)
			}
			if got := spans[0].Status.Code == codes.Error; got != tt.wantError {
				t.Errorf("span error = %v, want %v", got, tt.wantError)
			}

			var rm metricdata.ResourceMetrics
			if err := reader.Collect(context.Background(), &rm); err != nil {
				t.Fatalf("Collect: %v", err)
			}
			hist := findMetric(rm, "reshka.http.request.duration")
			if hist == nil {
				t.Fatal("http duration metric not recorded")
			}
			dps := hist.Data.(metricdata.Histogram[float64]).DataPoints
			if len(dps) != 1 || dps[0].Count != 1 {
				t.Fatalf("data points = %+v", dps)
			}
			route, _ := dps[0].Attributes.Value(attribute.Key("route"))
			status, _ := dps[0].Attributes.Value(attribute.Key("status"))
			if route.AsString() != tt.wantRoute || status.AsInt64() != int64(tt.wantStatus) {
				t.Errorf("attributes = %v", dps[0].Attributes.ToSlice())
			}
		})
	}
}

func TestMiddleware_ContinuesIncomingTrace(t *testing.T) {
	h, _, _ := instrumentedRouter(t)

	const traceID = "4bf92f3577b34da6a3ce929d0e0e4736"
	req := httptest.NewRequest(http.MethodGet, "/api/cid", nil)
	req.Header.Set("traceparent", "00-"+traceID+"-00f067aa0ba902b7-01")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if got := rec.Body.String(); got != traceID {
		t.Errorf("handler saw trace %q, want %q", got, traceID)
	}
	if got := rec.Header().Get(CorrelationHeader); got != traceID {
		t.Errorf("%s = %q, want %q", CorrelationHeader, got, traceID)
	}
}
