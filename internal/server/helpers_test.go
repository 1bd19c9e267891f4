package server_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/MrWong99/reshka/internal/activity"
	"github.com/MrWong99/reshka/internal/assist"
	"github.com/MrWong99/reshka/internal/cue"
	"github.com/MrWong99/reshka/internal/server"
	"github.com/MrWong99/reshka/internal/settings"
	"github.com/MrWong99/reshka/internal/store"
	"github.com/MrWong99/reshka/internal/transcript"
	llmmock "github.com/MrWong99/reshka/pkg/provider/llm/mock"
	"github.com/MrWong99/reshka/pkg/provider/vad"
)

type fakeClipboard struct{ text string }

func (c *fakeClipboard) SetText(_ context.Context, text string) error {
	c.text = text
	return nil
}

type fixture struct {
	srv        *server.Server
	http       *httptest.Server
	kv         *store.Badger
	settings   *settings.Store
	transcript *transcript.Store
	feed       *activity.Feed
	prov       *llmmock.Provider
	clip       *fakeClipboard
}

func newFixture(t *testing.T, key string) *fixture {
	t.Helper()
	f := newIdleFixture(t, key)
	f.run(t)
	return f
}

// newIdleFixture serves HTTP and WebSocket requests but leaves the relay
// loop stopped until run is called.
func newIdleFixture(t *testing.T, key string) *fixture {
	t.Helper()
	ctx := context.Background()

	kv, err := store.OpenInMemory()
	if err != nil {
		t.Fatalf("OpenInMemory: %v", err)
	}
	t.Cleanup(func() { _ = kv.Close() })

	st := settings.New(kv)
	if key != "" {
		app := settings.DefaultApp()
		app.APIKey = key
		if _, err := st.SaveApp(ctx, app); err != nil {
			t.Fatalf("SaveApp: %v", err)
		}
	}
	ts, err := transcript.Load(ctx, kv)
	if err != nil {
		t.Fatalf("transcript.Load: %v", err)
	}
	cache, err := cue.NewCache(16000)
	if err != nil {
		t.Fatalf("cue.NewCache: %v", err)
	}

	f := &fixture{
		kv:         kv,
		settings:   st,
		transcript: ts,
		feed:       activity.New(activity.WithLogger(slog.New(slog.DiscardHandler))),
		prov:       &llmmock.Provider{},
		clip:       &fakeClipboard{},
	}
	svc := assist.New(st, ts, kv, f.prov.Factory(nil), f.feed, assist.WithClipboard(f.clip))

	srv, err := server.New(server.Deps{
		Settings:   st,
		Transcript: ts,
		Assist:     svc,
		Feed:       f.feed,
		Cues:       cache,
		Factory:    f.prov.Factory(nil),
		VAD:        vad.DefaultConfig(),
	})
	if err != nil {
		t.Fatalf("server.New: %v", err)
	}
	f.srv = srv

	f.http = httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		srv.Close()
		f.http.Close()
	})
	return f
}

// run starts the relay loop; it stops during cleanup.
func (f *fixture) run(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = f.srv.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
}

// do sends a request with an optional JSON body and decodes a JSON reply
// into out when non-nil.
func (f *fixture) do(t *testing.T, method, path, body string, out any) *http.Response {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, f.http.URL+path, r)
	if err != nil {
		t.Fatalf("NewRequest: %v", err)
	}
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := f.http.Client().Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	if out != nil && len(bytes.TrimSpace(data)) > 0 {
		if err := json.Unmarshal(data, out); err != nil {
			t.Fatalf("decode %s %s body %q: %v", method, path, data, err)
		}
	}
	return resp
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}
