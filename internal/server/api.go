package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/MrWong99/reshka/internal/activity"
	"github.com/MrWong99/reshka/internal/assist"
	"github.com/MrWong99/reshka/internal/observe"
	"github.com/MrWong99/reshka/internal/orchestrator"
	"github.com/MrWong99/reshka/internal/prompt"
	"github.com/MrWong99/reshka/pkg/audio/synth"
)

// maxBodyBytes bounds JSON request bodies.
const maxBodyBytes = 1 << 20

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	s.deps.Health.Register(r)
	r.Handle("/metrics", promhttp.Handler())
	r.Get("/ws", s.handleWS)

	r.Route("/api", func(r chi.Router) {
		r.Use(observe.Middleware(s.metrics))

		r.Get("/cues", s.listCues)
		r.Get("/cues/{name}", s.getCue)

		r.Get("/config", s.getConfig)
		r.Put("/config", s.putConfig)

		r.Get("/prompts", s.getPrompts)
		r.Put("/prompts", s.putPrompts)
		r.Post("/prompts/reset", s.resetPrompts)

		r.Get("/transcript", s.getTranscript)
		r.Delete("/transcript", s.clearTranscript)
		r.Post("/transcript/copy", s.copyTranscript)

		r.Get("/rephrase", s.getRephrase)
		r.Post("/rephrase", s.rephrase)
		r.Post("/rephrase/copy", s.copyRephrase)

		r.Get("/questions", s.getQuestions)
		r.Post("/questions", s.generateQuestions)
		r.Delete("/questions", s.clearQuestions)

		r.Get("/activity", s.getActivity)
		r.Delete("/activity", s.clearActivity)
	})
	return r
}

// ── responses ───────────────────────────────────────────────────────────────

type errorBody struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`

	// Redirect is set for credential failures the browser should send the
	// user to the configuration page for.
	Redirect        string `json:"redirect,omitempty"`
	RedirectAfterMS int64  `json:"redirectAfterMs,omitempty"`
}

type messageBody struct {
	Message  string   `json:"message"`
	Warnings []string `json:"warnings,omitempty"`
	Data     any      `json:"data,omitempty"`
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	body := errorBody{Error: err.Error()}
	code := http.StatusInternalServerError

	var oe *orchestrator.Error
	switch {
	case errors.Is(err, assist.ErrTooBrief):
		code = http.StatusUnprocessableEntity
	case errors.Is(err, assist.ErrClipboardUnsupported):
		code = http.StatusNotImplemented
	case errors.As(err, &oe):
		body.Kind = oe.Kind.String()
		switch oe.Kind {
		case orchestrator.EmptyInput:
			code = http.StatusBadRequest
		case orchestrator.ConfigMissing, orchestrator.AuthRejected:
			code = http.StatusPreconditionFailed
			body.Redirect = configPath
			body.RedirectAfterMS = s.redirectDelay().Milliseconds()
		case orchestrator.PermissionDenied:
			code = http.StatusForbidden
		case orchestrator.NetworkFailure:
			code = http.StatusBadGateway
		}
	}
	if code >= http.StatusInternalServerError {
		observe.Logger(r.Context()).Error("request failed", "path", r.URL.Path, "err", err)
	}
	writeJSON(w, code, body)
}

func (s *Server) redirectDelay() time.Duration {
	if s.deps.RedirectDelay > 0 {
		return s.deps.RedirectDelay
	}
	return orchestrator.DefaultRedirectDelay
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

// ── cues ────────────────────────────────────────────────────────────────────

type cueInfo struct {
	Name       string `json:"name"`
	DurationMS int64  `json:"durationMs"`
	SampleRate int    `json:"sampleRate"`
	Size       int    `json:"size"`
}

func (s *Server) listCues(w http.ResponseWriter, _ *http.Request) {
	names := s.deps.Cues.Names()
	out := make([]cueInfo, 0, len(names))
	for _, n := range names {
		c, _ := s.deps.Cues.Get(n)
		out = append(out, cueInfo{
			Name:       string(n),
			DurationMS: c.Duration.Milliseconds(),
			SampleRate: s.deps.Cues.SampleRate(),
			Size:       len(c.WAV),
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) getCue(w http.ResponseWriter, r *http.Request) {
	c, ok := s.deps.Cues.Get(synth.Kind(chi.URLParam(r, "name")))
	if !ok {
		writeJSON(w, http.StatusNotFound, errorBody{Error: "unknown cue"})
		return
	}
	w.Header().Set("Content-Type", "audio/wav")
	w.Header().Set("Content-Length", strconv.Itoa(len(c.WAV)))
	w.Header().Set("Cache-Control", "public, max-age=86400")
	_, _ = w.Write(c.WAV)
}

// ── settings ────────────────────────────────────────────────────────────────

func (s *Server) getConfig(w http.ResponseWriter, r *http.Request) {
	app, err := s.deps.Settings.App(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, app)
}

// putConfig merges the body onto the current configuration, so omitted
// fields keep their values.
func (s *Server) putConfig(w http.ResponseWriter, r *http.Request) {
	app, err := s.deps.Settings.App(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := decodeBody(w, r, &app); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: err.Error()})
		return
	}
	saved, err := s.deps.Settings.SaveApp(r.Context(), app)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, messageBody{Message: "Configuration saved successfully", Data: saved})
}

func (s *Server) getPrompts(w http.ResponseWriter, r *http.Request) {
	cfg, err := s.deps.Settings.Prompts(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, messageBody{Data: cfg, Warnings: cfg.Warnings()})
}

func (s *Server) putPrompts(w http.ResponseWriter, r *http.Request) {
	cfg, err := s.deps.Settings.Prompts(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := decodeBody(w, r, &cfg); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: err.Error()})
		return
	}
	saved, warnings, err := s.deps.Settings.SavePrompts(r.Context(), cfg)
	if errors.Is(err, prompt.ErrMissingMarker) {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: err.Error()})
		return
	}
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, messageBody{Message: "Prompts saved successfully", Data: saved, Warnings: warnings})
}

func (s *Server) resetPrompts(w http.ResponseWriter, r *http.Request) {
	cfg, err := s.deps.Settings.ResetPrompts(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, messageBody{Message: "Reset to defaults", Data: cfg})
}

// ── transcript ──────────────────────────────────────────────────────────────

func (s *Server) getTranscript(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, textPayload{Text: s.deps.Transcript.Text()})
}

func (s *Server) clearTranscript(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Assist.ClearTranscript(r.Context()); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) copyTranscript(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Assist.CopyTranscript(r.Context()); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ── rephrase ────────────────────────────────────────────────────────────────

func (s *Server) getRephrase(w http.ResponseWriter, r *http.Request) {
	text, _, err := s.deps.Assist.RephraseResult(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, textPayload{Text: text})
}

func (s *Server) rephrase(w http.ResponseWriter, r *http.Request) {
	text, err := s.deps.Assist.Rephrase(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, textPayload{Text: text})
}

func (s *Server) copyRephrase(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Assist.CopyRephrase(r.Context()); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ── questions ───────────────────────────────────────────────────────────────

func (s *Server) getQuestions(w http.ResponseWriter, r *http.Request) {
	q, _, err := s.deps.Assist.Questions(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if q.Items == nil {
		q.Items = []assist.Question{}
	}
	writeJSON(w, http.StatusOK, q)
}

func (s *Server) generateQuestions(w http.ResponseWriter, r *http.Request) {
	q, err := s.deps.Assist.Generate(r.Context(), s)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, q)
}

func (s *Server) clearQuestions(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Assist.ClearQuestions(r.Context()); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ── activity ────────────────────────────────────────────────────────────────

func (s *Server) getActivity(w http.ResponseWriter, _ *http.Request) {
	entries := s.deps.Feed.Entries()
	if entries == nil {
		entries = []activity.Entry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

func (s *Server) clearActivity(w http.ResponseWriter, _ *http.Request) {
	s.deps.Feed.Clear()
	w.WriteHeader(http.StatusNoContent)
}
