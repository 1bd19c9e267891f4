// Package server is the browser bridge: an HTTP API for the settings,
// transcript and assist actions plus a WebSocket endpoint that runs one
// capture session per connected page.
//
// The browser hosts the parts that need a real audio device (voice activity
// detection, microphone permission, cue playback) and relays them over the
// socket. Everything else runs here.
package server

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/MrWong99/reshka/internal/activity"
	"github.com/MrWong99/reshka/internal/assist"
	"github.com/MrWong99/reshka/internal/cue"
	"github.com/MrWong99/reshka/internal/health"
	"github.com/MrWong99/reshka/internal/observe"
	"github.com/MrWong99/reshka/internal/orchestrator"
	"github.com/MrWong99/reshka/internal/settings"
	"github.com/MrWong99/reshka/internal/transcript"
	"github.com/MrWong99/reshka/pkg/audio/synth"
	"github.com/MrWong99/reshka/pkg/provider/llm"
	"github.com/MrWong99/reshka/pkg/provider/vad"
)

// Deps are the collaborators of a [Server].
type Deps struct {
	Settings   *settings.Store
	Transcript *transcript.Store
	Assist     *assist.Service
	Feed       *activity.Feed
	Cues       *cue.Cache
	Factory    llm.Factory

	// VAD is forwarded to the browser detector. Its SampleRate is the rate
	// of the segments the browser sends.
	VAD vad.Config

	// RedirectDelay is the pause before credential failures send the user
	// to the configuration page. Zero selects the default.
	RedirectDelay time.Duration

	// Health serves /healthz and /readyz. Optional.
	Health *health.Handler

	// Metrics is optional; [observe.DefaultMetrics] is used when nil.
	Metrics *observe.Metrics
}

func (d Deps) validate() error {
	var errs []error
	check := func(ok bool, name string) {
		if !ok {
			errs = append(errs, errors.New("server: missing "+name))
		}
	}
	check(d.Settings != nil, "Settings")
	check(d.Transcript != nil, "Transcript")
	check(d.Assist != nil, "Assist")
	check(d.Feed != nil, "Feed")
	check(d.Cues != nil, "Cues")
	check(d.Factory != nil, "Factory")
	if err := d.VAD.Validate(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// Option configures a [Server].
type Option func(*Server)

// WithOriginPatterns allows WebSocket connections from the given host
// patterns in addition to same-origin requests.
func WithOriginPatterns(patterns ...string) Option {
	return func(s *Server) { s.origins = append(s.origins, patterns...) }
}

// Server serves the HTTP API and the WebSocket sessions.
type Server struct {
	deps        Deps
	metrics     *observe.Metrics
	preflight   *orchestrator.Preflight
	transcriber *orchestrator.Transcriber
	origins     []string
	router      chi.Router

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.RWMutex
	clients map[uuid.UUID]*client
	closed  bool
	wg      sync.WaitGroup

	closeOnce   sync.Once
	events      <-chan activity.Event
	unsubscribe func()

	// transcripts holds the latest transcript text for the Run relay. The
	// store calls its listener with the lock held, so nothing writes to a
	// socket from there.
	transcripts chan string

	removeTranscriptListener func()
}

// New creates a Server. Call [Server.Run] to start relaying the activity
// feed and [Server.Close] to end all sessions.
func New(deps Deps, opts ...Option) (*Server, error) {
	if err := deps.validate(); err != nil {
		return nil, err
	}
	if deps.Health == nil {
		deps.Health = health.New()
	}
	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		deps:    deps,
		metrics: deps.Metrics,
		ctx:     ctx,
		cancel:  cancel,
		clients: make(map[uuid.UUID]*client),

		transcripts: make(chan string, 1),
	}
	if s.metrics == nil {
		s.metrics = observe.DefaultMetrics()
	}
	for _, o := range opts {
		o(s)
	}

	s.preflight = orchestrator.NewPreflight(deps.Settings, deps.Factory, deps.Feed, deps.RedirectDelay)
	s.transcriber = orchestrator.NewTranscriber(deps.Settings, deps.Factory,
		orchestrator.WithTranscriberMetrics(s.metrics))
	s.router = s.routes()
	s.events, s.unsubscribe = deps.Feed.Subscribe(64)

	s.removeTranscriptListener = deps.Transcript.OnChange(s.queueTranscript)
	deps.Assist.OnQuestions(func(q assist.Questions) {
		s.broadcast(outbound{Type: msgQuestions, Data: q})
	})
	deps.Assist.OnRephrase(func(text string) {
		s.broadcast(outbound{Type: msgRephrase, Data: textPayload{Text: text}})
	})
	return s, nil
}

// Handler returns the HTTP handler serving every route.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run relays transcript changes, activity log entries and notifications to
// every connected browser until ctx is cancelled, then closes all sessions.
func (s *Server) Run(ctx context.Context) error {
	defer s.Close()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-s.ctx.Done():
			return nil
		case text := <-s.transcripts:
			s.broadcast(outbound{Type: msgTranscript, Data: textPayload{Text: text}})
		case ev, ok := <-s.events:
			if !ok {
				return nil
			}
			switch {
			case ev.Cleared:
				s.broadcast(outbound{Type: msgActivityCleared})
			case ev.Toast != nil:
				s.broadcast(outbound{Type: msgToast, Data: ev.Toast})
			case ev.Entry != nil:
				s.broadcast(outbound{Type: msgLog, Data: ev.Entry})
			}
		}
	}
}

// Close ends every session and waits for their connections to finish.
// Safe to call more than once.
func (s *Server) Close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.cancel()
	s.wg.Wait()
	s.closeOnce.Do(func() {
		s.unsubscribe()
		s.removeTranscriptListener()
	})
}

// Sessions returns the number of connected browsers.
func (s *Server) Sessions() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.clients)
}

// Play plays a cue on every connected browser. onDone runs once all of them
// finished. It lets actions triggered over HTTP give the same audible
// feedback as the voice command.
func (s *Server) Play(name synth.Kind, onDone func()) {
	if _, ok := s.deps.Cues.Get(name); !ok {
		return
	}
	var wg sync.WaitGroup
	s.mu.RLock()
	for _, c := range s.clients {
		wg.Add(1)
		c.player.Play(name, wg.Done)
	}
	s.mu.RUnlock()
	if onDone != nil {
		go func() {
			wg.Wait()
			onDone()
		}()
	}
}

var _ orchestrator.CuePlayer = (*Server)(nil)

func (s *Server) register(c *client) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.wg.Add(1)
	s.clients[c.id] = c
	s.metrics.ActiveSessions.Add(c.ctx, 1)
	return true
}

func (s *Server) unregister(c *client) {
	s.mu.Lock()
	delete(s.clients, c.id)
	s.mu.Unlock()
	s.metrics.ActiveSessions.Add(context.Background(), -1)
	s.wg.Done()
}

// queueTranscript replaces any text Run has not picked up yet. Each message
// carries the whole transcript, so only the latest one matters. Callers are
// serialised by the transcript store.
func (s *Server) queueTranscript(text string) {
	for {
		select {
		case s.transcripts <- text:
			return
		default:
		}
		select {
		case <-s.transcripts:
		default:
		}
	}
}

func (s *Server) broadcast(msg outbound) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, c := range s.clients {
		c.send(msg)
	}
}
