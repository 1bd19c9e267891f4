// Package app wires the Reshka subsystems into a running server.
//
// New opens storage, synthesizes the cues and builds the HTTP/WebSocket
// server. Run serves until the context ends, and Shutdown releases storage.
// Tests inject doubles through functional options (WithFactory,
// WithClipboard, WithListener); anything not injected is built from the
// config.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/reshka/internal/activity"
	"github.com/MrWong99/reshka/internal/assist"
	"github.com/MrWong99/reshka/internal/config"
	"github.com/MrWong99/reshka/internal/cue"
	"github.com/MrWong99/reshka/internal/health"
	"github.com/MrWong99/reshka/internal/observe"
	"github.com/MrWong99/reshka/internal/server"
	"github.com/MrWong99/reshka/internal/settings"
	"github.com/MrWong99/reshka/internal/store"
	"github.com/MrWong99/reshka/internal/transcript"
	"github.com/MrWong99/reshka/pkg/provider/llm"
	"github.com/MrWong99/reshka/pkg/provider/llm/openai"
)

// shutdownGrace bounds how long in-flight HTTP requests may take once Run's
// context is cancelled.
const shutdownGrace = 10 * time.Second

// App owns all subsystem lifetimes.
type App struct {
	cfg *config.Config

	kv         *store.Badger
	cues       *cue.Cache
	settings   *settings.Store
	transcript *transcript.Store
	feed       *activity.Feed
	assist     *assist.Service
	server     *server.Server
	health     *health.Handler

	factory  llm.Factory
	clip     assist.Clipboard
	metrics  *observe.Metrics
	listener net.Listener
	setLevel func(slog.Level)

	// closers run in reverse order during Shutdown.
	closers  []func() error
	stopOnce sync.Once
}

// Option is a functional option for New.
type Option func(*App)

// WithFactory replaces the chat-completions client factory.
func WithFactory(f llm.Factory) Option {
	return func(a *App) { a.factory = f }
}

// WithClipboard replaces the system clipboard.
func WithClipboard(c assist.Clipboard) Option {
	return func(a *App) { a.clip = c }
}

// WithMetrics records on m instead of the global meter provider.
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// WithListener serves on l instead of listening on the configured address.
func WithListener(l net.Listener) Option {
	return func(a *App) { a.listener = l }
}

// WithLevelSetter is called with the new level when the config file changes
// server.log_level.
func WithLevelSetter(fn func(slog.Level)) Option {
	return func(a *App) { a.setLevel = fn }
}

// ─── New ─────────────────────────────────────────────────────────────────────

// New builds every subsystem from cfg. On error, anything already opened is
// released.
func New(ctx context.Context, cfg *config.Config, opts ...Option) (*App, error) {
	a := &App{cfg: cfg}
	for _, o := range opts {
		o(a)
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}
	if a.factory == nil {
		fopts := []openai.Option{openai.WithAuthCheckPath(cfg.Remote.AuthCheckPath)}
		if cfg.Remote.Timeout > 0 {
			fopts = append(fopts, openai.WithTimeout(cfg.Remote.Timeout))
		}
		a.factory = openai.Factory(fopts...)
	}

	if err := a.init(ctx); err != nil {
		_ = a.Shutdown(context.Background())
		return nil, err
	}
	return a, nil
}

func (a *App) init(ctx context.Context) error {
	if err := a.initStore(); err != nil {
		return err
	}

	cues, err := cue.NewCache(a.cfg.Audio.CueSampleRate)
	if err != nil {
		return fmt.Errorf("app: synthesize cues: %w", err)
	}
	a.cues = cues

	a.settings = settings.New(a.kv, settings.WithDefaults(a.cfg.Defaults.App()))
	a.transcript, err = transcript.Load(ctx, a.kv)
	if err != nil {
		return fmt.Errorf("app: load transcript: %w", err)
	}
	a.feed = activity.New(activity.WithLogger(slog.Default()))

	aopts := []assist.Option{assist.WithMetrics(a.metrics)}
	if a.clip != nil {
		aopts = append(aopts, assist.WithClipboard(a.clip))
	}
	a.assist = assist.New(a.settings, a.transcript, a.kv, a.factory, a.feed, aopts...)

	a.health = health.New(
		health.For("store", a.kv),
		health.For("cues", a.cues),
	)

	a.server, err = server.New(server.Deps{
		Settings:      a.settings,
		Transcript:    a.transcript,
		Assist:        a.assist,
		Feed:          a.feed,
		Cues:          a.cues,
		Factory:       a.factory,
		VAD:           a.cfg.Detector(),
		RedirectDelay: a.cfg.Remote.RedirectDelay,
		Health:        a.health,
		Metrics:       a.metrics,
	}, server.WithOriginPatterns(a.cfg.Server.AllowedOrigins...))
	if err != nil {
		return fmt.Errorf("app: build server: %w", err)
	}
	a.closers = append(a.closers, func() error { a.server.Close(); return nil })
	return nil
}

func (a *App) initStore() error {
	var (
		kv  *store.Badger
		err error
	)
	if dir := a.cfg.Server.DataDir; dir != "" {
		kv, err = store.Open(dir)
	} else {
		slog.Warn("server.data_dir is empty; transcript and settings will not survive a restart")
		kv, err = store.OpenInMemory()
	}
	if err != nil {
		return fmt.Errorf("app: open store: %w", err)
	}
	a.kv = kv
	a.closers = append(a.closers, kv.Close)
	return nil
}

// Handler returns the HTTP handler of the server.
func (a *App) Handler() http.Handler {
	return a.server.Handler()
}

// ─── Run ─────────────────────────────────────────────────────────────────────

// Run serves HTTP and relays the activity feed until ctx is cancelled. It
// returns nil on a clean shutdown.
func (a *App) Run(ctx context.Context) error {
	ln := a.listener
	if ln == nil {
		var err error
		ln, err = net.Listen("tcp", a.cfg.Server.ListenAddr)
		if err != nil {
			return fmt.Errorf("app: listen on %s: %w", a.cfg.Server.ListenAddr, err)
		}
	}

	httpSrv := &http.Server{
		Handler:           a.server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("listening", "addr", ln.Addr().String(), "tls", a.cfg.Server.TLS != nil)
		var err error
		if tls := a.cfg.Server.TLS; tls != nil {
			err = httpSrv.ServeTLS(ln, tls.CertFile, tls.KeyFile)
		} else {
			err = httpSrv.Serve(ln)
		}
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	})
	g.Go(func() error {
		return a.server.Run(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		// Ends WebSocket sessions before the HTTP server waits on them.
		a.server.Close()
		sctx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		return httpSrv.Shutdown(sctx)
	})
	return g.Wait()
}

// Reload applies the hot-reloadable parts of a changed config file.
func (a *App) Reload(old, new *config.Config) {
	d := config.Diff(old, new)
	if d.LogLevelChanged && a.setLevel != nil {
		a.setLevel(d.NewLogLevel.Level())
		slog.Info("log level changed", "level", d.NewLogLevel)
	}
	if d.DefaultsChanged {
		a.settings.SetDefaults(new.Defaults.App())
		slog.Info("settings defaults updated")
	}
	if len(d.RestartRequired) > 0 {
		slog.Warn("config changes need a restart to take effect", "sections", d.RestartRequired)
	}
}

// ─── Shutdown ────────────────────────────────────────────────────────────────

// Shutdown releases every subsystem in reverse order. If ctx expires first,
// the remaining closers are skipped and the context error is returned.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		for i := len(a.closers) - 1; i >= 0; i-- {
			if err := ctx.Err(); err != nil {
				slog.Warn("shutdown deadline exceeded", "remaining", i+1)
				shutdownErr = err
				return
			}
			if err := a.closers[i](); err != nil {
				slog.Warn("closer error", "index", i, "err", err)
			}
		}
		slog.Info("shutdown complete")
	})
	return shutdownErr
}
