// Command reshka serves the Reshka voice dictation assistant.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/reshka/internal/app"
	"github.com/MrWong99/reshka/internal/config"
	"github.com/MrWong99/reshka/internal/observe"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "reshka.yaml", "path to the YAML configuration file")
	flag.Parse()

	// ── Load configuration ────────────────────────────────────────────────────
	var watcher *config.Watcher
	var application *app.App
	cfg, err := config.Load(*configPath)
	switch {
	case errors.Is(err, os.ErrNotExist):
		fmt.Fprintf(os.Stderr, "reshka: config file %q not found, using built-in defaults (see configs/example.yaml)\n", *configPath)
		cfg = config.Default()
	case err != nil:
		fmt.Fprintf(os.Stderr, "reshka: %v\n", err)
		return 1
	default:
		watcher, err = config.NewWatcher(*configPath, func(old, new *config.Config) {
			application.Reload(old, new)
		})
		if err != nil {
			fmt.Fprintf(os.Stderr, "reshka: %v\n", err)
			return 1
		}
		cfg = watcher.Current()
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	logger, setLevel := newLogger(cfg.Server.LogFormat, cfg.Server.LogLevel.Level())
	slog.SetDefault(logger)

	slog.Info("reshka starting",
		"version", version,
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	// ── Telemetry ─────────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTelemetry, err := observe.InitProvider(ctx, observe.ProviderConfig{ServiceVersion: version})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTelemetry(sctx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()

	// ── Application ───────────────────────────────────────────────────────────
	application, err = app.New(ctx, cfg, app.WithLevelSetter(setLevel))
	if err != nil {
		slog.Error("failed to initialise application", "err", err)
		return 1
	}

	printStartupSummary(cfg)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return application.Run(gctx) })
	if watcher != nil {
		g.Go(func() error { return watcher.Run(gctx) })
	}

	slog.Info("server ready, press Ctrl+C to shut down")
	runErr := g.Wait()
	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		slog.Error("run error", "err", runErr)
	}

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := application.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
		return 1
	}
	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		return 1
	}
	slog.Info("goodbye")
	return 0
}

// ── Startup summary ───────────────────────────────────────────────────────────

func printStartupSummary(cfg *config.Config) {
	def := cfg.Defaults.App()
	fmt.Println("╔═══════════════════════════════════════════╗")
	fmt.Println("║          Reshka startup summary           ║")
	fmt.Println("╠═══════════════════════════════════════════╣")
	printRow("Listen addr", cfg.Server.ListenAddr)
	if cfg.Server.TLS != nil {
		printRow("TLS", "enabled")
	} else {
		printRow("TLS", "(disabled)")
	}
	if cfg.Server.DataDir != "" {
		printRow("Data dir", cfg.Server.DataDir)
	} else {
		printRow("Data dir", "(in memory)")
	}
	printRow("Endpoint", def.Endpoint)
	printRow("Speech model", def.SpeechModel)
	printRow("Capture rate", fmt.Sprintf("%d Hz", cfg.Audio.CaptureSampleRate))
	fmt.Println("╚═══════════════════════════════════════════╝")
}

func printRow(label, value string) {
	if r := []rune(value); len(r) > 25 {
		value = string(r[:24]) + "…"
	}
	fmt.Printf("║  %-12s : %-25s ║\n", label, value)
}
