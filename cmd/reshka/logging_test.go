package main

import (
	"context"
	"log/slog"
	"testing"

	"github.com/MrWong99/reshka/internal/config"
)

func TestNewLogger_SetLevel(t *testing.T) {
	t.Parallel()

	for _, format := range []config.LogFormat{config.LogFormatText, config.LogFormatJSON, config.LogFormatPretty} {
		t.Run(string(format), func(t *testing.T) {
			t.Parallel()
			logger, setLevel := newLogger(format, slog.LevelWarn)
			ctx := context.Background()

			if logger.Enabled(ctx, slog.LevelInfo) {
				t.Error("info enabled at warn level")
			}
			setLevel(slog.LevelDebug)
			if !logger.Enabled(ctx, slog.LevelDebug) {
				t.Error("debug disabled after SetLevel(debug)")
			}
		})
	}
}

func TestExampleConfigLoads(t *testing.T) {
	t.Parallel()
	cfg, err := config.Load("../../configs/example.yaml")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.LogFormat != config.LogFormatPretty {
		t.Errorf("log_format = %q", cfg.Server.LogFormat)
	}
}
