package main

import (
	"log/slog"
	"os"

	charmlog "github.com/charmbracelet/log"

	"github.com/MrWong99/reshka/internal/config"
)

// newLogger builds the process logger for format and returns a function that
// changes its level at runtime.
func newLogger(format config.LogFormat, level slog.Level) (*slog.Logger, func(slog.Level)) {
	switch format {
	case config.LogFormatPretty:
		h := charmlog.NewWithOptions(os.Stderr, charmlog.Options{
			Level:           charmlog.Level(level),
			ReportTimestamp: true,
		})
		return slog.New(h), func(l slog.Level) { h.SetLevel(charmlog.Level(l)) }
	case config.LogFormatJSON:
		lv := new(slog.LevelVar)
		lv.Set(level)
		return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: lv})), lv.Set
	default:
		lv := new(slog.LevelVar)
		lv.Set(level)
		return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lv})), lv.Set
	}
}
