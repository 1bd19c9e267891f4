package config_test

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/MrWong99/reshka/internal/config"
)

const (
	watcherValidYAML   = "server:\n  log_level: info\n"
	watcherUpdatedYAML = "server:\n  log_level: debug\n"
	watcherInvalidYAML = "server:\n  log_level: shouting\n"
)

var writes atomic.Int64

// writeFile writes content and gives it a unique mtime so every write is
// visible to the watcher regardless of filesystem timestamp resolution.
func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
	stamp := time.Now().Add(time.Duration(writes.Add(1)) * time.Minute)
	if err := os.Chtimes(path, stamp, stamp); err != nil {
		t.Fatalf("chtimes %s: %v", path, err)
	}
}

type recorder struct {
	mu    sync.Mutex
	calls [][2]*config.Config
}

func (r *recorder) onChange(old, new *config.Config) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, [2]*config.Config{old, new})
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.calls)
}

func newWatcher(t *testing.T, initial string) (*config.Watcher, *recorder, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "reshka.yaml")
	writeFile(t, path, initial)
	rec := &recorder{}
	w, err := config.NewWatcher(path, rec.onChange, config.WithInterval(20*time.Millisecond))
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	return w, rec, path
}

func TestWatcher_InitialLoad(t *testing.T) {
	t.Parallel()
	w, _, _ := newWatcher(t, watcherValidYAML)

	cfg := w.Current()
	if cfg == nil || cfg.Server.LogLevel != config.LogInfo {
		t.Fatalf("Current() = %+v", cfg)
	}
}

func TestWatcher_DetectsChange(t *testing.T) {
	t.Parallel()
	w, rec, path := newWatcher(t, watcherValidYAML)

	writeFile(t, path, watcherUpdatedYAML)
	w.Check()

	if rec.count() != 1 {
		t.Fatalf("callbacks = %d, want 1", rec.count())
	}
	old, next := rec.calls[0][0], rec.calls[0][1]
	if old.Server.LogLevel != config.LogInfo || next.Server.LogLevel != config.LogDebug {
		t.Errorf("callback got %q -> %q", old.Server.LogLevel, next.Server.LogLevel)
	}
	if w.Current().Server.LogLevel != config.LogDebug {
		t.Errorf("Current() not updated")
	}
}

func TestWatcher_InvalidFileKeepsOldConfig(t *testing.T) {
	t.Parallel()
	w, rec, path := newWatcher(t, watcherValidYAML)

	writeFile(t, path, watcherInvalidYAML)
	w.Check()

	if rec.count() != 0 {
		t.Errorf("callback fired for invalid config")
	}
	if w.Current().Server.LogLevel != config.LogInfo {
		t.Errorf("Current() replaced by invalid config")
	}
}

func TestWatcher_TouchWithoutContentChange(t *testing.T) {
	t.Parallel()
	w, rec, path := newWatcher(t, watcherValidYAML)

	later := time.Now().Add(time.Hour)
	if err := os.Chtimes(path, later, later); err != nil {
		t.Fatal(err)
	}
	w.Check()

	if rec.count() != 0 {
		t.Errorf("callback fired for touch without content change")
	}
}

func TestWatcher_InitialLoadFails(t *testing.T) {
	t.Parallel()
	if _, err := config.NewWatcher("/nonexistent/path.yaml", nil); err == nil {
		t.Fatal("expected error for non-existent file")
	}
}

func TestWatcher_RunPollsUntilCancelled(t *testing.T) {
	t.Parallel()
	w, rec, path := newWatcher(t, watcherValidYAML)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	writeFile(t, path, watcherUpdatedYAML)
	deadline := time.Now().Add(2 * time.Second)
	for rec.count() == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if rec.count() != 1 {
		t.Errorf("callbacks = %d, want 1", rec.count())
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
