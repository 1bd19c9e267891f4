package orchestrator_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/MrWong99/reshka/internal/activity"
	"github.com/MrWong99/reshka/internal/orchestrator"
	"github.com/MrWong99/reshka/internal/prompt"
	"github.com/MrWong99/reshka/internal/settings"
	"github.com/MrWong99/reshka/pkg/audio/synth"
)

// ── fakes ───────────────────────────────────────────────────────────────────

type fakeSettings struct {
	app     settings.App
	prompts prompt.Config
}

func newFakeSettings(key string) *fakeSettings {
	app := settings.DefaultApp()
	app.APIKey = key
	return &fakeSettings{app: app, prompts: prompt.Defaults()}
}

func (f *fakeSettings) App(context.Context) (settings.App, error)      { return f.app, nil }
func (f *fakeSettings) Prompts(context.Context) (prompt.Config, error) { return f.prompts, nil }

type recordingFeed struct {
	mu      sync.Mutex
	entries []activity.Entry
	toasts  []activity.Toast
}

func (r *recordingFeed) Log(_ context.Context, typ activity.Type, msg string) activity.Entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	e := activity.Entry{ID: uint64(len(r.entries) + 1), Type: typ, Message: msg}
	r.entries = append(r.entries, e)
	return e
}

func (r *recordingFeed) Notify(_ context.Context, level activity.Level, msg string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.toasts = append(r.toasts, activity.Toast{Level: level, Message: msg})
}

func (r *recordingFeed) Messages() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.entries))
	for i, e := range r.entries {
		out[i] = e.Message
	}
	return out
}

func (r *recordingFeed) Toasts() []activity.Toast {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]activity.Toast(nil), r.toasts...)
}

func (r *recordingFeed) Has(msg string) bool {
	for _, m := range r.Messages() {
		if m == msg {
			return true
		}
	}
	return false
}

type fakeHost struct {
	mu         sync.Mutex
	perm       orchestrator.MicPermission
	permErr    error
	requestErr error
	requests   int
	redirects  []time.Duration
	statuses   []orchestrator.Status
}

func (h *fakeHost) MicrophonePermission(context.Context) (orchestrator.MicPermission, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.perm, h.permErr
}

func (h *fakeHost) RequestMicrophone(context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.requests++
	return h.requestErr
}

func (h *fakeHost) Redirect(_ context.Context, after time.Duration) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.redirects = append(h.redirects, after)
}

func (h *fakeHost) ShowStatus(_ orchestrator.Mode, st orchestrator.Status) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.statuses = append(h.statuses, st)
}

func (h *fakeHost) Redirects() []time.Duration {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]time.Duration(nil), h.redirects...)
}

func (h *fakeHost) LastStatus() orchestrator.Status {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.statuses) == 0 {
		return orchestrator.Status{}
	}
	return h.statuses[len(h.statuses)-1]
}

type recordingCues struct {
	mu     sync.Mutex
	played []synth.Kind
}

func (c *recordingCues) Play(name synth.Kind, onDone func()) {
	c.mu.Lock()
	c.played = append(c.played, name)
	c.mu.Unlock()
	if onDone != nil {
		onDone()
	}
}

func (c *recordingCues) Played() []synth.Kind {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]synth.Kind(nil), c.played...)
}

func (c *recordingCues) Count(name synth.Kind) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, p := range c.played {
		if p == name {
			n++
		}
	}
	return n
}

type fakeQuestions struct {
	mu      sync.Mutex
	calls   int
	release chan struct{}
}

// hold makes later flows block until the returned channel is closed and then
// play the result cue. Cancellation is ignored on purpose.
func (q *fakeQuestions) hold() chan struct{} {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.release = make(chan struct{})
	return q.release
}

func (q *fakeQuestions) GenerateQuestions(_ context.Context, cues orchestrator.CuePlayer) error {
	q.mu.Lock()
	q.calls++
	release := q.release
	q.mu.Unlock()
	if release != nil {
		<-release
		cues.Play(synth.ResultArrived, nil)
	}
	return nil
}

func (q *fakeQuestions) Calls() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.calls
}

// waitFor polls cond until it holds or the deadline passes.
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
