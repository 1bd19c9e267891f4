package assist_test

import (
	"context"
	"errors"
	"slices"
	"strings"
	"sync"
	"testing"

	"github.com/MrWong99/reshka/internal/activity"
	"github.com/MrWong99/reshka/internal/assist"
	"github.com/MrWong99/reshka/internal/orchestrator"
	"github.com/MrWong99/reshka/internal/settings"
	"github.com/MrWong99/reshka/internal/store"
	"github.com/MrWong99/reshka/internal/transcript"
	"github.com/MrWong99/reshka/pkg/audio/synth"
	"github.com/MrWong99/reshka/pkg/provider/llm"
	llmmock "github.com/MrWong99/reshka/pkg/provider/llm/mock"
)

// ── fakes ───────────────────────────────────────────────────────────────────

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

func (r *recordingFeed) has(msg string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.ContainsFunc(r.entries, func(e activity.Entry) bool { return e.Message == msg })
}

func (r *recordingFeed) lastToast() activity.Toast {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.toasts) == 0 {
		return activity.Toast{}
	}
	return r.toasts[len(r.toasts)-1]
}

type fakeClipboard struct {
	text string
	err  error
}

func (c *fakeClipboard) SetText(_ context.Context, text string) error {
	if c.err != nil {
		return c.err
	}
	c.text = text
	return nil
}

type recordingCues struct {
	mu     sync.Mutex
	played []synth.Kind
}

func (r *recordingCues) Play(name synth.Kind, _ func()) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.played = append(r.played, name)
}

// ── fixture ─────────────────────────────────────────────────────────────────

type fixture struct {
	svc   *assist.Service
	kv    *store.Badger
	prov  *llmmock.Provider
	feed  *recordingFeed
	clip  *fakeClipboard
	text  *transcript.Store
	store *settings.Store
}

func newFixture(t *testing.T, key string) *fixture {
	t.Helper()
	ctx := context.Background()

	kv, err := store.OpenInMemory()
	if err != nil {
		t.Fatalf("OpenInMemory: %v", err)
	}
	t.Cleanup(func() { _ = kv.Close() })

	st := settings.New(kv)
	app := settings.DefaultApp()
	app.APIKey = key
	if _, err := st.SaveApp(ctx, app); err != nil {
		t.Fatalf("SaveApp: %v", err)
	}
	ts, err := transcript.Load(ctx, kv)
	if err != nil {
		t.Fatalf("transcript.Load: %v", err)
	}

	f := &fixture{
		kv:    kv,
		prov:  &llmmock.Provider{},
		feed:  &recordingFeed{},
		clip:  &fakeClipboard{},
		text:  ts,
		store: st,
	}
	f.svc = assist.New(st, ts, kv, f.prov.Factory(nil), f.feed, assist.WithClipboard(f.clip))
	return f
}

func reply(text string) *llm.CompletionResponse {
	return &llm.CompletionResponse{Kind: llm.ReplyChat, Text: text}
}

// ── tests ───────────────────────────────────────────────────────────────────

func TestParseQuestions(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		raw  string
		want []assist.Question
	}{
		{
			name: "numbered with dots and parens",
			raw:  "1. What is X?\n\n2) Why Y?\n",
			want: []assist.Question{{Number: "1", Text: "What is X?"}, {Number: "2", Text: "Why Y?"}},
		},
		{
			name: "unnumbered lines kept trimmed",
			raw:  "  Intro line  \n3.Tight",
			want: []assist.Question{{Text: "Intro line"}, {Number: "3", Text: "Tight"}},
		},
		{
			name: "blank",
			raw:  "  \n\n",
			want: nil,
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if got := assist.ParseQuestions(tc.raw); !slices.Equal(got, tc.want) {
				t.Errorf("ParseQuestions(%q) = %+v, want %+v", tc.raw, got, tc.want)
			}
		})
	}
}

func TestRephrase(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	f := newFixture(t, "k")
	f.prov.CompleteResponse = reply("Cleaner text.")
	_, _ = f.text.Append(ctx, "  raw words  ")

	var pushed string
	f.svc.OnRephrase(func(s string) { pushed = s })

	got, err := f.svc.Rephrase(ctx)
	if err != nil {
		t.Fatalf("Rephrase: %v", err)
	}
	if got != "Cleaner text." || pushed != got {
		t.Errorf("Rephrase = %q, pushed %q", got, pushed)
	}

	calls := f.prov.Calls()
	if len(calls) != 1 {
		t.Fatalf("Complete calls = %d", len(calls))
	}
	req := calls[0].Req
	if req.Model != settings.DefaultModel || req.Temperature != orchestrator.Temperature {
		t.Errorf("request model/temperature = %q/%v", req.Model, req.Temperature)
	}
	if len(req.Messages) != 1 || req.Messages[0].Role != llm.RoleUser ||
		!strings.HasPrefix(req.Messages[0].Content, "raw words\n---\n") {
		t.Errorf("messages = %+v", req.Messages)
	}

	stored, found, err := f.svc.RephraseResult(ctx)
	if err != nil || !found || stored != "Cleaner text." {
		t.Errorf("RephraseResult = %q, %v, %v", stored, found, err)
	}
	if !f.feed.has("Rephrasing transcript...") || !f.feed.has("Rephrase completed") {
		t.Errorf("missing log entries: %+v", f.feed.entries)
	}
}

func TestRephrase_Fallback(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	f := newFixture(t, "k")
	f.prov.CompleteResponse = reply("")
	_, _ = f.text.Append(ctx, "words")

	got, err := f.svc.Rephrase(ctx)
	if err != nil || got != assist.FallbackRephrase {
		t.Errorf("Rephrase = %q, %v; want fallback", got, err)
	}
}

func TestRephrase_Failures(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	tests := []struct {
		name      string
		key       string
		text      string
		err       error
		wantKind  orchestrator.Kind
		wantToast string
		wantCalls int
	}{
		{name: "empty transcript", key: "k", wantKind: orchestrator.EmptyInput, wantToast: "No transcript to rephrase"},
		{name: "no key", text: "x", wantKind: orchestrator.ConfigMissing, wantToast: "Please configure your API key first"},
		{
			name:      "rejected",
			key:       "k",
			text:      "x",
			err:       &llm.StatusError{StatusCode: 401, Status: "Unauthorized"},
			wantKind:  orchestrator.NetworkFailure,
			wantToast: "Failed to rephrase: ",
			wantCalls: 1,
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			f := newFixture(t, tc.key)
			f.prov.CompleteErr = tc.err
			if tc.text != "" {
				_, _ = f.text.Append(ctx, tc.text)
			}

			_, err := f.svc.Rephrase(ctx)
			if k := orchestrator.KindOf(err); k != tc.wantKind {
				t.Errorf("KindOf = %s, want %s (err %v)", k, tc.wantKind, err)
			}
			toast := f.feed.lastToast()
			if toast.Level != activity.LevelError || !strings.HasPrefix(toast.Message, tc.wantToast) {
				t.Errorf("toast = %+v, want error %q", toast, tc.wantToast)
			}
			if got := len(f.prov.Calls()); got != tc.wantCalls {
				t.Errorf("Complete calls = %d, want %d", got, tc.wantCalls)
			}
			if _, found, _ := f.svc.RephraseResult(ctx); found {
				t.Error("failed rephrase stored a result")
			}
		})
	}
}

func TestGenerate(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	f := newFixture(t, "k")
	f.prov.CompleteResponse = reply("1. First?\n2. Second?")
	_, _ = f.text.Append(ctx, "A long discussion.")
	cues := &recordingCues{}

	var pushed assist.Questions
	f.svc.OnQuestions(func(q assist.Questions) { pushed = q })

	q, err := f.svc.Generate(ctx, cues)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if len(q.Items) != 2 || q.Items[1].Text != "Second?" || pushed.Raw != q.Raw {
		t.Errorf("Generate = %+v, pushed %+v", q, pushed)
	}
	if !slices.Equal(cues.played, []synth.Kind{synth.ResultArrived}) {
		t.Errorf("cues = %v", cues.played)
	}

	req := f.prov.Calls()[0].Req
	if len(req.Messages) != 2 || req.Messages[0].Role != llm.RoleSystem || req.Messages[1].Content != "A long discussion." {
		t.Errorf("messages = %+v", req.Messages)
	}

	stored, found, err := f.svc.Questions(ctx)
	if err != nil || !found || stored.Raw != "1. First?\n2. Second?" {
		t.Errorf("Questions = %+v, %v, %v", stored, found, err)
	}

	if err := f.svc.ClearQuestions(ctx); err != nil {
		t.Fatalf("ClearQuestions: %v", err)
	}
	if _, found, _ := f.svc.Questions(ctx); found {
		t.Error("questions still stored after clear")
	}
	if !f.feed.has("Questions cleared") {
		t.Error("missing clear log")
	}
}

func TestGenerate_TooBrief(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	f := newFixture(t, "k")
	f.prov.CompleteResponse = reply("  NO_QUESTIONS\n")
	_, _ = f.text.Append(ctx, "Hi.")
	cues := &recordingCues{}

	_, err := f.svc.Generate(ctx, cues)
	if !errors.Is(err, assist.ErrTooBrief) {
		t.Fatalf("Generate err = %v, want ErrTooBrief", err)
	}
	if len(cues.played) != 0 {
		t.Errorf("cues = %v, want none", cues.played)
	}
	if _, found, _ := f.svc.Questions(ctx); found {
		t.Error("too-brief reply was stored")
	}
	if toast := f.feed.lastToast(); toast.Message != "Transcript too brief to generate questions" {
		t.Errorf("toast = %+v", toast)
	}
}

func TestGenerate_RemoteErrorPlaysErrorCue(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	f := newFixture(t, "k")
	f.prov.CompleteErr = errors.New("connection reset")
	_, _ = f.text.Append(ctx, "Notes.")
	cues := &recordingCues{}

	if err := f.svc.GenerateQuestions(ctx, cues); orchestrator.KindOf(err) != orchestrator.NetworkFailure {
		t.Errorf("GenerateQuestions err = %v", err)
	}
	if !slices.Equal(cues.played, []synth.Kind{synth.Error}) {
		t.Errorf("cues = %v", cues.played)
	}
	if toast := f.feed.lastToast(); toast.Message != "Failed to generate questions: connection reset" {
		t.Errorf("toast = %+v", toast)
	}
}

func TestGenerate_EmptyTranscriptNilCues(t *testing.T) {
	t.Parallel()

	f := newFixture(t, "k")
	_, err := f.svc.Generate(context.Background(), nil)
	if orchestrator.KindOf(err) != orchestrator.EmptyInput {
		t.Errorf("err = %v, want EmptyInput", err)
	}
	if toast := f.feed.lastToast(); toast.Message != "No transcript to generate questions from" {
		t.Errorf("toast = %+v", toast)
	}
}

func TestCopyTranscript(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	f := newFixture(t, "k")
	if err := f.svc.CopyTranscript(ctx); orchestrator.KindOf(err) != orchestrator.EmptyInput {
		t.Errorf("empty copy err = %v", err)
	}

	_, _ = f.text.Append(ctx, "line one")
	if err := f.svc.CopyTranscript(ctx); err != nil {
		t.Fatalf("CopyTranscript: %v", err)
	}
	if f.clip.text != "line one" {
		t.Errorf("clipboard = %q", f.clip.text)
	}

	f.clip.err = assist.ErrClipboardUnsupported
	if err := f.svc.CopyTranscript(ctx); !errors.Is(err, assist.ErrClipboardUnsupported) {
		t.Errorf("err = %v", err)
	}
	if toast := f.feed.lastToast(); toast.Message != "Failed to copy transcript" {
		t.Errorf("toast = %+v", toast)
	}
}

func TestCopyRephrase(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	f := newFixture(t, "k")
	if err := f.svc.CopyRephrase(ctx); !errors.Is(err, assist.ErrNothingToCopy) {
		t.Errorf("empty copy err = %v", err)
	}
	if toast := f.feed.lastToast(); toast.Message != "No rephrased content to copy" {
		t.Errorf("toast = %+v", toast)
	}

	if err := f.kv.Set(ctx, store.KeyRephraseResult, []byte("polished")); err != nil {
		t.Fatal(err)
	}
	if err := f.svc.CopyRephrase(ctx); err != nil {
		t.Fatalf("CopyRephrase: %v", err)
	}
	if f.clip.text != "polished" || !f.feed.has("Rephrased content copied") {
		t.Errorf("clipboard = %q", f.clip.text)
	}
}

func TestClearTranscript(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	f := newFixture(t, "k")
	_, _ = f.text.Append(ctx, "something")
	if err := f.svc.ClearTranscript(ctx); err != nil {
		t.Fatalf("ClearTranscript: %v", err)
	}
	if f.text.Text() != "" {
		t.Errorf("transcript = %q", f.text.Text())
	}
	if toast := f.feed.lastToast(); toast.Level != activity.LevelSuccess || toast.Message != "Transcript cleared" {
		t.Errorf("toast = %+v", toast)
	}
}
