// Package assist implements the on-demand actions over the transcript:
// rephrasing it, generating follow-up questions, copying results to the
// clipboard and clearing stored results.
//
// Every action reports its outcome on the activity feed the same way the
// capture pipeline does, and returns an *orchestrator.Error so HTTP handlers
// can map the failure kind to a status code.
package assist

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/MrWong99/reshka/internal/activity"
	"github.com/MrWong99/reshka/internal/observe"
	"github.com/MrWong99/reshka/internal/orchestrator"
	"github.com/MrWong99/reshka/internal/prompt"
	"github.com/MrWong99/reshka/internal/settings"
	"github.com/MrWong99/reshka/internal/store"
	"github.com/MrWong99/reshka/pkg/audio/synth"
	"github.com/MrWong99/reshka/pkg/provider/llm"
)

// Fallback texts for empty replies.
const (
	FallbackRephrase  = "No rephrase available"
	FallbackQuestions = NoQuestions
)

// NoQuestions is the literal the model answers with when the transcript is
// too short for questions.
const NoQuestions = "NO_QUESTIONS"

var (
	// ErrEmptyTranscript is the cause of EmptyInput failures.
	ErrEmptyTranscript = errors.New("transcript is empty")

	// ErrNothingToCopy is returned when there is no stored result to copy.
	ErrNothingToCopy = errors.New("nothing to copy")

	// ErrTooBrief is returned by [Service.Generate] when the model declined
	// to produce questions.
	ErrTooBrief = errors.New("transcript too brief to generate questions")
)

// Transcript is the transcript state the actions read and clear.
// *transcript.Store implements it.
type Transcript interface {
	Text() string
	Clear(ctx context.Context) error
}

// Question is one parsed question line.
type Question struct {
	// Number is the model's numbering ("1", "2", ...). Empty for lines
	// without a number.
	Number string `json:"number,omitempty"`
	Text   string `json:"text"`
}

// Questions is a generated question set.
type Questions struct {
	// Raw is the model reply as stored.
	Raw   string     `json:"raw"`
	Items []Question `json:"items"`
}

var questionLine = regexp.MustCompile(`^(\d+)[.)]\s*(.*)`)

// ParseQuestions splits raw into non-blank lines. Lines of the form "1. text"
// or "1) text" yield a numbered question; other lines are kept verbatim.
func ParseQuestions(raw string) []Question {
	var out []Question
	for line := range strings.SplitSeq(strings.TrimSpace(raw), "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}
		if m := questionLine.FindStringSubmatch(line); m != nil {
			out = append(out, Question{Number: m[1], Text: m[2]})
			continue
		}
		out = append(out, Question{Text: strings.TrimSpace(line)})
	}
	return out
}

// Service runs the assist actions. It is safe for concurrent use.
type Service struct {
	settings   orchestrator.Settings
	transcript Transcript
	kv         store.KV
	factory    llm.Factory
	feed       orchestrator.Activity
	clip       Clipboard
	metrics    *observe.Metrics

	mu          sync.Mutex
	onQuestions func(Questions)
	onRephrase  func(string)
}

// Option configures a [Service].
type Option func(*Service)

// WithClipboard replaces the system clipboard.
func WithClipboard(c Clipboard) Option {
	return func(s *Service) { s.clip = c }
}

// WithMetrics records call latency and outcomes on m.
func WithMetrics(m *observe.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// New creates a Service.
func New(cfg orchestrator.Settings, t Transcript, kv store.KV, factory llm.Factory, feed orchestrator.Activity, opts ...Option) *Service {
	s := &Service{
		settings:   cfg,
		transcript: t,
		kv:         kv,
		factory:    factory,
		feed:       feed,
		clip:       SystemClipboard{},
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// OnQuestions sets the callback invoked after a question set was stored.
func (s *Service) OnQuestions(fn func(Questions)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onQuestions = fn
}

// OnRephrase sets the callback invoked after a rephrase result was stored.
func (s *Service) OnRephrase(fn func(string)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onRephrase = fn
}

// ── Rephrase ────────────────────────────────────────────────────────────────

// Rephrase asks the rephrase model to restructure the transcript and stores
// the reply.
func (s *Service) Rephrase(ctx context.Context) (string, error) {
	const op = "rephrase"
	text, app, prompts, err := s.prepare(ctx, op, "No transcript to rephrase")
	if err != nil {
		return "", err
	}

	s.feed.Log(ctx, activity.APICall, "Rephrasing transcript...")
	resp, err := s.complete(ctx, op, app.Credentials(), llm.CompletionRequest{
		Model:       app.RephraseModel,
		Temperature: orchestrator.Temperature,
		Messages: []llm.Message{
			{Role: llm.RoleUser, Content: text + "\n---\n" + prompts.Rephrase()},
		},
	})
	if err != nil {
		s.feed.Log(ctx, activity.Error, "Rephrase error: "+err.Error())
		s.feed.Notify(ctx, activity.LevelError, "Failed to rephrase: "+err.Error())
		return "", err
	}

	result := resp.TextOr(FallbackRephrase)
	if err := s.kv.Set(ctx, store.KeyRephraseResult, []byte(result)); err != nil {
		return "", &orchestrator.Error{Op: op, Err: err}
	}
	s.feed.Log(ctx, activity.Success, "Rephrase completed")
	s.feed.Notify(ctx, activity.LevelSuccess, "Rephrase completed")

	s.mu.Lock()
	fn := s.onRephrase
	s.mu.Unlock()
	if fn != nil {
		fn(result)
	}
	return result, nil
}

// RephraseResult returns the stored rephrase result.
func (s *Service) RephraseResult(ctx context.Context) (string, bool, error) {
	return store.GetString(ctx, s.kv, store.KeyRephraseResult)
}

// CopyRephrase copies the stored rephrase result to the clipboard.
func (s *Service) CopyRephrase(ctx context.Context) error {
	text, _, err := s.RephraseResult(ctx)
	if err != nil {
		return &orchestrator.Error{Op: "copy_rephrase", Err: err}
	}
	if text == "" {
		s.feed.Notify(ctx, activity.LevelError, "No rephrased content to copy")
		return &orchestrator.Error{Kind: orchestrator.EmptyInput, Op: "copy_rephrase", Err: ErrNothingToCopy}
	}
	if err := s.clip.SetText(ctx, text); err != nil {
		s.feed.Notify(ctx, activity.LevelError, "Failed to copy rephrased content")
		return &orchestrator.Error{Op: "copy_rephrase", Err: err}
	}
	s.feed.Notify(ctx, activity.LevelSuccess, "Rephrased content copied to clipboard")
	s.feed.Log(ctx, activity.Success, "Rephrased content copied")
	return nil
}

// ── Questions ───────────────────────────────────────────────────────────────

// GenerateQuestions runs [Service.Generate] and discards the result. It lets
// the Service serve as the orchestrator's question flow.
func (s *Service) GenerateQuestions(ctx context.Context, cues orchestrator.CuePlayer) error {
	_, err := s.Generate(ctx, cues)
	return err
}

// Generate asks the question model for follow-up questions about the
// transcript. On success the raw reply is stored and the result cue played
// on cues (when non-nil). A reply of exactly [NoQuestions] stores nothing and
// returns [ErrTooBrief]. Remote failures play the error cue.
func (s *Service) Generate(ctx context.Context, cues orchestrator.CuePlayer) (Questions, error) {
	const op = "questions"
	text, app, prompts, err := s.prepare(ctx, op, "No transcript to generate questions from")
	if err != nil {
		return Questions{}, err
	}

	s.feed.Log(ctx, activity.APICall, "Generating questions...")
	resp, err := s.complete(ctx, op, app.Credentials(), llm.CompletionRequest{
		Model:       app.QuestionModel,
		Temperature: orchestrator.Temperature,
		Messages: []llm.Message{
			{Role: llm.RoleSystem, Content: prompts.Question()},
			{Role: llm.RoleUser, Content: text},
		},
	})
	if err != nil {
		play(cues, synth.Error)
		s.feed.Log(ctx, activity.Error, "Question generation error: "+err.Error())
		s.feed.Notify(ctx, activity.LevelError, "Failed to generate questions: "+err.Error())
		return Questions{}, err
	}

	raw := resp.TextOr(FallbackQuestions)
	if strings.TrimSpace(raw) == NoQuestions {
		s.feed.Notify(ctx, activity.LevelError, "Transcript too brief to generate questions")
		s.feed.Log(ctx, activity.Info, "Transcript too brief for questions")
		return Questions{}, ErrTooBrief
	}

	if err := s.kv.Set(ctx, store.KeyQuestions, []byte(raw)); err != nil {
		return Questions{}, &orchestrator.Error{Op: op, Err: err}
	}
	q := Questions{Raw: raw, Items: ParseQuestions(raw)}
	play(cues, synth.ResultArrived)
	s.feed.Log(ctx, activity.Success, "Questions generated")
	s.feed.Notify(ctx, activity.LevelSuccess, "Questions generated")

	s.mu.Lock()
	fn := s.onQuestions
	s.mu.Unlock()
	if fn != nil {
		fn(q)
	}
	return q, nil
}

// Questions returns the stored question set.
func (s *Service) Questions(ctx context.Context) (Questions, bool, error) {
	raw, found, err := store.GetString(ctx, s.kv, store.KeyQuestions)
	if err != nil || !found {
		return Questions{}, false, err
	}
	return Questions{Raw: raw, Items: ParseQuestions(raw)}, true, nil
}

// ClearQuestions removes the stored question set.
func (s *Service) ClearQuestions(ctx context.Context) error {
	if err := s.kv.Delete(ctx, store.KeyQuestions); err != nil {
		return &orchestrator.Error{Op: "clear_questions", Err: err}
	}
	s.feed.Log(ctx, activity.Info, "Questions cleared")

	s.mu.Lock()
	fn := s.onQuestions
	s.mu.Unlock()
	if fn != nil {
		fn(Questions{})
	}
	return nil
}

// ── Transcript ──────────────────────────────────────────────────────────────

// CopyTranscript copies the trimmed transcript to the clipboard.
func (s *Service) CopyTranscript(ctx context.Context) error {
	text := strings.TrimSpace(s.transcript.Text())
	if text == "" {
		s.feed.Notify(ctx, activity.LevelError, "No transcript to copy")
		return &orchestrator.Error{Kind: orchestrator.EmptyInput, Op: "copy_transcript", Err: ErrEmptyTranscript}
	}
	if err := s.clip.SetText(ctx, text); err != nil {
		s.feed.Notify(ctx, activity.LevelError, "Failed to copy transcript")
		return &orchestrator.Error{Op: "copy_transcript", Err: err}
	}
	s.feed.Notify(ctx, activity.LevelSuccess, "Transcript copied to clipboard")
	s.feed.Log(ctx, activity.Success, "Transcript copied to clipboard")
	return nil
}

// ClearTranscript empties the transcript.
func (s *Service) ClearTranscript(ctx context.Context) error {
	if err := s.transcript.Clear(ctx); err != nil {
		return &orchestrator.Error{Op: "clear_transcript", Err: err}
	}
	s.feed.Log(ctx, activity.Info, "Transcript cleared")
	s.feed.Notify(ctx, activity.LevelSuccess, "Transcript cleared")
	return nil
}

// ── helpers ─────────────────────────────────────────────────────────────────

// prepare loads the trimmed transcript and settings shared by both remote
// actions, reporting the EmptyInput and ConfigMissing cases.
func (s *Service) prepare(ctx context.Context, op, emptyMsg string) (string, settings.App, prompt.Config, error) {
	text := strings.TrimSpace(s.transcript.Text())
	if text == "" {
		s.feed.Notify(ctx, activity.LevelError, emptyMsg)
		return "", settings.App{}, prompt.Config{}, &orchestrator.Error{Kind: orchestrator.EmptyInput, Op: op, Err: ErrEmptyTranscript}
	}
	app, err := s.settings.App(ctx)
	if err != nil {
		return "", settings.App{}, prompt.Config{}, &orchestrator.Error{Op: op, Err: err}
	}
	if !app.HasAPIKey() {
		s.feed.Notify(ctx, activity.LevelError, "Please configure your API key first")
		return "", settings.App{}, prompt.Config{}, &orchestrator.Error{Kind: orchestrator.ConfigMissing, Op: op, Err: llm.ErrNoAPIKey}
	}
	prompts, err := s.settings.Prompts(ctx)
	if err != nil {
		return "", settings.App{}, prompt.Config{}, &orchestrator.Error{Op: op, Err: err}
	}
	return text, app, prompts, nil
}

// complete performs one remote call with tracing and metrics.
func (s *Service) complete(ctx context.Context, op string, creds llm.Credentials, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	ctx, span := observe.StartSpan(ctx, "assist."+op)
	defer span.End()

	provider, err := s.factory(creds)
	if err != nil {
		return nil, &orchestrator.Error{Kind: orchestrator.KindOf(err), Op: op, Err: err}
	}

	start := time.Now()
	resp, err := provider.Complete(ctx, req)
	if s.metrics != nil {
		status := "ok"
		if err != nil {
			status = "error"
			s.metrics.RecordProviderError(ctx, op)
		}
		s.metrics.RecordProviderRequest(ctx, op, status)
		s.metrics.AssistDuration.Record(ctx, time.Since(start).Seconds(),
			metric.WithAttributes(attribute.String("kind", op), attribute.String("status", status)))
	}
	if err != nil {
		span.RecordError(err)
		return nil, &orchestrator.Error{Kind: orchestrator.KindOf(err), Op: op, Err: err}
	}
	return resp, nil
}

func play(cues orchestrator.CuePlayer, name synth.Kind) {
	if cues != nil {
		cues.Play(name, nil)
	}
}
