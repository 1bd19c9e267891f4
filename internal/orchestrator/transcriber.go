package orchestrator

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"

	"github.com/MrWong99/reshka/internal/observe"
	"github.com/MrWong99/reshka/internal/prompt"
	"github.com/MrWong99/reshka/internal/settings"
	"github.com/MrWong99/reshka/internal/voicecmd"
	"github.com/MrWong99/reshka/pkg/audio"
	"github.com/MrWong99/reshka/pkg/audio/wav"
	"github.com/MrWong99/reshka/pkg/provider/llm"
)

// TranscriptionSampleRate is the rate segments are encoded at before upload.
const TranscriptionSampleRate = 16000

// Temperature is the sampling temperature of every remote call.
const Temperature = 0.7

// Settings supplies the current user configuration. *settings.Store
// implements it.
type Settings interface {
	App(ctx context.Context) (settings.App, error)
	Prompts(ctx context.Context) (prompt.Config, error)
}

// Result is a successful transcription.
type Result struct {
	// Text is the cleaned candidate line.
	Text string

	// Command is set when Text is a voice command.
	Command voicecmd.Command
}

// Transcriber turns a captured segment into a candidate transcript line with
// one remote call. It is safe for concurrent use.
type Transcriber struct {
	settings Settings
	factory  llm.Factory
	commands *voicecmd.Filter
	metrics  *observe.Metrics
}

// TranscriberOption configures a [Transcriber].
type TranscriberOption func(*Transcriber)

// WithCommands replaces the default voice-command filter.
func WithCommands(f *voicecmd.Filter) TranscriberOption {
	return func(t *Transcriber) { t.commands = f }
}

// WithTranscriberMetrics records call latency and outcomes on m.
func WithTranscriberMetrics(m *observe.Metrics) TranscriberOption {
	return func(t *Transcriber) { t.metrics = m }
}

// NewTranscriber creates a Transcriber. factory builds a provider per call
// from the current settings.
func NewTranscriber(s Settings, factory llm.Factory, opts ...TranscriberOption) *Transcriber {
	t := &Transcriber{settings: s, factory: factory, commands: voicecmd.New()}
	for _, o := range opts {
		o(t)
	}
	return t
}

// Transcribe encodes seg as 16 kHz WAV and sends it for transcription. The
// returned error is an *Error (or context.Canceled when ctx was cancelled).
func (t *Transcriber) Transcribe(ctx context.Context, seg audio.Buffer) (Result, error) {
	ctx, span := observe.StartSpan(ctx, "orchestrator.transcribe")
	defer span.End()

	app, err := t.settings.App(ctx)
	if err != nil {
		return Result{}, &Error{Kind: KindUnknown, Op: "transcribe", Err: err}
	}
	if !app.HasAPIKey() {
		return Result{}, &Error{Kind: ConfigMissing, Op: "transcribe", Err: llm.ErrNoAPIKey}
	}
	prompts, err := t.settings.Prompts(ctx)
	if err != nil {
		return Result{}, &Error{Kind: KindUnknown, Op: "transcribe", Err: err}
	}

	body, err := wav.Encode(audio.Resample(seg, TranscriptionSampleRate))
	if err != nil {
		return Result{}, &Error{Kind: KindUnknown, Op: "transcribe", Err: fmt.Errorf("encode segment: %w", err)}
	}
	req := TranscriptionRequest(app.SpeechModel, prompts, base64.StdEncoding.EncodeToString(body))

	provider, err := t.factory(app.Credentials())
	if err != nil {
		return Result{}, remoteError("transcribe", err)
	}

	start := time.Now()
	resp, err := provider.Complete(ctx, req)
	elapsed := time.Since(start)
	t.record(ctx, elapsed, err)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return Result{}, remoteError("transcribe", err)
	}

	text := CleanFences(resp.TextOr(FallbackTranscription))
	res := Result{Text: text}
	if p, ok := t.commands.Match(text); ok {
		res.Command = p.Command
		if t.metrics != nil {
			t.metrics.RecordVoiceCommand(ctx, string(p.Command))
		}
	}
	span.SetAttributes(
		attribute.Int("reshka.transcript.chars", len(text)),
		attribute.String("reshka.reply.kind", resp.Kind.String()),
	)
	observe.Logger(ctx).Debug("transcription received",
		slog.Int("chars", len(text)),
		slog.Duration("elapsed", elapsed),
		slog.String("command", string(res.Command)),
	)
	return res, nil
}

func (t *Transcriber) record(ctx context.Context, elapsed time.Duration, err error) {
	if t.metrics == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
		t.metrics.RecordProviderError(ctx, "transcribe")
	}
	t.metrics.RecordProviderRequest(ctx, "transcribe", status)
	t.metrics.TranscriptionDuration.Record(ctx, elapsed.Seconds(),
		metric.WithAttributes(attribute.String("status", status)))
}

// TranscriptionRequest builds the chat-completions request for one segment:
// the system prompt, then a user message carrying the audio followed by the
// jargon-injected instructions.
func TranscriptionRequest(model string, p prompt.Config, wavBase64 string) llm.CompletionRequest {
	return llm.CompletionRequest{
		Model:       model,
		Temperature: Temperature,
		Messages: []llm.Message{
			{Role: llm.RoleSystem, Content: p.SystemPrompt},
			{Role: llm.RoleUser, Parts: []llm.ContentPart{
				llm.AudioPart(wavBase64, "wav"),
				llm.TextPart(p.User()),
			}},
		},
	}
}

var (
	jsonFence  = regexp.MustCompile("(?i)```json\n?")
	plainFence = regexp.MustCompile("```\n?")
)

// CleanFences removes markdown code-fence markers and trims the result.
func CleanFences(s string) string {
	s = jsonFence.ReplaceAllString(s, "")
	s = plainFence.ReplaceAllString(s, "")
	return strings.TrimSpace(s)
}
