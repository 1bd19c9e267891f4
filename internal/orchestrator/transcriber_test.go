package orchestrator_test

import (
	"context"
	"encoding/base64"
	"errors"
	"strings"
	"testing"

	"github.com/MrWong99/reshka/internal/orchestrator"
	"github.com/MrWong99/reshka/internal/voicecmd"
	"github.com/MrWong99/reshka/pkg/audio"
	"github.com/MrWong99/reshka/pkg/audio/wav"
	"github.com/MrWong99/reshka/pkg/provider/llm"
	llmmock "github.com/MrWong99/reshka/pkg/provider/llm/mock"
)

func TestCleanFences(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in, want string
	}{
		{"plain text", "plain text"},
		{"```json\nhello\n```", "hello"},
		{"```JSON\nhello```", "hello"},
		{"```\ncode\n```\n", "code"},
		{"  spaced  ", "spaced"},
		{"before ```json inside", "before  inside"},
	}
	for _, tc := range tests {
		if got := orchestrator.CleanFences(tc.in); got != tc.want {
			t.Errorf("CleanFences(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestTranscriptionRequest(t *testing.T) {
	t.Parallel()

	p := newFakeSettings("k").prompts
	req := orchestrator.TranscriptionRequest("speech/model", p, "UklGRg==")

	if req.Model != "speech/model" || req.Temperature != 0.7 {
		t.Errorf("model/temperature = %q/%v", req.Model, req.Temperature)
	}
	if len(req.Messages) != 2 {
		t.Fatalf("messages = %d, want 2", len(req.Messages))
	}
	if sys := req.Messages[0]; sys.Role != llm.RoleSystem || sys.Content != p.SystemPrompt {
		t.Errorf("system message = %+v", sys)
	}
	user := req.Messages[1]
	if user.Role != llm.RoleUser || len(user.Parts) != 2 {
		t.Fatalf("user message = %+v", user)
	}
	if a := user.Parts[0]; a.Type != llm.PartInputAudio || a.Audio == nil || a.Audio.Data != "UklGRg==" || a.Audio.Format != "wav" {
		t.Errorf("audio part = %+v", a)
	}
	if txt := user.Parts[1]; txt.Type != llm.PartText || !strings.Contains(txt.Text, `- "generate questions"`) {
		t.Errorf("text part = %+v", txt)
	}
}

func TestTranscriber_Success(t *testing.T) {
	t.Parallel()

	prov := &llmmock.Provider{CompleteResponse: &llm.CompletionResponse{Kind: llm.ReplyChat, Text: "```\nHello there.\n```"}}
	var creds []llm.Credentials
	tr := orchestrator.NewTranscriber(newFakeSettings("sk-1"), prov.Factory(&creds))

	seg := audio.NewBuffer(48000, 48000) // one second at 48 kHz
	res, err := tr.Transcribe(context.Background(), seg)
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if res.Text != "Hello there." || res.Command != "" {
		t.Errorf("result = %+v", res)
	}
	if len(creds) != 1 || creds[0].APIKey != "sk-1" {
		t.Errorf("factory credentials = %+v", creds)
	}

	calls := prov.Calls()
	if len(calls) != 1 {
		t.Fatalf("Complete calls = %d, want 1", len(calls))
	}
	data := calls[0].Req.Messages[1].Parts[0].Audio.Data
	raw, err := base64.StdEncoding.DecodeString(data)
	if err != nil {
		t.Fatalf("audio is not base64: %v", err)
	}
	info, err := wav.ParseHeader(raw)
	if err != nil {
		t.Fatalf("ParseHeader: %v", err)
	}
	if info.SampleRate != orchestrator.TranscriptionSampleRate || info.SampleCount != 16000 {
		t.Errorf("uploaded wav = %+v, want 16 kHz with 16000 samples", info)
	}
}

func TestTranscriber_Fallback(t *testing.T) {
	t.Parallel()

	prov := &llmmock.Provider{CompleteResponse: &llm.CompletionResponse{Kind: llm.ReplyEmpty}}
	tr := orchestrator.NewTranscriber(newFakeSettings("k"), prov.Factory(nil))

	res, err := tr.Transcribe(context.Background(), audio.NewBuffer(160, 16000))
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if res.Text != orchestrator.FallbackTranscription {
		t.Errorf("Text = %q, want fallback", res.Text)
	}
}

func TestTranscriber_DetectsVoiceCommand(t *testing.T) {
	t.Parallel()

	prov := &llmmock.Provider{CompleteResponse: &llm.CompletionResponse{Kind: llm.ReplyContentBlock, Text: " Please generate questions. "}}
	tr := orchestrator.NewTranscriber(newFakeSettings("k"), prov.Factory(nil))

	res, err := tr.Transcribe(context.Background(), audio.NewBuffer(160, 16000))
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if res.Command != voicecmd.GenerateQuestions {
		t.Errorf("Command = %q, want %q", res.Command, voicecmd.GenerateQuestions)
	}
}

func TestTranscriber_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		key      string
		err      error
		wantKind orchestrator.Kind
		wantMsg  string
	}{
		{name: "no key", key: "", wantKind: orchestrator.ConfigMissing},
		{
			name:     "unauthorized",
			key:      "k",
			err:      &llm.StatusError{StatusCode: 401, Status: "Unauthorized"},
			wantKind: orchestrator.NetworkFailure,
			wantMsg:  "API request failed: 401 Unauthorized",
		},
		{name: "transport", key: "k", err: errors.New("dial tcp: refused"), wantKind: orchestrator.NetworkFailure, wantMsg: "dial tcp: refused"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			prov := &llmmock.Provider{CompleteErr: tc.err}
			tr := orchestrator.NewTranscriber(newFakeSettings(tc.key), prov.Factory(nil))

			_, err := tr.Transcribe(context.Background(), audio.NewBuffer(160, 16000))
			if err == nil {
				t.Fatal("expected error")
			}
			if k := orchestrator.KindOf(err); k != tc.wantKind {
				t.Errorf("KindOf = %s, want %s", k, tc.wantKind)
			}
			if tc.wantMsg != "" && err.Error() != tc.wantMsg {
				t.Errorf("Error() = %q, want %q", err.Error(), tc.wantMsg)
			}
			if tc.key == "" && len(prov.Calls()) != 0 {
				t.Error("request sent without API key")
			}
		})
	}
}

func TestTranscriber_Cancelled(t *testing.T) {
	t.Parallel()

	prov := &llmmock.Provider{
		CompleteFunc: func(ctx context.Context, _ llm.CompletionRequest) (*llm.CompletionResponse, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		},
	}
	tr := orchestrator.NewTranscriber(newFakeSettings("k"), prov.Factory(nil))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := tr.Transcribe(ctx, audio.NewBuffer(160, 16000))
	if !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}

func TestKindOf(t *testing.T) {
	t.Parallel()

	if k := orchestrator.KindOf(nil); k != orchestrator.KindUnknown {
		t.Errorf("KindOf(nil) = %s", k)
	}
	if k := orchestrator.KindOf(llm.ErrNoAPIKey); k != orchestrator.ConfigMissing {
		t.Errorf("KindOf(ErrNoAPIKey) = %s", k)
	}
	wrapped := errors.Join(errors.New("ctx"), &orchestrator.Error{Kind: orchestrator.EmptyInput, Op: "rephrase"})
	if k := orchestrator.KindOf(wrapped); k != orchestrator.EmptyInput {
		t.Errorf("KindOf(wrapped) = %s", k)
	}
	if !orchestrator.ConfigMissing.RedirectsToConfig() || !orchestrator.AuthRejected.RedirectsToConfig() || orchestrator.NetworkFailure.RedirectsToConfig() {
		t.Error("RedirectsToConfig mismatch")
	}
}
