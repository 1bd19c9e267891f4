package prompt_test

import (
	"errors"
	"strings"
	"testing"

	"github.com/MrWong99/reshka/internal/prompt"
)

func TestInject(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		template string
		jargons  string
		want     string
	}{
		{
			name:     "single term",
			template: "Known:\n{known_jargons}\nEnd",
			jargons:  "generate questions",
			want:     "Known:\n- \"generate questions\"\nEnd",
		},
		{
			name:     "blank lines dropped and terms trimmed",
			template: "{known_jargons}",
			jargons:  "  Kubernetes \n\n\t\ngRPC\r\n  ",
			want:     "- \"Kubernetes\"\n- \"gRPC\"",
		},
		{
			name:     "empty list",
			template: "Terms: {known_jargons}",
			jargons:  "",
			want:     "Terms: (none)",
		},
		{
			name:     "whitespace only list",
			template: "Terms: {known_jargons}",
			jargons:  " \n \n",
			want:     "Terms: (none)",
		},
		{
			name:     "only first marker replaced",
			template: "{known_jargons} and {known_jargons}",
			jargons:  "a",
			want:     "- \"a\" and {known_jargons}",
		},
		{
			name:     "no marker",
			template: "plain prompt",
			jargons:  "a\nb",
			want:     "plain prompt",
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if got := prompt.Inject(tc.template, tc.jargons); got != tc.want {
				t.Errorf("Inject() = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestDefaults_ContainMarker(t *testing.T) {
	t.Parallel()

	d := prompt.Defaults()
	if err := d.Validate(); err != nil {
		t.Errorf("Validate(defaults) = %v", err)
	}
	if w := d.Warnings(); len(w) != 0 {
		t.Errorf("Warnings(defaults) = %v, want none", w)
	}
	if !strings.Contains(d.User(), `- "generate questions"`) {
		t.Errorf("User() did not inject default jargon: %q", d.User())
	}
	if strings.Contains(d.Question(), prompt.Marker) {
		t.Error("Question() still contains the marker")
	}
	if d.SystemPrompt != "You are a speech transcription system named Reshka." {
		t.Errorf("SystemPrompt = %q", d.SystemPrompt)
	}
}

func TestConfig_Validate(t *testing.T) {
	t.Parallel()

	cfg := prompt.Defaults()
	cfg.UserPrompt = "Transcribe this."
	if err := cfg.Validate(); !errors.Is(err, prompt.ErrMissingMarker) {
		t.Errorf("Validate() = %v, want ErrMissingMarker", err)
	}

	cfg = prompt.Defaults()
	cfg.RephrasePrompt = "Rephrase."
	cfg.QuestionPrompt = "Ask."
	if err := cfg.Validate(); err != nil {
		t.Errorf("optional templates must not block: %v", err)
	}
	if got := len(cfg.Warnings()); got != 2 {
		t.Errorf("Warnings() = %d entries, want 2", got)
	}
}
