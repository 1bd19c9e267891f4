package voicecmd

import (
	"regexp"
	"testing"
)

func TestFilter_GenerateQuestions(t *testing.T) {
	t.Parallel()

	f := New()
	tests := []struct {
		text string
		want bool
	}{
		{"generate questions", true},
		{"Generate Questions", true},
		{"GENERATE QUESTIONS.", true},
		{"generate questions!", true},
		{"please generate questions", true},
		{"Please generate questions, please.", true},
		{"generate questions please", true},
		{"generate   questions", true},
		{"  generate questions  \n", true},
		{"generate question", false},
		{"can you generate questions", false},
		{"generate questions about cats", false},
		{"generate questions?", false},
		{"", false},
		{"   ", false},
	}
	for _, tc := range tests {
		t.Run(tc.text, func(t *testing.T) {
			t.Parallel()
			p, ok := f.Match(tc.text)
			if ok != tc.want {
				t.Fatalf("Match(%q) = %v, want %v", tc.text, ok, tc.want)
			}
			if ok && p.Command != GenerateQuestions {
				t.Errorf("Command = %q, want %q", p.Command, GenerateQuestions)
			}
		})
	}
}

func TestFilter_WithPatterns(t *testing.T) {
	t.Parallel()

	f := New(WithPatterns(Pattern{
		Name:    "clear",
		Regex:   regexp.MustCompile(`(?i)^clear transcript[.!]?$`),
		Command: Command("clear_transcript"),
	}))

	p, ok := f.Match("Clear transcript.")
	if !ok {
		t.Fatal("expected custom pattern to match")
	}
	if p.Command != "clear_transcript" {
		t.Errorf("Command = %q", p.Command)
	}
	if p, ok := f.Match("generate questions"); !ok || p.Command != GenerateQuestions {
		t.Error("built-in pattern lost after WithPatterns")
	}
}
