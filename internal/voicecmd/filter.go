// Package voicecmd recognises spoken shortcuts in finished transcriptions.
//
// A transcription that matches a command pattern is routed to the command's
// action instead of being appended to the transcript. Matching is done on
// the whole trimmed utterance so that a command mentioned inside a longer
// sentence is transcribed normally.
package voicecmd

import (
	"regexp"
	"strings"
)

// Command identifies a recognised voice command.
type Command string

const (
	// GenerateQuestions asks for follow-up questions about the transcript.
	GenerateQuestions Command = "generate_questions"
)

// Pattern pairs a compiled regex with the command it triggers.
type Pattern struct {
	// Regex must match the entire trimmed utterance.
	Regex *regexp.Regexp

	// Name is a human-readable label for logging.
	Name string

	// Command is returned when Regex matches.
	Command Command
}

// Filter checks transcriptions against a set of patterns.
//
// Filter is immutable after construction and safe for concurrent use.
type Filter struct {
	patterns []Pattern
}

// Option configures a [Filter].
type Option func(*Filter)

// WithPatterns appends extra patterns after the built-in ones.
func WithPatterns(p ...Pattern) Option {
	return func(f *Filter) {
		f.patterns = append(f.patterns, p...)
	}
}

// New creates a Filter with the built-in patterns.
func New(opts ...Option) *Filter {
	f := &Filter{patterns: defaultPatterns()}
	for _, o := range opts {
		o(f)
	}
	return f
}

// Match tests text against the patterns in order and returns the first
// matching pattern. Surrounding whitespace is ignored; empty text never
// matches.
func (f *Filter) Match(text string) (Pattern, bool) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return Pattern{}, false
	}
	for _, p := range f.patterns {
		if p.Regex.MatchString(trimmed) {
			return p, true
		}
	}
	return Pattern{}, false
}

// defaultPatterns returns the built-in command set.
func defaultPatterns() []Pattern {
	return []Pattern{
		{
			Name:    "generate questions",
			Regex:   regexp.MustCompile(`(?i)^(?:please\s+)?generate\s+questions(?:[,.]?\s*please)?[.!]?$`),
			Command: GenerateQuestions,
		},
	}
}
