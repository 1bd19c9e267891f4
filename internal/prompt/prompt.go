// Package prompt holds the prompt templates sent to the remote endpoint and
// the jargon substitution applied to them.
//
// Each template may contain the [Marker] placeholder. Before a request is
// built the first occurrence is replaced by the user's jargon list, rendered
// one quoted term per line.
package prompt

import (
	"errors"
	"fmt"
	"strings"
)

// Marker is the placeholder replaced by the jargon list.
const Marker = "{known_jargons}"

// emptyJargons replaces the marker when the jargon list has no terms.
const emptyJargons = "(none)"

// ErrMissingMarker is returned by [Config.Validate] when the transcription
// template lacks [Marker].
var ErrMissingMarker = errors.New("prompt: transcription prompt must contain " + Marker)

// Default template texts.
const (
	DefaultSystemPrompt = `You are a speech transcription system named Reshka.`

	DefaultUserPrompt = `Output ONLY the verbatim transcription of this audio.
Do not respond conversationally, do not answer questions, do not add commentary.

Known commands, phrases, and jargons:
{known_jargons}
Try to detect these accurately.

Only transcribe what is spoken.`

	DefaultRephrasePrompt = `Without losing information, rephrase the above in a structured manner.
Assume that the above is transcription coming from ASR. Expect errors due to that.
Taking that into account, rephrase the above. Do not discard information.
Give a clear, structured output.

Known jargon/context:
{known_jargons}`

	DefaultQuestionPrompt = `Based on the transcription provided, generate up to 4 insightful, relevant questions that probe deeper into the topics discussed, clarify ambiguous points, or explore implications.

Rules:
- Generate between 1 and 4 questions (fewer if content is brief)
- Each question must be concise (one sentence)
- Output ONLY the questions, one per line, numbered 1-4
- No preamble or commentary
- If the transcription is too short or meaningless, output exactly: NO_QUESTIONS

Known jargon/context:
{known_jargons}`

	DefaultJargons = `generate questions`
)

// Config is the active set of templates plus the jargon text.
type Config struct {
	SystemPrompt   string `json:"systemPrompt"`
	UserPrompt     string `json:"userPrompt"`
	RephrasePrompt string `json:"rephrasePrompt"`
	QuestionPrompt string `json:"questionPrompt"`

	// Jargons is free text, one term per line. Empty is a valid value and
	// renders as "(none)".
	Jargons string `json:"jargons"`
}

// Defaults returns the built-in configuration.
func Defaults() Config {
	return Config{
		SystemPrompt:   DefaultSystemPrompt,
		UserPrompt:     DefaultUserPrompt,
		RephrasePrompt: DefaultRephrasePrompt,
		QuestionPrompt: DefaultQuestionPrompt,
		Jargons:        DefaultJargons,
	}
}

// Validate enforces the save-time invariant: the transcription template must
// contain the marker. Missing markers in the other templates are reported by
// [Config.Warnings] instead.
func (c Config) Validate() error {
	if !strings.Contains(c.UserPrompt, Marker) {
		return ErrMissingMarker
	}
	return nil
}

// Warnings lists non-blocking problems with the optional templates.
func (c Config) Warnings() []string {
	var w []string
	if !strings.Contains(c.RephrasePrompt, Marker) {
		w = append(w, fmt.Sprintf("rephrase prompt has no %s placeholder; jargon will not be applied", Marker))
	}
	if !strings.Contains(c.QuestionPrompt, Marker) {
		w = append(w, fmt.Sprintf("question prompt has no %s placeholder; jargon will not be applied", Marker))
	}
	return w
}

// User returns the transcription template with jargon applied.
func (c Config) User() string { return Inject(c.UserPrompt, c.Jargons) }

// Rephrase returns the rephrase template with jargon applied.
func (c Config) Rephrase() string { return Inject(c.RephrasePrompt, c.Jargons) }

// Question returns the question template with jargon applied.
func (c Config) Question() string { return Inject(c.QuestionPrompt, c.Jargons) }

// Inject replaces the first [Marker] in template with the rendered jargon
// list. Blank lines in jargons are dropped and every remaining line is
// trimmed and rendered as `- "term"`, one per line. An empty list renders as
// "(none)". A template without the marker is returned unchanged.
func Inject(template, jargons string) string {
	return strings.Replace(template, Marker, RenderJargons(jargons), 1)
}

// RenderJargons formats jargon text the way [Inject] substitutes it.
func RenderJargons(jargons string) string {
	var lines []string
	for l := range strings.SplitSeq(jargons, "\n") {
		term := strings.TrimSpace(l)
		if term == "" {
			continue
		}
		lines = append(lines, `- "`+term+`"`)
	}
	if len(lines) == 0 {
		return emptyJargons
	}
	return strings.Join(lines, "\n")
}
