package llm

import (
	"encoding/json"
	"fmt"
)

// Role is the author of a chat message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// PartType enumerates the content-part kinds of a multi-part message.
type PartType string

const (
	PartText       PartType = "text"
	PartInputAudio PartType = "input_audio"
)

// InputAudio is an inline audio attachment.
type InputAudio struct {
	// Data is the base64-encoded audio file.
	Data string

	// Format is the container name, e.g. "wav".
	Format string
}

// ContentPart is one element of a multi-part message.
type ContentPart struct {
	Type PartType

	// Text is set for PartText.
	Text string

	// Audio is set for PartInputAudio.
	Audio *InputAudio
}

// TextPart returns a text content part.
func TextPart(text string) ContentPart {
	return ContentPart{Type: PartText, Text: text}
}

// AudioPart returns an input_audio content part.
func AudioPart(base64Data, format string) ContentPart {
	return ContentPart{Type: PartInputAudio, Audio: &InputAudio{Data: base64Data, Format: format}}
}

// Message is a single chat message. When Parts is non-empty the message is
// sent as a content-part array and Content is ignored.
type Message struct {
	Role    Role
	Content string
	Parts   []ContentPart
}

// CompletionRequest carries one chat-completions call.
type CompletionRequest struct {
	// Model is the backend model identifier, e.g. "google/gemini-2.5-flash".
	Model string

	// Temperature controls output randomness. Zero leaves the backend default.
	Temperature float64

	// Messages is the ordered conversation.
	Messages []Message
}

// ReplyKind identifies which response shape carried the reply text.
type ReplyKind int

const (
	// ReplyEmpty means neither known shape yielded text.
	ReplyEmpty ReplyKind = iota

	// ReplyChat is the OpenAI-style choices[0].message.content shape.
	ReplyChat

	// ReplyContentBlock is the content[0].text shape used by some gateways.
	ReplyContentBlock
)

// String returns a short name for logs.
func (k ReplyKind) String() string {
	switch k {
	case ReplyChat:
		return "chat"
	case ReplyContentBlock:
		return "content_block"
	default:
		return "empty"
	}
}

// CompletionResponse is the decoded reply.
type CompletionResponse struct {
	// Kind records which shape the text came from.
	Kind ReplyKind

	// Text is the reply text. Empty when Kind is ReplyEmpty.
	Text string
}

// TextOr returns the reply text, or fallback when the reply carries none.
func (r *CompletionResponse) TextOr(fallback string) string {
	if r == nil || r.Kind == ReplyEmpty || r.Text == "" {
		return fallback
	}
	return r.Text
}

// wireResponse covers both accepted response shapes. Content fields are kept
// raw so that a non-string value falls through to the next shape instead of
// failing the whole decode.
type wireResponse struct {
	Choices []struct {
		Message struct {
			Content json.RawMessage `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Content []struct {
		Text json.RawMessage `json:"text"`
	} `json:"content"`
}

// DecodeResponse decodes a response body into the first non-empty text of
// choices[0].message.content or content[0].text. A body matching neither
// shape decodes to a ReplyEmpty response, not an error; only malformed JSON
// is an error.
func DecodeResponse(body []byte) (*CompletionResponse, error) {
	var w wireResponse
	if err := json.Unmarshal(body, &w); err != nil {
		return nil, fmt.Errorf("llm: decode response: %w", err)
	}
	if len(w.Choices) > 0 {
		if s, ok := nonEmptyString(w.Choices[0].Message.Content); ok {
			return &CompletionResponse{Kind: ReplyChat, Text: s}, nil
		}
	}
	if len(w.Content) > 0 {
		if s, ok := nonEmptyString(w.Content[0].Text); ok {
			return &CompletionResponse{Kind: ReplyContentBlock, Text: s}, nil
		}
	}
	return &CompletionResponse{Kind: ReplyEmpty}, nil
}

func nonEmptyString(raw json.RawMessage) (string, bool) {
	if len(raw) == 0 {
		return "", false
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", false
	}
	return s, s != ""
}
