// Package llm defines the Provider interface for the remote chat-completions
// endpoint reshka talks to.
//
// One endpoint serves three jobs: transcribing a recorded speech segment
// (sent as an input_audio content part), rephrasing the transcript and
// generating follow-up questions. Each is a single request/response call
// with no streaming and no retries.
//
// Implementations must be safe for concurrent use and must return promptly
// when the supplied context is cancelled.
package llm

import (
	"context"
	"errors"
	"fmt"
)

// Provider is the abstraction over a chat-completions backend.
type Provider interface {
	// Complete sends req and waits for the full reply. Non-success HTTP
	// statuses are returned as *StatusError; transport failures are returned
	// as-is (wrapped).
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)

	// VerifyKey checks the configured credentials against the backend's key
	// inspection endpoint. It returns nil when the key is accepted.
	VerifyKey(ctx context.Context) error
}

// Credentials identify the endpoint and bearer token to use.
type Credentials struct {
	// Endpoint is the full chat-completions URL, e.g.
	// "https://openrouter.ai/api/v1/chat/completions".
	Endpoint string

	// APIKey is passed as "Authorization: Bearer <APIKey>".
	APIKey string
}

// Factory builds a Provider for the given credentials. The user may change
// endpoint and key at any time, so callers build a provider per call from the
// current settings.
type Factory func(Credentials) (Provider, error)

// ErrNoAPIKey is returned by factories when Credentials.APIKey is empty.
var ErrNoAPIKey = errors.New("llm: api key is empty")

// StatusError reports a non-success HTTP status from the backend.
type StatusError struct {
	// StatusCode is the HTTP status code, e.g. 401.
	StatusCode int

	// Status is the status text, e.g. "Unauthorized". May be empty.
	Status string

	// Err is the underlying SDK error, if any.
	Err error
}

// Error implements error.
func (e *StatusError) Error() string {
	if e.Status != "" {
		return fmt.Sprintf("API request failed: %d %s", e.StatusCode, e.Status)
	}
	return fmt.Sprintf("API request failed: %d", e.StatusCode)
}

// Unwrap returns the underlying error.
func (e *StatusError) Unwrap() error {
	return e.Err
}

// IsAuth reports whether the status means the credentials were rejected.
func (e *StatusError) IsAuth() bool {
	return e.StatusCode == 401 || e.StatusCode == 403
}
