package orchestrator

import (
	"context"
	"errors"

	"github.com/MrWong99/reshka/pkg/provider/llm"
)

// Kind classifies a user-facing failure.
type Kind int

const (
	// KindUnknown is reported for errors that carry no classification.
	KindUnknown Kind = iota

	// ConfigMissing means no API key is configured.
	ConfigMissing

	// AuthRejected means the endpoint refused the configured key.
	AuthRejected

	// PermissionDenied means the host refused microphone access.
	PermissionDenied

	// NetworkFailure means a remote call could not complete or returned a
	// non-success status.
	NetworkFailure

	// EmptyInput means a user action was requested on an empty transcript.
	EmptyInput
)

// String returns the wire name of the kind.
func (k Kind) String() string {
	switch k {
	case ConfigMissing:
		return "config_missing"
	case AuthRejected:
		return "auth_rejected"
	case PermissionDenied:
		return "permission_denied"
	case NetworkFailure:
		return "network_failure"
	case EmptyInput:
		return "empty_input"
	default:
		return "unknown"
	}
}

// RedirectsToConfig reports whether errors of this kind send the user to the
// configuration page.
func (k Kind) RedirectsToConfig() bool {
	return k == ConfigMissing || k == AuthRejected
}

// Error is a classified failure.
type Error struct {
	// Kind is the classification.
	Kind Kind

	// Op names the operation that failed, e.g. "transcribe".
	Op string

	// Err is the cause. May be nil.
	Err error
}

// Error returns the cause's message so it can be shown to the user as is.
// Op is left to structured logging.
func (e *Error) Error() string {
	if e.Err != nil {
		return e.Err.Error()
	}
	return e.Kind.String()
}

// Unwrap returns the cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf returns the kind of err. A *Error anywhere in the chain wins;
// otherwise missing keys map to [ConfigMissing] and every other non-nil error
// to [NetworkFailure].
func KindOf(err error) Kind {
	if err == nil {
		return KindUnknown
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	if errors.Is(err, llm.ErrNoAPIKey) {
		return ConfigMissing
	}
	return NetworkFailure
}

// remoteError wraps the outcome of a remote completion call. Cancellation is
// passed through unclassified so callers can tell it apart from failures.
func remoteError(op string, err error) error {
	if err == nil || errors.Is(err, context.Canceled) {
		return err
	}
	var e *Error
	if errors.As(err, &e) {
		return err
	}
	return &Error{Kind: KindOf(err), Op: op, Err: err}
}
