package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/MrWong99/reshka/internal/activity"
	"github.com/MrWong99/reshka/pkg/provider/llm"
)

// DefaultRedirectDelay is how long the user sees an error before being sent
// to the configuration page.
const DefaultRedirectDelay = 1500 * time.Millisecond

// MicPermission is the host's microphone permission state.
type MicPermission string

const (
	MicGranted MicPermission = "granted"
	MicPrompt  MicPermission = "prompt"
	MicDenied  MicPermission = "denied"
)

// Host is the environment a session runs in: in production the browser tab
// at the other end of a WebSocket.
type Host interface {
	// MicrophonePermission queries the current permission state.
	MicrophonePermission(ctx context.Context) (MicPermission, error)

	// RequestMicrophone asks the user for access. nil means granted.
	RequestMicrophone(ctx context.Context) error

	// Redirect sends the user to the configuration page after the delay.
	Redirect(ctx context.Context, after time.Duration)

	// ShowStatus updates the status indicator.
	ShowStatus(mode Mode, st Status)
}

// Activity records user-facing log lines and toasts. *activity.Feed
// implements it.
type Activity interface {
	Log(ctx context.Context, typ activity.Type, msg string) activity.Entry
	Notify(ctx context.Context, level activity.Level, msg string)
}

// Preflight checks the preconditions for starting capture.
type Preflight struct {
	settings      Settings
	factory       llm.Factory
	feed          Activity
	redirectDelay time.Duration
}

// NewPreflight creates a Preflight. A non-positive redirectDelay selects
// [DefaultRedirectDelay].
func NewPreflight(s Settings, factory llm.Factory, feed Activity, redirectDelay time.Duration) *Preflight {
	if redirectDelay <= 0 {
		redirectDelay = DefaultRedirectDelay
	}
	return &Preflight{settings: s, factory: factory, feed: feed, redirectDelay: redirectDelay}
}

// Run verifies the API key against the endpoint and then the microphone
// permission. It stops at the first failure, which it logs, notifies and
// returns as an *Error. Credential failures also redirect the host.
func (p *Preflight) Run(ctx context.Context, host Host) error {
	p.feed.Log(ctx, activity.Info, "Starting pre-flight validation...")

	if err := p.checkAPIKey(ctx, host); err != nil {
		return err
	}
	if err := p.checkMicrophone(ctx, host); err != nil {
		return err
	}

	p.feed.Log(ctx, activity.Success, "All validations passed")
	return nil
}

func (p *Preflight) checkAPIKey(ctx context.Context, host Host) error {
	p.feed.Log(ctx, activity.Info, "Checking API key configuration...")

	app, err := p.settings.App(ctx)
	if err != nil {
		p.feed.Log(ctx, activity.Error, "ERROR: could not load configuration: "+err.Error())
		p.feed.Notify(ctx, activity.LevelError, "Failed to load configuration")
		return &Error{Kind: KindUnknown, Op: "preflight", Err: err}
	}
	if !app.HasAPIKey() {
		p.feed.Log(ctx, activity.Error, "ERROR: API key not configured. Redirecting to config...")
		p.feed.Notify(ctx, activity.LevelError, "Please configure your API key first")
		host.Redirect(ctx, p.redirectDelay)
		return &Error{Kind: ConfigMissing, Op: "preflight", Err: llm.ErrNoAPIKey}
	}

	p.feed.Log(ctx, activity.Info, "Verifying API key with endpoint...")
	provider, err := p.factory(app.Credentials())
	if err == nil {
		err = provider.VerifyKey(ctx)
	}
	var se *llm.StatusError
	switch {
	case err == nil:
		p.feed.Log(ctx, activity.Success, "API key verified successfully")
		return nil
	case errors.As(err, &se):
		p.feed.Log(ctx, activity.Error, fmt.Sprintf("ERROR: API key verification failed (%d)", se.StatusCode))
		p.feed.Notify(ctx, activity.LevelError, "Invalid API key. Please check configuration.")
		host.Redirect(ctx, p.redirectDelay)
		return &Error{Kind: AuthRejected, Op: "preflight", Err: err}
	default:
		p.feed.Log(ctx, activity.Error, "ERROR: API key check failed: "+err.Error())
		p.feed.Notify(ctx, activity.LevelError, "Failed to verify API key. Check internet connection.")
		return &Error{Kind: NetworkFailure, Op: "preflight", Err: err}
	}
}

func (p *Preflight) checkMicrophone(ctx context.Context, host Host) error {
	p.feed.Log(ctx, activity.Info, "Checking microphone permissions...")

	perm, err := host.MicrophonePermission(ctx)
	if err != nil {
		p.feed.Log(ctx, activity.Error, "ERROR: Microphone check failed: "+err.Error())
		p.feed.Notify(ctx, activity.LevelError, "Failed to check microphone: "+err.Error())
		return &Error{Kind: PermissionDenied, Op: "preflight", Err: err}
	}

	switch perm {
	case MicGranted:
		p.feed.Log(ctx, activity.Success, "Microphone permission already granted")
		return nil
	case MicPrompt:
		p.feed.Log(ctx, activity.Info, "Requesting microphone access...")
		if err := host.RequestMicrophone(ctx); err != nil {
			p.feed.Log(ctx, activity.Error, "ERROR: Microphone permission denied")
			p.feed.Notify(ctx, activity.LevelError, "Microphone access denied. Please enable permissions.")
			return &Error{Kind: PermissionDenied, Op: "preflight", Err: err}
		}
		p.feed.Log(ctx, activity.Success, "Microphone access granted")
		return nil
	default:
		// Every other state, including unknown ones, counts as denied.
		p.feed.Log(ctx, activity.Error, "ERROR: Microphone permission denied")
		p.feed.Notify(ctx, activity.LevelError, "Microphone access denied. Please enable permissions in browser settings.")
		return &Error{Kind: PermissionDenied, Op: "preflight", Err: fmt.Errorf("microphone permission %q", perm)}
	}
}
