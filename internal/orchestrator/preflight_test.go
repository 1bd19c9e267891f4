package orchestrator_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/MrWong99/reshka/internal/activity"
	"github.com/MrWong99/reshka/internal/orchestrator"
	"github.com/MrWong99/reshka/pkg/provider/llm"
	llmmock "github.com/MrWong99/reshka/pkg/provider/llm/mock"
)

func TestPreflight(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name         string
		key          string
		verifyErr    error
		perm         orchestrator.MicPermission
		permErr      error
		requestErr   error
		wantKind     orchestrator.Kind
		wantRedirect bool
		wantVerify   int
		wantRequests int
		wantToast    string
	}{
		{
			name:       "all granted",
			key:        "k",
			perm:       orchestrator.MicGranted,
			wantVerify: 1,
		},
		{
			name:         "prompt then granted",
			key:          "k",
			perm:         orchestrator.MicPrompt,
			wantVerify:   1,
			wantRequests: 1,
		},
		{
			name:         "missing key",
			key:          "",
			wantKind:     orchestrator.ConfigMissing,
			wantRedirect: true,
			wantToast:    "Please configure your API key first",
		},
		{
			name:         "rejected key",
			key:          "k",
			verifyErr:    &llm.StatusError{StatusCode: 401, Status: "Unauthorized"},
			wantKind:     orchestrator.AuthRejected,
			wantRedirect: true,
			wantVerify:   1,
			wantToast:    "Invalid API key. Please check configuration.",
		},
		{
			name:       "verification offline",
			key:        "k",
			verifyErr:  errors.New("dial tcp: no route to host"),
			wantKind:   orchestrator.NetworkFailure,
			wantVerify: 1,
			wantToast:  "Failed to verify API key. Check internet connection.",
		},
		{
			name:       "denied",
			key:        "k",
			perm:       orchestrator.MicDenied,
			wantKind:   orchestrator.PermissionDenied,
			wantVerify: 1,
			wantToast:  "Microphone access denied. Please enable permissions in browser settings.",
		},
		{
			name:       "unknown state collapses to denied",
			key:        "k",
			perm:       "restricted",
			wantKind:   orchestrator.PermissionDenied,
			wantVerify: 1,
			wantToast:  "Microphone access denied. Please enable permissions in browser settings.",
		},
		{
			name:         "prompt refused",
			key:          "k",
			perm:         orchestrator.MicPrompt,
			requestErr:   errors.New("NotAllowedError"),
			wantKind:     orchestrator.PermissionDenied,
			wantVerify:   1,
			wantRequests: 1,
			wantToast:    "Microphone access denied. Please enable permissions.",
		},
		{
			name:       "permission query fails",
			key:        "k",
			permErr:    errors.New("host went away"),
			wantKind:   orchestrator.PermissionDenied,
			wantVerify: 1,
			wantToast:  "Failed to check microphone: host went away",
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			prov := &llmmock.Provider{VerifyKeyErr: tc.verifyErr}
			feed := &recordingFeed{}
			host := &fakeHost{perm: tc.perm, permErr: tc.permErr, requestErr: tc.requestErr}
			pf := orchestrator.NewPreflight(newFakeSettings(tc.key), prov.Factory(nil), feed, 0)

			err := pf.Run(context.Background(), host)
			if tc.wantKind == orchestrator.KindUnknown {
				if err != nil {
					t.Fatalf("Run() = %v, want nil", err)
				}
				if !feed.Has("All validations passed") {
					t.Error("missing success log")
				}
			} else if k := orchestrator.KindOf(err); k != tc.wantKind {
				t.Fatalf("KindOf(Run()) = %s, want %s (err %v)", k, tc.wantKind, err)
			}

			if prov.VerifyKeyCallCount != tc.wantVerify {
				t.Errorf("VerifyKey calls = %d, want %d", prov.VerifyKeyCallCount, tc.wantVerify)
			}
			if host.requests != tc.wantRequests {
				t.Errorf("RequestMicrophone calls = %d, want %d", host.requests, tc.wantRequests)
			}
			redirects := host.Redirects()
			if tc.wantRedirect {
				if len(redirects) != 1 || redirects[0] != 1500*time.Millisecond {
					t.Errorf("redirects = %v, want one after 1.5s", redirects)
				}
			} else if len(redirects) != 0 {
				t.Errorf("unexpected redirects %v", redirects)
			}

			toasts := feed.Toasts()
			if tc.wantToast == "" {
				if len(toasts) != 0 {
					t.Errorf("unexpected toasts %+v", toasts)
				}
			} else if len(toasts) != 1 || toasts[0].Message != tc.wantToast || toasts[0].Level != activity.LevelError {
				t.Errorf("toasts = %+v, want one error %q", toasts, tc.wantToast)
			}
		})
	}
}
