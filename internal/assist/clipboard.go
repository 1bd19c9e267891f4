package assist

import (
	"context"
	"errors"

	"github.com/atotto/clipboard"
)

// Clipboard writes text into a clipboard.
type Clipboard interface {
	SetText(ctx context.Context, text string) error
}

// ErrClipboardUnsupported is returned by [SystemClipboard] on hosts without
// a clipboard utility (for example a headless server without xclip).
var ErrClipboardUnsupported = errors.New("assist: clipboard not supported on this host")

// SystemClipboard is the clipboard of the machine the service runs on.
type SystemClipboard struct{}

// SetText implements [Clipboard].
func (SystemClipboard) SetText(_ context.Context, text string) error {
	if clipboard.Unsupported {
		return ErrClipboardUnsupported
	}
	return clipboard.WriteAll(text)
}
