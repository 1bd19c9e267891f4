// Package audio defines the sampled-audio value types shared by the cue
// synthesizer, the container encoder and the capture path.
//
// A [Buffer] is the unit handed between stages: the synthesizer produces one
// per cue, the browser bridge produces one per finished speech segment, and
// the WAV encoder consumes them. Buffers are treated as immutable once built;
// helpers that change the format return a new Buffer.
package audio

import (
	"errors"
	"fmt"
	"time"
)

// ErrInvalidFormat is returned when a buffer's metadata is not usable (e.g.
// a non-positive sample rate or a channel count other than mono).
var ErrInvalidFormat = errors.New("audio: invalid format")

// Mono is the only channel layout used by reshka.
const Mono = 1

// Buffer is a block of floating-point PCM samples.
type Buffer struct {
	// Samples holds one amplitude per frame, nominally in [-1.0, 1.0].
	// Out-of-range values are tolerated here and clamped by encoders.
	Samples []float32

	// SampleRate in Hz (e.g. 16000 for captured speech, 48000 for cues).
	SampleRate int

	// Channels is always [Mono] for buffers produced inside reshka.
	Channels int
}

// NewBuffer allocates a silent mono buffer of n samples at rate Hz.
func NewBuffer(n, rate int) Buffer {
	if n < 0 {
		n = 0
	}
	return Buffer{
		Samples:    make([]float32, n),
		SampleRate: rate,
		Channels:   Mono,
	}
}

// Len returns the number of samples in the buffer.
func (b Buffer) Len() int {
	return len(b.Samples)
}

// Duration returns the playback length of the buffer. A buffer with an
// invalid sample rate reports zero.
func (b Buffer) Duration() time.Duration {
	if b.SampleRate <= 0 {
		return 0
	}
	return time.Duration(len(b.Samples)) * time.Second / time.Duration(b.SampleRate)
}

// Validate reports whether the buffer's metadata can be encoded.
func (b Buffer) Validate() error {
	if b.SampleRate <= 0 {
		return fmt.Errorf("%w: sample rate %d", ErrInvalidFormat, b.SampleRate)
	}
	if b.Channels != Mono {
		return fmt.Errorf("%w: %d channels, only mono is supported", ErrInvalidFormat, b.Channels)
	}
	return nil
}

// String returns a short description such as "16000Hz mono, 3200 samples".
func (b Buffer) String() string {
	return fmt.Sprintf("%s, %d samples", formatString(b.SampleRate, b.Channels), len(b.Samples))
}
