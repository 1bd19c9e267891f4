// Package synth generates the short procedural feedback tones that reshka
// plays while dictating.
//
// Every cue is a single sine carrier shaped by a closed-form amplitude and
// frequency envelope, with a linear fade-out over its tail. Generation is
// pure and deterministic: the same arguments always yield the same samples.
package synth

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/MrWong99/reshka/pkg/audio"
)

// ErrInvalidParameter is returned for arguments outside the generator's
// contract.
var ErrInvalidParameter = errors.New("synth: invalid parameter")

// Kind identifies one of the fixed cue shapes.
type Kind string

const (
	// SpeechStart is a quiet 700 Hz blip played when speech is detected.
	SpeechStart Kind = "speech-start"

	// SpeechEnd is a 500 Hz tone played when a speech segment is captured.
	SpeechEnd Kind = "speech-end"

	// ResultArrived is a rising two-tone chime (600 Hz then 800 Hz).
	ResultArrived Kind = "result-arrived"

	// Error is three gated 400 Hz beeps.
	Error Kind = "error"

	// Misfire is a falling sweep from 500 Hz toward 300 Hz, played when the
	// detector discards a segment as too short.
	Misfire Kind = "misfire"
)

// Kinds lists every cue kind in a stable order.
func Kinds() []Kind {
	return []Kind{SpeechStart, SpeechEnd, ResultArrived, Error, Misfire}
}

// Valid reports whether k is a known cue kind.
func (k Kind) Valid() bool {
	_, ok := shapes[k]
	return ok
}

// shape returns the base amplitude and carrier frequency at time t (seconds)
// of a cue lasting d seconds, before the fade-out is applied.
type shape func(t, d float64) (amp, freq float64)

var shapes = map[Kind]shape{
	SpeechStart: func(_, _ float64) (float64, float64) { return 0.05, 700 },
	SpeechEnd:   func(_, _ float64) (float64, float64) { return 0.3, 500 },
	ResultArrived: func(t, d float64) (float64, float64) {
		if t < d/2 {
			return 0.3, 600
		}
		return 0.3, 800
	},
	Error: func(t, d float64) (float64, float64) {
		beep := d / 3
		amp := 0.0
		if math.Floor(t/beep) < 3 {
			amp = 0.5
		}
		if math.Mod(t, beep) > beep*0.4 {
			amp = 0
		}
		return amp, 400
	},
	Misfire: func(t, d float64) (float64, float64) {
		return 0.2, 500 - 200*(t/d)
	},
}

// Generate synthesizes a mono cue of the given kind.
//
// The buffer holds floor(sampleRate × duration) samples. Over the trailing
// floor(sampleRate × fadeOut) samples the amplitude is scaled by a linear ramp
// from 1 toward 0. duration must be positive, fadeOut must lie in
// [0, duration] and sampleRate must be positive; violations return an error
// wrapping [ErrInvalidParameter].
func Generate(kind Kind, sampleRate int, duration, fadeOut time.Duration) (audio.Buffer, error) {
	env, err := Envelope(kind, sampleRate, duration, fadeOut)
	if err != nil {
		return audio.Buffer{}, err
	}
	sh := shapes[kind]
	d := duration.Seconds()

	buf := audio.NewBuffer(len(env), sampleRate)
	for i := range buf.Samples {
		t := float64(i) / float64(sampleRate)
		_, freq := sh(t, d)
		buf.Samples[i] = float32(env[i] * math.Sin(2*math.Pi*freq*t))
	}
	return buf, nil
}

// Envelope returns the per-sample amplitude that [Generate] applies to the
// carrier, including the fade-out. It accepts the same arguments and fails
// under the same conditions.
func Envelope(kind Kind, sampleRate int, duration, fadeOut time.Duration) ([]float64, error) {
	sh, ok := shapes[kind]
	if !ok {
		return nil, fmt.Errorf("%w: unknown cue kind %q", ErrInvalidParameter, kind)
	}
	if err := validate(sampleRate, duration, fadeOut); err != nil {
		return nil, err
	}

	n := samplesFor(sampleRate, duration)
	fade := samplesFor(sampleRate, fadeOut)
	d := duration.Seconds()

	env := make([]float64, n)
	for i := range env {
		amp, _ := sh(float64(i)/float64(sampleRate), d)
		if i > n-fade {
			amp *= float64(n-i) / float64(fade)
		}
		env[i] = amp
	}
	return env, nil
}

func validate(sampleRate int, duration, fadeOut time.Duration) error {
	var errs []error
	if sampleRate <= 0 {
		errs = append(errs, fmt.Errorf("sample rate %d must be positive", sampleRate))
	}
	if duration <= 0 {
		errs = append(errs, fmt.Errorf("duration %s must be positive", duration))
	}
	if fadeOut < 0 {
		errs = append(errs, fmt.Errorf("fade-out %s must not be negative", fadeOut))
	}
	if fadeOut > duration {
		errs = append(errs, fmt.Errorf("fade-out %s exceeds duration %s", fadeOut, duration))
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidParameter, errors.Join(errs...))
	}
	return nil
}

// samplesFor returns floor(rate × d) without going through floating point.
func samplesFor(rate int, d time.Duration) int {
	return int(int64(rate) * int64(d) / int64(time.Second))
}
