// Package vad defines the contract between reshka and a voice activity
// detection engine.
//
// The detector itself is an external black box (in the default deployment it
// runs inside the browser next to the microphone). reshka only consumes the
// three events it emits: speech started, speech ended with the captured
// segment, and misfire (a detection too short to count as speech).
//
// An [Engine] is started with [Engine.Subscribe] and delivers [Event] values on
// the returned [Subscription] until the subscription is closed. Closing is
// synchronous: once Close returns, no further events are delivered and the
// detector has been asked to pause.
package vad

import (
	"context"
	"errors"
	"fmt"

	"github.com/MrWong99/reshka/pkg/audio"
)

// EventType enumerates the detector callbacks.
type EventType int

const (
	// SpeechStart indicates speech has just begun.
	SpeechStart EventType = iota + 1

	// SpeechEnd indicates a speech segment finished. The event carries the
	// captured samples.
	SpeechEnd

	// Misfire indicates the detector saw speech-like input that was too
	// short to keep. No audio is attached.
	Misfire
)

// String returns the wire name of the event type.
func (t EventType) String() string {
	switch t {
	case SpeechStart:
		return "speech_start"
	case SpeechEnd:
		return "speech_end"
	case Misfire:
		return "misfire"
	default:
		return fmt.Sprintf("EventType(%d)", int(t))
	}
}

// Event is a single detector callback.
type Event struct {
	// Type is the callback kind.
	Type EventType

	// Segment holds the captured speech for SpeechEnd events. It is the zero
	// Buffer for the other types.
	Segment audio.Buffer
}

// Config holds the detector tuning forwarded to the engine when a
// subscription starts.
type Config struct {
	// SampleRate is the rate of captured segments in Hz. Typical: 16000.
	SampleRate int `json:"sampleRate" yaml:"sample_rate"`

	// PositiveSpeechThreshold is the frame probability above which speech is
	// considered present. Range: (0.0, 1.0]. Typical: 0.5.
	PositiveSpeechThreshold float64 `json:"positiveSpeechThreshold" yaml:"positive_speech_threshold"`

	// NegativeSpeechThreshold is the probability below which a frame counts
	// as silence. Must be <= PositiveSpeechThreshold. Typical: 0.35.
	NegativeSpeechThreshold float64 `json:"negativeSpeechThreshold" yaml:"negative_speech_threshold"`

	// RedemptionFrames is the number of silent frames tolerated before a
	// segment ends. Typical: 8.
	RedemptionFrames int `json:"redemptionFrames" yaml:"redemption_frames"`

	// MinSpeechFrames is the minimum segment length in frames; shorter
	// detections are reported as [Misfire]. Typical: 15.
	MinSpeechFrames int `json:"minSpeechFrames" yaml:"min_speech_frames"`
}

// DefaultConfig returns the tuning reshka ships with.
func DefaultConfig() Config {
	return Config{
		SampleRate:              16000,
		PositiveSpeechThreshold: 0.5,
		NegativeSpeechThreshold: 0.35,
		RedemptionFrames:        8,
		MinSpeechFrames:         15,
	}
}

// Validate checks the thresholds and frame counts.
func (c Config) Validate() error {
	var errs []error
	if c.SampleRate <= 0 {
		errs = append(errs, fmt.Errorf("vad: sample_rate %d must be positive", c.SampleRate))
	}
	if c.PositiveSpeechThreshold <= 0 || c.PositiveSpeechThreshold > 1 {
		errs = append(errs, fmt.Errorf("vad: positive_speech_threshold %v out of range (0, 1]", c.PositiveSpeechThreshold))
	}
	if c.NegativeSpeechThreshold < 0 || c.NegativeSpeechThreshold > c.PositiveSpeechThreshold {
		errs = append(errs, fmt.Errorf("vad: negative_speech_threshold %v must be in [0, positive_speech_threshold]", c.NegativeSpeechThreshold))
	}
	if c.RedemptionFrames < 0 {
		errs = append(errs, fmt.Errorf("vad: redemption_frames %d must not be negative", c.RedemptionFrames))
	}
	if c.MinSpeechFrames < 0 {
		errs = append(errs, fmt.Errorf("vad: min_speech_frames %d must not be negative", c.MinSpeechFrames))
	}
	return errors.Join(errs...)
}

// Subscription is an active detector session.
type Subscription interface {
	// Events returns the channel on which detector callbacks arrive. The
	// channel is closed after Close or when the engine stops on its own.
	Events() <-chan Event

	// Close pauses the detector and stops delivery. After Close returns no
	// further events are sent. Calling Close more than once is safe and
	// returns nil.
	Close() error
}

// Engine starts detector sessions.
type Engine interface {
	// Subscribe starts detection with cfg. It returns an error if the
	// detector cannot be started (for example because it failed to load).
	Subscribe(ctx context.Context, cfg Config) (Subscription, error)
}
