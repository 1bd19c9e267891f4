// Package cue precomputes the audio feedback cues and plays them through an
// output sink.
//
// A [Cache] is built once at startup: every cue kind is synthesized and
// framed as WAV exactly once and then shared read-only by all sessions. A
// [Player] binds a cache to one [Sink] (for example a browser connection) and
// plays cues without blocking the caller.
package cue

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/MrWong99/reshka/pkg/audio/synth"
	"github.com/MrWong99/reshka/pkg/audio/wav"
)

// Default cue timings.
const (
	DefaultDuration        = 200 * time.Millisecond
	DefaultMisfireDuration = 150 * time.Millisecond
	DefaultFadeOut         = 50 * time.Millisecond
)

// Cue is one encoded feedback sound.
type Cue struct {
	// Name is the cue identifier.
	Name synth.Kind

	// WAV holds the complete container bytes. Shared; must not be modified.
	WAV []byte

	// Duration is the playback length.
	Duration time.Duration
}

// Cache holds the encoded cues keyed by name. It is immutable after
// construction and safe for concurrent use.
type Cache struct {
	sampleRate int
	cues       map[synth.Kind]Cue
}

// NewCache synthesizes and encodes every cue kind at sampleRate Hz using the
// default timings.
func NewCache(sampleRate int) (*Cache, error) {
	c := &Cache{
		sampleRate: sampleRate,
		cues:       make(map[synth.Kind]Cue, len(synth.Kinds())),
	}
	for _, k := range synth.Kinds() {
		d := DefaultDuration
		if k == synth.Misfire {
			d = DefaultMisfireDuration
		}
		buf, err := synth.Generate(k, sampleRate, d, DefaultFadeOut)
		if err != nil {
			return nil, fmt.Errorf("cue: synthesize %s: %w", k, err)
		}
		data, err := wav.Encode(buf)
		if err != nil {
			return nil, fmt.Errorf("cue: encode %s: %w", k, err)
		}
		c.cues[k] = Cue{Name: k, WAV: data, Duration: buf.Duration()}
	}
	return c, nil
}

// Get returns the cue with the given name.
func (c *Cache) Get(name synth.Kind) (Cue, bool) {
	cu, ok := c.cues[name]
	return cu, ok
}

// Names returns the cached cue names in a stable order.
func (c *Cache) Names() []synth.Kind {
	names := make([]synth.Kind, 0, len(c.cues))
	for k := range c.cues {
		names = append(names, k)
	}
	slices.Sort(names)
	return names
}

// SampleRate returns the rate all cues were generated at.
func (c *Cache) SampleRate() int {
	return c.sampleRate
}

// Check reports whether every cue kind is present. Used as a readiness probe.
func (c *Cache) Check(_ context.Context) error {
	for _, k := range synth.Kinds() {
		if _, ok := c.cues[k]; !ok {
			return fmt.Errorf("cue: %s missing from cache", k)
		}
	}
	return nil
}
