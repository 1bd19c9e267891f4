// Package mock provides a test double for the cue.Sink interface.
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/reshka/internal/cue"
	"github.com/MrWong99/reshka/pkg/audio/synth"
)

// Sink is a mock implementation of cue.Sink. It records every cue it is
// asked to play and returns immediately unless Block is set.
type Sink struct {
	mu sync.Mutex

	// Err, if non-nil, is returned from every Play call.
	Err error

	// Block, if non-nil, makes Play wait until the channel is closed or ctx
	// is done.
	Block chan struct{}

	// Played records the cue names in the order Play was called.
	Played []synth.Kind

	// Calls receives one value per Play call when non-nil. Tests use it to
	// wait for the asynchronous hand-off.
	Calls chan synth.Kind
}

// Play records the call.
func (s *Sink) Play(ctx context.Context, c cue.Cue) error {
	s.mu.Lock()
	s.Played = append(s.Played, c.Name)
	calls, block, err := s.Calls, s.Block, s.Err
	s.mu.Unlock()

	if calls != nil {
		calls <- c.Name
	}
	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return err
}

// Names returns a copy of the recorded cue names.
func (s *Sink) Names() []synth.Kind {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]synth.Kind, len(s.Played))
	copy(out, s.Played)
	return out
}

// Count returns how many times name was played.
func (s *Sink) Count(name synth.Kind) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, p := range s.Played {
		if p == name {
			n++
		}
	}
	return n
}

// Reset clears the recorded calls.
func (s *Sink) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Played = nil
}
