package cue

import (
	"context"
	"log/slog"
	"sync"

	"github.com/MrWong99/reshka/internal/observe"
	"github.com/MrWong99/reshka/pkg/audio/synth"
)

// Sink is an audio output that can play an encoded cue.
//
// Play blocks until playback has finished (or ctx is cancelled) and must be
// safe to call from multiple goroutines.
type Sink interface {
	Play(ctx context.Context, c Cue) error
}

// Player plays cached cues on a sink without blocking its caller.
type Player struct {
	cache   *Cache
	sink    Sink
	metrics *observe.Metrics

	ctx context.Context
	mu  sync.Mutex // orders wg.Add against Wait after ctx is done
	wg  sync.WaitGroup
}

// PlayerOption configures a [Player].
type PlayerOption func(*Player)

// WithMetrics records each playback on m.
func WithMetrics(m *observe.Metrics) PlayerOption {
	return func(p *Player) { p.metrics = m }
}

// NewPlayer creates a player for cache on sink. ctx bounds every playback
// started by the player; cancel it to abort pending sounds.
func NewPlayer(ctx context.Context, cache *Cache, sink Sink, opts ...PlayerOption) *Player {
	p := &Player{cache: cache, sink: sink, ctx: ctx}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Play looks up name and hands the cue to the sink on a new goroutine. It
// returns immediately. An unknown name is silently ignored and onDone is not
// called. Otherwise onDone, if non-nil, runs once the sink reports playback
// finished, whether or not it succeeded. Once the player's context is done
// nothing reaches the sink and onDone runs before Play returns.
func (p *Player) Play(name synth.Kind, onDone func()) {
	c, ok := p.cache.Get(name)
	if !ok {
		return
	}

	p.mu.Lock()
	if p.ctx.Err() != nil {
		p.mu.Unlock()
		if onDone != nil {
			onDone()
		}
		return
	}
	p.wg.Add(1)
	p.mu.Unlock()

	if p.metrics != nil {
		p.metrics.RecordCuePlayback(p.ctx, string(name))
	}
	go func() {
		defer p.wg.Done()
		if err := p.sink.Play(p.ctx, c); err != nil && p.ctx.Err() == nil {
			observe.Logger(p.ctx).Debug("cue playback failed", slog.String("cue", string(name)), "err", err)
		}
		if onDone != nil {
			onDone()
		}
	}()
}

// Wait blocks until every playback started so far has returned. After the
// player's context is done no new playback can start, so Wait then covers
// every cue the player will ever play.
func (p *Player) Wait() {
	// A Play past its ctx check holds mu until wg.Add is done.
	p.mu.Lock()
	p.mu.Unlock()
	p.wg.Wait()
}
