// Package mock provides test doubles for the vad package interfaces.
//
// Use Engine to verify that subscriptions are started with the expected
// Config, and Subscription to push detector events into the code under test.
//
// Example:
//
//	sub := mock.NewSubscription()
//	eng := &mock.Engine{Subscription: sub}
//	s, _ := eng.Subscribe(ctx, cfg)
//	sub.Emit(vad.Event{Type: vad.SpeechStart})
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/reshka/pkg/provider/vad"
)

// SubscribeCall records a single invocation of Engine.Subscribe.
type SubscribeCall struct {
	// Cfg is the Config passed to Subscribe.
	Cfg vad.Config
}

// Engine is a mock implementation of vad.Engine.
type Engine struct {
	mu sync.Mutex

	// Subscription is returned by Subscribe. If nil, a fresh Subscription is
	// created per call and appended to Created.
	Subscription *Subscription

	// SubscribeErr, if non-nil, is returned as the error from Subscribe.
	SubscribeErr error

	// SubscribeCalls records every call to Subscribe in order.
	SubscribeCalls []SubscribeCall

	// Created lists the subscriptions handed out when Subscription is nil.
	Created []*Subscription
}

// Subscribe records the call and returns Subscription, SubscribeErr.
func (e *Engine) Subscribe(_ context.Context, cfg vad.Config) (vad.Subscription, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.SubscribeCalls = append(e.SubscribeCalls, SubscribeCall{Cfg: cfg})
	if e.SubscribeErr != nil {
		return nil, e.SubscribeErr
	}
	if e.Subscription != nil {
		return e.Subscription, nil
	}
	s := NewSubscription()
	e.Created = append(e.Created, s)
	return s, nil
}

// Calls returns the number of Subscribe invocations. Thread-safe.
func (e *Engine) Calls() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.SubscribeCalls)
}

// Last returns the most recently created subscription, or nil.
func (e *Engine) Last() *Subscription {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.Subscription != nil {
		return e.Subscription
	}
	if len(e.Created) == 0 {
		return nil
	}
	return e.Created[len(e.Created)-1]
}

// Ensure Engine implements vad.Engine at compile time.
var _ vad.Engine = (*Engine)(nil)

// Subscription is a mock implementation of vad.Subscription backed by a
// buffered channel.
type Subscription struct {
	mu     sync.Mutex
	ch     chan vad.Event
	closed bool

	// CloseCallCount is the number of times Close was called.
	CloseCallCount int
}

// NewSubscription returns an open subscription with room for 16 pending
// events.
func NewSubscription() *Subscription {
	return &Subscription{ch: make(chan vad.Event, 16)}
}

// Events implements vad.Subscription.
func (s *Subscription) Events() <-chan vad.Event {
	return s.ch
}

// Emit delivers ev unless the subscription is closed. It reports whether the
// event was queued.
func (s *Subscription) Emit(ev vad.Event) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.ch <- ev
	return true
}

// Close implements vad.Subscription.
func (s *Subscription) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.CloseCallCount++
	if !s.closed {
		s.closed = true
		close(s.ch)
	}
	return nil
}

// Closed reports whether Close has been called.
func (s *Subscription) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Ensure Subscription implements vad.Subscription at compile time.
var _ vad.Subscription = (*Subscription)(nil)
