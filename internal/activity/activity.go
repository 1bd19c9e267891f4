// Package activity is the user-facing activity feed: a bounded log of what
// the service did ("Speech started", "Transcription received ...") plus
// transient notifications (toasts).
//
// Every entry is mirrored to slog so the operator log and the browser feed
// tell the same story. Subscribers receive entries, toasts and clear events
// as they happen; slow subscribers drop events rather than block producers.
package activity

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/MrWong99/reshka/internal/observe"
)

// Type classifies a log entry. The values double as CSS classes in the UI.
type Type string

const (
	Info        Type = "info"
	Success     Type = "success"
	Warning     Type = "warning"
	Error       Type = "error"
	SpeechStart Type = "speech-start"
	SpeechEnd   Type = "speech-end"
	APICall     Type = "api-call"
)

// Level is the severity of a toast.
type Level string

const (
	LevelSuccess Level = "success"
	LevelError   Level = "error"
)

// DefaultCapacity is the number of entries kept when no capacity is given.
const DefaultCapacity = 500

// Entry is one activity log line.
type Entry struct {
	ID      uint64    `json:"id"`
	Time    time.Time `json:"time"`
	Type    Type      `json:"type"`
	Message string    `json:"message"`
}

// Toast is a transient notification.
type Toast struct {
	Time    time.Time `json:"time"`
	Level   Level     `json:"level"`
	Message string    `json:"message"`
}

// Event is delivered to subscribers. Exactly one field is set, or Cleared is
// true.
type Event struct {
	Entry   *Entry
	Toast   *Toast
	Cleared bool
}

// Feed is the activity log. It is safe for concurrent use.
type Feed struct {
	logger *slog.Logger
	now    func() time.Time

	mu      sync.Mutex
	entries []Entry // ring buffer, len == capacity once full
	start   int
	nextID  uint64
	subs    map[uint64]chan Event
	nextSub uint64
}

// Option configures a [Feed].
type Option func(*Feed)

// WithCapacity sets the number of entries retained. Values below 1 are
// ignored.
func WithCapacity(n int) Option {
	return func(f *Feed) {
		if n > 0 {
			f.entries = make([]Entry, 0, n)
		}
	}
}

// WithLogger mirrors entries to l instead of slog.Default.
func WithLogger(l *slog.Logger) Option {
	return func(f *Feed) { f.logger = l }
}

// WithClock overrides the time source. Intended for tests.
func WithClock(now func() time.Time) Option {
	return func(f *Feed) { f.now = now }
}

// New creates an empty feed.
func New(opts ...Option) *Feed {
	f := &Feed{
		now:     time.Now,
		entries: make([]Entry, 0, DefaultCapacity),
		subs:    make(map[uint64]chan Event),
	}
	for _, o := range opts {
		o(f)
	}
	return f
}

// Log appends an entry and publishes it.
func (f *Feed) Log(ctx context.Context, typ Type, msg string) Entry {
	f.mirror(ctx, typ, msg)

	f.mu.Lock()
	defer f.mu.Unlock()

	f.nextID++
	e := Entry{ID: f.nextID, Time: f.now(), Type: typ, Message: msg}
	if len(f.entries) < cap(f.entries) {
		f.entries = append(f.entries, e)
	} else {
		f.entries[f.start] = e
		f.start = (f.start + 1) % len(f.entries)
	}
	f.publish(Event{Entry: &e})
	return e
}

// Logf is Log with fmt formatting.
func (f *Feed) Logf(ctx context.Context, typ Type, format string, args ...any) Entry {
	return f.Log(ctx, typ, fmt.Sprintf(format, args...))
}

// Notify publishes a toast. The message is also recorded as a log entry
// (error toasts as [Error], others as [Success]).
func (f *Feed) Notify(ctx context.Context, level Level, msg string) {
	typ := Success
	if level == LevelError {
		typ = Error
	}
	f.Log(ctx, typ, msg)

	f.mu.Lock()
	defer f.mu.Unlock()
	f.publish(Event{Toast: &Toast{Time: f.now(), Level: level, Message: msg}})
}

// Entries returns the retained entries, oldest first.
func (f *Feed) Entries() []Entry {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Entry, 0, len(f.entries))
	out = append(out, f.entries[f.start:]...)
	out = append(out, f.entries[:f.start]...)
	return out
}

// Clear drops all retained entries.
func (f *Feed) Clear() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries = f.entries[:0]
	f.start = 0
	f.publish(Event{Cleared: true})
}

// Subscribe returns a channel receiving future events and a function that
// cancels the subscription and closes the channel. buf is the channel
// capacity; events are dropped for a subscriber whose buffer is full.
func (f *Feed) Subscribe(buf int) (<-chan Event, func()) {
	ch := make(chan Event, buf)

	f.mu.Lock()
	id := f.nextSub
	f.nextSub++
	f.subs[id] = ch
	f.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			f.mu.Lock()
			delete(f.subs, id)
			f.mu.Unlock()
			close(ch)
		})
	}
}

// publish must be called with f.mu held.
func (f *Feed) publish(ev Event) {
	for _, ch := range f.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}

func (f *Feed) mirror(ctx context.Context, typ Type, msg string) {
	l := f.logger
	if l == nil {
		l = observe.Logger(ctx)
	}
	level := slog.LevelInfo
	switch typ {
	case Warning:
		level = slog.LevelWarn
	case Error:
		level = slog.LevelError
	}
	l.Log(ctx, level, msg, slog.String("activity", string(typ)))
}
