// Package transcript holds the running dictation transcript.
//
// The transcript is a newline-joined sequence of recognised lines. It is
// appended to by the transcription pipeline, cleared only by an explicit user
// action, and persisted as one JSON document after every change. Append and
// persist happen under a single lock, so a concurrent reader never observes
// an in-memory value that failed to reach storage.
package transcript

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/MrWong99/reshka/internal/store"
)

// document is the persisted form.
type document struct {
	Text string `json:"text"`
}

// Store is the transcript state. It is safe for concurrent use.
type Store struct {
	kv store.KV

	mu        sync.Mutex
	text      string
	listeners map[int]func(string)
	nextID    int
}

// Load creates a Store on kv, restoring any previously persisted transcript.
func Load(ctx context.Context, kv store.KV) (*Store, error) {
	doc, _, err := store.GetJSON[document](ctx, kv, store.KeyTranscript)
	if err != nil {
		return nil, fmt.Errorf("transcript: load: %w", err)
	}
	return &Store{kv: kv, text: doc.Text, listeners: make(map[int]func(string))}, nil
}

// Text returns the current transcript.
func (s *Store) Text() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.text
}

// Append adds line to the transcript on its own line and persists the
// result. The existing text and line are both trimmed; an empty transcript
// gets no leading newline. A line that is blank after trimming leaves the
// transcript unchanged. On a storage error the in-memory transcript is not
// modified.
func (s *Store) Append(ctx context.Context, line string) (string, error) {
	line = strings.TrimSpace(line)

	s.mu.Lock()
	defer s.mu.Unlock()

	if line == "" {
		return s.text, nil
	}
	next := strings.TrimSpace(s.text)
	if next != "" {
		next += "\n"
	}
	next += line

	if err := store.SetJSON(ctx, s.kv, store.KeyTranscript, document{Text: next}); err != nil {
		return s.text, fmt.Errorf("transcript: append: %w", err)
	}
	s.text = next
	s.notify()
	return next, nil
}

// Clear empties the transcript and removes the persisted document.
func (s *Store) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.kv.Delete(ctx, store.KeyTranscript); err != nil {
		return fmt.Errorf("transcript: clear: %w", err)
	}
	s.text = ""
	s.notify()
	return nil
}

// OnChange registers fn to be called with the new text after every
// successful change. fn runs with the store locked and must not call back
// into the Store. The returned function unregisters fn.
func (s *Store) OnChange(fn func(text string)) (remove func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = fn
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.listeners, id)
	}
}

func (s *Store) notify() {
	for _, fn := range s.listeners {
		fn(s.text)
	}
}
