package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/dgraph-io/badger/v4"
)

// Badger is a [KV] backed by an embedded Badger database.
type Badger struct {
	db *badger.DB
}

// Open opens (or creates) a Badger database in dir. An empty dir opens a
// purely in-memory database whose contents are lost on Close.
func Open(dir string) (*Badger, error) {
	opts := badger.DefaultOptions(dir).WithLogger(slogLogger{l: slog.Default().With("component", "badger")})
	if dir == "" {
		opts = opts.WithInMemory(true)
	}
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("store: open %q: %w", dir, err)
	}
	return &Badger{db: db}, nil
}

// OpenInMemory is shorthand for Open("").
func OpenInMemory() (*Badger, error) {
	return Open("")
}

// Get implements [KV].
func (b *Badger) Get(_ context.Context, key string) ([]byte, error) {
	var out []byte
	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		out, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	if err != nil {
		return nil, fmt.Errorf("store: get %s: %w", key, err)
	}
	return out, nil
}

// Set implements [KV].
func (b *Badger) Set(_ context.Context, key string, value []byte) error {
	err := b.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), value)
	})
	if err != nil {
		return fmt.Errorf("store: set %s: %w", key, err)
	}
	return nil
}

// Delete implements [KV].
func (b *Badger) Delete(_ context.Context, key string) error {
	err := b.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(key))
	})
	if err != nil {
		return fmt.Errorf("store: delete %s: %w", key, err)
	}
	return nil
}

// Check reports whether the database is open. Used as a readiness probe.
func (b *Badger) Check(_ context.Context) error {
	if b.db.IsClosed() {
		return errors.New("store: database closed")
	}
	return nil
}

// Close flushes and closes the database.
func (b *Badger) Close() error {
	return b.db.Close()
}

// Ensure Badger implements KV at compile time.
var _ KV = (*Badger)(nil)

// slogLogger adapts slog to badger.Logger. Badger's info chatter is demoted
// to debug.
type slogLogger struct {
	l *slog.Logger
}

func (s slogLogger) Errorf(format string, args ...any) {
	s.l.Error(trimf(format, args...))
}

func (s slogLogger) Warningf(format string, args ...any) {
	s.l.Warn(trimf(format, args...))
}

func (s slogLogger) Infof(format string, args ...any) {
	s.l.Debug(trimf(format, args...))
}

func (s slogLogger) Debugf(format string, args ...any) {
	s.l.Debug(trimf(format, args...))
}

func trimf(format string, args ...any) string {
	return strings.TrimRight(fmt.Sprintf(format, args...), "\n")
}
