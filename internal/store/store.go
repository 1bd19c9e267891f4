// Package store provides the persisted key-value space that replaces the
// browser's local storage: user settings, the running transcript and the
// last assist results each live under one fixed key.
//
// Values are opaque bytes; [GetJSON] and [SetJSON] cover the common case of
// JSON documents. The production backend is an embedded Badger database
// ([Badger]); tests open it in memory.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

// ErrNotFound is returned by [KV.Get] when the key has no value.
var ErrNotFound = errors.New("store: key not found")

// Keys used by reshka. They keep the names of the original local-storage
// entries so exported data stays recognisable.
const (
	KeyAppConfig      = "reshka:appConfig"
	KeyPromptConfig   = "reshka:promptConfig"
	KeyTranscript     = "reshka:audioTranscript"
	KeyRephraseResult = "reshka:rephraseResult"
	KeyQuestions      = "reshka:questions"
)

// KV is a flat key-value store. Implementations must be safe for concurrent
// use. Each call is atomic on its own; there are no multi-key transactions.
type KV interface {
	// Get returns the value stored under key or an error wrapping
	// [ErrNotFound].
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores value under key, replacing any previous value.
	Set(ctx context.Context, key string, value []byte) error

	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error
}

// GetJSON loads key and decodes it into a T. found is false (with a nil
// error) when the key is absent.
func GetJSON[T any](ctx context.Context, kv KV, key string) (v T, found bool, err error) {
	raw, err := kv.Get(ctx, key)
	if errors.Is(err, ErrNotFound) {
		return v, false, nil
	}
	if err != nil {
		return v, false, err
	}
	if err := json.Unmarshal(raw, &v); err != nil {
		return v, false, fmt.Errorf("store: decode %s: %w", key, err)
	}
	return v, true, nil
}

// SetJSON encodes v and stores it under key.
func SetJSON(ctx context.Context, kv KV, key string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("store: encode %s: %w", key, err)
	}
	return kv.Set(ctx, key, raw)
}

// GetString loads key as a raw string. found is false when the key is
// absent.
func GetString(ctx context.Context, kv KV, key string) (s string, found bool, err error) {
	raw, err := kv.Get(ctx, key)
	if errors.Is(err, ErrNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return string(raw), true, nil
}
