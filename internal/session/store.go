// Package session persists in-progress client state (selected dataset, step
// configuration, fill choices) across restarts.
//
// Values are wrapped in a versioned envelope {data, timestamp, version}. An
// entry written under a different version, or older than the configured max
// age, is treated as absent and removed on read.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// ErrNotFound is returned by a KV when a key does not exist.
var ErrNotFound = errors.New("session key not found")

// KV is the raw key-value backend behind a Store.
type KV interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	Close() error
}

// Envelope is the stored form of every value.
type Envelope struct {
	Data      json.RawMessage `json:"data"`
	Timestamp int64           `json:"timestamp"`
	Version   int             `json:"version"`
}

// Store reads and writes versioned envelopes.
type Store struct {
	kv      KV
	version int
	maxAge  time.Duration
	now     func() time.Time
}

// NewStore wraps kv. A zero maxAge disables age-based invalidation.
func NewStore(kv KV, version int, maxAge time.Duration) *Store {
	return &Store{kv: kv, version: version, maxAge: maxAge, now: time.Now}
}

// Version returns the envelope version this store writes and accepts.
func (s *Store) Version() int {
	return s.version
}

// Save stores v under key.
func (s *Store) Save(ctx context.Context, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("session encode %q: %w", key, err)
	}
	env, err := json.Marshal(Envelope{
		Data:      data,
		Timestamp: s.now().UnixMilli(),
		Version:   s.version,
	})
	if err != nil {
		return fmt.Errorf("session encode envelope %q: %w", key, err)
	}
	if err := s.kv.Set(ctx, key, env); err != nil {
		return fmt.Errorf("session save %q: %w", key, err)
	}
	return nil
}

// Load decodes the value under key into v. It reports false when the key is
// missing, corrupt, stale or from another version; such entries are deleted.
func (s *Store) Load(ctx context.Context, key string, v any) (bool, error) {
	raw, err := s.kv.Get(ctx, key)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("session load %q: %w", key, err)
	}

	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return false, s.invalidate(ctx, key, "corrupt envelope")
	}
	if env.Version != s.version {
		slog.Info("session entry version mismatch",
			"key", key,
			"stored_version", env.Version,
			"version", s.version,
		)
		return false, s.invalidate(ctx, key, "version mismatch")
	}
	if s.maxAge > 0 && s.now().Sub(time.UnixMilli(env.Timestamp)) > s.maxAge {
		return false, s.invalidate(ctx, key, "expired")
	}
	if err := json.Unmarshal(env.Data, v); err != nil {
		return false, s.invalidate(ctx, key, "corrupt data")
	}
	return true, nil
}

// Clear removes key.
func (s *Store) Clear(ctx context.Context, key string) error {
	if err := s.kv.Delete(ctx, key); err != nil && !errors.Is(err, ErrNotFound) {
		return fmt.Errorf("session clear %q: %w", key, err)
	}
	return nil
}

// Close releases the backend.
func (s *Store) Close() error {
	return s.kv.Close()
}

func (s *Store) invalidate(ctx context.Context, key, reason string) error {
	slog.Debug("session entry invalidated", "key", key, "reason", reason)
	if err := s.kv.Delete(ctx, key); err != nil && !errors.Is(err, ErrNotFound) {
		return fmt.Errorf("session invalidate %q: %w", key, err)
	}
	return nil
}
