// Package storage keeps small per-browser values: a persistent Local store
// and a Session store that lives as long as the process. Both sit behind
// Store, and values are msgpack-encoded.
//
// On top of the raw stores sit the three users of browser storage:
// AttemptLimiter (auto-login rate limiting), ColumnPrefs (table column
// visibility) and FrameRoots (the root URL of an embedded frame, used to
// trim breadcrumbs).
package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/pthm/hxreload/lib/encoding"
)

// ErrNotFound is returned by Get for absent keys.
var ErrNotFound = errors.New("storage: not found")

// Store is a flat key/value store.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	// Keys lists the keys starting with prefix, sorted.
	Keys(ctx context.Context, prefix string) ([]string, error)
}

// Load decodes the value stored under key. A missing key yields the zero
// value and false.
func Load[T any](ctx context.Context, s Store, key string) (T, bool, error) {
	var v T
	data, err := s.Get(ctx, key)
	if errors.Is(err, ErrNotFound) {
		return v, false, nil
	}
	if err != nil {
		return v, false, err
	}
	if err := encoding.Unmarshal(data, &v); err != nil {
		return v, false, fmt.Errorf("storage: %s: %w", key, err)
	}
	return v, true, nil
}

// Save encodes v and stores it under key.
func Save(ctx context.Context, s Store, key string, v any) error {
	data, err := encoding.Marshal(v)
	if err != nil {
		return fmt.Errorf("storage: %s: %w", key, err)
	}
	return s.Set(ctx, key, data)
}
