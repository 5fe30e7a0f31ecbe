package storage

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"
)

// AttemptLimiter allows at most Max attempts per key within Window. Attempt
// times are kept in the store, so a Local store limits across restarts.
// Checks are serialized per limiter; limiters sharing a store do not
// coordinate.
type AttemptLimiter struct {
	Store  Store
	Max    int
	Window time.Duration

	mu  sync.Mutex
	now func() time.Time
}

// NewAttemptLimiter returns a limiter over s.
func NewAttemptLimiter(s Store, limit int, window time.Duration) *AttemptLimiter {
	return &AttemptLimiter{Store: s, Max: limit, Window: window}
}

// Allow records an attempt for key and reports whether it is within the
// limit. Refused attempts are not recorded.
func (a *AttemptLimiter) Allow(ctx context.Context, key string) (bool, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	now := a.clock()
	k := "attempts:" + key
	times, _, err := Load[[]int64](ctx, a.Store, k)
	if err != nil {
		return false, err
	}

	cutoff := now.Add(-a.Window).UnixMilli()
	times = slices.DeleteFunc(times, func(t int64) bool { return t <= cutoff })
	if len(times) >= a.Max {
		return false, Save(ctx, a.Store, k, times)
	}
	times = append(times, now.UnixMilli())
	return true, Save(ctx, a.Store, k, times)
}

// Reset forgets the attempts for key, typically after a successful login.
func (a *AttemptLimiter) Reset(ctx context.Context, key string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.Store.Delete(ctx, "attempts:"+key)
}

func (a *AttemptLimiter) clock() time.Time {
	if a.now != nil {
		return a.now()
	}
	return time.Now()
}

// ColumnPrefs remembers which columns of a table the user hid.
type ColumnPrefs struct {
	Store Store
}

// Hidden returns the hidden columns of table, sorted.
func (c ColumnPrefs) Hidden(ctx context.Context, table string) ([]string, error) {
	cols, _, err := Load[[]string](ctx, c.Store, "columns:"+table)
	return cols, err
}

// Visible reports whether column is shown.
func (c ColumnPrefs) Visible(ctx context.Context, table, column string) (bool, error) {
	hidden, err := c.Hidden(ctx, table)
	if err != nil {
		return false, err
	}
	_, found := slices.BinarySearch(hidden, column)
	return !found, nil
}

// SetVisible shows or hides column.
func (c ColumnPrefs) SetVisible(ctx context.Context, table, column string, visible bool) error {
	hidden, err := c.Hidden(ctx, table)
	if err != nil {
		return err
	}
	i, found := slices.BinarySearch(hidden, column)
	switch {
	case visible && found:
		hidden = slices.Delete(hidden, i, i+1)
	case !visible && !found:
		hidden = slices.Insert(hidden, i, column)
	default:
		return nil
	}
	if len(hidden) == 0 {
		return c.Store.Delete(ctx, "columns:"+table)
	}
	return Save(ctx, c.Store, "columns:"+table, hidden)
}

// FrameRoots remembers the first URL loaded into an embedded frame. Pages
// inside the frame only show breadcrumbs from that root down.
type FrameRoots struct {
	Store Store
}

// Remember stores url as the root of frame unless one is already known.
// It returns the root in effect.
func (f FrameRoots) Remember(ctx context.Context, frame, url string) (string, error) {
	if frame == "" || url == "" {
		return "", fmt.Errorf("storage: frame root needs a frame and a url")
	}
	root, ok, err := f.Root(ctx, frame)
	if err != nil || ok {
		return root, err
	}
	return url, Save(ctx, f.Store, "frame-root:"+frame, url)
}

// Root returns the remembered root of frame.
func (f FrameRoots) Root(ctx context.Context, frame string) (string, bool, error) {
	return Load[string](ctx, f.Store, "frame-root:"+frame)
}

// Forget drops the root of frame.
func (f FrameRoots) Forget(ctx context.Context, frame string) error {
	return f.Store.Delete(ctx, "frame-root:"+frame)
}

// Trail drops the breadcrumbs above the frame's root. Without a known root,
// or when the root is not among crumbs, the trail is returned unchanged.
func (f FrameRoots) Trail(ctx context.Context, frame string, crumbs []string) ([]string, error) {
	root, ok, err := f.Root(ctx, frame)
	if err != nil || !ok {
		return crumbs, err
	}
	if i := slices.Index(crumbs, root); i >= 0 {
		return crumbs[i:], nil
	}
	return crumbs, nil
}
