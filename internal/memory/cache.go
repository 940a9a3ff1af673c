package memory

import (
	"context"
	"fmt"
	"hash/fnv"
	"sync"
	"time"
)

const lockStripes = 64

// Cache maintains one bounded window per (user, topic) on top of a WindowStore.
// Read-modify-write on a key is serialized within the process.
type Cache struct {
	store WindowStore
	cfg   Config
	now   func() time.Time
	locks [lockStripes]sync.Mutex
}

// NewCache creates a window cache. Zero fields in cfg take default values.
func NewCache(store WindowStore, cfg Config) *Cache {
	return &Cache{
		store: store,
		cfg:   cfg.withDefaults(),
		now:   time.Now,
	}
}

// Config returns the effective limits.
func (c *Cache) Config() Config {
	return c.cfg
}

func (c *Cache) lock(key Key) func() {
	h := fnv.New32a()
	h.Write([]byte(key.String()))
	mu := &c.locks[h.Sum32()%lockStripes]
	mu.Lock()
	return mu.Unlock
}

// load returns the live window for key, or nil when absent or expired.
func (c *Cache) load(ctx context.Context, key Key, now time.Time) (*Window, error) {
	w, err := c.store.Get(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("loading window: %w", err)
	}
	if w == nil || w.expired(now, c.cfg.SessionTimeout) {
		return nil, nil
	}
	return w, nil
}

func (c *Cache) save(ctx context.Context, w *Window) error {
	if err := c.store.Set(ctx, w); err != nil {
		return fmt.Errorf("saving window: %w", err)
	}
	return nil
}

// GetOrCreate returns the live window for key, refreshing its activity time,
// or starts an empty one.
func (c *Cache) GetOrCreate(ctx context.Context, key Key) (*Window, error) {
	defer c.lock(key)()
	now := c.now()

	w, err := c.load(ctx, key, now)
	if err != nil {
		return nil, err
	}
	if w == nil {
		w = newWindow(key, now)
	}
	w.LastActivity = now
	if err := c.save(ctx, w); err != nil {
		return nil, err
	}
	return w.clone(), nil
}

// Append adds a turn to the window and trims it back within bounds.
// Empty text still appends a zero-word turn.
func (c *Cache) Append(ctx context.Context, key Key, role, text string) (Turn, error) {
	defer c.lock(key)()
	now := c.now()

	w, err := c.load(ctx, key, now)
	if err != nil {
		return Turn{}, err
	}
	if w == nil {
		w = newWindow(key, now)
	}

	turn := Turn{Role: role, Text: text, WordCount: CountWords(text), CreatedAt: now}
	w.push(turn)
	w.trim(c.cfg)
	w.LastActivity = now

	if err := c.save(ctx, w); err != nil {
		return Turn{}, err
	}
	return turn, nil
}

// Window returns up to maxTurns of the most recent turns, oldest first.
// It does not touch the window's activity time.
func (c *Cache) Window(ctx context.Context, key Key, maxTurns int) ([]Turn, error) {
	if maxTurns <= 0 {
		return nil, nil
	}
	w, err := c.load(ctx, key, c.now())
	if err != nil || w == nil {
		return nil, err
	}
	turns := w.Turns
	if len(turns) > maxTurns {
		turns = turns[len(turns)-maxTurns:]
	}
	return append([]Turn(nil), turns...), nil
}

// Hydrate seeds an absent, expired or empty window from persisted history.
// A window that already holds turns is returned unchanged.
func (c *Cache) Hydrate(ctx context.Context, key Key, src HistorySource) (*Window, error) {
	defer c.lock(key)()
	now := c.now()

	w, err := c.load(ctx, key, now)
	if err != nil {
		return nil, err
	}
	if w != nil && len(w.Turns) > 0 {
		return w.clone(), nil
	}

	msgs, err := src.RecentHistory(ctx, key.UserID, key.Topic, c.cfg.HydrateLimit)
	if err != nil {
		return nil, fmt.Errorf("loading history for %s: %w", key, err)
	}

	w = newWindow(key, now)
	for _, m := range msgs {
		w.push(Turn{
			Role:      m.Role,
			Text:      m.Content,
			WordCount: CountWords(m.Content),
			CreatedAt: m.CreatedAt,
		})
	}
	w.trim(c.cfg)

	if err := c.save(ctx, w); err != nil {
		return nil, err
	}
	return w.clone(), nil
}

// NeedsRefresh reports whether the caller should Hydrate before reading:
// the window is absent, expired, empty, or idle past the refresh threshold.
func (c *Cache) NeedsRefresh(ctx context.Context, key Key) (bool, error) {
	now := c.now()
	w, err := c.load(ctx, key, now)
	if err != nil {
		return true, err
	}
	if w == nil || len(w.Turns) == 0 {
		return true, nil
	}
	return now.Sub(w.LastActivity) > c.cfg.RefreshThreshold, nil
}

// Clear deletes the window. The next access starts empty rather than
// reloading history, unless the caller hydrates explicitly.
func (c *Cache) Clear(ctx context.Context, key Key) error {
	defer c.lock(key)()
	if err := c.store.Delete(ctx, key); err != nil {
		return fmt.Errorf("clearing window: %w", err)
	}
	return nil
}

// SweepExpired removes every window idle longer than the session timeout.
// Each candidate is re-checked under its key lock, so a window refreshed
// after the idle scan survives.
func (c *Cache) SweepExpired(ctx context.Context, now time.Time) (int, error) {
	cutoff := now.Add(-c.cfg.SessionTimeout)
	keys, err := c.store.Idle(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("listing idle windows: %w", err)
	}

	removed := 0
	for _, key := range keys {
		ok, err := c.evictIdle(ctx, key, cutoff)
		if err != nil {
			return removed, err
		}
		if ok {
			removed++
		}
	}
	return removed, nil
}

func (c *Cache) evictIdle(ctx context.Context, key Key, cutoff time.Time) (bool, error) {
	defer c.lock(key)()
	ok, err := c.store.DeleteIdle(ctx, key, cutoff)
	if err != nil {
		return false, fmt.Errorf("evicting window: %w", err)
	}
	return ok, nil
}
