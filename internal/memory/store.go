package memory

import (
	"context"
	"time"

	"github.com/patrickmn/go-cache"
)

// WindowStore persists windows. Get returns nil, nil when the key is absent.
type WindowStore interface {
	Get(ctx context.Context, key Key) (*Window, error)
	Set(ctx context.Context, w *Window) error
	Delete(ctx context.Context, key Key) error
	// Idle lists the keys of windows last active before cutoff.
	Idle(ctx context.Context, cutoff time.Time) ([]Key, error)
	// DeleteIdle removes the window at key only if it is still idle at
	// cutoff, and reports whether it did.
	DeleteIdle(ctx context.Context, key Key, cutoff time.Time) (bool, error)
}

// LocalStore keeps windows in process memory. Nothing survives a restart.
type LocalStore struct {
	cache *cache.Cache
}

// NewLocalStore creates an in-process store. Expiry is driven by the
// Sweeper, not by the cache's own janitor.
func NewLocalStore() *LocalStore {
	return &LocalStore{cache: cache.New(cache.NoExpiration, 0)}
}

func (s *LocalStore) Get(_ context.Context, key Key) (*Window, error) {
	if x, found := s.cache.Get(key.String()); found {
		return x.(*Window).clone(), nil
	}
	return nil, nil
}

func (s *LocalStore) Set(_ context.Context, w *Window) error {
	s.cache.Set(w.Key().String(), w.clone(), cache.NoExpiration)
	return nil
}

func (s *LocalStore) Delete(_ context.Context, key Key) error {
	s.cache.Delete(key.String())
	return nil
}

func (s *LocalStore) Idle(_ context.Context, cutoff time.Time) ([]Key, error) {
	var keys []Key
	for _, item := range s.cache.Items() {
		if w, ok := item.Object.(*Window); ok && w.LastActivity.Before(cutoff) {
			keys = append(keys, w.Key())
		}
	}
	return keys, nil
}

// DeleteIdle is only atomic against writers holding the Cache's key lock.
func (s *LocalStore) DeleteIdle(_ context.Context, key Key, cutoff time.Time) (bool, error) {
	x, found := s.cache.Get(key.String())
	if !found {
		return false, nil
	}
	if w, ok := x.(*Window); ok && !w.LastActivity.Before(cutoff) {
		return false, nil
	}
	s.cache.Delete(key.String())
	return true, nil
}

// Len reports how many windows are held, expired or not.
func (s *LocalStore) Len() int {
	return s.cache.ItemCount()
}
