package memory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const keyPrefix = "conv:"

// deleteIfUnchanged deletes KEYS[1] only while it still holds ARGV[1], so a
// window written by another instance after it was read is kept.
var deleteIfUnchanged = redis.NewScript(`
if redis.call('GET', KEYS[1]) == ARGV[1] then
	return redis.call('DEL', KEYS[1])
end
return 0
`)

// RedisStore keeps windows as JSON values in Redis so several API
// instances share them. Keys expire after the session timeout on their own;
// the sweep only catches entries whose TTL was lost.
type RedisStore struct {
	client redis.Cmdable
	ttl    time.Duration
}

// NewRedisStore creates a Redis-backed window store.
func NewRedisStore(client redis.Cmdable, ttl time.Duration) *RedisStore {
	return &RedisStore{client: client, ttl: ttl}
}

func (s *RedisStore) Get(ctx context.Context, key Key) (*Window, error) {
	data, err := s.client.Get(ctx, key.String()).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("get %s: %w", key, err)
	}

	var w Window
	if err := json.Unmarshal(data, &w); err != nil {
		slog.Warn("memory: dropping malformed window", "key", key.String(), "error", err)
		return nil, nil
	}
	return &w, nil
}

func (s *RedisStore) Set(ctx context.Context, w *Window) error {
	key := w.Key().String()
	data, err := json.Marshal(w)
	if err != nil {
		return fmt.Errorf("marshaling window: %w", err)
	}
	if err := s.client.Set(ctx, key, data, s.ttl).Err(); err != nil {
		return fmt.Errorf("set %s: %w", key, err)
	}
	return nil
}

func (s *RedisStore) Delete(ctx context.Context, key Key) error {
	return s.client.Del(ctx, key.String()).Err()
}

// Idle also reports keys holding values that are not windows. Entries under
// the prefix whose name is not a window key are deleted on the spot.
func (s *RedisStore) Idle(ctx context.Context, cutoff time.Time) ([]Key, error) {
	var keys []Key
	iter := s.client.Scan(ctx, 0, keyPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		name := iter.Val()
		key, ok := parseKey(name)
		if !ok {
			if err := s.client.Del(ctx, name).Err(); err != nil {
				return keys, fmt.Errorf("del %s: %w", name, err)
			}
			continue
		}

		data, err := s.client.Get(ctx, name).Bytes()
		if err != nil {
			continue // expired between SCAN and GET
		}
		var w Window
		if err := json.Unmarshal(data, &w); err == nil && !w.LastActivity.Before(cutoff) {
			continue
		}
		keys = append(keys, key)
	}
	return keys, iter.Err()
}

func (s *RedisStore) DeleteIdle(ctx context.Context, key Key, cutoff time.Time) (bool, error) {
	data, err := s.client.Get(ctx, key.String()).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, nil
		}
		return false, fmt.Errorf("get %s: %w", key, err)
	}
	var w Window
	if err := json.Unmarshal(data, &w); err == nil && !w.LastActivity.Before(cutoff) {
		return false, nil
	}

	n, err := deleteIfUnchanged.Run(ctx, s.client, []string{key.String()}, data).Int()
	if err != nil {
		return false, fmt.Errorf("del %s: %w", key, err)
	}
	return n == 1, nil
}

func parseKey(name string) (Key, bool) {
	rest, ok := strings.CutPrefix(name, keyPrefix)
	if !ok {
		return Key{}, false
	}
	id, topic, ok := strings.Cut(rest, ":")
	if !ok || topic == "" {
		return Key{}, false
	}
	userID, err := uuid.Parse(id)
	if err != nil {
		return Key{}, false
	}
	return Key{UserID: userID, Topic: topic}, true
}
