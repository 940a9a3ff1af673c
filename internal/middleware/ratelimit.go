package middleware

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// KeyFunc names the bucket a request counts against. An empty key skips limiting.
type KeyFunc func(r *http.Request) string

// ByIP buckets requests by client address.
func ByIP(r *http.Request) string {
	return clientIP(r)
}

// slidingWindow trims the sorted set to the window, admits the request if
// there is room and otherwise returns how long until the oldest entry
// leaves the window. Rejected requests are not recorded.
//
// KEYS[1] bucket, ARGV now_ms, window_ms, limit, member.
var slidingWindow = redis.NewScript(`
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
redis.call('ZREMRANGEBYSCORE', KEYS[1], '-inf', now - window)
if redis.call('ZCARD', KEYS[1]) < tonumber(ARGV[3]) then
	redis.call('ZADD', KEYS[1], now, ARGV[4])
	redis.call('PEXPIRE', KEYS[1], window)
	return 0
end
local oldest = redis.call('ZRANGE', KEYS[1], 0, 0, 'WITHSCORES')
return window - (now - tonumber(oldest[2]))
`)

// RateLimiter is a Redis sorted-set sliding window shared by every API
// instance.
type RateLimiter struct {
	client  redis.Scripter
	prefix  string
	key     KeyFunc
	limit   int
	window  time.Duration
	nowFunc func() time.Time
}

// NewRateLimiter allows maxReqs per windowSec seconds for each key under
// ratelimit:<prefix>:<key>.
func NewRateLimiter(client redis.Scripter, prefix string, key KeyFunc, maxReqs, windowSec int) *RateLimiter {
	return &RateLimiter{
		client:  client,
		prefix:  prefix,
		key:     key,
		limit:   maxReqs,
		window:  time.Duration(windowSec) * time.Second,
		nowFunc: time.Now,
	}
}

// Middleware answers 429 with Retry-After once a bucket is full. Redis
// errors let the request through.
func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := rl.key(r)
		if id == "" {
			next.ServeHTTP(w, r)
			return
		}

		wait, err := rl.reserve(r.Context(), "ratelimit:"+rl.prefix+":"+id)
		if err != nil {
			slog.Warn("rate limiter unavailable, allowing request", "error", err, "bucket", rl.prefix)
			next.ServeHTTP(w, r)
			return
		}
		if wait > 0 {
			w.Header().Set("Retry-After", strconv.Itoa(retryAfterSeconds(wait)))
			writeError(w, http.StatusTooManyRequests, "too many requests")
			return
		}

		next.ServeHTTP(w, r)
	})
}

// reserve records the request and returns zero, or returns the time until a
// slot frees up.
func (rl *RateLimiter) reserve(ctx context.Context, bucket string) (time.Duration, error) {
	now := rl.nowFunc().UnixMilli()
	waitMs, err := slidingWindow.Run(ctx, rl.client, []string{bucket},
		now, rl.window.Milliseconds(), rl.limit, uuid.NewString()).Int64()
	if err != nil {
		return 0, err
	}
	return time.Duration(waitMs) * time.Millisecond, nil
}

func retryAfterSeconds(wait time.Duration) int {
	secs := int((wait + time.Second - 1) / time.Second)
	return max(secs, 1)
}

func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
