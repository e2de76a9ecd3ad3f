package services

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/amirphl/Susanoo/config"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// RateLimiter bounds sends per identity over a sliding window
type RateLimiter interface {
	// Take records one send for the identity if the window has room. It
	// returns whether the send is allowed and how much room remains.
	Take(ctx context.Context, identity string, now time.Time) (allowed bool, remaining int, err error)
}

// SlidingWindowLimiter applies a per-identity limit over a trailing window
type SlidingWindowLimiter struct {
	store     limiterStore
	limit     int
	window    time.Duration
	retention time.Duration
}

type limiterStore interface {
	// take prunes events older than windowStart, then appends now if the
	// remaining count is below limit. Prune, count and append must be one
	// atomic step so concurrent callers cannot both be admitted past the
	// limit.
	take(ctx context.Context, identity string, windowStart, now time.Time, limit int) (allowed bool, remaining int, err error)
	// cleanup drops identities with no event after cutoff.
	cleanup(ctx context.Context, cutoff time.Time) error
}

// NewSlidingWindowLimiter builds a limiter on the configured store
func NewSlidingWindowLimiter(cfg *config.RateLimiterConfig, redisClient *redis.Client, prefix string) (*SlidingWindowLimiter, error) {
	var store limiterStore
	switch cfg.Store {
	case "redis":
		if redisClient == nil {
			return nil, fmt.Errorf("redis rate limiter store requires a redis client")
		}
		store = &redisLimiterStore{client: redisClient, prefix: prefix, window: cfg.Window}
	case "memory":
		store = newMemoryLimiterStore(cfg.MaxIdentities)
	default:
		return nil, fmt.Errorf("unknown rate limiter store %q", cfg.Store)
	}
	retention := cfg.Retention
	if retention < cfg.Window {
		retention = 2 * cfg.Window
	}
	return &SlidingWindowLimiter{store: store, limit: cfg.Limit, window: cfg.Window, retention: retention}, nil
}

func (l *SlidingWindowLimiter) Take(ctx context.Context, identity string, now time.Time) (bool, int, error) {
	return l.store.take(ctx, identity, now.Add(-l.window), now, l.limit)
}

// StartCleanup launches a background sweep that evicts identities idle for
// longer than the retention horizon. The returned stop function cancels it.
func (l *SlidingWindowLimiter) StartCleanup(parent context.Context) func() {
	ctx, cancel := context.WithCancel(parent)

	interval := l.retention / 4
	if interval <= 0 || interval > 10*time.Minute {
		interval = 10 * time.Minute
	}

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := l.store.cleanup(ctx, time.Now().UTC().Add(-l.retention)); err != nil {
					continue
				}
			}
		}
	}()

	return cancel
}

// memoryLimiterStore keeps per-identity timestamp slices behind a mutex.
// Intended for single-process deployments and tests.
type memoryLimiterStore struct {
	mu            sync.Mutex
	events        map[string][]time.Time
	maxIdentities int
}

func newMemoryLimiterStore(maxIdentities int) *memoryLimiterStore {
	if maxIdentities <= 0 {
		maxIdentities = 10000
	}
	return &memoryLimiterStore{
		events:        make(map[string][]time.Time),
		maxIdentities: maxIdentities,
	}
}

func (s *memoryLimiterStore) take(_ context.Context, identity string, windowStart, now time.Time, limit int) (bool, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	events := s.events[identity]
	pruned := events[:0]
	for _, t := range events {
		if t.After(windowStart) {
			pruned = append(pruned, t)
		}
	}

	if len(pruned) >= limit {
		s.events[identity] = pruned
		return false, 0, nil
	}

	if _, known := s.events[identity]; !known && len(s.events) >= s.maxIdentities {
		s.evictOldest()
	}

	pruned = append(pruned, now)
	s.events[identity] = pruned
	return true, limit - len(pruned), nil
}

func (s *memoryLimiterStore) cleanup(_ context.Context, cutoff time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for identity, events := range s.events {
		if len(events) == 0 || !events[len(events)-1].After(cutoff) {
			delete(s.events, identity)
		}
	}
	return nil
}

// evictOldest drops the identity whose newest event is oldest. Called with
// the lock held.
func (s *memoryLimiterStore) evictOldest() {
	var victim string
	var newest time.Time
	for identity, events := range s.events {
		if len(events) == 0 {
			victim = identity
			break
		}
		last := events[len(events)-1]
		if victim == "" || last.Before(newest) {
			victim = identity
			newest = last
		}
	}
	if victim != "" {
		delete(s.events, victim)
	}
}

// takeScript prunes, counts and conditionally appends in one server-side
// step so concurrent dispatchers cannot both slip past the limit.
//
// KEYS[1] window sorted set
// ARGV[1] window start (unix nanos), ARGV[2] limit,
// ARGV[3] event score (unix nanos), ARGV[4] unique member, ARGV[5] key TTL ms
var takeScript = redis.NewScript(`
redis.call('ZREMRANGEBYSCORE', KEYS[1], 0, ARGV[1])
local count = redis.call('ZCARD', KEYS[1])
if count >= tonumber(ARGV[2]) then
	return {0, 0}
end
redis.call('ZADD', KEYS[1], ARGV[3], ARGV[4])
redis.call('PEXPIRE', KEYS[1], ARGV[5])
return {1, tonumber(ARGV[2]) - count - 1}
`)

// redisLimiterStore keeps per-identity sorted sets scored by send time so
// multiple dispatcher instances share one window.
type redisLimiterStore struct {
	client *redis.Client
	prefix string
	window time.Duration
}

func (s *redisLimiterStore) key(identity string) string {
	return s.prefix + "ratelimit:" + identity
}

func (s *redisLimiterStore) take(ctx context.Context, identity string, windowStart, now time.Time, limit int) (bool, int, error) {
	nanos := now.UnixNano()
	res, err := takeScript.Run(ctx, s.client,
		[]string{s.key(identity)},
		strconv.FormatInt(windowStart.UnixNano(), 10),
		limit,
		nanos,
		// Nano timestamps can collide across concurrent callers; the
		// member must stay unique or ZADD silently overwrites.
		strconv.FormatInt(nanos, 10)+"-"+uuid.NewString(),
		(s.window + time.Minute).Milliseconds(),
	).Int64Slice()
	if err != nil {
		return false, 0, fmt.Errorf("failed to take rate limit slot for %s: %w", identity, err)
	}
	if len(res) != 2 {
		return false, 0, fmt.Errorf("unexpected rate limit script reply for %s: %v", identity, res)
	}

	return res[0] == 1, int(res[1]), nil
}

// cleanup is a no-op for redis: per-key TTLs retire idle identities.
func (s *redisLimiterStore) cleanup(context.Context, time.Time) error {
	return nil
}
