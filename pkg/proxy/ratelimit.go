// Copyright 2025 ZapFS Authors
// SPDX-License-Identifier: Apache-2.0

package proxy

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

// Limiter decides whether one more request for key is allowed right now.
type Limiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}

// RateLimitConfig configures per-client request rate limiting. A zero RPS
// disables it. With Redis.Addr set the limit is shared between proxy
// instances.
type RateLimitConfig struct {
	RPS   float64 `mapstructure:"rate_limit_rps"`
	Burst int     `mapstructure:"rate_limit_burst"`

	Redis RedisRateLimitConfig
}

func (c RateLimitConfig) Enabled() bool {
	return c.RPS > 0
}

func (c RateLimitConfig) burst() int {
	if c.Burst > 0 {
		return c.Burst
	}
	if b := int(c.RPS * 2); b > 0 {
		return b
	}
	return 1
}

// NewLimiter builds the limiter described by cfg, or nil when rate limiting is
// disabled.
func NewLimiter(cfg RateLimitConfig) (Limiter, error) {
	if !cfg.Enabled() {
		return nil, nil
	}
	if cfg.Redis.Addr == "" {
		return NewLocalLimiter(cfg.RPS, cfg.burst()), nil
	}

	rcfg := cfg.Redis
	rcfg.RPS = cfg.RPS
	rcfg.Burst = int64(cfg.burst())
	limiter, err := NewRedisLimiter(rcfg)
	if err != nil {
		return nil, err
	}
	return limiter, nil
}

// LocalLimiter keeps one token bucket per key in process memory. Buckets
// idle for longer than idleTTL are dropped.
type LocalLimiter struct {
	rps   rate.Limit
	burst int

	mu        sync.Mutex
	limiters  map[string]*localEntry
	idleTTL   time.Duration
	lastSweep time.Time
	now       func() time.Time
}

type localEntry struct {
	limiter  *rate.Limiter
	lastUsed time.Time
}

func NewLocalLimiter(rps float64, burst int) *LocalLimiter {
	return &LocalLimiter{
		rps:      rate.Limit(rps),
		burst:    burst,
		limiters: make(map[string]*localEntry),
		idleTTL:  5 * time.Minute,
		now:      time.Now,
	}
}

func (l *LocalLimiter) Allow(_ context.Context, key string) (bool, error) {
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	if now.Sub(l.lastSweep) > l.idleTTL {
		for k, e := range l.limiters {
			if now.Sub(e.lastUsed) > l.idleTTL {
				delete(l.limiters, k)
			}
		}
		l.lastSweep = now
	}

	e, ok := l.limiters[key]
	if !ok {
		e = &localEntry{limiter: rate.NewLimiter(l.rps, l.burst)}
		l.limiters[key] = e
	}
	e.lastUsed = now
	return e.limiter.AllowN(now, 1), nil
}

// RedisRateLimitConfig configures the Redis-backed limiter.
type RedisRateLimitConfig struct {
	Addr     string `mapstructure:"rate_limit_redis_addr"`
	Password string `mapstructure:"rate_limit_redis_password"`
	DB       int    `mapstructure:"rate_limit_redis_db"`

	KeyPrefix string
	RPS       float64 // may be fractional
	Burst     int64
	KeyTTL    time.Duration

	// FailOpen allows requests while Redis is unreachable.
	FailOpen bool `mapstructure:"rate_limit_fail_open"`
}

// RedisLimiter implements a distributed limit with GCRA (Generic Cell Rate
// Algorithm). Each key stores its theoretical arrival time (TAT) and a Lua
// script moves it forward atomically, so all proxy instances share one
// budget per key.
type RedisLimiter struct {
	client *redis.Client
	config RedisRateLimitConfig
	now    func() time.Time
}

func NewRedisLimiter(cfg RedisRateLimitConfig) (*RedisLimiter, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}

	return NewRedisLimiterWithClient(client, cfg), nil
}

func NewRedisLimiterWithClient(client *redis.Client, cfg RedisRateLimitConfig) *RedisLimiter {
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = "zapgate:ratelimit:"
	}
	if cfg.KeyTTL <= 0 {
		cfg.KeyTTL = time.Hour
	}
	return &RedisLimiter{client: client, config: cfg, now: time.Now}
}

// gcraScript returns {allowed (1 or 0), remaining tokens}.
//
// TAT is when the bucket will be full again. Every request pushes it forward
// by the emission interval (1/rate) and is allowed while the new TAT stays
// within now + burst * interval.
var gcraScript = redis.NewScript(`
local key = KEYS[1]
local now = tonumber(ARGV[1])        -- milliseconds
local burst = tonumber(ARGV[2])
local rate = tonumber(ARGV[3])       -- tokens per second
local ttl = tonumber(ARGV[4])        -- seconds

local emission_interval = 1000 / rate
local allow_at = now + burst * emission_interval

local tat = tonumber(redis.call("GET", key) or now)
if tat < now then
    tat = now
end

local new_tat = tat + emission_interval
if new_tat > allow_at then
    return {0, 0}
end

redis.call("SET", key, new_tat, "EX", ttl)
return {1, math.floor((allow_at - new_tat) / emission_interval)}
`)

func (r *RedisLimiter) Allow(ctx context.Context, key string) (bool, error) {
	result, err := gcraScript.Run(ctx, r.client, []string{r.config.KeyPrefix + key},
		r.now().UnixMilli(), r.config.Burst, r.config.RPS, int64(r.config.KeyTTL.Seconds()),
	).Int64Slice()
	if err != nil {
		log.Warn().Err(err).Str("key", key).Msg("Redis rate limit check failed")
		if r.config.FailOpen {
			return true, nil
		}
		return false, err
	}
	return result[0] == 1, nil
}

// Close closes the Redis connection.
func (r *RedisLimiter) Close() error {
	return r.client.Close()
}
