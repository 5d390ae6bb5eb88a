package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/arklim/payroll-access/internal/core/port"
)

var (
	errInvalidWindow = errors.New("rate limit: window must be positive")
	errInvalidLimit  = errors.New("rate limit: limit must be positive")
)

// admitScript trims, counts and conditionally records in one server-side step.
// KEYS[1] window key; ARGV: trim threshold, limit, score, member, ttl ms.
var admitScript = redis.NewScript(`
redis.call('ZREMRANGEBYSCORE', KEYS[1], '-inf', ARGV[1])
local count = redis.call('ZCARD', KEYS[1])
local admitted = 0
if count < tonumber(ARGV[2]) then
	redis.call('ZADD', KEYS[1], ARGV[3], ARGV[4])
	count = count + 1
	admitted = 1
end
local ttl = tonumber(ARGV[5])
if ttl > 0 and count > 0 then
	redis.call('PEXPIRE', KEYS[1], ttl)
end
local oldest = redis.call('ZRANGE', KEYS[1], 0, 0, 'WITHSCORES')
local oldestScore = ''
if oldest[2] then
	oldestScore = oldest[2]
end
return {admitted, count, oldestScore}
`)

// SlidingWindowConfig defines configuration for the sliding window store.
type SlidingWindowConfig struct {
	KeyPrefix string
	// TTL bounds how long an idle key survives; it should be at least the longest window.
	TTL time.Duration
}

// RateLimitRepository keeps attempt timestamps in one sorted set per identifier,
// scored by unix milliseconds.
type RateLimitRepository struct {
	client redis.Cmdable
	cfg    SlidingWindowConfig
}

// NewRateLimitRepository constructs a repository using the provided Redis client and config.
func NewRateLimitRepository(client redis.Cmdable, cfg SlidingWindowConfig) *RateLimitRepository {
	return &RateLimitRepository{client: client, cfg: cfg}
}

// Admit runs the window check and the record as one Lua script, so parallel
// attempts from one identifier serialize inside Redis. Members carry a random
// suffix so attempts in the same millisecond are kept apart.
func (r *RateLimitRepository) Admit(ctx context.Context, identifier string, limit int, window time.Duration, reference time.Time) (port.WindowState, error) {
	if window <= 0 {
		return port.WindowState{}, errInvalidWindow
	}
	if limit <= 0 {
		return port.WindowState{}, errInvalidLimit
	}

	score := reference.UnixMilli()
	res, err := admitScript.Run(ctx, r.client, []string{r.key(identifier)},
		reference.Add(-window).UnixMilli(),
		limit,
		score,
		strconv.FormatInt(score, 10)+"-"+uuid.NewString(),
		r.cfg.TTL.Milliseconds(),
	).Slice()
	if err != nil {
		return port.WindowState{}, fmt.Errorf("redis admit attempt: %w", err)
	}

	return parseAdmitResult(res)
}

func parseAdmitResult(res []interface{}) (port.WindowState, error) {
	if len(res) != 3 {
		return port.WindowState{}, fmt.Errorf("redis admit attempt: unexpected reply of length %d", len(res))
	}
	admitted, ok := res[0].(int64)
	if !ok {
		return port.WindowState{}, fmt.Errorf("redis admit attempt: unexpected admitted value %v", res[0])
	}
	count, ok := res[1].(int64)
	if !ok {
		return port.WindowState{}, fmt.Errorf("redis admit attempt: unexpected count value %v", res[1])
	}

	state := port.WindowState{Admitted: admitted == 1, Count: int(count)}
	if raw, _ := res[2].(string); raw != "" {
		ms, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return port.WindowState{}, fmt.Errorf("redis admit attempt: parse oldest score: %w", err)
		}
		state.Oldest = time.UnixMilli(int64(ms)).UTC()
		state.HasOldest = true
	}
	return state, nil
}

func (r *RateLimitRepository) key(identifier string) string {
	if r.cfg.KeyPrefix == "" {
		return identifier
	}
	return fmt.Sprintf("%s:%s", r.cfg.KeyPrefix, identifier)
}

var _ port.RateLimitStore = (*RateLimitRepository)(nil)
