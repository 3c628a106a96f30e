package stats

import (
	"context"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// Redis records decisions as hash counters: one cumulative total hash and one
// hash per key with "allowed"/"denied" fields. Per-key hashes expire so
// abandoned keys do not leak Redis memory; the total is cumulative and never
// expires.
type Redis struct {
	rdb     *redis.Client
	prefix  string
	ttl     time.Duration
	timeout time.Duration
}

type RedisOption func(*Redis)

// WithPrefix sets the key prefix (default "quotagate:stats").
func WithPrefix(prefix string) RedisOption {
	return func(r *Redis) { r.prefix = strings.Trim(prefix, ":") }
}

// WithTTL sets the expiry applied to per-key hashes (default 24h).
func WithTTL(d time.Duration) RedisOption {
	return func(r *Redis) { r.ttl = d }
}

// WithTimeout bounds each Record's Redis round trip (default 2s).
func WithTimeout(d time.Duration) RedisOption {
	return func(r *Redis) { r.timeout = d }
}

func NewRedis(rdb *redis.Client, opts ...RedisOption) *Redis {
	r := &Redis{
		rdb:     rdb,
		prefix:  "quotagate:stats",
		ttl:     24 * time.Hour,
		timeout: 2 * time.Second,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Redis) Record(ctx context.Context, ev Event) error {
	if r == nil || r.rdb == nil {
		return nil
	}
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	field := "denied"
	if ev.Allowed {
		field = "allowed"
	}

	pipe := r.rdb.Pipeline()
	pipe.HIncrBy(ctx, r.prefix+":total", field, 1)
	if k := strings.TrimSpace(ev.Key); k != "" {
		keyHash := r.prefix + ":key:" + k
		pipe.HIncrBy(ctx, keyHash, field, 1)
		if r.ttl > 0 {
			pipe.Expire(ctx, keyHash, r.ttl)
		}
	}
	_, err := pipe.Exec(ctx)
	return err
}
