package denylist

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "accounts:denylist"

// Redis is a denylist shared by every instance talking to the same server.
type Redis struct {
	client redis.Cmdable
	prefix string
	now    func() time.Time
}

// RedisOptions configures NewRedisClient.
type RedisOptions struct {
	Addr     string
	Password string
	DB       int
}

// NewRedisClient builds a go-redis client from options.
func NewRedisClient(opts RedisOptions) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})
}

// NewRedis wraps client. prefix namespaces the keys; empty uses the default.
func NewRedis(client redis.Cmdable, prefix string) *Redis {
	if prefix == "" {
		prefix = redisKeyPrefix
	}
	return &Redis{
		client: client,
		prefix: prefix,
		now:    time.Now,
	}
}

func (r *Redis) key(jti string) string {
	return r.prefix + ":" + jti
}

// Add stores jti with a TTL matching the token's remaining life.
func (r *Redis) Add(ctx context.Context, jti string, until time.Time) error {
	ttl := until.Sub(r.now())
	if jti == "" || ttl <= 0 {
		return nil
	}
	if err := r.client.Set(ctx, r.key(jti), 1, ttl).Err(); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "denylist redis set failed")
	}
	return nil
}

// Contains reports whether jti is present.
func (r *Redis) Contains(ctx context.Context, jti string) (bool, error) {
	n, err := r.client.Exists(ctx, r.key(jti)).Result()
	if err != nil {
		return false, goerrors.Wrap(err, goerrors.CategoryInternal, "denylist redis lookup failed")
	}
	return n > 0, nil
}
