//go:generate mockgen -source ./cache.go -destination=./mocks/cache.go -package=mock_cache
package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/rotacerta/ekspedisi/internal/logger"
)

// TrackingCache holds the rendered public tracking response per tracking
// code.
//
// Every code carries a version that Invalidate bumps. Readers take the
// version from Get before loading the shipment and hand it back to Set, which
// drops the payload when an invalidation happened in between. A response
// rendered from a row that a writer has since replaced never outlives that
// writer's invalidation.
type TrackingCache interface {
	Get(ctx context.Context, code string) (Entry, error)
	Set(ctx context.Context, code string, version int64, payload []byte) error
	Invalidate(ctx context.Context, codes ...string) error
	Close() error
}

type Entry struct {
	Payload []byte
	Hit     bool
	Version int64
}

func Key(code string) string {
	return "tracking:" + code
}

func VersionKey(code string) string {
	return "tracking:version:" + code
}

// version keys only need to outlive an in-flight lookup
const versionTTL = 24 * time.Hour

type redisCache struct {
	log *logger.Logger
	rdb *goredis.Client
	ttl time.Duration
}

// NewTrackingCache connects to redis, or returns a no-op cache when addr is
// empty.
func NewTrackingCache(log *logger.Logger, addr, password string, ttl time.Duration) (TrackingCache, error) {
	if addr == "" {
		log.Info("REDIS_ADDR not set, tracking cache disabled")
		return Nop{}, nil
	}
	rdb := goredis.NewClient(&goredis.Options{
		Addr:        addr,
		Password:    password,
		DialTimeout: 5 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &redisCache{
		log: log.With("service", "TrackingCache"),
		rdb: rdb,
		ttl: ttl,
	}, nil
}

func (c *redisCache) Get(ctx context.Context, code string) (Entry, error) {
	pipe := c.rdb.Pipeline()
	payload := pipe.Get(ctx, Key(code))
	version := pipe.Get(ctx, VersionKey(code))
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, goredis.Nil) {
		return Entry{}, err
	}

	var e Entry
	v, err := version.Int64()
	switch {
	case errors.Is(err, goredis.Nil):
	case err != nil:
		return Entry{}, fmt.Errorf("read version: %w", err)
	default:
		e.Version = v
	}
	raw, err := payload.Bytes()
	switch {
	case errors.Is(err, goredis.Nil):
	case err != nil:
		return Entry{}, err
	default:
		e.Payload, e.Hit = raw, true
	}
	return e, nil
}

// Set stores payload only while the code is still at version. A lost race is
// not an error; the next lookup renders again.
func (c *redisCache) Set(ctx context.Context, code string, version int64, payload []byte) error {
	vkey := VersionKey(code)
	err := c.rdb.Watch(ctx, func(tx *goredis.Tx) error {
		cur, err := tx.Get(ctx, vkey).Int64()
		if err != nil && !errors.Is(err, goredis.Nil) {
			return err
		}
		if cur != version {
			return errStale
		}
		_, err = tx.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
			pipe.Set(ctx, Key(code), payload, c.ttl)
			return nil
		})
		return err
	}, vkey)
	if errors.Is(err, errStale) || errors.Is(err, goredis.TxFailedErr) {
		c.log.Debug("Skipped stale tracking response", "tracking_code", code)
		return nil
	}
	return err
}

var errStale = errors.New("tracking version changed")

func (c *redisCache) Invalidate(ctx context.Context, codes ...string) error {
	if len(codes) == 0 {
		return nil
	}
	_, err := c.rdb.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		for _, code := range codes {
			pipe.Incr(ctx, VersionKey(code))
			pipe.Expire(ctx, VersionKey(code), versionTTL)
			pipe.Del(ctx, Key(code))
		}
		return nil
	})
	return err
}

func (c *redisCache) Close() error {
	return c.rdb.Close()
}

type Nop struct{}

func (Nop) Get(context.Context, string) (Entry, error)       { return Entry{}, nil }
func (Nop) Set(context.Context, string, int64, []byte) error { return nil }
func (Nop) Invalidate(context.Context, ...string) error      { return nil }
func (Nop) Close() error                                     { return nil }
