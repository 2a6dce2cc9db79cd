package overlay

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/hanko-field/cms/internal/domain"
)

const defaultLedgerPrefix = "cms:dismissed:"

// RedisLedger stores one sorted set per visitor: members are overlay ids, scores are
// cooldown expiry in unix milliseconds.
type RedisLedger struct {
	client redis.UniversalClient
	prefix string
}

// NewRedisLedger wraps a go-redis client.
func NewRedisLedger(client redis.UniversalClient) (*RedisLedger, error) {
	if client == nil {
		return nil, errors.New("overlay: redis client is required")
	}
	return &RedisLedger{client: client, prefix: defaultLedgerPrefix}, nil
}

func (l *RedisLedger) key(visitorID string) string {
	return l.prefix + visitorID
}

func (l *RedisLedger) Dismiss(ctx context.Context, visitorID string, overlay domain.Overlay, now time.Time) error {
	cooldown := overlay.Cooldown()
	if cooldown <= 0 || visitorID == "" {
		return nil
	}
	key := l.key(visitorID)
	expiry := now.Add(cooldown)

	_, err := l.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.ZAdd(ctx, key, redis.Z{Score: float64(expiry.UnixMilli()), Member: overlay.ID})
		pipe.ZRemRangeByScore(ctx, key, "-inf", "("+strconv.FormatInt(now.UnixMilli(), 10))
		return nil
	})
	if err != nil {
		return fmt.Errorf("overlay: record dismissal: %w", err)
	}

	// The set lives as long as its furthest cooldown.
	latest, err := l.client.ZRevRangeWithScores(ctx, key, 0, 0).Result()
	if err != nil {
		return fmt.Errorf("overlay: read dismissal expiry: %w", err)
	}
	if len(latest) == 1 {
		until := time.UnixMilli(int64(latest[0].Score)).Add(time.Minute)
		if err := l.client.PExpireAt(ctx, key, until).Err(); err != nil {
			return fmt.Errorf("overlay: expire dismissals: %w", err)
		}
	}
	return nil
}

func (l *RedisLedger) Dismissed(ctx context.Context, visitorID string, now time.Time) (Dismissed, error) {
	if visitorID == "" {
		return Dismissed{}, nil
	}
	ids, err := l.client.ZRangeByScore(ctx, l.key(visitorID), &redis.ZRangeBy{
		Min: strconv.FormatInt(now.UnixMilli(), 10),
		Max: "+inf",
	}).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("overlay: load dismissals: %w", err)
	}
	return NewDismissed(ids...), nil
}

// Ping checks the connection for readiness probes.
func (l *RedisLedger) Ping(ctx context.Context) error {
	return l.client.Ping(ctx).Err()
}
