package session

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	re "github.com/redis/go-redis/v9"
)

type redis struct {
	redis *re.Client
	ttl   time.Duration
}

// NewRedis stores bindings as plain keys with a TTL. Key namespacing is left
// to the client's hooks.
func NewRedis(client *re.Client, ttl time.Duration) Binder {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &redis{redis: client, ttl: ttl}
}

func (r *redis) Bind(ctx context.Context, callSid string, respondentID int64) error {
	k := key(callSid)
	for attempt := 0; attempt < 2; attempt++ {
		set, err := r.redis.SetNX(ctx, k, respondentID, r.ttl).Result()
		if err != nil {
			return err
		}
		if set {
			return nil
		}

		current, err := r.redis.Get(ctx, k).Int64()
		if errors.Is(err, re.Nil) {
			// Expired between SETNX and GET.
			continue
		} else if err != nil {
			return err
		}
		if current != respondentID {
			return fmt.Errorf("%w: %s is bound to %d", ErrConflict, callSid, current)
		}
		return r.redis.Expire(ctx, k, r.ttl).Err()
	}
	return fmt.Errorf("bind %s: key kept expiring", callSid)
}

func (r *redis) Rebind(ctx context.Context, callSid string, respondentID int64) error {
	return r.redis.Set(ctx, key(callSid), respondentID, r.ttl).Err()
}

func (r *redis) Resolve(ctx context.Context, callSid string) (int64, bool, error) {
	k := key(callSid)
	val, err := r.redis.Get(ctx, k).Result()
	if errors.Is(err, re.Nil) {
		return 0, false, nil
	} else if err != nil {
		return 0, false, err
	}
	id, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return 0, false, fmt.Errorf("corrupt binding for %s: %w", callSid, err)
	}
	if err := r.redis.Expire(ctx, k, r.ttl).Err(); err != nil {
		return 0, false, err
	}
	return id, true, nil
}

func (r *redis) Forget(ctx context.Context, callSid string) error {
	return r.redis.Del(ctx, key(callSid)).Err()
}

func (r *redis) Ping(ctx context.Context) error {
	return r.redis.Ping(ctx).Err()
}
