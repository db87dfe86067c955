package kafka

import (
	"context"
	"errors"
	"fmt"
	"time"

	"thumbnail-service/internal/queue"

	"github.com/go-redis/redis/v8"
)

const itemRetention = 24 * time.Hour

// registry tracks work item state next to the Kafka log, which has no notion
// of per-message status, and holds the idempotency locks.
type registry interface {
	Acquire(ctx context.Context, queueName, id string) (bool, error)
	SetState(ctx context.Context, queueName, id string, state queue.State) error
	State(ctx context.Context, queueName, id string) (queue.State, error)
	Release(ctx context.Context, queueName, id string) error
	Close() error
}

type RedisRegistry struct {
	client  *redis.Client
	lockTTL time.Duration
}

func NewRedisRegistry(ctx context.Context, addr, password string, db int, lockTTL time.Duration) (*RedisRegistry, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &RedisRegistry{client: client, lockTTL: lockTTL}, nil
}

func lockKey(queueName, id string) string {
	return fmt.Sprintf("queue:%s:lock:%s", queueName, id)
}

func stateKey(queueName, id string) string {
	return fmt.Sprintf("queue:%s:item:%s", queueName, id)
}

// Acquire takes the idempotency lock of an item. The lock expires after the
// lock TTL so an item stalled in a dead consumer does not block resubmission
// forever.
func (r *RedisRegistry) Acquire(ctx context.Context, queueName, id string) (bool, error) {
	ok, err := r.client.SetNX(ctx, lockKey(queueName, id), time.Now().UTC().Format(time.RFC3339), r.lockTTL).Result()
	if err != nil {
		return false, fmt.Errorf("failed to acquire item lock: %w", err)
	}
	return ok, nil
}

func (r *RedisRegistry) SetState(ctx context.Context, queueName, id string, state queue.State) error {
	key := stateKey(queueName, id)

	pipe := r.client.TxPipeline()
	pipe.HSet(ctx, key, "state", string(state), "updated_at", time.Now().UTC().Format(time.RFC3339Nano))
	pipe.Expire(ctx, key, itemRetention)
	if state.IsPending() {
		pipe.Expire(ctx, lockKey(queueName, id), r.lockTTL)
	} else {
		pipe.Del(ctx, lockKey(queueName, id))
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to set item state: %w", err)
	}
	return nil
}

func (r *RedisRegistry) State(ctx context.Context, queueName, id string) (queue.State, error) {
	state, err := r.client.HGet(ctx, stateKey(queueName, id), "state").Result()
	if errors.Is(err, redis.Nil) {
		return queue.StateUnknown, nil
	}
	if err != nil {
		return queue.StateUnknown, fmt.Errorf("failed to get item state: %w", err)
	}
	return queue.State(state), nil
}

func (r *RedisRegistry) Release(ctx context.Context, queueName, id string) error {
	if err := r.client.Del(ctx, lockKey(queueName, id), stateKey(queueName, id)).Err(); err != nil {
		return fmt.Errorf("failed to release item: %w", err)
	}
	return nil
}

func (r *RedisRegistry) Close() error {
	return r.client.Close()
}
