// Package kafka is the work queue driver for multi-process deployments: items
// travel through Kafka topics (one per queue) while their state and
// idempotency locks live in Redis.
package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"thumbnail-service/internal/config"
	"thumbnail-service/internal/queue"

	"github.com/google/uuid"
	"github.com/wb-go/wbf/retry"
	"github.com/wb-go/wbf/zlog"
)

// envelope is the Kafka message value. Attempt counts deliveries made so far.
// NotBefore (unix millis) holds back a redelivery until its backoff elapsed.
type envelope struct {
	ID        string `json:"id"`
	Queue     string `json:"queue"`
	Attempt   int    `json:"attempt"`
	NotBefore int64  `json:"notBefore,omitempty"`
	Payload   []byte `json:"payload"`
}

type Queue struct {
	mu          sync.Mutex
	brokers     []string
	groupID     string
	strategy    retry.Strategy
	registry    registry
	producers   map[string]messageSink
	newProducer producerFactory
	newConsumer consumerFactory
	logger      *zlog.Zerolog
	done        chan struct{}
	closed      bool
}

func NewQueue(cfg *config.Config, reg *RedisRegistry, logger *zlog.Zerolog) *Queue {
	return newQueue(cfg.Kafka.Brokers, cfg.Kafka.GroupID, cfg.DefaultRetryStrategy(), reg, newProducer, newConsumer, logger)
}

func newQueue(brokers []string, groupID string, strategy retry.Strategy, reg registry,
	producers producerFactory, consumers consumerFactory, logger *zlog.Zerolog) *Queue {
	return &Queue{
		brokers:     brokers,
		groupID:     groupID,
		strategy:    strategy,
		registry:    reg,
		producers:   make(map[string]messageSink),
		newProducer: producers,
		newConsumer: consumers,
		logger:      logger,
		done:        make(chan struct{}),
	}
}

func (q *Queue) Submit(ctx context.Context, queueName string, payload []byte, opts queue.SubmitOptions) (string, error) {
	if queueName == "" {
		return "", queue.ErrEmptyQueue
	}
	if q.isClosed() {
		return "", queue.ErrClosed
	}

	id := opts.IdempotencyKey
	if id == "" {
		id = uuid.New().String()
	}

	acquired, err := q.registry.Acquire(ctx, queueName, id)
	if err != nil {
		return "", err
	}
	if !acquired {
		return id, queue.ErrDuplicate
	}

	if err := q.registry.SetState(ctx, queueName, id, queue.StateWaiting); err != nil {
		q.release(ctx, queueName, id)
		return "", err
	}

	env := envelope{ID: id, Queue: queueName, Payload: payload}
	if err := q.publish(ctx, env); err != nil {
		q.release(ctx, queueName, id)
		return "", err
	}

	q.logger.Debug().Str("queue", queueName).Str("work_item_id", id).Msg("Work item submitted")
	return id, nil
}

func (q *Queue) publish(ctx context.Context, env envelope) error {
	value, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("failed to marshal work item: %w", err)
	}

	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return queue.ErrClosed
	}
	p := q.producer(env.Queue)
	q.mu.Unlock()

	if err := p.SendWithRetry(ctx, q.strategy, []byte(env.ID), value); err != nil {
		return fmt.Errorf("failed to publish work item: %w", err)
	}
	return nil
}

func (q *Queue) release(ctx context.Context, queueName, id string) {
	if err := q.registry.Release(ctx, queueName, id); err != nil {
		q.logger.Error().Err(err).Str("queue", queueName).Str("work_item_id", id).Msg("Failed to release work item")
	}
}

func (q *Queue) Status(ctx context.Context, queueName, itemID string) (queue.State, error) {
	return q.registry.State(ctx, queueName, itemID)
}

func (q *Queue) isClosed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed
}

func (q *Queue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return nil
	}
	q.closed = true
	close(q.done)

	var errs []error
	for _, p := range q.producers {
		if err := p.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if err := q.registry.Close(); err != nil {
		errs = append(errs, err)
	}

	return errors.Join(errs...)
}
