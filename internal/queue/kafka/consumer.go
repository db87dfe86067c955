package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"thumbnail-service/internal/queue"

	kafka "github.com/segmentio/kafka-go"
	wbkafka "github.com/wb-go/wbf/kafka"
	"github.com/wb-go/wbf/retry"
)

type messageSource interface {
	StartConsuming(ctx context.Context, out chan<- kafka.Message, strategy retry.Strategy)
	Commit(ctx context.Context, msg kafka.Message) error
	Close() error
}

type consumerFactory func(brokers []string, topic, groupID string) messageSource

func newConsumer(brokers []string, topic, groupID string) messageSource {
	return wbkafka.NewConsumer(brokers, topic, groupID)
}

// session is one Consume call: its consumer group member and commit order.
type session struct {
	source  messageSource
	offsets *offsetTracker
}

// Consume reads the queue's topic as part of the consumer group and hands out
// one delivery per message. Offsets are committed in order once deliveries are
// settled, so a message whose consumer died before settling is read again.
func (q *Queue) Consume(ctx context.Context, queueName string, out chan<- *queue.Delivery) error {
	if queueName == "" {
		return queue.ErrEmptyQueue
	}

	if q.isClosed() {
		return queue.ErrClosed
	}

	s := &session{
		source:  q.newConsumer(q.brokers, queueName, q.groupID),
		offsets: newOffsetTracker(),
	}
	defer func() {
		if err := s.source.Close(); err != nil {
			q.logger.Error().Err(err).Str("queue", queueName).Msg("Failed to close consumer")
		}
	}()

	// Held-back redeliveries must be gone before the source closes.
	var held sync.WaitGroup
	defer held.Wait()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	messages := make(chan kafka.Message)
	go s.source.StartConsuming(ctx, messages, q.strategy)

	q.logger.Info().Str("queue", queueName).Str("group", q.groupID).Msg("Consuming work items")

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-q.done:
			return nil
		case msg, ok := <-messages:
			if !ok {
				return nil
			}
			s.offsets.track(msg)

			d, notBefore := q.delivery(ctx, s, msg)
			if d == nil {
				continue
			}

			if wait := time.Until(notBefore); wait > 0 {
				held.Add(1)
				go func() {
					defer held.Done()
					if q.hold(ctx, wait) {
						q.handOut(ctx, d, out)
					}
				}()
				continue
			}

			if !q.handOut(ctx, d, out) {
				return nil
			}
		}
	}
}

func (q *Queue) delivery(ctx context.Context, s *session, msg kafka.Message) (*queue.Delivery, time.Time) {
	var env envelope
	if err := json.Unmarshal(msg.Value, &env); err != nil {
		q.logger.Error().Err(err).Int64("offset", msg.Offset).Msg("Failed to unmarshal work item, skipping")
		q.commit(ctx, s, msg)
		return nil, time.Time{}
	}

	state, err := q.registry.State(ctx, env.Queue, env.ID)
	if err != nil {
		q.logger.Warn().Err(err).Str("work_item_id", env.ID).Msg("Failed to read work item state")
	}
	if state == queue.StateCompleted || state == queue.StateFailed {
		q.logger.Info().
			Str("work_item_id", env.ID).
			Str("state", string(state)).
			Msg("Work item already settled, skipping redelivered message")
		q.commit(ctx, s, msg)
		return nil, time.Time{}
	}

	env.Attempt++
	item := queue.Item{
		ID:      env.ID,
		Queue:   env.Queue,
		Payload: env.Payload,
		Attempt: env.Attempt,
	}

	var notBefore time.Time
	if env.NotBefore > 0 {
		notBefore = time.UnixMilli(env.NotBefore)
	}

	return queue.NewDelivery(item, func(ctx context.Context, procErr error) error {
		return q.settle(ctx, s, msg, env, procErr)
	}), notBefore
}

// hold waits out a redelivery backoff. It reports false on shutdown, leaving
// the message uncommitted so the next consumer reads it again.
func (q *Queue) hold(ctx context.Context, wait time.Duration) bool {
	timer := time.NewTimer(wait)
	defer timer.Stop()

	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	case <-q.done:
		return false
	}
}

func (q *Queue) handOut(ctx context.Context, d *queue.Delivery, out chan<- *queue.Delivery) bool {
	if err := q.registry.SetState(ctx, d.Queue, d.ID, queue.StateActive); err != nil {
		q.logger.Warn().Err(err).Str("work_item_id", d.ID).Msg("Failed to mark work item active")
	}

	select {
	case out <- d:
		return true
	case <-ctx.Done():
		return false
	case <-q.done:
		return false
	}
}

// settle records the outcome of an attempt and commits its message. A retry is
// published to the topic before the commit, so the pending item never lives
// only in memory.
func (q *Queue) settle(ctx context.Context, s *session, msg kafka.Message, env envelope, procErr error) error {
	logger := q.logger.With().
		Str("queue", env.Queue).
		Str("work_item_id", env.ID).
		Int("attempt", env.Attempt).
		Logger()

	var errs []error

	switch {
	case procErr == nil:
		if err := q.registry.SetState(ctx, env.Queue, env.ID, queue.StateCompleted); err != nil {
			errs = append(errs, err)
		}
	case queue.ShouldRetry(q.strategy, env.Attempt, procErr):
		delay := queue.RetryDelay(q.strategy, env.Attempt)
		logger.Warn().Err(procErr).Dur("delay", delay).Msg("Work item failed, scheduling redelivery")

		if err := q.registry.SetState(ctx, env.Queue, env.ID, queue.StateDelayed); err != nil {
			errs = append(errs, err)
		}

		retryEnv := env
		retryEnv.NotBefore = time.Now().Add(delay).UnixMilli()
		if err := q.publish(ctx, retryEnv); err != nil {
			logger.Error().Err(err).Msg("Failed to publish redelivery, releasing work item")
			q.release(ctx, env.Queue, env.ID)
			errs = append(errs, err)
		}
	default:
		logger.Error().Err(procErr).Msg("Work item failed permanently")
		if err := q.registry.SetState(ctx, env.Queue, env.ID, queue.StateFailed); err != nil {
			errs = append(errs, err)
		}
	}

	if next, ok := s.offsets.settle(msg); ok {
		if err := s.source.Commit(ctx, next); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

func (q *Queue) commit(ctx context.Context, s *session, msg kafka.Message) {
	next, ok := s.offsets.settle(msg)
	if !ok {
		return
	}
	if err := s.source.Commit(ctx, next); err != nil {
		q.logger.Error().Err(err).Int64("offset", next.Offset).Msg("Failed to commit message")
	}
}
