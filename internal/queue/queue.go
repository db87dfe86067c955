package queue

import (
	"context"
	"errors"
	"math"
	"sync"
	"time"

	"github.com/wb-go/wbf/retry"
)

var (
	ErrDuplicate   = errors.New("work item with this idempotency key is still pending")
	ErrClosed      = errors.New("queue is closed")
	ErrSettled     = errors.New("delivery already settled")
	ErrEmptyQueue  = errors.New("queue name is required")
	ErrItemUnknown = errors.New("work item not found")
)

// State is the queue-native state of a work item.
type State string

const (
	StateWaiting   State = "waiting"
	StateActive    State = "active"
	StateDelayed   State = "delayed"
	StateCompleted State = "completed"
	StateFailed    State = "failed"
	StateUnknown   State = "unknown"
)

// IsPending reports whether the item still holds its idempotency key.
func (s State) IsPending() bool {
	return s == StateWaiting || s == StateActive || s == StateDelayed
}

type SubmitOptions struct {
	// IdempotencyKey becomes the work item id. A submission whose key belongs
	// to a pending item is rejected with ErrDuplicate.
	IdempotencyKey string
}

type Item struct {
	ID      string
	Queue   string
	Payload []byte
	Attempt int
}

// Delivery is one attempt at a work item, lent to a consumer until it is
// settled with Ack or Nack.
type Delivery struct {
	Item

	once   sync.Once
	settle func(ctx context.Context, procErr error) error
}

func NewDelivery(item Item, settle func(ctx context.Context, procErr error) error) *Delivery {
	return &Delivery{Item: item, settle: settle}
}

func (d *Delivery) Ack(ctx context.Context) error {
	return d.finish(ctx, nil)
}

// Nack reports a failed attempt. The queue redelivers the item later unless
// err is permanent or the attempt budget is spent.
func (d *Delivery) Nack(ctx context.Context, err error) error {
	if err == nil {
		err = errors.New("unspecified failure")
	}
	return d.finish(ctx, err)
}

func (d *Delivery) finish(ctx context.Context, procErr error) error {
	settled := ErrSettled
	d.once.Do(func() {
		settled = d.settle(ctx, procErr)
	})
	return settled
}

type Producer interface {
	Submit(ctx context.Context, queueName string, payload []byte, opts SubmitOptions) (string, error)
	Status(ctx context.Context, queueName, itemID string) (State, error)
}

type Consumer interface {
	// Consume feeds deliveries of queueName into out until ctx is done.
	Consume(ctx context.Context, queueName string, out chan<- *Delivery) error
}

type Queue interface {
	Producer
	Consumer
	Close() error
}

type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err as not worth redelivering.
func Permanent(err error) error {
	if err == nil || IsPermanent(err) {
		return err
	}
	return &permanentError{err: err}
}

func IsPermanent(err error) bool {
	var pe *permanentError
	return errors.As(err, &pe)
}

// ShouldRetry decides whether a failed attempt gets redelivered.
func ShouldRetry(strategy retry.Strategy, attempt int, err error) bool {
	if err == nil || IsPermanent(err) {
		return false
	}
	return attempt < strategy.Attempts
}

// RetryDelay is the wait before redelivering after the given failed attempt:
// Delay * Backoff^(attempt-1).
func RetryDelay(strategy retry.Strategy, attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	backoff := strategy.Backoff
	if backoff < 1 {
		backoff = 1
	}
	return time.Duration(float64(strategy.Delay) * math.Pow(backoff, float64(attempt-1)))
}
