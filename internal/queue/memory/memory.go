// Package memory is an in-process work queue for single-process deployments
// and tests. Items do not survive a restart.
package memory

import (
	"context"
	"sync"
	"time"

	"thumbnail-service/internal/queue"

	"github.com/google/uuid"
	"github.com/wb-go/wbf/retry"
)

type entry struct {
	item  queue.Item
	state queue.State
}

type Queue struct {
	mu       sync.Mutex
	channels map[string]chan string
	items    map[string]*entry
	strategy retry.Strategy
	buffer   int
	done     chan struct{}
	closed   bool
}

func New(strategy retry.Strategy, buffer int) *Queue {
	if buffer <= 0 {
		buffer = 1
	}
	return &Queue{
		channels: make(map[string]chan string),
		items:    make(map[string]*entry),
		strategy: strategy,
		buffer:   buffer,
		done:     make(chan struct{}),
	}
}

func itemKey(queueName, id string) string {
	return queueName + "/" + id
}

// channel must be called with q.mu held.
func (q *Queue) channel(queueName string) chan string {
	ch, ok := q.channels[queueName]
	if !ok {
		ch = make(chan string, q.buffer)
		q.channels[queueName] = ch
	}
	return ch
}

func (q *Queue) Submit(ctx context.Context, queueName string, payload []byte, opts queue.SubmitOptions) (string, error) {
	if queueName == "" {
		return "", queue.ErrEmptyQueue
	}

	id := opts.IdempotencyKey
	if id == "" {
		id = uuid.New().String()
	}
	key := itemKey(queueName, id)

	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return "", queue.ErrClosed
	}
	if existing, ok := q.items[key]; ok && existing.state.IsPending() {
		q.mu.Unlock()
		return id, queue.ErrDuplicate
	}

	e := &entry{
		item: queue.Item{
			ID:      id,
			Queue:   queueName,
			Payload: append([]byte(nil), payload...),
		},
		state: queue.StateWaiting,
	}
	q.items[key] = e
	ch := q.channel(queueName)
	q.mu.Unlock()

	select {
	case ch <- id:
		return id, nil
	case <-q.done:
		q.drop(key, e)
		return "", queue.ErrClosed
	case <-ctx.Done():
		q.drop(key, e)
		return "", ctx.Err()
	}
}

func (q *Queue) drop(key string, e *entry) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.items[key] == e {
		delete(q.items, key)
	}
}

func (q *Queue) Status(ctx context.Context, queueName, itemID string) (queue.State, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	e, ok := q.items[itemKey(queueName, itemID)]
	if !ok {
		return queue.StateUnknown, nil
	}
	return e.state, nil
}

// Consume blocks until ctx is cancelled or the queue is closed.
func (q *Queue) Consume(ctx context.Context, queueName string, out chan<- *queue.Delivery) error {
	if queueName == "" {
		return queue.ErrEmptyQueue
	}

	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return queue.ErrClosed
	}
	ch := q.channel(queueName)
	q.mu.Unlock()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-q.done:
			return nil
		case id := <-ch:
			d, ok := q.activate(queueName, id)
			if !ok {
				continue
			}
			select {
			case out <- d:
			case <-ctx.Done():
				q.release(queueName, id)
				return nil
			case <-q.done:
				return nil
			}
		}
	}
}

func (q *Queue) activate(queueName, id string) (*queue.Delivery, bool) {
	key := itemKey(queueName, id)

	q.mu.Lock()
	defer q.mu.Unlock()

	e, ok := q.items[key]
	if !ok || e.state != queue.StateWaiting {
		return nil, false
	}
	e.state = queue.StateActive
	e.item.Attempt++
	item := e.item

	return queue.NewDelivery(item, func(ctx context.Context, procErr error) error {
		return q.settle(key, e, procErr)
	}), true
}

// release puts an activated but undelivered item back in line.
func (q *Queue) release(queueName, id string) {
	key := itemKey(queueName, id)

	q.mu.Lock()
	e, ok := q.items[key]
	if !ok || e.state != queue.StateActive {
		q.mu.Unlock()
		return
	}
	e.state = queue.StateWaiting
	e.item.Attempt--
	ch := q.channel(queueName)
	q.mu.Unlock()

	go q.push(ch, id)
}

func (q *Queue) settle(key string, e *entry, procErr error) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.items[key] != e {
		return queue.ErrItemUnknown
	}

	switch {
	case procErr == nil:
		e.state = queue.StateCompleted
	case queue.ShouldRetry(q.strategy, e.item.Attempt, procErr):
		e.state = queue.StateDelayed
		delay := queue.RetryDelay(q.strategy, e.item.Attempt)
		ch := q.channel(e.item.Queue)
		id := e.item.ID
		time.AfterFunc(delay, func() {
			q.mu.Lock()
			if q.closed || q.items[key] != e || e.state != queue.StateDelayed {
				q.mu.Unlock()
				return
			}
			e.state = queue.StateWaiting
			q.mu.Unlock()
			q.push(ch, id)
		})
	default:
		e.state = queue.StateFailed
	}

	return nil
}

func (q *Queue) push(ch chan string, id string) {
	select {
	case ch <- id:
	case <-q.done:
	}
}

func (q *Queue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if !q.closed {
		q.closed = true
		close(q.done)
	}
	return nil
}
