package kafka

import (
	"context"

	wbkafka "github.com/wb-go/wbf/kafka"
	"github.com/wb-go/wbf/retry"
)

type messageSink interface {
	SendWithRetry(ctx context.Context, strategy retry.Strategy, key, value []byte) error
	Close() error
}

type producerFactory func(brokers []string, topic string) messageSink

func newProducer(brokers []string, topic string) messageSink {
	return wbkafka.NewProducer(brokers, topic)
}

// producer must be called with q.mu held. Queues map 1:1 to topics and their
// producers are created on first use.
func (q *Queue) producer(queueName string) messageSink {
	p, ok := q.producers[queueName]
	if !ok {
		p = q.newProducer(q.brokers, queueName)
		q.producers[queueName] = p
	}
	return p
}
