package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"thumbnail-service/internal/domain"
	"thumbnail-service/internal/queue"

	"github.com/wb-go/wbf/zlog"
	"golang.org/x/sync/errgroup"
)

const DefaultConcurrency = 5

// Worker is a fixed-size pool of slots, each processing one delivery at a time.
type Worker struct {
	queue       workConsumer
	queueName   string
	processor   *JobProcessor
	recovery    *RecoveryScanner
	concurrency int
	logger      *zlog.Zerolog
}

func NewWorker(q workConsumer, queueName string, processor *JobProcessor, recovery *RecoveryScanner, concurrency int, logger *zlog.Zerolog) *Worker {
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}
	return &Worker{
		queue:       q,
		queueName:   queueName,
		processor:   processor,
		recovery:    recovery,
		concurrency: concurrency,
		logger:      logger,
	}
}

// Run runs the recovery scan once and then consumes until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	if w.recovery != nil {
		if _, err := w.recovery.Scan(ctx); err != nil {
			w.logger.Error().Err(err).Msg("Recovery scan failed, starting anyway")
		}
	}

	w.logger.Info().
		Str("queue", w.queueName).
		Int("concurrency", w.concurrency).
		Msg("Starting worker")

	deliveries := make(chan *queue.Delivery)
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		err := w.queue.Consume(gctx, w.queueName, deliveries)
		if err == nil && gctx.Err() == nil {
			return errConsumerStopped
		}
		return err
	})

	for i := 0; i < w.concurrency; i++ {
		workerID := i
		g.Go(func() error {
			w.loop(gctx, workerID, deliveries)
			return nil
		})
	}

	err := g.Wait()
	w.logger.Info().Msg("Worker stopped")
	if err != nil && ctx.Err() == nil {
		return err
	}
	return nil
}

func (w *Worker) loop(ctx context.Context, workerID int, deliveries <-chan *queue.Delivery) {
	w.logger.Debug().Int("worker_id", workerID).Msg("Worker slot started")
	for {
		select {
		case <-ctx.Done():
			w.logger.Debug().Int("worker_id", workerID).Msg("Worker slot stopping")
			return
		case d := <-deliveries:
			w.handle(ctx, workerID, d)
		}
	}
}

func (w *Worker) handle(ctx context.Context, workerID int, d *queue.Delivery) {
	start := time.Now()
	logger := w.logger.With().
		Int("worker_id", workerID).
		Str("work_item_id", d.ID).
		Int("attempt", d.Attempt).
		Logger()

	// Settling must survive shutdown of the pool.
	settleCtx := context.WithoutCancel(ctx)

	var item domain.WorkItem
	if err := json.Unmarshal(d.Payload, &item); err != nil || item.JobID == "" {
		logger.Error().Err(err).Msg("Failed to decode work item")
		w.settle(settleCtx, logger, d, queue.Permanent(fmt.Errorf("%w: %v", ErrInvalidWorkItem, err)))
		return
	}

	err := w.processor.Process(ctx, item)
	if errors.Is(err, ErrInterrupted) {
		return
	}
	w.settle(settleCtx, logger, d, err)

	logger.Debug().
		Str("job_id", item.JobID).
		Dur("duration", time.Since(start)).
		Msg("Work item handled")
}

func (w *Worker) settle(ctx context.Context, logger zlog.Zerolog, d *queue.Delivery, procErr error) {
	var err error
	if procErr == nil {
		err = d.Ack(ctx)
	} else {
		err = d.Nack(ctx, procErr)
	}
	if err != nil {
		logger.Error().Err(err).Msg("Failed to settle work item")
	}
}
