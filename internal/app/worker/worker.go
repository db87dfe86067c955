package worker

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"thumbnail-service/internal/app"
	"thumbnail-service/internal/config"
	"thumbnail-service/internal/worker"

	"github.com/wb-go/wbf/zlog"
)

var ErrInProcessDrivers = errors.New("standalone worker needs the postgres store and the kafka queue")

// Worker is the standalone worker process: recovery scan, then the pool.
type Worker struct {
	cfg        *config.Config
	logger     *zlog.Zerolog
	components *app.Components
	pool       *worker.Worker
}

func NewWorker(cfg *config.Config, logger *zlog.Zerolog) (*Worker, error) {
	if cfg.DB.Driver == "memory" || cfg.Queue.Driver == "memory" {
		return nil, ErrInProcessDrivers
	}

	components := app.NewComponents(cfg, logger)

	pool, err := components.NewWorker(context.Background())
	if err != nil {
		if closeErr := components.Close(); closeErr != nil {
			logger.Error().Err(closeErr).Msg("Failed to release resources")
		}
		return nil, fmt.Errorf("failed to init worker: %w", err)
	}

	return &Worker{
		cfg:        cfg,
		logger:     logger,
		components: components,
		pool:       pool,
	}, nil
}

func (w *Worker) Run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

		select {
		case sig := <-sigChan:
			w.logger.Info().Str("signal", sig.String()).Msg("Received signal, shutting down")
			cancel()
		case <-ctx.Done():
		}
	}()

	err := w.pool.Run(ctx)

	if closeErr := w.components.Close(); closeErr != nil {
		w.logger.Error().Err(closeErr).Msg("Failed to release resources")
	}

	return err
}
