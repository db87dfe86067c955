package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"thumbnail-service/internal/config"
	job_h "thumbnail-service/internal/http-server/handler/job"
	"thumbnail-service/internal/http-server/router"
	job_uc "thumbnail-service/internal/usecase/job"
	"thumbnail-service/internal/worker"

	"github.com/wb-go/wbf/zlog"
	"golang.org/x/sync/errgroup"
)

// ErrDetachedWorker is returned when in-process drivers are configured without
// the embedded worker. No other process could ever pick the jobs up.
var ErrDetachedWorker = errors.New("in-memory store or queue requires the embedded worker")

type App struct {
	cfg        *config.Config
	server     *http.Server
	logger     *zlog.Zerolog
	components *Components
	worker     *worker.Worker
}

func NewApp(cfg *config.Config, logger *zlog.Zerolog) (*App, error) {
	ctx := context.Background()
	components := NewComponents(cfg, logger)

	a, err := newApp(ctx, cfg, components, logger)
	if err != nil {
		if closeErr := components.Close(); closeErr != nil {
			logger.Error().Err(closeErr).Msg("Failed to release resources")
		}
		return nil, err
	}

	return a, nil
}

func newApp(ctx context.Context, cfg *config.Config, components *Components, logger *zlog.Zerolog) (*App, error) {
	if components.InProcessOnly() && !cfg.Worker.Embedded {
		return nil, ErrDetachedWorker
	}

	store, err := components.Store()
	if err != nil {
		return nil, fmt.Errorf("failed to init job store: %w", err)
	}

	q, err := components.Queue(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to init work queue: %w", err)
	}

	uploads, err := components.Uploads()
	if err != nil {
		return nil, fmt.Errorf("failed to init upload storage: %w", err)
	}

	jobUsecase := job_uc.NewJobUsecase(store, q, cfg.Queue.Name, logger)

	jobHandler := job_h.NewJobHandler(jobUsecase, uploads, cfg.Upload, logger)

	h := &router.Handler{
		JobHandler: jobHandler,
		Logger:     logger,
	}
	if cfg.Storage.Driver == "local" {
		h.UploadsDir = uploads.Root()
	}

	mux := router.SetupRouter(h)

	server := &http.Server{
		Addr:         ":" + cfg.Server.Addr,
		Handler:      mux,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	a := &App{
		cfg:        cfg,
		server:     server,
		logger:     logger,
		components: components,
	}

	if cfg.Worker.Embedded {
		a.worker, err = components.NewWorker(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to init embedded worker: %w", err)
		}
	}

	return a, nil
}

func (a *App) Run() error {
	a.logger.Info().
		Str("addr", a.cfg.Server.Addr).
		Bool("embedded_worker", a.worker != nil).
		Msg("Starting server")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go handleSignals(a.logger, cancel)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error().Err(err).Msg("Server error")
			return err
		}
		return nil
	})

	if a.worker != nil {
		g.Go(func() error {
			return a.worker.Run(gctx)
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		a.logger.Info().Msg("Shutting down server")

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
		defer shutdownCancel()

		if err := a.server.Shutdown(shutdownCtx); err != nil {
			a.logger.Error().Err(err).Msg("Server shutdown failed")
		}
		return nil
	})

	err := g.Wait()

	if closeErr := a.components.Close(); closeErr != nil {
		a.logger.Error().Err(closeErr).Msg("Failed to release resources")
	}

	if err != nil {
		return err
	}

	a.logger.Info().Msg("Server stopped gracefully")
	return nil
}

func handleSignals(logger *zlog.Zerolog, cancel context.CancelFunc) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigChan
	logger.Info().Str("signal", sig.String()).Msg("Received signal")
	cancel()
}
