package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"

	"thumbnail-service/internal/config"
	"thumbnail-service/internal/domain"
	"thumbnail-service/internal/queue"
	kafka_queue "thumbnail-service/internal/queue/kafka"
	memory_queue "thumbnail-service/internal/queue/memory"
	minio_repo "thumbnail-service/internal/repository/file/cloud/minio"
	local_repo "thumbnail-service/internal/repository/file/local"
	repoJob "thumbnail-service/internal/repository/job"
	postgres_repo "thumbnail-service/internal/repository/job/db/postgres"
	memory_repo "thumbnail-service/internal/repository/job/memory"
	"thumbnail-service/internal/usecase/processor"
	"thumbnail-service/internal/worker"

	"github.com/wb-go/wbf/dbpg"
	"github.com/wb-go/wbf/zlog"
)

type jobStore interface {
	Create(ctx context.Context, j *domain.ImageJob) error
	GetByID(ctx context.Context, id string) (*domain.ImageJob, error)
	List(ctx context.Context, filter repoJob.Filter, limit, offset int) ([]domain.ImageJob, error)
	Count(ctx context.Context, filter repoJob.Filter) (int, error)
	ListByStatus(ctx context.Context, status domain.JobStatus) ([]domain.ImageJob, error)
	Checkpoint(ctx context.Context, id string, progress int) error
	Complete(ctx context.Context, id, resultURL string) error
	Fail(ctx context.Context, id, message string) error
}

type workQueue interface {
	Submit(ctx context.Context, queueName string, payload []byte, opts queue.SubmitOptions) (string, error)
	Status(ctx context.Context, queueName, itemID string) (queue.State, error)
	Consume(ctx context.Context, queueName string, out chan<- *queue.Delivery) error
	Close() error
}

type resultStorage interface {
	Upload(ctx context.Context, srcPath, key string) (string, error)
}

// Components are the collaborators shared by the API server and the worker
// pool of one process. Each one is built on first use and released by Close.
type Components struct {
	cfg    *config.Config
	logger *zlog.Zerolog

	storeOnce sync.Once
	store     jobStore
	db        *dbpg.DB
	storeErr  error

	queueOnce sync.Once
	queue     workQueue
	queueErr  error

	uploadsOnce sync.Once
	uploads     *local_repo.FileRepository
	uploadsErr  error

	resultsOnce sync.Once
	results     resultStorage
	resultsErr  error
}

func NewComponents(cfg *config.Config, logger *zlog.Zerolog) *Components {
	return &Components{cfg: cfg, logger: logger}
}

func (c *Components) Store() (jobStore, error) {
	c.storeOnce.Do(func() {
		c.store, c.storeErr = c.openStore()
	})
	return c.store, c.storeErr
}

func (c *Components) openStore() (jobStore, error) {
	if c.cfg.DB.Driver == "memory" {
		c.logger.Warn().Msg("Using in-memory job store, jobs are lost on restart")
		return memory_repo.NewJobsRepository(), nil
	}

	dbOpts := &dbpg.Options{
		MaxOpenConns:    c.cfg.DB.MaxOpenConns,
		MaxIdleConns:    c.cfg.DB.MaxIdleConns,
		ConnMaxLifetime: c.cfg.DB.ConnMaxLifetime,
	}

	db, err := dbpg.New(c.cfg.DBDSN(), []string{}, dbOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	c.db = db

	if err := postgres_repo.Migrate(db); err != nil {
		return nil, err
	}

	return postgres_repo.NewJobsRepository(db, c.cfg.DefaultRetryStrategy()), nil
}

func (c *Components) Queue(ctx context.Context) (workQueue, error) {
	c.queueOnce.Do(func() {
		c.queue, c.queueErr = c.openQueue(ctx)
	})
	return c.queue, c.queueErr
}

func (c *Components) openQueue(ctx context.Context) (workQueue, error) {
	if c.cfg.Queue.Driver == "memory" {
		return memory_queue.New(c.cfg.DefaultRetryStrategy(), c.cfg.Queue.Buffer), nil
	}

	reg, err := kafka_queue.NewRedisRegistry(ctx, c.cfg.Redis.Addr, c.cfg.Redis.Password, c.cfg.Redis.DB, c.cfg.Queue.LockTTL)
	if err != nil {
		return nil, err
	}

	return kafka_queue.NewQueue(c.cfg, reg, c.logger), nil
}

// Uploads is the local store for original images. The local storage driver
// also writes results there.
func (c *Components) Uploads() (*local_repo.FileRepository, error) {
	c.uploadsOnce.Do(func() {
		c.uploads, c.uploadsErr = local_repo.NewFileRepository(c.cfg.Storage.UploadsDir, c.cfg.PublicBaseURL())
	})
	return c.uploads, c.uploadsErr
}

func (c *Components) Results(ctx context.Context) (resultStorage, error) {
	c.resultsOnce.Do(func() {
		c.results, c.resultsErr = c.openResults(ctx)
	})
	return c.results, c.resultsErr
}

func (c *Components) openResults(ctx context.Context) (resultStorage, error) {
	if c.cfg.Storage.Driver != "minio" {
		uploads, err := c.Uploads()
		if err != nil {
			return nil, err
		}
		return uploads, nil
	}

	client, err := minio_repo.NewClient(c.cfg.Storage.MinIO)
	if err != nil {
		return nil, err
	}

	results, err := minio_repo.NewMinIORepository(ctx, client, c.cfg.Storage.MinIO, c.cfg.Storage.PublicBaseURL, c.cfg.DefaultRetryStrategy())
	if err != nil {
		return nil, err
	}
	return results, nil
}

// NewWorker assembles the worker pool with its recovery scanner.
func (c *Components) NewWorker(ctx context.Context) (*worker.Worker, error) {
	store, err := c.Store()
	if err != nil {
		return nil, err
	}
	q, err := c.Queue(ctx)
	if err != nil {
		return nil, err
	}
	results, err := c.Results(ctx)
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(c.cfg.Storage.TempDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create temp dir: %w", err)
	}

	jobProcessor := worker.NewJobProcessor(
		store,
		processor.NewImageProcessor(c.cfg.Thumbnail, c.logger),
		results,
		c.cfg.Storage.TempDir,
		c.logger,
	)
	recovery := worker.NewRecoveryScanner(store, q, c.cfg.Queue.Name, c.logger)

	return worker.NewWorker(q, c.cfg.Queue.Name, jobProcessor, recovery, c.cfg.Worker.Concurrency, c.logger), nil
}

// InProcessOnly reports whether a driver is configured that cannot be shared
// between processes.
func (c *Components) InProcessOnly() bool {
	return c.cfg.DB.Driver == "memory" || c.cfg.Queue.Driver == "memory"
}

// Close releases whatever has been opened so far.
func (c *Components) Close() error {
	var errs []error

	if c.queue != nil {
		if err := c.queue.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close queue: %w", err))
		}
	}

	if c.db != nil && c.db.Master != nil {
		if err := c.db.Master.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close database: %w", err))
		}
	}

	return errors.Join(errs...)
}
