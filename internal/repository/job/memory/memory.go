// Package memory keeps job records in process memory. It backs single-process
// deployments and tests; records do not survive a restart.
package memory

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"sort"
	"sync"
	"time"

	"thumbnail-service/internal/domain"
	"thumbnail-service/internal/repository/job"
)

type JobsRepository struct {
	mu   sync.RWMutex
	jobs map[string]*domain.ImageJob
	now  func() time.Time
}

func NewJobsRepository() *JobsRepository {
	return &JobsRepository{
		jobs: make(map[string]*domain.ImageJob),
		now:  func() time.Time { return time.Now().UTC() },
	}
}

func (r *JobsRepository) Create(_ context.Context, j *domain.ImageJob) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.jobs[j.ID]; ok {
		return fmt.Errorf("failed to save job: id %s already exists", j.ID)
	}
	r.jobs[j.ID] = clone(j)
	return nil
}

func (r *JobsRepository) GetByID(_ context.Context, id string) (*domain.ImageJob, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	j, ok := r.jobs[id]
	if !ok {
		return nil, job.ErrJobNotFound
	}
	return clone(j), nil
}

func (r *JobsRepository) List(_ context.Context, filter job.Filter, limit, offset int) ([]domain.ImageJob, error) {
	if err := filter.Validate(); err != nil {
		return nil, err
	}

	matched := r.matching(func(j *domain.ImageJob) bool {
		return j.UserID == filter.UserID && (filter.Status == "" || j.Status == filter.Status)
	})
	sort.Slice(matched, func(a, b int) bool {
		if matched[a].CreatedAt.Equal(matched[b].CreatedAt) {
			return matched[a].ID > matched[b].ID
		}
		return matched[a].CreatedAt.After(matched[b].CreatedAt)
	})

	if offset < 0 {
		offset = 0
	}
	if offset >= len(matched) {
		return []domain.ImageJob{}, nil
	}
	end := len(matched)
	if limit > 0 && limit < end-offset {
		end = offset + limit
	}
	return matched[offset:end], nil
}

func (r *JobsRepository) Count(_ context.Context, filter job.Filter) (int, error) {
	if err := filter.Validate(); err != nil {
		return 0, err
	}

	matched := r.matching(func(j *domain.ImageJob) bool {
		return j.UserID == filter.UserID && (filter.Status == "" || j.Status == filter.Status)
	})
	return len(matched), nil
}

func (r *JobsRepository) ListByStatus(_ context.Context, status domain.JobStatus) ([]domain.ImageJob, error) {
	matched := r.matching(func(j *domain.ImageJob) bool {
		return j.Status == status
	})
	sort.Slice(matched, func(a, b int) bool {
		if matched[a].CreatedAt.Equal(matched[b].CreatedAt) {
			return matched[a].ID < matched[b].ID
		}
		return matched[a].CreatedAt.Before(matched[b].CreatedAt)
	})
	return matched, nil
}

func (r *JobsRepository) Checkpoint(_ context.Context, id string, progress int) error {
	return r.update(id, func(j *domain.ImageJob, now time.Time) error {
		return j.Checkpoint(progress, now)
	})
}

func (r *JobsRepository) Complete(_ context.Context, id, resultURL string) error {
	return r.update(id, func(j *domain.ImageJob, now time.Time) error {
		return j.Complete(resultURL, now)
	})
}

func (r *JobsRepository) Fail(_ context.Context, id, message string) error {
	return r.update(id, func(j *domain.ImageJob, now time.Time) error {
		return j.Fail(message, now)
	})
}

func (r *JobsRepository) update(id string, apply func(*domain.ImageJob, time.Time) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, ok := r.jobs[id]
	if !ok {
		return job.ErrJobNotFound
	}

	updated := clone(stored)
	if err := apply(updated, r.now()); err != nil {
		if errors.Is(err, domain.ErrInvalidTransition) {
			return fmt.Errorf("%w: %s", job.ErrTerminalState, stored.Status)
		}
		return err
	}

	r.jobs[id] = updated
	return nil
}

func (r *JobsRepository) matching(keep func(*domain.ImageJob) bool) []domain.ImageJob {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]domain.ImageJob, 0)
	for _, j := range r.jobs {
		if keep(j) {
			out = append(out, *clone(j))
		}
	}
	return out
}

func clone(j *domain.ImageJob) *domain.ImageJob {
	c := *j
	c.Options = maps.Clone(j.Options)
	return &c
}
