package job

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"testing"
	"time"

	"thumbnail-service/internal/domain"
	"thumbnail-service/internal/queue"
	queueMemory "thumbnail-service/internal/queue/memory"
	repoJob "thumbnail-service/internal/repository/job"
	repoMemory "thumbnail-service/internal/repository/job/memory"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wb-go/wbf/retry"
)

const testQueue = "image-processing"

type fakeQueue struct {
	SubmitFn func(ctx context.Context, queueName string, payload []byte, opts queue.SubmitOptions) (string, error)
	StatusFn func(ctx context.Context, queueName, itemID string) (queue.State, error)
}

func (f *fakeQueue) Submit(ctx context.Context, queueName string, payload []byte, opts queue.SubmitOptions) (string, error) {
	return f.SubmitFn(ctx, queueName, payload, opts)
}

func (f *fakeQueue) Status(ctx context.Context, queueName, itemID string) (queue.State, error) {
	return f.StatusFn(ctx, queueName, itemID)
}

func newUsecase(t *testing.T, q workQueue) (*JobUsecase, *repoMemory.JobsRepository) {
	t.Helper()
	logger := zerolog.Nop()
	repo := repoMemory.NewJobsRepository()
	return NewJobUsecase(repo, q, testQueue, &logger), repo
}

func newMemoryQueue(t *testing.T) *queueMemory.Queue {
	t.Helper()
	q := queueMemory.New(retry.Strategy{Attempts: 3, Delay: time.Millisecond, Backoff: 1}, 10)
	t.Cleanup(func() { _ = q.Close() })
	return q
}

func TestJobUsecase_Submit(t *testing.T) {
	q := newMemoryQueue(t)
	uc, repo := newUsecase(t, q)
	ctx := context.Background()

	res, err := uc.Submit(ctx, SubmitRequest{
		UserID:           "u1",
		FilePath:         "uploads/original/a.png",
		OriginalFilename: "cat.png",
		Options:          map[string]any{"width": "64", "height": 48, "unknown": "ignored"},
	})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusProcessing, res.Status)
	assert.Equal(t, "cat.png", res.OriginalFilename)

	stored, err := repo.GetByID(ctx, res.JobID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusProcessing, stored.Status)
	assert.Equal(t, 0, stored.Progress)
	assert.Equal(t, domain.JobTypeThumbnail, stored.JobType)
	assert.Equal(t, map[string]any{"width": 64, "height": 48}, stored.Options)
	assert.Empty(t, stored.ResultImageURL)
	assert.Empty(t, stored.Error)

	state, err := q.Status(ctx, testQueue, domain.IdempotencyKey(res.JobID))
	require.NoError(t, err)
	assert.Equal(t, queue.StateWaiting, state)
}

func TestJobUsecase_SubmitPayload(t *testing.T) {
	var (
		payload []byte
		key     string
	)
	q := &fakeQueue{
		SubmitFn: func(_ context.Context, queueName string, p []byte, opts queue.SubmitOptions) (string, error) {
			assert.Equal(t, testQueue, queueName)
			payload, key = p, opts.IdempotencyKey
			return key, nil
		},
	}
	uc, _ := newUsecase(t, q)

	res, err := uc.Submit(context.Background(), SubmitRequest{UserID: "u1", FilePath: "/tmp/a.png"})
	require.NoError(t, err)
	assert.Equal(t, "retry-"+res.JobID, key)

	var item domain.WorkItem
	require.NoError(t, json.Unmarshal(payload, &item))
	assert.Equal(t, res.JobID, item.JobID)
	assert.Equal(t, "u1", item.UserID)
	assert.Equal(t, "/tmp/a.png", item.OriginalImagePath)
	assert.Equal(t, domain.JobTypeThumbnail, item.JobType)
}

func TestJobUsecase_SubmitValidation(t *testing.T) {
	tests := []struct {
		name string
		req  SubmitRequest
	}{
		{"missing user", SubmitRequest{FilePath: "a.png"}},
		{"blank user", SubmitRequest{UserID: "  ", FilePath: "a.png"}},
		{"user with slash", SubmitRequest{UserID: "../etc", FilePath: "a.png"}},
		{"dot user", SubmitRequest{UserID: "..", FilePath: "a.png"}},
		{"missing file", SubmitRequest{UserID: "u1"}},
		{"bad options", SubmitRequest{UserID: "u1", FilePath: "a.png", Options: map[string]any{"width": -1}}},
		{"unsupported job type", SubmitRequest{UserID: "u1", FilePath: "a.png", JobType: "watermark"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := &fakeQueue{
				SubmitFn: func(context.Context, string, []byte, queue.SubmitOptions) (string, error) {
					t.Fatal("queue must not be called")
					return "", nil
				},
			}
			uc, repo := newUsecase(t, q)

			_, err := uc.Submit(context.Background(), tt.req)
			assert.ErrorIs(t, err, ErrValidation)

			total, countErr := repo.Count(context.Background(), repoFilter("u1"))
			require.NoError(t, countErr)
			assert.Zero(t, total)
		})
	}
}

func TestJobUsecase_SubmitQueueFailureMarksJobFailed(t *testing.T) {
	q := &fakeQueue{
		SubmitFn: func(context.Context, string, []byte, queue.SubmitOptions) (string, error) {
			return "", errors.New("broker unavailable")
		},
	}
	uc, repo := newUsecase(t, q)
	ctx := context.Background()

	_, err := uc.Submit(ctx, SubmitRequest{UserID: "u1", FilePath: "a.png"})
	assert.ErrorIs(t, err, ErrQueueError)

	jobs, err := repo.ListByStatus(ctx, domain.StatusFailed)
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Contains(t, jobs[0].Error, "broker unavailable")
}

func TestJobUsecase_GetJob(t *testing.T) {
	q := newMemoryQueue(t)
	uc, _ := newUsecase(t, q)
	ctx := context.Background()

	res, err := uc.Submit(ctx, SubmitRequest{UserID: "u1", FilePath: "a.png", OriginalFilename: "a.png"})
	require.NoError(t, err)

	view, err := uc.GetJob(ctx, res.JobID)
	require.NoError(t, err)
	assert.Equal(t, res.JobID, view.Job.ID)
	assert.Equal(t, "waiting", view.QueueInfo)

	_, err = uc.GetJob(ctx, "not-a-uuid")
	assert.ErrorIs(t, err, ErrJobNotFound)

	_, err = uc.GetJob(ctx, uuid.New().String())
	assert.ErrorIs(t, err, ErrJobNotFound)
}

func TestJobUsecase_GetJobQueueStatusError(t *testing.T) {
	q := &fakeQueue{
		SubmitFn: func(_ context.Context, _ string, _ []byte, opts queue.SubmitOptions) (string, error) {
			return opts.IdempotencyKey, nil
		},
		StatusFn: func(context.Context, string, string) (queue.State, error) {
			return "", errors.New("redis down")
		},
	}
	uc, _ := newUsecase(t, q)
	ctx := context.Background()

	res, err := uc.Submit(ctx, SubmitRequest{UserID: "u1", FilePath: "a.png"})
	require.NoError(t, err)

	view, err := uc.GetJob(ctx, res.JobID)
	require.NoError(t, err)
	assert.Equal(t, "unknown", view.QueueInfo)
}

func TestJobUsecase_ListJobs(t *testing.T) {
	q := newMemoryQueue(t)
	uc, repo := newUsecase(t, q)
	ctx := context.Background()

	base := time.Now().UTC()
	tick := 0
	uc.now = func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Second)
	}

	var ids []string
	for i := 0; i < 5; i++ {
		res, err := uc.Submit(ctx, SubmitRequest{UserID: "u1", FilePath: fmt.Sprintf("%d.png", i)})
		require.NoError(t, err)
		ids = append(ids, res.JobID)
	}
	_, err := uc.Submit(ctx, SubmitRequest{UserID: "u2", FilePath: "other.png"})
	require.NoError(t, err)
	require.NoError(t, repo.Complete(ctx, ids[1], "http://localhost/x.jpg"))

	res, err := uc.ListJobs(ctx, ListRequest{UserID: "u1", Page: 1, Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, Pagination{Page: 1, Limit: 2, Total: 5, Pages: 3}, res.Pagination)
	require.Len(t, res.Jobs, 2)
	assert.Equal(t, ids[4], res.Jobs[0].ID)

	res, err = uc.ListJobs(ctx, ListRequest{UserID: "u1", Page: 3, Limit: 2})
	require.NoError(t, err)
	require.Len(t, res.Jobs, 1)
	assert.Equal(t, ids[0], res.Jobs[0].ID)

	res, err = uc.ListJobs(ctx, ListRequest{UserID: "u1", Status: "completed"})
	require.NoError(t, err)
	require.Len(t, res.Jobs, 1)
	assert.Equal(t, domain.StatusCompleted, res.Jobs[0].Status)
	assert.Equal(t, Pagination{Page: 1, Limit: 20, Total: 1, Pages: 1}, res.Pagination)

	res, err = uc.ListJobs(ctx, ListRequest{UserID: "u1", Status: "bogus", Limit: 1000})
	require.NoError(t, err)
	assert.Equal(t, 5, res.Pagination.Total)
	assert.Equal(t, MaxLimit, res.Pagination.Limit)

	_, err = uc.ListJobs(ctx, ListRequest{})
	assert.ErrorIs(t, err, ErrValidation)
}

func TestJobUsecase_ListJobsPageOutOfRange(t *testing.T) {
	uc, _ := newUsecase(t, newMemoryQueue(t))
	ctx := context.Background()

	_, err := uc.ListJobs(ctx, ListRequest{UserID: "u1", Page: math.MaxInt/2 + 2, Limit: 2})
	assert.ErrorIs(t, err, ErrValidation)

	_, err = uc.ListJobs(ctx, ListRequest{UserID: "u1", Page: math.MaxInt, Limit: MaxLimit})
	assert.ErrorIs(t, err, ErrValidation)

	res, err := uc.ListJobs(ctx, ListRequest{UserID: "u1", Page: math.MaxInt/2 + 1, Limit: 2})
	require.NoError(t, err)
	assert.Empty(t, res.Jobs)
}

func TestPages(t *testing.T) {
	tests := []struct {
		total, limit, want int
	}{
		{0, 20, 0},
		{1, 20, 1},
		{20, 20, 1},
		{21, 20, 2},
		{5, 2, 3},
		{5, 0, 0},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Pages(tt.total, tt.limit), "total=%d limit=%d", tt.total, tt.limit)
	}
}

func repoFilter(userID string) repoJob.Filter {
	return repoJob.Filter{UserID: userID}
}
