package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/clipforge/api/internal/model"
)

// Notifier receives the full updated row after every successful job mutation.
// Implementations must not block; the store calls it synchronously.
type Notifier interface {
	JobUpdated(job *model.Job)
}

// JobStore is the durable record of jobs. All mutating operations are
// last-writer-wins-before-terminal: once a job is completed or failed, every
// further mutation returns ErrJobTerminal and leaves the row untouched.
type JobStore interface {
	Create(ctx context.Context, job *model.Job) error
	Get(ctx context.Context, id string) (*model.Job, error)
	ListByVideo(ctx context.Context, videoID string) ([]*model.Job, error)

	// MarkProcessing flips the job to processing and resets progress to zero.
	// A redelivered message restarts from scratch; processing is not resumable.
	MarkProcessing(ctx context.Context, id string) (*model.Job, error)

	// SetProgress records a progress hint. Values are clamped to [0,100] and
	// never decrease while the job is live.
	SetProgress(ctx context.Context, id string, progress int) (*model.Job, error)

	// Complete applies the single terminal-success mutation atomically.
	Complete(ctx context.Context, id, outputURL string) (*model.Job, error)

	// Fail marks the job failed, preserving the last reported progress.
	Fail(ctx context.Context, id, errMsg string) (*model.Job, error)

	// FailIfQueued fails the job only if no worker has picked it up yet.
	// Returns ErrJobAdvanced otherwise.
	FailIfQueued(ctx context.Context, id, errMsg string) (*model.Job, error)

	// ListQueuedBefore returns jobs still queued that were created before
	// cutoff, the orphan signature the reconciler sweeps for.
	ListQueuedBefore(ctx context.Context, cutoff time.Time) ([]*model.Job, error)
}

type RedisJobStore struct {
	redis    *redis.Client
	notifier Notifier
}

func NewRedisJobStore(redisClient *redis.Client, notifier Notifier) *RedisJobStore {
	return &RedisJobStore{
		redis:    redisClient,
		notifier: notifier,
	}
}

func jobKey(id string) string {
	return "job:" + id
}

func videoJobsKey(videoID string) string {
	return "video:" + videoID + ":jobs"
}

func (s *RedisJobStore) Create(ctx context.Context, job *model.Job) error {
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job: %w", err)
	}

	ok, err := s.redis.SetNX(ctx, jobKey(job.ID), data, 0).Result()
	if err != nil {
		return fmt.Errorf("save job: %w", err)
	}
	if !ok {
		return ErrJobExists
	}

	// Newest-first history index; "most recent job wins" reads take index 0.
	if err := s.redis.LPush(ctx, videoJobsKey(job.VideoID), job.ID).Err(); err != nil {
		return fmt.Errorf("index job: %w", err)
	}

	s.notify(job)
	return nil
}

func (s *RedisJobStore) Get(ctx context.Context, id string) (*model.Job, error) {
	data, err := s.redis.Get(ctx, jobKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrJobNotFound
		}
		return nil, fmt.Errorf("fetch job: %w", err)
	}

	var job model.Job
	if err := json.Unmarshal(data, &job); err != nil {
		return nil, fmt.Errorf("unmarshal job: %w", err)
	}
	return &job, nil
}

func (s *RedisJobStore) ListByVideo(ctx context.Context, videoID string) ([]*model.Job, error) {
	ids, err := s.redis.LRange(ctx, videoJobsKey(videoID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}

	jobs := make([]*model.Job, 0, len(ids))
	for _, id := range ids {
		job, err := s.Get(ctx, id)
		if err != nil {
			if errors.Is(err, ErrJobNotFound) {
				continue
			}
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, nil
}

func (s *RedisJobStore) MarkProcessing(ctx context.Context, id string) (*model.Job, error) {
	return s.update(ctx, id, func(job *model.Job) error {
		job.Status = model.JobStatusProcessing
		job.Progress = 0
		return nil
	})
}

func (s *RedisJobStore) SetProgress(ctx context.Context, id string, progress int) (*model.Job, error) {
	return s.update(ctx, id, func(job *model.Job) error {
		if progress < 0 {
			progress = 0
		}
		if progress > 100 {
			progress = 100
		}
		// Progress hints are best-effort; tolerate out-of-order reports.
		if progress > job.Progress {
			job.Progress = progress
		}
		return nil
	})
}

func (s *RedisJobStore) Complete(ctx context.Context, id, outputURL string) (*model.Job, error) {
	return s.update(ctx, id, func(job *model.Job) error {
		job.Status = model.JobStatusCompleted
		job.Progress = 100
		job.OutputURL = outputURL
		job.Error = nil
		return nil
	})
}

func (s *RedisJobStore) Fail(ctx context.Context, id, errMsg string) (*model.Job, error) {
	return s.update(ctx, id, func(job *model.Job) error {
		job.Status = model.JobStatusFailed
		job.Error = &errMsg
		return nil
	})
}

func (s *RedisJobStore) FailIfQueued(ctx context.Context, id, errMsg string) (*model.Job, error) {
	return s.update(ctx, id, func(job *model.Job) error {
		if job.Status != model.JobStatusQueued {
			return ErrJobAdvanced
		}
		job.Status = model.JobStatusFailed
		job.Error = &errMsg
		return nil
	})
}

func (s *RedisJobStore) ListQueuedBefore(ctx context.Context, cutoff time.Time) ([]*model.Job, error) {
	var jobs []*model.Job

	iter := s.redis.Scan(ctx, 0, jobKey("*"), 100).Iterator()
	for iter.Next(ctx) {
		data, err := s.redis.Get(ctx, iter.Val()).Bytes()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				continue
			}
			return nil, fmt.Errorf("fetch job: %w", err)
		}

		var job model.Job
		if err := json.Unmarshal(data, &job); err != nil {
			continue
		}
		if job.Status == model.JobStatusQueued && job.CreatedAt.Before(cutoff) {
			jobs = append(jobs, &job)
		}
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("scan jobs: %w", err)
	}
	return jobs, nil
}

// update applies mutate to the current row under an optimistic lock. The
// terminal guard runs inside the transaction so a duplicate delivery racing a
// completed job can never win.
func (s *RedisJobStore) update(ctx context.Context, id string, mutate func(*model.Job) error) (*model.Job, error) {
	key := jobKey(id)
	var updated *model.Job

	txn := func(tx *redis.Tx) error {
		data, err := tx.Get(ctx, key).Bytes()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				return ErrJobNotFound
			}
			return fmt.Errorf("fetch job: %w", err)
		}

		var job model.Job
		if err := json.Unmarshal(data, &job); err != nil {
			return fmt.Errorf("unmarshal job: %w", err)
		}

		if job.Terminal() {
			return ErrJobTerminal
		}

		if err := mutate(&job); err != nil {
			return err
		}
		job.UpdatedAt = time.Now().UTC()

		buf, err := json.Marshal(&job)
		if err != nil {
			return fmt.Errorf("marshal job: %w", err)
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, buf, redis.KeepTTL)
			return nil
		})
		if err != nil {
			return err
		}

		updated = &job
		return nil
	}

	var err error
	for i := 0; i < maxCASRetries; i++ {
		err = s.redis.Watch(ctx, txn, key)
		if !errors.Is(err, redis.TxFailedErr) {
			break
		}
	}
	if err != nil {
		return nil, err
	}

	s.notify(updated)
	return updated, nil
}

func (s *RedisJobStore) notify(job *model.Job) {
	if s.notifier != nil && job != nil {
		s.notifier.JobUpdated(job)
	}
}
