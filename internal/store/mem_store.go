package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/clipforge/api/internal/model"
)

// In-memory store implementations. They honor the same guard semantics as the
// Redis stores and back unit tests and local development without a Redis.

type MemJobStore struct {
	mu       sync.Mutex
	jobs     map[string]model.Job
	byVideo  map[string][]string
	notifier Notifier
}

func NewMemJobStore(notifier Notifier) *MemJobStore {
	return &MemJobStore{
		jobs:     make(map[string]model.Job),
		byVideo:  make(map[string][]string),
		notifier: notifier,
	}
}

func (s *MemJobStore) Create(_ context.Context, job *model.Job) error {
	s.mu.Lock()
	if _, ok := s.jobs[job.ID]; ok {
		s.mu.Unlock()
		return ErrJobExists
	}
	s.jobs[job.ID] = *job
	// Newest first, same as the Redis LPUSH index.
	s.byVideo[job.VideoID] = append([]string{job.ID}, s.byVideo[job.VideoID]...)
	s.mu.Unlock()

	s.notify(job)
	return nil
}

func (s *MemJobStore) Get(_ context.Context, id string) (*model.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return nil, ErrJobNotFound
	}
	return &job, nil
}

func (s *MemJobStore) ListByVideo(_ context.Context, videoID string) ([]*model.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := s.byVideo[videoID]
	jobs := make([]*model.Job, 0, len(ids))
	for _, id := range ids {
		if job, ok := s.jobs[id]; ok {
			j := job
			jobs = append(jobs, &j)
		}
	}
	return jobs, nil
}

func (s *MemJobStore) MarkProcessing(ctx context.Context, id string) (*model.Job, error) {
	return s.update(id, func(job *model.Job) error {
		job.Status = model.JobStatusProcessing
		job.Progress = 0
		return nil
	})
}

func (s *MemJobStore) SetProgress(ctx context.Context, id string, progress int) (*model.Job, error) {
	return s.update(id, func(job *model.Job) error {
		if progress < 0 {
			progress = 0
		}
		if progress > 100 {
			progress = 100
		}
		if progress > job.Progress {
			job.Progress = progress
		}
		return nil
	})
}

func (s *MemJobStore) Complete(ctx context.Context, id, outputURL string) (*model.Job, error) {
	return s.update(id, func(job *model.Job) error {
		job.Status = model.JobStatusCompleted
		job.Progress = 100
		job.OutputURL = outputURL
		job.Error = nil
		return nil
	})
}

func (s *MemJobStore) Fail(ctx context.Context, id, errMsg string) (*model.Job, error) {
	return s.update(id, func(job *model.Job) error {
		job.Status = model.JobStatusFailed
		job.Error = &errMsg
		return nil
	})
}

func (s *MemJobStore) FailIfQueued(ctx context.Context, id, errMsg string) (*model.Job, error) {
	return s.update(id, func(job *model.Job) error {
		if job.Status != model.JobStatusQueued {
			return ErrJobAdvanced
		}
		job.Status = model.JobStatusFailed
		job.Error = &errMsg
		return nil
	})
}

func (s *MemJobStore) ListQueuedBefore(_ context.Context, cutoff time.Time) ([]*model.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var jobs []*model.Job
	for _, job := range s.jobs {
		if job.Status == model.JobStatusQueued && job.CreatedAt.Before(cutoff) {
			j := job
			jobs = append(jobs, &j)
		}
	}
	sort.Slice(jobs, func(i, k int) bool { return jobs[i].CreatedAt.Before(jobs[k].CreatedAt) })
	return jobs, nil
}

func (s *MemJobStore) update(id string, mutate func(*model.Job) error) (*model.Job, error) {
	s.mu.Lock()
	job, ok := s.jobs[id]
	if !ok {
		s.mu.Unlock()
		return nil, ErrJobNotFound
	}
	if job.Terminal() {
		s.mu.Unlock()
		return nil, ErrJobTerminal
	}
	if err := mutate(&job); err != nil {
		s.mu.Unlock()
		return nil, err
	}
	job.UpdatedAt = time.Now().UTC()
	s.jobs[id] = job
	s.mu.Unlock()

	s.notify(&job)
	return &job, nil
}

func (s *MemJobStore) notify(job *model.Job) {
	if s.notifier != nil && job != nil {
		s.notifier.JobUpdated(job)
	}
}

type MemVideoStore struct {
	mu     sync.Mutex
	videos map[string]model.Video
}

func NewMemVideoStore() *MemVideoStore {
	return &MemVideoStore{videos: make(map[string]model.Video)}
}

func (s *MemVideoStore) Create(_ context.Context, video *model.Video) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.videos[video.ID] = *video
	return nil
}

func (s *MemVideoStore) Get(_ context.Context, id string) (*model.Video, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	video, ok := s.videos[id]
	if !ok {
		return nil, ErrVideoNotFound
	}
	return &video, nil
}

func (s *MemVideoStore) SetStatus(_ context.Context, id string, status model.VideoStatus) error {
	return s.update(id, func(video *model.Video) {
		video.Status = status
	})
}

func (s *MemVideoStore) SetProcessed(_ context.Context, id, processedURL, processedKey string) error {
	return s.update(id, func(video *model.Video) {
		video.Status = model.VideoStatusCompleted
		video.ProcessedURL = processedURL
		if video.Metadata == nil {
			video.Metadata = make(map[string]string)
		}
		video.Metadata["processed_key"] = processedKey
	})
}

func (s *MemVideoStore) SetFailed(_ context.Context, id string) error {
	return s.update(id, func(video *model.Video) {
		video.Status = model.VideoStatusFailed
	})
}

func (s *MemVideoStore) update(id string, mutate func(*model.Video)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	video, ok := s.videos[id]
	if !ok {
		return ErrVideoNotFound
	}
	mutate(&video)
	video.UpdatedAt = time.Now().UTC()
	s.videos[id] = video
	return nil
}

type MemProjectStore struct {
	mu       sync.Mutex
	projects map[string]model.Project
}

func NewMemProjectStore() *MemProjectStore {
	return &MemProjectStore{projects: make(map[string]model.Project)}
}

func (s *MemProjectStore) Create(_ context.Context, project *model.Project) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.projects[project.ID] = *project
	return nil
}

func (s *MemProjectStore) Get(_ context.Context, id string) (*model.Project, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	project, ok := s.projects[id]
	if !ok {
		return nil, ErrProjectNotFound
	}
	return &project, nil
}
