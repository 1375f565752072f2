package service

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/clipforge/api/internal/model"
	"github.com/clipforge/api/internal/queue"
	"github.com/clipforge/api/internal/store"
)

var (
	// ErrNotOwner is returned when the caller does not own the target video.
	ErrNotOwner = errors.New("caller does not own this video")

	// ErrValidation is returned for a request that fails semantic
	// validation (bad operation bounds, oversized input).
	ErrValidation = errors.New("invalid request")
)

// ProcessService is the job dispatcher: it validates a processing request,
// creates the job row, enqueues the dispatch message and flips the parent
// video to processing.
type ProcessService struct {
	jobs     store.JobStore
	videos   store.VideoStore
	projects store.ProjectStore
	enqueuer queue.Enqueuer
}

func NewProcessService(jobs store.JobStore, videos store.VideoStore, projects store.ProjectStore, enqueuer queue.Enqueuer) *ProcessService {
	return &ProcessService{
		jobs:     jobs,
		videos:   videos,
		projects: projects,
		enqueuer: enqueuer,
	}
}

// Submit runs the dispatch sequence. Authorization and validation failures
// reject before any mutation. An enqueue failure after the job row exists is
// surfaced to the caller and leaves the row queued for the reconciler to
// sweep.
func (s *ProcessService) Submit(ctx context.Context, userID string, req *model.ProcessRequest) (*model.ProcessResponse, error) {
	if _, err := s.authorizeVideo(ctx, userID, req.VideoID); err != nil {
		return nil, err
	}

	if err := validateOperations(&req.Operations); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	job := &model.Job{
		ID:        uuid.New().String(),
		VideoID:   req.VideoID,
		Status:    model.JobStatusQueued,
		Progress:  0,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.jobs.Create(ctx, job); err != nil {
		return nil, fmt.Errorf("create job: %w", err)
	}

	msg := &queue.DispatchMessage{
		JobID:      job.ID,
		InputKey:   req.InputKey,
		OutputKey:  DeriveOutputKey(req.InputKey),
		Operations: req.Operations,
	}
	if err := s.enqueuer.EnqueueProcess(msg); err != nil {
		return nil, fmt.Errorf("job %s created but enqueue failed: %w", job.ID, err)
	}

	if err := s.videos.SetStatus(ctx, req.VideoID, model.VideoStatusProcessing); err != nil {
		return nil, fmt.Errorf("job %s enqueued but video update failed: %w", job.ID, err)
	}

	return &model.ProcessResponse{
		JobID:  job.ID,
		Status: model.JobStatusQueued,
	}, nil
}

// GetJob fetches a job, enforcing ownership through its video.
func (s *ProcessService) GetJob(ctx context.Context, userID, jobID string) (*model.Job, error) {
	job, err := s.jobs.Get(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if _, err := s.authorizeVideo(ctx, userID, job.VideoID); err != nil {
		return nil, err
	}
	return job, nil
}

// ListVideoJobs returns a video's job history, newest first.
func (s *ProcessService) ListVideoJobs(ctx context.Context, userID, videoID string) ([]*model.Job, error) {
	if _, err := s.authorizeVideo(ctx, userID, videoID); err != nil {
		return nil, err
	}
	return s.jobs.ListByVideo(ctx, videoID)
}

// GetVideo fetches a video, enforcing ownership.
func (s *ProcessService) GetVideo(ctx context.Context, userID, videoID string) (*model.Video, error) {
	return s.authorizeVideo(ctx, userID, videoID)
}

func (s *ProcessService) authorizeVideo(ctx context.Context, userID, videoID string) (*model.Video, error) {
	video, err := s.videos.Get(ctx, videoID)
	if err != nil {
		return nil, err
	}
	project, err := s.projects.Get(ctx, video.ProjectID)
	if err != nil {
		return nil, err
	}
	if project.UserID != userID {
		return nil, ErrNotOwner
	}
	return video, nil
}

func validateOperations(ops *model.Operations) error {
	if ops.Trim != nil {
		if ops.Trim.Start < 0 {
			return fmt.Errorf("%w: trim start must be non-negative", ErrValidation)
		}
		if ops.Trim.End != nil && *ops.Trim.End <= ops.Trim.Start {
			return fmt.Errorf("%w: trim end must be greater than start", ErrValidation)
		}
	}
	return nil
}

// DeriveOutputKey mirrors an upload key into the output namespace and rewrites
// the extension to mark the processed artifact:
// uploads/u1/p1/123-clip.mov -> outputs/u1/p1/123-clip-processed.mp4.
func DeriveOutputKey(inputKey string) string {
	key := strings.Replace(inputKey, "uploads/", "outputs/", 1)
	if ext := path.Ext(key); ext != "" {
		key = strings.TrimSuffix(key, ext)
	}
	return key + "-processed.mp4"
}
