package worker

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/hibiken/asynq"

	"github.com/clipforge/api/internal/client"
	"github.com/clipforge/api/internal/engine"
	"github.com/clipforge/api/internal/queue"
	"github.com/clipforge/api/internal/store"
)

const outputContentType = "video/mp4"

// VideoWorker consumes dispatch messages and drives one job through
// download -> transform -> upload -> finalize. All collaborators are injected
// capability handles so tests can substitute fakes.
type VideoWorker struct {
	jobs    store.JobStore
	videos  store.VideoStore
	storage client.StorageClient
	engine  engine.Transformer
}

func NewVideoWorker(jobs store.JobStore, videos store.VideoStore, storage client.StorageClient, eng engine.Transformer) *VideoWorker {
	return &VideoWorker{
		jobs:    jobs,
		videos:  videos,
		storage: storage,
		engine:  eng,
	}
}

// ProcessTask handles one delivery of a dispatch message. The queue is
// at-least-once: a crash before acknowledgment redelivers the same message,
// so every store write goes through the terminal-state guard and a duplicate
// of an already-finished job is acknowledged without touching the row.
func (w *VideoWorker) ProcessTask(ctx context.Context, t *asynq.Task) error {
	msg, err := queue.ParseProcessTask(t)
	if err != nil {
		return fmt.Errorf("%w: %w", err, asynq.SkipRetry)
	}

	log.Printf("Job %s: received (input %s)", msg.JobID, msg.InputKey)

	// Redelivery of a terminal job must not mutate anything.
	current, err := w.jobs.Get(ctx, msg.JobID)
	if err != nil {
		if errors.Is(err, store.ErrJobNotFound) {
			log.Printf("Job %s: no record for dispatch message, dropping", msg.JobID)
			return nil
		}
		return fmt.Errorf("load job: %w", err)
	}
	if current.Terminal() {
		log.Printf("Job %s: already %s, skipping duplicate delivery", msg.JobID, current.Status)
		return nil
	}

	// A (re)delivered message restarts from zero; transforms are not
	// resumable mid-flight.
	if _, err := w.jobs.MarkProcessing(ctx, msg.JobID); err != nil {
		if errors.Is(err, store.ErrJobTerminal) {
			return nil
		}
		return fmt.Errorf("mark processing: %w", err)
	}

	input, err := w.storage.Download(ctx, msg.InputKey)
	if err != nil {
		return w.failJob(ctx, msg, fmt.Sprintf("download failed: %v", err))
	}
	w.reportProgress(ctx, msg.JobID, 30)

	log.Printf("Job %s: transforming %d bytes", msg.JobID, len(input))

	output, err := w.engine.Transform(ctx, input, msg.Operations, func(p float64) {
		// Engine hints are best-effort; clamp onto [30,90] and let the
		// store drop anything non-monotonic.
		w.reportProgress(ctx, msg.JobID, clampTransformProgress(p))
	})
	if err != nil {
		return w.failJob(ctx, msg, fmt.Sprintf("transform failed: %v", err))
	}
	w.reportProgress(ctx, msg.JobID, 90)

	if _, err := w.storage.Upload(ctx, msg.OutputKey, bytes.NewReader(output), outputContentType); err != nil {
		return w.failJob(ctx, msg, fmt.Sprintf("upload failed: %v", err))
	}

	outputURL := w.storage.PublicURL(msg.OutputKey)

	// Single terminal-success mutation, never field-by-field.
	if _, err := w.jobs.Complete(ctx, msg.JobID, outputURL); err != nil {
		if errors.Is(err, store.ErrJobTerminal) {
			// A concurrent duplicate finished first; its result stands.
			return nil
		}
		return fmt.Errorf("complete job: %w", err)
	}

	// The video is the user-facing object; its status must reflect the
	// job's terminal outcome.
	if err := w.videos.SetProcessed(ctx, current.VideoID, outputURL, msg.OutputKey); err != nil {
		log.Printf("Job %s: video update failed: %v", msg.JobID, err)
	}

	log.Printf("Job %s: completed (%s)", msg.JobID, msg.OutputKey)
	return nil
}

// clampTransformProgress maps an engine hint p in [0,1] onto the job's
// transform window: progress = 30 + floor(p*60), bounded to [30,90].
func clampTransformProgress(p float64) int {
	if p < 0 {
		p = 0
	}
	if p > 1 {
		p = 1
	}
	return 30 + int(p*60)
}

// reportProgress persists a progress hint, tolerating guard rejections.
func (w *VideoWorker) reportProgress(ctx context.Context, jobID string, progress int) {
	if _, err := w.jobs.SetProgress(ctx, jobID, progress); err != nil && !errors.Is(err, store.ErrJobTerminal) {
		log.Printf("Job %s: progress update failed: %v", jobID, err)
	}
}

// failJob records the failure and acknowledges the message: deliberate
// failures are terminal for this attempt, redelivery would only repeat them.
func (w *VideoWorker) failJob(ctx context.Context, msg *queue.DispatchMessage, errMsg string) error {
	job, err := w.jobs.Fail(ctx, msg.JobID, errMsg)
	if err != nil {
		if errors.Is(err, store.ErrJobTerminal) {
			return nil
		}
		return fmt.Errorf("mark failed: %w", err)
	}

	if err := w.videos.SetFailed(ctx, job.VideoID); err != nil {
		log.Printf("Job %s: video update failed: %v", msg.JobID, err)
	}

	log.Printf("Job %s: failed: %s", msg.JobID, errMsg)
	return nil
}
