package service

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/clipforge/api/internal/store"
)

// Reconciler sweeps for orphan jobs: rows created by the dispatcher whose
// dispatch message was lost before it reached the queue. Such a job sits in
// queued far past any plausible queue latency with no progress; the sweep
// fails it and reflects the failure onto the video so users are not left
// watching a job that will never run.
type Reconciler struct {
	jobs     store.JobStore
	videos   store.VideoStore
	interval time.Duration
	maxQueue time.Duration
}

func NewReconciler(jobs store.JobStore, videos store.VideoStore, interval, maxQueue time.Duration) *Reconciler {
	return &Reconciler{
		jobs:     jobs,
		videos:   videos,
		interval: interval,
		maxQueue: maxQueue,
	}
}

// Run sweeps on a fixed interval until ctx is cancelled.
func (r *Reconciler) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n, err := r.Sweep(ctx); err != nil {
				log.Printf("Reconciler sweep failed: %v", err)
			} else if n > 0 {
				log.Printf("Reconciler failed %d orphaned job(s)", n)
			}
		}
	}
}

// Sweep fails every job stuck in queued longer than the configured ceiling
// and returns how many it reaped. Jobs a worker picked up in the meantime are
// skipped by the store's status guard.
func (r *Reconciler) Sweep(ctx context.Context) (int, error) {
	cutoff := time.Now().Add(-r.maxQueue)
	orphans, err := r.jobs.ListQueuedBefore(ctx, cutoff)
	if err != nil {
		return 0, err
	}

	reaped := 0
	for _, job := range orphans {
		_, err := r.jobs.FailIfQueued(ctx, job.ID, "job was never dispatched to a worker")
		if err != nil {
			// A worker got to it between the scan and the write.
			if errors.Is(err, store.ErrJobAdvanced) || errors.Is(err, store.ErrJobTerminal) {
				continue
			}
			log.Printf("Reconciler could not fail job %s: %v", job.ID, err)
			continue
		}
		if err := r.videos.SetFailed(ctx, job.VideoID); err != nil {
			log.Printf("Reconciler could not update video %s: %v", job.VideoID, err)
		}
		reaped++
	}
	return reaped, nil
}
