// Package store persists job, video and project rows as JSON documents in
// Redis. Job mutations go through a compare-and-set loop so that concurrent
// writers (duplicate queue deliveries, the reconciler) can never regress a
// status or resurrect a terminal job.
package store

import "errors"

var (
	ErrJobNotFound     = errors.New("job not found")
	ErrJobExists       = errors.New("job already exists")
	ErrJobTerminal     = errors.New("job already in terminal state")
	ErrJobAdvanced     = errors.New("job already picked up by a worker")
	ErrVideoNotFound   = errors.New("video not found")
	ErrProjectNotFound = errors.New("project not found")
)

// maxCASRetries bounds the optimistic-lock retry loop on contended rows.
const maxCASRetries = 5
