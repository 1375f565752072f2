// Package queue defines the dispatch message carried on the work queue and
// the asynq task plumbing around it. The message is a value type, serialized
// once at enqueue time; redelivery hands workers the exact same bytes.
package queue

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"

	"github.com/clipforge/api/internal/model"
)

const (
	// TaskTypeProcess identifies video processing tasks on the queue.
	TaskTypeProcess = "video:process"

	// QueueVideo is the asynq queue name processing tasks are routed to.
	QueueVideo = "video"
)

// DispatchMessage tells a worker which job to execute and how.
type DispatchMessage struct {
	JobID      string           `json:"jobId"`
	InputKey   string           `json:"inputKey"`
	OutputKey  string           `json:"outputKey"`
	Operations model.Operations `json:"operations"`
}

// NewProcessTask serializes msg into an asynq task.
func NewProcessTask(msg *DispatchMessage) (*asynq.Task, error) {
	data, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("marshal dispatch message: %w", err)
	}
	return asynq.NewTask(TaskTypeProcess, data), nil
}

// ParseProcessTask decodes a dispatch message from a received task payload.
func ParseProcessTask(t *asynq.Task) (*DispatchMessage, error) {
	var msg DispatchMessage
	if err := json.Unmarshal(t.Payload(), &msg); err != nil {
		return nil, fmt.Errorf("unmarshal dispatch message: %w", err)
	}
	return &msg, nil
}

// Enqueuer is the capability handle the dispatcher uses to publish work.
// *Client satisfies it; tests substitute fakes.
type Enqueuer interface {
	EnqueueProcess(msg *DispatchMessage) error
}

// Client wraps an asynq client with the pipeline's enqueue policy.
type Client struct {
	asynq *asynq.Client
}

func NewClient(asynqClient *asynq.Client) *Client {
	return &Client{asynq: asynqClient}
}

// EnqueueProcess publishes the dispatch message to the video queue. The queue
// redelivers on worker crash; deliberate failures are terminal, so retries
// stay low and the worker suppresses redelivered terminal jobs either way.
func (c *Client) EnqueueProcess(msg *DispatchMessage) error {
	task, err := NewProcessTask(msg)
	if err != nil {
		return err
	}

	_, err = c.asynq.Enqueue(task,
		asynq.Queue(QueueVideo),
		asynq.MaxRetry(2),
		asynq.Timeout(20*time.Minute),
		asynq.Retention(24*time.Hour),
	)
	if err != nil {
		return fmt.Errorf("enqueue task: %w", err)
	}
	return nil
}
