package model

import "time"

// Video status is a coarse projection of the most recent job's status.
type VideoStatus string

const (
	VideoStatusUploaded   VideoStatus = "uploaded"
	VideoStatusProcessing VideoStatus = "processing"
	VideoStatusCompleted  VideoStatus = "completed"
	VideoStatusFailed     VideoStatus = "failed"
)

// Video is the user-facing media asset. Unlike jobs, a video may be
// reprocessed, so its status is not terminal-guarded.
type Video struct {
	ID           string            `json:"id"`
	ProjectID    string            `json:"project_id"`
	Status       VideoStatus       `json:"status"`
	OriginalURL  string            `json:"original_url"`
	ProcessedURL string            `json:"processed_url,omitempty"`
	Metadata     map[string]string `json:"metadata,omitempty"`
	CreatedAt    time.Time         `json:"created_at"`
	UpdatedAt    time.Time         `json:"updated_at"`
}

// Project carries the ownership linkage used to authorize video operations.
type Project struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"`
}
