package model

// ProcessRequest asks the pipeline to transform an uploaded video.
type ProcessRequest struct {
	ProjectID  string     `json:"projectId" validate:"required,uuid4"`
	VideoID    string     `json:"videoId" validate:"required,uuid4"`
	InputKey   string     `json:"inputKey" validate:"required"`
	Operations Operations `json:"operations"`
}

// ProcessResponse acknowledges a queued processing job.
type ProcessResponse struct {
	JobID  string    `json:"jobId"`
	Status JobStatus `json:"status"`
}

// UploadURLRequest asks for a presigned PUT URL for a raw clip.
type UploadURLRequest struct {
	ProjectID   string `json:"projectId" validate:"required,uuid4"`
	FileName    string `json:"fileName" validate:"required"`
	ContentType string `json:"contentType" validate:"required"`
	FileSize    int64  `json:"fileSize" validate:"required,gt=0"`
}

// UploadURLResponse carries the presigned URL, the storage key it writes to,
// and the video record created for the upload.
type UploadURLResponse struct {
	UploadURL string `json:"uploadUrl"`
	Key       string `json:"key"`
	VideoID   string `json:"videoId"`
}

// DownloadURLResponse carries a time-limited read URL for a processed artifact.
type DownloadURLResponse struct {
	DownloadURL string `json:"downloadUrl"`
	ExpiresIn   int    `json:"expiresIn"` // seconds
}
