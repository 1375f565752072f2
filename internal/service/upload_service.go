package service

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"github.com/google/uuid"

	"github.com/clipforge/api/internal/client"
	"github.com/clipforge/api/internal/model"
	"github.com/clipforge/api/internal/store"
)

const presignExpiry = time.Hour

var unsafeFileNameChars = regexp.MustCompile(`[^a-zA-Z0-9.-]`)

// UploadService issues presigned upload and download URLs and registers the
// video rows the pipeline later processes.
type UploadService struct {
	storage  client.StorageClient
	videos   store.VideoStore
	projects store.ProjectStore
	maxBytes int64
}

func NewUploadService(storage client.StorageClient, videos store.VideoStore, projects store.ProjectStore, maxBytes int64) *UploadService {
	return &UploadService{
		storage:  storage,
		videos:   videos,
		projects: projects,
		maxBytes: maxBytes,
	}
}

// CreateUploadURL validates ownership and size, then returns a presigned PUT
// URL together with the video record created for the upload. Keys are
// namespaced uploads/<user>/<project>/<unix-ms>-<filename>.
func (s *UploadService) CreateUploadURL(ctx context.Context, userID string, req *model.UploadURLRequest) (*model.UploadURLResponse, error) {
	project, err := s.projects.Get(ctx, req.ProjectID)
	if err != nil {
		return nil, err
	}
	if project.UserID != userID {
		return nil, ErrNotOwner
	}

	if s.maxBytes > 0 && req.FileSize > s.maxBytes {
		return nil, fmt.Errorf("%w: file exceeds %d bytes", ErrValidation, s.maxBytes)
	}

	sanitized := unsafeFileNameChars.ReplaceAllString(req.FileName, "_")
	key := fmt.Sprintf("uploads/%s/%s/%d-%s", userID, req.ProjectID, time.Now().UnixMilli(), sanitized)

	uploadURL, err := s.storage.PresignPut(ctx, key, req.ContentType, presignExpiry)
	if err != nil {
		return nil, fmt.Errorf("presign upload: %w", err)
	}

	now := time.Now().UTC()
	video := &model.Video{
		ID:          uuid.New().String(),
		ProjectID:   req.ProjectID,
		Status:      model.VideoStatusUploaded,
		OriginalURL: s.storage.PublicURL(key),
		Metadata:    map[string]string{"input_key": key},
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.videos.Create(ctx, video); err != nil {
		return nil, fmt.Errorf("create video: %w", err)
	}

	return &model.UploadURLResponse{
		UploadURL: uploadURL,
		Key:       key,
		VideoID:   video.ID,
	}, nil
}

// CreateDownloadURL returns a time-limited read URL for a video's processed
// artifact.
func (s *UploadService) CreateDownloadURL(ctx context.Context, userID, videoID string) (*model.DownloadURLResponse, error) {
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

	key := video.Metadata["processed_key"]
	if video.Status != model.VideoStatusCompleted || key == "" {
		return nil, fmt.Errorf("%w: video %s has no processed artifact", ErrValidation, videoID)
	}

	downloadURL, err := s.storage.PresignGet(ctx, key, presignExpiry)
	if err != nil {
		return nil, fmt.Errorf("presign download: %w", err)
	}

	return &model.DownloadURLResponse{
		DownloadURL: downloadURL,
		ExpiresIn:   int(presignExpiry.Seconds()),
	}, nil
}
