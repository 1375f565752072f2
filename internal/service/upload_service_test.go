package service

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/clipforge/api/internal/model"
	"github.com/clipforge/api/internal/store"
)

type stubStorage struct {
	presignPutCalls int
	presignGetKeys  []string
}

func (s *stubStorage) Download(context.Context, string) ([]byte, error) {
	return nil, errors.New("not implemented")
}

func (s *stubStorage) Upload(context.Context, string, io.Reader, string) (string, error) {
	return "", errors.New("not implemented")
}

func (s *stubStorage) Delete(context.Context, string) error { return nil }

func (s *stubStorage) PresignGet(_ context.Context, key string, _ time.Duration) (string, error) {
	s.presignGetKeys = append(s.presignGetKeys, key)
	return "https://signed.example.com/" + key, nil
}

func (s *stubStorage) PresignPut(_ context.Context, key, _ string, _ time.Duration) (string, error) {
	s.presignPutCalls++
	return "https://signed.example.com/" + key, nil
}

func (s *stubStorage) PublicURL(key string) string {
	return "https://cdn.example.com/" + key
}

func newUploadFixture(t *testing.T) (*UploadService, *stubStorage, *store.MemVideoStore, string, string) {
	t.Helper()

	storage := &stubStorage{}
	videos := store.NewMemVideoStore()
	projects := store.NewMemProjectStore()
	userID := uuid.New().String()
	projectID := uuid.New().String()

	if err := projects.Create(context.Background(), &model.Project{ID: projectID, UserID: userID}); err != nil {
		t.Fatal(err)
	}
	svc := NewUploadService(storage, videos, projects, 2*1024*1024*1024)
	return svc, storage, videos, userID, projectID
}

func TestCreateUploadURL(t *testing.T) {
	svc, storage, videos, userID, projectID := newUploadFixture(t)
	ctx := context.Background()

	resp, err := svc.CreateUploadURL(ctx, userID, &model.UploadURLRequest{
		ProjectID:   projectID,
		FileName:    "my clip (final).mov",
		FileSize:    1024,
		ContentType: "video/quicktime",
	})
	if err != nil {
		t.Fatalf("create upload url: %v", err)
	}

	prefix := "uploads/" + userID + "/" + projectID + "/"
	if !strings.HasPrefix(resp.Key, prefix) {
		t.Errorf("key = %s, want prefix %s", resp.Key, prefix)
	}
	if !strings.HasSuffix(resp.Key, "-my_clip__final_.mov") {
		t.Errorf("filename not sanitized: %s", resp.Key)
	}
	if storage.presignPutCalls != 1 {
		t.Errorf("presign calls = %d, want 1", storage.presignPutCalls)
	}

	video, err := videos.Get(ctx, resp.VideoID)
	if err != nil {
		t.Fatalf("video row missing: %v", err)
	}
	if video.Status != model.VideoStatusUploaded {
		t.Errorf("video status = %s, want uploaded", video.Status)
	}
	if video.Metadata["input_key"] != resp.Key {
		t.Errorf("input key = %s, want %s", video.Metadata["input_key"], resp.Key)
	}
}

func TestCreateUploadURLRejectsOversizedFile(t *testing.T) {
	svc, storage, _, userID, projectID := newUploadFixture(t)

	_, err := svc.CreateUploadURL(context.Background(), userID, &model.UploadURLRequest{
		ProjectID:   projectID,
		FileName:    "huge.mov",
		FileSize:    3 * 1024 * 1024 * 1024,
		ContentType: "video/quicktime",
	})
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("err = %v, want ErrValidation", err)
	}
	if storage.presignPutCalls != 0 {
		t.Error("oversized request must not presign")
	}
}

func TestCreateUploadURLRejectsNonOwner(t *testing.T) {
	svc, _, _, _, projectID := newUploadFixture(t)

	_, err := svc.CreateUploadURL(context.Background(), uuid.New().String(), &model.UploadURLRequest{
		ProjectID:   projectID,
		FileName:    "clip.mov",
		FileSize:    1024,
		ContentType: "video/quicktime",
	})
	if !errors.Is(err, ErrNotOwner) {
		t.Fatalf("err = %v, want ErrNotOwner", err)
	}
}

func TestCreateDownloadURL(t *testing.T) {
	svc, storage, videos, userID, projectID := newUploadFixture(t)
	ctx := context.Background()

	videoID := uuid.New().String()
	if err := videos.Create(ctx, &model.Video{
		ID:        videoID,
		ProjectID: projectID,
		Status:    model.VideoStatusCompleted,
		Metadata:  map[string]string{"processed_key": "outputs/u1/p1/clip-processed.mp4"},
	}); err != nil {
		t.Fatal(err)
	}

	resp, err := svc.CreateDownloadURL(ctx, userID, videoID)
	if err != nil {
		t.Fatalf("create download url: %v", err)
	}
	if resp.DownloadURL == "" || resp.ExpiresIn <= 0 {
		t.Errorf("bad response: %+v", resp)
	}
	if len(storage.presignGetKeys) != 1 || storage.presignGetKeys[0] != "outputs/u1/p1/clip-processed.mp4" {
		t.Errorf("presigned keys = %v", storage.presignGetKeys)
	}
}

func TestCreateDownloadURLRequiresProcessedArtifact(t *testing.T) {
	svc, _, videos, userID, projectID := newUploadFixture(t)
	ctx := context.Background()

	videoID := uuid.New().String()
	if err := videos.Create(ctx, &model.Video{
		ID:        videoID,
		ProjectID: projectID,
		Status:    model.VideoStatusProcessing,
	}); err != nil {
		t.Fatal(err)
	}

	if _, err := svc.CreateDownloadURL(ctx, userID, videoID); err == nil {
		t.Fatal("expected error for unprocessed video")
	}
}
