package service

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"

	"github.com/clipforge/api/internal/model"
	"github.com/clipforge/api/internal/queue"
	"github.com/clipforge/api/internal/store"
)

type fakeEnqueuer struct {
	messages []*queue.DispatchMessage
	err      error
}

func (f *fakeEnqueuer) EnqueueProcess(msg *queue.DispatchMessage) error {
	if f.err != nil {
		return f.err
	}
	f.messages = append(f.messages, msg)
	return nil
}

type fixture struct {
	jobs     *store.MemJobStore
	videos   *store.MemVideoStore
	projects *store.MemProjectStore
	enqueuer *fakeEnqueuer
	svc      *ProcessService

	userID  string
	videoID string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	f := &fixture{
		jobs:     store.NewMemJobStore(nil),
		videos:   store.NewMemVideoStore(),
		projects: store.NewMemProjectStore(),
		enqueuer: &fakeEnqueuer{},
		userID:   uuid.New().String(),
		videoID:  uuid.New().String(),
	}
	f.svc = NewProcessService(f.jobs, f.videos, f.projects, f.enqueuer)

	ctx := context.Background()
	projectID := uuid.New().String()
	if err := f.projects.Create(ctx, &model.Project{ID: projectID, UserID: f.userID, Title: "demo"}); err != nil {
		t.Fatal(err)
	}
	if err := f.videos.Create(ctx, &model.Video{
		ID:        f.videoID,
		ProjectID: projectID,
		Status:    model.VideoStatusUploaded,
	}); err != nil {
		t.Fatal(err)
	}
	return f
}

func (f *fixture) request() *model.ProcessRequest {
	end := 25.0
	return &model.ProcessRequest{
		VideoID:  f.videoID,
		InputKey: "uploads/u1/p1/123-clip.mov",
		Operations: model.Operations{
			Trim:   &model.TrimRange{Start: 5, End: &end},
			Format: model.FormatSocial,
		},
	}
}

func TestSubmitHappyPath(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	resp, err := f.svc.Submit(ctx, f.userID, f.request())
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if resp.Status != model.JobStatusQueued {
		t.Errorf("status = %s, want queued", resp.Status)
	}

	job, err := f.jobs.Get(ctx, resp.JobID)
	if err != nil {
		t.Fatalf("get job: %v", err)
	}
	if job.Status != model.JobStatusQueued || job.Progress != 0 {
		t.Errorf("job = %s/%d, want queued/0", job.Status, job.Progress)
	}
	if job.VideoID != f.videoID {
		t.Errorf("job video = %s, want %s", job.VideoID, f.videoID)
	}

	if len(f.enqueuer.messages) != 1 {
		t.Fatalf("enqueued %d messages, want 1", len(f.enqueuer.messages))
	}
	msg := f.enqueuer.messages[0]
	if msg.JobID != resp.JobID {
		t.Errorf("message job = %s, want %s", msg.JobID, resp.JobID)
	}
	if msg.OutputKey != "outputs/u1/p1/123-clip-processed.mp4" {
		t.Errorf("output key = %s", msg.OutputKey)
	}

	video, err := f.videos.Get(ctx, f.videoID)
	if err != nil {
		t.Fatal(err)
	}
	if video.Status != model.VideoStatusProcessing {
		t.Errorf("video status = %s, want processing", video.Status)
	}
}

func TestSubmitRejectsNonOwnerBeforeMutation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Submit(ctx, uuid.New().String(), f.request())
	if !errors.Is(err, ErrNotOwner) {
		t.Fatalf("err = %v, want ErrNotOwner", err)
	}

	if len(f.enqueuer.messages) != 0 {
		t.Error("rejected request must not enqueue")
	}
	jobs, _ := f.jobs.ListByVideo(ctx, f.videoID)
	if len(jobs) != 0 {
		t.Error("rejected request must not create jobs")
	}
	video, _ := f.videos.Get(ctx, f.videoID)
	if video.Status != model.VideoStatusUploaded {
		t.Errorf("video status changed to %s on rejection", video.Status)
	}
}

func TestSubmitRejectsInvalidTrim(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	cases := []model.TrimRange{
		{Start: -1},
		{Start: 10, End: floatPtr(10)},
		{Start: 10, End: floatPtr(4)},
	}
	for _, trim := range cases {
		req := f.request()
		tr := trim
		req.Operations.Trim = &tr

		_, err := f.svc.Submit(ctx, f.userID, req)
		if !errors.Is(err, ErrValidation) {
			t.Errorf("trim %+v: err = %v, want ErrValidation", trim, err)
		}
	}

	if len(f.enqueuer.messages) != 0 {
		t.Error("invalid requests must not enqueue")
	}
}

func TestSubmitEnqueueFailureLeavesJobQueued(t *testing.T) {
	f := newFixture(t)
	f.enqueuer.err = errors.New("redis gone")
	ctx := context.Background()

	_, err := f.svc.Submit(ctx, f.userID, f.request())
	if err == nil {
		t.Fatal("expected enqueue failure to surface")
	}

	// The row exists but was never dispatched; the reconciler owns it now.
	jobs, _ := f.jobs.ListByVideo(ctx, f.videoID)
	if len(jobs) != 1 || jobs[0].Status != model.JobStatusQueued {
		t.Fatalf("expected one queued orphan job, got %v", jobs)
	}
	video, _ := f.videos.Get(ctx, f.videoID)
	if video.Status != model.VideoStatusUploaded {
		t.Errorf("video status = %s, want uploaded", video.Status)
	}
}

func TestListVideoJobsNewestFirst(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, err := f.svc.Submit(ctx, f.userID, f.request())
	if err != nil {
		t.Fatal(err)
	}
	second, err := f.svc.Submit(ctx, f.userID, f.request())
	if err != nil {
		t.Fatal(err)
	}

	jobs, err := f.svc.ListVideoJobs(ctx, f.userID, f.videoID)
	if err != nil {
		t.Fatal(err)
	}
	if len(jobs) != 2 {
		t.Fatalf("got %d jobs, want 2", len(jobs))
	}
	if jobs[0].ID != second.JobID || jobs[1].ID != first.JobID {
		t.Errorf("order = [%s %s], want newest first", jobs[0].ID, jobs[1].ID)
	}
}

func TestGetJobEnforcesOwnership(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	resp, err := f.svc.Submit(ctx, f.userID, f.request())
	if err != nil {
		t.Fatal(err)
	}

	if _, err := f.svc.GetJob(ctx, f.userID, resp.JobID); err != nil {
		t.Fatalf("owner read: %v", err)
	}
	if _, err := f.svc.GetJob(ctx, uuid.New().String(), resp.JobID); !errors.Is(err, ErrNotOwner) {
		t.Fatalf("err = %v, want ErrNotOwner", err)
	}
	if _, err := f.svc.GetJob(ctx, f.userID, uuid.New().String()); !errors.Is(err, store.ErrJobNotFound) {
		t.Fatalf("err = %v, want ErrJobNotFound", err)
	}
}

func TestDeriveOutputKey(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{"uploads/u1/p1/123-clip.mov", "outputs/u1/p1/123-clip-processed.mp4"},
		{"uploads/u1/p1/123-clip.mp4", "outputs/u1/p1/123-clip-processed.mp4"},
		{"uploads/u1/p1/noext", "outputs/u1/p1/noext-processed.mp4"},
	}
	for _, tc := range cases {
		if got := DeriveOutputKey(tc.in); got != tc.want {
			t.Errorf("DeriveOutputKey(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func floatPtr(v float64) *float64 { return &v }
