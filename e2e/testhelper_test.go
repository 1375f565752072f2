package e2e

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/clipforge/api/internal/auth"
	"github.com/clipforge/api/internal/client"
	"github.com/clipforge/api/internal/handler"
	"github.com/clipforge/api/internal/middleware"
	"github.com/clipforge/api/internal/model"
	"github.com/clipforge/api/internal/queue"
	"github.com/clipforge/api/internal/service"
	"github.com/clipforge/api/internal/store"
)

const (
	testJWTSecret = "test-secret-for-e2e"
	testUserID    = "a7a4f8f0-1111-4222-8333-444455556666"
)

// testApp holds all components needed for testing
type testApp struct {
	app      *fiber.App
	jobs     *store.MemJobStore
	videos   *store.MemVideoStore
	projects *store.MemProjectStore
	enqueuer *captureEnqueuer
}

// captureEnqueuer records dispatch messages instead of publishing them.
type captureEnqueuer struct {
	messages []*queue.DispatchMessage
}

func (e *captureEnqueuer) EnqueueProcess(msg *queue.DispatchMessage) error {
	e.messages = append(e.messages, msg)
	return nil
}

// stubStorage satisfies the storage client without talking to S3.
type stubStorage struct{}

func (stubStorage) Download(context.Context, string) ([]byte, error) {
	return []byte("raw video bytes"), nil
}

func (stubStorage) Upload(_ context.Context, key string, body io.Reader, _ string) (string, error) {
	_, _ = io.ReadAll(body)
	return "https://cdn.example.com/" + key, nil
}

func (stubStorage) Delete(context.Context, string) error { return nil }

func (stubStorage) PresignGet(_ context.Context, key string, _ time.Duration) (string, error) {
	return "https://signed.example.com/" + key, nil
}

func (stubStorage) PresignPut(_ context.Context, key, _ string, _ time.Duration) (string, error) {
	return "https://signed.example.com/" + key, nil
}

func (stubStorage) PublicURL(key string) string {
	return "https://cdn.example.com/" + key
}

var _ client.StorageClient = stubStorage{}

// setupApp creates a Fiber app identical to main.go but with in-memory stores
// and stubbed external clients, so no Redis or S3 is needed.
func setupApp(t *testing.T) *testApp {
	t.Helper()

	jobs := store.NewMemJobStore(nil)
	videos := store.NewMemVideoStore()
	projects := store.NewMemProjectStore()
	enqueuer := &captureEnqueuer{}

	validate := validator.New()

	processService := service.NewProcessService(jobs, videos, projects, enqueuer)
	uploadService := service.NewUploadService(stubStorage{}, videos, projects, 2*1024*1024*1024)

	videoHandler := handler.NewVideoHandler(processService, validate)
	uploadHandler := handler.NewUploadHandler(uploadService, validate)

	authMiddleware := middleware.NewAuthMiddleware(testJWTSecret)

	// The limiter fails open when Redis is unreachable, so tests pass either way.
	rateLimiter := middleware.NewRateLimiter(redis.NewClient(&redis.Options{
		Addr: "localhost:6379",
		DB:   15,
	}))

	app := fiber.New(fiber.Config{
		BodyLimit: 10 * 1024 * 1024,
	})

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	api := app.Group("/api", authMiddleware.Authenticate())

	vids := api.Group("/videos")
	vids.Post("/upload", rateLimiter.UploadLimit(10000), uploadHandler.CreateUploadURL)
	vids.Post("/process", rateLimiter.ProcessLimit(10000), videoHandler.Process)
	vids.Get("/:videoId", videoHandler.GetVideo)
	vids.Get("/:videoId/jobs", videoHandler.ListJobs)
	vids.Get("/:videoId/download", uploadHandler.CreateDownloadURL)

	jobRoutes := api.Group("/jobs")
	jobRoutes.Get("/:jobId", videoHandler.GetJob)

	return &testApp{
		app:      app,
		jobs:     jobs,
		videos:   videos,
		projects: projects,
		enqueuer: enqueuer,
	}
}

// seedVideo creates a project owned by userID and an uploaded video in it.
func (ta *testApp) seedVideo(t *testing.T, userID string) (projectID, videoID string) {
	t.Helper()
	ctx := context.Background()

	projectID = uuid.New().String()
	videoID = uuid.New().String()
	if err := ta.projects.Create(ctx, &model.Project{ID: projectID, UserID: userID, Title: "demo"}); err != nil {
		t.Fatal(err)
	}
	if err := ta.videos.Create(ctx, &model.Video{
		ID:        videoID,
		ProjectID: projectID,
		Status:    model.VideoStatusUploaded,
		Metadata:  map[string]string{"input_key": "uploads/" + userID + "/" + projectID + "/123-clip.mov"},
	}); err != nil {
		t.Fatal(err)
	}
	return projectID, videoID
}

// generateToken creates an HMAC JWT token for test requests.
func generateToken(t *testing.T, userID string) string {
	t.Helper()
	token, err := auth.GenerateToken(userID, "test@example.com", testJWTSecret, 1)
	if err != nil {
		t.Fatalf("failed to generate test token: %v", err)
	}
	return token
}

// doRequest is a helper to perform HTTP requests against the test app.
func doRequest(app *fiber.App, method, path string, body string, headers map[string]string) (*http.Response, error) {
	var bodyReader io.Reader
	if body != "" {
		bodyReader = strings.NewReader(body)
	}

	req, err := http.NewRequest(method, path, bodyReader)
	if err != nil {
		return nil, err
	}

	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	return app.Test(req, -1)
}

// doAuthRequest performs a request authenticated as userID.
func doAuthRequest(t *testing.T, app *fiber.App, userID, method, path, body string) (*http.Response, error) {
	t.Helper()
	token := generateToken(t, userID)
	return doRequest(app, method, path, body, map[string]string{
		"Authorization": "Bearer " + token,
	})
}

// readBody reads and returns the response body as a string.
func readBody(t *testing.T, resp *http.Response) string {
	t.Helper()
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("failed to read response body: %v", err)
	}
	return string(b)
}

// parseJSON parses response body into a map.
func parseJSON(t *testing.T, resp *http.Response) map[string]interface{} {
	t.Helper()
	body := readBody(t, resp)
	var result map[string]interface{}
	if err := json.Unmarshal([]byte(body), &result); err != nil {
		t.Fatalf("failed to parse JSON: %v\nbody: %s", err, body)
	}
	return result
}

// assertStatus checks the HTTP status code.
func assertStatus(t *testing.T, resp *http.Response, expected int) {
	t.Helper()
	if resp.StatusCode != expected {
		t.Errorf("expected status %d, got %d", expected, resp.StatusCode)
	}
}
