package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"github.com/clipforge/api/internal/client"
	"github.com/clipforge/api/internal/config"
	"github.com/clipforge/api/internal/engine"
	"github.com/clipforge/api/internal/handler"
	"github.com/clipforge/api/internal/middleware"
	"github.com/clipforge/api/internal/queue"
	"github.com/clipforge/api/internal/service"
	"github.com/clipforge/api/internal/store"
	"github.com/clipforge/api/internal/worker"
	ws "github.com/clipforge/api/internal/websocket"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Initialize Redis client
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	// Test Redis connection
	ctx := context.Background()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		log.Printf("Warning: Redis not available: %v", err)
	}

	// Initialize Asynq client
	asynqClient := asynq.NewClient(asynq.RedisClientOpt{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer asynqClient.Close()

	// Initialize validator
	validate := validator.New()

	// Initialize WebSocket hub (the progress notifier)
	hub := ws.NewHub()
	go hub.Run()

	// Initialize object storage
	s3Client, err := client.NewS3Client(&cfg.S3)
	if err != nil {
		log.Fatalf("S3 storage not configured: %v", err)
	}

	// Initialize stores; every job mutation fans out through the hub
	jobStore := store.NewRedisJobStore(redisClient, hub)
	videoStore := store.NewRedisVideoStore(redisClient)
	projectStore := store.NewRedisProjectStore(redisClient)

	// Initialize queue client
	queueClient := queue.NewClient(asynqClient)

	// Initialize services
	processService := service.NewProcessService(jobStore, videoStore, projectStore, queueClient)
	uploadService := service.NewUploadService(s3Client, videoStore, projectStore, cfg.S3.MaxUploadBytes)
	reconciler := service.NewReconciler(jobStore, videoStore, cfg.Reconcile.Interval, cfg.Reconcile.MaxQueue)

	// Initialize handlers
	videoHandler := handler.NewVideoHandler(processService, validate)
	uploadHandler := handler.NewUploadHandler(uploadService, validate)

	// Initialize middleware
	var apiAuthMiddleware fiber.Handler
	if cfg.Gateway.Enabled {
		// Behind the edge proxy: auth is handled by ForwardAuth, read X-User-* headers
		log.Println("Info: Gateway mode enabled — using header-based auth")
		apiAuthMiddleware = middleware.GatewayAuthMiddleware()
	} else {
		apiAuthMiddleware = middleware.NewAuthMiddleware(cfg.JWT.Secret).Authenticate()
	}
	rateLimiter := middleware.NewRateLimiter(redisClient)

	// Initialize Fiber app
	app := fiber.New(fiber.Config{
		ErrorHandler: customErrorHandler,
		BodyLimit:    10 * 1024 * 1024, // uploads go straight to storage; API bodies stay small
	})

	// Global middleware
	app.Use(recover.New())
	isDebug := strings.EqualFold(cfg.Server.LogLevel, "debug")
	logFormat := "[${time}] ${status} - ${latency} ${method} ${path}\n"
	if isDebug {
		logFormat = "[${time}] ${status} - ${latency} ${method} ${path} ${queryParams} ${body}\n"
		log.Println("Debug logging enabled")
	}
	app.Use(logger.New(logger.Config{
		Format: logFormat,
	}))
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,PUT,DELETE,OPTIONS",
		AllowHeaders: "Origin,Content-Type,Accept,Authorization",
	}))

	// Base URL - timestamp
	app.Get("/", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"timestamp": time.Now().Unix(),
		})
	})

	// Health check
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status": "ok",
			"services": fiber.Map{
				"redis": redisClient.Ping(c.Context()).Err() == nil,
				"s3":    s3Client.IsConfigured(),
				"auth":  cfg.JWT.Secret != "",
			},
		})
	})

	// API routes
	api := app.Group("/api", apiAuthMiddleware)

	// Video routes
	videos := api.Group("/videos")
	videos.Post("/upload", rateLimiter.UploadLimit(cfg.RateLimit.UploadPerHour), uploadHandler.CreateUploadURL)
	videos.Post("/process", rateLimiter.ProcessLimit(cfg.RateLimit.ProcessPerHour), videoHandler.Process)
	videos.Get("/:videoId", videoHandler.GetVideo)
	videos.Get("/:videoId/jobs", videoHandler.ListJobs)
	videos.Get("/:videoId/download", uploadHandler.CreateDownloadURL)

	// Job routes
	jobs := api.Group("/jobs")
	jobs.Get("/:jobId", videoHandler.GetJob)

	// WebSocket routes
	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})

	app.Get("/ws/jobs/:jobId", websocket.New(func(c *websocket.Conn) {
		hub.HandleConnection(c, ws.JobTopic(c.Params("jobId")))
	}))

	app.Get("/ws/videos/:videoId", websocket.New(func(c *websocket.Conn) {
		hub.HandleConnection(c, ws.VideoTopic(c.Params("videoId")))
	}))

	// Start Asynq worker server
	go startWorkerServer(cfg, jobStore, videoStore, s3Client)

	// Start the orphan-job reconciler
	reconcileCtx, cancelReconcile := context.WithCancel(ctx)
	defer cancelReconcile()
	go reconciler.Run(reconcileCtx)

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-quit
		log.Println("Shutting down server...")
		cancelReconcile()
		if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
			log.Printf("Server shutdown error: %v", err)
		}
	}()

	// Start server
	addr := ":" + cfg.Server.Port
	log.Printf("Server starting on %s", addr)
	if err := app.Listen(addr); err != nil {
		log.Fatalf("Server error: %v", err)
	}
}

func startWorkerServer(
	cfg *config.Config,
	jobStore store.JobStore,
	videoStore store.VideoStore,
	s3Client client.StorageClient,
) {
	asynqLogLevel := asynq.InfoLevel
	if strings.EqualFold(cfg.Server.LogLevel, "debug") {
		asynqLogLevel = asynq.DebugLevel
	} else if strings.EqualFold(cfg.Server.LogLevel, "warn") {
		asynqLogLevel = asynq.WarnLevel
	} else if strings.EqualFold(cfg.Server.LogLevel, "error") {
		asynqLogLevel = asynq.ErrorLevel
	}

	srv := asynq.NewServer(
		asynq.RedisClientOpt{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		},
		asynq.Config{
			Concurrency: cfg.Worker.Concurrency,
			Queues: map[string]int{
				queue.QueueVideo: 10,
			},
			LogLevel: asynqLogLevel,
		},
	)

	ffmpeg := engine.NewFFmpeg(cfg.FFmpeg.Path, cfg.FFmpeg.TempDir, cfg.FFmpeg.Timeout)
	videoWorker := worker.NewVideoWorker(jobStore, videoStore, s3Client, ffmpeg)

	mux := asynq.NewServeMux()
	mux.HandleFunc(queue.TaskTypeProcess, videoWorker.ProcessTask)

	if err := srv.Run(mux); err != nil {
		log.Printf("Asynq worker error: %v", err)
	}
}

func customErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	message := "Internal Server Error"

	if e, ok := err.(*fiber.Error); ok {
		code = e.Code
		message = e.Message
	}

	return c.Status(code).JSON(fiber.Map{
		"error": fiber.Map{
			"code":    "SERVICE_ERROR",
			"message": message,
		},
	})
}
