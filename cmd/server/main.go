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

	"github.com/pageforge/api/internal/client"
	"github.com/pageforge/api/internal/config"
	"github.com/pageforge/api/internal/factory"
	"github.com/pageforge/api/internal/handler"
	"github.com/pageforge/api/internal/middleware"
	"github.com/pageforge/api/internal/registry"
	"github.com/pageforge/api/internal/service"
	"github.com/pageforge/api/internal/worker"
	ws "github.com/pageforge/api/internal/websocket"
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

	// Initialize LLM stage client (falls back to mock stages without a key)
	llmClient := client.NewLLMClient(&cfg.LLM)
	if !llmClient.IsConfigured() {
		log.Println("Info: LLM not configured, stages use mock responses")
	}

	// Job registry and state machine
	jobRegistry := registry.NewRedisRegistry(redisClient)
	stateMachine := factory.NewStateMachine(jobRegistry)

	// Generation service
	generationService := service.NewGenerationService(jobRegistry, stateMachine, asynqClient)

	// Progress hub; subscribing to a draft job triggers its run
	hub := ws.NewHub(jobRegistry)
	hub.SetStarter(generationService)
	go hub.Run()

	// Pipeline orchestrator
	gate := factory.GateConfig{
		MaxAttempts:   cfg.Factory.MaxAttempts,
		PassThreshold: cfg.Factory.PassThreshold,
		CriticalFloor: cfg.Factory.CriticalFloor,
	}
	invoker := factory.NewInvoker(llmClient, time.Duration(cfg.Factory.StageTimeout)*time.Second)
	orchestrator := factory.NewOrchestrator(invoker, hub, gate)

	// Initialize handlers and middleware
	jobHandler := handler.NewJobHandler(generationService, validate)
	authMiddleware := middleware.NewAuthMiddleware(cfg.JWT.Secret)
	rateLimiter := middleware.NewRateLimiter(redisClient)

	// Initialize Fiber app
	app := fiber.New(fiber.Config{
		ErrorHandler: customErrorHandler,
		BodyLimit:    10 * 1024 * 1024, // 10MB
	})

	// Global middleware
	app.Use(recover.New())
	isDebug := strings.EqualFold(cfg.Server.LogLevel, "debug")
	logFormat := "[${time}] ${status} - ${latency} ${method} ${path}\n"
	if isDebug {
		logFormat = "[${time}] ${status} - ${latency} ${method} ${path} ${queryParams} ${body} ${reqHeaders}\n"
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
				"llm":   llmClient.IsConfigured(),
				"redis": redisClient.Ping(c.Context()).Err() == nil,
			},
		})
	})

	// API routes
	api := app.Group("/api", authMiddleware.Authenticate())

	jobs := api.Group("/jobs")
	jobs.Post("/", rateLimiter.IntakeLimit(cfg.RateLimit.IntakePerMin), jobHandler.Create)
	jobs.Post("/:jobId/generate", rateLimiter.GenerateLimit(cfg.RateLimit.GeneratePerHour), jobHandler.Generate)
	jobs.Get("/:jobId", jobHandler.Status)
	jobs.Get("/:jobId/artifact", jobHandler.Artifact)
	jobs.Post("/:jobId/review", authMiddleware.RequireBoss(), jobHandler.Review)
	jobs.Post("/:jobId/revision", authMiddleware.RequireBoss(), rateLimiter.RevisionLimit(cfg.RateLimit.RevisionPerHour), jobHandler.Revision)

	// WebSocket routes
	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})

	app.Get("/ws/jobs/:jobId", websocket.New(func(c *websocket.Conn) {
		jobID := c.Params("jobId")
		hub.HandleConnection(c, jobID)
	}))

	// Start Asynq worker server
	go startWorkerServer(cfg, jobRegistry, stateMachine, orchestrator)

	// Watchdog for jobs stuck in processing
	watchdogCtx, stopWatchdog := context.WithCancel(ctx)
	defer stopWatchdog()
	watchdog := worker.NewWatchdog(
		jobRegistry,
		stateMachine,
		time.Duration(cfg.Factory.ProcessingTimeout)*time.Minute,
		time.Duration(cfg.Factory.WatchdogInterval)*time.Second,
	)
	go watchdog.Run(watchdogCtx)

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-quit
		log.Println("Shutting down server...")
		stopWatchdog()
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
	jobRegistry registry.Registry,
	stateMachine *factory.StateMachine,
	orchestrator *factory.Orchestrator,
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
			Concurrency: 10,
			Queues: map[string]int{
				"factory": 10,
			},
			LogLevel: asynqLogLevel,
		},
	)

	generationWorker := worker.NewGenerationWorker(jobRegistry, stateMachine, orchestrator)

	mux := asynq.NewServeMux()
	mux.HandleFunc(service.TaskTypeGenerate, generationWorker.ProcessGenerate)
	mux.HandleFunc(service.TaskTypeRevision, generationWorker.ProcessRevision)

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
