package bootstrap

import (
	"context"
	"log"
	"time"

	"interview-copilot-be/internal/config"
	"interview-copilot-be/internal/controller"
	"interview-copilot-be/internal/handler"
	"interview-copilot-be/internal/pkg/logger"
	"interview-copilot-be/internal/repository/implementation"
	"interview-copilot-be/internal/repository/memory"
	"interview-copilot-be/internal/repository/unitofwork"
	"interview-copilot-be/internal/service"
	"interview-copilot-be/internal/websocket"
	"interview-copilot-be/pkg/copilot/latency"
	"interview-copilot-be/pkg/events"
	"interview-copilot-be/pkg/llm/factory"
	pktNats "interview-copilot-be/pkg/nats"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

type Container struct {
	// Controllers
	CopilotController controller.ICopilotController
	AdminController   controller.IAdminController

	// Background Services (Exposed for main.go to run)
	SummaryService service.ISummaryService
	AuditService   *service.AuditService

	// WebSockets
	SessionStreamHandler *handler.SessionStreamHandler
	WebSocketHub         *websocket.Hub

	// Shared infrastructure
	Logger         logger.ILogger
	LatencyLogger  logger.ILogger
	LatencyTracker *latency.Tracker

	closers []func()
}

// NewContainer wires every dependency. Redis and NATS are optional: without
// them rate limits are per instance and lifecycle events are not published.
func NewContainer(ctx context.Context, db *gorm.DB, cfg *config.Config) *Container {
	// 1. Core Facades
	uowFactory := unitofwork.NewRepositoryFactory(db)
	sysLogger := logger.NewZapLogger(cfg.App.LogFilePath, cfg.IsProduction())
	latencyLogger := logger.NewIsolatedLogger(cfg.App.LatencyLogFilePath)
	auditLogger := logger.NewIsolatedLogger("logs/audit.log")
	wsLogger := logger.NewIsolatedLogger("logs/websocket.log")

	c := &Container{
		Logger:         sysLogger,
		LatencyLogger:  latencyLogger,
		LatencyTracker: latency.NewTracker(time.Now),
	}

	// 2. Event Bus
	pubSub := gochannel.NewGoChannel(
		gochannel.Config{OutputChannelBuffer: 64},
		watermill.NewStdLogger(false, false),
	)
	c.closers = append(c.closers, func() { _ = pubSub.Close() })

	// 3. Infrastructure
	// NATS
	var publisher events.Publisher = events.NopPublisher{}
	natsPub, err := pktNats.NewPublisher(cfg.App.NatsURL)
	if err != nil {
		log.Printf("[WARN] Failed to connect to NATS Publisher: %v", err)
	} else {
		publisher = natsPub
		c.closers = append(c.closers, natsPub.Close)
	}
	natsSub, err := pktNats.NewSubscriber(cfg.App.NatsURL)
	if err != nil {
		log.Printf("[WARN] Failed to connect to NATS Subscriber: %v", err)
	} else {
		c.AuditService = service.NewAuditService(natsSub, auditLogger)
		c.closers = append(c.closers, natsSub.Close)
	}

	// Redis
	opt, err := redis.ParseURL(cfg.App.RedisURL)
	if err != nil {
		log.Printf("[WARN] Failed to parse Redis URL: %v. Using direct Addr", err)
		opt = &redis.Options{
			Addr: cfg.App.RedisURL,
		}
	}
	rdb := redis.NewClient(opt)
	if _, err := rdb.Ping(ctx).Result(); err != nil {
		log.Printf("[WARN] Failed to connect to Redis: %v", err)
	}
	c.closers = append(c.closers, func() { _ = rdb.Close() })

	rateLimiter := implementation.NewRedisRateLimiter(rdb, memory.NewRateLimiter(time.Now), sysLogger)

	// WebSocket Hub
	wsHub := websocket.NewHub(rdb, wsLogger)
	go wsHub.Run(ctx)
	c.WebSocketHub = wsHub

	// LLM Provider
	llmProvider, err := factory.NewLLMProvider(cfg.Ai)
	if err != nil {
		log.Fatalf("[FATAL] Failed to initialize LLM Provider: %v", err)
	}
	log.Printf("[INFO] Using LLM Provider: %s (%s)", cfg.Ai.LLMProvider, cfg.Ai.LLMModel)

	// 4. Services
	summaryService := service.NewSummaryService(pubSub, pubSub, uowFactory, llmProvider, sysLogger)
	copilotService := service.NewCopilotService(
		uowFactory,
		service.NewCopilotSettings(cfg.Copilot),
		rateLimiter,
		llmProvider,
		publisher,
		wsHub,
		summaryService,
		sysLogger,
		time.Now,
	)
	retentionService := service.NewRetentionService(
		uowFactory,
		service.NewRetentionPolicy(cfg.Retention),
		publisher,
		sysLogger,
		time.Now,
	)
	c.SummaryService = summaryService

	// 5. Controllers & Handlers
	c.CopilotController = controller.NewCopilotController(copilotService, cfg.App.JwtSecret)
	c.AdminController = controller.NewAdminController(retentionService, wsHub, c.LatencyTracker, cfg.App.JwtSecret)
	c.SessionStreamHandler = handler.NewSessionStreamHandler(copilotService, wsHub, cfg.App.JwtSecret, wsLogger)

	return c
}

// Close releases connections in reverse order of creation.
func (c *Container) Close() {
	for i := len(c.closers) - 1; i >= 0; i-- {
		c.closers[i]()
	}
	_ = c.Logger.Sync()
}
