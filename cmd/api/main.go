package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/websocket/v2"
	"go.uber.org/zap"

	"github.com/deepscan/backend/internal/api/handlers"
	"github.com/deepscan/backend/internal/assistant"
	"github.com/deepscan/backend/internal/auth"
	cacheredis "github.com/deepscan/backend/internal/cache/redis"
	"github.com/deepscan/backend/internal/inference"
	"github.com/deepscan/backend/internal/metrics"
	"github.com/deepscan/backend/internal/middleware/ratelimit"
	"github.com/deepscan/backend/internal/middleware/security"
	"github.com/deepscan/backend/internal/middleware/validation"
	"github.com/deepscan/backend/internal/resolver"
	"github.com/deepscan/backend/internal/scan"
	"github.com/deepscan/backend/internal/stats"
	"github.com/deepscan/backend/internal/storage/sqlite"
	"github.com/deepscan/backend/pkg/config"
	appLogger "github.com/deepscan/backend/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	err = appLogger.Init(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.OutputPath)
	if err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer appLogger.Sync()

	appLogger.Info("Starting deepfake scan API server")

	metrics.Init()

	sqliteClient, err := sqlite.NewClient(cfg.SQLite.Path)
	if err != nil {
		appLogger.Fatal("Failed to create SQLite client", zap.Error(err))
	}
	defer sqliteClient.Close()

	err = sqliteClient.InitSchema()
	if err != nil {
		appLogger.Fatal("Failed to initialize schema", zap.Error(err))
	}

	// The scan cache is optional: without Redis every scan just hits
	// inference directly.
	var scanCache scan.Cache
	var redisPing func(ctx context.Context) error
	redisClient, err := cacheredis.NewClient(
		cfg.Redis.Host,
		cfg.Redis.Port,
		cfg.Redis.Password,
		cfg.Redis.DB,
		time.Duration(cfg.Redis.ScanTTLMinutes)*time.Minute,
	)
	if err != nil {
		appLogger.Warn("Redis unavailable, scan caching disabled", zap.Error(err))
	} else {
		defer redisClient.Close()
		scanCache = redisClient
		redisPing = redisClient.Ping
	}

	inferenceClient := inference.NewClient(inference.Config{
		BaseURL:       cfg.AI.BaseURL,
		URLTimeout:    time.Duration(cfg.AI.URLTimeoutSec) * time.Second,
		UploadTimeout: time.Duration(cfg.AI.UploadTimeoutSec) * time.Second,
		HealthTimeout: time.Duration(cfg.AI.HealthTimeoutSec) * time.Second,
	})

	urlResolver := resolver.New(resolver.Config{
		Timeout:      time.Duration(cfg.Resolver.TimeoutSec) * time.Second,
		MaxRedirects: cfg.Resolver.MaxRedirects,
		HTMLMaxChars: cfg.Resolver.HTMLMaxChars,
	})

	scanService := scan.NewService(sqliteClient, urlResolver, inferenceClient, scanCache)
	statsService := stats.NewService(sqliteClient)

	jwtManager := auth.NewJWTManager(cfg.Auth.JWTSecret, time.Duration(cfg.Auth.TokenTTLHours)*time.Hour)
	authService := auth.NewService(sqliteClient, jwtManager, nil,
		time.Duration(cfg.Auth.ResetTTLMinutes)*time.Minute)

	helpAssistant := assistant.New(assistant.Config{
		Enabled:   cfg.Assistant.Enabled,
		APIKey:    cfg.Assistant.APIKey,
		Model:     cfg.Assistant.Model,
		MaxTokens: cfg.Assistant.MaxTokens,
	})

	app := fiber.New(fiber.Config{
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		BodyLimit:    cfg.Server.BodyLimit,
	})

	app.Use(recover.New())
	app.Use(logger.New())
	app.Use(security.HeadersMiddleware(security.HeadersConfig{
		AllowedOrigins: strings.Split(cfg.Server.CORSOrigins, ","),
	}))
	app.Use(cors.New(cors.Config{
		AllowOrigins: cfg.Server.CORSOrigins,
		AllowHeaders: "Origin, Content-Type, Accept, Authorization",
		AllowMethods: "GET, POST, PUT, DELETE, OPTIONS",
	}))

	rateLimiter := ratelimit.New(ratelimit.Config{
		MaxRequestsPerMinute: 60,
		Logger:               appLogger.GetLogger(),
	})
	defer rateLimiter.Stop()

	scanHandler := handlers.NewScanHandler(scanService, statsService)
	authHandler := handlers.NewAuthHandler(authService)
	adminHandler := handlers.NewAdminHandler(sqliteClient, statsService)
	chatHandler := handlers.NewChatHandler(helpAssistant)
	healthHandler := handlers.NewHealthHandler(inferenceClient, redisPing)
	wsHandler := handlers.NewWebSocketHandler(scanService, jwtManager)

	api := app.Group("/api/v1")

	api.Get("/health", healthHandler.Handle)
	app.Get("/metrics", metrics.MetricsHandler())

	authGroup := api.Group("/auth")
	authGroup.Post("/register", authHandler.Register)
	authGroup.Post("/login", authHandler.Login)
	authGroup.Post("/forgot-password", authHandler.ForgotPassword)
	authGroup.Post("/reset-password", authHandler.ResetPassword)
	authGroup.Post("/reset-password/:token", authHandler.ResetPassword)
	authGroup.Get("/me", auth.RequireAuth(jwtManager), authHandler.Me)

	// Registered before the scan group so the upgrade skips header auth; the
	// socket authenticates in-message (browsers cannot set Authorization on a
	// websocket handshake).
	api.Get("/scan/bulk/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	}, websocket.New(wsHandler.HandleConnection))

	scanGroup := api.Group("/scan",
		auth.RequireAuth(jwtManager),
		rateLimiter.Middleware(),
		validation.Middleware(validation.Config{Logger: appLogger.GetLogger()}),
	)
	scanGroup.Post("/", scanHandler.HandleScanURL)
	scanGroup.Post("/file", scanHandler.HandleScanFile)
	scanGroup.Post("/bulk", scanHandler.HandleBulkScan)
	scanGroup.Get("/history", scanHandler.GetHistory)
	scanGroup.Get("/summary", scanHandler.GetSummary)
	scanGroup.Post("/proof", scanHandler.CreateProof)
	scanGroup.Get("/proofs", scanHandler.ListProofs)

	api.Post("/chat", auth.RequireAuth(jwtManager), rateLimiter.Middleware(), chatHandler.HandleAsk)

	// Admin login stays outside the admin gate: it is how a session with the
	// admin role is obtained in the first place.
	api.Post("/admin/login", authHandler.AdminLogin)

	adminGroup := api.Group("/admin", auth.RequireAuth(jwtManager), auth.RequireAdmin())
	adminGroup.Get("/stats", adminHandler.GetStats)
	adminGroup.Get("/trends", adminHandler.GetRiskTrend)
	adminGroup.Get("/distribution", adminHandler.GetDistribution)
	adminGroup.Get("/users", adminHandler.ListUsers)
	adminGroup.Get("/scans", adminHandler.ListScans)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	appLogger.Info("Server starting", zap.String("address", addr))

	go func() {
		if err := app.Listen(addr); err != nil {
			appLogger.Fatal("Server failed to start", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	appLogger.Info("Server shutting down gracefully...")
	app.Shutdown()
	appLogger.Info("Server stopped")
}
