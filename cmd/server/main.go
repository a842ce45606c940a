package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/redis/go-redis/v9"
	"github.com/schedulo/verify/internal/config"
	"github.com/schedulo/verify/internal/database"
	"github.com/schedulo/verify/internal/delivery"
	"github.com/schedulo/verify/internal/handlers"
	"github.com/schedulo/verify/internal/middleware"
	"github.com/schedulo/verify/internal/ratelimit"
	"github.com/schedulo/verify/internal/services"
	"github.com/schedulo/verify/internal/storage"
	"github.com/schedulo/verify/pkg/logger"
	"github.com/schedulo/verify/pkg/utils"
)

func main() {
	logger.Init()

	cfg := config.Load()
	utils.ConfigureJWT(cfg.JWT.Secret, cfg.JWT.ExpirationHours)
	utils.ConfigureDigest(cfg.JWT.DigestSecret)

	db, err := database.Connect(cfg.DB)
	if err != nil {
		log.Fatalf("database connection failed: %v", err)
	}

	var storageClient *storage.MinIOClient
	if cfg.MinIO.Endpoint != "" {
		storageClient, err = storage.NewMinIOClient(cfg.MinIO)
		if err != nil {
			log.Fatalf("minio initialization failed: %v", err)
		}
		if err := storageClient.EnsureBucket(context.Background()); err != nil {
			log.Fatalf("failed ensuring minio bucket: %v", err)
		}
	}

	sender := delivery.NewSender(cfg.Delivery.SendTimeout,
		delivery.NewSMSGateway(cfg.Delivery.SMSEndpoint, cfg.Delivery.SMSAPIKey, cfg.Delivery.SMSSender),
		delivery.NewEmailGateway(cfg.Delivery.SMTPHost, cfg.Delivery.SMTPPort, cfg.Delivery.SMTPUser, cfg.Delivery.SMTPPass, cfg.Delivery.SMTPFrom),
		delivery.NewWhatsAppGateway(cfg.Delivery.WhatsAppEndpoint, cfg.Delivery.WhatsAppToken),
	)

	store := services.NewChallengeStore(db)
	accounts := services.NewAccountDirectory(db)
	throttle := services.NewResendThrottle(store, cfg.Challenge.ResendCooldown)
	engine := services.NewEngine(store, accounts, throttle, sender, cfg.Challenge.CodeTTL, cfg.Challenge.MaxAttempts)
	trust := services.NewDeviceTrustManager(db, cfg.DeviceTrust.GrantDays, cfg.DeviceTrust.MaxGrantDays)

	auditService := services.NewAuditService(db, storageClient)
	auditService.StartExporter(cfg.Audit.ExportInterval)

	reaper := services.NewReaper(db, cfg.Challenge.RetentionDays, cfg.Challenge.ReapInterval)
	reaper.Start()

	challengesHandler := handlers.NewChallengesHandler(engine, auditService)
	devicesHandler := handlers.NewDevicesHandler(trust, store, auditService)

	app := fiber.New(fiber.Config{BodyLimit: 1024 * 1024})
	app.Use(recover.New(recover.Config{EnableStackTrace: true}))
	app.Use(cors.New())
	app.Use(middleware.RequestLogger())

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.Status(fiber.StatusOK).JSON(fiber.Map{"status": "ok"})
	})

	api := app.Group("/api", middleware.RequireServiceAuth)

	if cfg.Redis.Addr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		limiter := ratelimit.NewRedisLimiter(rdb, cfg.RateLimit.RequestsPerMinute, time.Minute)
		api.Use(middleware.RateLimit(limiter))
		logger.Info("rate_limiter_enabled", map[string]interface{}{
			"requests_per_minute": cfg.RateLimit.RequestsPerMinute,
		})
	}

	challengeRoutes := api.Group("/challenges")
	challengeRoutes.Post("/", challengesHandler.Issue)
	challengeRoutes.Post("/:id/verify", challengesHandler.Verify)
	challengeRoutes.Post("/:id/resend", challengesHandler.Resend)

	deviceRoutes := api.Group("/devices")
	deviceRoutes.Post("/check", devicesHandler.Check)
	deviceRoutes.Post("/trust", devicesHandler.TrustDevice)
	deviceRoutes.Get("/", devicesHandler.List)
	deviceRoutes.Delete("/", devicesHandler.RevokeAll)
	deviceRoutes.Delete("/:id", devicesHandler.Revoke)

	listenAddr := fmt.Sprintf(":%s", cfg.Server.Port)

	logger.Info("server_starting", map[string]interface{}{
		"port":    cfg.Server.Port,
		"address": listenAddr,
	})

	errCh := make(chan error, 1)
	go func() {
		errCh <- app.Listen(listenAddr)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		log.Printf("shutting down server due to signal: %s", sig)
		shutdownDone := make(chan struct{})
		go func() {
			_ = app.Shutdown()
			close(shutdownDone)
		}()
		select {
		case <-shutdownDone:
		case <-time.After(10 * time.Second):
			log.Print("forced shutdown timeout reached")
		}
	case err := <-errCh:
		if err != nil {
			log.Fatalf("server error: %v", err)
		}
	}
}
