package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/drivesense-api/internal/config"
	"github.com/noah-isme/drivesense-api/internal/database"
	"github.com/noah-isme/drivesense-api/internal/handler"
	"github.com/noah-isme/drivesense-api/internal/middleware"
	"github.com/noah-isme/drivesense-api/internal/models"
	"github.com/noah-isme/drivesense-api/internal/observability"
	"github.com/noah-isme/drivesense-api/internal/repository"
	"github.com/noah-isme/drivesense-api/internal/router"
	"github.com/noah-isme/drivesense-api/internal/service"
	"github.com/noah-isme/drivesense-api/pkg/analyzer"
	cloud "github.com/noah-isme/drivesense-api/pkg/cloudinary"
	"github.com/noah-isme/drivesense-api/pkg/storage"
)

func main() {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load configuration")
	}
	logger = logger.With().Str("service", cfg.AppName).Str("env", cfg.AppEnv).Logger()

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.Connect(cfg.DatabaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}

	if err := db.AutoMigrate(&models.User{}, &models.DetectionRecord{}, &models.AnalysisResult{}); err != nil {
		logger.Fatal().Err(err).Msg("failed to migrate database")
	}

	redisClient, err := database.ConnectRedis(rootCtx, cfg.RedisURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to redis")
	}
	if redisClient != nil {
		defer redisClient.Close()
	}

	natsConn, err := database.ConnectNATS(cfg.NATSURL, cfg.AppName)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to nats")
	}
	if natsConn != nil {
		defer natsConn.Drain()
	}

	store, err := storage.NewLocal(cfg.UploadDir)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to prepare upload directory")
	}

	var archiver service.ArtifactArchiver
	if cfg.CloudinaryEnabled() {
		cloudArchiver, err := cloud.NewArchiver(cloud.Config{
			CloudName: cfg.CloudinaryCloudName,
			APIKey:    cfg.CloudinaryAPIKey,
			APISecret: cfg.CloudinaryAPISecret,
			Folder:    cfg.CloudinaryUploadFolder,
		}, logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to create cloudinary archiver")
		}
		archiver = cloudArchiver
	}

	analyzerClient, err := analyzer.NewHTTPAnalyzer(analyzer.HTTPConfig{
		BaseURL: cfg.AnalyzerURL,
		Path:    cfg.AnalyzerPath,
		Timeout: cfg.AnalyzerTimeout,
		Logger:  logger,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to create analyzer client")
	}

	alertMinRisk, _ := models.ParseRiskLevel(cfg.AlertMinRisk)
	validate := validator.New(validator.WithRequiredStructEnabled())

	userRepo := repository.NewUserRepository(db)
	detectionRepo := repository.NewDetectionRepository(db)

	credentialService := service.NewCredentialService(userRepo, validate, service.CredentialConfig{
		Secret: cfg.JWTSecret,
		TTL:    cfg.JWTTTL,
	}, logger)
	eventService := service.NewEventService(redisClient, cfg.EventsChannel, natsConn, logger)
	eventService.Start(rootCtx)

	intake := service.NewMediaIntake(store, archiver, cfg.MaxUploadBytes, logger)
	deferred := service.NewDeferredQueue(natsConn, cfg.EventsChannel, logger)
	detectionService := service.NewDetectionService(intake, detectionRepo, analyzerClient, eventService, deferred, service.DetectionServiceConfig{
		AlertMinRisk: alertMinRisk,
	}, logger)
	queryService := service.NewQueryService(detectionRepo, redisClient, service.QueryConfig{
		DefaultLimit: cfg.HistoryDefaultLimit,
		MaxLimit:     cfg.HistoryMaxLimit,
		AlertMinRisk: alertMinRisk,
		CacheTTL:     cfg.DetailCacheTTL,
	}, logger)

	observability.RegisterMetrics()

	app := fiber.New(fiber.Config{
		AppName:      cfg.AppName,
		ServerHeader: cfg.AppName,
		BodyLimit:    int(cfg.MaxUploadBytes) + 1024*1024,
	})

	middleware.Register(app, middleware.Config{Logger: &logger, AccessLog: cfg.AppEnv == "development"})
	router.Register(app, cfg, router.Dependencies{
		AuthHandler:        handler.NewAuthHandler(credentialService, logger),
		DetectionHandler:   handler.NewDetectionHandler(detectionService, logger),
		HistoryHandler:     handler.NewHistoryHandler(queryService, logger),
		EventStreamHandler: handler.NewEventStreamHandler(eventService, logger),
		AuthMiddleware:     middleware.RequireAuth(credentialService),
	})

	go func() {
		logger.Info().Str("addr", cfg.HTTPAddress()).Str("analyzer", cfg.AnalyzerURL).Msg("listening")
		if err := app.Listen(cfg.HTTPAddress()); err != nil {
			logger.Fatal().Err(err).Msg("failed to start server")
		}
	}()

	waitForShutdown(rootCtx, app, logger)
}

func waitForShutdown(ctx context.Context, app *fiber.App, logger zerolog.Logger) {
	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown failed")
	}

	logger.Info().Msg("server stopped")
}
