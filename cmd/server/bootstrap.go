package main

import (
	"time"

	"github.com/huangang/reviewbuddy/backend/internal/config"
	"github.com/huangang/reviewbuddy/backend/internal/handlers"
	"github.com/huangang/reviewbuddy/backend/internal/models"
	"github.com/huangang/reviewbuddy/backend/internal/services"
	"github.com/huangang/reviewbuddy/backend/internal/services/kiyoh"
	"github.com/huangang/reviewbuddy/backend/internal/utils"
	"github.com/huangang/reviewbuddy/backend/pkg/logger"
	"gorm.io/gorm"
)

// appServices holds all initialized services and handlers needed by the application.
type appServices struct {
	cfg           *config.Config
	db            *gorm.DB
	kiyoh         *kiyoh.Client
	ai            *services.AIService
	notifications *services.NotificationService
	reviews       *services.ReviewService
	importer      *services.ImportService
	processor     *services.ReviewProcessor
	invites       *services.InviteService
	manual        *services.ManualNotificationService
	scheduler     *services.Scheduler
	taskQueue     services.TaskQueue
	worker        *services.Worker
	authHandler   *handlers.AuthHandler
}

// bootstrap initializes all application dependencies: database, services, schedulers.
func bootstrap(cfg *config.Config) *appServices {
	utils.SetJWTSecret(cfg.JWT.Secret)

	if err := models.InitDB(&cfg.Database, cfg.Server.Mode == "debug"); err != nil {
		logger.Fatalf("Failed to connect to database: %v", err)
	}
	if err := models.AutoMigrate(); err != nil {
		logger.Fatalf("Failed to migrate database: %v", err)
	}
	if err := models.SeedDefaultData(cfg.Database.SeedDemo); err != nil {
		logger.Warn().Err(err).Msg("Failed to seed default data")
	}
	db := models.GetDB()

	services.InitSystemLogger(db)
	services.SetNotificationTimeout(cfg.Notification.Timeout)

	client := kiyoh.NewClient(
		cfg.Kiyoh.BaseURL,
		time.Duration(cfg.Kiyoh.Timeout)*time.Second,
		time.Duration(cfg.Kiyoh.StatsCacheTTL)*time.Second,
	)
	aiService := services.NewAIService(db, &cfg.LLM)
	notificationService := services.NewNotificationService(db)
	whatsApp := services.NewWhatsAppService(cfg.Notification.TwilioBaseURL, time.Duration(cfg.Notification.Timeout)*time.Second)

	processor := services.NewReviewProcessor(db, aiService, notificationService, whatsApp, cfg.Server.PublicURL)
	processor.Bots = notificationService
	processor.OnProcessed = func(review *models.Review, _ *services.ProcessResult) {
		services.PublishReviewEvent(review, "")
	}

	// Initialize task queue (uses Redis if enabled, otherwise sync mode)
	taskQueue := services.InitTaskQueue(cfg)
	if syncQueue, ok := taskQueue.(*services.SyncQueue); ok {
		syncQueue.SetProcessor(services.ProcessTaskHandler(processor))
	}

	var worker *services.Worker
	if taskQueue.IsAsync() {
		worker = services.InitWorker(&cfg.Redis)
		if worker != nil {
			worker.SetProcessor(services.ProcessTaskHandler(processor))
			if err := worker.Start(); err != nil {
				logger.Error().Err(err).Msg("Failed to start task worker")
			}
		}
	}

	importer := services.NewImportService(db, client)
	if cfg.Kiyoh.AutoProcess {
		importer.EnableAutoProcess(taskQueue)
	}

	scheduler := services.NewScheduler(db, importer, notificationService, cfg.Kiyoh)
	if err := scheduler.Start(); err != nil {
		logger.Fatalf("Failed to start scheduler: %v", err)
	}

	if err := handlers.RegisterDBMetrics(db); err != nil {
		logger.Warn().Err(err).Msg("Failed to register database metrics")
	}

	authHandler := handlers.NewAuthHandler(db, cfg)
	if err := authHandler.CreateAdminIfNotExists(); err != nil {
		logger.Warn().Err(err).Msg("Failed to create admin user")
	}

	return &appServices{
		cfg:           cfg,
		db:            db,
		kiyoh:         client,
		ai:            aiService,
		notifications: notificationService,
		reviews:       services.NewReviewService(db, client),
		importer:      importer,
		processor:     processor,
		invites:       services.NewInviteService(db, client),
		manual:        services.NewManualNotificationService(db, notificationService, whatsApp, cfg.Server.PublicURL),
		scheduler:     scheduler,
		taskQueue:     taskQueue,
		worker:        worker,
		authHandler:   authHandler,
	}
}

// shutdown gracefully stops all services.
func (s *appServices) shutdown() {
	s.scheduler.Stop()
	logger.Info().Msg("Scheduler stopped")

	if s.worker != nil {
		s.worker.Stop()
	}
	if s.taskQueue != nil {
		s.taskQueue.Close()
	}
}
