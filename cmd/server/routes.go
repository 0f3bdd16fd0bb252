package main

import (
	"github.com/gin-gonic/gin"
	"github.com/huangang/reviewbuddy/backend/internal/handlers"
	"github.com/huangang/reviewbuddy/backend/internal/middleware"
	"github.com/huangang/reviewbuddy/backend/internal/services"
	"github.com/huangang/reviewbuddy/backend/pkg/logger"
	"github.com/prometheus/client_golang/prometheus"
)

// registerRoutes sets up all HTTP routes on the given Gin engine.
func registerRoutes(r *gin.Engine, svc *appServices) {
	r.Use(logger.GinLogger(), logger.GinRecovery())
	r.RedirectTrailingSlash = false
	r.RedirectFixedPath = false
	r.Use(middleware.CORS(svc.cfg.Server))

	if httpMetrics, err := middleware.NewHTTPMetrics(prometheus.DefaultRegisterer); err != nil {
		logger.Warn().Err(err).Msg("Failed to register HTTP metrics")
	} else {
		r.Use(httpMetrics.Handler())
	}

	// Login and refresh are the only unauthenticated writes.
	authLimiter := middleware.NewRateLimiter(1, 5, middleware.ClientIP)
	// Each process run costs two LLM calls; charged per operator.
	processLimiter := middleware.NewRateLimiter(2, 10, middleware.UserOrIP)

	healthHandler := handlers.NewHealthHandler(svc.db)
	r.GET("/health", healthHandler.CheckHealth)
	r.GET("/metrics", handlers.Metrics())

	reviewHandler := handlers.NewReviewHandler(svc.db, svc.reviews, svc.processor, svc.taskQueue)
	importHandler := handlers.NewImportHandler(svc.db, svc.importer)
	auditLogHandler := handlers.NewAuditLogHandler(svc.db)
	settingsHandler := handlers.NewSettingsHandler(svc.db)
	inviteHandler := handlers.NewInviteHandler(svc.db, svc.invites)
	notificationHandler := handlers.NewNotificationHandler(svc.db, svc.manual)
	dashboardHandler := handlers.NewDashboardHandler(svc.db, svc.kiyoh)
	aiUsageHandler := handlers.NewAIUsageHandler(svc.db)
	userHandler := handlers.NewUserHandler(svc.db)
	llmConfigHandler := handlers.NewLLMConfigHandler(svc.db, svc.ai)
	imBotHandler := handlers.NewIMBotHandler(svc.db, svc.notifications)
	systemLogHandler := handlers.NewSystemLogHandler(svc.db)
	systemConfigHandler := handlers.NewSystemConfigHandler(svc.db, svc.scheduler)

	api := r.Group("/api")
	{
		// Auth routes (public)
		auth := api.Group("/auth", authLimiter.Middleware())
		{
			auth.POST("/login", svc.authHandler.Login)
			auth.POST("/refresh", svc.authHandler.Refresh)
		}

		// SSE Events (public route with internal token validation)
		sseHandler := handlers.NewSSEHandler(services.GetSSEHub())
		api.GET("/events", sseHandler.StreamEvents)

		// Read access for every signed-in user
		protected := api.Group("")
		protected.Use(middleware.AuthRequired())
		{
			protected.GET("/auth/me", svc.authHandler.GetCurrentUser)
			protected.POST("/auth/logout", svc.authHandler.Logout)
			protected.POST("/auth/change-password", svc.authHandler.ChangePassword)

			protected.GET("/dashboard/stats", dashboardHandler.GetStats)

			protected.GET("/reviews", reviewHandler.List)
			protected.GET("/reviews/:id", reviewHandler.Get)
			protected.GET("/reviews/:id/cost", aiUsageHandler.GetReviewCost)

			protected.GET("/audit-logs", auditLogHandler.List)
			protected.GET("/settings", settingsHandler.Get)

			protected.GET("/health/today", healthHandler.Today)
			protected.GET("/health/history", healthHandler.History)
		}

		// Reviewers and admins act on reviews
		operators := api.Group("")
		operators.Use(middleware.AuthRequired(), middleware.WriteAccess(), middleware.AuditLog())
		{
			operators.PATCH("/reviews/:id", reviewHandler.Update)
			operators.POST("/reviews/:id/process", processLimiter.Middleware(), reviewHandler.Process)
			operators.POST("/reviews/:id/publish", reviewHandler.Publish)
			operators.POST("/reviews/process-new", reviewHandler.ProcessNew)
			operators.POST("/reviews/fetch", importHandler.Fetch)

			operators.POST("/invites", inviteHandler.Send)
			operators.POST("/notifications/slack", notificationHandler.SendSlack)
		}

		// Admin only routes
		admin := api.Group("")
		admin.Use(middleware.AuthRequired(), middleware.AdminRequired(), middleware.AuditLog())
		{
			admin.PUT("/settings", settingsHandler.Update)
			admin.POST("/notifications/whatsapp/test", notificationHandler.TestWhatsApp)

			admin.GET("/users", userHandler.List)
			admin.POST("/users", userHandler.Create)
			admin.PUT("/users/:id", userHandler.Update)
			admin.DELETE("/users/:id", userHandler.Delete)

			admin.GET("/llm-configs", llmConfigHandler.List)
			admin.GET("/llm-configs/active", llmConfigHandler.GetActive)
			admin.GET("/llm-configs/:id", llmConfigHandler.GetByID)
			admin.POST("/llm-configs", llmConfigHandler.Create)
			admin.PUT("/llm-configs/:id", llmConfigHandler.Update)
			admin.DELETE("/llm-configs/:id", llmConfigHandler.Delete)
			admin.POST("/llm-configs/:id/test", llmConfigHandler.TestConnection)

			admin.GET("/im-bots", imBotHandler.List)
			admin.GET("/im-bots/active", imBotHandler.GetAllActive)
			admin.GET("/im-bots/:id", imBotHandler.GetByID)
			admin.POST("/im-bots", imBotHandler.Create)
			admin.PUT("/im-bots/:id", imBotHandler.Update)
			admin.DELETE("/im-bots/:id", imBotHandler.Delete)
			admin.POST("/im-bots/:id/test", imBotHandler.SendTest)

			admin.GET("/ai-usage/stats", aiUsageHandler.GetStats)
			admin.GET("/ai-usage/trend", aiUsageHandler.GetDailyTrend)
			admin.GET("/ai-usage/providers", aiUsageHandler.GetProviderBreakdown)

			admin.GET("/system-logs", systemLogHandler.List)
			admin.GET("/system-logs/modules", systemLogHandler.GetModules)

			admin.GET("/system-config/operations", systemConfigHandler.GetOperationsConfig)
			admin.PUT("/system-config/operations", systemConfigHandler.UpdateOperationsConfig)
		}
	}
}
