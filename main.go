package main

import (
	"dr-tracker-service/config"
	"dr-tracker-service/database"
	"dr-tracker-service/handlers"
	"dr-tracker-service/middleware"
	"dr-tracker-service/services"
	"log"
	"time"

	"github.com/gin-gonic/gin"
)

func main() {
	// Load configuration
	config.LoadConfig()

	// Initialize database
	if err := database.InitDB(config.AppConfig.DBPath); err != nil {
		log.Fatal("Failed to initialize database:", err)
	}
	db := database.GetDB()

	// Wire services
	mailer := services.NewPlunkClient()
	emailService := services.NewEmailService(db, mailer)
	prefService := services.NewPreferenceService(db)
	milestoneService := services.NewMilestoneService(db, prefService, emailService)

	singleLimiter := services.NewLimiter(config.AppConfig.RefreshRateLimitMax, config.AppConfig.RefreshRateLimitWindow)
	bulkLimiter := services.NewLimiter(config.AppConfig.BulkRateLimitMax, config.AppConfig.BulkRateLimitWindow)

	refreshService := services.NewRefreshService(
		db,
		services.NewSEOClient(),
		prefService,
		milestoneService,
		emailService,
		singleLimiter,
		bulkLimiter,
	)
	notifierService := services.NewNotifierService(db, prefService, emailService)
	budgetService := services.NewBudgetService(db, emailService, config.AppConfig.MonthlyAPIBudget, config.AppConfig.AlertEmail)

	services.SetGlobalRefreshService(refreshService)
	services.SetGlobalPreferenceService(prefService)
	services.SetGlobalNotifierService(notifierService)
	services.SetGlobalBudgetService(budgetService)

	statsService := services.NewStatisticsService(db, config.AppConfig.DBPath)
	services.SetGlobalStatsService(statsService)
	statsService.Start()
	defer statsService.Stop()

	// Background maintenance
	go middleware.CleanupRateLimitStore()
	go pruneLimiters(singleLimiter, bulkLimiter)

	// Setup Gin router
	router := gin.Default()

	// CORS middleware
	router.Use(func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, Authorization, accept, origin, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT, DELETE, PATCH")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	})

	// Health check
	router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	// Public routes
	public := router.Group("/api")
	{
		// Auth with rate limiting against brute force
		public.POST("/auth/register",
			middleware.RateLimitMiddleware(5, 15*time.Minute),
			handlers.Register)
		public.POST("/auth/login",
			middleware.RateLimitMiddleware(10, 15*time.Minute),
			handlers.Login)
		public.POST("/auth/refresh",
			middleware.RateLimitMiddleware(30, 15*time.Minute),
			handlers.RefreshToken)

		// Aggregate service statistics
		public.GET("/stats", handlers.GetStatistics)
	}

	// Cron routes (triggered by the external scheduler)
	cron := router.Group("/api/cron")
	cron.Use(handlers.CronAuthMiddleware())
	{
		cron.GET("/domain-monitor", handlers.CronDomainMonitor)
		cron.GET("/daily-batch", handlers.CronDailyBatch)
		cron.GET("/weekly-recap", handlers.CronWeeklyRecap)
		cron.GET("/inactivity-warnings", handlers.CronInactivityWarnings)
		cron.GET("/budget-monitor", handlers.CronBudgetMonitor)
	}

	// Protected routes (require authentication)
	protected := router.Group("/api")
	protected.Use(middleware.AuthMiddleware())
	{
		// Domain management
		protected.POST("/domains", handlers.AddDomain)
		protected.GET("/domains", handlers.ListDomains)
		protected.GET("/domains/:id/history", handlers.GetDomainHistory)
		protected.DELETE("/domains/:id", handlers.DeleteDomain)

		// On-demand refresh (paid feature, quota enforced in the service)
		protected.POST("/domains/:id/refresh", handlers.RefreshDomain)
		protected.POST("/refresh-all", handlers.BulkRefresh)

		// Notification preferences
		protected.GET("/notifications/preferences", handlers.GetNotificationPreferences)
		protected.PATCH("/notifications/preferences", handlers.UpdateNotificationPreferences)
	}

	// Start server
	log.Printf("Server starting on port %s", config.AppConfig.Port)
	if err := router.Run(":" + config.AppConfig.Port); err != nil {
		log.Fatal("Failed to start server:", err)
	}
}

// pruneLimiters drops expired refresh quota windows periodically
func pruneLimiters(limiters ...*services.Limiter) {
	ticker := time.NewTicker(1 * time.Hour)
	for range ticker.C {
		for _, l := range limiters {
			l.Prune()
		}
	}
}
