package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/aakar745/expo-booking-backend/internal/config"
	"github.com/aakar745/expo-booking-backend/internal/database"
	"github.com/aakar745/expo-booking-backend/internal/handlers"
	"github.com/aakar745/expo-booking-backend/internal/middleware"
	"github.com/aakar745/expo-booking-backend/internal/services"
	"github.com/aakar745/expo-booking-backend/pkg/jwt"
)

var (
	version   = "1.0.0"
	buildTime = "unknown"
)

func main() {
	// Initialize logger
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	logger.SetOutput(os.Stdout)

	logger.Info("Starting Expo Stall Booking Backend")
	logger.Infof("Version: %s, Build Time: %s", version, buildTime)

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logger.Fatalf("Failed to load configuration: %v", err)
	}

	logLevel, err := logrus.ParseLevel(cfg.Server.LogLevel)
	if err != nil {
		logger.Warn("Invalid log level, using INFO")
		logLevel = logrus.InfoLevel
	}
	logger.SetLevel(logLevel)

	if cfg.Server.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}

	// Initialize database connection
	logger.Info("Connecting to database...")
	db, err := database.NewConnection(cfg.Database)
	if err != nil {
		logger.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()
	logger.Info("Database connection established")

	// Initialize services
	logger.Info("Initializing services...")
	jwtService := jwt.NewService(
		cfg.JWT.Secret,
		cfg.JWT.RefreshSecret,
		cfg.JWT.AccessTokenExpiry,
		cfg.JWT.RefreshTokenExpiry,
	)

	auditRepo := database.NewPaymentAuditRepository(db.DB, logger)
	auditService := services.NewAuditService(auditRepo, logger)

	pricingEngine := services.NewPricingEngine()
	inventoryService := services.NewInventoryService(&cfg.Inventory, logger)
	gatewayService := services.NewPhonePeService(&cfg.Payment, logger)
	if !gatewayService.IsConfigured() {
		logger.Warn("Payment gateway credentials missing, order creation will fail")
	}

	guard := services.NewPaymentGuard(services.PaymentGuardConfig{
		DebounceWindow: cfg.Booking.DebounceWindow,
		CooldownWindow: cfg.Booking.CooldownWindow,
		RetryBudget:    cfg.Booking.RetryBudget,
	}, logger)

	registry := services.NewWizardRegistry(cfg.Booking.WizardIdleTTL, logger)
	registry.Start()
	defer registry.Stop()

	// A stall sold out from under a checkout sends the buyer back to review
	guard.SetInventoryConflictHook(func(draftID string) {
		if w, ok := registry.FindByDraft(draftID); ok {
			w.ResetToReview()
		}
	})

	// Initialize handlers
	bookingHandler := handlers.NewBookingHandler(
		registry, inventoryService, gatewayService, guard,
		auditService, pricingEngine, cfg.Booking, logger,
	)
	webhookHandler := handlers.NewWebhookHandler(registry, gatewayService, auditService, logger)

	// Initialize Gin router
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(requestLogger(logger))

	corsConfig := cors.Config{
		AllowOrigins:     cfg.CORS.AllowedOrigins,
		AllowMethods:     cfg.CORS.AllowedMethods,
		AllowHeaders:     cfg.CORS.AllowedHeaders,
		ExposeHeaders:    []string{"Content-Length", "Retry-After"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	router.Use(cors.New(corsConfig))

	router.GET("/health", healthCheckHandler(db))

	optionalAuth := middleware.OptionalAuthMiddleware(jwtService, logger)
	requireAuth := middleware.AuthMiddleware(jwtService, logger)

	// API v1 routes
	v1 := router.Group("/api/v1")
	{
		wizard := v1.Group("/booking/wizard")
		wizard.Use(optionalAuth)
		{
			wizard.POST("", bookingHandler.StartWizard)
			wizard.GET("/:id", bookingHandler.GetWizard)
			wizard.POST("/:id/next", bookingHandler.NextStep)
			wizard.POST("/:id/previous", bookingHandler.PreviousStep)
			wizard.PATCH("/:id", bookingHandler.UpdateWizard)
			wizard.DELETE("/:id", bookingHandler.DiscardWizard)
			wizard.DELETE("/:id/stalls/:stallId", bookingHandler.RemoveStall)
			wizard.POST("/:id/amenities", bookingHandler.SelectAmenity)
			wizard.DELETE("/:id/amenities/:amenityId", bookingHandler.RemoveAmenity)
		}

		// Money moves only for signed-in exhibitors
		pay := v1.Group("/booking/wizard")
		pay.Use(requireAuth)
		{
			pay.POST("/:id/pay", bookingHandler.InitiatePayment)
			pay.POST("/:id/verify", bookingHandler.VerifyPayment)
		}

		v1.POST("/payments/webhook", webhookHandler.HandlePaymentWebhook)
	}

	// Create HTTP server
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Infof("Server starting on port %s", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Errorf("Server forced to shutdown: %v", err)
	}

	logger.Info("Server exited successfully")
}

// requestLogger middleware for logging HTTP requests
func requestLogger(logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		fields := logrus.Fields{
			"status":     c.Writer.Status(),
			"method":     c.Request.Method,
			"path":       path,
			"ip":         c.ClientIP(),
			"latency_ms": time.Since(start).Milliseconds(),
			"user_agent": c.Request.UserAgent(),
		}

		entry := logger.WithFields(fields)
		switch {
		case len(c.Errors) > 0:
			entry.WithField("errors", c.Errors.String()).Error("Request failed with errors")
		case c.Writer.Status() >= 500:
			entry.Error("Request completed with server error")
		case c.Writer.Status() >= 400:
			entry.Warn("Request completed with client error")
		default:
			entry.Info("Request completed")
		}
	}
}

// healthCheckHandler reports service and database health
func healthCheckHandler(db database.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		status := "healthy"
		dbStatus := "connected"
		code := http.StatusOK

		if err := db.Ping(); err != nil {
			status = "degraded"
			dbStatus = "disconnected"
			code = http.StatusServiceUnavailable
		}

		c.JSON(code, gin.H{
			"status":    status,
			"database":  dbStatus,
			"version":   version,
			"timestamp": time.Now().UTC(),
		})
	}
}
