// Package main runs the SmartInvite HTTP API with the organizer WebSocket feed and graceful shutdown.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/smartinvite/backend/config"
	"github.com/smartinvite/backend/internal/auth"
	"github.com/smartinvite/backend/internal/billing"
	"github.com/smartinvite/backend/internal/events"
	"github.com/smartinvite/backend/internal/guests"
	"github.com/smartinvite/backend/internal/messaging"
	"github.com/smartinvite/backend/internal/middleware"
	"github.com/smartinvite/backend/internal/organizations"
	"github.com/smartinvite/backend/internal/realtime"
	"github.com/smartinvite/backend/internal/rsvp"
	"github.com/smartinvite/backend/pkg/database"
	"github.com/smartinvite/backend/pkg/queue"
	"github.com/smartinvite/backend/pkg/redis"
	"github.com/smartinvite/backend/pkg/response"
)

func main() {
	logger := newLogger()
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("load config", zap.Error(err))
	}

	ctx := context.Background()
	pool, err := database.NewPostgresPool(ctx, cfg.Database.DSN(), logger)
	if err != nil {
		logger.Fatal("database", zap.Error(err))
	}
	defer pool.Close()

	if err := database.Migrate(ctx, pool, logger); err != nil {
		logger.Fatal("migrate", zap.Error(err))
	}

	rdb, err := redis.NewClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, logger)
	if err != nil {
		logger.Fatal("redis", zap.Error(err))
	}
	defer rdb.Close()

	jwtService := auth.NewJWTService(cfg.JWT.Secret, cfg.JWT.ExpireHours)
	redisPubSub := realtime.NewRedisPubSub(rdb.Client, logger)
	hub := realtime.NewHub(logger, redisPubSub, redisPubSub)
	jobQueue := queue.NewQueue(rdb.Client, logger)

	// Billing
	returnURL := cfg.App.CheckoutReturnURL()
	checkout := billing.NewStripeProvider(billing.StripeOptions{
		SecretKey:   cfg.Stripe.SecretKey,
		Currency:    cfg.Stripe.Currency,
		Locale:      cfg.Stripe.Locale,
		ProductName: cfg.Stripe.ProductName,
		SuccessURL:  returnURL,
		CancelURL:   returnURL,
	})
	if cfg.Stripe.SecretKey == "" {
		logger.Warn("STRIPE_SECRET_KEY not set, paid events cannot open checkout sessions")
	}
	var verifier billing.WebhookVerifier
	if cfg.Stripe.WebhookSecret != "" {
		verifier = billing.NewStripeVerifier(cfg.Stripe.WebhookSecret)
	}

	// Events
	eventRepo := events.NewRepository(pool)
	eventService := events.NewService(eventRepo, checkout, logger)
	eventHandler := events.NewHandler(eventService, logger)
	reconciler := billing.NewReconciler(eventRepo, hub, logger)
	billingWebhook := billing.NewWebhookHandler(verifier, reconciler, logger)

	// Organizations
	orgRepo := organizations.NewRepository(pool)

	// Guests and public RSVP
	guestRepo := guests.NewRepository(pool)
	guestHandler := guests.NewHandler(guests.NewService(guestRepo, eventRepo, logger))
	rsvpHandler := rsvp.NewHandler(rsvp.NewService(eventRepo, guestRepo, hub, logger))

	// WhatsApp messaging
	evolution := messaging.NewEvolutionClient(messaging.EvolutionOptions{
		BaseURL:       cfg.Evolution.BaseURL,
		Token:         cfg.Evolution.Token,
		WebhookSecret: cfg.Evolution.WebhookSecret,
		WebhookBase:   cfg.Evolution.WebhookBase,
		Timeout:       time.Duration(cfg.Evolution.TimeoutSeconds) * time.Second,
	}, logger)
	messagingRepo := messaging.NewRepository(pool)
	messagingService := messaging.NewService(messagingRepo, eventRepo, guestRepo, jobQueue, evolution, cfg.App.RSVPLink, logger)
	messagingHandler := messaging.NewHandler(messagingService, logger)

	// Auth
	authRepo := auth.NewRepository(pool)
	authHandler := auth.NewHandler(authRepo, orgRepo, messagingService, jwtService, logger)

	rsvpLimiter, err := middleware.RateLimit(cfg.RateLimit.PublicRSVP, rdb.Client, logger)
	if err != nil {
		logger.Fatal("rate limiter", zap.Error(err))
	}

	jwtValidate := func(token string) (uuid.UUID, error) {
		claims, err := jwtService.Validate(token)
		if err != nil {
			return uuid.Nil, err
		}
		return claims.UserID, nil
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.CORS(cfg.Server.CORSAllowedOrigins))
	router.Use(middleware.Logger(logger))

	// Health
	router.GET("/health", func(c *gin.Context) { response.OK(c, gin.H{"status": "ok"}) })

	// Auth (public)
	authGroup := router.Group("/auth")
	{
		authGroup.POST("/login", authHandler.Login)
		authGroup.POST("/register", authHandler.Register)
	}

	// Public RSVP (token in path or body; rate limited per client IP)
	public := router.Group("/public/rsvp")
	public.Use(rsvpLimiter)
	{
		public.GET("/:token", rsvpHandler.Lookup)
		public.POST("/confirm", rsvpHandler.Confirm)
	}

	router.GET("/billing/tiers", eventHandler.Tiers)

	// Protected API (JWT required)
	api := router.Group("")
	api.Use(middleware.JWT(jwtService))
	{
		api.GET("/me", authHandler.Me)

		org := api.Group("")
		org.Use(organizations.RequireOrganization(orgRepo, logger))

		// Events
		org.POST("/events", eventHandler.Create)
		org.GET("/events", eventHandler.List)
		org.GET("/events/:id", eventHandler.GetByID)
		org.GET("/events/:id/guests", guestHandler.ListByEvent)
		org.POST("/billing/checkout/continue", eventHandler.ContinuePayment)

		// Guests
		org.POST("/guests", guestHandler.Add)

		// Messaging
		org.GET("/templates", messagingHandler.ListTemplates)
		org.POST("/templates", messagingHandler.CreateTemplate)
		org.POST("/messages/send", messagingHandler.Send)
		org.GET("/whatsapp/instance", messagingHandler.Instance)
	}

	// Webhooks (no JWT; Stripe signature or Evolution shared secret checked in handler)
	router.POST("/billing/webhook", billingWebhook.Webhook)
	router.POST("/webhooks/evolution", messagingHandler.Webhook)

	// WebSocket (token in query; no Authorization header required)
	upgrader := realtime.NewUpgrader(cfg.Server.CORSAllowedOrigins)
	router.GET("/ws/events/:id", realtime.ServeWs(hub, upgrader, jwtValidate, orgRepo, logger))

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	go func() {
		logger.Info("server listening", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}
	logger.Info("server stopped")
}

func newLogger() *zap.Logger {
	config := zap.NewProductionConfig()
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	logger, _ := config.Build()
	return logger
}
