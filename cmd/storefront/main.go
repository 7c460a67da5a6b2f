package main

import (
	"context"
	"database/sql"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/tuathcoir/storefront/internal/admin"
	"github.com/tuathcoir/storefront/internal/catalog"
	"github.com/tuathcoir/storefront/internal/circuitbreaker"
	"github.com/tuathcoir/storefront/internal/config"
	"github.com/tuathcoir/storefront/internal/events"
	"github.com/tuathcoir/storefront/internal/live"
	"github.com/tuathcoir/storefront/internal/notify"
	"github.com/tuathcoir/storefront/internal/orders"
	"github.com/tuathcoir/storefront/internal/payments"
	"github.com/tuathcoir/storefront/internal/pricing"
	"github.com/tuathcoir/storefront/internal/ratelimit"
	"github.com/tuathcoir/storefront/internal/store"
	"github.com/tuathcoir/storefront/internal/webhooks"
)

func main() {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	logger.SetLevel(logrus.InfoLevel)

	cfg := config.Load()

	db, err := sql.Open("postgres", cfg.PostgresDSN())
	if err != nil {
		logger.WithError(err).Fatal("Failed to open database")
	}
	defer db.Close()

	// Wait for the database to come up; docker-compose starts everything at
	// once.
	for i := 0; i < 30; i++ {
		if err := db.Ping(); err == nil {
			logger.Info("Database connection established")
			break
		}
		logger.Info("Waiting for database...")
		time.Sleep(2 * time.Second)
	}

	orderStore := store.New(db, logger)
	if err := orderStore.EnsureSchema(); err != nil {
		logger.WithError(err).Fatal("Failed to ensure database schema")
	}

	producer, err := events.NewKafkaProducer(cfg.KafkaBrokers, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to create Kafka producer")
	}
	defer producer.Close()

	hub := live.NewHub(logger)
	go hub.Run()

	pricer := pricing.NewEngine(cfg.Pricing)
	orderService := orders.NewService(orderStore, orderStore, pricer, logger)

	breakers := circuitbreaker.NewManager(logger)
	gateway := payments.NewStripeClient(cfg.StripeSecretKey, "", orderStore,
		breakers.GetOrCreate("stripe"), cfg.PaymentTimeout, logger)
	notifier := notify.NewResendClient(cfg.ResendAPIKey, "", cfg.FromEmail, cfg.EmailTimeout, logger)

	orderHandler := orders.NewHandler(orderService, gateway, logger)
	orderHandler.SetLiveFeed(hub)

	webhookHandler := webhooks.NewHandler(orderStore, producer, notifier,
		cfg.StripeWebhookSecret, cfg.AllowUnverifiedWebhooks, logger)
	webhookHandler.SetLiveFeed(hub)

	catalogHandler := catalog.NewHandler(orderStore, catalog.Features{
		Payments:       cfg.StripeSecretKey != "",
		WebhookSigning: cfg.StripeWebhookSecret != "",
		Email:          cfg.ResendAPIKey != "",
		Printful:       cfg.PrintfulAPIKey != "",
		Eprolo:         cfg.EproloAPIKey != "",
		Zendrop:        cfg.ZendropAPIKey != "",
	}, logger)

	adminHandler := admin.NewHandler(orderStore, breakers, logger)
	adminAuth := admin.BasicAuth(cfg.AdminUsername, cfg.AdminPasswordHash, logger)

	var limiter ratelimit.Limiter
	if cfg.RedisAddr != "" {
		redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		limiter = ratelimit.NewRedisLimiter(redisClient, cfg.RateLimitWindow, cfg.RateLimitMax)
		logger.WithField("redis_addr", cfg.RedisAddr).Info("Using Redis rate limiter")
	} else {
		limiter = ratelimit.NewMemoryLimiter(cfg.RateLimitWindow, cfg.RateLimitMax)
		logger.Info("REDIS_ADDR not set, using in-process rate limiter")
	}
	throttle := ratelimit.Middleware(limiter, cfg.RateLimitWindow, logger)

	router := mux.NewRouter()
	router.Use(corsMiddleware())
	router.Use(loggingMiddleware(logger))

	router.HandleFunc("/health", catalogHandler.Health).Methods("GET")

	// Public catalog
	router.HandleFunc("/api/products", catalogHandler.ListProducts).Methods("GET")
	router.HandleFunc("/api/products/{id}", catalogHandler.GetProduct).Methods("GET")
	router.HandleFunc("/api/categories", catalogHandler.ListCategories).Methods("GET")
	router.HandleFunc("/api/search", catalogHandler.Search).Methods("GET")

	// Checkout, throttled per client IP
	checkout := router.NewRoute().Subrouter()
	checkout.Use(throttle)
	checkout.HandleFunc("/api/orders", orderHandler.CreateOrder).Methods("POST")
	checkout.HandleFunc("/api/payment/create-intent", orderHandler.CreatePaymentIntent).Methods("POST")

	router.HandleFunc("/api/orders/{order_number}", orderHandler.TrackOrder).Methods("GET")

	// Inbound webhooks
	router.HandleFunc("/api/webhooks/stripe", webhookHandler.StripeWebhook).Methods("POST")
	router.HandleFunc("/api/webhooks/supplier", webhookHandler.SupplierWebhook).Methods("POST")

	// Owner dashboard
	adminRouter := router.PathPrefix("/api/admin").Subrouter()
	adminRouter.Use(adminAuth)
	adminRouter.HandleFunc("/stats", adminHandler.Stats).Methods("GET")
	adminRouter.HandleFunc("/activity", adminHandler.Activity).Methods("GET")
	adminRouter.HandleFunc("/metrics", adminHandler.Metrics).Methods("GET")
	router.Handle("/ws", adminAuth(http.HandlerFunc(hub.HandleWebSocket)))

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.WithField("port", cfg.Port).Info("Starting storefront")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Fatal("Failed to start server")
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("Shutting down server...")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.WithError(err).Error("Server forced to shutdown")
	}

	logger.Info("Server gracefully stopped")
}

func loggingMiddleware(logger *logrus.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			next.ServeHTTP(w, r)

			logger.WithFields(logrus.Fields{
				"method":   r.Method,
				"path":     r.URL.Path,
				"remote":   r.RemoteAddr,
				"duration": time.Since(start).Milliseconds(),
			}).Info("Request completed")
		})
	}
}

func corsMiddleware() mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

			if r.Method == "OPTIONS" {
				w.WriteHeader(http.StatusOK)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
