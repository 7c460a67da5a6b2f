package main

import (
	"context"
	"database/sql"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"github.com/sirupsen/logrus"

	"github.com/tuathcoir/storefront/internal/circuitbreaker"
	"github.com/tuathcoir/storefront/internal/config"
	"github.com/tuathcoir/storefront/internal/events"
	"github.com/tuathcoir/storefront/internal/fulfillment"
	"github.com/tuathcoir/storefront/internal/store"
)

// The fulfillment worker consumes order.paid events and runs the supplier
// fan-out. It is a separate process so supplier latency and retries never
// sit inside a webhook response.
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

	for i := 0; i < 30; i++ {
		if err := db.Ping(); err == nil {
			logger.Info("Database connection established")
			break
		}
		logger.Info("Waiting for database...")
		time.Sleep(2 * time.Second)
	}

	orderStore := store.New(db, logger)

	adapters := []fulfillment.Adapter{
		fulfillment.NewPrintfulClient(cfg.PrintfulAPIKey, cfg.PrintfulAPIURL, cfg.SupportEmail, cfg.SupplierTimeout, logger),
		fulfillment.NewEproloClient(cfg.EproloAPIKey, cfg.EproloAPIURL, cfg.SupplierTimeout, logger),
		fulfillment.NewZendropClient(cfg.ZendropAPIKey, cfg.ZendropAPIURL, cfg.SupplierTimeout, logger),
		fulfillment.NewFaireClient(logger),
	}

	orchestrator := fulfillment.NewOrchestrator(
		adapters,
		orderStore,
		circuitbreaker.NewManager(logger),
		cfg.SupplierTimeout,
		logger,
	)

	consumer, err := events.NewKafkaConsumer(cfg.KafkaBrokers, "fulfillment-worker", orchestrator, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to create Kafka consumer")
	}
	defer consumer.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		if err := consumer.Start(ctx); err != nil {
			logger.WithError(err).Fatal("Consumer stopped")
		}
	}()

	logger.Info("Fulfillment worker started")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("Shutting down fulfillment worker...")
	cancel()
	time.Sleep(time.Second)
	logger.Info("Fulfillment worker stopped")
}
