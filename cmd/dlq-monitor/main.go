package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/tuathcoir/storefront/internal/config"
	"github.com/tuathcoir/storefront/internal/events"
)

// The DLQ monitor watches order.paid.dlq and replays dead-lettered
// fulfillment events back onto the main topic after a delay, so a supplier
// outage that exhausted the worker's retries still resolves without an
// operator touching Kafka by hand.
func main() {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	logger.SetLevel(logrus.InfoLevel)

	cfg := config.Load()
	replayDelay := 5 * time.Minute
	if raw := os.Getenv("DLQ_REPLAY_DELAY"); raw != "" {
		if d, err := time.ParseDuration(raw); err == nil {
			replayDelay = d
		}
	}

	processor, err := events.NewDLQProcessor(cfg.KafkaBrokers, replayDelay, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to create DLQ processor")
	}
	defer processor.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		if err := processor.Run(ctx); err != nil {
			logger.WithError(err).Fatal("DLQ processor stopped")
		}
	}()

	logger.WithFields(logrus.Fields{
		"topic":        events.OrderPaidDLQTopic,
		"replay_delay": replayDelay.String(),
	}).Info("DLQ monitor started")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("Shutting down DLQ monitor...")
	cancel()
}
