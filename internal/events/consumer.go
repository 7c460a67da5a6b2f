package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/IBM/sarama"
	"github.com/sirupsen/logrus"
)

const (
	MaxRetries        = 3
	InitialRetryDelay = 1 * time.Second
	MaxRetryDelay     = 30 * time.Second
)

// FulfillmentHandler processes a paid order. IsRetryable decides whether a
// failure is worth another attempt (supplier timeout) or terminal for this
// delivery (order no longer exists).
type FulfillmentHandler interface {
	HandleOrderPaid(ctx context.Context, event OrderPaidEvent) error
	IsRetryable(err error) bool
}

type ConsumerMetrics struct {
	ProcessedCount int64
	RetryCount     int64
	DLQCount       int64
	SuccessCount   int64
	FailureCount   int64
}

// MessageMetadata rides on DLQ messages so the monitor can decide whether
// to replay.
type MessageMetadata struct {
	RetryCount    int       `json:"retry_count"`
	FirstFailure  time.Time `json:"first_failure"`
	LastFailure   time.Time `json:"last_failure"`
	OriginalTopic string    `json:"original_topic"`
	ErrorMessage  string    `json:"error_message"`
}

// KafkaConsumer consumes order.paid with exponential-backoff retries;
// exhausted messages go to the dead-letter topic for operator attention
// instead of blocking the partition.
type KafkaConsumer struct {
	consumerGroup sarama.ConsumerGroup
	producer      sarama.SyncProducer
	handler       FulfillmentHandler
	logger        *logrus.Logger
	topics        []string
	metrics       *ConsumerMetrics
}

type consumerGroupHandler struct {
	handler  FulfillmentHandler
	producer sarama.SyncProducer
	logger   *logrus.Logger
	metrics  *ConsumerMetrics
}

func NewKafkaConsumer(brokers, groupID string, handler FulfillmentHandler, logger *logrus.Logger) (*KafkaConsumer, error) {
	consumerConfig := sarama.NewConfig()
	consumerConfig.Consumer.Group.Rebalance.Strategy = sarama.BalanceStrategyRoundRobin
	consumerConfig.Consumer.Offsets.Initial = sarama.OffsetOldest
	consumerConfig.Version = sarama.V2_6_0_0

	consumerGroup, err := sarama.NewConsumerGroup(strings.Split(brokers, ","), groupID, consumerConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create consumer group: %w", err)
	}

	producerConfig := sarama.NewConfig()
	producerConfig.Producer.RequiredAcks = sarama.WaitForAll
	producerConfig.Producer.Retry.Max = 5
	producerConfig.Producer.Return.Successes = true
	producerConfig.Version = sarama.V2_6_0_0

	producer, err := sarama.NewSyncProducer(strings.Split(brokers, ","), producerConfig)
	if err != nil {
		consumerGroup.Close()
		return nil, fmt.Errorf("failed to create producer for DLQ: %w", err)
	}

	return &KafkaConsumer{
		consumerGroup: consumerGroup,
		producer:      producer,
		handler:       handler,
		logger:        logger,
		topics:        []string{OrderPaidTopic},
		metrics:       &ConsumerMetrics{},
	}, nil
}

func (c *KafkaConsumer) Start(ctx context.Context) error {
	handler := &consumerGroupHandler{
		handler:  c.handler,
		producer: c.producer,
		logger:   c.logger,
		metrics:  c.metrics,
	}

	for {
		select {
		case <-ctx.Done():
			c.logger.Info("Kafka consumer context cancelled")
			return nil
		default:
			if err := c.consumerGroup.Consume(ctx, c.topics, handler); err != nil {
				c.logger.WithError(err).Error("Error consuming from Kafka")
				return err
			}
		}
	}
}

func (c *KafkaConsumer) Close() error {
	if err := c.producer.Close(); err != nil {
		c.logger.WithError(err).Error("Failed to close producer")
	}
	return c.consumerGroup.Close()
}

func (c *KafkaConsumer) Metrics() ConsumerMetrics {
	return ConsumerMetrics{
		ProcessedCount: atomic.LoadInt64(&c.metrics.ProcessedCount),
		RetryCount:     atomic.LoadInt64(&c.metrics.RetryCount),
		DLQCount:       atomic.LoadInt64(&c.metrics.DLQCount),
		SuccessCount:   atomic.LoadInt64(&c.metrics.SuccessCount),
		FailureCount:   atomic.LoadInt64(&c.metrics.FailureCount),
	}
}

func (h *consumerGroupHandler) Setup(sarama.ConsumerGroupSession) error {
	h.logger.Info("Kafka consumer group session setup")
	return nil
}

func (h *consumerGroupHandler) Cleanup(sarama.ConsumerGroupSession) error {
	h.logger.Info("Kafka consumer group session cleanup")
	return nil
}

func (h *consumerGroupHandler) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for {
		select {
		case message := <-claim.Messages():
			if message == nil {
				return nil
			}

			atomic.AddInt64(&h.metrics.ProcessedCount, 1)

			if err := h.handleWithRetry(session.Context(), message); err != nil {
				h.logger.WithError(err).Error("Failed to process order paid event after retries")
				atomic.AddInt64(&h.metrics.FailureCount, 1)

				if dlqErr := h.sendToDLQ(message, err); dlqErr != nil {
					h.logger.WithError(dlqErr).Error("Failed to send message to DLQ")
				} else {
					atomic.AddInt64(&h.metrics.DLQCount, 1)
				}
			} else {
				atomic.AddInt64(&h.metrics.SuccessCount, 1)
			}

			session.MarkMessage(message, "")

		case <-session.Context().Done():
			h.logger.Info("Consumer group session context cancelled")
			return nil
		}
	}
}

func (h *consumerGroupHandler) handleWithRetry(ctx context.Context, message *sarama.ConsumerMessage) error {
	h.logger.WithFields(logrus.Fields{
		"topic":     message.Topic,
		"partition": message.Partition,
		"offset":    message.Offset,
		"key":       string(message.Key),
	}).Info("Processing order paid event")

	var event OrderPaidEvent
	if err := json.Unmarshal(message.Value, &event); err != nil {
		h.logger.WithError(err).Error("Failed to unmarshal order paid event")
		return err // malformed payload, retrying won't fix it
	}

	retryDelay := InitialRetryDelay

	for attempt := 0; attempt <= MaxRetries; attempt++ {
		if attempt > 0 {
			h.logger.WithFields(logrus.Fields{
				"order_number": event.OrderNumber,
				"attempt":      attempt,
				"delay":        retryDelay,
			}).Info("Retrying fulfillment")

			select {
			case <-time.After(retryDelay):
			case <-ctx.Done():
				return ctx.Err()
			}
			atomic.AddInt64(&h.metrics.RetryCount, 1)

			retryDelay *= 2
			if retryDelay > MaxRetryDelay {
				retryDelay = MaxRetryDelay
			}
		}

		err := h.handler.HandleOrderPaid(ctx, event)
		if err == nil {
			return nil
		}

		if !h.handler.IsRetryable(err) {
			h.logger.WithError(err).WithField("order_number", event.OrderNumber).
				Error("Non-retryable fulfillment error")
			return err
		}

		h.logger.WithError(err).WithFields(logrus.Fields{
			"order_number": event.OrderNumber,
			"attempt":      attempt + 1,
		}).Warn("Retryable fulfillment error")
	}

	return fmt.Errorf("exhausted retries for order %s", event.OrderNumber)
}

func (h *consumerGroupHandler) sendToDLQ(message *sarama.ConsumerMessage, processingError error) error {
	metadata := MessageMetadata{
		RetryCount:    extractRetryCount(message) + 1,
		FirstFailure:  time.Now(),
		LastFailure:   time.Now(),
		OriginalTopic: message.Topic,
		ErrorMessage:  processingError.Error(),
	}

	metadataBytes, err := json.Marshal(metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}

	dlqMessage := &sarama.ProducerMessage{
		Topic: OrderPaidDLQTopic,
		Key:   sarama.ByteEncoder(message.Key),
		Value: sarama.ByteEncoder(message.Value),
		Headers: []sarama.RecordHeader{
			{Key: []byte("metadata"), Value: metadataBytes},
			{Key: []byte("original_topic"), Value: []byte(message.Topic)},
			{Key: []byte("failure_time"), Value: []byte(time.Now().Format(time.RFC3339))},
		},
	}

	partition, offset, err := h.producer.SendMessage(dlqMessage)
	if err != nil {
		return fmt.Errorf("failed to send to DLQ: %w", err)
	}

	h.logger.WithFields(logrus.Fields{
		"dlq_topic":     OrderPaidDLQTopic,
		"dlq_partition": partition,
		"dlq_offset":    offset,
		"order_key":     string(message.Key),
		"error":         processingError.Error(),
	}).Warn("Order paid event sent to dead letter queue")

	return nil
}

func extractRetryCount(message *sarama.ConsumerMessage) int {
	for _, header := range message.Headers {
		if string(header.Key) == "retry_count" {
			var count int
			if err := json.Unmarshal(header.Value, &count); err == nil {
				return count
			}
		}
	}
	return 0
}
