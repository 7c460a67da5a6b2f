package events

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/IBM/sarama"
	"github.com/sirupsen/logrus"
)

const (
	OrderPaidTopic    = "order.paid"
	OrderPaidDLQTopic = "order.paid.dlq"
)

// OrderPaidEvent is what the webhook dispatcher publishes once a payment
// transition commits. The fulfillment worker consumes it and runs the
// supplier fan-out, decoupled from the webhook response.
type OrderPaidEvent struct {
	OrderNumber   string    `json:"order_number"`
	CustomerEmail string    `json:"customer_email"`
	Total         string    `json:"total"`
	PaidAt        time.Time `json:"paid_at"`
	EventTime     time.Time `json:"event_time"`
}

type KafkaProducer struct {
	producer sarama.SyncProducer
	logger   *logrus.Logger
}

func NewKafkaProducer(brokers string, logger *logrus.Logger) (*KafkaProducer, error) {
	config := sarama.NewConfig()
	config.Producer.RequiredAcks = sarama.WaitForAll
	config.Producer.Retry.Max = 5
	config.Producer.Return.Successes = true
	config.Version = sarama.V2_6_0_0

	producer, err := sarama.NewSyncProducer(strings.Split(brokers, ","), config)
	if err != nil {
		return nil, err
	}

	return &KafkaProducer{
		producer: producer,
		logger:   logger,
	}, nil
}

// PublishOrderPaid enqueues the fulfillment trigger. Keyed by order number
// so redeliveries of the same order land on the same partition in order.
func (p *KafkaProducer) PublishOrderPaid(event OrderPaidEvent) error {
	event.EventTime = time.Now()

	data, err := json.Marshal(event)
	if err != nil {
		return err
	}

	msg := &sarama.ProducerMessage{
		Topic: OrderPaidTopic,
		Key:   sarama.StringEncoder(event.OrderNumber),
		Value: sarama.ByteEncoder(data),
	}

	partition, offset, err := p.producer.SendMessage(msg)
	if err != nil {
		p.logger.WithError(err).Error("Failed to publish order paid event")
		return err
	}

	p.logger.WithFields(logrus.Fields{
		"topic":        OrderPaidTopic,
		"partition":    partition,
		"offset":       offset,
		"order_number": event.OrderNumber,
	}).Info("Order paid event published")

	return nil
}

func (p *KafkaProducer) Close() error {
	return p.producer.Close()
}
