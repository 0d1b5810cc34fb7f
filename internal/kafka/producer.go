package kafka

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/segmentio/kafka-go"

	"ms-checkin/internal/logger"
	"ms-checkin/internal/models"
)

type Producer struct {
	Writer *kafka.Writer
	Logger *logger.Logger
}

func NewProducer(brokers []string, topic string, log *logger.Logger) *Producer {
	writer := kafka.NewWriter(kafka.WriterConfig{
		Brokers: brokers,
		Topic:   topic,
	})
	return &Producer{Writer: writer, Logger: log}
}

// PublishTicketRedeemed streams a successful redemption to the redeemed
// topic, keyed by event so per-event consumers stay ordered.
func (p *Producer) PublishTicketRedeemed(ctx context.Context, result models.RedemptionResult) error {
	msgBytes, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("encode redemption event: %w", err)
	}

	if p.Logger != nil {
		p.Logger.LogKafka("publish", p.Writer.Topic, fmt.Sprintf("%s/%s", result.EventID, result.Code))
	}

	return p.Writer.WriteMessages(ctx,
		kafka.Message{
			Key:   []byte(result.EventID),
			Value: msgBytes,
		},
	)
}

func (p *Producer) Close() error {
	return p.Writer.Close()
}
