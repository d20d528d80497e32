package mq

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
)

// Publisher публикует запросы на запуск тестов в RabbitMQ.
type Publisher struct {
	conn   *Connection
	logger *slog.Logger
}

// NewPublisher создаёт новый Publisher.
func NewPublisher(conn *Connection, logger *slog.Logger) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{
		conn:   conn,
		logger: logger,
	}
}

// PublishTestRequest публикует {"test_id": ...} в ExchangeTests.
func (p *Publisher) PublishTestRequest(ctx context.Context, testID string) error {
	body, err := EncodeTestRequest(testID)
	if err != nil {
		return err
	}

	ch, err := p.conn.Channel()
	if err != nil {
		return err
	}

	id := uuid.New().String()
	err = ch.PublishWithContext(
		ctx,
		ExchangeTests,   // exchange
		RoutingKeyTests, // routing key
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent, // сообщение переживёт рестарт RabbitMQ
			MessageId:    id,
			Timestamp:    time.Now(),
			Body:         body,
		},
	)
	if err != nil {
		return fmt.Errorf("publish to %s/%s: %w", ExchangeTests, RoutingKeyTests, err)
	}

	p.logger.Debug("published message", "message_id", id, "test_id", testID)
	return nil
}
