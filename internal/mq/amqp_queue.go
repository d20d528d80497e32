package mq

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// AMQPQueue — очередь job'ов на RabbitMQ.
//
// Потребление идёт через basic.consume с prefetch=1: брокер держит у воркера
// не больше одного неподтверждённого сообщения. Delete делает ack.
type AMQPQueue struct {
	conn      *Connection
	publisher *Publisher
	queue     string
	waitTime  time.Duration
	logger    *slog.Logger

	mu         sync.Mutex
	deliveries <-chan amqp.Delivery
	channel    *amqp.Channel
}

// AMQPConfig — конфигурация AMQPQueue.
type AMQPConfig struct {
	// Queue — имя очереди.
	Queue string

	// WaitTime — сколько ждать сообщения в одном ReceiveOne.
	WaitTime time.Duration

	Logger *slog.Logger
}

// NewAMQPQueue создаёт AMQPQueue поверх соединения.
func NewAMQPQueue(conn *Connection, cfg AMQPConfig) *AMQPQueue {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &AMQPQueue{
		conn:      conn,
		publisher: NewPublisher(conn, logger),
		queue:     cfg.Queue,
		waitTime:  cfg.WaitTime,
		logger:    logger,
	}
}

// setupConsume начинает потребление на текущем канале.
func (q *AMQPQueue) setupConsume() (<-chan amqp.Delivery, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	ch, err := q.conn.Channel()
	if err != nil {
		return nil, err
	}
	if q.deliveries != nil && q.channel == ch {
		return q.deliveries, nil
	}

	deliveries, err := ch.Consume(
		q.queue, // queue
		"",      // consumer tag (auto-generated)
		false,   // auto-ack (ack вручную в Delete)
		false,   // exclusive
		false,   // no-local
		false,   // no-wait
		nil,     // args
	)
	if err != nil {
		return nil, fmt.Errorf("consume %s: %w", q.queue, err)
	}

	q.channel = ch
	q.deliveries = deliveries
	q.logger.Info("consumer started", "queue", q.queue)
	return deliveries, nil
}

func (q *AMQPQueue) resetConsume() {
	q.mu.Lock()
	q.deliveries = nil
	q.channel = nil
	q.mu.Unlock()
}

// ReceiveOne ждёт одно сообщение не дольше WaitTime.
// Возвращает nil без ошибки, если сообщений нет.
func (q *AMQPQueue) ReceiveOne(ctx context.Context) (*Message, error) {
	deliveries, err := q.setupConsume()
	if err != nil {
		return nil, err
	}

	timer := time.NewTimer(q.waitTime)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-timer.C:
		return nil, nil
	case raw, ok := <-deliveries:
		if !ok {
			q.resetConsume()
			q.logger.Warn("deliveries channel closed", "queue", q.queue)
			return nil, ErrNoChannel
		}
		return deliveryToMessage(raw), nil
	}
}

func deliveryToMessage(raw amqp.Delivery) *Message {
	msg := &Message{
		ID:            raw.MessageId,
		ReceiptHandle: strconv.FormatUint(raw.DeliveryTag, 10),
		Body:          raw.Body,
		SentAt:        raw.Timestamp,
		Attributes:    make(map[string]string, len(raw.Headers)),
		Redelivered:   raw.Redelivered,
		raw:           raw,
	}
	for k, v := range raw.Headers {
		msg.Attributes[k] = fmt.Sprint(v)
	}
	return msg
}

// Delete подтверждает сообщение.
// После reconnect delivery tag недействителен: брокер уже вернул сообщение в очередь.
func (q *AMQPQueue) Delete(_ context.Context, msg *Message) error {
	raw, ok := msg.raw.(amqp.Delivery)
	if !ok {
		return ErrForeignMessage
	}
	if err := raw.Ack(false); err != nil {
		return fmt.Errorf("ack %s: %w", msg.ID, err)
	}
	return nil
}

// SendTestRequest публикует запрос на запуск теста testID.
func (q *AMQPQueue) SendTestRequest(ctx context.Context, testID string) error {
	return q.publisher.PublishTestRequest(ctx, testID)
}
