package mq

import (
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Имена обменников и ключей маршрутизации.
const (
	ExchangeTests    = "cypress.tests"
	ExchangeDLQ      = "cypress.dlq"
	RoutingKeyTests  = "pending"
	RoutingKeyDLQ    = "tests"
	DLQSuffix        = ".dlq"
	DefaultQueueName = "tests.pending"
)

// SetupTopology объявляет exchange, очередь запросов и её DLQ.
func SetupTopology(conn *Connection, queue string) error {
	ch, err := conn.Channel()
	if err != nil {
		return err
	}

	for _, ex := range []string{ExchangeTests, ExchangeDLQ} {
		err := ch.ExchangeDeclare(
			ex,       // name
			"direct", // type
			true,     // durable
			false,    // auto-deleted
			false,    // internal
			false,    // no-wait
			nil,      // arguments
		)
		if err != nil {
			return fmt.Errorf("declare exchange %s: %w", ex, err)
		}
	}

	dlq := queue + DLQSuffix
	queues := []struct {
		name string
		args amqp.Table
	}{
		{queue, amqp.Table{
			"x-dead-letter-exchange":    ExchangeDLQ,
			"x-dead-letter-routing-key": RoutingKeyDLQ,
		}},
		{dlq, nil},
	}
	for _, q := range queues {
		if _, err := ch.QueueDeclare(q.name, true, false, false, false, q.args); err != nil {
			return fmt.Errorf("declare queue %s: %w", q.name, err)
		}
	}

	if err := ch.QueueBind(queue, RoutingKeyTests, ExchangeTests, false, nil); err != nil {
		return fmt.Errorf("bind queue %s to %s: %w", queue, ExchangeTests, err)
	}
	if err := ch.QueueBind(dlq, RoutingKeyDLQ, ExchangeDLQ, false, nil); err != nil {
		return fmt.Errorf("bind queue %s to %s: %w", dlq, ExchangeDLQ, err)
	}

	return nil
}
