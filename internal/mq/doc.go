// Package mq — очередь запросов на запуск тестов.
//
// Две реализации с одинаковым контрактом (ReceiveOne / Delete / SendTestRequest):
//   - sqs.go        — Amazon SQS: long-poll, visibility timeout как lease
//   - amqp_queue.go — RabbitMQ: prefetch=1, неподтверждённое сообщение как lease
//
// Вспомогательные файлы:
//   - connection.go — AMQP соединение с reconnect
//   - topology.go   — exchange cypress.tests, очередь и её DLQ
//   - publisher.go  — публикация запросов в RabbitMQ
//   - message.go    — Message и формат тела {"test_id": "..."}
//
// Сообщение удаляется только явным Delete. Если воркер упал до Delete,
// сообщение вернётся в очередь после истечения lease.
package mq
