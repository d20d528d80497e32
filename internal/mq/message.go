package mq

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Ошибки очереди.
var (
	// ErrMalformedMessage — тело сообщения не JSON или в нём нет test_id.
	ErrMalformedMessage = errors.New("malformed message")

	// ErrClosed — соединение с брокером закрыто.
	ErrClosed = errors.New("connection closed")

	// ErrNoChannel — канал брокера недоступен (идёт переподключение).
	ErrNoChannel = errors.New("no channel available")

	// ErrForeignMessage — сообщение получено другой реализацией очереди.
	ErrForeignMessage = errors.New("message does not belong to this queue")
)

// Message — полученное из очереди сообщение.
type Message struct {
	// ID — идентификатор сообщения у брокера.
	ID string

	// ReceiptHandle — дескриптор для удаления (SQS) или delivery tag (AMQP).
	ReceiptHandle string

	// Body — тело сообщения.
	Body []byte

	// SentAt — время отправки, если брокер его сообщает.
	SentAt time.Time

	// Attributes — пользовательские атрибуты сообщения.
	Attributes map[string]string

	// Redelivered — брокер отметил сообщение как повторную доставку.
	Redelivered bool

	// raw — исходное сообщение транспорта (нужно для ack в AMQP).
	raw any
}

// TestRequest — тело сообщения о запуске теста.
type TestRequest struct {
	TestID string `json:"test_id"`
}

// ParseTestRequest разбирает тело сообщения.
func ParseTestRequest(body []byte) (TestRequest, error) {
	var req TestRequest
	if err := json.Unmarshal(body, &req); err != nil {
		return req, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}

	req.TestID = strings.TrimSpace(req.TestID)
	if req.TestID == "" {
		return req, fmt.Errorf("%w: missing test_id", ErrMalformedMessage)
	}
	return req, nil
}

// EncodeTestRequest сериализует тело сообщения о запуске теста.
func EncodeTestRequest(testID string) ([]byte, error) {
	body, err := json.Marshal(TestRequest{TestID: testID})
	if err != nil {
		return nil, fmt.Errorf("marshal message: %w", err)
	}
	return body, nil
}
