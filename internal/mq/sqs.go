package mq

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
)

// SQSAPI — подмножество клиента SQS, которое использует SQSQueue.
type SQSAPI interface {
	ReceiveMessage(ctx context.Context, params *sqs.ReceiveMessageInput, optFns ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error)
	DeleteMessage(ctx context.Context, params *sqs.DeleteMessageInput, optFns ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error)
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
}

// SQSQueue — очередь job'ов на Amazon SQS.
type SQSQueue struct {
	client            SQSAPI
	url               string
	visibilityTimeout time.Duration
	waitTime          time.Duration
	logger            *slog.Logger
}

// SQSConfig — конфигурация SQSQueue.
type SQSConfig struct {
	Client SQSAPI
	URL    string

	// VisibilityTimeout — lease, на время которого сообщение скрыто от других consumer'ов.
	VisibilityTimeout time.Duration

	// WaitTime — длительность long-poll.
	WaitTime time.Duration

	Logger *slog.Logger
}

// NewSQSClient создаёт клиент SQS из конфигурации AWS.
func NewSQSClient(awsCfg aws.Config) *sqs.Client {
	return sqs.NewFromConfig(awsCfg)
}

// NewSQSQueue создаёт SQSQueue.
func NewSQSQueue(cfg SQSConfig) *SQSQueue {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &SQSQueue{
		client:            cfg.Client,
		url:               cfg.URL,
		visibilityTimeout: cfg.VisibilityTimeout,
		waitTime:          cfg.WaitTime,
		logger:            logger,
	}
}

// ReceiveOne запрашивает не больше одного сообщения.
// Возвращает nil без ошибки, если за время long-poll ничего не пришло.
func (q *SQSQueue) ReceiveOne(ctx context.Context) (*Message, error) {
	out, err := q.client.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{
		QueueUrl:                    aws.String(q.url),
		MaxNumberOfMessages:         1,
		VisibilityTimeout:           int32(q.visibilityTimeout / time.Second),
		WaitTimeSeconds:             int32(q.waitTime / time.Second),
		MessageAttributeNames:       []string{"All"},
		MessageSystemAttributeNames: []types.MessageSystemAttributeName{
			types.MessageSystemAttributeNameSentTimestamp,
			types.MessageSystemAttributeNameApproximateReceiveCount,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("sqs receive: %w", err)
	}
	if len(out.Messages) == 0 {
		return nil, nil
	}

	m := out.Messages[0]
	msg := &Message{
		ID:            aws.ToString(m.MessageId),
		ReceiptHandle: aws.ToString(m.ReceiptHandle),
		Body:          []byte(aws.ToString(m.Body)),
		Attributes:    make(map[string]string, len(m.MessageAttributes)),
		raw:           q,
	}

	if ts, ok := m.Attributes[string(types.MessageSystemAttributeNameSentTimestamp)]; ok {
		if ms, err := strconv.ParseInt(ts, 10, 64); err == nil {
			msg.SentAt = time.UnixMilli(ms)
		}
	}
	if n, ok := m.Attributes[string(types.MessageSystemAttributeNameApproximateReceiveCount)]; ok {
		msg.Redelivered = n != "1"
	}
	for name, attr := range m.MessageAttributes {
		msg.Attributes[name] = aws.ToString(attr.StringValue)
	}

	return msg, nil
}

// Delete удаляет сообщение по receipt handle.
// Если удаление не удалось, сообщение вернётся после истечения lease.
func (q *SQSQueue) Delete(ctx context.Context, msg *Message) error {
	if msg.raw != q {
		return ErrForeignMessage
	}
	_, err := q.client.DeleteMessage(ctx, &sqs.DeleteMessageInput{
		QueueUrl:      aws.String(q.url),
		ReceiptHandle: aws.String(msg.ReceiptHandle),
	})
	if err != nil {
		return fmt.Errorf("sqs delete: %w", err)
	}
	return nil
}

// SendTestRequest ставит в очередь запуск теста testID.
func (q *SQSQueue) SendTestRequest(ctx context.Context, testID string) error {
	body, err := EncodeTestRequest(testID)
	if err != nil {
		return err
	}
	out, err := q.client.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:    aws.String(q.url),
		MessageBody: aws.String(string(body)),
	})
	if err != nil {
		return fmt.Errorf("sqs send: %w", err)
	}
	q.logger.Debug("message sent", "message_id", aws.ToString(out.MessageId), "test_id", testID)
	return nil
}
