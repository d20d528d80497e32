// Package storage — объектное хранилище (S3) для spec-файлов и скриншотов.
package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// Ошибки хранилища.
var (
	// ErrObjectNotFound — объекта нет в bucket.
	ErrObjectNotFound = errors.New("object not found")
)

// S3API — подмножество клиента S3, которое использует S3Store.
type S3API interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Store читает и пишет объекты в одном bucket.
type S3Store struct {
	client S3API
	bucket string
	region string
	logger *slog.Logger
}

// Config — конфигурация S3Store.
type Config struct {
	Client S3API
	Bucket string
	Region string
	Logger *slog.Logger
}

// NewS3Store создаёт S3Store.
func NewS3Store(cfg Config) *S3Store {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &S3Store{
		client: cfg.Client,
		bucket: cfg.Bucket,
		region: cfg.Region,
		logger: logger,
	}
}

// NewS3Client создаёт клиент S3 из конфигурации AWS.
func NewS3Client(awsCfg aws.Config) *s3.Client {
	return s3.NewFromConfig(awsCfg)
}

// Get читает объект целиком.
func (s *S3Store) Get(ctx context.Context, key string) ([]byte, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var noKey *types.NoSuchKey
		if errors.As(err, &noKey) {
			return nil, fmt.Errorf("%w: s3://%s/%s", ErrObjectNotFound, s.bucket, key)
		}
		return nil, fmt.Errorf("get s3://%s/%s: %w", s.bucket, key, err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("read s3://%s/%s: %w", s.bucket, key, err)
	}

	s.logger.Debug("object fetched", "bucket", s.bucket, "key", key, "size", len(data))
	return data, nil
}

// PutPublic загружает объект с ACL public-read и возвращает его публичный URL.
func (s *S3Store) PutPublic(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType),
		ACL:         types.ObjectCannedACLPublicRead,
	})
	if err != nil {
		return "", fmt.Errorf("put s3://%s/%s: %w", s.bucket, key, err)
	}

	s.logger.Debug("object uploaded", "bucket", s.bucket, "key", key, "size", len(data))
	return s.URL(key), nil
}

// URL возвращает публичный (virtual-hosted) URL объекта.
func (s *S3Store) URL(key string) string {
	u := url.URL{
		Scheme: "https",
		Host:   fmt.Sprintf("%s.s3.%s.amazonaws.com", s.bucket, s.region),
		Path:   "/" + key,
	}
	return u.String()
}
