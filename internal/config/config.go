// Package config загружает конфигурацию воркера.
//
// Источники (в порядке приоритета):
//   - переменные окружения
//   - YAML-файл из CONFIG_FILE (опционально)
//   - значения по умолчанию
package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"gopkg.in/yaml.v3"
)

// Backend — тип хранилища или очереди, выбранный по схеме URL.
type Backend string

const (
	BackendMongo    Backend = "mongo"
	BackendPostgres Backend = "postgres"
	BackendSQS      Backend = "sqs"
	BackendAMQP     Backend = "amqp"
)

// ErrMissing — не задан обязательный параметр.
var ErrMissing = errors.New("missing required config")

// Config — конфигурация воркера.
type Config struct {
	// Хранилище job'ов
	DBURL  string `yaml:"db_url"`
	DBName string `yaml:"db_name"`

	// Очередь
	QueueURL          string        `yaml:"queue_url"`
	AMQPQueue         string        `yaml:"amqp_queue"`
	VisibilityTimeout time.Duration `yaml:"visibility_timeout"`
	WaitTime          time.Duration `yaml:"wait_time"`

	// Объектное хранилище
	AWSRegion string `yaml:"aws_region"`
	Bucket    string `yaml:"bucket"`

	// Движок тестов
	SpecRoot      string `yaml:"spec_root"`
	EngineCommand string `yaml:"engine_command"`

	// Цикл воркера
	IdleInterval      time.Duration `yaml:"idle_interval"`
	ConnectRetryDelay time.Duration `yaml:"connect_retry_delay"`

	// HTTP порт для /healthz и /metrics
	Port string `yaml:"port"`
}

// Default возвращает конфигурацию по умолчанию.
func Default() Config {
	return Config{
		AMQPQueue:         "tests.pending",
		VisibilityTimeout: 20 * time.Second,
		WaitTime:          10 * time.Second,
		AWSRegion:         "us-east-1",
		SpecRoot:          "./cypress/integration",
		EngineCommand:     "node scripts/cypress-run.js",
		IdleInterval:      10 * time.Second,
		ConnectRetryDelay: 5 * time.Second,
		Port:              "8082",
	}
}

// Load загружает конфигурацию: defaults → YAML из CONFIG_FILE → env.
func Load() (Config, error) {
	cfg := Default()

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return cfg, err
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return cfg, err
	}

	return cfg, nil
}

// loadFile накладывает значения из YAML-файла поверх текущих.
func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() error {
	setString(&c.DBURL, "DB_URL")
	setString(&c.DBName, "DB_NAME")
	setString(&c.QueueURL, "QUEUE_URL")
	setString(&c.AMQPQueue, "AMQP_QUEUE")
	setString(&c.AWSRegion, "AWS_REGION")
	setString(&c.Bucket, "BUCKET")
	setString(&c.SpecRoot, "SPEC_ROOT")
	setString(&c.EngineCommand, "ENGINE_COMMAND")
	setString(&c.Port, "WORKER_PORT")

	durations := []struct {
		dst *time.Duration
		key string
	}{
		{&c.VisibilityTimeout, "VISIBILITY_TIMEOUT"},
		{&c.WaitTime, "WAIT_TIME"},
		{&c.IdleInterval, "IDLE_INTERVAL"},
		{&c.ConnectRetryDelay, "CONNECT_RETRY_DELAY"},
	}
	for _, d := range durations {
		if err := setDuration(d.dst, d.key); err != nil {
			return err
		}
	}
	return nil
}

// Validate проверяет обязательные параметры и схемы URL.
func (c Config) Validate() error {
	var missing []string
	if c.DBURL == "" {
		missing = append(missing, "DB_URL")
	}
	if c.QueueURL == "" {
		missing = append(missing, "QUEUE_URL")
	}
	if c.Bucket == "" {
		missing = append(missing, "BUCKET")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %s", ErrMissing, strings.Join(missing, ", "))
	}

	if _, err := c.StoreBackend(); err != nil {
		return err
	}
	if _, err := c.QueueBackend(); err != nil {
		return err
	}
	return nil
}

// StoreBackend определяет хранилище по схеме DB_URL.
func (c Config) StoreBackend() (Backend, error) {
	switch {
	case strings.HasPrefix(c.DBURL, "mongodb://"), strings.HasPrefix(c.DBURL, "mongodb+srv://"):
		return BackendMongo, nil
	case strings.HasPrefix(c.DBURL, "postgres://"), strings.HasPrefix(c.DBURL, "postgresql://"):
		return BackendPostgres, nil
	default:
		return "", fmt.Errorf("unsupported DB_URL scheme: %q", schemeOf(c.DBURL))
	}
}

// QueueBackend определяет очередь по схеме QUEUE_URL.
func (c Config) QueueBackend() (Backend, error) {
	switch {
	case strings.HasPrefix(c.QueueURL, "amqp://"), strings.HasPrefix(c.QueueURL, "amqps://"):
		return BackendAMQP, nil
	case strings.HasPrefix(c.QueueURL, "https://"), strings.HasPrefix(c.QueueURL, "http://"):
		return BackendSQS, nil
	default:
		return "", fmt.Errorf("unsupported QUEUE_URL scheme: %q", schemeOf(c.QueueURL))
	}
}

// AWS загружает конфигурацию AWS SDK: регион из конфига,
// credentials из стандартной цепочки (env, profile, role).
func (c Config) AWS(ctx context.Context) (aws.Config, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(c.AWSRegion))
	if err != nil {
		return aws.Config{}, fmt.Errorf("load aws config: %w", err)
	}
	return awsCfg, nil
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

// setDuration принимает как Go-формат ("20s"), так и целое число секунд.
func setDuration(dst *time.Duration, key string) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	if secs, err := strconv.Atoi(v); err == nil {
		*dst = time.Duration(secs) * time.Second
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("invalid %s=%q: %w", key, v, err)
	}
	*dst = d
	return nil
}

func schemeOf(url string) string {
	if i := strings.Index(url, "://"); i >= 0 {
		return url[:i]
	}
	return url
}
