// Package artifacts публикует артефакты прогона (скриншоты) в объектное хранилище.
package artifacts

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"os"
	"path"
	"strconv"
	"sync"

	"github.com/vgarzom/miso4208-project-cypress-executor/internal/telemetry"
)

// Prefix — префикс ключей скриншотов в хранилище.
const Prefix = "images"

// IDLength — длина случайного идентификатора партии скриншотов.
const IDLength = 12

const alphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

// ErrPublish — загрузка артефакта не удалась.
var ErrPublish = errors.New("artifact publish failed")

// Uploader загружает объект с публичным доступом.
type Uploader interface {
	PutPublic(ctx context.Context, key string, data []byte, contentType string) (string, error)
	URL(key string) string
}

// Publisher загружает скриншоты в фоне и удаляет локальные копии.
//
// Publish не ждёт завершения загрузки. Wait дожидается всех
// загрузок, запущенных к этому моменту (используется при остановке).
type Publisher struct {
	store  Uploader
	logger *slog.Logger
	wg     sync.WaitGroup
}

// NewPublisher создаёт Publisher.
func NewPublisher(store Uploader, logger *slog.Logger) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{store: store, logger: logger}
}

// Publish запускает загрузку файла localPath под именем name.
// Ошибки только логируются.
func (p *Publisher) Publish(ctx context.Context, localPath, name string) {
	ctx = context.WithoutCancel(ctx)
	logger := telemetry.FromContext(ctx)

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		if err := p.Upload(ctx, localPath, name); err != nil {
			logger.Error("screenshot upload failed", "path", localPath, "name", name, "error", err)
		}
	}()
}

// Upload синхронно загружает файл и удаляет локальную копию.
// При ошибке загрузки локальный файл остаётся на месте.
func (p *Publisher) Upload(ctx context.Context, localPath, name string) error {
	data, err := os.ReadFile(localPath)
	if err != nil {
		telemetry.ArtifactUploads.WithLabelValues("error").Inc()
		return fmt.Errorf("%w: read %s: %v", ErrPublish, localPath, err)
	}

	if _, err := p.store.PutPublic(ctx, Key(name), data, "image/png"); err != nil {
		telemetry.ArtifactUploads.WithLabelValues("error").Inc()
		return fmt.Errorf("%w: %v", ErrPublish, err)
	}
	telemetry.ArtifactUploads.WithLabelValues("ok").Inc()

	if err := os.Remove(localPath); err != nil {
		p.logger.Warn("failed to remove uploaded screenshot", "path", localPath, "error", err)
	}

	p.logger.Debug("screenshot uploaded", "name", name)
	return nil
}

// URL возвращает публичный URL артефакта с именем name.
func (p *Publisher) URL(name string) string {
	return p.store.URL(Key(name))
}

// Wait ждёт завершения всех запущенных загрузок.
func (p *Publisher) Wait() {
	p.wg.Wait()
}

// Key возвращает ключ объекта для имени артефакта.
func Key(name string) string {
	return path.Join(Prefix, name)
}

// NewBatchID генерирует случайный идентификатор из IDLength символов [A-Za-z0-9].
// Один идентификатор используется для всех скриншотов одного job.
func NewBatchID() string {
	b := make([]byte, IDLength)
	for i := range b {
		b[i] = alphabet[rand.Intn(len(alphabet))]
	}
	return string(b)
}

// Name формирует имя i-го скриншота партии: {id}_{i}.png.
func Name(batchID string, i int) string {
	return batchID + "_" + strconv.Itoa(i) + ".png"
}
