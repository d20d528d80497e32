// Package cache хранит локальные копии spec-файлов Cypress.
//
// Файл скачивается из объектного хранилища при первом обращении и дальше
// переиспользуется всеми job'ами того же тест-кейса. Кэш никогда не
// очищается воркером: файлы живут, пока каталог не очистят извне.
package cache

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"path/filepath"

	"github.com/vgarzom/miso4208-project-cypress-executor/internal/telemetry"
)

// RemotePrefix — префикс ключей spec-файлов в объектном хранилище.
const RemotePrefix = "test-cases/cypress"

// Ошибки кэша.
var (
	// ErrInvalidName — имя файла не является локальным относительным путём.
	ErrInvalidName = errors.New("invalid spec file name")

	// ErrFetch — не удалось получить файл из хранилища.
	ErrFetch = errors.New("spec file fetch failed")

	// ErrWrite — не удалось записать файл на диск.
	ErrWrite = errors.New("spec file write failed")
)

// ObjectGetter читает объект из хранилища.
type ObjectGetter interface {
	Get(ctx context.Context, key string) ([]byte, error)
}

// SpecCache — локальный кэш spec-файлов.
type SpecCache struct {
	root   string
	store  ObjectGetter
	logger *slog.Logger
}

// New создаёт SpecCache с корнем root.
func New(root string, store ObjectGetter, logger *slog.Logger) *SpecCache {
	if logger == nil {
		logger = slog.Default()
	}
	return &SpecCache{root: root, store: store, logger: logger}
}

// Root возвращает корневой каталог кэша.
func (c *SpecCache) Root() string {
	return c.root
}

// Ensure гарантирует наличие файла локально и возвращает путь к нему.
// Если файл уже есть — сетевого запроса нет.
func (c *SpecCache) Ensure(ctx context.Context, fileName string) (string, error) {
	if fileName == "" || !filepath.IsLocal(fileName) {
		telemetry.SpecCache.WithLabelValues("error").Inc()
		return "", fmt.Errorf("%w: %q", ErrInvalidName, fileName)
	}

	local := filepath.Join(c.root, filepath.FromSlash(fileName))

	if _, err := os.Stat(local); err == nil {
		telemetry.SpecCache.WithLabelValues("hit").Inc()
		c.logger.Debug("spec file cached", "file", fileName)
		return local, nil
	} else if !errors.Is(err, fs.ErrNotExist) {
		telemetry.SpecCache.WithLabelValues("error").Inc()
		return "", fmt.Errorf("%w: stat %s: %v", ErrWrite, local, err)
	}

	telemetry.SpecCache.WithLabelValues("miss").Inc()
	c.logger.Info("spec file not cached, fetching", "file", fileName)

	data, err := c.store.Get(ctx, path.Join(RemotePrefix, filepath.ToSlash(fileName)))
	if err != nil {
		telemetry.SpecCache.WithLabelValues("error").Inc()
		return "", fmt.Errorf("%w: %v", ErrFetch, err)
	}

	if err := writeAtomic(local, data); err != nil {
		telemetry.SpecCache.WithLabelValues("error").Inc()
		return "", fmt.Errorf("%w: %v", ErrWrite, err)
	}

	return local, nil
}

// writeAtomic пишет во временный файл и переименовывает его, чтобы
// оборванная запись не выглядела как попадание в кэш.
func writeAtomic(dst string, data []byte) error {
	dir := filepath.Dir(dst)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create dir %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, ".spec-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write %s: %w", tmpName, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close %s: %w", tmpName, err)
	}

	if err := os.Rename(tmpName, dst); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("rename to %s: %w", dst, err)
	}
	return nil
}
