package repo

import (
	"context"

	"github.com/vgarzom/miso4208-project-cypress-executor/internal/domain"
)

// Store — общий контракт хранилищ job'ов.
type Store interface {
	// Connect устанавливает соединение. Вызывается до любых запросов.
	Connect(ctx context.Context) error

	// Connected возвращает true после успешного Connect.
	Connected() bool

	// Close закрывает соединение.
	Close(ctx context.Context) error

	// FetchFull возвращает job с присоединёнными Case и Compilation.
	// ErrNotFound — job нет или нет обязательной связи; ErrQuery — сбой хранилища.
	FetchFull(ctx context.Context, id string) (*domain.Job, error)

	// SetStatus меняет статус, если переход допустим (иначе ErrInvalidState).
	SetStatus(ctx context.Context, id string, status domain.JobStatus) error

	// SaveResult записывает status, reporterStats, error и screenshots.
	SaveResult(ctx context.Context, job *domain.Job) error
}

var (
	_ Store = (*MongoStore)(nil)
	_ Store = (*PgStore)(nil)
)
