package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/vgarzom/miso4208-project-cypress-executor/internal/domain"
)

// PgStore — хранилище job'ов в Postgres.
//
// Схема (миграции вне воркера):
//
//	test_objects(id, case_id, app_compilation_id, status, reporter_stats jsonb, error, screenshots jsonb)
//	test_cases(id, name, file_name)
//	app_compilations(id, attributes jsonb)
type PgStore struct {
	dsn    string
	logger *slog.Logger

	mu   sync.RWMutex
	pool *pgxpool.Pool
}

// NewPgStore создаёт PgStore. Соединение устанавливается в Connect.
func NewPgStore(dsn string, logger *slog.Logger) *PgStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &PgStore{dsn: dsn, logger: logger}
}

// Connect создаёт пул и проверяет соединение.
func (s *PgStore) Connect(ctx context.Context) error {
	pool, err := newPool(ctx, s.dsn)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.pool = pool
	s.mu.Unlock()

	s.logger.Info("connected to Postgres")
	return nil
}

// Connected возвращает true после успешного Connect.
func (s *PgStore) Connected() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.pool != nil
}

// Close закрывает пул.
func (s *PgStore) Close(_ context.Context) error {
	s.mu.Lock()
	pool := s.pool
	s.pool = nil
	s.mu.Unlock()

	if pool != nil {
		pool.Close()
	}
	return nil
}

func (s *PgStore) conn() (*pgxpool.Pool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.pool == nil {
		return nil, ErrNotConnected
	}
	return s.pool, nil
}

// FetchFull возвращает job с тест-кейсом и сборкой (INNER JOIN — обе связи обязательны).
func (s *PgStore) FetchFull(ctx context.Context, id string) (*domain.Job, error) {
	pool, err := s.conn()
	if err != nil {
		return nil, err
	}

	query := `
		SELECT t.id::text, t.case_id::text, t.app_compilation_id::text, COALESCE(t.status, ''),
		       t.reporter_stats, t.error, t.screenshots,
		       c.name, c.file_name, a.attributes
		FROM test_objects t
		JOIN test_cases c ON c.id = t.case_id
		JOIN app_compilations a ON a.id = t.app_compilation_id
		WHERE t.id::text = $1
	`

	var (
		job       domain.Job
		status    string
		statsJSON []byte
		shotsJSON []byte
		attrsJSON []byte
		caseName  *string
	)
	err = pool.QueryRow(ctx, query, id).Scan(
		&job.ID,
		&job.CaseID,
		&job.CompilationID,
		&status,
		&statsJSON,
		&job.Error,
		&shotsJSON,
		&caseName,
		&job.Case.FileName,
		&attrsJSON,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: job %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: select job %s: %v", ErrQuery, id, err)
	}

	job.Status = domain.JobStatus(status)
	job.Case.ID = job.CaseID
	job.Compilation.ID = job.CompilationID
	if caseName != nil {
		job.Case.Name = *caseName
	}

	if statsJSON != nil {
		var stats domain.ReporterStats
		if err := json.Unmarshal(statsJSON, &stats); err != nil {
			return nil, fmt.Errorf("%w: unmarshal reporter_stats: %v", ErrQuery, err)
		}
		job.ReporterStats = &stats
	}
	if shotsJSON != nil {
		if err := json.Unmarshal(shotsJSON, &job.Screenshots); err != nil {
			return nil, fmt.Errorf("%w: unmarshal screenshots: %v", ErrQuery, err)
		}
	}
	if attrsJSON != nil {
		if err := json.Unmarshal(attrsJSON, &job.Compilation.Attributes); err != nil {
			return nil, fmt.Errorf("%w: unmarshal attributes: %v", ErrQuery, err)
		}
	}

	return &job, nil
}

// SetStatus обновляет статус, если переход из текущего статуса допустим.
func (s *PgStore) SetStatus(ctx context.Context, id string, status domain.JobStatus) error {
	pool, err := s.conn()
	if err != nil {
		return err
	}

	query := `
		UPDATE test_objects
		SET status = $2
		WHERE id::text = $1 AND COALESCE(status, '') = ANY($3)
	`
	result, err := pool.Exec(ctx, query, id, string(status), transitionSources(status))
	if err != nil {
		return fmt.Errorf("update status: %w", err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("%w: job %s cannot move to %s", ErrInvalidState, id, status)
	}
	return nil
}

// SaveResult записывает итог прогона. Уже завершённый job не перезаписывается.
func (s *PgStore) SaveResult(ctx context.Context, job *domain.Job) error {
	pool, err := s.conn()
	if err != nil {
		return err
	}

	var statsJSON []byte
	if job.ReporterStats != nil {
		if statsJSON, err = json.Marshal(job.ReporterStats); err != nil {
			return fmt.Errorf("marshal reporter_stats: %w", err)
		}
	}
	screenshots := job.Screenshots
	if screenshots == nil {
		screenshots = []domain.Screenshot{}
	}
	shotsJSON, err := json.Marshal(screenshots)
	if err != nil {
		return fmt.Errorf("marshal screenshots: %w", err)
	}

	query := `
		UPDATE test_objects
		SET status = $2, reporter_stats = $3, error = $4, screenshots = $5
		WHERE id::text = $1 AND COALESCE(status, '') NOT IN ('success', 'failed')
	`
	result, err := pool.Exec(ctx, query, job.ID, string(job.Status), statsJSON, job.Error, shotsJSON)
	if err != nil {
		return fmt.Errorf("save result: %w", err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("%w: job %s already finished", ErrInvalidState, job.ID)
	}
	return nil
}

// transitionSources — статусы, из которых допустим переход в next.
// NULL и пустая строка считаются pending.
func transitionSources(next domain.JobStatus) []string {
	sources := domain.Strings(domain.SourcesOf(next))
	for _, s := range sources {
		if s == string(domain.JobStatusPending) {
			return append(sources, "")
		}
	}
	return sources
}
