package domain

import (
	"time"
)

// Job — один запуск теста Cypress.
//
// Job создаётся внешней системой в статусе pending, а сообщение с его ID
// попадает в очередь. Воркер подтягивает Case и Compilation, выполняет
// spec-файл и записывает результат обратно.
type Job struct {
	// ID — идентификатор job в хранилище.
	ID string `json:"id"`

	// CaseID — ссылка на определение тест-кейса.
	CaseID string `json:"case_id"`

	// CompilationID — ссылка на сборку приложения.
	CompilationID string `json:"app_compilation_id"`

	// Status — текущий статус.
	Status JobStatus `json:"status"`

	// ReporterStats — счётчики прогона; nil до завершения.
	ReporterStats *ReporterStats `json:"reporterStats,omitempty"`

	// Error — ошибка движка, если прогон оборвался.
	Error *string `json:"error"`

	// Screenshots — скриншоты, сделанные во время прогона.
	Screenshots []Screenshot `json:"screenshots"`

	// Case — присоединённый тест-кейс.
	Case Case `json:"case"`

	// Compilation — присоединённые метаданные сборки.
	Compilation Compilation `json:"compilation"`
}

// Case — определение тест-кейса.
type Case struct {
	ID string `json:"id"`

	Name string `json:"name,omitempty"`

	// FileName — логическое имя spec-файла (относительно корня spec-файлов).
	FileName string `json:"file_name"`
}

// Compilation — метаданные сборки, против которой выполняется тест.
// Схема принадлежит внешней системе, поэтому хранится как есть.
type Compilation struct {
	ID string `json:"id"`

	Attributes map[string]any `json:"attributes,omitempty"`
}

// ReporterStats — статистика прогона от движка.
type ReporterStats struct {
	Suites   int `json:"suites" bson:"suites"`
	Tests    int `json:"tests" bson:"tests"`
	Passes   int `json:"passes" bson:"passes"`
	Pending  int `json:"pending" bson:"pending"`
	Failures int `json:"failures" bson:"failures"`

	// Start, End — время в формате ISO 8601, как его отдаёт движок.
	Start    string `json:"start,omitempty" bson:"start,omitempty"`
	End      string `json:"end,omitempty" bson:"end,omitempty"`
	Duration int64  `json:"duration" bson:"duration"`
}

// AllPassed возвращает true, если прошли все тесты.
func (s ReporterStats) AllPassed() bool {
	return s.Passes == s.Tests
}

// Screenshot — скриншот прогона.
//
// Во время прогона заполнен Path (локальный временный файл).
// После назначения имени — Name и URL в хранилище.
type Screenshot struct {
	Name    string     `json:"name" bson:"name"`
	URL     string     `json:"url,omitempty" bson:"url,omitempty"`
	Path    string     `json:"-" bson:"-"`
	TakenAt *time.Time `json:"takenAt,omitempty" bson:"takenAt,omitempty"`
	Height  int        `json:"height,omitempty" bson:"height,omitempty"`
	Width   int        `json:"width,omitempty" bson:"width,omitempty"`
}

// MarkInProgress переводит job в статус in-progress.
// Возвращает false, если переход недопустим.
func (j *Job) MarkInProgress() bool {
	if !j.Status.CanTransitionTo(JobStatusInProgress) {
		return false
	}
	j.Status = JobStatusInProgress
	return true
}

// Complete записывает результат нормально завершённого прогона.
//
// success — только если passes == tests.
func (j *Job) Complete(stats ReporterStats, screenshots []Screenshot) bool {
	next := JobStatusFailed
	if stats.AllPassed() {
		next = JobStatusSuccess
	}
	if !j.Status.CanTransitionTo(next) {
		return false
	}

	j.Status = next
	j.ReporterStats = &stats
	j.Error = nil
	j.Screenshots = screenshots
	return true
}

// Fail фиксирует ошибку движка: статистика и скриншоты не записываются.
func (j *Job) Fail(engineErr string) bool {
	if !j.Status.CanTransitionTo(JobStatusFailed) {
		return false
	}

	j.Status = JobStatusFailed
	j.Error = &engineErr
	return true
}

// IsFinished возвращает true, если job уже завершён.
func (j *Job) IsFinished() bool {
	return j.Status.IsTerminal()
}
