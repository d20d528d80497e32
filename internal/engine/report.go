package engine

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/vgarzom/miso4208-project-cypress-executor/internal/domain"
)

// Report — запись об одном прогоне spec-файла.
type Report struct {
	// Error — ошибка движка; nil, если прогон завершился штатно.
	Error *string `json:"error"`

	// ReporterStats — счётчики тестов.
	ReporterStats domain.ReporterStats `json:"reporterStats"`

	// Screenshots — скриншоты с локальными (временными) путями.
	Screenshots []ScreenshotRef `json:"screenshots"`
}

// ScreenshotRef — скриншот, сохранённый движком на диск.
type ScreenshotRef struct {
	Path    string     `json:"path"`
	TakenAt *time.Time `json:"takenAt,omitempty"`
	Height  int        `json:"height,omitempty"`
	Width   int        `json:"width,omitempty"`
}

// Failed возвращает true, если движок сообщил об ошибке верхнего уровня.
func (r *Report) Failed() bool {
	return r.Error != nil
}

// ErrorMessage возвращает текст ошибки движка или пустую строку.
func (r *Report) ErrorMessage() string {
	if r.Error == nil {
		return ""
	}
	return *r.Error
}

// envelope покрывает три формы вывода:
//   - запись о прогоне ({error, reporterStats, screenshots})
//   - полный результат ({runs: [...]}) — берётся первый прогон
//   - отказ запуска ({failures, message})
type envelope struct {
	Runs     []json.RawMessage `json:"runs"`
	Failures int               `json:"failures"`
	Message  string            `json:"message"`

	Report
}

// ParseReport разбирает JSON-отчёт движка.
func ParseReport(data []byte) (*Report, error) {
	if len(strings.TrimSpace(string(data))) == 0 {
		return nil, fmt.Errorf("%w: empty output", ErrReport)
	}

	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrReport, err)
	}

	if env.Runs != nil {
		if len(env.Runs) == 0 {
			return nil, fmt.Errorf("%w: no runs in result", ErrReport)
		}
		var run Report
		if err := json.Unmarshal(env.Runs[0], &run); err != nil {
			return nil, fmt.Errorf("%w: run 0: %v", ErrReport, err)
		}
		return &run, nil
	}

	if env.Failures > 0 && env.Message != "" {
		msg := env.Message
		return &Report{Error: &msg}, nil
	}

	report := env.Report
	return &report, nil
}
