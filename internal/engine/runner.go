package engine

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/vgarzom/miso4208-project-cypress-executor/internal/telemetry"
)

// maxOutputTail — сколько байт вывода движка попадает в текст ошибки.
const maxOutputTail = 2048

// Options — конфигурация прогона.
type Options struct {
	// Video — записывать ли видео прогона.
	Video bool
}

// CommandRunner запускает движок как внешнюю команду.
//
// Команда вызывается так:
//
//	<command...> --spec <path> --output <file> --config video=<bool>
//
// и должна записать в <file> JSON-отчёт (см. ParseReport).
type CommandRunner struct {
	argv    []string
	workDir string
	logger  *slog.Logger
}

// RunnerConfig — конфигурация CommandRunner.
type RunnerConfig struct {
	// Command — командная строка движка, например "node scripts/cypress-run.js".
	Command string

	// WorkDir — рабочий каталог (корень проекта Cypress). Пусто — текущий.
	WorkDir string

	Logger *slog.Logger
}

// NewCommandRunner создаёт CommandRunner.
func NewCommandRunner(cfg RunnerConfig) (*CommandRunner, error) {
	argv := strings.Fields(cfg.Command)
	if len(argv) == 0 {
		return nil, ErrNoCommand
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &CommandRunner{argv: argv, workDir: cfg.WorkDir, logger: logger}, nil
}

// Run выполняет spec-файл и возвращает отчёт.
//
// Ошибка возвращается только если отчёт получить не удалось; ошибка
// самого прогона приходит в Report.Error. Длительность не ограничена.
func (r *CommandRunner) Run(ctx context.Context, specPath string, opts Options) (*Report, error) {
	out, err := os.CreateTemp("", "cypress-report-*.json")
	if err != nil {
		return nil, fmt.Errorf("%w: create report file: %v", ErrEngine, err)
	}
	outPath := out.Name()
	out.Close()
	defer os.Remove(outPath)

	args := append([]string{}, r.argv[1:]...)
	args = append(args,
		"--spec", specPath,
		"--output", outPath,
		"--config", fmt.Sprintf("video=%t", opts.Video),
	)

	cmd := exec.CommandContext(ctx, r.argv[0], args...)
	cmd.Dir = r.workDir
	var output bytes.Buffer
	cmd.Stdout = &output
	cmd.Stderr = &output

	r.logger.Info("engine run started", "spec", filepath.Base(specPath))
	start := time.Now()
	runErr := cmd.Run()
	elapsed := time.Since(start)
	telemetry.EngineDuration.Observe(elapsed.Seconds())

	data, readErr := os.ReadFile(outPath)
	if readErr == nil && len(bytes.TrimSpace(data)) > 0 {
		report, err := ParseReport(data)
		if err != nil {
			return nil, err
		}
		r.logger.Info("engine run finished",
			"spec", filepath.Base(specPath),
			"duration", elapsed,
			"exit_error", runErr,
		)
		return report, nil
	}

	if runErr != nil {
		return nil, fmt.Errorf("%w: %v: %s", ErrEngine, runErr, tail(output.Bytes()))
	}
	return nil, fmt.Errorf("%w: no report produced", ErrEngine)
}

func tail(b []byte) string {
	b = bytes.TrimSpace(b)
	if len(b) > maxOutputTail {
		b = b[len(b)-maxOutputTail:]
	}
	return string(b)
}
