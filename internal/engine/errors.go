package engine

import "errors"

// Ошибки движка.
var (
	// ErrEngine — движок не смог выполнить прогон (команда не запустилась,
	// упала без отчёта или вернула пустой результат).
	ErrEngine = errors.New("test engine failed")

	// ErrReport — отчёт движка не удалось разобрать.
	ErrReport = errors.New("invalid engine report")

	// ErrNoCommand — не задана команда движка.
	ErrNoCommand = errors.New("engine command is empty")
)
