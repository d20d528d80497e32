package domain

// JobStatus — статус выполнения тестового job.
//
// Жизненный цикл:
//
//	pending → in-progress → success
//	                      ↘ failed
//
// Других переходов нет: статус никогда не откатывается назад.
type JobStatus string

const (
	// JobStatusPending — job создан, но ещё не взят воркером.
	JobStatusPending JobStatus = "pending"

	// JobStatusInProgress — воркер выполняет тест.
	JobStatusInProgress JobStatus = "in-progress"

	// JobStatusSuccess — все тесты прошли.
	JobStatusSuccess JobStatus = "success"

	// JobStatusFailed — часть тестов упала или движок завершился ошибкой.
	JobStatusFailed JobStatus = "failed"
)

// IsTerminal возвращает true, если статус финальный.
func (s JobStatus) IsTerminal() bool {
	switch s {
	case JobStatusSuccess, JobStatusFailed:
		return true
	default:
		return false
	}
}

// CanTransitionTo проверяет, допустим ли переход из s в next.
//
// Повторная установка in-progress разрешена: при повторной доставке
// сообщения (at-least-once) job может быть взят снова после падения воркера.
func (s JobStatus) CanTransitionTo(next JobStatus) bool {
	switch s {
	case "", JobStatusPending: // отсутствующий статус считается pending
		return next == JobStatusInProgress
	case JobStatusInProgress:
		return next == JobStatusInProgress || next.IsTerminal()
	default:
		return false
	}
}

// String возвращает строковое представление JobStatus.
func (s JobStatus) String() string {
	return string(s)
}

// Statuses — все статусы job в порядке жизненного цикла.
var Statuses = []JobStatus{
	JobStatusPending,
	JobStatusInProgress,
	JobStatusSuccess,
	JobStatusFailed,
}

// SourcesOf возвращает статусы, из которых допустим переход в next.
func SourcesOf(next JobStatus) []JobStatus {
	var sources []JobStatus
	for _, s := range Statuses {
		if s.CanTransitionTo(next) {
			sources = append(sources, s)
		}
	}
	return sources
}

// Strings возвращает статусы в виде строк (для запросов к хранилищу).
func Strings(statuses []JobStatus) []string {
	out := make([]string, len(statuses))
	for i, s := range statuses {
		out[i] = string(s)
	}
	return out
}
