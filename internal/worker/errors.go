package worker

import "errors"

// Ошибки воркера.
var (
	// ErrConnection — хранилище недоступно при старте.
	ErrConnection = errors.New("store connection failed")

	// ErrPersistence — не удалось записать результат job.
	ErrPersistence = errors.New("result persistence failed")

	// ErrQueueDelete — не удалось удалить сообщение из очереди.
	ErrQueueDelete = errors.New("queue delete failed")

	// ErrHandlerPanic — паника при обработке сообщения.
	ErrHandlerPanic = errors.New("panic while handling message")
)
