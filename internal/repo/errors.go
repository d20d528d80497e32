package repo

import "errors"

// Общие ошибки репозиториев.
var (
	// ErrNotFound — job не найден (или у него нет обязательных ссылок).
	ErrNotFound = errors.New("not found")

	// ErrQuery — ошибка на стороне хранилища при чтении.
	ErrQuery = errors.New("query failed")

	// ErrInvalidState — job не в том статусе, из которого допустимо обновление.
	ErrInvalidState = errors.New("invalid state")

	// ErrNotConnected — соединение с хранилищем ещё не установлено.
	ErrNotConnected = errors.New("store not connected")
)
