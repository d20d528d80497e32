package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/vgarzom/miso4208-project-cypress-executor/internal/domain"
	"github.com/vgarzom/miso4208-project-cypress-executor/internal/repo"
)

// JobReader — хранилище, доступное операционному API.
type JobReader interface {
	Connected() bool
	FetchFull(ctx context.Context, id string) (*domain.Job, error)
}

// Handler — обработчик операционного API.
type Handler struct {
	store  JobReader
	logger *slog.Logger
}

// NewHandler создаёт новый Handler.
func NewHandler(store JobReader, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{store: store, logger: logger}
}

// Healthz — процесс жив.
func (h *Handler) Healthz(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

// Readyz — хранилище подключено и воркер опрашивает очередь.
func (h *Handler) Readyz(w http.ResponseWriter, _ *http.Request) {
	if !h.store.Connected() {
		Unavailable(w, "store is not connected")
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ready"))
}

// GetJob возвращает job вместе с тест-кейсом и сборкой.
func (h *Handler) GetJob(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	job, err := h.store.FetchFull(r.Context(), id)
	switch {
	case errors.Is(err, repo.ErrNotFound):
		NotFound(w, "job not found")
		return
	case errors.Is(err, repo.ErrNotConnected):
		Unavailable(w, "store is not connected")
		return
	case err != nil:
		InternalError(w, h.logger, err)
		return
	}

	Success(w, job)
}
