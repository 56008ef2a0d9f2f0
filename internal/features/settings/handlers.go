// Package settings (handlers.go): GET /admin/settings, PUT /admin/settings/{name}.
package settings

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"serotonyl.ru/mlm-platform/internal/common"
)

const maxDocumentSize = 64 << 10

// Handler обрабатывает админские запросы настроек.
type Handler struct {
	service *Service
}

// NewHandler создаёт обработчик настроек.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// HandleList отдаёт все документы.
func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	docs, err := h.service.List(r.Context())
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.WriteJSON(w, http.StatusOK, docs)
}

// HandlePut заменяет документ целиком.
func (h *Handler) HandlePut(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	body, err := io.ReadAll(io.LimitReader(r.Body, maxDocumentSize))
	if err != nil || !json.Valid(body) {
		common.WriteError(w, common.ErrInvalidRequest)
		return
	}
	if err := h.service.Put(r.Context(), name, body); err != nil {
		common.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
