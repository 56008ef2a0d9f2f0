// Package ledger (handlers.go): GET /v1/users/{id}/ledger, GET /admin/events/{eventID}.
package ledger

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"serotonyl.ru/mlm-platform/internal/common"
)

// Handler обслуживает HTTP-запросы журнала.
type Handler struct {
	service *Service
}

// NewHandler создаёт обработчик журнала.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// HandleHistory отдаёт историю операций пользователя (?limit=, максимум 500).
func (h *Handler) HandleHistory(w http.ResponseWriter, r *http.Request) {
	userID, err := common.PathID(r, "id")
	if err != nil {
		common.WriteError(w, err)
		return
	}
	limit := common.QueryInt(r, "limit", DefaultHistoryLimit, 500)

	entries, err := h.service.History(r.Context(), userID, limit)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	if entries == nil {
		entries = []*Entry{}
	}
	common.WriteJSON(w, http.StatusOK, entries)
}

// HandleEvent отдаёт все записи события по его eventId.
func (h *Handler) HandleEvent(w http.ResponseWriter, r *http.Request) {
	eventID, err := uuid.Parse(chi.URLParam(r, "eventID"))
	if err != nil {
		common.WriteError(w, common.ErrInvalidID)
		return
	}
	entries, err := h.service.Event(r.Context(), eventID)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	if entries == nil {
		entries = []*Entry{}
	}
	common.WriteJSON(w, http.StatusOK, entries)
}
