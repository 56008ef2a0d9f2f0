// Package binary (handlers.go): POST /v1/placements, GET /v1/users/{id}/placement.
package binary

import (
	"net/http"

	"serotonyl.ru/mlm-platform/internal/common"
)

// Handler обрабатывает запросы дерева.
type Handler struct {
	service *Service
}

// NewHandler создаёт обработчик.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// HandlePlace: POST /v1/placements.
func (h *Handler) HandlePlace(w http.ResponseWriter, r *http.Request) {
	var in PlaceInput
	if err := common.DecodeJSON(r, &in); err != nil {
		common.WriteError(w, err)
		return
	}
	p, err := h.service.Place(r.Context(), in)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.WriteJSON(w, http.StatusCreated, p)
}

// HandleGet: GET /v1/users/{id}/placement.
func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	userID, err := common.PathID(r, "id")
	if err != nil {
		common.WriteError(w, err)
		return
	}
	p, err := h.service.Get(r.Context(), userID)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.WriteJSON(w, http.StatusOK, p)
}
