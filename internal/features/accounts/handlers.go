// Package accounts (handlers.go) обрабатывает HTTP-запросы:
// POST /v1/users, GET /v1/users/{id} и админские корректировки.
package accounts

import (
	"context"
	"net/http"

	"github.com/shopspring/decimal"

	"serotonyl.ru/mlm-platform/internal/common"
)

// Handler обрабатывает запросы учётных записей.
type Handler struct {
	service *Service
}

// NewHandler создаёт обработчик.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// HandleRegister: POST /v1/users.
func (h *Handler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	var in RegisterInput
	if err := common.DecodeJSON(r, &in); err != nil {
		common.WriteError(w, err)
		return
	}
	u, err := h.service.Register(r.Context(), in)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.WriteJSON(w, http.StatusCreated, u)
}

// HandleGet: GET /v1/users/{id}.
func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	id, err := common.PathID(r, "id")
	if err != nil {
		common.WriteError(w, err)
		return
	}
	u, err := h.service.Get(r.Context(), id)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.WriteJSON(w, http.StatusOK, u)
}

type adjustRequest struct {
	Amount decimal.Decimal `json:"amount"`
	Note   string          `json:"note"`
}

// HandleAdjust: POST /admin/users/{id}/adjust {"amount": "-10.5", "note": "..."}.
func (h *Handler) HandleAdjust(w http.ResponseWriter, r *http.Request) {
	id, err := common.PathID(r, "id")
	if err != nil {
		common.WriteError(w, err)
		return
	}
	var req adjustRequest
	if err := common.DecodeJSON(r, &req); err != nil {
		common.WriteError(w, err)
		return
	}
	u, err := h.service.AdjustBalance(r.Context(), id, req.Amount, req.Note)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.WriteJSON(w, http.StatusOK, u)
}

type commissionRequest struct {
	Amount decimal.Decimal `json:"amount"`
}

// HandleLock: POST /admin/users/{id}/lock.
func (h *Handler) HandleLock(w http.ResponseWriter, r *http.Request) {
	h.moveCommission(w, r, h.service.LockCommission)
}

// HandleUnlock: POST /admin/users/{id}/unlock.
func (h *Handler) HandleUnlock(w http.ResponseWriter, r *http.Request) {
	h.moveCommission(w, r, h.service.UnlockCommission)
}

func (h *Handler) moveCommission(
	w http.ResponseWriter, r *http.Request,
	move func(ctx context.Context, userID int64, amount decimal.Decimal) (*User, error),
) {
	id, err := common.PathID(r, "id")
	if err != nil {
		common.WriteError(w, err)
		return
	}
	var req commissionRequest
	if err := common.DecodeJSON(r, &req); err != nil {
		common.WriteError(w, err)
		return
	}
	u, err := move(r.Context(), id, req.Amount)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.WriteJSON(w, http.StatusOK, u)
}
