// Package commission (handlers.go): HTTP-вход для трёх событий движка.
package commission

import (
	"net/http"

	"serotonyl.ru/mlm-platform/internal/common"
)

// Handler обрабатывает HTTP-запросы событий.
type Handler struct {
	engine *Engine
}

// NewHandler создаёт обработчик.
func NewHandler(engine *Engine) *Handler {
	return &Handler{engine: engine}
}

// HandlePurchase: POST /v1/purchases.
func (h *Handler) HandlePurchase(w http.ResponseWriter, r *http.Request) {
	var in PurchaseInput
	if err := common.DecodeJSON(r, &in); err != nil {
		common.WriteError(w, err)
		return
	}
	res, err := h.engine.Purchase(r.Context(), in)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.WriteJSON(w, http.StatusCreated, res)
}

// HandleClick: POST /v1/minting/click.
func (h *Handler) HandleClick(w http.ResponseWriter, r *http.Request) {
	var in ClickInput
	if err := common.DecodeJSON(r, &in); err != nil {
		common.WriteError(w, err)
		return
	}
	res, err := h.engine.Click(r.Context(), in)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.WriteJSON(w, http.StatusOK, res)
}

// HandleDepositApproved: POST /admin/deposits/approved.
func (h *Handler) HandleDepositApproved(w http.ResponseWriter, r *http.Request) {
	var in DepositInput
	if err := common.DecodeJSON(r, &in); err != nil {
		common.WriteError(w, err)
		return
	}
	res, err := h.engine.Deposit(r.Context(), in)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.WriteJSON(w, http.StatusOK, res)
}
