// Package investments (handlers.go): пакеты, запуск и смена типа минтинга.
package investments

import (
	"net/http"

	"serotonyl.ru/mlm-platform/internal/common"
)

// Handler обрабатывает HTTP-запросы инвестиций.
type Handler struct {
	service *Service
}

// NewHandler создаёт обработчик.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// HandleListPackages: GET /v1/packages.
func (h *Handler) HandleListPackages(w http.ResponseWriter, r *http.Request) {
	packages, err := h.service.ListPackages(r.Context())
	if err != nil {
		common.WriteError(w, err)
		return
	}
	if packages == nil {
		packages = []*Package{}
	}
	common.WriteJSON(w, http.StatusOK, packages)
}

// HandleCreatePackage: POST /admin/packages.
func (h *Handler) HandleCreatePackage(w http.ResponseWriter, r *http.Request) {
	var in PackageInput
	if err := common.DecodeJSON(r, &in); err != nil {
		common.WriteError(w, err)
		return
	}
	p, err := h.service.CreatePackage(r.Context(), in)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.WriteJSON(w, http.StatusCreated, p)
}

// HandleStartMinting: POST /v1/minting.
func (h *Handler) HandleStartMinting(w http.ResponseWriter, r *http.Request) {
	var in StartMintingInput
	if err := common.DecodeJSON(r, &in); err != nil {
		common.WriteError(w, err)
		return
	}
	a, err := h.service.StartMinting(r.Context(), in)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.WriteJSON(w, http.StatusCreated, a)
}

type switchRequest struct {
	UserID      int64  `json:"userId"`
	MintingType string `json:"mintingType"`
}

// HandleSwitch: POST /v1/minting/{id}/switch.
func (h *Handler) HandleSwitch(w http.ResponseWriter, r *http.Request) {
	activityID, err := common.PathID(r, "id")
	if err != nil {
		common.WriteError(w, err)
		return
	}
	var req switchRequest
	if err := common.DecodeJSON(r, &req); err != nil {
		common.WriteError(w, err)
		return
	}
	res, err := h.service.SwitchMintingType(r.Context(), req.UserID, activityID, req.MintingType)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.WriteJSON(w, http.StatusOK, res)
}

type mintingView struct {
	Investments []*Investment `json:"investments"`
	Activities  []*Activity   `json:"activities"`
}

// HandleListMinting: GET /v1/users/{id}/minting.
func (h *Handler) HandleListMinting(w http.ResponseWriter, r *http.Request) {
	userID, err := common.PathID(r, "id")
	if err != nil {
		common.WriteError(w, err)
		return
	}
	invs, err := h.service.ListInvestments(r.Context(), userID)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	acts, err := h.service.ListActivities(r.Context(), userID)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	view := mintingView{Investments: invs, Activities: acts}
	if view.Investments == nil {
		view.Investments = []*Investment{}
	}
	if view.Activities == nil {
		view.Activities = []*Activity{}
	}
	common.WriteJSON(w, http.StatusOK, view)
}
