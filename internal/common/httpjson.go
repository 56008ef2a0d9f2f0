// Package common (httpjson.go): общие JSON-ответы для HTTP-обработчиков фич.
package common

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	log "github.com/sirupsen/logrus"
)

// ErrorResponse: тело ответа с ошибкой.
type ErrorResponse struct {
	Error string `json:"error"`
}

// WriteJSON пишет v как JSON с указанным статусом.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.WithError(err).Warn("Не удалось записать JSON-ответ")
	}
}

// WriteError переводит ошибку в HTTP-статус.
// Неизвестные ошибки логируются и отдаются как 500 без подробностей.
func WriteError(w http.ResponseWriter, err error) {
	status := StatusFor(err)
	if status == http.StatusInternalServerError {
		log.WithError(err).Error("Внутренняя ошибка обработки запроса")
		WriteJSON(w, status, ErrorResponse{Error: "внутренняя ошибка"})
		return
	}
	WriteJSON(w, status, ErrorResponse{Error: err.Error()})
}

// StatusFor возвращает HTTP-статус для известной ошибки.
func StatusFor(err error) int {
	switch {
	case errors.Is(err, ErrInvalidRequest),
		errors.Is(err, ErrInvalidAmount),
		errors.Is(err, ErrInvalidID),
		errors.Is(err, ErrInvalidMintingType),
		errors.Is(err, ErrInvalidLeg),
		errors.Is(err, ErrInvalidReferralCode),
		errors.Is(err, ErrBelowMinimumMinting):
		return http.StatusBadRequest

	case errors.Is(err, ErrUserNotFound),
		errors.Is(err, ErrPackageNotFound),
		errors.Is(err, ErrInvestmentNotFound),
		errors.Is(err, ErrActivityNotFound),
		errors.Is(err, ErrPlacementNotFound),
		errors.Is(err, ErrSettingNotFound):
		return http.StatusNotFound

	case errors.Is(err, ErrInsufficientBalance),
		errors.Is(err, ErrInsufficientCommission),
		errors.Is(err, ErrPackageInactive),
		errors.Is(err, ErrNoActiveMinting),
		errors.Is(err, ErrCapacityExceeded),
		errors.Is(err, ErrSameMintingType),
		errors.Is(err, ErrActivityInactive),
		errors.Is(err, ErrAlreadyPlaced),
		errors.Is(err, ErrLegOccupied),
		errors.Is(err, ErrRootExists):
		return http.StatusConflict

	case errors.Is(err, ErrUnauthorized):
		return http.StatusUnauthorized

	case errors.Is(err, ErrClickTooSoon),
		errors.Is(err, ErrTooManyAttempts):
		return http.StatusTooManyRequests
	}
	return http.StatusInternalServerError
}

// DecodeJSON читает тело запроса в v. Лишние поля запрещены.
func DecodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return ErrInvalidRequest
	}
	return nil
}

// PathID достаёт положительный int64 из параметра маршрута chi.
func PathID(r *http.Request, name string) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		return 0, ErrInvalidID
	}
	return id, nil
}

// QueryInt читает целый query-параметр с дефолтом и верхней границей.
func QueryInt(r *http.Request, name string, def, max int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return def
	}
	if n > max {
		return max
	}
	return n
}
