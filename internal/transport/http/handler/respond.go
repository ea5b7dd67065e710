package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"ledger-service/internal/models"
)

func writeJSON(w http.ResponseWriter, statusCode int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, statusCode int, code, message string) {
	writeJSON(w, statusCode, map[string]interface{}{
		"error":   code,
		"message": message,
	})
}

// writeDomainError maps a service error onto an HTTP status and keeps the
// machine-readable domain code in the body.
func writeDomainError(w http.ResponseWriter, err error) {
	code := "INTERNAL_ERROR"
	var domainErr *models.DomainError
	if errors.As(err, &domainErr) {
		code = domainErr.Code
	}
	writeError(w, statusFor(err), code, err.Error())
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, models.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, models.ErrValidation),
		errors.Is(err, models.ErrCurrencyMismatch),
		errors.Is(err, models.ErrInvalidEntry):
		return http.StatusBadRequest
	case errors.Is(err, models.ErrAlreadyExists),
		errors.Is(err, models.ErrDuplicateReference),
		errors.Is(err, models.ErrInvalidStateTransition),
		errors.Is(err, models.ErrConcurrencyConflict):
		return http.StatusConflict
	case errors.Is(err, models.ErrInsufficientFunds),
		errors.Is(err, models.ErrInsufficientFrozenFunds),
		errors.Is(err, models.ErrWalletInactive):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}
