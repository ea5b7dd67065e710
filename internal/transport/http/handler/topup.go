package handler

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"ledger-service/internal/models"
	"ledger-service/internal/services"

	"github.com/go-playground/validator"
	"github.com/shopspring/decimal"
)

type TopUp struct {
	service  *services.WalletLedgerService
	validate *validator.Validate
}

func NewTopUp(mux *http.ServeMux, service *services.WalletLedgerService) *TopUp {
	h := &TopUp{
		service:  service,
		validate: validator.New(),
	}

	mux.HandleFunc("POST /api/v1/topups", h.initiate)
	mux.HandleFunc("GET /api/v1/topups/{topupId}", h.get)
	mux.HandleFunc("POST /api/v1/topups/{topupId}/confirm", h.confirm)
	mux.HandleFunc("POST /api/v1/topups/{topupId}/fail", h.fail)
	mux.HandleFunc("GET /api/v1/users/{userId}/topups", h.listByUser)

	return h
}

type initiateTopUpRequest struct {
	UserID   string              `json:"userId" validate:"required"`
	Amount   decimal.Decimal     `json:"amount" validate:"required"`
	Currency string              `json:"currency"`
	Channel  models.TopUpChannel `json:"channel" validate:"required"`
}

func (h *TopUp) initiate(w http.ResponseWriter, r *http.Request) {
	var req initiateTopUpRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid JSON format")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", fmt.Sprintf("Validation error: %v", err))
		return
	}
	amount, err := models.NewMoney(req.Amount, req.Currency)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	topUp, err := h.service.InitiateTopUp(r.Context(), req.UserID, amount, req.Channel)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, topUp)
}

func (h *TopUp) get(w http.ResponseWriter, r *http.Request) {
	topUpID := r.PathValue("topupId")
	if err := h.validate.Var(topUpID, "required,uuid4"); err != nil {
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid top-up ID format")
		return
	}

	topUp, err := h.service.GetTopUp(r.Context(), topUpID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, topUp)
}

type confirmTopUpRequest struct {
	ExternalReference string `json:"externalReference" validate:"required"`
}

func (h *TopUp) confirm(w http.ResponseWriter, r *http.Request) {
	topUpID := r.PathValue("topupId")
	if err := h.validate.Var(topUpID, "required,uuid4"); err != nil {
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid top-up ID format")
		return
	}

	var req confirmTopUpRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid JSON format")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", fmt.Sprintf("Validation error: %v", err))
		return
	}

	topUp, err := h.service.ConfirmTopUp(r.Context(), topUpID, req.ExternalReference)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, topUp)
}

type failTopUpRequest struct {
	Reason string `json:"reason" validate:"required"`
}

func (h *TopUp) fail(w http.ResponseWriter, r *http.Request) {
	topUpID := r.PathValue("topupId")
	if err := h.validate.Var(topUpID, "required,uuid4"); err != nil {
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid top-up ID format")
		return
	}

	var req failTopUpRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid JSON format")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", fmt.Sprintf("Validation error: %v", err))
		return
	}

	topUp, err := h.service.FailTopUp(r.Context(), topUpID, req.Reason)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, topUp)
}

func (h *TopUp) listByUser(w http.ResponseWriter, r *http.Request) {
	userID := r.PathValue("userId")
	if err := h.validate.Var(userID, "required"); err != nil {
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid user ID")
		return
	}

	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", fmt.Sprintf("invalid limit %q", v))
			return
		}
		limit = n
	}

	topUps, err := h.service.ListTopUps(r.Context(), userID, limit)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"userId": userID,
		"topups": topUps,
	})
}
