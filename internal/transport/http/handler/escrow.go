package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"ledger-service/internal/models"
	"ledger-service/internal/services"

	"github.com/go-playground/validator"
	"github.com/shopspring/decimal"
)

type Escrow struct {
	service  *services.WalletLedgerService
	validate *validator.Validate
}

func NewEscrow(mux *http.ServeMux, service *services.WalletLedgerService) *Escrow {
	h := &Escrow{
		service:  service,
		validate: validator.New(),
	}

	mux.HandleFunc("POST /api/v1/escrows", h.create)
	mux.HandleFunc("GET /api/v1/escrows/{escrowId}", h.get)
	mux.HandleFunc("POST /api/v1/escrows/{escrowId}/fund", h.fund)
	mux.HandleFunc("POST /api/v1/escrows/{escrowId}/release", h.release)
	mux.HandleFunc("POST /api/v1/escrows/{escrowId}/refund", h.refund)
	mux.HandleFunc("POST /api/v1/escrows/{escrowId}/dispute", h.dispute)
	mux.HandleFunc("POST /api/v1/escrows/{escrowId}/resolve", h.resolve)
	mux.HandleFunc("GET /api/v1/users/{userId}/escrows", h.listByParty)

	return h
}

type createEscrowRequest struct {
	BuyerID  string          `json:"buyerId" validate:"required"`
	SellerID string          `json:"sellerId" validate:"required"`
	Amount   decimal.Decimal `json:"amount" validate:"required"`
	Currency string          `json:"currency"`
	FeeRate  decimal.Decimal `json:"feeRate"`
	OrderID  string          `json:"orderId"`
}

func (h *Escrow) create(w http.ResponseWriter, r *http.Request) {
	var req createEscrowRequest
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

	escrow, err := h.service.CreateEscrow(r.Context(), req.BuyerID, req.SellerID, amount, req.FeeRate, req.OrderID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, escrow)
}

func (h *Escrow) get(w http.ResponseWriter, r *http.Request) {
	escrowID, ok := h.escrowID(w, r)
	if !ok {
		return
	}
	escrow, err := h.service.GetEscrow(r.Context(), escrowID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, escrow)
}

func (h *Escrow) fund(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.service.FundEscrow)
}

func (h *Escrow) release(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.service.ReleaseEscrow)
}

func (h *Escrow) refund(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.service.RefundEscrow)
}

func (h *Escrow) dispute(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.service.DisputeEscrow)
}

type resolveEscrowRequest struct {
	Outcome models.EscrowOutcome `json:"outcome" validate:"required"`
}

func (h *Escrow) resolve(w http.ResponseWriter, r *http.Request) {
	escrowID, ok := h.escrowID(w, r)
	if !ok {
		return
	}

	var req resolveEscrowRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid JSON format")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", fmt.Sprintf("Validation error: %v", err))
		return
	}

	escrow, err := h.service.ResolveEscrow(r.Context(), escrowID, req.Outcome)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, escrow)
}

func (h *Escrow) listByParty(w http.ResponseWriter, r *http.Request) {
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

	escrows, err := h.service.ListEscrows(r.Context(), userID, limit)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"userId":  userID,
		"escrows": escrows,
	})
}

func (h *Escrow) escrowID(w http.ResponseWriter, r *http.Request) (string, bool) {
	escrowID := r.PathValue("escrowId")
	if err := h.validate.Var(escrowID, "required,uuid4"); err != nil {
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid escrow ID format")
		return "", false
	}
	return escrowID, true
}

func (h *Escrow) transition(w http.ResponseWriter, r *http.Request,
	apply func(ctx context.Context, escrowID string) (*models.Escrow, error)) {
	escrowID, ok := h.escrowID(w, r)
	if !ok {
		return
	}
	escrow, err := apply(r.Context(), escrowID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, escrow)
}
