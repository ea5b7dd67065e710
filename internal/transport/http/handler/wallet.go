package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"ledger-service/internal/models"
	"ledger-service/internal/repositories/postgresrepo"
	"ledger-service/internal/services"

	"github.com/go-playground/validator"
	"github.com/shopspring/decimal"
)

type Wallet struct {
	service  *services.WalletLedgerService
	validate *validator.Validate
}

func NewWallet(mux *http.ServeMux, service *services.WalletLedgerService) *Wallet {
	h := &Wallet{
		service:  service,
		validate: validator.New(),
	}

	mux.HandleFunc("POST /api/v1/wallets", h.createWallet)
	mux.HandleFunc("GET /api/v1/wallets/{walletId}", h.getWallet)
	mux.HandleFunc("GET /api/v1/wallets/{walletId}/balance", h.getBalance)
	mux.HandleFunc("POST /api/v1/wallets/{walletId}/credit", h.creditWallet)
	mux.HandleFunc("POST /api/v1/wallets/{walletId}/debit", h.debitWallet)
	mux.HandleFunc("PATCH /api/v1/wallets/{walletId}/status", h.setStatus)
	mux.HandleFunc("GET /api/v1/wallets/{walletId}/transactions", h.listTransactions)
	mux.HandleFunc("GET /api/v1/wallets/{walletId}/reconciliation", h.reconcile)
	mux.HandleFunc("GET /api/v1/ledger/entries", h.listLedgerEntries)

	return h
}

type createWalletRequest struct {
	OwnerID  string `json:"ownerId" validate:"required"`
	Currency string `json:"currency"`
}

func (h *Wallet) createWallet(w http.ResponseWriter, r *http.Request) {
	var req createWalletRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid JSON format")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", fmt.Sprintf("Validation error: %v", err))
		return
	}

	wallet, err := h.service.CreateWallet(r.Context(), req.OwnerID, req.Currency)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, wallet)
}

func (h *Wallet) getWallet(w http.ResponseWriter, r *http.Request) {
	walletID := r.PathValue("walletId")
	if err := h.validate.Var(walletID, "required,uuid4"); err != nil {
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid wallet ID format")
		return
	}

	wallet, err := h.service.GetWallet(r.Context(), walletID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, wallet)
}

func (h *Wallet) getBalance(w http.ResponseWriter, r *http.Request) {
	walletID := r.PathValue("walletId")
	if err := h.validate.Var(walletID, "required,uuid4"); err != nil {
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid wallet ID format")
		return
	}

	balance, err := h.service.GetBalance(r.Context(), walletID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, balance)
}

type movementRequest struct {
	Amount   decimal.Decimal `json:"amount" validate:"required"`
	Currency string          `json:"currency"`
	Reason   string          `json:"reason" validate:"required"`
}

func (h *Wallet) creditWallet(w http.ResponseWriter, r *http.Request) {
	h.applyMovement(w, r, h.service.CreditWallet)
}

func (h *Wallet) debitWallet(w http.ResponseWriter, r *http.Request) {
	h.applyMovement(w, r, h.service.DebitWallet)
}

func (h *Wallet) applyMovement(w http.ResponseWriter, r *http.Request,
	move func(ctx context.Context, walletID string, amount models.Money, reason string) (*models.WalletTransaction, error)) {
	walletID := r.PathValue("walletId")
	if err := h.validate.Var(walletID, "required,uuid4"); err != nil {
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid wallet ID format")
		return
	}

	var req movementRequest
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

	tx, err := move(r.Context(), walletID, amount, req.Reason)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, tx)
}

type setStatusRequest struct {
	Status models.WalletStatus `json:"status" validate:"required"`
}

func (h *Wallet) setStatus(w http.ResponseWriter, r *http.Request) {
	walletID := r.PathValue("walletId")
	if err := h.validate.Var(walletID, "required,uuid4"); err != nil {
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid wallet ID format")
		return
	}

	var req setStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid JSON format")
		return
	}
	if err := h.service.SetWalletStatus(r.Context(), walletID, req.Status); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"walletId": walletID, "status": string(req.Status)})
}

func (h *Wallet) listTransactions(w http.ResponseWriter, r *http.Request) {
	walletID := r.PathValue("walletId")
	if err := h.validate.Var(walletID, "required,uuid4"); err != nil {
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid wallet ID format")
		return
	}

	filter, err := parseTransactionFilter(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", err.Error())
		return
	}

	transactions, err := h.service.GetTransactionHistory(r.Context(), walletID, filter)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"walletId":     walletID,
		"transactions": transactions,
	})
}

func (h *Wallet) reconcile(w http.ResponseWriter, r *http.Request) {
	walletID := r.PathValue("walletId")
	if err := h.validate.Var(walletID, "required,uuid4"); err != nil {
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid wallet ID format")
		return
	}

	report, err := h.service.ReconcileWallet(r.Context(), walletID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (h *Wallet) listLedgerEntries(w http.ResponseWriter, r *http.Request) {
	referenceType := r.URL.Query().Get("referenceType")
	referenceID := r.URL.Query().Get("referenceId")

	entries, err := h.service.GetLedgerEntries(r.Context(), referenceType, referenceID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"referenceType": referenceType,
		"referenceId":   referenceID,
		"entries":       entries,
	})
}

func parseTransactionFilter(r *http.Request) (postgresrepo.TransactionFilter, error) {
	var f postgresrepo.TransactionFilter
	q := r.URL.Query()

	if v := q.Get("type"); v != "" {
		t := models.TransactionType(v)
		if !t.Valid() {
			return f, fmt.Errorf("unknown transaction type %q", v)
		}
		f.Type = t
	}
	if v := q.Get("from"); v != "" {
		ts, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return f, fmt.Errorf("invalid from timestamp: %v", err)
		}
		f.From = &ts
	}
	if v := q.Get("to"); v != "" {
		ts, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return f, fmt.Errorf("invalid to timestamp: %v", err)
		}
		f.To = &ts
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return f, fmt.Errorf("invalid limit %q", v)
		}
		f.Limit = n
	}
	if v := q.Get("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return f, fmt.Errorf("invalid offset %q", v)
		}
		f.Offset = n
	}
	return f, nil
}
