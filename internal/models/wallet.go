package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type WalletStatus string

const (
	WalletStatusActive   WalletStatus = "ACTIVE"
	WalletStatusInactive WalletStatus = "INACTIVE"
)

// Wallet is the per-owner balance aggregate. Balance is the spendable
// amount; FrozenBalance tracks escrow holds separately and is never
// spendable by the owner. Both are non-negative at all times. All balance
// mutation goes through the methods below so that every change emits
// exactly one WalletTransaction.
type Wallet struct {
	ID            string          `db:"id" json:"id"`
	OwnerID       string          `db:"owner_id" json:"ownerId"`
	Currency      string          `db:"currency" json:"currency"`
	Balance       decimal.Decimal `db:"balance" json:"balance"`
	FrozenBalance decimal.Decimal `db:"frozen_balance" json:"frozenBalance"`
	Status        WalletStatus    `db:"status" json:"status"`
	CreatedAt     time.Time       `db:"created_at" json:"createdAt"`
	UpdatedAt     time.Time       `db:"updated_at" json:"updatedAt"`
}

// NewWallet creates an active wallet with zero balances.
func NewWallet(ownerID, currency string) (*Wallet, error) {
	if ownerID == "" {
		return nil, fmt.Errorf("%w: owner id is required", ErrValidation)
	}
	zero, err := NewMoney(decimal.Zero, currency)
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	return &Wallet{
		ID:            uuid.New().String(),
		OwnerID:       ownerID,
		Currency:      zero.Currency,
		Balance:       decimal.Zero,
		FrozenBalance: decimal.Zero,
		Status:        WalletStatusActive,
		CreatedAt:     now,
		UpdatedAt:     now,
	}, nil
}

func (w *Wallet) IsActive() bool {
	return w.Status == WalletStatusActive
}

func (w *Wallet) Deactivate() {
	w.Status = WalletStatusInactive
	w.UpdatedAt = time.Now().UTC()
}

func (w *Wallet) Activate() {
	w.Status = WalletStatusActive
	w.UpdatedAt = time.Now().UTC()
}

// SpendableBalance returns the balance available to the owner.
func (w *Wallet) SpendableBalance() Money {
	return Money{Amount: w.Balance, Currency: w.Currency}
}

// Frozen returns the frozen balance as Money.
func (w *Wallet) Frozen() Money {
	return Money{Amount: w.FrozenBalance, Currency: w.Currency}
}

// HasSufficientFunds compares against the spendable balance only.
func (w *Wallet) HasSufficientFunds(amount Money) bool {
	if !w.IsActive() || w.Currency != amount.Currency {
		return false
	}
	return w.Balance.GreaterThanOrEqual(amount.Amount)
}

func (w *Wallet) checkMutation(amount Money) error {
	if !w.IsActive() {
		return fmt.Errorf("%w: wallet %s", ErrWalletInactive, w.ID)
	}
	if !amount.IsPositive() {
		return fmt.Errorf("%w: amount must be positive, got %s", ErrValidation, amount)
	}
	if amount.Currency != w.Currency {
		return fmt.Errorf("%w: wallet currency %s, amount currency %s", ErrCurrencyMismatch, w.Currency, amount.Currency)
	}
	return nil
}

// Apply mutates the wallet according to the transaction type's direction
// and returns the WalletTransaction to append. The caller persists the
// wallet row, the transaction, and the matching ledger entry in one
// database transaction.
func (w *Wallet) Apply(txType TransactionType, amount Money, reason string) (*WalletTransaction, error) {
	if err := w.checkMutation(amount); err != nil {
		return nil, err
	}
	dir, err := txType.Direction()
	if err != nil {
		return nil, err
	}

	switch dir {
	case DirectionIn:
		w.Balance = w.Balance.Add(amount.Amount)
	case DirectionOut:
		if w.Balance.LessThan(amount.Amount) {
			return nil, fmt.Errorf("%w: available %s, required %s", ErrInsufficientFunds, w.SpendableBalance(), amount)
		}
		w.Balance = w.Balance.Sub(amount.Amount)
	case DirectionFreeze:
		if w.Balance.LessThan(amount.Amount) {
			return nil, fmt.Errorf("%w: available %s, required %s", ErrInsufficientFunds, w.SpendableBalance(), amount)
		}
		w.Balance = w.Balance.Sub(amount.Amount)
		w.FrozenBalance = w.FrozenBalance.Add(amount.Amount)
	case DirectionUnfreeze:
		if w.FrozenBalance.LessThan(amount.Amount) {
			return nil, fmt.Errorf("%w: frozen %s, required %s", ErrInsufficientFrozenFunds, w.Frozen(), amount)
		}
		w.FrozenBalance = w.FrozenBalance.Sub(amount.Amount)
		w.Balance = w.Balance.Add(amount.Amount)
	case DirectionFrozenOut:
		if w.FrozenBalance.LessThan(amount.Amount) {
			return nil, fmt.Errorf("%w: frozen %s, required %s", ErrInsufficientFrozenFunds, w.Frozen(), amount)
		}
		w.FrozenBalance = w.FrozenBalance.Sub(amount.Amount)
	}
	w.UpdatedAt = time.Now().UTC()

	return &WalletTransaction{
		ID:        uuid.New().String(),
		WalletID:  w.ID,
		Type:      txType,
		Amount:    amount,
		Reason:    reason,
		CreatedAt: w.UpdatedAt,
	}, nil
}

// Credit increases the spendable balance.
func (w *Wallet) Credit(amount Money, reason string) (*WalletTransaction, error) {
	return w.Apply(TransactionTypeCredit, amount, reason)
}

// Debit decreases the spendable balance; never allows it to go negative.
func (w *Wallet) Debit(amount Money, reason string) (*WalletTransaction, error) {
	return w.Apply(TransactionTypeDebit, amount, reason)
}

// Freeze moves amount from the spendable balance into the frozen balance.
func (w *Wallet) Freeze(amount Money, reason string) (*WalletTransaction, error) {
	return w.Apply(TransactionTypeFreeze, amount, reason)
}

// Unfreeze moves amount from the frozen balance back to spendable.
func (w *Wallet) Unfreeze(amount Money, reason string) (*WalletTransaction, error) {
	return w.Apply(TransactionTypeUnfreeze, amount, reason)
}

// FrozenToDebit removes amount from the frozen balance entirely; the funds
// leave this wallet, typically paired with a credit on another wallet.
func (w *Wallet) FrozenToDebit(amount Money, reason string) (*WalletTransaction, error) {
	return w.Apply(TransactionTypeFrozenToDebit, amount, reason)
}
