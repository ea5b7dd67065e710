package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// LedgerAccountKind classifies one side of the double-entry book.
type LedgerAccountKind string

const (
	LedgerAccountAsset     LedgerAccountKind = "ASSET"
	LedgerAccountLiability LedgerAccountKind = "LIABILITY"
	LedgerAccountRevenue   LedgerAccountKind = "REVENUE"
	LedgerAccountExpense   LedgerAccountKind = "EXPENSE"
)

// Platform ledger account codes. Each user wallet additionally gets its own
// liability account with code "user_wallet:<wallet id>".
const (
	LedgerCodeGatewayClearing    = "gateway_clearing"
	LedgerCodeEscrowHolding      = "escrow_holding"
	LedgerCodePlatformFeeRevenue = "platform_fee_revenue"
)

// UserWalletLedgerCode derives the per-wallet liability account code.
func UserWalletLedgerCode(walletID string) string {
	return "user_wallet:" + walletID
}

// LedgerAccount represents one account of the double-entry book, e.g. the
// platform gateway clearing account or a per-user liability account.
type LedgerAccount struct {
	ID        string            `db:"id" json:"id"`
	Kind      LedgerAccountKind `db:"kind" json:"kind"`
	Code      string            `db:"code" json:"code"`
	Currency  string            `db:"currency" json:"currency"`
	UserID    *string           `db:"user_id" json:"userId,omitempty"`
	CreatedAt time.Time         `db:"created_at" json:"createdAt"`
}

// NewLedgerAccount builds an account; userID may be empty for platform
// accounts.
func NewLedgerAccount(kind LedgerAccountKind, code, currency, userID string) (*LedgerAccount, error) {
	if code == "" {
		return nil, fmt.Errorf("%w: ledger account code is required", ErrValidation)
	}
	m, err := NewMoney(decimal.Zero, currency)
	if err != nil {
		return nil, err
	}
	acct := &LedgerAccount{
		ID:        uuid.New().String(),
		Kind:      kind,
		Code:      code,
		Currency:  m.Currency,
		CreatedAt: time.Now().UTC(),
	}
	if userID != "" {
		acct.UserID = &userID
	}
	return acct, nil
}

// LedgerEntry is a single immutable double-entry record: amount moves from
// the credit account to the debit account. For any account, the sum of
// amounts where it is the debit side minus the sum where it is the credit
// side is that account's derived balance; across the whole book total
// debits equal total credits at every snapshot.
type LedgerEntry struct {
	ID              string    `db:"id" json:"id"`
	DebitAccountID  string    `db:"debit_account_id" json:"debitAccountId"`
	CreditAccountID string    `db:"credit_account_id" json:"creditAccountId"`
	Amount          Money     `json:"amount"`
	ReferenceType   *string   `db:"reference_type" json:"referenceType,omitempty"`
	ReferenceID     *string   `db:"reference_id" json:"referenceId,omitempty"`
	Description     string    `db:"description" json:"description"`
	CreatedAt       time.Time `db:"created_at" json:"createdAt"`
}

// NewLedgerEntry validates and builds an entry. Self-entries and
// non-positive amounts are rejected with ErrInvalidEntry.
func NewLedgerEntry(debitAccountID, creditAccountID string, amount Money, description string) (*LedgerEntry, error) {
	if debitAccountID == "" || creditAccountID == "" {
		return nil, fmt.Errorf("%w: both accounts are required", ErrInvalidEntry)
	}
	if debitAccountID == creditAccountID {
		return nil, fmt.Errorf("%w: debit and credit accounts must differ", ErrInvalidEntry)
	}
	if !amount.IsPositive() {
		return nil, fmt.Errorf("%w: amount must be positive, got %s", ErrInvalidEntry, amount)
	}
	return &LedgerEntry{
		ID:              uuid.New().String(),
		DebitAccountID:  debitAccountID,
		CreditAccountID: creditAccountID,
		Amount:          amount,
		Description:     description,
		CreatedAt:       time.Now().UTC(),
	}, nil
}

// SetReference links the entry to the domain event that produced it.
func (e *LedgerEntry) SetReference(referenceType, referenceID string) {
	if referenceType == "" || referenceID == "" {
		return
	}
	e.ReferenceType = &referenceType
	e.ReferenceID = &referenceID
}
