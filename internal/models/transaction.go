package models

import (
	"fmt"
	"time"
)

// TransactionType is the closed set of balance-affecting event kinds.
// Direction is the single consumption site; adding a type without teaching
// Direction about it is a compile-and-test failure, not a silent default.
type TransactionType string

const (
	TransactionTypeCredit        TransactionType = "CREDIT"
	TransactionTypeDebit         TransactionType = "DEBIT"
	TransactionTypeTopUp         TransactionType = "TOPUP"
	TransactionTypePayment       TransactionType = "PAYMENT"
	TransactionTypeRefund        TransactionType = "REFUND"
	TransactionTypeWithdrawal    TransactionType = "WITHDRAWAL"
	TransactionTypeFreeze        TransactionType = "FREEZE"
	TransactionTypeUnfreeze      TransactionType = "UNFREEZE"
	TransactionTypeFrozenToDebit TransactionType = "FROZEN_TO_DEBIT"
)

// Direction describes how a transaction type moves the wallet's figures.
type Direction int

const (
	// DirectionIn increases the spendable balance.
	DirectionIn Direction = iota
	// DirectionOut decreases the spendable balance.
	DirectionOut
	// DirectionFreeze moves funds from spendable to frozen.
	DirectionFreeze
	// DirectionUnfreeze moves funds from frozen back to spendable.
	DirectionUnfreeze
	// DirectionFrozenOut removes funds from the frozen balance entirely.
	DirectionFrozenOut
)

// Direction maps every transaction type to its balance effect. The switch
// is exhaustive over TransactionType; unknown values are rejected.
func (t TransactionType) Direction() (Direction, error) {
	switch t {
	case TransactionTypeCredit, TransactionTypeTopUp, TransactionTypeRefund:
		return DirectionIn, nil
	case TransactionTypeDebit, TransactionTypePayment, TransactionTypeWithdrawal:
		return DirectionOut, nil
	case TransactionTypeFreeze:
		return DirectionFreeze, nil
	case TransactionTypeUnfreeze:
		return DirectionUnfreeze, nil
	case TransactionTypeFrozenToDebit:
		return DirectionFrozenOut, nil
	default:
		return 0, fmt.Errorf("%w: unknown transaction type %q", ErrValidation, string(t))
	}
}

// Valid reports whether t is a member of the closed set.
func (t TransactionType) Valid() bool {
	_, err := t.Direction()
	return err == nil
}

// WalletTransaction is the append-only, human-auditable movement log. Rows
// are immutable once written. CounterpartyWalletID links the other side of
// a transfer (e.g. the seller wallet on an escrow release) so that
// counterparty views never have to be re-derived from reason text.
type WalletTransaction struct {
	ID                   string          `db:"id" json:"id"`
	WalletID             string          `db:"wallet_id" json:"walletId"`
	Type                 TransactionType `db:"type" json:"type"`
	Amount               Money           `json:"amount"`
	Reason               string          `db:"reason" json:"reason"`
	ReferenceID          *string         `db:"reference_id" json:"referenceId,omitempty"`
	ReferenceType        *string         `db:"reference_type" json:"referenceType,omitempty"`
	ExternalReference    *string         `db:"external_reference" json:"externalReference,omitempty"`
	CounterpartyWalletID *string         `db:"counterparty_wallet_id" json:"counterpartyWalletId,omitempty"`
	CreatedAt            time.Time       `db:"created_at" json:"createdAt"`
}

// Reference types used on wallet transactions and ledger entries.
const (
	ReferenceTypeTopUp  = "TOPUP"
	ReferenceTypeEscrow = "ESCROW"
	ReferenceTypeOrder  = "ORDER"
)

// SetReference links the transaction to the domain entity that caused it.
func (t *WalletTransaction) SetReference(referenceID, referenceType string) {
	if referenceID == "" || referenceType == "" {
		return
	}
	t.ReferenceID = &referenceID
	t.ReferenceType = &referenceType
}

// SetCounterparty records the wallet on the other side of the movement.
func (t *WalletTransaction) SetCounterparty(walletID string) {
	if walletID == "" {
		return
	}
	t.CounterpartyWalletID = &walletID
}
