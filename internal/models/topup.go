package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

type TopUpStatus string

const (
	TopUpStatusPendingConfirmation TopUpStatus = "PENDING_CONFIRMATION"
	TopUpStatusConfirmed           TopUpStatus = "CONFIRMED"
	TopUpStatusFailed              TopUpStatus = "FAILED"
)

type TopUpChannel string

const (
	TopUpChannelEasypaisa    TopUpChannel = "EASYPAISA"
	TopUpChannelJazzCash     TopUpChannel = "JAZZCASH"
	TopUpChannelCard         TopUpChannel = "CARD"
	TopUpChannelBankTransfer TopUpChannel = "BANK_TRANSFER"
)

func (c TopUpChannel) Valid() bool {
	switch c {
	case TopUpChannelEasypaisa, TopUpChannelJazzCash, TopUpChannelCard, TopUpChannelBankTransfer:
		return true
	}
	return false
}

// TopUp models an external deposit from initiation to gateway confirmation.
// It is created in PENDING_CONFIRMATION and reaches exactly one of the
// terminal states CONFIRMED or FAILED. ExternalReference is unique across
// all top-ups once set; it is the idempotency key for gateway callbacks.
type TopUp struct {
	ID                string       `db:"id" json:"id"`
	UserID            string       `db:"user_id" json:"userId"`
	WalletID          string       `db:"wallet_id" json:"walletId"`
	Amount            Money        `json:"amount"`
	Channel           TopUpChannel `db:"channel" json:"channel"`
	Status            TopUpStatus  `db:"status" json:"status"`
	ExternalReference *string      `db:"external_reference" json:"externalReference,omitempty"`
	FailureReason     *string      `db:"failure_reason" json:"failureReason,omitempty"`
	RequestedAt       time.Time    `db:"requested_at" json:"requestedAt"`
	ConfirmedAt       *time.Time   `db:"confirmed_at" json:"confirmedAt,omitempty"`
	FailedAt          *time.Time   `db:"failed_at" json:"failedAt,omitempty"`
	TransactionID     *string      `db:"transaction_id" json:"transactionId,omitempty"`
}

// NewTopUp creates a top-up in PENDING_CONFIRMATION. The wallet balance is
// untouched until the gateway confirms.
func NewTopUp(userID, walletID string, amount Money, channel TopUpChannel) (*TopUp, error) {
	if !amount.IsPositive() {
		return nil, fmt.Errorf("%w: top-up amount must be positive, got %s", ErrValidation, amount)
	}
	if !channel.Valid() {
		return nil, fmt.Errorf("%w: unknown top-up channel %q", ErrValidation, string(channel))
	}
	return &TopUp{
		ID:          uuid.New().String(),
		UserID:      userID,
		WalletID:    walletID,
		Amount:      amount,
		Channel:     channel,
		Status:      TopUpStatusPendingConfirmation,
		RequestedAt: time.Now().UTC(),
	}, nil
}

func (t *TopUp) IsTerminal() bool {
	return t.Status == TopUpStatusConfirmed || t.Status == TopUpStatusFailed
}

// Confirm transitions to CONFIRMED and records the gateway reference.
func (t *TopUp) Confirm(externalReference string) error {
	if externalReference == "" {
		return fmt.Errorf("%w: external reference is required", ErrValidation)
	}
	if t.Status != TopUpStatusPendingConfirmation {
		return fmt.Errorf("%w: cannot confirm top-up in status %s", ErrInvalidStateTransition, t.Status)
	}
	now := time.Now().UTC()
	t.Status = TopUpStatusConfirmed
	t.ExternalReference = &externalReference
	t.ConfirmedAt = &now
	return nil
}

// Fail transitions to FAILED; there is no balance effect.
func (t *TopUp) Fail(reason string) error {
	if t.Status != TopUpStatusPendingConfirmation {
		return fmt.Errorf("%w: cannot fail top-up in status %s", ErrInvalidStateTransition, t.Status)
	}
	now := time.Now().UTC()
	t.Status = TopUpStatusFailed
	t.FailureReason = &reason
	t.FailedAt = &now
	return nil
}

// SetTransactionID links the credit transaction written on confirmation.
func (t *TopUp) SetTransactionID(transactionID string) {
	if transactionID == "" {
		return
	}
	t.TransactionID = &transactionID
}
