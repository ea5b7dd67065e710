package models

import "time"

// Notification event kinds published after a balance-affecting commit.
const (
	EventTopUpConfirmed = "TOPUP_CONFIRMED"
	EventTopUpFailed    = "TOPUP_FAILED"
	EventWalletCredited = "WALLET_CREDITED"
	EventWalletDebited  = "WALLET_DEBITED"
	EventEscrowFunded   = "ESCROW_FUNDED"
	EventEscrowReleased = "ESCROW_RELEASED"
	EventEscrowRefunded = "ESCROW_REFUNDED"
	EventEscrowDisputed = "ESCROW_DISPUTED"
	EventEscrowResolved = "ESCROW_RESOLVED"
)

// NotificationEvent is published to Kafka after the database transaction
// commits. Delivery is best effort: the commit is the source of truth and
// a lost event is never retried at the cost of blocking the caller.
type NotificationEvent struct {
	ID            string    `json:"id"`
	Kind          string    `json:"kind"`
	UserID        string    `json:"userId"`
	WalletID      string    `json:"walletId,omitempty"`
	Amount        Money     `json:"amount"`
	ReferenceType string    `json:"referenceType,omitempty"`
	ReferenceID   string    `json:"referenceId,omitempty"`
	OccurredAt    time.Time `json:"occurredAt"`
}

// GatewayCallback is the payment gateway's settlement message consumed
// from Kafka. Success settles the top-up as confirmed; anything else
// fails it with the carried reason.
type GatewayCallback struct {
	TopUpID           string `json:"topupId"`
	ExternalReference string `json:"externalReference"`
	Success           bool   `json:"success"`
	FailureReason     string `json:"failureReason,omitempty"`
}
