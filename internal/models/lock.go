package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// TopupLockStatus is the lifecycle state of a top-up lock lease.
type TopupLockStatus string

const (
	TopupLockLocked    TopupLockStatus = "LOCKED"
	TopupLockCompleted TopupLockStatus = "COMPLETED"
	TopupLockExpired   TopupLockStatus = "EXPIRED"
)

// DefaultTopupLockTTL bounds how long a single in-flight top-up may hold
// the per-user gateway slot before the lease becomes reclaimable.
const DefaultTopupLockTTL = 15 * time.Minute

// WalletTopupLock is a lease that serializes top-up initiation per user:
// while a lease is active at the gateway, no second top-up may start for
// the same user. Expired leases do not block a new acquirer.
type WalletTopupLock struct {
	ID                   string          `db:"id" json:"id"`
	UserID               string          `db:"user_id" json:"userId"`
	Amount               Money           `json:"amount"`
	Status               TopupLockStatus `db:"status" json:"status"`
	TransactionReference string          `db:"transaction_reference" json:"transactionReference"`
	LockedAt             time.Time       `db:"locked_at" json:"lockedAt"`
	ExpiresAt            time.Time       `db:"expires_at" json:"expiresAt"`
	CompletedAt          *time.Time      `db:"completed_at" json:"completedAt,omitempty"`
}

// NewWalletTopupLock builds an active lease for the given user and amount.
func NewWalletTopupLock(userID string, amount Money, transactionReference string, ttl time.Duration) (*WalletTopupLock, error) {
	if userID == "" {
		return nil, fmt.Errorf("%w: user id is required", ErrValidation)
	}
	if !amount.IsPositive() {
		return nil, fmt.Errorf("%w: lock amount must be positive, got %s", ErrValidation, amount)
	}
	if transactionReference == "" {
		return nil, fmt.Errorf("%w: transaction reference is required", ErrValidation)
	}
	if ttl <= 0 {
		ttl = DefaultTopupLockTTL
	}
	now := time.Now().UTC()
	return &WalletTopupLock{
		ID:                   uuid.New().String(),
		UserID:               userID,
		Amount:               amount,
		Status:               TopupLockLocked,
		TransactionReference: transactionReference,
		LockedAt:             now,
		ExpiresAt:            now.Add(ttl),
	}, nil
}

// IsExpired reports whether the lease deadline has passed, regardless of
// the stored status.
func (l *WalletTopupLock) IsExpired(now time.Time) bool {
	return now.After(l.ExpiresAt)
}

// Blocks reports whether this lease still prevents a new top-up for the
// same user at the given instant.
func (l *WalletTopupLock) Blocks(now time.Time) bool {
	return l.Status == TopupLockLocked && !l.IsExpired(now)
}

// MarkCompleted settles the lease after the top-up reached a terminal state.
func (l *WalletTopupLock) MarkCompleted(now time.Time) error {
	if l.Status != TopupLockLocked {
		return fmt.Errorf("%w: cannot complete lock in status %s", ErrInvalidStateTransition, l.Status)
	}
	l.Status = TopupLockCompleted
	t := now.UTC()
	l.CompletedAt = &t
	return nil
}

// MarkExpired records that the reaper (or a later acquirer) reclaimed the
// lease past its deadline.
func (l *WalletTopupLock) MarkExpired() error {
	if l.Status != TopupLockLocked {
		return fmt.Errorf("%w: cannot expire lock in status %s", ErrInvalidStateTransition, l.Status)
	}
	l.Status = TopupLockExpired
	return nil
}
