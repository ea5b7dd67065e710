package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type EscrowStatus string

const (
	EscrowStatusCreated  EscrowStatus = "CREATED"
	EscrowStatusFunded   EscrowStatus = "FUNDED"
	EscrowStatusReleased EscrowStatus = "RELEASED"
	EscrowStatusRefunded EscrowStatus = "REFUNDED"
	EscrowStatusDisputed EscrowStatus = "DISPUTED"
	EscrowStatusResolved EscrowStatus = "RESOLVED"
)

// EscrowOutcome is the arbitration decision applied by Resolve.
type EscrowOutcome string

const (
	EscrowOutcomeRelease EscrowOutcome = "RELEASE"
	EscrowOutcomeRefund  EscrowOutcome = "REFUND"
)

// DefaultFeeRate is the platform cut applied when the caller does not set
// one explicitly.
var DefaultFeeRate = decimal.NewFromFloat(0.05)

// Escrow holds buyer funds against a single order until they are released
// to the seller, refunded to the buyer, or arbitrated after a dispute.
// Funds only move on Fund (freeze), Release/Refund, or Resolve; creating an
// escrow touches nothing.
type Escrow struct {
	ID         string          `db:"id" json:"id"`
	BuyerID    string          `db:"buyer_id" json:"buyerId"`
	SellerID   string          `db:"seller_id" json:"sellerId"`
	OrderID    *string         `db:"order_id" json:"orderId,omitempty"`
	Amount     Money           `json:"amount"`
	FeeRate    decimal.Decimal `db:"fee_rate" json:"feeRate"`
	Status     EscrowStatus    `db:"status" json:"status"`
	CreatedAt  time.Time       `db:"created_at" json:"createdAt"`
	FundedAt   *time.Time      `db:"funded_at" json:"fundedAt,omitempty"`
	ReleasedAt *time.Time      `db:"released_at" json:"releasedAt,omitempty"`
	RefundedAt *time.Time      `db:"refunded_at" json:"refundedAt,omitempty"`
	DisputedAt *time.Time      `db:"disputed_at" json:"disputedAt,omitempty"`
	ResolvedAt *time.Time      `db:"resolved_at" json:"resolvedAt,omitempty"`
}

// NewEscrow creates an escrow in CREATED. No funds are touched yet.
func NewEscrow(buyerID, sellerID string, amount Money, feeRate decimal.Decimal) (*Escrow, error) {
	if buyerID == "" || sellerID == "" {
		return nil, fmt.Errorf("%w: buyer and seller ids are required", ErrValidation)
	}
	if buyerID == sellerID {
		return nil, fmt.Errorf("%w: buyer and seller must differ", ErrValidation)
	}
	if !amount.IsPositive() {
		return nil, fmt.Errorf("%w: escrow amount must be positive, got %s", ErrValidation, amount)
	}
	if feeRate.IsNegative() || feeRate.GreaterThan(decimal.NewFromInt(1)) {
		return nil, fmt.Errorf("%w: fee rate must be between 0 and 1, got %s", ErrValidation, feeRate)
	}
	return &Escrow{
		ID:        uuid.New().String(),
		BuyerID:   buyerID,
		SellerID:  sellerID,
		Amount:    amount,
		FeeRate:   feeRate,
		Status:    EscrowStatusCreated,
		CreatedAt: time.Now().UTC(),
	}, nil
}

// Fee is the platform cut taken on release.
func (e *Escrow) Fee() Money {
	return e.Amount.MulRate(e.FeeRate)
}

// SellerPayout is the escrow amount minus the fee.
func (e *Escrow) SellerPayout() Money {
	payout, _ := e.Amount.Sub(e.Fee())
	return payout
}

func (e *Escrow) SetOrderID(orderID string) {
	if orderID == "" {
		return
	}
	e.OrderID = &orderID
}

func (e *Escrow) transition(from []EscrowStatus, to EscrowStatus, verb string) error {
	for _, s := range from {
		if e.Status == s {
			e.Status = to
			return nil
		}
	}
	return fmt.Errorf("%w: cannot %s escrow in status %s", ErrInvalidStateTransition, verb, e.Status)
}

// Fund marks the escrow funded after the buyer freeze succeeded.
func (e *Escrow) Fund() error {
	if err := e.transition([]EscrowStatus{EscrowStatusCreated}, EscrowStatusFunded, "fund"); err != nil {
		return err
	}
	now := time.Now().UTC()
	e.FundedAt = &now
	return nil
}

// Release marks the escrow released after the payout moved to the seller.
func (e *Escrow) Release() error {
	if err := e.transition([]EscrowStatus{EscrowStatusFunded}, EscrowStatusReleased, "release"); err != nil {
		return err
	}
	now := time.Now().UTC()
	e.ReleasedAt = &now
	return nil
}

// Refund marks the escrow refunded after the buyer funds were unfrozen.
// A disputed escrow is refunded only through Resolve.
func (e *Escrow) Refund() error {
	if err := e.transition([]EscrowStatus{EscrowStatusFunded}, EscrowStatusRefunded, "refund"); err != nil {
		return err
	}
	now := time.Now().UTC()
	e.RefundedAt = &now
	return nil
}

// Dispute freezes automatic transitions until an explicit Resolve.
func (e *Escrow) Dispute() error {
	if err := e.transition([]EscrowStatus{EscrowStatusFunded}, EscrowStatusDisputed, "dispute"); err != nil {
		return err
	}
	now := time.Now().UTC()
	e.DisputedAt = &now
	return nil
}

// Resolve applies an arbitration outcome to a disputed escrow.
func (e *Escrow) Resolve(outcome EscrowOutcome) error {
	if outcome != EscrowOutcomeRelease && outcome != EscrowOutcomeRefund {
		return fmt.Errorf("%w: unknown escrow outcome %q", ErrValidation, string(outcome))
	}
	if err := e.transition([]EscrowStatus{EscrowStatusDisputed}, EscrowStatusResolved, "resolve"); err != nil {
		return err
	}
	now := time.Now().UTC()
	e.ResolvedAt = &now
	return nil
}
