package services

import (
	"context"
	"fmt"
	"time"

	"ledger-service/internal/models"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// CreateEscrow opens an escrow between buyer and seller. No funds move
// until Fund. A zero feeRate means the platform default.
func (s *WalletLedgerService) CreateEscrow(ctx context.Context, buyerID, sellerID string, amount models.Money, feeRate decimal.Decimal, orderID string) (*models.Escrow, error) {
	if feeRate.IsZero() {
		feeRate = models.DefaultFeeRate
	}
	escrow, err := models.NewEscrow(buyerID, sellerID, amount, feeRate)
	if err != nil {
		return nil, err
	}
	escrow.SetOrderID(orderID)

	// Both parties must already hold a wallet in the escrow currency.
	if _, err := s.store.GetWalletByOwner(ctx, buyerID, amount.Currency); err != nil {
		return nil, fmt.Errorf("buyer wallet: %w", err)
	}
	if _, err := s.store.GetWalletByOwner(ctx, sellerID, amount.Currency); err != nil {
		return nil, fmt.Errorf("seller wallet: %w", err)
	}

	tx, err := s.store.BeginTx(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	if err := tx.InsertEscrow(ctx, escrow); err != nil {
		return nil, rollback(tx, err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	s.log.WithFields(logrus.Fields{
		"escrow_id": escrow.ID,
		"buyer_id":  buyerID,
		"seller_id": sellerID,
	}).Info("escrow created")
	return escrow, nil
}

// FundEscrow freezes the escrow amount in the buyer's wallet and marks
// the escrow FUNDED. The frozen funds stop being spendable but stay on
// the buyer's wallet row; on the book they move to the escrow holding
// account.
func (s *WalletLedgerService) FundEscrow(ctx context.Context, escrowID string) (*models.Escrow, error) {
	var out *models.Escrow
	err := s.withRetry(ctx, func(ctx context.Context) error {
		tx, err := s.store.BeginTx(ctx)
		if err != nil {
			return fmt.Errorf("failed to begin transaction: %w", err)
		}

		escrow, err := tx.LockEscrow(ctx, escrowID)
		if err != nil {
			return rollback(tx, err)
		}
		if err := escrow.Fund(); err != nil {
			return rollback(tx, err)
		}

		buyerWalletID, err := tx.GetWalletIDByOwner(ctx, escrow.BuyerID, escrow.Amount.Currency)
		if err != nil {
			return rollback(tx, err)
		}
		buyer, err := tx.LockWallet(ctx, buyerWalletID)
		if err != nil {
			return rollback(tx, err)
		}
		wtx, err := buyer.Freeze(escrow.Amount, "escrow funding")
		if err != nil {
			return rollback(tx, err)
		}
		wtx.SetReference(escrow.ID, models.ReferenceTypeEscrow)

		if err := s.persistMovement(ctx, tx, buyer, wtx); err != nil {
			return rollback(tx, err)
		}
		if err := tx.UpdateEscrow(ctx, escrow); err != nil {
			return rollback(tx, err)
		}

		buyerAcct, err := s.userAccount(ctx, tx, buyer)
		if err != nil {
			return rollback(tx, err)
		}
		holdingAcct, err := s.escrowHoldingAccount(ctx, tx, escrow.Amount.Currency)
		if err != nil {
			return rollback(tx, err)
		}
		if err := s.postEntry(ctx, tx, buyerAcct, holdingAcct, escrow.Amount,
			models.ReferenceTypeEscrow, escrow.ID, "escrow funding"); err != nil {
			return rollback(tx, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit transaction: %w", err)
		}

		s.refreshCache(buyer)
		s.notify(ctx, models.NotificationEvent{
			ID:            wtx.ID,
			Kind:          models.EventEscrowFunded,
			UserID:        escrow.BuyerID,
			WalletID:      buyer.ID,
			Amount:        escrow.Amount,
			ReferenceType: models.ReferenceTypeEscrow,
			ReferenceID:   escrow.ID,
			OccurredAt:    wtx.CreatedAt,
		})
		out = escrow
		return nil
	})
	return out, err
}

// ReleaseEscrow pays the seller out of the buyer's frozen funds, takes
// the platform fee, and marks the escrow RELEASED.
func (s *WalletLedgerService) ReleaseEscrow(ctx context.Context, escrowID string) (*models.Escrow, error) {
	return s.settleEscrow(ctx, escrowID, func(e *models.Escrow) error { return e.Release() }, settleRelease, models.EventEscrowReleased)
}

// RefundEscrow unfreezes the full amount back to the buyer and marks the
// escrow REFUNDED. A disputed escrow can only be refunded through
// ResolveEscrow.
func (s *WalletLedgerService) RefundEscrow(ctx context.Context, escrowID string) (*models.Escrow, error) {
	return s.settleEscrow(ctx, escrowID, func(e *models.Escrow) error { return e.Refund() }, settleRefund, models.EventEscrowRefunded)
}

// DisputeEscrow parks a funded escrow: the frozen funds stay put and no
// automatic transition applies until an explicit resolution.
func (s *WalletLedgerService) DisputeEscrow(ctx context.Context, escrowID string) (*models.Escrow, error) {
	tx, err := s.store.BeginTx(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}

	escrow, err := tx.LockEscrow(ctx, escrowID)
	if err != nil {
		return nil, rollback(tx, err)
	}
	if err := escrow.Dispute(); err != nil {
		return nil, rollback(tx, err)
	}
	if err := tx.UpdateEscrow(ctx, escrow); err != nil {
		return nil, rollback(tx, err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	s.notify(ctx, models.NotificationEvent{
		ID:            escrow.ID,
		Kind:          models.EventEscrowDisputed,
		UserID:        escrow.BuyerID,
		Amount:        escrow.Amount,
		ReferenceType: models.ReferenceTypeEscrow,
		ReferenceID:   escrow.ID,
		OccurredAt:    time.Now().UTC(),
	})
	return escrow, nil
}

// ResolveEscrow applies an arbitration outcome to a disputed escrow: the
// funds move as a release or a refund, and the escrow lands in RESOLVED.
func (s *WalletLedgerService) ResolveEscrow(ctx context.Context, escrowID string, outcome models.EscrowOutcome) (*models.Escrow, error) {
	mode := settleRelease
	if outcome == models.EscrowOutcomeRefund {
		mode = settleRefund
	}
	return s.settleEscrow(ctx, escrowID,
		func(e *models.Escrow) error { return e.Resolve(outcome) }, mode, models.EventEscrowResolved)
}

// GetEscrow returns the escrow by id.
func (s *WalletLedgerService) GetEscrow(ctx context.Context, escrowID string) (*models.Escrow, error) {
	return s.store.GetEscrow(ctx, escrowID)
}

// ListEscrows returns escrows where the user is a party, newest first.
func (s *WalletLedgerService) ListEscrows(ctx context.Context, userID string, limit int) ([]models.Escrow, error) {
	return s.store.ListEscrowsByParty(ctx, userID, limit)
}

type settleMode int

const (
	settleRelease settleMode = iota
	settleRefund
)

// settleEscrow is the shared terminal path: it locks the escrow, applies
// the status transition, moves the frozen funds one way or the other, and
// commits everything atomically.
func (s *WalletLedgerService) settleEscrow(ctx context.Context, escrowID string, transition func(*models.Escrow) error, mode settleMode, eventKind string) (*models.Escrow, error) {
	var out *models.Escrow
	err := s.withRetry(ctx, func(ctx context.Context) error {
		tx, err := s.store.BeginTx(ctx)
		if err != nil {
			return fmt.Errorf("failed to begin transaction: %w", err)
		}

		escrow, err := tx.LockEscrow(ctx, escrowID)
		if err != nil {
			return rollback(tx, err)
		}
		if err := transition(escrow); err != nil {
			return rollback(tx, err)
		}

		var touched []*models.Wallet
		switch mode {
		case settleRelease:
			touched, err = s.releaseEscrowFunds(ctx, tx, escrow)
		case settleRefund:
			touched, err = s.refundEscrowFunds(ctx, tx, escrow)
		}
		if err != nil {
			return rollback(tx, err)
		}
		if err := tx.UpdateEscrow(ctx, escrow); err != nil {
			return rollback(tx, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit transaction: %w", err)
		}

		for _, w := range touched {
			s.refreshCache(w)
		}
		s.notify(ctx, models.NotificationEvent{
			ID:            escrow.ID,
			Kind:          eventKind,
			UserID:        escrow.BuyerID,
			Amount:        escrow.Amount,
			ReferenceType: models.ReferenceTypeEscrow,
			ReferenceID:   escrow.ID,
			OccurredAt:    time.Now().UTC(),
		})
		out = escrow
		return nil
	})
	return out, err
}

// releaseEscrowFunds moves the frozen amount out of the buyer's wallet:
// the seller receives the payout, the platform keeps the fee. Both wallet
// rows are locked in ascending id order.
func (s *WalletLedgerService) releaseEscrowFunds(ctx context.Context, tx Tx, escrow *models.Escrow) ([]*models.Wallet, error) {
	currency := escrow.Amount.Currency
	buyerWalletID, err := tx.GetWalletIDByOwner(ctx, escrow.BuyerID, currency)
	if err != nil {
		return nil, err
	}
	sellerWalletID, err := tx.GetWalletIDByOwner(ctx, escrow.SellerID, currency)
	if err != nil {
		return nil, err
	}
	wallets, err := tx.LockWallets(ctx, buyerWalletID, sellerWalletID)
	if err != nil {
		return nil, err
	}
	buyer, seller := wallets[buyerWalletID], wallets[sellerWalletID]

	buyerTx, err := buyer.FrozenToDebit(escrow.Amount, "escrow release")
	if err != nil {
		return nil, err
	}
	buyerTx.SetReference(escrow.ID, models.ReferenceTypeEscrow)
	buyerTx.SetCounterparty(seller.ID)

	payout := escrow.SellerPayout()
	sellerTx, err := seller.Credit(payout, "escrow release payout")
	if err != nil {
		return nil, err
	}
	sellerTx.SetReference(escrow.ID, models.ReferenceTypeEscrow)
	sellerTx.SetCounterparty(buyer.ID)

	if err := s.persistMovement(ctx, tx, buyer, buyerTx); err != nil {
		return nil, err
	}
	if err := s.persistMovement(ctx, tx, seller, sellerTx); err != nil {
		return nil, err
	}

	holdingAcct, err := s.escrowHoldingAccount(ctx, tx, currency)
	if err != nil {
		return nil, err
	}
	sellerAcct, err := s.userAccount(ctx, tx, seller)
	if err != nil {
		return nil, err
	}
	if err := s.postEntry(ctx, tx, holdingAcct, sellerAcct, payout,
		models.ReferenceTypeEscrow, escrow.ID, "escrow release payout"); err != nil {
		return nil, err
	}

	if fee := escrow.Fee(); fee.IsPositive() {
		feeAcct, err := s.feeRevenueAccount(ctx, tx, currency)
		if err != nil {
			return nil, err
		}
		if err := s.postEntry(ctx, tx, holdingAcct, feeAcct, fee,
			models.ReferenceTypeEscrow, escrow.ID, "escrow platform fee"); err != nil {
			return nil, err
		}
	}
	return []*models.Wallet{buyer, seller}, nil
}

// refundEscrowFunds returns the full frozen amount to the buyer's
// spendable balance.
func (s *WalletLedgerService) refundEscrowFunds(ctx context.Context, tx Tx, escrow *models.Escrow) ([]*models.Wallet, error) {
	currency := escrow.Amount.Currency
	buyerWalletID, err := tx.GetWalletIDByOwner(ctx, escrow.BuyerID, currency)
	if err != nil {
		return nil, err
	}
	buyer, err := tx.LockWallet(ctx, buyerWalletID)
	if err != nil {
		return nil, err
	}

	wtx, err := buyer.Unfreeze(escrow.Amount, "escrow refund")
	if err != nil {
		return nil, err
	}
	wtx.SetReference(escrow.ID, models.ReferenceTypeEscrow)

	if err := s.persistMovement(ctx, tx, buyer, wtx); err != nil {
		return nil, err
	}

	holdingAcct, err := s.escrowHoldingAccount(ctx, tx, currency)
	if err != nil {
		return nil, err
	}
	buyerAcct, err := s.userAccount(ctx, tx, buyer)
	if err != nil {
		return nil, err
	}
	if err := s.postEntry(ctx, tx, holdingAcct, buyerAcct, escrow.Amount,
		models.ReferenceTypeEscrow, escrow.ID, "escrow refund"); err != nil {
		return nil, err
	}
	return []*models.Wallet{buyer}, nil
}
