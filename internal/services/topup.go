package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"ledger-service/internal/models"

	"github.com/sirupsen/logrus"
)

// InitiateTopUp opens a pending top-up for the user. A per-user lease in
// wallet_topup_locks keeps a second top-up from starting while one is
// already at the gateway; an expired lease does not block.
func (s *WalletLedgerService) InitiateTopUp(ctx context.Context, userID string, amount models.Money, channel models.TopUpChannel) (*models.TopUp, error) {
	wallet, err := s.store.GetWalletByOwner(ctx, userID, amount.Currency)
	if err != nil {
		return nil, err
	}
	if !wallet.IsActive() {
		return nil, fmt.Errorf("%w: wallet %s", models.ErrWalletInactive, wallet.ID)
	}

	topUp, err := models.NewTopUp(userID, wallet.ID, amount, channel)
	if err != nil {
		return nil, err
	}
	lock, err := models.NewWalletTopupLock(userID, amount, topUp.ID, s.lockTTL)
	if err != nil {
		return nil, err
	}

	tx, err := s.store.BeginTx(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	if err := tx.AcquireTopupLock(ctx, lock); err != nil {
		return nil, rollback(tx, err)
	}
	if err := tx.InsertTopUp(ctx, topUp); err != nil {
		return nil, rollback(tx, err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	s.log.WithFields(logrus.Fields{
		"topup_id": topUp.ID,
		"user_id":  userID,
		"channel":  channel,
	}).Info("top-up initiated")
	return topUp, nil
}

// ConfirmTopUp settles a pending top-up after the gateway reported
// success: the wallet is credited, the transaction log and ledger entry
// are appended, and the lease is released, all in one transaction.
//
// The call is idempotent on the gateway reference: replaying the same
// reference against an already-confirmed top-up returns the stored row
// untouched, and a reference already bound to another top-up fails with
// ErrDuplicateReference.
func (s *WalletLedgerService) ConfirmTopUp(ctx context.Context, topUpID, externalReference string) (*models.TopUp, error) {
	var out *models.TopUp
	err := s.withRetry(ctx, func(ctx context.Context) error {
		tx, err := s.store.BeginTx(ctx)
		if err != nil {
			return fmt.Errorf("failed to begin transaction: %w", err)
		}

		topUp, err := tx.LockTopUp(ctx, topUpID)
		if err != nil {
			return rollback(tx, err)
		}
		if topUp.Status == models.TopUpStatusConfirmed &&
			topUp.ExternalReference != nil && *topUp.ExternalReference == externalReference {
			// Replayed callback: nothing to do.
			if err := tx.Rollback(); err != nil {
				return fmt.Errorf("failed to rollback transaction: %w", err)
			}
			out = topUp
			return nil
		}
		if err := topUp.Confirm(externalReference); err != nil {
			return rollback(tx, err)
		}

		w, err := tx.LockWallet(ctx, topUp.WalletID)
		if err != nil {
			return rollback(tx, err)
		}
		wtx, err := w.Apply(models.TransactionTypeTopUp, topUp.Amount, "top-up via "+string(topUp.Channel))
		if err != nil {
			return rollback(tx, err)
		}
		wtx.SetReference(topUp.ID, models.ReferenceTypeTopUp)
		wtx.ExternalReference = topUp.ExternalReference
		topUp.SetTransactionID(wtx.ID)

		if err := s.persistMovement(ctx, tx, w, wtx); err != nil {
			return rollback(tx, err)
		}
		if err := tx.UpdateTopUp(ctx, topUp); err != nil {
			return rollback(tx, err)
		}
		if err := s.postUserEntry(ctx, tx, w, wtx, directionIntoUser); err != nil {
			return rollback(tx, err)
		}
		if err := tx.CompleteTopupLock(ctx, topUp.UserID, time.Now()); err != nil {
			return rollback(tx, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit transaction: %w", err)
		}

		s.refreshCache(w)
		s.notify(ctx, models.NotificationEvent{
			ID:            wtx.ID,
			Kind:          models.EventTopUpConfirmed,
			UserID:        topUp.UserID,
			WalletID:      w.ID,
			Amount:        topUp.Amount,
			ReferenceType: models.ReferenceTypeTopUp,
			ReferenceID:   topUp.ID,
			OccurredAt:    wtx.CreatedAt,
		})
		out = topUp
		return nil
	})
	return out, err
}

// FailTopUp marks a pending top-up as failed. No balances move; the lease
// is released so the user can retry. Failing an already-failed top-up is
// a no-op.
func (s *WalletLedgerService) FailTopUp(ctx context.Context, topUpID, reason string) (*models.TopUp, error) {
	tx, err := s.store.BeginTx(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}

	topUp, err := tx.LockTopUp(ctx, topUpID)
	if err != nil {
		return nil, rollback(tx, err)
	}
	if topUp.Status == models.TopUpStatusFailed {
		if err := tx.Rollback(); err != nil {
			return nil, fmt.Errorf("failed to rollback transaction: %w", err)
		}
		return topUp, nil
	}
	if err := topUp.Fail(reason); err != nil {
		return nil, rollback(tx, err)
	}
	if err := tx.UpdateTopUp(ctx, topUp); err != nil {
		return nil, rollback(tx, err)
	}
	if err := tx.CompleteTopupLock(ctx, topUp.UserID, time.Now()); err != nil {
		return nil, rollback(tx, err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	s.notify(ctx, models.NotificationEvent{
		ID:            topUp.ID,
		Kind:          models.EventTopUpFailed,
		UserID:        topUp.UserID,
		WalletID:      topUp.WalletID,
		Amount:        topUp.Amount,
		ReferenceType: models.ReferenceTypeTopUp,
		ReferenceID:   topUp.ID,
		OccurredAt:    time.Now().UTC(),
	})
	return topUp, nil
}

// GetTopUp returns the top-up by id.
func (s *WalletLedgerService) GetTopUp(ctx context.Context, topUpID string) (*models.TopUp, error) {
	return s.store.GetTopUp(ctx, topUpID)
}

// ListTopUps returns the user's top-ups newest first.
func (s *WalletLedgerService) ListTopUps(ctx context.Context, userID string, limit int) ([]models.TopUp, error) {
	return s.store.ListTopUpsByUser(ctx, userID, limit)
}

// HandleGatewayCallback routes a gateway settlement message to the
// matching confirm or fail path. Used by the Kafka consumer.
func (s *WalletLedgerService) HandleGatewayCallback(ctx context.Context, cb models.GatewayCallback) error {
	if cb.TopUpID == "" {
		return fmt.Errorf("%w: gateway callback without top-up id", models.ErrValidation)
	}
	if cb.Success {
		_, err := s.ConfirmTopUp(ctx, cb.TopUpID, cb.ExternalReference)
		if errors.Is(err, models.ErrInvalidStateTransition) || errors.Is(err, models.ErrDuplicateReference) {
			// Settled already, most likely a replay. Consuming the message
			// again would never succeed.
			s.log.WithError(err).WithField("topup_id", cb.TopUpID).Warn("dropping non-retryable gateway callback")
			return nil
		}
		return err
	}

	reason := cb.FailureReason
	if reason == "" {
		reason = "gateway declined"
	}
	_, err := s.FailTopUp(ctx, cb.TopUpID, reason)
	if errors.Is(err, models.ErrInvalidStateTransition) {
		s.log.WithError(err).WithField("topup_id", cb.TopUpID).Warn("dropping non-retryable gateway callback")
		return nil
	}
	return err
}

// ExpireTopupLocks reaps overdue leases; the cleanup worker calls it on a
// ticker.
func (s *WalletLedgerService) ExpireTopupLocks(ctx context.Context) (int64, error) {
	n, err := s.store.ExpireStaleLocks(ctx, time.Now())
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.log.WithField("count", n).Info("expired stale top-up locks")
	}
	return n, nil
}
