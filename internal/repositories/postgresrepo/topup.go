package postgresrepo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"ledger-service/internal/models"
)

const topUpColumns = `id, user_id, wallet_id, amount, currency, channel, status,
	external_reference, failure_reason, requested_at, confirmed_at, failed_at, transaction_id`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanTopUp(row rowScanner) (*models.TopUp, error) {
	var t models.TopUp
	err := row.Scan(
		&t.ID,
		&t.UserID,
		&t.WalletID,
		&t.Amount.Amount,
		&t.Amount.Currency,
		&t.Channel,
		&t.Status,
		&t.ExternalReference,
		&t.FailureReason,
		&t.RequestedAt,
		&t.ConfirmedAt,
		&t.FailedAt,
		&t.TransactionID,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: top-up", models.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get top-up from postgres: %w", err)
	}
	return &t, nil
}

// GetTopUp get a top-up by ID
func (r *WalletRepository) GetTopUp(ctx context.Context, topUpID string) (*models.TopUp, error) {
	query := `SELECT ` + topUpColumns + ` FROM top_ups WHERE id = $1`
	return scanTopUp(r.db.QueryRowContext(ctx, query, topUpID))
}

// GetTopUpByExternalReference resolves a gateway reference to its top-up.
func (r *WalletRepository) GetTopUpByExternalReference(ctx context.Context, externalReference string) (*models.TopUp, error) {
	query := `SELECT ` + topUpColumns + ` FROM top_ups WHERE external_reference = $1`
	return scanTopUp(r.db.QueryRowContext(ctx, query, externalReference))
}

// ListTopUpsByUser returns a user's top-ups newest first.
func (r *WalletRepository) ListTopUpsByUser(ctx context.Context, userID string, limit int) ([]models.TopUp, error) {
	if limit <= 0 || limit > 100 {
		limit = 100
	}
	query := `SELECT ` + topUpColumns + ` FROM top_ups WHERE user_id = $1 ORDER BY requested_at DESC LIMIT $2`

	rows, err := r.db.QueryContext(ctx, query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list top-ups: %w", err)
	}
	defer rows.Close()

	topUps := []models.TopUp{}
	for rows.Next() {
		t, err := scanTopUp(rows)
		if err != nil {
			return nil, err
		}
		topUps = append(topUps, *t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read top-ups: %w", err)
	}
	return topUps, nil
}

// InsertTopUp creates the pending top-up row.
func (r *TxWalletRepo) InsertTopUp(ctx context.Context, t *models.TopUp) error {
	query := `
		INSERT INTO top_ups
		(id, user_id, wallet_id, amount, currency, channel, status,
			external_reference, failure_reason, requested_at, confirmed_at, failed_at, transaction_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`
	_, err := r.tx.ExecContext(ctx, query,
		t.ID, t.UserID, t.WalletID, t.Amount.Amount, t.Amount.Currency, t.Channel, t.Status,
		t.ExternalReference, t.FailureReason, t.RequestedAt, t.ConfirmedAt, t.FailedAt, t.TransactionID,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: top-up external reference", models.ErrDuplicateReference)
		}
		return fmt.Errorf("failed to insert top-up: %w", err)
	}
	return nil
}

// LockTopUp takes the top-up row FOR UPDATE so that two gateway callbacks
// for the same top-up serialize.
func (r *TxWalletRepo) LockTopUp(ctx context.Context, topUpID string) (*models.TopUp, error) {
	query := `SELECT ` + topUpColumns + ` FROM top_ups WHERE id = $1 FOR UPDATE`
	return scanTopUp(r.tx.QueryRowContext(ctx, query, topUpID))
}

// UpdateTopUp writes back the state of an already-locked top-up. The
// unique index on external_reference turns a replayed gateway reference
// into ErrDuplicateReference.
func (r *TxWalletRepo) UpdateTopUp(ctx context.Context, t *models.TopUp) error {
	query := `
		UPDATE top_ups
		SET status = $1, external_reference = $2, failure_reason = $3,
			confirmed_at = $4, failed_at = $5, transaction_id = $6
		WHERE id = $7
	`
	result, err := r.tx.ExecContext(ctx, query,
		t.Status, t.ExternalReference, t.FailureReason,
		t.ConfirmedAt, t.FailedAt, t.TransactionID, t.ID,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: top-up external reference", models.ErrDuplicateReference)
		}
		return fmt.Errorf("failed to update top-up: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("%w: top-up %s", models.ErrNotFound, t.ID)
	}
	return nil
}

// AcquireTopupLock inserts the lease. If the user already holds one that
// is LOCKED and unexpired the insert fails with ErrAlreadyExists; an
// expired lease is reclaimed in place.
func (r *TxWalletRepo) AcquireTopupLock(ctx context.Context, lock *models.WalletTopupLock) error {
	reclaim := `
		UPDATE wallet_topup_locks
		SET status = $1
		WHERE user_id = $2 AND status = $3 AND expires_at <= $4
	`
	if _, err := r.tx.ExecContext(ctx, reclaim,
		models.TopupLockExpired, lock.UserID, models.TopupLockLocked, lock.LockedAt,
	); err != nil {
		return fmt.Errorf("failed to reclaim expired locks: %w", err)
	}

	query := `
		INSERT INTO wallet_topup_locks
		(id, user_id, amount, currency, status, transaction_reference, locked_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err := r.tx.ExecContext(ctx, query,
		lock.ID, lock.UserID, lock.Amount.Amount, lock.Amount.Currency,
		lock.Status, lock.TransactionReference, lock.LockedAt, lock.ExpiresAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: top-up already in progress for user %s", models.ErrAlreadyExists, lock.UserID)
		}
		return fmt.Errorf("failed to acquire top-up lock: %w", err)
	}
	return nil
}

// CompleteTopupLock settles the user's active lease after the top-up
// reached a terminal state. Missing lease is not an error: it may have
// been reaped already.
func (r *TxWalletRepo) CompleteTopupLock(ctx context.Context, userID string, now time.Time) error {
	query := `
		UPDATE wallet_topup_locks
		SET status = $1, completed_at = $2
		WHERE user_id = $3 AND status = $4
	`
	if _, err := r.tx.ExecContext(ctx, query,
		models.TopupLockCompleted, now.UTC(), userID, models.TopupLockLocked,
	); err != nil {
		return fmt.Errorf("failed to complete top-up lock: %w", err)
	}
	return nil
}

// ExpireStaleLocks flips every overdue LOCKED lease to EXPIRED and reports
// how many it touched. Run periodically by the cleanup worker.
func (r *WalletRepository) ExpireStaleLocks(ctx context.Context, now time.Time) (int64, error) {
	query := `
		UPDATE wallet_topup_locks
		SET status = $1
		WHERE status = $2 AND expires_at <= $3
	`
	result, err := r.db.ExecContext(ctx, query, models.TopupLockExpired, models.TopupLockLocked, now.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to expire stale locks: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rows, nil
}
