package postgresrepo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"ledger-service/internal/models"
)

const escrowColumns = `id, buyer_id, seller_id, order_id, amount, currency, fee_rate, status,
	created_at, funded_at, released_at, refunded_at, disputed_at, resolved_at`

func scanEscrow(row rowScanner) (*models.Escrow, error) {
	var e models.Escrow
	err := row.Scan(
		&e.ID,
		&e.BuyerID,
		&e.SellerID,
		&e.OrderID,
		&e.Amount.Amount,
		&e.Amount.Currency,
		&e.FeeRate,
		&e.Status,
		&e.CreatedAt,
		&e.FundedAt,
		&e.ReleasedAt,
		&e.RefundedAt,
		&e.DisputedAt,
		&e.ResolvedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: escrow", models.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get escrow from postgres: %w", err)
	}
	return &e, nil
}

// GetEscrow get an escrow by ID
func (r *WalletRepository) GetEscrow(ctx context.Context, escrowID string) (*models.Escrow, error) {
	query := `SELECT ` + escrowColumns + ` FROM escrows WHERE id = $1`
	return scanEscrow(r.db.QueryRowContext(ctx, query, escrowID))
}

// ListEscrowsByParty returns escrows where the user is buyer or seller,
// newest first.
func (r *WalletRepository) ListEscrowsByParty(ctx context.Context, userID string, limit int) ([]models.Escrow, error) {
	if limit <= 0 || limit > 100 {
		limit = 100
	}
	query := `
		SELECT ` + escrowColumns + ` FROM escrows
		WHERE buyer_id = $1 OR seller_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`
	rows, err := r.db.QueryContext(ctx, query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list escrows: %w", err)
	}
	defer rows.Close()

	escrows := []models.Escrow{}
	for rows.Next() {
		e, err := scanEscrow(rows)
		if err != nil {
			return nil, err
		}
		escrows = append(escrows, *e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read escrows: %w", err)
	}
	return escrows, nil
}

// InsertEscrow creates the escrow row in CREATED.
func (r *TxWalletRepo) InsertEscrow(ctx context.Context, e *models.Escrow) error {
	query := `
		INSERT INTO escrows
		(id, buyer_id, seller_id, order_id, amount, currency, fee_rate, status,
			created_at, funded_at, released_at, refunded_at, disputed_at, resolved_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`
	_, err := r.tx.ExecContext(ctx, query,
		e.ID, e.BuyerID, e.SellerID, e.OrderID, e.Amount.Amount, e.Amount.Currency, e.FeeRate, e.Status,
		e.CreatedAt, e.FundedAt, e.ReleasedAt, e.RefundedAt, e.DisputedAt, e.ResolvedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert escrow: %w", err)
	}
	return nil
}

// LockEscrow takes the escrow row FOR UPDATE so concurrent transitions on
// the same escrow serialize.
func (r *TxWalletRepo) LockEscrow(ctx context.Context, escrowID string) (*models.Escrow, error) {
	query := `SELECT ` + escrowColumns + ` FROM escrows WHERE id = $1 FOR UPDATE`
	return scanEscrow(r.tx.QueryRowContext(ctx, query, escrowID))
}

// UpdateEscrow writes back the state of an already-locked escrow.
func (r *TxWalletRepo) UpdateEscrow(ctx context.Context, e *models.Escrow) error {
	query := `
		UPDATE escrows
		SET status = $1, funded_at = $2, released_at = $3,
			refunded_at = $4, disputed_at = $5, resolved_at = $6
		WHERE id = $7
	`
	result, err := r.tx.ExecContext(ctx, query,
		e.Status, e.FundedAt, e.ReleasedAt, e.RefundedAt, e.DisputedAt, e.ResolvedAt, e.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update escrow: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("%w: escrow %s", models.ErrNotFound, e.ID)
	}
	return nil
}
