package postgresrepo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"ledger-service/internal/models"
)

const walletColumns = `id, owner_id, currency, balance, frozen_balance, status, created_at, updated_at`

func scanWallet(row *sql.Row) (*models.Wallet, error) {
	var w models.Wallet
	err := row.Scan(
		&w.ID,
		&w.OwnerID,
		&w.Currency,
		&w.Balance,
		&w.FrozenBalance,
		&w.Status,
		&w.CreatedAt,
		&w.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: wallet", models.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get wallet from postgres: %w", err)
	}
	return &w, nil
}

// GetWallet get a wallet by ID
func (r *WalletRepository) GetWallet(ctx context.Context, walletID string) (*models.Wallet, error) {
	query := `SELECT ` + walletColumns + ` FROM wallets WHERE id = $1`
	return scanWallet(r.db.QueryRowContext(ctx, query, walletID))
}

// GetWalletByOwner get the owner's wallet in the given currency
func (r *WalletRepository) GetWalletByOwner(ctx context.Context, ownerID, currency string) (*models.Wallet, error) {
	query := `SELECT ` + walletColumns + ` FROM wallets WHERE owner_id = $1 AND currency = $2`
	return scanWallet(r.db.QueryRowContext(ctx, query, ownerID, currency))
}

// CreateWallet create a new wallet; at most one per owner and currency
func (r *WalletRepository) CreateWallet(ctx context.Context, w *models.Wallet) error {
	query := `
		INSERT INTO wallets (id, owner_id, currency, balance, frozen_balance, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err := r.db.ExecContext(ctx, query,
		w.ID, w.OwnerID, w.Currency, w.Balance, w.FrozenBalance, w.Status, w.CreatedAt, w.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: wallet for owner %s in %s", models.ErrAlreadyExists, w.OwnerID, w.Currency)
		}
		return fmt.Errorf("failed to create wallet: %w", err)
	}
	return nil
}

// WalletExists check the existence of a wallet
func (r *WalletRepository) WalletExists(ctx context.Context, walletID string) (bool, error) {
	var exists bool
	query := `SELECT EXISTS(SELECT 1 FROM wallets WHERE id = $1)`

	err := r.db.QueryRowContext(ctx, query, walletID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check wallet existence: %w", err)
	}
	return exists, nil
}

// SetWalletStatus activates or deactivates a wallet
func (r *WalletRepository) SetWalletStatus(ctx context.Context, walletID string, status models.WalletStatus) error {
	query := `UPDATE wallets SET status = $1, updated_at = NOW() WHERE id = $2`

	result, err := r.db.ExecContext(ctx, query, status, walletID)
	if err != nil {
		return fmt.Errorf("failed to set wallet status: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("%w: wallet %s", models.ErrNotFound, walletID)
	}
	return nil
}

// TransactionFilter narrows and pages a wallet's transaction history.
type TransactionFilter struct {
	Type   models.TransactionType
	From   *time.Time
	To     *time.Time
	Limit  int
	Offset int
}

// ListTransactions returns a wallet's transactions newest first.
func (r *WalletRepository) ListTransactions(ctx context.Context, walletID string, f TransactionFilter) ([]models.WalletTransaction, error) {
	query := `
		SELECT id, wallet_id, type, amount, currency, reason,
			reference_id, reference_type, external_reference, counterparty_wallet_id, created_at
		FROM wallet_transactions
		WHERE wallet_id = $1
	`
	args := []interface{}{walletID}

	if f.Type != "" {
		args = append(args, f.Type)
		query += fmt.Sprintf(" AND type = $%d", len(args))
	}
	if f.From != nil {
		args = append(args, *f.From)
		query += fmt.Sprintf(" AND created_at >= $%d", len(args))
	}
	if f.To != nil {
		args = append(args, *f.To)
		query += fmt.Sprintf(" AND created_at < $%d", len(args))
	}

	query += " ORDER BY created_at DESC"
	if f.Limit <= 0 || f.Limit > 100 {
		f.Limit = 100
	}
	args = append(args, f.Limit)
	query += fmt.Sprintf(" LIMIT $%d", len(args))
	if f.Offset > 0 {
		args = append(args, f.Offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list transactions: %w", err)
	}
	defer rows.Close()

	transactions := []models.WalletTransaction{}
	for rows.Next() {
		var tx models.WalletTransaction
		err := rows.Scan(
			&tx.ID,
			&tx.WalletID,
			&tx.Type,
			&tx.Amount.Amount,
			&tx.Amount.Currency,
			&tx.Reason,
			&tx.ReferenceID,
			&tx.ReferenceType,
			&tx.ExternalReference,
			&tx.CounterpartyWalletID,
			&tx.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		transactions = append(transactions, tx)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read transactions: %w", err)
	}
	return transactions, nil
}
