package postgresrepo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"ledger-service/internal/models"

	"github.com/shopspring/decimal"
)

// GetLedgerAccountByCode resolves a ledger account outside a transaction.
func (r *WalletRepository) GetLedgerAccountByCode(ctx context.Context, code, currency string) (*models.LedgerAccount, error) {
	var a models.LedgerAccount
	query := `SELECT id, kind, code, currency, user_id, created_at FROM ledger_accounts WHERE code = $1 AND currency = $2`
	err := r.db.QueryRowContext(ctx, query, code, currency).Scan(
		&a.ID,
		&a.Kind,
		&a.Code,
		&a.Currency,
		&a.UserID,
		&a.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: ledger account %s", models.ErrNotFound, code)
		}
		return nil, fmt.Errorf("failed to get ledger account: %w", err)
	}
	return &a, nil
}

// DerivedAccountBalance folds an account's entries into its balance: sum
// of amounts where it is the debit side minus sum where it is the credit
// side. Reconciliation jobs compare this against the wallet row.
func (r *WalletRepository) DerivedAccountBalance(ctx context.Context, accountID string) (decimal.Decimal, error) {
	query := `
		SELECT
			COALESCE(SUM(CASE WHEN debit_account_id = $1 THEN amount ELSE 0 END), 0)
			- COALESCE(SUM(CASE WHEN credit_account_id = $1 THEN amount ELSE 0 END), 0)
		FROM ledger_entries
		WHERE debit_account_id = $1 OR credit_account_id = $1
	`
	var balance decimal.Decimal
	if err := r.db.QueryRowContext(ctx, query, accountID).Scan(&balance); err != nil {
		return decimal.Zero, fmt.Errorf("failed to derive account balance: %w", err)
	}
	return balance, nil
}

// ListLedgerEntriesByReference returns the entries written for one domain
// event, oldest first.
func (r *WalletRepository) ListLedgerEntriesByReference(ctx context.Context, referenceType, referenceID string) ([]models.LedgerEntry, error) {
	query := `
		SELECT id, debit_account_id, credit_account_id, amount, currency,
			reference_type, reference_id, description, created_at
		FROM ledger_entries
		WHERE reference_type = $1 AND reference_id = $2
		ORDER BY created_at ASC
	`
	rows, err := r.db.QueryContext(ctx, query, referenceType, referenceID)
	if err != nil {
		return nil, fmt.Errorf("failed to list ledger entries: %w", err)
	}
	defer rows.Close()

	entries := []models.LedgerEntry{}
	for rows.Next() {
		var e models.LedgerEntry
		err := rows.Scan(
			&e.ID,
			&e.DebitAccountID,
			&e.CreditAccountID,
			&e.Amount.Amount,
			&e.Amount.Currency,
			&e.ReferenceType,
			&e.ReferenceID,
			&e.Description,
			&e.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan ledger entry: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read ledger entries: %w", err)
	}
	return entries, nil
}
