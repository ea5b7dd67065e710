package postgresrepo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"

	"ledger-service/internal/models"

	"github.com/jmoiron/sqlx"
)

// TxWalletRepo scopes all balance-affecting writes to one database
// transaction. Wallet rows are taken FOR UPDATE before mutation so that
// concurrent movements on the same wallet serialize instead of clobbering
// each other.
type TxWalletRepo struct {
	tx *sqlx.Tx
}

func NewTxWalletRepo(tx *sqlx.Tx) *TxWalletRepo {
	return &TxWalletRepo{tx: tx}
}

func (r *TxWalletRepo) Commit() error {
	return r.tx.Commit()
}

func (r *TxWalletRepo) Rollback() error {
	return r.tx.Rollback()
}

// LockWallet takes the wallet row FOR UPDATE and returns the current state.
func (r *TxWalletRepo) LockWallet(ctx context.Context, walletID string) (*models.Wallet, error) {
	var w models.Wallet
	query := `SELECT ` + walletColumns + ` FROM wallets WHERE id = $1 FOR UPDATE`
	err := r.tx.QueryRowContext(ctx, query, walletID).Scan(
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
			return nil, fmt.Errorf("%w: wallet %s", models.ErrNotFound, walletID)
		}
		if isLockConflict(err) {
			return nil, fmt.Errorf("%w: wallet %s", models.ErrConcurrencyConflict, walletID)
		}
		return nil, fmt.Errorf("failed to lock wallet: %w", err)
	}
	return &w, nil
}

// GetWalletIDByOwner resolves the owner's wallet id without locking it.
// Callers collect ids first and then lock them through LockWallets so the
// lock order stays deterministic.
func (r *TxWalletRepo) GetWalletIDByOwner(ctx context.Context, ownerID, currency string) (string, error) {
	var id string
	query := `SELECT id FROM wallets WHERE owner_id = $1 AND currency = $2`
	err := r.tx.QueryRowContext(ctx, query, ownerID, currency).Scan(&id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", fmt.Errorf("%w: wallet for owner %s in %s", models.ErrNotFound, ownerID, currency)
		}
		return "", fmt.Errorf("failed to resolve wallet by owner: %w", err)
	}
	return id, nil
}

// LockWallets locks several wallets in ascending id order. A fixed order
// across all callers keeps two transfers touching the same pair of wallets
// from deadlocking.
func (r *TxWalletRepo) LockWallets(ctx context.Context, walletIDs ...string) (map[string]*models.Wallet, error) {
	ids := append([]string(nil), walletIDs...)
	sort.Strings(ids)

	wallets := make(map[string]*models.Wallet, len(ids))
	for _, id := range ids {
		if _, ok := wallets[id]; ok {
			continue
		}
		w, err := r.LockWallet(ctx, id)
		if err != nil {
			return nil, err
		}
		wallets[id] = w
	}
	return wallets, nil
}

// UpdateWalletBalances writes back both balances of an already-locked
// wallet.
func (r *TxWalletRepo) UpdateWalletBalances(ctx context.Context, w *models.Wallet) error {
	query := `
		UPDATE wallets
		SET balance = $1, frozen_balance = $2, updated_at = $3
		WHERE id = $4
	`
	result, err := r.tx.ExecContext(ctx, query, w.Balance, w.FrozenBalance, w.UpdatedAt, w.ID)
	if err != nil {
		return fmt.Errorf("failed to update wallet balances: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("%w: wallet %s", models.ErrNotFound, w.ID)
	}
	return nil
}

// InsertTransaction appends one row to the immutable movement log.
func (r *TxWalletRepo) InsertTransaction(ctx context.Context, t *models.WalletTransaction) error {
	query := `
		INSERT INTO wallet_transactions
		(id, wallet_id, type, amount, currency, reason,
			reference_id, reference_type, external_reference, counterparty_wallet_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`
	_, err := r.tx.ExecContext(ctx, query,
		t.ID, t.WalletID, t.Type, t.Amount.Amount, t.Amount.Currency, t.Reason,
		t.ReferenceID, t.ReferenceType, t.ExternalReference, t.CounterpartyWalletID, t.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: transaction external reference", models.ErrDuplicateReference)
		}
		return fmt.Errorf("failed to insert transaction: %w", err)
	}
	return nil
}

// GetOrCreateLedgerAccount returns the account with the given code,
// creating it on first use. The insert tolerates a concurrent creator.
func (r *TxWalletRepo) GetOrCreateLedgerAccount(ctx context.Context, kind models.LedgerAccountKind, code, currency, userID string) (*models.LedgerAccount, error) {
	acct, err := models.NewLedgerAccount(kind, code, currency, userID)
	if err != nil {
		return nil, err
	}

	query := `
		INSERT INTO ledger_accounts (id, kind, code, currency, user_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (code, currency) DO NOTHING
	`
	if _, err := r.tx.ExecContext(ctx, query,
		acct.ID, acct.Kind, acct.Code, acct.Currency, acct.UserID, acct.CreatedAt,
	); err != nil {
		return nil, fmt.Errorf("failed to create ledger account: %w", err)
	}

	var out models.LedgerAccount
	sel := `SELECT id, kind, code, currency, user_id, created_at FROM ledger_accounts WHERE code = $1 AND currency = $2`
	err = r.tx.QueryRowContext(ctx, sel, acct.Code, acct.Currency).Scan(
		&out.ID,
		&out.Kind,
		&out.Code,
		&out.Currency,
		&out.UserID,
		&out.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get ledger account: %w", err)
	}
	return &out, nil
}

// InsertLedgerEntry appends one double-entry record. Entries are never
// updated or deleted.
func (r *TxWalletRepo) InsertLedgerEntry(ctx context.Context, e *models.LedgerEntry) error {
	query := `
		INSERT INTO ledger_entries
		(id, debit_account_id, credit_account_id, amount, currency,
			reference_type, reference_id, description, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err := r.tx.ExecContext(ctx, query,
		e.ID, e.DebitAccountID, e.CreditAccountID, e.Amount.Amount, e.Amount.Currency,
		e.ReferenceType, e.ReferenceID, e.Description, e.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert ledger entry: %w", err)
	}
	return nil
}
