package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"ledger-service/internal/models"
	"ledger-service/internal/repositories/postgresrepo"
	"ledger-service/internal/repositories/redisrepo"

	"github.com/sethvargo/go-retry"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// WalletLedgerService is the single entry point for every balance-affecting
// operation. Each operation runs in one database transaction that locks the
// touched wallets, applies the mutation, appends the transaction log row
// and the balancing ledger entry, and commits. Cache refresh and Kafka
// notification happen after commit, best effort.
type WalletLedgerService struct {
	store    Store
	cache    BalanceCache
	notifier Notifier
	log      *logrus.Logger

	lockTTL time.Duration
}

func NewWalletLedgerService(store Store, cache BalanceCache, notifier Notifier, log *logrus.Logger) *WalletLedgerService {
	return &WalletLedgerService{
		store:    store,
		cache:    cache,
		notifier: notifier,
		log:      log,
		lockTTL:  models.DefaultTopupLockTTL,
	}
}

// SetTopupLockTTL overrides the top-up lease duration.
func (s *WalletLedgerService) SetTopupLockTTL(ttl time.Duration) {
	if ttl > 0 {
		s.lockTTL = ttl
	}
}

// withRetry re-runs op on lock conflicts with capped exponential backoff.
// Any other error surfaces immediately.
func (s *WalletLedgerService) withRetry(ctx context.Context, op func(ctx context.Context) error) error {
	backoff := retry.WithMaxRetries(3, retry.NewExponential(50*time.Millisecond))
	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		err := op(ctx)
		if errors.Is(err, models.ErrConcurrencyConflict) {
			return retry.RetryableError(err)
		}
		return err
	})
}

func rollback(tx Tx, err error) error {
	if rbErr := tx.Rollback(); rbErr != nil {
		return fmt.Errorf("%w (rollback failed: %v)", err, rbErr)
	}
	return err
}

// refreshCache updates the cached balance snapshot after a commit.
func (s *WalletLedgerService) refreshCache(w *models.Wallet) {
	if s.cache == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		snapshot := redisrepo.BalanceSnapshot{
			Balance:       w.SpendableBalance(),
			FrozenBalance: w.Frozen(),
		}
		if err := s.cache.SetBalance(ctx, w.ID, snapshot); err != nil {
			s.log.WithError(err).WithField("wallet_id", w.ID).Warn("failed to refresh balance cache")
		}
	}()
}

// notify publishes a post-commit event. Failures are logged, never
// propagated: the commit already happened.
func (s *WalletLedgerService) notify(ctx context.Context, event models.NotificationEvent) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.SendNotification(ctx, event); err != nil {
		s.log.WithError(err).WithField("event_kind", event.Kind).Warn("failed to publish notification")
	}
}

// CreateWallet provisions the owner's wallet in the given currency.
func (s *WalletLedgerService) CreateWallet(ctx context.Context, ownerID, currency string) (*models.Wallet, error) {
	w, err := models.NewWallet(ownerID, currency)
	if err != nil {
		return nil, err
	}
	if err := s.store.CreateWallet(ctx, w); err != nil {
		return nil, err
	}
	s.log.WithFields(logrus.Fields{
		"wallet_id": w.ID,
		"owner_id":  w.OwnerID,
		"currency":  w.Currency,
	}).Info("wallet created")
	return w, nil
}

// GetWallet returns the wallet by id.
func (s *WalletLedgerService) GetWallet(ctx context.Context, walletID string) (*models.Wallet, error) {
	return s.store.GetWallet(ctx, walletID)
}

// GetWalletByOwner returns the owner's wallet in the given currency.
func (s *WalletLedgerService) GetWalletByOwner(ctx context.Context, ownerID, currency string) (*models.Wallet, error) {
	if currency == "" {
		currency = models.DefaultCurrency
	}
	return s.store.GetWalletByOwner(ctx, ownerID, currency)
}

// WalletBalance is a read model of the wallet's two balances.
type WalletBalance struct {
	WalletID      string       `json:"walletId"`
	Balance       models.Money `json:"balance"`
	FrozenBalance models.Money `json:"frozenBalance"`
}

// GetBalance serves the balance from the cache when it can, falling back
// to Postgres and repopulating the cache on a miss.
func (s *WalletLedgerService) GetBalance(ctx context.Context, walletID string) (*WalletBalance, error) {
	if s.cache != nil {
		snapshot, err := s.cache.GetBalance(ctx, walletID)
		if err == nil {
			return &WalletBalance{
				WalletID:      walletID,
				Balance:       snapshot.Balance,
				FrozenBalance: snapshot.FrozenBalance,
			}, nil
		}
		if !errors.Is(err, redisrepo.ErrBalanceNotFound) {
			s.log.WithError(err).WithField("wallet_id", walletID).Warn("balance cache read failed")
		}
	}

	w, err := s.store.GetWallet(ctx, walletID)
	if err != nil {
		return nil, err
	}
	s.refreshCache(w)

	return &WalletBalance{
		WalletID:      w.ID,
		Balance:       w.SpendableBalance(),
		FrozenBalance: w.Frozen(),
	}, nil
}

// HasSufficientFunds checks the spendable balance against amount.
func (s *WalletLedgerService) HasSufficientFunds(ctx context.Context, walletID string, amount models.Money) (bool, error) {
	w, err := s.store.GetWallet(ctx, walletID)
	if err != nil {
		return false, err
	}
	return w.HasSufficientFunds(amount), nil
}

// SetWalletStatus activates or deactivates a wallet.
func (s *WalletLedgerService) SetWalletStatus(ctx context.Context, walletID string, status models.WalletStatus) error {
	if status != models.WalletStatusActive && status != models.WalletStatusInactive {
		return fmt.Errorf("%w: unknown wallet status %q", models.ErrValidation, string(status))
	}
	if err := s.store.SetWalletStatus(ctx, walletID, status); err != nil {
		return err
	}
	if s.cache != nil {
		if err := s.cache.DeleteBalance(ctx, walletID); err != nil {
			s.log.WithError(err).WithField("wallet_id", walletID).Warn("failed to invalidate balance cache")
		}
	}
	return nil
}

// GetTransactionHistory lists a wallet's movements newest first.
func (s *WalletLedgerService) GetTransactionHistory(ctx context.Context, walletID string, f postgresrepo.TransactionFilter) ([]models.WalletTransaction, error) {
	exists, err := s.store.WalletExists(ctx, walletID)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, fmt.Errorf("%w: wallet %s", models.ErrNotFound, walletID)
	}
	return s.store.ListTransactions(ctx, walletID, f)
}

// GetLedgerEntries returns the audit trail recorded under a reference,
// e.g. every posting made for one escrow or top-up.
func (s *WalletLedgerService) GetLedgerEntries(ctx context.Context, referenceType, referenceID string) ([]models.LedgerEntry, error) {
	if referenceType == "" || referenceID == "" {
		return nil, fmt.Errorf("%w: reference type and id are required", models.ErrValidation)
	}
	return s.store.ListLedgerEntriesByReference(ctx, referenceType, referenceID)
}

// CreditWallet adds funds to the spendable balance. The balancing ledger
// entry moves the amount from the gateway clearing account onto the user's
// liability account.
func (s *WalletLedgerService) CreditWallet(ctx context.Context, walletID string, amount models.Money, reason string) (*models.WalletTransaction, error) {
	var out *models.WalletTransaction
	err := s.withRetry(ctx, func(ctx context.Context) error {
		tx, err := s.store.BeginTx(ctx)
		if err != nil {
			return fmt.Errorf("failed to begin transaction: %w", err)
		}

		w, err := tx.LockWallet(ctx, walletID)
		if err != nil {
			return rollback(tx, err)
		}
		wtx, err := w.Credit(amount, reason)
		if err != nil {
			return rollback(tx, err)
		}
		if err := s.persistMovement(ctx, tx, w, wtx); err != nil {
			return rollback(tx, err)
		}
		if err := s.postUserEntry(ctx, tx, w, wtx, directionIntoUser); err != nil {
			return rollback(tx, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit transaction: %w", err)
		}

		s.refreshCache(w)
		s.notify(ctx, models.NotificationEvent{
			ID:         wtx.ID,
			Kind:       models.EventWalletCredited,
			UserID:     w.OwnerID,
			WalletID:   w.ID,
			Amount:     amount,
			OccurredAt: wtx.CreatedAt,
		})
		out = wtx
		return nil
	})
	return out, err
}

// DebitWallet removes funds from the spendable balance; the balance never
// goes negative. The ledger entry returns the amount to gateway clearing.
func (s *WalletLedgerService) DebitWallet(ctx context.Context, walletID string, amount models.Money, reason string) (*models.WalletTransaction, error) {
	var out *models.WalletTransaction
	err := s.withRetry(ctx, func(ctx context.Context) error {
		tx, err := s.store.BeginTx(ctx)
		if err != nil {
			return fmt.Errorf("failed to begin transaction: %w", err)
		}

		w, err := tx.LockWallet(ctx, walletID)
		if err != nil {
			return rollback(tx, err)
		}
		wtx, err := w.Debit(amount, reason)
		if err != nil {
			return rollback(tx, err)
		}
		if err := s.persistMovement(ctx, tx, w, wtx); err != nil {
			return rollback(tx, err)
		}
		if err := s.postUserEntry(ctx, tx, w, wtx, directionOutOfUser); err != nil {
			return rollback(tx, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit transaction: %w", err)
		}

		s.refreshCache(w)
		s.notify(ctx, models.NotificationEvent{
			ID:         wtx.ID,
			Kind:       models.EventWalletDebited,
			UserID:     w.OwnerID,
			WalletID:   w.ID,
			Amount:     amount,
			OccurredAt: wtx.CreatedAt,
		})
		out = wtx
		return nil
	})
	return out, err
}

// ReconciliationReport compares a wallet's stored spendable balance with
// the balance derived from its ledger entries.
type ReconciliationReport struct {
	WalletID       string          `json:"walletId"`
	StoredBalance  decimal.Decimal `json:"storedBalance"`
	DerivedBalance decimal.Decimal `json:"derivedBalance"`
	Balanced       bool            `json:"balanced"`
}

// ReconcileWallet recomputes the user account's balance from the ledger
// and flags any drift from the wallet row.
func (s *WalletLedgerService) ReconcileWallet(ctx context.Context, walletID string) (*ReconciliationReport, error) {
	w, err := s.store.GetWallet(ctx, walletID)
	if err != nil {
		return nil, err
	}
	acct, err := s.store.GetLedgerAccountByCode(ctx, models.UserWalletLedgerCode(w.ID), w.Currency)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			// No entries yet: the derived balance is zero.
			report := &ReconciliationReport{
				WalletID:       w.ID,
				StoredBalance:  w.Balance,
				DerivedBalance: decimal.Zero,
				Balanced:       w.Balance.IsZero(),
			}
			return report, nil
		}
		return nil, err
	}

	derived, err := s.store.DerivedAccountBalance(ctx, acct.ID)
	if err != nil {
		return nil, err
	}
	// The user account is a liability: its balance grows with credits,
	// while DerivedAccountBalance folds debits as positive.
	derived = derived.Neg()

	return &ReconciliationReport{
		WalletID:       w.ID,
		StoredBalance:  w.Balance,
		DerivedBalance: derived,
		Balanced:       w.Balance.Equal(derived),
	}, nil
}

// persistMovement writes back the mutated wallet and appends its
// transaction row.
func (s *WalletLedgerService) persistMovement(ctx context.Context, tx Tx, w *models.Wallet, wtx *models.WalletTransaction) error {
	if err := tx.UpdateWalletBalances(ctx, w); err != nil {
		return err
	}
	return tx.InsertTransaction(ctx, wtx)
}
