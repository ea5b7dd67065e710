package services

import (
	"context"
	"time"

	"ledger-service/internal/models"
	"ledger-service/internal/repositories/postgresrepo"
	"ledger-service/internal/repositories/redisrepo"

	"github.com/shopspring/decimal"
)

// Store is the persistence surface the service orchestrates over. The
// Postgres implementation lives in postgresrepo; tests substitute an
// in-memory fake with real commit and rollback semantics.
type Store interface {
	BeginTx(ctx context.Context) (Tx, error)

	GetWallet(ctx context.Context, walletID string) (*models.Wallet, error)
	GetWalletByOwner(ctx context.Context, ownerID, currency string) (*models.Wallet, error)
	WalletExists(ctx context.Context, walletID string) (bool, error)
	CreateWallet(ctx context.Context, w *models.Wallet) error
	SetWalletStatus(ctx context.Context, walletID string, status models.WalletStatus) error
	ListTransactions(ctx context.Context, walletID string, f postgresrepo.TransactionFilter) ([]models.WalletTransaction, error)

	GetTopUp(ctx context.Context, topUpID string) (*models.TopUp, error)
	GetTopUpByExternalReference(ctx context.Context, externalReference string) (*models.TopUp, error)
	ListTopUpsByUser(ctx context.Context, userID string, limit int) ([]models.TopUp, error)

	GetEscrow(ctx context.Context, escrowID string) (*models.Escrow, error)
	ListEscrowsByParty(ctx context.Context, userID string, limit int) ([]models.Escrow, error)

	GetLedgerAccountByCode(ctx context.Context, code, currency string) (*models.LedgerAccount, error)
	DerivedAccountBalance(ctx context.Context, accountID string) (decimal.Decimal, error)
	ListLedgerEntriesByReference(ctx context.Context, referenceType, referenceID string) ([]models.LedgerEntry, error)

	ExpireStaleLocks(ctx context.Context, now time.Time) (int64, error)
}

// Tx is one database transaction. Every balance-affecting operation locks
// its rows, mutates, and commits through exactly one Tx so that wallet,
// transaction log and ledger move atomically.
type Tx interface {
	Commit() error
	Rollback() error

	LockWallet(ctx context.Context, walletID string) (*models.Wallet, error)
	LockWallets(ctx context.Context, walletIDs ...string) (map[string]*models.Wallet, error)
	GetWalletIDByOwner(ctx context.Context, ownerID, currency string) (string, error)
	UpdateWalletBalances(ctx context.Context, w *models.Wallet) error
	InsertTransaction(ctx context.Context, t *models.WalletTransaction) error

	GetOrCreateLedgerAccount(ctx context.Context, kind models.LedgerAccountKind, code, currency, userID string) (*models.LedgerAccount, error)
	InsertLedgerEntry(ctx context.Context, e *models.LedgerEntry) error

	InsertTopUp(ctx context.Context, t *models.TopUp) error
	LockTopUp(ctx context.Context, topUpID string) (*models.TopUp, error)
	UpdateTopUp(ctx context.Context, t *models.TopUp) error
	AcquireTopupLock(ctx context.Context, lock *models.WalletTopupLock) error
	CompleteTopupLock(ctx context.Context, userID string, now time.Time) error

	InsertEscrow(ctx context.Context, e *models.Escrow) error
	LockEscrow(ctx context.Context, escrowID string) (*models.Escrow, error)
	UpdateEscrow(ctx context.Context, e *models.Escrow) error
}

// BalanceCache is the read-side balance cache; redisrepo implements it.
type BalanceCache interface {
	GetBalance(ctx context.Context, walletID string) (*redisrepo.BalanceSnapshot, error)
	SetBalance(ctx context.Context, walletID string, snapshot redisrepo.BalanceSnapshot) error
	DeleteBalance(ctx context.Context, walletID string) error
}

// Notifier publishes post-commit events; kafkarepo implements it.
type Notifier interface {
	SendNotification(ctx context.Context, event models.NotificationEvent) error
}

type sqlStore struct {
	*postgresrepo.WalletRepository
}

func (s sqlStore) BeginTx(ctx context.Context) (Tx, error) {
	return s.WalletRepository.BeginTx(ctx)
}

// NewSQLStore adapts the Postgres repository to the Store interface.
func NewSQLStore(r *postgresrepo.WalletRepository) Store {
	return sqlStore{r}
}
