package services

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"ledger-service/internal/models"
	"ledger-service/internal/repositories/postgresrepo"

	"github.com/shopspring/decimal"
)

// memStore is an in-memory Store with real transaction semantics: a memTx
// stages every mutation and nothing is visible until Commit. failures maps
// a method name to an error injected at that step, to exercise rollback
// paths.
type memStore struct {
	mu sync.Mutex

	wallets       map[string]*models.Wallet
	walletByOwner map[string]string
	transactions  []models.WalletTransaction
	topUps        map[string]*models.TopUp
	escrows       map[string]*models.Escrow
	accounts      map[string]*models.LedgerAccount
	entries       []models.LedgerEntry
	locks         []*models.WalletTopupLock

	failures  map[string]error
	conflicts int
}

func newMemStore() *memStore {
	return &memStore{
		wallets:       map[string]*models.Wallet{},
		walletByOwner: map[string]string{},
		topUps:        map[string]*models.TopUp{},
		escrows:       map[string]*models.Escrow{},
		accounts:      map[string]*models.LedgerAccount{},
		failures:      map[string]error{},
	}
}

func ownerKey(ownerID, currency string) string {
	return ownerID + "|" + currency
}

func accountKey(code, currency string) string {
	return code + "|" + currency
}

func (s *memStore) failAt(step string) error {
	if err, ok := s.failures[step]; ok {
		return err
	}
	return nil
}

func (s *memStore) BeginTx(ctx context.Context) (Tx, error) {
	return &memTx{
		store:    s,
		wallets:  map[string]*models.Wallet{},
		topUps:   map[string]*models.TopUp{},
		escrows:  map[string]*models.Escrow{},
		accounts: map[string]*models.LedgerAccount{},
	}, nil
}

func (s *memStore) GetWallet(ctx context.Context, walletID string) (*models.Wallet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	w, ok := s.wallets[walletID]
	if !ok {
		return nil, fmt.Errorf("%w: wallet %s", models.ErrNotFound, walletID)
	}
	cp := *w
	return &cp, nil
}

func (s *memStore) GetWalletByOwner(ctx context.Context, ownerID, currency string) (*models.Wallet, error) {
	s.mu.Lock()
	id, ok := s.walletByOwner[ownerKey(ownerID, currency)]
	s.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("%w: wallet for owner %s", models.ErrNotFound, ownerID)
	}
	return s.GetWallet(ctx, id)
}

func (s *memStore) CreateWallet(ctx context.Context, w *models.Wallet) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := ownerKey(w.OwnerID, w.Currency)
	if _, ok := s.walletByOwner[key]; ok {
		return fmt.Errorf("%w: wallet for owner %s in %s", models.ErrAlreadyExists, w.OwnerID, w.Currency)
	}
	cp := *w
	s.wallets[w.ID] = &cp
	s.walletByOwner[key] = w.ID
	return nil
}

func (s *memStore) WalletExists(ctx context.Context, walletID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.wallets[walletID]
	return ok, nil
}

func (s *memStore) SetWalletStatus(ctx context.Context, walletID string, status models.WalletStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	w, ok := s.wallets[walletID]
	if !ok {
		return fmt.Errorf("%w: wallet %s", models.ErrNotFound, walletID)
	}
	w.Status = status
	return nil
}

func (s *memStore) ListTransactions(ctx context.Context, walletID string, f postgresrepo.TransactionFilter) ([]models.WalletTransaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []models.WalletTransaction{}
	for _, tx := range s.transactions {
		if tx.WalletID != walletID {
			continue
		}
		if f.Type != "" && tx.Type != f.Type {
			continue
		}
		if f.From != nil && tx.CreatedAt.Before(*f.From) {
			continue
		}
		if f.To != nil && !tx.CreatedAt.Before(*f.To) {
			continue
		}
		out = append(out, tx)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func (s *memStore) GetTopUp(ctx context.Context, topUpID string) (*models.TopUp, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.topUps[topUpID]
	if !ok {
		return nil, fmt.Errorf("%w: top-up %s", models.ErrNotFound, topUpID)
	}
	cp := *t
	return &cp, nil
}

func (s *memStore) GetTopUpByExternalReference(ctx context.Context, ref string) (*models.TopUp, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range s.topUps {
		if t.ExternalReference != nil && *t.ExternalReference == ref {
			cp := *t
			return &cp, nil
		}
	}
	return nil, fmt.Errorf("%w: top-up with reference %s", models.ErrNotFound, ref)
}

func (s *memStore) ListTopUpsByUser(ctx context.Context, userID string, limit int) ([]models.TopUp, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []models.TopUp{}
	for _, t := range s.topUps {
		if t.UserID == userID {
			out = append(out, *t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RequestedAt.After(out[j].RequestedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *memStore) GetEscrow(ctx context.Context, escrowID string) (*models.Escrow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.escrows[escrowID]
	if !ok {
		return nil, fmt.Errorf("%w: escrow %s", models.ErrNotFound, escrowID)
	}
	cp := *e
	return &cp, nil
}

func (s *memStore) ListEscrowsByParty(ctx context.Context, userID string, limit int) ([]models.Escrow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []models.Escrow{}
	for _, e := range s.escrows {
		if e.BuyerID == userID || e.SellerID == userID {
			out = append(out, *e)
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *memStore) GetLedgerAccountByCode(ctx context.Context, code, currency string) (*models.LedgerAccount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[accountKey(code, currency)]
	if !ok {
		return nil, fmt.Errorf("%w: ledger account %s", models.ErrNotFound, code)
	}
	cp := *a
	return &cp, nil
}

func (s *memStore) DerivedAccountBalance(ctx context.Context, accountID string) (decimal.Decimal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	balance := decimal.Zero
	for _, e := range s.entries {
		if e.DebitAccountID == accountID {
			balance = balance.Add(e.Amount.Amount)
		}
		if e.CreditAccountID == accountID {
			balance = balance.Sub(e.Amount.Amount)
		}
	}
	return balance, nil
}

func (s *memStore) ListLedgerEntriesByReference(ctx context.Context, referenceType, referenceID string) ([]models.LedgerEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []models.LedgerEntry{}
	for _, e := range s.entries {
		if e.ReferenceType != nil && *e.ReferenceType == referenceType &&
			e.ReferenceID != nil && *e.ReferenceID == referenceID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (s *memStore) ExpireStaleLocks(ctx context.Context, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, l := range s.locks {
		if l.Status == models.TopupLockLocked && l.IsExpired(now) {
			l.Status = models.TopupLockExpired
			n++
		}
	}
	return n, nil
}

// memTx stages mutations until Commit.
type memTx struct {
	store *memStore
	done  bool

	wallets      map[string]*models.Wallet
	transactions []models.WalletTransaction
	topUps       map[string]*models.TopUp
	escrows      map[string]*models.Escrow
	accounts     map[string]*models.LedgerAccount
	entries      []models.LedgerEntry
	newLocks     []*models.WalletTopupLock
	lockUsers    []string
}

func (t *memTx) Commit() error {
	if t.done {
		return fmt.Errorf("transaction already finished")
	}
	t.done = true

	s := t.store
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, w := range t.wallets {
		cp := *w
		s.wallets[id] = &cp
		s.walletByOwner[ownerKey(w.OwnerID, w.Currency)] = id
	}
	s.transactions = append(s.transactions, t.transactions...)
	for id, tu := range t.topUps {
		cp := *tu
		s.topUps[id] = &cp
	}
	for id, e := range t.escrows {
		cp := *e
		s.escrows[id] = &cp
	}
	for key, a := range t.accounts {
		cp := *a
		s.accounts[key] = &cp
	}
	s.entries = append(s.entries, t.entries...)
	s.locks = append(s.locks, t.newLocks...)
	now := time.Now().UTC()
	for _, user := range t.lockUsers {
		for _, l := range s.locks {
			if l.UserID == user && l.Status == models.TopupLockLocked {
				l.Status = models.TopupLockCompleted
				l.CompletedAt = &now
			}
		}
	}
	return nil
}

func (t *memTx) Rollback() error {
	if t.done {
		return fmt.Errorf("transaction already finished")
	}
	t.done = true
	return nil
}

func (t *memTx) LockWallet(ctx context.Context, walletID string) (*models.Wallet, error) {
	if err := t.store.failAt("LockWallet"); err != nil {
		return nil, err
	}
	t.store.mu.Lock()
	if t.store.conflicts > 0 {
		t.store.conflicts--
		t.store.mu.Unlock()
		return nil, fmt.Errorf("%w: wallet %s", models.ErrConcurrencyConflict, walletID)
	}
	t.store.mu.Unlock()

	if w, ok := t.wallets[walletID]; ok {
		return w, nil
	}
	t.store.mu.Lock()
	w, ok := t.store.wallets[walletID]
	t.store.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("%w: wallet %s", models.ErrNotFound, walletID)
	}
	cp := *w
	t.wallets[walletID] = &cp
	return &cp, nil
}

func (t *memTx) LockWallets(ctx context.Context, walletIDs ...string) (map[string]*models.Wallet, error) {
	ids := append([]string(nil), walletIDs...)
	sort.Strings(ids)
	out := map[string]*models.Wallet{}
	for _, id := range ids {
		w, err := t.LockWallet(ctx, id)
		if err != nil {
			return nil, err
		}
		out[id] = w
	}
	return out, nil
}

func (t *memTx) GetWalletIDByOwner(ctx context.Context, ownerID, currency string) (string, error) {
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	id, ok := t.store.walletByOwner[ownerKey(ownerID, currency)]
	if !ok {
		return "", fmt.Errorf("%w: wallet for owner %s", models.ErrNotFound, ownerID)
	}
	return id, nil
}

func (t *memTx) UpdateWalletBalances(ctx context.Context, w *models.Wallet) error {
	if err := t.store.failAt("UpdateWalletBalances"); err != nil {
		return err
	}
	cp := *w
	t.wallets[w.ID] = &cp
	return nil
}

func (t *memTx) InsertTransaction(ctx context.Context, wtx *models.WalletTransaction) error {
	if err := t.store.failAt("InsertTransaction"); err != nil {
		return err
	}
	t.transactions = append(t.transactions, *wtx)
	return nil
}

func (t *memTx) GetOrCreateLedgerAccount(ctx context.Context, kind models.LedgerAccountKind, code, currency, userID string) (*models.LedgerAccount, error) {
	key := accountKey(code, currency)
	if a, ok := t.accounts[key]; ok {
		return a, nil
	}
	t.store.mu.Lock()
	a, ok := t.store.accounts[key]
	t.store.mu.Unlock()
	if ok {
		cp := *a
		t.accounts[key] = &cp
		return &cp, nil
	}
	acct, err := models.NewLedgerAccount(kind, code, currency, userID)
	if err != nil {
		return nil, err
	}
	t.accounts[key] = acct
	return acct, nil
}

func (t *memTx) InsertLedgerEntry(ctx context.Context, e *models.LedgerEntry) error {
	if err := t.store.failAt("InsertLedgerEntry"); err != nil {
		return err
	}
	t.entries = append(t.entries, *e)
	return nil
}

func (t *memTx) InsertTopUp(ctx context.Context, tu *models.TopUp) error {
	if err := t.store.failAt("InsertTopUp"); err != nil {
		return err
	}
	cp := *tu
	t.topUps[tu.ID] = &cp
	return nil
}

func (t *memTx) LockTopUp(ctx context.Context, topUpID string) (*models.TopUp, error) {
	if tu, ok := t.topUps[topUpID]; ok {
		return tu, nil
	}
	t.store.mu.Lock()
	tu, ok := t.store.topUps[topUpID]
	t.store.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("%w: top-up %s", models.ErrNotFound, topUpID)
	}
	cp := *tu
	t.topUps[topUpID] = &cp
	return &cp, nil
}

func (t *memTx) UpdateTopUp(ctx context.Context, tu *models.TopUp) error {
	if err := t.store.failAt("UpdateTopUp"); err != nil {
		return err
	}
	if tu.ExternalReference != nil {
		t.store.mu.Lock()
		for id, other := range t.store.topUps {
			if id != tu.ID && other.ExternalReference != nil && *other.ExternalReference == *tu.ExternalReference {
				t.store.mu.Unlock()
				return fmt.Errorf("%w: top-up external reference", models.ErrDuplicateReference)
			}
		}
		t.store.mu.Unlock()
	}
	cp := *tu
	t.topUps[tu.ID] = &cp
	return nil
}

func (t *memTx) AcquireTopupLock(ctx context.Context, lock *models.WalletTopupLock) error {
	if err := t.store.failAt("AcquireTopupLock"); err != nil {
		return err
	}
	now := lock.LockedAt
	t.store.mu.Lock()
	for _, l := range t.store.locks {
		if l.UserID == lock.UserID && l.Blocks(now) {
			t.store.mu.Unlock()
			return fmt.Errorf("%w: top-up already in progress for user %s", models.ErrAlreadyExists, lock.UserID)
		}
		if l.UserID == lock.UserID && l.Status == models.TopupLockLocked && l.IsExpired(now) {
			l.Status = models.TopupLockExpired
		}
	}
	t.store.mu.Unlock()
	cp := *lock
	t.newLocks = append(t.newLocks, &cp)
	return nil
}

func (t *memTx) CompleteTopupLock(ctx context.Context, userID string, now time.Time) error {
	t.lockUsers = append(t.lockUsers, userID)
	return nil
}

func (t *memTx) InsertEscrow(ctx context.Context, e *models.Escrow) error {
	if err := t.store.failAt("InsertEscrow"); err != nil {
		return err
	}
	cp := *e
	t.escrows[e.ID] = &cp
	return nil
}

func (t *memTx) LockEscrow(ctx context.Context, escrowID string) (*models.Escrow, error) {
	if e, ok := t.escrows[escrowID]; ok {
		return e, nil
	}
	t.store.mu.Lock()
	e, ok := t.store.escrows[escrowID]
	t.store.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("%w: escrow %s", models.ErrNotFound, escrowID)
	}
	cp := *e
	t.escrows[escrowID] = &cp
	return &cp, nil
}

func (t *memTx) UpdateEscrow(ctx context.Context, e *models.Escrow) error {
	if err := t.store.failAt("UpdateEscrow"); err != nil {
		return err
	}
	cp := *e
	t.escrows[e.ID] = &cp
	return nil
}
