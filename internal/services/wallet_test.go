package services

import (
	"context"
	"errors"
	"io"
	"testing"

	"ledger-service/internal/models"
	"ledger-service/internal/repositories/postgresrepo"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

func newTestService(t *testing.T) (*WalletLedgerService, *memStore) {
	t.Helper()
	store := newMemStore()
	log := logrus.New()
	log.SetOutput(io.Discard)
	return NewWalletLedgerService(store, nil, nil, log), store
}

func mustCreateWallet(t *testing.T, svc *WalletLedgerService, ownerID string) *models.Wallet {
	t.Helper()
	w, err := svc.CreateWallet(context.Background(), ownerID, "PKR")
	if err != nil {
		t.Fatalf("CreateWallet(%s): %v", ownerID, err)
	}
	return w
}

func mustCredit(t *testing.T, svc *WalletLedgerService, walletID, amount string) {
	t.Helper()
	if _, err := svc.CreditWallet(context.Background(), walletID, models.MustMoney(amount, "PKR"), "seed"); err != nil {
		t.Fatalf("CreditWallet: %v", err)
	}
}

// assertBookBalanced folds every account's entries; across the whole book
// the derived balances must sum to zero.
func assertBookBalanced(t *testing.T, store *memStore) {
	t.Helper()
	total := decimal.Zero
	for _, a := range store.accounts {
		derived, err := store.DerivedAccountBalance(context.Background(), a.ID)
		if err != nil {
			t.Fatalf("DerivedAccountBalance: %v", err)
		}
		total = total.Add(derived)
	}
	if !total.IsZero() {
		t.Fatalf("book out of balance by %s", total)
	}
}

func TestCreateWallet(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	w := mustCreateWallet(t, svc, "user-1")
	if w.Currency != "PKR" || !w.IsActive() {
		t.Fatalf("unexpected wallet: %+v", w)
	}

	// One wallet per owner and currency.
	if _, err := svc.CreateWallet(ctx, "user-1", "PKR"); !errors.Is(err, models.ErrAlreadyExists) {
		t.Fatalf("expected ErrAlreadyExists, got %v", err)
	}
	if _, err := svc.CreateWallet(ctx, "user-1", "USD"); err != nil {
		t.Fatalf("second currency must be allowed: %v", err)
	}
}

func TestCreditAndDebitWallet(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()
	w := mustCreateWallet(t, svc, "user-1")

	if _, err := svc.CreditWallet(ctx, w.ID, models.MustMoney("500", "PKR"), "promo"); err != nil {
		t.Fatalf("CreditWallet: %v", err)
	}
	if _, err := svc.DebitWallet(ctx, w.ID, models.MustMoney("120", "PKR"), "purchase"); err != nil {
		t.Fatalf("DebitWallet: %v", err)
	}

	got, err := svc.GetWallet(ctx, w.ID)
	if err != nil {
		t.Fatalf("GetWallet: %v", err)
	}
	if !got.SpendableBalance().Equal(models.MustMoney("380", "PKR")) {
		t.Fatalf("expected balance 380, got %s", got.SpendableBalance())
	}

	// Every mutation appended exactly one transaction and one entry.
	if len(store.transactions) != 2 {
		t.Fatalf("expected 2 transactions, got %d", len(store.transactions))
	}
	if len(store.entries) != 2 {
		t.Fatalf("expected 2 ledger entries, got %d", len(store.entries))
	}
	assertBookBalanced(t, store)
}

func TestDebitInsufficientFundsLeavesNoTrace(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()
	w := mustCreateWallet(t, svc, "user-1")
	mustCredit(t, svc, w.ID, "100")

	if _, err := svc.DebitWallet(ctx, w.ID, models.MustMoney("100.01", "PKR"), "too much"); !errors.Is(err, models.ErrInsufficientFunds) {
		t.Fatalf("expected ErrInsufficientFunds, got %v", err)
	}

	got, _ := svc.GetWallet(ctx, w.ID)
	if !got.SpendableBalance().Equal(models.MustMoney("100", "PKR")) {
		t.Fatalf("balance changed on failed debit: %s", got.SpendableBalance())
	}
	if len(store.transactions) != 1 {
		t.Fatalf("failed debit left a transaction row")
	}
}

func TestCreditRollsBackWhenLedgerWriteFails(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()
	w := mustCreateWallet(t, svc, "user-1")
	mustCredit(t, svc, w.ID, "100")

	boom := errors.New("ledger write failed")
	store.failures["InsertLedgerEntry"] = boom

	_, err := svc.CreditWallet(ctx, w.ID, models.MustMoney("50", "PKR"), "doomed")
	if !errors.Is(err, boom) {
		t.Fatalf("expected injected error, got %v", err)
	}

	// Nothing from the aborted attempt may be visible.
	got, _ := svc.GetWallet(ctx, w.ID)
	if !got.SpendableBalance().Equal(models.MustMoney("100", "PKR")) {
		t.Fatalf("partial commit: balance %s", got.SpendableBalance())
	}
	if len(store.transactions) != 1 {
		t.Fatalf("partial commit: %d transactions", len(store.transactions))
	}
	if len(store.entries) != 1 {
		t.Fatalf("partial commit: %d entries", len(store.entries))
	}
}

func TestCreditRetriesOnLockConflict(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()
	w := mustCreateWallet(t, svc, "user-1")

	store.conflicts = 2
	if _, err := svc.CreditWallet(ctx, w.ID, models.MustMoney("50", "PKR"), "contended"); err != nil {
		t.Fatalf("expected retry to absorb conflicts, got %v", err)
	}

	got, _ := svc.GetWallet(ctx, w.ID)
	if !got.SpendableBalance().Equal(models.MustMoney("50", "PKR")) {
		t.Fatalf("expected balance 50, got %s", got.SpendableBalance())
	}
}

func TestCreditGivesUpAfterRepeatedConflicts(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()
	w := mustCreateWallet(t, svc, "user-1")

	store.conflicts = 100
	if _, err := svc.CreditWallet(ctx, w.ID, models.MustMoney("50", "PKR"), "contended"); !errors.Is(err, models.ErrConcurrencyConflict) {
		t.Fatalf("expected ErrConcurrencyConflict after retries, got %v", err)
	}
}

func TestHasSufficientFunds(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	w := mustCreateWallet(t, svc, "user-1")
	mustCredit(t, svc, w.ID, "100")

	ok, err := svc.HasSufficientFunds(ctx, w.ID, models.MustMoney("100", "PKR"))
	if err != nil || !ok {
		t.Fatalf("expected sufficient funds, got ok=%v err=%v", ok, err)
	}
	ok, err = svc.HasSufficientFunds(ctx, w.ID, models.MustMoney("100.01", "PKR"))
	if err != nil || ok {
		t.Fatalf("expected insufficient funds, got ok=%v err=%v", ok, err)
	}
}

func TestSetWalletStatus(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	w := mustCreateWallet(t, svc, "user-1")

	if err := svc.SetWalletStatus(ctx, w.ID, models.WalletStatusInactive); err != nil {
		t.Fatalf("SetWalletStatus: %v", err)
	}
	if _, err := svc.CreditWallet(ctx, w.ID, models.MustMoney("10", "PKR"), "blocked"); !errors.Is(err, models.ErrWalletInactive) {
		t.Fatalf("expected ErrWalletInactive, got %v", err)
	}

	if err := svc.SetWalletStatus(ctx, w.ID, models.WalletStatus("FROZEN")); !errors.Is(err, models.ErrValidation) {
		t.Fatalf("expected ErrValidation for unknown status, got %v", err)
	}
}

func TestGetTransactionHistory(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	w := mustCreateWallet(t, svc, "user-1")
	mustCredit(t, svc, w.ID, "100")
	if _, err := svc.DebitWallet(ctx, w.ID, models.MustMoney("30", "PKR"), "spend"); err != nil {
		t.Fatalf("DebitWallet: %v", err)
	}

	all, err := svc.GetTransactionHistory(ctx, w.ID, postgresrepo.TransactionFilter{})
	if err != nil {
		t.Fatalf("GetTransactionHistory: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("expected 2 transactions, got %d", len(all))
	}

	debits, err := svc.GetTransactionHistory(ctx, w.ID, postgresrepo.TransactionFilter{Type: models.TransactionTypeDebit})
	if err != nil {
		t.Fatalf("GetTransactionHistory: %v", err)
	}
	if len(debits) != 1 || debits[0].Type != models.TransactionTypeDebit {
		t.Fatalf("type filter failed: %+v", debits)
	}

	if _, err := svc.GetTransactionHistory(ctx, "missing", postgresrepo.TransactionFilter{}); !errors.Is(err, models.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for missing wallet, got %v", err)
	}
}

func TestReconcileWallet(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	w := mustCreateWallet(t, svc, "user-1")

	// Fresh wallet: no entries, zero balance, still balanced.
	report, err := svc.ReconcileWallet(ctx, w.ID)
	if err != nil {
		t.Fatalf("ReconcileWallet: %v", err)
	}
	if !report.Balanced {
		t.Fatalf("fresh wallet not balanced: %+v", report)
	}

	mustCredit(t, svc, w.ID, "250")
	if _, err := svc.DebitWallet(ctx, w.ID, models.MustMoney("75", "PKR"), "spend"); err != nil {
		t.Fatalf("DebitWallet: %v", err)
	}

	report, err = svc.ReconcileWallet(ctx, w.ID)
	if err != nil {
		t.Fatalf("ReconcileWallet: %v", err)
	}
	if !report.Balanced {
		t.Fatalf("wallet drifted from ledger: stored %s derived %s", report.StoredBalance, report.DerivedBalance)
	}
	if !report.DerivedBalance.Equal(decimal.RequireFromString("175")) {
		t.Fatalf("expected derived 175, got %s", report.DerivedBalance)
	}
}
