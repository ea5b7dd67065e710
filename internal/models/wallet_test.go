package models

import (
	"errors"
	"testing"
)

func newTestWallet(t *testing.T, balance string) *Wallet {
	t.Helper()
	w, err := NewWallet("user-1", "PKR")
	if err != nil {
		t.Fatalf("NewWallet: %v", err)
	}
	if balance != "0" {
		if _, err := w.Credit(MustMoney(balance, "PKR"), "seed"); err != nil {
			t.Fatalf("seed credit: %v", err)
		}
	}
	return w
}

func TestNewWallet(t *testing.T) {
	w, err := NewWallet("user-1", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if w.Currency != "PKR" {
		t.Fatalf("expected default currency PKR, got %s", w.Currency)
	}
	if !w.Balance.IsZero() || !w.FrozenBalance.IsZero() {
		t.Fatalf("expected zero balances, got %s / %s", w.Balance, w.FrozenBalance)
	}
	if !w.IsActive() {
		t.Fatalf("expected new wallet to be active")
	}

	if _, err := NewWallet("", "PKR"); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation for empty owner, got %v", err)
	}
}

func TestWalletCreditDebit(t *testing.T) {
	w := newTestWallet(t, "0")

	tx, err := w.Credit(MustMoney("500", "PKR"), "top-up")
	if err != nil {
		t.Fatalf("credit: %v", err)
	}
	if tx.Type != TransactionTypeCredit || tx.WalletID != w.ID {
		t.Fatalf("unexpected transaction: %+v", tx)
	}
	if !w.SpendableBalance().Equal(MustMoney("500", "PKR")) {
		t.Fatalf("expected balance 500, got %s", w.SpendableBalance())
	}

	if _, err := w.Debit(MustMoney("200", "PKR"), "purchase"); err != nil {
		t.Fatalf("debit: %v", err)
	}
	if !w.SpendableBalance().Equal(MustMoney("300", "PKR")) {
		t.Fatalf("expected balance 300, got %s", w.SpendableBalance())
	}
}

func TestWalletDebitInsufficientFunds(t *testing.T) {
	w := newTestWallet(t, "100")

	_, err := w.Debit(MustMoney("100.01", "PKR"), "too much")
	if !errors.Is(err, ErrInsufficientFunds) {
		t.Fatalf("expected ErrInsufficientFunds, got %v", err)
	}
	// Failed mutation must leave the wallet untouched.
	if !w.SpendableBalance().Equal(MustMoney("100", "PKR")) {
		t.Fatalf("balance changed on failed debit: %s", w.SpendableBalance())
	}
}

func TestWalletFreezeUnfreezeRoundTrip(t *testing.T) {
	w := newTestWallet(t, "1000")

	if _, err := w.Freeze(MustMoney("400", "PKR"), "escrow hold"); err != nil {
		t.Fatalf("freeze: %v", err)
	}
	if !w.SpendableBalance().Equal(MustMoney("600", "PKR")) {
		t.Fatalf("expected spendable 600, got %s", w.SpendableBalance())
	}
	if !w.Frozen().Equal(MustMoney("400", "PKR")) {
		t.Fatalf("expected frozen 400, got %s", w.Frozen())
	}

	// Frozen funds are not spendable.
	if w.HasSufficientFunds(MustMoney("700", "PKR")) {
		t.Fatalf("frozen funds counted as spendable")
	}

	if _, err := w.Unfreeze(MustMoney("400", "PKR"), "escrow refund"); err != nil {
		t.Fatalf("unfreeze: %v", err)
	}
	if !w.SpendableBalance().Equal(MustMoney("1000", "PKR")) {
		t.Fatalf("expected spendable restored to 1000, got %s", w.SpendableBalance())
	}
	if !w.Frozen().IsZero() {
		t.Fatalf("expected frozen 0, got %s", w.Frozen())
	}
}

func TestWalletFreezeGuards(t *testing.T) {
	w := newTestWallet(t, "100")

	if _, err := w.Freeze(MustMoney("150", "PKR"), "hold"); !errors.Is(err, ErrInsufficientFunds) {
		t.Fatalf("expected ErrInsufficientFunds, got %v", err)
	}
	if _, err := w.Unfreeze(MustMoney("1", "PKR"), "nothing held"); !errors.Is(err, ErrInsufficientFrozenFunds) {
		t.Fatalf("expected ErrInsufficientFrozenFunds, got %v", err)
	}
	if _, err := w.FrozenToDebit(MustMoney("1", "PKR"), "nothing held"); !errors.Is(err, ErrInsufficientFrozenFunds) {
		t.Fatalf("expected ErrInsufficientFrozenFunds, got %v", err)
	}
}

func TestWalletFrozenToDebit(t *testing.T) {
	w := newTestWallet(t, "1000")
	if _, err := w.Freeze(MustMoney("300", "PKR"), "hold"); err != nil {
		t.Fatalf("freeze: %v", err)
	}

	tx, err := w.FrozenToDebit(MustMoney("300", "PKR"), "escrow release")
	if err != nil {
		t.Fatalf("frozen to debit: %v", err)
	}
	if tx.Type != TransactionTypeFrozenToDebit {
		t.Fatalf("unexpected type %s", tx.Type)
	}
	if !w.Frozen().IsZero() {
		t.Fatalf("expected frozen 0, got %s", w.Frozen())
	}
	// Spendable balance must be unaffected by a frozen-side debit.
	if !w.SpendableBalance().Equal(MustMoney("700", "PKR")) {
		t.Fatalf("expected spendable 700, got %s", w.SpendableBalance())
	}
}

func TestWalletMutationValidation(t *testing.T) {
	w := newTestWallet(t, "100")

	if _, err := w.Credit(MustMoney("0", "PKR"), "zero"); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation for zero amount, got %v", err)
	}
	if _, err := w.Credit(MustMoney("-5", "PKR"), "negative"); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation for negative amount, got %v", err)
	}
	if _, err := w.Credit(MustMoney("5", "USD"), "wrong currency"); !errors.Is(err, ErrCurrencyMismatch) {
		t.Fatalf("expected ErrCurrencyMismatch, got %v", err)
	}

	w.Deactivate()
	if _, err := w.Credit(MustMoney("5", "PKR"), "inactive"); !errors.Is(err, ErrWalletInactive) {
		t.Fatalf("expected ErrWalletInactive, got %v", err)
	}
	w.Activate()
	if _, err := w.Credit(MustMoney("5", "PKR"), "reactivated"); err != nil {
		t.Fatalf("credit after reactivate: %v", err)
	}
}

func TestTransactionTypeDirection(t *testing.T) {
	tests := []struct {
		txType TransactionType
		want   Direction
	}{
		{TransactionTypeCredit, DirectionIn},
		{TransactionTypeTopUp, DirectionIn},
		{TransactionTypeRefund, DirectionIn},
		{TransactionTypeDebit, DirectionOut},
		{TransactionTypePayment, DirectionOut},
		{TransactionTypeWithdrawal, DirectionOut},
		{TransactionTypeFreeze, DirectionFreeze},
		{TransactionTypeUnfreeze, DirectionUnfreeze},
		{TransactionTypeFrozenToDebit, DirectionFrozenOut},
	}

	for _, tt := range tests {
		got, err := tt.txType.Direction()
		if err != nil {
			t.Fatalf("%s: unexpected error: %v", tt.txType, err)
		}
		if got != tt.want {
			t.Fatalf("%s: expected direction %d, got %d", tt.txType, tt.want, got)
		}
	}

	if _, err := TransactionType("BOGUS").Direction(); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation for unknown type, got %v", err)
	}
}
