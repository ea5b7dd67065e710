package models

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
)

func TestNewMoney(t *testing.T) {
	tests := []struct {
		name         string
		currency     string
		wantCurrency string
		wantErr      error
	}{
		{name: "explicit currency", currency: "USD", wantCurrency: "USD"},
		{name: "lowercase normalized", currency: "pkr", wantCurrency: "PKR"},
		{name: "empty defaults", currency: "", wantCurrency: "PKR"},
		{name: "padded", currency: "  eur ", wantCurrency: "EUR"},
		{name: "too short", currency: "PK", wantErr: ErrValidation},
		{name: "too long", currency: "RUPEES", wantErr: ErrValidation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := NewMoney(decimal.NewFromInt(10), tt.currency)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("expected %v, got %v", tt.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if m.Currency != tt.wantCurrency {
				t.Fatalf("expected currency %s, got %s", tt.wantCurrency, m.Currency)
			}
		})
	}
}

func TestMoneyArithmetic(t *testing.T) {
	a := MustMoney("100.50", "PKR")
	b := MustMoney("25.25", "PKR")

	sum, err := a.Add(b)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sum.String() != "125.75 PKR" {
		t.Fatalf("expected 125.75 PKR, got %s", sum)
	}

	diff, err := a.Sub(b)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if diff.String() != "75.25 PKR" {
		t.Fatalf("expected 75.25 PKR, got %s", diff)
	}
}

func TestMoneyCurrencyMismatch(t *testing.T) {
	a := MustMoney("10", "PKR")
	b := MustMoney("10", "USD")

	if _, err := a.Add(b); !errors.Is(err, ErrCurrencyMismatch) {
		t.Fatalf("expected ErrCurrencyMismatch, got %v", err)
	}
	if _, err := a.Sub(b); !errors.Is(err, ErrCurrencyMismatch) {
		t.Fatalf("expected ErrCurrencyMismatch, got %v", err)
	}
	if _, err := a.Cmp(b); !errors.Is(err, ErrCurrencyMismatch) {
		t.Fatalf("expected ErrCurrencyMismatch, got %v", err)
	}
}

func TestMoneyMulRate(t *testing.T) {
	tests := []struct {
		amount string
		rate   string
		want   string
	}{
		{amount: "1000", rate: "0.05", want: "50.00 PKR"},
		{amount: "99.99", rate: "0.05", want: "5.00 PKR"},
		{amount: "0.01", rate: "0.05", want: "0.00 PKR"},
		{amount: "333.33", rate: "0.1", want: "33.33 PKR"},
	}

	for _, tt := range tests {
		m := MustMoney(tt.amount, "PKR")
		got := m.MulRate(decimal.RequireFromString(tt.rate))
		if got.String() != tt.want {
			t.Fatalf("%s * %s: expected %s, got %s", tt.amount, tt.rate, tt.want, got)
		}
	}
}

func TestMoneyNoFloatDrift(t *testing.T) {
	// 0.1 + 0.2 must be exactly 0.3, which float64 cannot represent.
	sum, err := MustMoney("0.1", "PKR").Add(MustMoney("0.2", "PKR"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !sum.Equal(MustMoney("0.3", "PKR")) {
		t.Fatalf("expected exactly 0.3, got %s", sum.Amount)
	}
}
