package services

import (
	"context"

	"ledger-service/internal/models"
)

// userEntryDirection says which way a user-facing movement crosses the
// gateway clearing account.
type userEntryDirection int

const (
	// directionIntoUser: funds enter the user's liability account
	// (top-up, credit, refund).
	directionIntoUser userEntryDirection = iota
	// directionOutOfUser: funds leave it (debit, payment, withdrawal).
	directionOutOfUser
)

func (s *WalletLedgerService) userAccount(ctx context.Context, tx Tx, w *models.Wallet) (*models.LedgerAccount, error) {
	return tx.GetOrCreateLedgerAccount(ctx,
		models.LedgerAccountLiability, models.UserWalletLedgerCode(w.ID), w.Currency, w.OwnerID)
}

func (s *WalletLedgerService) gatewayClearingAccount(ctx context.Context, tx Tx, currency string) (*models.LedgerAccount, error) {
	return tx.GetOrCreateLedgerAccount(ctx,
		models.LedgerAccountAsset, models.LedgerCodeGatewayClearing, currency, "")
}

func (s *WalletLedgerService) escrowHoldingAccount(ctx context.Context, tx Tx, currency string) (*models.LedgerAccount, error) {
	return tx.GetOrCreateLedgerAccount(ctx,
		models.LedgerAccountLiability, models.LedgerCodeEscrowHolding, currency, "")
}

func (s *WalletLedgerService) feeRevenueAccount(ctx context.Context, tx Tx, currency string) (*models.LedgerAccount, error) {
	return tx.GetOrCreateLedgerAccount(ctx,
		models.LedgerAccountRevenue, models.LedgerCodePlatformFeeRevenue, currency, "")
}

// postEntry builds, validates and appends one double-entry record tied to
// the given domain reference.
func (s *WalletLedgerService) postEntry(ctx context.Context, tx Tx, debit, credit *models.LedgerAccount, amount models.Money, referenceType, referenceID, description string) error {
	entry, err := models.NewLedgerEntry(debit.ID, credit.ID, amount, description)
	if err != nil {
		return err
	}
	entry.SetReference(referenceType, referenceID)
	return tx.InsertLedgerEntry(ctx, entry)
}

// postUserEntry writes the balancing entry for a plain credit or debit:
// the counter-account is always gateway clearing.
func (s *WalletLedgerService) postUserEntry(ctx context.Context, tx Tx, w *models.Wallet, wtx *models.WalletTransaction, dir userEntryDirection) error {
	userAcct, err := s.userAccount(ctx, tx, w)
	if err != nil {
		return err
	}
	clearingAcct, err := s.gatewayClearingAccount(ctx, tx, w.Currency)
	if err != nil {
		return err
	}

	debit, credit := clearingAcct, userAcct
	if dir == directionOutOfUser {
		debit, credit = userAcct, clearingAcct
	}

	refType, refID := "", ""
	if wtx.ReferenceType != nil && wtx.ReferenceID != nil {
		refType, refID = *wtx.ReferenceType, *wtx.ReferenceID
	}
	return s.postEntry(ctx, tx, debit, credit, wtx.Amount, refType, refID, wtx.Reason)
}
