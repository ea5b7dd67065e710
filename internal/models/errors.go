package models

// DomainError carries a stable machine-readable code alongside the
// human-readable message. Call sites wrap the sentinels below with
// fmt.Errorf("...: %w", err) and match them with errors.Is.
type DomainError struct {
	Code    string
	Message string
}

func (e *DomainError) Error() string {
	return e.Message
}

var (
	ErrValidation              = &DomainError{Code: "VALIDATION_ERROR", Message: "validation error"}
	ErrInsufficientFunds       = &DomainError{Code: "INSUFFICIENT_FUNDS", Message: "insufficient funds"}
	ErrInsufficientFrozenFunds = &DomainError{Code: "INSUFFICIENT_FROZEN_FUNDS", Message: "insufficient frozen funds"}
	ErrCurrencyMismatch        = &DomainError{Code: "CURRENCY_MISMATCH", Message: "currency mismatch"}
	ErrDuplicateReference      = &DomainError{Code: "DUPLICATE_REFERENCE", Message: "duplicate external reference"}
	ErrConcurrencyConflict     = &DomainError{Code: "CONCURRENCY_CONFLICT", Message: "concurrent modification, retry"}
	ErrInvalidStateTransition  = &DomainError{Code: "INVALID_STATE_TRANSITION", Message: "invalid state transition"}
	ErrNotFound                = &DomainError{Code: "NOT_FOUND", Message: "not found"}
	ErrAlreadyExists           = &DomainError{Code: "ALREADY_EXISTS", Message: "already exists"}
	ErrInvalidEntry            = &DomainError{Code: "INVALID_ENTRY", Message: "invalid ledger entry"}
	ErrWalletInactive          = &DomainError{Code: "WALLET_INACTIVE", Message: "wallet is not active"}
)
