package services

import (
	"errors"
)

// Ledger error taxonomy. Callers match with errors.Is; the HTTP surface maps
// these to status codes. ErrVersionConflict is transient and retried inside
// the engine; everything else is surfaced as-is.
var (
	ErrAccountNotFound   = errors.New("account not found")
	ErrAccountClosed     = errors.New("account closed")
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrVersionConflict   = errors.New("account version conflict")
	ErrConflict          = errors.New("conflict: retries exhausted")
	ErrReferenceNotFound = errors.New("reference not found")
	ErrAlreadyReversed   = errors.New("reference already reversed")
	ErrNotReversible     = errors.New("reference not reversible")
	ErrInvalidRequest    = errors.New("invalid request")
	ErrUnavailable       = errors.New("storage unavailable")
)
