package ledger

import "errors"

var (
	ErrInsufficientFunds    = errors.New("insufficient funds")
	ErrInsufficientHoldings = errors.New("insufficient holdings")
	ErrLockTimeout          = errors.New("wallet lock timeout")
	ErrWalletNotFound       = errors.New("wallet not found")
)
