package ledger

import (
	"context"
	"time"
)

// Tx is the mutation surface available while a wallet's row lock is held.
// Implementations stage writes against a single database transaction (or an
// equivalent in-memory staging area) and apply them atomically on commit.
type Tx interface {
	// Wallet returns the locked wallet's current row.
	Wallet(ctx context.Context) (Wallet, error)
	// Holding returns the locked wallet's position in a ticker, or nil if
	// no row exists. When it exists the holding row is locked too.
	Holding(ctx context.Context, ticker string) (*Holding, error)
	// UpdateCash overwrites the wallet's cash balance.
	UpdateCash(ctx context.Context, cashCents int64) error
	// UpsertHolding creates or replaces the wallet's position in a ticker.
	UpsertHolding(ctx context.Context, h Holding) error
	// DeleteHolding removes the wallet's position row for a ticker.
	DeleteHolding(ctx context.Context, ticker string) error
	// AppendTransaction appends an immutable trade record and fills in its
	// ID and CreatedAt.
	AppendTransaction(ctx context.Context, tx *Transaction) error
}

// Store is the persistence boundary for wallets. Reads outside WithWalletLock
// are lock-free snapshots and may race with concurrent trades.
type Store interface {
	// GetOrCreateWallet returns the user's wallet, creating it with the
	// given starting balance on first touch. Safe under concurrent calls
	// for the same user: exactly one wallet is ever created.
	GetOrCreateWallet(ctx context.Context, userID int64, startingCents int64) (Wallet, error)

	// WithWalletLock acquires the wallet's exclusive lock, runs fn against
	// a transaction scoped to that wallet, and commits iff fn returns nil.
	// Lock acquisition that exceeds lockTimeout fails with ErrLockTimeout.
	WithWalletLock(ctx context.Context, walletID int64, lockTimeout time.Duration, fn func(tx Tx) error) error

	// Wallet returns a wallet by ID without locking.
	Wallet(ctx context.Context, walletID int64) (Wallet, error)
	// WalletByUser returns a user's wallet without locking.
	WalletByUser(ctx context.Context, userID int64) (Wallet, error)
	// Holdings returns a lock-free snapshot of a wallet's open positions,
	// ordered by ticker.
	Holdings(ctx context.Context, walletID int64) ([]Holding, error)
	// Transactions returns a wallet's trade log, oldest first.
	Transactions(ctx context.Context, walletID int64, limit int) ([]Transaction, error)
}
