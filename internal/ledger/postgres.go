package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

const lockNotAvailable = "55P03" // SQLSTATE raised when lock_timeout fires

// PostgresStore persists wallets in Postgres. Row locks on the wallets table
// serialize trades per wallet; holdings are locked after the wallet, always
// in that order.
type PostgresStore struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

func NewPostgresStore(pool *pgxpool.Pool, logger *slog.Logger) *PostgresStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresStore{pool: pool, logger: logger}
}

func (s *PostgresStore) GetOrCreateWallet(ctx context.Context, userID int64, startingCents int64) (Wallet, error) {
	// Insert first; on conflict another request won the race and we read
	// the existing row.
	_, err := s.pool.Exec(ctx,
		`INSERT INTO wallets (user_id, cash_cents) VALUES ($1, $2)
		 ON CONFLICT (user_id) DO NOTHING`,
		userID, startingCents)
	if err != nil {
		return Wallet{}, fmt.Errorf("create wallet: %w", err)
	}
	return s.WalletByUser(ctx, userID)
}

func (s *PostgresStore) Wallet(ctx context.Context, walletID int64) (Wallet, error) {
	return scanWallet(s.pool.QueryRow(ctx,
		`SELECT id, user_id, cash_cents, created_at, updated_at FROM wallets WHERE id = $1`,
		walletID))
}

func (s *PostgresStore) WalletByUser(ctx context.Context, userID int64) (Wallet, error) {
	return scanWallet(s.pool.QueryRow(ctx,
		`SELECT id, user_id, cash_cents, created_at, updated_at FROM wallets WHERE user_id = $1`,
		userID))
}

func (s *PostgresStore) Holdings(ctx context.Context, walletID int64) ([]Holding, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, wallet_id, ticker, quantity::text
		   FROM holdings WHERE wallet_id = $1 ORDER BY ticker`,
		walletID)
	if err != nil {
		return nil, fmt.Errorf("list holdings: %w", err)
	}
	defer rows.Close()

	var holdings []Holding
	for rows.Next() {
		h, err := scanHolding(rows)
		if err != nil {
			return nil, err
		}
		holdings = append(holdings, h)
	}
	return holdings, rows.Err()
}

func (s *PostgresStore) Transactions(ctx context.Context, walletID int64, limit int) ([]Transaction, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.pool.Query(ctx,
		`SELECT id, wallet_id, ticker, side, quantity::text, price_cents, total_cents, created_at
		   FROM transactions WHERE wallet_id = $1 ORDER BY id LIMIT $2`,
		walletID, limit)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	defer rows.Close()

	var txs []Transaction
	for rows.Next() {
		var (
			t   Transaction
			qty string
		)
		if err := rows.Scan(&t.ID, &t.WalletID, &t.Ticker, &t.Side, &qty, &t.PriceCents, &t.TotalCents, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		t.Quantity, err = decimal.NewFromString(qty)
		if err != nil {
			return nil, fmt.Errorf("parse quantity %q: %w", qty, err)
		}
		txs = append(txs, t)
	}
	return txs, rows.Err()
}

func (s *PostgresStore) WithWalletLock(ctx context.Context, walletID int64, lockTimeout time.Duration, fn func(tx Tx) error) error {
	dbTx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}

	committed := false
	defer func() {
		if !committed {
			if rbErr := dbTx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
				s.logger.Error("rollback failed", "error", rbErr, "wallet_id", walletID)
			}
		}
	}()

	if lockTimeout > 0 {
		if _, err := dbTx.Exec(ctx, fmt.Sprintf("SET LOCAL lock_timeout = '%dms'", lockTimeout.Milliseconds())); err != nil {
			return fmt.Errorf("set lock_timeout: %w", err)
		}
	}

	// Lock the wallet row before anything else touches this wallet's state.
	row := dbTx.QueryRow(ctx,
		`SELECT id, user_id, cash_cents, created_at, updated_at FROM wallets WHERE id = $1 FOR UPDATE`,
		walletID)
	wallet, err := scanWallet(row)
	if err != nil {
		return mapLockErr(err)
	}

	if err := fn(&pgTx{tx: dbTx, wallet: wallet}); err != nil {
		return mapLockErr(err)
	}

	if err := dbTx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	committed = true
	return nil
}

// pgTx scopes mutations to one locked wallet inside one database transaction.
type pgTx struct {
	tx     pgx.Tx
	wallet Wallet
}

func (t *pgTx) Wallet(ctx context.Context) (Wallet, error) {
	return t.wallet, nil
}

func (t *pgTx) Holding(ctx context.Context, ticker string) (*Holding, error) {
	row := t.tx.QueryRow(ctx,
		`SELECT id, wallet_id, ticker, quantity::text
		   FROM holdings WHERE wallet_id = $1 AND ticker = $2 FOR UPDATE`,
		t.wallet.ID, ticker)
	h, err := scanHolding(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &h, nil
}

func (t *pgTx) UpdateCash(ctx context.Context, cashCents int64) error {
	tag, err := t.tx.Exec(ctx,
		`UPDATE wallets SET cash_cents = $1, updated_at = now() WHERE id = $2`,
		cashCents, t.wallet.ID)
	if err != nil {
		return fmt.Errorf("update cash: %w", err)
	}
	if tag.RowsAffected() != 1 {
		return ErrWalletNotFound
	}
	t.wallet.CashCents = cashCents
	return nil
}

func (t *pgTx) UpsertHolding(ctx context.Context, h Holding) error {
	_, err := t.tx.Exec(ctx,
		`INSERT INTO holdings (wallet_id, ticker, quantity) VALUES ($1, $2, $3)
		 ON CONFLICT (wallet_id, ticker) DO UPDATE SET quantity = EXCLUDED.quantity`,
		t.wallet.ID, h.Ticker, h.Quantity.String())
	if err != nil {
		return fmt.Errorf("upsert holding: %w", err)
	}
	return nil
}

func (t *pgTx) DeleteHolding(ctx context.Context, ticker string) error {
	_, err := t.tx.Exec(ctx,
		`DELETE FROM holdings WHERE wallet_id = $1 AND ticker = $2`,
		t.wallet.ID, ticker)
	if err != nil {
		return fmt.Errorf("delete holding: %w", err)
	}
	return nil
}

func (t *pgTx) AppendTransaction(ctx context.Context, tr *Transaction) error {
	row := t.tx.QueryRow(
		ctx,
		`INSERT INTO transactions (wallet_id, ticker, side, quantity, price_cents, total_cents)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING id, created_at`,
		tr.WalletID, tr.Ticker, tr.Side, tr.Quantity.String(), tr.PriceCents, tr.TotalCents)
	if err := row.Scan(&tr.ID, &tr.CreatedAt); err != nil {
		return fmt.Errorf("append transaction: %w", err)
	}
	return nil
}

func scanWallet(row pgx.Row) (Wallet, error) {
	var w Wallet
	err := row.Scan(&w.ID, &w.UserID, &w.CashCents, &w.CreatedAt, &w.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Wallet{}, ErrWalletNotFound
	}
	if err != nil {
		return Wallet{}, fmt.Errorf("scan wallet: %w", err)
	}
	return w, nil
}

func scanHolding(row pgx.Row) (Holding, error) {
	var (
		h   Holding
		qty string
	)
	if err := row.Scan(&h.ID, &h.WalletID, &h.Ticker, &qty); err != nil {
		return Holding{}, err
	}
	var err error
	h.Quantity, err = decimal.NewFromString(qty)
	if err != nil {
		return Holding{}, fmt.Errorf("parse quantity %q: %w", qty, err)
	}
	return h, nil
}

func mapLockErr(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == lockNotAvailable {
		return fmt.Errorf("%w: %v", ErrLockTimeout, err)
	}
	return err
}
