package ledger

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// MemoryStore is an in-process Store with the same locking and atomicity
// contract as PostgresStore. Used in tests and for running without a
// database.
type MemoryStore struct {
	mu      sync.Mutex
	wallets map[int64]*memWallet
	byUser  map[int64]int64
	nextID  int64
	nextTx  int64
	nextHld int64
}

type memWallet struct {
	lock     sync.Mutex
	wallet   Wallet
	holdings map[string]Holding
	txs      []Transaction
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		wallets: make(map[int64]*memWallet),
		byUser:  make(map[int64]int64),
	}
}

func (s *MemoryStore) GetOrCreateWallet(ctx context.Context, userID int64, startingCents int64) (Wallet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if id, ok := s.byUser[userID]; ok {
		return s.wallets[id].wallet, nil
	}

	s.nextID++
	now := time.Now().UTC()
	w := Wallet{
		ID:        s.nextID,
		UserID:    userID,
		CashCents: startingCents,
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.wallets[w.ID] = &memWallet{
		wallet:   w,
		holdings: make(map[string]Holding),
	}
	s.byUser[userID] = w.ID
	return w, nil
}

func (s *MemoryStore) Wallet(ctx context.Context, walletID int64) (Wallet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	mw, ok := s.wallets[walletID]
	if !ok {
		return Wallet{}, ErrWalletNotFound
	}
	return mw.wallet, nil
}

func (s *MemoryStore) WalletByUser(ctx context.Context, userID int64) (Wallet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.byUser[userID]
	if !ok {
		return Wallet{}, ErrWalletNotFound
	}
	return s.wallets[id].wallet, nil
}

func (s *MemoryStore) Holdings(ctx context.Context, walletID int64) ([]Holding, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	mw, ok := s.wallets[walletID]
	if !ok {
		return nil, ErrWalletNotFound
	}

	holdings := make([]Holding, 0, len(mw.holdings))
	for _, h := range mw.holdings {
		holdings = append(holdings, h)
	}
	sort.Slice(holdings, func(i, j int) bool { return holdings[i].Ticker < holdings[j].Ticker })
	return holdings, nil
}

func (s *MemoryStore) Transactions(ctx context.Context, walletID int64, limit int) ([]Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	mw, ok := s.wallets[walletID]
	if !ok {
		return nil, ErrWalletNotFound
	}
	if limit <= 0 || limit > len(mw.txs) {
		limit = len(mw.txs)
	}
	out := make([]Transaction, limit)
	copy(out, mw.txs[:limit])
	return out, nil
}

func (s *MemoryStore) WithWalletLock(ctx context.Context, walletID int64, lockTimeout time.Duration, fn func(tx Tx) error) error {
	s.mu.Lock()
	mw, ok := s.wallets[walletID]
	s.mu.Unlock()
	if !ok {
		return ErrWalletNotFound
	}

	if err := acquire(ctx, &mw.lock, lockTimeout); err != nil {
		return err
	}
	defer mw.lock.Unlock()

	// Stage mutations against copies; nothing is visible until commit.
	tx := &memTx{
		store:    s,
		wallet:   mw.wallet,
		holdings: cloneHoldings(mw.holdings),
	}
	if err := fn(tx); err != nil {
		return err
	}

	s.mu.Lock()
	mw.wallet = tx.wallet
	mw.holdings = tx.holdings
	mw.txs = append(mw.txs, tx.appended...)
	s.mu.Unlock()
	return nil
}

// acquire polls a mutex until it succeeds or the deadline passes. Coarse, but
// it gives in-memory trades the same "lock or time out" behavior as the
// database path.
func acquire(ctx context.Context, mu *sync.Mutex, timeout time.Duration) error {
	if timeout <= 0 {
		mu.Lock()
		return nil
	}
	deadline := time.Now().Add(timeout)
	for {
		if mu.TryLock() {
			return nil
		}
		if time.Now().After(deadline) {
			return ErrLockTimeout
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Millisecond):
		}
	}
}

type memTx struct {
	store    *MemoryStore
	wallet   Wallet
	holdings map[string]Holding
	appended []Transaction
}

func (t *memTx) Wallet(ctx context.Context) (Wallet, error) {
	return t.wallet, nil
}

func (t *memTx) Holding(ctx context.Context, ticker string) (*Holding, error) {
	h, ok := t.holdings[ticker]
	if !ok {
		return nil, nil
	}
	return &h, nil
}

func (t *memTx) UpdateCash(ctx context.Context, cashCents int64) error {
	t.wallet.CashCents = cashCents
	t.wallet.UpdatedAt = time.Now().UTC()
	return nil
}

func (t *memTx) UpsertHolding(ctx context.Context, h Holding) error {
	if existing, ok := t.holdings[h.Ticker]; ok {
		h.ID = existing.ID
	} else {
		t.store.mu.Lock()
		t.store.nextHld++
		h.ID = t.store.nextHld
		t.store.mu.Unlock()
	}
	h.WalletID = t.wallet.ID
	t.holdings[h.Ticker] = h
	return nil
}

func (t *memTx) DeleteHolding(ctx context.Context, ticker string) error {
	delete(t.holdings, ticker)
	return nil
}

func (t *memTx) AppendTransaction(ctx context.Context, tr *Transaction) error {
	// Same rule the database enforces with a CHECK constraint.
	if !tr.Side.Valid() {
		return fmt.Errorf("invalid side %q", tr.Side)
	}
	t.store.mu.Lock()
	t.store.nextTx++
	tr.ID = t.store.nextTx
	t.store.mu.Unlock()
	tr.CreatedAt = time.Now().UTC()
	t.appended = append(t.appended, *tr)
	return nil
}

func cloneHoldings(in map[string]Holding) map[string]Holding {
	out := make(map[string]Holding, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
