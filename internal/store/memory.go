package store

import (
	"context"
	"sort"
	"sync"

	"github.com/escrowhub/escrowhub/internal/domain"
)

type memoryStore struct {
	mu           sync.RWMutex
	wallets      map[string]domain.Wallet
	escrows      map[string]domain.Escrow
	transactions map[string]domain.Transaction
	txOrder      []string
}

// NewMemory creates a concurrency-safe in-memory store. It honors the same
// contract and invariants as the Postgres store but does not survive a
// restart; it backs unit tests and the no-database fallback path.
func NewMemory() Store {
	return &memoryStore{
		wallets:      make(map[string]domain.Wallet),
		escrows:      make(map[string]domain.Escrow),
		transactions: make(map[string]domain.Transaction),
	}
}

func (s *memoryStore) GetWallet(_ context.Context, userID string) (domain.Wallet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	w, ok := s.wallets[userID]
	if !ok {
		return domain.Wallet{}, &domain.NotFoundError{Kind: "wallet", Key: userID}
	}
	return copyWallet(w), nil
}

func (s *memoryStore) GetEscrow(_ context.Context, id string) (domain.Escrow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.escrows[id]
	if !ok {
		return domain.Escrow{}, &domain.NotFoundError{Kind: "escrow", Key: id}
	}
	return copyEscrow(e), nil
}

func (s *memoryStore) ListTransactions(_ context.Context, userID string, skip, limit int) ([]domain.Transaction, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var matched []domain.Transaction
	for _, id := range s.txOrder {
		tx := s.transactions[id]
		if tx.UserID == userID {
			matched = append(matched, tx)
		}
	}
	return paginate(matched, skip, limit)
}

func (s *memoryStore) ListEscrowsByUser(_ context.Context, userID string, skip, limit int) ([]domain.Escrow, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var matched []domain.Escrow
	for _, e := range s.escrows {
		if e.ClientID == userID || e.FreelancerID == userID {
			matched = append(matched, copyEscrow(e))
		}
	}
	sortEscrowsByCreation(matched)
	return paginate(matched, skip, limit)
}

// WithTransaction holds the store lock for the whole unit of work and stages
// every write on a private overlay. The overlay is applied only when fn
// returns nil, so an abort leaves no partial effect.
func (s *memoryStore) WithTransaction(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return &domain.StoreError{Retryable: true, Err: err}
	}

	stage := &memoryTx{store: s, wallets: make(map[string]domain.Wallet), escrows: make(map[string]domain.Escrow)}
	if err := fn(ctx, stage); err != nil {
		return err
	}

	for id, w := range stage.wallets {
		s.wallets[id] = w
	}
	for id, e := range stage.escrows {
		s.escrows[id] = e
	}
	for _, tx := range stage.transactions {
		s.transactions[tx.ID] = tx
		s.txOrder = append(s.txOrder, tx.ID)
	}
	return nil
}

type memoryTx struct {
	store        *memoryStore
	wallets      map[string]domain.Wallet
	escrows      map[string]domain.Escrow
	transactions []domain.Transaction
}

func (t *memoryTx) GetWallet(_ context.Context, userID string) (domain.Wallet, error) {
	if w, ok := t.wallets[userID]; ok {
		return copyWallet(w), nil
	}
	w, ok := t.store.wallets[userID]
	if !ok {
		return domain.Wallet{}, &domain.NotFoundError{Kind: "wallet", Key: userID}
	}
	return copyWallet(w), nil
}

func (t *memoryTx) PutWallet(_ context.Context, wallet domain.Wallet) error {
	t.wallets[wallet.UserID] = copyWallet(wallet)
	return nil
}

func (t *memoryTx) GetEscrow(_ context.Context, id string) (domain.Escrow, error) {
	if e, ok := t.escrows[id]; ok {
		return copyEscrow(e), nil
	}
	e, ok := t.store.escrows[id]
	if !ok {
		return domain.Escrow{}, &domain.NotFoundError{Kind: "escrow", Key: id}
	}
	return copyEscrow(e), nil
}

func (t *memoryTx) PutEscrow(_ context.Context, escrow domain.Escrow) error {
	t.escrows[escrow.ID] = copyEscrow(escrow)
	return nil
}

func (t *memoryTx) PutTransaction(_ context.Context, tx domain.Transaction) error {
	t.transactions = append(t.transactions, tx)
	return nil
}

func copyWallet(w domain.Wallet) domain.Wallet {
	out := w
	out.EscrowReserves = append([]domain.EscrowReserve(nil), w.EscrowReserves...)
	out.PaymentMethods = append([]domain.PaymentMethod(nil), w.PaymentMethods...)
	out.TransactionIDs = append([]string(nil), w.TransactionIDs...)
	return out
}

func copyEscrow(e domain.Escrow) domain.Escrow {
	out := e
	out.Delivery.Files = append([]string(nil), e.Delivery.Files...)
	return out
}

func sortEscrowsByCreation(escrows []domain.Escrow) {
	sort.Slice(escrows, func(i, j int) bool {
		return escrows[i].CreatedAt.Before(escrows[j].CreatedAt)
	})
}

func paginate[T any](items []T, skip, limit int) ([]T, int, error) {
	total := len(items)
	if skip < 0 {
		skip = 0
	}
	if skip >= total {
		return nil, total, nil
	}
	items = items[skip:]
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items, total, nil
}
