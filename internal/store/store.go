package store

import (
	"context"

	"github.com/escrowhub/escrowhub/internal/domain"
)

// Tx is the scoped handle passed to WithTransaction. Every read and write
// performed through it belongs to one atomic unit of work: either all of them
// commit or none do. Reads taken through a Tx reflect any writes already
// staged in the same unit of work.
type Tx interface {
	GetWallet(ctx context.Context, userID string) (domain.Wallet, error)
	PutWallet(ctx context.Context, wallet domain.Wallet) error
	GetEscrow(ctx context.Context, id string) (domain.Escrow, error)
	PutEscrow(ctx context.Context, escrow domain.Escrow) error
	PutTransaction(ctx context.Context, tx domain.Transaction) error
}

// Store is the ledger storage contract. Direct reads serve query endpoints;
// any operation that mutates records must go through WithTransaction so that
// preconditions are validated against the state that actually commits.
type Store interface {
	GetWallet(ctx context.Context, userID string) (domain.Wallet, error)
	GetEscrow(ctx context.Context, id string) (domain.Escrow, error)
	ListTransactions(ctx context.Context, userID string, skip, limit int) ([]domain.Transaction, int, error)
	ListEscrowsByUser(ctx context.Context, userID string, skip, limit int) ([]domain.Escrow, int, error)

	// WithTransaction runs fn inside one unit of work. A nil return from fn
	// commits; any error aborts with no partial effect. Commit conflicts and
	// store timeouts surface as a retryable *domain.StoreError.
	WithTransaction(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}
