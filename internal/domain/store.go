package domain

import "context"

// Repositories groups the repositories that share one unit of work
type Repositories interface {
	Sessions() SessionRepository
	Accounts() AccountRepository
	Escrow() EscrowRepository
	Checkpoints() CheckpointRepository
	Transactions() TransactionRepository
	LinkCodes() LinkCodeRepository
}

// Store gives non-transactional reads plus atomic units of work. If fn
// returns an error, none of its writes are kept.
type Store interface {
	Repositories
	WithTx(ctx context.Context, fn func(Repositories) error) error
}
