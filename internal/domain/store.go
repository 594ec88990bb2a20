package domain

import "context"

// Repositories groups the data access interfaces that share one consistency boundary
type Repositories interface {
	Users() UserRepository
	Tiers() TierRepository
	Clients() ClientRepository
	Profiles() ProfileRepository
}

// Store is the persistence layer. Repositories obtained from the Store itself run each
// statement on its own; WithinTx runs fn atomically and commits only if fn returns nil.
type Store interface {
	Repositories
	WithinTx(ctx context.Context, fn func(tx Repositories) error) error
	Ping(ctx context.Context) error
}
