package outbox

import (
	"context"

	"percentuais/internal/adapters/storage"
	domain "percentuais/internal/domain/outbox"
)

// Store persists queued notifications awaiting delivery or retry.
type Store interface {
	// GetByID retrieves an outbox entry by its ID.
	// PRE: id is non-empty
	// POST: Returns the entry or an error if not found
	GetByID(ctx context.Context, id string) (domain.Entry, error)

	// Save persists an entry (insert or update).
	// PRE: entry has been validated
	// POST: Entry is persisted
	Save(ctx context.Context, e domain.Entry) error

	// ListPending returns entries awaiting delivery (pending or
	// retrying), oldest first.
	// PRE: limit > 0
	ListPending(ctx context.Context, limit int) ([]domain.Entry, error)

	// ListFailed returns entries that exhausted their attempt budget,
	// most recently attempted first.
	// PRE: limit > 0
	ListFailed(ctx context.Context, limit int) ([]domain.Entry, error)
}

// Ensure SQLiteStore implements Store.
var _ Store = (*SQLiteStore)(nil)

// SQLDB defines the database interface needed by the store.
type SQLDB interface {
	storage.SQLDB
}
