package otp

import (
	"context"

	"percentuais/internal/adapters/storage"
	domain "percentuais/internal/domain/otp"
)

// Store holds the short-lived pending batches keyed by requester. At
// most one session per requester: saving replaces any earlier one, and
// both confirmation outcomes delete it.
type Store interface {
	// Save persists a session, replacing the requester's previous one.
	// PRE: session is valid
	// POST: Session is persisted
	Save(ctx context.Context, s domain.Session) error

	// GetByRequester retrieves the requester's pending session.
	// POST: Returns the session or an error if none exists
	GetByRequester(ctx context.Context, requester string) (domain.Session, error)

	// Delete discards the requester's pending session.
	Delete(ctx context.Context, requester string) error

	// DeleteExpired removes sessions past their expiry.
	// POST: Returns the number removed
	DeleteExpired(ctx context.Context) (int64, error)
}

// Ensure SQLiteStore implements Store.
var _ Store = (*SQLiteStore)(nil)

// SQLDB defines the database interface needed by the store.
type SQLDB interface {
	storage.SQLDB
}
