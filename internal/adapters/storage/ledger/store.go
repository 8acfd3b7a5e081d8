package ledger

import (
	"context"

	"percentuais/internal/adapters/storage"
	domain "percentuais/internal/domain/request"
)

// Store is the append/update-only audit ledger of change requests. Rows
// are never deleted; every state transition is an update in place, so the
// pending-conflict check always sees full history.
type Store interface {
	// Insert appends a request and assigns its sequential id. The
	// pending-conflict check and the insert run as one transaction:
	// returns request.ErrConflictingRequest when the (branch, advisor,
	// product) triple already has an undecided pending-review row.
	// PRE: req has been validated
	// POST: Returns the ledger-assigned id
	Insert(ctx context.Context, req domain.ChangeRequest) (int64, error)

	// UpdateState transitions a request to a new approval state,
	// persisting the reviewer comment alongside it.
	// PRE: id exists
	// POST: State and comment are updated
	UpdateState(ctx context.Context, id int64, state, comment string) error

	// GetByID retrieves one request.
	// PRE: id exists
	// POST: Returns the request or an error if not found
	GetByID(ctx context.Context, id int64) (domain.ChangeRequest, error)

	// HasPending reports whether an undecided pending-review request
	// exists for the triple.
	HasPending(ctx context.Context, branch, advisor, product string) (bool, error)

	// ListPendingByBranch returns the undecided pending-review requests
	// for a branch, ordered by id.
	ListPendingByBranch(ctx context.Context, branch string) ([]domain.ChangeRequest, error)

	// ListByBranch returns all requests for a branch, ordered by id.
	ListByBranch(ctx context.Context, branch string) ([]domain.ChangeRequest, error)

	// ListByState returns a branch's requests in one approval state,
	// ordered by id.
	ListByState(ctx context.Context, branch, state string) ([]domain.ChangeRequest, error)
}

// Ensure SQLiteStore implements Store.
var _ Store = (*SQLiteStore)(nil)

// SQLDB defines the database interface needed by the store.
type SQLDB interface {
	storage.SQLDB
}
