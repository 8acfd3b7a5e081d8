package branch

import (
	"context"

	"percentuais/internal/adapters/storage"
	domain "percentuais/internal/domain/branch"
)

// Store is the read-mostly lookup for branch policies and cap tables.
// The change workflow never writes these; the save methods exist for
// provisioning and seeding.
type Store interface {
	// GetByName retrieves a branch policy record.
	// PRE: name is non-empty
	// POST: Returns the branch or an error if not found
	GetByName(ctx context.Context, name string) (domain.Branch, error)

	// ListByLeader returns the branches a leader manages.
	ListByLeader(ctx context.Context, leaderName string) ([]domain.Branch, error)

	// CapsByBranch returns the product-keyed cap table for a branch.
	// Empty for B2C branches, which carry no caps.
	CapsByBranch(ctx context.Context, branchName string) (domain.CapTable, error)

	// Save persists a branch policy record.
	// PRE: b has been validated
	// POST: Branch is persisted (insert or update)
	Save(ctx context.Context, b domain.Branch) error

	// SaveCap persists one ceiling entry.
	SaveCap(ctx context.Context, c domain.Cap) error
}

// Ensure SQLiteStore implements Store.
var _ Store = (*SQLiteStore)(nil)

// SQLDB defines the database interface needed by the store.
type SQLDB interface {
	storage.SQLDB
}
