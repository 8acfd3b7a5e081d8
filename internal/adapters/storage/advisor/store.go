package advisor

import (
	"context"

	"percentuais/internal/adapters/storage"
	domain "percentuais/internal/domain/advisor"
	"percentuais/internal/domain/percent"
)

// Store is the live advisor percentage record. UpdatePercentage is the
// only mutation path the workflow uses, and only the commit engine calls
// it.
type Store interface {
	// FindByNameAndBranch resolves an advisor row by its identifying
	// pair. Returns advisor.ErrNotFound when absent.
	FindByNameAndBranch(ctx context.Context, name, branchName string) (domain.Advisor, error)

	// ListByBranch returns the advisors of a branch, ordered by name.
	ListByBranch(ctx context.Context, branchName string) ([]domain.Advisor, error)

	// Percentages returns the live per-product values for one advisor.
	Percentages(ctx context.Context, advisorID string) ([]domain.Percentage, error)

	// UpdatePercentage writes exactly one (advisor, product) value,
	// addressed by the advisor's row id so concurrent edits to other
	// products of the same advisor are never clobbered.
	// PRE: advisorID exists
	// POST: The one product value equals v
	UpdatePercentage(ctx context.Context, advisorID, product string, v percent.BasisPoints) error

	// Save persists an advisor record (provisioning/seeding).
	Save(ctx context.Context, a domain.Advisor) error
}

// Ensure SQLiteStore implements Store.
var _ Store = (*SQLiteStore)(nil)

// SQLDB defines the database interface needed by the store.
type SQLDB interface {
	storage.SQLDB
}
