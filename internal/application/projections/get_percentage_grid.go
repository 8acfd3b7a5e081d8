package projections

import (
	"context"

	advisorDomain "percentuais/internal/domain/advisor"
	branchDomain "percentuais/internal/domain/branch"
)

// PercentageGridAdvisorStore defines the advisor store interface needed
// by the grid projection.
type PercentageGridAdvisorStore interface {
	ListByBranch(ctx context.Context, branchName string) ([]advisorDomain.Advisor, error)
	Percentages(ctx context.Context, advisorID string) ([]advisorDomain.Percentage, error)
}

// PercentageGridBranchStore resolves the branch and its cap table.
type PercentageGridBranchStore interface {
	GetByName(ctx context.Context, name string) (branchDomain.Branch, error)
	CapsByBranch(ctx context.Context, branchName string) (branchDomain.CapTable, error)
}

// GetPercentageGridQuery carries input for the grid projection.
type GetPercentageGridQuery struct {
	Branch string
}

// GetPercentageGridDeps holds dependencies for the grid projection.
type GetPercentageGridDeps struct {
	AdvisorStore PercentageGridAdvisorStore
	BranchStore  PercentageGridBranchStore
}

// PercentageGridResult is the branch's current percentage table, the
// starting point the leader edits against.
type PercentageGridResult struct {
	Branch   string            `json:"branch"`
	Segment  string            `json:"segment"`
	Caps     map[string]string `json:"caps"` // product -> ceiling, display-formatted
	Advisors []AdvisorGridRow  `json:"advisors"`
}

// AdvisorGridRow is one advisor's current values per product.
type AdvisorGridRow struct {
	AdvisorID string            `json:"advisor_id"`
	Name      string            `json:"name"`
	Initials  string            `json:"initials"`
	Values    map[string]string `json:"values"` // product -> display-formatted value
}

// QueryGetPercentageGrid assembles the current percentages of every
// advisor in a branch, together with the branch's product ceilings.
// PRE: deps are valid and non-nil
// POST: returns the grid or error
func QueryGetPercentageGrid(ctx context.Context, query GetPercentageGridQuery, deps GetPercentageGridDeps) (PercentageGridResult, error) {
	result := PercentageGridResult{Branch: query.Branch, Caps: map[string]string{}}

	b, err := deps.BranchStore.GetByName(ctx, query.Branch)
	if err != nil {
		return result, err
	}
	result.Segment = b.Segment

	caps, err := deps.BranchStore.CapsByBranch(ctx, b.Name)
	if err != nil {
		return result, err
	}
	for product, ceiling := range caps {
		result.Caps[product] = ceiling.Display()
	}

	advisors, err := deps.AdvisorStore.ListByBranch(ctx, b.Name)
	if err != nil {
		return result, err
	}
	for _, a := range advisors {
		row := AdvisorGridRow{
			AdvisorID: a.ID,
			Name:      a.Name,
			Initials:  a.Initials,
			Values:    map[string]string{},
		}
		percentages, err := deps.AdvisorStore.Percentages(ctx, a.ID)
		if err != nil {
			return result, err
		}
		for _, p := range percentages {
			row.Values[p.Product] = p.Value.Display()
		}
		result.Advisors = append(result.Advisors, row)
	}
	return result, nil
}
