package projections

import (
	"context"
	"sort"

	"percentuais/internal/domain/request"
)

// ChangeStatsLedger defines the ledger interface needed by the change
// stats projection.
type ChangeStatsLedger interface {
	ListByBranch(ctx context.Context, branch string) ([]request.ChangeRequest, error)
}

// GetChangeStatsQuery carries input for the change stats projection.
type GetChangeStatsQuery struct {
	Branch string
}

// GetChangeStatsDeps holds dependencies for the change stats projection.
type GetChangeStatsDeps struct {
	Ledger ChangeStatsLedger
}

// ChangeStatsResult aggregates a branch's ledger by state and advisor.
type ChangeStatsResult struct {
	Branch        string             `json:"branch"`
	Total         int                `json:"total"`
	PendingReview int                `json:"pending_review"`
	AwaitingDecl  int                `json:"awaiting_declaration"`
	Applied       int                `json:"applied"`
	Rejected      int                `json:"rejected"`
	ByAdvisor     []AdvisorChangeRow `json:"by_advisor"`
}

// AdvisorChangeRow is the per-advisor breakdown within a branch.
type AdvisorChangeRow struct {
	Advisor    string `json:"advisor"`
	Increases  int    `json:"increases"`
	Reductions int    `json:"reductions"`
	Applied    int    `json:"applied"`
	Rejected   int    `json:"rejected"`
}

// QueryGetChangeStats summarizes the audit ledger of one branch for the
// oversight dashboard.
// PRE: deps are valid and non-nil
// POST: returns counts per state and per advisor
func QueryGetChangeStats(ctx context.Context, query GetChangeStatsQuery, deps GetChangeStatsDeps) (ChangeStatsResult, error) {
	result := ChangeStatsResult{Branch: query.Branch}

	rows, err := deps.Ledger.ListByBranch(ctx, query.Branch)
	if err != nil {
		return result, err
	}

	byAdvisor := make(map[string]*AdvisorChangeRow)
	for _, r := range rows {
		result.Total++
		switch r.ApprovalState {
		case request.StatePendingReview:
			result.PendingReview++
		case request.StateApprovedPendingDecl:
			result.AwaitingDecl++
		case request.StateApplied, request.StateAutoApplied:
			result.Applied++
		case request.StateRejected:
			result.Rejected++
		}

		row, ok := byAdvisor[r.Advisor]
		if !ok {
			row = &AdvisorChangeRow{Advisor: r.Advisor}
			byAdvisor[r.Advisor] = row
		}
		if r.Direction == request.DirectionReduction {
			row.Reductions++
		} else {
			row.Increases++
		}
		switch r.ApprovalState {
		case request.StateApplied, request.StateAutoApplied:
			row.Applied++
		case request.StateRejected:
			row.Rejected++
		}
	}

	for _, row := range byAdvisor {
		result.ByAdvisor = append(result.ByAdvisor, *row)
	}
	sort.Slice(result.ByAdvisor, func(i, j int) bool {
		return result.ByAdvisor[i].Advisor < result.ByAdvisor[j].Advisor
	})
	return result, nil
}
