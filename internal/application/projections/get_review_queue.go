package projections

import (
	"context"

	branchDomain "percentuais/internal/domain/branch"
	"percentuais/internal/domain/request"
)

// ReviewQueueLedger defines the ledger interface needed by the review
// queue projection.
type ReviewQueueLedger interface {
	ListPendingByBranch(ctx context.Context, branch string) ([]request.ChangeRequest, error)
}

// ReviewQueueBranchStore resolves the branch being reviewed.
type ReviewQueueBranchStore interface {
	GetByName(ctx context.Context, name string) (branchDomain.Branch, error)
}

// GetReviewQueueQuery carries input for the review queue projection.
type GetReviewQueueQuery struct {
	Branch string
}

// GetReviewQueueDeps holds dependencies for the review queue projection.
type GetReviewQueueDeps struct {
	Ledger      ReviewQueueLedger
	BranchStore ReviewQueueBranchStore
}

// ReviewQueueResult carries the output of the review queue projection.
type ReviewQueueResult struct {
	Branch   string           `json:"branch"`
	Segment  string           `json:"segment"`
	Director string           `json:"director"`
	Entries  []ReviewQueueRow `json:"entries"`
}

// ReviewQueueRow is one undecided request rendered for the reviewer,
// values formatted for display.
type ReviewQueueRow struct {
	RequestID   int64  `json:"request_id"`
	CreatedAt   string `json:"created_at"`
	Requester   string `json:"requester"`
	Advisor     string `json:"advisor"`
	Product     string `json:"product"`
	ValueBefore string `json:"value_before"`
	ValueAfter  string `json:"value_after"`
	Direction   string `json:"direction"`
}

// QueryGetReviewQueue lists the undecided pending-review requests of a
// branch for the director's review page.
// PRE: deps are valid and non-nil
// POST: returns the queue or error; an empty queue is not an error
func QueryGetReviewQueue(ctx context.Context, query GetReviewQueueQuery, deps GetReviewQueueDeps) (ReviewQueueResult, error) {
	result := ReviewQueueResult{Branch: query.Branch}

	b, err := deps.BranchStore.GetByName(ctx, query.Branch)
	if err != nil {
		return result, err
	}
	result.Segment = b.Segment
	result.Director = b.DirectorName

	rows, err := deps.Ledger.ListPendingByBranch(ctx, b.Name)
	if err != nil {
		return result, err
	}
	for _, r := range rows {
		result.Entries = append(result.Entries, ReviewQueueRow{
			RequestID:   r.ID,
			CreatedAt:   r.CreatedAt.Format("02/01/2006 15:04:05"),
			Requester:   r.Requester,
			Advisor:     r.Advisor,
			Product:     r.Product,
			ValueBefore: r.ValueBefore.Display(),
			ValueAfter:  r.ValueAfter.Display(),
			Direction:   r.Direction,
		})
	}
	return result, nil
}
