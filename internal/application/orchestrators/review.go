package orchestrators

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	emailAdapter "percentuais/internal/adapters/email"
	"percentuais/internal/application/notify"
	branchDomain "percentuais/internal/domain/branch"
	outboxDomain "percentuais/internal/domain/outbox"
	"percentuais/internal/domain/request"
)

// LedgerForReview is the ledger surface the review station needs.
type LedgerForReview interface {
	GetByID(ctx context.Context, id int64) (request.ChangeRequest, error)
	UpdateState(ctx context.Context, id int64, state, comment string) error
}

// BranchStoreForReview resolves the branch under review.
type BranchStoreForReview interface {
	GetByName(ctx context.Context, name string) (branchDomain.Branch, error)
}

// Decision is the reviewer's verdict on one pending request. Approve
// and reject are mutually exclusive; when both are set, approve wins
// and reject is cleared.
type Decision struct {
	RequestID int64
	Approve   bool
	Reject    bool
	Comment   string
}

// ConfirmReviewInput carries the director's decisions for one branch.
type ConfirmReviewInput struct {
	Branch    string
	Reviewer  string
	Decisions []Decision
}

// ConfirmReviewDeps holds dependencies for ConfirmReview.
type ConfirmReviewDeps struct {
	Ledger      LedgerForReview
	BranchStore BranchStoreForReview
	Notifier    *notify.Dispatcher
	Now         func() time.Time
}

// ErrDuplicateDecision is returned when one confirmation carries two
// decisions for the same request.
var ErrDuplicateDecision = errors.New("duplicate decision for request")

// ErrDecisionOutsideBranch is returned when a decision references a
// request that belongs to a different branch than the one under review.
var ErrDecisionOutsideBranch = errors.New("decision references a request outside the branch")

// ConfirmReviewResult reports the outcome of a review confirmation.
type ConfirmReviewResult struct {
	Approved []request.ChangeRequest // now approved_pending_declaration
	Rejected []request.ChangeRequest
	// BlockedMissingComment counts rejections lacking a comment; when
	// non-zero, nothing was written.
	BlockedMissingComment int
	NotifyErrs            []string
}

// ExecuteConfirmReview applies a director's approve/reject decisions to
// pending requests. Validation is all-or-nothing: if any rejected row
// lacks a comment, the whole confirmation fails before a single ledger
// write. Approved rows are not applied yet — they move to
// approved_pending_declaration and wait for the compliance declaration.
// PRE: every decision references a distinct undecided pending-review
// request in the stated branch
// POST: Rejections are terminal with their comment recorded; approvals
// await declaration; requesters are notified per rejected row
func ExecuteConfirmReview(ctx context.Context, input ConfirmReviewInput, deps ConfirmReviewDeps) (ConfirmReviewResult, error) {
	var result ConfirmReviewResult

	b, err := deps.BranchStore.GetByName(ctx, input.Branch)
	if err != nil {
		return result, fmt.Errorf("load branch: %w", err)
	}

	// Normalize: approve beats reject when both are flagged.
	decisions := make([]Decision, len(input.Decisions))
	copy(decisions, input.Decisions)
	for i := range decisions {
		if decisions[i].Approve && decisions[i].Reject {
			decisions[i].Reject = false
		}
	}

	// Phase 1: validate everything before touching the ledger. A request
	// may be decided once per confirmation: a second decision for the
	// same id would re-apply a transition against the stale snapshot.
	rows := make(map[int64]request.ChangeRequest, len(decisions))
	for _, d := range decisions {
		if _, seen := rows[d.RequestID]; seen {
			return result, fmt.Errorf("request %d: %w", d.RequestID, ErrDuplicateDecision)
		}
		r, err := deps.Ledger.GetByID(ctx, d.RequestID)
		if err != nil {
			return result, fmt.Errorf("load request %d: %w", d.RequestID, err)
		}
		if r.Branch != b.Name {
			return result, fmt.Errorf("request %d: %w", d.RequestID, ErrDecisionOutsideBranch)
		}
		if !r.Undecided() {
			return result, fmt.Errorf("request %d: %w", d.RequestID, request.ErrAlreadyDecided)
		}
		if d.Reject && strings.TrimSpace(d.Comment) == "" {
			result.BlockedMissingComment++
		}
		rows[d.RequestID] = r
	}
	if result.BlockedMissingComment > 0 {
		slog.Info("review_event", "event", "confirmation_blocked",
			"branch", input.Branch, "reviewer", input.Reviewer,
			"missing_comments", result.BlockedMissingComment)
		return result, request.ErrCommentRequired
	}

	// Phase 2: commit decisions.
	for _, d := range decisions {
		r := rows[d.RequestID]
		switch {
		case d.Reject:
			if err := r.Reject(d.Comment); err != nil {
				return result, fmt.Errorf("request %d: %w", r.ID, err)
			}
			if err := deps.Ledger.UpdateState(ctx, r.ID, r.ApprovalState, r.ReviewerComment); err != nil {
				return result, fmt.Errorf("persist rejection %d: %w", r.ID, err)
			}
			slog.Info("review_event", "event", "request_rejected",
				"request_id", r.ID, "branch", r.Branch, "reviewer", input.Reviewer)
			result.Rejected = append(result.Rejected, r)

			// Tell the requester why. Best-effort.
			subject, body := notify.DecisionResult(r)
			if err := deps.Notifier.Dispatch(ctx, outboxDomain.KindDecisionResult, emailAdapter.SendRequest{
				To:      []string{r.RequesterEmail},
				Subject: subject,
			}, body); err != nil {
				result.NotifyErrs = append(result.NotifyErrs, err.Error())
			}

		case d.Approve:
			if err := r.Approve(); err != nil {
				return result, fmt.Errorf("request %d: %w", r.ID, err)
			}
			if err := deps.Ledger.UpdateState(ctx, r.ID, r.ApprovalState, r.ReviewerComment); err != nil {
				return result, fmt.Errorf("persist approval %d: %w", r.ID, err)
			}
			slog.Info("review_event", "event", "request_approved",
				"request_id", r.ID, "branch", r.Branch, "reviewer", input.Reviewer)
			result.Approved = append(result.Approved, r)
		}
	}

	return result, nil
}
