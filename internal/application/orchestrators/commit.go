package orchestrators

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	emailAdapter "percentuais/internal/adapters/email"
	"percentuais/internal/application/notify"
	advisorDomain "percentuais/internal/domain/advisor"
	outboxDomain "percentuais/internal/domain/outbox"
	"percentuais/internal/domain/percent"
	"percentuais/internal/domain/request"
)

// AdvisorStoreForCommit defines the store interface the commit engine
// needs. UpdatePercentage is the sole mutation path into the live
// percentage records.
type AdvisorStoreForCommit interface {
	FindByNameAndBranch(ctx context.Context, name, branchName string) (advisorDomain.Advisor, error)
	UpdatePercentage(ctx context.Context, advisorID, product string, v percent.BasisPoints) error
}

// LedgerForCommit is the ledger surface the commit engine needs.
type LedgerForCommit interface {
	UpdateState(ctx context.Context, id int64, state, comment string) error
}

// CommitSkip records one request the engine could not apply. Skips
// never roll back sibling commits.
type CommitSkip struct {
	Request request.ChangeRequest
	Reason  string
}

// CommitChangesInput carries the requests to apply. All requests belong
// to one branch and one requester batch.
type CommitChangesInput struct {
	Leader      string
	LeaderEmail string
	Branch      string
	Requests    []request.ChangeRequest
}

// CommitChangesDeps holds dependencies for CommitChanges.
type CommitChangesDeps struct {
	AdvisorStore AdvisorStoreForCommit
	Ledger       LedgerForCommit
	Notifier     *notify.Dispatcher
	Now          func() time.Time
}

// CommitChangesResult reports what was applied and what was skipped.
type CommitChangesResult struct {
	Applied    []request.ChangeRequest
	Skipped    []CommitSkip
	NotifyErrs []string
}

// ExecuteCommitChanges idempotently writes approved values into the
// advisor percentage store and marks the ledger entries terminal. An
// unknown advisor skips that one request and the batch continues. The
// write carries the absolute target value, so re-running a commit
// leaves the store unchanged.
// PRE: every request is auto_applied, approved_pending_declaration, or applied
// POST: Applied requests are terminal in the ledger; summaries are
// dispatched to the leader and to each affected advisor
func ExecuteCommitChanges(ctx context.Context, input CommitChangesInput, deps CommitChangesDeps) (CommitChangesResult, error) {
	var result CommitChangesResult
	now := deps.Now()

	// One summary per advisor, listing all their changed products.
	advisorEmails := make(map[string]string)
	byAdvisor := make(map[string][]request.ChangeRequest)

	for _, r := range input.Requests {
		a, err := deps.AdvisorStore.FindByNameAndBranch(ctx, r.Advisor, r.Branch)
		if err != nil {
			if errors.Is(err, advisorDomain.ErrNotFound) {
				slog.Warn("commit_event", "event", "advisor_not_found",
					"request_id", r.ID, "advisor", r.Advisor, "branch", r.Branch)
				result.Skipped = append(result.Skipped, CommitSkip{Request: r, Reason: err.Error()})
				continue
			}
			return result, fmt.Errorf("resolve advisor: %w", err)
		}

		if err := deps.AdvisorStore.UpdatePercentage(ctx, a.ID, r.Product, r.ValueAfter); err != nil {
			return result, fmt.Errorf("apply request %d: %w", r.ID, err)
		}
		if err := r.MarkApplied(); err != nil {
			return result, fmt.Errorf("request %d: %w", r.ID, err)
		}
		if err := deps.Ledger.UpdateState(ctx, r.ID, r.ApprovalState, r.ReviewerComment); err != nil {
			return result, fmt.Errorf("mark request %d applied: %w", r.ID, err)
		}

		slog.Info("commit_event", "event", "request_applied",
			"request_id", r.ID, "branch", r.Branch, "advisor", r.Advisor,
			"product", r.Product, "value_after", r.ValueAfter.Display())

		result.Applied = append(result.Applied, r)
		advisorEmails[r.Advisor] = a.Email
		byAdvisor[r.Advisor] = append(byAdvisor[r.Advisor], r)
	}

	if len(result.Applied) == 0 {
		return result, nil
	}

	// Best-effort summaries; failures queue for retry and never undo
	// the commits above.
	subject, body := notify.LeaderSummary(input.Leader, input.Branch, result.Applied, now)
	if err := deps.Notifier.Dispatch(ctx, outboxDomain.KindCommitSummary, emailAdapter.SendRequest{
		To:      []string{input.LeaderEmail},
		Subject: subject,
	}, body); err != nil {
		result.NotifyErrs = append(result.NotifyErrs, err.Error())
	}

	for advisorName, rows := range byAdvisor {
		addr := advisorEmails[advisorName]
		if addr == "" {
			continue
		}
		subject, body := notify.AdvisorSummary(advisorName, input.Leader, input.Branch, rows, now)
		if err := deps.Notifier.Dispatch(ctx, outboxDomain.KindCommitSummary, emailAdapter.SendRequest{
			To:      []string{addr},
			Subject: subject,
		}, body); err != nil {
			result.NotifyErrs = append(result.NotifyErrs, err.Error())
		}
	}

	return result, nil
}
