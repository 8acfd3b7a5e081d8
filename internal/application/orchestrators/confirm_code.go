package orchestrators

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	emailAdapter "percentuais/internal/adapters/email"
	"percentuais/internal/application/notify"
	otpDomain "percentuais/internal/domain/otp"
	outboxDomain "percentuais/internal/domain/outbox"
	"percentuais/internal/domain/request"
)

// LedgerForRouting is the ledger surface the confirmation step needs.
type LedgerForRouting interface {
	Insert(ctx context.Context, req request.ChangeRequest) (int64, error)
}

// ConfirmCodeInput carries input for the OTP confirmation orchestrator.
type ConfirmCodeInput struct {
	Requester string
	Code      string
}

// ConfirmCodeDeps holds dependencies for ConfirmCode.
type ConfirmCodeDeps struct {
	OTPStore     OTPSessionStore
	BranchStore  BranchStoreForStaging
	Ledger       LedgerForRouting
	AdvisorStore AdvisorStoreForCommit
	CommitLedger LedgerForCommit
	Notifier     *notify.Dispatcher
	ReviewURL    string // deep link included in director review requests
	Now          func() time.Time
}

// ConfirmCodeResult reports where each confirmed request was routed.
type ConfirmCodeResult struct {
	AutoApplied   []request.ChangeRequest
	PendingReview []request.ChangeRequest
	Skipped       []CommitSkip // auto-path rows the commit engine could not apply
	Conflicts     []RowOutcome // rows that lost the insert race to a concurrent staging
	NotifyErrs    []string
}

// ExecuteConfirmCode verifies the one-time code for the requester's
// pending batch. A mismatch discards the whole batch; the requester
// must restage. On match each edit becomes a ledger entry routed either
// to auto-application or to director review — atomically per request,
// never partially.
// PRE: Requester has a pending session
// POST: Session is cleared either way; on match every surviving edit
// has exactly one ledger row
func ExecuteConfirmCode(ctx context.Context, input ConfirmCodeInput, deps ConfirmCodeDeps) (ConfirmCodeResult, error) {
	session, err := deps.OTPStore.GetByRequester(ctx, input.Requester)
	if err != nil {
		return ConfirmCodeResult{}, fmt.Errorf("pending session: %w", err)
	}

	if err := session.Verify(input.Code, deps.Now()); err != nil {
		// Whole batch discarded; no partial commit, no retry against
		// the same code.
		if derr := deps.OTPStore.Delete(ctx, input.Requester); derr != nil {
			slog.Error("otp_event", "event", "session_discard_failed", "requester", input.Requester, "error", derr)
		}
		slog.Info("otp_event", "event", "code_rejected", "requester", input.Requester,
			"reason", err.Error())
		return ConfirmCodeResult{}, err
	}

	if err := deps.OTPStore.Delete(ctx, input.Requester); err != nil {
		return ConfirmCodeResult{}, fmt.Errorf("clear session: %w", err)
	}
	slog.Info("otp_event", "event", "code_confirmed", "requester", input.Requester,
		"branch", session.Branch, "rows", len(session.Edits))

	b, err := deps.BranchStore.GetByName(ctx, session.Branch)
	if err != nil {
		return ConfirmCodeResult{}, fmt.Errorf("load branch: %w", err)
	}

	var result ConfirmCodeResult
	now := deps.Now()
	for _, e := range session.Edits {
		r := request.New(session.Requester, session.RequesterEmail, b,
			e.Advisor, e.Product, e.ValueBefore, e.ValueAfter, now)
		id, err := deps.Ledger.Insert(ctx, r)
		if err != nil {
			if errors.Is(err, request.ErrConflictingRequest) {
				// A concurrent staging won the race between our
				// pre-check and this insert. Drop this row only.
				result.Conflicts = append(result.Conflicts, RowOutcome{
					Advisor: e.Advisor, Product: e.Product, Reason: err.Error(),
				})
				continue
			}
			return result, fmt.Errorf("ledger insert: %w", err)
		}
		r.ID = id

		slog.Info("ledger_event", "event", "request_routed",
			"request_id", id, "branch", r.Branch, "advisor", r.Advisor,
			"product", r.Product, "direction", r.Direction,
			"validation_required", r.ValidationRequired)

		if r.ValidationRequired {
			result.PendingReview = append(result.PendingReview, r)
		} else {
			result.AutoApplied = append(result.AutoApplied, r)
		}
	}

	// Auto-appliable rows commit immediately, no director involvement.
	if len(result.AutoApplied) > 0 {
		commit, err := ExecuteCommitChanges(ctx, CommitChangesInput{
			Leader:      session.Requester,
			LeaderEmail: session.RequesterEmail,
			Branch:      b.Name,
			Requests:    result.AutoApplied,
		}, CommitChangesDeps{
			AdvisorStore: deps.AdvisorStore,
			Ledger:       deps.CommitLedger,
			Notifier:     deps.Notifier,
			Now:          deps.Now,
		})
		if err != nil {
			return result, fmt.Errorf("auto-apply: %w", err)
		}
		result.AutoApplied = commit.Applied
		result.Skipped = commit.Skipped
		result.NotifyErrs = append(result.NotifyErrs, commit.NotifyErrs...)
	}

	// Reviewable rows wait for the director; send the review request.
	if len(result.PendingReview) > 0 && b.DirectorEmail != "" {
		subject, body := notify.ReviewRequest(b.DirectorName, session.Requester, b.Name,
			result.PendingReview, deps.ReviewURL)
		if err := deps.Notifier.Dispatch(ctx, outboxDomain.KindReviewRequest, emailAdapter.SendRequest{
			To:      []string{b.DirectorEmail},
			Subject: subject,
		}, body); err != nil {
			result.NotifyErrs = append(result.NotifyErrs, err.Error())
		}
	}

	return result, nil
}

// DiscardPendingSession drops the requester's staged batch without
// confirmation, the only cancellation path before routing.
func DiscardPendingSession(ctx context.Context, requester string, store OTPSessionStore) error {
	if err := store.Delete(ctx, requester); err != nil {
		return fmt.Errorf("discard session: %w", err)
	}
	slog.Info("otp_event", "event", "session_discarded", "requester", requester)
	return nil
}

// Re-exported for callers that branch on the mismatch.
var ErrCodeMismatch = otpDomain.ErrCodeMismatch
