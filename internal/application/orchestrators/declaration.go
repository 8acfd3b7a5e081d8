package orchestrators

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	emailAdapter "percentuais/internal/adapters/email"
	"percentuais/internal/application/notify"
	outboxDomain "percentuais/internal/domain/outbox"
	"percentuais/internal/domain/request"
)

// LedgerForDeclaration is the ledger surface the declaration gate needs.
type LedgerForDeclaration interface {
	ListByState(ctx context.Context, branch, state string) ([]request.ChangeRequest, error)
}

// AcceptDeclarationInput identifies the director accepting the
// declaration for one branch's approved batch.
type AcceptDeclarationInput struct {
	Branch        string
	Director      string
	DirectorEmail string
}

// AcceptDeclarationDeps holds dependencies for AcceptDeclaration.
type AcceptDeclarationDeps struct {
	Ledger            LedgerForDeclaration
	AdvisorStore      AdvisorStoreForCommit
	CommitLedger      LedgerForCommit
	Notifier          *notify.Dispatcher
	ComplianceAddress string // extra recipient of the declaration record
	Now               func() time.Time
}

// AcceptDeclarationResult reports what the declaration applied.
type AcceptDeclarationResult struct {
	Applied    []request.ChangeRequest
	Skipped    []CommitSkip
	NotifyErrs []string
}

// ExecuteAcceptDeclaration records the director's compliance declaration
// for every approved request in the branch and applies the changes. The
// declaration is a single affirmation covering the whole batch; there is
// no per-row declaration. With nothing approved the call is a no-op.
// PRE: Director identifies the declaring reviewer
// POST: Every approved_pending_declaration row in the branch is applied;
// the declaration record is mailed to the director and to compliance
func ExecuteAcceptDeclaration(ctx context.Context, input AcceptDeclarationInput, deps AcceptDeclarationDeps) (AcceptDeclarationResult, error) {
	var result AcceptDeclarationResult

	rows, err := deps.Ledger.ListByState(ctx, input.Branch, request.StateApprovedPendingDecl)
	if err != nil {
		return result, fmt.Errorf("list approved requests: %w", err)
	}
	if len(rows) == 0 {
		slog.Info("declaration_event", "event", "nothing_to_declare",
			"branch", input.Branch, "director", input.Director)
		return result, nil
	}

	// Held rows may come from more than one leader; commit per requester
	// so every leader gets their own summary. Groups keep ledger order.
	type heldBatch struct {
		leader, email string
		rows          []request.ChangeRequest
	}
	var batches []heldBatch
	groupIdx := make(map[string]int)
	for _, r := range rows {
		i, ok := groupIdx[r.Requester]
		if !ok {
			i = len(batches)
			groupIdx[r.Requester] = i
			batches = append(batches, heldBatch{leader: r.Requester, email: r.RequesterEmail})
		}
		batches[i].rows = append(batches[i].rows, r)
	}

	for _, batch := range batches {
		commit, err := ExecuteCommitChanges(ctx, CommitChangesInput{
			Leader:      batch.leader,
			LeaderEmail: batch.email,
			Branch:      input.Branch,
			Requests:    batch.rows,
		}, CommitChangesDeps{
			AdvisorStore: deps.AdvisorStore,
			Ledger:       deps.CommitLedger,
			Notifier:     deps.Notifier,
			Now:          deps.Now,
		})
		if err != nil {
			return result, fmt.Errorf("apply declared batch: %w", err)
		}
		result.Applied = append(result.Applied, commit.Applied...)
		result.Skipped = append(result.Skipped, commit.Skipped...)
		result.NotifyErrs = append(result.NotifyErrs, commit.NotifyErrs...)
	}

	slog.Info("declaration_event", "event", "declaration_accepted",
		"branch", input.Branch, "director", input.Director,
		"applied", len(result.Applied), "skipped", len(result.Skipped))

	// The declaration record itself: mailed to the director and, when
	// configured, to the compliance address.
	recipients := []string{input.DirectorEmail}
	if deps.ComplianceAddress != "" {
		recipients = append(recipients, deps.ComplianceAddress)
	}
	subject, body := notify.DeclarationNotice(input.Director, input.Branch, result.Applied, deps.Now())
	if err := deps.Notifier.Dispatch(ctx, outboxDomain.KindDeclarationNotice, emailAdapter.SendRequest{
		To:      recipients,
		Subject: subject,
	}, body); err != nil {
		result.NotifyErrs = append(result.NotifyErrs, err.Error())
	}

	return result, nil
}

// ExecuteDeclineDeclaration records that the director backed out of the
// declaration. Approved rows stay in approved_pending_declaration; the
// ledger is untouched and the declaration can be retried later.
func ExecuteDeclineDeclaration(ctx context.Context, input AcceptDeclarationInput, deps AcceptDeclarationDeps) (int, error) {
	rows, err := deps.Ledger.ListByState(ctx, input.Branch, request.StateApprovedPendingDecl)
	if err != nil {
		return 0, fmt.Errorf("list approved requests: %w", err)
	}
	slog.Info("declaration_event", "event", "declaration_declined",
		"branch", input.Branch, "director", input.Director, "held", len(rows))
	return len(rows), nil
}
