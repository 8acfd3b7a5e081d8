package orchestrators

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	emailAdapter "percentuais/internal/adapters/email"
	"percentuais/internal/application/notify"
	branchDomain "percentuais/internal/domain/branch"
	otpDomain "percentuais/internal/domain/otp"
	outboxDomain "percentuais/internal/domain/outbox"
	"percentuais/internal/domain/percent"
	"percentuais/internal/domain/request"
)

// BranchStoreForStaging defines the store interface needed by staging.
type BranchStoreForStaging interface {
	GetByName(ctx context.Context, name string) (branchDomain.Branch, error)
	CapsByBranch(ctx context.Context, branchName string) (branchDomain.CapTable, error)
}

// LedgerForStaging is the pending-conflict lookup staging needs.
type LedgerForStaging interface {
	HasPending(ctx context.Context, branch, advisor, product string) (bool, error)
}

// OTPSessionStore defines the session store interface for the OTP gate.
type OTPSessionStore interface {
	Save(ctx context.Context, s otpDomain.Session) error
	GetByRequester(ctx context.Context, requester string) (otpDomain.Session, error)
	Delete(ctx context.Context, requester string) error
}

// EditInput is one edited cell as the presentation layer hands it over:
// raw display-formatted values, normalized here at the boundary.
type EditInput struct {
	Advisor  string
	Product  string
	OldValue string
	NewValue string
}

// RowOutcome reports the per-row result of staging validation. Invalid
// rows never abort the rest of the batch.
type RowOutcome struct {
	Advisor  string
	Product  string
	Accepted bool
	Reason   string // empty when accepted
}

// StageChangesInput carries input for the staging orchestrator.
type StageChangesInput struct {
	Requester      string
	RequesterEmail string
	Branch         string
	Edits          []EditInput
}

// StageChangesDeps holds dependencies for StageChanges.
type StageChangesDeps struct {
	BranchStore BranchStoreForStaging
	Ledger      LedgerForStaging
	OTPStore    OTPSessionStore
	Notifier    *notify.Dispatcher
	SessionTTL  time.Duration
	Now         func() time.Time
}

// StageChangesResult reports validation outcomes and whether a
// verification code went out.
type StageChangesResult struct {
	Outcomes  []RowOutcome
	CodeSent  bool
	NotifyErr string // delivery failure detail, best-effort only
}

// ErrNoChangesDetected is returned when a batch yields zero valid rows.
var ErrNoChangesDetected = errors.New("no changes detected")

// ExecuteStageChanges validates a batch of edited percentage cells for
// one branch and, when at least one row survives, binds the batch to a
// one-time verification code mailed to the requester. No ledger entries
// exist until the code is confirmed.
// PRE: Requester and Branch are non-empty
// POST: Valid rows are held in a pending session; invalid rows are
// reported per row without aborting the batch
func ExecuteStageChanges(ctx context.Context, input StageChangesInput, deps StageChangesDeps) (StageChangesResult, error) {
	if input.Requester == "" || input.Branch == "" {
		return StageChangesResult{}, errors.New("requester and branch are required")
	}

	b, err := deps.BranchStore.GetByName(ctx, input.Branch)
	if err != nil {
		return StageChangesResult{}, fmt.Errorf("load branch: %w", err)
	}
	caps, err := deps.BranchStore.CapsByBranch(ctx, b.Name)
	if err != nil {
		return StageChangesResult{}, fmt.Errorf("load cap table: %w", err)
	}

	var result StageChangesResult
	var valid []request.Edit
	for _, e := range input.Edits {
		outcome := RowOutcome{Advisor: e.Advisor, Product: e.Product}

		before, err := percent.Parse(e.OldValue)
		if err != nil {
			outcome.Reason = fmt.Sprintf("current value %q: %v", e.OldValue, err)
			result.Outcomes = append(result.Outcomes, outcome)
			continue
		}
		after, err := percent.Parse(e.NewValue)
		if err != nil {
			outcome.Reason = fmt.Sprintf("new value %q: %v", e.NewValue, err)
			result.Outcomes = append(result.Outcomes, outcome)
			continue
		}
		if before == after {
			// Untouched cell, not an error; just nothing to stage.
			continue
		}
		if err := branchDomain.CheckCap(b, caps, e.Product, after); err != nil {
			outcome.Reason = err.Error()
			result.Outcomes = append(result.Outcomes, outcome)
			continue
		}
		pending, err := deps.Ledger.HasPending(ctx, b.Name, e.Advisor, e.Product)
		if err != nil {
			return StageChangesResult{}, fmt.Errorf("conflict check: %w", err)
		}
		if pending {
			outcome.Reason = request.ErrConflictingRequest.Error()
			result.Outcomes = append(result.Outcomes, outcome)
			continue
		}

		outcome.Accepted = true
		result.Outcomes = append(result.Outcomes, outcome)
		valid = append(valid, request.Edit{
			Advisor:     e.Advisor,
			Product:     e.Product,
			ValueBefore: before,
			ValueAfter:  after,
		})
	}

	if len(valid) == 0 {
		slog.Info("stage_event", "event", "no_changes", "requester", input.Requester, "branch", b.Name)
		return result, ErrNoChangesDetected
	}

	ttl := deps.SessionTTL
	if ttl <= 0 {
		ttl = otpDomain.DefaultTTL
	}
	session, err := otpDomain.NewSession(input.Requester, input.RequesterEmail, b.Name, valid, ttl, deps.Now())
	if err != nil {
		return result, err
	}
	if err := deps.OTPStore.Save(ctx, session); err != nil {
		return result, fmt.Errorf("save pending session: %w", err)
	}

	subject, body := notify.VerificationCode(input.Requester, session.Code, b.Name)
	err = deps.Notifier.Dispatch(ctx, outboxDomain.KindVerificationCode, emailAdapter.SendRequest{
		To:      []string{input.RequesterEmail},
		Subject: subject,
	}, body)
	if err != nil {
		result.NotifyErr = err.Error()
	} else {
		result.CodeSent = true
	}

	slog.Info("stage_event", "event", "batch_staged",
		"requester", input.Requester, "branch", b.Name,
		"staged_rows", len(valid), "rejected_rows", len(result.Outcomes)-len(valid))
	return result, nil
}
