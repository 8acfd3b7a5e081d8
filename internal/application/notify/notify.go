// Package notify builds and dispatches the workflow's email
// notifications. Bodies are authored as markdown and rendered to HTML
// for the provider. Delivery is best-effort: failures are queued to the
// outbox for retry and surfaced to the caller, but they never block or
// reverse a ledger transition.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/yuin/goldmark"
	goldmarkHTML "github.com/yuin/goldmark/renderer/html"

	emailAdapter "percentuais/internal/adapters/email"
	outboxDomain "percentuais/internal/domain/outbox"
	"percentuais/internal/domain/request"
)

// ErrDeliveryFailed marks a notification that could not be handed to the
// provider; the payload has been queued for retry.
var ErrDeliveryFailed = errors.New("notification delivery failed")

// mdRenderer is a goldmark instance configured for safe HTML output.
// Raw HTML in markdown input is escaped (WithUnsafe is NOT set).
var mdRenderer = goldmark.New(
	goldmark.WithRendererOptions(
		goldmarkHTML.WithHardWraps(),
	),
)

// OutboxStoreForDispatch is the store interface the dispatcher needs.
type OutboxStoreForDispatch interface {
	Save(ctx context.Context, e outboxDomain.Entry) error
}

// Dispatcher sends workflow notifications and queues failed ones.
type Dispatcher struct {
	Sender     emailAdapter.Sender
	Outbox     OutboxStoreForDispatch
	From       string // default sender address when the request has none
	GenerateID func() string
	Now        func() time.Time
}

// Dispatch renders markdown to HTML and sends. On provider failure the
// request is persisted to the outbox keyed by kind and the caller gets
// ErrDeliveryFailed wrapped around the cause.
// PRE: req has at least one recipient
// POST: Message is sent, or queued for retry
func (d *Dispatcher) Dispatch(ctx context.Context, kind string, req emailAdapter.SendRequest, markdownBody string) error {
	html, err := renderMarkdown(markdownBody)
	if err != nil {
		return fmt.Errorf("render notification body: %w", err)
	}
	req.HTML = html
	if req.From == "" {
		req.From = d.From
	}

	if _, err := d.Sender.Send(ctx, req); err != nil {
		if qerr := d.enqueue(ctx, kind, req); qerr != nil {
			slog.Error("notify_enqueue_failed", "kind", kind, "error", qerr)
		}
		return fmt.Errorf("%w (%s): %v", ErrDeliveryFailed, kind, err)
	}
	return nil
}

// enqueue stores the failed send request for background retry.
func (d *Dispatcher) enqueue(ctx context.Context, kind string, req emailAdapter.SendRequest) error {
	payload, err := json.Marshal(req)
	if err != nil {
		return err
	}
	entry := outboxDomain.Entry{
		ID:        d.GenerateID(),
		Kind:      kind,
		Payload:   string(payload),
		Status:    outboxDomain.StatusPending,
		CreatedAt: d.Now(),
	}
	if err := entry.Validate(); err != nil {
		return err
	}
	slog.Info("notify_queued_for_retry", "kind", kind, "entry_id", entry.ID, "to", req.To)
	return d.Outbox.Save(ctx, entry)
}

// renderMarkdown converts a markdown body to HTML.
func renderMarkdown(md string) (string, error) {
	var buf bytes.Buffer
	if err := mdRenderer.Convert([]byte(md), &buf); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// --- Message builders ---

// VerificationCode builds the OTP email for a staged batch.
func VerificationCode(requester, code, branchName string) (subject, body string) {
	subject = "Verification code - percentage changes"
	body = fmt.Sprintf(
		"Hello %s,\n\nYour verification code for the staged percentage changes in **%s** is: **%s**\n\nIf this wasn't you, ignore this email.",
		requester, branchName, code)
	return subject, body
}

// ReviewRequest builds the director email asking for review of routed
// requests, with a deep link to the review page.
func ReviewRequest(directorName, leader, branchName string, rows []request.ChangeRequest, reviewURL string) (subject, body string) {
	subject = fmt.Sprintf("[Director] Approval requested in %s", branchName)
	var b strings.Builder
	fmt.Fprintf(&b, "Hello %s,\n\nLeader %s requested the following changes in %s:\n\n", directorName, leader, branchName)
	for _, r := range rows {
		fmt.Fprintf(&b, "- %s: **%s** %s%% → %s%% (%s)\n",
			r.Advisor, r.Product, r.ValueBefore.Display(), r.ValueAfter.Display(), r.Direction)
	}
	if reviewURL != "" {
		fmt.Fprintf(&b, "\nOpen the review page: %s\n", reviewURL)
	}
	b.WriteString("\nThank you.")
	return subject, b.String()
}

// DecisionResult builds the outcome email for one reviewed request.
func DecisionResult(r request.ChangeRequest) (subject, body string) {
	status := "APPROVED"
	if r.ApprovalState == request.StateRejected {
		status = "REJECTED"
	}
	subject = fmt.Sprintf("[Review] Change %s in %s", status, r.Branch)
	body = fmt.Sprintf(
		"Hello,\n\nThe change of **%s** from %s%% to %s%% for %s in %s was %s by the director.",
		r.Product, r.ValueBefore.Display(), r.ValueAfter.Display(), r.Advisor, r.Branch, status)
	if r.ApprovalState == request.StateRejected {
		body += fmt.Sprintf("\n\nReason: %s", r.ReviewerComment)
	}
	return subject, body
}

// DeclarationNotice builds the compliance notice recorded when the
// director accepts the declaration for an approved batch.
func DeclarationNotice(directorName, branchName string, rows []request.ChangeRequest, when time.Time) (subject, body string) {
	subject = fmt.Sprintf("[Compliance] Declaration accepted for %s", branchName)
	var b strings.Builder
	fmt.Fprintf(&b,
		"Director %s declared on %s that the following changes in %s reflect the existing agreement with each advisor and internal policy:\n\n",
		directorName, when.Format("02/01/2006 15:04:05"), branchName)
	for _, r := range rows {
		fmt.Fprintf(&b, "- %s: **%s** %s%% → %s%%\n",
			r.Advisor, r.Product, r.ValueBefore.Display(), r.ValueAfter.Display())
	}
	return subject, b.String()
}

// LeaderSummary builds the post-commit summary for the requesting leader.
func LeaderSummary(leader, branchName string, rows []request.ChangeRequest, when time.Time) (subject, body string) {
	subject = fmt.Sprintf("[Leader] Summary of changes in %s", branchName)
	var b strings.Builder
	fmt.Fprintf(&b, "Hello %s,\n\nThe following changes were applied in %s on %s:\n\n",
		leader, branchName, when.Format("02/01/2006 15:04:05"))
	for _, r := range rows {
		fmt.Fprintf(&b, "- %s: **%s** %s%% → %s%%\n",
			r.Advisor, r.Product, r.ValueBefore.Display(), r.ValueAfter.Display())
	}
	return subject, b.String()
}

// AdvisorSummary builds the post-commit summary for one affected
// advisor, listing all of their changed products.
func AdvisorSummary(advisorName, leader, branchName string, rows []request.ChangeRequest, when time.Time) (subject, body string) {
	subject = fmt.Sprintf("[You] Summary of changes in %s", branchName)
	var b strings.Builder
	fmt.Fprintf(&b, "Hello %s,\n\nLeader %s applied the following changes in %s on %s:\n\n",
		advisorName, leader, branchName, when.Format("02/01/2006 15:04:05"))
	for _, r := range rows {
		fmt.Fprintf(&b, "- **%s**: %s%% → %s%%\n",
			r.Product, r.ValueBefore.Display(), r.ValueAfter.Display())
	}
	return subject, b.String()
}
