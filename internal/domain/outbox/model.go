// Package outbox models durable retry entries for notifications whose
// delivery failed. Ledger transitions never wait on delivery; a failed
// send lands here and is retried in the background.
package outbox

import (
	"errors"
	"time"
)

// Status constants for the entry lifecycle.
const (
	StatusPending   = "pending"
	StatusRetrying  = "retrying"
	StatusDone      = "done"
	StatusFailed    = "failed"
	StatusAbandoned = "abandoned"
)

// Kind constants naming which workflow notification the entry carries.
const (
	KindVerificationCode  = "verification_code"
	KindReviewRequest     = "review_request"
	KindDecisionResult    = "decision_result"
	KindDeclarationNotice = "declaration_notice"
	KindCommitSummary     = "commit_summary"
)

// Domain errors
var (
	ErrEmptyKind    = errors.New("notification kind is required")
	ErrEmptyPayload = errors.New("payload is required")
)

// Entry is one queued notification. Payload is the JSON-encoded send
// request, replayed verbatim on retry.
type Entry struct {
	ID              string
	Kind            string
	Payload         string
	Status          string
	Attempts        int
	MaxAttempts     int
	LastAttemptedAt time.Time
	CreatedAt       time.Time
	MessageID       string // provider message id once delivered
	ErrorMessage    string // last delivery error
}

// Validate checks that the Entry has valid data.
// PRE: Entry struct is populated
// POST: Returns nil if valid, error otherwise
func (e *Entry) Validate() error {
	if e.Kind == "" {
		return ErrEmptyKind
	}
	if e.Payload == "" {
		return ErrEmptyPayload
	}
	if e.CreatedAt.IsZero() {
		return errors.New("created_at must be set")
	}
	if e.MaxAttempts <= 0 {
		e.MaxAttempts = 5
	}
	return nil
}

// CanRetry reports whether the entry may be attempted again.
func (e *Entry) CanRetry() bool {
	return (e.Status == StatusPending || e.Status == StatusRetrying || e.Status == StatusFailed) &&
		e.Attempts < e.MaxAttempts
}

// IsTerminal reports whether the entry has reached a terminal state.
func (e *Entry) IsTerminal() bool {
	if e.Status == StatusDone || e.Status == StatusAbandoned {
		return true
	}
	return e.Status == StatusFailed && e.Attempts >= e.MaxAttempts
}

// MarkAttempt records a delivery attempt.
// PRE: Entry is in a retryable state
// POST: Attempts incremented, LastAttemptedAt updated, status retrying
func (e *Entry) MarkAttempt() {
	e.Attempts++
	e.LastAttemptedAt = time.Now()
	e.Status = StatusRetrying
}

// MarkDelivered marks the entry as delivered.
// POST: Status done, provider message id recorded
func (e *Entry) MarkDelivered(messageID string) {
	e.Status = StatusDone
	e.MessageID = messageID
	e.ErrorMessage = ""
}

// MarkFailed records a failed attempt; the status only becomes failed
// once the attempt budget is spent.
func (e *Entry) MarkFailed(err error) {
	e.ErrorMessage = err.Error()
	if e.Attempts >= e.MaxAttempts {
		e.Status = StatusFailed
	}
}

// MarkAbandoned marks the entry as abandoned by an operator.
func (e *Entry) MarkAbandoned() {
	e.Status = StatusAbandoned
}

// NextRetryDelay returns the exponential backoff delay before the next
// attempt, capped at maxDelay.
func (e *Entry) NextRetryDelay(baseDelay, maxDelay time.Duration) time.Duration {
	delay := baseDelay * (1 << e.Attempts)
	if delay > maxDelay {
		return maxDelay
	}
	return delay
}
