// Package request models a ChangeRequest: one staged edit to the
// commission percentage an advisor receives for one product, together
// with the approval state machine it moves through.
package request

import (
	"errors"
	"strings"
	"time"

	"percentuais/internal/domain/branch"
	"percentuais/internal/domain/percent"
)

// Direction of a value change.
const (
	DirectionIncrease  = "increase"
	DirectionReduction = "reduction"
)

// Approval states. A request is created in StatePendingReview or
// StateAutoApplied and moves through the machine exactly once:
//
//	pending_review -> rejected                               (terminal)
//	pending_review -> approved_pending_declaration -> applied (terminal)
//	auto_applied   -> applied                                 (terminal)
const (
	StateAutoApplied         = "auto_applied"
	StatePendingReview       = "pending_review"
	StateApprovedPendingDecl = "approved_pending_declaration"
	StateApplied             = "applied"
	StateRejected            = "rejected"
)

// Domain errors
var (
	ErrEmptyBranch        = errors.New("branch is required")
	ErrEmptyAdvisor       = errors.New("advisor is required")
	ErrEmptyProduct       = errors.New("product is required")
	ErrEmptyRequester     = errors.New("requester is required")
	ErrNoChange           = errors.New("new value equals the current value")
	ErrCommentRequired    = errors.New("a rejection requires a non-empty reviewer comment")
	ErrInvalidTransition  = errors.New("invalid approval state transition")
	ErrAlreadyDecided     = errors.New("request has already been decided")
	ErrConflictingRequest = errors.New("an unresolved change request is already pending for this advisor and product")
)

// Edit is one validated cell change staged by a leader, held in the OTP
// session until the code is confirmed. No ledger entry exists yet.
type Edit struct {
	Advisor     string              `json:"advisor"`
	Product     string              `json:"product"`
	ValueBefore percent.BasisPoints `json:"value_before"`
	ValueAfter  percent.BasisPoints `json:"value_after"`
}

// ChangeRequest is one row of the audit ledger. Identifying fields are
// immutable after creation; only ApprovalState and ReviewerComment change.
type ChangeRequest struct {
	ID                 int64
	CreatedAt          time.Time
	Requester          string
	RequesterEmail     string
	Branch             string
	Advisor            string
	Product            string
	ValueBefore        percent.BasisPoints
	ValueAfter         percent.BasisPoints
	Direction          string
	ValidationRequired bool
	ApprovalState      string
	ReviewerComment    string
}

// New builds a ChangeRequest for a confirmed edit, deriving direction and
// routing. The ledger assigns the ID at insertion.
// PRE: before != after; identifying fields are non-empty
// POST: Returns a request in pending_review or auto_applied state
func New(requester, requesterEmail string, b branch.Branch, advisor, product string, before, after percent.BasisPoints, now time.Time) ChangeRequest {
	direction := DirectionIncrease
	if after < before {
		direction = DirectionReduction
	}
	required := ValidationRequired(b.Segment, direction)
	state := StateAutoApplied
	if required {
		state = StatePendingReview
	}
	return ChangeRequest{
		CreatedAt:          now,
		Requester:          requester,
		RequesterEmail:     requesterEmail,
		Branch:             b.Name,
		Advisor:            advisor,
		Product:            product,
		ValueBefore:        before,
		ValueAfter:         after,
		Direction:          direction,
		ValidationRequired: required,
		ApprovalState:      state,
	}
}

// ValidationRequired decides whether a change needs director review.
// Pure function of segment and direction; computed once at creation and
// never recomputed.
//   - B2C branches: every change is reviewed, increases included.
//   - B2B branches: only reductions are reviewed; increases auto-apply.
func ValidationRequired(segment, direction string) bool {
	if segment == branch.SegmentB2C {
		return true
	}
	return direction == DirectionReduction
}

// Validate checks the identifying fields of a request.
// PRE: struct is populated
// POST: Returns nil if valid, error otherwise
func (r *ChangeRequest) Validate() error {
	if strings.TrimSpace(r.Requester) == "" {
		return ErrEmptyRequester
	}
	if strings.TrimSpace(r.Branch) == "" {
		return ErrEmptyBranch
	}
	if strings.TrimSpace(r.Advisor) == "" {
		return ErrEmptyAdvisor
	}
	if strings.TrimSpace(r.Product) == "" {
		return ErrEmptyProduct
	}
	if r.ValueBefore == r.ValueAfter {
		return ErrNoChange
	}
	return nil
}

// Undecided reports whether a pending-review request still awaits a
// director decision. An empty reviewer comment is the signal: rejections
// always record one, and approval clears it only after application.
func (r *ChangeRequest) Undecided() bool {
	return r.ApprovalState == StatePendingReview &&
		r.ValidationRequired &&
		strings.TrimSpace(r.ReviewerComment) == ""
}

// IsTerminal reports whether the request reached a terminal state.
func (r *ChangeRequest) IsTerminal() bool {
	return r.ApprovalState == StateApplied || r.ApprovalState == StateRejected
}

// Reject transitions a pending-review request to rejected.
// Rejections are terminal and must carry the reviewer's reason.
// PRE: request is in pending_review
// POST: State is rejected, comment recorded
func (r *ChangeRequest) Reject(comment string) error {
	if r.ApprovalState != StatePendingReview {
		return ErrInvalidTransition
	}
	if strings.TrimSpace(comment) == "" {
		return ErrCommentRequired
	}
	r.ApprovalState = StateRejected
	r.ReviewerComment = comment
	return nil
}

// Approve transitions a pending-review request to
// approved_pending_declaration. The change is not applied yet; the
// reviewer still owes the compliance declaration.
// PRE: request is in pending_review
// POST: State is approved_pending_declaration
func (r *ChangeRequest) Approve() error {
	if r.ApprovalState != StatePendingReview {
		return ErrInvalidTransition
	}
	r.ApprovalState = StateApprovedPendingDecl
	return nil
}

// MarkApplied folds the request into the applied terminal state. Valid
// from auto_applied (review bypassed) and approved_pending_declaration
// (declaration accepted). Approval needs no comment, so any comment is
// cleared. Idempotent: applying an applied request is a no-op.
// PRE: request is auto_applied, approved_pending_declaration, or applied
// POST: State is applied, comment empty
func (r *ChangeRequest) MarkApplied() error {
	switch r.ApprovalState {
	case StateAutoApplied, StateApprovedPendingDecl:
		r.ApprovalState = StateApplied
		r.ReviewerComment = ""
		return nil
	case StateApplied:
		return nil
	default:
		return ErrInvalidTransition
	}
}
