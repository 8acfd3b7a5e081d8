package web

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"percentuais/internal/adapters/http/middleware"
	"percentuais/internal/application/orchestrators"
	"percentuais/internal/application/projections"
	otpDomain "percentuais/internal/domain/otp"
	"percentuais/internal/domain/request"
)

// internalError logs the real error and returns a generic message to the client.
// This prevents leaking internal details per OWASP A05.
func internalError(w http.ResponseWriter, err error) {
	slog.Error("internal_error", "error", err.Error())
	http.Error(w, "internal server error", http.StatusInternalServerError)
}

// strictDecode decodes JSON from the request body, rejecting unknown fields.
func strictDecode(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("encode_response", "error", err.Error())
	}
}

// requireIdentity resolves the forwarded caller identity or rejects.
func requireIdentity(w http.ResponseWriter, r *http.Request) (middleware.Identity, bool) {
	id, ok := middleware.GetIdentity(r.Context())
	if !ok {
		http.Error(w, "missing caller identity", http.StatusUnauthorized)
	}
	return id, ok
}

// handleStageChanges handles POST /api/changes/stage: validate a batch
// of edited cells and mail the requester a verification code.
func (s *Server) handleStageChanges(w http.ResponseWriter, r *http.Request) {
	id, ok := requireIdentity(w, r)
	if !ok {
		return
	}

	var input struct {
		Branch string `json:"branch"`
		Edits  []struct {
			Advisor  string `json:"advisor"`
			Product  string `json:"product"`
			OldValue string `json:"old_value"`
			NewValue string `json:"new_value"`
		} `json:"edits"`
	}
	if err := strictDecode(r, &input); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	edits := make([]orchestrators.EditInput, 0, len(input.Edits))
	for _, e := range input.Edits {
		edits = append(edits, orchestrators.EditInput{
			Advisor:  e.Advisor,
			Product:  e.Product,
			OldValue: e.OldValue,
			NewValue: e.NewValue,
		})
	}

	result, err := orchestrators.ExecuteStageChanges(r.Context(), orchestrators.StageChangesInput{
		Requester:      id.Name,
		RequesterEmail: id.Email,
		Branch:         input.Branch,
		Edits:          edits,
	}, orchestrators.StageChangesDeps{
		BranchStore: s.stores.BranchStore,
		Ledger:      s.stores.Ledger,
		OTPStore:    s.stores.OTPStore,
		Notifier:    s.notifier,
		SessionTTL:  s.sessionTTL,
		Now:         s.now,
	})
	if err != nil {
		if errors.Is(err, orchestrators.ErrNoChangesDetected) {
			writeJSON(w, http.StatusUnprocessableEntity, map[string]any{
				"error":    err.Error(),
				"outcomes": result.Outcomes,
			})
			return
		}
		internalError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// handleConfirmCode handles POST /api/changes/confirm: verify the code
// and route every staged edit into the ledger.
func (s *Server) handleConfirmCode(w http.ResponseWriter, r *http.Request) {
	id, ok := requireIdentity(w, r)
	if !ok {
		return
	}

	var input struct {
		Code string `json:"code"`
	}
	if err := strictDecode(r, &input); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	result, err := orchestrators.ExecuteConfirmCode(r.Context(), orchestrators.ConfirmCodeInput{
		Requester: id.Name,
		Code:      input.Code,
	}, orchestrators.ConfirmCodeDeps{
		OTPStore:     s.stores.OTPStore,
		BranchStore:  s.stores.BranchStore,
		Ledger:       s.stores.Ledger,
		AdvisorStore: s.stores.AdvisorStore,
		CommitLedger: s.stores.Ledger,
		Notifier:     s.notifier,
		ReviewURL:    s.reviewBaseURL,
		Now:          s.now,
	})
	if err != nil {
		switch {
		case errors.Is(err, otpDomain.ErrCodeMismatch), errors.Is(err, otpDomain.ErrSessionExpired):
			http.Error(w, err.Error(), http.StatusForbidden)
		default:
			internalError(w, err)
		}
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// handleDiscardSession handles POST /api/changes/discard: drop the
// caller's staged batch without confirming it.
func (s *Server) handleDiscardSession(w http.ResponseWriter, r *http.Request) {
	id, ok := requireIdentity(w, r)
	if !ok {
		return
	}
	if err := orchestrators.DiscardPendingSession(r.Context(), id.Name, s.stores.OTPStore); err != nil {
		internalError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "discarded"})
}

// handleReviewQueue handles GET /api/reviews?branch=: the undecided
// requests awaiting the director.
func (s *Server) handleReviewQueue(w http.ResponseWriter, r *http.Request) {
	if _, ok := requireIdentity(w, r); !ok {
		return
	}
	branch := r.URL.Query().Get("branch")
	if branch == "" {
		http.Error(w, "branch is required", http.StatusBadRequest)
		return
	}

	result, err := projections.QueryGetReviewQueue(r.Context(), projections.GetReviewQueueQuery{
		Branch: branch,
	}, projections.GetReviewQueueDeps{
		Ledger:      s.stores.Ledger,
		BranchStore: s.stores.BranchStore,
	})
	if err != nil {
		internalError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// handleConfirmReview handles POST /api/reviews/confirm: apply the
// director's approve/reject decisions.
func (s *Server) handleConfirmReview(w http.ResponseWriter, r *http.Request) {
	id, ok := requireIdentity(w, r)
	if !ok {
		return
	}

	var input struct {
		Branch    string `json:"branch"`
		Decisions []struct {
			RequestID int64  `json:"request_id"`
			Approve   bool   `json:"approve"`
			Reject    bool   `json:"reject"`
			Comment   string `json:"comment"`
		} `json:"decisions"`
	}
	if err := strictDecode(r, &input); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	decisions := make([]orchestrators.Decision, 0, len(input.Decisions))
	for _, d := range input.Decisions {
		decisions = append(decisions, orchestrators.Decision{
			RequestID: d.RequestID,
			Approve:   d.Approve,
			Reject:    d.Reject,
			Comment:   d.Comment,
		})
	}

	result, err := orchestrators.ExecuteConfirmReview(r.Context(), orchestrators.ConfirmReviewInput{
		Branch:    input.Branch,
		Reviewer:  id.Name,
		Decisions: decisions,
	}, orchestrators.ConfirmReviewDeps{
		Ledger:      s.stores.Ledger,
		BranchStore: s.stores.BranchStore,
		Notifier:    s.notifier,
		Now:         s.now,
	})
	if err != nil {
		switch {
		case errors.Is(err, request.ErrCommentRequired):
			writeJSON(w, http.StatusUnprocessableEntity, map[string]any{
				"error":                   err.Error(),
				"blocked_missing_comment": result.BlockedMissingComment,
			})
		case errors.Is(err, request.ErrAlreadyDecided):
			http.Error(w, err.Error(), http.StatusConflict)
		case errors.Is(err, orchestrators.ErrDuplicateDecision),
			errors.Is(err, orchestrators.ErrDecisionOutsideBranch):
			http.Error(w, err.Error(), http.StatusBadRequest)
		default:
			internalError(w, err)
		}
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// handleAcceptDeclaration handles POST /api/declarations/accept: record
// the director's compliance declaration and apply the approved batch.
func (s *Server) handleAcceptDeclaration(w http.ResponseWriter, r *http.Request) {
	id, ok := requireIdentity(w, r)
	if !ok {
		return
	}

	var input struct {
		Branch string `json:"branch"`
	}
	if err := strictDecode(r, &input); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	result, err := orchestrators.ExecuteAcceptDeclaration(r.Context(), orchestrators.AcceptDeclarationInput{
		Branch:        input.Branch,
		Director:      id.Name,
		DirectorEmail: id.Email,
	}, s.declarationDeps())
	if err != nil {
		internalError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// handleDeclineDeclaration handles POST /api/declarations/decline: back
// out of the declaration, leaving approved rows held.
func (s *Server) handleDeclineDeclaration(w http.ResponseWriter, r *http.Request) {
	id, ok := requireIdentity(w, r)
	if !ok {
		return
	}

	var input struct {
		Branch string `json:"branch"`
	}
	if err := strictDecode(r, &input); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	held, err := orchestrators.ExecuteDeclineDeclaration(r.Context(), orchestrators.AcceptDeclarationInput{
		Branch:   input.Branch,
		Director: id.Name,
	}, s.declarationDeps())
	if err != nil {
		internalError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "held", "held": held})
}

func (s *Server) declarationDeps() orchestrators.AcceptDeclarationDeps {
	return orchestrators.AcceptDeclarationDeps{
		Ledger:            s.stores.Ledger,
		AdvisorStore:      s.stores.AdvisorStore,
		CommitLedger:      s.stores.Ledger,
		Notifier:          s.notifier,
		ComplianceAddress: s.complianceAddress,
		Now:               s.now,
	}
}

// handleChangeStats handles GET /api/stats?branch=: ledger counts for
// the oversight dashboard.
func (s *Server) handleChangeStats(w http.ResponseWriter, r *http.Request) {
	if _, ok := requireIdentity(w, r); !ok {
		return
	}
	branch := r.URL.Query().Get("branch")
	if branch == "" {
		http.Error(w, "branch is required", http.StatusBadRequest)
		return
	}

	result, err := projections.QueryGetChangeStats(r.Context(), projections.GetChangeStatsQuery{
		Branch: branch,
	}, projections.GetChangeStatsDeps{Ledger: s.stores.Ledger})
	if err != nil {
		internalError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// handleBranchGrid handles GET /api/branches/{name}/grid: the current
// percentage table the leader edits against, ceilings included.
func (s *Server) handleBranchGrid(w http.ResponseWriter, r *http.Request) {
	if _, ok := requireIdentity(w, r); !ok {
		return
	}
	name := r.PathValue("name")

	result, err := projections.QueryGetPercentageGrid(r.Context(), projections.GetPercentageGridQuery{
		Branch: name,
	}, projections.GetPercentageGridDeps{
		AdvisorStore: s.stores.AdvisorStore,
		BranchStore:  s.stores.BranchStore,
	})
	if err != nil {
		internalError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}
