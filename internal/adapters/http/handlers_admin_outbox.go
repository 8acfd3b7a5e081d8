package web

import (
	"net/http"
	"strconv"

	"percentuais/internal/domain/outbox"
)

// handleOutboxList handles GET /api/admin/outbox: list queued or failed
// notification entries for operators.
func (s *Server) handleOutboxList(w http.ResponseWriter, r *http.Request) {
	if _, ok := requireIdentity(w, r); !ok {
		return
	}

	limit := 50
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if n, err := strconv.Atoi(limitStr); err == nil && n > 0 && n <= 100 {
			limit = n
		}
	}

	var entries []outbox.Entry
	var err error
	if r.URL.Query().Get("status") == "pending" {
		entries, err = s.stores.OutboxStore.ListPending(r.Context(), limit)
	} else {
		entries, err = s.stores.OutboxStore.ListFailed(r.Context(), limit)
	}
	if err != nil {
		internalError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

// handleOutboxRetry handles POST /api/admin/outbox/retry: manually
// replay one queued entry.
func (s *Server) handleOutboxRetry(w http.ResponseWriter, r *http.Request) {
	if _, ok := requireIdentity(w, r); !ok {
		return
	}

	var input struct {
		EntryID string `json:"entry_id"`
	}
	if err := strictDecode(r, &input); err != nil || input.EntryID == "" {
		http.Error(w, "entry_id is required", http.StatusBadRequest)
		return
	}

	if err := s.processor.ProcessSingle(r.Context(), input.EntryID); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "retry triggered"})
}

// handleOutboxAbandon handles POST /api/admin/outbox/abandon: stop
// retrying one queued entry.
func (s *Server) handleOutboxAbandon(w http.ResponseWriter, r *http.Request) {
	if _, ok := requireIdentity(w, r); !ok {
		return
	}

	var input struct {
		EntryID string `json:"entry_id"`
	}
	if err := strictDecode(r, &input); err != nil || input.EntryID == "" {
		http.Error(w, "entry_id is required", http.StatusBadRequest)
		return
	}

	if err := s.processor.AbandonEntry(r.Context(), input.EntryID); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "abandoned"})
}
