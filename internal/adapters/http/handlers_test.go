package web

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	emailAdapter "percentuais/internal/adapters/email"
	"percentuais/internal/adapters/storage"
	advisorStore "percentuais/internal/adapters/storage/advisor"
	branchStore "percentuais/internal/adapters/storage/branch"
	ledgerStore "percentuais/internal/adapters/storage/ledger"
	otpStore "percentuais/internal/adapters/storage/otp"
	outboxStore "percentuais/internal/adapters/storage/outbox"
	"percentuais/internal/application/notify"
	"percentuais/internal/application/orchestrators"
	advisorDomain "percentuais/internal/domain/advisor"
	branchDomain "percentuais/internal/domain/branch"
	requestDomain "percentuais/internal/domain/request"
)

// recordingSender captures outgoing mail instead of calling a provider.
type recordingSender struct {
	sent []emailAdapter.SendRequest
}

// Send implements the Sender interface for testing.
// PRE: req has at least one recipient
// POST: req is recorded and a synthetic message id returned
func (s *recordingSender) Send(ctx context.Context, req emailAdapter.SendRequest) (emailAdapter.SendResult, error) {
	s.sent = append(s.sent, req)
	return emailAdapter.SendResult{MessageID: "test-msg", SentAt: time.Now()}, nil
}

type testEnv struct {
	handler http.Handler
	stores  *Stores
	sender  *recordingSender
}

// newTestEnv builds a full server over in-memory SQLite stores.
func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("failed to open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := storage.InitDB(db); err != nil {
		t.Fatalf("failed to init schema: %v", err)
	}

	st := &Stores{
		Ledger:       ledgerStore.NewSQLiteStore(db),
		BranchStore:  branchStore.NewSQLiteStore(db),
		AdvisorStore: advisorStore.NewSQLiteStore(db),
		OTPStore:     otpStore.NewSQLiteStore(db),
		OutboxStore:  outboxStore.NewSQLiteStore(db),
	}
	sender := &recordingSender{}
	notifier := &notify.Dispatcher{
		Sender:     sender,
		Outbox:     st.OutboxStore,
		From:       "Percentuais <no-reply@percentuais.local>",
		GenerateID: func() string { return uuid.New().String() },
		Now:        time.Now,
	}
	processor := orchestrators.NewOutboxProcessor(st.OutboxStore, sender)

	// Keep the limiter out of the way; these tests hammer one address.
	RateLimitPerSecond = 1000

	srv := NewServer(st, notifier, processor, Options{
		ReviewBaseURL:     "http://test/reviews",
		ComplianceAddress: "compliance@x.com",
		SessionTTL:        10 * time.Minute,
	})
	return &testEnv{handler: NewMux(srv), stores: st, sender: sender}
}

// seedBranch installs a B2B branch with caps and one advisor.
func (e *testEnv) seedBranch(t *testing.T) {
	t.Helper()
	ctx := context.Background()
	if err := e.stores.BranchStore.Save(ctx, branchDomain.Branch{
		ID: "br-1", Name: "Centro", Segment: branchDomain.SegmentB2B,
		LeaderName: "Ana", LeaderEmail: "ana@x.com",
		DirectorName: "Diana", DirectorEmail: "diana@x.com",
	}); err != nil {
		t.Fatal(err)
	}
	if err := e.stores.BranchStore.SaveCap(ctx, branchDomain.Cap{ID: "cap-1", Branch: "Centro", Product: "RV", Ceiling: 4000}); err != nil {
		t.Fatal(err)
	}
	if err := e.stores.AdvisorStore.Save(ctx, advisorDomain.Advisor{
		ID: "adv-1", Initials: "BR", Name: "Bruno", Email: "bruno@x.com", Branch: "Centro",
	}); err != nil {
		t.Fatal(err)
	}
	if err := e.stores.AdvisorStore.UpdatePercentage(ctx, "adv-1", "RV", 3000); err != nil {
		t.Fatal(err)
	}
}

// asUser builds a request carrying the forwarded identity headers.
func asUser(method, target, body, name, email string) *http.Request {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	req.Header.Set("X-Forwarded-User", name)
	req.Header.Set("X-Forwarded-Email", email)
	return req
}

func TestStageChanges_Unauthenticated(t *testing.T) {
	env := newTestEnv(t)
	req := httptest.NewRequest("POST", "/api/changes/stage", strings.NewReader(`{"branch":"Centro","edits":[]}`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	env.handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("got %d, want %d", rec.Code, http.StatusUnauthorized)
	}
}

func TestStageChanges_UnknownField(t *testing.T) {
	env := newTestEnv(t)
	env.seedBranch(t)
	body := `{"branch":"Centro","surprise":true}`
	rec := httptest.NewRecorder()
	env.handler.ServeHTTP(rec, asUser("POST", "/api/changes/stage", body, "Ana", "ana@x.com"))

	if rec.Code != http.StatusBadRequest {
		t.Errorf("got %d, want %d", rec.Code, http.StatusBadRequest)
	}
}

func TestStageChanges_NoValidRows(t *testing.T) {
	env := newTestEnv(t)
	env.seedBranch(t)
	body := `{"branch":"Centro","edits":[{"advisor":"Bruno","product":"RV","old_value":"30","new_value":"banana"}]}`
	rec := httptest.NewRecorder()
	env.handler.ServeHTTP(rec, asUser("POST", "/api/changes/stage", body, "Ana", "ana@x.com"))

	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("got %d, want %d. Body: %s", rec.Code, http.StatusUnprocessableEntity, rec.Body.String())
	}
	var resp struct {
		Error    string `json:"error"`
		Outcomes []struct {
			Advisor  string
			Accepted bool
			Reason   string
		} `json:"outcomes"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(resp.Outcomes) != 1 || resp.Outcomes[0].Accepted {
		t.Errorf("expected one rejected outcome, got %+v", resp.Outcomes)
	}
}

func TestStageThenConfirm_EndToEnd(t *testing.T) {
	env := newTestEnv(t)
	env.seedBranch(t)
	ctx := context.Background()

	// Stage a B2B increase. That path auto-applies after the code check.
	body := `{"branch":"Centro","edits":[{"advisor":"Bruno","product":"RV","old_value":"30","new_value":"35"}]}`
	rec := httptest.NewRecorder()
	env.handler.ServeHTTP(rec, asUser("POST", "/api/changes/stage", body, "Ana", "ana@x.com"))
	if rec.Code != http.StatusOK {
		t.Fatalf("stage: got %d. Body: %s", rec.Code, rec.Body.String())
	}
	var staged struct{ CodeSent bool }
	if err := json.NewDecoder(rec.Body).Decode(&staged); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if !staged.CodeSent {
		t.Fatal("expected the verification code to be sent")
	}
	if len(env.sender.sent) != 1 || env.sender.sent[0].To[0] != "ana@x.com" {
		t.Fatalf("code email not sent to requester: %+v", env.sender.sent)
	}

	// A wrong code is rejected and discards the session.
	rec = httptest.NewRecorder()
	env.handler.ServeHTTP(rec, asUser("POST", "/api/changes/confirm", `{"code":"000000"}`, "Ana", "ana@x.com"))
	if rec.Code != http.StatusForbidden {
		t.Fatalf("wrong code: got %d, want %d", rec.Code, http.StatusForbidden)
	}

	// Restage, then confirm with the real code from the stored session.
	rec = httptest.NewRecorder()
	env.handler.ServeHTTP(rec, asUser("POST", "/api/changes/stage", body, "Ana", "ana@x.com"))
	if rec.Code != http.StatusOK {
		t.Fatalf("restage: got %d. Body: %s", rec.Code, rec.Body.String())
	}
	sess, err := env.stores.OTPStore.GetByRequester(ctx, "Ana")
	if err != nil {
		t.Fatalf("session not stored: %v", err)
	}

	rec = httptest.NewRecorder()
	env.handler.ServeHTTP(rec, asUser("POST", "/api/changes/confirm", `{"code":"`+sess.Code+`"}`, "Ana", "ana@x.com"))
	if rec.Code != http.StatusOK {
		t.Fatalf("confirm: got %d. Body: %s", rec.Code, rec.Body.String())
	}
	var confirmed struct {
		AutoApplied   []requestDomain.ChangeRequest
		PendingReview []requestDomain.ChangeRequest
	}
	if err := json.NewDecoder(rec.Body).Decode(&confirmed); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(confirmed.AutoApplied) != 1 || len(confirmed.PendingReview) != 0 {
		t.Fatalf("expected one auto-applied row, got %+v", confirmed)
	}

	// The live percentage moved.
	percs, err := env.stores.AdvisorStore.Percentages(ctx, "adv-1")
	if err != nil {
		t.Fatal(err)
	}
	if len(percs) != 1 || percs[0].Value != 3500 {
		t.Errorf("live value = %+v, want RV 3500", percs)
	}
}

func TestReviewQueue_RequiresBranch(t *testing.T) {
	env := newTestEnv(t)
	rec := httptest.NewRecorder()
	env.handler.ServeHTTP(rec, asUser("GET", "/api/reviews", "", "Diana", "diana@x.com"))

	if rec.Code != http.StatusBadRequest {
		t.Errorf("got %d, want %d", rec.Code, http.StatusBadRequest)
	}
}

func TestConfirmReview_MissingCommentBlocks(t *testing.T) {
	env := newTestEnv(t)
	env.seedBranch(t)
	ctx := context.Background()

	// A B2B reduction routes to review.
	r := requestDomain.New("Ana", "ana@x.com",
		branchDomain.Branch{Name: "Centro", Segment: branchDomain.SegmentB2B},
		"Bruno", "RV", 3000, 2500, time.Now().UTC())
	id, err := env.stores.Ledger.Insert(ctx, r)
	if err != nil {
		t.Fatal(err)
	}

	body := `{"branch":"Centro","decisions":[{"request_id":` + jsonInt(id) + `,"reject":true,"comment":""}]}`
	rec := httptest.NewRecorder()
	env.handler.ServeHTTP(rec, asUser("POST", "/api/reviews/confirm", body, "Diana", "diana@x.com"))

	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("got %d, want %d. Body: %s", rec.Code, http.StatusUnprocessableEntity, rec.Body.String())
	}
	got, err := env.stores.Ledger.GetByID(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	if got.ApprovalState != requestDomain.StatePendingReview {
		t.Errorf("blocked batch must leave the row pending, got %s", got.ApprovalState)
	}
}

func TestBranchGrid(t *testing.T) {
	env := newTestEnv(t)
	env.seedBranch(t)
	rec := httptest.NewRecorder()
	env.handler.ServeHTTP(rec, asUser("GET", "/api/branches/Centro/grid", "", "Ana", "ana@x.com"))

	if rec.Code != http.StatusOK {
		t.Fatalf("got %d. Body: %s", rec.Code, rec.Body.String())
	}
	var grid struct {
		Branch   string            `json:"branch"`
		Caps     map[string]string `json:"caps"`
		Advisors []struct {
			Name   string            `json:"name"`
			Values map[string]string `json:"values"`
		} `json:"advisors"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&grid); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if grid.Branch != "Centro" {
		t.Errorf("branch = %s, want Centro", grid.Branch)
	}
	if grid.Caps["RV"] != "40" {
		t.Errorf("RV cap = %q, want 40", grid.Caps["RV"])
	}
	if len(grid.Advisors) != 1 || grid.Advisors[0].Values["RV"] != "30" {
		t.Errorf("grid rows: %+v", grid.Advisors)
	}
}

func TestAdminOutbox_ListEmpty(t *testing.T) {
	env := newTestEnv(t)
	rec := httptest.NewRecorder()
	env.handler.ServeHTTP(rec, asUser("GET", "/api/admin/outbox", "", "Ops", "ops@x.com"))

	if rec.Code != http.StatusOK {
		t.Fatalf("got %d. Body: %s", rec.Code, rec.Body.String())
	}
}

func TestSecurityHeaders(t *testing.T) {
	env := newTestEnv(t)
	rec := httptest.NewRecorder()
	env.handler.ServeHTTP(rec, asUser("GET", "/api/reviews?branch=x", "", "Diana", "diana@x.com"))

	if got := rec.Header().Get("X-Content-Type-Options"); got != "nosniff" {
		t.Errorf("X-Content-Type-Options = %q, want nosniff", got)
	}
}

func jsonInt(v int64) string {
	b, _ := json.Marshal(v)
	return string(b)
}
