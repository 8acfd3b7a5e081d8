package orchestrators

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	emailAdapter "percentuais/internal/adapters/email"
	"percentuais/internal/application/notify"
	advisorDomain "percentuais/internal/domain/advisor"
	branchDomain "percentuais/internal/domain/branch"
	otpDomain "percentuais/internal/domain/otp"
	outboxDomain "percentuais/internal/domain/outbox"
	"percentuais/internal/domain/percent"
	"percentuais/internal/domain/request"
)

var fixedTime = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func fixedNow() time.Time { return fixedTime }

// --- branch store mock ---

type mockBranchStore struct {
	branches map[string]branchDomain.Branch
	caps     map[string]branchDomain.CapTable
}

func newMockBranchStore() *mockBranchStore {
	return &mockBranchStore{
		branches: make(map[string]branchDomain.Branch),
		caps:     make(map[string]branchDomain.CapTable),
	}
}

func (m *mockBranchStore) GetByName(_ context.Context, name string) (branchDomain.Branch, error) {
	b, ok := m.branches[name]
	if !ok {
		return branchDomain.Branch{}, errors.New("branch not found")
	}
	return b, nil
}

func (m *mockBranchStore) CapsByBranch(_ context.Context, branchName string) (branchDomain.CapTable, error) {
	return m.caps[branchName], nil
}

// --- ledger mock ---

type mockLedger struct {
	nextID   int64
	requests map[int64]request.ChangeRequest
	// pre-existing undecided triples, keyed "branch|advisor|product"
	pendingTriples map[string]bool
	insertErr      error
}

func newMockLedger() *mockLedger {
	return &mockLedger{
		nextID:         1,
		requests:       make(map[int64]request.ChangeRequest),
		pendingTriples: make(map[string]bool),
	}
}

func tripleKey(branch, advisor, product string) string {
	return branch + "|" + advisor + "|" + product
}

func (m *mockLedger) HasPending(_ context.Context, branch, advisor, product string) (bool, error) {
	if m.pendingTriples[tripleKey(branch, advisor, product)] {
		return true, nil
	}
	for _, r := range m.requests {
		if r.Branch == branch && r.Advisor == advisor && r.Product == product && r.Undecided() {
			return true, nil
		}
	}
	return false, nil
}

func (m *mockLedger) Insert(ctx context.Context, req request.ChangeRequest) (int64, error) {
	if m.insertErr != nil {
		return 0, m.insertErr
	}
	pending, _ := m.HasPending(ctx, req.Branch, req.Advisor, req.Product)
	if pending {
		return 0, request.ErrConflictingRequest
	}
	id := m.nextID
	m.nextID++
	req.ID = id
	m.requests[id] = req
	return id, nil
}

func (m *mockLedger) UpdateState(_ context.Context, id int64, state, comment string) error {
	r, ok := m.requests[id]
	if !ok {
		return fmt.Errorf("change request %d not found", id)
	}
	r.ApprovalState = state
	r.ReviewerComment = comment
	m.requests[id] = r
	return nil
}

func (m *mockLedger) GetByID(_ context.Context, id int64) (request.ChangeRequest, error) {
	r, ok := m.requests[id]
	if !ok {
		return request.ChangeRequest{}, fmt.Errorf("change request %d not found", id)
	}
	return r, nil
}

func (m *mockLedger) ListByState(_ context.Context, branch, state string) ([]request.ChangeRequest, error) {
	var out []request.ChangeRequest
	for id := int64(1); id < m.nextID; id++ {
		r, ok := m.requests[id]
		if ok && r.Branch == branch && r.ApprovalState == state {
			out = append(out, r)
		}
	}
	return out, nil
}

// --- OTP session store mock ---

type mockOTPStore struct {
	sessions map[string]otpDomain.Session
}

func newMockOTPStore() *mockOTPStore {
	return &mockOTPStore{sessions: make(map[string]otpDomain.Session)}
}

func (m *mockOTPStore) Save(_ context.Context, s otpDomain.Session) error {
	m.sessions[s.Requester] = s
	return nil
}

func (m *mockOTPStore) GetByRequester(_ context.Context, requester string) (otpDomain.Session, error) {
	s, ok := m.sessions[requester]
	if !ok {
		return otpDomain.Session{}, errors.New("no pending session")
	}
	return s, nil
}

func (m *mockOTPStore) Delete(_ context.Context, requester string) error {
	delete(m.sessions, requester)
	return nil
}

// --- advisor store mock ---

type mockAdvisorStore struct {
	advisors map[string]advisorDomain.Advisor // keyed "name|branch"
	// applied values keyed "advisorID|product"
	values map[string]percent.BasisPoints
	writes int
}

func newMockAdvisorStore() *mockAdvisorStore {
	return &mockAdvisorStore{
		advisors: make(map[string]advisorDomain.Advisor),
		values:   make(map[string]percent.BasisPoints),
	}
}

func (m *mockAdvisorStore) addAdvisor(id, name, branch, email string) {
	m.advisors[name+"|"+branch] = advisorDomain.Advisor{
		ID: id, Name: name, Branch: branch, Email: email,
	}
}

func (m *mockAdvisorStore) FindByNameAndBranch(_ context.Context, name, branchName string) (advisorDomain.Advisor, error) {
	a, ok := m.advisors[name+"|"+branchName]
	if !ok {
		return advisorDomain.Advisor{}, advisorDomain.ErrNotFound
	}
	return a, nil
}

func (m *mockAdvisorStore) UpdatePercentage(_ context.Context, advisorID, product string, v percent.BasisPoints) error {
	m.values[advisorID+"|"+product] = v
	m.writes++
	return nil
}

// --- outbox store mock ---

type mockOutboxStore struct {
	entries []outboxDomain.Entry
}

func (m *mockOutboxStore) Save(_ context.Context, e outboxDomain.Entry) error {
	m.entries = append(m.entries, e)
	return nil
}

// --- email sender fakes ---

type recordingSender struct {
	sent []emailAdapter.SendRequest
	err  error
}

func (s *recordingSender) Send(_ context.Context, req emailAdapter.SendRequest) (emailAdapter.SendResult, error) {
	if s.err != nil {
		return emailAdapter.SendResult{}, s.err
	}
	s.sent = append(s.sent, req)
	return emailAdapter.SendResult{MessageID: "msg-" + strconv.Itoa(len(s.sent)), SentAt: fixedTime}, nil
}

func newTestNotifier(sender *recordingSender, outbox *mockOutboxStore) *notify.Dispatcher {
	n := 0
	return &notify.Dispatcher{
		Sender: sender,
		Outbox: outbox,
		From:   "test <no-reply@test.local>",
		GenerateID: func() string {
			n++
			return "outbox-" + strconv.Itoa(n)
		},
		Now: fixedNow,
	}
}
