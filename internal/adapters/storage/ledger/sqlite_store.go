package ledger

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"percentuais/internal/adapters/storage"
	"percentuais/internal/domain/percent"
	domain "percentuais/internal/domain/request"
)

const dateLayout = "2006-01-02T15:04:05.999999999Z07:00"

// undecidedPending matches rows the conflict guard and the review queue
// care about: routed to review, not yet decided (empty comment is the
// undecided signal).
const undecidedPending = `validation_required = 1 AND approval_state = ? AND reviewer_comment = ''`

// SQLiteStore implements the ledger Store interface using SQLite.
type SQLiteStore struct {
	db storage.SQLDB
}

// NewSQLiteStore creates a new change-request ledger store.
func NewSQLiteStore(db storage.SQLDB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

// Insert appends a request inside a single transaction that first
// re-checks the pending-conflict invariant. Two concurrent stagings of
// the same triple cannot both pass: SQLite serializes the write
// transaction, so the second one sees the first row and fails.
// PRE: req has been validated
// POST: Returns the ledger-assigned sequential id
func (s *SQLiteStore) Insert(ctx context.Context, req domain.ChangeRequest) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin ledger insert: %w", err)
	}
	defer tx.Rollback()

	var pending int
	err = tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM change_request
		 WHERE branch = ? AND advisor = ? AND product = ? AND `+undecidedPending,
		req.Branch, req.Advisor, req.Product, domain.StatePendingReview).Scan(&pending)
	if err != nil {
		return 0, fmt.Errorf("check pending conflict: %w", err)
	}
	if pending > 0 {
		return 0, domain.ErrConflictingRequest
	}

	res, err := tx.ExecContext(ctx,
		`INSERT INTO change_request
		 (created_at, requester, requester_email, branch, advisor, product,
		  value_before_bp, value_after_bp, direction, validation_required,
		  approval_state, reviewer_comment)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		req.CreatedAt.Format(dateLayout), req.Requester, req.RequesterEmail,
		req.Branch, req.Advisor, req.Product,
		int64(req.ValueBefore), int64(req.ValueAfter), req.Direction,
		boolToInt(req.ValidationRequired), req.ApprovalState, req.ReviewerComment)
	if err != nil {
		return 0, fmt.Errorf("insert change request: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("ledger id: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit ledger insert: %w", err)
	}
	return id, nil
}

// UpdateState transitions a request in place. Rows are never deleted.
// PRE: id exists
// POST: State and comment are updated
func (s *SQLiteStore) UpdateState(ctx context.Context, id int64, state, comment string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE change_request SET approval_state = ?, reviewer_comment = ? WHERE id = ?`,
		state, comment, id)
	if err != nil {
		return fmt.Errorf("update change request %d: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("change request %d not found", id)
	}
	return nil
}

// GetByID retrieves one request.
// PRE: id exists
// POST: Returns the request or an error if not found
func (s *SQLiteStore) GetByID(ctx context.Context, id int64) (domain.ChangeRequest, error) {
	row := s.db.QueryRowContext(ctx, selectColumns+` FROM change_request WHERE id = ?`, id)
	return scanRequest(row)
}

// HasPending reports whether an undecided pending-review request exists
// for the (branch, advisor, product) triple.
func (s *SQLiteStore) HasPending(ctx context.Context, branch, advisor, product string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM change_request
		 WHERE branch = ? AND advisor = ? AND product = ? AND `+undecidedPending,
		branch, advisor, product, domain.StatePendingReview).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("query pending: %w", err)
	}
	return n > 0, nil
}

// ListPendingByBranch returns the undecided pending-review requests for
// a branch, ordered by id.
func (s *SQLiteStore) ListPendingByBranch(ctx context.Context, branch string) ([]domain.ChangeRequest, error) {
	rows, err := s.db.QueryContext(ctx,
		selectColumns+` FROM change_request WHERE branch = ? AND `+undecidedPending+` ORDER BY id`,
		branch, domain.StatePendingReview)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanRequests(rows)
}

// ListByBranch returns all requests for a branch, ordered by id.
func (s *SQLiteStore) ListByBranch(ctx context.Context, branch string) ([]domain.ChangeRequest, error) {
	rows, err := s.db.QueryContext(ctx,
		selectColumns+` FROM change_request WHERE branch = ? ORDER BY id`, branch)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanRequests(rows)
}

// ListByState returns a branch's requests in one approval state, ordered
// by id.
func (s *SQLiteStore) ListByState(ctx context.Context, branch, state string) ([]domain.ChangeRequest, error) {
	rows, err := s.db.QueryContext(ctx,
		selectColumns+` FROM change_request WHERE branch = ? AND approval_state = ? ORDER BY id`,
		branch, state)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanRequests(rows)
}

const selectColumns = `SELECT id, created_at, requester, requester_email, branch, advisor, product,
	value_before_bp, value_after_bp, direction, validation_required, approval_state, reviewer_comment`

// rowScanner covers *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

// scanRequest scans a single row into a ChangeRequest.
func scanRequest(row rowScanner) (domain.ChangeRequest, error) {
	var r domain.ChangeRequest
	var createdAt string
	var before, after int64
	var required int
	err := row.Scan(&r.ID, &createdAt, &r.Requester, &r.RequesterEmail,
		&r.Branch, &r.Advisor, &r.Product, &before, &after,
		&r.Direction, &required, &r.ApprovalState, &r.ReviewerComment)
	if err == sql.ErrNoRows {
		return domain.ChangeRequest{}, fmt.Errorf("change request not found: %w", err)
	}
	if err != nil {
		return domain.ChangeRequest{}, err
	}
	r.CreatedAt, _ = time.Parse(dateLayout, createdAt)
	r.ValueBefore = percent.BasisPoints(before)
	r.ValueAfter = percent.BasisPoints(after)
	r.ValidationRequired = required != 0
	return r, nil
}

// scanRequests scans multiple rows into a slice of ChangeRequests.
func scanRequests(rows *sql.Rows) ([]domain.ChangeRequest, error) {
	var reqs []domain.ChangeRequest
	for rows.Next() {
		r, err := scanRequest(rows)
		if err != nil {
			return nil, err
		}
		reqs = append(reqs, r)
	}
	return reqs, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
