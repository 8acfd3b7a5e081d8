package advisor

import (
	"context"
	"database/sql"
	"fmt"

	"percentuais/internal/adapters/storage"
	domain "percentuais/internal/domain/advisor"
	"percentuais/internal/domain/percent"
)

// SQLiteStore implements the advisor Store interface using SQLite.
type SQLiteStore struct {
	db storage.SQLDB
}

// NewSQLiteStore creates a new advisor percentage store.
func NewSQLiteStore(db storage.SQLDB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

// FindByNameAndBranch resolves an advisor row by its identifying pair.
// PRE: name and branchName are non-empty
// POST: Returns the advisor or advisor.ErrNotFound
func (s *SQLiteStore) FindByNameAndBranch(ctx context.Context, name, branchName string) (domain.Advisor, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, initials, name, email, branch FROM advisor WHERE name = ? AND branch = ?`,
		name, branchName)
	var a domain.Advisor
	err := row.Scan(&a.ID, &a.Initials, &a.Name, &a.Email, &a.Branch)
	if err == sql.ErrNoRows {
		return domain.Advisor{}, fmt.Errorf("%w: %s @ %s", domain.ErrNotFound, name, branchName)
	}
	return a, err
}

// ListByBranch returns the advisors of a branch, ordered by name.
func (s *SQLiteStore) ListByBranch(ctx context.Context, branchName string) ([]domain.Advisor, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, initials, name, email, branch FROM advisor WHERE branch = ? ORDER BY name`,
		branchName)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var advisors []domain.Advisor
	for rows.Next() {
		var a domain.Advisor
		if err := rows.Scan(&a.ID, &a.Initials, &a.Name, &a.Email, &a.Branch); err != nil {
			return nil, err
		}
		advisors = append(advisors, a)
	}
	return advisors, rows.Err()
}

// Percentages returns the live per-product values for one advisor.
func (s *SQLiteStore) Percentages(ctx context.Context, advisorID string) ([]domain.Percentage, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT advisor_id, product, value_bp FROM advisor_percentage WHERE advisor_id = ? ORDER BY product`,
		advisorID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var percs []domain.Percentage
	for rows.Next() {
		var p domain.Percentage
		var v int64
		if err := rows.Scan(&p.AdvisorID, &p.Product, &v); err != nil {
			return nil, err
		}
		p.Value = percent.BasisPoints(v)
		percs = append(percs, p)
	}
	return percs, rows.Err()
}

// UpdatePercentage writes one (advisor, product) value by row id. The
// write carries the absolute target value, so replaying it is a no-op.
// PRE: advisorID exists
// POST: The one product value equals v
func (s *SQLiteStore) UpdatePercentage(ctx context.Context, advisorID, product string, v percent.BasisPoints) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO advisor_percentage (advisor_id, product, value_bp)
		 VALUES (?, ?, ?)
		 ON CONFLICT(advisor_id, product) DO UPDATE SET value_bp=excluded.value_bp`,
		advisorID, product, int64(v))
	if err != nil {
		return fmt.Errorf("update percentage %s/%s: %w", advisorID, product, err)
	}
	return nil
}

// Save persists an advisor record.
// PRE: a has been validated
// POST: Advisor is persisted (insert or update)
func (s *SQLiteStore) Save(ctx context.Context, a domain.Advisor) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO advisor (id, initials, name, email, branch)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(name, branch) DO UPDATE SET
		   initials=excluded.initials, email=excluded.email`,
		a.ID, a.Initials, a.Name, a.Email, a.Branch)
	return err
}
