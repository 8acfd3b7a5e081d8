package branch

import (
	"context"
	"database/sql"
	"fmt"

	"percentuais/internal/adapters/storage"
	domain "percentuais/internal/domain/branch"
	"percentuais/internal/domain/percent"
)

// SQLiteStore implements the branch Store interface using SQLite.
type SQLiteStore struct {
	db storage.SQLDB
}

// NewSQLiteStore creates a new branch policy store.
func NewSQLiteStore(db storage.SQLDB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

// GetByName retrieves a branch policy record.
// PRE: name is non-empty
// POST: Returns the branch or an error if not found
func (s *SQLiteStore) GetByName(ctx context.Context, name string) (domain.Branch, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, name, segment, leader_name, leader_email, director_name, director_email
		 FROM branch WHERE name = ?`, name)
	var b domain.Branch
	err := row.Scan(&b.ID, &b.Name, &b.Segment, &b.LeaderName, &b.LeaderEmail,
		&b.DirectorName, &b.DirectorEmail)
	if err == sql.ErrNoRows {
		return domain.Branch{}, fmt.Errorf("branch not found: %w", err)
	}
	return b, err
}

// ListByLeader returns the branches a leader manages, ordered by name.
func (s *SQLiteStore) ListByLeader(ctx context.Context, leaderName string) ([]domain.Branch, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, segment, leader_name, leader_email, director_name, director_email
		 FROM branch WHERE leader_name = ? ORDER BY name`, leaderName)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var branches []domain.Branch
	for rows.Next() {
		var b domain.Branch
		if err := rows.Scan(&b.ID, &b.Name, &b.Segment, &b.LeaderName, &b.LeaderEmail,
			&b.DirectorName, &b.DirectorEmail); err != nil {
			return nil, err
		}
		branches = append(branches, b)
	}
	return branches, rows.Err()
}

// CapsByBranch returns the product-keyed cap table for a branch.
func (s *SQLiteStore) CapsByBranch(ctx context.Context, branchName string) (domain.CapTable, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT product, ceiling_bp FROM branch_cap WHERE branch = ?`, branchName)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	caps := make(domain.CapTable)
	for rows.Next() {
		var product string
		var ceiling int64
		if err := rows.Scan(&product, &ceiling); err != nil {
			return nil, err
		}
		caps[product] = percent.BasisPoints(ceiling)
	}
	return caps, rows.Err()
}

// Save persists a branch policy record.
// PRE: b has been validated
// POST: Branch is persisted (insert or update)
func (s *SQLiteStore) Save(ctx context.Context, b domain.Branch) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO branch (id, name, segment, leader_name, leader_email, director_name, director_email)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(name) DO UPDATE SET
		   segment=excluded.segment, leader_name=excluded.leader_name,
		   leader_email=excluded.leader_email, director_name=excluded.director_name,
		   director_email=excluded.director_email`,
		b.ID, b.Name, b.Segment, b.LeaderName, b.LeaderEmail, b.DirectorName, b.DirectorEmail)
	return err
}

// SaveCap persists one ceiling entry.
func (s *SQLiteStore) SaveCap(ctx context.Context, c domain.Cap) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO branch_cap (id, branch, product, ceiling_bp)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT(branch, product) DO UPDATE SET ceiling_bp=excluded.ceiling_bp`,
		c.ID, c.Branch, c.Product, int64(c.Ceiling))
	return err
}
