package otp

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"percentuais/internal/adapters/storage"
	domain "percentuais/internal/domain/otp"
	"percentuais/internal/domain/request"
)

const dateLayout = "2006-01-02T15:04:05.999999999Z07:00"

// SQLiteStore implements the otp Store interface using SQLite. The
// staged batch travels as a JSON payload column.
type SQLiteStore struct {
	db storage.SQLDB
}

// NewSQLiteStore creates a new OTP session store.
func NewSQLiteStore(db storage.SQLDB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

// Save persists a session, replacing the requester's previous one.
// PRE: session is valid
// POST: Session is persisted
func (s *SQLiteStore) Save(ctx context.Context, sess domain.Session) error {
	payload, err := json.Marshal(sess.Edits)
	if err != nil {
		return fmt.Errorf("encode session payload: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO otp_session (requester, requester_email, branch, code, payload, created_at, expires_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(requester) DO UPDATE SET
		   requester_email=excluded.requester_email, branch=excluded.branch,
		   code=excluded.code, payload=excluded.payload,
		   created_at=excluded.created_at, expires_at=excluded.expires_at`,
		sess.Requester, sess.RequesterEmail, sess.Branch, sess.Code, string(payload),
		sess.CreatedAt.Format(dateLayout), sess.ExpiresAt.Format(dateLayout))
	return err
}

// GetByRequester retrieves the requester's pending session.
// POST: Returns the session or an error if none exists
func (s *SQLiteStore) GetByRequester(ctx context.Context, requester string) (domain.Session, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT requester, requester_email, branch, code, payload, created_at, expires_at
		 FROM otp_session WHERE requester = ?`, requester)

	var sess domain.Session
	var payload, createdAt, expiresAt string
	err := row.Scan(&sess.Requester, &sess.RequesterEmail, &sess.Branch, &sess.Code,
		&payload, &createdAt, &expiresAt)
	if err == sql.ErrNoRows {
		return domain.Session{}, fmt.Errorf("no pending session for %s: %w", requester, err)
	}
	if err != nil {
		return domain.Session{}, err
	}
	var edits []request.Edit
	if err := json.Unmarshal([]byte(payload), &edits); err != nil {
		return domain.Session{}, fmt.Errorf("decode session payload: %w", err)
	}
	sess.Edits = edits
	sess.CreatedAt, _ = time.Parse(dateLayout, createdAt)
	sess.ExpiresAt, _ = time.Parse(dateLayout, expiresAt)
	return sess, nil
}

// Delete discards the requester's pending session.
func (s *SQLiteStore) Delete(ctx context.Context, requester string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM otp_session WHERE requester = ?`, requester)
	return err
}

// DeleteExpired removes sessions past their expiry.
// POST: Returns the number removed
func (s *SQLiteStore) DeleteExpired(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM otp_session WHERE expires_at < ?`, time.Now().Format(dateLayout))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
