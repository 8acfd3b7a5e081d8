// Package otp models the one-time verification code that gates
// commitment of a staged batch of percentage edits.
package otp

import (
	"crypto/rand"
	"crypto/subtle"
	"errors"
	"fmt"
	"math/big"
	"time"

	"percentuais/internal/domain/request"
)

// CodeLength is the fixed width of a verification code.
const CodeLength = 6

// DefaultTTL bounds how long a staged batch waits for its code.
const DefaultTTL = 10 * time.Minute

// Domain errors
var (
	ErrCodeMismatch   = errors.New("verification code does not match")
	ErrSessionExpired = errors.New("verification session has expired")
	ErrEmptyBatch     = errors.New("session requires at least one staged edit")
)

// Session is the short-lived pending batch keyed by requester. One
// session per requester at a time; staging again replaces it.
type Session struct {
	Requester      string
	RequesterEmail string
	Branch         string
	Code           string
	Edits          []request.Edit
	CreatedAt      time.Time
	ExpiresAt      time.Time
}

// NewSession binds a staged batch to a fresh code.
// PRE: edits is non-empty
// POST: Returns a session expiring after ttl
func NewSession(requester, requesterEmail, branchName string, edits []request.Edit, ttl time.Duration, now time.Time) (Session, error) {
	if len(edits) == 0 {
		return Session{}, ErrEmptyBatch
	}
	code, err := GenerateCode()
	if err != nil {
		return Session{}, err
	}
	return Session{
		Requester:      requester,
		RequesterEmail: requesterEmail,
		Branch:         branchName,
		Code:           code,
		Edits:          edits,
		CreatedAt:      now,
		ExpiresAt:      now.Add(ttl),
	}, nil
}

// Expired reports whether the session is past its expiry.
func (s *Session) Expired(now time.Time) bool {
	return now.After(s.ExpiresAt)
}

// Verify checks a supplied code against the session in constant time.
// A mismatch invalidates the whole batch; callers must discard the
// session and restart staging.
// PRE: session has not expired
// POST: Returns nil on match, ErrCodeMismatch otherwise
func (s *Session) Verify(code string, now time.Time) error {
	if s.Expired(now) {
		return ErrSessionExpired
	}
	if subtle.ConstantTimeCompare([]byte(s.Code), []byte(code)) != 1 {
		return ErrCodeMismatch
	}
	return nil
}

// GenerateCode produces a fixed-width numeric code from crypto/rand.
// POST: Returns a zero-padded string of CodeLength digits
func GenerateCode() (string, error) {
	max := big.NewInt(1)
	for i := 0; i < CodeLength; i++ {
		max.Mul(max, big.NewInt(10))
	}
	n, err := rand.Int(rand.Reader, max)
	if err != nil {
		return "", fmt.Errorf("generate verification code: %w", err)
	}
	return fmt.Sprintf("%0*d", CodeLength, n), nil
}
