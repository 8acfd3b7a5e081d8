// Package advisor models the people paid through the commission tables
// and their live per-product percentages.
package advisor

import (
	"errors"
	"strings"

	"percentuais/internal/domain/percent"
)

// Domain errors
var (
	ErrEmptyName   = errors.New("advisor name is required")
	ErrEmptyBranch = errors.New("advisor branch is required")
	ErrNotFound    = errors.New("advisor not found in this branch")
)

// Advisor is one compensated individual within a branch.
type Advisor struct {
	ID       string
	Initials string
	Name     string
	Email    string
	Branch   string
}

// Validate checks that the Advisor has valid data.
// PRE: Advisor struct is populated
// POST: Returns nil if valid, error otherwise
func (a *Advisor) Validate() error {
	if strings.TrimSpace(a.Name) == "" {
		return ErrEmptyName
	}
	if strings.TrimSpace(a.Branch) == "" {
		return ErrEmptyBranch
	}
	return nil
}

// Percentage is the live commission value for one (advisor, product)
// pair. Only the commit engine writes these rows.
type Percentage struct {
	AdvisorID string
	Product   string
	Value     percent.BasisPoints
}
