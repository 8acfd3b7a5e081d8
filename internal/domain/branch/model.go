package branch

import (
	"errors"
	"fmt"
	"strings"

	"percentuais/internal/domain/percent"
)

// Segment constants. The segment decides whether caps apply and how
// changes are routed for review.
const (
	SegmentB2B = "B2B"
	SegmentB2C = "B2C"
)

// Domain errors
var (
	ErrEmptyName      = errors.New("branch name is required")
	ErrInvalidSegment = errors.New("segment must be B2B or B2C")
	ErrCapExceeded    = errors.New("value exceeds the branch cap for this product")
	ErrNoCapForProduct = errors.New("no cap configured for this product")
)

// Branch holds the policy record for one branch: its segment and the
// leader/director identities used for staging and review routing.
type Branch struct {
	ID            string
	Name          string
	Segment       string
	LeaderName    string
	LeaderEmail   string
	DirectorName  string
	DirectorEmail string
}

// Validate checks that the Branch has valid data.
// PRE: Branch struct is populated
// POST: Returns nil if valid, error otherwise
func (b *Branch) Validate() error {
	if strings.TrimSpace(b.Name) == "" {
		return ErrEmptyName
	}
	if b.Segment != SegmentB2B && b.Segment != SegmentB2C {
		return ErrInvalidSegment
	}
	return nil
}

// CapApplies reports whether ceiling checks apply to this branch.
// B2C branches carry no percentage caps at all.
func (b *Branch) CapApplies() bool {
	return b.Segment != SegmentB2C
}

// Cap is one ceiling entry: the maximum percentage a branch may pay for
// one product.
type Cap struct {
	ID      string
	Branch  string
	Product string
	Ceiling percent.BasisPoints
}

// CapTable is the set of ceilings for one branch, keyed by product.
type CapTable map[string]percent.BasisPoints

// NewCapTable builds a CapTable from cap entries.
// PRE: all entries belong to the same branch
// POST: Returns a product-keyed lookup table
func NewCapTable(caps []Cap) CapTable {
	t := make(CapTable, len(caps))
	for _, c := range caps {
		t[c.Product] = c.Ceiling
	}
	return t
}

// CheckCap verifies a candidate value against the branch ceiling for a
// product. Pure check, no side effects.
// PRE: candidate is a normalized percentage
// POST: Returns nil when allowed; ErrCapExceeded when candidate > ceiling
func CheckCap(b Branch, caps CapTable, product string, candidate percent.BasisPoints) error {
	if !b.CapApplies() {
		return nil
	}
	ceiling, ok := caps[product]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNoCapForProduct, product)
	}
	if candidate > ceiling {
		return fmt.Errorf("%w: %s is capped at %s, got %s",
			ErrCapExceeded, product, ceiling.Display(), candidate.Display())
	}
	return nil
}
