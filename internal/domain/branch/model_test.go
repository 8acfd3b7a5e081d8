package branch

import (
	"errors"
	"testing"
)

func TestBranchValidate(t *testing.T) {
	b := Branch{Name: "Centro", Segment: SegmentB2B}
	if err := b.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	b = Branch{Name: "", Segment: SegmentB2B}
	if err := b.Validate(); !errors.Is(err, ErrEmptyName) {
		t.Errorf("expected ErrEmptyName, got %v", err)
	}

	b = Branch{Name: "Centro", Segment: "retail"}
	if err := b.Validate(); !errors.Is(err, ErrInvalidSegment) {
		t.Errorf("expected ErrInvalidSegment, got %v", err)
	}
}

func TestCheckCap_B2B(t *testing.T) {
	b := Branch{Name: "Centro", Segment: SegmentB2B}
	caps := NewCapTable([]Cap{
		{Branch: "Centro", Product: "RV", Ceiling: 4000},
		{Branch: "Centro", Product: "RF", Ceiling: 3500},
	})

	if err := CheckCap(b, caps, "RV", 4000); err != nil {
		t.Errorf("value at the ceiling should pass: %v", err)
	}
	if err := CheckCap(b, caps, "RV", 3999); err != nil {
		t.Errorf("value below the ceiling should pass: %v", err)
	}
	if err := CheckCap(b, caps, "RV", 4001); !errors.Is(err, ErrCapExceeded) {
		t.Errorf("expected ErrCapExceeded, got %v", err)
	}
	if err := CheckCap(b, caps, "COE", 100); !errors.Is(err, ErrNoCapForProduct) {
		t.Errorf("expected ErrNoCapForProduct, got %v", err)
	}
}

func TestCheckCap_B2CHasNoCeilings(t *testing.T) {
	b := Branch{Name: "Varejo", Segment: SegmentB2C}
	// No cap table at all; every value passes.
	if err := CheckCap(b, nil, "RV", 9999); err != nil {
		t.Errorf("B2C branches carry no caps: %v", err)
	}
}

func TestCapApplies(t *testing.T) {
	b2b := Branch{Segment: SegmentB2B}
	b2c := Branch{Segment: SegmentB2C}
	if !b2b.CapApplies() {
		t.Error("caps must apply to B2B branches")
	}
	if b2c.CapApplies() {
		t.Error("caps must not apply to B2C branches")
	}
}
