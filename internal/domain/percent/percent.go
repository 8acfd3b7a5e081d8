// Package percent normalizes the locale-formatted percentage strings found
// in branch spreadsheets ("40", "40,5", "40.5%", bare fractions) into a
// single fixed-point representation: basis points, where 10000 == 100%.
// Display-formatted strings never travel past this boundary.
package percent

import (
	"errors"
	"strconv"
	"strings"
)

// BasisPoints is a percentage stored as a fixed-point fraction of one.
// 10000 represents 100%, 4050 represents 40.5%.
type BasisPoints int64

// Scale is the number of basis points in a whole (100%).
const Scale BasisPoints = 10000

var ErrUnparseable = errors.New("value is not a percentage")

// Parse converts a raw spreadsheet value into basis points.
// Accepts comma or dot decimals and an optional trailing "%".
// Values greater than 1 are read on the 0-100 display scale; values of 1
// or less are read as fractions, matching how the source tables mix the
// two forms. Empty input parses as zero.
// PRE: s is a raw cell value
// POST: Returns the normalized fixed-point value or ErrUnparseable
func Parse(s string) (BasisPoints, error) {
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(s, "%")
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	s = strings.ReplaceAll(s, ",", ".")
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, ErrUnparseable
	}
	if f < 0 {
		return 0, ErrUnparseable
	}
	if f > 1 {
		f = f / 100
	}
	// Round half away from zero; f is non-negative here.
	return BasisPoints(f*float64(Scale) + 0.5), nil
}

// Display renders the value on the 0-100 scale with a comma decimal
// separator, the form branch tables show ("40" or "40,5").
// PRE: bp is a valid percentage
// POST: Returns the display-scale string without a "%" suffix
func (bp BasisPoints) Display() string {
	whole := int64(bp) / 100
	frac := int64(bp) % 100
	if frac == 0 {
		return strconv.FormatInt(whole, 10)
	}
	s := strconv.FormatInt(whole, 10) + "," + pad2(frac)
	// Trim an insignificant trailing zero: 40,50 -> 40,5.
	return strings.TrimSuffix(s, "0")
}

// Float returns the value as a fraction of one (0-1 scale).
func (bp BasisPoints) Float() float64 {
	return float64(bp) / float64(Scale)
}

func pad2(n int64) string {
	if n < 10 {
		return "0" + strconv.FormatInt(n, 10)
	}
	return strconv.FormatInt(n, 10)
}
