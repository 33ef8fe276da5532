package migrator

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/buildingsync/bsync-migrate/internal/types"
)

// RoundingMode selects how a fractional value becomes an integer.
type RoundingMode int

const (
	// HalfEven rounds to the nearest integer, ties to even (15.5 -> 16, 14.5 -> 14).
	HalfEven RoundingMode = iota

	// HalfAway rounds to the nearest integer, ties away from zero (14.5 -> 15).
	HalfAway

	// Truncate drops the fractional part, rounding toward zero (15.9 -> 15).
	Truncate
)

var roundingModeNames = map[RoundingMode]string{
	HalfEven: "half_even",
	HalfAway: "half_away",
	Truncate: "truncate",
}

func (m RoundingMode) String() string {
	if name, ok := roundingModeNames[m]; ok {
		return name
	}
	return fmt.Sprintf("RoundingMode(%d)", int(m))
}

// ParseRoundingMode maps a configuration name to a RoundingMode.
func ParseRoundingMode(name string) (RoundingMode, error) {
	for mode, n := range roundingModeNames {
		if strings.EqualFold(n, name) {
			return mode, nil
		}
	}
	return 0, fmt.Errorf("unknown rounding mode %q", name)
}

func (m RoundingMode) round(f float64) float64 {
	switch m {
	case HalfAway:
		return math.Round(f)
	case Truncate:
		return math.Trunc(f)
	default:
		return math.RoundToEven(f)
	}
}

var errNotFinite = errors.New("value is not a finite number")

// Canonicalize parses text as a floating-point number and formats it as a
// canonical integer string: no fraction, no exponent, no superfluous leading
// zeros and no sign on zero. Surrounding whitespace is ignored.
//
// Canonicalize is idempotent: Canonicalize(Canonicalize(s)) == Canonicalize(s).
func Canonicalize(text string, mode RoundingMode) (string, error) {
	f, err := strconv.ParseFloat(strings.TrimSpace(text), 64)
	if err != nil {
		var numErr *strconv.NumError
		if errors.As(err, &numErr) {
			err = numErr.Err
		}
		return "", fmt.Errorf("%w: %q: %v", types.ErrValue, text, err)
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return "", fmt.Errorf("%w: %q: %v", types.ErrValue, text, errNotFinite)
	}

	r := mode.round(f)
	if r == 0 {
		// -0 formats as "-0".
		r = 0
	}
	return strconv.FormatFloat(r, 'f', 0, 64), nil
}
