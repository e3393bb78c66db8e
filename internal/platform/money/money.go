// Package money holds the decimal arithmetic used for event amounts and
// amount sums. Values carry two fractional digits, matching NUMERIC(18, 2).
package money

import (
	"errors"
	"fmt"
	"strings"

	"github.com/cockroachdb/apd/v3"
)

const (
	Scale = 2
	// IntegerDigits is the precision left of the point for NUMERIC(18, 2).
	IntegerDigits = 16
)

var ErrOutOfRange = errors.New("amount out of range")

var (
	decCtx = newContext()
	limit  = apd.New(1, IntegerDigits)
)

func newContext() *apd.Context {
	c := apd.BaseContext.WithPrecision(34)
	c.Rounding = apd.RoundHalfUp
	return c
}

// Zero returns 0.00.
func Zero() apd.Decimal {
	return *apd.New(0, -Scale)
}

// Parse reads a decimal literal and rounds it half-up to two places.
func Parse(s string) (apd.Decimal, error) {
	d, _, err := apd.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return apd.Decimal{}, fmt.Errorf("parse amount %q: %w", s, err)
	}
	if d.Form != apd.Finite {
		return apd.Decimal{}, fmt.Errorf("parse amount %q: not a finite number", s)
	}
	return Round(*d)
}

// MustParse is Parse for literals known to be valid.
func MustParse(s string) apd.Decimal {
	d, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return d
}

// Round quantizes d to two places and checks it fits the column.
func Round(d apd.Decimal) (apd.Decimal, error) {
	var out apd.Decimal
	if _, err := decCtx.Quantize(&out, &d, -Scale); err != nil {
		return apd.Decimal{}, fmt.Errorf("round amount: %w", err)
	}
	var abs apd.Decimal
	abs.Abs(&out)
	if abs.Cmp(limit) >= 0 {
		return apd.Decimal{}, fmt.Errorf("%w: %s", ErrOutOfRange, out.Text('f'))
	}
	return out, nil
}

// Add returns a + b rounded to two places.
func Add(a, b apd.Decimal) (apd.Decimal, error) {
	var sum apd.Decimal
	if _, err := decCtx.Add(&sum, &a, &b); err != nil {
		return apd.Decimal{}, fmt.Errorf("add amounts: %w", err)
	}
	return Round(sum)
}

// String formats d as a plain decimal with two places.
func String(d apd.Decimal) string {
	r, err := Round(d)
	if err != nil {
		return d.Text('f')
	}
	return r.Text('f')
}

// Equal compares two amounts numerically.
func Equal(a, b apd.Decimal) bool {
	return a.Cmp(&b) == 0
}
