package money

import (
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// Cents is a fixed-point amount with two fractional digits, stored as an
// integer number of cents. All derivation paths in the billing engine work
// in Cents so repeated additions never accumulate floating-point error.
type Cents int64

// FromParts builds an amount from whole units and cents.
func FromParts(units int64, cents int64) Cents {
	return Cents(units*100 + cents)
}

// FromFloat converts a float amount from an API payload to Cents, rounding
// half-up. Arithmetic never happens on the float.
func FromFloat(f float64) Cents {
	if f < 0 {
		return -FromFloat(-f)
	}
	return Cents(f*100 + 0.5)
}

// Parse reads a decimal string such as "2472.50" into Cents.
func Parse(s string) (Cents, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("money: empty amount")
	}
	neg := false
	if strings.HasPrefix(s, "-") {
		neg = true
		s = s[1:]
	}
	whole, frac := s, "0"
	if i := strings.IndexByte(s, '.'); i >= 0 {
		whole, frac = s[:i], s[i+1:]
	}
	if whole == "" {
		whole = "0"
	}
	if len(frac) > 2 {
		return 0, fmt.Errorf("money: more than two fractional digits in %q", s)
	}
	for len(frac) < 2 {
		frac += "0"
	}
	u, err := strconv.ParseInt(whole, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("money: parse %q: %w", s, err)
	}
	c, err := strconv.ParseInt(frac, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("money: parse %q: %w", s, err)
	}
	v := Cents(u*100 + c)
	if neg {
		v = -v
	}
	return v, nil
}

// ApplyPercent returns v * pct/100 added to v, rounding half-up to cents
// after the multiplication. pct is expressed in basis of whole percents
// with two fractional digits (1550 == 15.50%).
func (v Cents) ApplyPercent(pctBasis int64) Cents {
	// v * (10000 + pctBasis) / 10000, rounded half-up.
	n := int64(v) * (10000 + pctBasis)
	return Cents(divRoundHalfUp(n, 10000))
}

// PercentOf returns pct% of v rounded half-up to cents.
func (v Cents) PercentOf(pctBasis int64) Cents {
	return Cents(divRoundHalfUp(int64(v)*pctBasis, 10000))
}

func divRoundHalfUp(n, d int64) int64 {
	if n >= 0 {
		return (n + d/2) / d
	}
	return -((-n + d/2) / d)
}

// String renders the amount as a plain decimal, e.g. "2472.50".
func (v Cents) String() string {
	sign := ""
	n := int64(v)
	if n < 0 {
		sign = "-"
		n = -n
	}
	return fmt.Sprintf("%s%d.%02d", sign, n/100, n%100)
}

// Float64 is for presentation only, never for arithmetic.
func (v Cents) Float64() float64 {
	return float64(v) / 100
}

var printer = message.NewPrinter(language.English)

// Display renders the amount with thousands separators for reports,
// e.g. "12,472.50".
func (v Cents) Display() string {
	sign := ""
	n := int64(v)
	if n < 0 {
		sign = "-"
		n = -n
	}
	return printer.Sprintf("%s%d.%02d", sign, n/100, n%100)
}
