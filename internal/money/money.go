// Package money holds the decimal amount type shared by the ledger and the
// analytics reports. Amounts are stored and transmitted as decimal strings.
package money

import (
	"bytes"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// ErrInvalid is returned when a value cannot be read as a finite decimal
// within the supported range.
var ErrInvalid = errors.New("invalid decimal amount")

// Amounts fit NUMERIC(38,18): at most 20 integer and 18 fractional digits.
const (
	MaxIntegerDigits  = 20
	MaxFractionDigits = 18

	maxInputLen = 64
)

// Amount is an arbitrary-precision decimal quantity. The zero value is 0.
type Amount struct {
	d decimal.Decimal
}

// Zero returns an amount of 0.
func Zero() Amount { return Amount{} }

// FromInt builds an amount from a whole number of currency units.
func FromInt(v int64) Amount { return Amount{d: decimal.NewFromInt(v)} }

// Parse reads a decimal string such as "150", "-80.25" or "1e3". Values
// outside MaxIntegerDigits/MaxFractionDigits are rejected.
func Parse(s string) (Amount, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Amount{}, fmt.Errorf("%w: empty value", ErrInvalid)
	}
	if len(s) > maxInputLen {
		return Amount{}, fmt.Errorf("%w: value too long", ErrInvalid)
	}
	switch strings.ToLower(strings.TrimLeft(s, "+-")) {
	case "nan", "inf", "infinity":
		return Amount{}, fmt.Errorf("%w: %q is not finite", ErrInvalid, s)
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Amount{}, fmt.Errorf("%w: %q", ErrInvalid, s)
	}
	if err := checkRange(d); err != nil {
		return Amount{}, fmt.Errorf("%w: %q %s", ErrInvalid, s, err.Error())
	}
	return Amount{d: d}, nil
}

// checkRange works on the coefficient and exponent only, so a value like
// 1e50000000 is rejected without being expanded.
func checkRange(d decimal.Decimal) error {
	exp := int64(d.Exponent())
	if exp < -MaxFractionDigits {
		return fmt.Errorf("has more than %d fractional digits", MaxFractionDigits)
	}
	coef := d.Coefficient()
	digits := int64(len(coef.Abs(coef).String()))
	if digits+exp > MaxIntegerDigits {
		return fmt.Errorf("has more than %d integer digits", MaxIntegerDigits)
	}
	return nil
}

// MustParse is Parse for literals known to be valid. It panics otherwise.
func MustParse(s string) Amount {
	a, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return a
}

func (a Amount) Add(b Amount) Amount { return Amount{d: a.d.Add(b.d)} }
func (a Amount) Sub(b Amount) Amount { return Amount{d: a.d.Sub(b.d)} }
func (a Amount) Neg() Amount         { return Amount{d: a.d.Neg()} }

// Cmp returns -1, 0 or +1 comparing a with b.
func (a Amount) Cmp(b Amount) int { return a.d.Cmp(b.d) }

// Equal compares numerically, so "1.50" equals "1.5".
func (a Amount) Equal(b Amount) bool { return a.d.Equal(b.d) }

func (a Amount) IsPositive() bool { return a.d.IsPositive() }
func (a Amount) IsNegative() bool { return a.d.IsNegative() }
func (a Amount) IsZero() bool     { return a.d.IsZero() }

// Decimal exposes the underlying value.
func (a Amount) Decimal() decimal.Decimal { return a.d }

// String renders the amount without exponent, e.g. "-200" or "12.5".
func (a Amount) String() string { return a.d.String() }

// Sum adds all amounts together.
func Sum(amounts ...Amount) Amount {
	total := decimal.Zero
	for _, a := range amounts {
		total = total.Add(a.d)
	}
	return Amount{d: total}
}

// MarshalJSON always emits a quoted decimal string.
func (a Amount) MarshalJSON() ([]byte, error) {
	return []byte(`"` + a.d.String() + `"`), nil
}

// UnmarshalJSON accepts either a JSON string or a JSON number.
func (a *Amount) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		return fmt.Errorf("%w: null", ErrInvalid)
	}
	parsed, err := Parse(string(bytes.Trim(data, `"`)))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}
