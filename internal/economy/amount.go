package economy

import (
	"errors"
	"fmt"
	"math/big"
	"strings"
)

// FractionalDigits is the fixed-point precision of every ledger amount.
const FractionalDigits = 18

var (
	unitScale = new(big.Int).Exp(big.NewInt(10), big.NewInt(FractionalDigits), nil)

	errNegativeAmount = errors.New("amount would be negative")
)

// Amount is an unsigned fixed-point quantity with 18 fractional digits,
// held as an integer count of base units. The zero value is zero.
// Amounts are immutable; arithmetic returns new values and checked
// subtraction fails instead of wrapping.
type Amount struct {
	i *big.Int
}

// Zero returns the zero amount.
func Zero() Amount {
	return Amount{}
}

// Units returns an amount of n whole units.
func Units(n uint64) Amount {
	v := new(big.Int).SetUint64(n)
	return Amount{i: v.Mul(v, unitScale)}
}

// FromBaseUnits wraps a raw base-unit count. It returns an error for
// negative values.
func FromBaseUnits(v *big.Int) (Amount, error) {
	if v == nil {
		return Amount{}, nil
	}
	if v.Sign() < 0 {
		return Amount{}, errNegativeAmount
	}
	return Amount{i: new(big.Int).Set(v)}, nil
}

// ParseAmount parses a decimal string such as "250" or "12.5" into an
// amount. At most 18 fractional digits are accepted.
func ParseAmount(s string) (Amount, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Amount{}, fmt.Errorf("empty amount")
	}
	whole, frac := s, ""
	if idx := strings.IndexByte(s, '.'); idx >= 0 {
		whole, frac = s[:idx], s[idx+1:]
	}
	if whole == "" {
		whole = "0"
	}
	if len(frac) > FractionalDigits {
		return Amount{}, fmt.Errorf("amount %q has more than %d fractional digits", s, FractionalDigits)
	}
	for _, part := range []string{whole, frac} {
		for _, c := range part {
			if c < '0' || c > '9' {
				return Amount{}, fmt.Errorf("invalid amount %q", s)
			}
		}
	}
	// Pad the fraction out to full precision and parse as one integer.
	padded := whole + frac + strings.Repeat("0", FractionalDigits-len(frac))
	v, ok := new(big.Int).SetString(padded, 10)
	if !ok {
		return Amount{}, fmt.Errorf("invalid amount %q", s)
	}
	return Amount{i: v}, nil
}

func (a Amount) base() *big.Int {
	if a.i == nil {
		return new(big.Int)
	}
	return a.i
}

// BaseUnits returns a copy of the raw base-unit count.
func (a Amount) BaseUnits() *big.Int {
	return new(big.Int).Set(a.base())
}

// IsZero reports whether the amount is zero.
func (a Amount) IsZero() bool {
	return a.i == nil || a.i.Sign() == 0
}

// Cmp compares a to b, returning -1, 0 or 1.
func (a Amount) Cmp(b Amount) int {
	return a.base().Cmp(b.base())
}

// Add returns a + b.
func (a Amount) Add(b Amount) Amount {
	return Amount{i: new(big.Int).Add(a.base(), b.base())}
}

// Sub returns a - b, failing if the result would be negative.
func (a Amount) Sub(b Amount) (Amount, error) {
	v := new(big.Int).Sub(a.base(), b.base())
	if v.Sign() < 0 {
		return Amount{}, errNegativeAmount
	}
	return Amount{i: v}, nil
}

// MulUint returns a × n.
func (a Amount) MulUint(n uint64) Amount {
	return Amount{i: new(big.Int).Mul(a.base(), new(big.Int).SetUint64(n))}
}

// DivUint returns a / n with floor semantics. n must be non-zero.
func (a Amount) DivUint(n uint64) Amount {
	return Amount{i: new(big.Int).Quo(a.base(), new(big.Int).SetUint64(n))}
}

// MulPerUnit returns a × rate where rate is a per-whole-unit price,
// flooring at base-unit precision.
func (a Amount) MulPerUnit(rate Amount) Amount {
	v := new(big.Int).Mul(a.base(), rate.base())
	return Amount{i: v.Quo(v, unitScale)}
}

// FloorToMultiple returns the largest multiple of m not exceeding a.
// m must be non-zero.
func (a Amount) FloorToMultiple(m Amount) Amount {
	rem := new(big.Int).Mod(a.base(), m.base())
	return Amount{i: new(big.Int).Sub(a.base(), rem)}
}

// Min returns the smaller of a and b.
func (a Amount) Min(b Amount) Amount {
	if a.Cmp(b) <= 0 {
		return a
	}
	return b
}

// String renders the amount as a decimal string with trailing fractional
// zeros trimmed, e.g. "250" or "12.5".
func (a Amount) String() string {
	whole, frac := new(big.Int).QuoRem(a.base(), unitScale, new(big.Int))
	if frac.Sign() == 0 {
		return whole.String()
	}
	fracStr := strings.TrimRight(fmt.Sprintf("%018s", frac.String()), "0")
	return whole.String() + "." + fracStr
}

// MarshalJSON renders the amount as a JSON decimal string.
func (a Amount) MarshalJSON() ([]byte, error) {
	return []byte(`"` + a.String() + `"`), nil
}

// UnmarshalJSON parses a JSON decimal string into the amount.
func (a *Amount) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	parsed, err := ParseAmount(s)
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}
