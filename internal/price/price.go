// Package price carries marketplace prices as typed decimals tagged with a unit.
package price

import (
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/shopspring/decimal"
)

// DefaultUnit is the currency unit used when a price string carries none.
const DefaultUnit = "ETH"

// weiExponent is the number of decimal places between ETH and wei.
const weiExponent = 18

// ErrInvalidPrice reports a price string that cannot be parsed.
var ErrInvalidPrice = errors.New("invalid price")

// Price is a decimal amount in a named unit.
type Price struct {
	Amount decimal.Decimal
	Unit   string
}

// Zero returns a zero price in the given unit.
func Zero(unit string) Price {
	if unit == "" {
		unit = DefaultUnit
	}
	return Price{Amount: decimal.Zero, Unit: unit}
}

// New builds a price from a decimal amount.
func New(amount decimal.Decimal, unit string) Price {
	p := Zero(unit)
	p.Amount = amount
	return p
}

// Parse reads values such as "0.05 ETH", "0.05ETH" or "0.05".
func Parse(raw string) (Price, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return Price{}, fmt.Errorf("%w: empty", ErrInvalidPrice)
	}

	unit := DefaultUnit
	idx := strings.IndexFunc(s, func(r rune) bool {
		return (r < '0' || r > '9') && r != '.' && r != '-' && r != '+'
	})
	if idx >= 0 {
		unit = strings.ToUpper(strings.TrimSpace(s[idx:]))
		s = strings.TrimSpace(s[:idx])
		if unit == "" {
			unit = DefaultUnit
		}
	}

	amount, err := decimal.NewFromString(s)
	if err != nil {
		return Price{}, fmt.Errorf("%w: %q", ErrInvalidPrice, raw)
	}
	if amount.IsNegative() {
		return Price{}, fmt.Errorf("%w: negative amount %q", ErrInvalidPrice, raw)
	}
	return Price{Amount: amount, Unit: unit}, nil
}

// MustParse is Parse for constants; it panics on malformed input.
func MustParse(raw string) Price {
	p, err := Parse(raw)
	if err != nil {
		panic(err)
	}
	return p
}

// Mul multiplies the amount by a quantity.
func (p Price) Mul(qty int) Price {
	return Price{Amount: p.Amount.Mul(decimal.NewFromInt(int64(qty))), Unit: p.unit()}
}

// Add sums two prices of the same unit.
func (p Price) Add(other Price) (Price, error) {
	if p.unit() != other.unit() {
		return p, fmt.Errorf("add %s to %s: unit mismatch", other.unit(), p.unit())
	}
	return Price{Amount: p.Amount.Add(other.Amount), Unit: p.unit()}, nil
}

// Fee returns the share of p expressed in basis points.
func (p Price) Fee(bps int64) Price {
	return Price{Amount: p.Amount.Mul(decimal.NewFromInt(bps)).Div(decimal.NewFromInt(10000)), Unit: p.unit()}
}

// IsZero reports whether the amount is zero.
func (p Price) IsZero() bool {
	return p.Amount.IsZero()
}

// Equal compares amount and unit.
func (p Price) Equal(other Price) bool {
	return p.unit() == other.unit() && p.Amount.Equal(other.Amount)
}

// Wei converts an ETH amount to its smallest unit, truncating sub-wei digits.
func (p Price) Wei() (*big.Int, error) {
	if p.unit() != DefaultUnit {
		return nil, fmt.Errorf("convert %s to wei: unsupported unit", p.unit())
	}
	return p.Amount.Shift(weiExponent).Truncate(0).BigInt(), nil
}

// FromWei converts a wei amount back to ETH.
func FromWei(wei *big.Int) Price {
	return Price{Amount: decimal.NewFromBigInt(wei, -weiExponent), Unit: DefaultUnit}
}

// Decimal renders the bare amount, e.g. "0.05".
func (p Price) Decimal() string {
	return p.Amount.String()
}

// String formats the price for display, e.g. "0.05 ETH".
func (p Price) String() string {
	return p.Amount.String() + " " + p.unit()
}

// Display formats with a fixed number of decimals, e.g. "0.2000 ETH".
func (p Price) Display(places int32) string {
	return p.Amount.StringFixed(places) + " " + p.unit()
}

func (p Price) unit() string {
	if p.Unit == "" {
		return DefaultUnit
	}
	return p.Unit
}

// MarshalJSON encodes the price as its display string.
func (p Price) MarshalJSON() ([]byte, error) {
	return json.Marshal(p.String())
}

// UnmarshalJSON accepts either a display string or a bare JSON number.
func (p *Price) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		var num json.Number
		if err := json.Unmarshal(data, &num); err != nil {
			return fmt.Errorf("%w: %s", ErrInvalidPrice, string(data))
		}
		raw = num.String()
	}
	parsed, err := Parse(raw)
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}
