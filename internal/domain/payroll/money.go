package payroll

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// MinorUnits is the number of decimal places money is rounded to.
const MinorUnits int32 = 2

var hundred = decimal.NewFromInt(100)

type Rounding string

const (
	RoundHalfUp  Rounding = "half_up"
	RoundBankers Rounding = "bankers"
)

func ParseRounding(value string) (Rounding, error) {
	switch Rounding(strings.ToLower(strings.TrimSpace(value))) {
	case "", RoundHalfUp:
		return RoundHalfUp, nil
	case RoundBankers:
		return RoundBankers, nil
	default:
		return "", fmt.Errorf("unknown rounding policy %q", value)
	}
}

// Apply rounds amount to the currency minor unit.
func (r Rounding) Apply(amount decimal.Decimal) decimal.Decimal {
	if r == RoundBankers {
		return amount.RoundBank(MinorUnits)
	}
	return amount.Round(MinorUnits)
}

func percentOf(base, percent decimal.Decimal) decimal.Decimal {
	return base.Mul(percent).Div(hundred)
}

func maxZero(value decimal.Decimal) decimal.Decimal {
	if value.IsNegative() {
		return decimal.Zero
	}
	return value
}
