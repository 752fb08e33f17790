package types

import (
	"strings"

	"github.com/shopspring/decimal"
)

// MinorUnitsPerMajor is the kobo/cent scale shared by every supported currency.
const MinorUnitsPerMajor = 100

var minorScale = decimal.NewFromInt(MinorUnitsPerMajor)

// ToMinorUnits converts a major unit amount (1500.00) to provider minor units (150000).
func ToMinorUnits(amount decimal.Decimal) int64 {
	return amount.Mul(minorScale).Round(0).IntPart()
}

// FromMinorUnits converts provider minor units back to a major unit amount.
func FromMinorUnits(v int64) decimal.Decimal {
	return decimal.New(v, -2)
}

// FormatAmount renders "NGN 1,500.00".
func FormatAmount(currency string, amount decimal.Decimal) string {
	s := amount.StringFixed(2)
	neg := strings.HasPrefix(s, "-")
	s = strings.TrimPrefix(s, "-")
	intPart, frac, _ := strings.Cut(s, ".")

	var b strings.Builder
	for i, r := range intPart {
		if i > 0 && (len(intPart)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}
	out := b.String() + "." + frac
	if neg {
		out = "-" + out
	}
	if currency == "" {
		return out
	}
	return currency + " " + out
}
