package money

import (
	"strings"

	"github.com/shopspring/decimal"
)

// Commerce money fields arrive in minor units (paise). Conversions stay in
// decimal until the final rendering step so no float drift reaches a payload.

// PaiseToRupees converts minor units to a rupee amount. Zero in, zero out.
func PaiseToRupees(paise int64) decimal.Decimal {
	if paise == 0 {
		return decimal.Zero
	}
	return decimal.NewFromInt(paise).Div(decimal.NewFromInt(100))
}

// RupeesToPaise converts a rupee amount to minor units, rounding half up.
func RupeesToPaise(rupees decimal.Decimal) int64 {
	return rupees.Mul(decimal.NewFromInt(100)).Round(0).IntPart()
}

// Float renders a rupee amount as a float64 for payloads whose consumers
// expect a JSON number.
func Float(d decimal.Decimal) float64 {
	f, _ := d.Float64()
	return f
}

// FormatINR renders a rupee amount with en-IN digit grouping and a rupee
// sign, e.g. 1234567.5 -> "₹12,34,567.50".
func FormatINR(d decimal.Decimal) string {
	neg := d.IsNegative()
	fixed := d.Abs().StringFixed(2)
	whole, frac, _ := strings.Cut(fixed, ".")
	grouped := groupIndian(whole)
	var b strings.Builder
	if neg {
		b.WriteByte('-')
	}
	b.WriteString("₹")
	b.WriteString(grouped)
	b.WriteByte('.')
	b.WriteString(frac)
	return b.String()
}

// groupIndian applies the 3-then-2 grouping scheme: the last three digits
// form one group, every two digits before that form another.
func groupIndian(digits string) string {
	n := len(digits)
	if n <= 3 {
		return digits
	}
	var groups []string
	groups = append(groups, digits[n-3:])
	rest := digits[:n-3]
	for len(rest) > 2 {
		groups = append([]string{rest[len(rest)-2:]}, groups...)
		rest = rest[:len(rest)-2]
	}
	if rest != "" {
		groups = append([]string{rest}, groups...)
	}
	return strings.Join(groups, ",")
}
