package decoder

import (
	"strings"

	"github.com/shopspring/decimal"
)

// Amounts normalizes minimal-denomination amounts. Every amount the decoder
// derives from a message goes through Normalize.
type Amounts struct {
	denom    string
	decimals int32
	divisor  decimal.Decimal
}

func NewAmounts(minimalDenom string, decimals int) Amounts {
	return Amounts{
		denom:    minimalDenom,
		decimals: int32(decimals),
		divisor:  decimal.New(1, int32(decimals)),
	}
}

func (a Amounts) Denom() string { return a.denom }

// Normalize divides a minimal-denomination integer string by the precision
// divisor, rounded to the configured decimal count. Unparseable input is 0.
func (a Amounts) Normalize(minimal string) decimal.Decimal {
	v, ok := parseAmount(minimal)
	if !ok {
		return decimal.Zero
	}
	return v.Div(a.divisor).Round(a.decimals)
}

// Negate is Normalize with the sign flipped, for stake leaving a validator.
func (a Amounts) Negate(minimal string) decimal.Decimal {
	return a.Normalize(minimal).Neg()
}

// StripDenom parses a coin string such as "1000uaura" (or a comma separated
// list of coins) and returns the amount of the chain denomination, left in
// minimal units. Anything unparseable is 0.
func (a Amounts) StripDenom(coins string) decimal.Decimal {
	coins = strings.TrimSpace(coins)
	if coins == "" {
		return decimal.Zero
	}
	parts := strings.Split(coins, ",")
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if a.denom != "" && strings.HasSuffix(p, a.denom) {
			if v, ok := parseAmount(strings.TrimSuffix(p, a.denom)); ok {
				return v
			}
		}
	}
	if v, ok := parseAmount(leadingNumber(parts[0])); ok {
		return v
	}
	return decimal.Zero
}

// Format renders an amount with the fixed decimal count.
func (a Amounts) Format(d decimal.Decimal) string {
	return d.StringFixed(a.decimals)
}

func parseAmount(s string) (decimal.Decimal, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, false
	}
	v, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, false
	}
	return v, true
}

func leadingNumber(s string) string {
	s = strings.TrimSpace(s)
	end := 0
	for end < len(s) && (s[end] >= '0' && s[end] <= '9' || s[end] == '.') {
		end++
	}
	return s[:end]
}
