package shared

import "github.com/shopspring/decimal"

// AmountScale is the number of fractional digits every numeric(19,4) column keeps.
const AmountScale = 4

// FitsScale reports whether d is stored without rounding. Trailing zeros are fine.
func FitsScale(d decimal.Decimal) bool {
	return d.Equal(d.Round(AmountScale))
}
