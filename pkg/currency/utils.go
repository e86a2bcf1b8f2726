package currency

import (
	"fmt"

	"github.com/shopspring/decimal"
)

type CurrencyUtils struct{}

func NewCurrencyUtils() *CurrencyUtils {
	return &CurrencyUtils{}
}

// MeetsThreshold reports whether a deposited balance satisfies the expected
// amount within the configured tolerance. The tolerance absorbs price
// slippage between the moment a quote was taken and the moment the buyer
// broadcast the transfer.
func (u *CurrencyUtils) MeetsThreshold(balance, expected decimal.Decimal, tolerance float64) bool {
	if expected.Sign() <= 0 {
		return false
	}
	threshold := expected.Mul(decimal.NewFromFloat(tolerance))
	return balance.GreaterThanOrEqual(threshold)
}

// FormatAmount renders a token amount for display, trimming trailing zeros.
func (u *CurrencyUtils) FormatAmount(amount decimal.Decimal) string {
	return amount.String()
}

// FormatUSD formats a USD figure as a dollar string.
func (u *CurrencyUtils) FormatUSD(amount decimal.Decimal) string {
	return fmt.Sprintf("$%s", amount.StringFixed(2))
}
