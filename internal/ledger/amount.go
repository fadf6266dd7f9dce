package ledger

import "github.com/shopspring/decimal"

// RoundAmount rounds a client supplied amount to whole currency units, half
// away from zero, and rejects anything below 1.
func RoundAmount(amount float64) (int64, error) {
	v := decimal.NewFromFloat(amount).Round(0)
	if v.LessThan(decimal.NewFromInt(1)) {
		return 0, ErrInvalidAmount
	}
	return v.IntPart(), nil
}
