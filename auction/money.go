package auction

import (
	"strings"

	"github.com/shopspring/decimal"
)

// maxAmount 對應儲存層 numeric(10,2) 的上限
var maxAmount = decimal.RequireFromString("99999999.99")

// ParseAmount 解析一個金額字串
// 金額必須為正數、最多兩位小數且不超過儲存層的上限
func ParseAmount(raw string) (decimal.Decimal, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return decimal.Zero, reject(ErrInvalidAmount, "amount is required")
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, reject(ErrInvalidAmount, "%q is not a valid amount", raw)
	}
	if !d.IsPositive() {
		return decimal.Zero, reject(ErrInvalidAmount, "amount must be positive")
	}
	if !d.Equal(d.Round(2)) {
		return decimal.Zero, reject(ErrInvalidAmount, "amount must have at most two decimal places")
	}
	if d.GreaterThan(maxAmount) {
		return decimal.Zero, reject(ErrInvalidAmount, "amount must not exceed %s", maxAmount.StringFixed(2))
	}
	return d, nil
}
