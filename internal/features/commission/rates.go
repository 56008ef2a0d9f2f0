package commission

import (
	"strings"

	"github.com/shopspring/decimal"

	"serotonyl.ru/mlm-platform/internal/common"
	"serotonyl.ru/mlm-platform/internal/features/settings"
)

// NoInvestmentTier: ставка, когда бизнес рефералов меньше минимального кратного.
const NoInvestmentTier = "noInvestment"

var minTierMultiple = decimal.NewFromInt(5)

// ResolveRate выбирает ставку по кратному: наибольший уровень "Nx" с N <= multiple.
// При multiple < 5 всегда берётся noInvestment. Кривые проценты считаются нулём.
func ResolveRate(table settings.RateTable, multiple decimal.Decimal) decimal.Decimal {
	if multiple.LessThan(minTierMultiple) {
		return common.ParsePercent(table[NoInvestmentTier])
	}

	best := decimal.Zero
	label := ""
	for key := range table {
		n, ok := tierThreshold(key)
		if !ok || n.GreaterThan(multiple) {
			continue
		}
		if label == "" || n.GreaterThan(best) {
			best, label = n, key
		}
	}
	if label == "" {
		return common.ParsePercent(table[NoInvestmentTier])
	}
	return common.ParsePercent(table[label])
}

// tierThreshold разбирает метку вида "25x".
func tierThreshold(label string) (decimal.Decimal, bool) {
	raw, ok := strings.CutSuffix(strings.ToLower(strings.TrimSpace(label)), "x")
	if !ok || raw == "" {
		return decimal.Zero, false
	}
	n, err := decimal.NewFromString(raw)
	if err != nil || !n.IsPositive() {
		return decimal.Zero, false
	}
	return n, true
}

// Multiple: бизнес прямых рефералов, делённый на вложенную сумму.
func Multiple(business, invested decimal.Decimal) decimal.Decimal {
	if !invested.IsPositive() {
		return decimal.Zero
	}
	return business.Div(invested)
}
