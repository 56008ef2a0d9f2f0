package commission

import (
	"context"

	"github.com/shopspring/decimal"

	"serotonyl.ru/mlm-platform/internal/common"
	"serotonyl.ru/mlm-platform/internal/features/investments"
	"serotonyl.ru/mlm-platform/internal/features/ledger"
)

// capBasis: какие записи считаются выплатой против активности.
// Комьюнити-бонусы ссылаются на активность через sourceMintingId и в лимит не входят.
var capBasis = []ledger.Type{ledger.TypeSelfMintingBonus, ledger.TypeAutoMintingBonus}

// CapState: сколько уже выплачено против активности и где лимит.
// Enforced=false, если процент лимита не задан: тогда лимита нет.
type CapState struct {
	Paid     decimal.Decimal
	Limit    decimal.Decimal
	Enforced bool
}

// Ratio: выплачено в процентах от вложенной суммы.
func (c CapState) Ratio(invested decimal.Decimal) decimal.Decimal {
	return common.RatioPercent(c.Paid, invested)
}

// Reached: лимит уже достигнут.
func (c CapState) Reached() bool {
	return c.Enforced && c.Paid.GreaterThanOrEqual(c.Limit)
}

// Exceeds: выплата amount перешагнула бы лимит.
func (c CapState) Exceeds(amount decimal.Decimal) bool {
	return c.Enforced && c.Paid.Add(amount).GreaterThan(c.Limit)
}

// ReachedAfter: после выплаты amount лимит будет ровно исчерпан.
func (c CapState) ReachedAfter(amount decimal.Decimal) bool {
	return c.Enforced && c.Paid.Add(amount).GreaterThanOrEqual(c.Limit)
}

// CheckCap читает выплаченное по активности из журнала (одобренные записи
// self/auto с mintingId этой активности).
func CheckCap(ctx context.Context, st Store, a *investments.Activity, capPercent decimal.Decimal) (CapState, error) {
	paid, err := st.SumByMinting(ctx, a.ID, capBasis, ledger.StatusApproved)
	if err != nil {
		return CapState{}, err
	}
	return CapState{
		Paid:     paid,
		Limit:    common.PercentOf(a.InvestedAmount, capPercent),
		Enforced: capPercent.IsPositive(),
	}, nil
}

// PaidRatio: процент уже выплаченного против вложенной суммы активности.
func PaidRatio(ctx context.Context, st Store, a *investments.Activity) (decimal.Decimal, error) {
	paid, err := st.SumByMinting(ctx, a.ID, capBasis, ledger.StatusApproved)
	if err != nil {
		return decimal.Zero, err
	}
	return common.RatioPercent(paid, a.InvestedAmount), nil
}
