package commission

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"

	"serotonyl.ru/mlm-platform/internal/common"
	"serotonyl.ru/mlm-platform/internal/features/binary"
	"serotonyl.ru/mlm-platform/internal/features/ledger"
	"serotonyl.ru/mlm-platform/internal/features/settings"
)

// buildingSource: откуда пришли очки.
type buildingSource struct {
	BuyerID      int64
	InvestmentID int64
	Points       decimal.Decimal
}

// distributeBuilding начисляет бонус за построение структуры.
//
// Очки покупки добавляются родителю покупателя на его сторону. Если у родителя
// заполнены обе стороны, он получает Level-1 процент со слабой стороны.
// Иначе очки поднимаются по дереву до корня, и каждый предок с двумя
// заполненными сторонами попадает в список (ближайший первым): первый получает
// Level-1 процент, остальные делят Remaining процент поровну, но не больше потолка.
func (e *Engine) distributeBuilding(ctx context.Context, st Store, ev *event, snap *settings.Snapshot, src buildingSource) error {
	if !src.Points.IsPositive() {
		return nil
	}

	node, err := st.GetPlacement(ctx, src.BuyerID)
	if errors.Is(err, common.ErrPlacementNotFound) {
		log.WithField("user_id", src.BuyerID).Debug("Покупатель не размещён в дереве, бонус за построение пропущен")
		return nil
	}
	if err != nil {
		return err
	}
	if node.ParentID == nil || node.Leg == nil {
		return nil // корень: очки некому передать
	}

	level1 := common.ParsePercent(snap.BuildingBonus.Level1Percentage)
	remaining := common.ParsePercent(snap.BuildingBonus.RemainingPercentage)

	parent, err := st.AddLegPoints(ctx, *node.ParentID, *node.Leg, src.Points)
	if err != nil {
		return err
	}
	if parent.BothLegsFilled() {
		return e.payBuilding(ctx, st, ev, parent, level1, 1, src)
	}

	payees, err := carryUp(ctx, st, src.BuyerID, parent, src.Points)
	if err != nil {
		return err
	}
	if len(payees) == 0 {
		return nil
	}

	if err := e.payBuilding(ctx, st, ev, payees[0], level1, 1, src); err != nil {
		return err
	}
	rest := payees[1:]
	if len(rest) == 0 {
		return nil
	}
	// Процент хранится в журнале с MoneyScale знаками: сумма считается от округлённого
	share := remaining.DivRound(decimal.NewFromInt(int64(len(rest))), common.MoneyScale)
	perUser := decimal.Min(e.cfg.BuildingPerUserCeiling, share)
	for i, p := range rest {
		if err := e.payBuilding(ctx, st, ev, p, perUser, i+2, src); err != nil {
			return err
		}
	}
	return nil
}

// carryUp поднимает очки от from до корня и возвращает предков,
// у которых после этого заполнены обе стороны (ближайший первым).
func carryUp(ctx context.Context, st Store, buyerID int64, from *binary.Placement, points decimal.Decimal) ([]*binary.Placement, error) {
	visited := map[int64]bool{buyerID: true, from.UserID: true}
	var payees []*binary.Placement

	cur := from
	for cur.ParentID != nil && cur.Leg != nil {
		next := *cur.ParentID
		if visited[next] {
			log.WithFields(log.Fields{
				"buyer_id": buyerID,
				"loop_at":  next,
			}).Warn("Цикл в бинарном дереве, подъём очков остановлен")
			break
		}
		visited[next] = true

		anc, err := st.AddLegPoints(ctx, next, *cur.Leg, points)
		if err != nil {
			return nil, err
		}
		if anc.BothLegsFilled() {
			payees = append(payees, anc)
		}
		cur = anc
	}
	return payees, nil
}

// payBuilding матчит слабую сторону узла и выплачивает percent от неё.
// Очки списываются и тогда, когда бонус сгорает.
// При нулевом проценте узел не матчится: очки остаются, записи нет.
func (e *Engine) payBuilding(ctx context.Context, st Store, ev *event, node *binary.Placement, percent decimal.Decimal, level int, src buildingSource) error {
	if !percent.IsPositive() {
		return nil
	}
	matched := node.WeakLeg()
	if !matched.IsPositive() {
		return nil
	}
	if _, err := st.ConsumeMatched(ctx, node.UserID, matched); err != nil {
		return err
	}

	_, err := e.distribute(ctx, st, ev, payout{
		Receiver: node.UserID,
		Amount:   common.PercentOf(matched, percent),
		Type:     ledger.TypeCommunityBuildingBonus,
		Details: ledger.Details{
			Level:        level,
			Percentage:   percent,
			BuyerID:      ledger.Ref(src.BuyerID),
			InvestmentID: ledger.Ref(src.InvestmentID),
		},
		Gate: allOf(greenID(node.UserID), buildingLifetimeCap(node.UserID)),
	})
	return err
}

// buildingLifetimeCap: бонусов за построение получено меньше, чем вложено в пакеты.
func buildingLifetimeCap(userID int64) gate {
	return func(ctx context.Context, st Store) (bool, string, error) {
		received, err := st.SumReceived(ctx, userID, []ledger.Type{ledger.TypeCommunityBuildingBonus}, ledger.StatusApproved)
		if err != nil {
			return false, "", err
		}
		invested, err := st.SumHubPrice(ctx, userID)
		if err != nil {
			return false, "", err
		}
		if received.LessThan(invested) {
			return true, "", nil
		}
		return false, NoteBuildingCap, nil
	}
}
