package commission

import (
	"context"
	"errors"
	"sort"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"serotonyl.ru/mlm-platform/internal/common"
	"serotonyl.ru/mlm-platform/internal/features/accounts"
	"serotonyl.ru/mlm-platform/internal/features/investments"
	"serotonyl.ru/mlm-platform/internal/features/ledger"
	"serotonyl.ru/mlm-platform/internal/features/settings"
)

// PurchaseInput: покупка пакета.
type PurchaseInput struct {
	BuyerID   int64 `json:"buyerId"`
	PackageID int64 `json:"packageId"`
}

// Validate отклоняет запрос до любых изменений.
func (in PurchaseInput) Validate() error {
	if in.BuyerID <= 0 || in.PackageID <= 0 {
		return common.ErrInvalidID
	}
	return nil
}

// PurchaseResult: созданная инвестиция, записи журнала и балансы
// всех затронутых пользователей после события.
type PurchaseResult struct {
	EventID    uuid.UUID               `json:"eventId"`
	Investment *investments.Investment `json:"investment"`
	Entries    []*ledger.Entry         `json:"entries"`
	Users      []*accounts.User        `json:"users"`
}

// Purchase списывает стоимость пакета, создаёт инвестицию и распределяет
// прямой бонус и бонус за построение. Всё в одной транзакции.
func (e *Engine) Purchase(ctx context.Context, in PurchaseInput) (*PurchaseResult, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}
	started := e.clock.Now()
	ev := newEvent()
	res := &PurchaseResult{EventID: ev.id}

	err := e.runner.InTx(ctx, func(st Store) error {
		ev.reset()
		snap, err := st.Settings(ctx)
		if err != nil {
			return err
		}
		pkg, err := st.GetPackage(ctx, in.PackageID)
		if err != nil {
			return err
		}
		if !pkg.IsActive {
			return common.ErrPackageInactive
		}
		buyer, err := st.GetUser(ctx, in.BuyerID)
		if err != nil {
			return err
		}

		if err := st.DebitWallet(ctx, buyer.ID, pkg.HubPrice); err != nil {
			return err
		}
		inv := investments.NewInvestment(buyer.ID, pkg)
		if err := st.CreateInvestment(ctx, inv); err != nil {
			return err
		}
		res.Investment = inv

		err = e.append(ctx, st, ev, &ledger.Entry{
			Sender:   ledger.User(buyer.ID),
			Receiver: ledger.System(),
			Amount:   pkg.HubPrice,
			Type:     ledger.TypePackagePurchase,
			Status:   ledger.StatusCompleted,
			Details:  ledger.Details{BuyerID: ledger.Ref(buyer.ID), InvestmentID: ledger.Ref(inv.ID)},
		})
		if err != nil {
			return err
		}

		if err := e.directBonus(ctx, st, ev, snap, buyer, inv); err != nil {
			return err
		}
		err = e.distributeBuilding(ctx, st, ev, snap, buildingSource{
			BuyerID:      buyer.ID,
			InvestmentID: inv.ID,
			Points:       inv.Points,
		})
		if err != nil {
			return err
		}

		res.Users, err = affectedUsers(ctx, st, ev)
		return err
	})
	if err != nil {
		log.WithError(err).WithFields(log.Fields{
			"buyer_id":   in.BuyerID,
			"package_id": in.PackageID,
		}).Warn("Покупка пакета не выполнена")
		return nil, err
	}

	e.finish(ctx, "purchase", ev, started)
	res.Entries, _ = ev.snapshot()
	return res, nil
}

// directBonus платит прямой бонус пригласившему (только Green ID, без лимитов).
func (e *Engine) directBonus(ctx context.Context, st Store, ev *event, snap *settings.Snapshot, buyer *accounts.User, inv *investments.Investment) error {
	if buyer.ReferredByCode == nil || *buyer.ReferredByCode == "" {
		return nil
	}
	ref, err := st.GetUserByCode(ctx, *buyer.ReferredByCode)
	if errors.Is(err, common.ErrUserNotFound) {
		log.WithField("code", *buyer.ReferredByCode).Warn("Пригласивший по коду не найден, прямой бонус пропущен")
		return nil
	}
	if err != nil {
		return err
	}
	if ref.ID == buyer.ID {
		return nil
	}

	percent := common.ParsePercent(snap.DirectBonus.Percentage)
	_, err = e.distribute(ctx, st, ev, payout{
		Receiver: ref.ID,
		Amount:   common.PercentOf(inv.HubPrice, percent),
		Type:     ledger.TypeDirectCommission,
		Details: ledger.Details{
			Level:        1,
			Percentage:   percent,
			BuyerID:      ledger.Ref(buyer.ID),
			InvestmentID: ledger.Ref(inv.ID),
		},
		Gate: greenID(ref.ID),
	})
	return err
}

// affectedUsers перечитывает всех пользователей, упомянутых в записях события.
func affectedUsers(ctx context.Context, st Store, ev *event) ([]*accounts.User, error) {
	entries, _ := ev.snapshot()
	seen := make(map[int64]bool)
	var ids []int64
	for _, entry := range entries {
		for _, a := range []ledger.Actor{entry.Sender, entry.Receiver} {
			if id, ok := a.UserID(); ok && !seen[id] {
				seen[id] = true
				ids = append(ids, id)
			}
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	users := make([]*accounts.User, 0, len(ids))
	for _, id := range ids {
		u, err := st.GetUser(ctx, id)
		if err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, nil
}
