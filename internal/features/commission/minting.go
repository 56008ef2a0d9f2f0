package commission

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"serotonyl.ru/mlm-platform/internal/common"
	"serotonyl.ru/mlm-platform/internal/features/accounts"
	"serotonyl.ru/mlm-platform/internal/features/investments"
	"serotonyl.ru/mlm-platform/internal/features/ledger"
	"serotonyl.ru/mlm-platform/internal/features/settings"
)

var two = decimal.NewFromInt(2)

// ClickInput: клик минтинга по всем активностям пользователя данного типа.
type ClickInput struct {
	UserID      int64  `json:"userId"`
	MintingType string `json:"mintingType"`
}

// ClickResult: итог клика. Детали начислений видны в журнале по EventID.
type ClickResult struct {
	EventID   uuid.UUID       `json:"eventId"`
	Processed int             `json:"processed"`
	Capped    []int64         `json:"capped,omitempty"`
	Entries   []*ledger.Entry `json:"entries"`
}

// clickContext: то, что читается один раз на всё событие.
type clickContext struct {
	userID      int64
	mintingType investments.MintingType
	snap        *settings.Snapshot
	business    decimal.Decimal // hubCapacity всех инвестиций прямых рефералов
	upline      []Upline
	now         time.Time
}

// Click обрабатывает клик: каждая активность пользователя считается
// независимо и в своей транзакции, активности идут параллельно
// (не больше MintingWorkers одновременно). Если часть активностей упала,
// возвращается и результат по закоммиченным, и объединённая ошибка.
func (e *Engine) Click(ctx context.Context, in ClickInput) (*ClickResult, error) {
	if in.UserID <= 0 {
		return nil, common.ErrInvalidID
	}
	t, err := investments.ParseMintingType(in.MintingType)
	if err != nil {
		return nil, err
	}
	started := e.clock.Now()
	ev := newEvent()
	cc := &clickContext{userID: in.UserID, mintingType: t, now: started}

	var activities []*investments.Activity
	err = e.runner.InTx(ctx, func(st Store) error {
		user, err := st.GetUser(ctx, in.UserID)
		if err != nil {
			return err
		}
		if cc.snap, err = st.Settings(ctx); err != nil {
			return err
		}
		if activities, err = st.ListActiveActivities(ctx, user.ID, t); err != nil {
			return err
		}
		if cc.business, err = referralBusiness(ctx, st, user); err != nil {
			return err
		}
		cc.upline, err = ResolveUpline(ctx, st, user.ID, e.cfg.ReferralMaxLevels)
		return err
	})
	if err != nil {
		return nil, err
	}
	if len(activities) == 0 {
		return nil, common.ErrNoActiveMinting
	}

	ready := activities[:0]
	for _, a := range activities {
		if !e.inCooldown(a, cc.now) {
			ready = append(ready, a)
		}
	}
	if len(ready) == 0 {
		return nil, common.ErrClickTooSoon
	}

	// Ошибка одной активности не отменяет остальные: их транзакции независимы
	var g errgroup.Group
	g.SetLimit(e.cfg.MintingWorkers)
	processed := make([]bool, len(ready))
	errs := make([]error, len(ready))
	for i, a := range ready {
		g.Go(func() error {
			var local *event
			var done bool
			err := e.runner.InTx(ctx, func(st Store) error {
				local = ev.child()
				var err error
				done, err = e.processActivity(ctx, st, local, cc, a.ID)
				return err
			})
			if err != nil {
				errs[i] = fmt.Errorf("активность %d: %w", a.ID, err)
				return nil
			}
			ev.merge(local)
			processed[i] = done
			return nil
		})
	}
	_ = g.Wait()

	// Закоммиченные активности учитываются и при частичной ошибке
	e.finish(ctx, "minting_click", ev, started)
	res := &ClickResult{EventID: ev.id}
	res.Entries, res.Capped = ev.snapshot()
	for _, ok := range processed {
		if ok {
			res.Processed++
		}
	}

	if err := errors.Join(errs...); err != nil {
		log.WithError(err).WithFields(log.Fields{
			"user_id":   in.UserID,
			"type":      t,
			"event_id":  ev.id,
			"processed": res.Processed,
		}).Error("Ошибка обработки клика минтинга")
		return res, err
	}
	return res, nil
}

func (e *Engine) inCooldown(a *investments.Activity, now time.Time) bool {
	return e.cfg.ClickCooldown > 0 && a.LastClickAt != nil && now.Sub(*a.LastClickAt) < e.cfg.ClickCooldown
}

// referralBusiness: сумма hubCapacity инвестиций прямых рефералов пользователя.
func referralBusiness(ctx context.Context, st Store, user *accounts.User) (decimal.Decimal, error) {
	ids, err := st.ReferralIDs(ctx, user.OwnCode)
	if err != nil {
		return decimal.Zero, err
	}
	if len(ids) == 0 {
		return decimal.Zero, nil
	}
	return st.SumHubCapacity(ctx, ids)
}

// processActivity: один клик по одной активности. Строка активности
// блокируется, поэтому лимит перечитывается прямо перед начислением.
// Возвращает false, если клик пропущен (активность закрыта или ещё на паузе).
func (e *Engine) processActivity(ctx context.Context, st Store, ev *event, cc *clickContext, activityID int64) (bool, error) {
	a, err := st.LockActivity(ctx, activityID)
	if err != nil {
		return false, err
	}
	// Параллельный клик мог успеть раньше
	if !a.IsActive || e.inCooldown(a, cc.now) {
		return false, nil
	}

	clickNo, err := st.RecordClick(ctx, a.ID, cc.now)
	if err != nil {
		return false, err
	}

	capState, err := CheckCap(ctx, st, a, common.ParsePercent(cc.snap.MintingCap.Percentage))
	if err != nil {
		return false, err
	}
	if capState.Reached() {
		return true, e.closeActivity(ctx, st, ev, a, clickNo)
	}

	percent := mintingRate(cc.snap, cc.mintingType, a, cc.business)
	commission := common.PercentOf(a.InvestedAmount, percent)
	bonusType, communityType := mintingTypes(cc.mintingType)
	details := ledger.Details{
		Percentage:   percent,
		InvestmentID: ledger.Ref(a.InvestmentID),
		MintingID:    ledger.Ref(a.ID),
	}

	if capState.Exceeds(commission) {
		_, err := e.distribute(ctx, st, ev, payout{
			Receiver: a.UserID,
			Amount:   commission,
			Type:     bonusType,
			Details:  details,
			Gate:     deny(NoteMintingCap),
		})
		if err != nil {
			return false, err
		}
		return true, e.closeActivity(ctx, st, ev, a, clickNo)
	}

	entry, err := e.distribute(ctx, st, ev, payout{
		Receiver: a.UserID,
		Amount:   commission,
		Type:     bonusType,
		Details:  details,
		Gate:     greenID(a.UserID),
		OnPaid: func(ctx context.Context, st Store, amount decimal.Decimal) error {
			return st.AddProfit(ctx, a.ID, amount)
		},
	})
	if err != nil {
		return false, err
	}

	if err := e.communityBonus(ctx, st, ev, cc, a, commission, communityType); err != nil {
		return false, err
	}

	if entry != nil && entry.Status.Paid() && capState.ReachedAfter(commission) {
		return true, e.closeActivity(ctx, st, ev, a, clickNo)
	}
	return true, st.MarkClickProcessed(ctx, a.ID, clickNo)
}

// closeActivity закрывает активность, достигшую лимита.
func (e *Engine) closeActivity(ctx context.Context, st Store, ev *event, a *investments.Activity, clickNo int) error {
	if err := st.DeactivateActivity(ctx, a.ID); err != nil {
		return err
	}
	ev.addCapped(a.ID)
	log.WithFields(log.Fields{
		"activity_id": a.ID,
		"user_id":     a.UserID,
	}).Info("Активность достигла лимита заработка и закрыта")
	return st.MarkClickProcessed(ctx, a.ID, clickNo)
}

// mintingRate возвращает процент клика. Первая активность инвестиции берёт ставку
// по кратному бизнеса рефералов (для MANUAL половину), остальные берут
// ставку noInvestment целиком.
func mintingRate(snap *settings.Snapshot, t investments.MintingType, a *investments.Activity, business decimal.Decimal) decimal.Decimal {
	table := snap.MintingCommission.Auto
	if t == investments.MintingManual {
		table = snap.MintingCommission.Manual
	}
	if !a.First() {
		return common.ParsePercent(table[NoInvestmentTier])
	}
	rate := ResolveRate(table, Multiple(business, a.InvestedAmount))
	if t == investments.MintingManual {
		rate = rate.Div(two)
	}
	return rate
}

func mintingTypes(t investments.MintingType) (bonus, community ledger.Type) {
	if t == investments.MintingAuto {
		return ledger.TypeAutoMintingBonus, ledger.TypeCommunityAutoMintingBonus
	}
	return ledger.TypeSelfMintingBonus, ledger.TypeCommunitySelfMintingBonus
}

// communityBonus раздаёт процент от комиссии клика аплайнам по таблице уровней.
// При checkRank уровень N получает только аплайн с рангом ровно N,
// остальные уровни пропускаются без записи.
func (e *Engine) communityBonus(ctx context.Context, st Store, ev *event, cc *clickContext, a *investments.Activity, commission decimal.Decimal, t ledger.Type) error {
	levels := cc.snap.LevelBonus.Levels
	for _, up := range cc.upline {
		if up.Level > len(levels) {
			break
		}
		if cc.snap.LevelBonus.CheckRank && up.User.Rank != up.Level {
			continue
		}
		percent := common.ParsePercent(levels[up.Level-1])
		_, err := e.distribute(ctx, st, ev, payout{
			Receiver: up.User.ID,
			Amount:   common.PercentOf(commission, percent),
			Type:     t,
			Details: ledger.Details{
				Level:           up.Level,
				Percentage:      percent,
				BuyerID:         ledger.Ref(a.UserID),
				InvestmentID:    ledger.Ref(a.InvestmentID),
				SourceMintingID: ledger.Ref(a.ID),
			},
			Gate: greenID(up.User.ID),
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// AutoRunSummary: итог прогона автоминтинга.
type AutoRunSummary struct {
	Users     int
	Processed int
	Skipped   int
	Failed    int
	Paid      decimal.Decimal // Сумма оплаченных записей прогона
}

// RunAutoMinting кликает за всех пользователей с активным автоминтингом.
// Ошибка одного пользователя не останавливает остальных.
func (e *Engine) RunAutoMinting(ctx context.Context) (AutoRunSummary, error) {
	var users []int64
	err := e.runner.InTx(ctx, func(st Store) error {
		var err error
		users, err = st.UsersWithActiveActivities(ctx, investments.MintingAuto)
		return err
	})
	if err != nil {
		return AutoRunSummary{}, err
	}

	sum := AutoRunSummary{Users: len(users)}
	for _, id := range users {
		if ctx.Err() != nil {
			return sum, ctx.Err()
		}
		res, err := e.Click(ctx, ClickInput{UserID: id, MintingType: string(investments.MintingAuto)})
		switch {
		case errors.Is(err, common.ErrClickTooSoon), errors.Is(err, common.ErrNoActiveMinting):
			sum.Skipped++
		case err != nil:
			sum.Failed++
			log.WithError(err).WithField("user_id", id).Error("Автоминтинг пользователя не выполнен")
		}
		// При частичной ошибке res содержит уже закоммиченные начисления
		if res != nil {
			sum.Processed += res.Processed
			for _, entry := range res.Entries {
				if entry.Status.Paid() {
					sum.Paid = sum.Paid.Add(entry.Amount)
				}
			}
		}
	}
	return sum, nil
}

// SweepCaps закрывает активности, чей лимит уже выбран, чтобы Green ID
// был честным и между кликами. Возвращает ID закрытых активностей.
func (e *Engine) SweepCaps(ctx context.Context) ([]int64, error) {
	started := e.clock.Now()
	ev := newEvent()
	err := e.runner.InTx(ctx, func(st Store) error {
		ev.reset()
		snap, err := st.Settings(ctx)
		if err != nil {
			return err
		}
		capPercent := common.ParsePercent(snap.MintingCap.Percentage)
		if !capPercent.IsPositive() {
			return nil
		}
		active, err := st.ListAllActiveActivities(ctx)
		if err != nil {
			return err
		}
		for _, a := range active {
			capState, err := CheckCap(ctx, st, a, capPercent)
			if err != nil {
				return err
			}
			if !capState.Reached() {
				continue
			}
			if err := st.DeactivateActivity(ctx, a.ID); err != nil {
				return err
			}
			ev.addCapped(a.ID)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	e.finish(ctx, "cap_sweep", ev, started)
	_, capped := ev.snapshot()
	return capped, nil
}
