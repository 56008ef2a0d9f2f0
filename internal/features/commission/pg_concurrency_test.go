package commission

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"serotonyl.ru/mlm-platform/internal/common"
	"serotonyl.ru/mlm-platform/internal/db/postgres/pgtest"
	"serotonyl.ru/mlm-platform/internal/features/accounts"
	"serotonyl.ru/mlm-platform/internal/features/binary"
	"serotonyl.ru/mlm-platform/internal/features/investments"
	"serotonyl.ru/mlm-platform/internal/features/ledger"
	"serotonyl.ru/mlm-platform/internal/features/settings"
)

func putSettings(t *testing.T, ctx context.Context, svc *settings.Service, docs map[string]string) {
	t.Helper()
	for name, doc := range docs {
		require.NoError(t, svc.Put(ctx, name, json.RawMessage(doc)))
	}
}

// Параллельные покупки под одним родителем. Реферальный и древесный порядок
// блокировок разный (B приглашён R, но стоит под P; C приглашён P, но стоит под R),
// поэтому транзакции могут ловить deadlock и должны проходить повтором.
func TestPostgresConcurrentPurchases(t *testing.T) {
	pool := pgtest.NewPool(t)
	ctx := context.Background()

	putSettings(t, ctx, settings.NewService(settings.NewRepository(pool)), map[string]string{
		settings.NameDirectBonus:   `{"percentage":"10"}`,
		settings.NameBuildingBonus: `{"level1Percentage":"10","remainingPercentage":"5"}`,
	})

	const perBuyer = 4
	users := accounts.NewService(pool)
	register := func(name, referrer string) *accounts.User {
		u, err := users.Register(ctx, accounts.RegisterInput{Username: name, ReferredByCode: referrer})
		require.NoError(t, err)
		return u
	}
	p := register("P", "")
	r := register("R", p.OwnCode)
	b := register("B", r.OwnCode)
	c := register("C", p.OwnCode)
	for _, u := range []*accounts.User{b, c} {
		_, err := users.AdjustBalance(ctx, u.ID, decimal.NewFromInt(100*perBuyer), "пополнение")
		require.NoError(t, err)
	}

	tree := binary.NewService(pool)
	place := func(in binary.PlaceInput) {
		_, err := tree.Place(ctx, in)
		require.NoError(t, err)
	}
	place(binary.PlaceInput{UserID: p.ID})
	place(binary.PlaceInput{UserID: r.ID, ParentID: &p.ID, Leg: "R"})
	place(binary.PlaceInput{UserID: b.ID, ParentID: &p.ID, Leg: "L"})
	place(binary.PlaceInput{UserID: c.ID, ParentID: &r.ID, Leg: "L"})

	pkg, err := investments.NewService(pool).CreatePackage(ctx, investments.PackageInput{
		Name:        "Points",
		HubPrice:    decimal.NewFromInt(100),
		HubCapacity: decimal.NewFromInt(100),
		Points:      decimal.NewFromInt(100),
	})
	require.NoError(t, err)

	engine := NewEngine(NewPgRunner(pool), DefaultConfig(), clockwork.NewRealClock(), nil)
	var g errgroup.Group
	for i := 0; i < perBuyer; i++ {
		for _, buyer := range []int64{b.ID, c.ID} {
			g.Go(func() error {
				_, err := engine.Purchase(ctx, PurchaseInput{BuyerID: buyer, PackageID: pkg.ID})
				return err
			})
		}
	}
	require.NoError(t, g.Wait())

	// Каждое очко учтено ровно один раз: слева B, справа C через R
	top, err := tree.Get(ctx, p.ID)
	require.NoError(t, err)
	requireDec(t, "400", top.TotalLeftPoints)
	requireDec(t, "400", top.TotalRightPoints)
	requireDec(t, "0", top.LeftPoints)
	requireDec(t, "0", top.RightPoints)

	mid, err := tree.Get(ctx, r.ID)
	require.NoError(t, err)
	requireDec(t, "400", mid.TotalLeftPoints)
	requireDec(t, "400", mid.LeftPoints)

	// Сматчено 400 очков у P: 10% = 40 по записям (оплаченным или сгоревшим)
	entries, err := ledger.NewRepository(pool).ListByUser(ctx, p.ID, 1000)
	require.NoError(t, err)
	building := decimal.Zero
	for _, e := range entries {
		if e.Type == ledger.TypeCommunityBuildingBonus || e.Type == ledger.TypeCommunityBuildingBonusFlushed {
			building = building.Add(e.Amount)
		}
	}
	requireDec(t, "40", building)

	for _, u := range []int64{b.ID, c.ID} {
		after, err := users.Get(ctx, u)
		require.NoError(t, err)
		requireDec(t, "0", after.WalletBalance)
	}
}

// Параллельные клики по одной активности у самого лимита: сумма одобренных
// выплат не выходит за лимит, активность закрывается.
func TestPostgresConcurrentClicksRespectCap(t *testing.T) {
	pool := pgtest.NewPool(t)
	ctx := context.Background()

	putSettings(t, ctx, settings.NewService(settings.NewRepository(pool)), map[string]string{
		settings.NameMintingCommission: `{"manual":{"noInvestment":"2"},"auto":{"noInvestment":"2"}}`,
		settings.NameMintingCap:        `{"percentage":"250"}`,
	})

	users := accounts.NewService(pool)
	u, err := users.Register(ctx, accounts.RegisterInput{Username: "miner"})
	require.NoError(t, err)
	_, err = users.AdjustBalance(ctx, u.ID, decimal.NewFromInt(1000), "пополнение")
	require.NoError(t, err)

	invest := investments.NewService(pool)
	pkg, err := invest.CreatePackage(ctx, investments.PackageInput{
		Name:           "Cap",
		HubPrice:       decimal.NewFromInt(1000),
		HubCapacity:    decimal.NewFromInt(1000),
		MinimumMinting: decimal.NewFromInt(100),
	})
	require.NoError(t, err)

	cfg := DefaultConfig()
	cfg.ClickCooldown = 0
	engine := NewEngine(NewPgRunner(pool), cfg, clockwork.NewRealClock(), nil)

	purchase, err := engine.Purchase(ctx, PurchaseInput{BuyerID: u.ID, PackageID: pkg.ID})
	require.NoError(t, err)
	activity, err := invest.StartMinting(ctx, investments.StartMintingInput{
		UserID:       u.ID,
		InvestmentID: purchase.Investment.ID,
		MintingType:  "AUTO",
		Amount:       decimal.NewFromInt(1000),
	})
	require.NoError(t, err)

	// История: выплачено 2460 из 2500, до лимита два клика по 20
	entries := ledger.NewRepository(pool)
	require.NoError(t, entries.Append(ctx, &ledger.Entry{
		EventID:  uuid.New(),
		Sender:   ledger.System(),
		Receiver: ledger.User(u.ID),
		Amount:   decimal.NewFromInt(2460),
		Type:     ledger.TypeAutoMintingBonus,
		Status:   ledger.StatusApproved,
		Details:  ledger.Details{MintingID: ledger.Ref(activity.ID)},
	}))

	const clicks = 8
	var g errgroup.Group
	for i := 0; i < clicks; i++ {
		g.Go(func() error {
			_, err := engine.Click(ctx, ClickInput{UserID: u.ID, MintingType: "AUTO"})
			if errors.Is(err, common.ErrNoActiveMinting) {
				return nil // активность уже закрыта другим кликом
			}
			return err
		})
	}
	require.NoError(t, g.Wait())

	paid, err := entries.SumByMinting(ctx, activity.ID, []ledger.Type{ledger.TypeAutoMintingBonus}, ledger.StatusApproved)
	require.NoError(t, err)
	requireDec(t, "2500", paid)

	list, err := invest.ListActivities(ctx, u.ID)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.False(t, list[0].IsActive)
	requireDec(t, "40", list[0].TotalProfitEarned)
}
