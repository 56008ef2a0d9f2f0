package commission

import (
	"context"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"serotonyl.ru/mlm-platform/internal/common"
	"serotonyl.ru/mlm-platform/internal/features/investments"
	"serotonyl.ru/mlm-platform/internal/features/ledger"
	"serotonyl.ru/mlm-platform/internal/features/settings"
	"serotonyl.ru/mlm-platform/internal/notify"
)

var (
	selfTypes = []ledger.Type{ledger.TypeSelfMintingBonus, ledger.TypeSelfMintingBonusFlushed}
	autoTypes = []ledger.Type{ledger.TypeAutoMintingBonus, ledger.TypeAutoMintingBonusFlushed}
)

func clickAuto(e *Engine, userID int64) (*ClickResult, error) {
	return e.Click(context.Background(), ClickInput{UserID: userID, MintingType: "AUTO"})
}

// capFixture: активность AUTO на 1000, лимит 250%, ставка 2% (20 за клик).
func capFixture(t *testing.T, alreadyPaid string) (*memStore, *Engine, int64, int64) {
	t.Helper()
	st := newMemStore()
	st.setSettings(func(s *settings.Snapshot) {
		s.MintingCap = settings.MintingCap{Percentage: "250"}
		s.MintingCommission.Auto = settings.RateTable{NoInvestmentTier: "2"}
	})
	u := st.addUser("U", "")
	inv := st.addInvestment(u, "1000", "1000")
	a := st.addActivity(u, inv, 0, investments.MintingAuto, "1000")
	st.addApproved(u, ledger.TypeAutoMintingBonus, alreadyPaid, ledger.Ref(a))
	return st, newTestEngine(st, clockwork.NewFakeClockAt(st.now)), u, a
}

func TestClick_ScenarioC_CheckBeforePay(t *testing.T) {
	st, e, u, a := capFixture(t, "2490")

	res, err := clickAuto(e, u)
	require.NoError(t, err)
	assert.Equal(t, []int64{a}, res.Capped)
	assert.Equal(t, 1, res.Processed)

	entries := st.entriesFor(u, ledger.TypeAutoMintingBonusFlushed)
	require.Len(t, entries, 1)
	requireDec(t, "20", entries[0].Amount)
	assert.Equal(t, NoteMintingCap, entries[0].Details.Note)
	assert.Equal(t, a, *entries[0].Details.MintingID)

	act := st.activity(t, a)
	assert.False(t, act.IsActive)
	assert.Equal(t, 1, act.ClicksDone)
	requireDec(t, "0", act.TotalProfitEarned)
	requireDec(t, "0", st.user(t, u).CurrentBalance)
}

func TestClick_LandsExactlyOnCap(t *testing.T) {
	st, e, u, a := capFixture(t, "2480")

	res, err := clickAuto(e, u)
	require.NoError(t, err)
	assert.Equal(t, []int64{a}, res.Capped)

	paid := st.entriesFor(u, ledger.TypeAutoMintingBonus)
	require.Len(t, paid, 2, "история + последняя выплата")
	requireDec(t, "20", st.user(t, u).CurrentBalance)
	assert.False(t, st.activity(t, a).IsActive)
}

func TestClick_AlreadyAtCapDeactivatesWithoutEntry(t *testing.T) {
	st, e, u, a := capFixture(t, "2500")
	before := st.entryCount()

	res, err := clickAuto(e, u)
	require.NoError(t, err)
	assert.Equal(t, []int64{a}, res.Capped)
	assert.Equal(t, before, st.entryCount())
	assert.False(t, st.activity(t, a).IsActive)

	_, err = clickAuto(e, u)
	assert.ErrorIs(t, err, common.ErrNoActiveMinting)
}

// Сумма одобренных выплат по активности не превышает лимит,
// после закрытия новых выплат нет.
func TestClick_CapMonotonicity(t *testing.T) {
	st := newMemStore()
	st.setSettings(func(s *settings.Snapshot) {
		s.MintingCap = settings.MintingCap{Percentage: "10"}
		s.MintingCommission.Auto = settings.RateTable{NoInvestmentTier: "3"}
	})
	u := st.addUser("U", "")
	inv := st.addInvestment(u, "100", "100")
	a := st.addActivity(u, inv, 0, investments.MintingAuto, "100")
	clock := clockwork.NewFakeClockAt(st.now)
	e := newTestEngine(st, clock)

	clicks := 0
	for i := 0; i < 10; i++ {
		_, err := clickAuto(e, u)
		if err != nil {
			require.ErrorIs(t, err, common.ErrNoActiveMinting)
			break
		}
		clicks++
		clock.Advance(24 * time.Hour)
	}
	assert.Equal(t, 4, clicks)

	paid := st.entriesFor(u, ledger.TypeAutoMintingBonus)
	assert.Len(t, paid, 3)
	assert.Len(t, st.entriesFor(u, ledger.TypeAutoMintingBonusFlushed), 1)
	requireDec(t, "9", st.user(t, u).CurrentBalance)
	requireDec(t, "9", st.activity(t, a).TotalProfitEarned)
	assert.False(t, st.activity(t, a).IsActive)
	st.requireBalanceIdentity(t)
}

func TestClick_RateByReferralBusiness(t *testing.T) {
	st := newMemStore()
	st.setSettings(func(s *settings.Snapshot) {
		s.MintingCommission.Manual = settings.RateTable{
			NoInvestmentTier: "1",
			"5x":             "3",
			"10x":            "4",
			"25x":            "6",
		}
	})
	u := st.addUser("U", "")
	r := st.addUser("R", "U")
	st.addInvestment(r, "10000", "10000")
	inv := st.addInvestment(u, "2000", "2000")
	first := st.addActivity(u, inv, 0, investments.MintingManual, "1000")
	second := st.addActivity(u, inv, 1, investments.MintingManual, "1000")

	res, err := newTestEngine(st, clockwork.NewFakeClock()).Click(context.Background(), ClickInput{UserID: u, MintingType: "manual"})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Processed)

	byActivity := map[int64]ledger.Entry{}
	for _, e := range st.entriesFor(u, selfTypes...) {
		byActivity[*e.Details.MintingID] = e
	}
	// Первая: кратное 10 → 4%, для MANUAL половина → 2% от 1000
	requireDec(t, "20", byActivity[first].Amount)
	requireDec(t, "2", byActivity[first].Details.Percentage)
	// Вторая: noInvestment целиком → 1% от 1000
	requireDec(t, "10", byActivity[second].Amount)
	requireDec(t, "30", st.user(t, u).CurrentBalance)
}

// communityFixture: TOP ← MID ← U, таблица уровней 10% и 5%, клик даёт 20.
func communityFixture(t *testing.T) (st *memStore, u, mid, top int64) {
	t.Helper()
	st = newMemStore()
	st.setSettings(func(s *settings.Snapshot) {
		s.MintingCommission.Auto = settings.RateTable{NoInvestmentTier: "2"}
		s.LevelBonus = settings.LevelBonus{Levels: []string{"10", "5"}}
	})
	top = st.addUser("TOP", "")
	mid = st.addUser("MID", "TOP")
	u = st.addUser("U", "MID")
	inv := st.addInvestment(u, "1000", "1000")
	st.addActivity(u, inv, 0, investments.MintingAuto, "1000")
	return st, u, mid, top
}

func TestClick_CommunityBonus(t *testing.T) {
	st, u, mid, top := communityFixture(t)
	st.makeEligible(mid)

	_, err := clickAuto(newTestEngine(st, clockwork.NewFakeClock()), u)
	require.NoError(t, err)

	em := st.entriesFor(mid, ledger.TypeCommunityAutoMintingBonus)
	require.Len(t, em, 1)
	requireDec(t, "2", em[0].Amount)
	assert.Equal(t, 1, em[0].Details.Level)
	assert.Nil(t, em[0].Details.MintingID, "в лимит активности не входит")
	require.NotNil(t, em[0].Details.SourceMintingID)

	// TOP без Green ID: бонус сгорает
	et := st.entriesFor(top)
	require.Len(t, et, 1)
	assert.Equal(t, ledger.TypeCommunityAutoMintingBonusFlushed, et[0].Type)
	requireDec(t, "1", et[0].Amount)
	assert.Equal(t, 2, et[0].Details.Level)
	requireDec(t, "0", st.user(t, top).CurrentBalance)
	st.requireBalanceIdentity(t)
}

func TestClick_CommunityBonusCheckRank(t *testing.T) {
	st, u, mid, top := communityFixture(t)
	st.setSettings(func(s *settings.Snapshot) { s.LevelBonus.CheckRank = true })
	st.makeEligible(mid)
	st.makeEligible(top)
	st.setRank(mid, 1)
	st.setRank(top, 3) // на 2-м уровне нужен ранг 2

	_, err := clickAuto(newTestEngine(st, clockwork.NewFakeClock()), u)
	require.NoError(t, err)

	assert.Len(t, st.entriesFor(mid, ledger.TypeCommunityAutoMintingBonus), 1)
	assert.Empty(t, st.entriesFor(top))
}

func TestClick_Cooldown(t *testing.T) {
	st, u, _, _ := communityFixture(t)
	clock := clockwork.NewFakeClockAt(st.now)
	e := newTestEngine(st, clock)

	_, err := clickAuto(e, u)
	require.NoError(t, err)

	_, err = clickAuto(e, u)
	assert.ErrorIs(t, err, common.ErrClickTooSoon)

	clock.Advance(24 * time.Hour)
	_, err = clickAuto(e, u)
	require.NoError(t, err)
	assert.Len(t, st.entriesFor(u, autoTypes...), 2)
}

func TestClick_Rejections(t *testing.T) {
	st, u, _, _ := communityFixture(t)
	e := newTestEngine(st, clockwork.NewFakeClock())

	_, err := e.Click(context.Background(), ClickInput{UserID: u, MintingType: "TURBO"})
	assert.ErrorIs(t, err, common.ErrInvalidMintingType)

	_, err = e.Click(context.Background(), ClickInput{UserID: 0, MintingType: "AUTO"})
	assert.ErrorIs(t, err, common.ErrInvalidID)

	_, err = e.Click(context.Background(), ClickInput{UserID: u, MintingType: "MANUAL"})
	assert.ErrorIs(t, err, common.ErrNoActiveMinting)

	_, err = clickAuto(e, 404)
	assert.ErrorIs(t, err, common.ErrUserNotFound)
}

func TestClick_ManyActivitiesInParallel(t *testing.T) {
	st := newMemStore()
	st.setSettings(func(s *settings.Snapshot) {
		s.MintingCommission.Auto = settings.RateTable{NoInvestmentTier: "2"}
	})
	u := st.addUser("U", "")
	inv := st.addInvestment(u, "5000", "5000")
	var ids []int64
	for i := 0; i < 6; i++ {
		ids = append(ids, st.addActivity(u, inv, i, investments.MintingAuto, "1000"))
	}

	res, err := clickAuto(newTestEngine(st, clockwork.NewFakeClock()), u)
	require.NoError(t, err)
	assert.Equal(t, 6, res.Processed)
	assert.Len(t, res.Entries, 6)
	for _, entry := range res.Entries {
		assert.Equal(t, res.EventID, entry.EventID)
	}
	for _, id := range ids {
		a := st.activity(t, id)
		assert.Equal(t, 1, a.ClicksDone)
		requireDec(t, "20", a.TotalProfitEarned)
	}
	requireDec(t, "120", st.user(t, u).CurrentBalance)
	st.requireBalanceIdentity(t)
}

// Ошибка одной активности не прячет уже закоммиченные начисления других.
func TestClick_PartialFailureReportsCommitted(t *testing.T) {
	st, _, u, failing := capFixture(t, "2490")
	ok := st.addActivity(u, st.activity(t, failing).InvestmentID, 1, investments.MintingAuto, "1000")
	st.failAppend = ledger.TypeAutoMintingBonusFlushed

	rec := &notify.Recorder{}
	e := NewEngine(st, DefaultConfig(), clockwork.NewFakeClockAt(st.now), rec)
	res, err := clickAuto(e, u)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "журнал недоступен")
	require.NotNil(t, res)
	assert.Equal(t, 1, res.Processed)
	require.Len(t, res.Entries, 1)
	assert.Equal(t, ledger.TypeAutoMintingBonus, res.Entries[0].Type)
	assert.Equal(t, ok, *res.Entries[0].Details.MintingID)
	assert.Empty(t, res.Capped)

	requireDec(t, "20", st.user(t, u).CurrentBalance)
	// Упавшая активность откатилась целиком
	assert.True(t, st.activity(t, failing).IsActive)
	assert.Zero(t, st.activity(t, failing).ClicksDone)
	st.requireBalanceIdentity(t)
}

func TestRunAutoMinting_CountsCommittedOnFailure(t *testing.T) {
	st, _, u, failing := capFixture(t, "2490")
	st.addActivity(u, st.activity(t, failing).InvestmentID, 1, investments.MintingAuto, "1000")
	st.failAppend = ledger.TypeAutoMintingBonusFlushed

	sum, err := newTestEngine(st, clockwork.NewFakeClockAt(st.now)).RunAutoMinting(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Users)
	assert.Equal(t, 1, sum.Failed)
	assert.Equal(t, 1, sum.Processed)
	requireDec(t, "20", sum.Paid)
}

func TestRunAutoMinting(t *testing.T) {
	st := newMemStore()
	st.setSettings(func(s *settings.Snapshot) {
		s.MintingCommission.Auto = settings.RateTable{NoInvestmentTier: "1"}
	})
	var auto []int64
	for _, code := range []string{"A", "B"} {
		id := st.addUser(code, "")
		inv := st.addInvestment(id, "100", "100")
		st.addActivity(id, inv, 0, investments.MintingAuto, "100")
		auto = append(auto, id)
	}
	manual := st.addUser("M", "")
	inv := st.addInvestment(manual, "100", "100")
	st.addActivity(manual, inv, 0, investments.MintingManual, "100")

	e := newTestEngine(st, clockwork.NewFakeClock())
	sum, err := e.RunAutoMinting(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, sum.Users)
	assert.Equal(t, 2, sum.Processed)
	assert.Zero(t, sum.Skipped+sum.Failed)
	requireDec(t, "2", sum.Paid)
	for _, id := range auto {
		requireDec(t, "1", st.user(t, id).CurrentBalance)
	}
	assert.Empty(t, st.entriesFor(manual))

	sum, err = e.RunAutoMinting(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, sum.Skipped)
	assert.Zero(t, sum.Processed)
	assert.True(t, sum.Paid.IsZero())
}

func TestSweepCaps(t *testing.T) {
	st := newMemStore()
	st.setSettings(func(s *settings.Snapshot) { s.MintingCap = settings.MintingCap{Percentage: "100"} })
	u := st.addUser("U", "")
	inv := st.addInvestment(u, "200", "200")
	full := st.addActivity(u, inv, 0, investments.MintingAuto, "100")
	fresh := st.addActivity(u, inv, 1, investments.MintingAuto, "100")
	st.addApproved(u, ledger.TypeAutoMintingBonus, "100", ledger.Ref(full))

	rec := &notify.Recorder{}
	e := NewEngine(st, DefaultConfig(), clockwork.NewFakeClock(), rec)
	capped, err := e.SweepCaps(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []int64{full}, capped)
	assert.False(t, st.activity(t, full).IsActive)
	assert.True(t, st.activity(t, fresh).IsActive)
	assert.Len(t, rec.Messages, 1)

	// Без документа лимита ничего не закрывается
	st.setSettings(func(s *settings.Snapshot) { s.MintingCap = settings.MintingCap{} })
	capped, err = e.SweepCaps(context.Background())
	require.NoError(t, err)
	assert.Empty(t, capped)
}
