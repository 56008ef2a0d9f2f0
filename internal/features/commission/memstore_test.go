package commission

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"serotonyl.ru/mlm-platform/internal/common"
	"serotonyl.ru/mlm-platform/internal/db/postgres"
	"serotonyl.ru/mlm-platform/internal/features/accounts"
	"serotonyl.ru/mlm-platform/internal/features/binary"
	"serotonyl.ru/mlm-platform/internal/features/investments"
	"serotonyl.ru/mlm-platform/internal/features/ledger"
	"serotonyl.ru/mlm-platform/internal/features/settings"
)

// memState: состояние хранилища в памяти. Значения в картах не разделяются
// с вызывающим: наружу отдаются копии.
type memState struct {
	users       map[int64]accounts.User
	packages    map[int64]investments.Package
	investments map[int64]investments.Investment
	activities  map[int64]investments.Activity
	clicks      map[int64][]investments.Click
	placements  map[int64]binary.Placement
	entries     []ledger.Entry
	snap        settings.Snapshot
	nextID      int64
}

func (s *memState) clone() *memState {
	c := &memState{
		users:       make(map[int64]accounts.User, len(s.users)),
		packages:    make(map[int64]investments.Package, len(s.packages)),
		investments: make(map[int64]investments.Investment, len(s.investments)),
		activities:  make(map[int64]investments.Activity, len(s.activities)),
		clicks:      make(map[int64][]investments.Click, len(s.clicks)),
		placements:  make(map[int64]binary.Placement, len(s.placements)),
		entries:     append([]ledger.Entry(nil), s.entries...),
		snap:        s.snap,
		nextID:      s.nextID,
	}
	for k, v := range s.users {
		c.users[k] = v
	}
	for k, v := range s.packages {
		c.packages[k] = v
	}
	for k, v := range s.investments {
		c.investments[k] = v
	}
	for k, v := range s.activities {
		c.activities[k] = v
	}
	for k, v := range s.clicks {
		c.clicks[k] = append([]investments.Click(nil), v...)
	}
	for k, v := range s.placements {
		c.placements[k] = v
	}
	return c
}

// memStore: Store и TxRunner в памяти. Транзакции сериализуются мьютексом,
// при ошибке состояние откатывается к снимку.
type memStore struct {
	mu    sync.Mutex
	state *memState
	now   time.Time

	// failAppend: AppendEntry этого типа вернёт ошибку (проверка отката)
	failAppend ledger.Type
}

var (
	_ Store    = (*memStore)(nil)
	_ TxRunner = (*memStore)(nil)
)

func newMemStore() *memStore {
	return &memStore{
		state: &memState{
			users:       map[int64]accounts.User{},
			packages:    map[int64]investments.Package{},
			investments: map[int64]investments.Investment{},
			activities:  map[int64]investments.Activity{},
			clicks:      map[int64][]investments.Click{},
			placements:  map[int64]binary.Placement{},
		},
		now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

func (m *memStore) InTx(_ context.Context, fn func(st Store) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	saved := m.state.clone()
	if err := fn(m); err != nil {
		m.state = saved
		return err
	}
	return nil
}

// conflictRunner: первые conflicts транзакций после выполнения fn падают
// с deadlock и повторяются заново, как PgRunner.
type conflictRunner struct {
	*memStore
	conflicts int
	attempts  int
}

func (r *conflictRunner) InTx(ctx context.Context, fn func(st Store) error) error {
	for {
		r.attempts++
		err := r.memStore.InTx(ctx, func(st Store) error {
			if err := fn(st); err != nil {
				return err
			}
			if r.conflicts > 0 {
				r.conflicts--
				return &pgconn.PgError{Code: "40P01"}
			}
			return nil
		})
		if !postgres.IsRetryable(err) {
			return err
		}
	}
}

func (m *memStore) id() int64 {
	m.state.nextID++
	return m.state.nextID
}

// --- Store ---

func (m *memStore) GetUser(_ context.Context, id int64) (*accounts.User, error) {
	u, ok := m.state.users[id]
	if !ok {
		return nil, common.ErrUserNotFound
	}
	return &u, nil
}

func (m *memStore) GetUserByCode(_ context.Context, code string) (*accounts.User, error) {
	for _, u := range m.state.users {
		if u.OwnCode == code {
			return &u, nil
		}
	}
	return nil, common.ErrUserNotFound
}

func (m *memStore) CountReferrals(ctx context.Context, code string) (int, error) {
	ids, err := m.ReferralIDs(ctx, code)
	return len(ids), err
}

func (m *memStore) ReferralIDs(_ context.Context, code string) ([]int64, error) {
	var ids []int64
	for _, u := range m.state.users {
		if u.ReferredByCode != nil && *u.ReferredByCode == code {
			ids = append(ids, u.ID)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

func (m *memStore) updateUser(id int64, fn func(u *accounts.User) error) error {
	u, ok := m.state.users[id]
	if !ok {
		return common.ErrUserNotFound
	}
	if err := fn(&u); err != nil {
		return err
	}
	m.state.users[id] = u
	return nil
}

func (m *memStore) CreditCommission(_ context.Context, userID int64, amount decimal.Decimal) error {
	return m.updateUser(userID, func(u *accounts.User) error {
		u.CurrentBalance = u.CurrentBalance.Add(amount)
		u.CommissionWithdrawable = u.CommissionWithdrawable.Add(amount)
		u.CommissionEarned = u.CommissionLocked.Add(u.CommissionWithdrawable)
		return nil
	})
}

func (m *memStore) CreditWallet(_ context.Context, userID int64, amount decimal.Decimal) error {
	return m.updateUser(userID, func(u *accounts.User) error {
		u.WalletBalance = u.WalletBalance.Add(amount)
		return nil
	})
}

func (m *memStore) DebitWallet(_ context.Context, userID int64, amount decimal.Decimal) error {
	return m.updateUser(userID, func(u *accounts.User) error {
		if u.WalletBalance.LessThan(amount) {
			return common.ErrInsufficientBalance
		}
		u.WalletBalance = u.WalletBalance.Sub(amount)
		return nil
	})
}

func (m *memStore) GetPackage(_ context.Context, id int64) (*investments.Package, error) {
	p, ok := m.state.packages[id]
	if !ok {
		return nil, common.ErrPackageNotFound
	}
	return &p, nil
}

func (m *memStore) CreateInvestment(_ context.Context, inv *investments.Investment) error {
	inv.ID = m.id()
	inv.CreatedAt = m.now
	m.state.investments[inv.ID] = *inv
	return nil
}

func (m *memStore) CountInvestments(_ context.Context, userID int64) (int, error) {
	n := 0
	for _, inv := range m.state.investments {
		if inv.UserID == userID {
			n++
		}
	}
	return n, nil
}

func (m *memStore) SumHubPrice(_ context.Context, userID int64) (decimal.Decimal, error) {
	sum := decimal.Zero
	for _, inv := range m.state.investments {
		if inv.UserID == userID {
			sum = sum.Add(inv.HubPrice)
		}
	}
	return sum, nil
}

func (m *memStore) SumHubCapacity(_ context.Context, userIDs []int64) (decimal.Decimal, error) {
	want := make(map[int64]bool, len(userIDs))
	for _, id := range userIDs {
		want[id] = true
	}
	sum := decimal.Zero
	for _, inv := range m.state.investments {
		if want[inv.UserID] {
			sum = sum.Add(inv.HubCapacity)
		}
	}
	return sum, nil
}

func (m *memStore) sortedActivities(keep func(a investments.Activity) bool) []*investments.Activity {
	var list []*investments.Activity
	for _, a := range m.state.activities {
		if keep(a) {
			list = append(list, &a)
		}
	}
	sort.Slice(list, func(i, j int) bool { return list[i].ID < list[j].ID })
	return list
}

func (m *memStore) CountActiveActivities(_ context.Context, userID int64) (int, error) {
	return len(m.sortedActivities(func(a investments.Activity) bool {
		return a.UserID == userID && a.IsActive
	})), nil
}

func (m *memStore) ListActiveActivities(_ context.Context, userID int64, t investments.MintingType) ([]*investments.Activity, error) {
	return m.sortedActivities(func(a investments.Activity) bool {
		return a.UserID == userID && a.IsActive && a.MintingType == t
	}), nil
}

func (m *memStore) ListAllActiveActivities(context.Context) ([]*investments.Activity, error) {
	return m.sortedActivities(func(a investments.Activity) bool { return a.IsActive }), nil
}

func (m *memStore) UsersWithActiveActivities(_ context.Context, t investments.MintingType) ([]int64, error) {
	seen := map[int64]bool{}
	var ids []int64
	for _, a := range m.sortedActivities(func(a investments.Activity) bool {
		return a.IsActive && a.MintingType == t
	}) {
		if !seen[a.UserID] {
			seen[a.UserID] = true
			ids = append(ids, a.UserID)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

func (m *memStore) LockActivity(_ context.Context, id int64) (*investments.Activity, error) {
	a, ok := m.state.activities[id]
	if !ok {
		return nil, common.ErrActivityNotFound
	}
	return &a, nil
}

func (m *memStore) updateActivity(id int64, fn func(a *investments.Activity)) error {
	a, ok := m.state.activities[id]
	if !ok {
		return common.ErrActivityNotFound
	}
	fn(&a)
	m.state.activities[id] = a
	return nil
}

func (m *memStore) RecordClick(_ context.Context, activityID int64, at time.Time) (int, error) {
	var number int
	err := m.updateActivity(activityID, func(a *investments.Activity) {
		a.ClicksDone++
		a.LastClickAt = &at
		number = a.ClicksDone
	})
	if err != nil {
		return 0, err
	}
	m.state.clicks[activityID] = append(m.state.clicks[activityID], investments.Click{
		ActivityID:  activityID,
		ClickNumber: number,
		ClickedAt:   at,
	})
	return number, nil
}

func (m *memStore) MarkClickProcessed(_ context.Context, activityID int64, clickNumber int) error {
	clicks := m.state.clicks[activityID]
	for i := range clicks {
		if clicks[i].ClickNumber == clickNumber {
			clicks[i].Processed = true
		}
	}
	return nil
}

func (m *memStore) AddProfit(_ context.Context, activityID int64, amount decimal.Decimal) error {
	return m.updateActivity(activityID, func(a *investments.Activity) {
		a.TotalProfitEarned = a.TotalProfitEarned.Add(amount)
	})
}

func (m *memStore) DeactivateActivity(_ context.Context, activityID int64) error {
	return m.updateActivity(activityID, func(a *investments.Activity) { a.IsActive = false })
}

func (m *memStore) GetPlacement(_ context.Context, userID int64) (*binary.Placement, error) {
	p, ok := m.state.placements[userID]
	if !ok {
		return nil, common.ErrPlacementNotFound
	}
	return &p, nil
}

func (m *memStore) AddLegPoints(_ context.Context, userID int64, leg binary.Leg, points decimal.Decimal) (*binary.Placement, error) {
	p, ok := m.state.placements[userID]
	if !ok {
		return nil, common.ErrPlacementNotFound
	}
	if leg == binary.LegLeft {
		p.LeftPoints = p.LeftPoints.Add(points)
		p.TotalLeftPoints = p.TotalLeftPoints.Add(points)
	} else {
		p.RightPoints = p.RightPoints.Add(points)
		p.TotalRightPoints = p.TotalRightPoints.Add(points)
	}
	m.state.placements[userID] = p
	return &p, nil
}

func (m *memStore) ConsumeMatched(_ context.Context, userID int64, k decimal.Decimal) (*binary.Placement, error) {
	p, ok := m.state.placements[userID]
	if !ok || p.LeftPoints.LessThan(k) || p.RightPoints.LessThan(k) {
		return nil, fmt.Errorf("матчинг %s у %d: %w", k, userID, common.ErrPlacementNotFound)
	}
	p.LeftPoints = p.LeftPoints.Sub(k)
	p.RightPoints = p.RightPoints.Sub(k)
	m.state.placements[userID] = p
	return &p, nil
}

func (m *memStore) AppendEntry(_ context.Context, e *ledger.Entry) error {
	if !e.Type.Valid() {
		return fmt.Errorf("неизвестный тип операции %q", e.Type)
	}
	if m.failAppend != "" && e.Type == m.failAppend {
		return errors.New("журнал недоступен")
	}
	e.ID = m.id()
	e.CreatedAt = m.now
	m.state.entries = append(m.state.entries, *e)
	return nil
}

func typeIn(t ledger.Type, types []ledger.Type) bool {
	for _, x := range types {
		if x == t {
			return true
		}
	}
	return false
}

func (m *memStore) SumByMinting(_ context.Context, mintingID int64, types []ledger.Type, status ledger.Status) (decimal.Decimal, error) {
	sum := decimal.Zero
	for _, e := range m.state.entries {
		if e.Details.MintingID != nil && *e.Details.MintingID == mintingID && e.Status == status && typeIn(e.Type, types) {
			sum = sum.Add(e.Amount)
		}
	}
	return sum, nil
}

func (m *memStore) SumReceived(_ context.Context, userID int64, types []ledger.Type, status ledger.Status) (decimal.Decimal, error) {
	sum := decimal.Zero
	for _, e := range m.state.entries {
		if id, ok := e.Receiver.UserID(); ok && id == userID && e.Status == status && typeIn(e.Type, types) {
			sum = sum.Add(e.Amount)
		}
	}
	return sum, nil
}

func (m *memStore) Settings(context.Context) (*settings.Snapshot, error) {
	snap := m.state.snap
	return &snap, nil
}

// --- Заполнение для тестов (вызывать вне транзакций) ---

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func (m *memStore) setSettings(fn func(s *settings.Snapshot)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	fn(&m.state.snap)
}

// addUser создаёт пользователя с кодом code, приглашённого по referredBy ("": без пригласившего).
func (m *memStore) addUser(code, referredBy string) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	u := accounts.User{ID: m.id(), OwnCode: code, Username: code, IsActive: true}
	if referredBy != "" {
		ref := referredBy
		u.ReferredByCode = &ref
	}
	m.state.users[u.ID] = u
	return u.ID
}

func (m *memStore) setRank(userID int64, rank int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u := m.state.users[userID]
	u.Rank = rank
	m.state.users[userID] = u
}

func (m *memStore) setWallet(userID int64, amount string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u := m.state.users[userID]
	u.WalletBalance = dec(amount)
	m.state.users[userID] = u
}

func (m *memStore) addPackage(price, capacity, points string) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	p := investments.Package{
		ID:             m.id(),
		Name:           "pkg",
		HubPrice:       dec(price),
		HubCapacity:    dec(capacity),
		MinimumMinting: decimal.Zero,
		Points:         dec(points),
		IsActive:       true,
	}
	m.state.packages[p.ID] = p
	return p.ID
}

func (m *memStore) addInvestment(userID int64, price, capacity string) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	inv := investments.Investment{ID: m.id(), UserID: userID, HubPrice: dec(price), HubCapacity: dec(capacity)}
	m.state.investments[inv.ID] = inv
	return inv.ID
}

func (m *memStore) addActivity(userID, investmentID int64, position int, t investments.MintingType, invested string) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	a := investments.Activity{
		ID:             m.id(),
		InvestmentID:   investmentID,
		UserID:         userID,
		Position:       position,
		MintingType:    t,
		InvestedAmount: dec(invested),
		IsActive:       true,
	}
	m.state.activities[a.ID] = a
	return a.ID
}

// makeEligible выдаёт пользователю Green ID: инвестицию и активный минтинг.
func (m *memStore) makeEligible(userID int64) {
	inv := m.addInvestment(userID, "100", "100")
	m.addActivity(userID, inv, 0, investments.MintingAuto, "100")
}

// place размещает userID под parentID (0: корень) на стороне leg.
func (m *memStore) place(userID, parentID int64, leg binary.Leg) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p := binary.Placement{UserID: userID}
	if parentID != 0 {
		parent, l := parentID, leg
		p.ParentID = &parent
		p.Leg = &l
	}
	m.state.placements[userID] = p
}

func (m *memStore) setLegs(userID int64, left, right string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p := m.state.placements[userID]
	p.LeftPoints, p.TotalLeftPoints = dec(left), dec(left)
	p.RightPoints, p.TotalRightPoints = dec(right), dec(right)
	m.state.placements[userID] = p
}

// addApproved добавляет одобренную запись журнала (история выплат).
func (m *memStore) addApproved(receiver int64, t ledger.Type, amount string, mintingID *int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state.entries = append(m.state.entries, ledger.Entry{
		ID:       m.id(),
		Sender:   ledger.System(),
		Receiver: ledger.User(receiver),
		Amount:   dec(amount),
		Type:     t,
		Status:   ledger.StatusApproved,
		Details:  ledger.Details{MintingID: mintingID},
	})
}

// --- Чтение для проверок ---

func (m *memStore) user(t *testing.T, id int64) accounts.User {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.state.users[id]
	require.True(t, ok, "пользователь %d", id)
	return u
}

func (m *memStore) placement(t *testing.T, id int64) binary.Placement {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.state.placements[id]
	require.True(t, ok, "узел %d", id)
	return p
}

func (m *memStore) activity(t *testing.T, id int64) investments.Activity {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.state.activities[id]
	require.True(t, ok, "активность %d", id)
	return a
}

// entriesFor: записи, где получатель userID и тип из types (или любой, если types пуст).
func (m *memStore) entriesFor(userID int64, types ...ledger.Type) []ledger.Entry {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []ledger.Entry
	for _, e := range m.state.entries {
		id, ok := e.Receiver.UserID()
		if !ok || id != userID {
			continue
		}
		if len(types) > 0 && !typeIn(e.Type, types) {
			continue
		}
		out = append(out, e)
	}
	return out
}

func (m *memStore) entryCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.state.entries)
}

// requireBalanceIdentity: earned == locked + withdrawable у всех пользователей.
func (m *memStore) requireBalanceIdentity(t *testing.T) {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, u := range m.state.users {
		require.Truef(t, u.CommissionConsistent(), "нарушен баланс комиссии у %d", id)
	}
}
