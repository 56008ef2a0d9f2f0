// Package commission реализует движок распределения бонусов: покупка пакета,
// клик минтинга и одобрение депозита.
//
// store.go описывает всё, что движку нужно от хранилища внутри одного события.
// PgStore привязывает репозитории фич к одной транзакции pgx.
package commission

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"serotonyl.ru/mlm-platform/internal/db/postgres"
	"serotonyl.ru/mlm-platform/internal/features/accounts"
	"serotonyl.ru/mlm-platform/internal/features/binary"
	"serotonyl.ru/mlm-platform/internal/features/investments"
	"serotonyl.ru/mlm-platform/internal/features/ledger"
	"serotonyl.ru/mlm-platform/internal/features/settings"
)

// Store: хранилище в рамках одной единицы работы.
// Все изменения балансов и очков делаются атомарными инкрементами.
type Store interface {
	// Пользователи
	GetUser(ctx context.Context, id int64) (*accounts.User, error)
	GetUserByCode(ctx context.Context, code string) (*accounts.User, error)
	CountReferrals(ctx context.Context, code string) (int, error)
	ReferralIDs(ctx context.Context, code string) ([]int64, error)
	CreditCommission(ctx context.Context, userID int64, amount decimal.Decimal) error
	CreditWallet(ctx context.Context, userID int64, amount decimal.Decimal) error
	DebitWallet(ctx context.Context, userID int64, amount decimal.Decimal) error

	// Пакеты и инвестиции
	GetPackage(ctx context.Context, id int64) (*investments.Package, error)
	CreateInvestment(ctx context.Context, inv *investments.Investment) error
	CountInvestments(ctx context.Context, userID int64) (int, error)
	SumHubPrice(ctx context.Context, userID int64) (decimal.Decimal, error)
	SumHubCapacity(ctx context.Context, userIDs []int64) (decimal.Decimal, error)

	// Минтинг
	CountActiveActivities(ctx context.Context, userID int64) (int, error)
	ListActiveActivities(ctx context.Context, userID int64, t investments.MintingType) ([]*investments.Activity, error)
	ListAllActiveActivities(ctx context.Context) ([]*investments.Activity, error)
	UsersWithActiveActivities(ctx context.Context, t investments.MintingType) ([]int64, error)
	LockActivity(ctx context.Context, id int64) (*investments.Activity, error)
	RecordClick(ctx context.Context, activityID int64, at time.Time) (int, error)
	MarkClickProcessed(ctx context.Context, activityID int64, clickNumber int) error
	AddProfit(ctx context.Context, activityID int64, amount decimal.Decimal) error
	DeactivateActivity(ctx context.Context, activityID int64) error

	// Бинарное дерево
	GetPlacement(ctx context.Context, userID int64) (*binary.Placement, error)
	AddLegPoints(ctx context.Context, userID int64, leg binary.Leg, points decimal.Decimal) (*binary.Placement, error)
	ConsumeMatched(ctx context.Context, userID int64, k decimal.Decimal) (*binary.Placement, error)

	// Журнал
	AppendEntry(ctx context.Context, e *ledger.Entry) error
	SumByMinting(ctx context.Context, mintingID int64, types []ledger.Type, status ledger.Status) (decimal.Decimal, error)
	SumReceived(ctx context.Context, userID int64, types []ledger.Type, status ledger.Status) (decimal.Decimal, error)

	// Настройки
	Settings(ctx context.Context) (*settings.Snapshot, error)
}

// TxRunner выполняет fn в одной транзакции. nil даёт коммит, ошибка откат.
type TxRunner interface {
	InTx(ctx context.Context, fn func(st Store) error) error
}

// PgRunner: TxRunner поверх пула PostgreSQL.
type PgRunner struct {
	db    postgres.DBTX
	retry postgres.RetryConfig
}

// NewPgRunner создаёт раннер транзакций.
func NewPgRunner(db postgres.DBTX) *PgRunner {
	return &PgRunner{db: db, retry: postgres.DefaultRetryConfig()}
}

// InTx открывает транзакцию и отдаёт fn привязанный к ней PgStore.
// Deadlock и serialization failure повторяются: fn может быть вызвана несколько раз.
func (r *PgRunner) InTx(ctx context.Context, fn func(st Store) error) error {
	return postgres.WithTxRetry(ctx, r.db, r.retry, func(tx pgx.Tx) error {
		return fn(NewPgStore(tx))
	})
}

// PgStore: Store на репозиториях фич поверх одной транзакции.
type PgStore struct {
	users    *accounts.Repository
	invest   *investments.Repository
	tree     *binary.Repository
	entries  *ledger.Repository
	settings *settings.Repository
}

var _ Store = (*PgStore)(nil)

// NewPgStore привязывает репозитории к db (обычно pgx.Tx).
func NewPgStore(db postgres.DBTX) *PgStore {
	return &PgStore{
		users:    accounts.NewRepository(db),
		invest:   investments.NewRepository(db),
		tree:     binary.NewRepository(db),
		entries:  ledger.NewRepository(db),
		settings: settings.NewRepository(db),
	}
}

func (s *PgStore) GetUser(ctx context.Context, id int64) (*accounts.User, error) {
	return s.users.GetByID(ctx, id)
}

func (s *PgStore) GetUserByCode(ctx context.Context, code string) (*accounts.User, error) {
	return s.users.GetByCode(ctx, code)
}

func (s *PgStore) CountReferrals(ctx context.Context, code string) (int, error) {
	return s.users.CountReferrals(ctx, code)
}

func (s *PgStore) ReferralIDs(ctx context.Context, code string) ([]int64, error) {
	return s.users.ReferralIDs(ctx, code)
}

func (s *PgStore) CreditCommission(ctx context.Context, userID int64, amount decimal.Decimal) error {
	return s.users.CreditCommission(ctx, userID, amount)
}

func (s *PgStore) CreditWallet(ctx context.Context, userID int64, amount decimal.Decimal) error {
	return s.users.CreditWallet(ctx, userID, amount)
}

func (s *PgStore) DebitWallet(ctx context.Context, userID int64, amount decimal.Decimal) error {
	return s.users.DebitWallet(ctx, userID, amount)
}

func (s *PgStore) GetPackage(ctx context.Context, id int64) (*investments.Package, error) {
	return s.invest.GetPackage(ctx, id)
}

func (s *PgStore) CreateInvestment(ctx context.Context, inv *investments.Investment) error {
	return s.invest.CreateInvestment(ctx, inv)
}

func (s *PgStore) CountInvestments(ctx context.Context, userID int64) (int, error) {
	return s.invest.CountInvestments(ctx, userID)
}

func (s *PgStore) SumHubPrice(ctx context.Context, userID int64) (decimal.Decimal, error) {
	return s.invest.SumHubPrice(ctx, userID)
}

func (s *PgStore) SumHubCapacity(ctx context.Context, userIDs []int64) (decimal.Decimal, error) {
	return s.invest.SumHubCapacity(ctx, userIDs)
}

func (s *PgStore) CountActiveActivities(ctx context.Context, userID int64) (int, error) {
	return s.invest.CountActiveByUser(ctx, userID)
}

func (s *PgStore) ListActiveActivities(ctx context.Context, userID int64, t investments.MintingType) ([]*investments.Activity, error) {
	return s.invest.ListActiveByUser(ctx, userID, t)
}

func (s *PgStore) ListAllActiveActivities(ctx context.Context) ([]*investments.Activity, error) {
	return s.invest.ListActive(ctx)
}

func (s *PgStore) UsersWithActiveActivities(ctx context.Context, t investments.MintingType) ([]int64, error) {
	return s.invest.UsersWithActive(ctx, t)
}

func (s *PgStore) LockActivity(ctx context.Context, id int64) (*investments.Activity, error) {
	return s.invest.LockActivity(ctx, id)
}

func (s *PgStore) RecordClick(ctx context.Context, activityID int64, at time.Time) (int, error) {
	return s.invest.RecordClick(ctx, activityID, at)
}

func (s *PgStore) MarkClickProcessed(ctx context.Context, activityID int64, clickNumber int) error {
	return s.invest.MarkClickProcessed(ctx, activityID, clickNumber)
}

func (s *PgStore) AddProfit(ctx context.Context, activityID int64, amount decimal.Decimal) error {
	return s.invest.AddProfit(ctx, activityID, amount)
}

func (s *PgStore) DeactivateActivity(ctx context.Context, activityID int64) error {
	return s.invest.Deactivate(ctx, activityID)
}

func (s *PgStore) GetPlacement(ctx context.Context, userID int64) (*binary.Placement, error) {
	return s.tree.GetByUser(ctx, userID)
}

func (s *PgStore) AddLegPoints(ctx context.Context, userID int64, leg binary.Leg, points decimal.Decimal) (*binary.Placement, error) {
	return s.tree.AddLegPoints(ctx, userID, leg, points)
}

func (s *PgStore) ConsumeMatched(ctx context.Context, userID int64, k decimal.Decimal) (*binary.Placement, error) {
	return s.tree.ConsumeMatched(ctx, userID, k)
}

func (s *PgStore) AppendEntry(ctx context.Context, e *ledger.Entry) error {
	return s.entries.Append(ctx, e)
}

func (s *PgStore) SumByMinting(ctx context.Context, mintingID int64, types []ledger.Type, status ledger.Status) (decimal.Decimal, error) {
	return s.entries.SumByMinting(ctx, mintingID, types, status)
}

func (s *PgStore) SumReceived(ctx context.Context, userID int64, types []ledger.Type, status ledger.Status) (decimal.Decimal, error) {
	return s.entries.SumReceived(ctx, userID, types, status)
}

func (s *PgStore) Settings(ctx context.Context) (*settings.Snapshot, error) {
	return s.settings.Snapshot(ctx)
}
