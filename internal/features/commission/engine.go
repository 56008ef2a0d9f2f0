package commission

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"

	"serotonyl.ru/mlm-platform/internal/config"
	"serotonyl.ru/mlm-platform/internal/features/ledger"
	"serotonyl.ru/mlm-platform/internal/metrics"
	"serotonyl.ru/mlm-platform/internal/notify"
)

// Config: параметры движка, не зависящие от документов настроек.
type Config struct {
	ReferralMaxLevels         int             // Глубина комьюнити-бонуса минтинга
	DepositMaxLevels          int             // Глубина уровневой комиссии с депозита
	DepositLevel1MinReferrals int             // Сколько своих рефералов нужно для 1-го уровня депозита
	BuildingPerUserCeiling    decimal.Decimal // Потолок процента на одного получателя Remaining Level
	ClickCooldown             time.Duration
	MintingWorkers            int
}

// ConfigFrom собирает Config из конфигурации приложения.
func ConfigFrom(cfg *config.Config) (Config, error) {
	ceiling, err := decimal.NewFromString(cfg.BuildingPerUserCeiling)
	if err != nil {
		return Config{}, fmt.Errorf("BUILDING_PER_USER_CEILING: %w", err)
	}
	return Config{
		ReferralMaxLevels:         cfg.ReferralMaxLevels,
		DepositMaxLevels:          cfg.DepositMaxLevels,
		DepositLevel1MinReferrals: cfg.DepositLevel1MinReferrals,
		BuildingPerUserCeiling:    ceiling,
		ClickCooldown:             cfg.MintingClickCooldown,
		MintingWorkers:            cfg.MintingWorkers,
	}, nil
}

// DefaultConfig: значения по умолчанию (совпадают с дефолтами переменных окружения).
func DefaultConfig() Config {
	return Config{
		ReferralMaxLevels:         10,
		DepositMaxLevels:          4,
		DepositLevel1MinReferrals: 2,
		BuildingPerUserCeiling:    decimal.NewFromInt(10),
		ClickCooldown:             24 * time.Hour,
		MintingWorkers:            4,
	}
}

// Engine: движок распределения бонусов.
// Каждое событие (покупка, клик, депозит) выполняется как одна единица работы.
type Engine struct {
	runner   TxRunner
	cfg      Config
	clock    clockwork.Clock
	notifier notify.Notifier
}

// NewEngine создаёт движок. clock и notifier могут быть nil.
func NewEngine(runner TxRunner, cfg Config, clock clockwork.Clock, notifier notify.Notifier) *Engine {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if notifier == nil {
		notifier = notify.Nop{}
	}
	// level_commission_N существует только до MaxLevelCommission
	if cfg.DepositMaxLevels > ledger.MaxLevelCommission {
		cfg.DepositMaxLevels = ledger.MaxLevelCommission
	}
	if cfg.ReferralMaxLevels > ledger.MaxLevelCommission {
		cfg.ReferralMaxLevels = ledger.MaxLevelCommission
	}
	if cfg.MintingWorkers <= 0 {
		cfg.MintingWorkers = 1
	}
	return &Engine{runner: runner, cfg: cfg, clock: clock, notifier: notifier}
}

// event: записи журнала и деактивированные активности одного события.
// Минтинг обрабатывает активности параллельно, поэтому доступ под мьютексом.
type event struct {
	id uuid.UUID

	mu      sync.Mutex
	entries []*ledger.Entry
	capped  []int64
}

func newEvent() *event {
	return &event{id: uuid.New()}
}

// child: событие той же операции для отдельной транзакции.
// Его записи попадают в родителя только после коммита (merge).
func (ev *event) child() *event {
	return &event{id: ev.id}
}

// reset очищает накопленное: транзакцию могут выполнить повторно.
func (ev *event) reset() {
	ev.mu.Lock()
	ev.entries = nil
	ev.capped = nil
	ev.mu.Unlock()
}

func (ev *event) add(e *ledger.Entry) {
	ev.mu.Lock()
	ev.entries = append(ev.entries, e)
	ev.mu.Unlock()
}

func (ev *event) addCapped(activityID int64) {
	ev.mu.Lock()
	ev.capped = append(ev.capped, activityID)
	ev.mu.Unlock()
}

func (ev *event) merge(other *event) {
	ev.mu.Lock()
	defer ev.mu.Unlock()
	ev.entries = append(ev.entries, other.entries...)
	ev.capped = append(ev.capped, other.capped...)
}

// snapshot возвращает копии накопленных списков.
func (ev *event) snapshot() ([]*ledger.Entry, []int64) {
	ev.mu.Lock()
	defer ev.mu.Unlock()
	entries := make([]*ledger.Entry, len(ev.entries))
	copy(entries, ev.entries)
	capped := make([]int64, len(ev.capped))
	copy(capped, ev.capped)
	return entries, capped
}

// append пишет запись события в журнал.
func (e *Engine) append(ctx context.Context, st Store, ev *event, entry *ledger.Entry) error {
	entry.EventID = ev.id
	if err := st.AppendEntry(ctx, entry); err != nil {
		return err
	}
	ev.add(entry)
	return nil
}

// finish вызывается после коммита: метрики, логи и уведомления.
func (e *Engine) finish(ctx context.Context, name string, ev *event, started time.Time) {
	entries, capped := ev.snapshot()
	metrics.ObserveOrchestration(name, e.clock.Since(started))
	for _, entry := range entries {
		metrics.RecordPayout(string(entry.Type), string(entry.Status), entry.Amount)
	}
	if len(capped) > 0 {
		metrics.ActivitiesCapped.Add(float64(len(capped)))
		notify.Send(ctx, e.notifier, fmt.Sprintf("Достигнут лимит заработка, активности закрыты: %v", capped))
	}

	log.WithFields(log.Fields{
		"event":    name,
		"event_id": ev.id,
		"entries":  len(entries),
		"capped":   len(capped),
	}).Info("Событие обработано")
}
