// Package jobs управляет фоновыми задачами (cron).
// scheduler.go настраивает расписание: автоминтинг по расписанию
// и ежедневная проверка лимитов заработка.
package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	log "github.com/sirupsen/logrus"

	"serotonyl.ru/mlm-platform/internal/common"
	"serotonyl.ru/mlm-platform/internal/config"
	"serotonyl.ru/mlm-platform/internal/features/commission"
	"serotonyl.ru/mlm-platform/internal/metrics"
	"serotonyl.ru/mlm-platform/internal/notify"
)

// Engine: то, что планировщик запускает у движка комиссий.
type Engine interface {
	RunAutoMinting(ctx context.Context) (commission.AutoRunSummary, error)
	SweepCaps(ctx context.Context) ([]int64, error)
}

// Scheduler управляет фоновыми задачами.
type Scheduler struct {
	cron     *cron.Cron
	engine   Engine
	notifier notify.Notifier
	cfg      *config.Config
}

// NewScheduler создаёт планировщик в часовом поясе приложения.
func NewScheduler(engine Engine, notifier notify.Notifier, cfg *config.Config) *Scheduler {
	c := cron.New(cron.WithLocation(cfg.Location()))

	return &Scheduler{
		cron:     c,
		engine:   engine,
		notifier: notifier,
		cfg:      cfg,
	}
}

// Start регистрирует задачи и запускает планировщик.
func (s *Scheduler) Start(ctx context.Context) error {
	if s.cfg.FeatureAutoMintingEnabled {
		if _, err := s.cron.AddFunc(s.cfg.CronAutoMinting, func() { s.AutoMinting(ctx) }); err != nil {
			return fmt.Errorf("некорректное расписание CRON_AUTO_MINTING: %w", err)
		}
	} else {
		log.Info("Автоминтинг по расписанию выключен (FEATURE_AUTO_MINTING_ENABLED=false)")
	}

	if _, err := s.cron.AddFunc(s.cfg.CronCapSweep, func() { s.CapSweep(ctx) }); err != nil {
		return fmt.Errorf("некорректное расписание CRON_CAP_SWEEP: %w", err)
	}

	s.cron.Start()
	log.WithField("timezone", s.cfg.Location().String()).Info("Планировщик задач запущен")
	return nil
}

// Stop останавливает планировщик и ждёт текущие задачи.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	log.Info("Планировщик задач остановлен")
}

// AutoMinting: клик AUTO за всех пользователей с активным автоминтингом.
func (s *Scheduler) AutoMinting(ctx context.Context) {
	log.Info("[CRON] Автоминтинг")
	start := time.Now()

	sum, err := s.engine.RunAutoMinting(ctx)
	metrics.RecordJob("auto_minting", err)
	if err != nil {
		log.WithError(err).Error("[CRON] Ошибка автоминтинга")
		notify.Send(ctx, s.notifier, fmt.Sprintf("Автоминтинг упал: %v", err))
		return
	}

	log.WithFields(log.Fields{
		"users":     sum.Users,
		"processed": sum.Processed,
		"skipped":   sum.Skipped,
		"failed":    sum.Failed,
		"paid":      sum.Paid.String(),
		"duration":  time.Since(start).String(),
	}).Info("[CRON] Автоминтинг завершён")

	if sum.Users > 0 {
		notify.Send(ctx, s.notifier, fmt.Sprintf(
			"Автоминтинг %s: пользователей %d, обработано %d, пропущено %d, ошибок %d, выплачено %s",
			common.FormatDateTime(start, s.cfg.Location()),
			sum.Users, sum.Processed, sum.Skipped, sum.Failed, common.FormatAmount(sum.Paid),
		))
	}
}

// CapSweep закрывает активности, достигшие лимита между кликами.
func (s *Scheduler) CapSweep(ctx context.Context) {
	log.Info("[CRON] Проверка лимитов минтинга")

	closed, err := s.engine.SweepCaps(ctx)
	metrics.RecordJob("cap_sweep", err)
	if err != nil {
		log.WithError(err).Error("[CRON] Ошибка проверки лимитов")
		notify.Send(ctx, s.notifier, fmt.Sprintf("Проверка лимитов упала: %v", err))
		return
	}

	log.WithField("closed", len(closed)).Info("[CRON] Проверка лимитов завершена")
	if len(closed) > 0 {
		notify.Send(ctx, s.notifier, fmt.Sprintf("Закрыто по лимиту активностей: %d %v", len(closed), closed))
	}
}
