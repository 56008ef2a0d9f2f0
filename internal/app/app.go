// Package app инициализирует все компоненты приложения.
// В app.go пул БД, миграции, репозитории, сервисы, движок комиссий,
// обработчики, HTTP-сервер и планировщик собираются в одну структуру App.
package app

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jonboulle/clockwork"
	log "github.com/sirupsen/logrus"

	"serotonyl.ru/mlm-platform/internal/config"
	"serotonyl.ru/mlm-platform/internal/db/postgres"
	"serotonyl.ru/mlm-platform/internal/features/accounts"
	"serotonyl.ru/mlm-platform/internal/features/admin"
	"serotonyl.ru/mlm-platform/internal/features/binary"
	"serotonyl.ru/mlm-platform/internal/features/commission"
	"serotonyl.ru/mlm-platform/internal/features/investments"
	"serotonyl.ru/mlm-platform/internal/features/ledger"
	"serotonyl.ru/mlm-platform/internal/features/settings"
	"serotonyl.ru/mlm-platform/internal/jobs"
	"serotonyl.ru/mlm-platform/internal/notify"
	"serotonyl.ru/mlm-platform/internal/server"
)

// App содержит все компоненты приложения.
type App struct {
	Server    *server.Server
	Scheduler *jobs.Scheduler
	Engine    *commission.Engine
	Settings  *settings.Service
	Limiter   *server.RateLimiter
	DB        *pgxpool.Pool
}

// New создаёт и инициализирует приложение.
// Порядок инициализации важен, зависимости идут сверху вниз.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	// === 1. База данных ===
	pool, err := postgres.NewPool(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("ошибка подключения к БД: %w", err)
	}

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ошибка миграций: %w", err)
	}

	// === 2. Уведомления ===
	notifier := newNotifier(cfg)

	// === 3. Репозитории ===
	ledgerRepo := ledger.NewRepository(pool)
	settingsRepo := settings.NewRepository(pool)
	adminRepo := admin.NewRepository(pool)

	// === 4. Сервисы ===
	accountService := accounts.NewService(pool)
	investmentService := investments.NewService(pool)
	binaryService := binary.NewService(pool)
	ledgerService := ledger.NewService(ledgerRepo)
	settingsService := settings.NewService(settingsRepo)
	adminService := admin.NewService(adminRepo, cfg, nil)

	// === 5. Движок комиссий ===
	engineCfg, err := commission.ConfigFrom(cfg)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("ошибка настроек движка: %w", err)
	}
	engine := commission.NewEngine(commission.NewPgRunner(pool), engineCfg, clockwork.NewRealClock(), notifier)

	// === 6. Обработчики ===
	handlers := server.Handlers{
		Accounts:    accounts.NewHandler(accountService),
		Investments: investments.NewHandler(investmentService),
		Binary:      binary.NewHandler(binaryService),
		Ledger:      ledger.NewHandler(ledgerService),
		Settings:    settings.NewHandler(settingsService),
		Commission:  commission.NewHandler(engine),
	}

	// === 7. HTTP-сервер ===
	limiter := server.NewRateLimiter(cfg.HTTPRateLimitRPS, cfg.HTTPRateLimitBurst)
	router := server.NewRouter(handlers, server.Options{
		CORSOrigins: cfg.CORSOrigins,
		AdminAuth:   adminService.Middleware,
		Limiter:     limiter,
		DB:          pool,
	})
	srv := server.New(cfg.HTTPAddr, router, cfg.HTTPShutdownTimeout)

	// === 8. Фоновые задачи ===
	scheduler := jobs.NewScheduler(engine, notifier, cfg)

	return &App{
		Server:    srv,
		Scheduler: scheduler,
		Engine:    engine,
		Settings:  settingsService,
		Limiter:   limiter,
		DB:        pool,
	}, nil
}

// Close освобождает ресурсы, которые не останавливаются сами.
func (a *App) Close() {
	a.Limiter.Close()
	a.DB.Close()
}

// newNotifier: Telegram, если задан токен и уведомления включены; иначе Nop.
func newNotifier(cfg *config.Config) notify.Notifier {
	if !cfg.FeatureNotificationsEnabled || cfg.TelegramBotToken == "" {
		log.Info("Уведомления в Telegram выключены")
		return notify.Nop{}
	}
	tg, err := notify.NewTelegram(cfg.TelegramBotToken, cfg.TelegramAdminChatID)
	if err != nil {
		log.WithError(err).Warn("Telegram недоступен, уведомления выключены")
		return notify.Nop{}
	}
	return tg
}
