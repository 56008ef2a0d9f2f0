// Package main: точка входа сервиса комиссий.
// Загружает конфигурацию, инициализирует приложение и запускает HTTP-сервер
// и планировщик. Поддерживает graceful shutdown по SIGINT/SIGTERM.
package main

import (
	"context"
	"io"
	"os"
	"os/signal"
	"syscall"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/pflag"
	"gopkg.in/natefinch/lumberjack.v2"

	"serotonyl.ru/mlm-platform/internal/app"
	"serotonyl.ru/mlm-platform/internal/config"
	"serotonyl.ru/mlm-platform/internal/db/postgres"
)

func main() {
	envFile := pflag.String("env-file", ".env", "путь к .env-файлу (если есть)")
	seedFile := pflag.String("seed-settings", "", "YAML с настройками бонусов для первичного заполнения")
	migrateOnly := pflag.Bool("migrate-only", false, "применить миграции и выйти")
	pflag.Parse()

	// Настраиваем логирование
	setupLogging()

	log.Info("=== Сервис запускается ===")

	// Загружаем конфигурацию из переменных окружения
	cfg, err := config.Load(*envFile)
	if err != nil {
		log.WithError(err).Fatal("Не удалось загрузить конфигурацию")
	}

	// Устанавливаем уровень логирования из конфига
	if level, err := log.ParseLevel(cfg.AppLogLevel); err == nil {
		log.SetLevel(level)
	}
	if cfg.AppLogFile != "" {
		log.SetOutput(io.MultiWriter(os.Stdout, &lumberjack.Logger{
			Filename:   cfg.AppLogFile,
			MaxSize:    100, // MB
			MaxBackups: 5,
			MaxAge:     30, // дней
			Compress:   true,
		}))
	}

	// Контекст живёт до сигнала остановки (Ctrl+C, docker stop)
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if *migrateOnly {
		runMigrationsOnly(ctx, cfg)
		return
	}

	// Инициализируем приложение (БД, движок, обработчики, планировщик)
	application, err := app.New(ctx, cfg)
	if err != nil {
		log.WithError(err).Fatal("Не удалось инициализировать приложение")
	}
	defer application.Close()

	if *seedFile != "" {
		n, err := application.Settings.SeedFromYAML(ctx, *seedFile)
		if err != nil {
			log.WithError(err).Fatal("Не удалось заполнить настройки")
		}
		log.WithField("inserted", n).Info("Настройки заполнены")
	}

	// Запускаем фоновые задачи (cron)
	if err := application.Scheduler.Start(ctx); err != nil {
		log.WithError(err).Fatal("Не удалось запустить планировщик")
	}
	defer application.Scheduler.Stop()

	log.Info("=== Сервис готов к работе ===")

	// Блокируемся до сигнала; сервер сам дождётся текущих запросов
	if err := application.Server.Run(ctx); err != nil {
		log.WithError(err).Error("HTTP-сервер завершился с ошибкой")
	}

	log.Info("=== Сервис остановлен ===")
}

func runMigrationsOnly(ctx context.Context, cfg *config.Config) {
	pool, err := postgres.NewPool(ctx, cfg)
	if err != nil {
		log.WithError(err).Fatal("Ошибка подключения к БД")
	}
	defer pool.Close()

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		log.WithError(err).Error("Ошибка миграций")
		return
	}
	log.Info("Миграции применены, выходим")
}

// setupLogging настраивает формат логов.
func setupLogging() {
	log.SetFormatter(&log.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05",
	})
	log.SetOutput(os.Stdout)
	log.SetLevel(log.DebugLevel)
}
