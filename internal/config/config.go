// Package config загружает конфигурацию сервиса из переменных окружения.
// Используется envconfig для маппинга переменных окружения на поля структуры,
// а godotenv подтягивает .env-файл для локального запуска.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Config содержит ВСЕ настройки приложения.
type Config struct {
	// --- Database ---
	// В Docker внутри контейнера "localhost" почти всегда неправильно.
	// Дефолт ставим "postgres" (имя сервиса в docker-compose), а для локалки переопределяй DB_HOST=localhost.
	DBHost     string `envconfig:"DB_HOST" default:"postgres"`
	DBPort     int    `envconfig:"DB_PORT" default:"5432"`
	DBUser     string `envconfig:"DB_USER" default:"mlm"`
	DBPassword string `envconfig:"DB_PASSWORD" required:"true"`
	DBName     string `envconfig:"DB_NAME" default:"mlm_platform"`
	DBSSLMode  string `envconfig:"DB_SSLMODE" default:"disable"`
	DBMaxConns int32  `envconfig:"DB_MAX_CONNS" default:"25"`
	DBMinConns int32  `envconfig:"DB_MIN_CONNS" default:"5"`

	// --- Application ---
	AppEnv      string `envconfig:"APP_ENV" default:"development"`
	AppLogLevel string `envconfig:"APP_LOG_LEVEL" default:"debug"`
	// Если задан, логи дублируются в файл с ротацией
	AppLogFile  string `envconfig:"APP_LOG_FILE" default:""`
	AppTimezone string `envconfig:"APP_TIMEZONE" default:"UTC"`

	// --- HTTP ---
	HTTPAddr            string        `envconfig:"HTTP_ADDR" default:":8080"`
	HTTPRateLimitRPS    float64       `envconfig:"HTTP_RATE_LIMIT_RPS" default:"5"`
	HTTPRateLimitBurst  int           `envconfig:"HTTP_RATE_LIMIT_BURST" default:"10"`
	HTTPShutdownTimeout time.Duration `envconfig:"HTTP_SHUTDOWN_TIMEOUT" default:"15s"`
	CORSOriginsRaw      string        `envconfig:"CORS_ORIGINS" default:"*"`
	CORSOrigins         []string      `envconfig:"-"` // заполним вручную

	// --- Admin ---
	// Argon2id-хеш пароля администратора (scripts/generate_hash.go)
	AdminPasswordHash  string        `envconfig:"ADMIN_PASSWORD_HASH" required:"true"`
	AdminMaxAttempts   int           `envconfig:"ADMIN_MAX_ATTEMPTS" default:"3"`
	AdminLockoutPeriod time.Duration `envconfig:"ADMIN_LOCKOUT_PERIOD" default:"1h"`

	// --- Minting ---
	MintingClickCooldown time.Duration `envconfig:"MINTING_CLICK_COOLDOWN" default:"24h"`
	// Сколько активностей одного пользователя обрабатываем параллельно
	MintingWorkers int `envconfig:"MINTING_WORKERS" default:"4"`

	// --- Commission ---
	ReferralMaxLevels         int    `envconfig:"REFERRAL_MAX_LEVELS" default:"10"`
	DepositMaxLevels          int    `envconfig:"DEPOSIT_MAX_LEVELS" default:"4"`
	DepositLevel1MinReferrals int    `envconfig:"DEPOSIT_LEVEL1_MIN_REFERRALS" default:"2"`
	BuildingPerUserCeiling    string `envconfig:"BUILDING_PER_USER_CEILING" default:"10"`

	// --- Cron ---
	CronAutoMinting string `envconfig:"CRON_AUTO_MINTING" default:"0 * * * *"`
	CronCapSweep    string `envconfig:"CRON_CAP_SWEEP" default:"30 0 * * *"`

	// --- Telegram (уведомления админам) ---
	TelegramBotToken    string `envconfig:"TELEGRAM_BOT_TOKEN" default:""`
	TelegramAdminChatID int64  `envconfig:"TELEGRAM_ADMIN_CHAT_ID" default:"0"`

	// --- Feature Flags ---
	FeatureAutoMintingEnabled   bool `envconfig:"FEATURE_AUTO_MINTING_ENABLED" default:"true"`
	FeatureNotificationsEnabled bool `envconfig:"FEATURE_NOTIFICATIONS_ENABLED" default:"true"`
}

// DatabaseDSN возвращает строку подключения к PostgreSQL в формате DSN.
func (c *Config) DatabaseDSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.DBUser, c.DBPassword, c.DBHost, c.DBPort, c.DBName, c.DBSSLMode,
	)
}

// Location возвращает часовой пояс приложения (для cron и дат в логах).
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.AppTimezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

func (c *Config) Validate() error {
	if c.DBMaxConns <= 0 || c.DBMinConns < 0 || c.DBMinConns > c.DBMaxConns {
		return fmt.Errorf("некорректные DB_MIN_CONNS/DB_MAX_CONNS")
	}
	if c.MintingWorkers <= 0 {
		return fmt.Errorf("MINTING_WORKERS должен быть > 0")
	}
	if c.ReferralMaxLevels <= 0 || c.ReferralMaxLevels > 10 {
		return fmt.Errorf("REFERRAL_MAX_LEVELS должен быть в диапазоне 1..10")
	}
	if c.DepositMaxLevels <= 0 {
		return fmt.Errorf("DEPOSIT_MAX_LEVELS должен быть > 0")
	}
	if c.DepositLevel1MinReferrals < 0 {
		return fmt.Errorf("DEPOSIT_LEVEL1_MIN_REFERRALS не может быть отрицательным")
	}
	if _, err := strconv.ParseFloat(c.BuildingPerUserCeiling, 64); err != nil {
		return fmt.Errorf("BUILDING_PER_USER_CEILING: %w", err)
	}
	if c.HTTPRateLimitRPS <= 0 || c.HTTPRateLimitBurst <= 0 {
		return fmt.Errorf("HTTP_RATE_LIMIT_RPS/HTTP_RATE_LIMIT_BURST должны быть > 0")
	}
	if c.TelegramBotToken != "" && c.TelegramAdminChatID == 0 {
		return fmt.Errorf("TELEGRAM_ADMIN_CHAT_ID не задан при заданном TELEGRAM_BOT_TOKEN")
	}
	return nil
}

// Load читает .env (если есть) и переменные окружения и заполняет структуру Config.
func Load(envFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("не удалось прочитать %s: %w", envFile, err)
		}
	}

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("не удалось загрузить конфигурацию: %w", err)
	}
	cfg.CORSOrigins = splitCSV(cfg.CORSOriginsRaw)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func splitCSV(s string) []string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
