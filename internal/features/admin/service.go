// Package admin (service.go) проверяет пароль администратора (Argon2id)
// и блокирует перебор: после AdminMaxAttempts неудач адрес заблокирован
// на AdminLockoutPeriod.
package admin

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"
	log "github.com/sirupsen/logrus"
	"golang.org/x/crypto/argon2"

	"serotonyl.ru/mlm-platform/internal/common"
	"serotonyl.ru/mlm-platform/internal/config"
)

// AttemptStore: хранилище попыток входа.
type AttemptStore interface {
	LogAttempt(ctx context.Context, remoteKey string, success bool) error
	RecentFailures(ctx context.Context, remoteKey string, since time.Time) (int, error)
}

// Service проверяет доступ администратора.
type Service struct {
	attempts     AttemptStore
	passwordHash string
	maxAttempts  int
	lockout      time.Duration
	clock        clockwork.Clock
}

// NewService создаёт сервис. clock может быть nil.
func NewService(attempts AttemptStore, cfg *config.Config, clock clockwork.Clock) *Service {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Service{
		attempts:     attempts,
		passwordHash: cfg.AdminPasswordHash,
		maxAttempts:  cfg.AdminMaxAttempts,
		lockout:      cfg.AdminLockoutPeriod,
		clock:        clock,
	}
}

// VerifyPassword проверяет пароль, пришедший с адреса remoteKey.
func (s *Service) VerifyPassword(ctx context.Context, remoteKey, password string) error {
	failures, err := s.attempts.RecentFailures(ctx, remoteKey, s.clock.Now().Add(-s.lockout))
	if err != nil {
		return err
	}
	if failures >= s.maxAttempts {
		return common.ErrTooManyAttempts
	}

	match := verifyArgon2id(password, s.passwordHash)

	if err := s.attempts.LogAttempt(ctx, remoteKey, match); err != nil {
		log.WithError(err).Warn("Попытка входа не записана")
	}

	if !match {
		log.WithField("remote", remoteKey).Warn("Неверный пароль администратора")
		return common.ErrUnauthorized
	}
	return nil
}

// --- Криптографические функции ---

// HashPassword возвращает строку вида
// $argon2id$v=19$m=65536,t=3,p=2$<salt_base64>$<hash_base64>
func HashPassword(password string, p HashParams) (string, error) {
	salt := make([]byte, p.SaltLength)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("ошибка генерации соли: %w", err)
	}
	hash := argon2.IDKey([]byte(password), salt, p.Iterations, p.Memory, p.Parallelism, p.KeyLength)
	return fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version, p.Memory, p.Iterations, p.Parallelism,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(hash),
	), nil
}

// verifyArgon2id проверяет пароль по хешу из HashPassword.
func verifyArgon2id(password, encodedHash string) bool {
	parts := strings.Split(encodedHash, "$")
	if len(parts) != 6 || parts[1] != "argon2id" {
		log.Error("Некорректный формат хеша Argon2id")
		return false
	}

	var memory, iterations uint32
	var parallelism uint8
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &memory, &iterations, &parallelism); err != nil {
		log.WithError(err).Error("Ошибка парсинга параметров Argon2id")
		return false
	}

	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		log.WithError(err).Error("Ошибка декодирования соли")
		return false
	}
	expected, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil {
		log.WithError(err).Error("Ошибка декодирования хеша")
		return false
	}

	computed := argon2.IDKey([]byte(password), salt, iterations, memory, parallelism, uint32(len(expected)))
	// Сравнение за постоянное время
	return subtle.ConstantTimeCompare(computed, expected) == 1
}
