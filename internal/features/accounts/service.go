// Package accounts (service.go): регистрация, ручные корректировки админом,
// блокировка и разблокировка комиссии.
package accounts

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"

	"serotonyl.ru/mlm-platform/internal/common"
	"serotonyl.ru/mlm-platform/internal/db/postgres"
	"serotonyl.ru/mlm-platform/internal/features/ledger"
)

const (
	codeLength   = 8
	codeAttempts = 5
)

// Service управляет учётными записями.
type Service struct {
	db   postgres.DBTX // Пул: операции с журналом идут в своей транзакции
	repo *Repository
}

// NewService создаёт сервис учётных записей.
func NewService(db postgres.DBTX) *Service {
	return &Service{db: db, repo: NewRepository(db)}
}

// RegisterInput: данные для регистрации.
type RegisterInput struct {
	Username       string `json:"username"`
	ReferredByCode string `json:"referredByCode"`
}

// Register создаёт пользователя с уникальным реферальным кодом.
// Если указан код пригласившего, он обязан существовать.
func (s *Service) Register(ctx context.Context, in RegisterInput) (*User, error) {
	username := strings.TrimSpace(in.Username)
	if username == "" || len([]rune(username)) > 255 {
		return nil, common.ErrInvalidRequest
	}

	u := &User{Username: username}

	if code := strings.TrimSpace(in.ReferredByCode); code != "" {
		if _, err := s.repo.GetByCode(ctx, code); err != nil {
			if errors.Is(err, common.ErrUserNotFound) {
				return nil, common.ErrInvalidReferralCode
			}
			return nil, err
		}
		u.ReferredByCode = &code
	}

	code, err := s.uniqueCode(ctx)
	if err != nil {
		return nil, err
	}
	u.OwnCode = code

	if err := s.repo.Create(ctx, u); err != nil {
		return nil, err
	}

	log.WithFields(log.Fields{
		"user_id":  u.ID,
		"own_code": u.OwnCode,
		"referrer": in.ReferredByCode,
	}).Info("Пользователь зарегистрирован")
	return u, nil
}

func (s *Service) uniqueCode(ctx context.Context) (string, error) {
	for i := 0; i < codeAttempts; i++ {
		code := generateCode()
		exists, err := s.repo.CodeExists(ctx, code)
		if err != nil {
			return "", fmt.Errorf("ошибка проверки кода: %w", err)
		}
		if !exists {
			return code, nil
		}
	}
	return "", fmt.Errorf("не удалось подобрать уникальный код за %d попыток", codeAttempts)
}

// generateCode: 8 символов A-F0-9 из случайного UUID.
func generateCode() string {
	raw := strings.ReplaceAll(uuid.NewString(), "-", "")
	return strings.ToUpper(raw[:codeLength])
}

// Get возвращает пользователя по ID.
func (s *Service) Get(ctx context.Context, id int64) (*User, error) {
	if id <= 0 {
		return nil, common.ErrInvalidID
	}
	return s.repo.GetByID(ctx, id)
}

// AdjustBalance: ручная корректировка кошелька админом.
// Положительная сумма зачисляется (admin_credit), отрицательная списывается (admin_debit).
func (s *Service) AdjustBalance(ctx context.Context, userID int64, amount decimal.Decimal, note string) (*User, error) {
	if userID <= 0 {
		return nil, common.ErrInvalidID
	}
	if amount.IsZero() {
		return nil, common.ErrInvalidAmount
	}

	var updated *User
	err := postgres.WithTx(ctx, s.db, func(tx pgx.Tx) error {
		users := NewRepository(tx)
		entries := ledger.NewRepository(tx)

		entry := &ledger.Entry{
			EventID: uuid.New(),
			Amount:  amount.Abs(),
			Status:  ledger.StatusCompleted,
			Details: ledger.Details{Note: note},
		}
		if amount.IsPositive() {
			if err := users.CreditWallet(ctx, userID, amount); err != nil {
				return err
			}
			entry.Sender, entry.Receiver, entry.Type = ledger.System(), ledger.User(userID), ledger.TypeAdminCredit
		} else {
			if err := users.DebitWallet(ctx, userID, amount.Abs()); err != nil {
				return err
			}
			entry.Sender, entry.Receiver, entry.Type = ledger.User(userID), ledger.System(), ledger.TypeAdminDebit
		}
		if err := entries.Append(ctx, entry); err != nil {
			return err
		}

		u, err := users.GetByID(ctx, userID)
		if err != nil {
			return err
		}
		updated = u
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.WithFields(log.Fields{
		"user_id": userID,
		"amount":  common.FormatSigned(amount),
	}).Info("Админ скорректировал баланс")
	return updated, nil
}

// LockCommission блокирует часть доступной к выводу комиссии.
func (s *Service) LockCommission(ctx context.Context, userID int64, amount decimal.Decimal) (*User, error) {
	if !amount.IsPositive() {
		return nil, common.ErrInvalidAmount
	}
	if err := s.repo.LockCommission(ctx, userID, amount); err != nil {
		return nil, err
	}
	return s.repo.GetByID(ctx, userID)
}

// UnlockCommission возвращает заблокированную комиссию в доступную к выводу.
func (s *Service) UnlockCommission(ctx context.Context, userID int64, amount decimal.Decimal) (*User, error) {
	if !amount.IsPositive() {
		return nil, common.ErrInvalidAmount
	}
	if err := s.repo.UnlockCommission(ctx, userID, amount); err != nil {
		return nil, err
	}
	return s.repo.GetByID(ctx, userID)
}
