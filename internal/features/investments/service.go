// Package investments (service.go): пакеты, запуск минтинга и смена его типа.
// Покупка пакета живёт в движке комиссий: там же начисляются бонусы.
package investments

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"

	"serotonyl.ru/mlm-platform/internal/common"
	"serotonyl.ru/mlm-platform/internal/db/postgres"
	"serotonyl.ru/mlm-platform/internal/features/accounts"
	"serotonyl.ru/mlm-platform/internal/features/ledger"
	"serotonyl.ru/mlm-platform/internal/features/settings"
)

// Service управляет инвестициями и минтингом.
type Service struct {
	db   postgres.DBTX
	repo *Repository
}

// NewService создаёт сервис инвестиций.
func NewService(db postgres.DBTX) *Service {
	return &Service{db: db, repo: NewRepository(db)}
}

// ListPackages: активные пакеты для витрины.
func (s *Service) ListPackages(ctx context.Context) ([]*Package, error) {
	return s.repo.ListPackages(ctx, true)
}

// PackageInput: данные нового пакета (админка).
type PackageInput struct {
	Name           string          `json:"name"`
	HubPrice       decimal.Decimal `json:"hubPrice"`
	HubCapacity    decimal.Decimal `json:"hubCapacity"`
	MinimumMinting decimal.Decimal `json:"minimumMinting"`
	Points         decimal.Decimal `json:"points"`
}

// Validate проверяет экономику пакета.
func (in PackageInput) Validate() error {
	if strings.TrimSpace(in.Name) == "" {
		return common.ErrInvalidRequest
	}
	if !in.HubPrice.IsPositive() || !in.HubCapacity.IsPositive() {
		return common.ErrInvalidAmount
	}
	if in.MinimumMinting.IsNegative() || in.Points.IsNegative() || in.MinimumMinting.GreaterThan(in.HubCapacity) {
		return common.ErrInvalidAmount
	}
	return nil
}

// CreatePackage добавляет пакет в продажу.
func (s *Service) CreatePackage(ctx context.Context, in PackageInput) (*Package, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}
	p := &Package{
		Name:           strings.TrimSpace(in.Name),
		HubPrice:       in.HubPrice,
		HubCapacity:    in.HubCapacity,
		MinimumMinting: in.MinimumMinting,
		Points:         in.Points,
		IsActive:       true,
	}
	if err := s.repo.CreatePackage(ctx, p); err != nil {
		return nil, err
	}
	log.WithFields(log.Fields{"package_id": p.ID, "name": p.Name}).Info("Пакет создан")
	return p, nil
}

// StartMintingInput: запуск новой активности.
type StartMintingInput struct {
	UserID       int64           `json:"userId"`
	InvestmentID int64           `json:"investmentId"`
	MintingType  string          `json:"mintingType"`
	Amount       decimal.Decimal `json:"amount"`
}

// StartMinting создаёт активность под инвестицией пользователя.
// Сумма не ниже minimumMinting, а все активности вместе не выходят за hubCapacity.
func (s *Service) StartMinting(ctx context.Context, in StartMintingInput) (*Activity, error) {
	if in.UserID <= 0 || in.InvestmentID <= 0 {
		return nil, common.ErrInvalidID
	}
	mintingType, err := ParseMintingType(in.MintingType)
	if err != nil {
		return nil, err
	}
	if !in.Amount.IsPositive() {
		return nil, common.ErrInvalidAmount
	}

	activity := &Activity{
		InvestmentID:   in.InvestmentID,
		UserID:         in.UserID,
		MintingType:    mintingType,
		InvestedAmount: in.Amount,
	}
	err = postgres.WithTx(ctx, s.db, func(tx pgx.Tx) error {
		repo := NewRepository(tx)

		// Блокируем инвестицию: параллельные запуски не превысят ёмкость
		inv, err := repo.LockInvestment(ctx, in.InvestmentID)
		if err != nil {
			return err
		}
		if inv.UserID != in.UserID {
			return common.ErrInvestmentNotFound
		}
		if in.Amount.LessThan(inv.MinimumMinting) {
			return common.ErrBelowMinimumMinting
		}
		used, err := repo.SumInvested(ctx, inv.ID)
		if err != nil {
			return err
		}
		if used.Add(in.Amount).GreaterThan(inv.HubCapacity) {
			return common.ErrCapacityExceeded
		}
		return repo.CreateActivity(ctx, activity)
	})
	if err != nil {
		return nil, err
	}

	log.WithFields(log.Fields{
		"user_id":       in.UserID,
		"investment_id": in.InvestmentID,
		"activity_id":   activity.ID,
		"position":      activity.Position,
		"type":          mintingType,
		"amount":        in.Amount.String(),
	}).Info("Минтинг запущен")
	return activity, nil
}

// NoteEarlySwitch: причина списания комиссии за смену типа (из какого, в какой).
const NoteEarlySwitch = "досрочная смена типа минтинга %s -> %s"

// SwitchResult: итог смены типа минтинга.
type SwitchResult struct {
	Activity *Activity       `json:"activity"`
	Fee      decimal.Decimal `json:"fee"`
}

// SwitchMintingType меняет тип активной активности.
// Смена до закрытия активности считается досрочной: с кошелька списывается
// switchingFee процентов от investedAmount с записью switch_fee в пользу системы.
func (s *Service) SwitchMintingType(ctx context.Context, userID, activityID int64, rawType string) (*SwitchResult, error) {
	if userID <= 0 || activityID <= 0 {
		return nil, common.ErrInvalidID
	}
	newType, err := ParseMintingType(rawType)
	if err != nil {
		return nil, err
	}

	result := &SwitchResult{}
	err = postgres.WithTx(ctx, s.db, func(tx pgx.Tx) error {
		repo := NewRepository(tx)

		a, err := repo.LockActivity(ctx, activityID)
		if err != nil {
			return err
		}
		if a.UserID != userID {
			return common.ErrActivityNotFound
		}
		if !a.IsActive {
			return common.ErrActivityInactive
		}
		if a.MintingType == newType {
			return common.ErrSameMintingType
		}

		snap, err := settings.NewRepository(tx).Snapshot(ctx)
		if err != nil {
			return err
		}
		fee := common.PercentOf(a.InvestedAmount, common.ParsePercent(snap.SwitchingFee.Percentage))
		if fee.IsPositive() {
			if err := accounts.NewRepository(tx).DebitWallet(ctx, userID, fee); err != nil {
				return err
			}
			err := ledger.NewRepository(tx).Append(ctx, &ledger.Entry{
				EventID:  uuid.New(),
				Sender:   ledger.User(userID),
				Receiver: ledger.System(),
				Amount:   fee,
				Type:     ledger.TypeSwitchFee,
				Status:   ledger.StatusCompleted,
				Details: ledger.Details{
					Percentage:   common.ParsePercent(snap.SwitchingFee.Percentage),
					InvestmentID: ledger.Ref(a.InvestmentID),
					MintingID:    ledger.Ref(a.ID),
					Note:         fmt.Sprintf(NoteEarlySwitch, a.MintingType, newType),
				},
			})
			if err != nil {
				return err
			}
		}

		if err := repo.SetMintingType(ctx, a.ID, newType); err != nil {
			return err
		}
		a.MintingType = newType
		result.Activity = a
		result.Fee = fee
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.WithFields(log.Fields{
		"user_id":     userID,
		"activity_id": activityID,
		"type":        newType,
		"fee":         result.Fee.String(),
	}).Info("Тип минтинга изменён")
	return result, nil
}

// ListActivities: все активности пользователя вместе с историей кликов.
func (s *Service) ListActivities(ctx context.Context, userID int64) ([]*Activity, error) {
	if userID <= 0 {
		return nil, common.ErrInvalidID
	}
	list, err := s.repo.ListActivitiesByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	for _, a := range list {
		clicks, err := s.repo.ListClicks(ctx, a.ID)
		if err != nil {
			return nil, err
		}
		a.ClickHistory = clicks
	}
	return list, nil
}

// ListInvestments: инвестиции пользователя.
func (s *Service) ListInvestments(ctx context.Context, userID int64) ([]*Investment, error) {
	if userID <= 0 {
		return nil, common.ErrInvalidID
	}
	return s.repo.ListInvestmentsByUser(ctx, userID)
}
