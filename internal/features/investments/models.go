// Package investments: пакеты, инвестиции и минтинг-активности.
// models.go описывает структуры этих сущностей.
package investments

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"serotonyl.ru/mlm-platform/internal/common"
)

// MintingType: тип минтинга активности.
type MintingType string

const (
	MintingManual MintingType = "MANUAL" // Ручной (self) минтинг: клики делает пользователь
	MintingAuto   MintingType = "AUTO"   // Автоминтинг: клики делает планировщик
)

// ParseMintingType принимает тип в любом регистре.
func ParseMintingType(s string) (MintingType, error) {
	t := MintingType(strings.ToUpper(strings.TrimSpace(s)))
	if t != MintingManual && t != MintingAuto {
		return "", common.ErrInvalidMintingType
	}
	return t, nil
}

// Package: продаваемый пакет.
type Package struct {
	ID             int64           `json:"id" db:"id"`
	Name           string          `json:"name" db:"name"`
	HubPrice       decimal.Decimal `json:"hubPrice" db:"hub_price"`             // Стоимость
	HubCapacity    decimal.Decimal `json:"hubCapacity" db:"hub_capacity"`       // Зачисляемая ёмкость минтинга
	MinimumMinting decimal.Decimal `json:"minimumMinting" db:"minimum_minting"` // Минимальная сумма одной активности
	Points         decimal.Decimal `json:"points" db:"points"`                  // Очки для бинарного дерева
	IsActive       bool            `json:"isActive" db:"is_active"`
	CreatedAt      time.Time       `json:"createdAt" db:"created_at"`
}

// Investment: покупка пакета пользователем.
// Экономика пакета копируется на момент покупки и дальше не меняется.
type Investment struct {
	ID             int64           `json:"id" db:"id"`
	UserID         int64           `json:"userId" db:"user_id"`
	PackageID      int64           `json:"packageId" db:"package_id"`
	HubPrice       decimal.Decimal `json:"hubPrice" db:"hub_price"`
	HubCapacity    decimal.Decimal `json:"hubCapacity" db:"hub_capacity"`
	MinimumMinting decimal.Decimal `json:"minimumMinting" db:"minimum_minting"`
	Points         decimal.Decimal `json:"points" db:"points"`
	CreatedAt      time.Time       `json:"createdAt" db:"created_at"`
}

// NewInvestment снимает копию экономики пакета.
func NewInvestment(userID int64, p *Package) *Investment {
	return &Investment{
		UserID:         userID,
		PackageID:      p.ID,
		HubPrice:       p.HubPrice,
		HubCapacity:    p.HubCapacity,
		MinimumMinting: p.MinimumMinting,
		Points:         p.Points,
	}
}

// Activity: одна линия минтинга внутри инвестиции.
//
// Position: порядковый номер внутри инвестиции (0: первая активность,
// у неё ставка зависит от бизнеса прямых рефералов).
type Activity struct {
	ID                int64           `json:"id" db:"id"`
	InvestmentID      int64           `json:"investmentId" db:"investment_id"`
	UserID            int64           `json:"userId" db:"user_id"`
	Position          int             `json:"position" db:"position"`
	MintingType       MintingType     `json:"mintingType" db:"minting_type"`
	InvestedAmount    decimal.Decimal `json:"investedAmount" db:"invested_amount"` // Основа для лимита заработка
	ClicksDone        int             `json:"clicksDone" db:"clicks_done"`
	TotalProfitEarned decimal.Decimal `json:"totalProfitEarned" db:"total_profit_earned"`
	IsActive          bool            `json:"isActive" db:"is_active"`
	LastClickAt       *time.Time      `json:"lastClickAt,omitempty" db:"last_click_at"`
	CreatedAt         time.Time       `json:"createdAt" db:"created_at"`
	UpdatedAt         time.Time       `json:"updatedAt" db:"updated_at"`

	ClickHistory []*Click `json:"clickHistory,omitempty" db:"-"`
}

// First: первая активность под своей инвестицией.
func (a *Activity) First() bool { return a.Position == 0 }

// Click: запись истории кликов активности.
type Click struct {
	ID          int64     `json:"-" db:"id"`
	ActivityID  int64     `json:"-" db:"activity_id"`
	ClickNumber int       `json:"clickNumber" db:"click_number"`
	ClickedAt   time.Time `json:"time" db:"clicked_at"`
	Processed   bool      `json:"processed" db:"processed"`
}
