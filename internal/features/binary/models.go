// Package binary: бинарное дерево размещения участников.
// models.go описывает узел дерева и стороны (ноги).
package binary

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"serotonyl.ru/mlm-platform/internal/common"
)

// Leg: сторона относительно родителя.
type Leg string

const (
	LegLeft  Leg = "L"
	LegRight Leg = "R"
)

// ParseLeg принимает "L"/"R" (и "left"/"right") в любом регистре.
func ParseLeg(s string) (Leg, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "L", "LEFT":
		return LegLeft, nil
	case "R", "RIGHT":
		return LegRight, nil
	}
	return "", common.ErrInvalidLeg
}

// Placement: узел дерева. У пользователя ровно один узел,
// сторона относительно родителя после создания не меняется.
//
// LeftPoints/RightPoints: несовпавший объём, уменьшается при матчинге.
// TotalLeftPoints/TotalRightPoints: объём за всё время, только растёт.
type Placement struct {
	UserID           int64           `json:"userId" db:"user_id"`
	SponsorID        *int64          `json:"sponsorId" db:"sponsor_id"`
	ParentID         *int64          `json:"parentId" db:"parent_id"` // nil у корня
	Leg              *Leg            `json:"leg" db:"leg"`             // nil у корня
	LeftPoints       decimal.Decimal `json:"leftPoints" db:"left_points"`
	RightPoints      decimal.Decimal `json:"rightPoints" db:"right_points"`
	TotalLeftPoints  decimal.Decimal `json:"totalLeftPoints" db:"total_left_points"`
	TotalRightPoints decimal.Decimal `json:"totalRightPoints" db:"total_right_points"`
	CreatedAt        time.Time       `json:"createdAt" db:"created_at"`
	UpdatedAt        time.Time       `json:"updatedAt" db:"updated_at"`
}

// Node: узел с детьми для просмотра дерева (nil: сторона свободна).
type Node struct {
	*Placement
	Left  *Placement `json:"left"`
	Right *Placement `json:"right"`
}

// BothLegsFilled: на обеих сторонах есть несовпавший объём.
func (p *Placement) BothLegsFilled() bool {
	return p.LeftPoints.IsPositive() && p.RightPoints.IsPositive()
}

// WeakLeg: объём слабой стороны (столько можно сматчить).
func (p *Placement) WeakLeg() decimal.Decimal {
	return decimal.Min(p.LeftPoints, p.RightPoints)
}
