// Package binary (repository.go): таблица binary_placements.
// Очки меняются атомарными UPDATE ... RETURNING: строка узла остаётся
// заблокированной до конца транзакции события.
package binary

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"

	"serotonyl.ru/mlm-platform/internal/common"
	"serotonyl.ru/mlm-platform/internal/db/postgres"
)

// Repository работает с узлами дерева.
type Repository struct {
	db postgres.DBTX
}

// NewRepository создаёт репозиторий дерева.
func NewRepository(db postgres.DBTX) *Repository {
	return &Repository{db: db}
}

const placementColumns = `
	user_id, sponsor_id, parent_id, leg, left_points, right_points,
	total_left_points, total_right_points, created_at, updated_at`

func scanPlacement(row pgx.Row) (*Placement, error) {
	var (
		p   Placement
		leg *string
	)
	err := row.Scan(&p.UserID, &p.SponsorID, &p.ParentID, &leg, &p.LeftPoints, &p.RightPoints,
		&p.TotalLeftPoints, &p.TotalRightPoints, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, common.ErrPlacementNotFound
		}
		return nil, fmt.Errorf("ошибка чтения узла дерева: %w", err)
	}
	if leg != nil {
		l := Leg(*leg)
		p.Leg = &l
	}
	return &p, nil
}

// Create добавляет узел. Повторное размещение даёт ErrAlreadyPlaced,
// занятая сторона у родителя даёт ErrLegOccupied.
func (r *Repository) Create(ctx context.Context, p *Placement) error {
	var leg *string
	if p.Leg != nil {
		s := string(*p.Leg)
		leg = &s
	}
	err := r.db.QueryRow(ctx, `
		INSERT INTO binary_placements (user_id, sponsor_id, parent_id, leg)
		VALUES ($1, $2, $3, $4)
		RETURNING created_at, updated_at
	`, p.UserID, p.SponsorID, p.ParentID, leg).Scan(&p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) {
			switch {
			case pgErr.Code == "23505" && pgErr.ConstraintName == "binary_placements_pkey":
				return common.ErrAlreadyPlaced
			case pgErr.Code == "23505":
				return common.ErrLegOccupied
			case pgErr.Code == "23503":
				return common.ErrUserNotFound
			}
		}
		return fmt.Errorf("ошибка размещения в дереве: %w", err)
	}
	return nil
}

// GetByUser возвращает узел пользователя.
func (r *Repository) GetByUser(ctx context.Context, userID int64) (*Placement, error) {
	return scanPlacement(r.db.QueryRow(ctx, `SELECT`+placementColumns+` FROM binary_placements WHERE user_id = $1`, userID))
}

// Count: число узлов в дереве.
func (r *Repository) Count(ctx context.Context) (int, error) {
	var n int
	err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM binary_placements`).Scan(&n)
	return n, err
}

// ChildOnLeg возвращает ребёнка parentID на стороне leg или ErrPlacementNotFound.
func (r *Repository) ChildOnLeg(ctx context.Context, parentID int64, leg Leg) (*Placement, error) {
	return scanPlacement(r.db.QueryRow(ctx, `
		SELECT`+placementColumns+` FROM binary_placements WHERE parent_id = $1 AND leg = $2
	`, parentID, string(leg)))
}

// Children возвращает детей узла (не больше двух).
func (r *Repository) Children(ctx context.Context, parentID int64) ([]*Placement, error) {
	rows, err := r.db.Query(ctx, `
		SELECT`+placementColumns+` FROM binary_placements WHERE parent_id = $1 ORDER BY leg
	`, parentID)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения детей узла: %w", err)
	}
	defer rows.Close()

	var list []*Placement
	for rows.Next() {
		p, err := scanPlacement(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, p)
	}
	return list, rows.Err()
}

// AddLegPoints прибавляет очки к стороне leg (текущие и накопленные)
// и возвращает узел после изменения.
func (r *Repository) AddLegPoints(ctx context.Context, userID int64, leg Leg, points decimal.Decimal) (*Placement, error) {
	query := `
		UPDATE binary_placements
		SET left_points = left_points + $2, total_left_points = total_left_points + $2, updated_at = NOW()
		WHERE user_id = $1
		RETURNING` + placementColumns
	if leg == LegRight {
		query = `
		UPDATE binary_placements
		SET right_points = right_points + $2, total_right_points = total_right_points + $2, updated_at = NOW()
		WHERE user_id = $1
		RETURNING` + placementColumns
	}
	return scanPlacement(r.db.QueryRow(ctx, query, userID, points))
}

// ConsumeMatched списывает k очков с обеих сторон. Накопленные итоги не трогаются.
func (r *Repository) ConsumeMatched(ctx context.Context, userID int64, k decimal.Decimal) (*Placement, error) {
	p, err := scanPlacement(r.db.QueryRow(ctx, `
		UPDATE binary_placements
		SET left_points = left_points - $2, right_points = right_points - $2, updated_at = NOW()
		WHERE user_id = $1 AND left_points >= $2 AND right_points >= $2
		RETURNING`+placementColumns, userID, k))
	if errors.Is(err, common.ErrPlacementNotFound) {
		return nil, fmt.Errorf("матчинг %s очков у узла %d невозможен: %w", k, userID, err)
	}
	return p, err
}
