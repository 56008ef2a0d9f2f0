// Package binary (service.go): размещение участников в дереве.
package binary

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	log "github.com/sirupsen/logrus"

	"serotonyl.ru/mlm-platform/internal/common"
	"serotonyl.ru/mlm-platform/internal/db/postgres"
)

// Service размещает участников.
type Service struct {
	db   postgres.DBTX
	repo *Repository
}

// NewService создаёт сервис дерева.
func NewService(db postgres.DBTX) *Service {
	return &Service{db: db, repo: NewRepository(db)}
}

// PlaceInput: запрос на размещение. Без ParentID участник спускается
// по стороне Leg от спонсора до первого свободного места.
type PlaceInput struct {
	UserID    int64  `json:"userId"`
	SponsorID *int64 `json:"sponsorId"`
	ParentID  *int64 `json:"parentId"`
	Leg       string `json:"leg"`
}

// Place размещает пользователя.
//
//   - parentID задан: строго под этим родителем на стороне leg;
//   - parentID не задан, sponsorID задан: первое свободное место на стороне leg под спонсором;
//   - ни того, ни другого: корень, только если дерево пустое.
func (s *Service) Place(ctx context.Context, in PlaceInput) (*Placement, error) {
	if in.UserID <= 0 {
		return nil, common.ErrInvalidID
	}

	var placement *Placement
	err := postgres.WithTx(ctx, s.db, func(tx pgx.Tx) error {
		repo := NewRepository(tx)

		if _, err := repo.GetByUser(ctx, in.UserID); err == nil {
			return common.ErrAlreadyPlaced
		} else if !errors.Is(err, common.ErrPlacementNotFound) {
			return err
		}

		p := &Placement{UserID: in.UserID, SponsorID: in.SponsorID}
		switch {
		case in.ParentID != nil:
			leg, err := ParseLeg(in.Leg)
			if err != nil {
				return err
			}
			if _, err := repo.GetByUser(ctx, *in.ParentID); err != nil {
				return err
			}
			p.ParentID, p.Leg = in.ParentID, &leg

		case in.SponsorID != nil:
			leg, err := ParseLeg(in.Leg)
			if err != nil {
				return err
			}
			if _, err := repo.GetByUser(ctx, *in.SponsorID); err != nil {
				return err
			}
			parentID, err := FindFreeSlot(ctx, repo.ChildOnLeg, *in.SponsorID, leg)
			if err != nil {
				return err
			}
			p.ParentID, p.Leg = &parentID, &leg

		default:
			n, err := repo.Count(ctx)
			if err != nil {
				return fmt.Errorf("ошибка подсчёта узлов: %w", err)
			}
			if n > 0 {
				return common.ErrRootExists
			}
		}

		if err := repo.Create(ctx, p); err != nil {
			return err
		}
		placement = p
		return nil
	})
	if err != nil {
		return nil, err
	}

	fields := log.Fields{"user_id": placement.UserID}
	if placement.ParentID != nil {
		fields["parent_id"] = *placement.ParentID
		fields["leg"] = *placement.Leg
	}
	log.WithFields(fields).Info("Пользователь размещён в дереве")
	return placement, nil
}

// Get возвращает узел пользователя вместе с его детьми.
func (s *Service) Get(ctx context.Context, userID int64) (*Node, error) {
	if userID <= 0 {
		return nil, common.ErrInvalidID
	}
	p, err := s.repo.GetByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	children, err := s.repo.Children(ctx, userID)
	if err != nil {
		return nil, err
	}
	node := &Node{Placement: p}
	for _, c := range children {
		switch {
		case c.Leg == nil:
		case *c.Leg == LegLeft:
			node.Left = c
		case *c.Leg == LegRight:
			node.Right = c
		}
	}
	return node, nil
}

// ChildLookup: поиск ребёнка на стороне (Repository.ChildOnLeg).
type ChildLookup func(ctx context.Context, parentID int64, leg Leg) (*Placement, error)

// FindFreeSlot спускается от start по стороне leg, пока у узла занята эта сторона,
// и возвращает ID узла со свободной стороной. Повтор узла (испорченные данные): ошибка.
func FindFreeSlot(ctx context.Context, childOnLeg ChildLookup, start int64, leg Leg) (int64, error) {
	visited := map[int64]bool{}
	current := start
	for {
		if visited[current] {
			return 0, fmt.Errorf("цикл в бинарном дереве на узле %d", current)
		}
		visited[current] = true

		child, err := childOnLeg(ctx, current, leg)
		if errors.Is(err, common.ErrPlacementNotFound) {
			return current, nil
		}
		if err != nil {
			return 0, err
		}
		current = child.UserID
	}
}
