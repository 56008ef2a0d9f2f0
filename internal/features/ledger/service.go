// Package ledger (service.go): чтение истории операций.
package ledger

import (
	"context"

	"github.com/google/uuid"

	"serotonyl.ru/mlm-platform/internal/common"
)

// DefaultHistoryLimit: сколько записей отдаём без явного limit.
const DefaultHistoryLimit = 50

// Service отдаёт историю журнала. Запись в журнал идёт через Repository
// внутри транзакций событий, а не через сервис.
type Service struct {
	repo *Repository
}

// NewService создаёт сервис журнала.
func NewService(repo *Repository) *Service {
	return &Service{repo: repo}
}

// History возвращает последние записи пользователя.
func (s *Service) History(ctx context.Context, userID int64, limit int) ([]*Entry, error) {
	if userID <= 0 {
		return nil, common.ErrInvalidID
	}
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	return s.repo.ListByUser(ctx, userID, limit)
}

// Event возвращает все записи одного события.
func (s *Service) Event(ctx context.Context, eventID uuid.UUID) ([]*Entry, error) {
	return s.repo.ListByEvent(ctx, eventID)
}
