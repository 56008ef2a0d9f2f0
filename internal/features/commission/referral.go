package commission

import (
	"context"
	"errors"

	log "github.com/sirupsen/logrus"

	"serotonyl.ru/mlm-platform/internal/common"
	"serotonyl.ru/mlm-platform/internal/features/accounts"
)

// Upline: аплайн на уровне Level (1: прямой пригласивший).
type Upline struct {
	User  *accounts.User
	Level int
}

// ResolveUpline идёт вверх по referredByCode не больше maxLevels шагов.
// Неразрешимый код завершает цепочку. Повтор пользователя (битые данные с циклом)
// тоже завершает её.
func ResolveUpline(ctx context.Context, st Store, userID int64, maxLevels int) ([]Upline, error) {
	cur, err := st.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	visited := map[int64]bool{cur.ID: true}
	var chain []Upline
	for level := 1; level <= maxLevels; level++ {
		if cur.ReferredByCode == nil || *cur.ReferredByCode == "" {
			break
		}
		next, err := st.GetUserByCode(ctx, *cur.ReferredByCode)
		if errors.Is(err, common.ErrUserNotFound) {
			break
		}
		if err != nil {
			return nil, err
		}
		if visited[next.ID] {
			log.WithFields(log.Fields{
				"user_id": userID,
				"loop_at": next.ID,
			}).Warn("Цикл в реферальной цепочке")
			break
		}
		visited[next.ID] = true
		chain = append(chain, Upline{User: next, Level: level})
		cur = next
	}
	return chain, nil
}
