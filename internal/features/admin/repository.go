// Package admin (repository.go) работает с таблицей admin_login_attempts.
package admin

import (
	"context"
	"fmt"
	"time"

	"serotonyl.ru/mlm-platform/internal/db/postgres"
)

// Repository хранит попытки входа.
type Repository struct {
	db postgres.DBTX
}

// NewRepository создаёт репозиторий.
func NewRepository(db postgres.DBTX) *Repository {
	return &Repository{db: db}
}

// LogAttempt записывает попытку входа.
func (r *Repository) LogAttempt(ctx context.Context, remoteKey string, success bool) error {
	query := `INSERT INTO admin_login_attempts (remote_key, success) VALUES ($1, $2)`
	if _, err := r.db.Exec(ctx, query, remoteKey, success); err != nil {
		return fmt.Errorf("ошибка записи попытки входа: %w", err)
	}
	return nil
}

// RecentFailures возвращает количество неудачных попыток начиная с since.
func (r *Repository) RecentFailures(ctx context.Context, remoteKey string, since time.Time) (int, error) {
	query := `
		SELECT COUNT(*) FROM admin_login_attempts
		WHERE remote_key = $1 AND success = FALSE AND attempt_time >= $2
	`
	var count int
	if err := r.db.QueryRow(ctx, query, remoteKey, since).Scan(&count); err != nil {
		return 0, fmt.Errorf("ошибка подсчёта попыток входа: %w", err)
	}
	return count, nil
}
