// Package accounts (repository.go) выполняет операции с таблицей users.
// Балансы меняются только атомарными UPDATE вида x = x + $n,
// без чтения-изменения-записи в Go.
package accounts

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"serotonyl.ru/mlm-platform/internal/common"
	"serotonyl.ru/mlm-platform/internal/db/postgres"
)

// Repository предоставляет методы для работы с пользователями.
type Repository struct {
	db postgres.DBTX
}

// NewRepository создаёт репозиторий пользователей.
func NewRepository(db postgres.DBTX) *Repository {
	return &Repository{db: db}
}

const userColumns = `
	id, own_code, referred_by_code, username, rank, tier,
	wallet_balance, crypto_wallet, current_balance,
	commission_locked, commission_withdrawable, commission_earned, pending_commissions,
	is_active, created_at, updated_at`

func scanUser(row pgx.Row) (*User, error) {
	var u User
	err := row.Scan(
		&u.ID, &u.OwnCode, &u.ReferredByCode, &u.Username, &u.Rank, &u.Tier,
		&u.WalletBalance, &u.CryptoWallet, &u.CurrentBalance,
		&u.CommissionLocked, &u.CommissionWithdrawable, &u.CommissionEarned, &u.PendingCommissions,
		&u.IsActive, &u.CreatedAt, &u.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, common.ErrUserNotFound
		}
		return nil, fmt.Errorf("ошибка чтения пользователя: %w", err)
	}
	return &u, nil
}

// Create добавляет пользователя с нулевыми балансами.
func (r *Repository) Create(ctx context.Context, u *User) error {
	query := `
		INSERT INTO users (own_code, referred_by_code, username, rank, tier)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, is_active, created_at, updated_at
	`
	err := r.db.QueryRow(ctx, query, u.OwnCode, u.ReferredByCode, u.Username, u.Rank, u.Tier).
		Scan(&u.ID, &u.IsActive, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return fmt.Errorf("ошибка создания пользователя: %w", err)
	}
	return nil
}

// GetByID возвращает пользователя по ID.
func (r *Repository) GetByID(ctx context.Context, id int64) (*User, error) {
	return scanUser(r.db.QueryRow(ctx, `SELECT`+userColumns+` FROM users WHERE id = $1`, id))
}

// GetByCode ищет пользователя по собственному реферальному коду
// (уникальный индекс на own_code).
func (r *Repository) GetByCode(ctx context.Context, code string) (*User, error) {
	return scanUser(r.db.QueryRow(ctx, `SELECT`+userColumns+` FROM users WHERE own_code = $1`, code))
}

// CodeExists проверяет, занят ли реферальный код.
func (r *Repository) CodeExists(ctx context.Context, code string) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM users WHERE own_code = $1)`, code).Scan(&exists)
	return exists, err
}

// CountReferrals: сколько пользователей пришло по коду.
func (r *Repository) CountReferrals(ctx context.Context, code string) (int, error) {
	var n int
	err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM users WHERE referred_by_code = $1`, code).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("ошибка подсчёта рефералов: %w", err)
	}
	return n, nil
}

// ReferralIDs возвращает ID прямых рефералов по коду.
func (r *Repository) ReferralIDs(ctx context.Context, code string) ([]int64, error) {
	rows, err := r.db.Query(ctx, `SELECT id FROM users WHERE referred_by_code = $1 ORDER BY id`, code)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения рефералов: %w", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[int64])
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения рефералов: %w", err)
	}
	return ids, nil
}

// CreditCommission начисляет бонус: current_balance и commission_withdrawable растут,
// commission_earned пересчитывается как locked + withdrawable в том же UPDATE.
func (r *Repository) CreditCommission(ctx context.Context, userID int64, amount decimal.Decimal) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE users
		SET current_balance = current_balance + $2,
		    commission_withdrawable = commission_withdrawable + $2,
		    commission_earned = commission_locked + commission_withdrawable + $2,
		    updated_at = NOW()
		WHERE id = $1
	`, userID, amount)
	if err != nil {
		return fmt.Errorf("ошибка начисления комиссии: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return common.ErrUserNotFound
	}
	return nil
}

// CreditWallet пополняет кошелёк.
func (r *Repository) CreditWallet(ctx context.Context, userID int64, amount decimal.Decimal) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE users SET wallet_balance = wallet_balance + $2, updated_at = NOW()
		WHERE id = $1
	`, userID, amount)
	if err != nil {
		return fmt.Errorf("ошибка пополнения кошелька: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return common.ErrUserNotFound
	}
	return nil
}

// DebitWallet списывает с кошелька. Строка блокируется FOR UPDATE,
// при нехватке средств возвращается common.ErrInsufficientBalance.
func (r *Repository) DebitWallet(ctx context.Context, userID int64, amount decimal.Decimal) error {
	return postgres.WithTx(ctx, r.db, func(tx pgx.Tx) error {
		var balance decimal.Decimal
		err := tx.QueryRow(ctx, `SELECT wallet_balance FROM users WHERE id = $1 FOR UPDATE`, userID).Scan(&balance)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return common.ErrUserNotFound
			}
			return fmt.Errorf("ошибка получения баланса: %w", err)
		}
		if balance.LessThan(amount) {
			return common.ErrInsufficientBalance
		}
		_, err = tx.Exec(ctx, `
			UPDATE users SET wallet_balance = wallet_balance - $2, updated_at = NOW()
			WHERE id = $1
		`, userID, amount)
		if err != nil {
			return fmt.Errorf("ошибка списания: %w", err)
		}
		return nil
	})
}

// LockCommission переносит сумму из withdrawable в locked. Earned не меняется.
func (r *Repository) LockCommission(ctx context.Context, userID int64, amount decimal.Decimal) error {
	return r.moveCommission(ctx, userID, amount, `
		UPDATE users
		SET commission_withdrawable = commission_withdrawable - $2,
		    commission_locked = commission_locked + $2,
		    updated_at = NOW()
		WHERE id = $1 AND commission_withdrawable >= $2
	`)
}

// UnlockCommission переносит сумму из locked обратно в withdrawable.
func (r *Repository) UnlockCommission(ctx context.Context, userID int64, amount decimal.Decimal) error {
	return r.moveCommission(ctx, userID, amount, `
		UPDATE users
		SET commission_locked = commission_locked - $2,
		    commission_withdrawable = commission_withdrawable + $2,
		    updated_at = NOW()
		WHERE id = $1 AND commission_locked >= $2
	`)
}

func (r *Repository) moveCommission(ctx context.Context, userID int64, amount decimal.Decimal, query string) error {
	tag, err := r.db.Exec(ctx, query, userID, amount)
	if err != nil {
		return fmt.Errorf("ошибка перемещения комиссии: %w", err)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}
	// Ни одной строки: либо пользователя нет, либо не хватает суммы
	if _, err := r.GetByID(ctx, userID); err != nil {
		return err
	}
	return common.ErrInsufficientCommission
}
