// Package investments (repository.go): таблицы packages, investments,
// minting_activities и minting_clicks.
package investments

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"serotonyl.ru/mlm-platform/internal/common"
	"serotonyl.ru/mlm-platform/internal/db/postgres"
)

// Repository работает с инвестициями. db: пул или транзакция события.
type Repository struct {
	db postgres.DBTX
}

// NewRepository создаёт репозиторий инвестиций.
func NewRepository(db postgres.DBTX) *Repository {
	return &Repository{db: db}
}

// --- Пакеты ---

// CreatePackage добавляет пакет.
func (r *Repository) CreatePackage(ctx context.Context, p *Package) error {
	err := r.db.QueryRow(ctx, `
		INSERT INTO packages (name, hub_price, hub_capacity, minimum_minting, points, is_active)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at
	`, p.Name, p.HubPrice, p.HubCapacity, p.MinimumMinting, p.Points, p.IsActive).Scan(&p.ID, &p.CreatedAt)
	if err != nil {
		return fmt.Errorf("ошибка создания пакета: %w", err)
	}
	return nil
}

// GetPackage возвращает пакет по ID.
func (r *Repository) GetPackage(ctx context.Context, id int64) (*Package, error) {
	var p Package
	err := r.db.QueryRow(ctx, `
		SELECT id, name, hub_price, hub_capacity, minimum_minting, points, is_active, created_at
		FROM packages WHERE id = $1
	`, id).Scan(&p.ID, &p.Name, &p.HubPrice, &p.HubCapacity, &p.MinimumMinting, &p.Points, &p.IsActive, &p.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, common.ErrPackageNotFound
		}
		return nil, fmt.Errorf("ошибка получения пакета: %w", err)
	}
	return &p, nil
}

// ListPackages возвращает пакеты (только активные, если activeOnly).
func (r *Repository) ListPackages(ctx context.Context, activeOnly bool) ([]*Package, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, name, hub_price, hub_capacity, minimum_minting, points, is_active, created_at
		FROM packages
		WHERE is_active OR NOT $1
		ORDER BY hub_price, id
	`, activeOnly)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения пакетов: %w", err)
	}
	defer rows.Close()

	var packages []*Package
	for rows.Next() {
		var p Package
		if err := rows.Scan(&p.ID, &p.Name, &p.HubPrice, &p.HubCapacity, &p.MinimumMinting, &p.Points, &p.IsActive, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("ошибка сканирования пакета: %w", err)
		}
		packages = append(packages, &p)
	}
	return packages, rows.Err()
}

// --- Инвестиции ---

// CreateInvestment сохраняет инвестицию.
func (r *Repository) CreateInvestment(ctx context.Context, inv *Investment) error {
	err := r.db.QueryRow(ctx, `
		INSERT INTO investments (user_id, package_id, hub_price, hub_capacity, minimum_minting, points)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at
	`, inv.UserID, inv.PackageID, inv.HubPrice, inv.HubCapacity, inv.MinimumMinting, inv.Points).Scan(&inv.ID, &inv.CreatedAt)
	if err != nil {
		return fmt.Errorf("ошибка создания инвестиции: %w", err)
	}
	return nil
}

const investmentColumns = `id, user_id, package_id, hub_price, hub_capacity, minimum_minting, points, created_at`

func scanInvestment(row pgx.Row) (*Investment, error) {
	var inv Investment
	err := row.Scan(&inv.ID, &inv.UserID, &inv.PackageID, &inv.HubPrice, &inv.HubCapacity,
		&inv.MinimumMinting, &inv.Points, &inv.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, common.ErrInvestmentNotFound
		}
		return nil, fmt.Errorf("ошибка чтения инвестиции: %w", err)
	}
	return &inv, nil
}

// GetInvestment возвращает инвестицию по ID.
func (r *Repository) GetInvestment(ctx context.Context, id int64) (*Investment, error) {
	return scanInvestment(r.db.QueryRow(ctx, `SELECT `+investmentColumns+` FROM investments WHERE id = $1`, id))
}

// LockInvestment читает инвестицию с блокировкой строки (проверка ёмкости).
func (r *Repository) LockInvestment(ctx context.Context, id int64) (*Investment, error) {
	return scanInvestment(r.db.QueryRow(ctx, `SELECT `+investmentColumns+` FROM investments WHERE id = $1 FOR UPDATE`, id))
}

// ListInvestmentsByUser возвращает инвестиции пользователя.
func (r *Repository) ListInvestmentsByUser(ctx context.Context, userID int64) ([]*Investment, error) {
	rows, err := r.db.Query(ctx, `SELECT `+investmentColumns+` FROM investments WHERE user_id = $1 ORDER BY id`, userID)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения инвестиций: %w", err)
	}
	defer rows.Close()

	var list []*Investment
	for rows.Next() {
		inv, err := scanInvestment(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, inv)
	}
	return list, rows.Err()
}

// CountInvestments: число инвестиций пользователя.
func (r *Repository) CountInvestments(ctx context.Context, userID int64) (int, error) {
	var n int
	err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM investments WHERE user_id = $1`, userID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("ошибка подсчёта инвестиций: %w", err)
	}
	return n, nil
}

// SumHubPrice: сколько пользователь потратил на пакеты за всё время.
func (r *Repository) SumHubPrice(ctx context.Context, userID int64) (decimal.Decimal, error) {
	var sum decimal.Decimal
	err := r.db.QueryRow(ctx, `SELECT COALESCE(SUM(hub_price), 0) FROM investments WHERE user_id = $1`, userID).Scan(&sum)
	if err != nil {
		return decimal.Zero, fmt.Errorf("ошибка подсчёта вложений: %w", err)
	}
	return sum, nil
}

// SumHubCapacity: суммарная ёмкость инвестиций указанных пользователей.
func (r *Repository) SumHubCapacity(ctx context.Context, userIDs []int64) (decimal.Decimal, error) {
	if len(userIDs) == 0 {
		return decimal.Zero, nil
	}
	var sum decimal.Decimal
	err := r.db.QueryRow(ctx, `SELECT COALESCE(SUM(hub_capacity), 0) FROM investments WHERE user_id = ANY($1)`, userIDs).Scan(&sum)
	if err != nil {
		return decimal.Zero, fmt.Errorf("ошибка подсчёта бизнеса рефералов: %w", err)
	}
	return sum, nil
}

// --- Активности ---

const activityColumns = `
	id, investment_id, user_id, position, minting_type, invested_amount, clicks_done,
	total_profit_earned, is_active, last_click_at, created_at, updated_at`

func scanActivity(row pgx.Row) (*Activity, error) {
	var (
		a   Activity
		typ string
	)
	err := row.Scan(&a.ID, &a.InvestmentID, &a.UserID, &a.Position, &typ, &a.InvestedAmount, &a.ClicksDone,
		&a.TotalProfitEarned, &a.IsActive, &a.LastClickAt, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, common.ErrActivityNotFound
		}
		return nil, fmt.Errorf("ошибка чтения активности: %w", err)
	}
	a.MintingType = MintingType(typ)
	return &a, nil
}

func collectActivities(rows pgx.Rows, err error) ([]*Activity, error) {
	if err != nil {
		return nil, fmt.Errorf("ошибка получения активностей: %w", err)
	}
	defer rows.Close()

	var list []*Activity
	for rows.Next() {
		a, err := scanActivity(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, a)
	}
	return list, rows.Err()
}

// CreateActivity добавляет активность следующей по порядку внутри инвестиции.
func (r *Repository) CreateActivity(ctx context.Context, a *Activity) error {
	err := r.db.QueryRow(ctx, `
		INSERT INTO minting_activities (investment_id, user_id, position, minting_type, invested_amount)
		VALUES ($1, $2,
		        (SELECT COALESCE(MAX(position) + 1, 0) FROM minting_activities WHERE investment_id = $1),
		        $3, $4)
		RETURNING id, position, is_active, created_at, updated_at
	`, a.InvestmentID, a.UserID, string(a.MintingType), a.InvestedAmount).
		Scan(&a.ID, &a.Position, &a.IsActive, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return fmt.Errorf("ошибка создания активности: %w", err)
	}
	return nil
}

// SumInvested: сколько уже распределено по активностям инвестиции.
func (r *Repository) SumInvested(ctx context.Context, investmentID int64) (decimal.Decimal, error) {
	var sum decimal.Decimal
	err := r.db.QueryRow(ctx, `
		SELECT COALESCE(SUM(invested_amount), 0) FROM minting_activities WHERE investment_id = $1
	`, investmentID).Scan(&sum)
	if err != nil {
		return decimal.Zero, fmt.Errorf("ошибка подсчёта распределённой ёмкости: %w", err)
	}
	return sum, nil
}

// GetActivity возвращает активность по ID.
func (r *Repository) GetActivity(ctx context.Context, id int64) (*Activity, error) {
	return scanActivity(r.db.QueryRow(ctx, `SELECT`+activityColumns+` FROM minting_activities WHERE id = $1`, id))
}

// LockActivity читает активность FOR UPDATE: клики по одной активности
// сериализуются, лимит перечитывается под блокировкой.
func (r *Repository) LockActivity(ctx context.Context, id int64) (*Activity, error) {
	return scanActivity(r.db.QueryRow(ctx, `SELECT`+activityColumns+` FROM minting_activities WHERE id = $1 FOR UPDATE`, id))
}

// ListActivitiesByUser возвращает все активности пользователя.
func (r *Repository) ListActivitiesByUser(ctx context.Context, userID int64) ([]*Activity, error) {
	return collectActivities(r.db.Query(ctx, `
		SELECT`+activityColumns+` FROM minting_activities WHERE user_id = $1 ORDER BY investment_id, position
	`, userID))
}

// ListActiveByUser: активные активности пользователя указанного типа.
func (r *Repository) ListActiveByUser(ctx context.Context, userID int64, t MintingType) ([]*Activity, error) {
	return collectActivities(r.db.Query(ctx, `
		SELECT`+activityColumns+` FROM minting_activities
		WHERE user_id = $1 AND minting_type = $2 AND is_active
		ORDER BY investment_id, position
	`, userID, string(t)))
}

// ListActive: все активные активности (ночная проверка лимитов).
func (r *Repository) ListActive(ctx context.Context) ([]*Activity, error) {
	return collectActivities(r.db.Query(ctx, `
		SELECT`+activityColumns+` FROM minting_activities WHERE is_active ORDER BY id
	`))
}

// CountActiveByUser: число активных активностей пользователя любого типа.
func (r *Repository) CountActiveByUser(ctx context.Context, userID int64) (int, error) {
	var n int
	err := r.db.QueryRow(ctx, `
		SELECT COUNT(*) FROM minting_activities WHERE user_id = $1 AND is_active
	`, userID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("ошибка подсчёта активностей: %w", err)
	}
	return n, nil
}

// UsersWithActive: пользователи, у которых есть активные активности типа t.
func (r *Repository) UsersWithActive(ctx context.Context, t MintingType) ([]int64, error) {
	rows, err := r.db.Query(ctx, `
		SELECT DISTINCT user_id FROM minting_activities
		WHERE minting_type = $1 AND is_active
		ORDER BY user_id
	`, string(t))
	if err != nil {
		return nil, fmt.Errorf("ошибка получения пользователей с минтингом: %w", err)
	}
	return pgx.CollectRows(rows, pgx.RowTo[int64])
}

// RecordClick увеличивает счётчик кликов и пишет клик в историю.
// Возвращает номер клика.
func (r *Repository) RecordClick(ctx context.Context, activityID int64, at time.Time) (int, error) {
	var number int
	err := r.db.QueryRow(ctx, `
		UPDATE minting_activities
		SET clicks_done = clicks_done + 1, last_click_at = $2, updated_at = NOW()
		WHERE id = $1
		RETURNING clicks_done
	`, activityID, at).Scan(&number)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, common.ErrActivityNotFound
		}
		return 0, fmt.Errorf("ошибка записи клика: %w", err)
	}
	_, err = r.db.Exec(ctx, `
		INSERT INTO minting_clicks (activity_id, click_number, clicked_at) VALUES ($1, $2, $3)
	`, activityID, number, at)
	if err != nil {
		return 0, fmt.Errorf("ошибка записи истории клика: %w", err)
	}
	return number, nil
}

// MarkClickProcessed отмечает клик как обработанный движком комиссий.
func (r *Repository) MarkClickProcessed(ctx context.Context, activityID int64, clickNumber int) error {
	_, err := r.db.Exec(ctx, `
		UPDATE minting_clicks SET processed = TRUE WHERE activity_id = $1 AND click_number = $2
	`, activityID, clickNumber)
	if err != nil {
		return fmt.Errorf("ошибка отметки клика: %w", err)
	}
	return nil
}

// ListClicks возвращает историю кликов активности.
func (r *Repository) ListClicks(ctx context.Context, activityID int64) ([]*Click, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, activity_id, click_number, clicked_at, processed
		FROM minting_clicks WHERE activity_id = $1 ORDER BY click_number
	`, activityID)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения кликов: %w", err)
	}
	return pgx.CollectRows(rows, pgx.RowToAddrOfStructByName[Click])
}

// AddProfit прибавляет выплату к total_profit_earned.
func (r *Repository) AddProfit(ctx context.Context, activityID int64, amount decimal.Decimal) error {
	_, err := r.db.Exec(ctx, `
		UPDATE minting_activities
		SET total_profit_earned = total_profit_earned + $2, updated_at = NOW()
		WHERE id = $1
	`, activityID, amount)
	if err != nil {
		return fmt.Errorf("ошибка учёта прибыли: %w", err)
	}
	return nil
}

// Deactivate закрывает активность. Повторный вызов безвреден.
func (r *Repository) Deactivate(ctx context.Context, activityID int64) error {
	_, err := r.db.Exec(ctx, `
		UPDATE minting_activities SET is_active = FALSE, updated_at = NOW() WHERE id = $1
	`, activityID)
	if err != nil {
		return fmt.Errorf("ошибка деактивации активности: %w", err)
	}
	return nil
}

// SetMintingType меняет тип минтинга активности.
func (r *Repository) SetMintingType(ctx context.Context, activityID int64, t MintingType) error {
	_, err := r.db.Exec(ctx, `
		UPDATE minting_activities SET minting_type = $2, updated_at = NOW() WHERE id = $1
	`, activityID, string(t))
	if err != nil {
		return fmt.Errorf("ошибка смены типа минтинга: %w", err)
	}
	return nil
}
