// Package ledger (repository.go) пишет и читает таблицу transactions.
package ledger

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"serotonyl.ru/mlm-platform/internal/db/postgres"
)

// Repository работает с журналом. db: пул или транзакция события.
type Repository struct {
	db postgres.DBTX
}

// NewRepository создаёт репозиторий журнала.
func NewRepository(db postgres.DBTX) *Repository {
	return &Repository{db: db}
}

const entryColumns = `
	id, event_id, sender_id, receiver_id, amount, transaction_type, status,
	COALESCE(level, 0), percentage, buyer_id, investment_id, minting_id, source_minting_id,
	note, created_at`

// Append дописывает запись и заполняет ID и CreatedAt.
func (r *Repository) Append(ctx context.Context, e *Entry) error {
	if !e.Type.Valid() {
		return fmt.Errorf("неизвестный тип операции %q", e.Type)
	}
	query := `
		INSERT INTO transactions (
			event_id, sender_id, receiver_id, amount, transaction_type, status,
			level, percentage, buyer_id, investment_id, minting_id, source_minting_id, note
		)
		VALUES ($1, $2, $3, $4, $5, $6, NULLIF($7, 0), $8, $9, $10, $11, $12, $13)
		RETURNING id, created_at
	`
	d := e.Details
	err := r.db.QueryRow(ctx, query,
		e.EventID, e.Sender.nullable(), e.Receiver.nullable(), e.Amount, string(e.Type), string(e.Status),
		d.Level, d.Percentage, d.BuyerID, d.InvestmentID, d.MintingID, d.SourceMintingID, d.Note,
	).Scan(&e.ID, &e.CreatedAt)
	if err != nil {
		return fmt.Errorf("ошибка записи в журнал: %w", err)
	}
	return nil
}

// ListByUser возвращает последние записи, где пользователь отправитель или получатель.
func (r *Repository) ListByUser(ctx context.Context, userID int64, limit int) ([]*Entry, error) {
	query := `SELECT` + entryColumns + `
		FROM transactions
		WHERE sender_id = $1 OR receiver_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2
	`
	rows, err := r.db.Query(ctx, query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения журнала: %w", err)
	}
	return scanEntries(rows)
}

// ListByEvent возвращает все записи одного события в порядке создания.
func (r *Repository) ListByEvent(ctx context.Context, eventID uuid.UUID) ([]*Entry, error) {
	query := `SELECT` + entryColumns + `
		FROM transactions
		WHERE event_id = $1
		ORDER BY id
	`
	rows, err := r.db.Query(ctx, query, eventID)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения записей события: %w", err)
	}
	return scanEntries(rows)
}

// SumByMinting: сумма записей указанных типов и статуса по minting_id.
// Основа для учёта лимита заработка активности.
func (r *Repository) SumByMinting(ctx context.Context, mintingID int64, types []Type, status Status) (decimal.Decimal, error) {
	query := `
		SELECT COALESCE(SUM(amount), 0)
		FROM transactions
		WHERE minting_id = $1 AND transaction_type = ANY($2) AND status = $3
	`
	var sum decimal.Decimal
	if err := r.db.QueryRow(ctx, query, mintingID, typeStrings(types), string(status)).Scan(&sum); err != nil {
		return decimal.Zero, fmt.Errorf("ошибка подсчёта выплат по активности: %w", err)
	}
	return sum, nil
}

// SumReceived: сумма, полученная пользователем по указанным типам и статусу.
func (r *Repository) SumReceived(ctx context.Context, userID int64, types []Type, status Status) (decimal.Decimal, error) {
	query := `
		SELECT COALESCE(SUM(amount), 0)
		FROM transactions
		WHERE receiver_id = $1 AND transaction_type = ANY($2) AND status = $3
	`
	var sum decimal.Decimal
	if err := r.db.QueryRow(ctx, query, userID, typeStrings(types), string(status)).Scan(&sum); err != nil {
		return decimal.Zero, fmt.Errorf("ошибка подсчёта полученных выплат: %w", err)
	}
	return sum, nil
}

func typeStrings(types []Type) []string {
	out := make([]string, len(types))
	for i, t := range types {
		out[i] = string(t)
	}
	return out
}

func scanEntries(rows pgx.Rows) ([]*Entry, error) {
	defer rows.Close()

	var entries []*Entry
	for rows.Next() {
		var (
			e                Entry
			sender, receiver *int64
			txType, status   string
		)
		err := rows.Scan(
			&e.ID, &e.EventID, &sender, &receiver, &e.Amount, &txType, &status,
			&e.Details.Level, &e.Details.Percentage, &e.Details.BuyerID, &e.Details.InvestmentID,
			&e.Details.MintingID, &e.Details.SourceMintingID, &e.Details.Note, &e.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("ошибка сканирования записи журнала: %w", err)
		}
		e.Sender = actorFromNullable(sender)
		e.Receiver = actorFromNullable(receiver)
		e.Type = Type(txType)
		e.Status = Status(status)
		entries = append(entries, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ошибка чтения журнала: %w", err)
	}
	return entries, nil
}
