// Package settings (repository.go): таблица settings (name → JSONB).
package settings

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	log "github.com/sirupsen/logrus"

	"serotonyl.ru/mlm-platform/internal/common"
	"serotonyl.ru/mlm-platform/internal/db/postgres"
)

// Repository хранит документы настроек.
type Repository struct {
	db postgres.DBTX
}

// NewRepository создаёт репозиторий настроек.
func NewRepository(db postgres.DBTX) *Repository {
	return &Repository{db: db}
}

// Get возвращает сырой документ.
func (r *Repository) Get(ctx context.Context, name string) (json.RawMessage, error) {
	var raw []byte
	err := r.db.QueryRow(ctx, `SELECT value FROM settings WHERE name = $1`, name).Scan(&raw)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, common.ErrSettingNotFound
		}
		return nil, fmt.Errorf("ошибка чтения настройки %s: %w", name, err)
	}
	return raw, nil
}

// All возвращает все документы.
func (r *Repository) All(ctx context.Context) (map[string]json.RawMessage, error) {
	rows, err := r.db.Query(ctx, `SELECT name, value FROM settings`)
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения настроек: %w", err)
	}
	defer rows.Close()

	docs := make(map[string]json.RawMessage)
	for rows.Next() {
		var (
			name string
			raw  []byte
		)
		if err := rows.Scan(&name, &raw); err != nil {
			return nil, fmt.Errorf("ошибка сканирования настройки: %w", err)
		}
		docs[name] = raw
	}
	return docs, rows.Err()
}

// Put сохраняет документ (upsert).
func (r *Repository) Put(ctx context.Context, name string, raw json.RawMessage) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO settings (name, value) VALUES ($1, $2)
		ON CONFLICT (name) DO UPDATE SET value = EXCLUDED.value, updated_at = NOW()
	`, name, []byte(raw))
	if err != nil {
		return fmt.Errorf("ошибка сохранения настройки %s: %w", name, err)
	}
	return nil
}

// PutIfAbsent сохраняет документ, только если его ещё нет. true: вставлен.
func (r *Repository) PutIfAbsent(ctx context.Context, name string, raw json.RawMessage) (bool, error) {
	tag, err := r.db.Exec(ctx, `
		INSERT INTO settings (name, value) VALUES ($1, $2)
		ON CONFLICT (name) DO NOTHING
	`, name, []byte(raw))
	if err != nil {
		return false, fmt.Errorf("ошибка сохранения настройки %s: %w", name, err)
	}
	return tag.RowsAffected() > 0, nil
}

// Snapshot читает все документы разом.
func (r *Repository) Snapshot(ctx context.Context) (*Snapshot, error) {
	docs, err := r.All(ctx)
	if err != nil {
		return nil, err
	}
	return Decode(docs), nil
}

// Decode собирает снимок из сырых документов. Неизвестные имена игнорируются,
// битый документ логируется и считается отсутствующим (бонус = 0).
func Decode(docs map[string]json.RawMessage) *Snapshot {
	snap := &Snapshot{}
	for name, raw := range docs {
		if !Known(name) {
			continue
		}
		// Разбираем во временный снимок, чтобы битый документ не оставил полей
		tmp := &Snapshot{}
		if err := json.Unmarshal(raw, tmp.target(name)); err != nil {
			log.WithError(err).WithField("setting", name).Warn("Документ настроек не разобран, считаем его пустым")
			continue
		}
		copyField(snap, tmp, name)
	}
	return snap
}

// copyField переписывает поле name в dst значением из src.
func copyField(dst, src *Snapshot, name string) {
	switch name {
	case NameDirectBonus:
		dst.DirectBonus = src.DirectBonus
	case NameBuildingBonus:
		dst.BuildingBonus = src.BuildingBonus
	case NameMintingCommission:
		dst.MintingCommission = src.MintingCommission
	case NameLevelBonus:
		dst.LevelBonus = src.LevelBonus
	case NameMintingCap:
		dst.MintingCap = src.MintingCap
	case NameSwitchingFee:
		dst.SwitchingFee = src.SwitchingFee
	case NameDepositCommission:
		dst.DepositCommission = src.DepositCommission
	}
}
