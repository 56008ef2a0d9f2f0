// Package settings (service.go): чтение снимка, изменение документов админом
// и первичное заполнение из YAML.
package settings

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"

	log "github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"serotonyl.ru/mlm-platform/internal/common"
)

// Service управляет настройками.
type Service struct {
	repo *Repository
}

// NewService создаёт сервис настроек.
func NewService(repo *Repository) *Service {
	return &Service{repo: repo}
}

// Snapshot возвращает текущий снимок всех документов.
func (s *Service) Snapshot(ctx context.Context) (*Snapshot, error) {
	return s.repo.Snapshot(ctx)
}

// List возвращает все сохранённые документы как есть.
func (s *Service) List(ctx context.Context) (map[string]json.RawMessage, error) {
	return s.repo.All(ctx)
}

// Put проверяет и сохраняет документ. Неизвестное имя: ErrSettingNotFound,
// тело, не подходящее под схему документа, даёт ErrInvalidRequest.
func (s *Service) Put(ctx context.Context, name string, raw json.RawMessage) error {
	normalized, err := normalize(name, raw)
	if err != nil {
		return err
	}
	if err := s.repo.Put(ctx, name, normalized); err != nil {
		return err
	}
	log.WithField("setting", name).Info("Настройка обновлена")
	return nil
}

// normalize разбирает документ строго по схеме и сериализует обратно.
func normalize(name string, raw json.RawMessage) (json.RawMessage, error) {
	target := (&Snapshot{}).target(name)
	if target == nil {
		return nil, common.ErrSettingNotFound
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(target); err != nil {
		return nil, common.ErrInvalidRequest
	}
	out, err := json.Marshal(target)
	if err != nil {
		return nil, fmt.Errorf("ошибка сериализации настройки %s: %w", name, err)
	}
	return out, nil
}

// SeedFromYAML заполняет отсутствующие документы из YAML-файла.
// Уже сохранённые документы не перезаписываются. Возвращает число вставленных.
//
// Формат файла использует те же ключи, что и Snapshot:
//
//	directBonus:
//	  percentage: "10"
//	mintingCap:
//	  percentage: "250"
func (s *Service) SeedFromYAML(ctx context.Context, path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("не удалось прочитать %s: %w", path, err)
	}
	docs, err := ParseSeed(data)
	if err != nil {
		return 0, err
	}

	inserted := 0
	for _, name := range Names {
		raw, ok := docs[name]
		if !ok {
			continue
		}
		added, err := s.repo.PutIfAbsent(ctx, name, raw)
		if err != nil {
			return inserted, err
		}
		if added {
			inserted++
			log.WithField("setting", name).Info("Настройка заполнена из YAML")
		}
	}
	return inserted, nil
}

// ParseSeed разбирает YAML с документами настроек в JSON по именам.
// Присутствуют только документы, явно указанные в файле.
func ParseSeed(data []byte) (map[string]json.RawMessage, error) {
	var sections map[string]yaml.Node
	if err := yaml.Unmarshal(data, &sections); err != nil {
		return nil, fmt.Errorf("ошибка разбора YAML настроек: %w", err)
	}

	docs := make(map[string]json.RawMessage, len(sections))
	for name, node := range sections {
		target := (&Snapshot{}).target(name)
		if target == nil {
			return nil, fmt.Errorf("неизвестная настройка %q в YAML", name)
		}
		if err := node.Decode(target); err != nil {
			return nil, fmt.Errorf("настройка %s: %w", name, err)
		}
		raw, err := json.Marshal(target)
		if err != nil {
			return nil, fmt.Errorf("настройка %s: %w", name, err)
		}
		docs[name] = raw
	}
	return docs, nil
}
