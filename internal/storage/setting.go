package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"feedsync/internal/domain"
)

type SettingStore struct {
	db *DB
}

func NewSettingStore(db *DB) *SettingStore {
	return &SettingStore{db: db}
}

func (s *SettingStore) List(ctx context.Context) ([]domain.Setting, error) {
	settings := []domain.Setting{}
	if err := sqlx.SelectContext(ctx, s.db.executor(ctx), &settings, `SELECT key, value FROM settings ORDER BY key`); err != nil {
		return nil, fmt.Errorf("list settings: %w", err)
	}
	return settings, nil
}

func (s *SettingStore) Get(ctx context.Context, key domain.SettingKey) (domain.Setting, error) {
	var setting domain.Setting
	query := s.db.rebind(`SELECT key, value FROM settings WHERE key = ?`)

	err := sqlx.GetContext(ctx, s.db.executor(ctx), &setting, query, key)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Setting{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.Setting{}, fmt.Errorf("get setting %s: %w", key, err)
	}
	return setting, nil
}

// Save writes a validated setting, inserting the key when missing.
func (s *SettingStore) Save(ctx context.Context, setting domain.Setting) error {
	if err := domain.ValidateSetting(setting.Key, setting.Value); err != nil {
		return err
	}

	query := s.db.rebind(`
		INSERT INTO settings (key, value) VALUES (?, ?)
		ON CONFLICT (key) DO UPDATE SET value = excluded.value`)

	return s.db.write(ctx, func(ext sqlx.ExtContext) error {
		if _, err := ext.ExecContext(ctx, query, setting.Key, setting.Value); err != nil {
			return fmt.Errorf("save setting %s: %w", setting.Key, err)
		}
		return nil
	})
}

// Load returns the typed settings, with defaults for missing or invalid rows.
func (s *SettingStore) Load(ctx context.Context) (domain.Settings, error) {
	rows, err := s.List(ctx)
	if err != nil {
		return domain.Settings{}, err
	}
	return domain.SettingsFrom(rows), nil
}
