package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/jsralgo/fxvault/internal/model"
)

const settingColumns = `id, key, value, setting_type, description, is_encrypted, updated_by,
	 created_at, updated_at`

func scanSetting(row pgx.Row) (model.Setting, error) {
	var s model.Setting
	err := row.Scan(
		&s.ID, &s.Key, &s.Value, &s.SettingType, &s.Description, &s.IsEncrypted, &s.UpdatedBy,
		&s.CreatedAt, &s.UpdatedAt,
	)
	return s, err
}

// GetSetting retrieves a setting by key.
func (db *DB) GetSetting(ctx context.Context, key string) (model.Setting, error) {
	s, err := scanSetting(db.pool.QueryRow(ctx,
		`SELECT `+settingColumns+` FROM settings WHERE key = $1`, key,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Setting{}, fmt.Errorf("storage: setting %s: %w", key, ErrNotFound)
		}
		return model.Setting{}, fmt.Errorf("storage: get setting: %w", err)
	}
	return s, nil
}

// ListSettings returns every setting ordered by key.
func (db *DB) ListSettings(ctx context.Context) ([]model.Setting, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT `+settingColumns+` FROM settings ORDER BY key`,
	)
	if err != nil {
		return nil, fmt.Errorf("storage: list settings: %w", err)
	}
	defer rows.Close()

	var settings []model.Setting
	for rows.Next() {
		s, err := scanSetting(rows)
		if err != nil {
			return nil, fmt.Errorf("storage: scan setting: %w", err)
		}
		settings = append(settings, s)
	}
	return settings, rows.Err()
}

// PutSetting creates or replaces a setting by key.
func (db *DB) PutSetting(ctx context.Context, key string, in model.SettingInput, updatedBy int64) (model.Setting, error) {
	settingType := in.SettingType
	if settingType == "" {
		settingType = model.SettingConfig
	}
	s, err := scanSetting(db.pool.QueryRow(ctx,
		`INSERT INTO settings (key, value, setting_type, description, updated_by)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (key) DO UPDATE SET
		   value = EXCLUDED.value,
		   setting_type = EXCLUDED.setting_type,
		   description = COALESCE(EXCLUDED.description, settings.description),
		   updated_by = EXCLUDED.updated_by,
		   updated_at = now()
		 RETURNING `+settingColumns,
		key, in.Value, settingType, in.Description, updatedBy,
	))
	if err != nil {
		return model.Setting{}, fmt.Errorf("storage: put setting: %w", err)
	}
	return s, nil
}

// DeleteSetting removes a setting by key.
func (db *DB) DeleteSetting(ctx context.Context, key string) error {
	tag, err := db.pool.Exec(ctx,
		`DELETE FROM settings WHERE key = $1`, key,
	)
	if err != nil {
		return fmt.Errorf("storage: delete setting: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("storage: setting %s: %w", key, ErrNotFound)
	}
	return nil
}
