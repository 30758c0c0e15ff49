package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/jsralgo/fxvault/internal/model"
)

const customFieldColumns = `id, entity_type, entity_id, field_name, field_type, field_value,
	 created_by, created_at, updated_at`

func scanCustomField(row pgx.Row) (model.CustomField, error) {
	var f model.CustomField
	err := row.Scan(
		&f.ID, &f.EntityType, &f.EntityID, &f.FieldName, &f.FieldType, &f.FieldValue,
		&f.CreatedBy, &f.CreatedAt, &f.UpdatedAt,
	)
	return f, err
}

// CreateCustomField inserts an ad-hoc field attached to an entity.
func (db *DB) CreateCustomField(ctx context.Context, in model.CustomFieldInput, createdBy int64) (model.CustomField, error) {
	f, err := scanCustomField(db.pool.QueryRow(ctx,
		`INSERT INTO custom_fields (entity_type, entity_id, field_name, field_type, field_value, created_by)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING `+customFieldColumns,
		in.EntityType, in.EntityID, in.FieldName, in.FieldType, in.FieldValue, createdBy,
	))
	if err != nil {
		return model.CustomField{}, fmt.Errorf("storage: create custom field: %w", err)
	}
	return f, nil
}

// GetCustomField retrieves a custom field by ID.
func (db *DB) GetCustomField(ctx context.Context, id int64) (model.CustomField, error) {
	f, err := scanCustomField(db.pool.QueryRow(ctx,
		`SELECT `+customFieldColumns+` FROM custom_fields WHERE id = $1`, id,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.CustomField{}, fmt.Errorf("storage: custom field %d: %w", id, ErrNotFound)
		}
		return model.CustomField{}, fmt.Errorf("storage: get custom field: %w", err)
	}
	return f, nil
}

// ListCustomFields returns the fields attached to one entity, ordered by id.
func (db *DB) ListCustomFields(ctx context.Context, entityType string, entityID int64) ([]model.CustomField, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT `+customFieldColumns+` FROM custom_fields
		 WHERE entity_type = $1 AND entity_id = $2 ORDER BY id`,
		entityType, entityID,
	)
	if err != nil {
		return nil, fmt.Errorf("storage: list custom fields: %w", err)
	}
	defer rows.Close()

	var fields []model.CustomField
	for rows.Next() {
		f, err := scanCustomField(rows)
		if err != nil {
			return nil, fmt.Errorf("storage: scan custom field: %w", err)
		}
		fields = append(fields, f)
	}
	return fields, rows.Err()
}

// UpdateCustomFieldValue sets a custom field's value.
func (db *DB) UpdateCustomFieldValue(ctx context.Context, id int64, value *string) (model.CustomField, error) {
	f, err := scanCustomField(db.pool.QueryRow(ctx,
		`UPDATE custom_fields SET field_value = $2, updated_at = now()
		 WHERE id = $1
		 RETURNING `+customFieldColumns,
		id, value,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.CustomField{}, fmt.Errorf("storage: custom field %d: %w", id, ErrNotFound)
		}
		return model.CustomField{}, fmt.Errorf("storage: update custom field: %w", err)
	}
	return f, nil
}

// DeleteCustomField removes a custom field by ID.
func (db *DB) DeleteCustomField(ctx context.Context, id int64) error {
	tag, err := db.pool.Exec(ctx,
		`DELETE FROM custom_fields WHERE id = $1`, id,
	)
	if err != nil {
		return fmt.Errorf("storage: delete custom field: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("storage: custom field %d: %w", id, ErrNotFound)
	}
	return nil
}
