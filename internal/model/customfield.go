package model

import (
	"fmt"
	"time"
)

// FieldType is the declared type of a custom field value.
type FieldType string

const (
	FieldText    FieldType = "text"
	FieldNumber  FieldType = "number"
	FieldBoolean FieldType = "boolean"
	FieldDate    FieldType = "date"
)

// CustomField is an ad-hoc (entityType, entityId) → (name, type, value)
// tuple: a lighter-weight alternative to a real schema change.
type CustomField struct {
	ID         int64     `json:"id"`
	EntityType string    `json:"entity_type"`
	EntityID   int64     `json:"entity_id"`
	FieldName  string    `json:"field_name"`
	FieldType  FieldType `json:"field_type"`
	FieldValue *string   `json:"field_value,omitempty"`
	CreatedBy  int64     `json:"created_by"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// CustomFieldInput is the payload for creating a custom field.
type CustomFieldInput struct {
	EntityType string    `json:"entity_type"`
	EntityID   int64     `json:"entity_id"`
	FieldName  string    `json:"field_name"`
	FieldType  FieldType `json:"field_type"`
	FieldValue *string   `json:"field_value,omitempty"`
}

// ValidateCustomFieldInput checks required fields and the type enum.
func ValidateCustomFieldInput(in CustomFieldInput) error {
	if in.EntityType == "" {
		return fmt.Errorf("entity_type is required")
	}
	if in.EntityID <= 0 {
		return fmt.Errorf("entity_id is required")
	}
	if in.FieldName == "" {
		return fmt.Errorf("field_name is required")
	}
	switch in.FieldType {
	case FieldText, FieldNumber, FieldBoolean, FieldDate:
	default:
		return fmt.Errorf("field_type must be one of text, number, boolean, date")
	}
	return nil
}
