package model

import (
	"fmt"
	"time"
)

// SettingType classifies a stored system setting.
type SettingType string

const (
	SettingAPIKey      SettingType = "api_key"
	SettingConfig      SettingType = "config"
	SettingFeatureFlag SettingType = "feature_flag"
)

// SettingKeyCompletionAPIKey is the settings key holding the completion
// service credential. Checked before the environment fallback.
const SettingKeyCompletionAPIKey = "grok_api_key"

// Setting is a stored system setting (API keys, configuration, flags).
type Setting struct {
	ID          int64       `json:"id"`
	Key         string      `json:"key"`
	Value       *string     `json:"value,omitempty"`
	SettingType SettingType `json:"setting_type"`
	Description *string     `json:"description,omitempty"`
	IsEncrypted bool        `json:"is_encrypted"`
	UpdatedBy   *int64      `json:"updated_by,omitempty"`
	CreatedAt   time.Time   `json:"created_at"`
	UpdatedAt   time.Time   `json:"updated_at"`
}

// SettingInput is the payload for PUT /v1/settings/{key}.
type SettingInput struct {
	Value       *string     `json:"value"`
	SettingType SettingType `json:"setting_type,omitempty"`
	Description *string     `json:"description,omitempty"`
}

// ValidateSettingInput checks the setting type enum; empty defaults to config.
func ValidateSettingInput(in SettingInput) error {
	switch in.SettingType {
	case "", SettingAPIKey, SettingConfig, SettingFeatureFlag:
		return nil
	}
	return fmt.Errorf("setting_type must be one of api_key, config, feature_flag")
}
