package models

import (
	"time"

	"gorm.io/datatypes"
)

// SystemSetting is a key/value row for operator-adjustable runtime state.
type SystemSetting struct {
	Key       string         `gorm:"primaryKey;size:64" json:"key"`
	Value     datatypes.JSON `gorm:"type:jsonb" json:"value"`
	UpdatedAt time.Time      `gorm:"type:timestamptz;autoUpdateTime" json:"updated_at"`
}

func (SystemSetting) TableName() string { return "system_settings" }
