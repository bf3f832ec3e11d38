package config

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"
)

// settingsKey is the system_settings row holding operator overrides.
const settingsKey = "runtime_settings"

// SettingsStore is the minimal persistence surface the settings manager
// needs. Satisfied by the storage repository.
type SettingsStore interface {
	GetSetting(ctx context.Context, key string) ([]byte, error)
	PutSetting(ctx context.Context, key string, value []byte) error
}

// RuntimeSettings is the subset of Config an operator can change at runtime.
// It persists across restarts; everything else comes from env/file.
type RuntimeSettings struct {
	Poller    PollerConfig    `json:"poller"`
	Detection DetectionConfig `json:"detection"`
}

// SettingsManager loads and saves operator overrides through the settings
// store and applies them to a LiveConfig.
type SettingsManager struct {
	logger     *zap.Logger
	store      SettingsStore
	liveConfig *LiveConfig
}

func NewSettingsManager(logger *zap.Logger, store SettingsStore, liveConfig *LiveConfig) *SettingsManager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SettingsManager{
		logger:     logger,
		store:      store,
		liveConfig: liveConfig,
	}
}

// LoadSettings reads saved overrides and merges them over the given base
// config. Returns nil when no overrides have been saved yet.
func (sm *SettingsManager) LoadSettings(ctx context.Context, base *Config) (*Config, error) {
	raw, err := sm.store.GetSetting(ctx, settingsKey)
	if err != nil {
		return nil, fmt.Errorf("load runtime settings: %w", err)
	}
	if raw == nil {
		return nil, nil
	}

	var saved RuntimeSettings
	if err := json.Unmarshal(raw, &saved); err != nil {
		return nil, fmt.Errorf("decode runtime settings: %w", err)
	}

	merged := base.Clone()
	merged.Poller = saved.Poller
	merged.Detection = saved.Detection

	if result := merged.Validate(); !result.Valid {
		return nil, &ConfigValidationError{Errors: result.Errors}
	}

	sm.logger.Info("runtime settings restored",
		zap.Float64("whaleThreshold", merged.Detection.WhaleThreshold),
		zap.Int("coordWallets", merged.Detection.CoordWallets),
		zap.Bool("paused", merged.Poller.Paused),
	)

	return merged, nil
}

// SaveSettings persists the runtime-adjustable sections of cfg.
func (sm *SettingsManager) SaveSettings(ctx context.Context, cfg *Config) error {
	settings := RuntimeSettings{
		Poller:    cfg.Poller,
		Detection: cfg.Detection,
	}

	raw, err := json.Marshal(settings)
	if err != nil {
		return fmt.Errorf("encode runtime settings: %w", err)
	}

	if err := sm.store.PutSetting(ctx, settingsKey, raw); err != nil {
		return fmt.Errorf("save runtime settings: %w", err)
	}

	return nil
}

// Apply validates and applies cfg to the live config, then persists the
// runtime sections. Persistence failure does not roll back the live update;
// it is logged and the overrides simply will not survive a restart.
func (sm *SettingsManager) Apply(ctx context.Context, cfg *Config) error {
	if err := sm.liveConfig.Update(cfg); err != nil {
		return err
	}
	if err := sm.SaveSettings(ctx, cfg); err != nil {
		sm.logger.Warn("failed to persist runtime settings", zap.Error(err))
	}
	return nil
}
