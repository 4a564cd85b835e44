package core

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"
)

const (
	SettingPlatform        = "platform"
	SettingAPIUsername     = "apiusername"
	SettingAPIPassword     = "apipassword"
	SettingWebhookID       = "webhook_id"
	SettingWebhookSecret   = "webhook_secret"
	SettingBreakerStatus   = "breaker_last_status"
	SettingBreakerCounter  = "breaker_counter"
	SettingBreakerLastAt   = "breaker_last_request_at"
	settingWatermarkPrefix = "watermark_"
)

// WatermarkSettingKey returns the settings key holding a resource type's watermark.
func WatermarkSettingKey(resourceType string) string {
	return settingWatermarkPrefix + strings.ToLower(strings.TrimSpace(resourceType))
}

// Settings adds typed accessors on top of a SettingsStore.
type Settings struct {
	Store SettingsStore
}

func NewSettings(store SettingsStore) Settings {
	return Settings{Store: store}
}

func (s Settings) String(ctx context.Context, key string) (string, bool, error) {
	if s.Store == nil {
		return "", false, fmt.Errorf("core: settings store is not configured")
	}
	value, found, err := s.Store.Get(ctx, strings.TrimSpace(key))
	if err != nil {
		return "", false, err
	}
	return value, found, nil
}

func (s Settings) SetString(ctx context.Context, key string, value string) error {
	if s.Store == nil {
		return fmt.Errorf("core: settings store is not configured")
	}
	return s.Store.Set(ctx, strings.TrimSpace(key), value)
}

func (s Settings) Int(ctx context.Context, key string) (int, bool, error) {
	raw, found, err := s.String(ctx, key)
	if err != nil || !found || strings.TrimSpace(raw) == "" {
		return 0, false, err
	}
	value, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0, false, fmt.Errorf("core: setting %q is not an int: %w", key, err)
	}
	return value, true, nil
}

func (s Settings) SetInt(ctx context.Context, key string, value int) error {
	return s.SetString(ctx, key, strconv.Itoa(value))
}

// Time reads a timestamp stored as RFC3339 or unix seconds.
func (s Settings) Time(ctx context.Context, key string) (time.Time, bool, error) {
	raw, found, err := s.String(ctx, key)
	if err != nil || !found || strings.TrimSpace(raw) == "" {
		return time.Time{}, false, err
	}
	raw = strings.TrimSpace(raw)
	if parsed, parseErr := time.Parse(time.RFC3339Nano, raw); parseErr == nil {
		return parsed.UTC(), true, nil
	}
	if seconds, parseErr := strconv.ParseInt(raw, 10, 64); parseErr == nil {
		return time.Unix(seconds, 0).UTC(), true, nil
	}
	return time.Time{}, false, fmt.Errorf("core: setting %q is not a timestamp", key)
}

func (s Settings) SetTime(ctx context.Context, key string, value time.Time) error {
	return s.SetString(ctx, key, value.UTC().Format(time.RFC3339Nano))
}

// MemorySettingsStore is an in-process SettingsStore.
type MemorySettingsStore struct {
	mu     sync.RWMutex
	values map[string]string
}

func NewMemorySettingsStore(initial map[string]string) *MemorySettingsStore {
	values := make(map[string]string, len(initial))
	for key, value := range initial {
		values[key] = value
	}
	return &MemorySettingsStore{values: values}
}

func (s *MemorySettingsStore) Get(_ context.Context, key string) (string, bool, error) {
	if s == nil {
		return "", false, fmt.Errorf("core: settings store is nil")
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	value, ok := s.values[key]
	return value, ok, nil
}

func (s *MemorySettingsStore) Set(_ context.Context, key string, value string) error {
	if s == nil {
		return fmt.Errorf("core: settings store is nil")
	}
	if strings.TrimSpace(key) == "" {
		return fmt.Errorf("core: setting key is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.values == nil {
		s.values = map[string]string{}
	}
	s.values[key] = value
	return nil
}

var _ SettingsStore = (*MemorySettingsStore)(nil)
