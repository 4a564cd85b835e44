package sync

import (
	"context"
	"strings"
	"time"

	"github.com/goliatone/go-tmsync/core"
)

// WatermarkStore persists the per resource type high-water mark.
type WatermarkStore interface {
	Load(ctx context.Context, resourceType string) (time.Time, error)
	// Advance stores w only when it is after the stored value.
	Advance(ctx context.Context, resourceType string, w time.Time) (bool, error)
}

// SettingsWatermarkStore keeps watermarks in the host settings store.
type SettingsWatermarkStore struct {
	Settings core.Settings
}

func NewSettingsWatermarkStore(store core.SettingsStore) *SettingsWatermarkStore {
	return &SettingsWatermarkStore{Settings: core.NewSettings(store)}
}

// Load returns core.Epoch when the type was never polled.
func (s *SettingsWatermarkStore) Load(ctx context.Context, resourceType string) (time.Time, error) {
	value, found, err := s.Settings.Time(ctx, core.WatermarkSettingKey(strings.TrimSpace(resourceType)))
	if err != nil {
		return time.Time{}, err
	}
	if !found {
		return core.Epoch, nil
	}
	return value, nil
}

func (s *SettingsWatermarkStore) Advance(ctx context.Context, resourceType string, w time.Time) (bool, error) {
	current, err := s.Load(ctx, resourceType)
	if err != nil {
		return false, err
	}
	if !w.After(current) {
		return false, nil
	}
	if err := s.Settings.SetTime(ctx, core.WatermarkSettingKey(strings.TrimSpace(resourceType)), w); err != nil {
		return false, err
	}
	return true, nil
}

var _ WatermarkStore = (*SettingsWatermarkStore)(nil)
