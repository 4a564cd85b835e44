package sqlstore

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	repositorycache "github.com/goliatone/go-repository-cache/cache"
	"github.com/goliatone/go-tmsync/core"
	"github.com/uptrace/bun"
)

type SettingsStore struct {
	db *bun.DB
}

func NewSettingsStore(db *bun.DB) (*SettingsStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	return &SettingsStore{db: db}, nil
}

func (s *SettingsStore) Get(ctx context.Context, key string) (string, bool, error) {
	if s == nil || s.db == nil {
		return "", false, fmt.Errorf("sqlstore: settings store is not configured")
	}
	row := &settingRow{}
	err := s.db.NewSelect().Model(row).Where("?TableAlias.key = ?", strings.TrimSpace(key)).Limit(1).Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return "", false, nil
		}
		return "", false, err
	}
	return row.Value, true, nil
}

func (s *SettingsStore) Set(ctx context.Context, key string, value string) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: settings store is not configured")
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return fmt.Errorf("sqlstore: setting key is required")
	}
	row := &settingRow{Key: key, Value: value, UpdatedAt: time.Now().UTC()}
	_, err := s.db.NewInsert().
		Model(row).
		On("CONFLICT (key) DO UPDATE").
		Set("value = EXCLUDED.value").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)
	return err
}

const settingsCacheKeyPrefix = "go-tmsync::settings::v1"

// CachedSettingsStore is a read-through cache over a SettingsStore.
// Set writes through and invalidates the key. Within a process, fills and
// writes are serialized so a fill that read the old value cannot land after
// the invalidation. Other processes sharing the cache may still refill a
// stale value between their read and this process's delete.
type CachedSettingsStore struct {
	base  core.SettingsStore
	cache repositorycache.CacheService

	mu sync.RWMutex
}

type cachedSetting struct {
	Value string
	Found bool
}

func NewCachedSettingsStore(base core.SettingsStore, cacheService repositorycache.CacheService) (*CachedSettingsStore, error) {
	if base == nil {
		return nil, fmt.Errorf("sqlstore: base settings store is required")
	}
	if cacheService == nil {
		return nil, fmt.Errorf("sqlstore: settings cache service is required")
	}
	return &CachedSettingsStore{base: base, cache: cacheService}, nil
}

// SettingsCacheKey returns go-tmsync::settings::v1::<key> with the key
// URL-path escaped.
func SettingsCacheKey(key string) (string, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return "", fmt.Errorf("sqlstore: setting key is required")
	}
	return settingsCacheKeyPrefix + "::" + url.PathEscape(key), nil
}

func (s *CachedSettingsStore) Get(ctx context.Context, key string) (string, bool, error) {
	if s == nil || s.base == nil || s.cache == nil {
		return "", false, fmt.Errorf("sqlstore: cached settings store is not configured")
	}
	cacheKey, err := SettingsCacheKey(key)
	if err != nil {
		return "", false, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	entry, err := repositorycache.GetOrFetch(ctx, s.cache, cacheKey, func(ctx context.Context) (cachedSetting, error) {
		value, found, fetchErr := s.base.Get(ctx, key)
		if fetchErr != nil {
			return cachedSetting{}, fetchErr
		}
		return cachedSetting{Value: value, Found: found}, nil
	})
	if err != nil {
		return "", false, err
	}
	return entry.Value, entry.Found, nil
}

func (s *CachedSettingsStore) Set(ctx context.Context, key string, value string) error {
	if s == nil || s.base == nil || s.cache == nil {
		return fmt.Errorf("sqlstore: cached settings store is not configured")
	}
	cacheKey, err := SettingsCacheKey(key)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.cache.Delete(ctx, cacheKey); err != nil {
		return err
	}
	if err := s.base.Set(ctx, key, value); err != nil {
		return err
	}
	return s.cache.Delete(ctx, cacheKey)
}
