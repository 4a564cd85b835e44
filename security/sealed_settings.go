package security

import (
	"context"
	"fmt"
	"strings"

	"github.com/goliatone/go-tmsync/core"
)

// DefaultSealedKeys are the settings holding credentials.
var DefaultSealedKeys = []string{core.SettingAPIPassword, core.SettingWebhookSecret}

// SealedSettings encrypts selected keys on Set and decrypts them on Get.
// Plaintext values written before sealing was enabled are returned as stored
// and sealed on their next write.
type SealedSettings struct {
	inner  core.SettingsStore
	cipher SecretCipher
	keys   map[string]struct{}
}

func NewSealedSettings(inner core.SettingsStore, cipher SecretCipher, keys ...string) (*SealedSettings, error) {
	if inner == nil {
		return nil, fmt.Errorf("security: settings store is required")
	}
	if cipher == nil {
		return nil, fmt.Errorf("security: cipher is required")
	}
	if len(keys) == 0 {
		keys = DefaultSealedKeys
	}
	sealed := make(map[string]struct{}, len(keys))
	for _, key := range keys {
		if trimmed := strings.TrimSpace(key); trimmed != "" {
			sealed[trimmed] = struct{}{}
		}
	}
	return &SealedSettings{inner: inner, cipher: cipher, keys: sealed}, nil
}

func (s *SealedSettings) Get(ctx context.Context, key string) (string, bool, error) {
	value, found, err := s.inner.Get(ctx, key)
	if err != nil || !found || !s.sealed(key) || !IsSealed(value) {
		return value, found, err
	}
	plaintext, err := s.cipher.Decrypt(ctx, []byte(value))
	if err != nil {
		return "", false, fmt.Errorf("security: unseal setting %q: %w", key, err)
	}
	return string(plaintext), true, nil
}

func (s *SealedSettings) Set(ctx context.Context, key string, value string) error {
	if !s.sealed(key) || value == "" {
		return s.inner.Set(ctx, key, value)
	}
	ciphertext, err := s.cipher.Encrypt(ctx, []byte(value))
	if err != nil {
		return fmt.Errorf("security: seal setting %q: %w", key, err)
	}
	return s.inner.Set(ctx, key, string(ciphertext))
}

func (s *SealedSettings) sealed(key string) bool {
	_, ok := s.keys[strings.TrimSpace(key)]
	return ok
}

var _ core.SettingsStore = (*SealedSettings)(nil)
