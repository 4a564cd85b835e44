package core

import (
	"fmt"
	"strings"
	"time"
)

const (
	DefaultAPIBasePath     = "/api/2012-02-01/auth/resources"
	DefaultRequestTimeout  = 30 * time.Second
	DefaultPageSize        = 100
	MaxPageSize            = 250
	DefaultResponseLimit   = 8 << 20
	DefaultWebhookLockWait = time.Second
	DefaultSignatureHeader = "X-Signature"
	DefaultAlertThreshold  = 5
)

type APIConfig struct {
	Scheme            string        `koanf:"scheme" mapstructure:"scheme"`
	BasePath          string        `koanf:"base_path" mapstructure:"base_path"`
	Timeout           time.Duration `koanf:"timeout" mapstructure:"timeout"`
	PageSize          int           `koanf:"page_size" mapstructure:"page_size"`
	ResponseBodyLimit int64         `koanf:"response_body_limit" mapstructure:"response_body_limit"`

	// MaxThrottleBackoff caps the wait after a 429 without Retry-After.
	MaxThrottleBackoff time.Duration `koanf:"max_throttle_backoff" mapstructure:"max_throttle_backoff"`
}

type PollingConfig struct {
	ResourceTypes []string            `koanf:"resource_types" mapstructure:"resource_types"`
	Strict        bool                `koanf:"strict" mapstructure:"strict"`
	Expansions    map[string][]string `koanf:"expansions" mapstructure:"expansions"`
}

type WebhookConfig struct {
	LockWait        time.Duration `koanf:"lock_wait" mapstructure:"lock_wait"`
	Async           bool          `koanf:"async" mapstructure:"async"`
	SignatureHeader string        `koanf:"signature_header" mapstructure:"signature_header"`
}

type BreakerConfig struct {
	AlertThreshold    int  `koanf:"alert_threshold" mapstructure:"alert_threshold"`
	AlertOnTransition bool `koanf:"alert_on_transition" mapstructure:"alert_on_transition"`
}

type StoreConfig struct {
	Driver string `koanf:"driver" mapstructure:"driver"`
	DSN    string `koanf:"dsn" mapstructure:"dsn"`
	Debug  bool   `koanf:"debug" mapstructure:"debug"`
}

type Config struct {
	ServiceName string        `koanf:"service_name" mapstructure:"service_name"`
	API         APIConfig     `koanf:"api" mapstructure:"api"`
	Polling     PollingConfig `koanf:"polling" mapstructure:"polling"`
	Webhook     WebhookConfig `koanf:"webhook" mapstructure:"webhook"`
	Breaker     BreakerConfig `koanf:"breaker" mapstructure:"breaker"`
	Store       StoreConfig   `koanf:"store" mapstructure:"store"`
}

func DefaultConfig() Config {
	return Config{
		ServiceName: "tmsync",
		API: APIConfig{
			Scheme:            "https",
			BasePath:          DefaultAPIBasePath,
			Timeout:           DefaultRequestTimeout,
			PageSize:          DefaultPageSize,
			ResponseBodyLimit: DefaultResponseLimit,
		},
		Polling: PollingConfig{
			ResourceTypes: []string{
				"Contacts",
				"EventTemplates",
				"Events",
				"OnlineActivities",
				"Registrations",
				"ContactMergeRequests",
			},
			Expansions: map[string][]string{
				"Registrations": {
					"Contact",
					"Event/EventTemplate",
					"OnlineActivity/EventTemplate",
				},
				"Events": {"EventTemplate"},
			},
		},
		Webhook: WebhookConfig{
			LockWait:        DefaultWebhookLockWait,
			SignatureHeader: DefaultSignatureHeader,
		},
		Breaker: BreakerConfig{
			AlertThreshold:    DefaultAlertThreshold,
			AlertOnTransition: true,
		},
		Store: StoreConfig{
			Driver: "sqlite3",
		},
	}
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.ServiceName) == "" {
		return fmt.Errorf("core: service_name is required")
	}
	if c.API.Timeout < 0 {
		return fmt.Errorf("core: api.timeout must be positive")
	}
	if c.API.PageSize < 0 {
		return fmt.Errorf("core: api.page_size must be positive")
	}
	if c.Webhook.LockWait < 0 {
		return fmt.Errorf("core: webhook.lock_wait must be positive")
	}
	if c.Breaker.AlertThreshold < 0 {
		return fmt.Errorf("core: breaker.alert_threshold must be positive")
	}
	switch strings.ToLower(strings.TrimSpace(c.Store.Driver)) {
	case "", "sqlite3", "sqlite", "postgres":
	default:
		return fmt.Errorf("core: store.driver %q is invalid", c.Store.Driver)
	}
	seen := map[string]struct{}{}
	for _, resourceType := range c.Polling.ResourceTypes {
		key := strings.ToLower(strings.TrimSpace(resourceType))
		if key == "" {
			return fmt.Errorf("core: polling.resource_types contains an empty entry")
		}
		if _, ok := seen[key]; ok {
			return fmt.Errorf("core: polling.resource_types contains duplicate %q", resourceType)
		}
		seen[key] = struct{}{}
	}
	return nil
}

// EffectivePageSize clamps the configured page size to the source API cap.
func (c APIConfig) EffectivePageSize() int {
	size := c.PageSize
	if size <= 0 {
		size = DefaultPageSize
	}
	if size > MaxPageSize {
		size = MaxPageSize
	}
	return size
}

func (c APIConfig) EffectiveTimeout() time.Duration {
	if c.Timeout <= 0 {
		return DefaultRequestTimeout
	}
	return c.Timeout
}

func (c PollingConfig) ExpansionsFor(resourceType string) []string {
	for key, paths := range c.Expansions {
		if strings.EqualFold(strings.TrimSpace(key), strings.TrimSpace(resourceType)) {
			return append([]string(nil), paths...)
		}
	}
	return nil
}

func (c WebhookConfig) EffectiveLockWait() time.Duration {
	if c.LockWait <= 0 {
		return DefaultWebhookLockWait
	}
	return c.LockWait
}
