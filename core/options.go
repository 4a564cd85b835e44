package core

import (
	"context"
	"fmt"
	"strings"

	"github.com/goliatone/go-config/cfgx"
	goerrors "github.com/goliatone/go-errors"
	opts "github.com/goliatone/go-options"
)

type ErrorMapper func(err error) *goerrors.Error

type ConfigProvider interface {
	Load(ctx context.Context, defaults Config) (Config, error)
}

type RawConfigLoader interface {
	LoadRaw(ctx context.Context) (map[string]any, error)
}

type OptionsResolver interface {
	Resolve(defaults Config, loaded Config, runtime Config) (Config, error)
}

// ResolveConfig layers defaults, provider output and runtime overrides.
func ResolveConfig(ctx context.Context, runtime Config, provider ConfigProvider, resolver OptionsResolver) (Config, error) {
	if provider == nil {
		provider = NewCfgxConfigProvider(nil)
	}
	if resolver == nil {
		resolver = GoOptionsResolver{}
	}
	defaults := DefaultConfig()
	loaded, err := provider.Load(ctx, defaults)
	if err != nil {
		return Config{}, err
	}
	return resolver.Resolve(defaults, loaded, runtime)
}

type StaticRawConfigLoader struct {
	Values map[string]any
}

func (l StaticRawConfigLoader) LoadRaw(context.Context) (map[string]any, error) {
	if len(l.Values) == 0 {
		return map[string]any{}, nil
	}
	out := make(map[string]any, len(l.Values))
	for key, value := range l.Values {
		out[key] = value
	}
	return out, nil
}

type CfgxConfigProvider struct {
	Loader RawConfigLoader
}

func NewCfgxConfigProvider(loader RawConfigLoader) *CfgxConfigProvider {
	return &CfgxConfigProvider{Loader: loader}
}

func (p *CfgxConfigProvider) Load(ctx context.Context, defaults Config) (Config, error) {
	if p == nil {
		return defaults, nil
	}
	loader := p.Loader
	if loader == nil {
		loader = StaticRawConfigLoader{}
	}
	raw, err := loader.LoadRaw(ctx)
	if err != nil {
		return Config{}, err
	}
	cfg, err := cfgx.Build[Config](raw,
		cfgx.WithDefaults(defaults),
		cfgx.WithValidator[Config]((*Config).Validate),
	)
	if err != nil {
		return Config{}, err
	}
	return cfg, nil
}

type GoOptionsResolver struct{}

func (GoOptionsResolver) Resolve(defaults Config, loaded Config, runtime Config) (Config, error) {
	defaultLayer := configToLayerMap(defaults, true)
	loadedLayer := configToLayerMap(loaded, false)
	runtimeLayer := configToLayerMap(runtime, false)

	stack, err := opts.NewStack(
		opts.NewLayer(
			opts.NewScope("defaults", 0),
			defaultLayer,
			opts.WithSnapshotID[map[string]any]("defaults"),
		),
		opts.NewLayer(
			opts.NewScope("config", 10),
			loadedLayer,
			opts.WithSnapshotID[map[string]any]("config"),
		),
		opts.NewLayer(
			opts.NewScope("runtime", 20),
			runtimeLayer,
			opts.WithSnapshotID[map[string]any]("runtime"),
		),
	)
	if err != nil {
		return Config{}, fmt.Errorf("core: options stack build failed: %w", err)
	}
	merged, err := stack.Merge()
	if err != nil {
		return Config{}, fmt.Errorf("core: options merge failed: %w", err)
	}
	resolved, err := cfgx.Build[Config](merged.Value,
		cfgx.WithDefaults(defaults),
		cfgx.WithValidator[Config]((*Config).Validate),
	)
	if err != nil {
		return Config{}, err
	}
	if err := resolved.Validate(); err != nil {
		return Config{}, err
	}
	return resolved, nil
}

func configToLayerMap(cfg Config, includeZero bool) map[string]any {
	layer := map[string]any{}
	if includeZero || strings.TrimSpace(cfg.ServiceName) != "" {
		layer["service_name"] = cfg.ServiceName
	}

	api := map[string]any{}
	if includeZero || strings.TrimSpace(cfg.API.Scheme) != "" {
		api["scheme"] = cfg.API.Scheme
	}
	if includeZero || strings.TrimSpace(cfg.API.BasePath) != "" {
		api["base_path"] = cfg.API.BasePath
	}
	if includeZero || cfg.API.Timeout > 0 {
		api["timeout"] = cfg.API.Timeout
	}
	if includeZero || cfg.API.PageSize > 0 {
		api["page_size"] = cfg.API.PageSize
	}
	if includeZero || cfg.API.ResponseBodyLimit > 0 {
		api["response_body_limit"] = cfg.API.ResponseBodyLimit
	}
	if len(api) > 0 {
		layer["api"] = api
	}

	polling := map[string]any{}
	if includeZero || len(cfg.Polling.ResourceTypes) > 0 {
		polling["resource_types"] = append([]string(nil), cfg.Polling.ResourceTypes...)
	}
	if includeZero || cfg.Polling.Strict {
		polling["strict"] = cfg.Polling.Strict
	}
	if includeZero || len(cfg.Polling.Expansions) > 0 {
		expansions := make(map[string]any, len(cfg.Polling.Expansions))
		for key, paths := range cfg.Polling.Expansions {
			expansions[key] = append([]string(nil), paths...)
		}
		polling["expansions"] = expansions
	}
	if len(polling) > 0 {
		layer["polling"] = polling
	}

	webhook := map[string]any{}
	if includeZero || cfg.Webhook.LockWait > 0 {
		webhook["lock_wait"] = cfg.Webhook.LockWait
	}
	if includeZero || cfg.Webhook.Async {
		webhook["async"] = cfg.Webhook.Async
	}
	if includeZero || strings.TrimSpace(cfg.Webhook.SignatureHeader) != "" {
		webhook["signature_header"] = cfg.Webhook.SignatureHeader
	}
	if len(webhook) > 0 {
		layer["webhook"] = webhook
	}

	breaker := map[string]any{}
	if includeZero || cfg.Breaker.AlertThreshold > 0 {
		breaker["alert_threshold"] = cfg.Breaker.AlertThreshold
	}
	if includeZero || cfg.Breaker.AlertOnTransition {
		breaker["alert_on_transition"] = cfg.Breaker.AlertOnTransition
	}
	if len(breaker) > 0 {
		layer["breaker"] = breaker
	}

	store := map[string]any{}
	if includeZero || strings.TrimSpace(cfg.Store.Driver) != "" {
		store["driver"] = cfg.Store.Driver
	}
	if includeZero || strings.TrimSpace(cfg.Store.DSN) != "" {
		store["dsn"] = cfg.Store.DSN
	}
	if includeZero || cfg.Store.Debug {
		store["debug"] = cfg.Store.Debug
	}
	if len(store) > 0 {
		layer["store"] = store
	}
	return layer
}
