package tmsync

import (
	"context"

	"github.com/goliatone/go-tmsync/core"
)

type Config = core.Config

type APIConfig = core.APIConfig
type PollingConfig = core.PollingConfig
type WebhookConfig = core.WebhookConfig
type BreakerConfig = core.BreakerConfig
type StoreConfig = core.StoreConfig

type Record = core.Record
type Criteria = core.Criteria
type MergeRequest = core.MergeRequest
type PollRun = core.PollRun
type RequestLogEntry = core.RequestLogEntry
type RequestLogFilter = core.RequestLogFilter

type StoreProvider = core.StoreProvider
type ResourceLocker = core.ResourceLocker
type AccountDirectory = core.AccountDirectory
type Notifier = core.Notifier

func DefaultConfig() Config {
	return core.DefaultConfig()
}

// ResolveConfig layers DefaultConfig, provider output and runtime overrides
// the same way New does.
func ResolveConfig(ctx context.Context, runtime Config, provider core.ConfigProvider, resolver core.OptionsResolver) (Config, error) {
	cfg, err := core.ResolveConfig(ctx, runtime, provider, resolver)
	if err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
