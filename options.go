package tmsync

import (
	"github.com/goliatone/go-tmsync/core"
	"github.com/goliatone/go-tmsync/security"
	"github.com/goliatone/go-tmsync/transport"
	"github.com/goliatone/go-tmsync/webhooks"
)

type engineBuilder struct {
	runtimeConfig    Config
	logger           core.Logger
	loggerProvider   core.LoggerProvider
	metricsRecorder  core.MetricsRecorder
	errorMapper      core.ErrorMapper
	configProvider   core.ConfigProvider
	optionsResolver  core.OptionsResolver
	stores           core.StoreProvider
	recordStore      core.RecordStore
	settingsStore    core.SettingsStore
	associationStore core.AssociationStore
	mergeStore       core.MergeRequestStore
	requestLog       core.RequestLogStore
	pollRuns         core.PollRunStore
	locker           core.ResourceLocker
	accounts         core.AccountDirectory
	notifier         core.Notifier
	httpClient       transport.HTTPDoer
	credentials      transport.CredentialSource
	jobEnqueuer      core.JobEnqueuer
	burst            webhooks.BurstController
	throttle         transport.Throttle
	secretCipher     security.SecretCipher
	webhookSecret    string
	handlers         map[string]webhooks.Handler
	extensions       *ExtensionHooks
}

type Option func(*engineBuilder)

func WithLogger(logger core.Logger) Option {
	return func(b *engineBuilder) {
		b.logger = logger
	}
}

func WithLoggerProvider(provider core.LoggerProvider) Option {
	return func(b *engineBuilder) {
		b.loggerProvider = provider
	}
}

func WithMetricsRecorder(recorder core.MetricsRecorder) Option {
	return func(b *engineBuilder) {
		b.metricsRecorder = recorder
	}
}

func WithErrorMapper(mapper core.ErrorMapper) Option {
	return func(b *engineBuilder) {
		b.errorMapper = mapper
	}
}

func WithConfigProvider(provider core.ConfigProvider) Option {
	return func(b *engineBuilder) {
		b.configProvider = provider
	}
}

func WithOptionsResolver(resolver core.OptionsResolver) Option {
	return func(b *engineBuilder) {
		b.optionsResolver = resolver
	}
}

// WithStores supplies every persistent store at once. Stores set with the
// individual options below take precedence. A provider that also exposes
// Locker() core.ResourceLocker supplies the resource locker.
func WithStores(provider core.StoreProvider) Option {
	return func(b *engineBuilder) {
		b.stores = provider
	}
}

func WithRecordStore(store core.RecordStore) Option {
	return func(b *engineBuilder) {
		b.recordStore = store
	}
}

func WithSettingsStore(store core.SettingsStore) Option {
	return func(b *engineBuilder) {
		b.settingsStore = store
	}
}

func WithAssociationStore(store core.AssociationStore) Option {
	return func(b *engineBuilder) {
		b.associationStore = store
	}
}

func WithMergeRequestStore(store core.MergeRequestStore) Option {
	return func(b *engineBuilder) {
		b.mergeStore = store
	}
}

func WithRequestLogStore(store core.RequestLogStore) Option {
	return func(b *engineBuilder) {
		b.requestLog = store
	}
}

func WithPollRunStore(store core.PollRunStore) Option {
	return func(b *engineBuilder) {
		b.pollRuns = store
	}
}

func WithLocker(locker core.ResourceLocker) Option {
	return func(b *engineBuilder) {
		b.locker = locker
	}
}

func WithAccountDirectory(accounts core.AccountDirectory) Option {
	return func(b *engineBuilder) {
		b.accounts = accounts
	}
}

func WithNotifier(notifier core.Notifier) Option {
	return func(b *engineBuilder) {
		b.notifier = notifier
	}
}

func WithHTTPClient(client transport.HTTPDoer) Option {
	return func(b *engineBuilder) {
		b.httpClient = client
	}
}

// WithCredentials replaces the settings-backed platform credentials.
func WithCredentials(source transport.CredentialSource) Option {
	return func(b *engineBuilder) {
		b.credentials = source
	}
}

// WithJobEnqueuer enables queued webhook processing when webhook.async is set.
func WithJobEnqueuer(enqueuer core.JobEnqueuer) Option {
	return func(b *engineBuilder) {
		b.jobEnqueuer = enqueuer
	}
}

// WithSecretCipher seals the API password and webhook secret in the settings
// store.
func WithSecretCipher(cipher security.SecretCipher) Option {
	return func(b *engineBuilder) {
		b.secretCipher = cipher
	}
}

// WithThrottle replaces the in-memory adaptive throttle guarding API calls.
func WithThrottle(throttle transport.Throttle) Option {
	return func(b *engineBuilder) {
		b.throttle = throttle
	}
}

func WithBurstController(controller webhooks.BurstController) Option {
	return func(b *engineBuilder) {
		b.burst = controller
	}
}

// WithWebhookSecret pins the signing secret instead of reading webhook_secret
// from the settings store on each delivery.
func WithWebhookSecret(secret string) Option {
	return func(b *engineBuilder) {
		b.webhookSecret = secret
	}
}

// WithWebhookHandler replaces the default handler for a resource type.
func WithWebhookHandler(resourceType string, handler webhooks.Handler) Option {
	return func(b *engineBuilder) {
		if b.handlers == nil {
			b.handlers = map[string]webhooks.Handler{}
		}
		b.handlers[resourceType] = handler
	}
}

func WithExtensionHooks(hooks *ExtensionHooks) Option {
	return func(b *engineBuilder) {
		b.extensions = hooks
	}
}

