package tmsync

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/goliatone/go-tmsync/breaker"
	"github.com/goliatone/go-tmsync/core"
	"github.com/goliatone/go-tmsync/identity"
	"github.com/goliatone/go-tmsync/ratelimit"
	"github.com/goliatone/go-tmsync/reconcile"
	"github.com/goliatone/go-tmsync/resource"
	"github.com/goliatone/go-tmsync/security"
	"github.com/goliatone/go-tmsync/sync"
	"github.com/goliatone/go-tmsync/transport"
	"github.com/goliatone/go-tmsync/webhooks"
)

const defaultWebhookFormat = "JSON"

// webhookResourceTypes are the singular types the source pushes events for.
var webhookResourceTypes = []string{
	"Contact",
	"ContactMergeRequest",
	"Event",
	"EventTemplate",
	"OnlineActivity",
	"Registration",
}

// Engine wires the mapper, executor, reconciler, merge resolver, poller and
// webhook ingestor over one set of host stores.
type Engine struct {
	config      Config
	telemetry   core.Telemetry
	errorMapper core.ErrorMapper

	records      core.RecordStore
	settings     core.SettingsStore
	associations core.AssociationStore
	merges       core.MergeRequestStore
	requestLog   core.RequestLogStore
	pollRuns     core.PollRunStore
	locker       core.ResourceLocker

	breaker    *breaker.Breaker
	executor   *transport.Executor
	client     *transport.Client
	mapper     *resource.Mapper
	reconciler *reconcile.Reconciler
	resolver   *identity.Resolver
	watermarks *sync.SettingsWatermarkStore
	poller     *sync.Poller
	scheduler  *sync.Scheduler
	handlers   *webhooks.Registry
	ingestor   *webhooks.Ingestor

	webhookSecret string
	facade        *Facade
}

func New(cfg Config, opts ...Option) (*Engine, error) {
	builder := engineBuilder{runtimeConfig: cfg}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(&builder)
	}
	if builder.errorMapper == nil {
		builder.errorMapper = core.MapError
	}

	finalConfig, err := core.ResolveConfig(context.Background(), builder.runtimeConfig, builder.configProvider, builder.optionsResolver)
	if err != nil {
		return nil, mapBuildError(builder.errorMapper, err)
	}
	if err := finalConfig.Validate(); err != nil {
		return nil, mapBuildError(builder.errorMapper, err)
	}
	if finalConfig.Webhook.Async && builder.jobEnqueuer == nil {
		return nil, mapBuildError(builder.errorMapper, fmt.Errorf("tmsync: webhook.async requires a job enqueuer"))
	}

	telemetry := core.NewTelemetry("tmsync", builder.loggerProvider, builder.logger, builder.metricsRecorder)
	builder.resolveStores()
	if builder.secretCipher != nil {
		sealed, err := security.NewSealedSettings(builder.settingsStore, builder.secretCipher)
		if err != nil {
			return nil, mapBuildError(builder.errorMapper, err)
		}
		builder.settingsStore = sealed
	}

	engine := &Engine{
		config:        finalConfig,
		telemetry:     telemetry,
		errorMapper:   builder.errorMapper,
		records:       builder.recordStore,
		settings:      builder.settingsStore,
		associations:  builder.associationStore,
		merges:        builder.mergeStore,
		requestLog:    builder.requestLog,
		pollRuns:      builder.pollRuns,
		locker:        builder.locker,
		webhookSecret: strings.TrimSpace(builder.webhookSecret),
	}

	notifier := builder.notifier
	if notifier == nil {
		notifier = core.LogNotifier{Telemetry: telemetry}
	}
	accounts := builder.accounts
	if accounts == nil {
		accounts = core.NewMemoryAccountDirectory()
	}
	credentials := builder.credentials
	if credentials == nil {
		credentials = transport.NewSettingsCredentials(engine.settings)
	}

	engine.breaker = breaker.New(breaker.NewSettingsStateStore(engine.settings), breaker.AlertPolicy{
		Threshold:    finalConfig.Breaker.AlertThreshold,
		OnTransition: finalConfig.Breaker.AlertOnTransition,
	})

	engine.executor = transport.NewExecutor(builder.httpClient, credentials)
	engine.executor.RequestLog = engine.requestLog
	engine.executor.Breaker = engine.breaker
	engine.executor.Notifier = notifier
	engine.executor.Throttle = builder.throttle
	if engine.executor.Throttle == nil {
		policy := ratelimit.NewAdaptivePolicy(ratelimit.NewMemoryStateStore())
		if finalConfig.API.MaxThrottleBackoff > 0 {
			policy.MaxBackoff = finalConfig.API.MaxThrottleBackoff
		}
		engine.executor.Throttle = policy
	}
	engine.executor.Telemetry = telemetry
	engine.executor.Timeout = finalConfig.API.EffectiveTimeout()
	if finalConfig.API.ResponseBodyLimit > 0 {
		engine.executor.MaxResponseBodyBytes = finalConfig.API.ResponseBodyLimit
	}

	engine.mapper = resource.NewMapper(resource.Options{Strict: finalConfig.Polling.Strict})
	engine.client = transport.NewClient(engine.executor, engine.mapper)
	if scheme := strings.TrimSpace(finalConfig.API.Scheme); scheme != "" {
		engine.client.Scheme = scheme
	}
	if basePath := strings.TrimSpace(finalConfig.API.BasePath); basePath != "" {
		engine.client.BasePath = basePath
	}

	engine.resolver = identity.NewResolver(accounts, engine.associations, engine.merges, notifier)
	engine.resolver.Telemetry = telemetry

	engine.reconciler = reconcile.New(engine.records, engine.locker)
	engine.reconciler.MergeRequests = engine.merges
	engine.reconciler.Merges = engine.resolver
	engine.reconciler.Telemetry = telemetry
	engine.reconciler.LockWait = finalConfig.Webhook.EffectiveLockWait()

	engine.watermarks = sync.NewSettingsWatermarkStore(engine.settings)
	engine.poller = sync.NewPoller(engine.client, engine.reconciler, engine.watermarks, engine.pollRuns)
	engine.poller.API = finalConfig.API
	engine.poller.Polling = finalConfig.Polling
	engine.poller.Telemetry = telemetry

	engine.scheduler = sync.NewScheduler(engine.poller, finalConfig.Polling.ResourceTypes)
	engine.scheduler.Merges = engine.resolver

	engine.handlers = webhooks.NewRegistry()
	if err := engine.registerHandlers(builder.handlers, builder.extensions); err != nil {
		return nil, mapBuildError(builder.errorMapper, err)
	}

	engine.ingestor = webhooks.NewIngestor(nil, engine.handlers, engine.locker)
	engine.ingestor.LockWait = finalConfig.Webhook.EffectiveLockWait()
	engine.ingestor.Burst = builder.burst
	engine.ingestor.Telemetry = telemetry
	if header := strings.TrimSpace(finalConfig.Webhook.SignatureHeader); header != "" {
		engine.ingestor.SignatureHeader = header
	}
	if finalConfig.Webhook.Async {
		engine.ingestor.Dispatcher = webhooks.NewQueueDispatcher(builder.jobEnqueuer)
	}

	facade, err := NewFacade(engine)
	if err != nil {
		return nil, mapBuildError(builder.errorMapper, err)
	}
	if builder.extensions != nil {
		bundles, err := builder.extensions.BuildCommandQueryBundles(engine)
		if err != nil {
			return nil, mapBuildError(builder.errorMapper, err)
		}
		facade.bundles = bundles
	}
	engine.facade = facade
	return engine, nil
}

func (b *engineBuilder) resolveStores() {
	if b.stores != nil {
		if b.recordStore == nil {
			b.recordStore = b.stores.RecordStore()
		}
		if b.settingsStore == nil {
			b.settingsStore = b.stores.SettingsStore()
		}
		if b.associationStore == nil {
			b.associationStore = b.stores.AssociationStore()
		}
		if b.mergeStore == nil {
			b.mergeStore = b.stores.MergeRequestStore()
		}
		if b.requestLog == nil {
			b.requestLog = b.stores.RequestLogStore()
		}
		if b.pollRuns == nil {
			b.pollRuns = b.stores.PollRunStore()
		}
		if b.locker == nil {
			if provider, ok := b.stores.(interface{ Locker() core.ResourceLocker }); ok {
				b.locker = provider.Locker()
			}
		}
	}
	if b.recordStore == nil {
		b.recordStore = core.NewMemoryRecordStore()
	}
	if b.settingsStore == nil {
		b.settingsStore = core.NewMemorySettingsStore(nil)
	}
	if b.associationStore == nil {
		b.associationStore = core.NewMemoryAssociationStore()
	}
	if b.mergeStore == nil {
		b.mergeStore = core.NewMemoryMergeRequestStore()
	}
	if b.requestLog == nil {
		b.requestLog = core.NewMemoryRequestLogStore()
	}
	if b.pollRuns == nil {
		b.pollRuns = core.NewMemoryPollRunStore()
	}
	if b.locker == nil {
		b.locker = core.NewMemoryResourceLocker()
	}
}

// registerHandlers installs explicit handlers first, then extension packs,
// then a fetch-and-reconcile handler for every remaining webhook type.
func (e *Engine) registerHandlers(explicit map[string]webhooks.Handler, extensions *ExtensionHooks) error {
	for resourceType, handler := range explicit {
		if err := e.handlers.Register(resourceType, handler); err != nil {
			return err
		}
	}
	if err := extensions.ApplyHandlerPacks(e.handlers); err != nil {
		return err
	}
	for _, resourceType := range webhookResourceTypes {
		if _, _, ok := e.handlers.Lookup(resourceType); ok {
			continue
		}
		handler := webhooks.NewResourceHandler(e.client, e.reconciler, e.config.Polling.ExpansionsFor(webhooks.CollectionFor(resourceType))...)
		handler.Telemetry = e.telemetry
		if err := e.handlers.Register(resourceType, handler); err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) Config() Config {
	if e == nil {
		return Config{}
	}
	return e.config
}

// Poll runs one polling pass for resourceType.
func (e *Engine) Poll(ctx context.Context, resourceType string) (sync.PollResult, error) {
	if e == nil || e.poller == nil {
		return sync.PollResult{}, fmt.Errorf("tmsync: engine is not configured")
	}
	return e.poller.Poll(ctx, resourceType)
}

// RunDue is the host scheduler entry point: it polls every configured type
// and then sweeps outstanding merge requests.
func (e *Engine) RunDue(ctx context.Context) ([]sync.PollResult, error) {
	if e == nil || e.scheduler == nil {
		return nil, fmt.Errorf("tmsync: engine is not configured")
	}
	return e.scheduler.RunDue(ctx)
}

// ResolveMerges resolves one source contact, or every source with active
// merge requests when sourceGUID is empty.
func (e *Engine) ResolveMerges(ctx context.Context, sourceGUID string) ([]identity.Resolution, error) {
	if e == nil || e.resolver == nil {
		return nil, fmt.Errorf("tmsync: engine is not configured")
	}
	if strings.TrimSpace(sourceGUID) == "" {
		return e.resolver.ResolveAll(ctx)
	}
	resolution, err := e.resolver.Resolve(ctx, sourceGUID)
	if err != nil {
		return nil, err
	}
	return []identity.Resolution{resolution}, nil
}

// HandleWebhook verifies and dispatches one delivery body.
func (e *Engine) HandleWebhook(ctx context.Context, body []byte, signature string) (webhooks.Receipt, error) {
	ingestor, err := e.ingestorFor(ctx)
	if err != nil {
		return webhooks.Receipt{}, err
	}
	return ingestor.Handle(ctx, body, signature)
}

// ProcessWebhookEvent runs an already verified event through the
// lock-guarded handler path.
func (e *Engine) ProcessWebhookEvent(ctx context.Context, event webhooks.Event) webhooks.EventResult {
	if e == nil || e.ingestor == nil {
		return webhooks.EventResult{Event: event, Outcome: webhooks.OutcomeFailed, Err: fmt.Errorf("tmsync: engine is not configured")}
	}
	return e.ingestor.Process(ctx, event)
}

// ProcessDelivery consumes one queued webhook event.
func (e *Engine) ProcessDelivery(ctx context.Context, delivery core.JobDelivery) (webhooks.EventResult, error) {
	if e == nil || e.ingestor == nil {
		return webhooks.EventResult{}, fmt.Errorf("tmsync: engine is not configured")
	}
	return e.ingestor.ProcessDelivery(ctx, delivery)
}

// ServeHTTP is the webhook delivery endpoint.
func (e *Engine) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ingestor, err := e.ingestorFor(r.Context())
	if err != nil {
		http.Error(w, "webhook endpoint unavailable", http.StatusServiceUnavailable)
		return
	}
	ingestor.ServeHTTP(w, r)
}

// ingestorFor returns the ingestor bound to the current signing secret. A
// missing secret leaves the verifier empty so every delivery is rejected.
func (e *Engine) ingestorFor(ctx context.Context) (*webhooks.Ingestor, error) {
	if e == nil || e.ingestor == nil {
		return nil, fmt.Errorf("tmsync: engine is not configured")
	}
	secret := e.webhookSecret
	if secret == "" {
		value, _, err := core.NewSettings(e.settings).String(ctx, core.SettingWebhookSecret)
		if err != nil {
			return nil, err
		}
		secret = strings.TrimSpace(value)
	}
	bound := *e.ingestor
	bound.Verifier = nil
	if secret != "" {
		verifier, err := webhooks.NewVerifier(secret)
		if err != nil {
			return nil, err
		}
		bound.Verifier = verifier
	}
	return &bound, nil
}

// RegisterWebhookEndpoint provisions a push endpoint with the source and
// stores the returned id and signing secret in the settings store.
func (e *Engine) RegisterWebhookEndpoint(ctx context.Context, endpoint resource.WebhookEndpoint) (*resource.WebhookEndpoint, error) {
	if e == nil || e.client == nil {
		return nil, fmt.Errorf("tmsync: engine is not configured")
	}
	if strings.TrimSpace(endpoint.Format) == "" {
		endpoint.Format = defaultWebhookFormat
	}
	if endpoint.Status == "" {
		endpoint.Status = resource.WebhookEndpointStatusActive
	}
	created, err := e.client.RegisterWebhookEndpoint(ctx, &endpoint)
	if err != nil {
		return nil, err
	}
	settings := core.NewSettings(e.settings)
	if created.ID != 0 {
		if err := settings.SetString(ctx, core.SettingWebhookID, strconv.FormatInt(created.ID, 10)); err != nil {
			return created, err
		}
	}
	if key := strings.TrimSpace(created.Key); key != "" {
		if err := settings.SetString(ctx, core.SettingWebhookSecret, key); err != nil {
			return created, err
		}
	}
	e.telemetry.Log(ctx, "info", "webhook endpoint registered", map[string]any{
		"endpoint_id": created.ID,
		"url":         created.URL,
	})
	return created, nil
}

func (e *Engine) LoadWatermark(ctx context.Context, resourceType string) (time.Time, error) {
	if e == nil || e.watermarks == nil {
		return time.Time{}, fmt.Errorf("tmsync: engine is not configured")
	}
	return e.watermarks.Load(ctx, resourceType)
}

func (e *Engine) BreakerState(ctx context.Context) (breaker.State, error) {
	if e == nil {
		return breaker.State{}, fmt.Errorf("tmsync: engine is not configured")
	}
	return e.breaker.State(ctx)
}

func (e *Engine) Commands() Commands {
	if e == nil {
		return Commands{}
	}
	return e.facade.Commands()
}

func (e *Engine) Queries() Queries {
	if e == nil {
		return Queries{}
	}
	return e.facade.Queries()
}

// Bundle returns a command/query bundle built by an extension hook.
func (e *Engine) Bundle(name string) (any, bool) {
	if e == nil {
		return nil, false
	}
	return e.facade.Bundle(name)
}

func (e *Engine) RecordStore() core.RecordStore {
	if e == nil {
		return nil
	}
	return e.records
}

func (e *Engine) RequestLogStore() core.RequestLogStore {
	if e == nil {
		return nil
	}
	return e.requestLog
}

func (e *Engine) PollRunStore() core.PollRunStore {
	if e == nil {
		return nil
	}
	return e.pollRuns
}

func (e *Engine) SettingsStore() core.SettingsStore {
	if e == nil {
		return nil
	}
	return e.settings
}

func (e *Engine) Client() *transport.Client {
	if e == nil {
		return nil
	}
	return e.client
}

func (e *Engine) Reconciler() *reconcile.Reconciler {
	if e == nil {
		return nil
	}
	return e.reconciler
}

func (e *Engine) WebhookHandlers() *webhooks.Registry {
	if e == nil {
		return nil
	}
	return e.handlers
}

func mapBuildError(mapper core.ErrorMapper, err error) error {
	if err == nil {
		return nil
	}
	if mapper == nil {
		return err
	}
	if mapped := mapper(err); mapped != nil {
		return mapped
	}
	return err
}

var (
	_ CommandQueryService = (*Engine)(nil)
	_ http.Handler        = (*Engine)(nil)
)
