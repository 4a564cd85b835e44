package tmsync

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/goliatone/go-tmsync/core"
	tmquery "github.com/goliatone/go-tmsync/query"
	"github.com/goliatone/go-tmsync/resource"
	"github.com/goliatone/go-tmsync/security"
	"github.com/goliatone/go-tmsync/transport"
	"github.com/goliatone/go-tmsync/webhooks"
)

const testAPIPrefix = "/api/2012-02-01/auth/resources/"

var testWebhookSecret = base64.StdEncoding.EncodeToString([]byte("engine-webhook-secret"))

type fakeSource struct {
	mu       sync.Mutex
	routes   map[string]string
	statuses map[string]int
	requests []string
	posted   []string
}

func (s *fakeSource) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	s.requests = append(s.requests, r.Method+" "+r.URL.Path)
	if r.Method == http.MethodPost {
		body, _ := io.ReadAll(r.Body)
		s.posted = append(s.posted, string(body))
	}
	route := r.Method + " " + strings.TrimPrefix(r.URL.Path, testAPIPrefix)
	payload, ok := s.routes[route]
	status := s.statuses[route]
	s.mu.Unlock()
	if status != 0 {
		http.Error(w, "denied", status)
		return
	}
	if !ok {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "application/xml")
	_, _ = io.WriteString(w, payload)
}

func (s *fakeSource) count(route string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	method, path, _ := strings.Cut(route, " ")
	n := 0
	for _, request := range s.requests {
		if request == method+" "+testAPIPrefix+path {
			n++
		}
	}
	return n
}

func contactXML(id int, guid string, modified string) string {
	return fmt.Sprintf(`<Contact><ContactID>%d</ContactID><UniqueIdentifier>%s</UniqueIdentifier><FirstName>Ada</FirstName><Status>Active</Status><LastModifiedDateTime>%s</LastModifiedDateTime></Contact>`, id, guid, modified)
}

func contactLinkXML(id int, guid string, modified string) string {
	return fmt.Sprintf(`<Link rel="related" title="Contact" href="contacts/%d/">%s</Link>`, id, contactXML(id, guid, modified))
}

func newTestEngine(t *testing.T, source *fakeSource, opts ...Option) (*Engine, *httptest.Server) {
	t.Helper()
	server := httptest.NewServer(source)
	t.Cleanup(server.Close)

	cfg := Config{API: APIConfig{Scheme: "http"}}
	base := []Option{
		WithHTTPClient(server.Client()),
		WithCredentials(transport.StaticCredentials{
			Platform: strings.TrimPrefix(server.URL, "http://"),
			Username: "api-user",
			Password: "secret",
		}),
	}
	engine, err := New(cfg, append(base, opts...)...)
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	return engine, server
}

func TestNew_DefaultsToMemoryStores(t *testing.T) {
	engine, err := New(Config{})
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	if engine.RecordStore() == nil || engine.RequestLogStore() == nil || engine.PollRunStore() == nil || engine.SettingsStore() == nil {
		t.Fatalf("expected default stores to be wired")
	}
	if engine.Config().ServiceName != "tmsync" {
		t.Fatalf("expected default config, got %#v", engine.Config())
	}
	types := engine.WebhookHandlers().Types()
	if len(types) != len(webhookResourceTypes) {
		t.Fatalf("expected a default handler per webhook type, got %v", types)
	}
	commands := engine.Commands()
	if commands.PollResourceType == nil || commands.RunDue == nil || commands.RegisterWebhookEndpoint == nil {
		t.Fatalf("expected commands to be wired")
	}
	queries := engine.Queries()
	if queries.LoadWatermark == nil || queries.FindRecords == nil || queries.ListRequestLog == nil {
		t.Fatalf("expected queries to be wired")
	}
}

func TestNew_RejectsInvalidConfiguration(t *testing.T) {
	if _, err := New(Config{API: APIConfig{PageSize: -1}}); err == nil {
		t.Fatalf("expected page size validation error")
	}
	if _, err := New(Config{Webhook: WebhookConfig{Async: true}}); err == nil {
		t.Fatalf("expected async webhook enqueuer error")
	}
}

func TestNew_UsesStoreProviderAndLocker(t *testing.T) {
	provider := &memoryStoreProvider{
		records: core.NewMemoryRecordStore(),
		locker:  core.NewMemoryResourceLocker(),
	}
	engine, err := New(Config{}, WithStores(provider))
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	if engine.RecordStore() != provider.records {
		t.Fatalf("expected provider record store")
	}
	if engine.locker != provider.locker {
		t.Fatalf("expected provider locker")
	}

	override := core.NewMemoryRecordStore()
	engine, err = New(Config{}, WithStores(provider), WithRecordStore(override))
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	if engine.RecordStore() != override {
		t.Fatalf("expected explicit record store to win over provider")
	}
}

func TestEngine_PollReconcilesAndAdvancesWatermark(t *testing.T) {
	source := &fakeSource{routes: map[string]string{
		"GET contacts/": "<Contacts>" +
			contactLinkXML(1, "c-1", "2024-01-02T10:00:00") +
			contactLinkXML(2, "c-2", "2024-01-03T09:30:00") +
			"</Contacts>",
	}}
	engine, _ := newTestEngine(t, source)
	ctx := context.Background()

	result, err := engine.Poll(ctx, "Contacts")
	if err != nil {
		t.Fatalf("poll: %v", err)
	}
	if result.Items != 2 || result.Mutations != 2 || !result.Advanced {
		t.Fatalf("unexpected poll result %#v", result)
	}

	watermark, err := engine.LoadWatermark(ctx, "Contacts")
	if err != nil {
		t.Fatalf("load watermark: %v", err)
	}
	if !watermark.Equal(result.NextWatermark) || watermark.IsZero() {
		t.Fatalf("expected stored watermark %s, got %s", result.NextWatermark, watermark)
	}

	records, err := engine.Queries().FindRecords.Query(ctx, queryFindContacts("c-2"))
	if err != nil {
		t.Fatalf("find records: %v", err)
	}
	if len(records) != 1 || records[0].ExternalID != 2 {
		t.Fatalf("expected reconciled contact c-2, got %#v", records)
	}

	entries, err := engine.RequestLogStore().List(ctx, core.RequestLogFilter{})
	if err != nil {
		t.Fatalf("list request log: %v", err)
	}
	if len(entries) != 1 || entries[0].StatusCode != http.StatusOK {
		t.Fatalf("expected one logged request, got %#v", entries)
	}

	state, err := engine.BreakerState(ctx)
	if err != nil {
		t.Fatalf("breaker state: %v", err)
	}
	if state.LastStatus != http.StatusOK || state.Counter != 0 {
		t.Fatalf("unexpected breaker state %#v", state)
	}

	run, err := engine.PollRunStore().Latest(ctx, "Contacts")
	if err != nil {
		t.Fatalf("latest poll run: %v", err)
	}
	if run.ID != result.RunID {
		t.Fatalf("expected latest run %s, got %#v", result.RunID, run)
	}
}

func TestEngine_ServeHTTPRequiresSigningSecret(t *testing.T) {
	engine, _ := newTestEngine(t, &fakeSource{})
	body := []byte(`{"events":[{"eventId":"e1","resourceType":"Contact","resourceId":7,"eventType":"Updated"}]}`)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/webhooks", bytes.NewReader(body))
	req.Header.Set(core.DefaultSignatureHeader, "anything")
	engine.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without a configured secret, got %d", rec.Code)
	}
}

func TestEngine_ServeHTTPProcessesSignedDelivery(t *testing.T) {
	source := &fakeSource{routes: map[string]string{
		"GET contacts/7/": contactXML(7, "c-7", "2024-02-01T08:00:00"),
	}}
	engine, _ := newTestEngine(t, source)
	ctx := context.Background()
	if err := engine.SettingsStore().Set(ctx, core.SettingWebhookSecret, testWebhookSecret); err != nil {
		t.Fatalf("set secret: %v", err)
	}

	body := []byte(`{"events":[{"eventId":"e1","resourceType":"Contact","resourceId":7,"eventType":"Updated","dateTime":"2024-02-01T08:00:01Z"}]}`)
	signer, err := webhooks.NewSigner(testWebhookSecret)
	if err != nil {
		t.Fatalf("new signer: %v", err)
	}

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/webhooks", bytes.NewReader(body))
	req.Header.Set(core.DefaultSignatureHeader, signer.Sign(body))
	engine.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	record, err := engine.RecordStore().FindByGUID(ctx, "Contact", "c-7")
	if err != nil {
		t.Fatalf("expected reconciled webhook contact: %v", err)
	}
	if record.ExternalID != 7 {
		t.Fatalf("unexpected record %#v", record)
	}

	rec = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPost, "/webhooks", bytes.NewReader(body))
	req.Header.Set(core.DefaultSignatureHeader, "tampered")
	engine.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for bad signature, got %d", rec.Code)
	}
}

func TestEngine_HandleWebhookUsesPinnedSecretAndOverrides(t *testing.T) {
	var mu sync.Mutex
	var seen []webhooks.Event
	custom := webhooks.HandlerFunc(func(_ context.Context, event webhooks.Event) error {
		mu.Lock()
		defer mu.Unlock()
		seen = append(seen, event)
		return nil
	})
	engine, _ := newTestEngine(t, &fakeSource{},
		WithWebhookSecret(testWebhookSecret),
		WithWebhookHandler("Registration", custom),
	)

	body := []byte(`{"events":[{"eventId":"r1","resourceType":"Registrations","resourceId":11,"eventType":"Created"}]}`)
	signer, _ := webhooks.NewSigner(testWebhookSecret)
	receipt, err := engine.HandleWebhook(context.Background(), body, signer.Sign(body))
	if err != nil {
		t.Fatalf("handle webhook: %v", err)
	}
	if receipt.Count(webhooks.OutcomeProcessed) != 1 {
		t.Fatalf("expected processed event, got %#v", receipt)
	}
	if len(seen) != 1 || seen[0].ResourceID != "11" {
		t.Fatalf("expected custom registration handler to run, got %#v", seen)
	}
}

func TestEngine_AsyncWebhooksEnqueue(t *testing.T) {
	enqueuer := &recordingEnqueuer{}
	engine, err := New(
		Config{Webhook: WebhookConfig{Async: true}},
		WithJobEnqueuer(enqueuer),
		WithWebhookSecret(testWebhookSecret),
	)
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	body := []byte(`{"events":[{"eventId":"c1","resourceType":"Contact","resourceId":3,"eventType":"Updated"}]}`)
	signer, _ := webhooks.NewSigner(testWebhookSecret)
	receipt, err := engine.HandleWebhook(context.Background(), body, signer.Sign(body))
	if err != nil {
		t.Fatalf("handle webhook: %v", err)
	}
	if receipt.Count(webhooks.OutcomeQueued) != 1 || len(enqueuer.messages) != 1 {
		t.Fatalf("expected queued event, got %#v", receipt)
	}
	if enqueuer.messages[0].JobID != webhooks.JobIDWebhookEvent {
		t.Fatalf("unexpected job id %q", enqueuer.messages[0].JobID)
	}
}

func TestEngine_RegisterWebhookEndpointStoresSecret(t *testing.T) {
	source := &fakeSource{routes: map[string]string{
		"POST webhookendpoints/": `<WebhookEndpoint><WebhookEndpointID>9</WebhookEndpointID><Name>lms</Name><Url>https://lms.example.test/hooks</Url><Key>` + testWebhookSecret + `</Key><Format>JSON</Format><Status>Active</Status></WebhookEndpoint>`,
	}}
	engine, _ := newTestEngine(t, source)
	ctx := context.Background()

	created, err := engine.RegisterWebhookEndpoint(ctx, resource.WebhookEndpoint{
		Name: "lms",
		URL:  "https://lms.example.test/hooks",
	})
	if err != nil {
		t.Fatalf("register endpoint: %v", err)
	}
	if created.ID != 9 {
		t.Fatalf("unexpected endpoint %#v", created)
	}
	if len(source.posted) != 1 || !strings.Contains(source.posted[0], "JSON") {
		t.Fatalf("expected JSON format in posted endpoint, got %v", source.posted)
	}

	settings := core.NewSettings(engine.SettingsStore())
	id, found, err := settings.String(ctx, core.SettingWebhookID)
	if err != nil || !found || id != "9" {
		t.Fatalf("expected stored webhook id, got %q found=%t err=%v", id, found, err)
	}
	secret, found, err := settings.String(ctx, core.SettingWebhookSecret)
	if err != nil || !found || secret != testWebhookSecret {
		t.Fatalf("expected stored webhook secret, got %q found=%t err=%v", secret, found, err)
	}
}

func TestEngine_SecretCipherSealsStoredWebhookSecret(t *testing.T) {
	source := &fakeSource{routes: map[string]string{
		"POST webhookendpoints/": `<WebhookEndpoint><WebhookEndpointID>9</WebhookEndpointID><Key>` + testWebhookSecret + `</Key><Status>Active</Status></WebhookEndpoint>`,
	}}
	cipher, err := security.NewAppKeyCipherFromString("engine-app-key")
	if err != nil {
		t.Fatalf("new cipher: %v", err)
	}
	raw := core.NewMemorySettingsStore(nil)
	handled := 0
	engine, _ := newTestEngine(t, source,
		WithSettingsStore(raw),
		WithSecretCipher(cipher),
		WithWebhookHandler("Registration", webhooks.HandlerFunc(func(context.Context, webhooks.Event) error {
			handled++
			return nil
		})),
	)
	ctx := context.Background()

	if _, err := engine.RegisterWebhookEndpoint(ctx, resource.WebhookEndpoint{Name: "lms", URL: "https://lms.example.test/hooks"}); err != nil {
		t.Fatalf("register endpoint: %v", err)
	}
	stored, _, _ := raw.Get(ctx, core.SettingWebhookSecret)
	if !security.IsSealed(stored) {
		t.Fatalf("expected sealed webhook secret at rest, got %q", stored)
	}

	body := []byte(`{"events":[{"eventId":"e12","resourceType":"Registration","resourceId":12,"eventType":"Created"}]}`)
	signer, err := webhooks.NewSigner(testWebhookSecret)
	if err != nil {
		t.Fatalf("new signer: %v", err)
	}
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/webhooks", bytes.NewReader(body))
	req.Header.Set(core.DefaultSignatureHeader, signer.Sign(body))
	engine.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK || handled != 1 {
		t.Fatalf("expected delivery verified with unsealed secret, got %d handled=%d", rec.Code, handled)
	}
}

func TestEngine_ThrottledPollStaysOffTheNetwork(t *testing.T) {
	source := &fakeSource{statuses: map[string]int{"GET events/": http.StatusTooManyRequests}}
	engine, _ := newTestEngine(t, source)
	ctx := context.Background()

	if _, err := engine.Poll(ctx, "Events"); err == nil {
		t.Fatalf("expected 429 poll to fail")
	}
	_, err := engine.Poll(ctx, "Events")
	if !core.IsError(err, core.ErrThrottled) {
		t.Fatalf("expected throttled poll, got %v", err)
	}
	if got := source.count("GET events/"); got != 1 {
		t.Fatalf("expected one request to reach the source, got %d", got)
	}
	state, _ := engine.BreakerState(ctx)
	if state.LastStatus != http.StatusTooManyRequests || state.Counter != 0 {
		t.Fatalf("expected breaker to see only the real 429, got %#v", state)
	}
}

func TestEngine_PollFailureTripsBreakerAndAlerts(t *testing.T) {
	notifier := &core.MemoryNotifier{}
	source := &fakeSource{statuses: map[string]int{"GET events/": http.StatusUnauthorized}}
	engine, _ := newTestEngine(t, source, WithNotifier(notifier))
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if _, err := engine.Poll(ctx, "Events"); err == nil {
			t.Fatalf("expected poll %d to fail on 401", i)
		}
	}
	state, err := engine.BreakerState(ctx)
	if err != nil {
		t.Fatalf("breaker state: %v", err)
	}
	if state.LastStatus != http.StatusUnauthorized || state.Counter != 1 {
		t.Fatalf("unexpected breaker state %#v", state)
	}
	alerts := notifier.Alerts()
	if len(alerts) != 1 || alerts[0].TemplateKey != core.AlertTemplateAuthFailure {
		t.Fatalf("expected one auth failure alert, got %#v", alerts)
	}

	watermark, err := engine.LoadWatermark(ctx, "Events")
	if err != nil {
		t.Fatalf("load watermark: %v", err)
	}
	if !watermark.Equal(core.Epoch) {
		t.Fatalf("expected untouched watermark, got %s", watermark)
	}
	run, err := engine.PollRunStore().Latest(ctx, "Events")
	if err != nil {
		t.Fatalf("latest run: %v", err)
	}
	if run.Status != core.PollRunStatusFailed {
		t.Fatalf("expected failed run, got %#v", run)
	}
}

func TestEngine_ResolveMergesWithoutRequests(t *testing.T) {
	engine, err := New(Config{})
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	resolutions, err := engine.ResolveMerges(context.Background(), "")
	if err != nil {
		t.Fatalf("resolve all: %v", err)
	}
	if len(resolutions) != 0 {
		t.Fatalf("expected no resolutions, got %#v", resolutions)
	}
}

func TestEngine_NilReceiver(t *testing.T) {
	var engine *Engine
	if _, err := engine.Poll(context.Background(), "Contacts"); err == nil {
		t.Fatalf("expected nil engine poll error")
	}
	result := engine.ProcessWebhookEvent(context.Background(), webhooks.Event{ResourceType: "Contact"})
	if result.Outcome != webhooks.OutcomeFailed {
		t.Fatalf("expected failed outcome, got %#v", result)
	}
	if engine.Commands().RunDue != nil {
		t.Fatalf("expected empty commands")
	}
}

type memoryStoreProvider struct {
	records *core.MemoryRecordStore
	locker  core.ResourceLocker
}

func (p *memoryStoreProvider) RecordStore() core.RecordStore { return p.records }

func (p *memoryStoreProvider) SettingsStore() core.SettingsStore {
	return core.NewMemorySettingsStore(nil)
}

func (p *memoryStoreProvider) AssociationStore() core.AssociationStore {
	return core.NewMemoryAssociationStore()
}

func (p *memoryStoreProvider) MergeRequestStore() core.MergeRequestStore {
	return core.NewMemoryMergeRequestStore()
}

func (p *memoryStoreProvider) RequestLogStore() core.RequestLogStore {
	return core.NewMemoryRequestLogStore()
}

func (p *memoryStoreProvider) PollRunStore() core.PollRunStore { return core.NewMemoryPollRunStore() }

func (p *memoryStoreProvider) Locker() core.ResourceLocker { return p.locker }

type recordingEnqueuer struct {
	mu       sync.Mutex
	messages []*core.JobExecutionMessage
	err      error
}

func (e *recordingEnqueuer) Enqueue(_ context.Context, msg *core.JobExecutionMessage) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.err != nil {
		return e.err
	}
	e.messages = append(e.messages, msg)
	return nil
}

func queryFindContacts(guid string) tmquery.FindRecordsMessage {
	return tmquery.FindRecordsMessage{ResourceType: "Contact", Criteria: core.Eq(core.CriteriaFieldGUID, guid)}
}
