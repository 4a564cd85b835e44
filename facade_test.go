package tmsync

import (
	"context"
	"testing"
	"time"

	"github.com/goliatone/go-tmsync/breaker"
	tmcommand "github.com/goliatone/go-tmsync/command"
	"github.com/goliatone/go-tmsync/core"
	"github.com/goliatone/go-tmsync/identity"
	tmquery "github.com/goliatone/go-tmsync/query"
	"github.com/goliatone/go-tmsync/resource"
	"github.com/goliatone/go-tmsync/sync"
	"github.com/goliatone/go-tmsync/webhooks"
)

func TestNewFacade_WiresCommandsAndQueries(t *testing.T) {
	svc := &stubFacadeService{}

	facade, err := NewFacade(svc, WithRequestLogReader(core.NewMemoryRequestLogStore()))
	if err != nil {
		t.Fatalf("new facade: %v", err)
	}

	commands := facade.Commands()
	if commands.PollResourceType == nil || commands.ResolveMerges == nil || commands.ProcessWebhookEvent == nil {
		t.Fatalf("expected command handlers to be wired")
	}
	queries := facade.Queries()
	if queries.LoadWatermark == nil || queries.ListRequestLog == nil || queries.BreakerState == nil {
		t.Fatalf("expected query handlers to be wired")
	}
	if facade.Service() != svc {
		t.Fatalf("expected facade to expose its service")
	}
}

func TestFacade_CommandAndQueryDelegation(t *testing.T) {
	svc := &stubFacadeService{}
	facade, err := NewFacade(svc)
	if err != nil {
		t.Fatalf("new facade: %v", err)
	}

	if err := facade.Commands().PollResourceType.Execute(context.Background(), tmcommand.PollResourceTypeMessage{
		ResourceType: "Registrations",
	}); err != nil {
		t.Fatalf("execute poll command: %v", err)
	}
	if svc.lastPolled != "Registrations" {
		t.Fatalf("unexpected poll delegation payload %q", svc.lastPolled)
	}

	if err := facade.Commands().ResolveMerges.Execute(context.Background(), tmcommand.ResolveMergesMessage{
		SourceGUID: "c-1",
	}); err != nil {
		t.Fatalf("execute resolve merges command: %v", err)
	}
	if svc.lastMergeSource != "c-1" {
		t.Fatalf("unexpected merge delegation payload %q", svc.lastMergeSource)
	}

	watermark, err := facade.Queries().LoadWatermark.Query(context.Background(), tmquery.LoadWatermarkMessage{
		ResourceType: "Contacts",
	})
	if err != nil {
		t.Fatalf("query load watermark: %v", err)
	}
	if !watermark.Equal(stubWatermark) {
		t.Fatalf("unexpected watermark %s", watermark)
	}

	state, err := facade.Queries().BreakerState.Query(context.Background(), tmquery.GetBreakerStateMessage{})
	if err != nil {
		t.Fatalf("query breaker state: %v", err)
	}
	if state.LastStatus != 401 || state.Counter != 2 {
		t.Fatalf("unexpected breaker state %#v", state)
	}
}

func TestNewFacade_ResolvesReadersFromServiceAccessors(t *testing.T) {
	records := core.NewMemoryRecordStore()
	if _, err := records.Upsert(context.Background(), core.Record{
		ResourceType: "Contact",
		GUID:         "c-9",
		ExternalID:   9,
	}); err != nil {
		t.Fatalf("seed record: %v", err)
	}
	svc := &storeBackedFacadeService{records: records}

	facade, err := NewFacade(svc)
	if err != nil {
		t.Fatalf("new facade: %v", err)
	}
	found, err := facade.Queries().FindRecords.Query(context.Background(), tmquery.FindRecordsMessage{
		ResourceType: "Contact",
		Criteria:     core.Eq("guid", "c-9"),
	})
	if err != nil {
		t.Fatalf("find records: %v", err)
	}
	if len(found) != 1 || found[0].ExternalID != 9 {
		t.Fatalf("unexpected records %#v", found)
	}

	if _, err := facade.Queries().LatestPollRun.Query(context.Background(), tmquery.LatestPollRunMessage{
		ResourceType: "Contacts",
	}); err == nil {
		t.Fatalf("expected missing poll run reader to fail")
	}
}

func TestNewFacade_RequiresService(t *testing.T) {
	facade, err := NewFacade(nil)
	if err == nil {
		t.Fatalf("expected nil service error")
	}
	if facade != nil {
		t.Fatalf("expected nil facade on error")
	}
}

var stubWatermark = time.Date(2024, 1, 3, 0, 0, 0, 0, time.UTC)

type stubFacadeService struct {
	lastPolled      string
	lastMergeSource string
}

func (s *stubFacadeService) Poll(_ context.Context, resourceType string) (sync.PollResult, error) {
	s.lastPolled = resourceType
	return sync.PollResult{ResourceType: resourceType}, nil
}

func (s *stubFacadeService) RunDue(context.Context) ([]sync.PollResult, error) {
	return nil, nil
}

func (s *stubFacadeService) ResolveMerges(_ context.Context, sourceGUID string) ([]identity.Resolution, error) {
	s.lastMergeSource = sourceGUID
	return []identity.Resolution{{SourceGUID: sourceGUID}}, nil
}

func (s *stubFacadeService) ProcessWebhookEvent(_ context.Context, event webhooks.Event) webhooks.EventResult {
	return webhooks.EventResult{Event: event, Outcome: webhooks.OutcomeProcessed}
}

func (s *stubFacadeService) RegisterWebhookEndpoint(_ context.Context, endpoint resource.WebhookEndpoint) (*resource.WebhookEndpoint, error) {
	return &endpoint, nil
}

func (s *stubFacadeService) LoadWatermark(context.Context, string) (time.Time, error) {
	return stubWatermark, nil
}

func (s *stubFacadeService) BreakerState(context.Context) (breaker.State, error) {
	return breaker.State{LastStatus: 401, Counter: 2}, nil
}

type storeBackedFacadeService struct {
	stubFacadeService
	records core.RecordStore
}

func (s *storeBackedFacadeService) RecordStore() core.RecordStore { return s.records }

func (s *storeBackedFacadeService) PollRunStore() core.PollRunStore { return nil }

var _ CommandQueryService = (*stubFacadeService)(nil)
