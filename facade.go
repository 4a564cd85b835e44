package tmsync

import (
	"fmt"

	tmcommand "github.com/goliatone/go-tmsync/command"
	"github.com/goliatone/go-tmsync/core"
	tmquery "github.com/goliatone/go-tmsync/query"
)

type CommandQueryService interface {
	tmcommand.MutatingService
	tmquery.WatermarkReader
	tmquery.BreakerStateReader
}

type Commands struct {
	PollResourceType        *tmcommand.PollResourceTypeCommand
	RunDue                  *tmcommand.RunDueCommand
	ResolveMerges           *tmcommand.ResolveMergesCommand
	ProcessWebhookEvent     *tmcommand.ProcessWebhookEventCommand
	RegisterWebhookEndpoint *tmcommand.RegisterWebhookEndpointCommand
}

type Queries struct {
	LoadWatermark  *tmquery.LoadWatermarkQuery
	BreakerState   *tmquery.GetBreakerStateQuery
	ListRequestLog *tmquery.ListRequestLogQuery
	LatestPollRun  *tmquery.LatestPollRunQuery
	FindRecords    *tmquery.FindRecordsQuery
}

type Facade struct {
	service  CommandQueryService
	commands Commands
	queries  Queries
	bundles  map[string]any
}

type FacadeOption func(*facadeOptions)

type facadeOptions struct {
	requestLog tmquery.RequestLogReader
	pollRuns   tmquery.PollRunReader
	records    tmquery.RecordReader
}

func WithRequestLogReader(reader tmquery.RequestLogReader) FacadeOption {
	return func(options *facadeOptions) {
		options.requestLog = reader
	}
}

func WithPollRunReader(reader tmquery.PollRunReader) FacadeOption {
	return func(options *facadeOptions) {
		options.pollRuns = reader
	}
}

func WithRecordReader(reader tmquery.RecordReader) FacadeOption {
	return func(options *facadeOptions) {
		options.records = reader
	}
}

// NewFacade builds the command and query handlers over service. Readers not
// supplied as options are taken from the service store accessors when it has
// them.
func NewFacade(service CommandQueryService, opts ...FacadeOption) (*Facade, error) {
	if service == nil {
		return nil, fmt.Errorf("tmsync: command/query service is required")
	}
	cfg := facadeOptions{}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(&cfg)
	}
	resolveReaders(service, &cfg)

	facade := &Facade{service: service, bundles: map[string]any{}}
	facade.commands = Commands{
		PollResourceType:        tmcommand.NewPollResourceTypeCommand(service),
		RunDue:                  tmcommand.NewRunDueCommand(service),
		ResolveMerges:           tmcommand.NewResolveMergesCommand(service),
		ProcessWebhookEvent:     tmcommand.NewProcessWebhookEventCommand(service),
		RegisterWebhookEndpoint: tmcommand.NewRegisterWebhookEndpointCommand(service),
	}
	facade.queries = Queries{
		LoadWatermark:  tmquery.NewLoadWatermarkQuery(service),
		BreakerState:   tmquery.NewGetBreakerStateQuery(service),
		ListRequestLog: tmquery.NewListRequestLogQuery(cfg.requestLog),
		LatestPollRun:  tmquery.NewLatestPollRunQuery(cfg.pollRuns),
		FindRecords:    tmquery.NewFindRecordsQuery(cfg.records),
	}
	return facade, nil
}

func (f *Facade) Commands() Commands {
	if f == nil {
		return Commands{}
	}
	return f.commands
}

func (f *Facade) Queries() Queries {
	if f == nil {
		return Queries{}
	}
	return f.queries
}

func (f *Facade) Service() CommandQueryService {
	if f == nil {
		return nil
	}
	return f.service
}

func (f *Facade) Bundle(name string) (any, bool) {
	if f == nil {
		return nil, false
	}
	bundle, ok := f.bundles[name]
	return bundle, ok
}

func resolveReaders(service CommandQueryService, cfg *facadeOptions) {
	if cfg.requestLog == nil {
		if provider, ok := service.(interface{ RequestLogStore() core.RequestLogStore }); ok {
			if store := provider.RequestLogStore(); store != nil {
				cfg.requestLog = store
			}
		}
	}
	if cfg.pollRuns == nil {
		if provider, ok := service.(interface{ PollRunStore() core.PollRunStore }); ok {
			if store := provider.PollRunStore(); store != nil {
				cfg.pollRuns = store
			}
		}
	}
	if cfg.records == nil {
		if provider, ok := service.(interface{ RecordStore() core.RecordStore }); ok {
			if store := provider.RecordStore(); store != nil {
				cfg.records = store
			}
		}
	}
}
