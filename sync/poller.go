// Package sync polls the source API for changed resources and advances the
// per resource type watermark once a full batch has been reconciled.
package sync

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-tmsync/core"
	"github.com/goliatone/go-tmsync/odata"
	"github.com/goliatone/go-tmsync/reconcile"
	"github.com/goliatone/go-tmsync/resource"
	"github.com/goliatone/go-tmsync/transport"
)

type State string

const (
	StateIdle         State = "idle"
	StateFetching     State = "fetching"
	StatePaginating   State = "paginating"
	StateWatermarking State = "watermarking"
	StateFailed       State = "failed"
)

const defaultMaxPages = 10000

type Fetcher interface {
	Collection(ctx context.Context, collection string, query *odata.Query) (resource.Document, transport.Result, error)
	Follow(ctx context.Context, href string) (resource.Document, transport.Result, error)
}

type Applier interface {
	ApplyAll(ctx context.Context, resources []resource.Resource) (reconcile.Summary, error)
}

type PollResult struct {
	ResourceType string
	State        State
	// Trace lists every state the poll passed through.
	Trace         []State
	Pages         int
	Items         int
	Mutations     int
	Skipped       int
	Watermark     time.Time
	NextWatermark time.Time
	Advanced      bool
	RunID         string
}

func (r *PollResult) enter(state State) {
	r.State = state
	r.Trace = append(r.Trace, state)
}

type Poller struct {
	Client     Fetcher
	Reconciler Applier
	Watermarks WatermarkStore
	Runs       core.PollRunStore
	API        core.APIConfig
	Polling    core.PollingConfig
	Telemetry  core.Telemetry
	MaxPages   int
	Now        func() time.Time
}

func NewPoller(client Fetcher, reconciler Applier, watermarks WatermarkStore, runs core.PollRunStore) *Poller {
	cfg := core.DefaultConfig()
	return &Poller{
		Client:     client,
		Reconciler: reconciler,
		Watermarks: watermarks,
		Runs:       runs,
		API:        cfg.API,
		Polling:    cfg.Polling,
		MaxPages:   defaultMaxPages,
		Now:        func() time.Time { return time.Now().UTC() },
	}
}

// Query builds the first-page query for resourceType from watermark w.
func (p *Poller) Query(resourceType string, w time.Time) *odata.Query {
	query := odata.New().
		SetPageSize(p.API.EffectivePageSize()).
		Since(w).
		OrderBy(odata.FieldModified, false)
	for _, path := range p.Polling.ExpansionsFor(resourceType) {
		query.AddExpand(path)
	}
	return query
}

// Poll fetches every page changed since the stored watermark. The watermark is
// advanced only after the last page has been reconciled, so a failure part way
// re-fetches already seen pages on the next run and never skips unseen ones.
func (p *Poller) Poll(ctx context.Context, resourceType string) (PollResult, error) {
	resourceType = strings.TrimSpace(resourceType)
	result := PollResult{ResourceType: resourceType}
	result.enter(StateIdle)
	if err := p.validate(resourceType); err != nil {
		result.enter(StateFailed)
		return result, err
	}
	startedAt := p.now()

	run, runErr := p.startRun(ctx, resourceType)
	if runErr != nil {
		result.enter(StateFailed)
		return result, runErr
	}
	result.RunID = run.ID

	err := p.poll(ctx, resourceType, &result)
	if err != nil {
		result.enter(StateFailed)
	} else {
		result.enter(StateIdle)
	}
	finishErr := p.finishRun(ctx, run, result, err)

	p.Telemetry.Count(ctx, "tmsync.poll.pages.total", int64(result.Pages), map[string]string{"resource_type": resourceType})
	p.Telemetry.Operation(ctx, startedAt, "poll", err, map[string]any{
		"resource_type":  resourceType,
		"pages":          result.Pages,
		"items":          result.Items,
		"mutations":      result.Mutations,
		"watermark":      result.Watermark.Format(time.RFC3339Nano),
		"next_watermark": result.NextWatermark.Format(time.RFC3339Nano),
		"advanced":       result.Advanced,
	})
	if err != nil {
		return result, err
	}
	return result, finishErr
}

func (p *Poller) poll(ctx context.Context, resourceType string, result *PollResult) error {
	watermark, err := p.Watermarks.Load(ctx, resourceType)
	if err != nil {
		return err
	}
	result.Watermark = watermark
	maxModified := watermark

	maxPages := p.MaxPages
	if maxPages <= 0 {
		maxPages = defaultMaxPages
	}
	visited := map[string]struct{}{}

	result.enter(StateFetching)
	doc, _, err := p.Client.Collection(ctx, resourceType, p.Query(resourceType, watermark))
	for {
		if err != nil {
			return err
		}
		if !doc.IsCollection() {
			return core.NewError(core.ErrUnknownRootType,
				fmt.Sprintf("sync: expected a collection for %s, got %s", resourceType, doc.Root),
				map[string]any{"resource_type": resourceType, "root": doc.Root},
			)
		}

		result.enter(StatePaginating)
		result.Pages++
		items := doc.Resources()
		result.Items += len(items)
		summary, applyErr := p.Reconciler.ApplyAll(ctx, items)
		result.Mutations += summary.Mutations
		result.Skipped += summary.Count(reconcile.OutcomeSkippedLocked)
		if applyErr != nil {
			return applyErr
		}
		if modified := resource.MaxModified(items); modified.After(maxModified) {
			maxModified = modified
		}

		if !doc.Collection.HasNext {
			break
		}
		next := strings.TrimSpace(doc.Collection.NextHref)
		if next == "" {
			return core.NewError(core.ErrMalformedPayload, "sync: next link without href", map[string]any{"resource_type": resourceType})
		}
		if _, seen := visited[next]; seen || result.Pages >= maxPages {
			return fmt.Errorf("sync: pagination for %s did not terminate after %d pages", resourceType, result.Pages)
		}
		visited[next] = struct{}{}

		result.enter(StateFetching)
		doc, _, err = p.Client.Follow(ctx, next)
	}

	result.enter(StateWatermarking)
	result.NextWatermark = maxModified
	advanced, err := p.Watermarks.Advance(ctx, resourceType, maxModified)
	if err != nil {
		return err
	}
	result.Advanced = advanced
	return nil
}

func (p *Poller) startRun(ctx context.Context, resourceType string) (core.PollRun, error) {
	if p.Runs == nil {
		return core.PollRun{}, nil
	}
	now := p.now()
	run := core.PollRun{
		ResourceType: resourceType,
		Status:       core.PollRunStatusQueued,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := run.TransitionTo(core.PollRunStatusRunning, now); err != nil {
		return core.PollRun{}, err
	}
	run.Attempts = 1
	return p.Runs.Create(ctx, run)
}

// finishRun records the outcome against the schedule.
func (p *Poller) finishRun(ctx context.Context, run core.PollRun, result PollResult, cause error) error {
	if p.Runs == nil {
		return nil
	}
	now := p.now()
	run.Watermark = result.Watermark
	run.Pages = result.Pages
	run.Items = result.Items
	run.Mutations = result.Mutations
	status := core.PollRunStatusSucceeded
	if cause != nil {
		status = core.PollRunStatusFailed
		run.LastError = cause.Error()
	} else if !result.NextWatermark.IsZero() {
		next := result.NextWatermark
		run.NextWatermark = &next
	}
	if err := run.TransitionTo(status, now); err != nil {
		return err
	}
	return p.Runs.Update(ctx, run)
}

func (p *Poller) validate(resourceType string) error {
	if p == nil || p.Client == nil || p.Reconciler == nil || p.Watermarks == nil {
		return fmt.Errorf("sync: poller requires client, reconciler and watermark store")
	}
	if resourceType == "" {
		return fmt.Errorf("sync: resource type is required")
	}
	return nil
}

func (p *Poller) now() time.Time {
	if p != nil && p.Now != nil {
		return p.Now().UTC()
	}
	return time.Now().UTC()
}
