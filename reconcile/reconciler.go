// Package reconcile writes mapped source resources into the record store.
// It is the single mutation path shared by polling and webhooks.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/goliatone/go-tmsync/core"
	"github.com/goliatone/go-tmsync/identity"
	"github.com/goliatone/go-tmsync/resource"
)

type Outcome string

const (
	OutcomeCreated       Outcome = "created"
	OutcomeUpdated       Outcome = "updated"
	OutcomeUnchanged     Outcome = "unchanged"
	// OutcomeStale: the stored record was modified after the incoming snapshot.
	OutcomeStale         Outcome = "stale"
	OutcomeSkippedLocked Outcome = "skipped_locked"
)

type Result struct {
	Outcome      Outcome
	ResourceType string
	GUID         string
	RecordID     string
	// MergeErr is set when a merge request was stored but could not be resolved yet.
	MergeErr error
}

// Summary aggregates the results of a batch.
type Summary struct {
	Results   []Result
	Mutations int
}

func (s *Summary) add(result Result) {
	s.Results = append(s.Results, result)
	if result.Outcome == OutcomeCreated || result.Outcome == OutcomeUpdated {
		s.Mutations++
	}
}

func (s Summary) Count(outcome Outcome) int {
	count := 0
	for _, result := range s.Results {
		if result.Outcome == outcome {
			count++
		}
	}
	return count
}

type MergeResolver interface {
	Resolve(ctx context.Context, sourceGUID string) (identity.Resolution, error)
}

type Reconciler struct {
	Records       core.RecordStore
	Locker        core.ResourceLocker
	MergeRequests core.MergeRequestStore
	Merges        MergeResolver
	Telemetry     core.Telemetry
	LockWait      time.Duration
	Now           func() time.Time
}

func New(records core.RecordStore, locker core.ResourceLocker) *Reconciler {
	if locker == nil {
		locker = core.NewMemoryResourceLocker()
	}
	return &Reconciler{
		Records:  records,
		Locker:   locker,
		LockWait: core.DefaultWebhookLockWait,
		Now:      func() time.Time { return time.Now().UTC() },
	}
}

// LockKeyFor returns the lock identity of a resource: its type and source id,
// or its GUID when the id is absent.
func LockKeyFor(res resource.Resource) core.LockKey {
	id := strconv.FormatInt(res.ExternalID(), 10)
	if res.ExternalID() == 0 {
		id = res.GUID()
	}
	return core.LockKey{ResourceType: res.ResourceType(), ResourceID: id}
}

// Apply reconciles res under its resource lock. A held lock is reported as
// OutcomeSkippedLocked, not as an error.
func (r *Reconciler) Apply(ctx context.Context, res resource.Resource) (Result, error) {
	if err := r.validate(res); err != nil {
		return Result{}, err
	}
	key := LockKeyFor(res)
	handle, err := r.Locker.TryAcquire(ctx, key, r.LockWait)
	if err != nil {
		if core.IsError(err, core.ErrLockUnavailable) {
			r.Telemetry.Log(ctx, "debug", "reconcile skipped, resource locked", map[string]any{
				"resource_type": key.ResourceType,
				"resource_id":   key.ResourceID,
			})
			return Result{Outcome: OutcomeSkippedLocked, ResourceType: res.ResourceType(), GUID: res.GUID()}, nil
		}
		return Result{}, err
	}
	result, err := r.applyLocked(ctx, res)
	if unlockErr := handle.Unlock(ctx); unlockErr != nil && err == nil {
		err = unlockErr
	}
	if err != nil {
		return result, err
	}
	r.resolveMerge(ctx, res, &result)
	return result, nil
}

// ApplyHeld reconciles res when the caller already holds its lock.
func (r *Reconciler) ApplyHeld(ctx context.Context, res resource.Resource) (Result, error) {
	if err := r.validate(res); err != nil {
		return Result{}, err
	}
	result, err := r.applyLocked(ctx, res)
	if err != nil {
		return result, err
	}
	r.resolveMerge(ctx, res, &result)
	return result, nil
}

// ApplyAll reconciles resources and their expanded relations in order,
// visiting each (type, GUID) once. It stops at the first error.
func (r *Reconciler) ApplyAll(ctx context.Context, resources []resource.Resource) (Summary, error) {
	summary := Summary{}
	seen := map[string]struct{}{}
	for _, item := range resources {
		for _, res := range append([]resource.Resource{item}, resource.Embedded(item)...) {
			if res == nil || res.GUID() == "" {
				continue
			}
			key := strings.ToLower(res.ResourceType() + "|" + res.GUID())
			if _, ok := seen[key]; ok {
				continue
			}
			seen[key] = struct{}{}
			result, err := r.Apply(ctx, res)
			if err != nil {
				return summary, err
			}
			summary.add(result)
		}
	}
	return summary, nil
}

func (r *Reconciler) applyLocked(ctx context.Context, res resource.Resource) (Result, error) {
	next := resource.ToRecord(res)
	next.SyncedAt = r.now()
	result := Result{ResourceType: next.ResourceType, GUID: next.GUID}

	existing, err := r.Records.FindByGUID(ctx, next.ResourceType, next.GUID)
	switch {
	case errors.Is(err, core.ErrRecordNotFound):
		result.Outcome = OutcomeCreated
	case err != nil:
		return result, err
	case existing.Unchanged(next):
		result.Outcome = OutcomeUnchanged
		result.RecordID = existing.ID
	case existing.NewerThan(next):
		result.Outcome = OutcomeStale
		result.RecordID = existing.ID
	default:
		next.ID = existing.ID
		result.Outcome = OutcomeUpdated
	}

	if result.Outcome == OutcomeCreated || result.Outcome == OutcomeUpdated {
		id, err := r.Records.Upsert(ctx, next)
		if err != nil {
			return result, err
		}
		result.RecordID = id
	}

	if request, ok := res.(*resource.ContactMergeRequest); ok && r.MergeRequests != nil {
		if _, err := r.MergeRequests.Save(ctx, mergeRequestFrom(request)); err != nil {
			return result, err
		}
	}

	r.Telemetry.Log(ctx, "trace", "resource reconciled", map[string]any{
		"resource_type": result.ResourceType,
		"guid":          result.GUID,
		"outcome":       string(result.Outcome),
	})
	return result, nil
}

// resolveMerge runs the merge resolver after the lock is released. Failures
// leave the request active for ResolveAll and never fail the reconcile.
func (r *Reconciler) resolveMerge(ctx context.Context, res resource.Resource, result *Result) {
	request, ok := res.(*resource.ContactMergeRequest)
	if !ok || r.Merges == nil || request.SourceGUID() == "" {
		return
	}
	if _, err := r.Merges.Resolve(ctx, request.SourceGUID()); err != nil {
		result.MergeErr = err
		r.Telemetry.Log(ctx, "warn", "merge request left active", map[string]any{
			"guid":        request.GUID(),
			"source_guid": request.SourceGUID(),
			"error":       err.Error(),
		})
	}
}

func mergeRequestFrom(request *resource.ContactMergeRequest) core.MergeRequest {
	return core.MergeRequest{
		ExternalID:      request.ExternalID(),
		GUID:            request.GUID(),
		SourceGUID:      request.SourceGUID(),
		DestinationGUID: request.DestinationGUID(),
		CreatedAt:       request.Created(),
	}
}

func (r *Reconciler) validate(res resource.Resource) error {
	if r == nil || r.Records == nil || r.Locker == nil {
		return fmt.Errorf("reconcile: reconciler requires record store and locker")
	}
	if res == nil {
		return fmt.Errorf("reconcile: resource is required")
	}
	if strings.TrimSpace(res.GUID()) == "" {
		return core.NewError(core.ErrMalformedPayload,
			fmt.Sprintf("reconcile: %s %d has no unique identifier", res.ResourceType(), res.ExternalID()),
			map[string]any{"resource_type": res.ResourceType(), "external_id": res.ExternalID()},
		)
	}
	return nil
}

func (r *Reconciler) now() time.Time {
	if r != nil && r.Now != nil {
		return r.Now().UTC()
	}
	return time.Now().UTC()
}
