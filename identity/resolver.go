// Package identity applies contact merge requests from the source platform to
// the host account directory.
package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-tmsync/core"
)

type Action string

const (
	// ActionDeactivateOnly: the source contact has no local account.
	ActionDeactivateOnly Action = "deactivate_only"
	// ActionAlreadyMerged: both contacts already resolve to the same account.
	ActionAlreadyMerged Action = "already_merged"
	// ActionRepointReactivate: the destination has no account; it inherits the
	// source account, which is reactivated when suspended.
	ActionRepointReactivate Action = "repoint_reactivate"
	// ActionSuspendSource: the source account has no history worth keeping.
	ActionSuspendSource Action = "suspend_source"
	// ActionRepoint: only the source account has history; the destination
	// contact is pointed at it.
	ActionRepoint Action = "repoint"
	// ActionAmbiguous: both accounts have history.
	ActionAmbiguous Action = "ambiguous"
)

// Plan is the decision for one merge request against the current directory state.
type Plan struct {
	Request            core.MergeRequest
	Action             Action
	SourceAccount      *core.Account
	DestinationAccount *core.Account
	SourceHistory      bool
	DestinationHistory bool
}

func (p Plan) accountIDs() (string, string) {
	var source, destination string
	if p.SourceAccount != nil {
		source = p.SourceAccount.ID
	}
	if p.DestinationAccount != nil {
		destination = p.DestinationAccount.ID
	}
	return source, destination
}

type Resolution struct {
	SourceGUID string
	Applied    []Plan
}

type Resolver struct {
	Accounts     core.AccountDirectory
	Associations core.AssociationStore
	Requests     core.MergeRequestStore
	Notifier     core.Notifier
	Telemetry    core.Telemetry
	Now          func() time.Time
}

func NewResolver(
	accounts core.AccountDirectory,
	associations core.AssociationStore,
	requests core.MergeRequestStore,
	notifier core.Notifier,
) *Resolver {
	return &Resolver{
		Accounts:     accounts,
		Associations: associations,
		Requests:     requests,
		Notifier:     notifier,
		Now:          func() time.Time { return time.Now().UTC() },
	}
}

// Resolve applies every active merge request for sourceGUID, or none of them
// when any request is ambiguous.
func (r *Resolver) Resolve(ctx context.Context, sourceGUID string) (Resolution, error) {
	if err := r.validate(); err != nil {
		return Resolution{}, err
	}
	sourceGUID = strings.TrimSpace(sourceGUID)
	if sourceGUID == "" {
		return Resolution{}, fmt.Errorf("identity: source guid is required")
	}
	resolution := Resolution{SourceGUID: sourceGUID}

	plans, err := r.PlanAll(ctx, sourceGUID)
	if err != nil {
		return resolution, err
	}
	if len(plans) == 0 {
		return resolution, nil
	}
	if ambiguous := ambiguousPlans(plans); len(ambiguous) > 0 {
		return resolution, r.refuse(ctx, sourceGUID, ambiguous)
	}

	for _, planned := range plans {
		// Earlier requests may have repointed associations; decide again on
		// current state before applying.
		plan, err := r.Plan(ctx, planned.Request)
		if err != nil {
			return resolution, err
		}
		if plan.Action == ActionAmbiguous {
			return resolution, r.refuse(ctx, sourceGUID, []Plan{plan})
		}
		if err := r.apply(ctx, plan); err != nil {
			return resolution, err
		}
		resolution.Applied = append(resolution.Applied, plan)
	}
	return resolution, nil
}

// ResolveAll resolves every source with active requests. A failing source
// never blocks the others.
func (r *Resolver) ResolveAll(ctx context.Context) ([]Resolution, error) {
	if err := r.validate(); err != nil {
		return nil, err
	}
	sources, err := r.Requests.ListActiveSources(ctx)
	if err != nil {
		return nil, err
	}
	var (
		resolutions []Resolution
		errs        []error
	)
	for _, source := range sources {
		resolution, err := r.Resolve(ctx, source)
		if err != nil {
			errs = append(errs, fmt.Errorf("identity: resolve %s: %w", source, err))
			continue
		}
		resolutions = append(resolutions, resolution)
	}
	return resolutions, errors.Join(errs...)
}

// PlanAll decides every active request for sourceGUID without side effects.
func (r *Resolver) PlanAll(ctx context.Context, sourceGUID string) ([]Plan, error) {
	requests, err := r.Requests.ListActiveBySource(ctx, strings.TrimSpace(sourceGUID))
	if err != nil {
		return nil, err
	}
	plans := make([]Plan, 0, len(requests))
	for _, request := range requests {
		plan, err := r.Plan(ctx, request)
		if err != nil {
			return nil, err
		}
		plans = append(plans, plan)
	}
	return plans, nil
}

// Plan applies the decision table to one request.
func (r *Resolver) Plan(ctx context.Context, request core.MergeRequest) (Plan, error) {
	plan := Plan{Request: request}

	source, err := r.accountFor(ctx, request.SourceGUID)
	if err != nil {
		return Plan{}, err
	}
	if source == nil {
		plan.Action = ActionDeactivateOnly
		return plan, nil
	}
	plan.SourceAccount = source

	destination, err := r.accountFor(ctx, request.DestinationGUID)
	if err != nil {
		return Plan{}, err
	}
	if destination == nil {
		plan.Action = ActionRepointReactivate
		return plan, nil
	}
	plan.DestinationAccount = destination
	if destination.ID == source.ID {
		plan.Action = ActionAlreadyMerged
		return plan, nil
	}

	if plan.SourceHistory, err = r.Accounts.HasHistory(ctx, source.ID); err != nil {
		return Plan{}, err
	}
	if plan.DestinationHistory, err = r.Accounts.HasHistory(ctx, destination.ID); err != nil {
		return Plan{}, err
	}
	switch {
	case plan.SourceHistory && plan.DestinationHistory:
		plan.Action = ActionAmbiguous
	case plan.SourceHistory:
		plan.Action = ActionRepoint
	default:
		plan.Action = ActionSuspendSource
	}
	return plan, nil
}

func (r *Resolver) apply(ctx context.Context, plan Plan) error {
	switch plan.Action {
	case ActionRepointReactivate:
		if err := r.Associations.Repoint(ctx, plan.Request.DestinationGUID, plan.SourceAccount.ID); err != nil {
			return err
		}
		if plan.SourceAccount.Suspended {
			if err := r.Accounts.SetSuspended(ctx, plan.SourceAccount.ID, false); err != nil {
				return err
			}
		}
	case ActionRepoint:
		if err := r.Associations.Repoint(ctx, plan.Request.DestinationGUID, plan.SourceAccount.ID); err != nil {
			return err
		}
	case ActionSuspendSource:
		if err := r.Accounts.SetSuspended(ctx, plan.SourceAccount.ID, true); err != nil {
			return err
		}
	case ActionDeactivateOnly, ActionAlreadyMerged:
	default:
		return fmt.Errorf("identity: cannot apply action %q", plan.Action)
	}

	sourceID, destinationID := plan.accountIDs()
	if err := r.Requests.Deactivate(ctx, plan.Request.ID, sourceID, destinationID, r.now()); err != nil {
		return err
	}

	level := "trace"
	message := "merge request applied"
	if plan.Action == ActionDeactivateOnly {
		level = "info"
		message = "merge request deactivated without account changes"
	}
	r.Telemetry.Log(ctx, level, message, planFields(plan))
	return nil
}

func (r *Resolver) refuse(ctx context.Context, sourceGUID string, ambiguous []Plan) error {
	guids := make([]string, 0, len(ambiguous))
	for _, plan := range ambiguous {
		guids = append(guids, plan.Request.GUID)
	}
	first := ambiguous[0]
	sourceID, destinationID := first.accountIDs()
	params := map[string]any{
		"source_guid":            sourceGUID,
		"merge_request_guids":    guids,
		"source_account_id":      sourceID,
		"destination_account_id": destinationID,
	}
	r.Telemetry.Log(ctx, "warn", "ambiguous merge requires administrator action", params)
	if r.Notifier != nil {
		if err := r.Notifier.Alert(ctx, core.AlertTemplateAmbiguousMerge, params); err != nil {
			r.Telemetry.Log(ctx, "warn", "ambiguous merge alert failed", map[string]any{
				"source_guid": sourceGUID,
				"error":       err.Error(),
			})
		}
	}
	return core.NewError(core.ErrAmbiguousMerge,
		fmt.Sprintf("identity: source %s and destination both have enrolment history", sourceGUID),
		params,
	)
}

// accountFor resolves a contact GUID to its local account, or nil when the
// contact is not associated or the account no longer exists.
func (r *Resolver) accountFor(ctx context.Context, contactGUID string) (*core.Account, error) {
	contactGUID = strings.TrimSpace(contactGUID)
	if contactGUID == "" {
		return nil, nil
	}
	association, err := r.Associations.FindByContactGUID(ctx, contactGUID)
	if errors.Is(err, core.ErrAssociationNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	account, err := r.Accounts.GetAccount(ctx, association.AccountID)
	if errors.Is(err, core.ErrAccountNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &account, nil
}

func (r *Resolver) validate() error {
	if r == nil || r.Accounts == nil || r.Associations == nil || r.Requests == nil {
		return fmt.Errorf("identity: resolver requires account directory, association and merge request stores")
	}
	return nil
}

func (r *Resolver) now() time.Time {
	if r != nil && r.Now != nil {
		return r.Now().UTC()
	}
	return time.Now().UTC()
}

func ambiguousPlans(plans []Plan) []Plan {
	var out []Plan
	for _, plan := range plans {
		if plan.Action == ActionAmbiguous {
			out = append(out, plan)
		}
	}
	return out
}

func planFields(plan Plan) map[string]any {
	sourceID, destinationID := plan.accountIDs()
	return map[string]any{
		"merge_request_guid":     plan.Request.GUID,
		"source_guid":            plan.Request.SourceGUID,
		"destination_guid":       plan.Request.DestinationGUID,
		"action":                 string(plan.Action),
		"source_account_id":      sourceID,
		"destination_account_id": destinationID,
		"source_history":         plan.SourceHistory,
		"destination_history":    plan.DestinationHistory,
	}
}
