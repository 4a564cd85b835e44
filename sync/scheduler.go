package sync

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-tmsync/core"
	"github.com/goliatone/go-tmsync/identity"
)

type MergeSweeper interface {
	ResolveAll(ctx context.Context) ([]identity.Resolution, error)
}

// Scheduler is the entry point the host scheduler calls periodically.
type Scheduler struct {
	Poller        *Poller
	ResourceTypes []string
	Merges        MergeSweeper
	Runs          core.PollRunStore
	// MinInterval skips types whose last successful run is more recent.
	MinInterval time.Duration
	Telemetry   core.Telemetry
	Now         func() time.Time
}

func NewScheduler(poller *Poller, resourceTypes []string) *Scheduler {
	scheduler := &Scheduler{
		Poller:        poller,
		ResourceTypes: append([]string(nil), resourceTypes...),
		Now:           func() time.Time { return time.Now().UTC() },
	}
	if poller != nil {
		scheduler.Runs = poller.Runs
		scheduler.Telemetry = poller.Telemetry
	}
	return scheduler
}

// RunDue polls every due resource type. One type failing never stops the
// others; all failures are returned joined.
func (s *Scheduler) RunDue(ctx context.Context) ([]PollResult, error) {
	if s == nil || s.Poller == nil {
		return nil, fmt.Errorf("sync: scheduler requires a poller")
	}
	var (
		results []PollResult
		errs    []error
	)
	for _, resourceType := range s.ResourceTypes {
		resourceType = strings.TrimSpace(resourceType)
		if resourceType == "" {
			continue
		}
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		due, err := s.due(ctx, resourceType)
		if err != nil {
			errs = append(errs, fmt.Errorf("sync: %s: %w", resourceType, err))
			continue
		}
		if !due {
			continue
		}
		result, err := s.Poller.Poll(ctx, resourceType)
		results = append(results, result)
		if err != nil {
			errs = append(errs, fmt.Errorf("sync: %s: %w", resourceType, err))
		}
	}

	if s.Merges != nil {
		if _, err := s.Merges.ResolveAll(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return results, errors.Join(errs...)
}

func (s *Scheduler) due(ctx context.Context, resourceType string) (bool, error) {
	if s.MinInterval <= 0 || s.Runs == nil {
		return true, nil
	}
	latest, err := s.Runs.Latest(ctx, resourceType)
	if errors.Is(err, core.ErrPollRunNotFound) {
		return true, nil
	}
	if err != nil {
		return false, err
	}
	if latest.Status != core.PollRunStatusSucceeded {
		return true, nil
	}
	return !s.now().Before(latest.UpdatedAt.Add(s.MinInterval)), nil
}

func (s *Scheduler) now() time.Time {
	if s != nil && s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}
