// Package breaker tracks repeated error statuses returned by the source API
// and decides when an administrator should be alerted about them.
package breaker

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/goliatone/go-tmsync/core"
)

var ErrStateNotFound = errors.New("breaker: state not found")

// State is the persisted breaker counter. Counter only grows while the same
// distinguished status repeats.
type State struct {
	LastStatus    int
	Counter       int
	LastRequestAt time.Time
}

type StateStore interface {
	Get(ctx context.Context) (State, error)
	Upsert(ctx context.Context, state State) error
}

// Distinguished reports whether status participates in the repeat counter.
func Distinguished(status int) bool {
	switch status {
	case http.StatusUnauthorized, http.StatusForbidden, http.StatusInternalServerError, http.StatusServiceUnavailable:
		return true
	}
	return false
}

// Next applies one observed status to the state.
func (s State) Next(status int, at time.Time) State {
	next := State{LastStatus: status, LastRequestAt: at}
	if Distinguished(status) && status == s.LastStatus {
		next.Counter = s.Counter + 1
	}
	return next
}

type AlertPolicy struct {
	// Threshold alerts every time the counter reaches a multiple of it.
	Threshold int
	// OnTransition alerts on the first 401/403 after a different status.
	OnTransition bool
}

func DefaultAlertPolicy() AlertPolicy {
	return AlertPolicy{Threshold: core.DefaultAlertThreshold, OnTransition: true}
}

// AlertTemplate returns the notifier template for state, or "" when no alert
// is due.
func (p AlertPolicy) AlertTemplate(state State) string {
	atThreshold := p.Threshold > 0 && state.Counter > 0 && state.Counter%p.Threshold == 0
	switch state.LastStatus {
	case http.StatusUnauthorized, http.StatusForbidden:
		if (p.OnTransition && state.Counter == 0) || atThreshold {
			return core.AlertTemplateAuthFailure
		}
	case http.StatusInternalServerError, http.StatusServiceUnavailable:
		if atThreshold {
			return core.AlertTemplateServerFailure
		}
	}
	return ""
}

type Transition struct {
	Previous State
	Current  State
	Alert    string
}

// Breaker serializes updates to a StateStore.
type Breaker struct {
	Store  StateStore
	Policy AlertPolicy

	mu sync.Mutex
}

func New(store StateStore, policy AlertPolicy) *Breaker {
	if store == nil {
		store = NewMemoryStateStore()
	}
	return &Breaker{Store: store, Policy: policy}
}

// Observe records status and reports the resulting transition.
func (b *Breaker) Observe(ctx context.Context, status int, at time.Time) (Transition, error) {
	if b == nil || b.Store == nil {
		return Transition{}, nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	previous, err := b.Store.Get(ctx)
	if err != nil && !errors.Is(err, ErrStateNotFound) {
		return Transition{}, err
	}
	current := previous.Next(status, at.UTC())
	if err := b.Store.Upsert(ctx, current); err != nil {
		return Transition{}, err
	}
	return Transition{
		Previous: previous,
		Current:  current,
		Alert:    b.Policy.AlertTemplate(current),
	}, nil
}

func (b *Breaker) State(ctx context.Context) (State, error) {
	if b == nil || b.Store == nil {
		return State{}, nil
	}
	state, err := b.Store.Get(ctx)
	if errors.Is(err, ErrStateNotFound) {
		return State{}, nil
	}
	return state, err
}
