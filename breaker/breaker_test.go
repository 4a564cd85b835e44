package breaker

import (
	"context"
	"testing"
	"time"

	"github.com/goliatone/go-tmsync/core"
)

func TestBreaker_ObserveRepeatCounter(t *testing.T) {
	tests := []struct {
		name     string
		statuses []int
		want     []int
	}{
		{name: "server then auth", statuses: []int{500, 500, 401}, want: []int{0, 1, 0}},
		{name: "auth repeats", statuses: []int{401, 401, 401}, want: []int{0, 1, 2}},
		{name: "success never counts", statuses: []int{200, 200, 200}, want: []int{0, 0, 0}},
		{name: "not distinguished", statuses: []int{404, 404}, want: []int{0, 0}},
		{name: "reset on change", statuses: []int{503, 503, 200, 503}, want: []int{0, 1, 0, 0}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			b := New(NewMemoryStateStore(), AlertPolicy{})
			at := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
			for i, status := range tc.statuses {
				transition, err := b.Observe(context.Background(), status, at)
				if err != nil {
					t.Fatalf("observe: %v", err)
				}
				if transition.Current.Counter != tc.want[i] {
					t.Fatalf("step %d: expected counter %d, got %d", i, tc.want[i], transition.Current.Counter)
				}
				if transition.Current.LastStatus != status {
					t.Fatalf("step %d: expected status %d stored", i, status)
				}
			}
		})
	}
}

func TestBreaker_ObserveContinuesFromStoredCounter(t *testing.T) {
	store := NewMemoryStateStore()
	_ = store.Upsert(context.Background(), State{LastStatus: 500, Counter: 0})
	b := New(store, AlertPolicy{})

	var counters []int
	for _, status := range []int{500, 500, 401} {
		transition, err := b.Observe(context.Background(), status, time.Now())
		if err != nil {
			t.Fatalf("observe: %v", err)
		}
		counters = append(counters, transition.Current.Counter)
	}
	if counters[0] != 1 || counters[1] != 2 || counters[2] != 0 {
		t.Fatalf("expected [1 2 0], got %v", counters)
	}
}

func TestAlertPolicy_Templates(t *testing.T) {
	policy := AlertPolicy{Threshold: 3, OnTransition: true}
	tests := []struct {
		state State
		want  string
	}{
		{state: State{LastStatus: 401, Counter: 0}, want: core.AlertTemplateAuthFailure},
		{state: State{LastStatus: 403, Counter: 1}, want: ""},
		{state: State{LastStatus: 403, Counter: 3}, want: core.AlertTemplateAuthFailure},
		{state: State{LastStatus: 500, Counter: 0}, want: ""},
		{state: State{LastStatus: 503, Counter: 3}, want: core.AlertTemplateServerFailure},
		{state: State{LastStatus: 403, Counter: 4}, want: ""},
		{state: State{LastStatus: 503, Counter: 5}, want: ""},
		{state: State{LastStatus: 503, Counter: 6}, want: core.AlertTemplateServerFailure},
		{state: State{LastStatus: 500, Counter: 7}, want: ""},
		{state: State{LastStatus: 200, Counter: 0}, want: ""},
	}
	for _, tc := range tests {
		if got := policy.AlertTemplate(tc.state); got != tc.want {
			t.Fatalf("state %+v: expected %q, got %q", tc.state, tc.want, got)
		}
	}

	quiet := AlertPolicy{Threshold: 2}
	if got := quiet.AlertTemplate(State{LastStatus: 401}); got != "" {
		t.Fatalf("expected no transition alert, got %q", got)
	}
}

func TestSettingsStateStore_RoundTrip(t *testing.T) {
	settings := core.NewMemorySettingsStore(nil)
	store := NewSettingsStateStore(settings)

	if _, err := store.Get(context.Background()); err != ErrStateNotFound {
		t.Fatalf("expected not found, got %v", err)
	}

	at := time.Date(2024, 5, 6, 7, 8, 9, 0, time.UTC)
	b := New(store, DefaultAlertPolicy())
	if _, err := b.Observe(context.Background(), 403, at); err != nil {
		t.Fatalf("observe: %v", err)
	}
	transition, err := b.Observe(context.Background(), 403, at)
	if err != nil {
		t.Fatalf("observe: %v", err)
	}
	if transition.Previous.LastStatus != 403 || transition.Current.Counter != 1 {
		t.Fatalf("unexpected transition %+v", transition)
	}

	raw, _, _ := settings.Get(context.Background(), core.SettingBreakerCounter)
	if raw != "1" {
		t.Fatalf("expected persisted counter 1, got %q", raw)
	}
	state, err := b.State(context.Background())
	if err != nil {
		t.Fatalf("state: %v", err)
	}
	if !state.LastRequestAt.Equal(at) {
		t.Fatalf("expected last request %s, got %s", at, state.LastRequestAt)
	}
}
