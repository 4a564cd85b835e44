package breaker

import (
	"context"
	"sync"

	"github.com/goliatone/go-tmsync/core"
)

type MemoryStateStore struct {
	mu    sync.RWMutex
	state *State
}

func NewMemoryStateStore() *MemoryStateStore {
	return &MemoryStateStore{}
}

func (s *MemoryStateStore) Get(_ context.Context) (State, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.state == nil {
		return State{}, ErrStateNotFound
	}
	return *s.state, nil
}

func (s *MemoryStateStore) Upsert(_ context.Context, state State) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = &state
	return nil
}

// SettingsStateStore keeps the breaker in the host settings store.
type SettingsStateStore struct {
	Settings core.Settings
}

func NewSettingsStateStore(store core.SettingsStore) *SettingsStateStore {
	return &SettingsStateStore{Settings: core.NewSettings(store)}
}

func (s *SettingsStateStore) Get(ctx context.Context) (State, error) {
	status, found, err := s.Settings.Int(ctx, core.SettingBreakerStatus)
	if err != nil {
		return State{}, err
	}
	if !found {
		return State{}, ErrStateNotFound
	}
	counter, _, err := s.Settings.Int(ctx, core.SettingBreakerCounter)
	if err != nil {
		return State{}, err
	}
	lastAt, _, err := s.Settings.Time(ctx, core.SettingBreakerLastAt)
	if err != nil {
		return State{}, err
	}
	return State{LastStatus: status, Counter: counter, LastRequestAt: lastAt}, nil
}

func (s *SettingsStateStore) Upsert(ctx context.Context, state State) error {
	if err := s.Settings.SetInt(ctx, core.SettingBreakerStatus, state.LastStatus); err != nil {
		return err
	}
	if err := s.Settings.SetInt(ctx, core.SettingBreakerCounter, state.Counter); err != nil {
		return err
	}
	if state.LastRequestAt.IsZero() {
		return nil
	}
	return s.Settings.SetTime(ctx, core.SettingBreakerLastAt, state.LastRequestAt)
}

var (
	_ StateStore = (*MemoryStateStore)(nil)
	_ StateStore = (*SettingsStateStore)(nil)
)
