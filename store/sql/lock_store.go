package sqlstore

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/goliatone/go-tmsync/core"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

const (
	DefaultLockTTL          = 5 * time.Minute
	DefaultLockPollInterval = 50 * time.Millisecond
)

// LockStore is a ResourceLocker backed by tmsync_resource_locks, for
// deployments where several processes reconcile the same resources.
// Rows carry an expiry so a crashed holder cannot block a key forever.
type LockStore struct {
	db           *bun.DB
	TTL          time.Duration
	PollInterval time.Duration
	Now          func() time.Time
}

func NewLockStore(db *bun.DB) (*LockStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	return &LockStore{db: db, TTL: DefaultLockTTL, PollInterval: DefaultLockPollInterval}, nil
}

func (s *LockStore) TryAcquire(ctx context.Context, key core.LockKey, wait time.Duration) (core.LockHandle, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("sqlstore: lock store is not configured")
	}
	if err := key.Validate(); err != nil {
		return nil, err
	}
	name := key.String()
	token := uuid.NewString()
	deadline := s.now().Add(wait)

	for {
		acquired, err := s.tryInsert(ctx, name, token)
		if err != nil {
			return nil, err
		}
		if acquired {
			return &lockStoreHandle{store: s, name: name, token: token}, nil
		}
		reclaimed, err := s.reclaimExpired(ctx, name)
		if err != nil {
			return nil, err
		}
		if reclaimed {
			continue
		}

		remaining := deadline.Sub(s.now())
		if remaining <= 0 {
			return nil, core.LockUnavailableError(key)
		}
		pause := s.pollInterval()
		if pause > remaining {
			pause = remaining
		}
		timer := time.NewTimer(pause)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}
}

func (s *LockStore) tryInsert(ctx context.Context, name string, token string) (bool, error) {
	now := s.now()
	row := &lockRow{
		LockKey:   name,
		Token:     token,
		ExpiresAt: now.Add(s.ttl()),
		CreatedAt: now,
	}
	result, err := s.db.NewInsert().
		Model(row).
		On("CONFLICT (lock_key) DO NOTHING").
		Exec(ctx)
	if err != nil {
		if isUniqueViolation(err) {
			return false, nil
		}
		return false, err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected == 1, nil
}

func (s *LockStore) reclaimExpired(ctx context.Context, name string) (bool, error) {
	result, err := s.db.NewDelete().
		Model((*lockRow)(nil)).
		Where("lock_key = ?", name).
		Where("expires_at < ?", s.now()).
		Exec(ctx)
	if err != nil {
		return false, err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

// Held reports whether a live lock row exists for key.
func (s *LockStore) Held(ctx context.Context, key core.LockKey) (bool, error) {
	if s == nil || s.db == nil {
		return false, fmt.Errorf("sqlstore: lock store is not configured")
	}
	count, err := s.db.NewSelect().
		Model((*lockRow)(nil)).
		Where("?TableAlias.lock_key = ?", key.String()).
		Where("?TableAlias.expires_at >= ?", s.now()).
		Count(ctx)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (s *LockStore) ttl() time.Duration {
	if s.TTL > 0 {
		return s.TTL
	}
	return DefaultLockTTL
}

func (s *LockStore) pollInterval() time.Duration {
	if s.PollInterval > 0 {
		return s.PollInterval
	}
	return DefaultLockPollInterval
}

func (s *LockStore) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

type lockStoreHandle struct {
	store *LockStore
	name  string
	token string
	once  sync.Once
	err   error
}

// Unlock removes the row only while this handle still owns it.
func (h *lockStoreHandle) Unlock(ctx context.Context) error {
	if h == nil || h.store == nil {
		return nil
	}
	h.once.Do(func() {
		_, h.err = h.store.db.NewDelete().
			Model((*lockRow)(nil)).
			Where("lock_key = ?", h.name).
			Where("token = ?", h.token).
			Exec(ctx)
	})
	return h.err
}
