package sqlstore

import (
	"fmt"

	persistence "github.com/goliatone/go-persistence-bun"
	repositorycache "github.com/goliatone/go-repository-cache/cache"
	"github.com/goliatone/go-tmsync/core"
	"github.com/uptrace/bun"
)

type RepositoryFactory struct {
	db *bun.DB

	// SettingsCache, when set before BuildStores, wraps the settings store
	// in a read-through cache.
	SettingsCache repositorycache.CacheService

	recordStore       *RecordStore
	settingsStore     core.SettingsStore
	associationStore  *AssociationStore
	mergeRequestStore *MergeRequestStore
	requestLogStore   *RequestLogStore
	pollRunStore      *PollRunStore
	lockStore         *LockStore
}

func NewRepositoryFactory() *RepositoryFactory {
	return &RepositoryFactory{}
}

func NewRepositoryFactoryFromPersistence(client *persistence.Client) (*RepositoryFactory, error) {
	factory := NewRepositoryFactory()
	if _, err := factory.BuildStores(client); err != nil {
		return nil, err
	}
	return factory, nil
}

func NewRepositoryFactoryFromDB(db *bun.DB) (*RepositoryFactory, error) {
	factory := NewRepositoryFactory()
	if _, err := factory.BuildStores(db); err != nil {
		return nil, err
	}
	return factory, nil
}

func (f *RepositoryFactory) BuildStores(persistenceClient any) (core.StoreProvider, error) {
	if f == nil {
		return nil, fmt.Errorf("sqlstore: repository factory is nil")
	}
	if f.db == nil {
		db, err := resolveBunDB(persistenceClient)
		if err != nil {
			return nil, err
		}
		f.db = db
	}
	if f.recordStore != nil && f.settingsStore != nil {
		return f, nil
	}
	if err := f.initStores(); err != nil {
		return nil, err
	}
	return f, nil
}

func (f *RepositoryFactory) DB() *bun.DB {
	if f == nil {
		return nil
	}
	return f.db
}

func (f *RepositoryFactory) RecordStore() core.RecordStore {
	if f == nil {
		return nil
	}
	return f.recordStore
}

func (f *RepositoryFactory) SettingsStore() core.SettingsStore {
	if f == nil {
		return nil
	}
	return f.settingsStore
}

func (f *RepositoryFactory) AssociationStore() core.AssociationStore {
	if f == nil {
		return nil
	}
	return f.associationStore
}

func (f *RepositoryFactory) MergeRequestStore() core.MergeRequestStore {
	if f == nil {
		return nil
	}
	return f.mergeRequestStore
}

func (f *RepositoryFactory) RequestLogStore() core.RequestLogStore {
	if f == nil {
		return nil
	}
	return f.requestLogStore
}

func (f *RepositoryFactory) PollRunStore() core.PollRunStore {
	if f == nil {
		return nil
	}
	return f.pollRunStore
}

// LockStore returns the database-backed resource locker.
func (f *RepositoryFactory) LockStore() *LockStore {
	if f == nil {
		return nil
	}
	return f.lockStore
}

// Locker exposes the lock store as the engine's resource locker.
func (f *RepositoryFactory) Locker() core.ResourceLocker {
	if f == nil || f.lockStore == nil {
		return nil
	}
	return f.lockStore
}

func (f *RepositoryFactory) initStores() error {
	recordStore, err := NewRecordStore(f.db)
	if err != nil {
		return err
	}
	f.recordStore = recordStore

	settingsStore, err := NewSettingsStore(f.db)
	if err != nil {
		return err
	}
	f.settingsStore = settingsStore
	if f.SettingsCache != nil {
		cached, err := NewCachedSettingsStore(settingsStore, f.SettingsCache)
		if err != nil {
			return err
		}
		f.settingsStore = cached
	}

	associationStore, err := NewAssociationStore(f.db)
	if err != nil {
		return err
	}
	f.associationStore = associationStore

	mergeRequestStore, err := NewMergeRequestStore(f.db)
	if err != nil {
		return err
	}
	f.mergeRequestStore = mergeRequestStore

	requestLogStore, err := NewRequestLogStore(f.db)
	if err != nil {
		return err
	}
	f.requestLogStore = requestLogStore

	pollRunStore, err := NewPollRunStore(f.db)
	if err != nil {
		return err
	}
	f.pollRunStore = pollRunStore

	lockStore, err := NewLockStore(f.db)
	if err != nil {
		return err
	}
	f.lockStore = lockStore
	return nil
}

func resolveBunDB(candidate any) (*bun.DB, error) {
	switch typed := candidate.(type) {
	case nil:
		return nil, fmt.Errorf("sqlstore: persistence client is required")
	case *bun.DB:
		return typed, nil
	case interface{ DB() *bun.DB }:
		db := typed.DB()
		if db == nil {
			return nil, fmt.Errorf("sqlstore: persistence client returned nil bun db")
		}
		return db, nil
	default:
		return nil, fmt.Errorf("sqlstore: unsupported persistence client type %T", candidate)
	}
}
