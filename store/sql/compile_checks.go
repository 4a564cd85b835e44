package sqlstore

import "github.com/goliatone/go-tmsync/core"

var (
	_ core.RecordStore       = (*RecordStore)(nil)
	_ core.SettingsStore     = (*SettingsStore)(nil)
	_ core.SettingsStore     = (*CachedSettingsStore)(nil)
	_ core.AssociationStore  = (*AssociationStore)(nil)
	_ core.MergeRequestStore = (*MergeRequestStore)(nil)
	_ core.RequestLogStore   = (*RequestLogStore)(nil)
	_ core.PollRunStore      = (*PollRunStore)(nil)
	_ core.ResourceLocker    = (*LockStore)(nil)
	_ core.StoreProvider     = (*RepositoryFactory)(nil)
)
