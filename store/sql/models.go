package sqlstore

import (
	"time"

	"github.com/goliatone/go-tmsync/core"
	"github.com/uptrace/bun"
)

type recordRow struct {
	bun.BaseModel `bun:"table:tmsync_records,alias:tr"`

	ID               string            `bun:"id,pk"`
	ResourceType     string            `bun:"resource_type,notnull"`
	ExternalID       int64             `bun:"external_id,notnull"`
	GUID             string            `bun:"guid,notnull"`
	Status           string            `bun:"status,notnull"`
	SourceCreatedAt  *time.Time        `bun:"source_created_at,nullzero"`
	SourceModifiedAt *time.Time        `bun:"source_modified_at,nullzero"`
	Fingerprint      string            `bun:"fingerprint,notnull"`
	Attributes       map[string]any    `bun:"attributes,type:jsonb,notnull"`
	References       map[string]string `bun:"refs,type:jsonb,notnull"`
	SyncedAt         time.Time         `bun:"synced_at,nullzero,notnull,default:current_timestamp"`
	DeletedAt        *time.Time        `bun:"deleted_at,nullzero"`
	CreatedAt        time.Time         `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt        time.Time         `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

func newRecordRow(record core.Record) *recordRow {
	row := &recordRow{
		ID:           record.ID,
		ResourceType: record.ResourceType,
		ExternalID:   record.ExternalID,
		GUID:         record.GUID,
		Status:       record.Status,
		Fingerprint:  record.Fingerprint,
		Attributes:   copyAnyMap(record.Attributes),
		References:   copyStringMap(record.References),
		SyncedAt:     record.SyncedAt.UTC(),
		DeletedAt:    copyTimePointer(record.DeletedAt),
	}
	row.SourceCreatedAt = timePointer(record.CreatedAt)
	row.SourceModifiedAt = timePointer(record.ModifiedAt)
	return row
}

func (r *recordRow) toDomain() core.Record {
	if r == nil {
		return core.Record{}
	}
	record := core.Record{
		ID:           r.ID,
		ResourceType: r.ResourceType,
		ExternalID:   r.ExternalID,
		GUID:         r.GUID,
		Status:       r.Status,
		Fingerprint:  r.Fingerprint,
		Attributes:   copyAnyMap(r.Attributes),
		References:   copyStringMap(r.References),
		SyncedAt:     r.SyncedAt.UTC(),
		DeletedAt:    copyTimePointer(r.DeletedAt),
	}
	if r.SourceCreatedAt != nil {
		record.CreatedAt = r.SourceCreatedAt.UTC()
	}
	if r.SourceModifiedAt != nil {
		record.ModifiedAt = r.SourceModifiedAt.UTC()
	}
	return record
}

type settingRow struct {
	bun.BaseModel `bun:"table:tmsync_settings,alias:ts"`

	Key       string    `bun:"key,pk"`
	Value     string    `bun:"value,notnull"`
	UpdatedAt time.Time `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

type associationRow struct {
	bun.BaseModel `bun:"table:tmsync_contact_associations,alias:tca"`

	ContactGUID string    `bun:"contact_guid,pk"`
	AccountID   string    `bun:"account_id,notnull"`
	UpdatedAt   time.Time `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

func (r *associationRow) toDomain() core.ContactAssociation {
	if r == nil {
		return core.ContactAssociation{}
	}
	return core.ContactAssociation{
		ContactGUID: r.ContactGUID,
		AccountID:   r.AccountID,
		UpdatedAt:   r.UpdatedAt.UTC(),
	}
}

type mergeRequestRow struct {
	bun.BaseModel `bun:"table:tmsync_merge_requests,alias:tmr"`

	ID                   string     `bun:"id,pk"`
	ExternalID           int64      `bun:"external_id,notnull"`
	GUID                 string     `bun:"guid,notnull"`
	SourceGUID           string     `bun:"source_guid,notnull"`
	DestinationGUID      string     `bun:"destination_guid,notnull"`
	Active               bool       `bun:"active,notnull"`
	SourceAccountID      string     `bun:"source_account_id,notnull"`
	DestinationAccountID string     `bun:"destination_account_id,notnull"`
	Seq                  int64      `bun:"seq,notnull"`
	CreatedAt            time.Time  `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	ResolvedAt           *time.Time `bun:"resolved_at,nullzero"`
}

func (r *mergeRequestRow) toDomain() core.MergeRequest {
	if r == nil {
		return core.MergeRequest{}
	}
	return core.MergeRequest{
		ID:                   r.ID,
		ExternalID:           r.ExternalID,
		GUID:                 r.GUID,
		SourceGUID:           r.SourceGUID,
		DestinationGUID:      r.DestinationGUID,
		Active:               r.Active,
		SourceAccountID:      r.SourceAccountID,
		DestinationAccountID: r.DestinationAccountID,
		CreatedAt:            r.CreatedAt.UTC(),
		ResolvedAt:           copyTimePointer(r.ResolvedAt),
	}
}

type requestLogRow struct {
	bun.BaseModel `bun:"table:tmsync_request_log,alias:trl"`

	ID         int64     `bun:"id,pk,autoincrement"`
	Platform   string    `bun:"platform,notnull"`
	Method     string    `bun:"method,notnull"`
	URI        string    `bun:"uri,notnull"`
	StatusCode int       `bun:"status_code,notnull"`
	Detail     string    `bun:"detail,notnull"`
	DurationMS int64     `bun:"duration_ms,notnull"`
	CreatedAt  time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp"`
}

func (r *requestLogRow) toDomain() core.RequestLogEntry {
	if r == nil {
		return core.RequestLogEntry{}
	}
	return core.RequestLogEntry{
		ID:         r.ID,
		Platform:   r.Platform,
		Method:     r.Method,
		URI:        r.URI,
		StatusCode: r.StatusCode,
		Detail:     r.Detail,
		DurationMS: r.DurationMS,
		CreatedAt:  r.CreatedAt.UTC(),
	}
}

type pollRunRow struct {
	bun.BaseModel `bun:"table:tmsync_poll_runs,alias:tpr"`

	ID            string     `bun:"id,pk"`
	ResourceType  string     `bun:"resource_type,notnull"`
	Status        string     `bun:"status,notnull"`
	Watermark     *time.Time `bun:"watermark,nullzero"`
	NextWatermark *time.Time `bun:"next_watermark,nullzero"`
	Pages         int        `bun:"pages,notnull"`
	Items         int        `bun:"items,notnull"`
	Mutations     int        `bun:"mutations,notnull"`
	Attempts      int        `bun:"attempts,notnull"`
	LastError     string     `bun:"last_error,notnull"`
	Seq           int64      `bun:"seq,notnull"`
	CreatedAt     time.Time  `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt     time.Time  `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

func newPollRunRow(run core.PollRun) *pollRunRow {
	return &pollRunRow{
		ID:            run.ID,
		ResourceType:  run.ResourceType,
		Status:        string(run.Status),
		Watermark:     timePointer(run.Watermark),
		NextWatermark: copyTimePointer(run.NextWatermark),
		Pages:         run.Pages,
		Items:         run.Items,
		Mutations:     run.Mutations,
		Attempts:      run.Attempts,
		LastError:     run.LastError,
		CreatedAt:     run.CreatedAt.UTC(),
		UpdatedAt:     run.UpdatedAt.UTC(),
	}
}

func (r *pollRunRow) toDomain() core.PollRun {
	if r == nil {
		return core.PollRun{}
	}
	run := core.PollRun{
		ID:            r.ID,
		ResourceType:  r.ResourceType,
		Status:        core.PollRunStatus(r.Status),
		NextWatermark: copyTimePointer(r.NextWatermark),
		Pages:         r.Pages,
		Items:         r.Items,
		Mutations:     r.Mutations,
		Attempts:      r.Attempts,
		LastError:     r.LastError,
		CreatedAt:     r.CreatedAt.UTC(),
		UpdatedAt:     r.UpdatedAt.UTC(),
	}
	if r.Watermark != nil {
		run.Watermark = r.Watermark.UTC()
	}
	return run
}

type lockRow struct {
	bun.BaseModel `bun:"table:tmsync_resource_locks,alias:trk"`

	LockKey   string    `bun:"lock_key,pk"`
	Token     string    `bun:"token,notnull"`
	ExpiresAt time.Time `bun:"expires_at,notnull"`
	CreatedAt time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp"`
}

func copyAnyMap(input map[string]any) map[string]any {
	out := make(map[string]any, len(input))
	for key, value := range input {
		out[key] = value
	}
	return out
}

func copyStringMap(input map[string]string) map[string]string {
	out := make(map[string]string, len(input))
	for key, value := range input {
		out[key] = value
	}
	return out
}

func copyTimePointer(input *time.Time) *time.Time {
	if input == nil {
		return nil
	}
	value := input.UTC()
	return &value
}

func timePointer(input time.Time) *time.Time {
	if input.IsZero() {
		return nil
	}
	value := input.UTC()
	return &value
}
