package core

import (
	"context"
	"time"

	glog "github.com/goliatone/go-logger/glog"
)

type Logger = glog.Logger

type LoggerProvider = glog.LoggerProvider

type FieldsLogger = glog.FieldsLogger

type MetricsRecorder interface {
	IncCounter(ctx context.Context, name string, value int64, tags map[string]string)
	ObserveHistogram(ctx context.Context, name string, value float64, tags map[string]string)
}

// RecordStore persists reconciled source resources.
type RecordStore interface {
	FindByGUID(ctx context.Context, resourceType string, guid string) (Record, error)
	Upsert(ctx context.Context, record Record) (string, error)
	Delete(ctx context.Context, id string) error
	FindActive(ctx context.Context, resourceType string, criteria Criteria) ([]Record, error)
}

// SettingsStore is the host key/value configuration store.
// Get reports found=false when the key was never set.
type SettingsStore interface {
	Get(ctx context.Context, key string) (value string, found bool, err error)
	Set(ctx context.Context, key string, value string) error
}

type Notifier interface {
	Alert(ctx context.Context, templateKey string, params map[string]any) error
}

// AccountDirectory exposes the host LMS user store to the merge resolver.
type AccountDirectory interface {
	GetAccount(ctx context.Context, accountID string) (Account, error)
	HasHistory(ctx context.Context, accountID string) (bool, error)
	SetSuspended(ctx context.Context, accountID string, suspended bool) error
}

type AssociationStore interface {
	FindByContactGUID(ctx context.Context, contactGUID string) (ContactAssociation, error)
	Repoint(ctx context.Context, contactGUID string, accountID string) error
}

type MergeRequestStore interface {
	Save(ctx context.Context, request MergeRequest) (MergeRequest, error)
	ListActiveBySource(ctx context.Context, sourceGUID string) ([]MergeRequest, error)
	ListActiveSources(ctx context.Context) ([]string, error)
	Deactivate(ctx context.Context, id string, sourceAccountID string, destinationAccountID string, at time.Time) error
}

type RequestLogStore interface {
	Append(ctx context.Context, entry RequestLogEntry) error
	List(ctx context.Context, filter RequestLogFilter) ([]RequestLogEntry, error)
}

type PollRunStore interface {
	Create(ctx context.Context, run PollRun) (PollRun, error)
	Update(ctx context.Context, run PollRun) error
	Get(ctx context.Context, id string) (PollRun, error)
	Latest(ctx context.Context, resourceType string) (PollRun, error)
}

type LockHandle interface {
	Unlock(ctx context.Context) error
}

// ResourceLocker acquires the per (resourceType, resourceId) reconciliation lock.
// TryAcquire waits at most wait and returns ErrLockUnavailable when the lock stays held.
type ResourceLocker interface {
	TryAcquire(ctx context.Context, key LockKey, wait time.Duration) (LockHandle, error)
}

type JobExecutionMessage struct {
	JobID          string
	ScriptPath     string
	Parameters     map[string]any
	IdempotencyKey string
	DedupPolicy    string
}

type JobNackOptions struct {
	Delay      time.Duration
	Requeue    bool
	DeadLetter bool
	Reason     string
}

type JobEnqueuer interface {
	Enqueue(ctx context.Context, msg *JobExecutionMessage) error
}

type JobDelivery interface {
	Message() *JobExecutionMessage
	Ack(ctx context.Context) error
	Nack(ctx context.Context, opts JobNackOptions) error
}

type JobDequeuer interface {
	Dequeue(ctx context.Context) (JobDelivery, error)
}

type JobWorkerHook interface {
	OnStart(ctx context.Context, event JobWorkerEvent)
	OnSuccess(ctx context.Context, event JobWorkerEvent)
	OnFailure(ctx context.Context, event JobWorkerEvent)
	OnRetry(ctx context.Context, event JobWorkerEvent)
}

type JobWorkerEvent struct {
	Message   *JobExecutionMessage
	Attempt   int
	Delay     time.Duration
	Err       error
	StartedAt time.Time
	Duration  time.Duration
}

// StoreProvider exposes the persistent stores a backend builds.
type StoreProvider interface {
	RecordStore() RecordStore
	SettingsStore() SettingsStore
	AssociationStore() AssociationStore
	MergeRequestStore() MergeRequestStore
	RequestLogStore() RequestLogStore
	PollRunStore() PollRunStore
}
