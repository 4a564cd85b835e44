package core

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	ErrInvalidPollRunStatusTransition = errors.New("core: invalid poll run status transition")
	ErrRecordNotFound                 = errors.New("core: record not found")
	ErrAssociationNotFound            = errors.New("core: contact association not found")
	ErrAccountNotFound                = errors.New("core: account not found")
	ErrMergeRequestNotFound           = errors.New("core: merge request not found")
	ErrPollRunNotFound                = errors.New("core: poll run not found")
	ErrUnsupportedCriteriaField       = errors.New("core: unsupported criteria field")
)

// Epoch is the watermark used before a resource type has ever been polled.
var Epoch = time.Unix(0, 0).UTC()

// Record is the persisted projection of a source resource, keyed by GUID.
type Record struct {
	ID           string
	ResourceType string
	ExternalID   int64
	GUID         string
	Status       string
	CreatedAt    time.Time
	ModifiedAt   time.Time
	Fingerprint  string
	Attributes   map[string]any
	References   map[string]string
	SyncedAt     time.Time
	DeletedAt    *time.Time
}

// Unchanged reports whether next carries the same source state as r.
func (r Record) Unchanged(next Record) bool {
	if strings.TrimSpace(r.Fingerprint) == "" || r.Fingerprint != next.Fingerprint {
		return false
	}
	if r.DeletedAt != nil {
		return false
	}
	return r.ModifiedAt.Equal(next.ModifiedAt)
}

// NewerThan reports whether the stored record carries a later modification
// time than next. Tombstones and undated snapshots never count as newer.
func (r Record) NewerThan(next Record) bool {
	if r.DeletedAt != nil || r.ModifiedAt.IsZero() || next.ModifiedAt.IsZero() {
		return false
	}
	return r.ModifiedAt.After(next.ModifiedAt)
}

// Condition is a single equality test against a record column.
type Condition struct {
	Field string
	Value any
}

// Criteria matches records where any of the conditions holds.
// An empty Criteria matches every active record of the type.
type Criteria struct {
	AnyOf []Condition
}

func Eq(field string, value any) Criteria {
	return Criteria{AnyOf: []Condition{{Field: field, Value: value}}}
}

func (c Criteria) Or(field string, value any) Criteria {
	out := Criteria{AnyOf: append([]Condition(nil), c.AnyOf...)}
	out.AnyOf = append(out.AnyOf, Condition{Field: field, Value: value})
	return out
}

const (
	CriteriaFieldGUID       = "guid"
	CriteriaFieldExternalID = "external_id"
	CriteriaFieldStatus     = "status"
)

func NormalizeCriteriaField(field string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(field)) {
	case CriteriaFieldGUID:
		return CriteriaFieldGUID, nil
	case CriteriaFieldExternalID, "externalid", "id":
		return CriteriaFieldExternalID, nil
	case CriteriaFieldStatus:
		return CriteriaFieldStatus, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedCriteriaField, field)
	}
}

// Account is a local host account that a source contact may be associated with.
type Account struct {
	ID        string
	Username  string
	Suspended bool
}

// ContactAssociation links a source contact GUID to a local account.
type ContactAssociation struct {
	ContactGUID string
	AccountID   string
	UpdatedAt   time.Time
}

// MergeRequest is the local lifecycle of a source ContactMergeRequest.
type MergeRequest struct {
	ID                   string
	ExternalID           int64
	GUID                 string
	SourceGUID           string
	DestinationGUID      string
	Active               bool
	SourceAccountID      string
	DestinationAccountID string
	CreatedAt            time.Time
	ResolvedAt           *time.Time
}

type RequestLogEntry struct {
	ID         int64
	Platform   string
	Method     string
	URI        string
	StatusCode int
	Detail     string
	DurationMS int64
	CreatedAt  time.Time
}

type RequestLogFilter struct {
	StatusCode int
	Since      time.Time
	Limit      int
}

type PollRunStatus string

const (
	PollRunStatusQueued    PollRunStatus = "queued"
	PollRunStatusRunning   PollRunStatus = "running"
	PollRunStatusSucceeded PollRunStatus = "succeeded"
	PollRunStatusFailed    PollRunStatus = "failed"
)

// PollRun records one execution of the polling coordinator for a resource type.
type PollRun struct {
	ID            string
	ResourceType  string
	Status        PollRunStatus
	Watermark     time.Time
	NextWatermark *time.Time
	Pages         int
	Items         int
	Mutations     int
	Attempts      int
	LastError     string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

func (r *PollRun) TransitionTo(status PollRunStatus, now time.Time) error {
	if r == nil {
		return nil
	}
	if r.Status == status {
		r.UpdatedAt = now
		return nil
	}
	if !pollRunTransitionAllowed(r.Status, status) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidPollRunStatusTransition, r.Status, status)
	}
	r.Status = status
	r.UpdatedAt = now
	return nil
}

func pollRunTransitionAllowed(current, next PollRunStatus) bool {
	allowed := map[PollRunStatus]map[PollRunStatus]struct{}{
		PollRunStatusQueued: {
			PollRunStatusRunning: {},
			PollRunStatusFailed:  {},
		},
		PollRunStatusRunning: {
			PollRunStatusSucceeded: {},
			PollRunStatusFailed:    {},
		},
		PollRunStatusFailed: {
			PollRunStatusQueued:  {},
			PollRunStatusRunning: {},
		},
		PollRunStatusSucceeded: {},
	}
	_, ok := allowed[current][next]
	return ok
}

// LockKey identifies the unit of mutual exclusion for reconciliation.
type LockKey struct {
	ResourceType string
	ResourceID   string
}

func (k LockKey) String() string {
	return strings.ToLower(strings.TrimSpace(k.ResourceType)) + ":" + strings.TrimSpace(k.ResourceID)
}

func (k LockKey) Validate() error {
	if strings.TrimSpace(k.ResourceType) == "" {
		return fmt.Errorf("core: lock resource type is required")
	}
	if strings.TrimSpace(k.ResourceID) == "" {
		return fmt.Errorf("core: lock resource id is required")
	}
	return nil
}
