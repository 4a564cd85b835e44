package query

import (
	"strings"

	"github.com/goliatone/go-tmsync/core"
)

const (
	TypeLoadWatermark   = "tmsync.query.watermark.load"
	TypeGetBreakerState = "tmsync.query.breaker.state"
	TypeListRequestLog  = "tmsync.query.request_log.list"
	TypeLatestPollRun   = "tmsync.query.poll_run.latest"
	TypeFindRecords     = "tmsync.query.records.find"
)

type LoadWatermarkMessage struct {
	ResourceType string
}

func (LoadWatermarkMessage) Type() string { return TypeLoadWatermark }

func (m LoadWatermarkMessage) Validate() error {
	if strings.TrimSpace(m.ResourceType) == "" {
		return queryValidationError("resource_type", "resource type is required")
	}
	return nil
}

type GetBreakerStateMessage struct{}

func (GetBreakerStateMessage) Type() string { return TypeGetBreakerState }

func (GetBreakerStateMessage) Validate() error { return nil }

type ListRequestLogMessage struct {
	Filter core.RequestLogFilter
}

func (ListRequestLogMessage) Type() string { return TypeListRequestLog }

func (m ListRequestLogMessage) Validate() error {
	if m.Filter.Limit < 0 {
		return queryValidationError("limit", "limit must be >= 0")
	}
	if m.Filter.StatusCode < 0 {
		return queryValidationError("status_code", "status code must be >= 0")
	}
	return nil
}

type LatestPollRunMessage struct {
	ResourceType string
}

func (LatestPollRunMessage) Type() string { return TypeLatestPollRun }

func (m LatestPollRunMessage) Validate() error {
	if strings.TrimSpace(m.ResourceType) == "" {
		return queryValidationError("resource_type", "resource type is required")
	}
	return nil
}

// FindRecordsMessage lists the active records of a type matching Criteria.
type FindRecordsMessage struct {
	ResourceType string
	Criteria     core.Criteria
}

func (FindRecordsMessage) Type() string { return TypeFindRecords }

func (m FindRecordsMessage) Validate() error {
	if strings.TrimSpace(m.ResourceType) == "" {
		return queryValidationError("resource_type", "resource type is required")
	}
	for _, condition := range m.Criteria.AnyOf {
		if _, err := core.NormalizeCriteriaField(condition.Field); err != nil {
			return queryWrapValidation(err, "query: invalid criteria")
		}
	}
	return nil
}
