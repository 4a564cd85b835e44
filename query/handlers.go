package query

import (
	"context"
	"time"

	"github.com/goliatone/go-tmsync/breaker"
	"github.com/goliatone/go-tmsync/core"
)

type WatermarkReader interface {
	LoadWatermark(ctx context.Context, resourceType string) (time.Time, error)
}

type BreakerStateReader interface {
	BreakerState(ctx context.Context) (breaker.State, error)
}

type RequestLogReader interface {
	List(ctx context.Context, filter core.RequestLogFilter) ([]core.RequestLogEntry, error)
}

type PollRunReader interface {
	Latest(ctx context.Context, resourceType string) (core.PollRun, error)
}

type RecordReader interface {
	FindActive(ctx context.Context, resourceType string, criteria core.Criteria) ([]core.Record, error)
}

type LoadWatermarkQuery struct {
	reader WatermarkReader
}

func NewLoadWatermarkQuery(reader WatermarkReader) *LoadWatermarkQuery {
	return &LoadWatermarkQuery{reader: reader}
}

func (q *LoadWatermarkQuery) Query(ctx context.Context, msg LoadWatermarkMessage) (time.Time, error) {
	if q == nil || q.reader == nil {
		return time.Time{}, queryDependencyError("query: watermark reader is required")
	}
	return q.reader.LoadWatermark(ctx, msg.ResourceType)
}

type GetBreakerStateQuery struct {
	reader BreakerStateReader
}

func NewGetBreakerStateQuery(reader BreakerStateReader) *GetBreakerStateQuery {
	return &GetBreakerStateQuery{reader: reader}
}

func (q *GetBreakerStateQuery) Query(ctx context.Context, _ GetBreakerStateMessage) (breaker.State, error) {
	if q == nil || q.reader == nil {
		return breaker.State{}, queryDependencyError("query: breaker state reader is required")
	}
	return q.reader.BreakerState(ctx)
}

type ListRequestLogQuery struct {
	reader RequestLogReader
}

func NewListRequestLogQuery(reader RequestLogReader) *ListRequestLogQuery {
	return &ListRequestLogQuery{reader: reader}
}

func (q *ListRequestLogQuery) Query(ctx context.Context, msg ListRequestLogMessage) ([]core.RequestLogEntry, error) {
	if q == nil || q.reader == nil {
		return nil, queryDependencyError("query: request log reader is required")
	}
	return q.reader.List(ctx, msg.Filter)
}

type LatestPollRunQuery struct {
	reader PollRunReader
}

func NewLatestPollRunQuery(reader PollRunReader) *LatestPollRunQuery {
	return &LatestPollRunQuery{reader: reader}
}

func (q *LatestPollRunQuery) Query(ctx context.Context, msg LatestPollRunMessage) (core.PollRun, error) {
	if q == nil || q.reader == nil {
		return core.PollRun{}, queryDependencyError("query: poll run reader is required")
	}
	return q.reader.Latest(ctx, msg.ResourceType)
}

type FindRecordsQuery struct {
	reader RecordReader
}

func NewFindRecordsQuery(reader RecordReader) *FindRecordsQuery {
	return &FindRecordsQuery{reader: reader}
}

func (q *FindRecordsQuery) Query(ctx context.Context, msg FindRecordsMessage) ([]core.Record, error) {
	if q == nil || q.reader == nil {
		return nil, queryDependencyError("query: record reader is required")
	}
	return q.reader.FindActive(ctx, msg.ResourceType, msg.Criteria)
}
