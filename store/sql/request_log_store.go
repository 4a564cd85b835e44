package sqlstore

import (
	"context"
	"fmt"
	"time"

	"github.com/goliatone/go-tmsync/core"
	"github.com/uptrace/bun"
)

// RequestLogStore is the append-only log of outbound API calls.
type RequestLogStore struct {
	db *bun.DB
}

func NewRequestLogStore(db *bun.DB) (*RequestLogStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	return &RequestLogStore{db: db}, nil
}

func (s *RequestLogStore) Append(ctx context.Context, entry core.RequestLogEntry) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: request log store is not configured")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	row := &requestLogRow{
		Platform:   entry.Platform,
		Method:     entry.Method,
		URI:        entry.URI,
		StatusCode: entry.StatusCode,
		Detail:     entry.Detail,
		DurationMS: entry.DurationMS,
		CreatedAt:  entry.CreatedAt.UTC(),
	}
	_, err := s.db.NewInsert().Model(row).Exec(ctx)
	return err
}

// List returns entries newest first.
func (s *RequestLogStore) List(ctx context.Context, filter core.RequestLogFilter) ([]core.RequestLogEntry, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("sqlstore: request log store is not configured")
	}
	rows := []*requestLogRow{}
	q := s.db.NewSelect().Model(&rows).OrderExpr("?TableAlias.id DESC")
	if filter.StatusCode != 0 {
		q = q.Where("?TableAlias.status_code = ?", filter.StatusCode)
	}
	if !filter.Since.IsZero() {
		q = q.Where("?TableAlias.created_at >= ?", filter.Since.UTC())
	}
	if filter.Limit > 0 {
		q = q.Limit(filter.Limit)
	}
	if err := q.Scan(ctx); err != nil {
		return nil, err
	}
	out := make([]core.RequestLogEntry, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toDomain())
	}
	return out, nil
}
