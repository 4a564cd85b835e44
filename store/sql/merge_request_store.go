package sqlstore

import (
	"context"
	"fmt"
	"strings"
	"time"

	repository "github.com/goliatone/go-repository-bun"
	"github.com/goliatone/go-tmsync/core"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// MergeRequestStore persists merge request lifecycles. Listing order follows
// the seq column, assigned on insert.
type MergeRequestStore struct {
	db   *bun.DB
	repo repository.Repository[*mergeRequestRow]
}

func NewMergeRequestStore(db *bun.DB) (*MergeRequestStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo, err := newRepository("merge request", repository.NewRepository[*mergeRequestRow](db, mergeRequestHandlers()))
	if err != nil {
		return nil, err
	}
	return &MergeRequestStore{db: db, repo: repo}, nil
}

// Save inserts a new request or refreshes an active one. Inactive requests stay inactive.
func (s *MergeRequestStore) Save(ctx context.Context, request core.MergeRequest) (core.MergeRequest, error) {
	if s == nil || s.db == nil {
		return core.MergeRequest{}, fmt.Errorf("sqlstore: merge request store is not configured")
	}
	request.GUID = strings.TrimSpace(request.GUID)
	if request.GUID == "" {
		return core.MergeRequest{}, fmt.Errorf("sqlstore: merge request guid is required")
	}
	out, err := s.saveTx(ctx, request)
	if isUniqueViolation(err) {
		out, err = s.saveTx(ctx, request)
	}
	return out, err
}

func (s *MergeRequestStore) saveTx(ctx context.Context, request core.MergeRequest) (core.MergeRequest, error) {
	var out core.MergeRequest
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		existing := &mergeRequestRow{}
		err := tx.NewSelect().
			Model(existing).
			Where("LOWER(?TableAlias.guid) = ?", normalizeGUID(request.GUID)).
			Limit(1).
			Scan(ctx)
		switch {
		case err == nil:
			if !existing.Active {
				out = existing.toDomain()
				return nil
			}
			existing.ExternalID = request.ExternalID
			existing.SourceGUID = strings.TrimSpace(request.SourceGUID)
			existing.DestinationGUID = strings.TrimSpace(request.DestinationGUID)
			if _, err := tx.NewUpdate().
				Model(existing).
				Column("external_id", "source_guid", "destination_guid").
				Where("id = ?", existing.ID).
				Exec(ctx); err != nil {
				return err
			}
			out = existing.toDomain()
			return nil
		case !isNoRows(err):
			return err
		}

		seq, err := nextSeq(ctx, tx, (*mergeRequestRow)(nil))
		if err != nil {
			return err
		}
		row := &mergeRequestRow{
			ID:              strings.TrimSpace(request.ID),
			ExternalID:      request.ExternalID,
			GUID:            request.GUID,
			SourceGUID:      strings.TrimSpace(request.SourceGUID),
			DestinationGUID: strings.TrimSpace(request.DestinationGUID),
			Active:          true,
			Seq:             seq,
			CreatedAt:       request.CreatedAt.UTC(),
		}
		if row.ID == "" {
			row.ID = uuid.NewString()
		}
		if row.CreatedAt.IsZero() {
			row.CreatedAt = time.Now().UTC()
		}
		if _, err := s.repo.CreateTx(ctx, tx, row); err != nil {
			return err
		}
		out = row.toDomain()
		return nil
	})
	if err != nil {
		return core.MergeRequest{}, err
	}
	return out, nil
}

func (s *MergeRequestStore) ListActiveBySource(ctx context.Context, sourceGUID string) ([]core.MergeRequest, error) {
	if s == nil || s.repo == nil {
		return nil, fmt.Errorf("sqlstore: merge request store is not configured")
	}
	rows, _, err := s.repo.List(ctx,
		repository.SelectRawProcessor(func(q *bun.SelectQuery) *bun.SelectQuery {
			return q.Where("?TableAlias.active = ?", true).
				Where("LOWER(?TableAlias.source_guid) = ?", normalizeGUID(sourceGUID))
		}),
		repository.OrderBy("seq ASC"),
	)
	if err != nil {
		return nil, err
	}
	out := make([]core.MergeRequest, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toDomain())
	}
	return out, nil
}

// ListActiveSources returns distinct source GUIDs of active requests in
// first-seen order.
func (s *MergeRequestStore) ListActiveSources(ctx context.Context) ([]string, error) {
	if s == nil || s.repo == nil {
		return nil, fmt.Errorf("sqlstore: merge request store is not configured")
	}
	rows, _, err := s.repo.List(ctx,
		repository.SelectRawProcessor(func(q *bun.SelectQuery) *bun.SelectQuery {
			return q.Where("?TableAlias.active = ?", true)
		}),
		repository.OrderBy("seq ASC"),
	)
	if err != nil {
		return nil, err
	}
	seen := map[string]struct{}{}
	out := []string{}
	for _, row := range rows {
		source := normalizeGUID(row.SourceGUID)
		if _, ok := seen[source]; ok || source == "" {
			continue
		}
		seen[source] = struct{}{}
		out = append(out, row.SourceGUID)
	}
	return out, nil
}

func (s *MergeRequestStore) Deactivate(
	ctx context.Context,
	id string,
	sourceAccountID string,
	destinationAccountID string,
	at time.Time,
) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: merge request store is not configured")
	}
	result, err := s.db.NewUpdate().
		Model((*mergeRequestRow)(nil)).
		Set("active = ?", false).
		Set("source_account_id = ?", sourceAccountID).
		Set("destination_account_id = ?", destinationAccountID).
		Set("resolved_at = ?", at.UTC()).
		Where("id = ?", strings.TrimSpace(id)).
		Exec(ctx)
	if err != nil {
		return err
	}
	if affected, err := result.RowsAffected(); err == nil && affected == 0 {
		return core.ErrMergeRequestNotFound
	}
	return nil
}

// Get returns a request by GUID.
func (s *MergeRequestStore) Get(ctx context.Context, guid string) (core.MergeRequest, error) {
	if s == nil || s.db == nil {
		return core.MergeRequest{}, fmt.Errorf("sqlstore: merge request store is not configured")
	}
	row := &mergeRequestRow{}
	err := s.db.NewSelect().
		Model(row).
		Where("LOWER(?TableAlias.guid) = ?", normalizeGUID(guid)).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return core.MergeRequest{}, core.ErrMergeRequestNotFound
		}
		return core.MergeRequest{}, err
	}
	return row.toDomain(), nil
}

// nextSeq returns max(seq)+1 for the model's table inside tx.
func nextSeq(ctx context.Context, tx bun.Tx, model any) (int64, error) {
	var current int64
	if err := tx.NewSelect().
		Model(model).
		ColumnExpr("COALESCE(MAX(seq), 0)").
		Scan(ctx, &current); err != nil {
		return 0, err
	}
	return current + 1, nil
}
