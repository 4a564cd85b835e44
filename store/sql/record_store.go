package sqlstore

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	repository "github.com/goliatone/go-repository-bun"
	"github.com/goliatone/go-tmsync/core"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// RecordStore persists reconciled resources in tmsync_records. Lookups by
// type and GUID are case-insensitive and include soft-deleted rows.
type RecordStore struct {
	db   *bun.DB
	repo repository.Repository[*recordRow]
	Now  func() time.Time
}

func NewRecordStore(db *bun.DB) (*RecordStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo, err := newRepository("record", repository.NewRepository[*recordRow](db, recordHandlers()))
	if err != nil {
		return nil, err
	}
	return &RecordStore{db: db, repo: repo}, nil
}

func (s *RecordStore) FindByGUID(ctx context.Context, resourceType string, guid string) (core.Record, error) {
	if s == nil || s.db == nil {
		return core.Record{}, fmt.Errorf("sqlstore: record store is not configured")
	}
	row, err := findRecordByGUID(ctx, s.db, resourceType, guid)
	if err != nil {
		return core.Record{}, err
	}
	if row == nil {
		return core.Record{}, core.ErrRecordNotFound
	}
	return row.toDomain(), nil
}

func (s *RecordStore) Upsert(ctx context.Context, record core.Record) (string, error) {
	if s == nil || s.db == nil {
		return "", fmt.Errorf("sqlstore: record store is not configured")
	}
	record.ResourceType = strings.TrimSpace(record.ResourceType)
	record.GUID = strings.TrimSpace(record.GUID)
	if record.ResourceType == "" {
		return "", fmt.Errorf("sqlstore: record resource type is required")
	}
	if record.GUID == "" {
		return "", fmt.Errorf("sqlstore: record guid is required")
	}
	now := s.now()
	if record.SyncedAt.IsZero() {
		record.SyncedAt = now
	}
	record.DeletedAt = nil

	id, err := s.upsertTx(ctx, record, now)
	if isUniqueViolation(err) {
		// A concurrent writer inserted the same GUID; the retry takes the update path.
		id, err = s.upsertTx(ctx, record, now)
	}
	return id, err
}

func (s *RecordStore) upsertTx(ctx context.Context, record core.Record, now time.Time) (string, error) {
	var id string
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		existing, err := findRecordByGUID(ctx, tx, record.ResourceType, record.GUID)
		if err != nil {
			return err
		}
		row := newRecordRow(record)
		row.UpdatedAt = now
		if existing == nil {
			if strings.TrimSpace(row.ID) == "" {
				row.ID = uuid.NewString()
			}
			row.CreatedAt = now
			if _, err := s.repo.CreateTx(ctx, tx, row); err != nil {
				return err
			}
			id = row.ID
			return nil
		}

		row.ID = existing.ID
		row.CreatedAt = existing.CreatedAt
		if _, err := tx.NewUpdate().
			Model(row).
			ExcludeColumn("created_at").
			Where("id = ?", row.ID).
			Exec(ctx); err != nil {
			return err
		}
		id = row.ID
		return nil
	})
	if err != nil {
		return "", err
	}
	return id, nil
}

// Delete soft-deletes the record. Deleting an already deleted record is a no-op.
func (s *RecordStore) Delete(ctx context.Context, id string) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: record store is not configured")
	}
	id = strings.TrimSpace(id)
	row := &recordRow{}
	err := s.db.NewSelect().Model(row).Where("?TableAlias.id = ?", id).Limit(1).Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return core.ErrRecordNotFound
		}
		return err
	}
	if row.DeletedAt != nil {
		return nil
	}
	now := s.now()
	_, err = s.db.NewUpdate().
		Model((*recordRow)(nil)).
		Set("deleted_at = ?", now).
		Set("updated_at = ?", now).
		Where("id = ?", id).
		Where("deleted_at IS NULL").
		Exec(ctx)
	return err
}

func (s *RecordStore) FindActive(ctx context.Context, resourceType string, criteria core.Criteria) ([]core.Record, error) {
	if s == nil || s.repo == nil {
		return nil, fmt.Errorf("sqlstore: record store is not configured")
	}
	conditions, err := criteriaConditions(criteria)
	if err != nil {
		return nil, err
	}
	rows, _, err := s.repo.List(ctx,
		repository.SelectRawProcessor(func(q *bun.SelectQuery) *bun.SelectQuery {
			q = q.Where("LOWER(?TableAlias.resource_type) = ?", strings.ToLower(strings.TrimSpace(resourceType))).
				Where("?TableAlias.deleted_at IS NULL")
			if len(conditions) == 0 {
				return q
			}
			return q.WhereGroup(" AND ", func(q *bun.SelectQuery) *bun.SelectQuery {
				for _, condition := range conditions {
					q = q.WhereOr(condition.expr, condition.value)
				}
				return q
			})
		}),
		repository.OrderBy("external_id ASC"),
		repository.OrderBy("guid ASC"),
	)
	if err != nil {
		return nil, err
	}
	out := make([]core.Record, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toDomain())
	}
	return out, nil
}

type sqlCondition struct {
	expr  string
	value any
}

func criteriaConditions(criteria core.Criteria) ([]sqlCondition, error) {
	out := make([]sqlCondition, 0, len(criteria.AnyOf))
	for _, condition := range criteria.AnyOf {
		field, err := core.NormalizeCriteriaField(condition.Field)
		if err != nil {
			return nil, err
		}
		value := strings.TrimSpace(fmt.Sprint(condition.Value))
		switch field {
		case core.CriteriaFieldGUID:
			out = append(out, sqlCondition{expr: "LOWER(?TableAlias.guid) = ?", value: strings.ToLower(value)})
		case core.CriteriaFieldStatus:
			out = append(out, sqlCondition{expr: "LOWER(?TableAlias.status) = ?", value: strings.ToLower(value)})
		case core.CriteriaFieldExternalID:
			id, parseErr := strconv.ParseInt(value, 10, 64)
			if parseErr != nil {
				return nil, fmt.Errorf("sqlstore: external_id criteria %q is not numeric", value)
			}
			out = append(out, sqlCondition{expr: "?TableAlias.external_id = ?", value: id})
		}
	}
	return out, nil
}

func findRecordByGUID(ctx context.Context, db bun.IDB, resourceType string, guid string) (*recordRow, error) {
	row := &recordRow{}
	err := db.NewSelect().
		Model(row).
		Where("LOWER(?TableAlias.resource_type) = ?", strings.ToLower(strings.TrimSpace(resourceType))).
		Where("LOWER(?TableAlias.guid) = ?", strings.ToLower(strings.TrimSpace(guid))).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, err
	}
	return row, nil
}

func (s *RecordStore) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}
