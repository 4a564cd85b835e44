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

type PollRunStore struct {
	db   *bun.DB
	repo repository.Repository[*pollRunRow]
}

func NewPollRunStore(db *bun.DB) (*PollRunStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo, err := newRepository("poll run", repository.NewRepository[*pollRunRow](db, pollRunHandlers()))
	if err != nil {
		return nil, err
	}
	return &PollRunStore{db: db, repo: repo}, nil
}

func (s *PollRunStore) Create(ctx context.Context, run core.PollRun) (core.PollRun, error) {
	if s == nil || s.db == nil {
		return core.PollRun{}, fmt.Errorf("sqlstore: poll run store is not configured")
	}
	run.ResourceType = strings.TrimSpace(run.ResourceType)
	if run.ResourceType == "" {
		return core.PollRun{}, fmt.Errorf("sqlstore: poll run resource type is required")
	}
	if strings.TrimSpace(run.ID) == "" {
		run.ID = uuid.NewString()
	}
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now().UTC()
	}
	if run.UpdatedAt.IsZero() {
		run.UpdatedAt = run.CreatedAt
	}
	if run.Status == "" {
		run.Status = core.PollRunStatusQueued
	}

	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		seq, err := nextSeq(ctx, tx, (*pollRunRow)(nil))
		if err != nil {
			return err
		}
		row := newPollRunRow(run)
		row.Seq = seq
		_, err = s.repo.CreateTx(ctx, tx, row)
		return err
	})
	if err != nil {
		return core.PollRun{}, err
	}
	return run, nil
}

func (s *PollRunStore) Update(ctx context.Context, run core.PollRun) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: poll run store is not configured")
	}
	row := newPollRunRow(run)
	result, err := s.db.NewUpdate().
		Model(row).
		ExcludeColumn("id", "seq", "created_at").
		Where("id = ?", strings.TrimSpace(run.ID)).
		Exec(ctx)
	if err != nil {
		return err
	}
	if affected, err := result.RowsAffected(); err == nil && affected == 0 {
		return core.ErrPollRunNotFound
	}
	return nil
}

func (s *PollRunStore) Get(ctx context.Context, id string) (core.PollRun, error) {
	if s == nil || s.db == nil {
		return core.PollRun{}, fmt.Errorf("sqlstore: poll run store is not configured")
	}
	row := &pollRunRow{}
	err := s.db.NewSelect().Model(row).Where("?TableAlias.id = ?", strings.TrimSpace(id)).Limit(1).Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return core.PollRun{}, core.ErrPollRunNotFound
		}
		return core.PollRun{}, err
	}
	return row.toDomain(), nil
}

func (s *PollRunStore) Latest(ctx context.Context, resourceType string) (core.PollRun, error) {
	if s == nil || s.db == nil {
		return core.PollRun{}, fmt.Errorf("sqlstore: poll run store is not configured")
	}
	row := &pollRunRow{}
	err := s.db.NewSelect().
		Model(row).
		Where("LOWER(?TableAlias.resource_type) = ?", strings.ToLower(strings.TrimSpace(resourceType))).
		OrderExpr("?TableAlias.seq DESC").
		Limit(1).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return core.PollRun{}, core.ErrPollRunNotFound
		}
		return core.PollRun{}, err
	}
	return row.toDomain(), nil
}
