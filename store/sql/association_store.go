package sqlstore

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-tmsync/core"
	"github.com/uptrace/bun"
)

// AssociationStore keeps the contact GUID to account mapping. GUIDs are
// stored lowercased.
type AssociationStore struct {
	db  *bun.DB
	Now func() time.Time
}

func NewAssociationStore(db *bun.DB) (*AssociationStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	return &AssociationStore{db: db}, nil
}

func (s *AssociationStore) FindByContactGUID(ctx context.Context, contactGUID string) (core.ContactAssociation, error) {
	if s == nil || s.db == nil {
		return core.ContactAssociation{}, fmt.Errorf("sqlstore: association store is not configured")
	}
	row := &associationRow{}
	err := s.db.NewSelect().
		Model(row).
		Where("?TableAlias.contact_guid = ?", normalizeGUID(contactGUID)).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return core.ContactAssociation{}, core.ErrAssociationNotFound
		}
		return core.ContactAssociation{}, err
	}
	return row.toDomain(), nil
}

func (s *AssociationStore) Repoint(ctx context.Context, contactGUID string, accountID string) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: association store is not configured")
	}
	contactGUID = normalizeGUID(contactGUID)
	accountID = strings.TrimSpace(accountID)
	if contactGUID == "" || accountID == "" {
		return fmt.Errorf("sqlstore: contact guid and account id are required")
	}
	now := time.Now().UTC()
	if s.Now != nil {
		now = s.Now().UTC()
	}
	row := &associationRow{ContactGUID: contactGUID, AccountID: accountID, UpdatedAt: now}
	_, err := s.db.NewInsert().
		Model(row).
		On("CONFLICT (contact_guid) DO UPDATE").
		Set("account_id = EXCLUDED.account_id").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)
	return err
}

func normalizeGUID(guid string) string {
	return strings.ToLower(strings.TrimSpace(guid))
}
