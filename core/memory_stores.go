package core

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryRecordStore is an in-process RecordStore keyed by (resource type, GUID).
type MemoryRecordStore struct {
	mu        sync.RWMutex
	byID      map[string]Record
	byGUID    map[string]string
	mutations int
	Now       func() time.Time
}

func NewMemoryRecordStore() *MemoryRecordStore {
	return &MemoryRecordStore{
		byID:   map[string]Record{},
		byGUID: map[string]string{},
		Now:    func() time.Time { return time.Now().UTC() },
	}
}

func recordGUIDKey(resourceType string, guid string) string {
	return strings.ToLower(strings.TrimSpace(resourceType)) + "|" + strings.ToLower(strings.TrimSpace(guid))
}

// FindByGUID returns the record for guid, including soft-deleted rows.
func (s *MemoryRecordStore) FindByGUID(_ context.Context, resourceType string, guid string) (Record, error) {
	if s == nil {
		return Record{}, fmt.Errorf("core: record store is nil")
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byGUID[recordGUIDKey(resourceType, guid)]
	if !ok {
		return Record{}, ErrRecordNotFound
	}
	return cloneRecord(s.byID[id]), nil
}

func (s *MemoryRecordStore) Upsert(_ context.Context, record Record) (string, error) {
	if s == nil {
		return "", fmt.Errorf("core: record store is nil")
	}
	if strings.TrimSpace(record.ResourceType) == "" {
		return "", fmt.Errorf("core: record resource type is required")
	}
	if strings.TrimSpace(record.GUID) == "" {
		return "", fmt.Errorf("core: record guid is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	key := recordGUIDKey(record.ResourceType, record.GUID)
	if id, ok := s.byGUID[key]; ok {
		record.ID = id
	} else if strings.TrimSpace(record.ID) == "" {
		record.ID = uuid.NewString()
	}
	record.DeletedAt = nil
	if record.SyncedAt.IsZero() {
		record.SyncedAt = s.now()
	}
	s.byID[record.ID] = cloneRecord(record)
	s.byGUID[key] = record.ID
	s.mutations++
	return record.ID, nil
}

func (s *MemoryRecordStore) Delete(_ context.Context, id string) error {
	if s == nil {
		return fmt.Errorf("core: record store is nil")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	record, ok := s.byID[strings.TrimSpace(id)]
	if !ok {
		return ErrRecordNotFound
	}
	if record.DeletedAt != nil {
		return nil
	}
	now := s.now()
	record.DeletedAt = &now
	s.byID[record.ID] = record
	s.mutations++
	return nil
}

func (s *MemoryRecordStore) FindActive(_ context.Context, resourceType string, criteria Criteria) ([]Record, error) {
	if s == nil {
		return nil, fmt.Errorf("core: record store is nil")
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := []Record{}
	for _, record := range s.byID {
		if record.DeletedAt != nil || !strings.EqualFold(record.ResourceType, strings.TrimSpace(resourceType)) {
			continue
		}
		matched, err := MatchCriteria(record, criteria)
		if err != nil {
			return nil, err
		}
		if matched {
			out = append(out, cloneRecord(record))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].ExternalID == out[j].ExternalID {
			return out[i].GUID < out[j].GUID
		}
		return out[i].ExternalID < out[j].ExternalID
	})
	return out, nil
}

// Mutations counts writes applied through Upsert and Delete.
func (s *MemoryRecordStore) Mutations() int {
	if s == nil {
		return 0
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.mutations
}

func (s *MemoryRecordStore) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

// MatchCriteria evaluates an OR-of-equality criteria against a record.
func MatchCriteria(record Record, criteria Criteria) (bool, error) {
	if len(criteria.AnyOf) == 0 {
		return true, nil
	}
	for _, condition := range criteria.AnyOf {
		field, err := NormalizeCriteriaField(condition.Field)
		if err != nil {
			return false, err
		}
		value := strings.TrimSpace(fmt.Sprint(condition.Value))
		switch field {
		case CriteriaFieldGUID:
			if strings.EqualFold(record.GUID, value) {
				return true, nil
			}
		case CriteriaFieldStatus:
			if strings.EqualFold(record.Status, value) {
				return true, nil
			}
		case CriteriaFieldExternalID:
			id, parseErr := strconv.ParseInt(value, 10, 64)
			if parseErr != nil {
				return false, fmt.Errorf("core: external_id criteria %q is not numeric", value)
			}
			if record.ExternalID == id {
				return true, nil
			}
		}
	}
	return false, nil
}

func cloneRecord(record Record) Record {
	out := record
	if record.Attributes != nil {
		out.Attributes = make(map[string]any, len(record.Attributes))
		for key, value := range record.Attributes {
			out.Attributes[key] = value
		}
	}
	if record.References != nil {
		out.References = make(map[string]string, len(record.References))
		for key, value := range record.References {
			out.References[key] = value
		}
	}
	if record.DeletedAt != nil {
		deletedAt := *record.DeletedAt
		out.DeletedAt = &deletedAt
	}
	return out
}

// MemoryAccountDirectory is an in-process AccountDirectory.
type MemoryAccountDirectory struct {
	mu       sync.RWMutex
	accounts map[string]Account
	history  map[string]bool
}

func NewMemoryAccountDirectory() *MemoryAccountDirectory {
	return &MemoryAccountDirectory{
		accounts: map[string]Account{},
		history:  map[string]bool{},
	}
}

// Put registers an account and whether it has enrolment history.
func (d *MemoryAccountDirectory) Put(account Account, hasHistory bool) {
	if d == nil {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.accounts[account.ID] = account
	d.history[account.ID] = hasHistory
}

func (d *MemoryAccountDirectory) GetAccount(_ context.Context, accountID string) (Account, error) {
	if d == nil {
		return Account{}, fmt.Errorf("core: account directory is nil")
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	account, ok := d.accounts[strings.TrimSpace(accountID)]
	if !ok {
		return Account{}, ErrAccountNotFound
	}
	return account, nil
}

func (d *MemoryAccountDirectory) HasHistory(_ context.Context, accountID string) (bool, error) {
	if d == nil {
		return false, fmt.Errorf("core: account directory is nil")
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	if _, ok := d.accounts[strings.TrimSpace(accountID)]; !ok {
		return false, ErrAccountNotFound
	}
	return d.history[strings.TrimSpace(accountID)], nil
}

func (d *MemoryAccountDirectory) SetSuspended(_ context.Context, accountID string, suspended bool) error {
	if d == nil {
		return fmt.Errorf("core: account directory is nil")
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	account, ok := d.accounts[strings.TrimSpace(accountID)]
	if !ok {
		return ErrAccountNotFound
	}
	account.Suspended = suspended
	d.accounts[account.ID] = account
	return nil
}

// MemoryAssociationStore is an in-process AssociationStore.
type MemoryAssociationStore struct {
	mu           sync.RWMutex
	associations map[string]ContactAssociation
	Now          func() time.Time
}

func NewMemoryAssociationStore() *MemoryAssociationStore {
	return &MemoryAssociationStore{associations: map[string]ContactAssociation{}}
}

func (s *MemoryAssociationStore) FindByContactGUID(_ context.Context, contactGUID string) (ContactAssociation, error) {
	if s == nil {
		return ContactAssociation{}, fmt.Errorf("core: association store is nil")
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	association, ok := s.associations[strings.ToLower(strings.TrimSpace(contactGUID))]
	if !ok {
		return ContactAssociation{}, ErrAssociationNotFound
	}
	return association, nil
}

func (s *MemoryAssociationStore) Repoint(_ context.Context, contactGUID string, accountID string) error {
	if s == nil {
		return fmt.Errorf("core: association store is nil")
	}
	contactGUID = strings.TrimSpace(contactGUID)
	accountID = strings.TrimSpace(accountID)
	if contactGUID == "" || accountID == "" {
		return fmt.Errorf("core: contact guid and account id are required")
	}
	now := time.Now().UTC()
	if s.Now != nil {
		now = s.Now().UTC()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.associations[strings.ToLower(contactGUID)] = ContactAssociation{
		ContactGUID: contactGUID,
		AccountID:   accountID,
		UpdatedAt:   now,
	}
	return nil
}

// MemoryMergeRequestStore is an in-process MergeRequestStore keyed by request GUID.
type MemoryMergeRequestStore struct {
	mu       sync.RWMutex
	requests map[string]MergeRequest
	order    []string
}

func NewMemoryMergeRequestStore() *MemoryMergeRequestStore {
	return &MemoryMergeRequestStore{requests: map[string]MergeRequest{}}
}

// Save inserts a new request or refreshes an active one. Inactive requests stay inactive.
func (s *MemoryMergeRequestStore) Save(_ context.Context, request MergeRequest) (MergeRequest, error) {
	if s == nil {
		return MergeRequest{}, fmt.Errorf("core: merge request store is nil")
	}
	if strings.TrimSpace(request.GUID) == "" {
		return MergeRequest{}, fmt.Errorf("core: merge request guid is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	key := strings.ToLower(strings.TrimSpace(request.GUID))
	existing, ok := s.requests[key]
	if ok {
		if !existing.Active {
			return existing, nil
		}
		existing.ExternalID = request.ExternalID
		existing.SourceGUID = request.SourceGUID
		existing.DestinationGUID = request.DestinationGUID
		s.requests[key] = existing
		return existing, nil
	}
	if strings.TrimSpace(request.ID) == "" {
		request.ID = uuid.NewString()
	}
	if request.CreatedAt.IsZero() {
		request.CreatedAt = time.Now().UTC()
	}
	request.Active = true
	s.requests[key] = request
	s.order = append(s.order, key)
	return request, nil
}

func (s *MemoryMergeRequestStore) ListActiveBySource(_ context.Context, sourceGUID string) ([]MergeRequest, error) {
	if s == nil {
		return nil, fmt.Errorf("core: merge request store is nil")
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []MergeRequest{}
	for _, key := range s.order {
		request := s.requests[key]
		if request.Active && strings.EqualFold(request.SourceGUID, strings.TrimSpace(sourceGUID)) {
			out = append(out, request)
		}
	}
	return out, nil
}

func (s *MemoryMergeRequestStore) ListActiveSources(context.Context) ([]string, error) {
	if s == nil {
		return nil, fmt.Errorf("core: merge request store is nil")
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	seen := map[string]struct{}{}
	out := []string{}
	for _, key := range s.order {
		request := s.requests[key]
		if !request.Active {
			continue
		}
		source := strings.ToLower(strings.TrimSpace(request.SourceGUID))
		if _, ok := seen[source]; ok || source == "" {
			continue
		}
		seen[source] = struct{}{}
		out = append(out, request.SourceGUID)
	}
	return out, nil
}

func (s *MemoryMergeRequestStore) Deactivate(
	_ context.Context,
	id string,
	sourceAccountID string,
	destinationAccountID string,
	at time.Time,
) error {
	if s == nil {
		return fmt.Errorf("core: merge request store is nil")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for key, request := range s.requests {
		if request.ID != strings.TrimSpace(id) {
			continue
		}
		resolvedAt := at.UTC()
		request.Active = false
		request.SourceAccountID = sourceAccountID
		request.DestinationAccountID = destinationAccountID
		request.ResolvedAt = &resolvedAt
		s.requests[key] = request
		return nil
	}
	return ErrMergeRequestNotFound
}

// Get returns a request by GUID.
func (s *MemoryMergeRequestStore) Get(guid string) (MergeRequest, bool) {
	if s == nil {
		return MergeRequest{}, false
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	request, ok := s.requests[strings.ToLower(strings.TrimSpace(guid))]
	return request, ok
}

// MemoryRequestLogStore is an append-only in-process request log.
type MemoryRequestLogStore struct {
	mu      sync.RWMutex
	entries []RequestLogEntry
}

func NewMemoryRequestLogStore() *MemoryRequestLogStore {
	return &MemoryRequestLogStore{}
}

func (s *MemoryRequestLogStore) Append(_ context.Context, entry RequestLogEntry) error {
	if s == nil {
		return fmt.Errorf("core: request log store is nil")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	entry.ID = int64(len(s.entries) + 1)
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	s.entries = append(s.entries, entry)
	return nil
}

// List returns entries newest first.
func (s *MemoryRequestLogStore) List(_ context.Context, filter RequestLogFilter) ([]RequestLogEntry, error) {
	if s == nil {
		return nil, fmt.Errorf("core: request log store is nil")
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []RequestLogEntry{}
	for i := len(s.entries) - 1; i >= 0; i-- {
		entry := s.entries[i]
		if filter.StatusCode != 0 && entry.StatusCode != filter.StatusCode {
			continue
		}
		if !filter.Since.IsZero() && entry.CreatedAt.Before(filter.Since) {
			continue
		}
		out = append(out, entry)
		if filter.Limit > 0 && len(out) >= filter.Limit {
			break
		}
	}
	return out, nil
}

// MemoryPollRunStore is an in-process PollRunStore.
type MemoryPollRunStore struct {
	mu   sync.RWMutex
	runs map[string]PollRun
	seq  int
	idx  map[string]int
}

func NewMemoryPollRunStore() *MemoryPollRunStore {
	return &MemoryPollRunStore{runs: map[string]PollRun{}, idx: map[string]int{}}
}

func (s *MemoryPollRunStore) Create(_ context.Context, run PollRun) (PollRun, error) {
	if s == nil {
		return PollRun{}, fmt.Errorf("core: poll run store is nil")
	}
	if strings.TrimSpace(run.ResourceType) == "" {
		return PollRun{}, fmt.Errorf("core: poll run resource type is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if strings.TrimSpace(run.ID) == "" {
		run.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if run.CreatedAt.IsZero() {
		run.CreatedAt = now
	}
	if run.UpdatedAt.IsZero() {
		run.UpdatedAt = run.CreatedAt
	}
	if run.Status == "" {
		run.Status = PollRunStatusQueued
	}
	s.seq++
	s.idx[run.ID] = s.seq
	s.runs[run.ID] = run
	return run, nil
}

func (s *MemoryPollRunStore) Update(_ context.Context, run PollRun) error {
	if s == nil {
		return fmt.Errorf("core: poll run store is nil")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.runs[run.ID]; !ok {
		return ErrPollRunNotFound
	}
	s.runs[run.ID] = run
	return nil
}

func (s *MemoryPollRunStore) Get(_ context.Context, id string) (PollRun, error) {
	if s == nil {
		return PollRun{}, fmt.Errorf("core: poll run store is nil")
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	run, ok := s.runs[strings.TrimSpace(id)]
	if !ok {
		return PollRun{}, ErrPollRunNotFound
	}
	return run, nil
}

func (s *MemoryPollRunStore) Latest(_ context.Context, resourceType string) (PollRun, error) {
	if s == nil {
		return PollRun{}, fmt.Errorf("core: poll run store is nil")
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	var (
		latest PollRun
		seq    int
	)
	for id, run := range s.runs {
		if !strings.EqualFold(run.ResourceType, strings.TrimSpace(resourceType)) {
			continue
		}
		if s.idx[id] > seq {
			seq = s.idx[id]
			latest = run
		}
	}
	if seq == 0 {
		return PollRun{}, ErrPollRunNotFound
	}
	return latest, nil
}

var (
	_ RecordStore       = (*MemoryRecordStore)(nil)
	_ AccountDirectory  = (*MemoryAccountDirectory)(nil)
	_ AssociationStore  = (*MemoryAssociationStore)(nil)
	_ MergeRequestStore = (*MemoryMergeRequestStore)(nil)
	_ RequestLogStore   = (*MemoryRequestLogStore)(nil)
	_ PollRunStore      = (*MemoryPollRunStore)(nil)
)
