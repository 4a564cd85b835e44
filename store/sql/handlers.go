package sqlstore

import (
	"strings"

	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
)

func recordHandlers() repository.ModelHandlers[*recordRow] {
	return repository.ModelHandlers[*recordRow]{
		NewRecord: func() *recordRow {
			return &recordRow{}
		},
		GetID: func(record *recordRow) uuid.UUID {
			if record == nil {
				return uuid.Nil
			}
			return parseUUID(record.ID)
		},
		SetID: func(record *recordRow, id uuid.UUID) {
			if record == nil {
				return
			}
			record.ID = id.String()
		},
		GetIdentifier: func() string {
			return "id"
		},
		GetIdentifierValue: func(record *recordRow) string {
			if record == nil {
				return ""
			}
			return strings.TrimSpace(record.ID)
		},
	}
}

func mergeRequestHandlers() repository.ModelHandlers[*mergeRequestRow] {
	return repository.ModelHandlers[*mergeRequestRow]{
		NewRecord: func() *mergeRequestRow {
			return &mergeRequestRow{}
		},
		GetID: func(record *mergeRequestRow) uuid.UUID {
			if record == nil {
				return uuid.Nil
			}
			return parseUUID(record.ID)
		},
		SetID: func(record *mergeRequestRow, id uuid.UUID) {
			if record == nil {
				return
			}
			record.ID = id.String()
		},
		GetIdentifier: func() string {
			return "id"
		},
		GetIdentifierValue: func(record *mergeRequestRow) string {
			if record == nil {
				return ""
			}
			return strings.TrimSpace(record.ID)
		},
	}
}

func pollRunHandlers() repository.ModelHandlers[*pollRunRow] {
	return repository.ModelHandlers[*pollRunRow]{
		NewRecord: func() *pollRunRow {
			return &pollRunRow{}
		},
		GetID: func(record *pollRunRow) uuid.UUID {
			if record == nil {
				return uuid.Nil
			}
			return parseUUID(record.ID)
		},
		SetID: func(record *pollRunRow, id uuid.UUID) {
			if record == nil {
				return
			}
			record.ID = id.String()
		},
		GetIdentifier: func() string {
			return "id"
		},
		GetIdentifierValue: func(record *pollRunRow) string {
			if record == nil {
				return ""
			}
			return strings.TrimSpace(record.ID)
		},
	}
}

func parseUUID(value string) uuid.UUID {
	parsed, err := uuid.Parse(strings.TrimSpace(value))
	if err != nil {
		return uuid.Nil
	}
	return parsed
}
