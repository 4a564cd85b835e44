package webhooks

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-tmsync/core"
)

// Event is one resource change notification.
type Event struct {
	ID           string
	ResourceType string
	ResourceID   string
	ResourceURI  string
	Type         string
	OccurredAt   time.Time
}

func (e Event) LockKey() core.LockKey {
	return core.LockKey{ResourceType: e.ResourceType, ResourceID: e.ResourceID}
}

func (e Event) Validate() error {
	if strings.TrimSpace(e.ResourceType) == "" {
		return malformed("webhooks: event resourceType is required", e)
	}
	if strings.TrimSpace(e.ResourceID) == "" {
		return malformed("webhooks: event resourceId is required", e)
	}
	return nil
}

// rawEvent accepts identifiers sent either as JSON strings or numbers.
type rawEvent struct {
	ID           json.RawMessage `json:"eventId"`
	ResourceType string          `json:"resourceType"`
	ResourceID   json.RawMessage `json:"resourceId"`
	ResourceURI  string          `json:"resourceUri"`
	Type         string          `json:"eventType"`
	DateTime     string          `json:"dateTime"`
}

type rawDocument struct {
	Events []rawEvent `json:"events"`
}

// DecodeEvents reads a batch document {"events":[...]} or a single event object.
func DecodeEvents(body []byte) ([]Event, error) {
	body = bytes.TrimSpace(body)
	if len(body) == 0 {
		return nil, core.NewError(core.ErrMalformedPayload, "webhooks: event body is empty", nil)
	}

	var probe map[string]json.RawMessage
	if err := json.Unmarshal(body, &probe); err != nil {
		return nil, core.NewError(core.ErrMalformedPayload, fmt.Sprintf("webhooks: event body is not a json object: %v", err), nil)
	}

	var raws []rawEvent
	if _, batch := probe["events"]; batch {
		var doc rawDocument
		if err := json.Unmarshal(body, &doc); err != nil {
			return nil, core.NewError(core.ErrMalformedPayload, fmt.Sprintf("webhooks: decode events: %v", err), nil)
		}
		raws = doc.Events
	} else {
		var single rawEvent
		if err := json.Unmarshal(body, &single); err != nil {
			return nil, core.NewError(core.ErrMalformedPayload, fmt.Sprintf("webhooks: decode event: %v", err), nil)
		}
		raws = []rawEvent{single}
	}
	if len(raws) == 0 {
		return nil, core.NewError(core.ErrMalformedPayload, "webhooks: event document has no events", nil)
	}

	events := make([]Event, 0, len(raws))
	for _, raw := range raws {
		event, err := raw.event()
		if err != nil {
			return nil, err
		}
		if err := event.Validate(); err != nil {
			return nil, err
		}
		events = append(events, event)
	}
	return events, nil
}

func (r rawEvent) event() (Event, error) {
	event := Event{
		ID:           scalar(r.ID),
		ResourceType: strings.TrimSpace(r.ResourceType),
		ResourceID:   scalar(r.ResourceID),
		ResourceURI:  strings.TrimSpace(r.ResourceURI),
		Type:         strings.TrimSpace(r.Type),
	}
	if at := strings.TrimSpace(r.DateTime); at != "" {
		parsed, err := time.Parse(time.RFC3339Nano, at)
		if err != nil {
			return Event{}, malformed(fmt.Sprintf("webhooks: event dateTime %q is invalid", at), event)
		}
		event.OccurredAt = parsed.UTC()
	}
	return event, nil
}

// scalar renders a JSON string or number as text.
func scalar(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return ""
	}
	var text string
	if err := json.Unmarshal(raw, &text); err == nil {
		return strings.TrimSpace(text)
	}
	return strings.TrimSpace(string(raw))
}

func malformed(message string, event Event) error {
	return core.NewError(core.ErrMalformedPayload, message, map[string]any{
		"event_id":      event.ID,
		"resource_type": event.ResourceType,
		"resource_id":   event.ResourceID,
	})
}
