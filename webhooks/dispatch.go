package webhooks

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-tmsync/core"
)

const JobIDWebhookEvent = "tmsync.webhook.event"

// Dispatcher hands a verified event to processing. Both implementations end in
// Ingestor.Process, so the same lock-guarded path is used either way.
type Dispatcher interface {
	Dispatch(ctx context.Context, event Event) (EventResult, error)
}

type EventProcessor interface {
	Process(ctx context.Context, event Event) EventResult
}

type InlineDispatcher struct {
	Processor EventProcessor
}

func (d InlineDispatcher) Dispatch(ctx context.Context, event Event) (EventResult, error) {
	if d.Processor == nil {
		return EventResult{}, fmt.Errorf("webhooks: inline dispatcher requires a processor")
	}
	return d.Processor.Process(ctx, event), nil
}

// QueueDispatcher defers processing to a job queue to absorb bursts.
type QueueDispatcher struct {
	Enqueuer core.JobEnqueuer
}

func NewQueueDispatcher(enqueuer core.JobEnqueuer) *QueueDispatcher {
	return &QueueDispatcher{Enqueuer: enqueuer}
}

func (d *QueueDispatcher) Dispatch(ctx context.Context, event Event) (EventResult, error) {
	if d == nil || d.Enqueuer == nil {
		return EventResult{}, fmt.Errorf("webhooks: queue dispatcher requires an enqueuer")
	}
	if err := d.Enqueuer.Enqueue(ctx, JobMessage(event)); err != nil {
		return EventResult{}, err
	}
	return EventResult{Event: event, Outcome: OutcomeQueued}, nil
}

// JobMessage encodes event as a queue message. Events without an id are keyed
// by their resource so duplicates collapse in the queue.
func JobMessage(event Event) *core.JobExecutionMessage {
	params := map[string]any{
		"event_id":      event.ID,
		"resource_type": event.ResourceType,
		"resource_id":   event.ResourceID,
		"resource_uri":  event.ResourceURI,
		"event_type":    event.Type,
	}
	if !event.OccurredAt.IsZero() {
		params["date_time"] = event.OccurredAt.UTC().Format(time.RFC3339Nano)
	}
	key := strings.TrimSpace(event.ID)
	if key == "" {
		key = event.LockKey().String() + ":" + strings.ToLower(strings.TrimSpace(event.Type))
	}
	return &core.JobExecutionMessage{
		JobID:          JobIDWebhookEvent,
		ScriptPath:     JobIDWebhookEvent,
		Parameters:     params,
		IdempotencyKey: "webhook:" + key,
		DedupPolicy:    "drop",
	}
}

// EventFromJob decodes a message built by JobMessage.
func EventFromJob(msg *core.JobExecutionMessage) (Event, error) {
	if msg == nil {
		return Event{}, fmt.Errorf("webhooks: job message is nil")
	}
	if strings.TrimSpace(msg.JobID) != JobIDWebhookEvent {
		return Event{}, fmt.Errorf("webhooks: unexpected job id %q", msg.JobID)
	}
	text := func(key string) string {
		value, ok := msg.Parameters[key]
		if !ok || value == nil {
			return ""
		}
		return strings.TrimSpace(fmt.Sprint(value))
	}
	event := Event{
		ID:           text("event_id"),
		ResourceType: text("resource_type"),
		ResourceID:   text("resource_id"),
		ResourceURI:  text("resource_uri"),
		Type:         text("event_type"),
	}
	if at := text("date_time"); at != "" {
		parsed, err := time.Parse(time.RFC3339Nano, at)
		if err != nil {
			return Event{}, malformed(fmt.Sprintf("webhooks: job date_time %q is invalid", at), event)
		}
		event.OccurredAt = parsed.UTC()
	}
	if err := event.Validate(); err != nil {
		return Event{}, err
	}
	return event, nil
}

// ProcessDelivery is the queue worker entry point. Undecodable messages are
// dead-lettered; everything else is acknowledged since Process never fails
// the delivery.
func (i *Ingestor) ProcessDelivery(ctx context.Context, delivery core.JobDelivery) (EventResult, error) {
	if delivery == nil {
		return EventResult{}, fmt.Errorf("webhooks: delivery is nil")
	}
	event, err := EventFromJob(delivery.Message())
	if err != nil {
		if nackErr := delivery.Nack(ctx, core.JobNackOptions{DeadLetter: true, Reason: err.Error()}); nackErr != nil {
			return EventResult{}, nackErr
		}
		return EventResult{Outcome: OutcomeFailed, Err: err}, nil
	}
	result := i.Process(ctx, event)
	i.Telemetry.Count(ctx, "tmsync.webhook.events.total", 1, map[string]string{
		"outcome":       string(result.Outcome),
		"resource_type": result.Event.ResourceType,
	})
	return result, delivery.Ack(ctx)
}

var (
	_ Dispatcher     = InlineDispatcher{}
	_ Dispatcher     = (*QueueDispatcher)(nil)
	_ EventProcessor = (*Ingestor)(nil)
)
