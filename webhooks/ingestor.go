package webhooks

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/goliatone/go-tmsync/core"
)

type Outcome string

const (
	OutcomeProcessed           Outcome = "processed"
	OutcomeQueued              Outcome = "queued"
	OutcomeSkippedUnregistered Outcome = "skipped_unregistered"
	OutcomeSkippedLocked       Outcome = "skipped_locked"
	OutcomeCoalesced           Outcome = "coalesced"
	OutcomeFailed              Outcome = "failed"
)

const defaultMaxBodyBytes = 1 << 20

type EventResult struct {
	Event    Event
	Outcome  Outcome
	Err      error
	Metadata map[string]any
}

// Receipt lists the per event outcome of one delivery.
type Receipt struct {
	Results []EventResult
}

func (r Receipt) Count(outcome Outcome) int {
	count := 0
	for _, result := range r.Results {
		if result.Outcome == outcome {
			count++
		}
	}
	return count
}

type Ingestor struct {
	Verifier   *Verifier
	Handlers   *Registry
	Locker     core.ResourceLocker
	LockWait   time.Duration
	Dispatcher Dispatcher
	Burst      BurstController
	Telemetry  core.Telemetry
	// SignatureHeader is read by ServeHTTP.
	SignatureHeader string
	MaxBodyBytes    int64
}

func NewIngestor(verifier *Verifier, handlers *Registry, locker core.ResourceLocker) *Ingestor {
	if handlers == nil {
		handlers = NewRegistry()
	}
	if locker == nil {
		locker = core.NewMemoryResourceLocker()
	}
	return &Ingestor{
		Verifier:        verifier,
		Handlers:        handlers,
		Locker:          locker,
		LockWait:        core.DefaultWebhookLockWait,
		SignatureHeader: core.DefaultSignatureHeader,
		MaxBodyBytes:    defaultMaxBodyBytes,
	}
}

// Handle verifies body against signature and dispatches every event it
// carries. Only signature and payload errors are returned; per event failures
// are reported in the receipt.
func (i *Ingestor) Handle(ctx context.Context, body []byte, signature string) (Receipt, error) {
	if i == nil || i.Verifier == nil {
		return Receipt{}, core.NewError(core.ErrInvalidSignature, "webhooks: ingestor has no verifier", nil)
	}
	if err := i.Verifier.Verify(body, signature); err != nil {
		i.Telemetry.Count(ctx, "tmsync.webhook.events.total", 1, map[string]string{"outcome": "rejected"})
		i.Telemetry.Log(ctx, "warn", "webhook signature rejected", map[string]any{"error": err.Error()})
		return Receipt{}, err
	}
	events, err := DecodeEvents(body)
	if err != nil {
		return Receipt{}, err
	}

	receipt := Receipt{Results: make([]EventResult, 0, len(events))}
	for _, event := range events {
		result := i.dispatch(ctx, event)
		i.Telemetry.Count(ctx, "tmsync.webhook.events.total", 1, map[string]string{
			"outcome":       string(result.Outcome),
			"resource_type": event.ResourceType,
		})
		receipt.Results = append(receipt.Results, result)
	}
	return receipt, nil
}

func (i *Ingestor) dispatch(ctx context.Context, event Event) EventResult {
	if i.Dispatcher == nil {
		return i.Process(ctx, event)
	}
	result, err := i.Dispatcher.Dispatch(ctx, event)
	if err != nil {
		i.Telemetry.Log(ctx, "warn", "webhook dispatch failed, processing inline", map[string]any{
			"event_id":      event.ID,
			"resource_type": event.ResourceType,
			"resource_id":   event.ResourceID,
			"error":         err.Error(),
		})
		return i.Process(ctx, event)
	}
	return result
}

// Process runs the handler for event under its resource lock. It never
// returns an error: failures, panics included, are logged and reported as
// OutcomeFailed.
func (i *Ingestor) Process(ctx context.Context, event Event) (result EventResult) {
	result = EventResult{Event: event}
	if i == nil {
		result.Outcome = OutcomeFailed
		result.Err = fmt.Errorf("webhooks: ingestor is nil")
		return result
	}
	if err := event.Validate(); err != nil {
		return i.fail(ctx, result, err)
	}

	handler, resourceType, ok := i.Handlers.Lookup(event.ResourceType)
	if !ok {
		i.Telemetry.Log(ctx, "warn", "webhook event skipped, no handler registered", map[string]any{
			"event_id":      event.ID,
			"resource_type": event.ResourceType,
		})
		result.Outcome = OutcomeSkippedUnregistered
		return result
	}
	event.ResourceType = resourceType
	result.Event = event

	if i.Burst != nil {
		decision, err := i.Burst.Allow(ctx, event)
		if err != nil {
			return i.fail(ctx, result, err)
		}
		if !decision.Allow {
			result.Outcome = OutcomeCoalesced
			result.Metadata = decision.Metadata
			return result
		}
	}

	if i.Locker == nil {
		return i.fail(ctx, result, fmt.Errorf("webhooks: ingestor requires a resource locker"))
	}
	key := event.LockKey()
	handle, err := i.Locker.TryAcquire(ctx, key, i.lockWait())
	if err != nil {
		if core.IsError(err, core.ErrLockUnavailable) {
			i.Telemetry.Log(ctx, "debug", "webhook event skipped, resource locked", map[string]any{
				"event_id":      event.ID,
				"resource_type": key.ResourceType,
				"resource_id":   key.ResourceID,
			})
			result.Outcome = OutcomeSkippedLocked
			result.Err = err
			return result
		}
		return i.fail(ctx, result, err)
	}
	defer func() {
		if unlockErr := handle.Unlock(context.WithoutCancel(ctx)); unlockErr != nil {
			i.Telemetry.Log(ctx, "error", "webhook lock release failed", map[string]any{
				"resource_type": key.ResourceType,
				"resource_id":   key.ResourceID,
				"error":         unlockErr.Error(),
			})
		}
	}()

	startedAt := time.Now()
	err = invoke(ctx, handler, event)
	i.Telemetry.Operation(ctx, startedAt, "webhook", err, map[string]any{
		"event_id":      event.ID,
		"event_type":    event.Type,
		"resource_type": event.ResourceType,
		"resource_id":   event.ResourceID,
	})
	if err != nil {
		result.Outcome = OutcomeFailed
		result.Err = err
		return result
	}
	result.Outcome = OutcomeProcessed
	return result
}

func invoke(ctx context.Context, handler Handler, event Event) (err error) {
	defer func() {
		if recovered := recover(); recovered != nil {
			err = fmt.Errorf("webhooks: handler for %s panicked: %v", event.ResourceType, recovered)
		}
	}()
	return handler.Handle(ctx, event)
}

func (i *Ingestor) fail(ctx context.Context, result EventResult, err error) EventResult {
	i.Telemetry.Log(ctx, "error", "webhook event failed", map[string]any{
		"event_id":      result.Event.ID,
		"resource_type": result.Event.ResourceType,
		"resource_id":   result.Event.ResourceID,
		"error":         err.Error(),
	})
	result.Outcome = OutcomeFailed
	result.Err = err
	return result
}

// ServeHTTP accepts POSTed deliveries. Invalid signatures get 401, malformed
// documents 400. Accepted deliveries answer 202 when any event was queued and
// 200 otherwise.
func (i *Ingestor) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	limit := i.MaxBodyBytes
	if limit <= 0 {
		limit = defaultMaxBodyBytes
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, limit+1))
	if err != nil {
		http.Error(w, "unable to read body", http.StatusBadRequest)
		return
	}
	if int64(len(body)) > limit {
		http.Error(w, "body too large", http.StatusRequestEntityTooLarge)
		return
	}

	header := strings.TrimSpace(i.SignatureHeader)
	if header == "" {
		header = core.DefaultSignatureHeader
	}
	receipt, err := i.Handle(r.Context(), body, r.Header.Get(header))
	switch {
	case err == nil:
	case core.IsError(err, core.ErrInvalidSignature):
		http.Error(w, "invalid signature", http.StatusUnauthorized)
		return
	case core.IsError(err, core.ErrMalformedPayload):
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	default:
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	status := http.StatusOK
	if receipt.Count(OutcomeQueued) > 0 {
		status = http.StatusAccepted
	}
	outcomes := map[string]int{}
	for _, result := range receipt.Results {
		outcomes[string(result.Outcome)]++
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"events":   len(receipt.Results),
		"outcomes": outcomes,
	})
}

func (i *Ingestor) lockWait() time.Duration {
	if i.LockWait <= 0 {
		return core.DefaultWebhookLockWait
	}
	return i.LockWait
}

var _ http.Handler = (*Ingestor)(nil)
