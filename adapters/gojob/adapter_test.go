package gojob

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/goliatone/go-tmsync/core"
	"github.com/goliatone/go-tmsync/webhooks"

	job "github.com/goliatone/go-job"
	"github.com/goliatone/go-job/queue"
	"github.com/goliatone/go-job/queue/worker"
)

func TestMessageMappingRoundTrip(t *testing.T) {
	original := webhooks.JobMessage(webhooks.Event{
		ID:           "evt-1",
		ResourceType: "Registration",
		ResourceID:   "42",
		Type:         "Updated",
	})

	converted := ToExecutionMessage(original)
	if converted == nil {
		t.Fatalf("expected converted message")
	}
	roundTrip := FromExecutionMessage(converted)
	if roundTrip.JobID != original.JobID {
		t.Fatalf("expected job id %q, got %q", original.JobID, roundTrip.JobID)
	}
	if roundTrip.ScriptPath != original.ScriptPath {
		t.Fatalf("expected script path %q, got %q", original.ScriptPath, roundTrip.ScriptPath)
	}
	if roundTrip.IdempotencyKey != original.IdempotencyKey {
		t.Fatalf("expected idempotency key %q, got %q", original.IdempotencyKey, roundTrip.IdempotencyKey)
	}
	if roundTrip.DedupPolicy != original.DedupPolicy {
		t.Fatalf("expected dedup policy %q, got %q", original.DedupPolicy, roundTrip.DedupPolicy)
	}
	event, err := webhooks.EventFromJob(roundTrip)
	if err != nil {
		t.Fatalf("decode event: %v", err)
	}
	if event.ResourceID != "42" || event.ResourceType != "Registration" {
		t.Fatalf("expected event to survive mapping, got %+v", event)
	}
}

func TestEnqueueAndDequeueAdapters(t *testing.T) {
	ctx := context.Background()
	enqueuer := &stubQueueEnqueuer{}
	enqueueAdapter := NewEnqueuerAdapter(enqueuer)

	msg := webhooks.JobMessage(webhooks.Event{ResourceType: "Contact", ResourceID: "7", Type: "Created"})
	if err := enqueueAdapter.Enqueue(ctx, msg); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if enqueuer.last == nil || enqueuer.last.JobID != JobIDWebhookEvent {
		t.Fatalf("expected mapped go-job message")
	}

	dequeuer := &stubQueueDequeuer{delivery: &stubQueueDelivery{msg: enqueuer.last}}
	dequeueAdapter := NewDequeuerAdapter(dequeuer, RetryPolicy{})
	delivery, err := dequeueAdapter.Dequeue(ctx)
	if err != nil {
		t.Fatalf("dequeue: %v", err)
	}
	got := delivery.Message()
	if got == nil || got.JobID != JobIDWebhookEvent {
		t.Fatalf("expected mapped core message")
	}
	if err := delivery.Ack(ctx); err != nil {
		t.Fatalf("ack: %v", err)
	}
	if !dequeuer.delivery.(*stubQueueDelivery).acked {
		t.Fatalf("expected ack on underlying delivery")
	}
}

func TestNackRetryPolicyBoundaries(t *testing.T) {
	ctx := context.Background()
	rawDelivery := &stubQueueDelivery{
		msg: &job.ExecutionMessage{
			JobID:      JobIDWebhookEvent,
			ScriptPath: JobIDWebhookEvent,
		},
	}
	adapter := NewDeliveryAdapter(rawDelivery, RetryPolicy{
		MaxAttempts:     3,
		MaxDelay:        10 * time.Second,
		DeadLetterOnMax: true,
	})

	if err := adapter.NackForAttempt(ctx, core.JobNackOptions{
		Delay:   30 * time.Second,
		Requeue: true,
		Reason:  "transient",
	}, 1); err != nil {
		t.Fatalf("nack attempt 1: %v", err)
	}
	if rawDelivery.nackOpts.Delay != 10*time.Second {
		t.Fatalf("expected delay to be bounded, got %s", rawDelivery.nackOpts.Delay)
	}
	if !rawDelivery.nackOpts.Requeue {
		t.Fatalf("expected message to be requeued before max attempts")
	}

	if err := adapter.NackForAttempt(ctx, core.JobNackOptions{
		Delay:   time.Second,
		Requeue: true,
		Reason:  "still failing",
	}, 3); err != nil {
		t.Fatalf("nack max attempt: %v", err)
	}
	if rawDelivery.nackOpts.Requeue {
		t.Fatalf("expected no requeue once max attempts is reached")
	}
	if !rawDelivery.nackOpts.DeadLetter {
		t.Fatalf("expected dead letter on max attempts")
	}
}

func TestWorkerHookAdapterEventMapping(t *testing.T) {
	now := time.Now().UTC().Add(-time.Second)
	coreHook := &capturingHook{}
	adapter := NewWorkerHookAdapter(coreHook)

	evt := worker.Event{
		Message: &job.ExecutionMessage{
			JobID:          JobIDWebhookEvent,
			ScriptPath:     JobIDWebhookEvent,
			IdempotencyKey: "webhook:evt-9",
		},
		Attempt:   2,
		Delay:     5 * time.Second,
		Err:       errors.New("retry"),
		StartedAt: now,
		Duration:  250 * time.Millisecond,
	}

	adapter.OnRetry(context.Background(), evt)
	if coreHook.last.Message == nil {
		t.Fatalf("expected worker message mapping")
	}
	if coreHook.last.Message.JobID != JobIDWebhookEvent {
		t.Fatalf("expected job id mapping, got %q", coreHook.last.Message.JobID)
	}
	if coreHook.last.Attempt != 2 {
		t.Fatalf("expected attempt 2, got %d", coreHook.last.Attempt)
	}
	if coreHook.last.Delay != 5*time.Second {
		t.Fatalf("expected delay 5s, got %s", coreHook.last.Delay)
	}
	if coreHook.last.Duration != 250*time.Millisecond {
		t.Fatalf("expected duration mapping")
	}
	if coreHook.last.StartedAt.IsZero() {
		t.Fatalf("expected started_at mapping")
	}
	if coreHook.last.Err == nil || coreHook.last.Err.Error() != "retry" {
		t.Fatalf("expected error mapping")
	}
}

func TestWebhookWorker_ProcessesQueuedEventsThroughIngestor(t *testing.T) {
	ctx := context.Background()
	ingestor := webhooks.NewIngestor(nil, webhooks.NewRegistry(), core.NewMemoryResourceLocker())
	var handled []webhooks.Event
	if err := ingestor.Handlers.Register("Registration", webhooks.HandlerFunc(func(_ context.Context, event webhooks.Event) error {
		handled = append(handled, event)
		return nil
	})); err != nil {
		t.Fatalf("register handler: %v", err)
	}
	if err := ingestor.Handlers.Register("Contact", webhooks.HandlerFunc(func(context.Context, webhooks.Event) error {
		return errors.New("source unavailable")
	})); err != nil {
		t.Fatalf("register handler: %v", err)
	}

	enqueuer := &stubQueueEnqueuer{}
	dispatcher := webhooks.NewQueueDispatcher(NewEnqueuerAdapter(enqueuer))
	queued, err := dispatcher.Dispatch(ctx, webhooks.Event{ID: "evt-1", ResourceType: "Registration", ResourceID: "42"})
	if err != nil || queued.Outcome != webhooks.OutcomeQueued {
		t.Fatalf("dispatch: outcome=%s err=%v", queued.Outcome, err)
	}
	first := &stubQueueDelivery{msg: enqueuer.last}
	if _, err := dispatcher.Dispatch(ctx, webhooks.Event{ID: "evt-2", ResourceType: "Contact", ResourceID: "7"}); err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	second := &stubQueueDelivery{msg: enqueuer.last}

	hook := &capturingHook{}
	consumer := NewWebhookWorker(
		NewDequeuerAdapter(&sequenceDequeuer{deliveries: []*stubQueueDelivery{first, second}}, RetryPolicy{}),
		ingestor,
		hook,
	)
	results, err := consumer.Drain(ctx, 3)
	if err == nil {
		t.Fatalf("expected drain to stop on empty queue")
	}
	if len(results) != 2 {
		t.Fatalf("expected two results, got %d", len(results))
	}
	if results[0].Outcome != webhooks.OutcomeProcessed || len(handled) != 1 || handled[0].ResourceID != "42" {
		t.Fatalf("unexpected first result %+v handled=%d", results[0], len(handled))
	}
	if results[1].Outcome != webhooks.OutcomeFailed {
		t.Fatalf("expected failed second result, got %s", results[1].Outcome)
	}
	if !first.acked || !second.acked {
		t.Fatalf("expected both deliveries acked")
	}
	if hook.started != 2 || hook.success != 1 || hook.failures != 1 {
		t.Fatalf("unexpected hook counts %+v", hook)
	}
}

func TestWebhookWorker_DeadLettersUndecodableMessages(t *testing.T) {
	ctx := context.Background()
	ingestor := webhooks.NewIngestor(nil, nil, nil)
	bad := &stubQueueDelivery{msg: &job.ExecutionMessage{JobID: "other.job"}}
	consumer := NewWebhookWorker(
		NewDequeuerAdapter(&sequenceDequeuer{deliveries: []*stubQueueDelivery{bad}}, RetryPolicy{MaxAttempts: 1, DeadLetterOnMax: true}),
		ingestor,
		nil,
	)
	result, err := consumer.RunOnce(ctx)
	if err != nil {
		t.Fatalf("run once: %v", err)
	}
	if result.Outcome != webhooks.OutcomeFailed {
		t.Fatalf("expected failed outcome, got %s", result.Outcome)
	}
	if !bad.nackOpts.DeadLetter || bad.acked {
		t.Fatalf("expected dead-lettered delivery, got %+v", bad.nackOpts)
	}
}

func TestWebhookWorker_RequiresConfiguration(t *testing.T) {
	var consumer *WebhookWorker
	if _, err := consumer.RunOnce(context.Background()); err == nil {
		t.Fatalf("expected configuration error")
	}
}

type stubQueueEnqueuer struct {
	last *job.ExecutionMessage
}

func (s *stubQueueEnqueuer) Enqueue(_ context.Context, msg *job.ExecutionMessage) error {
	s.last = msg
	return nil
}

type stubQueueDequeuer struct {
	delivery queue.Delivery
}

func (s *stubQueueDequeuer) Dequeue(context.Context) (queue.Delivery, error) {
	return s.delivery, nil
}

type stubQueueDelivery struct {
	msg      *job.ExecutionMessage
	acked    bool
	nackOpts queue.NackOptions
}

func (s *stubQueueDelivery) Message() *job.ExecutionMessage {
	return s.msg
}

func (s *stubQueueDelivery) Ack(context.Context) error {
	s.acked = true
	return nil
}

func (s *stubQueueDelivery) Nack(_ context.Context, opts queue.NackOptions) error {
	s.nackOpts = opts
	return nil
}

type capturingHook struct {
	last     core.JobWorkerEvent
	started  int
	success  int
	failures int
}

func (h *capturingHook) OnStart(context.Context, core.JobWorkerEvent) { h.started++ }

func (h *capturingHook) OnSuccess(_ context.Context, event core.JobWorkerEvent) {
	h.success++
	h.last = event
}

func (h *capturingHook) OnFailure(_ context.Context, event core.JobWorkerEvent) {
	h.failures++
	h.last = event
}

func (h *capturingHook) OnRetry(_ context.Context, event core.JobWorkerEvent) {
	h.last = event
}

type sequenceDequeuer struct {
	deliveries []*stubQueueDelivery
}

func (s *sequenceDequeuer) Dequeue(context.Context) (queue.Delivery, error) {
	if len(s.deliveries) == 0 {
		return nil, errors.New("queue empty")
	}
	next := s.deliveries[0]
	s.deliveries = s.deliveries[1:]
	return next, nil
}
