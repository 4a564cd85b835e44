package webhooks

import (
	"context"
	"encoding/base64"
	"sync"
	"testing"

	"github.com/goliatone/go-tmsync/core"
)

var testSecret = base64.StdEncoding.EncodeToString([]byte("shared-webhook-secret"))

func newTestIngestor(t *testing.T) *Ingestor {
	t.Helper()
	verifier, err := NewVerifier(testSecret)
	if err != nil {
		t.Fatalf("new verifier: %v", err)
	}
	return NewIngestor(verifier, NewRegistry(), core.NewMemoryResourceLocker())
}

func sign(t *testing.T, body []byte) string {
	t.Helper()
	signer, err := NewSigner(testSecret)
	if err != nil {
		t.Fatalf("new signer: %v", err)
	}
	return signer.Sign(body)
}

type recordingHandler struct {
	mu     sync.Mutex
	events []Event
	err    error
}

func (h *recordingHandler) Handle(_ context.Context, event Event) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.events = append(h.events, event)
	return h.err
}

func (h *recordingHandler) calls() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.events)
}

type memoryEnqueuer struct {
	mu       sync.Mutex
	messages []*core.JobExecutionMessage
	err      error
}

func (q *memoryEnqueuer) Enqueue(_ context.Context, msg *core.JobExecutionMessage) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.err != nil {
		return q.err
	}
	q.messages = append(q.messages, msg)
	return nil
}

type stubDelivery struct {
	msg    *core.JobExecutionMessage
	acked  bool
	nacked *core.JobNackOptions
}

func (d *stubDelivery) Message() *core.JobExecutionMessage { return d.msg }

func (d *stubDelivery) Ack(context.Context) error {
	d.acked = true
	return nil
}

func (d *stubDelivery) Nack(_ context.Context, opts core.JobNackOptions) error {
	d.nacked = &opts
	return nil
}
