package transport

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/goliatone/go-tmsync/breaker"
	"github.com/goliatone/go-tmsync/core"
)

type testHarness struct {
	executor *Executor
	log      *core.MemoryRequestLogStore
	notifier *core.MemoryNotifier
	state    *breaker.MemoryStateStore
}

func newHarness(t *testing.T, server *httptest.Server) *testHarness {
	t.Helper()
	platform := ""
	var client HTTPDoer = http.DefaultClient
	if server != nil {
		platform = strings.TrimPrefix(server.URL, "http://")
		client = server.Client()
	}
	h := &testHarness{
		log:      core.NewMemoryRequestLogStore(),
		notifier: &core.MemoryNotifier{},
		state:    breaker.NewMemoryStateStore(),
	}
	h.executor = NewExecutor(client, StaticCredentials{
		Platform: platform,
		Username: "api-user",
		Password: "secret",
	})
	h.executor.RequestLog = h.log
	h.executor.Notifier = h.notifier
	h.executor.Breaker = breaker.New(h.state, breaker.AlertPolicy{Threshold: 3, OnTransition: true})
	return h
}

func newTestClient(h *testHarness) *Client {
	client := NewClient(h.executor, nil)
	client.Scheme = "http"
	return client
}

type failingDoer struct {
	err error
}

func (d failingDoer) Do(*http.Request) (*http.Response, error) {
	return nil, d.err
}

var errConnectionRefused = errors.New("dial tcp: connection refused")

// sequenceLog records the order in which the request log and breaker are written.
type sequenceLog struct {
	mu    sync.Mutex
	steps []string
}

func (s *sequenceLog) add(step string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.steps = append(s.steps, step)
}

func (s *sequenceLog) Append(context.Context, core.RequestLogEntry) error {
	s.add("log")
	return nil
}

func (s *sequenceLog) List(context.Context, core.RequestLogFilter) ([]core.RequestLogEntry, error) {
	return nil, nil
}

type sequenceBreakerStore struct {
	seq   *sequenceLog
	inner *breaker.MemoryStateStore
}

func (s sequenceBreakerStore) Get(ctx context.Context) (breaker.State, error) {
	return s.inner.Get(ctx)
}

func (s sequenceBreakerStore) Upsert(ctx context.Context, state breaker.State) error {
	s.seq.add("breaker")
	return s.inner.Upsert(ctx, state)
}
