package transport

import (
	"bytes"
	"compress/gzip"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/goliatone/go-tmsync/breaker"
	"github.com/goliatone/go-tmsync/core"
	"github.com/goliatone/go-tmsync/ratelimit"
)

func TestExecutor_SendsCredentialsAndDecodesGzip(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		if !ok || user != "api-user" || pass != "secret" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		if r.Header.Get("Accept-Encoding") != "gzip" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		var buf bytes.Buffer
		gz := gzip.NewWriter(&buf)
		_, _ = gz.Write([]byte("<Contacts/>"))
		_ = gz.Close()
		w.Header().Set("Content-Encoding", "gzip")
		w.Header().Set("Content-Type", "application/xml")
		_, _ = w.Write(buf.Bytes())
	}))
	defer server.Close()

	h := newHarness(t, server)
	result := h.executor.Execute(context.Background(), Request{URI: server.URL + "/contacts/"})
	if !result.OK() {
		t.Fatalf("expected success, got status %d err %v", result.StatusCode, result.Err)
	}
	if string(result.Body) != "<Contacts/>" {
		t.Fatalf("expected decoded body, got %q", result.Body)
	}

	entries, _ := h.log.List(context.Background(), core.RequestLogFilter{})
	if len(entries) != 1 {
		t.Fatalf("expected one log entry, got %d", len(entries))
	}
	if entries[0].StatusCode != http.StatusOK || entries[0].Detail != "" || entries[0].Method != http.MethodGet {
		t.Fatalf("unexpected log entry %+v", entries[0])
	}
	if !strings.HasSuffix(entries[0].URI, "/contacts/") {
		t.Fatalf("expected full uri logged, got %q", entries[0].URI)
	}
}

func TestExecutor_ReturnsErrorStatusesAsData(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte("bad credentials"))
	}))
	defer server.Close()

	h := newHarness(t, server)
	for i := 0; i < 4; i++ {
		result := h.executor.Execute(context.Background(), Request{URI: server.URL + "/contacts/"})
		if result.Err != nil {
			t.Fatalf("expected no transport error, got %v", result.Err)
		}
		if result.StatusCode != http.StatusUnauthorized {
			t.Fatalf("expected 401, got %d", result.StatusCode)
		}
		if !core.IsError(result.Classify(), core.ErrClientError) {
			t.Fatalf("expected client error classification")
		}
	}

	state, _ := h.state.Get(context.Background())
	if state.LastStatus != http.StatusUnauthorized || state.Counter != 3 {
		t.Fatalf("unexpected breaker state %+v", state)
	}

	alerts := h.notifier.Alerts()
	if len(alerts) != 2 {
		t.Fatalf("expected transition and threshold alerts, got %d", len(alerts))
	}
	if alerts[0].TemplateKey != core.AlertTemplateAuthFailure || alerts[1].Params["counter"] != 3 {
		t.Fatalf("unexpected alerts %+v", alerts)
	}

	entries, _ := h.log.List(context.Background(), core.RequestLogFilter{StatusCode: http.StatusUnauthorized})
	if len(entries) != 4 || entries[0].Detail != "bad credentials" {
		t.Fatalf("expected response body as failure detail, got %+v", entries)
	}
}

func TestExecutor_SynthesizesTransportFailure(t *testing.T) {
	h := newHarness(t, nil)
	h.executor.Client = failingDoer{err: errConnectionRefused}

	result := h.executor.Execute(context.Background(), Request{URI: "https://demo.example.com/api/contacts/"})
	if result.StatusCode != 0 {
		t.Fatalf("expected synthesized status 0, got %d", result.StatusCode)
	}
	if !core.IsError(result.Err, core.ErrTransportFailure) {
		t.Fatalf("expected transport failure, got %v", result.Err)
	}

	entries, _ := h.log.List(context.Background(), core.RequestLogFilter{})
	if len(entries) != 1 || !strings.Contains(entries[0].Detail, "connection refused") {
		t.Fatalf("expected failure detail logged, got %+v", entries)
	}
	state, _ := h.state.Get(context.Background())
	if state.LastStatus != 0 || state.Counter != 0 {
		t.Fatalf("unexpected breaker state %+v", state)
	}
}

func TestExecutor_HonorsTimeout(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer server.Close()
	defer close(release)

	h := newHarness(t, server)
	result := h.executor.Execute(context.Background(), Request{URI: server.URL, Timeout: 50 * time.Millisecond})
	if result.StatusCode != 0 || !core.IsError(result.Err, core.ErrTransportFailure) {
		t.Fatalf("expected timeout transport failure, got status %d err %v", result.StatusCode, result.Err)
	}
}

func TestExecutor_WritesLogBeforeBreaker(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	h := newHarness(t, server)
	seq := &sequenceLog{}
	h.executor.RequestLog = seq
	h.executor.Breaker = breaker.New(sequenceBreakerStore{seq: seq, inner: breaker.NewMemoryStateStore()}, breaker.AlertPolicy{})

	h.executor.Execute(context.Background(), Request{URI: server.URL})
	h.executor.Execute(context.Background(), Request{URI: server.URL})

	want := "log,breaker,log,breaker"
	if got := strings.Join(seq.steps, ","); got != want {
		t.Fatalf("expected %q, got %q", want, got)
	}
}

func TestExecutor_RejectsRelativeURI(t *testing.T) {
	h := newHarness(t, nil)
	result := h.executor.Execute(context.Background(), Request{URI: "/contacts/"})
	if result.Err == nil || result.StatusCode != 0 {
		t.Fatalf("expected request error, got %+v", result)
	}
	entries, _ := h.log.List(context.Background(), core.RequestLogFilter{})
	if len(entries) != 1 {
		t.Fatalf("expected failed request to be logged")
	}
}

func TestExecutor_ThrottleRefusesCallsAfter429(t *testing.T) {
	hits := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		w.Header().Set("Retry-After", "60")
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	h := newHarness(t, server)
	h.executor.Throttle = ratelimit.NewAdaptivePolicy(ratelimit.NewMemoryStateStore())

	first := h.executor.Execute(context.Background(), Request{URI: server.URL + "/contacts/"})
	if first.Err != nil || first.StatusCode != http.StatusTooManyRequests {
		t.Fatalf("expected 429 as data, got %d err %v", first.StatusCode, first.Err)
	}
	before, _ := h.state.Get(context.Background())

	second := h.executor.Execute(context.Background(), Request{URI: server.URL + "/contacts/"})
	if !core.IsError(second.Err, core.ErrThrottled) || second.StatusCode != 0 {
		t.Fatalf("expected throttled refusal, got %d err %v", second.StatusCode, second.Err)
	}
	if hits != 1 {
		t.Fatalf("expected throttled call to stay off the network, got %d hits", hits)
	}

	after, _ := h.state.Get(context.Background())
	if after != before {
		t.Fatalf("expected breaker untouched by throttled call, got %+v want %+v", after, before)
	}
	entries, _ := h.log.List(context.Background(), core.RequestLogFilter{})
	if len(entries) != 2 || entries[0].StatusCode != 0 || !strings.Contains(entries[0].Detail, "throttled") {
		t.Fatalf("expected throttled call in request log, got %+v", entries)
	}
}
