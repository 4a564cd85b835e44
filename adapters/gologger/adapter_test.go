package gologger

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	glog "github.com/goliatone/go-logger/glog"
	"github.com/goliatone/go-tmsync/core"
)

func TestResolveDeterministicFallback(t *testing.T) {
	loggerOnly := &capturingLogger{id: "logger"}
	providerLogger := &capturingLogger{id: "provider"}
	provider := &capturingProvider{logger: providerLogger}

	var resolvedProvider glog.LoggerProvider
	_, resolved := Resolve("tmsync", provider, loggerOnly)
	got := resolved.(*capturingLogger)
	if got.id != "provider" {
		t.Fatalf("expected provider logger precedence, got %q", got.id)
	}

	resolvedProvider, resolved = Resolve("tmsync", nil, loggerOnly)
	got = resolved.(*capturingLogger)
	if got.id != "logger" {
		t.Fatalf("expected direct logger when provider is nil, got %q", got.id)
	}
	if resolvedProvider == nil {
		t.Fatalf("expected provider wrapper from logger")
	}

	_, resolved = Resolve("tmsync", nil, nil)
	if resolved == nil {
		t.Fatalf("expected nop logger fallback")
	}
}

func TestResolveForWorker_BridgesSameLogger(t *testing.T) {
	providerLogger := &capturingLogger{id: "provider"}
	provider := &capturingProvider{logger: providerLogger}

	logging := ResolveForWorker(provider, nil, nil)
	if logging.JobProvider == nil || logging.JobLogger == nil {
		t.Fatalf("expected go-job logger bridges")
	}
	if provider.requested != WorkerLoggerName {
		t.Fatalf("expected worker logger name, got %q", provider.requested)
	}

	bridged := logging.JobProvider.GetLogger(WorkerLoggerName)
	bridged.Info("hello", "k", "v")
	captured := providerLogger.lastInfo
	if captured.msg != "hello" {
		t.Fatalf("expected bridged message, got %q", captured.msg)
	}
	if captured.args[0] != "k" || captured.args[1] != "v" {
		t.Fatalf("expected bridged args, got %#v", captured.args)
	}

	logging.Telemetry.Log(context.Background(), "info", "through telemetry", map[string]any{"job_id": "j1"})
	if providerLogger.lastInfo.msg != "through telemetry" {
		t.Fatalf("expected telemetry to share the worker logger, got %q", providerLogger.lastInfo.msg)
	}
}

func TestTelemetryHook_ReportsWorkerEvents(t *testing.T) {
	logger := &capturingLogger{id: "hook"}
	metrics := &recordingMetrics{}
	hook := TelemetryHook{Telemetry: core.NewTelemetry(WorkerLoggerName, nil, logger, metrics)}
	event := core.JobWorkerEvent{
		Message:   &core.JobExecutionMessage{JobID: "tmsync.webhook.event", IdempotencyKey: "evt-1"},
		Attempt:   2,
		StartedAt: time.Unix(1_700_000_000, 0).UTC(),
		Duration:  40 * time.Millisecond,
	}

	hook.OnStart(context.Background(), event)
	hook.OnSuccess(context.Background(), event)
	if logger.lastInfo.msg != "webhook job succeeded" {
		t.Fatalf("expected success log, got %q", logger.lastInfo.msg)
	}

	event.Err = errors.New("fetch failed")
	hook.OnFailure(context.Background(), event)
	hook.OnRetry(context.Background(), event)

	if got := metrics.count("tmsync.webhook_job.total"); got != 2 {
		t.Fatalf("expected two job outcomes counted, got %d", got)
	}
	if got := metrics.count("tmsync.webhook_job.retries"); got != 1 {
		t.Fatalf("expected one retry counted, got %d", got)
	}
	if fields := eventFields(event); fields["error"] != "fetch failed" || fields["idempotency_key"] != "evt-1" {
		t.Fatalf("unexpected event fields %#v", fields)
	}
}

type recordingMetrics struct {
	mu       sync.Mutex
	counters map[string]int64
}

func (m *recordingMetrics) IncCounter(_ context.Context, name string, value int64, _ map[string]string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.counters == nil {
		m.counters = map[string]int64{}
	}
	m.counters[name] += value
}

func (m *recordingMetrics) ObserveHistogram(context.Context, string, float64, map[string]string) {}

func (m *recordingMetrics) count(name string) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.counters[name]
}

var (
	_ glog.Logger         = (*capturingLogger)(nil)
	_ glog.LoggerProvider = (*capturingProvider)(nil)
)

type capturingProvider struct {
	logger    *capturingLogger
	requested string
}

func (p *capturingProvider) GetLogger(name string) glog.Logger {
	if p != nil {
		p.requested = name
	}
	if p == nil || p.logger == nil {
		return glog.Nop()
	}
	return p.logger
}

type infoCall struct {
	msg  string
	args []any
}

type capturingLogger struct {
	id       string
	lastInfo infoCall
}

func (l *capturingLogger) Trace(string, ...any) {}
func (l *capturingLogger) Debug(string, ...any) {}
func (l *capturingLogger) Warn(string, ...any)  {}
func (l *capturingLogger) Error(string, ...any) {}
func (l *capturingLogger) Fatal(string, ...any) {}

func (l *capturingLogger) Info(msg string, args ...any) {
	l.lastInfo = infoCall{
		msg:  msg,
		args: append([]any(nil), args...),
	}
}

func (l *capturingLogger) WithContext(context.Context) glog.Logger {
	return l
}
