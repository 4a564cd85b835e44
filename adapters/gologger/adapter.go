package gologger

import (
	"context"
	"time"

	job "github.com/goliatone/go-job"
	glog "github.com/goliatone/go-logger/glog"
	"github.com/goliatone/go-tmsync/core"
)

// WorkerLoggerName names the logger queued webhook workers report through.
const WorkerLoggerName = "tmsync.webhook_worker"

// Resolve uses deterministic precedence provider > logger > nop.
func Resolve(name string, provider glog.LoggerProvider, logger glog.Logger) (glog.LoggerProvider, glog.Logger) {
	return glog.Resolve(name, provider, logger)
}

// ToJobProvider maps a glog provider to the go-job logger provider contract.
func ToJobProvider(provider glog.LoggerProvider) job.LoggerProvider {
	if provider == nil {
		return nil
	}
	return job.GoLoggerProvider(provider)
}

// ToJobLogger maps a glog logger to the go-job logger contract.
func ToJobLogger(logger glog.Logger) job.Logger {
	if logger == nil {
		return nil
	}
	return job.GoLogger(logger)
}

// WorkerLogging is what a host needs to run queued webhook processing on
// go-job: engine telemetry for the worker plus go-job logger bridges over the
// same resolved logger.
type WorkerLogging struct {
	Telemetry   core.Telemetry
	JobProvider job.LoggerProvider
	JobLogger   job.Logger
}

func ResolveForWorker(provider glog.LoggerProvider, logger glog.Logger, metrics core.MetricsRecorder) WorkerLogging {
	resolvedProvider, resolvedLogger := Resolve(WorkerLoggerName, provider, logger)
	return WorkerLogging{
		Telemetry:   core.NewTelemetry(WorkerLoggerName, resolvedProvider, resolvedLogger, metrics),
		JobProvider: ToJobProvider(resolvedProvider),
		JobLogger:   ToJobLogger(glog.Ensure(resolvedLogger)),
	}
}

// TelemetryHook reports worker lifecycle events through core.Telemetry.
type TelemetryHook struct {
	Telemetry core.Telemetry
}

func (h TelemetryHook) OnStart(ctx context.Context, event core.JobWorkerEvent) {
	h.Telemetry.Log(ctx, "debug", "webhook job started", eventFields(event))
}

func (h TelemetryHook) OnSuccess(ctx context.Context, event core.JobWorkerEvent) {
	h.Telemetry.Count(ctx, "tmsync.webhook_job.total", 1, map[string]string{"status": "success"})
	h.Telemetry.Observe(ctx, "tmsync.webhook_job.duration_ms", float64(event.Duration.Milliseconds()), nil)
	h.Telemetry.Log(ctx, "info", "webhook job succeeded", eventFields(event))
}

func (h TelemetryHook) OnFailure(ctx context.Context, event core.JobWorkerEvent) {
	h.Telemetry.Count(ctx, "tmsync.webhook_job.total", 1, map[string]string{"status": "failure"})
	h.Telemetry.Log(ctx, "error", "webhook job failed", eventFields(event))
}

func (h TelemetryHook) OnRetry(ctx context.Context, event core.JobWorkerEvent) {
	h.Telemetry.Count(ctx, "tmsync.webhook_job.retries", 1, nil)
	h.Telemetry.Log(ctx, "warn", "webhook job retry scheduled", eventFields(event))
}

func eventFields(event core.JobWorkerEvent) map[string]any {
	fields := map[string]any{
		"attempt": event.Attempt,
	}
	if event.Message != nil {
		fields["job_id"] = event.Message.JobID
		fields["idempotency_key"] = event.Message.IdempotencyKey
	}
	if event.Delay > 0 {
		fields["delay_ms"] = event.Delay.Milliseconds()
	}
	if event.Duration > 0 {
		fields["duration_ms"] = event.Duration.Milliseconds()
	}
	if !event.StartedAt.IsZero() {
		fields["started_at"] = event.StartedAt.Format(time.RFC3339Nano)
	}
	if event.Err != nil {
		fields["error"] = event.Err.Error()
	}
	return fields
}

var _ core.JobWorkerHook = TelemetryHook{}
