// Package transport executes authenticated requests against the source API.
// HTTP failures are returned as data: every call yields a Result, is appended
// to the request log and updates the breaker before it returns.
package transport

import (
	"bytes"
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/goliatone/go-tmsync/breaker"
	"github.com/goliatone/go-tmsync/core"
)

const (
	defaultDetailLimit = 2 << 10
	contentTypeXML     = "application/xml"
)

type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Throttle gates calls per platform. BeforeCall errors satisfying
// core.ErrThrottled short-circuit the request.
type Throttle interface {
	BeforeCall(ctx context.Context, platform string) error
	AfterCall(ctx context.Context, platform string, status int, headers map[string]string) error
}

type Request struct {
	Method  string
	URI     string
	Headers map[string]string
	Body    []byte
	Timeout time.Duration
}

// Result is the uniform outcome of a request. Err is set only when no HTTP
// response was received, in which case StatusCode is 0.
type Result struct {
	StatusCode int
	Body       []byte
	Headers    map[string]string
	Err        error
	Duration   time.Duration
	Method     string
	URI        string
}

func (r Result) OK() bool {
	return r.Err == nil && r.StatusCode >= 200 && r.StatusCode < 300
}

// Classify returns nil for 2xx/3xx, otherwise a TransportFailure, ClientError
// or ServerError envelope.
func (r Result) Classify() error {
	if r.Err != nil {
		return r.Err
	}
	if r.StatusCode == 0 {
		return transportFailure(nil, "transport: no response received", map[string]any{"uri": r.URI})
	}
	return statusError(r.Method, r.URI, r.StatusCode)
}

type Executor struct {
	Client               HTTPDoer
	Credentials          CredentialSource
	RequestLog           core.RequestLogStore
	Breaker              *breaker.Breaker
	Throttle             Throttle
	Notifier             core.Notifier
	Telemetry            core.Telemetry
	Timeout              time.Duration
	MaxResponseBodyBytes int64
	Now                  func() time.Time
}

func NewExecutor(client HTTPDoer, credentials CredentialSource) *Executor {
	if client == nil {
		client = &http.Client{Timeout: core.DefaultRequestTimeout}
	}
	return &Executor{
		Client:               client,
		Credentials:          credentials,
		Breaker:              breaker.New(nil, breaker.DefaultAlertPolicy()),
		Notifier:             core.LogNotifier{},
		Timeout:              core.DefaultRequestTimeout,
		MaxResponseBodyBytes: core.DefaultResponseLimit,
	}
}

// Execute never returns an error; inspect Result.Err and Result.StatusCode.
func (e *Executor) Execute(ctx context.Context, req Request) Result {
	if e == nil {
		return Result{Err: transportFailure(nil, "transport: executor is not configured", nil)}
	}
	if ctx == nil {
		ctx = context.Background()
	}
	startedAt := e.now()
	method := strings.ToUpper(strings.TrimSpace(req.Method))
	if method == "" {
		method = http.MethodGet
	}
	result := Result{Method: method, URI: strings.TrimSpace(req.URI)}

	creds, err := e.credentials(ctx)
	if err != nil {
		result.Err = transportFailure(err, "transport: credentials unavailable", map[string]any{"uri": result.URI})
		e.record(ctx, creds.Platform, startedAt, &result)
		return result
	}

	if e.throttled(ctx, creds.Platform, startedAt, &result) {
		return result
	}

	e.do(ctx, creds, req, &result)
	if e.Throttle != nil && result.StatusCode != 0 {
		if err := e.Throttle.AfterCall(ctx, creds.Platform, result.StatusCode, result.Headers); err != nil {
			e.Telemetry.Log(ctx, "warn", "throttle update failed", map[string]any{
				"platform": creds.Platform,
				"uri":      result.URI,
				"error":    err.Error(),
			})
		}
	}
	e.record(ctx, creds.Platform, startedAt, &result)
	return result
}

// throttled reports whether the call was refused before reaching the network.
// Refused calls are logged but never observed by the breaker.
func (e *Executor) throttled(ctx context.Context, platform string, startedAt time.Time, result *Result) bool {
	if e.Throttle == nil {
		return false
	}
	err := e.Throttle.BeforeCall(ctx, platform)
	if err == nil {
		return false
	}
	if !core.IsError(err, core.ErrThrottled) {
		e.Telemetry.Log(ctx, "warn", "throttle lookup failed", map[string]any{
			"platform": platform,
			"uri":      result.URI,
			"error":    err.Error(),
		})
		return false
	}

	finishedAt := e.now()
	result.Err = err
	result.Duration = finishedAt.Sub(startedAt)
	e.Telemetry.Count(ctx, "tmsync.http.throttled.total", 1, map[string]string{"method": result.Method})
	e.Telemetry.Log(ctx, "info", "request throttled", map[string]any{
		"platform": platform,
		"method":   result.Method,
		"uri":      result.URI,
		"error":    err.Error(),
	})
	if e.RequestLog != nil {
		entry := core.RequestLogEntry{
			Platform:   platform,
			Method:     result.Method,
			URI:        result.URI,
			Detail:     err.Error(),
			DurationMS: result.Duration.Milliseconds(),
			CreatedAt:  finishedAt,
		}
		if appendErr := e.RequestLog.Append(ctx, entry); appendErr != nil {
			e.Telemetry.Log(ctx, "warn", "request log append failed", map[string]any{"uri": result.URI, "error": appendErr.Error()})
		}
	}
	return true
}

func (e *Executor) do(ctx context.Context, creds Credentials, req Request, result *Result) {
	if e.Client == nil {
		result.Err = transportFailure(nil, "transport: executor requires an http client", nil)
		return
	}
	parsed, err := url.Parse(result.URI)
	if err != nil || !parsed.IsAbs() {
		result.Err = requestError("transport: request uri must be absolute", map[string]any{"uri": result.URI})
		return
	}

	timeout := req.Timeout
	if timeout <= 0 {
		timeout = e.Timeout
	}
	if timeout <= 0 {
		timeout = core.DefaultRequestTimeout
	}
	requestCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var body io.Reader
	if len(req.Body) > 0 {
		body = bytes.NewReader(req.Body)
	}
	httpReq, err := http.NewRequestWithContext(requestCtx, result.Method, parsed.String(), body)
	if err != nil {
		result.Err = requestError(fmt.Sprintf("transport: create http request: %v", err), map[string]any{"uri": result.URI})
		return
	}
	httpReq.SetBasicAuth(creds.Username, creds.Password)
	httpReq.Header.Set("Accept", contentTypeXML)
	httpReq.Header.Set("Accept-Encoding", "gzip")
	if len(req.Body) > 0 {
		httpReq.Header.Set("Content-Type", contentTypeXML)
	}
	for key, value := range req.Headers {
		if strings.TrimSpace(key) == "" {
			continue
		}
		httpReq.Header.Set(strings.TrimSpace(key), strings.TrimSpace(value))
	}

	httpRes, err := e.Client.Do(httpReq)
	if err != nil {
		result.Err = transportFailure(err, "transport: execute http request", map[string]any{
			"method": result.Method,
			"uri":    result.URI,
		})
		return
	}
	defer httpRes.Body.Close()

	result.StatusCode = httpRes.StatusCode
	result.Headers = flattenHeaders(httpRes.Header)

	reader := io.Reader(httpRes.Body)
	if strings.EqualFold(strings.TrimSpace(httpRes.Header.Get("Content-Encoding")), "gzip") {
		gz, err := gzip.NewReader(httpRes.Body)
		if err != nil {
			result.Err = transportFailure(err, "transport: decode gzip response", map[string]any{"uri": result.URI})
			result.StatusCode = 0
			return
		}
		defer gz.Close()
		reader = gz
	}

	limit := e.MaxResponseBodyBytes
	if limit <= 0 {
		limit = core.DefaultResponseLimit
	}
	payload, err := io.ReadAll(io.LimitReader(reader, limit+1))
	if err != nil {
		result.Err = transportFailure(err, "transport: read response body", map[string]any{"uri": result.URI})
		result.StatusCode = 0
		return
	}
	if int64(len(payload)) > limit {
		result.Err = transportFailure(nil, fmt.Sprintf("transport: response body exceeds limit of %d bytes", limit), map[string]any{
			"uri":         result.URI,
			"status_code": httpRes.StatusCode,
		})
		result.StatusCode = 0
		return
	}
	result.Body = payload
}

// record appends the request log entry, then updates the breaker and raises
// any alert it asks for. Failures here are logged and never change result.
func (e *Executor) record(ctx context.Context, platform string, startedAt time.Time, result *Result) {
	finishedAt := e.now()
	result.Duration = finishedAt.Sub(startedAt)

	fields := map[string]any{
		"platform":    platform,
		"method":      result.Method,
		"uri":         result.URI,
		"status_code": result.StatusCode,
	}
	tags := map[string]string{"method": result.Method, "status": strconv.Itoa(result.StatusCode)}
	e.Telemetry.Count(ctx, "tmsync.http.requests.total", 1, tags)
	e.Telemetry.Observe(ctx, "tmsync.http.duration_ms", float64(result.Duration.Milliseconds()), tags)

	if e.RequestLog != nil {
		entry := core.RequestLogEntry{
			Platform:   platform,
			Method:     result.Method,
			URI:        result.URI,
			StatusCode: result.StatusCode,
			Detail:     failureDetail(*result),
			DurationMS: result.Duration.Milliseconds(),
			CreatedAt:  finishedAt,
		}
		if err := e.RequestLog.Append(ctx, entry); err != nil {
			e.Telemetry.Log(ctx, "warn", "request log append failed", withError(fields, err))
		}
	}

	if e.Breaker == nil {
		return
	}
	transition, err := e.Breaker.Observe(ctx, result.StatusCode, finishedAt)
	if err != nil {
		e.Telemetry.Log(ctx, "warn", "breaker update failed", withError(fields, err))
		return
	}
	if transition.Alert == "" || e.Notifier == nil {
		return
	}
	params := map[string]any{
		"platform":    platform,
		"uri":         result.URI,
		"status_code": result.StatusCode,
		"counter":     transition.Current.Counter,
	}
	if err := e.Notifier.Alert(ctx, transition.Alert, params); err != nil {
		e.Telemetry.Log(ctx, "warn", "administrator alert failed", withError(fields, err))
	}
}

func (e *Executor) credentials(ctx context.Context) (Credentials, error) {
	if e.Credentials == nil {
		return Credentials{}, fmt.Errorf("transport: credential source is not configured")
	}
	creds, err := e.Credentials.Credentials(ctx)
	if err != nil {
		return Credentials{}, err
	}
	return creds, nil
}

func (e *Executor) now() time.Time {
	if e != nil && e.Now != nil {
		return e.Now().UTC()
	}
	return time.Now().UTC()
}

// failureDetail is the error text, or the truncated body of a non-2xx response.
func failureDetail(result Result) string {
	if result.Err != nil {
		return result.Err.Error()
	}
	if result.StatusCode >= 200 && result.StatusCode < 300 {
		return ""
	}
	detail := string(result.Body)
	if len(detail) > defaultDetailLimit {
		detail = detail[:defaultDetailLimit]
	}
	return detail
}

func withError(fields map[string]any, err error) map[string]any {
	out := make(map[string]any, len(fields)+1)
	for key, value := range fields {
		out[key] = value
	}
	out["error"] = err.Error()
	return out
}

func flattenHeaders(headers http.Header) map[string]string {
	if len(headers) == 0 {
		return map[string]string{}
	}
	flat := make(map[string]string, len(headers))
	for key, values := range headers {
		flat[key] = strings.Join(values, ",")
	}
	return flat
}
