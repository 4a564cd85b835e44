package core

import (
	"context"
	"strings"
	"sync"
)

const (
	AlertTemplateAuthFailure    = "tmsync.alert.auth_failure"
	AlertTemplateServerFailure  = "tmsync.alert.server_failure"
	AlertTemplateAmbiguousMerge = "tmsync.alert.ambiguous_merge"
)

type NotifierFunc func(ctx context.Context, templateKey string, params map[string]any) error

func (f NotifierFunc) Alert(ctx context.Context, templateKey string, params map[string]any) error {
	if f == nil {
		return nil
	}
	return f(ctx, templateKey, params)
}

// LogNotifier writes alerts to the log when no host notifier is configured.
type LogNotifier struct {
	Telemetry Telemetry
}

func (n LogNotifier) Alert(ctx context.Context, templateKey string, params map[string]any) error {
	fields := cloneFields(params)
	fields["template"] = strings.TrimSpace(templateKey)
	n.Telemetry.Log(ctx, "warn", "administrator alert", fields)
	return nil
}

type Alert struct {
	TemplateKey string
	Params      map[string]any
}

// MemoryNotifier records alerts in order.
type MemoryNotifier struct {
	mu     sync.Mutex
	alerts []Alert
}

func (n *MemoryNotifier) Alert(_ context.Context, templateKey string, params map[string]any) error {
	if n == nil {
		return nil
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	n.alerts = append(n.alerts, Alert{TemplateKey: templateKey, Params: cloneFields(params)})
	return nil
}

func (n *MemoryNotifier) Alerts() []Alert {
	if n == nil {
		return nil
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]Alert(nil), n.alerts...)
}

var (
	_ Notifier = NotifierFunc(nil)
	_ Notifier = LogNotifier{}
	_ Notifier = (*MemoryNotifier)(nil)
)
