package webhooks

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
)

type Handler interface {
	Handle(ctx context.Context, event Event) error
}

type HandlerFunc func(ctx context.Context, event Event) error

func (f HandlerFunc) Handle(ctx context.Context, event Event) error {
	return f(ctx, event)
}

// Registry maps resource types to handlers. Lookups ignore case and accept the
// plural collection name of a registered type.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]registration
}

type registration struct {
	resourceType string
	handler      Handler
}

func NewRegistry() *Registry {
	return &Registry{handlers: map[string]registration{}}
}

func (r *Registry) Register(resourceType string, handler Handler) error {
	if r == nil {
		return fmt.Errorf("webhooks: registry is nil")
	}
	resourceType = strings.TrimSpace(resourceType)
	if resourceType == "" {
		return fmt.Errorf("webhooks: handler resource type is required")
	}
	if handler == nil {
		return fmt.Errorf("webhooks: handler for %s is nil", resourceType)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	key := strings.ToLower(resourceType)
	if _, exists := r.handlers[key]; exists {
		return fmt.Errorf("webhooks: handler for %s already registered", resourceType)
	}
	r.handlers[key] = registration{resourceType: resourceType, handler: handler}
	return nil
}

// Lookup returns the handler and the canonical resource type it was
// registered under.
func (r *Registry) Lookup(resourceType string) (Handler, string, bool) {
	if r == nil {
		return nil, "", false
	}
	key := strings.ToLower(strings.TrimSpace(resourceType))
	r.mu.RLock()
	defer r.mu.RUnlock()
	if entry, ok := r.handlers[key]; ok {
		return entry.handler, entry.resourceType, true
	}
	for _, singular := range singularForms(key) {
		if entry, ok := r.handlers[singular]; ok {
			return entry.handler, entry.resourceType, true
		}
	}
	return nil, "", false
}

func singularForms(key string) []string {
	var forms []string
	if stem, ok := strings.CutSuffix(key, "ies"); ok {
		forms = append(forms, stem+"y")
	}
	if stem, ok := strings.CutSuffix(key, "s"); ok {
		forms = append(forms, stem)
	}
	return forms
}

func (r *Registry) Types() []string {
	if r == nil {
		return nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	types := make([]string, 0, len(r.handlers))
	for _, entry := range r.handlers {
		types = append(types, entry.resourceType)
	}
	sort.Strings(types)
	return types
}
