package tmsync

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/goliatone/go-tmsync/webhooks"
)

// HandlerPack is a named set of webhook handlers keyed by resource type.
type HandlerPack struct {
	Name     string
	Handlers map[string]webhooks.Handler
}

type CommandQueryBundleFactory func(service CommandQueryService) (any, error)

type ExtensionHooks struct {
	mu sync.RWMutex

	handlerPacks map[string]HandlerPack
	bundles      map[string]CommandQueryBundleFactory
}

func NewExtensionHooks() *ExtensionHooks {
	return &ExtensionHooks{
		handlerPacks: map[string]HandlerPack{},
		bundles:      map[string]CommandQueryBundleFactory{},
	}
}

func (h *ExtensionHooks) RegisterHandlerPack(pack HandlerPack) error {
	if h == nil {
		return fmt.Errorf("tmsync: extension hooks are nil")
	}
	name := strings.TrimSpace(pack.Name)
	if name == "" {
		return fmt.Errorf("tmsync: handler pack name is required")
	}
	if len(pack.Handlers) == 0 {
		return fmt.Errorf("tmsync: handler pack %q has no handlers", name)
	}

	normalized := HandlerPack{Name: name, Handlers: make(map[string]webhooks.Handler, len(pack.Handlers))}
	for resourceType, handler := range pack.Handlers {
		resourceType = strings.TrimSpace(resourceType)
		if resourceType == "" {
			return fmt.Errorf("tmsync: handler pack %q has an empty resource type", name)
		}
		if handler == nil {
			return fmt.Errorf("tmsync: handler pack %q has a nil handler for %s", name, resourceType)
		}
		normalized.Handlers[resourceType] = handler
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if _, exists := h.handlerPacks[name]; exists {
		return fmt.Errorf("tmsync: handler pack %q already registered", name)
	}
	h.handlerPacks[name] = normalized
	return nil
}

func (h *ExtensionHooks) RegisterCommandQueryBundle(
	name string,
	factory CommandQueryBundleFactory,
) error {
	if h == nil {
		return fmt.Errorf("tmsync: extension hooks are nil")
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("tmsync: command/query bundle name is required")
	}
	if factory == nil {
		return fmt.Errorf("tmsync: command/query bundle %q factory is required", name)
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if _, exists := h.bundles[name]; exists {
		return fmt.Errorf("tmsync: command/query bundle %q already registered", name)
	}
	h.bundles[name] = factory
	return nil
}

// ApplyHandlerPacks registers every pack handler in pack name order. Types
// already present in the registry before the call keep their handler; two
// packs claiming the same type is an error.
func (h *ExtensionHooks) ApplyHandlerPacks(registry *webhooks.Registry) error {
	if h == nil {
		return nil
	}
	if registry == nil {
		return fmt.Errorf("tmsync: webhook registry is required")
	}

	preexisting := map[string]struct{}{}
	for _, resourceType := range registry.Types() {
		preexisting[strings.ToLower(resourceType)] = struct{}{}
	}
	for _, pack := range h.HandlerPacks() {
		types := make([]string, 0, len(pack.Handlers))
		for resourceType := range pack.Handlers {
			types = append(types, resourceType)
		}
		sort.Strings(types)
		for _, resourceType := range types {
			if _, ok := preexisting[strings.ToLower(resourceType)]; ok {
				continue
			}
			if err := registry.Register(resourceType, pack.Handlers[resourceType]); err != nil {
				return fmt.Errorf("tmsync: handler pack %q: %w", pack.Name, err)
			}
		}
	}
	return nil
}

func (h *ExtensionHooks) BuildCommandQueryBundles(
	service CommandQueryService,
) (map[string]any, error) {
	if h == nil {
		return map[string]any{}, nil
	}
	if service == nil {
		return nil, fmt.Errorf("tmsync: command/query service is required")
	}

	h.mu.RLock()
	names := make([]string, 0, len(h.bundles))
	for name := range h.bundles {
		names = append(names, name)
	}
	sort.Strings(names)
	factories := make(map[string]CommandQueryBundleFactory, len(h.bundles))
	for name, factory := range h.bundles {
		factories[name] = factory
	}
	h.mu.RUnlock()

	result := make(map[string]any, len(names))
	for _, name := range names {
		bundle, err := factories[name](service)
		if err != nil {
			return nil, err
		}
		result[name] = bundle
	}
	return result, nil
}

func (h *ExtensionHooks) HandlerPacks() []HandlerPack {
	if h == nil {
		return nil
	}
	h.mu.RLock()
	defer h.mu.RUnlock()

	names := make([]string, 0, len(h.handlerPacks))
	for name := range h.handlerPacks {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]HandlerPack, 0, len(names))
	for _, name := range names {
		pack := h.handlerPacks[name]
		handlers := make(map[string]webhooks.Handler, len(pack.Handlers))
		for resourceType, handler := range pack.Handlers {
			handlers[resourceType] = handler
		}
		out = append(out, HandlerPack{Name: pack.Name, Handlers: handlers})
	}
	return out
}

func (h *ExtensionHooks) BundleNames() []string {
	if h == nil {
		return nil
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	names := make([]string, 0, len(h.bundles))
	for name := range h.bundles {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
