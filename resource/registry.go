package resource

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"
)

var errNotAssignable = errors.New("resource: value not assignable")

// value is either the trimmed text of a leaf element or a mapped child resource.
type value struct {
	name  string
	text  string
	child Resource
	leaf  bool
}

type assignFunc func(target Resource, v value) error

type schema struct {
	name    string
	newFn   func() Resource
	fields  map[string]assignFunc
	setters map[string]assignFunc
	adders  map[string]assignFunc
}

// bind tries fields, then setters, then adders. It reports false when no
// binding accepted the value.
func (s *schema) bind(target Resource, v value) (bool, error) {
	for _, tier := range []map[string]assignFunc{s.fields, s.setters, s.adders} {
		fn, ok := tier[v.name]
		if !ok {
			continue
		}
		err := fn(target, v)
		if errors.Is(err, errNotAssignable) {
			continue
		}
		if err != nil {
			return false, err
		}
		return true, nil
	}
	return false, nil
}

// Registry maps element names to resource and collection schemas.
type Registry struct {
	resources   map[string]*schema
	collections map[string]string
}

func NewRegistry() *Registry {
	return &Registry{
		resources:   map[string]*schema{},
		collections: map[string]string{},
	}
}

// IsResource reports whether name is a known resource element.
func (r *Registry) IsResource(name string) bool {
	_, ok := r.resources[name]
	return ok
}

// CollectionItemType returns the item type of a known collection element.
func (r *Registry) CollectionItemType(name string) (string, bool) {
	itemType, ok := r.collections[name]
	return itemType, ok
}

func (r *Registry) collection(name string, itemType string) {
	r.collections[name] = itemType
}

var (
	defaultRegistryOnce sync.Once
	defaultRegistry     *Registry
)

// DefaultRegistry returns the registry of every resource the source API exposes.
func DefaultRegistry() *Registry {
	defaultRegistryOnce.Do(func() {
		defaultRegistry = NewRegistry()
		registerContacts(defaultRegistry)
		registerEvents(defaultRegistry)
		registerRegistrations(defaultRegistry)
		registerMergeRequests(defaultRegistry)
		registerWebhookEndpoints(defaultRegistry)
	})
	return defaultRegistry
}

type binder[P Resource] struct {
	s *schema
}

// define registers a resource type with the bindings every resource shares.
func define[T any, P interface {
	*T
	Resource
}](r *Registry, name string, idElement string) binder[P] {
	s := &schema{
		name:    name,
		newFn:   func() Resource { return P(new(T)) },
		fields:  map[string]assignFunc{},
		setters: map[string]assignFunc{},
		adders:  map[string]assignFunc{},
	}
	r.resources[name] = s
	b := binder[P]{s: s}
	return b.
		integer(idElement, func(t P, v int64) { t.meta().ID = v }).
		text("UniqueIdentifier", func(t P, v string) { t.meta().UniqueIdentifier = v }).
		timestamp("CreatedDateTime", func(t P, v time.Time) { t.meta().CreatedDateTime = v }).
		timestamp("LastModifiedDateTime", func(t P, v time.Time) { t.meta().LastModifiedDateTime = v })
}

func (b binder[P]) text(name string, set func(P, string)) binder[P] {
	b.s.fields[name] = func(target Resource, v value) error {
		if !v.leaf {
			return errNotAssignable
		}
		set(target.(P), v.text)
		return nil
	}
	return b
}

func (b binder[P]) integer(name string, set func(P, int64)) binder[P] {
	b.s.fields[name] = func(target Resource, v value) error {
		if !v.leaf {
			return errNotAssignable
		}
		if v.text == "" {
			return nil
		}
		parsed, err := strconv.ParseInt(v.text, 10, 64)
		if err != nil {
			return fmt.Errorf("resource: %s: invalid integer %q", name, v.text)
		}
		set(target.(P), parsed)
		return nil
	}
	return b
}

func (b binder[P]) decimal(name string, set func(P, float64)) binder[P] {
	b.s.fields[name] = func(target Resource, v value) error {
		if !v.leaf {
			return errNotAssignable
		}
		if v.text == "" {
			return nil
		}
		parsed, err := strconv.ParseFloat(v.text, 64)
		if err != nil {
			return fmt.Errorf("resource: %s: invalid decimal %q", name, v.text)
		}
		set(target.(P), parsed)
		return nil
	}
	return b
}

func (b binder[P]) boolean(name string, set func(P, bool)) binder[P] {
	b.s.fields[name] = func(target Resource, v value) error {
		if !v.leaf {
			return errNotAssignable
		}
		if v.text == "" {
			return nil
		}
		parsed, err := strconv.ParseBool(strings.ToLower(v.text))
		if err != nil {
			return fmt.Errorf("resource: %s: invalid boolean %q", name, v.text)
		}
		set(target.(P), parsed)
		return nil
	}
	return b
}

func (b binder[P]) timestamp(name string, set func(P, time.Time)) binder[P] {
	b.s.fields[name] = func(target Resource, v value) error {
		if !v.leaf {
			return errNotAssignable
		}
		if v.text == "" {
			return nil
		}
		parsed, err := ParseTimestamp(v.text)
		if err != nil {
			return fmt.Errorf("resource: %s: %w", name, err)
		}
		set(target.(P), parsed)
		return nil
	}
	return b
}

// setter binds a leaf through a converting closure.
func (b binder[P]) setter(name string, set func(P, string) error) binder[P] {
	b.s.setters[name] = func(target Resource, v value) error {
		if !v.leaf {
			return errNotAssignable
		}
		return set(target.(P), v.text)
	}
	return b
}

// embeds accepts a same-named child resource; the mapper attaches it under its
// element name.
func (b binder[P]) embeds(names ...string) binder[P] {
	for _, name := range names {
		expected := name
		b.s.fields[name] = func(_ Resource, v value) error {
			if v.leaf || v.child == nil || v.child.ResourceType() != expected {
				return errNotAssignable
			}
			return nil
		}
	}
	return b
}

// adder appends repeated child resources.
func (b binder[P]) adder(name string, add func(P, Resource) error) binder[P] {
	b.s.adders[name] = func(target Resource, v value) error {
		if v.leaf || v.child == nil {
			return errNotAssignable
		}
		return add(target.(P), v.child)
	}
	return b
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// ParseTimestamp parses ISO-8601 timestamps with an optional offset and
// normalizes them to UTC. Values without an offset are read as UTC.
func ParseTimestamp(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	for _, layout := range timestampLayouts {
		if parsed, err := time.Parse(layout, raw); err == nil {
			return parsed.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid timestamp %q", raw)
}
