// Package resource maps source API XML documents into typed resources.
//
// Every known element is bound through an explicit per-type registry of typed
// closures (fields, then setters, then adders). Elements without a binding are
// skipped unless strict mode is enabled.
package resource

import (
	"sort"
	"strings"
	"time"
)

// Resource is implemented by every typed source entity.
type Resource interface {
	ResourceType() string
	ExternalID() int64
	GUID() string
	Created() time.Time
	Modified() time.Time
	StatusName() string
	meta() *Base
}

// Base carries the attributes every source resource shares.
type Base struct {
	ID                   int64
	UniqueIdentifier     string
	CreatedDateTime      time.Time
	LastModifiedDateTime time.Time
	Links                []Link

	values  map[string]string
	related map[string]Resource
}

func (b *Base) meta() *Base { return b }

func (b *Base) ExternalID() int64 { return b.ID }

func (b *Base) GUID() string { return strings.TrimSpace(b.UniqueIdentifier) }

func (b *Base) Created() time.Time { return b.CreatedDateTime }

// Modified falls back to the creation time for resources never modified.
func (b *Base) Modified() time.Time {
	if b.LastModifiedDateTime.IsZero() {
		return b.CreatedDateTime
	}
	return b.LastModifiedDateTime
}

// Values returns the raw text of every bound leaf element.
func (b *Base) Values() map[string]string {
	out := make(map[string]string, len(b.values))
	for key, value := range b.values {
		out[key] = value
	}
	return out
}

// Related returns the embedded resource attached under name, either as a direct
// child element or as the expansion of a link.
func (b *Base) Related(name string) Resource {
	if child, ok := b.related[name]; ok {
		return child
	}
	for _, link := range b.Links {
		if link.Expansion == nil {
			continue
		}
		if link.ElementName == name || strings.EqualFold(link.Title, name) {
			return link.Expansion
		}
	}
	return nil
}

// RelatedNames lists the names of embedded resources in stable order.
func (b *Base) RelatedNames() []string {
	seen := map[string]struct{}{}
	names := []string{}
	for name := range b.related {
		seen[name] = struct{}{}
		names = append(names, name)
	}
	for _, link := range b.Links {
		if link.Expansion == nil {
			continue
		}
		if _, ok := seen[link.ElementName]; ok {
			continue
		}
		seen[link.ElementName] = struct{}{}
		names = append(names, link.ElementName)
	}
	sort.Strings(names)
	return names
}

// LinkTo returns the first link whose title or relation ends with name.
func (b *Base) LinkTo(name string) (Link, bool) {
	for _, link := range b.Links {
		if strings.EqualFold(link.Title, name) || strings.HasSuffix(strings.ToLower(link.Rel), "/"+strings.ToLower(name)) {
			return link, true
		}
	}
	return Link{}, false
}

func (b *Base) setValue(name string, value string) {
	if b.values == nil {
		b.values = map[string]string{}
	}
	b.values[name] = value
}

func (b *Base) attach(name string, child Resource) {
	if b.related == nil {
		b.related = map[string]Resource{}
	}
	b.related[name] = child
}

// Link is a hypermedia link, optionally carrying an expanded resource.
type Link struct {
	Rel         string
	Href        string
	Title       string
	Type        string
	ElementName string
	Expansion   Resource
}

func (l Link) IsNext() bool {
	return strings.EqualFold(strings.TrimSpace(l.Rel), "next")
}

// Collection is an ordered page of resources plus its pagination links.
type Collection struct {
	Type     string
	ItemType string
	Items    []Resource
	Links    []Link
	HasNext  bool
	NextHref string
}

func (c *Collection) Len() int {
	if c == nil {
		return 0
	}
	return len(c.Items)
}

// Document is the result of deserializing one payload: exactly one of Resource
// or Collection is set.
type Document struct {
	Root       string
	Resource   Resource
	Collection *Collection
	Warnings   []string
}

func (d Document) IsCollection() bool {
	return d.Collection != nil
}

// Resources returns the collection items, or the single resource.
func (d Document) Resources() []Resource {
	if d.Collection != nil {
		return append([]Resource(nil), d.Collection.Items...)
	}
	if d.Resource != nil {
		return []Resource{d.Resource}
	}
	return nil
}
