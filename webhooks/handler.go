package webhooks

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/goliatone/go-tmsync/core"
	"github.com/goliatone/go-tmsync/reconcile"
	"github.com/goliatone/go-tmsync/resource"
	"github.com/goliatone/go-tmsync/transport"
)

type ResourceFetcher interface {
	Follow(ctx context.Context, href string) (resource.Document, transport.Result, error)
	Resource(ctx context.Context, collection string, id int64, expands ...string) (resource.Document, transport.Result, error)
}

type ResourceApplier interface {
	Apply(ctx context.Context, res resource.Resource) (reconcile.Result, error)
	ApplyHeld(ctx context.Context, res resource.Resource) (reconcile.Result, error)
}

// ResourceHandler fetches the resource an event points at and reconciles it.
// The ingestor already holds the event lock, so the resource itself is applied
// with ApplyHeld while expanded relations take their own locks.
type ResourceHandler struct {
	Client     ResourceFetcher
	Reconciler ResourceApplier
	// Collection overrides the collection derived from the event resource type.
	Collection string
	Expands    []string
	Telemetry  core.Telemetry
}

func NewResourceHandler(client ResourceFetcher, reconciler ResourceApplier, expands ...string) *ResourceHandler {
	return &ResourceHandler{
		Client:     client,
		Reconciler: reconciler,
		Expands:    append([]string(nil), expands...),
	}
}

func (h *ResourceHandler) Handle(ctx context.Context, event Event) error {
	if h == nil || h.Client == nil || h.Reconciler == nil {
		return fmt.Errorf("webhooks: resource handler requires client and reconciler")
	}
	doc, err := h.fetch(ctx, event)
	if err != nil {
		return err
	}
	if doc.Resource == nil {
		return core.NewError(core.ErrUnknownRootType,
			fmt.Sprintf("webhooks: expected a single %s resource, got %s", event.ResourceType, doc.Root),
			map[string]any{"resource_type": event.ResourceType, "root": doc.Root},
		)
	}

	result, err := h.Reconciler.ApplyHeld(ctx, doc.Resource)
	if err != nil {
		return err
	}
	h.Telemetry.Log(ctx, "debug", "webhook resource reconciled", map[string]any{
		"event_id":      event.ID,
		"resource_type": result.ResourceType,
		"guid":          result.GUID,
		"outcome":       string(result.Outcome),
	})

	for _, related := range resource.Embedded(doc.Resource) {
		if related == nil || related.GUID() == "" {
			continue
		}
		if _, err := h.Reconciler.Apply(ctx, related); err != nil {
			return err
		}
	}
	return nil
}

func (h *ResourceHandler) fetch(ctx context.Context, event Event) (resource.Document, error) {
	if uri := strings.TrimSpace(event.ResourceURI); uri != "" && len(h.Expands) == 0 {
		doc, _, err := h.Client.Follow(ctx, uri)
		return doc, err
	}
	id, err := strconv.ParseInt(strings.TrimSpace(event.ResourceID), 10, 64)
	if err != nil {
		return resource.Document{}, malformed(fmt.Sprintf("webhooks: resourceId %q is not numeric", event.ResourceID), event)
	}
	doc, _, err := h.Client.Resource(ctx, h.collection(event.ResourceType), id, h.Expands...)
	return doc, err
}

func (h *ResourceHandler) collection(resourceType string) string {
	if collection := strings.TrimSpace(h.Collection); collection != "" {
		return collection
	}
	return CollectionFor(resourceType)
}

// CollectionFor maps a singular resource type to its collection name.
func CollectionFor(resourceType string) string {
	resourceType = strings.TrimSpace(resourceType)
	lower := strings.ToLower(resourceType)
	switch {
	case resourceType == "", strings.HasSuffix(lower, "s"):
		return resourceType
	case strings.HasSuffix(lower, "y"):
		return resourceType[:len(resourceType)-1] + "ies"
	default:
		return resourceType + "s"
	}
}
