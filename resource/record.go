package resource

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"
	"strings"
	"time"

	"github.com/goliatone/go-tmsync/core"
)

// ToRecord projects a resource into the record store shape. The fingerprint
// covers status, leaf values and references, so redelivery of an unchanged
// resource produces the same record.
func ToRecord(res Resource) core.Record {
	if res == nil {
		return core.Record{}
	}
	base := res.meta()
	values := base.Values()
	references := References(res)

	attributes := make(map[string]any, len(values))
	for key, value := range values {
		attributes[key] = value
	}
	return core.Record{
		ResourceType: res.ResourceType(),
		ExternalID:   res.ExternalID(),
		GUID:         res.GUID(),
		Status:       res.StatusName(),
		CreatedAt:    res.Created(),
		ModifiedAt:   res.Modified(),
		Fingerprint:  fingerprint(res.StatusName(), values, references),
		Attributes:   attributes,
		References:   references,
	}
}

// References maps each embedded or linked resource name to its GUID, or to the
// link href when the link was not expanded.
func References(res Resource) map[string]string {
	base := res.meta()
	out := map[string]string{}
	for _, name := range base.RelatedNames() {
		if related := base.Related(name); related != nil && related.GUID() != "" {
			out[name] = related.GUID()
		}
	}
	for _, link := range base.Links {
		name := strings.TrimSpace(link.Title)
		if name == "" || link.Expansion != nil || strings.TrimSpace(link.Href) == "" {
			continue
		}
		if _, ok := out[name]; !ok {
			out[name] = link.Href
		}
	}
	return out
}

// Embedded returns the resources expanded inside res, depth first.
func Embedded(res Resource) []Resource {
	if res == nil {
		return nil
	}
	var out []Resource
	base := res.meta()
	for _, name := range base.RelatedNames() {
		related := base.Related(name)
		if related == nil {
			continue
		}
		out = append(out, related)
		out = append(out, Embedded(related)...)
	}
	return out
}

// MaxModified returns the latest modification time across resources.
func MaxModified(resources []Resource) time.Time {
	var latest time.Time
	for _, res := range resources {
		if res == nil {
			continue
		}
		if modified := res.Modified(); modified.After(latest) {
			latest = modified
		}
	}
	return latest
}

func fingerprint(status string, values map[string]string, references map[string]string) string {
	keys := make([]string, 0, len(values))
	for key := range values {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	payload, _ := json.Marshal(struct {
		Status     string            `json:"status"`
		Keys       []string          `json:"keys"`
		Values     map[string]string `json:"values"`
		References map[string]string `json:"references"`
	}{
		Status:     status,
		Keys:       keys,
		Values:     values,
		References: references,
	})
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:])
}

// FieldValue returns the typed value of a shared attribute, or the raw text of
// any other bound leaf element.
func FieldValue(res Resource, name string) (any, bool) {
	if res == nil {
		return nil, false
	}
	switch name {
	case "CreatedDateTime":
		return res.Created(), !res.Created().IsZero()
	case "LastModifiedDateTime":
		return res.meta().LastModifiedDateTime, !res.meta().LastModifiedDateTime.IsZero()
	case "UniqueIdentifier":
		return res.GUID(), res.GUID() != ""
	case "Status":
		if status := res.StatusName(); status != "" {
			return status, true
		}
	}
	value, ok := res.meta().values[name]
	return value, ok
}
