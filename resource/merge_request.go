package resource

import (
	"strconv"
	"strings"
)

// ContactMergeRequest asserts that the source contact was merged into the
// destination contact on the source platform.
type ContactMergeRequest struct {
	Base
	SourceContactID                    int64
	SourceContactUniqueIdentifier      string
	DestinationContactID               int64
	DestinationContactUniqueIdentifier string
}

func (*ContactMergeRequest) ResourceType() string { return "ContactMergeRequest" }

func (*ContactMergeRequest) StatusName() string { return "" }

// GUID falls back to a request-scoped key when the source omits an identifier.
func (m *ContactMergeRequest) GUID() string {
	if guid := m.Base.GUID(); guid != "" {
		return guid
	}
	if m.ID == 0 {
		return ""
	}
	return "contactmergerequest-" + strconv.FormatInt(m.ID, 10)
}

func (m *ContactMergeRequest) SourceGUID() string {
	return strings.TrimSpace(m.SourceContactUniqueIdentifier)
}

func (m *ContactMergeRequest) DestinationGUID() string {
	return strings.TrimSpace(m.DestinationContactUniqueIdentifier)
}

func registerMergeRequests(r *Registry) {
	define[ContactMergeRequest](r, "ContactMergeRequest", "RequestID").
		integer("SourceContactID", func(m *ContactMergeRequest, v int64) { m.SourceContactID = v }).
		text("SourceContactUniqueIdentifier", func(m *ContactMergeRequest, v string) {
			m.SourceContactUniqueIdentifier = v
		}).
		integer("DestinationContactID", func(m *ContactMergeRequest, v int64) { m.DestinationContactID = v }).
		text("DestinationContactUniqueIdentifier", func(m *ContactMergeRequest, v string) {
			m.DestinationContactUniqueIdentifier = v
		})
	r.collection("ContactMergeRequests", "ContactMergeRequest")
}
