package resource

import "strings"

// StatusUnknown is assigned when the source reports a status this package
// does not model yet.
const StatusUnknown = "Unknown"

type ContactStatus string

const (
	ContactStatusActive   ContactStatus = "Active"
	ContactStatusInactive ContactStatus = "Inactive"
	ContactStatusUnknown  ContactStatus = StatusUnknown
)

type EventStatus string

const (
	EventStatusDraft     EventStatus = "Draft"
	EventStatusActive    EventStatus = "Active"
	EventStatusCompleted EventStatus = "Completed"
	EventStatusCancelled EventStatus = "Cancelled"
	EventStatusUnknown   EventStatus = StatusUnknown
)

type TemplateStatus string

const (
	TemplateStatusDraft    TemplateStatus = "Draft"
	TemplateStatusActive   TemplateStatus = "Active"
	TemplateStatusInactive TemplateStatus = "Inactive"
	TemplateStatusUnknown  TemplateStatus = StatusUnknown
)

type RegistrationStatus string

const (
	RegistrationStatusPendingApproval RegistrationStatus = "PendingApproval"
	RegistrationStatusApproved        RegistrationStatus = "Approved"
	RegistrationStatusCompleted       RegistrationStatus = "Completed"
	RegistrationStatusCancelled       RegistrationStatus = "Cancelled"
	RegistrationStatusUnknown         RegistrationStatus = StatusUnknown
)

type OrderStatus string

const (
	OrderStatusDraft           OrderStatus = "Draft"
	OrderStatusPendingApproval OrderStatus = "PendingApproval"
	OrderStatusApproved        OrderStatus = "Approved"
	OrderStatusCompleted       OrderStatus = "Completed"
	OrderStatusCancelled       OrderStatus = "Cancelled"
	OrderStatusUnknown         OrderStatus = StatusUnknown
)

type WebhookEndpointStatus string

const (
	WebhookEndpointStatusActive   WebhookEndpointStatus = "Active"
	WebhookEndpointStatusDisabled WebhookEndpointStatus = "Disabled"
	WebhookEndpointStatusUnknown  WebhookEndpointStatus = StatusUnknown
)

// parseStatus matches raw case-insensitively against the known members and
// falls back to Unknown.
func parseStatus[E ~string](raw string, known ...E) E {
	raw = strings.TrimSpace(raw)
	for _, candidate := range known {
		if strings.EqualFold(string(candidate), raw) {
			return candidate
		}
	}
	return E(StatusUnknown)
}
