package resource

import "time"

type Registration struct {
	Base
	Attendance              string
	Grade                   string
	Outcome                 string
	ProgressStatus          string
	ProgressPercent         float64
	Comments                string
	LastActivityDateTime    time.Time
	CompletedDateTime       time.Time
	CertificateSentDateTime time.Time
	Status                  RegistrationStatus
}

func (*Registration) ResourceType() string { return "Registration" }

func (r *Registration) StatusName() string { return string(r.Status) }

func (r *Registration) Contact() *Contact {
	contact, _ := r.Related("Contact").(*Contact)
	return contact
}

func (r *Registration) Event() *Event {
	event, _ := r.Related("Event").(*Event)
	return event
}

func (r *Registration) OnlineActivity() *OnlineActivity {
	activity, _ := r.Related("OnlineActivity").(*OnlineActivity)
	return activity
}

type Order struct {
	Base
	CurrencyCode string
	TotalAmount  float64
	Reference    string
	Status       OrderStatus
}

func (*Order) ResourceType() string { return "Order" }

func (o *Order) StatusName() string { return string(o.Status) }

func registerRegistrations(r *Registry) {
	define[Registration](r, "Registration", "RegistrationID").
		text("Attendance", func(g *Registration, v string) { g.Attendance = v }).
		text("Grade", func(g *Registration, v string) { g.Grade = v }).
		text("Outcome", func(g *Registration, v string) { g.Outcome = v }).
		text("ProgressStatus", func(g *Registration, v string) { g.ProgressStatus = v }).
		decimal("ProgressPercent", func(g *Registration, v float64) { g.ProgressPercent = v }).
		text("Comments", func(g *Registration, v string) { g.Comments = v }).
		timestamp("LastActivityDateTime", func(g *Registration, v time.Time) { g.LastActivityDateTime = v }).
		timestamp("CompletedDateTime", func(g *Registration, v time.Time) { g.CompletedDateTime = v }).
		timestamp("CertificateSentDateTime", func(g *Registration, v time.Time) { g.CertificateSentDateTime = v }).
		setter("Status", func(g *Registration, v string) error {
			g.Status = parseStatus(v,
				RegistrationStatusPendingApproval,
				RegistrationStatusApproved,
				RegistrationStatusCompleted,
				RegistrationStatusCancelled,
			)
			return nil
		}).
		embeds("Contact", "Event", "OnlineActivity", "Order")
	r.collection("Registrations", "Registration")

	define[Order](r, "Order", "OrderID").
		text("CurrencyCode", func(o *Order, v string) { o.CurrencyCode = v }).
		decimal("TotalAmount", func(o *Order, v float64) { o.TotalAmount = v }).
		text("Reference", func(o *Order, v string) { o.Reference = v }).
		setter("Status", func(o *Order, v string) error {
			o.Status = parseStatus(v,
				OrderStatusDraft,
				OrderStatusPendingApproval,
				OrderStatusApproved,
				OrderStatusCompleted,
				OrderStatusCancelled,
			)
			return nil
		}).
		embeds("Contact")
	r.collection("Orders", "Order")
}
