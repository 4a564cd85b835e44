package resource

import (
	"fmt"
	"time"
)

type EventTemplate struct {
	Base
	Name               string
	Code               string
	Description        string
	AdvertisedDuration string
	Status             TemplateStatus
}

func (*EventTemplate) ResourceType() string { return "EventTemplate" }

func (t *EventTemplate) StatusName() string { return string(t.Status) }

type Event struct {
	Base
	TemplateID         int64
	Name               string
	Code               string
	Summary            string
	StartDateTime      time.Time
	FinishDateTime     time.Time
	StartTimeZoneAbbr  string
	FinishTimeZoneAbbr string
	PlacesRemaining    int64
	IsPrivate          bool
	Status             EventStatus
	Sessions           []*EventSession
	Presenters         []*Presenter
}

func (*Event) ResourceType() string { return "Event" }

func (e *Event) StatusName() string { return string(e.Status) }

func (e *Event) Template() *EventTemplate {
	template, _ := e.Related("EventTemplate").(*EventTemplate)
	return template
}

func (e *Event) Venue() *Venue {
	venue, _ := e.Related("Venue").(*Venue)
	return venue
}

type EventSession struct {
	Base
	Name           string
	StartDateTime  time.Time
	FinishDateTime time.Time
}

func (*EventSession) ResourceType() string { return "EventSession" }

func (*EventSession) StatusName() string { return "" }

type Venue struct {
	Base
	Name    string
	City    string
	Country string
}

func (*Venue) ResourceType() string { return "Venue" }

func (*Venue) StatusName() string { return "" }

type Presenter struct {
	Base
	FirstName string
	LastName  string
	Email     string
}

func (*Presenter) ResourceType() string { return "Presenter" }

func (*Presenter) StatusName() string { return "" }

type OnlineActivity struct {
	Base
	TemplateID          int64
	Name                string
	Code                string
	DeliveryDescription string
	ContactURL          string
	Credits             float64
	Status              EventStatus
}

func (*OnlineActivity) ResourceType() string { return "OnlineActivity" }

func (a *OnlineActivity) StatusName() string { return string(a.Status) }

func (a *OnlineActivity) Template() *EventTemplate {
	template, _ := a.Related("EventTemplate").(*EventTemplate)
	return template
}

func registerEvents(r *Registry) {
	define[EventTemplate](r, "EventTemplate", "TemplateID").
		text("Name", func(t *EventTemplate, v string) { t.Name = v }).
		text("Code", func(t *EventTemplate, v string) { t.Code = v }).
		text("Description", func(t *EventTemplate, v string) { t.Description = v }).
		text("AdvertisedDuration", func(t *EventTemplate, v string) { t.AdvertisedDuration = v }).
		setter("Status", func(t *EventTemplate, v string) error {
			t.Status = parseStatus(v, TemplateStatusDraft, TemplateStatusActive, TemplateStatusInactive)
			return nil
		})
	r.collection("EventTemplates", "EventTemplate")

	define[Event](r, "Event", "EventID").
		integer("TemplateID", func(e *Event, v int64) { e.TemplateID = v }).
		text("Name", func(e *Event, v string) { e.Name = v }).
		text("Code", func(e *Event, v string) { e.Code = v }).
		text("Summary", func(e *Event, v string) { e.Summary = v }).
		timestamp("StartDateTime", func(e *Event, v time.Time) { e.StartDateTime = v }).
		timestamp("FinishDateTime", func(e *Event, v time.Time) { e.FinishDateTime = v }).
		text("StartTimeZoneAbbr", func(e *Event, v string) { e.StartTimeZoneAbbr = v }).
		text("FinishTimeZoneAbbr", func(e *Event, v string) { e.FinishTimeZoneAbbr = v }).
		integer("PlacesRemaining", func(e *Event, v int64) { e.PlacesRemaining = v }).
		boolean("IsPrivate", func(e *Event, v bool) { e.IsPrivate = v }).
		setter("Status", func(e *Event, v string) error {
			e.Status = parseStatus(v, EventStatusDraft, EventStatusActive, EventStatusCompleted, EventStatusCancelled)
			return nil
		}).
		embeds("EventTemplate", "Venue").
		adder("EventSession", func(e *Event, child Resource) error {
			session, ok := child.(*EventSession)
			if !ok {
				return fmt.Errorf("resource: event session has type %s", child.ResourceType())
			}
			e.Sessions = append(e.Sessions, session)
			return nil
		}).
		adder("Presenter", func(e *Event, child Resource) error {
			presenter, ok := child.(*Presenter)
			if !ok {
				return fmt.Errorf("resource: presenter has type %s", child.ResourceType())
			}
			e.Presenters = append(e.Presenters, presenter)
			return nil
		})
	r.collection("Events", "Event")

	define[EventSession](r, "EventSession", "SessionID").
		text("Name", func(s *EventSession, v string) { s.Name = v }).
		timestamp("StartDateTime", func(s *EventSession, v time.Time) { s.StartDateTime = v }).
		timestamp("FinishDateTime", func(s *EventSession, v time.Time) { s.FinishDateTime = v })
	r.collection("Sessions", "EventSession")

	define[Venue](r, "Venue", "VenueID").
		text("Name", func(v *Venue, s string) { v.Name = s }).
		text("City", func(v *Venue, s string) { v.City = s }).
		text("Country", func(v *Venue, s string) { v.Country = s })
	r.collection("Venues", "Venue")

	define[Presenter](r, "Presenter", "PresenterID").
		text("FirstName", func(p *Presenter, v string) { p.FirstName = v }).
		text("LastName", func(p *Presenter, v string) { p.LastName = v }).
		text("Email", func(p *Presenter, v string) { p.Email = v })
	r.collection("Presenters", "Presenter")

	define[OnlineActivity](r, "OnlineActivity", "OnlineActivityID").
		integer("TemplateID", func(a *OnlineActivity, v int64) { a.TemplateID = v }).
		text("Name", func(a *OnlineActivity, v string) { a.Name = v }).
		text("Code", func(a *OnlineActivity, v string) { a.Code = v }).
		text("DeliveryDescription", func(a *OnlineActivity, v string) { a.DeliveryDescription = v }).
		text("ContactURL", func(a *OnlineActivity, v string) { a.ContactURL = v }).
		decimal("Credits", func(a *OnlineActivity, v float64) { a.Credits = v }).
		setter("Status", func(a *OnlineActivity, v string) error {
			a.Status = parseStatus(v, EventStatusDraft, EventStatusActive, EventStatusCompleted, EventStatusCancelled)
			return nil
		}).
		embeds("EventTemplate")
	r.collection("OnlineActivities", "OnlineActivity")
}
