package resource

import (
	"strings"
	"testing"
	"time"

	"github.com/goliatone/go-tmsync/core"
)

const contactsPage = `<?xml version="1.0" encoding="utf-8"?>
<Contacts>
  <Link rel="http://schemas.arlo.co/api/2012/02/auth/related/Contact" type="application/xml" title="Contact" href="https://demo.arlo.co/api/2012-02-01/auth/resources/contacts/1/">
    <Contact>
      <ContactID>1</ContactID>
      <UniqueIdentifier>9a3f3c1e-0000-4000-8000-000000000001</UniqueIdentifier>
      <FirstName>Ada</FirstName>
      <LastName>Lovelace</LastName>
      <Email>ada@example.com</Email>
      <Status>Active</Status>
      <CreatedDateTime>2023-01-02T03:04:05Z</CreatedDateTime>
      <LastModifiedDateTime>2023-02-02T03:04:05+02:00</LastModifiedDateTime>
    </Contact>
  </Link>
  <Link rel="http://schemas.arlo.co/api/2012/02/auth/related/Contact" type="application/xml" title="Contact" href="https://demo.arlo.co/api/2012-02-01/auth/resources/contacts/2/">
    <Contact>
      <ContactID>2</ContactID>
      <UniqueIdentifier>9a3f3c1e-0000-4000-8000-000000000002</UniqueIdentifier>
      <FirstName>Grace</FirstName>
      <Status>Archived</Status>
    </Contact>
  </Link>
  <Link rel="NEXT" type="application/xml" href="https://demo.arlo.co/api/2012-02-01/auth/resources/contacts/?skip=2"/>
</Contacts>`

func TestDeserialize_CollectionWithNextLink(t *testing.T) {
	doc, err := Deserialize([]byte(contactsPage))
	if err != nil {
		t.Fatalf("deserialize: %v", err)
	}
	if !doc.IsCollection() {
		t.Fatalf("expected collection document")
	}
	if doc.Collection.Len() != 2 {
		t.Fatalf("expected 2 items, got %d", doc.Collection.Len())
	}
	if !doc.Collection.HasNext {
		t.Fatalf("expected has-more flag from case-insensitive next link")
	}
	if !strings.HasSuffix(doc.Collection.NextHref, "?skip=2") {
		t.Fatalf("unexpected next href %q", doc.Collection.NextHref)
	}

	first, ok := doc.Collection.Items[0].(*Contact)
	if !ok {
		t.Fatalf("expected *Contact, got %T", doc.Collection.Items[0])
	}
	if first.ExternalID() != 1 || first.FirstName != "Ada" || first.Status != ContactStatusActive {
		t.Fatalf("unexpected first contact %+v", first)
	}
	want := time.Date(2023, 2, 2, 1, 4, 5, 0, time.UTC)
	if !first.Modified().Equal(want) {
		t.Fatalf("expected modified %s, got %s", want, first.Modified())
	}

	second := doc.Collection.Items[1].(*Contact)
	if second.Status != ContactStatusUnknown {
		t.Fatalf("expected unknown status, got %q", second.Status)
	}
	if !second.Modified().IsZero() {
		t.Fatalf("expected zero modified time without timestamps")
	}
}

func TestDeserialize_CollectionWithoutNextLink(t *testing.T) {
	doc, err := Deserialize([]byte(`<Contacts><Link rel="self" href="x"/></Contacts>`))
	if err != nil {
		t.Fatalf("deserialize: %v", err)
	}
	if doc.Collection.HasNext {
		t.Fatalf("expected no next page")
	}
	if doc.Collection.Len() != 0 {
		t.Fatalf("expected empty collection")
	}
}

func TestDeserialize_SingleResourceWithExpansions(t *testing.T) {
	payload := `<Registration>
  <RegistrationID>77</RegistrationID>
  <UniqueIdentifier>reg-77</UniqueIdentifier>
  <Status>Completed</Status>
  <ProgressPercent>100</ProgressPercent>
  <CompletedDateTime>2024-05-01T10:00:00</CompletedDateTime>
  <Link rel="http://schemas.arlo.co/api/2012/02/auth/related/Contact" title="Contact" href="https://demo/contacts/5/">
    <Contact>
      <ContactID>5</ContactID>
      <UniqueIdentifier>contact-5</UniqueIdentifier>
    </Contact>
  </Link>
  <Link rel="http://schemas.arlo.co/api/2012/02/auth/related/Event" title="Event" href="https://demo/events/9/"/>
</Registration>`
	doc, err := NewMapper(Options{Strict: true}).Deserialize([]byte(payload))
	if err != nil {
		t.Fatalf("deserialize: %v", err)
	}
	registration, ok := doc.Resource.(*Registration)
	if !ok {
		t.Fatalf("expected *Registration, got %T", doc.Resource)
	}
	if registration.Status != RegistrationStatusCompleted || registration.ProgressPercent != 100 {
		t.Fatalf("unexpected registration %+v", registration)
	}
	if registration.CompletedDateTime.IsZero() {
		t.Fatalf("expected completed timestamp")
	}
	contact := registration.Contact()
	if contact == nil || contact.GUID() != "contact-5" {
		t.Fatalf("expected expanded contact, got %+v", contact)
	}
	if registration.Event() != nil {
		t.Fatalf("expected unexpanded event link")
	}

	record := ToRecord(registration)
	if record.References["Contact"] != "contact-5" {
		t.Fatalf("expected contact reference, got %+v", record.References)
	}
	if record.References["Event"] != "https://demo/events/9/" {
		t.Fatalf("expected event href reference, got %+v", record.References)
	}
	if embedded := Embedded(registration); len(embedded) != 1 || embedded[0].GUID() != "contact-5" {
		t.Fatalf("unexpected embedded resources %+v", embedded)
	}
}

func TestDeserialize_NestedChildResources(t *testing.T) {
	payload := `<Event>
  <EventID>3</EventID>
  <UniqueIdentifier>event-3</UniqueIdentifier>
  <IsPrivate>TRUE</IsPrivate>
  <EventTemplate><TemplateID>8</TemplateID><Name>Intro</Name></EventTemplate>
  <EventSession><SessionID>1</SessionID></EventSession>
  <EventSession><SessionID>2</SessionID></EventSession>
</Event>`
	doc, err := Deserialize([]byte(payload))
	if err != nil {
		t.Fatalf("deserialize: %v", err)
	}
	event := doc.Resource.(*Event)
	if !event.IsPrivate {
		t.Fatalf("expected private event")
	}
	if event.Template() == nil || event.Template().Name != "Intro" {
		t.Fatalf("expected embedded template")
	}
	if len(event.Sessions) != 2 || event.Sessions[1].ExternalID() != 2 {
		t.Fatalf("expected two sessions, got %+v", event.Sessions)
	}
}

func TestDeserialize_UnknownElementsLenientAndStrict(t *testing.T) {
	payload := `<Contact><ContactID>1</ContactID><FavouriteColour>blue</FavouriteColour></Contact>`

	doc, err := Deserialize([]byte(payload))
	if err != nil {
		t.Fatalf("lenient deserialize: %v", err)
	}
	if len(doc.Warnings) != 1 || !strings.Contains(doc.Warnings[0], "FavouriteColour") {
		t.Fatalf("expected skipped element warning, got %v", doc.Warnings)
	}

	_, err = NewMapper(Options{Strict: true}).Deserialize([]byte(payload))
	if !core.IsError(err, core.ErrUnknownFieldType) {
		t.Fatalf("expected unknown field type error, got %v", err)
	}
}

func TestDeserialize_RejectsInvalidPayloads(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		kind    error
	}{
		{name: "empty", payload: "   ", kind: core.ErrMalformedPayload},
		{name: "unclosed", payload: "<Contacts><Contact>", kind: core.ErrMalformedPayload},
		{name: "mismatched", payload: "<Contacts></Contact>", kind: core.ErrMalformedPayload},
		{name: "two roots", payload: "<Contact/><Contact/>", kind: core.ErrMalformedPayload},
		{name: "not xml", payload: "{\"json\":true}", kind: core.ErrMalformedPayload},
		{name: "unknown root", payload: "<Widgets/>", kind: core.ErrUnknownRootType},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Deserialize([]byte(tc.payload))
			if !core.IsError(err, tc.kind) {
				t.Fatalf("expected %v, got %v", tc.kind, err)
			}
		})
	}
}

func TestDeserialize_InvalidValueLenientAndStrict(t *testing.T) {
	payload := `<Contact><ContactID>abc</ContactID><FirstName>Ada</FirstName></Contact>`

	doc, err := Deserialize([]byte(payload))
	if err != nil {
		t.Fatalf("lenient deserialize: %v", err)
	}
	if doc.Resource.(*Contact).FirstName != "Ada" {
		t.Fatalf("expected remaining fields mapped")
	}

	_, err = NewMapper(Options{Strict: true}).Deserialize([]byte(payload))
	if !core.IsError(err, core.ErrMalformedPayload) {
		t.Fatalf("expected malformed payload error, got %v", err)
	}
}

func TestDeserialize_ContactMergeRequest(t *testing.T) {
	payload := `<ContactMergeRequest>
  <RequestID>12</RequestID>
  <SourceContactID>100</SourceContactID>
  <SourceContactUniqueIdentifier> src-guid </SourceContactUniqueIdentifier>
  <DestinationContactID>200</DestinationContactID>
  <DestinationContactUniqueIdentifier>dst-guid</DestinationContactUniqueIdentifier>
  <CreatedDateTime>2024-01-01T00:00:00Z</CreatedDateTime>
</ContactMergeRequest>`
	doc, err := Deserialize([]byte(payload))
	if err != nil {
		t.Fatalf("deserialize: %v", err)
	}
	request := doc.Resource.(*ContactMergeRequest)
	if request.GUID() != "contactmergerequest-12" {
		t.Fatalf("unexpected guid %q", request.GUID())
	}
	if request.SourceGUID() != "src-guid" || request.DestinationGUID() != "dst-guid" {
		t.Fatalf("unexpected merge request %+v", request)
	}
}

type widget struct {
	Base
	Label  string
	Source string
	Parts  []Resource
}

func (*widget) ResourceType() string { return "Widget" }

func (*widget) StatusName() string { return "" }

func TestRegistry_BindingPriority(t *testing.T) {
	registry := NewRegistry()
	define[widget](registry, "Widget", "WidgetID").
		text("Label", func(w *widget, v string) { w.Label = v; w.Source = "field" }).
		setter("Label", func(w *widget, v string) error { w.Source = "setter"; return nil }).
		setter("Part", func(w *widget, v string) error { w.Source = "setter:" + v; return nil }).
		adder("Part", func(w *widget, child Resource) error {
			w.Parts = append(w.Parts, child)
			return nil
		})
	define[widget](registry, "Part", "PartID")

	mapper := NewMapperWithRegistry(registry, Options{Strict: true})

	doc, err := mapper.Deserialize([]byte(`<Widget><Label>dial</Label></Widget>`))
	if err != nil {
		t.Fatalf("deserialize: %v", err)
	}
	if got := doc.Resource.(*widget); got.Label != "dial" || got.Source != "field" {
		t.Fatalf("expected field binding to win, got %+v", got)
	}

	doc, err = mapper.Deserialize([]byte(`<Widget><Part>knob</Part></Widget>`))
	if err != nil {
		t.Fatalf("deserialize: %v", err)
	}
	if got := doc.Resource.(*widget); got.Source != "setter:knob" || len(got.Parts) != 0 {
		t.Fatalf("expected setter for leaf value, got %+v", got)
	}

	doc, err = mapper.Deserialize([]byte(`<Widget><Part><PartID>4</PartID></Part><Part><PartID>5</PartID></Part></Widget>`))
	if err != nil {
		t.Fatalf("deserialize: %v", err)
	}
	if got := doc.Resource.(*widget); len(got.Parts) != 2 || got.Source != "" {
		t.Fatalf("expected adder for child resources, got %+v", got)
	}
}

func TestToRecord_FingerprintStable(t *testing.T) {
	first, err := Deserialize([]byte(contactsPage))
	if err != nil {
		t.Fatalf("deserialize: %v", err)
	}
	second, err := Deserialize([]byte(contactsPage))
	if err != nil {
		t.Fatalf("deserialize: %v", err)
	}
	a := ToRecord(first.Collection.Items[0])
	b := ToRecord(second.Collection.Items[0])
	if a.Fingerprint == "" || a.Fingerprint != b.Fingerprint {
		t.Fatalf("expected stable fingerprint, got %q and %q", a.Fingerprint, b.Fingerprint)
	}
	if !a.Unchanged(b) {
		t.Fatalf("expected redelivered record to be unchanged")
	}
	c := ToRecord(first.Collection.Items[1])
	if a.Fingerprint == c.Fingerprint {
		t.Fatalf("expected distinct fingerprints")
	}
	if a.Attributes["Email"] != "ada@example.com" || a.GUID != "9a3f3c1e-0000-4000-8000-000000000001" {
		t.Fatalf("unexpected record %+v", a)
	}
}
