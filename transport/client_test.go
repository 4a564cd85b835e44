package transport

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/goliatone/go-tmsync/core"
	"github.com/goliatone/go-tmsync/odata"
	"github.com/goliatone/go-tmsync/resource"
)

func TestClient_BaseURL(t *testing.T) {
	client := NewClient(NewExecutor(nil, StaticCredentials{Platform: "demo.arlo.co", Username: "u"}), nil)
	base, err := client.BaseURL(context.Background())
	if err != nil {
		t.Fatalf("base url: %v", err)
	}
	if base != "https://demo.arlo.co/api/2012-02-01/auth/resources/" {
		t.Fatalf("unexpected base url %q", base)
	}

	missing := NewClient(NewExecutor(nil, StaticCredentials{Username: "u"}), nil)
	if _, err := missing.BaseURL(context.Background()); err == nil {
		t.Fatalf("expected missing platform error")
	}
}

func TestClient_CollectionFollowsNextLinks(t *testing.T) {
	var server *httptest.Server
	server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/2012-02-01/auth/resources/contacts/" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		if r.URL.Query().Get("skip") == "" {
			if r.URL.Query().Get("top") != "250" {
				w.WriteHeader(http.StatusBadRequest)
				return
			}
			_, _ = io.WriteString(w, `<Contacts>
  <Contact><ContactID>1</ContactID><UniqueIdentifier>c-1</UniqueIdentifier></Contact>
  <Link rel="next" href="`+server.URL+`/api/2012-02-01/auth/resources/contacts/?skip=1"/>
</Contacts>`)
			return
		}
		_, _ = io.WriteString(w, `<Contacts><Contact><ContactID>2</ContactID><UniqueIdentifier>c-2</UniqueIdentifier></Contact></Contacts>`)
	}))
	defer server.Close()

	h := newHarness(t, server)
	client := newTestClient(h)

	doc, _, err := client.Collection(context.Background(), "Contacts", odata.New().SetPageSize(1000))
	if err != nil {
		t.Fatalf("collection: %v", err)
	}
	if doc.Collection.Len() != 1 || !doc.Collection.HasNext {
		t.Fatalf("expected one item and a next page, got %+v", doc.Collection)
	}

	next, _, err := client.Follow(context.Background(), doc.Collection.NextHref)
	if err != nil {
		t.Fatalf("follow: %v", err)
	}
	if next.Collection.Len() != 1 || next.Collection.HasNext {
		t.Fatalf("expected last page, got %+v", next.Collection)
	}
	if next.Collection.Items[0].GUID() != "c-2" {
		t.Fatalf("unexpected item %q", next.Collection.Items[0].GUID())
	}
}

func TestClient_CollectionClassifiesServerErrors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	client := newTestClient(newHarness(t, server))
	_, result, err := client.Collection(context.Background(), "Events", nil)
	if !core.IsError(err, core.ErrServerError) {
		t.Fatalf("expected server error, got %v", err)
	}
	if result.StatusCode != http.StatusInternalServerError {
		t.Fatalf("expected status on result, got %d", result.StatusCode)
	}
}

func TestClient_ResourceWithExpansions(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/2012-02-01/auth/resources/registrations/42/" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		if r.URL.Query().Get("expand") != "Event,Event/EventTemplate" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		_, _ = io.WriteString(w, `<Registration><RegistrationID>42</RegistrationID><UniqueIdentifier>r-42</UniqueIdentifier></Registration>`)
	}))
	defer server.Close()

	client := newTestClient(newHarness(t, server))
	doc, _, err := client.Resource(context.Background(), "Registrations", 42, "Event/EventTemplate")
	if err != nil {
		t.Fatalf("resource: %v", err)
	}
	if doc.Resource.GUID() != "r-42" {
		t.Fatalf("unexpected resource %+v", doc.Resource)
	}
}

func TestClient_PatchAndRegisterWebhookEndpoint(t *testing.T) {
	var patchBody, postBody string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		switch r.Method {
		case http.MethodPatch:
			patchBody = string(body)
			w.WriteHeader(http.StatusOK)
		case http.MethodPost:
			postBody = string(body)
			if r.Header.Get("Content-Type") != "application/xml" {
				w.WriteHeader(http.StatusUnsupportedMediaType)
				return
			}
			w.WriteHeader(http.StatusCreated)
			_, _ = io.WriteString(w, `<WebhookEndpoint>
  <WebhookEndpointID>9</WebhookEndpointID>
  <Name>lms</Name>
  <Url>https://lms.example.com/hooks</Url>
  <Key>c2VjcmV0</Key>
  <Status>Active</Status>
</WebhookEndpoint>`)
		}
	}))
	defer server.Close()

	client := newTestClient(newHarness(t, server))
	if _, err := client.Patch(context.Background(), server.URL+"/registrations/1/",
		resource.NewPatch("Registration").Replace("Status", "Completed")); err != nil {
		t.Fatalf("patch: %v", err)
	}
	if !strings.Contains(patchBody, `<replace sel="Registration/Status">Completed</replace>`) {
		t.Fatalf("unexpected patch body %s", patchBody)
	}

	created, err := client.RegisterWebhookEndpoint(context.Background(), &resource.WebhookEndpoint{
		Name: "lms",
		URL:  "https://lms.example.com/hooks",
	})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if created.ExternalID() != 9 || created.Key != "c2VjcmV0" || created.Status != resource.WebhookEndpointStatusActive {
		t.Fatalf("unexpected endpoint %+v", created)
	}
	if !strings.Contains(postBody, "<Url>https://lms.example.com/hooks</Url>") {
		t.Fatalf("unexpected post body %s", postBody)
	}
}
