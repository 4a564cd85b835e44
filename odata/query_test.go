package odata

import (
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/goliatone/go-tmsync/core"
	"github.com/goliatone/go-tmsync/resource"
)

func TestQuery_SetPageSizeClamps(t *testing.T) {
	tests := []struct {
		requested int
		want      int
	}{
		{requested: 0, want: DefaultPageSize},
		{requested: -5, want: DefaultPageSize},
		{requested: 10, want: 10},
		{requested: MaxPageSize, want: MaxPageSize},
		{requested: 1000, want: MaxPageSize},
	}
	for _, tc := range tests {
		if got := New().SetPageSize(tc.requested).PageSize(); got != tc.want {
			t.Fatalf("page size %d: expected %d, got %d", tc.requested, tc.want, got)
		}
	}
}

func TestQuery_AddExpandIsPrefixComplete(t *testing.T) {
	q := New().
		AddExpand("Event/EventTemplate").
		AddExpand("Contact").
		AddExpand("OnlineActivity.EventTemplate").
		AddExpand("Event")

	got := strings.Join(q.Expands(), ",")
	want := "Event,Event/EventTemplate,Contact,OnlineActivity,OnlineActivity/EventTemplate"
	if got != want {
		t.Fatalf("expected %q, got %q", want, got)
	}

	deep := New().AddExpand("A/B/C").Expands()
	if strings.Join(deep, ",") != "A,A/B,A/B/C" {
		t.Fatalf("unexpected expansions %v", deep)
	}
}

func TestQuery_DefaultWatermarkFilter(t *testing.T) {
	watermark := time.Date(2024, 3, 1, 12, 30, 0, 0, time.UTC)
	expr, err := New().Since(watermark).FilterExpression()
	if err != nil {
		t.Fatalf("filter: %v", err)
	}
	want := "CreatedDateTime gt datetime('2024-03-01T12:30:00Z') or LastModifiedDateTime gt datetime('2024-03-01T12:30:00Z')"
	if expr != want {
		t.Fatalf("expected %q, got %q", want, expr)
	}

	custom, err := New().Where("Status", "equal", "Active").Since(watermark).FilterExpression()
	if err != nil {
		t.Fatalf("filter: %v", err)
	}
	if custom != "Status eq 'Active'" {
		t.Fatalf("expected caller filter to replace defaults, got %q", custom)
	}
}

func TestLiteral_DateTimeForms(t *testing.T) {
	at := time.Date(2024, 3, 1, 12, 30, 0, 0, time.FixedZone("NZDT", 13*3600))

	plain, err := Literal(at, false)
	if err != nil {
		t.Fatalf("literal: %v", err)
	}
	if plain != "datetime('2024-02-29T23:30:00Z')" {
		t.Fatalf("unexpected datetime literal %q", plain)
	}

	offset, err := Literal(at, true)
	if err != nil {
		t.Fatalf("literal: %v", err)
	}
	if offset != "datetimeoffset('2024-03-01T12:30:00+13:00')" {
		t.Fatalf("unexpected datetimeoffset literal %q", offset)
	}

	quoted, _ := Literal("O'Brien", false)
	if quoted != "'O''Brien'" {
		t.Fatalf("unexpected string literal %q", quoted)
	}
}

func TestParseOperator_ShortAndLongForms(t *testing.T) {
	for _, token := range []string{"eq", "ne", "gt", "ge", "lt", "le", "greaterThan", "LessOrEqual", "notEqual"} {
		if _, err := ParseOperator(token); err != nil {
			t.Fatalf("operator %q: %v", token, err)
		}
	}

	_, err := New().Where("Status", "like", "x").Encode()
	if !core.IsError(err, core.ErrUnsupportedOperator) {
		t.Fatalf("expected unsupported operator, got %v", err)
	}
}

func TestQuery_EncodeCanonical(t *testing.T) {
	encoded, err := New().
		SetPageSize(500).
		AddExpand("Contact").
		Where("LastModifiedDateTime", "gt", time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)).
		OrderBy("LastModifiedDateTime", false).
		Encode()
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	values, err := url.ParseQuery(encoded)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if values.Get("top") != "250" {
		t.Fatalf("expected clamped top, got %q", values.Get("top"))
	}
	if values.Get("orderby") != "LastModifiedDateTime asc" {
		t.Fatalf("unexpected orderby %q", values.Get("orderby"))
	}
	if !strings.HasPrefix(encoded, "expand=") {
		t.Fatalf("expected sorted keys, got %q", encoded)
	}
}

func TestMatches_WatermarkFilters(t *testing.T) {
	doc, err := resource.Deserialize([]byte(`<Contacts>
  <Contact><ContactID>1</ContactID><CreatedDateTime>2024-01-01T00:00:00Z</CreatedDateTime></Contact>
  <Contact><ContactID>2</ContactID><CreatedDateTime>2023-01-01T00:00:00Z</CreatedDateTime><LastModifiedDateTime>2024-02-01T00:00:00Z</LastModifiedDateTime></Contact>
  <Contact><ContactID>3</ContactID><CreatedDateTime>2023-01-01T00:00:00Z</CreatedDateTime></Contact>
</Contacts>`))
	if err != nil {
		t.Fatalf("deserialize: %v", err)
	}
	filters := DefaultWatermarkFilters(time.Date(2023, 6, 1, 0, 0, 0, 0, time.UTC))
	want := []bool{true, true, false}
	for i, item := range doc.Collection.Items {
		got, err := Matches(item, filters)
		if err != nil {
			t.Fatalf("matches: %v", err)
		}
		if got != want[i] {
			t.Fatalf("item %d: expected %v, got %v", i, want[i], got)
		}
	}
}
