// Package odata builds the query strings the source API accepts for
// collection reads: paging, expansions, OR-joined filters and ordering.
package odata

import (
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-tmsync/core"
)

const (
	DefaultPageSize = core.DefaultPageSize
	MaxPageSize     = core.MaxPageSize

	FieldCreated  = "CreatedDateTime"
	FieldModified = "LastModifiedDateTime"
)

type Operator string

const (
	OpEqual          Operator = "eq"
	OpNotEqual       Operator = "ne"
	OpGreaterThan    Operator = "gt"
	OpGreaterOrEqual Operator = "ge"
	OpLessThan       Operator = "lt"
	OpLessOrEqual    Operator = "le"
)

var operatorAliases = map[string]Operator{
	"eq":             OpEqual,
	"equal":          OpEqual,
	"ne":             OpNotEqual,
	"notequal":       OpNotEqual,
	"gt":             OpGreaterThan,
	"greaterthan":    OpGreaterThan,
	"ge":             OpGreaterOrEqual,
	"greaterorequal": OpGreaterOrEqual,
	"lt":             OpLessThan,
	"lessthan":       OpLessThan,
	"le":             OpLessOrEqual,
	"lessorequal":    OpLessOrEqual,
}

// ParseOperator resolves a short or long operator token.
func ParseOperator(token string) (Operator, error) {
	if op, ok := operatorAliases[strings.ToLower(strings.TrimSpace(token))]; ok {
		return op, nil
	}
	return "", core.NewError(core.ErrUnsupportedOperator,
		fmt.Sprintf("odata: unsupported operator %q", token),
		map[string]any{"operator": token},
	)
}

type Filter struct {
	Field    string
	Operator string
	Value    any
}

type Order struct {
	Field string
	Desc  bool
}

func (o Order) String() string {
	if o.Desc {
		return o.Field + " desc"
	}
	return o.Field + " asc"
}

// Query accumulates the parts of a collection query. The zero value is not
// ready for use; call New.
type Query struct {
	pageSize       int
	expands        []string
	filters        []Filter
	order          *Order
	dateTimeOffset bool
}

func New() *Query {
	return &Query{pageSize: DefaultPageSize}
}

// SetPageSize clamps n to MaxPageSize; non-positive values restore the default.
func (q *Query) SetPageSize(n int) *Query {
	switch {
	case n <= 0:
		q.pageSize = DefaultPageSize
	case n > MaxPageSize:
		q.pageSize = MaxPageSize
	default:
		q.pageSize = n
	}
	return q
}

func (q *Query) PageSize() int {
	return q.pageSize
}

// AddExpand adds path and every prefix of it. Dots and slashes both delimit.
func (q *Query) AddExpand(path string) *Query {
	path = strings.ReplaceAll(strings.TrimSpace(path), ".", "/")
	segments := []string{}
	for _, segment := range strings.Split(path, "/") {
		if segment = strings.TrimSpace(segment); segment != "" {
			segments = append(segments, segment)
		}
	}
	for i := range segments {
		q.addExpandPath(strings.Join(segments[:i+1], "/"))
	}
	return q
}

func (q *Query) addExpandPath(path string) {
	for _, existing := range q.expands {
		if existing == path {
			return
		}
	}
	q.expands = append(q.expands, path)
}

func (q *Query) Expands() []string {
	return append([]string(nil), q.expands...)
}

// Where appends a filter; filters are joined with OR.
func (q *Query) Where(field string, operator string, value any) *Query {
	q.filters = append(q.filters, Filter{Field: field, Operator: operator, Value: value})
	return q
}

func (q *Query) Filters() []Filter {
	return append([]Filter(nil), q.filters...)
}

func (q *Query) OrderBy(field string, desc bool) *Query {
	q.order = &Order{Field: strings.TrimSpace(field), Desc: desc}
	return q
}

// UseDateTimeOffset switches date literals to datetimeoffset('...').
func (q *Query) UseDateTimeOffset(enabled bool) *Query {
	q.dateTimeOffset = enabled
	return q
}

// Since applies the default watermark predicates when no filter was supplied.
func (q *Query) Since(watermark time.Time) *Query {
	if len(q.filters) == 0 {
		q.filters = append(q.filters, DefaultWatermarkFilters(watermark)...)
	}
	return q
}

// DefaultWatermarkFilters matches resources created or modified after w.
func DefaultWatermarkFilters(w time.Time) []Filter {
	return []Filter{
		{Field: FieldCreated, Operator: string(OpGreaterThan), Value: w},
		{Field: FieldModified, Operator: string(OpGreaterThan), Value: w},
	}
}

// FilterExpression renders the OR-joined filter clause.
func (q *Query) FilterExpression() (string, error) {
	parts := make([]string, 0, len(q.filters))
	for _, filter := range q.filters {
		op, err := ParseOperator(filter.Operator)
		if err != nil {
			return "", err
		}
		field := strings.TrimSpace(filter.Field)
		if field == "" {
			return "", badInput("odata: filter field is required")
		}
		literal, err := Literal(filter.Value, q.dateTimeOffset)
		if err != nil {
			return "", err
		}
		parts = append(parts, field+" "+string(op)+" "+literal)
	}
	return strings.Join(parts, " or "), nil
}

// Values returns the query parameters.
func (q *Query) Values() (url.Values, error) {
	values := url.Values{}
	values.Set("top", strconv.Itoa(q.pageSize))
	if len(q.expands) > 0 {
		values.Set("expand", strings.Join(q.expands, ","))
	}
	expr, err := q.FilterExpression()
	if err != nil {
		return nil, err
	}
	if expr != "" {
		values.Set("filter", expr)
	}
	if q.order != nil && q.order.Field != "" {
		values.Set("orderby", q.order.String())
	}
	return values, nil
}

// Encode renders the canonical query string, keys sorted.
func (q *Query) Encode() (string, error) {
	values, err := q.Values()
	if err != nil {
		return "", err
	}
	return values.Encode(), nil
}

const (
	dateTimeLayout       = "2006-01-02T15:04:05Z"
	dateTimeOffsetLayout = "2006-01-02T15:04:05-07:00"
)

// Literal renders value in filter literal syntax.
func Literal(value any, offset bool) (string, error) {
	switch v := value.(type) {
	case time.Time:
		if offset {
			return "datetimeoffset('" + v.Format(dateTimeOffsetLayout) + "')", nil
		}
		return "datetime('" + v.UTC().Format(dateTimeLayout) + "')", nil
	case *time.Time:
		if v == nil {
			return "null", nil
		}
		return Literal(*v, offset)
	case string:
		return "'" + strings.ReplaceAll(v, "'", "''") + "'", nil
	case bool:
		return strconv.FormatBool(v), nil
	case int:
		return strconv.Itoa(v), nil
	case int64:
		return strconv.FormatInt(v, 10), nil
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64), nil
	case nil:
		return "null", nil
	default:
		return "", badInput(fmt.Sprintf("odata: unsupported literal type %T", value))
	}
}

func badInput(message string) error {
	return goerrors.New(message, goerrors.CategoryBadInput).
		WithCode(http.StatusBadRequest).
		WithTextCode(core.ErrorBadInput)
}
