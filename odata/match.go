package odata

import (
	"strconv"
	"strings"
	"time"

	"github.com/goliatone/go-tmsync/resource"
)

// Matches evaluates OR-joined filters against a mapped resource. An empty
// filter list matches everything; missing fields never match.
func Matches(res resource.Resource, filters []Filter) (bool, error) {
	if len(filters) == 0 {
		return true, nil
	}
	for _, filter := range filters {
		op, err := ParseOperator(filter.Operator)
		if err != nil {
			return false, err
		}
		actual, ok := resource.FieldValue(res, strings.TrimSpace(filter.Field))
		if !ok {
			continue
		}
		cmp, comparable := compare(actual, filter.Value)
		if !comparable {
			continue
		}
		if satisfies(op, cmp) {
			return true, nil
		}
	}
	return false, nil
}

func satisfies(op Operator, cmp int) bool {
	switch op {
	case OpEqual:
		return cmp == 0
	case OpNotEqual:
		return cmp != 0
	case OpGreaterThan:
		return cmp > 0
	case OpGreaterOrEqual:
		return cmp >= 0
	case OpLessThan:
		return cmp < 0
	case OpLessOrEqual:
		return cmp <= 0
	}
	return false
}

func compare(actual any, expected any) (int, bool) {
	switch want := expected.(type) {
	case time.Time:
		got, ok := asTime(actual)
		if !ok {
			return 0, false
		}
		return got.Compare(want), true
	case int:
		return compareNumber(actual, float64(want))
	case int64:
		return compareNumber(actual, float64(want))
	case float64:
		return compareNumber(actual, want)
	case bool:
		got, err := strconv.ParseBool(strings.ToLower(toString(actual)))
		if err != nil {
			return 0, false
		}
		if got == want {
			return 0, true
		}
		return 1, true
	case string:
		return strings.Compare(toString(actual), want), true
	}
	return 0, false
}

func compareNumber(actual any, want float64) (int, bool) {
	got, err := strconv.ParseFloat(toString(actual), 64)
	if err != nil {
		return 0, false
	}
	switch {
	case got < want:
		return -1, true
	case got > want:
		return 1, true
	}
	return 0, true
}

func asTime(value any) (time.Time, bool) {
	switch v := value.(type) {
	case time.Time:
		return v, !v.IsZero()
	case string:
		parsed, err := resource.ParseTimestamp(v)
		return parsed, err == nil
	}
	return time.Time{}, false
}

func toString(value any) string {
	switch v := value.(type) {
	case string:
		return v
	case time.Time:
		return v.UTC().Format(time.RFC3339Nano)
	}
	return ""
}
