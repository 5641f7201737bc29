package vecstore

import "sort"

// Filter is the canonical payload filter. It is either a flat mapping of
// field name to required value, or a compound form {"and": [f1, f2, ...]}
// whose parts are themselves flat mappings. Backends receive only the
// flattened flat form.
type Filter map[string]any

// Flatten reduces a canonical filter to the flat equality mapping that
// backends consume. Compound "and" filters are merged into one mapping,
// nil-valued clauses are dropped, and a filter with nothing left after
// flattening comes back as nil. Constructs with no flat equivalent, such
// as "or" compounds or per-field range predicates, fail closed with an
// UnsupportedFilterError rather than silently over-matching.
func Flatten(f Filter) (map[string]any, error) {
	if f == nil {
		return nil, nil
	}

	if _, ok := f["or"]; ok {
		return nil, &UnsupportedFilterError{Reason: "\"or\" compounds cannot be flattened"}
	}

	parts := []map[string]any{f}
	if raw, ok := f["and"]; ok {
		if len(f) > 1 {
			return nil, &UnsupportedFilterError{Reason: "\"and\" compound mixed with flat clauses"}
		}
		sub, ok := raw.([]any)
		if !ok {
			return nil, &UnsupportedFilterError{Reason: "\"and\" value is not a clause list"}
		}
		parts = parts[:0]
		for _, p := range sub {
			switch clause := p.(type) {
			case map[string]any:
				parts = append(parts, clause)
			case Filter:
				parts = append(parts, clause)
			case nil:
				// Dropped, same as a nil-valued field.
			default:
				return nil, &UnsupportedFilterError{Reason: "\"and\" clause is not a mapping"}
			}
		}
	}

	flat := map[string]any{}
	for _, part := range parts {
		for field, value := range part {
			if field == "and" || field == "or" {
				return nil, &UnsupportedFilterError{Reason: "nested compound filters cannot be flattened"}
			}
			if value == nil {
				continue
			}
			if _, nested := value.(map[string]any); nested {
				return nil, &UnsupportedFilterError{Reason: "range and operator predicates cannot be flattened"}
			}
			flat[field] = value
		}
	}

	if len(flat) == 0 {
		return nil, nil
	}
	return flat, nil
}

// MatchesPayload reports whether a payload satisfies every clause of a
// flat filter. Backends without native payload filtering use this for
// client-side evaluation so filter semantics stay identical everywhere.
func MatchesPayload(payload map[string]any, flat map[string]any) bool {
	for field, want := range flat {
		got, ok := payload[field]
		if !ok {
			return false
		}
		if !looselyEqual(got, want) {
			return false
		}
	}
	return true
}

// looselyEqual compares payload values across the numeric types that
// JSON round-trips blur together.
func looselyEqual(a, b any) bool {
	if af, ok := asFloat(a); ok {
		if bf, ok := asFloat(b); ok {
			return af == bf
		}
		return false
	}
	return a == b
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	default:
		return 0, false
	}
}

// SortedFields returns the flat filter's field names in a stable order,
// for deterministic condition construction and log output.
func SortedFields(flat map[string]any) []string {
	fields := make([]string, 0, len(flat))
	for field := range flat {
		fields = append(fields, field)
	}
	sort.Strings(fields)
	return fields
}
