package graph

import (
	"strings"
)

// Op is a filter clause predicate.
type Op string

const (
	OpEq       Op = "eq"
	OpNe       Op = "ne"
	OpGt       Op = "gt"
	OpGte      Op = "gte"
	OpLt       Op = "lt"
	OpLte      Op = "lte"
	OpIn       Op = "in"
	OpContains Op = "contains"
)

// Filter is one conjunctive clause of a metadata query. Field addresses a
// metadata attribute, or the reserved names "id" and "memory" for the
// node's identity and content. A zero Op means OpEq.
type Filter struct {
	Field string `json:"field"`
	Op    Op     `json:"op,omitempty"`
	Value any    `json:"value"`
}

// Eq builds an equality clause.
func Eq(field string, value any) Filter {
	return Filter{Field: field, Op: OpEq, Value: value}
}

// MatchesFilters reports whether the node satisfies every clause.
// All backends evaluate filters through this single implementation so
// clause semantics do not drift between engines.
func MatchesFilters(n *Node, filters []Filter) bool {
	for _, f := range filters {
		if !matchesClause(n, f) {
			return false
		}
	}
	return true
}

func matchesClause(n *Node, f Filter) bool {
	val, ok := fieldValue(n, f.Field)

	op := f.Op
	if op == "" {
		op = OpEq
	}

	switch op {
	case OpEq:
		return ok && equalValues(val, f.Value)
	case OpNe:
		return !ok || !equalValues(val, f.Value)
	case OpGt, OpGte, OpLt, OpLte:
		if !ok {
			return false
		}
		cmp, comparable := compareValues(val, f.Value)
		if !comparable {
			return false
		}
		switch op {
		case OpGt:
			return cmp > 0
		case OpGte:
			return cmp >= 0
		case OpLt:
			return cmp < 0
		default:
			return cmp <= 0
		}
	case OpIn:
		if !ok {
			return false
		}
		for _, candidate := range anySlice(f.Value) {
			if equalValues(val, candidate) {
				return true
			}
		}
		return false
	case OpContains:
		if !ok {
			return false
		}
		switch vv := val.(type) {
		case string:
			want, isStr := f.Value.(string)
			return isStr && strings.Contains(vv, want)
		default:
			for _, item := range anySlice(val) {
				if equalValues(item, f.Value) {
					return true
				}
			}
			return false
		}
	}
	return false
}

// MatchesDeleteParams reports whether a node is selected by the delete
// parameters. Every provided selector must hold; selectors left empty do
// not constrain the match.
func MatchesDeleteParams(n *Node, params DeleteParams) bool {
	if len(params.MemoryIDs) > 0 && !containsString(params.MemoryIDs, n.ID) {
		return false
	}
	if len(params.UserNames) > 0 && !containsString(params.UserNames, n.UserName()) {
		return false
	}
	if len(params.FileIDs) > 0 {
		fileIDs := StringsValue(n.Metadata, KeyFileIDs)
		if !intersects(fileIDs, params.FileIDs) {
			return false
		}
	}
	return MatchesFilters(n, params.Filters)
}

func containsString(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}

func intersects(a, b []string) bool {
	set := make(map[string]struct{}, len(a))
	for _, s := range a {
		set[s] = struct{}{}
	}
	for _, s := range b {
		if _, ok := set[s]; ok {
			return true
		}
	}
	return false
}

func fieldValue(n *Node, field string) (any, bool) {
	switch field {
	case "id":
		return n.ID, true
	case "memory":
		return n.Memory, true
	}
	if n.Metadata == nil {
		return nil, false
	}
	v, ok := n.Metadata[field]
	if !ok || v == nil {
		return nil, false
	}
	return v, true
}

func equalValues(a, b any) bool {
	if af, aok := toFloat(a); aok {
		if bf, bok := toFloat(b); bok {
			return af == bf
		}
		return false
	}
	if as, aok := a.(string); aok {
		bs, bok := b.(string)
		return bok && as == bs
	}
	if ab, aok := a.(bool); aok {
		bb, bok := b.(bool)
		return bok && ab == bb
	}
	return false
}

// compareValues orders two values, numerically when both coerce to
// numbers, lexicographically when both are strings.
func compareValues(a, b any) (int, bool) {
	if af, aok := toFloat(a); aok {
		bf, bok := toFloat(b)
		if !bok {
			return 0, false
		}
		switch {
		case af < bf:
			return -1, true
		case af > bf:
			return 1, true
		default:
			return 0, true
		}
	}
	as, aok := a.(string)
	bs, bok := b.(string)
	if aok && bok {
		return strings.Compare(as, bs), true
	}
	return 0, false
}

func toFloat(v any) (float64, bool) {
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
	}
	return 0, false
}

func anySlice(v any) []any {
	switch vv := v.(type) {
	case []any:
		return vv
	case []string:
		out := make([]any, len(vv))
		for i, s := range vv {
			out[i] = s
		}
		return out
	case []int:
		out := make([]any, len(vv))
		for i, n := range vv {
			out[i] = n
		}
		return out
	case []float64:
		out := make([]any, len(vv))
		for i, f := range vv {
			out[i] = f
		}
		return out
	case nil:
		return nil
	default:
		return []any{v}
	}
}
