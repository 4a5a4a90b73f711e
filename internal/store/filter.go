package store

import (
	"fmt"
)

// Filter is the Mongo-like query grammar fixed by spec.md §6: a field maps to
// a single comparison ($eq|$ne|$gt|$gte|$lt|$lte) against a literal, and
// filters combine under $and/$or. A Filter is itself a Document so it can be
// expressed as plain map literals or decoded from JSON.
//
//	Filter{"age": Document{"$gte": 21}}
//	Filter{"$and": []Filter{{"a": Document{"$eq": 1}}, {"b": Document{"$eq": 2}}}}
type Filter map[string]any

// Op is one of the supported comparison operators.
type Op string

// Supported comparison operators.
const (
	OpEq  Op = "$eq"
	OpNe  Op = "$ne"
	OpGt  Op = "$gt"
	OpGte Op = "$gte"
	OpLt  Op = "$lt"
	OpLte Op = "$lte"
)

// Combinator keys recognized at the top level of a Filter.
const (
	keyAnd = "$and"
	keyOr  = "$or"
)

// Matches reports whether doc satisfies filter. An empty or nil filter
// matches every document. Matches is logically equivalent to the obvious
// recursive interpretation of $and/$or/comparison operators (spec.md §8.7);
// boundary values ($gte with equality) match.
func Matches(filter Filter, doc Document) bool {
	if len(filter) == 0 {
		return true
	}
	for key, val := range filter {
		switch key {
		case keyAnd:
			subs, err := asFilterSlice(val)
			if err != nil {
				return false
			}
			for _, sub := range subs {
				if !Matches(sub, doc) {
					return false
				}
			}
		case keyOr:
			subs, err := asFilterSlice(val)
			if err != nil {
				return false
			}
			if len(subs) == 0 {
				return false
			}
			any := false
			for _, sub := range subs {
				if Matches(sub, doc) {
					any = true
					break
				}
			}
			if !any {
				return false
			}
		default:
			if !matchField(doc[key], val) {
				return false
			}
		}
	}
	return true
}

// matchField evaluates a single field predicate, which is a Document (or
// map[string]any) mapping one operator to a literal, e.g. {"$gte": 21}.
func matchField(actual any, predicate any) bool {
	ops, ok := asOpMap(predicate)
	if !ok {
		// Bare value shorthand: field equals literal directly.
		return compare(actual, predicate) == 0
	}
	for opKey, literal := range ops {
		cmp := compare(actual, literal)
		switch Op(opKey) {
		case OpEq:
			if cmp != 0 {
				return false
			}
		case OpNe:
			if cmp == 0 {
				return false
			}
		case OpGt:
			if cmp <= 0 {
				return false
			}
		case OpGte:
			if cmp < 0 {
				return false
			}
		case OpLt:
			if cmp >= 0 {
				return false
			}
		case OpLte:
			if cmp > 0 {
				return false
			}
		default:
			return false
		}
	}
	return true
}

func asOpMap(v any) (map[string]any, bool) {
	switch m := v.(type) {
	case Document:
		return m, true
	case map[string]any:
		return m, true
	default:
		return nil, false
	}
}

func asFilterSlice(v any) ([]Filter, error) {
	switch s := v.(type) {
	case []Filter:
		return s, nil
	case []any:
		out := make([]Filter, 0, len(s))
		for _, item := range s {
			switch f := item.(type) {
			case Filter:
				out = append(out, f)
			case Document:
				out = append(out, Filter(f))
			case map[string]any:
				out = append(out, Filter(f))
			default:
				return nil, fmt.Errorf("unsupported combinator operand: %T", item)
			}
		}
		return out, nil
	default:
		return nil, fmt.Errorf("unsupported combinator value: %T", v)
	}
}

// compare returns -1, 0, or 1 comparing actual to literal across the value
// kinds the document model supports (numbers, strings, bools, times encoded
// as RFC3339 strings). Incomparable types are treated as unequal (non-zero,
// stable but arbitrary sign).
func compare(actual, literal any) int {
	if actual == nil && literal == nil {
		return 0
	}
	if af, aok := toFloat(actual); aok {
		if lf, lok := toFloat(literal); lok {
			switch {
			case af < lf:
				return -1
			case af > lf:
				return 1
			default:
				return 0
			}
		}
	}
	if as, aok := actual.(string); aok {
		if ls, lok := literal.(string); lok {
			switch {
			case as < ls:
				return -1
			case as > ls:
				return 1
			default:
				return 0
			}
		}
	}
	if ab, aok := actual.(bool); aok {
		if lb, lok := literal.(bool); lok {
			if ab == lb {
				return 0
			}
			return 1
		}
	}
	return 1
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}
