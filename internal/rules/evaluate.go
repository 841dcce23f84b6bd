// internal/rules/evaluate.go
package rules

import (
	"github.com/solatis/cratedigger/internal/types"
)

/*
 * Predicate evaluation against records.
 *
 * Compiled predicates are closures over a resolved fieldPath and a
 * pre-coerced literal. Per record the flow is:
 *   1. Resolve the field (Found=false on missing, see fieldpath.go)
 *   2. Coerce each value to the comparison type
 *   3. Compare with the operator
 *
 * Multi-valued fields (artists, tags) use ANY semantics: the predicate holds
 * if one element satisfies it. != is the exception: it holds when at least
 * one element is comparable and no element equals the target, so
 * `artists != 'a1'` is false for a record credited to a1 among others.
 *
 * Values that fail coercion are not comparable and never satisfy an
 * operator. A missing field fails every comparison, including !=.
 */

// valueTest compares one resolved value under op. The second result is
// false when the value could not be coerced.
type valueTest func(v any, op types.CompareOp) (matched, comparable bool)

func fieldPredicate(field fieldPath, op types.CompareOp, test valueTest) predicate {
	if op == types.OpNeq {
		return func(rec *types.Record) bool {
			res := field.resolve(rec)
			if !res.Found {
				return false
			}
			comparable := false
			equal := anyValue(res.Value, func(v any) bool {
				eq, ok := test(v, types.OpEq)
				comparable = comparable || ok
				return eq
			})
			return comparable && !equal
		}
	}
	return func(rec *types.Record) bool {
		res := field.resolve(rec)
		if !res.Found {
			return false
		}
		return anyValue(res.Value, func(v any) bool {
			matched, _ := test(v, op)
			return matched
		})
	}
}

// fieldFieldPredicate compares two fields; list sides use ANY over all pairs.
func fieldFieldPredicate(op types.CompareOp, ft FieldType, left, right fieldPath) predicate {
	return func(rec *types.Record) bool {
		l := left.resolve(rec)
		r := right.resolve(rec)
		if !l.Found || !r.Found {
			return false
		}
		comparable := false
		matchOp := op
		if op == types.OpNeq {
			matchOp = types.OpEq
		}
		hit := anyValue(l.Value, func(lv any) bool {
			a, err := Coerce(lv, ft)
			if err != nil || a.IsNull {
				return false
			}
			return anyValue(r.Value, func(rv any) bool {
				b, err := Coerce(rv, ft)
				if err != nil || b.IsNull {
					return false
				}
				comparable = true
				return Compare(matchOp, a.Value, b.Value)
			})
		})
		if op == types.OpNeq {
			return comparable && !hit
		}
		return hit
	}
}

// rangePredicate applies a single-value test under ANY semantics.
func rangePredicate(field fieldPath, test func(v any) bool) predicate {
	return func(rec *types.Record) bool {
		res := field.resolve(rec)
		if !res.Found {
			return false
		}
		return anyValue(res.Value, test)
	}
}

// Evaluate decides a single expression against a single record. The record
// is canonicalized with canon before evaluation; an empty (nil) node matches
// nothing. Errors are the validation errors compilation would raise, or
// types.ErrMatchTimeout when a MATCHES search ran out of time.
func Evaluate(node types.Node, rec *types.Record, canon types.CanonicalMap) (bool, error) {
	if node == nil {
		return false, nil
	}
	c := &compiler{canon: canon, fault: &evalFault{}}
	match, _, err := c.compileNode(node, 0)
	if err != nil {
		return false, err
	}
	canonical := CanonicalizeRecord(*rec, canon)
	ok := match(&canonical)
	if err := c.fault.get(); err != nil {
		return false, err
	}
	return ok, nil
}

// Filter returns the records matched by rule, preserving input order.
// Records must already be canonicalized.
func Filter(rule *CompiledRule, records []types.Record) []*types.Record {
	var out []*types.Record
	for i := range records {
		if rule.Match(&records[i]) {
			out = append(out, &records[i])
		}
	}
	return out
}
