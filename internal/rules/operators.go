// internal/rules/operators.go
package rules

import (
	"strings"
	"time"

	"github.com/solatis/cratedigger/internal/types"
)

/*
 * Operator comparison logic.
 *
 * Values reach Compare already coerced to one FieldType: float64, string or
 * time.Time. Mixed or unknown types compare false for every operator,
 * including !=, so a value that failed coercion never matches.
 *
 * Operators:
 *   - == / != : exact equality (strings byte-for-byte, instants via Equal)
 *   - < <= > >= : numeric order, instant order, or lexicographic order
 *
 * Date literals compare as ranges (see compareDateRange) so a bare calendar
 * date covers its whole day for every operator.
 *
 * Switch-based like the rest of the engine: six operators with minimal
 * behavior variation do not warrant one type per operator.
 */

// Compare applies op to two values of the same coerced type.
func Compare(op types.CompareOp, value, target any) bool {
	c, ok := compareOrdered(value, target)
	if !ok {
		return false
	}
	switch op {
	case types.OpEq:
		return c == 0
	case types.OpNeq:
		return c != 0
	case types.OpLt:
		return c < 0
	case types.OpLte:
		return c <= 0
	case types.OpGt:
		return c > 0
	case types.OpGte:
		return c >= 0
	default:
		return false
	}
}

// compareOrdered performs three-way comparison (-1/0/1).
// Returns ok=false for mismatched or unsupported types.
func compareOrdered(a, b any) (int, bool) {
	switch av := a.(type) {
	case float64:
		bv, ok := b.(float64)
		if !ok {
			return 0, false
		}
		switch {
		case av < bv:
			return -1, true
		case av > bv:
			return 1, true
		default:
			return 0, true
		}
	case string:
		bv, ok := b.(string)
		if !ok {
			return 0, false
		}
		return strings.Compare(av, bv), true
	case time.Time:
		bv, ok := b.(time.Time)
		if !ok {
			return 0, false
		}
		return av.Compare(bv), true
	default:
		return 0, false
	}
}

// compareDateRange compares an instant against a literal date range.
// == means "within the range"; ordering operators use the near or far edge
// so that "<= 2024-01-31" includes the whole of January 31st.
func compareDateRange(op types.CompareOp, t time.Time, r dateRange) bool {
	switch op {
	case types.OpEq:
		return !t.Before(r.lo) && !t.After(r.hi)
	case types.OpNeq:
		return t.Before(r.lo) || t.After(r.hi)
	case types.OpLt:
		return t.Before(r.lo)
	case types.OpLte:
		return !t.After(r.hi)
	case types.OpGt:
		return t.After(r.hi)
	case types.OpGte:
		return !t.Before(r.lo)
	default:
		return false
	}
}

// mirror returns the operator that keeps meaning when operands swap sides.
func mirror(op types.CompareOp) types.CompareOp {
	switch op {
	case types.OpLt:
		return types.OpGt
	case types.OpLte:
		return types.OpGte
	case types.OpGt:
		return types.OpLt
	case types.OpGte:
		return types.OpLte
	default:
		return op
	}
}

// inSet checks membership using the coerced representation of the list.
func inSet(value any, texts map[string]struct{}, numbers []float64, dates []dateRange) bool {
	switch v := value.(type) {
	case string:
		_, ok := texts[v]
		return ok
	case float64:
		for _, n := range numbers {
			if n == v {
				return true
			}
		}
		return false
	case time.Time:
		for _, r := range dates {
			if compareDateRange(types.OpEq, v, r) {
				return true
			}
		}
		return false
	default:
		return false
	}
}
