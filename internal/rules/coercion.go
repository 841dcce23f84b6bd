// internal/rules/coercion.go
package rules

import (
	"errors"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/solatis/cratedigger/internal/types"
)

/*
 * Type coercion for rule evaluation.
 *
 * Three operand types (NUMERIC, TEXT, DATE). A comparison picks its type from
 * its operands at compile time, then both sides are coerced per record.
 *
 * Key distinction: a missing attribute and a failed coercion both evaluate
 * to false, but they are detected separately. Missing is a resolution result
 * (Found=false); coercion failure is errCoercionFailed.
 *
 * Type modes:
 *   - NUMERIC: strict - finite float64 or numeric string, rejects the rest
 *   - TEXT: lenient - numbers render in shortest form, dates as RFC 3339
 *   - DATE: strict - time.Time or a string accepted by types.ParseTime
 *
 * String trimming for NUMERIC (whitespace-only strings are not numbers).
 */

// FieldType selects the coercion applied to operands.
type FieldType int

const (
	FieldTypeText FieldType = iota
	FieldTypeNumeric
	FieldTypeDate
)

// errCoercionFailed indicates a value cannot be represented in the target type.
var errCoercionFailed = errors.New("type coercion failed")

// CoercionResult holds the coerced value or indicates null.
type CoercionResult struct {
	Value  any  // float64, string or time.Time; valid only if !IsNull
	IsNull bool // true if input was nil
}

// Coerce converts value to the representation used by fieldType comparisons.
// Returns CoercionResult with IsNull=true for nil input.
func Coerce(value any, fieldType FieldType) (CoercionResult, error) {
	if value == nil {
		return CoercionResult{IsNull: true}, nil
	}

	var (
		v   any
		err error
	)
	switch fieldType {
	case FieldTypeNumeric:
		v, err = coerceNumeric(value)
	case FieldTypeDate:
		v, err = coerceDate(value)
	default:
		v, err = coerceText(value)
	}
	if err != nil {
		return CoercionResult{}, err
	}
	return CoercionResult{Value: v}, nil
}

// coerceNumeric converts value to a finite float64.
// NaN and infinities fail: numeric fields must parse to a finite number.
func coerceNumeric(value any) (float64, error) {
	var f float64
	switch v := value.(type) {
	case float64:
		f = v
	case int:
		f = float64(v)
	case int64:
		f = float64(v)
	case string:
		v = strings.TrimSpace(v)
		if v == "" {
			return 0, errCoercionFailed
		}
		parsed, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return 0, errCoercionFailed
		}
		f = parsed
	default:
		return 0, errCoercionFailed
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, errCoercionFailed
	}
	return f, nil
}

// coerceText renders scalars as text for exact string comparison.
func coerceText(value any) (string, error) {
	switch v := value.(type) {
	case string:
		return v, nil
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64), nil
	case int:
		return strconv.Itoa(v), nil
	case time.Time:
		return v.Format(time.RFC3339Nano), nil
	default:
		return "", errCoercionFailed
	}
}

// coerceDate converts value to an absolute instant.
func coerceDate(value any) (time.Time, error) {
	switch v := value.(type) {
	case time.Time:
		return v, nil
	case string:
		t, _, err := types.ParseTime(v)
		if err != nil {
			return time.Time{}, errCoercionFailed
		}
		return t, nil
	default:
		return time.Time{}, errCoercionFailed
	}
}

// dateRange is an inclusive instant range. Exact literals have lo == hi;
// bare calendar dates widen to the whole day.
type dateRange struct {
	lo, hi time.Time
}

// literalDateRange parses a literal into a dateRange.
func literalDateRange(lit *types.Literal) (dateRange, error) {
	if lit.Kind != types.LiteralString {
		return dateRange{}, types.Expressionf("%s is not a date", lit.Text())
	}
	t, dateOnly, err := types.ParseTime(lit.Str)
	if err != nil {
		return dateRange{}, types.Expressionf("%q is not a date", lit.Str)
	}
	if dateOnly {
		return dateRange{lo: types.StartOfDay(t), hi: types.EndOfDay(t)}, nil
	}
	return dateRange{lo: t, hi: t}, nil
}

// literalNumber coerces a literal for numeric comparison.
func literalNumber(lit *types.Literal) (float64, error) {
	if lit.Kind == types.LiteralNumber {
		return lit.Num, nil
	}
	f, err := coerceNumeric(lit.Str)
	if err != nil {
		return 0, types.Expressionf("%q is not a number", lit.Str)
	}
	return f, nil
}
