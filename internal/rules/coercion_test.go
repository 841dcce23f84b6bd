package rules

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/solatis/cratedigger/internal/types"
)

func TestCoerce(t *testing.T) {
	instant := time.Date(2021, 6, 15, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name      string
		value     any
		fieldType FieldType
		wantValue any
		wantNull  bool
		wantErr   error
	}{
		{name: "numeric: float passthrough", value: 120.5, fieldType: FieldTypeNumeric, wantValue: 120.5},
		{name: "numeric: int widened", value: 7, fieldType: FieldTypeNumeric, wantValue: float64(7)},
		{name: "numeric: numeric string", value: " 128 ", fieldType: FieldTypeNumeric, wantValue: float64(128)},
		{name: "numeric: empty string fails", value: "", fieldType: FieldTypeNumeric, wantErr: errCoercionFailed},
		{name: "numeric: text fails", value: "fast", fieldType: FieldTypeNumeric, wantErr: errCoercionFailed},
		{name: "numeric: NaN fails", value: math.NaN(), fieldType: FieldTypeNumeric, wantErr: errCoercionFailed},
		{name: "numeric: infinity fails", value: math.Inf(1), fieldType: FieldTypeNumeric, wantErr: errCoercionFailed},
		{name: "numeric: nil is null", value: nil, fieldType: FieldTypeNumeric, wantNull: true},
		{name: "text: string passthrough", value: "G", fieldType: FieldTypeText, wantValue: "G"},
		{name: "text: number rendered", value: 1.5, fieldType: FieldTypeText, wantValue: "1.5"},
		{name: "text: instant rendered", value: instant, fieldType: FieldTypeText, wantValue: "2021-06-15T12:00:00Z"},
		{name: "text: list fails", value: []string{"a"}, fieldType: FieldTypeText, wantErr: errCoercionFailed},
		{name: "date: instant passthrough", value: instant, fieldType: FieldTypeDate, wantValue: instant},
		{name: "date: string parsed", value: "2021-06-15T12:00:00Z", fieldType: FieldTypeDate, wantValue: instant},
		{name: "date: garbage fails", value: "soon", fieldType: FieldTypeDate, wantErr: errCoercionFailed},
		{name: "date: number fails", value: 2021.0, fieldType: FieldTypeDate, wantErr: errCoercionFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := Coerce(tt.value, tt.fieldType)

			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Errorf("Coerce() error = %v, wantErr %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Coerce() unexpected error = %v", err)
			}
			if result.IsNull != tt.wantNull {
				t.Errorf("Coerce() IsNull = %v, want %v", result.IsNull, tt.wantNull)
			}
			if tt.wantNull {
				return
			}
			if want, ok := tt.wantValue.(time.Time); ok {
				got, isTime := result.Value.(time.Time)
				if !isTime || !got.Equal(want) {
					t.Errorf("Coerce() Value = %v, want %v", result.Value, want)
				}
				return
			}
			if result.Value != tt.wantValue {
				t.Errorf("Coerce() Value = %v (%T), want %v (%T)", result.Value, result.Value, tt.wantValue, tt.wantValue)
			}
		})
	}
}

func TestLiteralDateRange(t *testing.T) {
	tests := []struct {
		name    string
		lit     *types.Literal
		wantLo  time.Time
		wantHi  time.Time
		wantErr bool
	}{
		{
			name:   "bare date covers the day",
			lit:    types.StringLiteral("2024-01-31"),
			wantLo: time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC),
			wantHi: time.Date(2024, 1, 31, 23, 59, 59, int(999*time.Millisecond), time.UTC),
		},
		{
			name:   "instant is a point",
			lit:    types.StringLiteral("2024-01-31T08:30:00Z"),
			wantLo: time.Date(2024, 1, 31, 8, 30, 0, 0, time.UTC),
			wantHi: time.Date(2024, 1, 31, 8, 30, 0, 0, time.UTC),
		},
		{name: "number rejected", lit: types.NumberLiteral(2024), wantErr: true},
		{name: "text rejected", lit: types.StringLiteral("yesterday"), wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, err := literalDateRange(tt.lit)
			if tt.wantErr {
				if !errors.Is(err, types.ErrExpression) {
					t.Errorf("literalDateRange() error = %v, want ErrExpression", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("literalDateRange() error = %v", err)
			}
			if !r.lo.Equal(tt.wantLo) || !r.hi.Equal(tt.wantHi) {
				t.Errorf("literalDateRange() = [%v, %v], want [%v, %v]", r.lo, r.hi, tt.wantLo, tt.wantHi)
			}
		})
	}
}

func TestCompare(t *testing.T) {
	tests := []struct {
		name   string
		op     types.CompareOp
		value  any
		target any
		want   bool
	}{
		{"numbers equal", types.OpEq, 1.0, 1.0, true},
		{"numbers less", types.OpLt, 1.0, 2.0, true},
		{"numbers greater-or-equal", types.OpGte, 2.0, 2.0, true},
		{"strings lexicographic", types.OpLt, "Am", "G", true},
		{"strings case-sensitive", types.OpEq, "g", "G", false},
		{"mismatched types never equal", types.OpEq, "1", 1.0, false},
		{"mismatched types never unequal", types.OpNeq, "1", 1.0, false},
		{"instants ordered", types.OpGt, time.Unix(10, 0), time.Unix(5, 0), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Compare(tt.op, tt.value, tt.target); got != tt.want {
				t.Errorf("Compare(%s, %v, %v) = %v, want %v", tt.op, tt.value, tt.target, got, tt.want)
			}
		})
	}
}

func TestMirror(t *testing.T) {
	pairs := map[types.CompareOp]types.CompareOp{
		types.OpEq:  types.OpEq,
		types.OpNeq: types.OpNeq,
		types.OpLt:  types.OpGt,
		types.OpLte: types.OpGte,
		types.OpGt:  types.OpLt,
		types.OpGte: types.OpLte,
	}
	for op, want := range pairs {
		if got := mirror(op); got != want {
			t.Errorf("mirror(%s) = %s, want %s", op, got, want)
		}
	}
}
