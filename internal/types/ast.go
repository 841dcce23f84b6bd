// internal/types/ast.go
package types

import "strconv"

/*
 * Rule expression AST.
 *
 * Tagged-variant tree produced by the parser in internal/rules or supplied
 * pre-built by callers. Node is sealed: only types in this package implement
 * it, so compilers can switch exhaustively over the variants.
 *
 * Variants:
 *   - FieldReference: bare field name, or metadata['key'] (Name "metadata")
 *   - Literal: string or number
 *   - Comparison: ==, !=, <, <=, >, >= between two operands
 *   - InList: field [NOT] IN (literal, ...)
 *   - Between: field BETWEEN low AND high (inclusive)
 *   - RegexMatch: field MATCHES /pattern/flags
 *   - LogicalAnd / LogicalOr / LogicalNot: connectives
 *
 * Trees are immutable after construction and safe to share across goroutines.
 */

// Node is any AST variant.
type Node interface {
	node() // marker method seals the interface to this package
}

// MetadataNamespace is the field name that addresses the auxiliary attribute map.
const MetadataNamespace = "metadata"

// FieldReference names a record attribute. Key is set only for metadata['key'].
type FieldReference struct {
	Name string
	Key  string
}

// IsMetadata reports whether the reference addresses the auxiliary map.
func (f *FieldReference) IsMetadata() bool {
	return f.Name == MetadataNamespace
}

// String renders the reference the way it is written in rule text.
func (f *FieldReference) String() string {
	if f.IsMetadata() {
		return f.Name + "['" + f.Key + "']"
	}
	return f.Name
}

// LiteralKind distinguishes string from number literals.
type LiteralKind int

const (
	LiteralString LiteralKind = iota
	LiteralNumber
)

// Literal is a constant operand.
type Literal struct {
	Kind LiteralKind
	Str  string
	Num  float64
}

// StringLiteral builds a string literal.
func StringLiteral(s string) *Literal {
	return &Literal{Kind: LiteralString, Str: s}
}

// NumberLiteral builds a number literal.
func NumberLiteral(n float64) *Literal {
	return &Literal{Kind: LiteralNumber, Num: n}
}

// Text returns the literal's text form; numbers use the shortest representation.
func (l *Literal) Text() string {
	if l.Kind == LiteralNumber {
		return strconv.FormatFloat(l.Num, 'f', -1, 64)
	}
	return l.Str
}

// CompareOp is a binary comparison operator.
type CompareOp string

const (
	OpEq  CompareOp = "=="
	OpNeq CompareOp = "!="
	OpLt  CompareOp = "<"
	OpLte CompareOp = "<="
	OpGt  CompareOp = ">"
	OpGte CompareOp = ">="
)

// Valid reports whether op is one of the six comparison operators.
func (op CompareOp) Valid() bool {
	switch op {
	case OpEq, OpNeq, OpLt, OpLte, OpGt, OpGte:
		return true
	}
	return false
}

// Comparison applies Op to two operands, each a *FieldReference or *Literal.
type Comparison struct {
	Op    CompareOp
	Left  Node
	Right Node
}

// InList tests membership of a field's value(s) in a literal list.
type InList struct {
	Field   *FieldReference
	Negated bool
	Values  []*Literal
}

// Between tests an inclusive range.
type Between struct {
	Field *FieldReference
	Low   *Literal
	High  *Literal
}

// RegexMatch performs an unanchored pattern search over a field.
type RegexMatch struct {
	Field   *FieldReference
	Pattern string
	Flags   string
}

// LogicalAnd is true when both sides are true.
type LogicalAnd struct {
	Left  Node
	Right Node
}

// LogicalOr is true when either side is true.
type LogicalOr struct {
	Left  Node
	Right Node
}

// LogicalNot negates its inner node.
type LogicalNot struct {
	Inner Node
}

func (*FieldReference) node() {}
func (*Literal) node()        {}
func (*Comparison) node()     {}
func (*InList) node()         {}
func (*Between) node()        {}
func (*RegexMatch) node()     {}
func (*LogicalAnd) node()     {}
func (*LogicalOr) node()      {}
func (*LogicalNot) node()     {}
