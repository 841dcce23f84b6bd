package types

import (
	"errors"
	"fmt"
)

// Sentinel errors for report generation. Validation failures wrap one of the
// first four; rule compilation failures wrap ErrSyntax or ErrExpression.
var (
	// ErrInvalidRecords indicates the record collection is not a sequence of records.
	ErrInvalidRecords = errors.New("invalid records")

	// ErrInvalidContext indicates the context is missing or has no parseable current time.
	ErrInvalidContext = errors.New("invalid context")

	// ErrInvalidRuleDefinition indicates a rule is missing fields or has wrong shapes.
	ErrInvalidRuleDefinition = errors.New("invalid rule definition")

	// ErrInvalidCanonicalMapping indicates the canonical mapping is not flat text to text.
	ErrInvalidCanonicalMapping = errors.New("invalid canonical mapping")

	// ErrSyntax indicates a tokenizer-level failure in a rule expression.
	ErrSyntax = errors.New("syntax error")

	// ErrExpression indicates a well-tokenized but semantically invalid expression.
	ErrExpression = errors.New("expression error")

	// ErrMatchTimeout indicates a MATCHES search exceeded its time bound. The
	// report is abandoned rather than counting the record as a non-match.
	ErrMatchTimeout = errors.New("regex match timed out")
)

// SyntaxError reports a lexical failure at a byte offset of the source text.
type SyntaxError struct {
	Reason string
	Offset int
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("syntax error at offset %d: %s", e.Offset, e.Reason)
}

// Is matches ErrSyntax so callers can test the kind with errors.Is.
func (e *SyntaxError) Is(target error) bool {
	return target == ErrSyntax
}

// ExpressionError reports a structural or semantic problem in a parsed expression.
type ExpressionError struct {
	Reason string
}

func (e *ExpressionError) Error() string {
	return "expression error: " + e.Reason
}

// Is matches ErrExpression so callers can test the kind with errors.Is.
func (e *ExpressionError) Is(target error) bool {
	return target == ErrExpression
}

// Expressionf builds an ExpressionError with a formatted reason.
func Expressionf(format string, args ...any) *ExpressionError {
	return &ExpressionError{Reason: fmt.Sprintf(format, args...)}
}
