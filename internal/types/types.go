// Package types provides domain models shared across cratedigger components.
//
// Wire-format agnostic: records, rules, expressions, candidates and reports are
// plain Go values. JSON decoding lives next to the types that need lenient
// handling (record.go, ast_json.go); proto conversion happens at the API boundary.
// ID utilities in ids.go import uuid but are isolated from the rest of the package.
package types

import "encoding/json"

// CanonicalMap maps a raw identifier to its canonical identifier.
// Absent entries map to themselves. Built once per run, read-only thereafter.
type CanonicalMap map[string]string

// Resolve returns the canonical identifier for id, or id itself when unmapped.
// Safe on a nil map.
func (m CanonicalMap) Resolve(id string) string {
	if c, ok := m[id]; ok {
		return c
	}
	return id
}

// ExpressionKind tags which arm of an Expression is populated.
type ExpressionKind int

const (
	ExpressionUnset ExpressionKind = iota
	ExpressionText
	ExpressionTree
)

// Expression is a rule expression: either raw text or a pre-built AST.
// A tree may also arrive as undecoded JSON; it is decoded and validated
// when the rule is compiled so schema errors surface as ExpressionError.
type Expression struct {
	Kind     ExpressionKind
	Text     string
	Tree     Node
	treeJSON json.RawMessage
}

// TextExpression wraps rule-language source text.
func TextExpression(src string) Expression {
	return Expression{Kind: ExpressionText, Text: src}
}

// TreeExpression wraps an already-constructed AST.
func TreeExpression(root Node) Expression {
	return Expression{Kind: ExpressionTree, Tree: root}
}

// TreeJSONExpression wraps a JSON-encoded AST for deferred decoding.
func TreeJSONExpression(raw json.RawMessage) Expression {
	return Expression{Kind: ExpressionTree, treeJSON: raw}
}

// TreeNode returns the tree arm, decoding deferred JSON on demand.
func (e Expression) TreeNode() (Node, error) {
	if e.Tree != nil || e.treeJSON == nil {
		return e.Tree, nil
	}
	return DecodeNode(e.treeJSON)
}

// MarshalJSON emits text expressions as strings and trees as tagged objects.
func (e Expression) MarshalJSON() ([]byte, error) {
	switch e.Kind {
	case ExpressionText:
		return json.Marshal(e.Text)
	case ExpressionTree:
		if e.Tree == nil && e.treeJSON != nil {
			return e.treeJSON, nil
		}
		return MarshalNode(e.Tree)
	default:
		return []byte("null"), nil
	}
}

// Rule is one named filter over the record collection.
type Rule struct {
	ID         string     `json:"id"`
	Priority   int        `json:"priority"`
	Label      string     `json:"label"`
	Expression Expression `json:"expression"`
}

// Policy holds the caller's report shaping flags.
// The zero value keeps zero-count candidates and applies no truncation.
type Policy struct {
	ExcludeZeroCandidates bool
	MaxCandidates         int // ignored unless positive
}

// EvaluationContext is everything besides the records that a report run needs.
// CurrentTime is copied verbatim into the report header and must parse as a time.
type EvaluationContext struct {
	CurrentTime  string
	Rules        []Rule
	CanonicalMap CanonicalMap
	Policy       Policy
}

// CandidateStats are aggregates over a candidate's matched records.
// MeanBPM is nil when no match carries a numeric bpm.
type CandidateStats struct {
	Count                int            `json:"count"`
	TotalDurationSeconds int64          `json:"totalDurationSeconds"`
	MeanBPM              *float64       `json:"meanBpm,omitempty"`
	KeyHistogram         map[string]int `json:"keyHistogram"`
}

// Candidate is the per-rule result: ranked canonical record ids plus statistics.
type Candidate struct {
	RuleID    string         `json:"ruleId"`
	Label     string         `json:"label"`
	Priority  int            `json:"priority"`
	RecordIDs []string       `json:"recordIds"`
	Stats     CandidateStats `json:"stats"`
}

// Report is the ordered candidate list for one run.
type Report struct {
	GeneratedAt string      `json:"generatedAt"`
	Candidates  []Candidate `json:"candidates"`
}
