// internal/report/decode.go
package report

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math"

	"github.com/solatis/cratedigger/internal/types"
)

/*
 * JSON entry point.
 *
 * Inputs arrive as loosely-typed JSON (CLI files, gRPC Struct payloads), so
 * shape validation happens here, in the same fixed order Generate uses:
 * records, currentTime, rules, canonicalMap. Policy flags are forgiving:
 * includeZeroCandidates only opts out when it is literally false, and
 * maxCandidates is ignored unless it is a positive whole number.
 */

// GenerateReportJSON decodes raw inputs and builds a report with g.
func (g *Generator) GenerateReportJSON(recordsJSON, contextJSON []byte) (*types.Report, error) {
	return g.GenerateReportJSONContext(context.Background(), recordsJSON, contextJSON)
}

// GenerateReportJSONContext is GenerateReportJSON bounded by ctx.
func (g *Generator) GenerateReportJSONContext(ctx context.Context, recordsJSON, contextJSON []byte) (*types.Report, error) {
	records, ectx, err := DecodeInput(recordsJSON, contextJSON)
	if err != nil {
		return nil, err
	}
	return g.GenerateContext(ctx, records, ectx)
}

// GenerateReportJSON decodes raw inputs and builds a report with default settings.
func GenerateReportJSON(recordsJSON, contextJSON []byte) (*types.Report, error) {
	return defaultGenerator.GenerateReportJSON(recordsJSON, contextJSON)
}

// DecodeInput validates and decodes both inputs, failing on the first violation.
func DecodeInput(recordsJSON, contextJSON []byte) ([]types.Record, *types.EvaluationContext, error) {
	records, err := DecodeRecords(recordsJSON)
	if err != nil {
		return nil, nil, err
	}
	ectx, err := DecodeContext(contextJSON)
	if err != nil {
		return nil, nil, err
	}
	return records, ectx, nil
}

// DecodeRecords decodes the record collection.
func DecodeRecords(raw []byte) ([]types.Record, error) {
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil || items == nil {
		return nil, fmt.Errorf("%w: records must be a JSON array", types.ErrInvalidRecords)
	}
	records := make([]types.Record, len(items))
	for i, item := range items {
		if err := json.Unmarshal(item, &records[i]); err != nil {
			return nil, fmt.Errorf("%w: record %d: %v", types.ErrInvalidRecords, i, err)
		}
	}
	return records, nil
}

// DecodeContext decodes the evaluation context.
func DecodeContext(raw []byte) (*types.EvaluationContext, error) {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err != nil || obj == nil {
		return nil, fmt.Errorf("%w: context must be a JSON object", types.ErrInvalidContext)
	}

	var ectx types.EvaluationContext
	if err := json.Unmarshal(obj["currentTime"], &ectx.CurrentTime); err != nil {
		return nil, fmt.Errorf("%w: currentTime must be a string", types.ErrInvalidContext)
	}
	if _, _, err := types.ParseTime(ectx.CurrentTime); err != nil {
		return nil, fmt.Errorf("%w: currentTime %q: %v", types.ErrInvalidContext, ectx.CurrentTime, err)
	}

	rules, err := decodeRules(obj["rules"])
	if err != nil {
		return nil, err
	}
	ectx.Rules = rules

	canon, err := decodeCanonicalMap(obj["canonicalMap"])
	if err != nil {
		return nil, err
	}
	ectx.CanonicalMap = canon

	ectx.Policy = decodePolicy(obj)
	return &ectx, nil
}

func decodeRules(raw json.RawMessage) ([]types.Rule, error) {
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil || items == nil {
		return nil, fmt.Errorf("%w: rules must be a JSON array", types.ErrInvalidRuleDefinition)
	}
	out := make([]types.Rule, len(items))
	for i, item := range items {
		r, err := decodeRule(item)
		if err != nil {
			return nil, fmt.Errorf("%w: rule %d: %s", types.ErrInvalidRuleDefinition, i, err)
		}
		out[i] = r
	}
	return out, nil
}

// decodeRule checks one rule's shape. Errors are plain reasons; the caller
// attaches the kind.
func decodeRule(raw json.RawMessage) (types.Rule, error) {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err != nil || obj == nil {
		return types.Rule{}, fmt.Errorf("must be an object")
	}

	var r types.Rule
	if err := json.Unmarshal(obj["id"], &r.ID); err != nil || r.ID == "" {
		return types.Rule{}, fmt.Errorf("id must be a non-empty string")
	}

	var priority float64
	if err := json.Unmarshal(obj["priority"], &priority); err != nil || !isWholeNumber(obj["priority"], priority) {
		return types.Rule{}, fmt.Errorf("rule %q: priority must be a whole number", r.ID)
	}
	if priority < math.MinInt32 || priority > math.MaxInt32 {
		return types.Rule{}, fmt.Errorf("rule %q: priority %g out of range", r.ID, priority)
	}
	r.Priority = int(priority)

	if err := json.Unmarshal(obj["label"], &r.Label); err != nil || isNull(obj["label"]) {
		return types.Rule{}, fmt.Errorf("rule %q: label must be a string", r.ID)
	}

	expr := bytes.TrimSpace(obj["expression"])
	switch {
	case len(expr) > 0 && expr[0] == '"':
		var text string
		if err := json.Unmarshal(expr, &text); err != nil {
			return types.Rule{}, fmt.Errorf("rule %q: expression: %v", r.ID, err)
		}
		r.Expression = types.TextExpression(text)
	case len(expr) > 0 && expr[0] == '{':
		r.Expression = types.TreeJSONExpression(json.RawMessage(expr))
	default:
		return types.Rule{}, fmt.Errorf("rule %q: expression must be a string or a tree object", r.ID)
	}
	return r, nil
}

func decodeCanonicalMap(raw json.RawMessage) (types.CanonicalMap, error) {
	if isNull(raw) {
		return nil, nil
	}
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err != nil {
		return nil, fmt.Errorf("%w: canonicalMap must be an object", types.ErrInvalidCanonicalMapping)
	}
	m := make(types.CanonicalMap, len(obj))
	for k, v := range obj {
		var s string
		if err := json.Unmarshal(v, &s); err != nil || isNull(v) {
			return nil, fmt.Errorf("%w: canonicalMap[%q] must be a string", types.ErrInvalidCanonicalMapping, k)
		}
		if s == "" {
			return nil, fmt.Errorf("%w: canonicalMap[%q] maps to an empty identifier", types.ErrInvalidCanonicalMapping, k)
		}
		m[k] = s
	}
	return m, nil
}

func decodePolicy(obj map[string]json.RawMessage) types.Policy {
	var p types.Policy

	var include bool
	if raw, ok := obj["includeZeroCandidates"]; ok {
		if err := json.Unmarshal(raw, &include); err == nil && !isNull(raw) && !include {
			p.ExcludeZeroCandidates = true
		}
	}

	var limit float64
	if raw, ok := obj["maxCandidates"]; ok {
		if err := json.Unmarshal(raw, &limit); err == nil && isWholeNumber(raw, limit) && limit > 0 && limit <= math.MaxInt32 {
			p.MaxCandidates = int(limit)
		}
	}
	return p
}

// isNull reports an absent or JSON-null value.
func isNull(raw json.RawMessage) bool {
	t := bytes.TrimSpace(raw)
	return len(t) == 0 || bytes.Equal(t, []byte("null"))
}

// isWholeNumber reports a present, non-null, integral number.
func isWholeNumber(raw json.RawMessage, f float64) bool {
	return !isNull(raw) && f == math.Trunc(f) && !math.IsInf(f, 0)
}
