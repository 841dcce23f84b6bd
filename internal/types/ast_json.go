package types

import (
	"encoding/json"
	"fmt"
)

// MaxTreeDepth bounds AST nesting for both parsed text and pre-built trees.
// Parsed text counts parentheses and NOT; compilation counts a chain of one
// connective as a single level. The JSON tree form counts every object.
const MaxTreeDepth = 1000

// Node type tags used by the JSON tree form.
const (
	nodeField      = "field"
	nodeLiteral    = "literal"
	nodeComparison = "comparison"
	nodeIn         = "in"
	nodeBetween    = "between"
	nodeRegex      = "regex"
	nodeAnd        = "and"
	nodeOr         = "or"
	nodeNot        = "not"
)

// DecodeNode decodes the tagged JSON tree form into an AST.
// Schema violations are returned as *ExpressionError.
func DecodeNode(raw json.RawMessage) (Node, error) {
	return decodeNode(raw, 0)
}

func decodeNode(raw json.RawMessage, depth int) (Node, error) {
	if depth > MaxTreeDepth {
		return nil, Expressionf("tree exceeds maximum depth %d", MaxTreeDepth)
	}
	obj, typ, err := decodeObject(raw)
	if err != nil {
		return nil, err
	}

	switch typ {
	case nodeField:
		return decodeFieldObject(obj)
	case nodeLiteral:
		return decodeScalar(obj["value"])
	case nodeComparison:
		var op string
		if err := json.Unmarshal(obj["op"], &op); err != nil {
			return nil, Expressionf("comparison requires a string \"op\"")
		}
		left, err := decodeOperand(obj["left"], depth+1)
		if err != nil {
			return nil, err
		}
		right, err := decodeOperand(obj["right"], depth+1)
		if err != nil {
			return nil, err
		}
		return &Comparison{Op: CompareOp(op), Left: left, Right: right}, nil
	case nodeIn:
		field, err := decodeField(obj["field"])
		if err != nil {
			return nil, err
		}
		var negated bool
		if raw, ok := obj["negated"]; ok {
			if err := json.Unmarshal(raw, &negated); err != nil {
				return nil, Expressionf("in: \"negated\" must be a boolean")
			}
		}
		var items []json.RawMessage
		if err := json.Unmarshal(obj["values"], &items); err != nil {
			return nil, Expressionf("in: \"values\" must be an array")
		}
		values := make([]*Literal, 0, len(items))
		for i, item := range items {
			lit, err := decodeScalar(item)
			if err != nil {
				return nil, Expressionf("in: values[%d]: %s", i, reasonOf(err))
			}
			values = append(values, lit)
		}
		return &InList{Field: field, Negated: negated, Values: values}, nil
	case nodeBetween:
		field, err := decodeField(obj["field"])
		if err != nil {
			return nil, err
		}
		low, err := decodeScalar(obj["low"])
		if err != nil {
			return nil, Expressionf("between: low bound: %s", reasonOf(err))
		}
		high, err := decodeScalar(obj["high"])
		if err != nil {
			return nil, Expressionf("between: high bound: %s", reasonOf(err))
		}
		return &Between{Field: field, Low: low, High: high}, nil
	case nodeRegex:
		field, err := decodeField(obj["field"])
		if err != nil {
			return nil, err
		}
		var pattern, flags string
		if err := json.Unmarshal(obj["pattern"], &pattern); err != nil {
			return nil, Expressionf("regex requires a string \"pattern\"")
		}
		if raw, ok := obj["flags"]; ok {
			if err := json.Unmarshal(raw, &flags); err != nil {
				return nil, Expressionf("regex: \"flags\" must be a string")
			}
		}
		return &RegexMatch{Field: field, Pattern: pattern, Flags: flags}, nil
	case nodeAnd, nodeOr:
		left, err := decodeNode(obj["left"], depth+1)
		if err != nil {
			return nil, err
		}
		right, err := decodeNode(obj["right"], depth+1)
		if err != nil {
			return nil, err
		}
		if typ == nodeAnd {
			return &LogicalAnd{Left: left, Right: right}, nil
		}
		return &LogicalOr{Left: left, Right: right}, nil
	case nodeNot:
		inner, err := decodeNode(obj["inner"], depth+1)
		if err != nil {
			return nil, err
		}
		return &LogicalNot{Inner: inner}, nil
	default:
		return nil, Expressionf("unknown node type %q", typ)
	}
}

// decodeObject unmarshals a node object and extracts its "type" tag.
func decodeObject(raw json.RawMessage) (map[string]json.RawMessage, string, error) {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err != nil || obj == nil {
		return nil, "", Expressionf("node must be a JSON object")
	}
	var typ string
	if err := json.Unmarshal(obj["type"], &typ); err != nil {
		return nil, "", Expressionf("node requires a string \"type\"")
	}
	return obj, typ, nil
}

func decodeField(raw json.RawMessage) (*FieldReference, error) {
	obj, typ, err := decodeObject(raw)
	if err != nil {
		return nil, err
	}
	if typ != nodeField {
		return nil, Expressionf("expected a field node, got %q", typ)
	}
	return decodeFieldObject(obj)
}

func decodeFieldObject(obj map[string]json.RawMessage) (*FieldReference, error) {
	var name, key string
	if err := json.Unmarshal(obj["name"], &name); err != nil || name == "" {
		return nil, Expressionf("field requires a non-empty string \"name\"")
	}
	if raw, ok := obj["key"]; ok {
		if err := json.Unmarshal(raw, &key); err != nil {
			return nil, Expressionf("field %q: \"key\" must be a string", name)
		}
	}
	return &FieldReference{Name: name, Key: key}, nil
}

// decodeOperand accepts a field or literal node.
func decodeOperand(raw json.RawMessage, depth int) (Node, error) {
	n, err := decodeNode(raw, depth)
	if err != nil {
		return nil, err
	}
	switch n.(type) {
	case *FieldReference, *Literal:
		return n, nil
	default:
		return nil, Expressionf("comparison operands must be field or literal nodes")
	}
}

// decodeScalar decodes a bare JSON string or number into a Literal.
func decodeScalar(raw json.RawMessage) (*Literal, error) {
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, Expressionf("literal value must be a string or number")
	}
	switch val := v.(type) {
	case string:
		return StringLiteral(val), nil
	case float64:
		return NumberLiteral(val), nil
	default:
		return nil, Expressionf("literal value must be a string or number, got %T", v)
	}
}

func reasonOf(err error) string {
	if ee, ok := err.(*ExpressionError); ok {
		return ee.Reason
	}
	return err.Error()
}

// MarshalNode encodes an AST into the tagged JSON tree form accepted by DecodeNode.
func MarshalNode(n Node) ([]byte, error) {
	v, err := encodeNode(n)
	if err != nil {
		return nil, err
	}
	return json.Marshal(v)
}

func encodeNode(n Node) (map[string]any, error) {
	switch v := n.(type) {
	case *FieldReference:
		if v == nil {
			return nil, fmt.Errorf("cannot encode nil field reference")
		}
		out := map[string]any{"type": nodeField, "name": v.Name}
		if v.IsMetadata() {
			out["key"] = v.Key
		}
		return out, nil
	case *Literal:
		return map[string]any{"type": nodeLiteral, "value": scalarOf(v)}, nil
	case *Comparison:
		left, err := encodeNode(v.Left)
		if err != nil {
			return nil, err
		}
		right, err := encodeNode(v.Right)
		if err != nil {
			return nil, err
		}
		return map[string]any{"type": nodeComparison, "op": string(v.Op), "left": left, "right": right}, nil
	case *InList:
		values := make([]any, len(v.Values))
		for i, lit := range v.Values {
			values[i] = scalarOf(lit)
		}
		field, err := encodeNode(v.Field)
		if err != nil {
			return nil, err
		}
		return map[string]any{"type": nodeIn, "field": field, "negated": v.Negated, "values": values}, nil
	case *Between:
		field, err := encodeNode(v.Field)
		if err != nil {
			return nil, err
		}
		return map[string]any{"type": nodeBetween, "field": field, "low": scalarOf(v.Low), "high": scalarOf(v.High)}, nil
	case *RegexMatch:
		field, err := encodeNode(v.Field)
		if err != nil {
			return nil, err
		}
		return map[string]any{"type": nodeRegex, "field": field, "pattern": v.Pattern, "flags": v.Flags}, nil
	case *LogicalAnd:
		return encodeBinary(nodeAnd, v.Left, v.Right)
	case *LogicalOr:
		return encodeBinary(nodeOr, v.Left, v.Right)
	case *LogicalNot:
		inner, err := encodeNode(v.Inner)
		if err != nil {
			return nil, err
		}
		return map[string]any{"type": nodeNot, "inner": inner}, nil
	default:
		return nil, fmt.Errorf("cannot encode node of type %T", n)
	}
}

func encodeBinary(typ string, l, r Node) (map[string]any, error) {
	left, err := encodeNode(l)
	if err != nil {
		return nil, err
	}
	right, err := encodeNode(r)
	if err != nil {
		return nil, err
	}
	return map[string]any{"type": typ, "left": left, "right": right}, nil
}

func scalarOf(l *Literal) any {
	if l == nil {
		return nil
	}
	if l.Kind == LiteralNumber {
		return l.Num
	}
	return l.Str
}
