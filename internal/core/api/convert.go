package api

import (
	"encoding/json"
	"fmt"
	"math"

	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/solatis/cratedigger/internal/types"
)

/*
 * Struct <-> JSON conversion.
 *
 * The engine's JSON decoders own validation, so Struct payloads are turned
 * back into JSON text with protojson and handed over unchanged. An absent
 * field becomes JSON null, which the decoders reject with the proper kind.
 */

// fieldJSON returns the JSON encoding of s.Fields[name], or null.
func fieldJSON(s *structpb.Struct, name string) ([]byte, error) {
	v, ok := s.GetFields()[name]
	if !ok || v == nil {
		return []byte("null"), nil
	}
	return protojson.Marshal(v)
}

// structFromJSON decodes a JSON object into a Struct.
func structFromJSON(b []byte) (*structpb.Struct, error) {
	s := &structpb.Struct{}
	if err := protojson.Unmarshal(b, s); err != nil {
		return nil, err
	}
	return s, nil
}

// valueFromJSON decodes any JSON value into a Value.
func valueFromJSON(b []byte) (*structpb.Value, error) {
	v := &structpb.Value{}
	if err := protojson.Unmarshal(b, v); err != nil {
		return nil, err
	}
	return v, nil
}

// reportValue encodes a report as a Struct value.
func reportValue(rep *types.Report) (*structpb.Value, error) {
	b, err := json.Marshal(rep)
	if err != nil {
		return nil, fmt.Errorf("failed to encode report: %w", err)
	}
	return valueFromJSON(b)
}

// reportFromValue decodes a report previously encoded by reportValue.
func reportFromValue(v *structpb.Value) (*types.Report, error) {
	if v.GetStructValue() == nil {
		return nil, fmt.Errorf("response has no report")
	}
	b, err := protojson.Marshal(v)
	if err != nil {
		return nil, err
	}
	var rep types.Report
	if err := json.Unmarshal(b, &rep); err != nil {
		return nil, fmt.Errorf("failed to decode report: %w", err)
	}
	return &rep, nil
}

// policyFromStruct overlays request flags on defaults using the JSON entry
// point's lenient rules: includeZeroCandidates only counts when boolean,
// maxCandidates only when a positive whole number.
func policyFromStruct(s *structpb.Struct, defaults types.Policy) types.Policy {
	p := defaults
	fields := s.GetFields()

	if v, ok := fields["includeZeroCandidates"].GetKind().(*structpb.Value_BoolValue); ok {
		p.ExcludeZeroCandidates = !v.BoolValue
	}
	if v, ok := fields["maxCandidates"].GetKind().(*structpb.Value_NumberValue); ok {
		n := v.NumberValue
		if n >= 1 && n <= math.MaxInt32 && n == math.Trunc(n) {
			p.MaxCandidates = int(n)
		}
	}
	return p
}
