package types

import (
	"encoding/json"
	"errors"
	"math"
	"strconv"
	"strings"
	"time"
)

// Record is one item of the collection being filtered.
// Optional attributes are nil when absent. Records are borrowed read-only
// by the engine; canonicalization works on copies.
type Record struct {
	ID              string            `json:"id"`
	Title           *string           `json:"title,omitempty"`
	Artists         []string          `json:"artists,omitempty"`
	AlbumID         *string           `json:"albumId,omitempty"`
	DurationSeconds *float64          `json:"durationSeconds,omitempty"`
	BPM             *float64          `json:"bpm,omitempty"`
	Key             *string           `json:"key,omitempty"`
	ReleaseDate     *time.Time        `json:"releaseDate,omitempty"`
	Tags            []string          `json:"tags,omitempty"`
	Metadata        map[string]string `json:"metadata,omitempty"`
}

// ErrRecordID indicates a record without a non-empty string id.
var ErrRecordID = errors.New("record requires a non-empty string id")

// UnmarshalJSON decodes a record leniently. Only the id is strict: attributes
// with the wrong shape are treated as absent so one sparse record never halts
// a batch. Numbers may arrive as numeric strings; non-finite values are absent.
func (r *Record) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return errors.New("record must be a JSON object")
	}
	if raw == nil {
		return errors.New("record must be a JSON object")
	}

	var id string
	if err := json.Unmarshal(raw["id"], &id); err != nil || id == "" {
		return ErrRecordID
	}

	*r = Record{
		ID:              id,
		Title:           optionalText(raw["title"]),
		Artists:         textList(raw["artists"]),
		AlbumID:         optionalText(raw["albumId"]),
		DurationSeconds: optionalNumber(raw["durationSeconds"]),
		BPM:             optionalNumber(raw["bpm"]),
		Key:             optionalText(raw["key"]),
		ReleaseDate:     optionalTime(raw["releaseDate"]),
		Tags:            textList(raw["tags"]),
		Metadata:        textMap(raw["metadata"]),
	}
	return nil
}

func decodeAny(raw json.RawMessage) any {
	if raw == nil {
		return nil
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil
	}
	return v
}

// scalarText renders JSON scalars as text; containers and null have none.
func scalarText(v any) (string, bool) {
	switch val := v.(type) {
	case string:
		return val, true
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64), true
	case bool:
		return strconv.FormatBool(val), true
	default:
		return "", false
	}
}

func optionalText(raw json.RawMessage) *string {
	s, ok := scalarText(decodeAny(raw))
	if !ok {
		return nil
	}
	return &s
}

func optionalNumber(raw json.RawMessage) *float64 {
	var f float64
	switch v := decodeAny(raw).(type) {
	case float64:
		f = v
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return nil
		}
		f = parsed
	default:
		return nil
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil
	}
	return &f
}

func optionalTime(raw json.RawMessage) *time.Time {
	s, ok := decodeAny(raw).(string)
	if !ok {
		return nil
	}
	t, _, err := ParseTime(s)
	if err != nil {
		return nil
	}
	return &t
}

// textList accepts an array of scalars or a single scalar.
func textList(raw json.RawMessage) []string {
	switch v := decodeAny(raw).(type) {
	case []any:
		out := make([]string, 0, len(v))
		for _, elem := range v {
			if s, ok := scalarText(elem); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		if s, ok := scalarText(v); ok {
			return []string{s}
		}
		return nil
	}
}

func textMap(raw json.RawMessage) map[string]string {
	obj, ok := decodeAny(raw).(map[string]any)
	if !ok {
		return nil
	}
	out := make(map[string]string, len(obj))
	for k, v := range obj {
		if s, ok := scalarText(v); ok {
			out[k] = s
		}
	}
	return out
}
