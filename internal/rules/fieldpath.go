// internal/rules/fieldpath.go
package rules

import (
	"github.com/solatis/cratedigger/internal/types"
)

/*
 * Field resolution for records.
 *
 * A field reference is validated once (compileField) into a fieldPath, then
 * resolved per record without map lookups for the fixed attributes. The
 * metadata['key'] form is a two-part reference resolved in one step.
 *
 * Resolution yields the raw attribute value:
 *   - string      id, title, albumId, key, metadata['k']
 *   - float64     durationSeconds, bpm
 *   - time.Time   releaseDate
 *   - []string    artists, tags
 *
 * Missing semantics: nil optional attributes, empty lists and absent
 * metadata keys all resolve with Found=false. Callers degrade to false
 * (or true for NOT IN) instead of raising.
 */

type fieldKind int

const (
	fieldUnknown fieldKind = iota
	fieldID
	fieldTitle
	fieldArtists
	fieldAlbumID
	fieldDuration
	fieldBPM
	fieldKey
	fieldReleaseDate
	fieldTags
	fieldMetadata
)

// Field names are case-sensitive.
var fieldNames = map[string]fieldKind{
	"id":              fieldID,
	"title":           fieldTitle,
	"artists":         fieldArtists,
	"albumId":         fieldAlbumID,
	"durationSeconds": fieldDuration,
	"bpm":             fieldBPM,
	"key":             fieldKey,
	"releaseDate":     fieldReleaseDate,
	"tags":            fieldTags,
	"metadata":        fieldMetadata,
}

// fieldType classifies the resolved value so operators pick a coercion.
func (k fieldKind) fieldType() FieldType {
	switch k {
	case fieldDuration, fieldBPM:
		return FieldTypeNumeric
	case fieldReleaseDate:
		return FieldTypeDate
	default:
		return FieldTypeText
	}
}

// multiValued reports array-like attributes (ANY semantics for operators).
func (k fieldKind) multiValued() bool {
	return k == fieldArtists || k == fieldTags
}

// carriesIdentifier reports attributes rewritten by canonicalization.
func (k fieldKind) carriesIdentifier() bool {
	return k == fieldID || k == fieldArtists || k == fieldAlbumID
}

// fieldPath is a validated field reference.
type fieldPath struct {
	kind fieldKind
	key  string // metadata key
	name string // as written, for diagnostics
}

// ResolveResult contains the resolved value.
type ResolveResult struct {
	Value any  // nil if not found
	Found bool // true if the attribute is present
}

// compileField validates a reference against the record schema.
func compileField(ref *types.FieldReference) (fieldPath, error) {
	if ref == nil {
		return fieldPath{}, types.Expressionf("missing field reference")
	}
	kind, ok := fieldNames[ref.Name]
	if !ok {
		return fieldPath{}, types.Expressionf("unknown field %q", ref.Name)
	}
	if kind == fieldMetadata {
		if ref.Key == "" {
			return fieldPath{}, types.Expressionf("metadata requires a key, e.g. metadata['mood']")
		}
	} else if ref.Key != "" {
		return fieldPath{}, types.Expressionf("field %q does not take a key", ref.Name)
	}
	return fieldPath{kind: kind, key: ref.Key, name: ref.String()}, nil
}

// Resolve looks up a field reference on a record.
// Returns an ExpressionError only for references outside the record schema.
func Resolve(ref *types.FieldReference, rec *types.Record) (ResolveResult, error) {
	path, err := compileField(ref)
	if err != nil {
		return ResolveResult{}, err
	}
	return path.resolve(rec), nil
}

func (f fieldPath) resolve(rec *types.Record) ResolveResult {
	switch f.kind {
	case fieldID:
		return ResolveResult{Value: rec.ID, Found: true}
	case fieldTitle:
		return optionalString(rec.Title)
	case fieldArtists:
		return list(rec.Artists)
	case fieldAlbumID:
		return optionalString(rec.AlbumID)
	case fieldDuration:
		return optionalFloat(rec.DurationSeconds)
	case fieldBPM:
		return optionalFloat(rec.BPM)
	case fieldKey:
		return optionalString(rec.Key)
	case fieldReleaseDate:
		if rec.ReleaseDate == nil {
			return ResolveResult{}
		}
		return ResolveResult{Value: *rec.ReleaseDate, Found: true}
	case fieldTags:
		return list(rec.Tags)
	case fieldMetadata:
		v, ok := rec.Metadata[f.key]
		if !ok {
			return ResolveResult{}
		}
		return ResolveResult{Value: v, Found: true}
	default:
		return ResolveResult{}
	}
}

func optionalString(s *string) ResolveResult {
	if s == nil {
		return ResolveResult{}
	}
	return ResolveResult{Value: *s, Found: true}
}

func optionalFloat(f *float64) ResolveResult {
	if f == nil {
		return ResolveResult{}
	}
	return ResolveResult{Value: *f, Found: true}
}

func list(items []string) ResolveResult {
	if len(items) == 0 {
		return ResolveResult{}
	}
	return ResolveResult{Value: items, Found: true}
}

// anyValue applies fn to a scalar, or to each element of a list until one
// succeeds (ANY semantics).
func anyValue(v any, fn func(any) bool) bool {
	if items, ok := v.([]string); ok {
		for _, item := range items {
			if fn(item) {
				return true
			}
		}
		return false
	}
	return fn(v)
}
