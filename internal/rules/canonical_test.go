package rules

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/solatis/cratedigger/internal/types"
)

func TestCanonicalize(t *testing.T) {
	m := types.CanonicalMap{"alias": "main"}

	tests := []struct {
		name string
		id   string
		m    types.CanonicalMap
		want string
	}{
		{"mapped", "alias", m, "main"},
		{"unmapped", "other", m, "other"},
		{"nil map", "alias", nil, "alias"},
		{"empty map", "alias", types.CanonicalMap{}, "alias"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Canonicalize(tt.id, tt.m); got != tt.want {
				t.Errorf("Canonicalize(%q) = %q, want %q", tt.id, got, tt.want)
			}
		})
	}
}

func TestCanonicalizeRecord_DoesNotMutateInput(t *testing.T) {
	m := types.CanonicalMap{"t-old": "t-new", "a-old": "a-new", "al-old": "al-new"}
	in := types.Record{
		ID:      "t-old",
		Artists: []string{"a-old", "a-keep"},
		AlbumID: strPtr("al-old"),
		Key:     strPtr("G"),
	}

	out := CanonicalizeRecord(in, m)

	if out.ID != "t-new" || out.Artists[0] != "a-new" || out.Artists[1] != "a-keep" || *out.AlbumID != "al-new" {
		t.Errorf("CanonicalizeRecord() = %+v, ids not rewritten", out)
	}
	if *out.Key != "G" {
		t.Errorf("Key = %q, want untouched", *out.Key)
	}
	if in.ID != "t-old" || in.Artists[0] != "a-old" || *in.AlbumID != "al-old" {
		t.Errorf("input mutated: %+v", in)
	}
}

func TestCanonicalizeRecords_PreservesOrder(t *testing.T) {
	in := []types.Record{{ID: "b"}, {ID: "x"}, {ID: "a"}}
	out := CanonicalizeRecords(in, types.CanonicalMap{"x": "y"})
	want := []string{"b", "y", "a"}
	for i, rec := range out {
		if rec.ID != want[i] {
			t.Errorf("out[%d].ID = %q, want %q", i, rec.ID, want[i])
		}
	}
}

// Property-based test: canonicalizing twice changes nothing when the map
// is already flattened (no canonical id is itself an alias).
func TestCanonicalize_PropertyIdempotent(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("canonicalize(canonicalize(x)) == canonicalize(x)", prop.ForAll(
		func(aliases []string, id string) bool {
			m := types.CanonicalMap{}
			for _, a := range aliases {
				m["alias-"+a] = "main-" + a
			}
			once := Canonicalize(id, m)
			return Canonicalize(once, m) == once
		},
		gen.SliceOf(gen.AlphaString()),
		gen.OneGenOf(gen.AlphaString(), gen.AlphaString().Map(func(s string) string { return "alias-" + s })),
	))

	properties.TestingRun(t)
}
