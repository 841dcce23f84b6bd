package rules

import (
	"errors"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/solatis/cratedigger/internal/types"
)

func TestResolve_Normal(t *testing.T) {
	rec := fullRecord()

	tests := []struct {
		name      string
		ref       *types.FieldReference
		wantValue any
		wantFound bool
	}{
		{"id", &types.FieldReference{Name: "id"}, "t1", true},
		{"title", &types.FieldReference{Name: "title"}, "Intro Song", true},
		{"albumId", &types.FieldReference{Name: "albumId"}, "al1", true},
		{"bpm", &types.FieldReference{Name: "bpm"}, 125.0, true},
		{"durationSeconds", &types.FieldReference{Name: "durationSeconds"}, 200.0, true},
		{"key", &types.FieldReference{Name: "key"}, "G", true},
		{"metadata present", &types.FieldReference{Name: "metadata", Key: "mood"}, "calm", true},
		{"metadata absent", &types.FieldReference{Name: "metadata", Key: "energy"}, nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Resolve(tt.ref, &rec)
			if err != nil {
				t.Fatalf("Resolve() error = %v", err)
			}
			if got.Found != tt.wantFound {
				t.Errorf("Resolve() Found = %v, want %v", got.Found, tt.wantFound)
			}
			if got.Value != tt.wantValue {
				t.Errorf("Resolve() Value = %v, want %v", got.Value, tt.wantValue)
			}
		})
	}
}

func TestResolve_ListsAndDates(t *testing.T) {
	rec := fullRecord()

	got, err := Resolve(&types.FieldReference{Name: "tags"}, &rec)
	if err != nil {
		t.Fatalf("Resolve(tags) error = %v", err)
	}
	tags, ok := got.Value.([]string)
	if !got.Found || !ok || len(tags) != 2 {
		t.Errorf("Resolve(tags) = %+v, want two tags", got)
	}

	got, err = Resolve(&types.FieldReference{Name: "releaseDate"}, &rec)
	if err != nil {
		t.Fatalf("Resolve(releaseDate) error = %v", err)
	}
	if ts, ok := got.Value.(time.Time); !ok || !ts.Equal(*rec.ReleaseDate) {
		t.Errorf("Resolve(releaseDate) = %+v", got)
	}
}

func TestResolve_Missing(t *testing.T) {
	rec := types.Record{ID: "x", Tags: []string{}}
	for _, name := range []string{"title", "artists", "albumId", "durationSeconds", "bpm", "key", "releaseDate", "tags"} {
		got, err := Resolve(&types.FieldReference{Name: name}, &rec)
		if err != nil {
			t.Fatalf("Resolve(%s) error = %v", name, err)
		}
		if got.Found {
			t.Errorf("Resolve(%s) Found = true on a sparse record", name)
		}
	}
}

func TestResolve_SchemaErrors(t *testing.T) {
	tests := []struct {
		name string
		ref  *types.FieldReference
	}{
		{"unknown field", &types.FieldReference{Name: "genre"}},
		{"wrong case", &types.FieldReference{Name: "Title"}},
		{"metadata without key", &types.FieldReference{Name: "metadata"}},
		{"key on scalar", &types.FieldReference{Name: "bpm", Key: "x"}},
		{"nil reference", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Resolve(tt.ref, &types.Record{ID: "x"})
			if !errors.Is(err, types.ErrExpression) {
				t.Errorf("Resolve() error = %v, want ErrExpression", err)
			}
		})
	}
}

// Property-based test: resolution never crashes
func TestResolve_PropertyNeverCrashes(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	names := make([]string, 0, len(fieldNames))
	for name := range fieldNames {
		names = append(names, name)
	}

	properties.Property("resolution never crashes regardless of record shape", prop.ForAll(
		func(nameIdx int, key string, populated bool) bool {
			defer func() {
				if r := recover(); r != nil {
					t.Errorf("Resolve() panicked: %v", r)
				}
			}()

			rec := sparseRecord()
			if populated {
				rec = fullRecord()
			}
			ref := &types.FieldReference{Name: names[nameIdx%len(names)]}
			if ref.IsMetadata() {
				ref.Key = key
			}
			_, _ = Resolve(ref, &rec)
			return true
		},
		gen.IntRange(0, 100),
		gen.AlphaString(),
		gen.Bool(),
	))

	properties.TestingRun(t)
}
