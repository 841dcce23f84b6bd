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

func strPtr(s string) *string    { return &s }
func numPtr(f float64) *float64  { return &f }
func timePtr(s string) *time.Time {
	t, _, err := types.ParseTime(s)
	if err != nil {
		panic(err)
	}
	return &t
}

// fullRecord has every attribute populated.
func fullRecord() types.Record {
	return types.Record{
		ID:              "t1",
		Title:           strPtr("Intro Song"),
		Artists:         []string{"a1", "a2"},
		AlbumID:         strPtr("al1"),
		DurationSeconds: numPtr(200),
		BPM:             numPtr(125),
		Key:             strPtr("G"),
		ReleaseDate:     timePtr("2021-06-15T12:00:00Z"),
		Tags:            []string{"house", "deep"},
		Metadata:        map[string]string{"mood": "calm"},
	}
}

// sparseRecord has only an id.
func sparseRecord() types.Record {
	return types.Record{ID: "t2"}
}

func mustMatch(t *testing.T, src string, rec types.Record, canon types.CanonicalMap) bool {
	t.Helper()
	compiled, err := Compile(&types.Rule{ID: "r", Expression: types.TextExpression(src)}, canon)
	if err != nil {
		t.Fatalf("Compile(%q) error = %v", src, err)
	}
	canonical := CanonicalizeRecord(rec, canon)
	return compiled.Match(&canonical)
}

func TestEvaluate_Operators(t *testing.T) {
	tests := []struct {
		src        string
		wantFull   bool
		wantSparse bool
	}{
		{"bpm >= 120 AND bpm <= 130", true, false},
		{"bpm == 125", true, false},
		{"bpm != 125", false, false},
		{"bpm != 100", true, false},
		{"bpm == '125'", true, false},
		{"bpm > 1000 OR title == 'Intro Song'", true, false},
		{"130 > bpm", true, false},
		{"'G' == key", true, false},
		{"key == 'G'", true, false},
		{"key == 'g'", false, false},
		{"key < 'H'", true, false},
		{"key IN ('G', 'Gmaj')", true, false},
		{"key NOT IN ('G')", false, true},
		{"key NOT IN ('A')", true, true},
		{"tags IN ('deep')", true, false},
		{"tags NOT IN ('interlude')", true, true},
		{"tags == 'house'", true, false},
		{"tags != 'house'", false, false},
		{"tags != 'techno'", true, false},
		{"artists == 'a2'", true, false},
		{"albumId == 'al1'", true, false},
		{"id == 't1'", true, false},
		{"title MATCHES /^intro/i", true, false},
		{"title MATCHES /^intro/", false, false},
		{"title MATCHES 'Song$'", true, false},
		{"tags MATCHES /^ho/", true, false},
		{"releaseDate == '2021-06-15'", true, false},
		{"releaseDate != '2021-06-15'", false, false},
		{"releaseDate > '2021-06-15'", false, false},
		{"releaseDate >= '2021-06-15'", true, false},
		{"releaseDate < '2021-06-16'", true, false},
		{"releaseDate <= '2021-06-15'", true, false},
		{"releaseDate > '2021-06-15T11:59:59Z'", true, false},
		{"releaseDate BETWEEN '2021-01-01' AND '2021-06-15'", true, false},
		{"releaseDate BETWEEN '2021-06-16' AND '2021-12-31'", false, false},
		{"releaseDate IN ('2020-01-01', '2021-06-15')", true, false},
		{"bpm BETWEEN 125 AND 130", true, false},
		{"bpm BETWEEN 126 AND 130", false, false},
		{"durationSeconds BETWEEN 100 AND 200", true, false},
		{"bpm IN (120, 125)", true, false},
		{"metadata['mood'] == 'calm'", true, false},
		{"metadata['energy'] == 'high'", false, false},
		{"metadata['energy'] NOT IN ('high')", true, true},
		{"NOT (durationSeconds < 30)", true, true},
		{"NOT bpm > 100 OR key == 'G'", true, true},
		{"durationSeconds > bpm", true, false},
		{"id != albumId", true, false},
	}

	for _, tt := range tests {
		t.Run(tt.src, func(t *testing.T) {
			if got := mustMatch(t, tt.src, fullRecord(), nil); got != tt.wantFull {
				t.Errorf("full record: got %v, want %v", got, tt.wantFull)
			}
			if got := mustMatch(t, tt.src, sparseRecord(), nil); got != tt.wantSparse {
				t.Errorf("sparse record: got %v, want %v", got, tt.wantSparse)
			}
		})
	}
}

func TestEvaluate_BetweenBareDatesInclusive(t *testing.T) {
	const src = "releaseDate BETWEEN '2021-01-01' AND '2021-06-15'"
	tests := []struct {
		released string
		want     bool
	}{
		{"2021-01-01T00:00:00Z", true},
		{"2020-12-31T23:59:59.999Z", false},
		{"2021-06-15T23:59:59.999Z", true},
		{"2021-06-16T00:00:00Z", false},
		{"2021-03-01", true},
	}

	for _, tt := range tests {
		t.Run(tt.released, func(t *testing.T) {
			rec := types.Record{ID: "x", ReleaseDate: timePtr(tt.released)}
			if got := mustMatch(t, src, rec, nil); got != tt.want {
				t.Errorf("releaseDate %s: got %v, want %v", tt.released, got, tt.want)
			}
		})
	}
}

func TestEvaluate_Scenarios(t *testing.T) {
	t.Run("bpm window with key list", func(t *testing.T) {
		src := "bpm >= 120 AND bpm <= 130 AND key IN ('G','Gmaj')"
		in := types.Record{ID: "x", BPM: numPtr(125), Key: strPtr("G")}
		out := types.Record{ID: "y", BPM: numPtr(140), Key: strPtr("G")}
		if !mustMatch(t, src, in, nil) {
			t.Error("bpm 125 key G should match")
		}
		if mustMatch(t, src, out, nil) {
			t.Error("bpm 140 key G should not match")
		}
	})

	t.Run("short interlude excluded by both clauses", func(t *testing.T) {
		src := "NOT (durationSeconds < 30) AND tags NOT IN ('interlude')"
		rec := types.Record{ID: "x", DurationSeconds: numPtr(20), Tags: []string{"interlude"}}
		if mustMatch(t, src, rec, nil) {
			t.Error("record should be excluded")
		}
		for _, half := range []string{"NOT (durationSeconds < 30)", "tags NOT IN ('interlude')"} {
			if mustMatch(t, half, rec, nil) {
				t.Errorf("%q alone should exclude the record", half)
			}
		}
	})

	t.Run("canonical artist matches alias literal", func(t *testing.T) {
		canon := types.CanonicalMap{"artist-alias": "artist-main"}
		rec := types.Record{ID: "x", Artists: []string{"artist-alias"}}
		if !mustMatch(t, "artists == 'artist-alias'", rec, canon) {
			t.Error("alias literal should match canonicalized artist")
		}
		if !mustMatch(t, "artists IN ('artist-main')", rec, canon) {
			t.Error("canonical literal should match canonicalized artist")
		}
		if mustMatch(t, "artists NOT IN ('artist-alias')", rec, canon) {
			t.Error("NOT IN alias should exclude canonicalized artist")
		}
	})
}

func TestEvaluate_EmptyExpressionMatchesNothing(t *testing.T) {
	if mustMatch(t, "", fullRecord(), nil) {
		t.Error("empty expression matched")
	}
	ok, err := Evaluate(nil, &types.Record{ID: "x"}, nil)
	if err != nil || ok {
		t.Errorf("Evaluate(nil) = %v, %v; want false, nil", ok, err)
	}
}

func TestEvaluate_Direct(t *testing.T) {
	node, err := Parse("artists == 'b'")
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	rec := types.Record{ID: "x", Artists: []string{"a"}}
	ok, err := Evaluate(node, &rec, types.CanonicalMap{"a": "b"})
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}
	if !ok {
		t.Error("Evaluate() = false, want true after canonicalization")
	}
	if rec.Artists[0] != "a" {
		t.Errorf("input record mutated: artists[0] = %q", rec.Artists[0])
	}

	_, err = Evaluate(&types.Comparison{Op: types.OpEq, Left: &types.FieldReference{Name: "genre"}, Right: types.StringLiteral("x")}, &rec, nil)
	if !errors.Is(err, types.ErrExpression) {
		t.Errorf("Evaluate() unknown field error = %v, want ErrExpression", err)
	}
}

func TestEvaluate_TextAndTreeAgree(t *testing.T) {
	sources := []string{
		"bpm >= 120 AND bpm <= 130 AND key IN ('G','Gmaj')",
		"NOT (durationSeconds < 30) AND tags NOT IN ('interlude')",
		"title MATCHES /^intro/i OR releaseDate BETWEEN '2021-01-01' AND '2021-12-31'",
		"metadata['mood'] == 'calm' AND NOT artists == 'a9'",
	}
	records := []types.Record{fullRecord(), sparseRecord()}

	for _, src := range sources {
		t.Run(src, func(t *testing.T) {
			node, err := Parse(src)
			if err != nil {
				t.Fatalf("Parse() error = %v", err)
			}
			raw, err := types.MarshalNode(node)
			if err != nil {
				t.Fatalf("MarshalNode() error = %v", err)
			}
			tree, err := Compile(&types.Rule{ID: "tree", Expression: types.TreeJSONExpression(raw)}, nil)
			if err != nil {
				t.Fatalf("Compile(tree) error = %v", err)
			}
			for i := range records {
				want := mustMatch(t, src, records[i], nil)
				if got := tree.Match(&records[i]); got != want {
					t.Errorf("record %s: tree = %v, text = %v", records[i].ID, got, want)
				}
			}
		})
	}
}

func TestFilter_PreservesOrder(t *testing.T) {
	compiled, err := Compile(&types.Rule{ID: "r", Expression: types.TextExpression("bpm > 100")}, nil)
	if err != nil {
		t.Fatalf("Compile() error = %v", err)
	}
	records := []types.Record{
		{ID: "c", BPM: numPtr(120)},
		{ID: "a", BPM: numPtr(90)},
		{ID: "b", BPM: numPtr(130)},
	}
	got := Filter(compiled, records)
	if len(got) != 2 || got[0].ID != "c" || got[1].ID != "b" {
		t.Errorf("Filter() = %v, want [c b]", got)
	}
}

// Property-based test: IN and NOT IN partition every record.
func TestEvaluate_PropertyInIsTotal(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	keys := []string{"A", "B", "C", "D"}

	properties.Property("exactly one of IN / NOT IN holds", prop.ForAll(
		func(keyIdx int, present bool, listMask int) bool {
			rec := types.Record{ID: "x"}
			if present {
				rec.Key = strPtr(keys[keyIdx])
			}
			values := make([]*types.Literal, 0, len(keys))
			for i, k := range keys {
				if listMask&(1<<i) != 0 {
					values = append(values, types.StringLiteral(k))
				}
			}
			if len(values) == 0 {
				values = append(values, types.StringLiteral("Z"))
			}
			field := &types.FieldReference{Name: "key"}
			in, err := Evaluate(&types.InList{Field: field, Values: values}, &rec, nil)
			if err != nil {
				return false
			}
			notIn, err := Evaluate(&types.InList{Field: field, Negated: true, Values: values}, &rec, nil)
			if err != nil {
				return false
			}
			return in != notIn
		},
		gen.IntRange(0, 3),
		gen.Bool(),
		gen.IntRange(0, 15),
	))

	properties.TestingRun(t)
}

// Property-based test: NOT inverts every compiled predicate.
func TestEvaluate_PropertyNotInverts(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	ops := []types.CompareOp{types.OpEq, types.OpNeq, types.OpLt, types.OpLte, types.OpGt, types.OpGte}

	properties.Property("NOT e == !e", prop.ForAll(
		func(opIdx int, bpm float64, target float64, present bool) bool {
			rec := types.Record{ID: "x"}
			if present {
				rec.BPM = numPtr(bpm)
			}
			cmp := &types.Comparison{Op: ops[opIdx], Left: &types.FieldReference{Name: "bpm"}, Right: types.NumberLiteral(target)}
			plain, err := Evaluate(cmp, &rec, nil)
			if err != nil {
				return false
			}
			negated, err := Evaluate(&types.LogicalNot{Inner: cmp}, &rec, nil)
			if err != nil {
				return false
			}
			return plain != negated
		},
		gen.IntRange(0, len(ops)-1),
		gen.Float64Range(60, 200),
		gen.Float64Range(60, 200),
		gen.Bool(),
	))

	properties.TestingRun(t)
}
