package rules

import (
	"errors"
	"testing"

	"github.com/solatis/cratedigger/internal/types"
)

func TestTokenize(t *testing.T) {
	tests := []struct {
		name  string
		src   string
		kinds []tokenKind
		texts []string
	}{
		{
			name:  "comparison",
			src:   "bpm >= 120",
			kinds: []tokenKind{tokIdent, tokOp, tokNumber, tokEOF},
			texts: []string{"bpm", ">=", "120", ""},
		},
		{
			name:  "keywords are case-insensitive",
			src:   "a and b Or not c",
			kinds: []tokenKind{tokIdent, tokKeyword, tokIdent, tokKeyword, tokKeyword, tokIdent, tokEOF},
			texts: []string{"a", "AND", "b", "OR", "NOT", "c", ""},
		},
		{
			name:  "field names keep their case",
			src:   "albumId",
			kinds: []tokenKind{tokIdent, tokEOF},
			texts: []string{"albumId", ""},
		},
		{
			name:  "single and double quoted strings",
			src:   `'it\'s' "two"`,
			kinds: []tokenKind{tokString, tokString, tokEOF},
			texts: []string{"it's", "two", ""},
		},
		{
			name:  "metadata reference",
			src:   "metadata['mood']",
			kinds: []tokenKind{tokIdent, tokLBracket, tokString, tokRBracket, tokEOF},
			texts: []string{"metadata", "[", "mood", "]", ""},
		},
		{
			name:  "in list",
			src:   "key IN ('G','Gmaj')",
			kinds: []tokenKind{tokIdent, tokKeyword, tokLParen, tokString, tokComma, tokString, tokRParen, tokEOF},
			texts: []string{"key", "IN", "(", "G", ",", "Gmaj", ")", ""},
		},
		{
			name:  "regex with escaped slash",
			src:   `title MATCHES /a\/b/`,
			kinds: []tokenKind{tokIdent, tokKeyword, tokRegex, tokEOF},
			texts: []string{"title", "MATCHES", "a/b", ""},
		},
		{
			name:  "negative and fractional numbers",
			src:   "-1.5 .25 2e3",
			kinds: []tokenKind{tokNumber, tokNumber, tokNumber, tokEOF},
			texts: []string{"-1.5", ".25", "2e3", ""},
		},
		{
			name:  "operators without spaces",
			src:   "bpm!=1",
			kinds: []tokenKind{tokIdent, tokOp, tokNumber, tokEOF},
			texts: []string{"bpm", "!=", "1", ""},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			toks, err := tokenize(tt.src)
			if err != nil {
				t.Fatalf("tokenize(%q) error = %v", tt.src, err)
			}
			if len(toks) != len(tt.kinds) {
				t.Fatalf("tokenize(%q) = %d tokens, want %d", tt.src, len(toks), len(tt.kinds))
			}
			for i, tok := range toks {
				if tok.kind != tt.kinds[i] {
					t.Errorf("token %d kind = %v, want %v", i, tok.kind, tt.kinds[i])
				}
				if tok.text != tt.texts[i] {
					t.Errorf("token %d text = %q, want %q", i, tok.text, tt.texts[i])
				}
			}
		})
	}
}

func TestTokenize_RegexFlags(t *testing.T) {
	toks, err := tokenize("title MATCHES /^intro/im")
	if err != nil {
		t.Fatalf("tokenize() error = %v", err)
	}
	if toks[2].text != "^intro" || toks[2].flags != "im" {
		t.Errorf("regex token = %q flags %q, want %q flags %q", toks[2].text, toks[2].flags, "^intro", "im")
	}
}

func TestTokenize_Errors(t *testing.T) {
	tests := []struct {
		name       string
		src        string
		wantOffset int
	}{
		{"unterminated string", "title == 'abc", 9},
		{"unterminated regex", "title MATCHES /abc", 14},
		{"unknown regex flag", "title MATCHES /abc/x", 19},
		{"single equals", "bpm = 1", 4},
		{"bare bang", "! bpm", 0},
		{"unexpected character", "bpm > 1 @", 8},
		{"malformed number", "bpm > 12abc", 6},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tokenize(tt.src)
			if !errors.Is(err, types.ErrSyntax) {
				t.Fatalf("tokenize(%q) error = %v, want ErrSyntax", tt.src, err)
			}
			var se *types.SyntaxError
			if !errors.As(err, &se) {
				t.Fatalf("error type = %T, want *types.SyntaxError", err)
			}
			if se.Offset != tt.wantOffset {
				t.Errorf("Offset = %d, want %d", se.Offset, tt.wantOffset)
			}
		})
	}
}
