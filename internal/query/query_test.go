package query

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "already normal", in: "remove duplicates", want: "remove duplicates"},
		{name: "trim", in: "  remove duplicates \n", want: "remove duplicates"},
		{name: "collapse", in: "remove \t\n  duplicates", want: "remove duplicates"},
		{name: "whitespace only", in: " \t\n ", want: ""},
		{name: "empty", in: "", want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Normalize(tt.in))
		})
	}
}

func TestTokenize(t *testing.T) {
	assert.Equal(t, []string{"remove", "duplicates"}, Tokenize("Remove_Duplicates"))
	assert.Equal(t, []string{"src", "utils", "list.py"}, Tokenize("src/utils/list.py"))
	assert.Equal(t, []string{"foo", "bar"}, Tokenize("a-foo b bar"), "single-char tokens dropped")
	assert.Empty(t, Tokenize("a b c"))
	assert.Equal(t, []string{"ab", "éa"}, Tokenize("é ab ü éa"), "length counts runes, not bytes")
}

func TestParseEmptyQuery(t *testing.T) {
	q := Parse("   \n ", MaxVariants)
	assert.True(t, q.Empty())
	assert.Empty(t, q.Variants)
	assert.Empty(t, q.Tokens)
}

func TestParseVariantZeroIsNormalized(t *testing.T) {
	q := Parse("  Remove   duplicates ", MaxVariants)
	require.NotEmpty(t, q.Variants)
	assert.Equal(t, "Remove duplicates", q.Variants[0])
	assert.Equal(t, "Remove duplicates", q.Normalized)
	assert.Equal(t, "remove duplicates", q.Lower())
}

func TestParseSynonymVariants(t *testing.T) {
	q := Parse("remove duplicates", MaxVariants)

	require.LessOrEqual(t, len(q.Variants), MaxVariants)
	require.Greater(t, len(q.Variants), 1)

	found := false
	for _, v := range q.Variants[1:] {
		assert.NotEqual(t, "remove duplicates", v)
		if strings.Contains(v, "delete") || strings.Contains(v, "unique") {
			found = true
		}
	}
	assert.True(t, found, "expected a variant with a term from the same synonym group, got %v", q.Variants)
}

func TestParseVariantsAreUnique(t *testing.T) {
	q := Parse("get user config", MaxVariants)
	seen := map[string]bool{}
	for _, v := range q.Variants {
		assert.False(t, seen[strings.ToLower(v)], "duplicate variant %q", v)
		seen[strings.ToLower(v)] = true
	}
	assert.Len(t, q.Variants, MaxVariants)
}

func TestParseVariantCap(t *testing.T) {
	q := Parse("remove duplicates", 2)
	assert.Len(t, q.Variants, 2)

	q = Parse("remove duplicates", 99)
	assert.LessOrEqual(t, len(q.Variants), MaxVariants)
}

func TestParsePluralVariant(t *testing.T) {
	q := Parse("tokenizer", MaxVariants)
	assert.Equal(t, []string{"tokenizer", "tokenizers"}, q.Variants)

	q = Parse("widgets", MaxVariants)
	assert.Equal(t, []string{"widgets"}, q.Variants, "already plural first word is not pluralized again")
}

func TestParsePluralVariantUsesFirstToken(t *testing.T) {
	tests := []struct {
		name  string
		query string
		want  string
	}{
		{name: "identifier split on underscore", query: "get_user by id", want: "gets_user by id"},
		{name: "single-char word is not a token", query: "a list of items", want: "a lists of items"},
		{name: "punctuation kept in place", query: "(parser) config", want: "(parsers) config"},
		{name: "path separator", query: "src/handler", want: "srcs/handler"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := Parse(tt.query, MaxVariants)
			assert.Contains(t, q.Variants, tt.want)
		})
	}

	assert.Empty(t, pluralizeFirstToken("a b"))
	assert.Empty(t, pluralizeFirstToken("users_table"), "first token already plural")
}

func TestPluralize(t *testing.T) {
	tests := map[string]string{
		"file":   "files",
		"class":  "classes",
		"box":    "boxes",
		"match":  "matches",
		"query":  "queries",
		"key":    "keys",
		"buzz":   "buzzes",
		"stash":  "stashes",
		"parser": "parsers",
	}
	for in, want := range tests {
		assert.Equal(t, want, Pluralize(in), in)
	}
}

func TestIsCodeLike(t *testing.T) {
	tests := []struct {
		in   string
		want bool
	}{
		{"remove duplicates from list", false},
		{"how to parse json", false},
		{"func main() {", true},
		{"x => x * 2", true},
		{"import numpy as np", true},
		{"// TODO fix", true},
		{"line one\nline two", true},
		{"std::vector", true},
		{"def remove_duplicates(items):", true},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, IsCodeLike(tt.in), tt.in)
	}
}

func TestParseCodeLikeUsesRawText(t *testing.T) {
	q := Parse("first line\nsecond line", MaxVariants)
	assert.True(t, q.CodeLike)
	assert.Equal(t, "first line second line", q.Normalized)
}

func TestParseCode(t *testing.T) {
	q := ParseCode("\n  def f(x):\n    return x\n")
	assert.True(t, q.CodeLike)
	assert.Equal(t, []string{"def f(x):\n    return x"}, q.Variants)
	assert.Equal(t, "def f(x): return x", q.Normalized)

	empty := ParseCode("  ")
	assert.True(t, empty.Empty())
}

func TestSynonymsSymmetric(t *testing.T) {
	assert.Contains(t, Synonyms("remove"), "delete")
	assert.Contains(t, Synonyms("delete"), "remove")
	assert.Contains(t, Synonyms("DUPLICATES"), "unique")
	assert.Nil(t, Synonyms("zebra"))
}

func TestSortedUnique(t *testing.T) {
	assert.Equal(t, []string{"a1", "b2", "c3"}, SortedUnique([]string{"c3", "a1", "b2", "a1"}))
}
