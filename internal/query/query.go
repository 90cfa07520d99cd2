// Package query normalizes raw search text and expands it into retrieval variants.
package query

import (
	"sort"
	"strings"
	"unicode/utf8"
)

// MaxVariants is the upper bound on variants produced for one query,
// including the normalized original.
const MaxVariants = 5

// maxSynonymVariants bounds the variants produced by synonym substitution
const maxSynonymVariants = 4

// Query is a preprocessed search query
type Query struct {
	Raw        string
	Normalized string   // Trimmed, whitespace-collapsed
	Variants   []string // Variants[0] is always Normalized
	Tokens     []string // Tokenize(Normalized)
	CodeLike   bool
}

// Empty reports whether the query has no content after normalization
func (q *Query) Empty() bool {
	return q.Normalized == ""
}

// Lower returns the lower-cased normalized text used for substring matching
func (q *Query) Lower() string {
	return strings.ToLower(q.Normalized)
}

// Parse normalizes raw and builds at most maxVariants variants.
// maxVariants <= 0 or above MaxVariants is treated as MaxVariants.
func Parse(raw string, maxVariants int) Query {
	if maxVariants <= 0 || maxVariants > MaxVariants {
		maxVariants = MaxVariants
	}

	q := Query{
		Raw:        raw,
		Normalized: Normalize(raw),
		CodeLike:   IsCodeLike(raw),
	}
	if q.Empty() {
		return q
	}

	q.Tokens = Tokenize(q.Normalized)
	q.Variants = buildVariants(q.Normalized, maxVariants)
	return q
}

// ParseCode prepares a code snippet as a single-variant query
func ParseCode(code string) Query {
	q := Query{
		Raw:        code,
		Normalized: Normalize(code),
		CodeLike:   true,
	}
	if q.Empty() {
		return q
	}
	q.Tokens = Tokenize(q.Normalized)
	q.Variants = []string{strings.TrimSpace(code)}
	return q
}

// Normalize trims s and collapses internal whitespace runs to single spaces
func Normalize(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// Tokenize lower-cases s and splits it on '/', '_', '-' and whitespace.
// Tokens of length one or less are dropped.
func Tokenize(s string) []string {
	fields := strings.FieldsFunc(strings.ToLower(s), isSeparator)
	tokens := fields[:0]
	for _, f := range fields {
		if utf8.RuneCountInString(f) > 1 {
			tokens = append(tokens, f)
		}
	}
	return tokens
}

func isSeparator(r rune) bool {
	switch r {
	case '/', '_', '-', ' ', '\t', '\n', '\r', '\v', '\f':
		return true
	}
	return false
}

// TokenSet returns the distinct tokens as a set
func TokenSet(tokens []string) map[string]struct{} {
	set := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		set[t] = struct{}{}
	}
	return set
}

// SortedUnique returns the distinct tokens in lexical order
func SortedUnique(tokens []string) []string {
	set := TokenSet(tokens)
	out := make([]string, 0, len(set))
	for t := range set {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// buildVariants produces the normalized query followed by synonym
// substitutions and a pluralized first word.
func buildVariants(normalized string, maxVariants int) []string {
	variants := []string{normalized}
	seen := map[string]struct{}{strings.ToLower(normalized): {}}

	add := func(v string) bool {
		if len(variants) >= maxVariants {
			return false
		}
		key := strings.ToLower(v)
		if _, dup := seen[key]; dup {
			return true
		}
		seen[key] = struct{}{}
		variants = append(variants, v)
		return true
	}

	words := strings.Fields(normalized)
	alts := make([][]string, len(words))
	longest := 0
	for i, w := range words {
		alts[i] = Synonyms(trimWord(w))
		if len(alts[i]) > longest {
			longest = len(alts[i])
		}
	}

	// Round-robin over words so a single word with many synonyms
	// cannot consume every slot.
	synonymCount := 0
outer:
	for r := 0; r < longest; r++ {
		for i := range words {
			if r >= len(alts[i]) {
				continue
			}
			if synonymCount >= maxSynonymVariants {
				break outer
			}
			before := len(variants)
			if !add(replaceWord(words, i, alts[i][r])) {
				break outer
			}
			if len(variants) > before {
				synonymCount++
			}
		}
	}

	if v := pluralizeFirstToken(normalized); v != "" {
		add(v)
	}

	return variants
}

// pluralizeFirstToken returns s with its first token, as Tokenize sees it,
// replaced by the plural. It returns "" when s has no token or the token is
// already plural.
func pluralizeFirstToken(s string) string {
	start := -1
	for i, r := range s + " " {
		if !isSeparator(r) {
			if start < 0 {
				start = i
			}
			continue
		}
		if start < 0 {
			continue
		}
		seg := s[start:i]
		if utf8.RuneCountInString(seg) > 1 {
			core := strings.Trim(seg, wordPunct)
			lower := strings.ToLower(core)
			if lower == "" || IsPlural(lower) {
				return ""
			}
			at := start + strings.Index(seg, core)
			return s[:at] + Pluralize(lower) + s[at+len(core):]
		}
		start = -1
	}
	return ""
}

// replaceWord returns words joined by spaces with words[i] replaced
func replaceWord(words []string, i int, with string) string {
	out := make([]string, len(words))
	copy(out, words)
	out[i] = with
	return strings.Join(out, " ")
}

// trimWord lower-cases w and strips surrounding punctuation
func trimWord(w string) string {
	return strings.ToLower(strings.Trim(w, wordPunct))
}

// wordPunct is stripped from the ends of words before lookup
const wordPunct = ".,?!\"'`:;()[]{}*"

// IsPlural reports whether word already looks pluralized
func IsPlural(word string) bool {
	return strings.HasSuffix(word, "s") && !strings.HasSuffix(word, "ss")
}

// Pluralize returns a simple English plural of word
func Pluralize(word string) string {
	switch {
	case word == "":
		return word
	case strings.HasSuffix(word, "ss"), strings.HasSuffix(word, "x"), strings.HasSuffix(word, "z"),
		strings.HasSuffix(word, "ch"), strings.HasSuffix(word, "sh"):
		return word + "es"
	case strings.HasSuffix(word, "y") && len(word) > 1 && !isVowel(word[len(word)-2]):
		return word[:len(word)-1] + "ies"
	default:
		return word + "s"
	}
}

func isVowel(b byte) bool {
	switch b {
	case 'a', 'e', 'i', 'o', 'u':
		return true
	}
	return false
}
