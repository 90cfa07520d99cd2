package searcher

import (
	"strings"

	"github.com/dshills/coderetrieve/internal/query"
	"github.com/dshills/coderetrieve/pkg/types"
)

// Signals are the per-candidate feature scores fed into fusion
type Signals struct {
	Text      float64
	Code      float64
	Lexical   float64
	BM25      float64
	Signature float64
}

// MaxScore returns the largest score, or 0 for an empty list
func MaxScore(scores []float64) float64 {
	if len(scores) == 0 {
		return 0
	}
	m := scores[0]
	for _, s := range scores[1:] {
		if s > m {
			m = s
		}
	}
	return m
}

type weightedField struct {
	name   string
	weight float64
}

// lexicalFields are matched in this order; the score is the max over fields
var lexicalFields = []weightedField{
	{"symbol_name", 1.3},
	{"semantic_context", 1.2},
	{"docstring", 1.1},
	{"code", 0.8},
	{"file_path", 0.4},
	{"repo_id", 0.15},
}

// Lexical match strengths relative to the field weight
const (
	exactMatch  = 1.0
	phraseMatch = 0.9
)

// lexicalField returns the raw text of a lexical field
func lexicalField(rec *types.ChunkRecord, name string) string {
	switch name {
	case "symbol_name":
		return rec.SymbolName
	case "semantic_context":
		return rec.SemanticContext
	case "docstring":
		return rec.Docstring
	case "code":
		return rec.Code
	case "file_path":
		return rec.FilePath
	case "repo_id":
		return rec.RepoID
	}
	return ""
}

// LexicalScore rates surface overlap between the query and the record's text fields.
// Per field: exact substring of the lower-cased query, else the phrase formed by
// the two lexically-first query tokens, else Jaccard overlap of tokens. The result
// is the best weighted field score and can exceed 1.
func LexicalScore(q *query.Query, rec *types.ChunkRecord) float64 {
	needle := q.Lower()
	if needle == "" {
		return 0
	}
	qset := query.TokenSet(q.Tokens)
	phrases := leadingPhrases(q.Tokens)

	best := 0.0
	for _, f := range lexicalFields {
		text := strings.ToLower(lexicalField(rec, f.name))
		if text == "" {
			continue
		}

		var s float64
		switch {
		case strings.Contains(text, needle):
			s = f.weight * exactMatch
		case containsAny(text, phrases):
			s = f.weight * phraseMatch
		default:
			s = f.weight * jaccard(qset, query.TokenSet(query.Tokenize(text)))
		}
		if s > best {
			best = s
		}
	}
	return best
}

// leadingPhrases joins the two lexically-first distinct tokens with a space and an underscore
func leadingPhrases(tokens []string) []string {
	sorted := query.SortedUnique(tokens)
	if len(sorted) < 2 {
		return nil
	}
	return []string{sorted[0] + " " + sorted[1], sorted[0] + "_" + sorted[1]}
}

func containsAny(text string, subs []string) bool {
	for _, s := range subs {
		if strings.Contains(text, s) {
			return true
		}
	}
	return false
}

func jaccard(a, b map[string]struct{}) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	inter := 0
	for t := range a {
		if _, ok := b[t]; ok {
			inter++
		}
	}
	union := len(a) + len(b) - inter
	return float64(inter) / float64(union)
}

// BM25 parameters
const (
	bm25K1          = 1.5
	bm25B           = 0.75
	bm25PhraseBonus = 0.5
)

type bm25Field struct {
	name   string
	norm   float64 // length-normalization constant
	weight float64
}

var bm25Fields = []bm25Field{
	{"signature", 0.5, 2.5},
	{"docstring", 0.7, 1.5},
	{"symbol_name", 0.3, 3.0},
	{"code", 2.0, 0.8},
}

func bm25FieldText(rec *types.ChunkRecord, name string) string {
	switch name {
	case "signature":
		return rec.Signature
	case "docstring":
		return rec.Docstring
	case "symbol_name":
		return rec.SymbolName
	case "code":
		return rec.Code
	}
	return ""
}

// BM25Score is a term-frequency score over signature, docstring, symbol name and
// code. The weighted sum is divided by twice the largest weighted field score,
// so a single matching field yields 0.5 and broad matches saturate at 1.
func BM25Score(tokens []string, rec *types.ChunkRecord) float64 {
	terms := query.SortedUnique(tokens)
	if len(terms) == 0 {
		return 0
	}
	phrase := strings.Join(terms, " ")

	var sum, largest float64
	for _, f := range bm25Fields {
		text := strings.ToLower(bm25FieldText(rec, f.name))
		if text == "" {
			continue
		}
		weighted := f.weight * bm25FieldScore(terms, phrase, text, f.norm)
		sum += weighted
		if weighted > largest {
			largest = weighted
		}
	}
	if largest == 0 {
		return 0
	}
	return clamp01(sum / (2 * largest))
}

// bm25FieldScore sums the saturated term frequencies of terms in text
func bm25FieldScore(terms []string, phrase, text string, norm float64) float64 {
	tf := make(map[string]int)
	for _, t := range query.Tokenize(text) {
		tf[t]++
	}

	var s float64
	denomBase := bm25K1 * (1 - bm25B + bm25B*norm)
	for _, term := range terms {
		n := float64(tf[term])
		if n == 0 {
			continue
		}
		s += n * (bm25K1 + 1) / (n + denomBase)
	}
	if strings.Contains(text, phrase) {
		s += bm25PhraseBonus
	}
	return s
}

// signatureBonus is added to the overlap ratio when any name token matches
const signatureBonus = 0.3

// SignatureScore compares query tokens with the function name in a signature,
// taken as the last word before the first '(' and split on '_' and '-'.
func SignatureScore(tokens []string, signature string) float64 {
	nameTokens := signatureName(signature)
	if len(nameTokens) == 0 || len(tokens) == 0 {
		return 0
	}
	qset := query.TokenSet(tokens)
	nset := query.TokenSet(nameTokens)

	inter := 0
	for t := range nset {
		if _, ok := qset[t]; ok {
			inter++
		}
	}
	if inter == 0 {
		return 0
	}
	union := len(qset) + len(nset) - inter
	return min(1, float64(inter)/float64(union)+signatureBonus)
}

func signatureName(signature string) []string {
	head, _, found := strings.Cut(signature, "(")
	if !found {
		return nil
	}
	words := strings.Fields(head)
	if len(words) == 0 {
		return nil
	}
	name := strings.ToLower(words[len(words)-1])
	return strings.FieldsFunc(name, func(r rune) bool { return r == '_' || r == '-' })
}

// codeLikeShift moves weight from the text signal to the code signal for code-like queries
const codeLikeShift = 0.1

// Adapt applies the code-like shift and renormalizes the weights to sum to 1
func (w Weights) Adapt(codeLike bool) Weights {
	if codeLike {
		shift := min(codeLikeShift, w.Text)
		w.Text -= shift
		w.Code += shift
	}
	sum := w.Text + w.Code + w.Lexical + w.BM25
	if sum <= 0 {
		return Weights{}
	}
	return Weights{
		Text:    w.Text / sum,
		Code:    w.Code / sum,
		Lexical: w.Lexical / sum,
		BM25:    w.BM25 / sum,
	}
}

// Similar keeps only the code and lexical weights, renormalized
func (w Weights) Similar() Weights {
	sum := w.Code + w.Lexical
	if sum <= 0 {
		return Weights{}
	}
	return Weights{Code: w.Code / sum, Lexical: w.Lexical / sum}
}

// Fuse combines signals with already-normalized weights into a score in [0,1]
func Fuse(w Weights, s Signals) float64 {
	return clamp01(w.Text*s.Text + w.Code*s.Code + w.Lexical*s.Lexical + w.BM25*s.BM25)
}

// Signature boost gate and scale
const (
	signatureBoostThreshold = 0.3
	signatureBoostScale     = 1.5
)

// ApplyBoosts adjusts a fused score in order, clamping after each step:
// signature match, documentation with lexical overlap, then function boost or
// call penalty.
func ApplyBoosts(combined float64, s Signals, symbolType types.SymbolType, b Boosts) float64 {
	if s.Signature > signatureBoostThreshold {
		combined = clamp01(combined + b.Signature*s.Signature*signatureBoostScale)
	}
	if symbolType.IsDoc() && s.Lexical > 0 {
		combined = clamp01(combined + b.Docstring)
	}
	return applyKindBoost(combined, symbolType, b)
}

// applyKindBoost rewards functions and penalizes call sites
func applyKindBoost(combined float64, symbolType types.SymbolType, b Boosts) float64 {
	switch symbolType {
	case types.SymbolFunction:
		return clamp01(combined + b.Function)
	case types.SymbolCall:
		return clamp01(combined - b.CallPenalty)
	}
	return combined
}

// scoreSearch computes the final score of a candidate for a natural-language or code query
func scoreSearch(q *query.Query, c *Candidate, w Weights, b Boosts) float64 {
	s := Signals{
		Text:      MaxScore(c.TextScores),
		Code:      MaxScore(c.CodeScores),
		Lexical:   LexicalScore(q, &c.Record),
		BM25:      BM25Score(q.Tokens, &c.Record),
		Signature: SignatureScore(q.Tokens, c.Record.Signature),
	}
	return ApplyBoosts(Fuse(w, s), s, c.Record.SymbolType, b)
}

// scoreSimilar computes the final score of a candidate for a code-to-code query.
// Only code similarity and lexical overlap with the query code participate.
func scoreSimilar(q *query.Query, c *Candidate, w Weights, b Boosts) float64 {
	s := Signals{
		Code:    MaxScore(c.CodeScores),
		Lexical: LexicalScore(q, &c.Record),
	}
	return applyKindBoost(Fuse(w, s), c.Record.SymbolType, b)
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}
