package query

import "strings"

// codeMarkers are syntax fragments that rarely occur in natural-language queries
var codeMarkers = []string{
	"{", "}", // block delimiters
	"=>", "->", "::", // arrows and scope operators
	"import ", "#include", "require(", "from __future__", // imports
	"//", "/*", "*/", "#!", // comment markers
	"();", "def ", "func ", "fn ",
}

// IsCodeLike reports whether raw looks like source code rather than prose.
// Must be called on the raw text: normalization removes newlines.
func IsCodeLike(raw string) bool {
	if strings.ContainsAny(raw, "\n\r") {
		return true
	}
	for _, m := range codeMarkers {
		if strings.Contains(raw, m) {
			return true
		}
	}
	return false
}
