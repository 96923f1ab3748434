package query

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// EscapeChar is the LIKE escape character used in Match patterns.
const EscapeChar = `\`

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// Fold case-folds s for case-insensitive comparison beyond ASCII. Composed and decomposed
// spellings fold to the same string.
// Stores keep folded copies of searchable text and compare against folded patterns.
func Fold(s string) string {
	// A Caser is stateful, so each call gets its own.
	return cases.Fold().String(norm.NFC.String(s))
}

// EscapeLike escapes LIKE metacharacters in s.
func EscapeLike(s string) string {
	return likeEscaper.Replace(s)
}

// ContainsPattern returns the folded, escaped LIKE pattern matching s anywhere.
func ContainsPattern(s string) string {
	return "%" + EscapeLike(Fold(strings.TrimSpace(s))) + "%"
}
