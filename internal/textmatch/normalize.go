// Package textmatch holds the matching primitives shared by the online
// deduplication path and the batch cluster builder: text normalization,
// URL canonicalization, content fingerprints, and token-set similarity.
package textmatch

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// fillerWords are stripped from titles before fingerprinting so that
// near-identical titles ("Call for proposals: X" vs "X call") do not
// diverge on boilerplate.
var fillerWords = map[string]struct{}{
	"a": {}, "an": {}, "the": {}, "for": {}, "of": {}, "to": {},
	"and": {}, "in": {}, "on": {}, "call": {}, "calls": {},
	"tender": {}, "tenders": {}, "project": {}, "projects": {},
	"proposal": {}, "proposals": {}, "open": {}, "new": {},
}

var foldTransformer = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// foldASCII strips diacritics: "Zürich Café" -> "Zurich Cafe".
func foldASCII(s string) string {
	folded, _, err := transform.String(foldTransformer, s)
	if err != nil {
		return s
	}
	return folded
}

// Normalize folds diacritics, lowercases, collapses every run of
// non-alphanumeric characters to a single space, and trims.
func Normalize(s string) string {
	var sb strings.Builder
	sb.Grow(len(s))
	prevSpace := true
	for _, r := range strings.ToLower(foldASCII(s)) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			sb.WriteRune(r)
			prevSpace = false
		} else if !prevSpace {
			sb.WriteRune(' ')
			prevSpace = true
		}
	}
	return strings.TrimSpace(sb.String())
}

// Tokens returns the normalized whitespace-delimited tokens of s.
func Tokens(s string) []string {
	n := Normalize(s)
	if n == "" {
		return nil
	}
	return strings.Fields(n)
}

// SignificantTokens returns the normalized tokens of s with filler words
// removed.
func SignificantTokens(s string) []string {
	var out []string
	for _, tok := range Tokens(s) {
		if _, filler := fillerWords[tok]; filler {
			continue
		}
		out = append(out, tok)
	}
	return out
}

// TitlePrefix joins the first n significant tokens of a title. It is a
// cheap candidate filter, not a similarity signal.
func TitlePrefix(title string, n int) string {
	toks := SignificantTokens(title)
	if len(toks) > n {
		toks = toks[:n]
	}
	return strings.Join(toks, " ")
}
