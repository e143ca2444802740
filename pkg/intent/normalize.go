// Package intent turns raw utterances into normalized search terms and
// classifies them against declarative pattern and category tables.
package intent

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// stopwords are function words dropped from search terms. Adjectives such
// as "bom" are kept: they carry intent the catalog may index.
var stopwords = map[string]struct{}{
	"a": {}, "o": {}, "as": {}, "os": {}, "e": {}, "de": {}, "do": {}, "da": {},
	"dos": {}, "das": {}, "um": {}, "uma": {}, "uns": {}, "umas": {}, "em": {},
	"no": {}, "na": {}, "nos": {}, "nas": {}, "pra": {}, "pro": {}, "para": {},
	"por": {}, "com": {}, "que": {}, "me": {}, "eu": {}, "quero": {}, "queria": {},
	"procuro": {}, "procurando": {}, "preciso": {}, "tem": {}, "voces": {},
	"mostra": {}, "mostre": {}, "algum": {}, "alguma": {}, "ai": {}, "ou": {},
	"the": {}, "an": {}, "of": {}, "for": {}, "to": {}, "i": {}, "want": {},
	"need": {}, "show": {}, "some": {}, "any": {}, "looking": {},
}

// Fold removes diacritics: "Televisão" -> "Televisao".
func Fold(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return out
}

// Normalize lowercases, folds accents and collapses every run of
// non-alphanumeric characters into a single space.
func Normalize(s string) string {
	folded := Fold(strings.ToLower(s))

	var b strings.Builder
	b.Grow(len(folded))
	space := true
	for _, r := range folded {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
			space = false
			continue
		}
		if !space {
			b.WriteByte(' ')
			space = true
		}
	}
	return strings.TrimSpace(b.String())
}

// Tokens splits the normalized form of s.
func Tokens(s string) []string {
	return strings.Fields(Normalize(s))
}

// IsStopword reports whether tok is dropped from search terms.
func IsStopword(tok string) bool {
	_, ok := stopwords[tok]
	return ok
}

// Term builds the search term for an utterance: normalized tokens without
// stopwords. When every token is a stopword the normalized text is used.
func Term(utterance string) string {
	toks := Tokens(utterance)
	var kept []string
	for _, t := range toks {
		if !IsStopword(t) {
			kept = append(kept, t)
		}
	}
	if len(kept) == 0 {
		return strings.Join(toks, " ")
	}
	return strings.Join(kept, " ")
}
