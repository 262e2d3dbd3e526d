// Package textnorm provides locale-aware text normalization and term
// extraction for the retrieval core.
//
// Correct casefolding is a first-class correctness requirement here, not a
// cosmetic one: Turkish has the dotted/dotless pairs İ↔i and I↔ı, which do
// not round-trip under ASCII case mapping. A naive strings.ToLower turns
// "İSTANBUL" into "İstanbul"-incompatible forms and causes false negatives
// in substring search against records stored in all-caps.
package textnorm

import (
	"fmt"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// minTermRunes is the minimum rune length of an extracted term. Single-rune
// tokens carry no matching signal and are dropped.
const minTermRunes = 2

// Normalizer performs locale-aware casefolding, stopword filtering, and term
// extraction. It is safe for concurrent use: casers are created per call
// because [cases.Caser] values are stateful.
type Normalizer struct {
	// tag is the locale used for case mapping.
	tag language.Tag
	// stopwords is the lowercase stopword set filtered out of terms.
	stopwords map[string]struct{}
}

// New constructs a Normalizer for the given BCP 47 locale and stopword list.
// Stopword entries are themselves folded through the locale lowercaser so
// list maintainers do not have to worry about case.
func New(locale string, stopwords []string) (*Normalizer, error) {
	if locale == "" {
		locale = "tr"
	}
	tag, err := language.Parse(locale)
	if err != nil {
		return nil, fmt.Errorf("textnorm: invalid locale %q: %w", locale, err)
	}

	n := &Normalizer{
		tag:       tag,
		stopwords: make(map[string]struct{}, len(stopwords)),
	}
	lower := cases.Lower(tag)
	for _, w := range stopwords {
		w = strings.TrimSpace(lower.String(w))
		if w != "" {
			n.stopwords[w] = struct{}{}
		}
	}
	return n, nil
}

// Normalize lowercases text with the configured locale and collapses runs of
// whitespace to single spaces.
func (n *Normalizer) Normalize(text string) string {
	folded := cases.Lower(n.tag).String(text)
	return strings.Join(strings.Fields(folded), " ")
}

// FoldUpper uppercases text with the configured locale. It exists for
// searching literal uppercase occurrences — proper names in all-caps records
// — where Turkish "i" must become "İ", not "I".
func (n *Normalizer) FoldUpper(text string) string {
	return cases.Upper(n.tag).String(text)
}

// ExtractTerms tokenizes text and returns the ordered set of informative
// terms: lowercased with the locale, stopwords removed, duplicates dropped,
// tokens shorter than two runes dropped. Order of first occurrence is
// preserved so callers can treat earlier terms as more salient.
func (n *Normalizer) ExtractTerms(text string) []string {
	tokens := strings.FieldsFunc(n.Normalize(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})

	seen := make(map[string]struct{}, len(tokens))
	terms := make([]string, 0, len(tokens))
	for _, tok := range tokens {
		if len([]rune(tok)) < minTermRunes {
			continue
		}
		if _, stop := n.stopwords[tok]; stop {
			continue
		}
		if _, dup := seen[tok]; dup {
			continue
		}
		seen[tok] = struct{}{}
		terms = append(terms, tok)
	}
	return terms
}

// IsStopword reports whether the (already lowercased) token is a stopword.
func (n *Normalizer) IsStopword(token string) bool {
	_, ok := n.stopwords[token]
	return ok
}

// ContainsTerm reports whether the chunk contains the extracted term as a
// literal substring, checking both the locale-lowercased chunk text and the
// uppercase fold of the term against the raw text. The second check matches
// terms inside all-caps fields (e.g. surname columns in tabular records)
// without relying on the chunk having been normalized.
func (n *Normalizer) ContainsTerm(rawText, normalizedText, term string) bool {
	if strings.Contains(normalizedText, term) {
		return true
	}
	return strings.Contains(rawText, n.FoldUpper(term))
}
