package ingestion

import (
	"strings"
	"unicode"

	"github.com/murtezaalemdar/CompanyAi-sub001/internal/textnorm"
)

// QualityGate scores auto-learned text on how likely it is to be a useful,
// concrete fact rather than conversational filler. The score combines four
// signals: content length, specificity (numbers and proper nouns), structural
// markers (lists, labels), and information density (unique informative tokens
// over total tokens).
type QualityGate struct {
	norm *textnorm.Normalizer
}

// NewQualityGate constructs a QualityGate using the given normalizer for
// tokenization and stopword filtering.
func NewQualityGate(norm *textnorm.Normalizer) *QualityGate {
	return &QualityGate{norm: norm}
}

// Signal weights. Length matters most: one-line conversational fragments are
// the dominant failure mode of auto-learning.
const (
	lengthWeight      = 0.30
	specificityWeight = 0.25
	structureWeight   = 0.20
	densityWeight     = 0.25

	// lengthSaturation is the rune count at which the length signal maxes out.
	lengthSaturation = 600
)

// Score returns the quality score of text in [0, 1].
func (g *QualityGate) Score(text string) float64 {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return 0
	}
	return lengthWeight*g.lengthSignal(trimmed) +
		specificityWeight*g.specificitySignal(trimmed) +
		structureWeight*g.structureSignal(trimmed) +
		densityWeight*g.densitySignal(trimmed)
}

// lengthSignal saturates at lengthSaturation runes.
func (g *QualityGate) lengthSignal(text string) float64 {
	n := float64(len([]rune(text)))
	if n >= lengthSaturation {
		return 1
	}
	return n / lengthSaturation
}

// specificitySignal rewards concrete content: digits and capitalized words
// mid-sentence (names, places, product codes) versus generic phrasing.
func (g *QualityGate) specificitySignal(text string) float64 {
	words := strings.Fields(text)
	if len(words) == 0 {
		return 0
	}
	concrete := 0
	for i, w := range words {
		switch {
		case containsDigit(w):
			concrete++
		case i > 0 && startsUpper(w) && !afterSentenceEnd(words[i-1]):
			concrete++
		}
	}
	ratio := float64(concrete) / float64(len(words))
	// A fifth of the words being concrete is already highly specific.
	if ratio >= 0.2 {
		return 1
	}
	return ratio / 0.2
}

// structureSignal checks for lists, labels, and tabular markers.
func (g *QualityGate) structureSignal(text string) float64 {
	score := 0.0
	for _, line := range strings.Split(text, "\n") {
		l := strings.TrimSpace(line)
		switch {
		case strings.HasPrefix(l, "-") || strings.HasPrefix(l, "*") || strings.HasPrefix(l, "•"):
			score += 0.25
		case strings.Contains(l, ":") || strings.Contains(l, "|") || strings.Contains(l, "\t"):
			score += 0.20
		}
		if score >= 1 {
			return 1
		}
	}
	return score
}

// densitySignal is the ratio of unique informative tokens to total tokens.
// Stopwords and repeats dilute density; a chunk that keeps saying the same
// thing in query words scores near zero.
func (g *QualityGate) densitySignal(text string) float64 {
	normalized := g.norm.Normalize(text)
	total := len(strings.Fields(normalized))
	if total == 0 {
		return 0
	}
	unique := len(g.norm.ExtractTerms(text))
	ratio := float64(unique) / float64(total)
	if ratio > 1 {
		ratio = 1
	}
	return ratio
}

func containsDigit(w string) bool {
	for _, r := range w {
		if unicode.IsDigit(r) {
			return true
		}
	}
	return false
}

func startsUpper(w string) bool {
	for _, r := range w {
		return unicode.IsUpper(r)
	}
	return false
}

func afterSentenceEnd(prev string) bool {
	return strings.HasSuffix(prev, ".") || strings.HasSuffix(prev, "!") ||
		strings.HasSuffix(prev, "?") || strings.HasSuffix(prev, ":")
}
