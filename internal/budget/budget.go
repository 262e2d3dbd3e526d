// Package budget estimates token usage of retrieved candidates and trims
// result lists to a context budget before they are handed to a downstream
// generator.
package budget

import "github.com/murtezaalemdar/CompanyAi-sub001/internal/rag"

// charsPerToken is the rough chars-to-tokens ratio. Tokenizers differ per
// model; 4 chars/token is a serviceable estimate for mixed Turkish/English
// prose and errs on the safe side for budget checks.
const charsPerToken = 4

// Estimate returns the approximate token count of text.
func Estimate(text string) int {
	n := len([]rune(text))
	if n == 0 {
		return 0
	}
	tokens := n / charsPerToken
	if tokens == 0 {
		return 1
	}
	return tokens
}

// EstimateCandidates returns the approximate total token count of a
// candidate list's chunk texts.
func EstimateCandidates(candidates []rag.ScoredCandidate) int {
	total := 0
	for _, c := range candidates {
		total += Estimate(c.Chunk.Text)
	}
	return total
}

// TrimToBudget returns the longest prefix of candidates whose estimated
// total stays within budgetTokens. Rank order is preserved: trimming drops
// the weakest candidates, never reorders. A non-positive budget disables
// trimming.
func TrimToBudget(candidates []rag.ScoredCandidate, budgetTokens int) []rag.ScoredCandidate {
	if budgetTokens <= 0 {
		return candidates
	}
	used := 0
	for i, c := range candidates {
		used += Estimate(c.Chunk.Text)
		if used > budgetTokens {
			return candidates[:i]
		}
	}
	return candidates
}
