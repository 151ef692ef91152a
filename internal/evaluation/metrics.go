// Package evaluation measures generated answers against ground truth with
// lexical overlap metrics and embedding similarity.
package evaluation

import (
	"math"
	"regexp"
	"strings"
)

// bleuEpsilon smooths zero n-gram precisions so short or disjoint texts
// score near zero instead of exactly zero.
const bleuEpsilon = 0.1

var (
	citationMarkerRe = regexp.MustCompile(`\[\d+\]`)
	whitespaceRe     = regexp.MustCompile(`\s+`)
)

// LexicalScores are the deterministic text-overlap metrics.
type LexicalScores struct {
	BLEU     float64
	Rouge1F1 float64
	Rouge2F1 float64
	RougeLF1 float64
}

// ComputeLexical scores generated text against a reference. Identical
// normalized inputs score 1.0 on every metric; disjoint inputs score 0 on
// ROUGE and near 0 on BLEU.
func ComputeLexical(generated, reference string) LexicalScores {
	gen := Tokenize(generated)
	ref := Tokenize(reference)

	return LexicalScores{
		BLEU:     bleu(gen, ref),
		Rouge1F1: rougeN(gen, ref, 1),
		Rouge2F1: rougeN(gen, ref, 2),
		RougeLF1: rougeL(gen, ref),
	}
}

// Tokenize normalizes text for evaluation: citation markers go first, then
// lowercasing, whitespace collapsing, and per-token edge punctuation
// trimming.
func Tokenize(text string) []string {
	text = citationMarkerRe.ReplaceAllString(text, " ")
	text = strings.ToLower(text)
	text = whitespaceRe.ReplaceAllString(text, " ")

	var tokens []string
	for _, raw := range strings.Fields(text) {
		token := strings.Trim(raw, ".,;:!?\"'()[]{}")
		if token != "" {
			tokens = append(tokens, token)
		}
	}
	return tokens
}

// bleu computes a smoothed sentence BLEU with uniform quarter weights over
// 1- to 4-grams and the standard brevity penalty.
func bleu(gen, ref []string) float64 {
	if len(gen) == 0 || len(ref) == 0 {
		return 0
	}

	logSum := 0.0
	for n := 1; n <= 4; n++ {
		matches, total := clippedNgramMatches(gen, ref, n)
		var precision float64
		switch {
		case total == 0:
			precision = bleuEpsilon
		case matches == 0:
			precision = bleuEpsilon / float64(total)
		default:
			precision = float64(matches) / float64(total)
		}
		logSum += 0.25 * math.Log(precision)
	}

	brevity := 1.0
	if len(gen) < len(ref) {
		brevity = math.Exp(1 - float64(len(ref))/float64(len(gen)))
	}
	return brevity * math.Exp(logSum)
}

func clippedNgramMatches(gen, ref []string, n int) (matches, total int) {
	genCounts := ngramCounts(gen, n)
	refCounts := ngramCounts(ref, n)
	for gram, count := range genCounts {
		total += count
		if refCount, ok := refCounts[gram]; ok {
			if count < refCount {
				matches += count
			} else {
				matches += refCount
			}
		}
	}
	return matches, total
}

func ngramCounts(tokens []string, n int) map[string]int {
	counts := make(map[string]int)
	for i := 0; i+n <= len(tokens); i++ {
		counts[strings.Join(tokens[i:i+n], " ")]++
	}
	return counts
}

// rougeN computes the n-gram overlap F1.
func rougeN(gen, ref []string, n int) float64 {
	genCounts := ngramCounts(gen, n)
	refCounts := ngramCounts(ref, n)
	if len(genCounts) == 0 || len(refCounts) == 0 {
		return 0
	}

	overlap := 0
	genTotal := 0
	refTotal := 0
	for _, count := range genCounts {
		genTotal += count
	}
	for _, count := range refCounts {
		refTotal += count
	}
	for gram, count := range genCounts {
		if refCount, ok := refCounts[gram]; ok {
			if count < refCount {
				overlap += count
			} else {
				overlap += refCount
			}
		}
	}
	if overlap == 0 {
		return 0
	}

	precision := float64(overlap) / float64(genTotal)
	recall := float64(overlap) / float64(refTotal)
	return 2 * precision * recall / (precision + recall)
}

// rougeL computes the longest-common-subsequence F1.
func rougeL(gen, ref []string) float64 {
	if len(gen) == 0 || len(ref) == 0 {
		return 0
	}
	lcs := lcsLength(gen, ref)
	if lcs == 0 {
		return 0
	}
	precision := float64(lcs) / float64(len(gen))
	recall := float64(lcs) / float64(len(ref))
	return 2 * precision * recall / (precision + recall)
}

func lcsLength(a, b []string) int {
	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)
	for i := 1; i <= len(a); i++ {
		for j := 1; j <= len(b); j++ {
			if a[i-1] == b[j-1] {
				curr[j] = prev[j-1] + 1
			} else if prev[j] >= curr[j-1] {
				curr[j] = prev[j]
			} else {
				curr[j] = curr[j-1]
			}
		}
		prev, curr = curr, prev
	}
	return prev[len(b)]
}
