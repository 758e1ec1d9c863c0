// Package bm25 scores chunk text against a query using a deliberately
// simplified, single-document variant of Okapi BM25: no corpus-wide
// document frequency statistics are collected, so IDF is fixed at 1.0
// and each chunk is normalized against its own length rather than a
// corpus average. It exists purely as a cheap lexical sidecar signal
// for the query engine's optional hybrid fusion mode, not as a general
// keyword index.
package bm25

import (
	"strings"
	"unicode"
)

// k1 and b are the standard Okapi BM25 term-saturation and length-
// normalization constants. b has no effect here since each chunk's
// length is normalized against itself (ratio always 1), but it is
// kept for fidelity with the textbook formula.
const (
	k1 = 1.5
	b  = 0.75
)

// tokenize lowercases s and splits it into a sequence of alphanumeric
// runs, discarding punctuation and whitespace.
func tokenize(s string) []string {
	var tokens []string
	var cur strings.Builder
	flush := func() {
		if cur.Len() > 0 {
			tokens = append(tokens, cur.String())
			cur.Reset()
		}
	}
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			cur.WriteRune(unicode.ToLower(r))
		} else {
			flush()
		}
	}
	flush()
	return tokens
}

func termFrequencies(tokens []string) map[string]int {
	tf := make(map[string]int, len(tokens))
	for _, t := range tokens {
		tf[t]++
	}
	return tf
}

// scoreOne computes the simplified BM25 score of a single chunk's term
// frequencies against the deduplicated query terms. With IDF fixed at
// 1.0 and the length-normalization ratio fixed at 1, this reduces to
// summing, per matching query term, (k1+1)*tf / (tf+k1).
func scoreOne(queryTerms []string, tf map[string]int) float64 {
	var score float64
	seen := make(map[string]bool, len(queryTerms))
	for _, term := range queryTerms {
		if seen[term] {
			continue
		}
		seen[term] = true
		freq, ok := tf[term]
		if !ok || freq == 0 {
			continue
		}
		f := float64(freq)
		score += (f * (k1 + 1)) / (f + k1)
	}
	return score
}

// Score computes a simplified BM25 score for query against every
// entry in corpus, keyed by whatever identifier the caller uses (the
// query engine keys by vector point id). Entries with no matching
// query terms are omitted rather than returned as zero, so callers can
// treat a missing key as "no lexical signal" without an extra check.
func Score(query string, corpus map[string]string) map[string]float64 {
	queryTerms := tokenize(query)
	out := make(map[string]float64, len(corpus))
	if len(queryTerms) == 0 {
		return out
	}
	for id, text := range corpus {
		tf := termFrequencies(tokenize(text))
		s := scoreOne(queryTerms, tf)
		if s > 0 {
			out[id] = s
		}
	}
	return out
}

// Normalize rescales scores into [0, 1] by dividing by the maximum
// observed score, so a BM25 score can be linearly combined with a
// cosine-similarity vector score that already lives in that range. An
// empty or all-zero input is returned unchanged.
func Normalize(scores map[string]float64) map[string]float64 {
	var max float64
	for _, s := range scores {
		if s > max {
			max = s
		}
	}
	if max == 0 {
		return scores
	}
	out := make(map[string]float64, len(scores))
	for id, s := range scores {
		out[id] = s / max
	}
	return out
}
