package index

import (
	"math"
	"sort"
	"strings"
)

// Summarize picks the maxSentences sentences of text with the highest
// normalized word-frequency score and returns them in document order.
func Summarize(text string, maxSentences int) string {
	if maxSentences <= 0 {
		maxSentences = 4
	}
	sentences := splitSentences(text)
	if len(sentences) == 0 {
		return ""
	}
	freq := map[string]float64{}
	for _, s := range sentences {
		for _, tok := range tokens(s) {
			freq[tok]++
		}
	}
	maxF := 0.0
	for _, f := range freq {
		maxF = math.Max(maxF, f)
	}
	weights := make(map[string]float64, len(freq))
	for k, f := range freq {
		weights[k] = f / maxF
	}
	picked := topSentences(sentences, weights, maxSentences)
	sort.Ints(picked)
	out := make([]string, len(picked))
	for i, idx := range picked {
		out[i] = sentences[idx]
	}
	return strings.Join(out, " ")
}

// bestSentence returns the sentence of passage that shares the most weight
// with the query terms, falling back to the first sentence.
func bestSentence(passage string, query map[string]struct{}) string {
	sentences := splitSentences(passage)
	if len(sentences) == 0 {
		return ""
	}
	weights := make(map[string]float64, len(query))
	for q := range query {
		weights[q] = 1
	}
	return sentences[topSentences(sentences, weights, 1)[0]]
}

// topSentences scores each sentence by the summed weight of its words,
// damped by sqrt(length), and returns the indices of the n best.
func topSentences(sentences []string, weights map[string]float64, n int) []int {
	type scored struct {
		idx   int
		score float64
	}
	scores := make([]scored, len(sentences))
	for i, s := range sentences {
		toks := tokens(s)
		sum := 0.0
		for _, t := range toks {
			sum += weights[t]
		}
		if len(toks) > 0 {
			sum /= math.Sqrt(float64(len(toks)))
		}
		scores[i] = scored{i, sum}
	}
	sort.SliceStable(scores, func(i, j int) bool { return scores[i].score > scores[j].score })
	n = min(n, len(scores))
	out := make([]int, n)
	for i := range out {
		out[i] = scores[i].idx
	}
	return out
}
