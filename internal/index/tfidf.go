package index

import (
	"errors"
	"math"
	"regexp"
	"sort"
	"strings"
)

var wordRe = regexp.MustCompile(`\p{L}+(?:['’]\p{L}+)*`)

// Vectorizer turns passages into L2-normalized TF-IDF vectors over the
// vocabulary of the corpus it was fitted on.
type Vectorizer struct {
	vocabulary map[string]int
	idf        []float64
}

// Fit builds the vocabulary and smoothed IDF weights from corpus.
func (v *Vectorizer) Fit(corpus []string) error {
	if len(corpus) == 0 {
		return errors.New("empty corpus")
	}
	df := make(map[string]int)
	for _, text := range corpus {
		seen := make(map[string]struct{})
		for _, tok := range tokens(text) {
			if _, ok := seen[tok]; ok {
				continue
			}
			seen[tok] = struct{}{}
			df[tok]++
		}
	}
	if len(df) == 0 {
		return errors.New("no indexable words in corpus")
	}
	terms := make([]string, 0, len(df))
	for term := range df {
		terms = append(terms, term)
	}
	sort.Strings(terms)

	n := float64(len(corpus))
	v.vocabulary = make(map[string]int, len(terms))
	v.idf = make([]float64, len(terms))
	for i, term := range terms {
		v.vocabulary[term] = i
		v.idf[i] = math.Log((1+n)/(1+float64(df[term]))) + 1
	}
	return nil
}

// Dimension is the vocabulary size; zero before Fit.
func (v *Vectorizer) Dimension() int { return len(v.idf) }

// Vector embeds text. Words outside the vocabulary are ignored, so a text
// with none of them yields the zero vector.
func (v *Vectorizer) Vector(text string) []float64 {
	vec := make([]float64, len(v.idf))
	tf := make(map[int]int)
	total := 0
	for _, tok := range tokens(text) {
		if i, ok := v.vocabulary[tok]; ok {
			tf[i]++
			total++
		}
	}
	if total == 0 {
		return vec
	}
	norm := 0.0
	for i, count := range tf {
		vec[i] = float64(count) / float64(total) * v.idf[i]
		norm += vec[i] * vec[i]
	}
	norm = math.Sqrt(norm)
	for i := range tf {
		vec[i] /= norm
	}
	return vec
}

// tokens lowercases text and drops English function words.
func tokens(text string) []string {
	raw := wordRe.FindAllString(strings.ToLower(text), -1)
	out := raw[:0]
	for _, t := range raw {
		if _, stop := functionWords[t]; !stop {
			out = append(out, t)
		}
	}
	return out
}

var functionWords = wordSet(`
a an the and or but if then else for to of in on at by with as is are was were be been being it this that these
those from up down over under again further than so such into about between through during before after above
below out off own same too very can will just don should now`)

func wordSet(s string) map[string]struct{} {
	words := strings.Fields(s)
	m := make(map[string]struct{}, len(words))
	for _, w := range words {
		m[w] = struct{}{}
	}
	return m
}
