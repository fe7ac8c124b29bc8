package index

import (
	"regexp"
	"sort"
	"strings"
)

var keywordRe = regexp.MustCompile(`[a-z]{3,}`)

// commonWords are dropped from keyword statistics: function words plus the
// vocabulary every paper shares.
var commonWords = wordSet(`
a an and or the of in for to from by on with without across about after among under over into out per as is are
was were be being been this that these those it its their his her we you they i your our ours mine
introduction methods results discussion conclusion abstract figure table appendix references study paper research
data model models system systems learning machine deep neural network networks ai ml nlp
has have had not also can which such use used using two one may more than all each both other where when what how`)

// Keyword is a term and the number of times it occurs.
type Keyword struct {
	Term   string
	Weight int
}

// TopKeywords counts words of three or more letters across texts and returns
// the n heaviest, ties broken alphabetically.
func TopKeywords(texts []string, n int) []Keyword {
	freq := make(map[string]int)
	for _, t := range texts {
		for _, tok := range keywordRe.FindAllString(strings.ToLower(t), -1) {
			if _, skip := commonWords[tok]; skip {
				continue
			}
			freq[tok]++
		}
	}
	return rank(freq, n)
}

func rank(freq map[string]int, n int) []Keyword {
	out := make([]Keyword, 0, len(freq))
	for k, w := range freq {
		out = append(out, Keyword{Term: k, Weight: w})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Weight != out[j].Weight {
			return out[i].Weight > out[j].Weight
		}
		return out[i].Term < out[j].Term
	})
	if n > 0 && n < len(out) {
		out = out[:n]
	}
	return out
}
