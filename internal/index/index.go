// Package index is an in-memory research library: papers are chunked,
// embedded with TF-IDF and searched by cosine similarity, and questions are
// answered extractively with numbered citations.
package index

import (
	"errors"
	"math"
	"strconv"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
)

// ErrNoText is returned for documents without any extractable text.
var ErrNoText = errors.New("no extractable text found in PDF")

// NotFoundAnswer is returned when no passage relates to the question.
const NotFoundAnswer = "I cannot find that in the documents."

const (
	snippetLen    = 220
	paperKeywords = 12
	chartRows     = 5
)

// Paper is a stored document.
type Paper struct {
	ID          int
	Title       string
	Author      string
	Source      string
	Summary     string
	EmbeddingID string
	CreatedAt   time.Time
	Chunks      int
	Keywords    []Keyword
}

// Citation points at the passage numbered Index in an answer.
type Citation struct {
	Index   int
	ID      string
	Snippet string
}

// Answer is the reply to one question.
type Answer struct {
	Text      string
	Citations []Citation
}

// Stats are the aggregates behind the analytics view.
type Stats struct {
	Papers      int
	Embeddings  int
	Chats       int
	TopKeyword  string
	NewestPaper string
	MostQueried string
	LastImport  time.Time
	Topics      []Keyword
	Sources     []Keyword
}

type Options struct {
	TopK              int
	AnswerSentences   int
	SentencesPerChunk int
	OverlapSentences  int
	SummarySentences  int
	Now               func() time.Time
}

// Index is safe for concurrent use.
type Index struct {
	mu      sync.RWMutex
	opts    Options
	chunker *Chunker
	vec     Vectorizer
	store   store
	papers  []Paper
	chunks  []Chunk
	topics  map[string]int
	queried map[string]int
	chats   int
}

func New(opts Options) *Index {
	if opts.TopK <= 0 {
		opts.TopK = 5
	}
	if opts.AnswerSentences <= 0 {
		opts.AnswerSentences = 3
	}
	if opts.SummarySentences <= 0 {
		opts.SummarySentences = 4
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Index{
		opts:    opts,
		chunker: NewChunker(opts.SentencesPerChunk, opts.OverlapSentences),
		topics:  make(map[string]int),
		queried: make(map[string]int),
	}
}

// Add stores a document and re-indexes the whole corpus.
func (x *Index) Add(title, source, text string) (Paper, error) {
	if strings.TrimSpace(text) == "" {
		return Paper{}, ErrNoText
	}
	x.mu.Lock()
	defer x.mu.Unlock()

	p := Paper{
		ID:          len(x.papers) + 1,
		Title:       title,
		Author:      "Unknown",
		Source:      source,
		EmbeddingID: uuid.NewString(),
		CreatedAt:   x.opts.Now(),
	}
	chunks := x.chunker.Split(p.ID, p.EmbeddingID, text)
	if len(chunks) == 0 {
		return Paper{}, ErrNoText
	}
	if err := x.reindex(append(x.chunks[:len(x.chunks):len(x.chunks)], chunks...)); err != nil {
		return Paper{}, err
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}
	p.Chunks = len(chunks)
	p.Summary = Summarize(text, x.opts.SummarySentences)
	p.Keywords = TopKeywords(texts, paperKeywords)
	for _, k := range p.Keywords {
		x.topics[k.Term] += k.Weight
	}
	x.papers = append(x.papers, p)
	return p, nil
}

// reindex refits the vectorizer on all chunks and rebuilds the store. The
// index is left untouched on error.
func (x *Index) reindex(all []Chunk) error {
	corpus := make([]string, len(all))
	for i, c := range all {
		corpus[i] = c.Text
	}
	var vec Vectorizer
	if err := vec.Fit(corpus); err != nil {
		return ErrNoText
	}
	var st store
	st.reset(vec.Dimension())
	vectors := make([][]float64, len(all))
	for i, c := range all {
		vectors[i] = vec.Vector(c.Text)
	}
	if err := st.add(all, vectors); err != nil {
		return err
	}
	x.vec, x.store, x.chunks = vec, st, all
	return nil
}

// Ask answers question from the most similar passages. The answer cites
// the sentences it quotes as [n], where n is the citation index.
func (x *Index) Ask(question string) Answer {
	x.mu.Lock()
	defer x.mu.Unlock()
	x.chats++
	for _, k := range TopKeywords([]string{question}, 0) {
		x.queried[k.Term] += k.Weight
	}

	hits := x.search(question)
	if len(hits) == 0 {
		return Answer{Text: NotFoundAnswer, Citations: []Citation{}}
	}
	query := toSet(tokens(question))
	var parts []string
	cites := make([]Citation, len(hits))
	for i, h := range hits {
		cites[i] = Citation{Index: i + 1, ID: h.Chunk.ID, Snippet: truncate(h.Chunk.Text, snippetLen)}
		if i < x.opts.AnswerSentences {
			if s := bestSentence(h.Chunk.Text, query); s != "" {
				parts = append(parts, s+" ["+strconv.Itoa(i+1)+"]")
			}
		}
	}
	return Answer{Text: strings.Join(parts, " "), Citations: cites}
}

// search ranks chunks by cosine similarity, falling back to word overlap when
// the question shares no vocabulary weight with the corpus.
func (x *Index) search(question string) []Hit {
	if len(x.chunks) == 0 {
		return nil
	}
	hits := x.store.search(x.vec.Vector(question), x.opts.TopK)
	if len(hits) == 0 || hits[0].Score <= 1e-9 {
		hits = x.lexical(question)
	}
	out := hits[:0]
	for _, h := range hits {
		if h.Score > 1e-9 {
			out = append(out, h)
		}
	}
	return out
}

func (x *Index) lexical(question string) []Hit {
	q := toSet(tokens(question))
	hits := make([]Hit, len(x.chunks))
	for i, c := range x.chunks {
		hits[i] = Hit{Chunk: c, Score: ochiai(q, toSet(tokens(c.Text)))}
	}
	return best(hits, x.opts.TopK)
}

// ochiai is |A∩B| / sqrt(|A||B|).
func ochiai(a, b map[string]struct{}) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	inter := 0
	for t := range a {
		if _, ok := b[t]; ok {
			inter++
		}
	}
	return float64(inter) / math.Sqrt(float64(len(a))*float64(len(b)))
}

// Papers lists stored papers, oldest first.
func (x *Index) Papers() []Paper {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return append([]Paper(nil), x.papers...)
}

// Stats computes the current aggregates.
func (x *Index) Stats() Stats {
	x.mu.RLock()
	defer x.mu.RUnlock()
	s := Stats{Papers: len(x.papers), Embeddings: len(x.chunks), Chats: x.chats}

	s.Topics = rank(x.topics, chartRows)
	if len(s.Topics) > 0 {
		s.TopKeyword = s.Topics[0].Term
	}
	s.MostQueried = s.TopKeyword
	if q := rank(x.queried, 1); len(q) > 0 {
		s.MostQueried = q[0].Term
	}
	if n := len(x.papers); n > 0 {
		s.NewestPaper = x.papers[n-1].Title
		s.LastImport = x.papers[n-1].CreatedAt
	}
	sources := make(map[string]int)
	for _, p := range x.papers {
		label := p.Source
		if label == "" {
			label = "Unknown"
		}
		sources[label]++
	}
	s.Sources = rank(sources, chartRows)
	return s
}

func toSet(words []string) map[string]struct{} {
	m := make(map[string]struct{}, len(words))
	for _, w := range words {
		m[w] = struct{}{}
	}
	return m
}

// truncate cuts s to at most n runes.
func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n])
}
