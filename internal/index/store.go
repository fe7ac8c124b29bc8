package index

import (
	"errors"
	"sort"
)

// Hit is a scored search result.
type Hit struct {
	Chunk Chunk
	Score float64
}

// store is a brute-force cosine store. Vectors are assumed L2-normalized.
type store struct {
	dimension int
	chunks    []Chunk
	vectors   [][]float64
}

// reset empties the store for vectors of the given size.
func (s *store) reset(dimension int) {
	s.dimension = dimension
	s.chunks = nil
	s.vectors = nil
}

func (s *store) add(chunks []Chunk, vectors [][]float64) error {
	if len(chunks) != len(vectors) {
		return errors.New("chunks and vectors length mismatch")
	}
	for _, v := range vectors {
		if len(v) != s.dimension {
			return errors.New("vector dimension mismatch")
		}
	}
	s.chunks = append(s.chunks, chunks...)
	s.vectors = append(s.vectors, vectors...)
	return nil
}

// search returns at most topK hits, best first. Ties keep insertion order.
func (s *store) search(vector []float64, topK int) []Hit {
	hits := make([]Hit, len(s.vectors))
	for i := range s.vectors {
		hits[i] = Hit{Chunk: s.chunks[i], Score: dot(s.vectors[i], vector)}
	}
	return best(hits, topK)
}

func best(hits []Hit, topK int) []Hit {
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].Score > hits[j].Score })
	if topK > 0 && topK < len(hits) {
		hits = hits[:topK]
	}
	return hits
}

func dot(a, b []float64) float64 {
	n := min(len(a), len(b))
	sum := 0.0
	for i := 0; i < n; i++ {
		sum += a[i] * b[i]
	}
	return sum
}
