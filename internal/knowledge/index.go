// Package knowledge holds the in-memory vector index built from normalized
// interview chunks. An Index is built once and only read afterwards; a new
// query produces a new Index.
package knowledge

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/jonathan/intbuddy/internal/types"
)

// DefaultTopK is the number of chunks retrieved per question.
const DefaultTopK = 5

// ErrEmptyIndex is returned by Build when there is nothing to embed.
var ErrEmptyIndex = errors.New("no chunks to index")

// Embedder turns text into vectors. Documents and queries are embedded
// separately because retrieval models encode them differently.
type Embedder interface {
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// EmbeddingError wraps a failure of the embedding model.
type EmbeddingError struct {
	Op    string
	Cause error
}

func (e *EmbeddingError) Error() string {
	return fmt.Sprintf("embedding %s: %v", e.Op, e.Cause)
}

func (e *EmbeddingError) Unwrap() error {
	return e.Cause
}

// Match is a retrieved chunk with its similarity to the question.
type Match struct {
	Chunk types.Chunk `json:"chunk"`
	Score float64     `json:"score"`
}

// Index is a brute-force cosine index over chunk embeddings.
type Index struct {
	embedder Embedder
	chunks   []types.Chunk
	vectors  [][]float32
	norms    []float64
}

// Build embeds every chunk in order and returns the finished index.
func Build(ctx context.Context, embedder Embedder, chunks []types.Chunk) (*Index, error) {
	if len(chunks) == 0 {
		return nil, ErrEmptyIndex
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}

	vectors, err := embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		return nil, &EmbeddingError{Op: "documents", Cause: err}
	}
	if len(vectors) != len(chunks) {
		return nil, &EmbeddingError{
			Op:    "documents",
			Cause: fmt.Errorf("got %d vectors for %d chunks", len(vectors), len(chunks)),
		}
	}

	idx := &Index{
		embedder: embedder,
		chunks:   make([]types.Chunk, len(chunks)),
		vectors:  vectors,
		norms:    make([]float64, len(vectors)),
	}
	copy(idx.chunks, chunks)
	for i, v := range vectors {
		idx.norms[i] = norm(v)
	}
	return idx, nil
}

// Len returns the number of indexed chunks.
func (i *Index) Len() int {
	return len(i.chunks)
}

// Chunks returns a copy of the indexed chunks in build order.
func (i *Index) Chunks() []types.Chunk {
	out := make([]types.Chunk, len(i.chunks))
	copy(out, i.chunks)
	return out
}

// Vectors returns a copy of the chunk embeddings in build order.
func (i *Index) Vectors() [][]float32 {
	out := make([][]float32, len(i.vectors))
	for n, v := range i.vectors {
		out[n] = append([]float32(nil), v...)
	}
	return out
}

// Search embeds the question and returns the k most similar chunks. Equal
// scores keep build order. k <= 0 means DefaultTopK.
func (i *Index) Search(ctx context.Context, question string, k int) ([]Match, error) {
	if k <= 0 {
		k = DefaultTopK
	}

	q, err := i.embedder.EmbedQuery(ctx, question)
	if err != nil {
		return nil, &EmbeddingError{Op: "query", Cause: err}
	}
	return i.SearchVector(q, k), nil
}

// SearchVector ranks chunks against an already embedded query.
func (i *Index) SearchVector(query []float32, k int) []Match {
	qn := norm(query)
	matches := make([]Match, len(i.chunks))
	for n, c := range i.chunks {
		matches[n] = Match{Chunk: c, Score: cosine(query, qn, i.vectors[n], i.norms[n])}
	}

	sort.SliceStable(matches, func(a, b int) bool {
		return matches[a].Score > matches[b].Score
	})

	if k > len(matches) {
		k = len(matches)
	}
	return matches[:k]
}

// cosine returns 0 for mismatched dimensions or zero vectors.
func cosine(a []float32, an float64, b []float32, bn float64) float64 {
	if len(a) != len(b) || an == 0 || bn == 0 {
		return 0
	}
	var dot float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
	}
	return dot / (an * bn)
}

func norm(v []float32) float64 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	return math.Sqrt(sum)
}
