// Package similarity scores thread embeddings against each other.
package similarity

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/clarify-edu/clarify-api/internal/graph"
)

var (
	// ErrDimensionMismatch is returned when two vectors differ in length.
	ErrDimensionMismatch = errors.New("embedding dimensions differ")

	// ErrZeroVector is returned for empty or all-zero vectors.
	ErrZeroVector = errors.New("embedding has zero magnitude")

	// ErrUnknownID is returned when the oracle is asked about an id it was
	// not built with.
	ErrUnknownID = errors.New("no embedding for id")
)

// Cosine returns the cosine similarity of a and b in [-1,1].
func Cosine(a, b []float32) (float64, error) {
	if len(a) != len(b) {
		return 0, fmt.Errorf("%w: %d vs %d", ErrDimensionMismatch, len(a), len(b))
	}

	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0, ErrZeroVector
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb)), nil
}

// Clamp maps a cosine score into [0,1]; opposed vectors score 0.
func Clamp(s float64) float64 {
	if s < 0 {
		return 0
	}
	if s > 1 {
		return 1
	}
	return s
}

// Oracle scores pairs of ids from an in-memory embedding table.
type Oracle struct {
	embeddings map[string][]float32
}

// NewOracle indexes the embeddings of threads by id.
func NewOracle(threads []graph.Thread) *Oracle {
	emb := make(map[string][]float32, len(threads))
	for _, t := range threads {
		emb[t.ID] = t.Embedding
	}
	return &Oracle{embeddings: emb}
}

// Pair scores a single pair.
func (o *Oracle) Pair(ctx context.Context, a, b string) (float64, error) {
	ea, ok := o.embeddings[a]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrUnknownID, a)
	}
	eb, ok := o.embeddings[b]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrUnknownID, b)
	}
	s, err := Cosine(ea, eb)
	if err != nil {
		return 0, fmt.Errorf("score %s/%s: %w", a, b, err)
	}
	return Clamp(s), nil
}

// Batch scores every unordered pair among ids. It satisfies
// graph.BatchSimilarity.
func (o *Oracle) Batch(ctx context.Context, ids []string) ([]graph.Score, error) {
	out := make([]graph.Score, 0, len(ids)*(len(ids)-1)/2)
	for i := 0; i < len(ids); i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		for j := i + 1; j < len(ids); j++ {
			s, err := o.Pair(ctx, ids[i], ids[j])
			if err != nil {
				return nil, err
			}
			out = append(out, graph.Score{A: ids[i], B: ids[j], Score: s})
		}
	}
	return out, nil
}
