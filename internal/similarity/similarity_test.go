package similarity

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clarify-edu/clarify-api/internal/graph"
)

func TestCosine(t *testing.T) {
	tests := []struct {
		name string
		a, b []float32
		want float64
	}{
		{"identical", []float32{1, 2, 3}, []float32{1, 2, 3}, 1},
		{"scaled", []float32{1, 0}, []float32{5, 0}, 1},
		{"orthogonal", []float32{1, 0}, []float32{0, 1}, 0},
		{"opposite", []float32{1, 1}, []float32{-1, -1}, -1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Cosine(tt.a, tt.b)
			require.NoError(t, err)
			assert.InDelta(t, tt.want, got, 1e-9)
		})
	}
}

func TestCosine_Errors(t *testing.T) {
	_, err := Cosine([]float32{1, 2}, []float32{1})
	assert.ErrorIs(t, err, ErrDimensionMismatch)

	_, err = Cosine([]float32{0, 0}, []float32{1, 1})
	assert.ErrorIs(t, err, ErrZeroVector)

	_, err = Cosine(nil, nil)
	assert.ErrorIs(t, err, ErrZeroVector)
}

func TestClamp(t *testing.T) {
	assert.Equal(t, 0.0, Clamp(-0.4))
	assert.Equal(t, 0.3, Clamp(0.3))
	assert.Equal(t, 1.0, Clamp(1.0000001))
}

func TestOracle_Batch(t *testing.T) {
	o := NewOracle([]graph.Thread{
		{ID: "a", Embedding: []float32{1, 0}},
		{ID: "b", Embedding: []float32{1, 1}},
		{ID: "c", Embedding: []float32{-1, 0}},
	})

	scores, err := o.Batch(context.Background(), []string{"a", "b", "c"})
	require.NoError(t, err)
	require.Len(t, scores, 3)

	assert.Equal(t, "a", scores[0].A)
	assert.Equal(t, "b", scores[0].B)
	assert.InDelta(t, 0.7071, scores[0].Score, 1e-4)
	assert.Equal(t, 0.0, scores[1].Score)
}

func TestOracle_UnknownID(t *testing.T) {
	o := NewOracle([]graph.Thread{{ID: "a", Embedding: []float32{1}}})

	_, err := o.Batch(context.Background(), []string{"a", "z"})
	assert.ErrorIs(t, err, ErrUnknownID)
}

func TestOracle_DrivesBuilder(t *testing.T) {
	threads := []graph.Thread{
		{ID: "a", Embedding: []float32{1, 0, 0}},
		{ID: "b", Embedding: []float32{0.9, 0.1, 0}},
		{ID: "c", Embedding: []float32{0, 0, 1}},
	}
	b, err := graph.NewBuilder(graph.DefaultConfig())
	require.NoError(t, err)

	g, err := b.Build(context.Background(), threads, NewOracle(threads).Batch)
	require.NoError(t, err)

	require.Len(t, g.Nodes, 2)
	assert.Equal(t, []string{"a", "b"}, g.Nodes[0].MemberThreadIDs)
	assert.Equal(t, []string{"c"}, g.Nodes[1].MemberThreadIDs)
	assert.Empty(t, g.Links)
}
