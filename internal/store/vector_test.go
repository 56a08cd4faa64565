package store

import (
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clarify-edu/clarify-api/internal/graph"
	"github.com/clarify-edu/clarify-api/internal/similarity"
)

func TestVector_Value(t *testing.T) {
	v, err := vector{1, 0.5, -2}.Value()
	require.NoError(t, err)
	assert.Equal(t, "[1,0.5,-2]", v)

	v, err = vector(nil).Value()
	require.NoError(t, err)
	assert.Nil(t, v)
}

func TestVector_Scan(t *testing.T) {
	tests := []struct {
		name    string
		src     any
		want    vector
		wantErr bool
	}{
		{name: "bytes", src: []byte("[1,2,3]"), want: vector{1, 2, 3}},
		{name: "string", src: "[0.25,-1]", want: vector{0.25, -1}},
		{name: "null", src: nil, want: nil},
		{name: "no brackets", src: "1,2", wantErr: true},
		{name: "bad element", src: "[1,x]", wantErr: true},
		{name: "wrong type", src: 12, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var v vector
			err := v.Scan(tt.src)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, v)
		})
	}
}

func TestPairScore(t *testing.T) {
	sc, err := pairScore("a", "b", sql.NullFloat64{Float64: 0.75, Valid: true})
	require.NoError(t, err)
	assert.Equal(t, graph.Score{A: "a", B: "b", Score: 0.75}, sc)

	_, err = pairScore("a", "z", sql.NullFloat64{})
	assert.ErrorIs(t, err, similarity.ErrZeroVector)
}
