package knowledge

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func positions(ns []Neighbor) []int {
	out := make([]int, len(ns))
	for i, n := range ns {
		out[i] = n.Position
	}
	return out
}

func TestFlatIndex_QueryOrdering(t *testing.T) {
	idx, err := NewFlatIndex([][]float32{{1, 0}, {0, 1}, {1, 1}}, MetricCosine)
	require.NoError(t, err)

	got, err := idx.Query([]float32{1, 0}, 3)
	require.NoError(t, err)
	assert.Equal(t, []int{0, 2, 1}, positions(got))
	assert.InDelta(t, 0, got[0].Distance, 1e-9)
	assert.InDelta(t, 1-1/math.Sqrt2, got[1].Distance, 1e-9)
	assert.InDelta(t, 1, got[2].Distance, 1e-9)
}

func TestFlatIndex_TiesBreakByPosition(t *testing.T) {
	idx, err := NewFlatIndex([][]float32{{0, 1}, {1, 0}, {1, 0}, {1, 0}}, MetricEuclidean)
	require.NoError(t, err)

	got, err := idx.Query([]float32{1, 0}, 2)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2}, positions(got))
}

func TestFlatIndex_ResultLength(t *testing.T) {
	idx, err := NewFlatIndex([][]float32{{1, 0}, {0, 1}}, MetricCosine)
	require.NoError(t, err)

	got, err := idx.Query([]float32{1, 0}, 10)
	require.NoError(t, err)
	assert.Len(t, got, 2)

	got, err = idx.Query([]float32{1, 0}, 0)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestFlatIndex_Errors(t *testing.T) {
	empty, err := NewFlatIndex(nil, MetricCosine)
	require.NoError(t, err)
	_, err = empty.Query([]float32{1}, 1)
	assert.ErrorIs(t, err, ErrEmptyIndex)

	_, err = NewFlatIndex([][]float32{{1, 0}, {1, 0, 0}}, MetricCosine)
	assert.ErrorIs(t, err, ErrDimensionMismatch)

	idx, err := NewFlatIndex([][]float32{{1, 0}}, MetricCosine)
	require.NoError(t, err)
	_, err = idx.Query([]float32{1, 0, 0}, 1)
	assert.ErrorIs(t, err, ErrDimensionMismatch)
}

func TestFlatIndex_ZeroVector(t *testing.T) {
	idx, err := NewFlatIndex([][]float32{{0, 0}, {1, 0}}, MetricCosine)
	require.NoError(t, err)

	got, err := idx.Query([]float32{1, 0}, 2)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 0}, positions(got))
	assert.InDelta(t, 1, got[1].Distance, 1e-9)
}

func TestMetric_Score(t *testing.T) {
	assert.InDelta(t, 0.9, MetricCosine.Score(0.1), 1e-9)
	assert.InDelta(t, 1.0, MetricEuclidean.Score(0), 1e-9)
	assert.InDelta(t, 0.5, MetricEuclidean.Score(1), 1e-9)
	assert.Greater(t, MetricEuclidean.Score(0.5), MetricEuclidean.Score(2))
}

func TestParseMetric(t *testing.T) {
	tests := []struct {
		in      string
		want    Metric
		wantErr bool
	}{
		{"", MetricCosine, false},
		{"Cosine", MetricCosine, false},
		{"euclidean", MetricEuclidean, false},
		{"l2", MetricEuclidean, false},
		{"manhattan", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseMetric(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
