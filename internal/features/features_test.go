package features

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLengthFeaturesPure(t *testing.T) {
	f := NewLengthFeatures(2000)
	a, _ := f.Compute(context.Background(), "what is test?")
	b, _ := f.Compute(context.Background(), "what is test?")
	require.Equal(t, a, b)
}

func TestLengthFeaturesClampsAtOne(t *testing.T) {
	f := NewLengthFeatures(10)
	vec, _ := f.Compute(context.Background(), "this query is much longer than ten characters")
	require.Equal(t, 1.0, vec[1])
}

func TestLengthFeaturesDimension(t *testing.T) {
	f := NewLengthFeatures(0)
	require.Equal(t, 3, f.Dimension())
	vec, _ := f.Compute(context.Background(), "")
	require.Equal(t, []float64{1.0, 0, 0}, vec)
}

type fakeEmbedder struct{ vec []float64 }

func (e fakeEmbedder) Embed(ctx context.Context, text string) ([]float64, error) {
	return e.vec, nil
}

func TestEmbeddingFeaturesDeterministicProjection(t *testing.T) {
	src := make([]float64, 1536)
	for i := range src {
		src[i] = float64(i%7) - 3
	}
	e := fakeEmbedder{vec: src}
	f1 := NewEmbeddingFeatures(e, 24, 42)
	f2 := NewEmbeddingFeatures(e, 24, 42)

	v1, err := f1.Compute(context.Background(), "hello")
	require.NoError(t, err)
	v2, _ := f2.Compute(context.Background(), "hello")
	require.Equal(t, v1, v2)
	require.Len(t, v1, 24)
}

func TestEmbeddingFeaturesEmptyQuery(t *testing.T) {
	f := NewEmbeddingFeatures(fakeEmbedder{}, 16, 1)
	vec, err := f.Compute(context.Background(), "")
	require.NoError(t, err)
	for _, x := range vec {
		require.Zero(t, x)
	}
}
