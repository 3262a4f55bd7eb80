// Package features turns a query into the fixed-dimension vector the
// bandit router scores arms against. Grounded on the original
// implementation's features.py: a length/word-count vector by default,
// or a fixed random projection of a provider embedding when configured.
package features

import (
	"context"
	"math"
	"math/rand"
	"strings"
)

// Computer produces a feature vector of a fixed Dimension for any query.
// Implementations must be pure: the same query always yields the same
// vector (embedding-backed implementations hold their projection fixed).
type Computer interface {
	Dimension() int
	Compute(ctx context.Context, query string) ([]float64, error)
}

// LengthFeatures is the default feature computer: d=3,
// [1.0, min(1, len(query)/lengthThreshold), min(1, wordCount/100)].
type LengthFeatures struct {
	LengthThreshold int
}

// NewLengthFeatures builds a LengthFeatures with the given normalization
// threshold; thresholds <= 0 fall back to 2000, the original's default.
func NewLengthFeatures(lengthThreshold int) *LengthFeatures {
	if lengthThreshold <= 0 {
		lengthThreshold = 2000
	}
	return &LengthFeatures{LengthThreshold: lengthThreshold}
}

func (f *LengthFeatures) Dimension() int { return 3 }

func (f *LengthFeatures) Compute(_ context.Context, query string) ([]float64, error) {
	length := len(query)
	words := len(strings.Fields(query))
	return []float64{
		1.0,
		min1(float64(length) / float64(f.LengthThreshold)),
		min1(float64(words) / 100.0),
	}, nil
}

// Embedder abstracts a provider embedding call so features stays
// independent of any one embedding API, matching spec.md's treatment of
// the LLM client as an external collaborator (§1).
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float64, error)
}

// EmbeddingFeatures projects a source embedding down to OutputDim via a
// fixed-seed random Gaussian matrix and z-score normalizes the result, so
// the router's dimension stays stable across runs regardless of the
// embedding model's native width.
type EmbeddingFeatures struct {
	Embedder  Embedder
	OutputDim int
	proj      [][]float64
	srcDim    int
}

// NewEmbeddingFeatures builds an EmbeddingFeatures with a deterministic
// projection matrix seeded by seed, matching the original's fixed
// random-projection contract (same seed, same model family -> same
// projection across process restarts).
func NewEmbeddingFeatures(embedder Embedder, outputDim int, seed int64) *EmbeddingFeatures {
	if outputDim < 8 {
		outputDim = 8
	}
	const srcDim = 1536
	rng := rand.New(rand.NewSource(seed))
	scale := 1.0 / math.Sqrt(float64(srcDim))
	proj := make([][]float64, outputDim)
	for i := range proj {
		proj[i] = make([]float64, srcDim)
		for j := range proj[i] {
			proj[i][j] = rng.NormFloat64() * scale
		}
	}
	return &EmbeddingFeatures{Embedder: embedder, OutputDim: outputDim, proj: proj, srcDim: srcDim}
}

func (f *EmbeddingFeatures) Dimension() int { return f.OutputDim }

func (f *EmbeddingFeatures) Compute(ctx context.Context, query string) ([]float64, error) {
	if query == "" {
		return make([]float64, f.OutputDim), nil
	}
	vec, err := f.Embedder.Embed(ctx, query)
	if err != nil {
		return nil, err
	}
	reduced := make([]float64, f.OutputDim)
	n := len(vec)
	if n > f.srcDim {
		n = f.srcDim
	}
	for i, row := range f.proj {
		sum := 0.0
		for j := 0; j < n; j++ {
			sum += row[j] * vec[j]
		}
		reduced[i] = sum
	}
	return zscore(reduced), nil
}

func zscore(v []float64) []float64 {
	mean := 0.0
	for _, x := range v {
		mean += x
	}
	mean /= float64(len(v))

	variance := 0.0
	for _, x := range v {
		variance += (x - mean) * (x - mean)
	}
	variance /= float64(len(v))
	sigma := math.Sqrt(variance) + 1e-6

	out := make([]float64, len(v))
	for i, x := range v {
		out[i] = (x - mean) / sigma
	}
	return out
}

func min1(x float64) float64 {
	if x > 1.0 {
		return 1.0
	}
	if x < 0 {
		return 0
	}
	return x
}
