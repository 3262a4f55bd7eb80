// Package reward composes the per-arm reward the bandit router trains
// on from judge quality, observed latency, and approximate cost,
// grounded on the original implementation's runtime/reward.py and the
// teacher's rewards.go (ComputeReward shape, clamped weighted blend).
package reward

import (
	"math"

	"github.com/llmrace/llmrace/internal/latencystore"
)

// Weights are the quality/latency/cost blend coefficients; they are
// normalized to sum to 1 before use.
type Weights struct {
	Quality float64
	Latency float64
	Cost    float64
}

// Normalized returns w scaled so Quality+Latency+Cost == 1, guarding
// against a degenerate all-zero input.
func (w Weights) Normalized() Weights {
	total := w.Quality + w.Latency + w.Cost
	if total < 1e-9 {
		total = 1e-9
	}
	return Weights{Quality: w.Quality / total, Latency: w.Latency / total, Cost: w.Cost / total}
}

// DefaultWeights matches the original's defaults: quality-dominant with a
// small latency term and no cost term unless the caller enables pricing.
var DefaultWeights = Weights{Quality: 0.8, Latency: 0.2, Cost: 0.0}

// Policy computes quality/latency/cost-blended rewards in [0,1] per arm.
type Policy struct {
	Weights         Weights
	FallbackPenalty float64
	LengthThreshold int
	// PriceTable maps model -> USD per token; a missing or zero entry
	// falls back to a token-ratio cost proxy.
	PriceTable map[string]float64
	Latency    *latencystore.Store
}

// NewPolicy builds a Policy with normalized weights; a non-positive
// length threshold becomes 2000 and a negative penalty becomes 0.
func NewPolicy(weights Weights, fallbackPenalty float64, lengthThreshold int, priceTable map[string]float64, latency *latencystore.Store) *Policy {
	if lengthThreshold <= 0 {
		lengthThreshold = 2000
	}
	if fallbackPenalty < 0 {
		fallbackPenalty = 0
	}
	return &Policy{
		Weights:         weights.Normalized(),
		FallbackPenalty: fallbackPenalty,
		LengthThreshold: lengthThreshold,
		PriceTable:      priceTable,
		Latency:         latency,
	}
}

// Candidate is the per-arm input to ComputeRewards.
type Candidate struct {
	Model         string
	JudgeOverall  float64
	PreviewTokens int
	Failed        bool // true if this arm's full-answer attempt failed and a sequential fallback occurred
}

// ComputeRewards returns reward ∈ [0,1] per model, blending judge quality,
// observed preview latency, and approximate cost, minus FallbackPenalty
// for any candidate whose full-answer attempt failed.
func (p *Policy) ComputeRewards(query string, candidates []Candidate, minPreviewTokens int) map[string]float64 {
	out := make(map[string]float64, len(candidates))
	for _, c := range candidates {
		quality := clamp01(c.JudgeOverall)
		latency := p.latencyTerm(query, c.Model)
		cost := p.costTerm(c.Model, c.PreviewTokens, minPreviewTokens)

		r := p.Weights.Quality*quality + p.Weights.Latency*latency + p.Weights.Cost*cost
		r = clamp01(r)
		if c.Failed {
			r = math.Max(0, r-p.FallbackPenalty)
		}
		out[c.Model] = r
	}
	return out
}

func (p *Policy) latencyTerm(query, model string) float64 {
	if p.Latency == nil {
		return 0.5
	}
	p95, ok := p.Latency.P95(model)
	if !ok || p95 <= 0 {
		return 0.5
	}
	normLen := clamp01(float64(len(query)) / float64(maxInt(1, p.LengthThreshold)))
	base := 3.0 + 3.0*normLen
	latencyNorm := clamp01(p95 / base)
	return 1.0 - latencyNorm
}

func (p *Policy) costTerm(model string, previewTokens, minPreviewTokens int) float64 {
	price := p.PriceTable[model]
	if price > 0 {
		baseline := math.Max(1e-9, price*float64(minPreviewTokens))
		estCost := price * float64(maxInt(0, previewTokens))
		return 1.0 - clamp01(estCost/baseline)
	}
	return 1.0 - clamp01(float64(previewTokens)/float64(maxInt(1, minPreviewTokens)))
}

// EstimateCostUSD approximates a model's cost for tokens using PriceTable;
// zero if the model has no known price.
func (p *Policy) EstimateCostUSD(model string, tokens int) float64 {
	price := p.PriceTable[model]
	if price <= 0 {
		return 0
	}
	return price * float64(maxInt(0, tokens))
}

func clamp01(x float64) float64 {
	if x < 0 {
		return 0
	}
	if x > 1 {
		return 1
	}
	return x
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
