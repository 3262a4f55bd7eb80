package race

import (
	"time"

	"github.com/llmrace/llmrace/internal/citations"
	"github.com/llmrace/llmrace/internal/judge"
	"github.com/llmrace/llmrace/internal/reward"
)

// Strategy selects whether candidate ordering comes from the bandit
// router or is taken as given.
type Strategy string

const (
	StrategyBaseline Strategy = "baseline"
	StrategyBandit   Strategy = "bandit"
)

// Tuning bundles every knob named in spec.md §6's CLI surface. Zero
// values are replaced by sane defaults in withDefaults.
type Tuning struct {
	MinPreviewTokens int
	Strategy         Strategy

	Alpha       float64
	RidgeLambda float64

	LengthThreshold int
	RewardWeights   reward.Weights
	FallbackPenalty float64

	AdaptiveMinScale float64
	AdaptiveMaxScale float64
	LatencyBiasScale float64

	SpeculativeMinQueryLen int
	SpeculativeTopK        int

	PreviewTimeout time.Duration
	FullTimeout    time.Duration
}

func (t Tuning) withDefaults() Tuning {
	if t.MinPreviewTokens <= 0 {
		t.MinPreviewTokens = 40
	}
	if t.Strategy == "" {
		t.Strategy = StrategyBaseline
	}
	if t.Alpha <= 0 {
		t.Alpha = 0.5
	}
	if t.RidgeLambda <= 0 {
		t.RidgeLambda = 1.0
	}
	if t.LengthThreshold <= 0 {
		t.LengthThreshold = 2000
	}
	if t.RewardWeights == (reward.Weights{}) {
		t.RewardWeights = reward.DefaultWeights
	}
	if t.AdaptiveMinScale <= 0 {
		t.AdaptiveMinScale = 1.0
	}
	if t.AdaptiveMaxScale <= 0 {
		t.AdaptiveMaxScale = 3.0
	}
	if t.AdaptiveMaxScale < t.AdaptiveMinScale {
		t.AdaptiveMaxScale = t.AdaptiveMinScale
	}
	if t.SpeculativeMinQueryLen <= 0 {
		t.SpeculativeMinQueryLen = 200
	}
	if t.SpeculativeTopK < 2 {
		t.SpeculativeTopK = 2
	}
	return t
}

// PreviewDebug is one candidate's preview outcome, surfaced for callers
// that want the full race trace.
type PreviewDebug struct {
	Model     string
	Text      string
	Tokens    int
	LatencyS  float64
	Cached    bool
	Failed    bool
	Citations []citations.Citation
}

// Debug carries everything about a completed race beyond the winner,
// matching spec.md §4.1 step 8.
type Debug struct {
	RaceID     string
	Strategy   string
	Models     []string
	JudgeModel string

	Previews   []PreviewDebug
	Tokens     []int
	LatenciesS []float64

	VerdictScores     []judge.Scores
	FailedFullIndices []int

	FullResponse string
	FullTokens   int

	Citations []citations.Citation
}

// Result is race's return value: the winning candidate and the full
// debug trace.
type Result struct {
	WinnerIndex int
	WinnerName  string
	Debug       Debug
}
