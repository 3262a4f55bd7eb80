// Package race implements the end-to-end race orchestrator: feature
// selection, parallel previews, judging, fault-tolerant (optionally
// speculative) full-answer execution, and bandit reward emission,
// grounded on the original implementation's race/race.py and the
// teacher's internal/orchestrator request-coordination idiom (explicit
// collaborators injected into a struct, one exported entry point).
package race

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/llmrace/llmrace/internal/agent"
	"github.com/llmrace/llmrace/internal/bandit"
	"github.com/llmrace/llmrace/internal/citations"
	"github.com/llmrace/llmrace/internal/features"
	"github.com/llmrace/llmrace/internal/instructions"
	"github.com/llmrace/llmrace/internal/judge"
	"github.com/llmrace/llmrace/internal/latencystore"
	"github.com/llmrace/llmrace/internal/previewcache"
	"github.com/llmrace/llmrace/internal/racelog"
	"github.com/llmrace/llmrace/internal/racemetrics"
	"github.com/llmrace/llmrace/internal/racetracing"
	"github.com/llmrace/llmrace/internal/reward"
	"github.com/llmrace/llmrace/internal/streaming"
)

// AgentFactory builds an agent.Agent for one named arm, matching
// spec.md §6's abstract {name, model, instructions} agent contract. The
// orchestrator never talks to a provider SDK directly; it only ever
// asks the factory for an Agent and streams it.
type AgentFactory interface {
	NewAgent(name, model, instructions string) agent.Agent
}

// Orchestrator runs races. Router, Latency, Cache, Reward, and Metrics
// are all optional collaborators: a nil Router disables bandit selection
// (Tuning.Strategy must then be StrategyBaseline), a nil Reward skips
// reward emission, a nil Cache disables preview caching, a nil Latency
// disables latency recording and latency bias (the reward's latency term
// reads the Policy's own store), and a nil Metrics disables
// Prometheus emission. This mirrors the teacher's pattern of accepting
// optional collaborators and degrading gracefully when absent (see
// spec.md §9's note on re-architecting module-level singletons as
// dependency-injected collaborators).
type Orchestrator struct {
	Factory    AgentFactory
	JudgeModel string
	Features   features.Computer
	Router     *bandit.Router
	Latency    *latencystore.Store
	Cache      *previewcache.Cache
	Reward     *reward.Policy
	Metrics    *racemetrics.Registry
}

// Race runs the full two-stage race described in spec.md §4.1: feature
// selection, parallel previews, judging, full-answer execution
// (possibly speculative), reward emission, and citation collection. The
// whole call is wrapped in a root otel span (race.Race); judging and each
// individual preview/full-answer stream open their own child span, so a
// trace backend shows one race as a tree rather than a single opaque call.
func (o *Orchestrator) Race(ctx context.Context, query string, agentModels []string, tuning Tuning) (result Result, err error) {
	raceID := uuid.NewString()
	ctx, endSpan := racetracing.StartSpan(ctx, "race.Race")
	defer func() { endSpan(err) }()
	log := racelog.Default().With("race_id", raceID)

	if len(agentModels) == 0 {
		return Result{}, &ConfigError{Reason: "agent_models must not be empty"}
	}
	tuning = tuning.withDefaults()
	if tuning.MinPreviewTokens < 1 {
		return Result{}, &ConfigError{Reason: "min_preview_tokens must be >= 1"}
	}
	if tuning.Strategy != StrategyBaseline && tuning.Strategy != StrategyBandit {
		return Result{}, &ConfigError{Reason: fmt.Sprintf("unknown strategy %q", tuning.Strategy)}
	}

	order := append([]string(nil), agentModels...)
	var x []float64
	if tuning.Strategy == StrategyBandit {
		if o.Features == nil || o.Router == nil {
			return Result{}, &ConfigError{Reason: "bandit strategy requires Features and Router"}
		}
		var err error
		x, err = o.Features.Compute(ctx, query)
		if err != nil {
			return Result{}, &ConfigError{Reason: fmt.Sprintf("feature computation failed: %v", err)}
		}
		if len(x) != o.Router.Dim() {
			return Result{}, &FeatureDimError{Got: len(x), Want: o.Router.Dim()}
		}
		armBias := o.computeArmBias(query, agentModels, tuning)
		selected, err := o.Router.Select(x, agentModels, len(agentModels), armBias)
		if err != nil {
			return Result{}, &FeatureDimError{Got: len(x), Want: o.Router.Dim()}
		}
		order = selected
	}

	adaptiveMinTokens := adaptivePreviewBudget(tuning, len(query))
	previews := o.runPreviews(ctx, query, order, adaptiveMinTokens, tuning, log)

	previewTexts := make([]string, len(previews))
	for i, p := range previews {
		previewTexts[i] = p.Text
	}
	judgeCtx, endJudgeSpan := racetracing.StartSpan(ctx, "race.judge")
	judgeAgent := o.Factory.NewAgent("judge", o.JudgeModel, instructions.Judge(len(order)))
	verdict, err := judge.Evaluate(judgeCtx, judgeAgent, query, previewTexts)
	endJudgeSpan(err)
	if err != nil {
		if o.Metrics != nil {
			o.Metrics.JudgeParseFailureTotal.Inc()
			o.Metrics.RaceOutcomeTotal.WithLabelValues("judge_unparseable").Inc()
		}
		return Result{}, &JudgeParseError{Err: err}
	}

	candidateOrder := judge.ComputeCandidateOrder(verdict, len(order))
	rankedModels := make([]string, len(candidateOrder))
	for i, idx := range candidateOrder {
		rankedModels[i] = order[idx]
	}

	fullResult, winnerPos, failedFullIndices, err := o.runFullStage(ctx, query, rankedModels, tuning, log)
	if err != nil {
		if o.Metrics != nil {
			o.Metrics.RaceOutcomeTotal.WithLabelValues("all_full_failed").Inc()
		}
		return Result{}, err
	}

	winnerModel := rankedModels[winnerPos]
	winnerIndex := indexOf(order, winnerModel)

	// failedFullIndices comes back positioned in rankedModels (the
	// judge's ranking); rewards and debug both key off the original
	// per-run candidate order instead, so translate by model name.
	for i, pos := range failedFullIndices {
		failedFullIndices[i] = indexOf(order, rankedModels[pos])
	}

	if tuning.Strategy == StrategyBandit {
		o.emitRewards(query, order, previews, verdict, failedFullIndices, adaptiveMinTokens, x)
	}

	allCitations := o.collectCitations(previews, fullResult)

	if o.Metrics != nil {
		o.Metrics.RaceOutcomeTotal.WithLabelValues("winner").Inc()
		speculative := len(query) >= tuning.SpeculativeMinQueryLen && len(rankedModels) >= 2
		if speculative && winnerPos < tuning.SpeculativeTopK {
			o.Metrics.SpeculativeWinsTotal.WithLabelValues(winnerModel).Inc()
		}
		o.Metrics.FallbackDepth.Observe(float64(len(failedFullIndices)))
	}

	debug := Debug{
		RaceID:            raceID,
		Strategy:          string(tuning.Strategy),
		Models:            order,
		JudgeModel:        o.JudgeModel,
		Previews:          previews,
		Tokens:            tokensOf(previews),
		LatenciesS:        latenciesOf(previews),
		VerdictScores:     verdict.Scores,
		FailedFullIndices: failedFullIndices,
		FullResponse:      fullResult.Text,
		FullTokens:        fullResult.Tokens,
		Citations:         allCitations,
	}
	return Result{WinnerIndex: winnerIndex, WinnerName: winnerModel, Debug: debug}, nil
}

// computeArmBias biases bandit selection against arms with a known,
// relatively high p95 preview latency: arm_bias[m] =
// -latency_bias_scale * latency_norm(query, p95(m)).
func (o *Orchestrator) computeArmBias(query string, models []string, tuning Tuning) map[string]float64 {
	if tuning.LatencyBiasScale == 0 || o.Latency == nil {
		return nil
	}
	bias := make(map[string]float64, len(models))
	for _, m := range models {
		p95, ok := o.Latency.P95(m)
		if !ok {
			continue
		}
		bias[m] = -tuning.LatencyBiasScale * latencyNorm(query, p95, tuning.LengthThreshold)
	}
	return bias
}

func latencyNorm(query string, p95Seconds float64, lengthThreshold int) float64 {
	normLen := clamp01(float64(len(query)) / float64(maxInt(1, lengthThreshold)))
	base := 3.0 + 3.0*normLen
	return clamp01(p95Seconds / base)
}

// adaptivePreviewBudget scales min_preview_tokens by query length within
// [min_scale, max_scale], per spec.md §4.1 step 2.
func adaptivePreviewBudget(tuning Tuning, queryLen int) int {
	normLen := clamp01(float64(queryLen) / float64(maxInt(1, tuning.LengthThreshold)))
	scale := tuning.AdaptiveMinScale + (tuning.AdaptiveMaxScale-tuning.AdaptiveMinScale)*normLen
	tokens := int(math.Round(float64(tuning.MinPreviewTokens) * scale))
	if tokens < 1 {
		tokens = 1
	}
	return tokens
}

// runPreviews launches one goroutine per candidate and returns their
// outcomes in candidate index order regardless of completion order. A
// per-candidate error never cancels its siblings: every goroutine
// always returns a nil error to the group (failures are captured in the
// PreviewDebug itself), so errgroup.Wait never aborts early.
func (o *Orchestrator) runPreviews(ctx context.Context, query string, order []string, adaptiveMinTokens int, tuning Tuning, log *slog.Logger) []PreviewDebug {
	out := make([]PreviewDebug, len(order))
	var g errgroup.Group
	for i, model := range order {
		i, model := i, model
		g.Go(func() error {
			out[i] = o.runOnePreview(ctx, query, model, i, len(order), adaptiveMinTokens, tuning, log)
			return nil
		})
	}
	_ = g.Wait()
	return out
}

func (o *Orchestrator) runOnePreview(ctx context.Context, query, model string, index, total, adaptiveMinTokens int, tuning Tuning, log *slog.Logger) PreviewDebug {
	var cacheKey string
	if o.Cache != nil {
		cacheKey = previewcache.MakeKey(query, model, adaptiveMinTokens)
		if tokens, text, ok := o.Cache.Get(ctx, cacheKey); ok {
			return PreviewDebug{Model: model, Text: text, Tokens: tokens, Cached: true}
		}
	}

	previewCtx := ctx
	if tuning.PreviewTimeout > 0 {
		var cancel context.CancelFunc
		previewCtx, cancel = context.WithTimeout(ctx, tuning.PreviewTimeout)
		defer cancel()
	}

	spanCtx, endSpan := racetracing.StartSpan(previewCtx, "race.preview")
	label := candidateLabel(index)
	a := o.Factory.NewAgent(label, model, instructions.Preview(label, total, adaptiveMinTokens))
	result, err := streaming.Run(spanCtx, a, query, streaming.Options{
		StopAfterTokens: adaptiveMinTokens,
		CaptureText:     true,
		LogEveryTokens:  50,
		Phase:           "preview",
	})
	endSpan(err)
	if err != nil {
		log.Warn("preview stream failed", "error", &PreviewStreamError{Model: model, Err: err})
		if o.Metrics != nil {
			o.Metrics.PreviewsTotal.WithLabelValues(model, "error").Inc()
		}
		return PreviewDebug{Model: model, Failed: true}
	}

	latencyS := result.Latency.Seconds()
	if o.Latency != nil {
		o.Latency.Record(model, latencyS)
	}
	if o.Metrics != nil {
		o.Metrics.PreviewsTotal.WithLabelValues(model, "ok").Inc()
		o.Metrics.PreviewLatencySeconds.WithLabelValues(model).Observe(latencyS)
	}
	if o.Cache != nil {
		o.Cache.Set(ctx, cacheKey, result.Tokens, result.Text)
	}
	return PreviewDebug{
		Model:     model,
		Text:      result.Text,
		Tokens:    result.Tokens,
		LatencyS:  latencyS,
		Citations: toCitations(result.Citations),
	}
}

// runFullStage runs the full-answer stage: speculative top-K when the
// query is long enough and there are at least two ranked candidates,
// else strict sequential fallback over the full ranked order.
func (o *Orchestrator) runFullStage(ctx context.Context, query string, rankedModels []string, tuning Tuning, log *slog.Logger) (streaming.Result, int, []int, error) {
	speculative := len(query) >= tuning.SpeculativeMinQueryLen && len(rankedModels) >= 2
	total := len(rankedModels)

	if !speculative {
		result, pos, failed, ok := o.runSequential(ctx, query, rankedModels, 0, total, tuning, log)
		if !ok {
			return streaming.Result{}, 0, nil, &AllFullFailedError{FailedModels: rankedModels}
		}
		return result, pos, failed, nil
	}

	k := tuning.SpeculativeTopK
	if k > len(rankedModels) {
		k = len(rankedModels)
	}
	result, pos, failed, ok := o.runSpeculative(ctx, query, rankedModels[:k], total, tuning, log)
	if ok {
		return result, pos, failed, nil
	}

	// Every speculative attempt failed: fall back sequentially over the
	// remainder of the ranked order that speculation never attempted.
	result2, pos2, failed2, ok2 := o.runSequential(ctx, query, rankedModels[k:], k, total, tuning, log)
	allFailed := append(failed, failed2...)
	if !ok2 {
		names := make([]string, 0, len(allFailed))
		for _, idx := range allFailed {
			names = append(names, rankedModels[idx])
		}
		return streaming.Result{}, 0, nil, &AllFullFailedError{FailedModels: names}
	}
	return result2, pos2, allFailed, nil
}

// runSequential tries models (whose absolute position in the ranked
// order starts at baseOffset) one at a time, returning the absolute
// position of the first success. ok is false when every model failed.
func (o *Orchestrator) runSequential(ctx context.Context, query string, models []string, baseOffset, total int, tuning Tuning, log *slog.Logger) (streaming.Result, int, []int, bool) {
	var failed []int
	for i, model := range models {
		pos := baseOffset + i
		result, err := o.runOneFull(ctx, query, model, pos, total, tuning)
		if err != nil {
			log.Warn("full stream failed", "error", &FullStreamError{Model: model, Err: err})
			failed = append(failed, pos)
			continue
		}
		return result, pos, failed, true
	}
	return streaming.Result{}, 0, failed, false
}

// runSpeculative races models concurrently and returns as soon as one
// succeeds, cancelling the rest (their output is discarded; they finish
// in the background with cancellation swallowed rather than blocking
// the caller on them, per spec.md §5's first-success-wins join). ok is
// false only once every one of models has reported failure.
func (o *Orchestrator) runSpeculative(ctx context.Context, query string, models []string, total int, tuning Tuning, log *slog.Logger) (streaming.Result, int, []int, bool) {
	type outcome struct {
		pos    int
		result streaming.Result
		err    error
	}

	specCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	ch := make(chan outcome, len(models))
	var wg sync.WaitGroup
	for i, model := range models {
		wg.Add(1)
		go func(i int, model string) {
			defer wg.Done()
			result, err := o.runOneFull(specCtx, query, model, i, total, tuning)
			select {
			case ch <- outcome{pos: i, result: result, err: err}:
			default:
			}
		}(i, model)
	}
	go func() {
		wg.Wait()
		close(ch)
	}()

	var failed []int
	for oc := range ch {
		if oc.err != nil {
			log.Warn("speculative full stream failed", "error", &FullStreamError{Model: models[oc.pos], Err: oc.err})
			failed = append(failed, oc.pos)
			continue
		}
		return oc.result, oc.pos, failed, true
	}
	return streaming.Result{}, 0, failed, false
}

func (o *Orchestrator) runOneFull(ctx context.Context, query, model string, position, total int, tuning Tuning) (streaming.Result, error) {
	fullCtx := ctx
	if tuning.FullTimeout > 0 {
		var cancel context.CancelFunc
		fullCtx, cancel = context.WithTimeout(ctx, tuning.FullTimeout)
		defer cancel()
	}
	spanCtx, endSpan := racetracing.StartSpan(fullCtx, "race.full_answer")
	label := candidateLabel(position)
	a := o.Factory.NewAgent(label, model, instructions.FullRun(label, total))
	result, err := streaming.Run(spanCtx, a, query, streaming.Options{CaptureText: true, LogEveryTokens: 200, Phase: "full"})
	endSpan(err)
	return result, err
}

// emitRewards composes and applies bandit rewards after the full stage
// concludes, once per (query, arm), per spec.md §5's ordering guarantee.
// adaptiveMinTokens (not the configured baseline) is the cost-term
// denominator, matching the original implementation's race.py, which
// passes the same per-call adaptive budget into compute_rewards.
func (o *Orchestrator) emitRewards(query string, order []string, previews []PreviewDebug, verdict judge.Verdict, failedFullIndices []int, adaptiveMinTokens int, x []float64) {
	if o.Reward == nil {
		return
	}
	overallByIndex := make(map[int]float64, len(verdict.Scores))
	for _, s := range verdict.Scores {
		overallByIndex[s.Index] = s.Overall
	}
	failedSet := make(map[int]bool, len(failedFullIndices))
	for _, idx := range failedFullIndices {
		failedSet[idx] = true
	}

	candidates := make([]reward.Candidate, len(order))
	for i, model := range order {
		candidates[i] = reward.Candidate{
			Model:         model,
			JudgeOverall:  overallByIndex[i],
			PreviewTokens: previews[i].Tokens,
			Failed:        failedSet[i],
		}
	}
	rewards := o.Reward.ComputeRewards(query, candidates, adaptiveMinTokens)
	o.Router.BulkUpdate(x, rewards)

	if o.Metrics != nil {
		for model, r := range rewards {
			o.Metrics.BanditReward.WithLabelValues(model).Observe(r)
		}
	}
}

// collectCitations merges citations surfaced during streaming (tool
// results, inline annotations) with anything extractable from the raw
// text, across every preview and the full answer, per spec.md §4.1
// step 7.
func (o *Orchestrator) collectCitations(previews []PreviewDebug, full streaming.Result) []citations.Citation {
	lists := make([][]citations.Citation, 0, len(previews)*2+2)
	for _, p := range previews {
		lists = append(lists, p.Citations, citations.ExtractFromText(p.Text))
	}
	lists = append(lists, toCitations(full.Citations), citations.ExtractFromText(full.Text))
	return citations.Merge(lists...)
}

func toCitations(cs []agent.Citation) []citations.Citation {
	if len(cs) == 0 {
		return nil
	}
	out := make([]citations.Citation, len(cs))
	for i, c := range cs {
		out[i] = citations.Citation{Title: c.Title, URL: c.URL}
	}
	return out
}

func candidateLabel(index int) string {
	return fmt.Sprintf("candidate %d", index+1)
}

func indexOf(list []string, v string) int {
	for i, s := range list {
		if s == v {
			return i
		}
	}
	return -1
}

func tokensOf(previews []PreviewDebug) []int {
	out := make([]int, len(previews))
	for i, p := range previews {
		out[i] = p.Tokens
	}
	return out
}

func latenciesOf(previews []PreviewDebug) []float64 {
	out := make([]float64, len(previews))
	for i, p := range previews {
		out[i] = p.LatencyS
	}
	return out
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
