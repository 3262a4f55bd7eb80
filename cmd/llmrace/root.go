package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	anthropicsdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/llmrace/llmrace/internal/agent"
	"github.com/llmrace/llmrace/internal/agent/anthropicagent"
	"github.com/llmrace/llmrace/internal/agent/openaiagent"
	"github.com/llmrace/llmrace/internal/bandit"
	"github.com/llmrace/llmrace/internal/features"
	"github.com/llmrace/llmrace/internal/latencystore"
	"github.com/llmrace/llmrace/internal/previewcache"
	"github.com/llmrace/llmrace/internal/race"
	"github.com/llmrace/llmrace/internal/racelog"
	"github.com/llmrace/llmrace/internal/racemetrics"
	"github.com/llmrace/llmrace/internal/racetracing"
	"github.com/llmrace/llmrace/internal/raceconfig"
	"github.com/llmrace/llmrace/internal/reward"
)

type cliFlags struct {
	judgeModel      string
	models          []string
	minPreviewToks  int
	strategy        string
	alpha           float64
	ridgeLambda     float64
	statePath       string
	lengthThreshold int

	qualityWeight float64
	latencyWeight float64
	costWeight    float64

	fallbackPenalty        float64
	adaptiveMinScale       float64
	adaptiveMaxScale       float64
	latencyBiasScale       float64
	speculativeMinQueryLen int
	speculativeTopK        int
	webSearch              bool

	previewTimeout time.Duration
	fullTimeout    time.Duration

	anthropicAPIKey string
	openaiAPIKey    string
}

func newRootCmd() *cobra.Command {
	var f cliFlags

	cmd := &cobra.Command{
		Use:   "llmrace <query>",
		Short: "Race competing models on a query and pick the best answer",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRace(cmd.Context(), args[0], f)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&f.judgeModel, "judge-model", "", "model used to judge previews (required)")
	flags.StringSliceVar(&f.models, "models", nil, "candidate models to race (required)")
	flags.IntVar(&f.minPreviewToks, "min-preview-tokens", 40, "baseline preview token budget")
	flags.StringVar(&f.strategy, "strategy", "baseline", "candidate ordering strategy: baseline|bandit")
	flags.Float64Var(&f.alpha, "bandit-alpha", 0.5, "LinUCB exploration coefficient")
	flags.Float64Var(&f.ridgeLambda, "bandit-ridge-lambda", 1.0, "LinUCB ridge regularization")
	flags.StringVar(&f.statePath, "bandit-state-path", ".router_state.json", "bandit state file path")
	flags.IntVar(&f.lengthThreshold, "length-threshold", 2000, "query length used to normalize features/latency")
	flags.Float64Var(&f.qualityWeight, "reward-quality-weight", reward.DefaultWeights.Quality, "reward blend: quality weight")
	flags.Float64Var(&f.latencyWeight, "reward-latency-weight", reward.DefaultWeights.Latency, "reward blend: latency weight")
	flags.Float64Var(&f.costWeight, "reward-cost-weight", reward.DefaultWeights.Cost, "reward blend: cost weight")
	flags.Float64Var(&f.fallbackPenalty, "fallback-penalty", 0.05, "reward penalty for a failed full-answer attempt")
	flags.Float64Var(&f.adaptiveMinScale, "adaptive-min-scale", 1.0, "minimum preview-budget scale factor")
	flags.Float64Var(&f.adaptiveMaxScale, "adaptive-max-scale", 3.0, "maximum preview-budget scale factor")
	flags.Float64Var(&f.latencyBiasScale, "latency-bias-scale", 0.0, "bandit selection bias against high-latency arms")
	flags.IntVar(&f.speculativeMinQueryLen, "speculative-min-query-length", 200, "query length (chars) above which top-k full runs race speculatively")
	flags.IntVar(&f.speculativeTopK, "speculative-top-k", 0, "number of full-answer candidates to race speculatively (defaults to SPECULATIVE_TOP_K, 2 if unset)")
	flags.BoolVar(&f.webSearch, "web-search", true, "enable the web_search tool for OpenAI candidates")
	flags.DurationVar(&f.previewTimeout, "preview-timeout", 0, "per-candidate preview timeout (0 disables)")
	flags.DurationVar(&f.fullTimeout, "full-timeout", 0, "per-candidate full-answer timeout (0 disables)")
	flags.StringVar(&f.anthropicAPIKey, "anthropic-api-key", "", "Anthropic API key (defaults to ANTHROPIC_API_KEY)")
	flags.StringVar(&f.openaiAPIKey, "openai-api-key", "", "OpenAI API key (defaults to OPENAI_API_KEY)")

	return cmd
}

func runRace(ctx context.Context, query string, f cliFlags) error {
	cfg, err := raceconfig.Load()
	if err != nil {
		return &race.ConfigError{Reason: err.Error()}
	}
	racelog.SetLevel(cfg.LogLevel)
	if f.speculativeTopK <= 0 {
		f.speculativeTopK = cfg.SpeculativeTopK
	}
	if f.anthropicAPIKey == "" {
		f.anthropicAPIKey = os.Getenv("ANTHROPIC_API_KEY")
	}
	if f.openaiAPIKey == "" {
		f.openaiAPIKey = os.Getenv("OPENAI_API_KEY")
	}

	shutdownTracing, err := racetracing.Setup(racetracing.Config{
		Enabled:     cfg.OTelEnabled,
		Endpoint:    cfg.OTelEndpoint,
		ServiceName: cfg.OTelServiceName,
	})
	if err != nil {
		racelog.Default().Warn("tracing setup failed, continuing without it", "error", err)
	} else {
		defer shutdownTracing(ctx)
	}

	var providerHTTPClient *http.Client
	if cfg.OTelEnabled {
		providerHTTPClient = &http.Client{Transport: racetracing.HTTPTransport(nil)}
	}

	if f.judgeModel == "" || len(f.models) == 0 {
		return &race.ConfigError{Reason: "--judge-model and --models are required"}
	}

	var redisClient *redis.Client
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return &race.ConfigError{Reason: fmt.Sprintf("invalid REDIS_URL: %v", err)}
		}
		redisClient = redis.NewClient(opts)
	}

	metrics := racemetrics.New()
	orch := &race.Orchestrator{
		Factory: &providerFactory{
			anthropicAPIKey: f.anthropicAPIKey,
			openaiAPIKey:    f.openaiAPIKey,
			webSearch:       f.webSearch,
			httpClient:      providerHTTPClient,
		},
		JudgeModel: f.judgeModel,
		Metrics:    metrics,
	}

	if cfg.MetricsAddr != "" {
		server := &http.Server{Addr: cfg.MetricsAddr, Handler: metrics.Handler()}
		go func() {
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				racelog.Default().Warn("metrics server exited", "error", err)
			}
		}()
		racelog.Default().Info("serving prometheus metrics", "addr", cfg.MetricsAddr)
		defer server.Close()
	}

	latency := latencystore.New(cfg.RouterMetricsPath)
	orch.Latency = latency

	priceTable := cfg.ModelPriceUSDPerToken
	orch.Reward = reward.NewPolicy(
		reward.Weights{Quality: f.qualityWeight, Latency: f.latencyWeight, Cost: f.costWeight},
		f.fallbackPenalty, f.lengthThreshold, priceTable, latency,
	)

	if redisClient != nil {
		orch.Cache = previewcache.New(redisClient, time.Duration(cfg.PreviewCacheTTLS)*time.Second)
	}

	strategy := race.StrategyBaseline
	if f.strategy == string(race.StrategyBandit) {
		strategy = race.StrategyBandit
		featureComputer := features.NewLengthFeatures(f.lengthThreshold)
		orch.Features = featureComputer
		if cfg.BanditFeatures == "embedding" {
			racelog.Default().Warn("BANDIT_FEATURES=embedding requires a provider embedder; falling back to length features")
		}

		var persister bandit.Persister
		if redisClient != nil {
			persister = bandit.NewRedisPersister(redisClient, cfg.RouterStateKey, featureComputer.Dimension())
		} else if f.statePath != "" {
			persister = bandit.NewFilePersister(f.statePath)
		}
		router, err := bandit.New(featureComputer.Dimension(), f.alpha, f.ridgeLambda, persister)
		if err != nil {
			return &race.ConfigError{Reason: err.Error()}
		}
		orch.Router = router
	}

	tuning := race.Tuning{
		MinPreviewTokens:       f.minPreviewToks,
		Strategy:               strategy,
		Alpha:                  f.alpha,
		RidgeLambda:            f.ridgeLambda,
		LengthThreshold:        f.lengthThreshold,
		RewardWeights:          reward.Weights{Quality: f.qualityWeight, Latency: f.latencyWeight, Cost: f.costWeight},
		FallbackPenalty:        f.fallbackPenalty,
		AdaptiveMinScale:       f.adaptiveMinScale,
		AdaptiveMaxScale:       f.adaptiveMaxScale,
		LatencyBiasScale:       f.latencyBiasScale,
		SpeculativeMinQueryLen: f.speculativeMinQueryLen,
		SpeculativeTopK:        f.speculativeTopK,
		PreviewTimeout:         f.previewTimeout,
		FullTimeout:            f.fullTimeout,
	}

	result, err := orch.Race(ctx, query, f.models, tuning)
	if err != nil {
		return err
	}

	out, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}

// providerFactory dispatches each model string to the Anthropic or
// OpenAI adapter by name prefix. Unlike the teacher's explicit
// model-to-provider registry (internal/models), this CLI favors a
// lightweight heuristic since it only ever races models the caller
// names on the command line.
type providerFactory struct {
	anthropicAPIKey string
	openaiAPIKey    string
	webSearch       bool
	httpClient      *http.Client
}

func (f *providerFactory) NewAgent(name, model, instructions string) agent.Agent {
	if strings.HasPrefix(model, "claude") {
		return anthropicagent.New(name, f.anthropicAPIKey, anthropicsdk.Model(model), instructions, 4096, f.httpClient)
	}
	return openaiagent.New(name, f.openaiAPIKey, model, instructions, f.webSearch, f.httpClient)
}
