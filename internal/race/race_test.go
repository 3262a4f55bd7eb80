package race_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/llmrace/llmrace/internal/agent"
	"github.com/llmrace/llmrace/internal/agent/fakeagent"
	"github.com/llmrace/llmrace/internal/bandit"
	"github.com/llmrace/llmrace/internal/features"
	"github.com/llmrace/llmrace/internal/race"
	"github.com/llmrace/llmrace/internal/reward"
)

// scriptedFactory builds a canned agent per model, ignoring the
// name/instructions arguments the orchestrator supplies: tests only
// care about what each model "says" when streamed.
type scriptedFactory struct {
	byModel map[string]func() agent.Agent
}

func (f *scriptedFactory) NewAgent(_, model, _ string) agent.Agent {
	if build, ok := f.byModel[model]; ok {
		return build()
	}
	return fakeagent.New(model, model, nil)
}

func helloWorldFake(model string) func() agent.Agent {
	return func() agent.Agent {
		return fakeagent.New(model, model, []string{"hello ", "world ", "from fake"})
	}
}

const singleWinnerVerdict = `{"winner_index":0,"scores":[{"index":0,"relevance":1,"coverage":1,"faithfulness":1,"overall":1}]}`

func judgeScript(verdict string) func() agent.Agent {
	return func() agent.Agent {
		return fakeagent.New("judge", "gpt-J", []string{verdict})
	}
}

func TestBaselineTwoArmsBothStream(t *testing.T) {
	factory := &scriptedFactory{byModel: map[string]func() agent.Agent{
		"gpt-a": helloWorldFake("gpt-a"),
		"gpt-b": helloWorldFake("gpt-b"),
		"gpt-J": judgeScript(singleWinnerVerdict),
	}}
	orch := &race.Orchestrator{Factory: factory, JudgeModel: "gpt-J"}

	result, err := orch.Race(context.Background(), "what is test?", []string{"gpt-a", "gpt-b"}, race.Tuning{})
	require.NoError(t, err)
	require.Equal(t, 0, result.WinnerIndex)
	require.Equal(t, []int{4, 4}, result.Debug.Tokens)
	require.Empty(t, result.Debug.Citations)
}

func TestBanditStrategyLengthFeatures(t *testing.T) {
	factory := &scriptedFactory{byModel: map[string]func() agent.Agent{
		"gpt-a": helloWorldFake("gpt-a"),
		"gpt-b": helloWorldFake("gpt-b"),
		"gpt-J": judgeScript(singleWinnerVerdict),
	}}
	lengthFeatures := features.NewLengthFeatures(0)
	router, err := bandit.New(lengthFeatures.Dimension(), 0.5, 1e-2, nil)
	require.NoError(t, err)
	orch := &race.Orchestrator{
		Factory:    factory,
		JudgeModel: "gpt-J",
		Features:   lengthFeatures,
		Router:     router,
		Reward:     reward.NewPolicy(reward.DefaultWeights, 0.05, 0, nil, nil),
	}

	result, err := orch.Race(context.Background(), "what is test?", []string{"gpt-a", "gpt-b"}, race.Tuning{Strategy: race.StrategyBandit})
	require.NoError(t, err)
	require.Contains(t, []int{0, 1}, result.WinnerIndex)
	require.Equal(t, "bandit", result.Debug.Strategy)
	require.Len(t, result.Debug.LatenciesS, 2)
}

func TestConfigErrorOnEmptyModels(t *testing.T) {
	orch := &race.Orchestrator{Factory: &scriptedFactory{byModel: map[string]func() agent.Agent{}}, JudgeModel: "gpt-J"}
	_, err := orch.Race(context.Background(), "q", nil, race.Tuning{})
	var cfgErr *race.ConfigError
	require.ErrorAs(t, err, &cfgErr)
}

func TestAllFullFailedIsFatal(t *testing.T) {
	erroringTwice := &scriptedFactory{byModel: map[string]func() agent.Agent{
		"gpt-a": func() agent.Agent {
			a := fakeagent.New("gpt-a", "gpt-a", []string{"ok"})
			a.Err = errors.New("boom")
			return a
		},
		"gpt-b": func() agent.Agent {
			a := fakeagent.New("gpt-b", "gpt-b", []string{"ok"})
			a.Err = errors.New("boom")
			return a
		},
		"gpt-J": judgeScript(singleWinnerVerdict),
	}}
	orch := &race.Orchestrator{Factory: erroringTwice, JudgeModel: "gpt-J"}

	_, err := orch.Race(context.Background(), "q", []string{"gpt-a", "gpt-b"}, race.Tuning{})
	var allFailed *race.AllFullFailedError
	require.ErrorAs(t, err, &allFailed)
}

// slowAgent delays the start of its inner agent's stream, used to make
// full-answer completion order deterministic in the speculative test
// below.
type slowAgent struct {
	inner agent.Agent
	delay time.Duration
}

func (s *slowAgent) Name() string  { return s.inner.Name() }
func (s *slowAgent) Model() string { return s.inner.Model() }

func (s *slowAgent) RunStreamed(ctx context.Context, prompt string) (<-chan agent.StreamEvent, <-chan error) {
	events := make(chan agent.StreamEvent)
	errc := make(chan error, 1)
	go func() {
		defer close(events)
		defer close(errc)
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			errc <- ctx.Err()
			return
		}
		innerEvents, innerErr := s.inner.RunStreamed(ctx, prompt)
		for ev := range innerEvents {
			events <- ev
		}
		if err := <-innerErr; err != nil {
			errc <- err
		}
	}()
	return events, errc
}

func TestSpeculativeWinByNonFirstCandidate(t *testing.T) {
	factory := &scriptedFactory{byModel: map[string]func() agent.Agent{
		"gpt-a": func() agent.Agent {
			return &slowAgent{inner: fakeagent.New("gpt-a", "gpt-a", []string{"slow winner text"}), delay: 60 * time.Millisecond}
		},
		"gpt-b": helloWorldFake("gpt-b"),
		"gpt-J": judgeScript(singleWinnerVerdict), // ranks gpt-a (index 0) first
	}}
	orch := &race.Orchestrator{Factory: factory, JudgeModel: "gpt-J"}

	longQuery := strings.Repeat("word ", 60) // > default speculative_min_query_length (200 chars)
	result, err := orch.Race(context.Background(), longQuery, []string{"gpt-a", "gpt-b"}, race.Tuning{})
	require.NoError(t, err)
	require.Equal(t, "gpt-b", result.WinnerName, "expected gpt-b (faster, non-first in order) to win")
	require.Empty(t, result.Debug.FailedFullIndices)
}
