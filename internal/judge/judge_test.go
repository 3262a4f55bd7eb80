package judge

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/llmrace/llmrace/internal/agent/fakeagent"
)

func TestEvaluateParsesDirectJSON(t *testing.T) {
	a := fakeagent.New("judge", "gpt-J", []string{
		`{"winner_index":0,"scores":[{"index":0,"relevance":1,"coverage":1,"faithfulness":1,"overall":1}]}`,
	})
	v, err := Evaluate(context.Background(), a, "q", []string{"{}"})
	require.NoError(t, err)
	require.Equal(t, 0, v.WinnerIndex)
}

func TestEvaluateParsesEmbeddedJSON(t *testing.T) {
	a := fakeagent.New("judge", "gpt-J", []string{
		"Sure, here is my verdict:\n",
		`{"winner_index":1,"scores":[{"index":0,"overall":0.2},{"index":1,"overall":0.9}]}`,
		"\nHope that helps!",
	})
	v, err := Evaluate(context.Background(), a, "q", []string{"{}", "{}"})
	require.NoError(t, err)
	require.Equal(t, 1, v.WinnerIndex)
}

func TestEvaluateRejectsOutOfRangeIndex(t *testing.T) {
	a := fakeagent.New("judge", "gpt-J", []string{
		`{"winner_index":5,"scores":[]}`,
	})
	_, err := Evaluate(context.Background(), a, "q", []string{"{}"})
	require.Error(t, err)
}

func TestComputeCandidateOrderSortsByOverallDescending(t *testing.T) {
	v := Verdict{Scores: []Scores{{Index: 0, Overall: 0.5}, {Index: 1, Overall: 0.9}}}
	order := ComputeCandidateOrder(v, 2)
	require.Equal(t, []int{1, 0}, order)
}

func TestComputeCandidateOrderDefaultsMissingToZero(t *testing.T) {
	v := Verdict{Scores: []Scores{{Index: 1, Overall: 0.3}}}
	order := ComputeCandidateOrder(v, 3)
	require.Equal(t, 1, order[0])
}
