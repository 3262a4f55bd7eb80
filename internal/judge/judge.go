// Package judge sends candidate previews to a judge agent, parses the
// structured verdict it streams back, and derives a candidate order.
// Grounded on the original implementation's judge.py (payload shape,
// tolerant JSON extraction, retry budget) and the teacher's
// internal/router/format.go (embedded-JSON-block extraction convention).
package judge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/xeipuuv/gojsonschema"

	"github.com/llmrace/llmrace/internal/agent"
	"github.com/llmrace/llmrace/internal/racelog"
	"github.com/llmrace/llmrace/internal/retry"
	"github.com/llmrace/llmrace/internal/streaming"
)

// verdictSchema is the shape judge verdicts must conform to before
// validate() even looks at index bounds or metric ranges: a judge that
// returns the right JSON object but the wrong field types (a string where
// a number belongs, say) fails here with a precise reason instead of a
// confusing unmarshal error downstream.
var verdictSchema = gojsonschema.NewStringLoader(`{
	"type": "object",
	"required": ["winner_index", "scores"],
	"properties": {
		"winner_index": {"type": "integer"},
		"scores": {
			"type": "array",
			"items": {
				"type": "object",
				"required": ["index", "overall"],
				"properties": {
					"index": {"type": "integer"},
					"relevance": {"type": "number"},
					"coverage": {"type": "number"},
					"faithfulness": {"type": "number"},
					"overall": {"type": "number"}
				}
			}
		}
	}
}`)

// ErrUnparseable is returned when the judge's streamed output never
// yields a valid JSON object, even after retries.
var ErrUnparseable = errors.New("judge: output not valid JSON after retries")

// candidatePayload mirrors judge.py's {query, candidates:[{index,
// preview_json}]} request shape.
type candidatePayload struct {
	Query      string            `json:"query"`
	Candidates []candidateStruct `json:"candidates"`
}

type candidateStruct struct {
	Index      int    `json:"index"`
	PreviewRaw string `json:"preview_json"`
}

// Evaluate sends previews to judgeAgent and returns the parsed Verdict.
// The whole call (stream + parse) is retried up to 3 times with
// exponential jitter (0.2s-2.5s) on any error, including a parse failure.
func Evaluate(ctx context.Context, judgeAgent agent.Agent, query string, previews []string) (Verdict, error) {
	payload := candidatePayload{Query: query, Candidates: make([]candidateStruct, len(previews))}
	for i, p := range previews {
		if p == "" {
			p = "{}"
		}
		payload.Candidates[i] = candidateStruct{Index: i, PreviewRaw: p}
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return Verdict{}, fmt.Errorf("judge: marshal payload: %w", err)
	}

	var verdict Verdict
	err = retry.Do(ctx, 3, 200*time.Millisecond, 2500*time.Millisecond, func() error {
		result, runErr := streaming.Run(ctx, judgeAgent, string(body), streaming.Options{CaptureText: true, Phase: "judge"})
		if runErr != nil {
			return runErr
		}
		data, ok := extractJSONObject(result.Text)
		if !ok {
			return ErrUnparseable
		}
		shapeResult, schemaErr := gojsonschema.Validate(verdictSchema, gojsonschema.NewBytesLoader(data))
		if schemaErr != nil {
			return fmt.Errorf("%w: schema check: %v", ErrUnparseable, schemaErr)
		}
		if !shapeResult.Valid() {
			return fmt.Errorf("%w: %v", ErrUnparseable, shapeResult.Errors())
		}
		var v Verdict
		if err := json.Unmarshal(data, &v); err != nil {
			return fmt.Errorf("%w: %v", ErrUnparseable, err)
		}
		if err := validate(v, len(previews)); err != nil {
			return err
		}
		verdict = v
		return nil
	})
	if err != nil {
		return Verdict{}, err
	}

	racelog.Default().Info("judge verdict", "winner_index", verdict.WinnerIndex, "num_scores", len(verdict.Scores))
	return verdict, nil
}

func validate(v Verdict, numCandidates int) error {
	if v.WinnerIndex < 0 || v.WinnerIndex >= numCandidates {
		return fmt.Errorf("%w: winner_index %d out of range [0,%d)", ErrUnparseable, v.WinnerIndex, numCandidates)
	}
	for _, s := range v.Scores {
		if s.Index < 0 || s.Index >= numCandidates {
			return fmt.Errorf("%w: score index %d out of range", ErrUnparseable, s.Index)
		}
		for _, metric := range []float64{s.Relevance, s.Coverage, s.Faithfulness, s.Overall} {
			if metric < 0 || metric > 1 {
				return fmt.Errorf("%w: metric %f out of [0,1]", ErrUnparseable, metric)
			}
		}
	}
	return nil
}

// extractJSONObject tries a literal parse first, then the substring
// between the first '{' and the last '}', matching judge.py's
// _extract_json_object fallback.
func extractJSONObject(text string) (json.RawMessage, bool) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, false
	}
	if json.Valid([]byte(text)) {
		return json.RawMessage(text), true
	}
	start := strings.IndexByte(text, '{')
	end := strings.LastIndexByte(text, '}')
	if start == -1 || end == -1 || end <= start {
		return nil, false
	}
	snippet := text[start : end+1]
	if !json.Valid([]byte(snippet)) {
		return nil, false
	}
	return json.RawMessage(snippet), true
}

// ComputeCandidateOrder returns a stable permutation of [0, totalCandidates)
// sorted by each candidate's scores[i].Overall descending; an index with
// no score defaults to 0.
func ComputeCandidateOrder(verdict Verdict, totalCandidates int) []int {
	overall := make([]float64, totalCandidates)
	for _, s := range verdict.Scores {
		if s.Index >= 0 && s.Index < totalCandidates {
			overall[s.Index] = s.Overall
		}
	}
	order := make([]int, totalCandidates)
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(i, j int) bool {
		return overall[order[i]] > overall[order[j]]
	})
	return order
}
