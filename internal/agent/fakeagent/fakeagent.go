// Package fakeagent provides a deterministic scripted agent.Agent
// implementation for tests, patterned on the test-double style used
// throughout the example pack's judge and provider tests.
package fakeagent

import (
	"context"

	"github.com/llmrace/llmrace/internal/agent"
)

// Agent emits a fixed sequence of text chunks (one TextDelta StreamEvent
// per chunk, emitted exactly as given) and then
// closes. An optional error is delivered after the chunks are drained,
// and citations are emitted as a single SearchResults event before the
// first text chunk when present.
type Agent struct {
	name      string
	model     string
	Chunks    []string
	Citations []agent.Citation
	Err       error
}

// New constructs a fake agent with the given name/model and script.
func New(name, model string, chunks []string) *Agent {
	return &Agent{name: name, model: model, Chunks: chunks}
}

func (a *Agent) Name() string  { return a.name }
func (a *Agent) Model() string { return a.model }

func (a *Agent) RunStreamed(ctx context.Context, prompt string) (<-chan agent.StreamEvent, <-chan error) {
	events := make(chan agent.StreamEvent, len(a.Chunks)+1)
	errc := make(chan error, 1)

	go func() {
		defer close(events)
		defer close(errc)

		if len(a.Citations) > 0 {
			select {
			case events <- agent.StreamEvent{Type: agent.SearchResults, Results: a.Citations}:
			case <-ctx.Done():
				errc <- ctx.Err()
				return
			}
		}
		for _, c := range a.Chunks {
			select {
			case events <- agent.StreamEvent{Type: agent.TextDelta, Text: c}:
			case <-ctx.Done():
				errc <- ctx.Err()
				return
			}
		}
		if a.Err != nil {
			errc <- a.Err
		}
	}()

	return events, errc
}
