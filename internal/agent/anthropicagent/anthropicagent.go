// Package anthropicagent adapts github.com/anthropics/anthropic-sdk-go's
// Messages streaming API to the race package's abstract agent.Agent,
// translating SDK-specific stream events into the tagged StreamEvent
// variants named in spec.md §6, the same re-architecture the package
// doc for internal/agent calls for.
package anthropicagent

import (
	"context"
	"net/http"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/llmrace/llmrace/internal/agent"
)

// Agent streams a single Claude Messages turn.
type Agent struct {
	name         string
	client       anthropic.Client
	model        anthropic.Model
	instructions string
	maxTokens    int64
}

// New builds an Agent bound to model, with the given system
// instructions and output token cap (0 or less means 4096). A nil
// httpClient leaves the SDK's own default transport in place; callers
// that want every request traced pass one built with
// racetracing.HTTPTransport.
func New(name string, apiKey string, model anthropic.Model, instructions string, maxTokens int64, httpClient *http.Client) *Agent {
	if maxTokens <= 0 {
		maxTokens = 4096
	}
	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if httpClient != nil {
		opts = append(opts, option.WithHTTPClient(httpClient))
	}
	return &Agent{
		name:         name,
		client:       anthropic.NewClient(opts...),
		model:        model,
		instructions: instructions,
		maxTokens:    maxTokens,
	}
}

func (a *Agent) Name() string  { return a.name }
func (a *Agent) Model() string { return string(a.model) }

// RunStreamed starts one streamed Messages turn and translates content
// block text deltas into TextDelta events. Anthropic's Messages API does
// not surface web-search citations as a distinct server-side event the
// way the OpenAI Responses API does, so SearchResults/Annotation events
// are never emitted here; citations for Claude-backed candidates come
// only from text extraction (internal/citations.ExtractFromText) over
// the streamed text.
func (a *Agent) RunStreamed(ctx context.Context, prompt string) (<-chan agent.StreamEvent, <-chan error) {
	events := make(chan agent.StreamEvent, 16)
	errc := make(chan error, 1)

	go func() {
		defer close(events)
		defer close(errc)

		stream := a.client.Messages.NewStreaming(ctx, anthropic.MessageNewParams{
			Model:     a.model,
			MaxTokens: a.maxTokens,
			System: []anthropic.TextBlockParam{
				{Text: a.instructions},
			},
			Messages: []anthropic.MessageParam{
				anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
			},
		})
		defer stream.Close()

		for stream.Next() {
			event := stream.Current()
			delta, ok := event.AsAny().(anthropic.ContentBlockDeltaEvent)
			if !ok {
				continue
			}
			text := delta.Delta.Text
			if text == "" {
				continue
			}
			select {
			case events <- agent.StreamEvent{Type: agent.TextDelta, Text: text}:
			case <-ctx.Done():
				errc <- ctx.Err()
				return
			}
		}
		if err := stream.Err(); err != nil {
			errc <- err
		}
	}()

	return events, errc
}
