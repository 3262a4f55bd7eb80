// Package openaiagent adapts github.com/openai/openai-go/v2's Responses
// streaming API to the race package's abstract agent.Agent, recognizing
// the three event kinds named in spec.md §6: text deltas, web-search
// tool completions, and inline url_citation annotations.
package openaiagent

import (
	"context"
	"net/http"

	"github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"
	"github.com/openai/openai-go/v2/responses"

	"github.com/llmrace/llmrace/internal/agent"
)

// Agent streams a single Responses API turn, optionally with the
// web_search tool enabled.
type Agent struct {
	name         string
	client       openai.Client
	model        string
	instructions string
	webSearch    bool
}

// New builds an Agent bound to model. When webSearch is true the
// web_search tool is attached so the model can surface citations via
// annotation/tool-completion events. A nil httpClient leaves the SDK's
// own default transport in place; callers that want every request
// traced pass one built with racetracing.HTTPTransport.
func New(name, apiKey, model, instructions string, webSearch bool, httpClient *http.Client) *Agent {
	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if httpClient != nil {
		opts = append(opts, option.WithHTTPClient(httpClient))
	}
	return &Agent{
		name:         name,
		client:       openai.NewClient(opts...),
		model:        model,
		instructions: instructions,
		webSearch:    webSearch,
	}
}

func (a *Agent) Name() string  { return a.name }
func (a *Agent) Model() string { return a.model }

func (a *Agent) RunStreamed(ctx context.Context, prompt string) (<-chan agent.StreamEvent, <-chan error) {
	events := make(chan agent.StreamEvent, 16)
	errc := make(chan error, 1)

	go func() {
		defer close(events)
		defer close(errc)

		params := responses.ResponseNewParams{
			Model:        a.model,
			Instructions: openai.String(a.instructions),
			Input: responses.ResponseNewParamsInputUnion{
				OfString: openai.String(prompt),
			},
		}
		if a.webSearch {
			params.Tools = []responses.ToolUnionParam{
				{OfWebSearch: &responses.WebSearchToolParam{Type: responses.WebSearchToolTypeWebSearch}},
			}
		}

		stream := a.client.Responses.NewStreaming(ctx, params)
		defer stream.Close()

		for stream.Next() {
			event := stream.Current()
			if ev, ok := translate(event); ok {
				select {
				case events <- ev:
				case <-ctx.Done():
					errc <- ctx.Err()
					return
				}
			}
		}
		if err := stream.Err(); err != nil {
			errc <- err
		}
	}()

	return events, errc
}

// translate maps one Responses API stream event onto the tagged
// StreamEvent variants; events this adapter does not care about (output
// item lifecycle markers, reasoning, etc.) return ok=false.
func translate(event responses.ResponseStreamEventUnion) (agent.StreamEvent, bool) {
	switch e := event.AsAny().(type) {
	case responses.ResponseTextDeltaEvent:
		if e.Delta == "" {
			return agent.StreamEvent{}, false
		}
		return agent.StreamEvent{Type: agent.TextDelta, Text: e.Delta}, true

	case responses.ResponseOutputItemDoneEvent:
		if e.Item.Type != "web_search_call" {
			return agent.StreamEvent{}, false
		}
		var results []agent.Citation
		for _, src := range e.Item.Action.Sources {
			if src.URL == "" {
				continue
			}
			results = append(results, agent.Citation{Title: src.Title, URL: src.URL})
		}
		if len(results) == 0 {
			return agent.StreamEvent{}, false
		}
		return agent.StreamEvent{Type: agent.SearchResults, Results: results}, true

	case responses.ResponseOutputTextAnnotationAddedEvent:
		if e.Annotation.Type != "url_citation" || e.Annotation.URL == "" {
			return agent.StreamEvent{}, false
		}
		return agent.StreamEvent{
			Type:     agent.Annotation,
			Citation: agent.Citation{Title: e.Annotation.Title, URL: e.Annotation.URL},
		}, true

	default:
		return agent.StreamEvent{}, false
	}
}
