// Package streaming consumes an agent's tagged event stream and reduces it
// to a token count, optional captured text, and any citations surfaced
// along the way. It is deliberately blind to provider wire formats: that
// translation happens once, in each agent adapter.
package streaming

import (
	"context"
	"strings"
	"time"

	"github.com/llmrace/llmrace/internal/agent"
	"github.com/llmrace/llmrace/internal/racelog"
	"github.com/llmrace/llmrace/internal/retry"
)

// Options controls one Run call.
type Options struct {
	// StopAfterTokens, when > 0, stops consuming the stream once the
	// running token count reaches it. Zero means run to completion.
	StopAfterTokens int
	// CaptureText accumulates and returns the streamed text.
	CaptureText bool
	// LogEveryTokens throttles progress logging; 0 disables it.
	LogEveryTokens int
	// Phase labels the log lines ("preview", "full" or "judge").
	Phase string
}

// Result is what a stream reduces to.
type Result struct {
	Tokens    int
	Text      string
	Citations []agent.Citation
	Latency   time.Duration
}

func countTokens(s string) int {
	if s == "" {
		return 0
	}
	return len(strings.Fields(s))
}

// Run drives a with prompt to completion or early-stop, retrying the whole
// attempt up to 5 times with exponential jitter (0.2s-3s) against any
// mid-stream error.
func Run(ctx context.Context, a agent.Agent, prompt string, opts Options) (Result, error) {
	var res Result
	err := retry.Do(ctx, 5, 200*time.Millisecond, 3*time.Second, func() error {
		r, err := runOnce(ctx, a, prompt, opts)
		res = r
		return err
	})
	return res, err
}

func runOnce(ctx context.Context, a agent.Agent, prompt string, opts Options) (Result, error) {
	start := time.Now()
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	events, errc := a.RunStreamed(runCtx, prompt)

	var (
		tokens     int
		lastLogged int
		textBuf    strings.Builder
		citations  []agent.Citation
	)

	for ev := range events {
		switch ev.Type {
		case agent.TextDelta:
			if ev.Text == "" {
				continue
			}
			tokens += countTokens(ev.Text)
			if opts.CaptureText {
				textBuf.WriteString(ev.Text)
			}
			if opts.LogEveryTokens > 0 && tokens-lastLogged >= opts.LogEveryTokens {
				logProgress(a, opts, tokens)
				lastLogged = tokens
			}
			if opts.StopAfterTokens > 0 && tokens >= opts.StopAfterTokens {
				cancel()
				goto drained
			}
		case agent.SearchResults:
			citations = append(citations, ev.Results...)
		case agent.Annotation:
			citations = append(citations, ev.Citation)
		}
	}

drained:
	// Drain any buffered error without blocking past what the agent has
	// already produced; cancellation above means a well-behaved adapter
	// closes errc promptly.
	var runErr error
	select {
	case runErr = <-errc:
	default:
	}
	if runErr == nil {
		select {
		case runErr = <-errc:
		case <-time.After(10 * time.Millisecond):
		}
	}
	if runErr == context.Canceled && opts.StopAfterTokens > 0 && tokens >= opts.StopAfterTokens {
		runErr = nil
	}

	text := ""
	if opts.CaptureText {
		text = strings.TrimSpace(textBuf.String())
	}
	return Result{Tokens: tokens, Text: text, Citations: citations, Latency: time.Since(start)}, runErr
}

func logProgress(a agent.Agent, opts Options, tokens int) {
	if opts.StopAfterTokens > 0 {
		racelog.Default().Debug("stream progress",
			"agent", a.Name(), "phase", opts.Phase, "tokens", tokens, "target", opts.StopAfterTokens)
		return
	}
	racelog.Default().Debug("stream progress", "agent", a.Name(), "phase", opts.Phase, "tokens", tokens)
}
