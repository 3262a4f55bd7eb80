// Package racelog is the structured logger every component in this module
// shares, adapted from the teacher's internal/logging: a JSON slog handler
// wrapped in a RedactingHandler so API keys, tokens, and raw prompt/response
// bodies never reach stdout, plus dynamic level control via slog.LevelVar.
package racelog

import (
	"context"
	"log/slog"
	"os"
	"strings"
	"sync"
)

var sensitiveKeys = map[string]bool{
	"authorization": true,
	"x-api-key":     true,
	"api_key":       true,
	"cookie":        true,
}

var globalLevel = new(slog.LevelVar)

var (
	mu      sync.Mutex
	current *slog.Logger
)

// Setup initializes the shared logger at the given level ("debug", "warn",
// "error"; anything else maps to "info") and installs it as both this
// package's default and slog's global default.
func Setup(level string) *slog.Logger {
	SetLevel(level)
	base := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: globalLevel})
	logger := slog.New(&RedactingHandler{base: base})
	mu.Lock()
	current = logger
	mu.Unlock()
	slog.SetDefault(logger)
	return logger
}

// SetLevel changes the shared logger's level at runtime.
func SetLevel(level string) {
	switch level {
	case "debug":
		globalLevel.Set(slog.LevelDebug)
	case "warn":
		globalLevel.Set(slog.LevelWarn)
	case "error":
		globalLevel.Set(slog.LevelError)
	default:
		globalLevel.Set(slog.LevelInfo)
	}
}

// Default returns the shared logger, initializing it at info level on
// first use so packages can log before main() calls Setup explicitly.
func Default() *slog.Logger {
	mu.Lock()
	defer mu.Unlock()
	if current == nil {
		mu.Unlock()
		Setup("info")
		mu.Lock()
	}
	return current
}

// RedactingHandler wraps an slog.Handler to strip sensitive attribute
// values before they reach the base handler.
type RedactingHandler struct {
	base slog.Handler
}

func (h *RedactingHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.base.Enabled(ctx, level)
}

func (h *RedactingHandler) Handle(ctx context.Context, r slog.Record) error {
	redacted := slog.NewRecord(r.Time, r.Level, r.Message, r.PC)
	r.Attrs(func(a slog.Attr) bool {
		redacted.AddAttrs(redactAttr(a))
		return true
	})
	return h.base.Handle(ctx, redacted)
}

func (h *RedactingHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	red := make([]slog.Attr, len(attrs))
	for i, a := range attrs {
		red[i] = redactAttr(a)
	}
	return &RedactingHandler{base: h.base.WithAttrs(red)}
}

func (h *RedactingHandler) WithGroup(name string) slog.Handler {
	return &RedactingHandler{base: h.base.WithGroup(name)}
}

func redactAttr(a slog.Attr) slog.Attr {
	key := strings.ToLower(a.Key)
	if sensitiveKeys[key] {
		return slog.String(a.Key, "[REDACTED]")
	}
	if key == "prompt" || key == "body" || key == "preview_text" || key == "full_text" {
		return slog.String(a.Key, "[REDACTED]")
	}
	if strings.Contains(key, "key") || strings.Contains(key, "token") ||
		strings.Contains(key, "secret") || strings.Contains(key, "password") {
		return slog.String(a.Key, "[REDACTED]")
	}
	return a
}
