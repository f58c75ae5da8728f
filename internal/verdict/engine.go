package verdict

import (
	"context"
	"log/slog"
)

// Backend is the slice of the access coordinator's handle the engine needs.
type Backend interface {
	Acquire(ctx context.Context, fn func(ctx context.Context) error) error
	Chat(ctx context.Context, system, user string) (string, error)
}

// Engine produces one verdict per specialized perspective from raw
// performance metrics. AI failures are absorbed: callers never receive an
// empty result purely because a backend round trip failed.
type Engine struct {
	backend Backend
	logger  *slog.Logger
}

// NewEngine creates an Engine over the selected backend handle. A nil
// backend means no credentials exist anywhere; Analyze then returns nil,
// the only case where the engine yields no verdicts.
func NewEngine(backend Backend) *Engine {
	return &Engine{backend: backend, logger: slog.Default()}
}

// Analyze asks the backend for verdicts over the metrics in one chat
// request, serialized under the backend's concurrency contract. An
// unreachable backend or an unusable response shape resolves to the
// deterministic fallback set.
func (e *Engine) Analyze(ctx context.Context, in Input) []Verdict {
	if e.backend == nil {
		return nil
	}

	var raw string
	err := e.backend.Acquire(ctx, func(ctx context.Context) error {
		var chatErr error
		raw, chatErr = e.backend.Chat(ctx, systemPrompt, buildUserMessage(in))
		return chatErr
	})
	if err != nil {
		e.logger.Warn("verdict backend call failed, using fallback verdicts", "error", err)
		return fallbackVerdicts()
	}

	verdicts := parseVerdicts(raw)
	if len(verdicts) == 0 {
		e.logger.Warn("verdict response had no usable shape, using fallback verdicts", "response_len", len(raw))
		return fallbackVerdicts()
	}
	return verdicts
}

// fallbackVerdicts is the deterministic three-agent result used when the
// backend is unreachable or unparsable: one WARNING per agent with generic
// but plausible text, so transient AI failure never mutes an analysis run.
func fallbackVerdicts() []Verdict {
	return []Verdict{
		{
			Agent:          AgentAuditor,
			Status:         StatusWarning,
			Thought:        "Automated review was unavailable for this run; account health could not be fully graded.",
			Recommendation: "Re-run the analysis and verify tracking and delivery manually in the meantime.",
			Impact:         "medium",
		},
		{
			Agent:          AgentStrategist,
			Status:         StatusWarning,
			Thought:        "Return-on-spend signals were not reviewed by the model this run.",
			Recommendation: "Rely on the heuristic scaling rules until the next successful analysis.",
			Impact:         "medium",
		},
		{
			Agent:          AgentCreative,
			Status:         StatusWarning,
			Thought:        "Creative fatigue could not be assessed this run.",
			Recommendation: "Check frequency and click-through trends on the longest-running creatives.",
			Impact:         "low",
		},
	}
}
