// Package run drives one provider run from submission to a terminal
// state and converts its progress into an ordered frame stream.
package run

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/folioworks/portfolio-assistant/internal/model"
	"github.com/folioworks/portfolio-assistant/internal/provider"
	"github.com/folioworks/portfolio-assistant/internal/tools"
	"github.com/folioworks/portfolio-assistant/pkg/logger"
	"github.com/folioworks/portfolio-assistant/pkg/metrics"
)

// ErrTimeout marks a run that exceeded the wait budget. Treated like any
// provider failure but tagged distinctly for observability.
var ErrTimeout = errors.New("run exceeded wait budget")

// Config bounds the polling loop.
type Config struct {
	PollInterval time.Duration
	MaxWait      time.Duration
}

// Hooks receive engine events while a run is in flight. OnContent errors
// abort the run (the push channel is gone, further provider polling is
// wasted); OnToolCall is informational.
type Hooks struct {
	OnContent  func(delta string) error
	OnToolCall func(call model.ToolCall)
}

// Result is the terminal output of a completed run.
type Result struct {
	Text  string
	Usage model.Usage
}

// Engine is the run state machine driver.
type Engine struct {
	provider   provider.Provider
	dispatcher *tools.Dispatcher
	cfg        Config
	log        *logger.Logger
}

// NewEngine creates a run engine.
func NewEngine(prov provider.Provider, dispatcher *tools.Dispatcher, cfg Config, log *logger.Logger) *Engine {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 500 * time.Millisecond
	}
	if cfg.MaxWait <= 0 {
		cfg.MaxWait = 90 * time.Second
	}
	return &Engine{
		provider:   prov,
		dispatcher: dispatcher,
		cfg:        cfg,
		log:        log.With("component", "run_engine"),
	}
}

// Execute submits prompt to the provider conversation and drives the run
// to a terminal state, surfacing incremental content through hooks as it
// becomes available. Tool-call batches are executed call-by-call with
// independent failure handling and always submitted whole.
func (e *Engine) Execute(ctx context.Context, conversationID, prompt, userID string, hooks Hooks) (*Result, error) {
	start := time.Now()
	emitted := 0

	snap, err := e.provider.SubmitTurn(ctx, conversationID, prompt)
	if err != nil {
		e.recordTerminal(start, model.RunStateFailed, "submit", model.Usage{})
		return nil, fmt.Errorf("failed to submit turn: %w", err)
	}

	for {
		if err := e.emitDelta(snap, &emitted, hooks); err != nil {
			e.recordTerminal(start, model.RunStateFailed, "client_gone", snap.Usage)
			return nil, fmt.Errorf("content delivery failed: %w", err)
		}

		switch snap.State {
		case model.RunStateCompleted:
			e.recordTerminal(start, model.RunStateCompleted, "", snap.Usage)
			return &Result{Text: snap.OutputText, Usage: snap.Usage}, nil

		case model.RunStateFailed:
			e.recordTerminal(start, model.RunStateFailed, "provider", snap.Usage)
			reason := snap.FailureReason
			if reason == "" {
				reason = "provider reported failure"
			}
			return nil, fmt.Errorf("run %s failed: %s", snap.ID, reason)

		case model.RunStateRequiresAction:
			snap, err = e.resumeWithToolOutputs(ctx, snap, userID, hooks)
			if err != nil {
				e.recordTerminal(start, model.RunStateFailed, "tool_resume", model.Usage{})
				return nil, err
			}

		case model.RunStateQueued, model.RunStateInProgress:
			if time.Since(start) > e.cfg.MaxWait {
				e.recordTerminal(start, model.RunStateFailed, "timeout", snap.Usage)
				return nil, fmt.Errorf("run %s: %w", snap.ID, ErrTimeout)
			}
			if err := e.wait(ctx); err != nil {
				e.recordTerminal(start, model.RunStateFailed, "cancelled", snap.Usage)
				return nil, err
			}
			snap, err = e.provider.PollRun(ctx, conversationID, snap.ID)
			if err != nil {
				e.recordTerminal(start, model.RunStateFailed, "poll", model.Usage{})
				return nil, fmt.Errorf("failed to poll run: %w", err)
			}

		default:
			e.recordTerminal(start, model.RunStateFailed, "protocol", snap.Usage)
			return nil, fmt.Errorf("run %s entered unexpected state %q", snap.ID, snap.State)
		}
	}
}

// resumeWithToolOutputs executes every pending tool call and submits the
// complete result batch. One call's failure never drops another's
// result, and partial batches are never submitted.
func (e *Engine) resumeWithToolOutputs(ctx context.Context, snap *provider.Run, userID string, hooks Hooks) (*provider.Run, error) {
	if len(snap.ToolCalls) == 0 {
		return nil, fmt.Errorf("run %s requires action but listed no tool calls", snap.ID)
	}

	results := make([]model.ToolResult, 0, len(snap.ToolCalls))
	for _, call := range snap.ToolCalls {
		if hooks.OnToolCall != nil {
			hooks.OnToolCall(call)
		}
		results = append(results, e.dispatcher.Execute(ctx, userID, call))
	}

	next, err := e.provider.SubmitToolOutputs(ctx, snap.ConversationID, snap.ID, results)
	if err != nil {
		return nil, fmt.Errorf("failed to submit tool outputs: %w", err)
	}
	return next, nil
}

// emitDelta pushes any output text the snapshot added since the last
// emission.
func (e *Engine) emitDelta(snap *provider.Run, emitted *int, hooks Hooks) error {
	if hooks.OnContent == nil || len(snap.OutputText) <= *emitted {
		return nil
	}
	delta := snap.OutputText[*emitted:]
	*emitted = len(snap.OutputText)
	return hooks.OnContent(delta)
}

func (e *Engine) wait(ctx context.Context) error {
	timer := time.NewTimer(e.cfg.PollInterval)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (e *Engine) recordTerminal(start time.Time, state model.RunState, reason string, usage model.Usage) {
	metrics.RecordRun(string(state), reason, time.Since(start).Seconds(), usage.PromptTokens, usage.CompletionTokens)
}
