// Package provider adapts the external reasoning provider behind a
// narrow contract the run engine can drive and tests can fake.
package provider

import (
	"context"

	"github.com/folioworks/portfolio-assistant/internal/model"
)

// Run is a snapshot of one provider-side run.
type Run struct {
	ID             string
	ConversationID string
	State          model.RunState

	// ToolCalls is populated while State is RequiresAction.
	ToolCalls []model.ToolCall

	// OutputText accumulates assistant output. Providers that only
	// deliver text at completion fill it on the Completed snapshot;
	// providers with partial delivery may grow it across polls.
	OutputText string

	// Usage and FailureReason are populated on terminal snapshots.
	Usage         model.Usage
	FailureReason string
}

// Provider is the model-provider contract. A conversation ID is the
// provider-side handle giving runs continuity across turns.
type Provider interface {
	// CreateConversation opens a new provider-side conversation and
	// returns its ID.
	CreateConversation(ctx context.Context) (string, error)

	// SubmitTurn appends the prompt to the conversation and starts a
	// run, returning its initial snapshot.
	SubmitTurn(ctx context.Context, conversationID, prompt string) (*Run, error)

	// PollRun returns the current snapshot of a run.
	PollRun(ctx context.Context, conversationID, runID string) (*Run, error)

	// SubmitToolOutputs resumes a run blocked in RequiresAction. The
	// batch must cover every outstanding tool call.
	SubmitToolOutputs(ctx context.Context, conversationID, runID string, results []model.ToolResult) (*Run, error)
}
