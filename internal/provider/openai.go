package provider

import (
	"context"
	"errors"
	"fmt"

	"github.com/sashabaranov/go-openai"

	"github.com/folioworks/portfolio-assistant/internal/model"
	"github.com/folioworks/portfolio-assistant/pkg/logger"
)

// OpenAIProvider drives the OpenAI Assistants API: threads are the
// provider-side conversations, runs carry tool interruption and
// resumption.
type OpenAIProvider struct {
	client      *openai.Client
	assistantID string
	tools       []openai.Tool
	log         *logger.Logger
}

// NewOpenAIProvider creates an Assistants-backed provider. The tool
// definitions are attached to every run so the assistant can emit the
// closed set of portfolio tool calls.
func NewOpenAIProvider(client *openai.Client, assistantID string, tools []openai.Tool, log *logger.Logger) (*OpenAIProvider, error) {
	if assistantID == "" {
		return nil, errors.New("assistant ID is required")
	}
	return &OpenAIProvider{
		client:      client,
		assistantID: assistantID,
		tools:       tools,
		log:         log.With("component", "openai_provider"),
	}, nil
}

// CreateConversation opens a new thread.
func (p *OpenAIProvider) CreateConversation(ctx context.Context) (string, error) {
	thread, err := p.client.CreateThread(ctx, openai.ThreadRequest{})
	if err != nil {
		return "", fmt.Errorf("failed to create thread: %w", err)
	}
	return thread.ID, nil
}

// SubmitTurn appends the prompt as a user message and starts a run.
func (p *OpenAIProvider) SubmitTurn(ctx context.Context, conversationID, prompt string) (*Run, error) {
	_, err := p.client.CreateMessage(ctx, conversationID, openai.MessageRequest{
		Role:    openai.ChatMessageRoleUser,
		Content: prompt,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to append message to thread: %w", err)
	}

	run, err := p.client.CreateRun(ctx, conversationID, openai.RunRequest{
		AssistantID: p.assistantID,
		Tools:       p.tools,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create run: %w", err)
	}
	return p.snapshot(ctx, conversationID, run)
}

// PollRun returns the current run snapshot.
func (p *OpenAIProvider) PollRun(ctx context.Context, conversationID, runID string) (*Run, error) {
	run, err := p.client.RetrieveRun(ctx, conversationID, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to retrieve run: %w", err)
	}
	return p.snapshot(ctx, conversationID, run)
}

// SubmitToolOutputs submits the full result batch and resumes the run.
func (p *OpenAIProvider) SubmitToolOutputs(ctx context.Context, conversationID, runID string, results []model.ToolResult) (*Run, error) {
	outputs := make([]openai.ToolOutput, len(results))
	for i, res := range results {
		outputs[i] = openai.ToolOutput{
			ToolCallID: res.ToolCallID,
			Output:     res.Output,
		}
	}

	run, err := p.client.SubmitToolOutputs(ctx, conversationID, runID, openai.SubmitToolOutputsRequest{
		ToolOutputs: outputs,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to submit tool outputs: %w", err)
	}
	return p.snapshot(ctx, conversationID, run)
}

// snapshot converts a provider run into the engine's view, fetching the
// final assistant text on completion.
func (p *OpenAIProvider) snapshot(ctx context.Context, conversationID string, run openai.Run) (*Run, error) {
	out := &Run{
		ID:             run.ID,
		ConversationID: conversationID,
		State:          mapStatus(run.Status),
		Usage: model.Usage{
			PromptTokens:     run.Usage.PromptTokens,
			CompletionTokens: run.Usage.CompletionTokens,
			TotalTokens:      run.Usage.TotalTokens,
		},
	}

	if run.Status == openai.RunStatusRequiresAction &&
		run.RequiredAction != nil &&
		run.RequiredAction.SubmitToolOutputs != nil {
		for _, tc := range run.RequiredAction.SubmitToolOutputs.ToolCalls {
			out.ToolCalls = append(out.ToolCalls, model.ToolCall{
				ID:        tc.ID,
				Name:      tc.Function.Name,
				Arguments: tc.Function.Arguments,
			})
		}
	}

	switch run.Status {
	case openai.RunStatusCompleted:
		text, err := p.latestAssistantText(ctx, conversationID)
		if err != nil {
			return nil, err
		}
		out.OutputText = text
	case openai.RunStatusFailed, openai.RunStatusExpired:
		out.FailureReason = string(run.Status)
		if run.LastError != nil {
			out.FailureReason = fmt.Sprintf("%s: %s", run.LastError.Code, run.LastError.Message)
		}
	}

	return out, nil
}

func (p *OpenAIProvider) latestAssistantText(ctx context.Context, conversationID string) (string, error) {
	limit := 1
	order := "desc"
	msgs, err := p.client.ListMessage(ctx, conversationID, &limit, &order, nil, nil)
	if err != nil {
		return "", fmt.Errorf("failed to list thread messages: %w", err)
	}

	for _, msg := range msgs.Messages {
		if msg.Role != string(openai.ChatMessageRoleAssistant) {
			continue
		}
		var text string
		for _, part := range msg.Content {
			if part.Text != nil {
				text += part.Text.Value
			}
		}
		return text, nil
	}
	return "", errors.New("completed run produced no assistant message")
}

func mapStatus(status openai.RunStatus) model.RunState {
	switch status {
	case openai.RunStatusQueued:
		return model.RunStateQueued
	case openai.RunStatusInProgress, openai.RunStatusCancelling:
		return model.RunStateInProgress
	case openai.RunStatusRequiresAction:
		return model.RunStateRequiresAction
	case openai.RunStatusCompleted:
		return model.RunStateCompleted
	default:
		// failed, expired and anything the API adds later all
		// terminate the turn.
		return model.RunStateFailed
	}
}
