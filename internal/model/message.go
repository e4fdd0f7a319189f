// Package model defines data structures for the portfolio assistant.
package model

import (
	"time"
)

// Role represents the role of a message sender.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// Message represents a stored chat message.
type Message struct {
	// Identity
	ID     string `json:"id"`
	ChatID string `json:"chat_id"`
	UserID string `json:"user_id"`

	// Content
	Role    Role   `json:"role"`
	Content string `json:"content"`

	// Pending marks a placeholder assistant message whose content is
	// still being generated.
	Pending bool `json:"pending,omitempty"`

	// LLM metadata (assistant messages only)
	Model     *string `json:"model,omitempty"`
	TokensIn  *int    `json:"tokens_in,omitempty"`
	TokensOut *int    `json:"tokens_out,omitempty"`
	LatencyMs *int64  `json:"latency_ms,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// MessagePatch is a partial update applied to a stored message.
type MessagePatch struct {
	Content   *string `json:"content,omitempty"`
	Pending   *bool   `json:"pending,omitempty"`
	Model     *string `json:"model,omitempty"`
	TokensIn  *int    `json:"tokens_in,omitempty"`
	TokensOut *int    `json:"tokens_out,omitempty"`
	LatencyMs *int64  `json:"latency_ms,omitempty"`
}

// SendMessageRequest is the request body for posting a new chat message.
type SendMessageRequest struct {
	Content        string   `json:"content"`
	AttachmentRefs []string `json:"attachment_refs,omitempty"`
}

// ListMessagesResponse is the response for listing chat messages.
type ListMessagesResponse struct {
	Messages []Message `json:"messages"`
	Total    int       `json:"total"`
}

// TurnRequest is the normalized unit of work for one chat turn.
// Immutable once submitted to the run engine.
type TurnRequest struct {
	UserID         string   `json:"user_id"`
	FacilitatorID  string   `json:"facilitator_id,omitempty"`
	ChatID         string   `json:"chat_id"`
	Text           string   `json:"text"`
	AttachmentRefs []string `json:"attachment_refs,omitempty"`
}

// Usage holds token accounting for one provider run.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}
