package model

import (
	"time"
)

// FrameType identifies a streamed frame pushed to the client.
type FrameType string

const (
	FrameUserMessage    FrameType = "user_message"
	FrameToolCall       FrameType = "tool_call"
	FrameAssistantStart FrameType = "assistant_message_start"
	FrameContent        FrameType = "content"
	FrameDone           FrameType = "done"
	FrameError          FrameType = "error"
)

// Frame is one unit on the push channel. Data is the typed payload for
// the frame's type and must be JSON-serializable.
type Frame struct {
	Type FrameType `json:"type"`
	Data any       `json:"data"`
}

// ToolCallFrame notifies the client that the assistant invoked a tool.
type ToolCallFrame struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// AssistantStartFrame announces the placeholder assistant message before
// the first content chunk.
type AssistantStartFrame struct {
	MessageID string    `json:"message_id"`
	CreatedAt time.Time `json:"created_at"`
}

// ContentFrame carries one incremental chunk of assistant output.
type ContentFrame struct {
	Delta string `json:"delta"`
	Index int    `json:"index"`
}

// DoneFrame terminates a successful turn with the aggregated text.
type DoneFrame struct {
	MessageID string `json:"message_id"`
	Content   string `json:"content"`
	Usage     Usage  `json:"usage"`
}

// ErrorFrame terminates a failed turn. Message is generic; internal
// detail stays in the logs.
type ErrorFrame struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
