package model

// RunState is the lifecycle state of one provider run. Transitions are
// monotonic: once a run reaches Completed or Failed it never leaves it.
type RunState string

const (
	RunStateQueued         RunState = "queued"
	RunStateInProgress     RunState = "in_progress"
	RunStateRequiresAction RunState = "requires_action"
	RunStateCompleted      RunState = "completed"
	RunStateFailed         RunState = "failed"
)

// Terminal reports whether the state is final.
func (s RunState) Terminal() bool {
	return s == RunStateCompleted || s == RunStateFailed
}

// ToolCall is a structured side-effect request emitted by the model while
// a run is blocked in requires_action.
type ToolCall struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// ToolResult is the serialized outcome fed back to the provider for one
// tool call. Output is always structured JSON, success or failure; raw
// errors never cross this boundary.
type ToolResult struct {
	ToolCallID string `json:"tool_call_id"`
	Output     string `json:"output"`
}
