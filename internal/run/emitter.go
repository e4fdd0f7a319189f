package run

import (
	"errors"
	"fmt"
	"time"

	"github.com/folioworks/portfolio-assistant/internal/model"
	"github.com/folioworks/portfolio-assistant/pkg/logger"
)

// Sink is the outbound push channel. Send must flush the frame before
// returning; an error means the client is gone.
type Sink interface {
	Send(frame model.Frame) error
}

// StartFunc creates the placeholder assistant message right before the
// first content frame and returns its ID.
type StartFunc func() (messageID string, err error)

// Emitter converts run progress into the ordered frame sequence:
// user_message, tool_call*, assistant_message_start, content+, then
// exactly one done or error. Nothing is buffered beyond the current
// frame and nothing follows the terminal frame.
type Emitter struct {
	sink    Sink
	onStart StartFunc
	log     *logger.Logger

	started  bool
	terminal bool
	index    int
}

// NewEmitter creates an emitter for one turn.
func NewEmitter(sink Sink, onStart StartFunc, log *logger.Logger) *Emitter {
	return &Emitter{
		sink:    sink,
		onStart: onStart,
		log:     log.With("component", "stream_emitter"),
	}
}

// UserMessage echoes the stored inbound message.
func (em *Emitter) UserMessage(msg *model.Message) error {
	return em.send(model.Frame{Type: model.FrameUserMessage, Data: msg})
}

// ToolCall notifies the client of a tool invocation. Failures here are
// logged, not fatal; the run outcome decides the terminal frame.
func (em *Emitter) ToolCall(call model.ToolCall) {
	frame := model.Frame{
		Type: model.FrameToolCall,
		Data: model.ToolCallFrame{ID: call.ID, Name: call.Name},
	}
	if err := em.send(frame); err != nil {
		em.log.Warn("failed to emit tool_call frame", "tool", call.Name, "error", err)
	}
}

// Content emits one chunk, preceded on first use by exactly one
// assistant_message_start frame.
func (em *Emitter) Content(delta string) error {
	if em.terminal {
		// A run never emits content after reaching a terminal state.
		em.log.Warn("content after terminal frame dropped")
		return errors.New("stream already terminated")
	}
	if delta == "" {
		return nil
	}

	if !em.started {
		messageID, err := em.onStart()
		if err != nil {
			return fmt.Errorf("failed to start assistant message: %w", err)
		}
		frame := model.Frame{
			Type: model.FrameAssistantStart,
			Data: model.AssistantStartFrame{MessageID: messageID, CreatedAt: time.Now()},
		}
		if err := em.send(frame); err != nil {
			return err
		}
		em.started = true
	}

	frame := model.Frame{
		Type: model.FrameContent,
		Data: model.ContentFrame{Delta: delta, Index: em.index},
	}
	if err := em.send(frame); err != nil {
		return err
	}
	em.index++
	return nil
}

// Done emits the terminal success frame.
func (em *Emitter) Done(messageID, content string, usage model.Usage) error {
	if em.terminal {
		return errors.New("stream already terminated")
	}
	em.terminal = true
	return em.send(model.Frame{
		Type: model.FrameDone,
		Data: model.DoneFrame{MessageID: messageID, Content: content, Usage: usage},
	})
}

// Error emits the terminal error frame. Message must already be the
// user-safe generic text.
func (em *Emitter) Error(code, message string) {
	if em.terminal {
		return
	}
	em.terminal = true
	frame := model.Frame{
		Type: model.FrameError,
		Data: model.ErrorFrame{Code: code, Message: message},
	}
	if err := em.send(frame); err != nil {
		em.log.Warn("failed to emit error frame", "code", code, "error", err)
	}
}

// Started reports whether the assistant_message_start frame was emitted.
func (em *Emitter) Started() bool {
	return em.started
}

func (em *Emitter) send(frame model.Frame) error {
	if err := em.sink.Send(frame); err != nil {
		return fmt.Errorf("push channel closed: %w", err)
	}
	return nil
}
