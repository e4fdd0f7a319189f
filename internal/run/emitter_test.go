package run

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/folioworks/portfolio-assistant/internal/model"
	"github.com/folioworks/portfolio-assistant/pkg/logger"
)

type captureSink struct {
	frames []model.Frame
	err    error
}

func (s *captureSink) Send(frame model.Frame) error {
	if s.err != nil {
		return s.err
	}
	s.frames = append(s.frames, frame)
	return nil
}

func (s *captureSink) types() []model.FrameType {
	out := make([]model.FrameType, 0, len(s.frames))
	for _, f := range s.frames {
		out = append(out, f.Type)
	}
	return out
}

func startWith(id string) StartFunc {
	return func() (string, error) { return id, nil }
}

func TestEmitterFullSequence(t *testing.T) {
	sink := &captureSink{}
	em := NewEmitter(sink, startWith("m_assist"), logger.NewNop())

	require.NoError(t, em.UserMessage(&model.Message{ID: "m_user", Role: model.RoleUser, Content: "hi"}))
	em.ToolCall(model.ToolCall{ID: "call_1", Name: "record_qualification"})
	require.NoError(t, em.Content("hello"))
	require.NoError(t, em.Content(" there"))
	require.NoError(t, em.Done("m_assist", "hello there", model.Usage{TotalTokens: 7}))

	assert.Equal(t, []model.FrameType{
		model.FrameUserMessage,
		model.FrameToolCall,
		model.FrameAssistantStart,
		model.FrameContent,
		model.FrameContent,
		model.FrameDone,
	}, sink.types())

	start := sink.frames[2].Data.(model.AssistantStartFrame)
	assert.Equal(t, "m_assist", start.MessageID)

	first := sink.frames[3].Data.(model.ContentFrame)
	second := sink.frames[4].Data.(model.ContentFrame)
	assert.Equal(t, "hello", first.Delta)
	assert.Equal(t, 0, first.Index)
	assert.Equal(t, " there", second.Delta)
	assert.Equal(t, 1, second.Index)

	done := sink.frames[5].Data.(model.DoneFrame)
	assert.Equal(t, "hello there", done.Content)
}

func TestEmitterAssistantStartExactlyOnce(t *testing.T) {
	sink := &captureSink{}
	starts := 0
	em := NewEmitter(sink, func() (string, error) {
		starts++
		return "m_assist", nil
	}, logger.NewNop())

	require.NoError(t, em.Content("a"))
	require.NoError(t, em.Content("b"))
	require.NoError(t, em.Content("c"))

	assert.Equal(t, 1, starts)
	assert.True(t, em.Started())
	assert.Equal(t, []model.FrameType{
		model.FrameAssistantStart,
		model.FrameContent,
		model.FrameContent,
		model.FrameContent,
	}, sink.types())
}

func TestEmitterEmptyDeltaSkipped(t *testing.T) {
	sink := &captureSink{}
	em := NewEmitter(sink, startWith("m_assist"), logger.NewNop())

	require.NoError(t, em.Content(""))
	assert.Empty(t, sink.frames)
	assert.False(t, em.Started())
}

func TestEmitterNoContentBeforeStartFrame(t *testing.T) {
	sink := &captureSink{}
	em := NewEmitter(sink, func() (string, error) {
		return "", errors.New("storage down")
	}, logger.NewNop())

	err := em.Content("hello")
	require.Error(t, err)
	assert.Empty(t, sink.frames)
}

func TestEmitterNothingAfterDone(t *testing.T) {
	sink := &captureSink{}
	em := NewEmitter(sink, startWith("m_assist"), logger.NewNop())

	require.NoError(t, em.Content("hello"))
	require.NoError(t, em.Done("m_assist", "hello", model.Usage{}))

	assert.Error(t, em.Content("late"))
	assert.Error(t, em.Done("m_assist", "again", model.Usage{}))
	em.Error("run_failed", "failed")

	// Exactly one terminal frame.
	assert.Equal(t, []model.FrameType{
		model.FrameAssistantStart,
		model.FrameContent,
		model.FrameDone,
	}, sink.types())
}

func TestEmitterNothingAfterError(t *testing.T) {
	sink := &captureSink{}
	em := NewEmitter(sink, startWith("m_assist"), logger.NewNop())

	em.Error("timeout", "failed to generate a response, please try again")
	em.Error("run_failed", "second error")
	assert.Error(t, em.Content("late"))

	require.Len(t, sink.frames, 1)
	assert.Equal(t, model.FrameError, sink.frames[0].Type)
	frame := sink.frames[0].Data.(model.ErrorFrame)
	assert.Equal(t, "timeout", frame.Code)
}

func TestEmitterErrorWithoutContent(t *testing.T) {
	// A run can fail before any content; the error frame is then the
	// only thing on the wire after the user echo.
	sink := &captureSink{}
	em := NewEmitter(sink, startWith("m_assist"), logger.NewNop())

	require.NoError(t, em.UserMessage(&model.Message{ID: "m_user"}))
	em.Error("run_failed", "failed")

	assert.Equal(t, []model.FrameType{model.FrameUserMessage, model.FrameError}, sink.types())
	assert.False(t, em.Started())
}

func TestEmitterSinkFailurePropagates(t *testing.T) {
	sink := &captureSink{err: errors.New("write: broken pipe")}
	em := NewEmitter(sink, startWith("m_assist"), logger.NewNop())

	assert.Error(t, em.UserMessage(&model.Message{ID: "m_user"}))
	assert.Error(t, em.Content("hello"))
}
