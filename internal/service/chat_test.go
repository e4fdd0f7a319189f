package service

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/folioworks/portfolio-assistant/internal/conversation"
	"github.com/folioworks/portfolio-assistant/internal/memory"
	"github.com/folioworks/portfolio-assistant/internal/model"
	"github.com/folioworks/portfolio-assistant/internal/provider"
	"github.com/folioworks/portfolio-assistant/internal/run"
	"github.com/folioworks/portfolio-assistant/internal/storage"
	"github.com/folioworks/portfolio-assistant/internal/tools"
	"github.com/folioworks/portfolio-assistant/pkg/logger"
)

// scriptedProvider plays back run snapshots in order across SubmitTurn,
// PollRun and SubmitToolOutputs, and records the submitted prompt.
type scriptedProvider struct {
	script []*provider.Run
	cursor int

	lastPrompt string
}

func (p *scriptedProvider) next() *provider.Run {
	snap := p.script[p.cursor]
	if p.cursor < len(p.script)-1 {
		p.cursor++
	}
	return snap
}

func (p *scriptedProvider) CreateConversation(ctx context.Context) (string, error) {
	return "thread_1", nil
}

func (p *scriptedProvider) SubmitTurn(ctx context.Context, conversationID, prompt string) (*provider.Run, error) {
	p.lastPrompt = prompt
	return p.next(), nil
}

func (p *scriptedProvider) PollRun(ctx context.Context, conversationID, runID string) (*provider.Run, error) {
	return p.next(), nil
}

func (p *scriptedProvider) SubmitToolOutputs(ctx context.Context, conversationID, runID string, results []model.ToolResult) (*provider.Run, error) {
	return p.next(), nil
}

type fakeEmbedder struct{}

func (fakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return []float32{0.1, 0.2, 0.3}, nil
}

// memVectorStore is a threadsafe in-memory VectorStore that returns the
// scripted personal results for filtered searches.
type memVectorStore struct {
	mu       sync.Mutex
	upserts  int
	personal []memory.ScoredPoint
}

func (s *memVectorStore) Upsert(ctx context.Context, id string, vector []float32, payload map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.upserts++
	return nil
}

func (s *memVectorStore) Search(ctx context.Context, vector []float32, filter memory.Filter, limit int, scoreThreshold float64) ([]memory.ScoredPoint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(filter.Match) > 0 {
		return s.personal, nil
	}
	return nil, nil
}

func (s *memVectorStore) upsertCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.upserts
}

type captureSink struct {
	frames []model.Frame
}

func (s *captureSink) Send(frame model.Frame) error {
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

func (s *captureSink) last() model.Frame {
	return s.frames[len(s.frames)-1]
}

type fixture struct {
	svc     *ChatService
	store   *storage.MemStore
	vectors *memVectorStore
	prov    *scriptedProvider
}

func newFixture(t *testing.T, prov *scriptedProvider, scope model.Scope, vectors *memVectorStore) *fixture {
	t.Helper()
	if vectors == nil {
		vectors = &memVectorStore{}
	}
	log := logger.NewNop()

	store := storage.NewMemStore()
	store.PutPortfolioOwner(&model.PortfolioOwner{ID: "own_1", UserID: "u_1", FullName: "Sam Learner"})

	index := memory.NewIndex(fakeEmbedder{}, vectors, memory.Config{
		PersonalThreshold: 0.30,
		GlobalThreshold:   0.65,
	}, log)
	assembler := memory.NewAssembler(index, true, log)

	engine := run.NewEngine(prov, tools.NewDispatcher(store, log), run.Config{
		PollInterval: time.Millisecond,
		MaxWait:      time.Second,
	}, log)
	manager := conversation.NewManager(store, prov, log)

	return &fixture{
		svc:     NewChatService(store, manager, engine, assembler, index, nil, scope, log),
		store:   store,
		vectors: vectors,
		prov:    prov,
	}
}

func completedRun(text string) *provider.Run {
	return &provider.Run{
		ID:             "run_1",
		ConversationID: "thread_1",
		State:          model.RunStateCompleted,
		OutputText:     text,
		Usage:          model.Usage{PromptTokens: 20, CompletionTokens: 9, TotalTokens: 29},
	}
}

func turnRequest(text string) *model.TurnRequest {
	return &model.TurnRequest{UserID: "u_1", ChatID: "chat_1", Text: text}
}

func TestStreamTurnSimple(t *testing.T) {
	prov := &scriptedProvider{script: []*provider.Run{completedRun("hello Sam")}}
	fx := newFixture(t, prov, model.ScopePerUser, nil)
	sink := &captureSink{}

	err := fx.svc.StreamTurn(context.Background(), turnRequest("hi"), sink)
	require.NoError(t, err)

	assert.Equal(t, []model.FrameType{
		model.FrameUserMessage,
		model.FrameAssistantStart,
		model.FrameContent,
		model.FrameDone,
	}, sink.types())

	done := sink.last().Data.(model.DoneFrame)
	assert.Equal(t, "hello Sam", done.Content)
	assert.Equal(t, 29, done.Usage.TotalTokens)

	// Both messages persisted, assistant finalized.
	msgs, err := fx.store.ListMessages(context.Background(), "chat_1")
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, model.RoleUser, msgs[0].Role)
	assert.Equal(t, "hi", msgs[0].Content)
	assert.Equal(t, model.RoleAssistant, msgs[1].Role)
	assert.Equal(t, "hello Sam", msgs[1].Content)
	assert.False(t, msgs[1].Pending)
	require.NotNil(t, msgs[1].TokensOut)
	assert.Equal(t, 9, *msgs[1].TokensOut)

	// Fire-and-forget write-back lands both sides of the turn.
	require.Eventually(t, func() bool {
		return fx.vectors.upsertCount() == 2
	}, 2*time.Second, 10*time.Millisecond)
}

func TestStreamTurnGroundsPromptInMemory(t *testing.T) {
	vectors := &memVectorStore{personal: []memory.ScoredPoint{{
		ID:    "rec_1",
		Score: 0.8,
		Payload: map[string]any{
			"role": "user", "text": "I want to work in aged care",
			"user_id": "u_1", "chat_id": "chat_old",
		},
	}}}
	prov := &scriptedProvider{script: []*provider.Run{completedRun("based on your goal, ...")}}
	fx := newFixture(t, prov, model.ScopePerUser, vectors)

	err := fx.svc.StreamTurn(context.Background(), turnRequest("any course ideas?"), &captureSink{})
	require.NoError(t, err)

	// The provider sees memory context prepended to the raw user text.
	assert.Contains(t, fx.prov.lastPrompt, "I want to work in aged care")
	assert.True(t, strings.HasSuffix(fx.prov.lastPrompt, "any course ideas?"))
	assert.NotEqual(t, "any course ideas?", fx.prov.lastPrompt)
}

func TestStreamTurnWithToolCalls(t *testing.T) {
	requiresAction := &provider.Run{
		ID:             "run_1",
		ConversationID: "thread_1",
		State:          model.RunStateRequiresAction,
		ToolCalls: []model.ToolCall{{
			ID:        "call_1",
			Name:      tools.ToolRecordQualification,
			Arguments: `{"course_name":"First Aid","institution":"Red Cross"}`,
		}},
	}
	prov := &scriptedProvider{script: []*provider.Run{
		requiresAction,
		completedRun("recorded your First Aid qualification"),
	}}
	fx := newFixture(t, prov, model.ScopePerUser, nil)
	sink := &captureSink{}

	err := fx.svc.StreamTurn(context.Background(), turnRequest("I finished First Aid at Red Cross"), sink)
	require.NoError(t, err)

	assert.Equal(t, []model.FrameType{
		model.FrameUserMessage,
		model.FrameToolCall,
		model.FrameAssistantStart,
		model.FrameContent,
		model.FrameDone,
	}, sink.types())

	toolFrame := sink.frames[1].Data.(model.ToolCallFrame)
	assert.Equal(t, tools.ToolRecordQualification, toolFrame.Name)

	// The side effect actually landed.
	assert.Len(t, fx.store.Qualifications("own_1"), 1)
}

func TestStreamTurnRunFailure(t *testing.T) {
	failed := &provider.Run{
		ID:             "run_1",
		ConversationID: "thread_1",
		State:          model.RunStateFailed,
		FailureReason:  "rate limited",
	}
	partial := &provider.Run{
		ID:             "run_1",
		ConversationID: "thread_1",
		State:          model.RunStateInProgress,
		OutputText:     "partial",
	}
	prov := &scriptedProvider{script: []*provider.Run{partial, failed}}
	fx := newFixture(t, prov, model.ScopePerUser, nil)
	sink := &captureSink{}

	err := fx.svc.StreamTurn(context.Background(), turnRequest("hi"), sink)
	require.Error(t, err)

	last := sink.last()
	require.Equal(t, model.FrameError, last.Type)
	frame := last.Data.(model.ErrorFrame)
	assert.Equal(t, "run_failed", frame.Code)
	// Internal failure detail never reaches the client.
	assert.Equal(t, genericFailureText, frame.Message)
	assert.NotContains(t, frame.Message, "rate limited")

	// The placeholder created for the partial content is finalized, not
	// left pending.
	msgs, err := fx.store.ListMessages(context.Background(), "chat_1")
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.False(t, msgs[1].Pending)
	assert.Equal(t, genericFailureText, msgs[1].Content)

	// Failed turns are never written back to memory.
	assert.Zero(t, fx.vectors.upsertCount())
}

func TestStreamTurnTimeout(t *testing.T) {
	prov := &scriptedProvider{script: []*provider.Run{{
		ID: "run_1", ConversationID: "thread_1", State: model.RunStateInProgress,
	}}}
	fx := newFixture(t, prov, model.ScopePerUser, nil)
	fx.svc.engine = run.NewEngine(prov, tools.NewDispatcher(fx.store, logger.NewNop()), run.Config{
		PollInterval: time.Millisecond,
		MaxWait:      10 * time.Millisecond,
	}, logger.NewNop())
	sink := &captureSink{}

	err := fx.svc.StreamTurn(context.Background(), turnRequest("hi"), sink)
	require.Error(t, err)

	last := sink.last()
	require.Equal(t, model.FrameError, last.Type)
	assert.Equal(t, "timeout", last.Data.(model.ErrorFrame).Code)
}

func TestStreamTurnReusesHandleAcrossChats(t *testing.T) {
	prov := &scriptedProvider{script: []*provider.Run{completedRun("first"), completedRun("second")}}
	fx := newFixture(t, prov, model.ScopePerUser, nil)

	require.NoError(t, fx.svc.StreamTurn(context.Background(), turnRequest("hi"), &captureSink{}))

	other := &model.TurnRequest{UserID: "u_1", ChatID: "chat_2", Text: "hi again"}
	require.NoError(t, fx.svc.StreamTurn(context.Background(), other, &captureSink{}))

	// Per-user scope: both chats share one provider conversation.
	handle, err := fx.store.GetConversationHandle(context.Background(), model.ScopeKey{Scope: model.ScopePerUser, OwnerID: "u_1"})
	require.NoError(t, err)
	assert.Equal(t, "thread_1", handle.ProviderConversationID)
}

func TestListMessages(t *testing.T) {
	prov := &scriptedProvider{script: []*provider.Run{completedRun("hello")}}
	fx := newFixture(t, prov, model.ScopePerUser, nil)

	require.NoError(t, fx.svc.StreamTurn(context.Background(), turnRequest("hi"), &captureSink{}))

	resp, err := fx.svc.ListMessages(context.Background(), "chat_1")
	require.NoError(t, err)
	assert.Equal(t, 2, resp.Total)
	assert.Len(t, resp.Messages, 2)
}

func TestRemoveChatPerChatScope(t *testing.T) {
	prov := &scriptedProvider{script: []*provider.Run{completedRun("hello")}}
	fx := newFixture(t, prov, model.ScopePerChat, nil)
	ctx := context.Background()

	require.NoError(t, fx.svc.StreamTurn(ctx, turnRequest("hi"), &captureSink{}))

	key := model.ScopeKey{Scope: model.ScopePerChat, OwnerID: "chat_1"}
	_, err := fx.store.GetConversationHandle(ctx, key)
	require.NoError(t, err)

	require.NoError(t, fx.svc.RemoveChat(ctx, "u_1", "chat_1"))

	_, err = fx.store.GetConversationHandle(ctx, key)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestRemoveChatPerUserScopeKeepsHandle(t *testing.T) {
	prov := &scriptedProvider{script: []*provider.Run{completedRun("hello")}}
	fx := newFixture(t, prov, model.ScopePerUser, nil)
	ctx := context.Background()

	require.NoError(t, fx.svc.StreamTurn(ctx, turnRequest("hi"), &captureSink{}))
	require.NoError(t, fx.svc.RemoveChat(ctx, "u_1", "chat_1"))

	// The shared per-user handle survives chat deletion.
	_, err := fx.store.GetConversationHandle(ctx, model.ScopeKey{Scope: model.ScopePerUser, OwnerID: "u_1"})
	assert.NoError(t, err)
}
