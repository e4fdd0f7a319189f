package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/folioworks/portfolio-assistant/internal/conversation"
	"github.com/folioworks/portfolio-assistant/internal/memory"
	"github.com/folioworks/portfolio-assistant/internal/middleware"
	"github.com/folioworks/portfolio-assistant/internal/model"
	"github.com/folioworks/portfolio-assistant/internal/provider"
	"github.com/folioworks/portfolio-assistant/internal/run"
	"github.com/folioworks/portfolio-assistant/internal/service"
	"github.com/folioworks/portfolio-assistant/internal/storage"
	"github.com/folioworks/portfolio-assistant/internal/tools"
	"github.com/folioworks/portfolio-assistant/pkg/logger"
)

const testChatID = "0192c1f2-5a6b-7c8d-9e0f-112233445566"

type stubProvider struct {
	output string
}

func (p *stubProvider) CreateConversation(ctx context.Context) (string, error) {
	return "thread_1", nil
}

func (p *stubProvider) SubmitTurn(ctx context.Context, conversationID, prompt string) (*provider.Run, error) {
	return &provider.Run{
		ID:             "run_1",
		ConversationID: conversationID,
		State:          model.RunStateCompleted,
		OutputText:     p.output,
		Usage:          model.Usage{PromptTokens: 4, CompletionTokens: 3, TotalTokens: 7},
	}, nil
}

func (p *stubProvider) PollRun(ctx context.Context, conversationID, runID string) (*provider.Run, error) {
	return nil, nil
}

func (p *stubProvider) SubmitToolOutputs(ctx context.Context, conversationID, runID string, results []model.ToolResult) (*provider.Run, error) {
	return nil, nil
}

type stubEmbedder struct{}

func (stubEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return []float32{0.1}, nil
}

type emptyVectorStore struct{}

func (emptyVectorStore) Upsert(ctx context.Context, id string, vector []float32, payload map[string]any) error {
	return nil
}

func (emptyVectorStore) Search(ctx context.Context, vector []float32, filter memory.Filter, limit int, scoreThreshold float64) ([]memory.ScoredPoint, error) {
	return nil, nil
}

func newTestHandler(t *testing.T) (*ChatHandler, *storage.MemStore) {
	t.Helper()
	log := logger.NewNop()
	store := storage.NewMemStore()

	prov := &stubProvider{output: "hello there"}
	index := memory.NewIndex(stubEmbedder{}, emptyVectorStore{}, memory.Config{}, log)
	svc := service.NewChatService(
		store,
		conversation.NewManager(store, prov, log),
		run.NewEngine(prov, tools.NewDispatcher(store, log), run.Config{PollInterval: time.Millisecond, MaxWait: time.Second}, log),
		memory.NewAssembler(index, false, log),
		index,
		nil,
		model.ScopePerChat,
		log,
	)
	return NewChatHandler(svc, log), store
}

func newRequest(t *testing.T, method, target, body, chatID string) *http.Request {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
	} else {
		req = httptest.NewRequest(method, target, nil)
	}

	rctx := chi.NewRouteContext()
	rctx.URLParams.Add("id", chatID)
	ctx := context.WithValue(req.Context(), chi.RouteCtxKey, rctx)
	ctx = context.WithValue(ctx, middleware.UserIDKey, "u_1")
	return req.WithContext(ctx)
}

func TestSendMessageStreamsFrames(t *testing.T) {
	h, _ := newTestHandler(t)

	req := newRequest(t, http.MethodPost, "/api/v1/chats/"+testChatID+"/messages", `{"content":"hi"}`, testChatID)
	rec := httptest.NewRecorder()
	h.SendMessage(rec, req)

	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))
	assert.Equal(t, "no", rec.Header().Get("X-Accel-Buffering"))

	body := rec.Body.String()
	assert.Contains(t, body, "event: user_message\n")
	assert.Contains(t, body, "event: assistant_message_start\n")
	assert.Contains(t, body, "event: content\n")
	assert.Contains(t, body, "event: done\n")
	assert.Contains(t, body, `"delta":"hello there"`)
	assert.NotContains(t, body, "event: error")

	// Frame order on the wire matches the emitter contract.
	userAt := strings.Index(body, "event: user_message")
	startAt := strings.Index(body, "event: assistant_message_start")
	doneAt := strings.Index(body, "event: done")
	assert.Less(t, userAt, startAt)
	assert.Less(t, startAt, doneAt)
}

func TestSendMessageInvalidChatID(t *testing.T) {
	h, _ := newTestHandler(t)

	req := newRequest(t, http.MethodPost, "/api/v1/chats/not-a-uuid/messages", `{"content":"hi"}`, "not-a-uuid")
	rec := httptest.NewRecorder()
	h.SendMessage(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "invalid chat ID")
}

func TestSendMessageEmptyContent(t *testing.T) {
	h, _ := newTestHandler(t)

	req := newRequest(t, http.MethodPost, "/api/v1/chats/"+testChatID+"/messages", `{"content":""}`, testChatID)
	rec := httptest.NewRecorder()
	h.SendMessage(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSendMessageMalformedBody(t *testing.T) {
	h, _ := newTestHandler(t)

	req := newRequest(t, http.MethodPost, "/api/v1/chats/"+testChatID+"/messages", `{`, testChatID)
	rec := httptest.NewRecorder()
	h.SendMessage(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestListMessages(t *testing.T) {
	h, store := newTestHandler(t)
	require.NoError(t, store.CreateMessage(context.Background(), &model.Message{
		ID: "m_1", ChatID: testChatID, Role: model.RoleUser, Content: "hi", CreatedAt: time.Now(),
	}))

	req := newRequest(t, http.MethodGet, "/api/v1/chats/"+testChatID+"/messages", "", testChatID)
	rec := httptest.NewRecorder()
	h.ListMessages(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"total":1`)
}

func TestDeleteChat(t *testing.T) {
	h, _ := newTestHandler(t)

	req := newRequest(t, http.MethodDelete, "/api/v1/chats/"+testChatID, "", testChatID)
	rec := httptest.NewRecorder()
	h.DeleteChat(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestSSESinkClientGone(t *testing.T) {
	done := make(chan struct{})
	close(done)
	sink := &sseSink{w: httptest.NewRecorder(), flusher: httptest.NewRecorder(), done: done}

	err := sink.Send(model.Frame{Type: model.FrameContent, Data: model.ContentFrame{Delta: "x"}})
	assert.Error(t, err)
}

func TestHealthEndpoints(t *testing.T) {
	h := NewHealthHandler(nil)

	rec := httptest.NewRecorder()
	h.Health(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	h.Ready(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}
