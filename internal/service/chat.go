// Package service provides the turn orchestration glue between storage,
// memory, the run engine and the push channel.
package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/folioworks/portfolio-assistant/internal/conversation"
	"github.com/folioworks/portfolio-assistant/internal/memory"
	"github.com/folioworks/portfolio-assistant/internal/model"
	natsclient "github.com/folioworks/portfolio-assistant/internal/nats"
	"github.com/folioworks/portfolio-assistant/internal/run"
	"github.com/folioworks/portfolio-assistant/internal/storage"
	"github.com/folioworks/portfolio-assistant/pkg/logger"
	"github.com/folioworks/portfolio-assistant/pkg/metrics"
)

// genericFailureText is the only failure wording that ever reaches the
// conversation transcript.
const genericFailureText = "failed to generate a response, please try again"

// ChatService orchestrates one chat turn end to end.
type ChatService struct {
	store         storage.Store
	conversations *conversation.Manager
	engine        *run.Engine
	assembler     *memory.Assembler
	index         *memory.Index
	events        *natsclient.StreamManager
	scope         model.Scope
	log           *logger.Logger
}

// NewChatService creates the chat service. events may be nil when audit
// publishing is disabled.
func NewChatService(
	store storage.Store,
	conversations *conversation.Manager,
	engine *run.Engine,
	assembler *memory.Assembler,
	index *memory.Index,
	events *natsclient.StreamManager,
	scope model.Scope,
	log *logger.Logger,
) *ChatService {
	return &ChatService{
		store:         store,
		conversations: conversations,
		engine:        engine,
		assembler:     assembler,
		index:         index,
		events:        events,
		scope:         scope,
		log:           log.With("component", "chat_service"),
	}
}

// StreamTurn runs one turn for req and pushes the full frame sequence to
// sink. The returned error is for the caller's logs; everything the user
// should see has already gone out as frames.
func (s *ChatService) StreamTurn(ctx context.Context, req *model.TurnRequest, sink run.Sink) error {
	log := s.log.With("chat_id", req.ChatID, "user_id", req.UserID)

	userMsg := &model.Message{
		ID:        uuid.Must(uuid.NewV7()).String(),
		ChatID:    req.ChatID,
		UserID:    req.UserID,
		Role:      model.RoleUser,
		Content:   req.Text,
		CreatedAt: time.Now(),
	}

	var assistantMsgID string
	startAssistant := func() (string, error) {
		msg := &model.Message{
			ID:        uuid.Must(uuid.NewV7()).String(),
			ChatID:    req.ChatID,
			UserID:    req.UserID,
			Role:      model.RoleAssistant,
			Pending:   true,
			CreatedAt: time.Now(),
		}
		if err := s.store.CreateMessage(ctx, msg); err != nil {
			return "", err
		}
		assistantMsgID = msg.ID
		return msg.ID, nil
	}

	emitter := run.NewEmitter(sink, startAssistant, s.log)

	if err := s.store.CreateMessage(ctx, userMsg); err != nil {
		emitter.Error("storage_error", genericFailureText)
		return err
	}
	metrics.MessagesTotal.WithLabelValues(string(model.RoleUser)).Inc()
	s.publishMessage(ctx, userMsg)

	if err := emitter.UserMessage(userMsg); err != nil {
		// Client left before we even echoed; nothing to clean up.
		return err
	}

	key := model.ScopeKeyFor(s.scope, req.UserID, req.ChatID)
	handle, err := s.conversations.ResolveHandle(ctx, key)
	if err != nil {
		log.Error("handle resolution failed", "error", err)
		emitter.Error("conversation_error", genericFailureText)
		return err
	}

	memScope := model.OwnerScope{
		UserID:        req.UserID,
		FacilitatorID: req.FacilitatorID,
		ChatID:        req.ChatID,
	}
	prompt, hadContext := s.assembler.Assemble(ctx, req.Text, memScope, req.ChatID)
	log.Debug("prompt assembled", "had_context", hadContext)

	turnStart := time.Now()
	result, err := s.engine.Execute(ctx, handle.ProviderConversationID, prompt, req.UserID, run.Hooks{
		OnContent:  emitter.Content,
		OnToolCall: emitter.ToolCall,
	})
	if err != nil {
		code := "run_failed"
		if errors.Is(err, run.ErrTimeout) {
			code = "timeout"
		}
		log.Error("turn failed", "code", code, "error", err)
		s.failPlaceholder(ctx, assistantMsgID)
		emitter.Error(code, genericFailureText)
		s.publishRunEvent(ctx, req, model.RunStateFailed, code, model.Usage{})
		return err
	}

	// A completed run with no streamed content still needs its stored
	// assistant message.
	if assistantMsgID == "" {
		if _, err := startAssistant(); err != nil {
			log.Error("failed to create assistant message", "error", err)
			emitter.Error("storage_error", genericFailureText)
			return err
		}
	}

	latency := time.Since(turnStart).Milliseconds()
	pending := false
	patch := model.MessagePatch{
		Content:   &result.Text,
		Pending:   &pending,
		TokensIn:  &result.Usage.PromptTokens,
		TokensOut: &result.Usage.CompletionTokens,
		LatencyMs: &latency,
	}
	if err := s.store.UpdateMessage(ctx, assistantMsgID, patch); err != nil {
		log.Error("failed to finalize assistant message", "message_id", assistantMsgID, "error", err)
	}
	metrics.MessagesTotal.WithLabelValues(string(model.RoleAssistant)).Inc()

	if err := emitter.Done(assistantMsgID, result.Text, result.Usage); err != nil {
		return err
	}

	// Fire-and-forget memory write-back; the response is already out.
	s.index.StoreAsync(&model.MemoryRecord{Scope: memScope, Role: model.RoleUser, Text: req.Text})
	s.index.StoreAsync(&model.MemoryRecord{Scope: memScope, Role: model.RoleAssistant, Text: result.Text})

	s.publishMessage(ctx, &model.Message{
		ID:      assistantMsgID,
		ChatID:  req.ChatID,
		UserID:  req.UserID,
		Role:    model.RoleAssistant,
		Content: result.Text,
	})
	s.publishRunEvent(ctx, req, model.RunStateCompleted, "", result.Usage)

	log.Info("turn completed",
		"assistant_message_id", assistantMsgID,
		"had_context", hadContext,
		"latency_ms", latency,
		"tokens_in", result.Usage.PromptTokens,
		"tokens_out", result.Usage.CompletionTokens,
	)
	return nil
}

// ListMessages returns a chat's stored messages.
func (s *ChatService) ListMessages(ctx context.Context, chatID string) (*model.ListMessagesResponse, error) {
	msgs, err := s.store.ListMessages(ctx, chatID)
	if err != nil {
		return nil, err
	}
	return &model.ListMessagesResponse{Messages: msgs, Total: len(msgs)}, nil
}

// RemoveChat clears conversation state tied to a deleted chat. Only the
// per-chat scope maps one-to-one onto a chat; a per-user handle is shared
// by the user's other chats and survives.
func (s *ChatService) RemoveChat(ctx context.Context, userID, chatID string) error {
	if s.scope != model.ScopePerChat {
		return nil
	}
	return s.conversations.Invalidate(ctx, model.ScopeKeyFor(s.scope, userID, chatID))
}

// failPlaceholder writes the generic failure text into an already
// created placeholder so the transcript never shows a stuck pending
// message.
func (s *ChatService) failPlaceholder(ctx context.Context, messageID string) {
	if messageID == "" {
		return
	}
	content := genericFailureText
	pending := false
	if err := s.store.UpdateMessage(ctx, messageID, model.MessagePatch{Content: &content, Pending: &pending}); err != nil {
		s.log.Warn("failed to finalize failed placeholder", "message_id", messageID, "error", err)
	}
}

func (s *ChatService) publishMessage(ctx context.Context, msg *model.Message) {
	if s.events == nil {
		return
	}
	if err := s.events.PublishMessage(ctx, msg); err != nil {
		s.log.Warn("audit publish failed", "message_id", msg.ID, "error", err)
	}
}

func (s *ChatService) publishRunEvent(ctx context.Context, req *model.TurnRequest, state model.RunState, reason string, usage model.Usage) {
	if s.events == nil {
		return
	}
	event := &natsclient.RunEvent{
		ChatID:    req.ChatID,
		UserID:    req.UserID,
		State:     state,
		Reason:    reason,
		Usage:     usage,
		CreatedAt: time.Now(),
	}
	if err := s.events.PublishRunEvent(ctx, event); err != nil {
		s.log.Warn("run event publish failed", "chat_id", req.ChatID, "state", state, "error", err)
	}
}
