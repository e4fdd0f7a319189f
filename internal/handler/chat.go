package handler

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/folioworks/portfolio-assistant/internal/middleware"
	"github.com/folioworks/portfolio-assistant/internal/model"
	"github.com/folioworks/portfolio-assistant/internal/service"
	"github.com/folioworks/portfolio-assistant/pkg/logger"
	"github.com/folioworks/portfolio-assistant/pkg/metrics"
)

// ChatHandler handles chat message endpoints.
type ChatHandler struct {
	chatService *service.ChatService
	logger      *logger.Logger
}

// NewChatHandler creates a new chat handler.
func NewChatHandler(chatService *service.ChatService, log *logger.Logger) *ChatHandler {
	return &ChatHandler{
		chatService: chatService,
		logger:      log,
	}
}

// SendMessage handles POST /api/v1/chats/{id}/messages.
// The response is an SSE stream carrying the turn's frame sequence.
func (h *ChatHandler) SendMessage(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	chatID := chi.URLParam(r, "id")
	userID := middleware.GetUserID(ctx)

	if err := middleware.ValidateChatID(chatID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req model.SendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := middleware.ValidateMessageContent(req.Content); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	// Set SSE headers
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // Disable nginx buffering

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	metrics.IncrementSSEConnections()
	defer metrics.DecrementSSEConnections()

	sink := &sseSink{w: w, flusher: flusher, done: ctx.Done()}

	turn := &model.TurnRequest{
		UserID:         userID,
		FacilitatorID:  middleware.GetFacilitatorID(ctx),
		ChatID:         chatID,
		Text:           req.Content,
		AttachmentRefs: req.AttachmentRefs,
	}

	if err := h.chatService.StreamTurn(ctx, turn, sink); err != nil {
		// The terminal frame has already been emitted; this is for
		// operators only.
		h.logger.Warn("turn ended with error", "chat_id", chatID, "error", err)
	}
}

// ListMessages handles GET /api/v1/chats/{id}/messages.
func (h *ChatHandler) ListMessages(w http.ResponseWriter, r *http.Request) {
	chatID := chi.URLParam(r, "id")
	if err := middleware.ValidateChatID(chatID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	resp, err := h.chatService.ListMessages(r.Context(), chatID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list messages")
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// DeleteChat handles DELETE /api/v1/chats/{id}. Local cleanup only: the
// provider-side context is left orphaned on purpose.
func (h *ChatHandler) DeleteChat(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	chatID := chi.URLParam(r, "id")
	if err := middleware.ValidateChatID(chatID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.chatService.RemoveChat(ctx, middleware.GetUserID(ctx), chatID); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to delete chat")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// sseSink pushes frames as SSE events, flushing each one immediately.
type sseSink struct {
	w       http.ResponseWriter
	flusher http.Flusher
	done    <-chan struct{}
}

// Send writes one frame. It reports the client as gone before writing so
// the driving loop stops wasting provider calls.
func (s *sseSink) Send(frame model.Frame) error {
	select {
	case <-s.done:
		return fmt.Errorf("client disconnected")
	default:
	}

	data, err := json.Marshal(frame.Data)
	if err != nil {
		return fmt.Errorf("failed to marshal frame: %w", err)
	}

	if _, err := fmt.Fprintf(s.w, "event: %s\ndata: %s\n\n", frame.Type, data); err != nil {
		return fmt.Errorf("failed to write frame: %w", err)
	}
	s.flusher.Flush()
	return nil
}
