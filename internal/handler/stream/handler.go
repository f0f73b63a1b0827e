package stream

import (
	"context"
	"errors"
	"log"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/zhouzirui/persona-studio/backend/internal/handler/apierr"
	"github.com/zhouzirui/persona-studio/backend/internal/model/chat"
	chatService "github.com/zhouzirui/persona-studio/backend/internal/service/chat"
	"github.com/zhouzirui/persona-studio/backend/pkg/utils"
)

// Handler manages streaming AI responses via Server-Sent Events
type Handler struct {
	chat *chatService.Controller
}

// New creates a new stream handler
func New(chat *chatService.Controller) *Handler {
	return &Handler{chat: chat}
}

// RegisterRoutes registers the streaming endpoints
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/chat/messages", h.handleSend)
	r.Post("/chat/retry", h.handleRetry)
}

// StreamResponse represents a streaming response chunk
type StreamResponse struct {
	Event     string             `json:"event"`
	Content   string             `json:"content,omitempty"`
	PersonaID string             `json:"personaId,omitempty"`
	Message   *chat.Message      `json:"message,omitempty"`
	State     *chatService.State `json:"state,omitempty"`
	Finished  bool               `json:"finished,omitempty"`
	Error     string             `json:"error,omitempty"`
}

type turnFunc func(ctx context.Context, onDelta chatService.DeltaFunc) (chat.Message, error)

func (h *Handler) handleSend(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Text string `json:"text"`
	}
	if err := utils.DecodeJSON(r, &payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(payload.Text) == "" {
		apierr.Respond(w, chatService.ErrEmptyMessage)
		return
	}

	h.HandleStreamRequest(w, r, func(ctx context.Context, onDelta chatService.DeltaFunc) (chat.Message, error) {
		return h.chat.Send(ctx, payload.Text, onDelta)
	})
}

func (h *Handler) handleRetry(w http.ResponseWriter, r *http.Request) {
	if err := h.chat.CanRetry(); err != nil {
		apierr.Respond(w, err)
		return
	}

	h.HandleStreamRequest(w, r, func(ctx context.Context, onDelta chatService.DeltaFunc) (chat.Message, error) {
		return h.chat.RetryLast(ctx, onDelta)
	})
}

// HandleStreamRequest runs one turn and relays it as SSE: start, delta..., message or error, end.
func (h *Handler) HandleStreamRequest(w http.ResponseWriter, r *http.Request, run turnFunc) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		utils.RespondError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	// refuse before switching to SSE so the client gets a plain status code
	if err := h.precheck(); err != nil {
		apierr.Respond(w, err)
		return
	}

	utils.SetupSSEHeaders(w)
	w.WriteHeader(http.StatusOK)

	p := h.chat.Persona()
	h.sendSSE(w, flusher, StreamResponse{Event: "start", PersonaID: p.ID, Content: p.Name})

	reply, err := run(r.Context(), func(text string) {
		h.sendSSE(w, flusher, StreamResponse{Event: "delta", PersonaID: p.ID, Content: text})
	})

	state := h.chat.Snapshot()
	switch {
	case err == nil:
		h.sendSSE(w, flusher, StreamResponse{Event: "message", PersonaID: p.ID, Message: &reply})
	case errors.Is(err, chatService.ErrTurnCanceled):
		log.Printf("[stream] turn cancelled persona=%s", p.ID)
	default:
		message := state.Error
		if message == "" {
			message = err.Error()
		}
		log.Printf("[stream] turn failed persona=%s: %v", p.ID, err)
		h.sendSSE(w, flusher, StreamResponse{Event: "error", PersonaID: p.ID, Error: message})
	}

	h.sendSSE(w, flusher, StreamResponse{
		Event:     "end",
		PersonaID: p.ID,
		State:     &state,
		Finished:  err == nil,
	})
}

func (h *Handler) precheck() error {
	if !h.chat.Persona().IsChat() {
		return chatService.ErrNotChatPersona
	}
	if h.chat.Snapshot().Streaming {
		return chatService.ErrStreamInFlight
	}
	return nil
}

func (h *Handler) sendSSE(w http.ResponseWriter, flusher http.Flusher, resp StreamResponse) {
	utils.SendSSEEvent(w, flusher, resp.Event, resp)
}
