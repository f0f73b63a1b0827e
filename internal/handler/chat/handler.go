package chat

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	chatService "github.com/zhouzirui/persona-studio/backend/internal/service/chat"
	"github.com/zhouzirui/persona-studio/backend/pkg/utils"
)

// Handler 聊天状态的HTTP处理器
type Handler struct {
	chat *chatService.Controller
}

// New 创建聊天处理器
func New(chat *chatService.Controller) *Handler {
	return &Handler{chat: chat}
}

// RegisterRoutes 注册聊天相关的路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/chat", h.handleSnapshot)
	r.Delete("/chat", h.handleClear)
	r.Delete("/chat/error", h.handleDismissError)
	r.Get("/chat/export", h.handleExport)
}

// handleSnapshot 返回当前对话状态
func (h *Handler) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	utils.RespondJSON(w, http.StatusOK, h.chat.Snapshot())
}

// handleClear 清空对话，只保留开场白
func (h *Handler) handleClear(w http.ResponseWriter, r *http.Request) {
	h.chat.Clear()
	utils.RespondJSON(w, http.StatusOK, h.chat.Snapshot())
}

func (h *Handler) handleDismissError(w http.ResponseWriter, r *http.Request) {
	h.chat.DismissError()
	utils.RespondJSON(w, http.StatusOK, h.chat.Snapshot())
}

// handleExport 下载纯文本对话记录
func (h *Handler) handleExport(w http.ResponseWriter, r *http.Request) {
	transcript := h.chat.Export()
	utils.RespondAttachment(w, transcript.Filename, "text/plain; charset=utf-8", []byte(transcript.Content))
}
