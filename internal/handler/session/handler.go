package session

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/zhouzirui/persona-studio/backend/internal/handler/apierr"
	chatService "github.com/zhouzirui/persona-studio/backend/internal/service/chat"
	sessionService "github.com/zhouzirui/persona-studio/backend/internal/service/session"
	"github.com/zhouzirui/persona-studio/backend/pkg/utils"
)

// Handler 会话管理的HTTP处理器，作用于当前persona
type Handler struct {
	chat *chatService.Controller
}

// New 创建会话处理器
func New(chat *chatService.Controller) *Handler {
	return &Handler{chat: chat}
}

// RegisterRoutes 注册会话相关的路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/sessions", h.handleList)
	r.Post("/sessions", h.handleSave)
	r.Post("/sessions/{sessionID}/load", h.handleLoad)
	r.Delete("/sessions/{sessionID}", h.handleDelete)
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	sessions, err := h.chat.Sessions(r.Context())
	if err != nil {
		apierr.Respond(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, sessions)
}

// handleSave 以给定名称保存当前对话
func (h *Handler) handleSave(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Name string `json:"name"`
	}
	if err := utils.DecodeJSON(r, &payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}

	id, err := h.chat.Save(r.Context(), payload.Name)
	if err != nil {
		apierr.Respond(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusCreated, map[string]string{"id": id})
}

// notFoundResponse 会话不存在时附带最新列表，客户端据此刷新
type notFoundResponse struct {
	Error    string                       `json:"error"`
	Sessions []chatService.SessionSummary `json:"sessions"`
}

// handleLoad 载入会话，替换当前对话
func (h *Handler) handleLoad(w http.ResponseWriter, r *http.Request) {
	err := h.chat.Load(r.Context(), chi.URLParam(r, "sessionID"))
	if errors.Is(err, sessionService.ErrNotFound) {
		sessions, listErr := h.chat.Sessions(r.Context())
		if listErr != nil {
			apierr.Respond(w, listErr)
			return
		}
		utils.RespondJSON(w, http.StatusNotFound, notFoundResponse{Error: err.Error(), Sessions: sessions})
		return
	}
	if err != nil {
		apierr.Respond(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, h.chat.Snapshot())
}

// handleDelete 删除会话，不存在时同样成功
func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	if err := h.chat.Delete(r.Context(), chi.URLParam(r, "sessionID")); err != nil {
		apierr.Respond(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
