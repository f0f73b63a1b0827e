package persona

import (
	"context"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/zhouzirui/persona-studio/backend/internal/handler/apierr"
	"github.com/zhouzirui/persona-studio/backend/internal/model/persona"
	chatService "github.com/zhouzirui/persona-studio/backend/internal/service/chat"
	"github.com/zhouzirui/persona-studio/backend/pkg/utils"
)

// Preferences 记住上次选择的persona
type Preferences interface {
	SetLastPersona(ctx context.Context, personaID string) error
}

// Handler persona服务的HTTP处理器
type Handler struct {
	personas persona.Store
	chat     *chatService.Controller
	prefs    Preferences
}

// New 创建persona处理器
func New(personas persona.Store, chat *chatService.Controller, prefs Preferences) *Handler {
	return &Handler{
		personas: personas,
		chat:     chat,
		prefs:    prefs,
	}
}

// RegisterRoutes 注册persona相关的路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/personas", h.handleListPersonas)
	r.Get("/personas/current", h.handleCurrentPersona)
	r.Put("/personas/current", h.handleSelectPersona)
}

// handleListPersonas 列出所有persona
func (h *Handler) handleListPersonas(w http.ResponseWriter, r *http.Request) {
	utils.RespondJSON(w, http.StatusOK, h.personas.List())
}

func (h *Handler) handleCurrentPersona(w http.ResponseWriter, r *http.Request) {
	utils.RespondJSON(w, http.StatusOK, h.chat.Persona())
}

// handleSelectPersona 切换persona，会重置当前对话并中断正在进行的回复
func (h *Handler) handleSelectPersona(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		PersonaID string `json:"personaId"`
	}
	if err := utils.DecodeJSON(r, &payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if payload.PersonaID == "" {
		utils.RespondError(w, http.StatusBadRequest, "personaId is required")
		return
	}

	selected, err := h.chat.SelectPersona(payload.PersonaID)
	if err != nil {
		apierr.Respond(w, err)
		return
	}

	if h.prefs != nil {
		if err := h.prefs.SetLastPersona(r.Context(), selected.ID); err != nil {
			log.Printf("[persona] failed to remember persona %s: %v", selected.ID, err)
		}
	}

	utils.RespondJSON(w, http.StatusOK, map[string]any{
		"persona": selected,
		"state":   h.chat.Snapshot(),
	})
}
