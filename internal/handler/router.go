package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/zhouzirui/persona-studio/backend/internal/handler/chat"
	"github.com/zhouzirui/persona-studio/backend/internal/handler/image"
	"github.com/zhouzirui/persona-studio/backend/internal/handler/persona"
	"github.com/zhouzirui/persona-studio/backend/internal/handler/session"
	"github.com/zhouzirui/persona-studio/backend/internal/handler/stream"
	middlewarePkg "github.com/zhouzirui/persona-studio/backend/internal/middleware"
	personaModel "github.com/zhouzirui/persona-studio/backend/internal/model/persona"
	chatService "github.com/zhouzirui/persona-studio/backend/internal/service/chat"
	imageService "github.com/zhouzirui/persona-studio/backend/internal/service/image"
	"github.com/zhouzirui/persona-studio/backend/pkg/utils"
)

// Dependencies 路由所需的服务
type Dependencies struct {
	Personas    personaModel.Store
	Chat        *chatService.Controller
	Images      *imageService.Controller
	Preferences persona.Preferences
	TypingSpeed time.Duration
}

// NewRouter wires HTTP routes to core services.
func NewRouter(deps Dependencies) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middlewarePkg.CORS)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		utils.RespondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api", func(api chi.Router) {
		persona.New(deps.Personas, deps.Chat, deps.Preferences).RegisterRoutes(api)
		chat.New(deps.Chat).RegisterRoutes(api)
		stream.New(deps.Chat).RegisterRoutes(api)
		stream.NewWebSocketHandler(deps.Chat, deps.TypingSpeed).RegisterRoutes(api)
		session.New(deps.Chat).RegisterRoutes(api)
		image.New(deps.Images).RegisterRoutes(api)
	})

	return r
}
