package image

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/zhouzirui/persona-studio/backend/internal/handler/apierr"
	imageService "github.com/zhouzirui/persona-studio/backend/internal/service/image"
	"github.com/zhouzirui/persona-studio/backend/pkg/utils"
)

// Handler 图片生成的HTTP处理器
type Handler struct {
	images *imageService.Controller
	clock  func() time.Time
}

// New 创建图片处理器
func New(images *imageService.Controller) *Handler {
	return &Handler{images: images, clock: time.Now}
}

// RegisterRoutes 注册图片相关的路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/images", h.handleSnapshot)
	r.Post("/images", h.handleGenerate)
	r.Get("/images/download", h.handleDownload)
}

// handleSnapshot 返回生成状态和估算进度，前端轮询此接口
func (h *Handler) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	utils.RespondJSON(w, http.StatusOK, h.images.Snapshot())
}

// handleGenerate 启动生成后立即返回，生成在后台继续
func (h *Handler) handleGenerate(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Prompt string `json:"prompt"`
	}
	if err := utils.DecodeJSON(r, &payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}

	if _, err := h.images.Start(context.WithoutCancel(r.Context()), payload.Prompt); err != nil {
		apierr.Respond(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusAccepted, h.images.Snapshot())
}

func (h *Handler) handleDownload(w http.ResponseWriter, r *http.Request) {
	img, err := h.images.Image()
	if err != nil {
		apierr.Respond(w, err)
		return
	}
	contentType := img.MIMEType
	if contentType == "" {
		contentType = "image/png"
	}
	utils.RespondAttachment(w, imageService.DownloadName(h.clock()), contentType, img.Data)
}
