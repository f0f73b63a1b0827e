// Package apierr maps service errors onto HTTP responses.
package apierr

import (
	"errors"
	"log"
	"net/http"

	"github.com/zhouzirui/persona-studio/backend/internal/service/ai"
	chatService "github.com/zhouzirui/persona-studio/backend/internal/service/chat"
	imageService "github.com/zhouzirui/persona-studio/backend/internal/service/image"
	"github.com/zhouzirui/persona-studio/backend/internal/service/session"
	"github.com/zhouzirui/persona-studio/backend/pkg/utils"
)

// Status picks the response code for err.
func Status(err error) int {
	switch {
	case chatService.IsValidation(err),
		errors.Is(err, imageService.ErrEmptyPrompt),
		errors.Is(err, imageService.ErrBusy),
		errors.Is(err, session.ErrPersonaRequired):
		return http.StatusBadRequest
	case errors.Is(err, chatService.ErrPersonaNotFound),
		errors.Is(err, session.ErrNotFound),
		errors.Is(err, imageService.ErrNoImage):
		return http.StatusNotFound
	case errors.Is(err, chatService.ErrPersonaChanged):
		return http.StatusConflict
	case errors.Is(err, ai.ErrNotConfigured), errors.Is(err, chatService.ErrClosed):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// Respond writes err as a JSON error body. Storage errors keep their "storage error" prefix
// so the client can tell a failed save apart from other failures.
func Respond(w http.ResponseWriter, err error) {
	status := Status(err)
	if status == http.StatusInternalServerError && !session.IsStorageError(err) {
		log.Printf("[http] unexpected error: %v", err)
	}
	utils.RespondError(w, status, err.Error())
}
