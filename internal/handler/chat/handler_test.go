package chat

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/zhouzirui/persona-studio/backend/internal/model/persona"
	"github.com/zhouzirui/persona-studio/backend/internal/service/ai"
	chatservice "github.com/zhouzirui/persona-studio/backend/internal/service/chat"
	"github.com/zhouzirui/persona-studio/backend/internal/service/session"
	"github.com/zhouzirui/persona-studio/backend/internal/storage"
)

func setupRouter(t *testing.T) (*chi.Mux, *chatservice.Controller) {
	t.Helper()
	store := persona.NewMemoryStore(persona.Seed())
	sessions := session.NewStore(storage.NewMemoryBackend())
	ctl, err := chatservice.NewController(store, "code-wizard", ai.Unavailable{}, sessions)
	if err != nil {
		t.Fatalf("NewController err: %v", err)
	}
	t.Cleanup(ctl.Close)

	r := chi.NewRouter()
	New(ctl).RegisterRoutes(r)
	return r, ctl
}

func TestSnapshotReturnsGreeting(t *testing.T) {
	r, _ := setupRouter(t)

	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/chat", nil))

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	var state chatservice.State
	if err := json.NewDecoder(resp.Body).Decode(&state); err != nil {
		t.Fatalf("decode err: %v", err)
	}
	if state.PersonaID != "code-wizard" || len(state.Messages) != 1 {
		t.Fatalf("unexpected state %+v", state)
	}
}

func TestDismissErrorClearsBanner(t *testing.T) {
	r, ctl := setupRouter(t)
	if _, err := ctl.Send(context.Background(), "hi", nil); err == nil {
		t.Fatal("expected unavailable adapter to fail")
	}
	if ctl.Snapshot().Error == "" {
		t.Fatal("expected error banner after failed send")
	}

	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, httptest.NewRequest(http.MethodDelete, "/chat/error", nil))

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	if ctl.Snapshot().Error != "" {
		t.Fatal("expected error to be dismissed")
	}
}

func TestClearResetsConversation(t *testing.T) {
	r, ctl := setupRouter(t)

	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, httptest.NewRequest(http.MethodDelete, "/chat", nil))

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	if n := len(ctl.Snapshot().Messages); n != 1 {
		t.Fatalf("expected greeting only, got %d messages", n)
	}
}

func TestExportDownloadsTranscript(t *testing.T) {
	r, _ := setupRouter(t)

	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/chat/export", nil))

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	disposition := resp.Header().Get("Content-Disposition")
	if !strings.Contains(disposition, `filename="chat-code-wizard-`) {
		t.Fatalf("unexpected disposition %q", disposition)
	}
	if !strings.Contains(resp.Body.String(), "] AI:\nHello! I'm Code Wizard.") {
		t.Fatalf("unexpected transcript %q", resp.Body.String())
	}
}
