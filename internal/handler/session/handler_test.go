package session

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/zhouzirui/persona-studio/backend/internal/model/chat"
	"github.com/zhouzirui/persona-studio/backend/internal/model/persona"
	"github.com/zhouzirui/persona-studio/backend/internal/service/ai"
	chatservice "github.com/zhouzirui/persona-studio/backend/internal/service/chat"
	sessionservice "github.com/zhouzirui/persona-studio/backend/internal/service/session"
	"github.com/zhouzirui/persona-studio/backend/internal/storage"
)

type onceStream struct{ done bool }

func (s *onceStream) Recv() (ai.Chunk, error) {
	if s.done {
		return ai.Chunk{}, io.EOF
	}
	s.done = true
	return ai.Chunk{Text: "function loop() {}"}, nil
}

func (s *onceStream) Close() {}

type echoStreamer struct{}

func (echoStreamer) StreamChat(context.Context, []chat.Message, string, bool) (ai.Stream, error) {
	return &onceStream{}, nil
}

func setupRouter(t *testing.T) (*chi.Mux, *chatservice.Controller) {
	t.Helper()
	store := persona.NewMemoryStore(persona.Seed())
	sessions := sessionservice.NewStore(storage.NewMemoryBackend())
	ctl, err := chatservice.NewController(store, "code-wizard", echoStreamer{}, sessions)
	if err != nil {
		t.Fatalf("NewController err: %v", err)
	}
	t.Cleanup(ctl.Close)

	r := chi.NewRouter()
	New(ctl).RegisterRoutes(r)
	return r, ctl
}

func do(r http.Handler, method, path, body string) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, httptest.NewRequest(method, path, reader))
	return resp
}

func TestSaveRequiresContentAndName(t *testing.T) {
	r, ctl := setupRouter(t)

	if resp := do(r, http.MethodPost, "/sessions", `{"name":"empty"}`); resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for greeting-only conversation, got %d", resp.Code)
	}

	if _, err := ctl.Send(context.Background(), "write a loop", nil); err != nil {
		t.Fatalf("Send err: %v", err)
	}
	if resp := do(r, http.MethodPost, "/sessions", `{"name":"  "}`); resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for blank name, got %d", resp.Code)
	}
}

func TestSaveListLoadDelete(t *testing.T) {
	r, ctl := setupRouter(t)
	if _, err := ctl.Send(context.Background(), "write a loop", nil); err != nil {
		t.Fatalf("Send err: %v", err)
	}

	resp := do(r, http.MethodPost, "/sessions", `{"name":"loops"}`)
	if resp.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", resp.Code, resp.Body.String())
	}
	var created struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		t.Fatalf("decode err: %v", err)
	}

	resp = do(r, http.MethodGet, "/sessions", "")
	var list []chatservice.SessionSummary
	if err := json.NewDecoder(resp.Body).Decode(&list); err != nil {
		t.Fatalf("decode err: %v", err)
	}
	if len(list) != 1 || list[0].ID != created.ID || !list[0].Active {
		t.Fatalf("unexpected session list %+v", list)
	}

	ctl.Clear()
	resp = do(r, http.MethodPost, "/sessions/"+created.ID+"/load", "")
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	if n := len(ctl.Snapshot().Messages); n != 3 {
		t.Fatalf("expected 3 messages after load, got %d", n)
	}

	if resp := do(r, http.MethodDelete, "/sessions/"+created.ID, ""); resp.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", resp.Code)
	}
	if resp := do(r, http.MethodDelete, "/sessions/"+created.ID, ""); resp.Code != http.StatusNoContent {
		t.Fatalf("expected 204 for repeated delete, got %d", resp.Code)
	}
	if resp := do(r, http.MethodPost, "/sessions/"+created.ID+"/load", ""); resp.Code != http.StatusNotFound {
		t.Fatalf("expected 404 after delete, got %d", resp.Code)
	}
}

func TestLoadMissingSessionReturnsCurrentList(t *testing.T) {
	r, ctl := setupRouter(t)
	if _, err := ctl.Send(context.Background(), "write a loop", nil); err != nil {
		t.Fatalf("Send err: %v", err)
	}
	kept, err := ctl.Save(context.Background(), "kept")
	if err != nil {
		t.Fatalf("Save err: %v", err)
	}

	resp := do(r, http.MethodPost, "/sessions/gone/load", "")
	if resp.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.Code)
	}
	var body struct {
		Error    string                       `json:"error"`
		Sessions []chatservice.SessionSummary `json:"sessions"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode err: %v", err)
	}
	if body.Error == "" {
		t.Fatal("expected error text")
	}
	if len(body.Sessions) != 1 || body.Sessions[0].ID != kept {
		t.Fatalf("unexpected sessions %+v", body.Sessions)
	}
}
