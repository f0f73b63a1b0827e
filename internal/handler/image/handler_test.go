package image

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/zhouzirui/persona-studio/backend/internal/service/ai"
	imageservice "github.com/zhouzirui/persona-studio/backend/internal/service/image"
)

type stubGenerator struct {
	gate chan struct{}
}

func (g stubGenerator) GenerateImage(ctx context.Context, prompt string) (ai.Image, error) {
	if g.gate != nil {
		<-g.gate
	}
	return ai.Image{MIMEType: "image/png", Data: []byte("png:" + prompt)}, nil
}

func setupRouter(gen ai.ImageGenerator) (*chi.Mux, *imageservice.Controller) {
	images := imageservice.NewController(gen)
	h := New(images)
	h.clock = func() time.Time { return time.UnixMilli(1_700_000_000_000) }

	r := chi.NewRouter()
	h.RegisterRoutes(r)
	return r, images
}

func TestGenerateThenDownload(t *testing.T) {
	gate := make(chan struct{})
	r, images := setupRouter(stubGenerator{gate: gate})

	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, httptest.NewRequest(http.MethodPost, "/images", strings.NewReader(`{"prompt":"a cat"}`)))
	if resp.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", resp.Code, resp.Body.String())
	}
	var snap imageservice.Snapshot
	if err := json.NewDecoder(resp.Body).Decode(&snap); err != nil {
		t.Fatalf("decode err: %v", err)
	}
	if snap.Status != imageservice.StatusGenerating {
		t.Fatalf("expected generating, got %s", snap.Status)
	}

	resp = httptest.NewRecorder()
	r.ServeHTTP(resp, httptest.NewRequest(http.MethodPost, "/images", strings.NewReader(`{"prompt":"a dog"}`)))
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 while busy, got %d", resp.Code)
	}

	close(gate)
	deadline := time.Now().Add(time.Second)
	for images.Snapshot().Status != imageservice.StatusSuccess {
		if time.Now().After(deadline) {
			t.Fatal("generation did not finish")
		}
		time.Sleep(5 * time.Millisecond)
	}

	resp = httptest.NewRecorder()
	r.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/images/download", nil))
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	if got := resp.Header().Get("Content-Disposition"); got != `attachment; filename="image-1700000000000.png"` {
		t.Fatalf("unexpected disposition %q", got)
	}
	if resp.Body.String() != "png:a cat" {
		t.Fatalf("unexpected body %q", resp.Body.String())
	}
}

func TestDownloadWithoutImage(t *testing.T) {
	r, _ := setupRouter(stubGenerator{})

	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/images/download", nil))
	if resp.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.Code)
	}
}

func TestGenerateBlankPrompt(t *testing.T) {
	r, _ := setupRouter(stubGenerator{})

	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, httptest.NewRequest(http.MethodPost, "/images", strings.NewReader(`{"prompt":"  "}`)))
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.Code)
	}
}
