package ai

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/zhouzirui/persona-studio/backend/internal/model/chat"
)

func newOpenAITestServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/chat/completions", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Messages []struct {
				Role    string `json:"role"`
				Content string `json:"content"`
			} `json:"messages"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if len(req.Messages) == 0 || req.Messages[0].Role != "system" {
			http.Error(w, "missing system message", http.StatusBadRequest)
			return
		}

		w.Header().Set("Content-Type", "text/event-stream")
		for _, delta := range []string{"function", " loop() {}"} {
			fmt.Fprintf(w, "data: {\"id\":\"1\",\"object\":\"chat.completion.chunk\",\"choices\":[{\"index\":0,\"delta\":{\"content\":%q}}]}\n\n", delta)
		}
		fmt.Fprint(w, "data: [DONE]\n\n")
	})
	mux.HandleFunc("/v1/images/generations", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		payload := base64.StdEncoding.EncodeToString([]byte("png-bytes"))
		fmt.Fprintf(w, `{"created":1,"data":[{"b64_json":%q}]}`, payload)
	})

	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func TestOpenAIServiceStreamChat(t *testing.T) {
	server := newOpenAITestServer(t)
	svc := NewOpenAIService(OpenAIConfig{APIKey: "test", BaseURL: server.URL + "/v1"})

	stream, err := svc.StreamChat(context.Background(), []chat.Message{
		{Sender: chat.SenderUser, Text: "write a loop"},
		{Sender: chat.SenderAI, Text: ""},
	}, "You are an expert programmer.", false)
	require.NoError(t, err)

	deltas, _, err := drain(t, stream)
	require.NoError(t, err)
	require.Equal(t, []string{"function", " loop() {}"}, deltas)
}

func TestOpenAIServiceGenerateImage(t *testing.T) {
	server := newOpenAITestServer(t)
	svc := NewOpenAIService(OpenAIConfig{APIKey: "test", BaseURL: server.URL + "/v1"})

	img, err := svc.GenerateImage(context.Background(), "a cat")
	require.NoError(t, err)
	require.Equal(t, "image/png", img.MIMEType)
	require.Equal(t, []byte("png-bytes"), img.Data)
}

func TestOpenAIServiceSurfacesHTTPErrors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		fmt.Fprint(w, `{"error":{"message":"invalid api key","type":"invalid_request_error"}}`)
	}))
	defer server.Close()

	svc := NewOpenAIService(OpenAIConfig{APIKey: "bad", BaseURL: server.URL + "/v1"})
	_, err := svc.GenerateImage(context.Background(), "a cat")

	var adapterErr *AdapterError
	require.ErrorAs(t, err, &adapterErr)
	require.ErrorContains(t, err, "invalid api key")
}

func TestOpenAIServiceTimeoutDoesNotCutLongStreams(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		flusher := w.(http.Flusher)
		w.Header().Set("Content-Type", "text/event-stream")
		for _, delta := range []string{"slow", " answer"} {
			fmt.Fprintf(w, "data: {\"id\":\"1\",\"object\":\"chat.completion.chunk\",\"choices\":[{\"index\":0,\"delta\":{\"content\":%q}}]}\n\n", delta)
			flusher.Flush()
			time.Sleep(80 * time.Millisecond)
		}
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	defer server.Close()

	svc := NewOpenAIService(OpenAIConfig{APIKey: "test", BaseURL: server.URL + "/v1", Timeout: 50 * time.Millisecond})
	stream, err := svc.StreamChat(context.Background(), []chat.Message{{Sender: chat.SenderUser, Text: "hi"}}, "Be brief.", false)
	require.NoError(t, err)

	deltas, _, err := drain(t, stream)
	require.NoError(t, err)
	require.Equal(t, []string{"slow", " answer"}, deltas)
}

func TestOpenAIServiceImageTimeout(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer server.Close()
	defer close(release)

	svc := NewOpenAIService(OpenAIConfig{APIKey: "test", BaseURL: server.URL + "/v1", Timeout: 50 * time.Millisecond})
	_, err := svc.GenerateImage(context.Background(), "a cat")

	var adapterErr *AdapterError
	require.ErrorAs(t, err, &adapterErr)
	require.ErrorContains(t, err, "deadline exceeded")
}
