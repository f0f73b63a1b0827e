package ai

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/zhouzirui/persona-studio/backend/internal/model/chat"
)

// Chunk is one element of a streamed chat answer.
type Chunk struct {
	Text    string
	Sources []chat.Source
}

// Stream is a finite, non-restartable sequence of chunks. Recv returns io.EOF once the model
// has finished.
type Stream interface {
	Recv() (Chunk, error)
	Close()
}

// ChatStreamer submits a conversation and streams back the answer.
type ChatStreamer interface {
	StreamChat(ctx context.Context, history []chat.Message, systemInstruction string, grounding bool) (Stream, error)
}

// ImageGenerator turns a prompt into a single image.
type ImageGenerator interface {
	GenerateImage(ctx context.Context, prompt string) (Image, error)
}

// AdapterError wraps a failure of the upstream generative API. Its message is the cause
// verbatim so callers can show it to the user.
type AdapterError struct {
	Provider string
	Err      error
}

func (e *AdapterError) Error() string {
	return e.Err.Error()
}

func (e *AdapterError) Unwrap() error {
	return e.Err
}

// ErrNotConfigured is the cause reported when no provider credentials were supplied.
var ErrNotConfigured = errors.New("AI service is not configured, check the API key settings")

// Unavailable stands in for a provider when credentials are missing.
type Unavailable struct{}

func (Unavailable) StreamChat(context.Context, []chat.Message, string, bool) (Stream, error) {
	return nil, &AdapterError{Provider: "none", Err: ErrNotConfigured}
}

func (Unavailable) GenerateImage(context.Context, string) (Image, error) {
	return Image{}, &AdapterError{Provider: "none", Err: ErrNotConfigured}
}

// Image is a generated picture held in memory.
type Image struct {
	MIMEType string
	Data     []byte
}

// DataURL renders the image as a data: URL the browser can display directly.
func (img Image) DataURL() string {
	if len(img.Data) == 0 {
		return ""
	}
	mime := img.MIMEType
	if mime == "" {
		mime = "image/png"
	}
	return "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(img.Data)
}

// ParseDataURL decodes a base64 data: URL produced by DataURL.
func ParseDataURL(raw string) (Image, error) {
	rest, ok := strings.CutPrefix(raw, "data:")
	if !ok {
		return Image{}, fmt.Errorf("not a data url")
	}
	meta, payload, ok := strings.Cut(rest, ",")
	if !ok {
		return Image{}, fmt.Errorf("data url has no payload")
	}
	mime, ok := strings.CutSuffix(meta, ";base64")
	if !ok {
		return Image{}, fmt.Errorf("data url is not base64 encoded")
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return Image{}, fmt.Errorf("decode data url: %w", err)
	}
	return Image{MIMEType: mime, Data: data}, nil
}

// conversationTurns drops blank messages; the upstream APIs reject empty turns.
func conversationTurns(history []chat.Message) []chat.Message {
	turns := make([]chat.Message, 0, len(history))
	for _, msg := range history {
		if msg.IsBlank() {
			continue
		}
		turns = append(turns, msg)
	}
	return turns
}

// textStream adapts a provider-specific receive loop to Stream. For grounded requests it
// emits one extra chunk with the sources cited in the accumulated answer before io.EOF.
type textStream struct {
	provider  string
	recv      func() (string, error)
	close     func()
	grounding bool

	text    strings.Builder
	flushed bool
}

func (s *textStream) Recv() (Chunk, error) {
	for {
		delta, err := s.recv()
		if errors.Is(err, io.EOF) {
			return s.finish()
		}
		if err != nil {
			return Chunk{}, &AdapterError{Provider: s.provider, Err: err}
		}
		if delta == "" {
			continue
		}
		s.text.WriteString(delta)
		return Chunk{Text: delta}, nil
	}
}

func (s *textStream) finish() (Chunk, error) {
	if s.grounding && !s.flushed {
		s.flushed = true
		if sources := ExtractSources(s.text.String()); len(sources) > 0 {
			return Chunk{Sources: sources}, nil
		}
	}
	return Chunk{}, io.EOF
}

func (s *textStream) Close() {
	if s.close != nil {
		s.close()
	}
}
