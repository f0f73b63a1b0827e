package ai

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/zhouzirui/persona-studio/backend/internal/model/chat"
)

const providerOpenAI = "openai"

// OpenAIConfig configures the OpenAI-compatible provider.
type OpenAIConfig struct {
	APIKey     string
	BaseURL    string
	ChatModel  string
	ImageModel string
	ImageSize  string
	// Timeout bounds one image request. Chat streams only end with the caller's context.
	Timeout time.Duration
}

// OpenAIService talks to an OpenAI-compatible endpoint for chat streaming and image generation.
type OpenAIService struct {
	client *openai.Client
	cfg    OpenAIConfig
}

// NewOpenAIService builds the SDK client.
func NewOpenAIService(cfg OpenAIConfig) *OpenAIService {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"); base != "" {
		clientCfg.BaseURL = base
	}

	if cfg.ChatModel == "" {
		cfg.ChatModel = openai.GPT4oMini
	}
	if cfg.ImageModel == "" {
		cfg.ImageModel = openai.CreateImageModelDallE3
	}
	if cfg.ImageSize == "" {
		cfg.ImageSize = openai.CreateImageSize1024x1024
	}

	return &OpenAIService{
		client: openai.NewClientWithConfig(clientCfg),
		cfg:    cfg,
	}
}

// StreamChat streams a chat completion.
func (s *OpenAIService) StreamChat(ctx context.Context, history []chat.Message, systemInstruction string, grounding bool) (Stream, error) {
	req := openai.ChatCompletionRequest{
		Model:    s.cfg.ChatModel,
		Messages: buildOpenAIMessages(BuildSystemPrompt(systemInstruction, grounding), history),
		Stream:   true,
	}

	stream, err := s.client.CreateChatCompletionStream(ctx, req)
	if err != nil {
		return nil, &AdapterError{Provider: providerOpenAI, Err: err}
	}

	log.Printf("[ai] openai stream opened, model=%s, turns=%d, grounding=%t", s.cfg.ChatModel, len(req.Messages)-1, grounding)
	return &textStream{
		provider:  providerOpenAI,
		grounding: grounding,
		recv: func() (string, error) {
			resp, err := stream.Recv()
			if err != nil {
				return "", err
			}
			if len(resp.Choices) == 0 {
				return "", nil
			}
			return resp.Choices[0].Delta.Content, nil
		},
		close: func() { _ = stream.Close() },
	}, nil
}

// GenerateImage requests one base64-encoded image.
func (s *OpenAIService) GenerateImage(ctx context.Context, prompt string) (Image, error) {
	if s.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.Timeout)
		defer cancel()
	}

	resp, err := s.client.CreateImage(ctx, openai.ImageRequest{
		Prompt:         prompt,
		Model:          s.cfg.ImageModel,
		N:              1,
		Size:           s.cfg.ImageSize,
		ResponseFormat: openai.CreateImageResponseFormatB64JSON,
	})
	if err != nil {
		return Image{}, &AdapterError{Provider: providerOpenAI, Err: err}
	}
	if len(resp.Data) == 0 || resp.Data[0].B64JSON == "" {
		return Image{}, &AdapterError{Provider: providerOpenAI, Err: errors.New("the model returned no image")}
	}

	data, err := base64.StdEncoding.DecodeString(resp.Data[0].B64JSON)
	if err != nil {
		return Image{}, &AdapterError{Provider: providerOpenAI, Err: fmt.Errorf("decode image: %w", err)}
	}

	log.Printf("[ai] openai image generated, model=%s, bytes=%d", s.cfg.ImageModel, len(data))
	return Image{MIMEType: "image/png", Data: data}, nil
}

func buildOpenAIMessages(system string, history []chat.Message) []openai.ChatCompletionMessage {
	turns := conversationTurns(history)
	messages := make([]openai.ChatCompletionMessage, 0, len(turns)+1)
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleSystem,
		Content: system,
	})
	for _, msg := range turns {
		role := openai.ChatMessageRoleUser
		if msg.Sender == chat.SenderAI {
			role = openai.ChatMessageRoleAssistant
		}
		messages = append(messages, openai.ChatCompletionMessage{Role: role, Content: msg.Text})
	}
	return messages
}
