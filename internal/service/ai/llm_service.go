package ai

import (
	"context"
	"fmt"
	"log"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"

	"github.com/zhouzirui/persona-studio/backend/internal/config"
	"github.com/zhouzirui/persona-studio/backend/internal/model/chat"
)

const providerArk = "ark"

// ArkService streams chat completions from an Ark model through an eino chain.
type ArkService struct {
	chain compose.Runnable[map[string]any, *schema.Message]
}

// NewArkService creates the Ark chat model from configuration and compiles the chain.
func NewArkService(ctx context.Context, cfg config.AIConfig) (*ArkService, error) {
	chatModel, err := cfg.NewChatModel(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create chat model: %w", err)
	}
	return NewArkServiceWithModel(ctx, chatModel)
}

// NewArkServiceWithModel compiles the chain around an existing chat model.
func NewArkServiceWithModel(ctx context.Context, chatModel model.BaseChatModel) (*ArkService, error) {
	promptTemplate := prompt.FromMessages(
		schema.FString,
		schema.SystemMessage("{system}"),
		schema.MessagesPlaceholder("history", false),
	)

	chain := compose.NewChain[map[string]any, *schema.Message]()
	chain.AppendChatTemplate(promptTemplate)
	chain.AppendChatModel(chatModel)

	runnable, err := chain.Compile(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to compile chat chain: %w", err)
	}

	return &ArkService{chain: runnable}, nil
}

// StreamChat streams the model answer for the conversation.
func (s *ArkService) StreamChat(ctx context.Context, history []chat.Message, systemInstruction string, grounding bool) (Stream, error) {
	turns := buildHistoryMessages(history)
	input := map[string]any{
		"system":  BuildSystemPrompt(systemInstruction, grounding),
		"history": turns,
	}

	reader, err := s.chain.Stream(ctx, input)
	if err != nil {
		return nil, &AdapterError{Provider: providerArk, Err: fmt.Errorf("failed to stream AI chain output: %w", err)}
	}

	log.Printf("[ai] ark stream opened, turns=%d, grounding=%t", len(turns), grounding)
	return &textStream{
		provider:  providerArk,
		grounding: grounding,
		recv: func() (string, error) {
			msg, err := reader.Recv()
			if err != nil {
				return "", err
			}
			if msg == nil {
				return "", nil
			}
			return msg.Content, nil
		},
		close: reader.Close,
	}, nil
}

func buildHistoryMessages(messages []chat.Message) []*schema.Message {
	turns := conversationTurns(messages)
	history := make([]*schema.Message, 0, len(turns))
	for _, msg := range turns {
		switch msg.Sender {
		case chat.SenderUser:
			history = append(history, schema.UserMessage(msg.Text))
		case chat.SenderAI:
			history = append(history, schema.AssistantMessage(msg.Text, nil))
		}
	}
	return history
}
