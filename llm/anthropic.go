package llm

import (
	"context"
	"os"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/vishpuri/FRED/errors"
	"github.com/vishpuri/FRED/session"
)

// AnthropicLLMClient is a client for the Anthropic API.
type AnthropicLLMClient struct {
	client *anthropic.Client
	model  string
}

// NewAnthropicLLMClient creates a new AnthropicLLMClient.
// It requires the ANTHROPIC_API_KEY environment variable to be set.
func NewAnthropicLLMClient(ctx context.Context, modelName string) (*AnthropicLLMClient, error) {
	apiKey := os.Getenv("ANTHROPIC_API_KEY")
	if apiKey == "" {
		return nil, errors.New("ANTHROPIC_API_KEY environment variable not set")
	}

	client := anthropic.NewClient(
		option.WithAPIKey(apiKey),
	)

	return &AnthropicLLMClient{
		client: &client,
		model:  modelName,
	}, nil
}

// Chat sends a chat request to the Anthropic API.
func (a *AnthropicLLMClient) Chat(ctx context.Context, messages []session.Message) (*session.Message, error) {
	anthropicMessages, systemPrompt := convertMessagesToAnthropicMessages(messages)

	params := anthropic.MessageNewParams{
		Model:       anthropic.Model(a.model),
		MaxTokens:   maxTokens,
		Messages:    anthropicMessages,
		Temperature: anthropic.Float(Temperature),
	}
	if systemPrompt != "" {
		params.System = []anthropic.TextBlockParam{
			{Text: systemPrompt},
		}
	}

	resp, err := a.client.Messages.New(ctx, params)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to send message to Anthropic")
	}

	var content string
	for _, block := range resp.Content {
		if text, ok := block.AsAny().(anthropic.TextBlock); ok {
			content += text.Text
		}
	}
	return &session.Message{Role: "assistant", Content: content}, nil
}

// convertMessagesToAnthropicMessages converts our internal message format to
// Anthropic's, returning the system prompt separately.
func convertMessagesToAnthropicMessages(messages []session.Message) ([]anthropic.MessageParam, string) {
	systemPrompt, rest := splitSystem(messages)

	var anthropicMessages []anthropic.MessageParam
	for _, msg := range rest {
		switch msg.Role {
		case "assistant":
			if msg.Content == "" {
				continue
			}
			anthropicMessages = append(anthropicMessages, anthropic.NewAssistantMessage(
				anthropic.NewTextBlock(msg.Content),
			))
		default:
			anthropicMessages = append(anthropicMessages, anthropic.NewUserMessage(
				anthropic.NewTextBlock(msg.Content),
			))
		}
	}
	return anthropicMessages, systemPrompt
}
