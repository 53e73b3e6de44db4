package llm

import (
	"context"
	"os"

	"github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"

	"github.com/vishpuri/FRED/errors"
	"github.com/vishpuri/FRED/session"
)

// OpenAILLMClient is a client for the OpenAI Chat Completion API.
type OpenAILLMClient struct {
	client *openai.Client
	model  string
}

// NewOpenAILLMClient creates a new OpenAILLMClient. It requires the OPENAI_API_KEY environment variable to be set.
// It also supports OPENAI_BASE_URL for custom API endpoints.
func NewOpenAILLMClient(ctx context.Context, modelName string) (*OpenAILLMClient, error) {
	apiKey := os.Getenv("OPENAI_API_KEY")
	if apiKey == "" {
		return nil, errors.New("OPENAI_API_KEY environment variable not set")
	}

	options := []option.RequestOption{
		option.WithAPIKey(apiKey),
	}
	if baseURL := os.Getenv("OPENAI_BASE_URL"); baseURL != "" {
		options = append(options, option.WithBaseURL(baseURL))
	}

	c := openai.NewClient(options...)
	// NewClient returns a value; keep a pointer to share its transport.
	return &OpenAILLMClient{client: &c, model: modelName}, nil
}

// Chat sends a chat request to OpenAI and returns the first choice.
func (o *OpenAILLMClient) Chat(ctx context.Context, messages []session.Message) (*session.Message, error) {
	params := openai.ChatCompletionNewParams{
		Model:       openai.ChatModel(o.model),
		Messages:    convertMessagesToOpenaiContent(messages),
		Temperature: openai.Float(Temperature),
	}

	resp, err := o.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to send message to OpenAI")
	}
	if len(resp.Choices) == 0 {
		return &session.Message{Role: "assistant", Content: ""}, nil
	}
	return &session.Message{Role: "assistant", Content: resp.Choices[0].Message.Content}, nil
}

// convertMessagesToOpenaiContent converts our internal message format to OpenAI's.
func convertMessagesToOpenaiContent(messages []session.Message) []openai.ChatCompletionMessageParamUnion {
	var chatMessages []openai.ChatCompletionMessageParamUnion
	for _, msg := range messages {
		switch msg.Role {
		case "system":
			chatMessages = append(chatMessages, openai.SystemMessage(msg.Content))
		case "assistant":
			chatMessages = append(chatMessages, openai.AssistantMessage(msg.Content))
		default:
			chatMessages = append(chatMessages, openai.UserMessage(msg.Content))
		}
	}
	return chatMessages
}
