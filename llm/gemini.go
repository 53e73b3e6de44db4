package llm

import (
	"context"
	"os"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"github.com/vishpuri/FRED/errors"
	"github.com/vishpuri/FRED/session"
)

// GeminiLLMClient is a client for the Google Gemini API.
type GeminiLLMClient struct {
	client    *genai.Client
	modelName string
}

// NewGeminiLLMClient creates a new GeminiLLMClient.
// It requires the GEMINI_API_KEY environment variable to be set.
func NewGeminiLLMClient(ctx context.Context, modelName string) (*GeminiLLMClient, error) {
	apiKey := os.Getenv("GEMINI_API_KEY")
	if apiKey == "" {
		return nil, errors.New("GEMINI_API_KEY environment variable not set")
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, errors.Wrapf(err, "failed to create genai client")
	}

	return &GeminiLLMClient{client: client, modelName: modelName}, nil
}

// Chat sends a chat request to the Gemini API. A model handle is built per
// call so concurrent queries do not share a system instruction.
func (g *GeminiLLMClient) Chat(ctx context.Context, messages []session.Message) (*session.Message, error) {
	systemPrompt, rest := splitSystem(messages)
	if len(rest) == 0 {
		return nil, errors.New("no messages to send to Gemini")
	}

	model := g.client.GenerativeModel(g.modelName)
	model.SetTemperature(Temperature)
	if systemPrompt != "" {
		model.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(systemPrompt)}}
	}

	history := convertMessagesToGeminiContent(rest)
	lastMessage := history[len(history)-1]

	chatSession := model.StartChat()
	chatSession.History = history[:len(history)-1]
	resp, err := chatSession.SendMessage(ctx, lastMessage.Parts...)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to send message to Gemini")
	}
	return processGeminiResponse(resp)
}

// convertMessagesToGeminiContent converts our internal message format to Gemini's.
func convertMessagesToGeminiContent(messages []session.Message) []*genai.Content {
	var contents []*genai.Content
	for _, msg := range messages {
		role := "user"
		if msg.Role == "assistant" {
			role = "model"
		}
		contents = append(contents, &genai.Content{
			Role:  role,
			Parts: []genai.Part{genai.Text(msg.Content)},
		})
	}
	return contents
}

func processGeminiResponse(resp *genai.GenerateContentResponse) (*session.Message, error) {
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return nil, errors.New("received an empty response from Gemini")
	}

	var responseContent string
	for _, part := range resp.Candidates[0].Content.Parts {
		switch v := part.(type) {
		case genai.Text:
			responseContent += string(v)
		default:
			return nil, errors.New("unsupported part type in Gemini response: %T", v)
		}
	}
	return &session.Message{Role: "assistant", Content: responseContent}, nil
}

// Close releases the underlying client.
func (g *GeminiLLMClient) Close() error {
	return g.client.Close()
}
