package llm

import (
	"context"
	"encoding/json"
	"os"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"

	"github.com/vishpuri/FRED/errors"
	"github.com/vishpuri/FRED/session"
)

// BedrockLLMClient is a client for the Anthropic models on AWS Bedrock.
type BedrockLLMClient struct {
	client  *bedrockruntime.Client
	modelID string
}

// NewBedrockLLMClient creates a new BedrockLLMClient.
// It requires AWS credentials to be configured in the environment.
func NewBedrockLLMClient(ctx context.Context, modelID string) (*BedrockLLMClient, error) {
	cfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to load AWS config")
	}
	if cfg.Region == "" {
		cfg.Region = os.Getenv("AWS_DEFAULT_REGION")
	}
	if cfg.Region == "" {
		cfg.Region = "us-east-1"
	}

	var opts []func(*bedrockruntime.Options)
	// Custom endpoint, useful for testing.
	if endpoint := os.Getenv("BEDROCK_ENDPOINT_URL"); endpoint != "" {
		opts = append(opts, func(o *bedrockruntime.Options) {
			o.BaseEndpoint = aws.String(endpoint)
		})
	}

	return &BedrockLLMClient{
		client:  bedrockruntime.NewFromConfig(cfg, opts...),
		modelID: modelID,
	}, nil
}

// Chat sends a chat request to the Anthropic model via AWS Bedrock.
func (b *BedrockLLMClient) Chat(ctx context.Context, messages []session.Message) (*session.Message, error) {
	anthropicMessages, systemPrompt := convertMessagesToAnthropicFormat(messages)

	requestBody, err := createAnthropicRequest(anthropicMessages, systemPrompt)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to create Anthropic request")
	}

	resp, err := b.client.InvokeModel(ctx, &bedrockruntime.InvokeModelInput{
		ModelId:     aws.String(b.modelID),
		ContentType: aws.String("application/json"),
		Body:        requestBody,
	})
	if err != nil {
		return nil, errors.Wrapf(err, "failed to invoke Bedrock model")
	}
	return processBedrockResponse(resp.Body)
}

type bedrockContent struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

type bedrockMessage struct {
	Role    string           `json:"role"`
	Content []bedrockContent `json:"content"`
}

// convertMessagesToAnthropicFormat converts our internal message format to
// the Anthropic messages body used on Bedrock.
func convertMessagesToAnthropicFormat(messages []session.Message) ([]bedrockMessage, string) {
	systemPrompt, rest := splitSystem(messages)

	var out []bedrockMessage
	for _, msg := range rest {
		role := "user"
		if msg.Role == "assistant" {
			if msg.Content == "" {
				continue
			}
			role = "assistant"
		}
		out = append(out, bedrockMessage{
			Role:    role,
			Content: []bedrockContent{{Type: "text", Text: msg.Content}},
		})
	}
	return out, systemPrompt
}

// createAnthropicRequest creates the request body for Anthropic models on Bedrock.
func createAnthropicRequest(messages []bedrockMessage, systemPrompt string) ([]byte, error) {
	request := map[string]interface{}{
		"anthropic_version": "bedrock-2023-05-31",
		"max_tokens":        maxTokens,
		"temperature":       Temperature,
		"messages":          messages,
	}
	if systemPrompt != "" {
		request["system"] = systemPrompt
	}
	return json.Marshal(request)
}

// processBedrockResponse extracts the text of a Bedrock response.
func processBedrockResponse(body []byte) (*session.Message, error) {
	var response struct {
		Content []bedrockContent `json:"content"`
		Error   json.RawMessage  `json:"error"`
	}
	if err := json.Unmarshal(body, &response); err != nil {
		return nil, errors.Wrapf(err, "failed to unmarshal Bedrock response")
	}
	if len(response.Error) > 0 && string(response.Error) != "null" {
		return nil, errors.New("Bedrock API error: %s", response.Error)
	}

	var responseContent string
	for _, item := range response.Content {
		if item.Type == "text" {
			responseContent += item.Text
		}
	}
	return &session.Message{Role: "assistant", Content: responseContent}, nil
}
