// Package llm adapts the supported model providers to one chat interface.
package llm

import (
	"context"
	"fmt"
	"sync"

	"github.com/vishpuri/FRED/errors"
	"github.com/vishpuri/FRED/session"
)

// Temperature is used for every completion; plans and summaries must be
// close to deterministic.
const Temperature = 0.1

const maxTokens = 4096

// LLMClient is the interface for interacting with a Large Language Model.
type LLMClient interface {
	Chat(ctx context.Context, messages []session.Message) (*session.Message, error)
}

// New returns the client for provider ("openai", "anthropic", "gemini",
// "bedrock" or "mock").
func New(ctx context.Context, provider, model string) (LLMClient, error) {
	switch provider {
	case "openai":
		return NewOpenAILLMClient(ctx, model)
	case "anthropic":
		return NewAnthropicLLMClient(ctx, model)
	case "gemini":
		return NewGeminiLLMClient(ctx, model)
	case "bedrock":
		return NewBedrockLLMClient(ctx, model)
	case "mock":
		return &MockLLMClient{}, nil
	}
	return nil, errors.New("unknown LLM client '%s'", provider)
}

// splitSystem separates system messages from the conversation. Providers
// that take the system prompt out of band use the last one.
func splitSystem(messages []session.Message) (string, []session.Message) {
	var system string
	var rest []session.Message
	for _, msg := range messages {
		if msg.Role == "system" {
			system = msg.Content
			continue
		}
		rest = append(rest, msg)
	}
	return system, rest
}

// MockLLMClient replays scripted replies in order. With no replies left it
// parrots the last message back.
type MockLLMClient struct {
	Replies []string
	// Err, when set, is returned by every call.
	Err error

	mu    sync.Mutex
	calls [][]session.Message
}

func (m *MockLLMClient) Chat(ctx context.Context, messages []session.Message) (*session.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, append([]session.Message(nil), messages...))
	if m.Err != nil {
		return nil, m.Err
	}
	if len(m.Replies) > 0 {
		reply := m.Replies[0]
		m.Replies = m.Replies[1:]
		return &session.Message{Role: "assistant", Content: reply}, nil
	}
	if len(messages) == 0 {
		return &session.Message{Role: "assistant"}, nil
	}
	last := messages[len(messages)-1].Content
	return &session.Message{
		Role:    "assistant",
		Content: fmt.Sprintf("I am a mock LLM. You said: '%s'.", last),
	}, nil
}

// Calls returns the message lists the mock has received.
func (m *MockLLMClient) Calls() [][]session.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([][]session.Message(nil), m.calls...)
}
