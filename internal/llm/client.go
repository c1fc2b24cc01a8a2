// Package llm streams text generations from hosted model providers.
package llm

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Message roles accepted by every provider.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

const defaultMaxTokens = 2048

// TokenFunc receives each generated text fragment in order. Returning an
// error stops the generation.
type TokenFunc func(token string) error

// Message is one prior turn of the prompt.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Request describes one generation. An empty Model selects the provider
// default; a zero MaxTokens selects 2048.
type Request struct {
	Model       string
	System      string
	Messages    []Message
	MaxTokens   int
	Temperature float64
}

// Prompt builds a single-turn request.
func Prompt(model, system, user string) *Request {
	return &Request{
		Model:    model,
		System:   system,
		Messages: []Message{{Role: RoleUser, Content: user}},
	}
}

func (r *Request) maxTokens() int {
	if r.MaxTokens > 0 {
		return r.MaxTokens
	}
	return defaultMaxTokens
}

// Result is what a finished generation produced.
type Result struct {
	Text       string
	Model      string
	TokensIn   int
	TokensOut  int
	StopReason string
	Latency    time.Duration
}

// Client is a streaming model provider.
type Client interface {
	Stream(ctx context.Context, req *Request, fn TokenFunc) (*Result, error)
	Name() string
}

// Provider names a supported backend.
type Provider string

const (
	ProviderAnthropic Provider = "anthropic"
	ProviderOpenAI    Provider = "openai"
)

// NewClient creates the client for provider.
func NewClient(provider Provider, apiKey string) (Client, error) {
	switch Provider(strings.ToLower(string(provider))) {
	case ProviderAnthropic:
		return NewAnthropicClient(apiKey)
	case ProviderOpenAI:
		return NewOpenAIClient(apiKey)
	default:
		return nil, fmt.Errorf("unknown LLM provider %q", provider)
	}
}

// withSystem returns the messages with the system prompt folded into the
// first user turn, for providers that take no separate system field.
func withSystem(req *Request) []Message {
	if req.System == "" || len(req.Messages) == 0 {
		return req.Messages
	}
	out := make([]Message, len(req.Messages))
	copy(out, req.Messages)
	for i, m := range out {
		if m.Role == RoleUser {
			out[i].Content = req.System + "\n\n" + m.Content
			break
		}
	}
	return out
}

// estimateTokens approximates usage for streams that do not report it.
func estimateTokens(texts ...string) int {
	n := 0
	for _, t := range texts {
		n += len(t)
	}
	return n / 4
}
