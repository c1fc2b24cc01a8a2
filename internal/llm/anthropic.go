package llm

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

const defaultAnthropicModel = "claude-3-5-haiku-20241022"

// AnthropicClient streams from the Anthropic Messages API.
type AnthropicClient struct {
	client *anthropic.Client
}

// NewAnthropicClient creates an Anthropic client.
func NewAnthropicClient(apiKey string) (*AnthropicClient, error) {
	if apiKey == "" {
		return nil, errors.New("anthropic: API key is required")
	}
	return &AnthropicClient{
		client: anthropic.NewClient(option.WithAPIKey(apiKey)),
	}, nil
}

// Name implements Client.
func (c *AnthropicClient) Name() string {
	return string(ProviderAnthropic)
}

func (c *AnthropicClient) params(req *Request) (anthropic.MessageNewParams, string) {
	model := req.Model
	if model == "" {
		model = defaultAnthropicModel
	}

	msgs := withSystem(req)
	messages := make([]anthropic.MessageParam, len(msgs))
	for i, msg := range msgs {
		messages[i] = anthropic.MessageParam{
			Role: anthropic.F(anthropic.MessageParamRole(msg.Role)),
			Content: anthropic.F([]anthropic.ContentBlockParamUnion{
				anthropic.TextBlockParam{
					Type: anthropic.F(anthropic.TextBlockParamTypeText),
					Text: anthropic.F(msg.Content),
				},
			}),
		}
	}

	return anthropic.MessageNewParams{
		Model:     anthropic.F(model),
		MaxTokens: anthropic.F(int64(req.maxTokens())),
		Messages:  anthropic.F(messages),
	}, model
}

// Stream implements Client.
func (c *AnthropicClient) Stream(ctx context.Context, req *Request, fn TokenFunc) (*Result, error) {
	start := time.Now()
	params, model := c.params(req)

	stream := c.client.Messages.NewStreaming(ctx, params)

	var (
		text strings.Builder
		res  = &Result{Model: model}
	)
	for stream.Next() {
		event := stream.Current()
		switch event.Type {
		case anthropic.MessageStreamEventTypeContentBlockDelta:
			if event.Delta.Type != "text_delta" {
				continue
			}
			text.WriteString(event.Delta.Text)
			if err := fn(event.Delta.Text); err != nil {
				return nil, err
			}
		case anthropic.MessageStreamEventTypeMessageDelta:
			res.StopReason = string(event.Delta.StopReason)
			res.TokensOut = int(event.Usage.OutputTokens)
		}
	}
	if err := stream.Err(); err != nil {
		return nil, err
	}

	// Input usage only arrives on message_start.
	var prompt []string
	for _, m := range withSystem(req) {
		prompt = append(prompt, m.Content)
	}
	res.TokensIn = estimateTokens(prompt...)
	res.Text = text.String()
	res.Latency = time.Since(start)
	return res, nil
}
