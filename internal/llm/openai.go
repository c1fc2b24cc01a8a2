package llm

import (
	"context"
	"errors"
	"io"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"
)

const defaultOpenAIModel = "gpt-4o-mini"

// OpenAIClient streams from the OpenAI chat completions API.
type OpenAIClient struct {
	client *openai.Client
}

// NewOpenAIClient creates an OpenAI client.
func NewOpenAIClient(apiKey string) (*OpenAIClient, error) {
	if apiKey == "" {
		return nil, errors.New("openai: API key is required")
	}
	return &OpenAIClient{client: openai.NewClient(apiKey)}, nil
}

// Name implements Client.
func (c *OpenAIClient) Name() string {
	return string(ProviderOpenAI)
}

func (c *OpenAIClient) request(req *Request) openai.ChatCompletionRequest {
	model := req.Model
	if model == "" {
		model = defaultOpenAIModel
	}

	messages := make([]openai.ChatCompletionMessage, 0, len(req.Messages)+1)
	if req.System != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: req.System,
		})
	}
	for _, msg := range req.Messages {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    msg.Role,
			Content: msg.Content,
		})
	}

	return openai.ChatCompletionRequest{
		Model:       model,
		Messages:    messages,
		MaxTokens:   req.maxTokens(),
		Temperature: float32(req.Temperature),
		Stream:      true,
	}
}

// Stream implements Client.
func (c *OpenAIClient) Stream(ctx context.Context, req *Request, fn TokenFunc) (*Result, error) {
	start := time.Now()
	chatReq := c.request(req)

	stream, err := c.client.CreateChatCompletionStream(ctx, chatReq)
	if err != nil {
		return nil, err
	}
	defer stream.Close()

	var (
		text strings.Builder
		res  = &Result{Model: chatReq.Model}
	)
	for {
		chunk, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		if len(chunk.Choices) == 0 {
			continue
		}

		choice := chunk.Choices[0]
		if delta := choice.Delta.Content; delta != "" {
			text.WriteString(delta)
			if err := fn(delta); err != nil {
				return nil, err
			}
		}
		if choice.FinishReason != "" {
			res.StopReason = string(choice.FinishReason)
		}
	}

	// Streamed chunks carry no usage.
	prompt := make([]string, len(chatReq.Messages))
	for i, m := range chatReq.Messages {
		prompt[i] = m.Content
	}
	res.Text = text.String()
	res.TokensIn = estimateTokens(prompt...)
	res.TokensOut = estimateTokens(res.Text)
	res.Latency = time.Since(start)
	return res, nil
}
