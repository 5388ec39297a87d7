package nlu

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

// OpenAIExtractor asks an OpenAI chat model for structured fields.
type OpenAIExtractor struct {
	client  *openai.Client
	model   string
	timeout time.Duration
}

// NewOpenAIExtractor builds the extractor. baseURL may point at any
// OpenAI-compatible endpoint; empty keeps the default.
func NewOpenAIExtractor(apiKey, model, baseURL string, timeout time.Duration) (*OpenAIExtractor, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, errors.New("nlu: openai api key is required")
	}
	if model == "" {
		model = "gpt-4o-mini"
	}
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return &OpenAIExtractor{client: openai.NewClientWithConfig(cfg), model: model, timeout: timeout}, nil
}

func (o *OpenAIExtractor) Name() string { return "openai" }

func (o *OpenAIExtractor) Extract(ctx context.Context, text string) (Result, error) {
	if o.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.timeout)
		defer cancel()
	}

	resp, err := o.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: o.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: text},
		},
		Temperature:    0,
		ResponseFormat: &openai.ChatCompletionResponseFormat{Type: openai.ChatCompletionResponseFormatTypeJSONObject},
	})
	if err != nil {
		return Result{}, fmt.Errorf("nlu: openai request failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return Result{}, nil
	}
	return ParseResult(resp.Choices[0].Message.Content), nil
}
