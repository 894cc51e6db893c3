package llm

import (
	"context"
	"fmt"
	"math"

	openai "github.com/sashabaranov/go-openai"
)

const defaultOpenAIModel = "gpt-4o-mini"

// openAIClient implements Client on the OpenAI chat completions API.
type openAIClient struct {
	client      *openai.Client
	model       string
	temperature float32
	maxTokens   int
}

func newOpenAIClient(cfg Config) (Client, error) {
	if err := requireAPIKey("OpenAI", cfg.APIKey); err != nil {
		return nil, err
	}

	model := cfg.Model
	if model == "" {
		model = defaultOpenAIModel
	}

	oc := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		oc.BaseURL = cfg.BaseURL
	}

	// The request omits a zero temperature, which the API reads as its own default.
	temperature := float32(cfg.temperature())
	if temperature == 0 {
		temperature = math.SmallestNonzeroFloat32
	}

	return &openAIClient{
		client:      openai.NewClientWithConfig(oc),
		model:       model,
		temperature: temperature,
		maxTokens:   cfg.maxTokens(),
	}, nil
}

func (c *openAIClient) Name() string {
	return ProviderOpenAI
}

// Complete requests a JSON object completion.
func (c *openAIClient) Complete(ctx context.Context, system, prompt string) (string, error) {
	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system},
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		Temperature: c.temperature,
		MaxTokens:   c.maxTokens,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	})
	if err != nil {
		return "", fmt.Errorf("OpenAI request failed: %w", err)
	}

	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("no completion choices returned")
	}
	return resp.Choices[0].Message.Content, nil
}

func (c *openAIClient) Close() error {
	return nil
}
