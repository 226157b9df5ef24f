package model

import (
	"context"
	"fmt"
	"strings"

	openaisdk "github.com/openai/openai-go"

	contractx "github.com/wrenhq/wren/agent/contract"
	openrouterx "github.com/wrenhq/wren/pkg/openrouter"
)

// OpenRouterInvoker completes prompts through the OpenRouter chat completions
// endpoint using the OpenAI SDK client.
type OpenRouterInvoker struct {
	client      *openaisdk.Client
	model       string
	maxTokens   int64
	temperature float64
}

func NewOpenRouterInvoker(cfg openrouterx.Config) (*OpenRouterInvoker, error) {
	client := openrouterx.NewClient(cfg)
	if client == nil {
		return nil, fmt.Errorf("%w: openrouter api key is required", contractx.ErrConfiguration)
	}
	if strings.TrimSpace(cfg.Model) == "" {
		return nil, fmt.Errorf("%w: openrouter model is required", contractx.ErrConfiguration)
	}

	return &OpenRouterInvoker{
		client:      client,
		model:       strings.TrimSpace(cfg.Model),
		maxTokens:   int64(cfg.MaxCompletionToken),
		temperature: cfg.Temperature,
	}, nil
}

func (i *OpenRouterInvoker) Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	params := openaisdk.ChatCompletionNewParams{
		Model: openaisdk.ChatModel(i.model),
		Messages: []openaisdk.ChatCompletionMessageParamUnion{
			openaisdk.SystemMessage(systemPrompt),
			openaisdk.UserMessage(userPrompt),
		},
		Temperature: openaisdk.Float(i.temperature),
	}
	if i.maxTokens > 0 {
		params.MaxTokens = openaisdk.Int(i.maxTokens)
	}

	resp, err := i.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("%w: chat completion: %v", contractx.ErrModelInvoke, err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%w: chat completion returned no choices", contractx.ErrModelInvoke)
	}

	text := strings.TrimSpace(resp.Choices[0].Message.Content)
	if text == "" {
		return "", fmt.Errorf("%w: chat completion returned empty content", contractx.ErrModelInvoke)
	}
	return text, nil
}
