package openai

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"

	"github.com/sashabaranov/go-openai"

	"JustNowBackend/pkg/gemini"
	"JustNowBackend/pkg/retrypolicy"
)

type IGenUIChat interface {
	GenerateUI(ctx context.Context, userText string, deterministic bool) (string, error)
	ProviderName() string
}

type chatService struct {
	client *openai.Client
	model  string
}

// New builds the fallback generator. DeepSeek exposes an OpenAI-compatible
// API, so DEEPSEEK_API_KEY plus its base URL reuses the same client.
func New() IGenUIChat {
	apiKey := os.Getenv("OPENAI_API_KEY")
	baseURL := os.Getenv("LLM_BASE_URL")
	model := os.Getenv("OPENAI_CHAT_MODEL")

	if deepseekKey := os.Getenv("DEEPSEEK_API_KEY"); deepseekKey != "" {
		apiKey = deepseekKey
		if baseURL == "" {
			baseURL = "https://api.deepseek.com"
		}
		model = "deepseek-chat"
	}

	if model == "" {
		model = openai.GPT4oMini
	}

	config := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		config.BaseURL = baseURL
	}

	return &chatService{
		client: openai.NewClientWithConfig(config),
		model:  model,
	}
}

func (c *chatService) ProviderName() string {
	return "openai/" + c.model
}

func (c *chatService) GenerateUI(ctx context.Context, userText string, deterministic bool) (string, error) {
	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: gemini.SystemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: userText},
		},
		Temperature: temperatureFor(deterministic),
		MaxTokens:   2000,
	})
	if err != nil {
		return "", classifyChatError(err)
	}

	if len(resp.Choices) == 0 {
		return "", retrypolicy.NewError(retrypolicy.KindDownstreamUnavailable,
			errors.New("no choices in chat completion"))
	}

	return resp.Choices[0].Message.Content, nil
}

// temperatureFor returns the sampling temperature for a generation attempt.
// The request field is omitempty, so a plain 0 would vanish from the wire and
// the provider would fall back to its own default; the smallest non-zero
// float survives marshaling and is effectively zero for sampling.
func temperatureFor(deterministic bool) float32 {
	if deterministic {
		return math.SmallestNonzeroFloat32
	}
	return 0.7
}

func classifyChatError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.HTTPStatusCode == 429:
			return retrypolicy.NewError(retrypolicy.KindRateLimited, err)
		case apiErr.HTTPStatusCode == 401 || apiErr.HTTPStatusCode == 403:
			return retrypolicy.NewError(retrypolicy.KindAuthFailure, err)
		}
	}
	return retrypolicy.NewError(retrypolicy.KindDownstreamUnavailable,
		fmt.Errorf("chat completion failed: %w", err))
}
