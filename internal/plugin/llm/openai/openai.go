package openai

import (
	"context"
	"fmt"

	"github.com/corval/docqa-service/internal/config"
	registryllm "github.com/corval/docqa-service/internal/registry/llm"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
)

func init() {
	registryllm.Register(registryllm.Plugin{
		Name:   "openai",
		Loader: load,
	})
}

func load(ctx context.Context) (registryllm.ChatModel, error) {
	cfg := config.FromContext(ctx)
	if cfg == nil || cfg.OpenAIAPIKey == "" {
		return nil, fmt.Errorf("openai chat: DOCQA_SERVICE_OPENAI_API_KEY is required")
	}
	opts := []openai.Option{
		openai.WithToken(cfg.OpenAIAPIKey),
		openai.WithModel(cfg.ChatModelName),
	}
	if cfg.OpenAIBaseURL != "" {
		opts = append(opts, openai.WithBaseURL(cfg.OpenAIBaseURL))
	}
	client, err := openai.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("openai chat: initialize client: %w", err)
	}
	return &OpenAIChat{client: client, model: cfg.ChatModelName}, nil
}

type OpenAIChat struct {
	client llms.Model
	model  string
}

func (c *OpenAIChat) ModelName() string {
	return c.model
}

func (c *OpenAIChat) Complete(ctx context.Context, prompt string) (string, error) {
	answer, err := llms.GenerateFromSinglePrompt(ctx, c.client, prompt)
	if err != nil {
		return "", &registryllm.UpstreamError{Provider: "openai", Err: err}
	}
	return answer, nil
}
