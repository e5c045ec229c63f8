package llm

import (
	"context"

	"github.com/pkg/errors"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/googleai"
	"github.com/tmc/langchaingo/llms/openai"
)

// Service completes prompts through a langchaingo model.
type Service struct {
	llm llms.Model
}

func NewService(model llms.Model) *Service {
	return &Service{llm: model}
}

// NewGoogleAI builds a Service backed by the Gemini API.
func NewGoogleAI(ctx context.Context, apiKey, defaultModel string) (*Service, error) {
	llm, err := googleai.New(ctx,
		googleai.WithAPIKey(apiKey),
		googleai.WithDefaultModel(defaultModel),
	)
	if err != nil {
		return nil, errors.Wrap(err, "init googleai")
	}
	return &Service{llm: llm}, nil
}

// NewOpenAI builds a Service backed by an OpenAI-compatible endpoint.
func NewOpenAI(baseURL, token, defaultModel string) (*Service, error) {
	llm, err := openai.New(
		openai.WithToken(token),
		openai.WithBaseURL(baseURL),
		openai.WithModel(defaultModel),
	)
	if err != nil {
		return nil, errors.Wrap(err, "init openai")
	}
	return &Service{llm: llm}, nil
}

// Complete sends prompt as a single user turn to model and returns the generated text.
func (s *Service) Complete(ctx context.Context, model, prompt string) (string, error) {
	var opts []llms.CallOption
	if model != "" {
		opts = append(opts, llms.WithModel(model))
	}

	completion, err := llms.GenerateFromSinglePrompt(ctx, s.llm, prompt, opts...)
	if err != nil {
		return "", newCompletionError(model, err)
	}
	return completion, nil
}
