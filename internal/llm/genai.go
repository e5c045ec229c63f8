package llm

import (
	"context"

	"github.com/pkg/errors"
	"google.golang.org/genai"
)

// GenAIClient completes prompts with the Google Gen AI SDK against the Gemini API.
type GenAIClient struct {
	client *genai.Client
}

func NewGenAIClient(ctx context.Context, apiKey string) (*GenAIClient, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, errors.Wrap(err, "creating genai client")
	}
	return &GenAIClient{client: client}, nil
}

func (g *GenAIClient) Complete(ctx context.Context, model, prompt string) (string, error) {
	res, err := g.client.Models.GenerateContent(ctx, model, genai.Text(prompt), nil)
	if err != nil {
		return "", newCompletionError(model, err)
	}

	text := res.Text()
	if text == "" {
		return "", newCompletionError(model, errors.New("genai returned empty text"))
	}
	return text, nil
}
