// Package googleai implements a provider for Google AI Gemini models.
// See https://ai.google.dev/ for more details.
package googleai

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/mcpbridge/pkg/llms"
	"google.golang.org/genai"
)

// generator is the subset of genai.Models used by the provider
type generator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// GoogleAI is a type that represents a Google AI API client.
type GoogleAI struct {
	models generator
	opts   Options
}

var _ llms.Model = (*GoogleAI)(nil)

// New creates a new GoogleAI client.
// It fails with llms.ErrMissingCredential when neither API key nor
// credentials are provided, without making any network call.
func New(ctx context.Context, opts ...Option) (*GoogleAI, error) {
	clientOptions := DefaultOptions()
	for _, opt := range opts {
		opt(&clientOptions)
	}
	clientOptions.EnsureAuthPresent()
	if !clientOptions.HasAuth() {
		return nil, errors.WithMessage(llms.ErrMissingCredential, "GEMINI_API_KEY is not set")
	}

	cfg := &genai.ClientConfig{
		APIKey:      clientOptions.APIKey,
		Credentials: clientOptions.Credentials,
		HTTPClient:  clientOptions.HTTPClient,
		Backend:     genai.BackendGeminiAPI,
	}

	client, err := genai.NewClient(ctx, cfg)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create genai client")
	}

	return &GoogleAI{
		models: client.Models,
		opts:   clientOptions,
	}, nil
}
