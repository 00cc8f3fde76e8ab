package openai

import (
	"github.com/openai/openai-go/v3/option"
)

const (
	tokenEnvVarName   = "OPENAI_API_KEY"  //nolint:gosec
	baseURLEnvVarName = "OPENAI_BASE_URL" //nolint:gosec

	// DefaultModel is the model used when none is configured
	DefaultModel = "gpt-4o-mini"
)

type options struct {
	token        string
	model        string
	baseURL      string
	organization string
	maxRetries   int
	httpClient   option.HTTPClient
}

// Option is a functional option for the OpenAI client.
type Option func(*options)

// WithToken passes the OpenAI API token to the client. If not set, the token
// is read from the OPENAI_API_KEY environment variable.
func WithToken(token string) Option {
	return func(opts *options) {
		opts.token = token
	}
}

// WithModel passes the OpenAI model to the client.
func WithModel(model string) Option {
	return func(opts *options) {
		if model != "" {
			opts.model = model
		}
	}
}

// WithBaseURL passes the OpenAI base url to the client. If not set, the base url
// is read from the OPENAI_BASE_URL environment variable, and the SDK default
// is used when both are empty.
func WithBaseURL(baseURL string) Option {
	return func(opts *options) {
		opts.baseURL = baseURL
	}
}

// WithOrganization passes the OpenAI organization to the client.
func WithOrganization(organization string) Option {
	return func(opts *options) {
		opts.organization = organization
	}
}

// WithMaxRetries sets the number of SDK retries on transient failures
func WithMaxRetries(n int) Option {
	return func(opts *options) {
		opts.maxRetries = n
	}
}

// WithHTTPClient allows setting a custom HTTP client.
func WithHTTPClient(client option.HTTPClient) Option {
	return func(opts *options) {
		opts.httpClient = client
	}
}
