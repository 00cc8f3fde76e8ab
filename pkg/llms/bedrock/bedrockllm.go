// Package bedrock implements the chat provider for Anthropic models served
// by Amazon Bedrock.
package bedrock

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/cockroachdb/errors"
	"github.com/effective-security/mcpbridge/pkg/llms"
)

var (
	// ErrEmptyResponse is returned when the response has no content blocks
	ErrEmptyResponse = errors.New("bedrock: no response")
	// ErrUnsupportedProvider is returned for models without tool calling support
	ErrUnsupportedProvider = errors.New("bedrock: unsupported provider")
)

// Invoker is the subset of the Bedrock runtime client used by the LLM
type Invoker interface {
	InvokeModel(ctx context.Context, params *bedrockruntime.InvokeModelInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.InvokeModelOutput, error)
}

// LLM is a Bedrock LLM implementation.
type LLM struct {
	modelID string
	client  Invoker
}

var _ llms.Model = (*LLM)(nil)

// New creates a new Bedrock LLM implementation.
// Only Anthropic models are supported, as the only Bedrock family
// with tool use in the messages API.
func New(ctx context.Context, opts ...Option) (*LLM, error) {
	o := &options{
		modelID: DefaultModel,
	}
	for _, opt := range opts {
		opt(o)
	}

	if provider := getProvider(o.modelID); provider != "anthropic" {
		return nil, errors.WithMessagef(ErrUnsupportedProvider, "model %s", o.modelID)
	}

	if o.client == nil {
		var cfgOpts []func(*config.LoadOptions) error
		if o.region != "" {
			cfgOpts = append(cfgOpts, config.WithRegion(o.region))
		}
		if o.accessKeyID != "" {
			cfgOpts = append(cfgOpts, config.WithCredentialsProvider(
				credentials.NewStaticCredentialsProvider(o.accessKeyID, o.secretKey, o.sessionToken)))
		}
		cfg, err := config.LoadDefaultConfig(ctx, cfgOpts...)
		if err != nil {
			return nil, errors.Wrap(err, "bedrock: failed to load AWS config")
		}
		if cfg.Credentials == nil {
			return nil, errors.WithMessage(llms.ErrMissingCredential, "AWS credentials are not configured")
		}
		o.client = bedrockruntime.NewFromConfig(cfg)
	}

	return &LLM{
		modelID: o.modelID,
		client:  o.client,
	}, nil
}

// GetName implements the Model interface.
func (l *LLM) GetName() string {
	return l.modelID
}

// GetProviderType implements the Model interface.
func (l *LLM) GetProviderType() llms.ProviderType {
	return llms.ProviderBedrock
}

// GenerateContent implements the Model interface.
// Text and tool_use blocks of the reply are merged into a single choice.
func (l *LLM) GenerateContent(ctx context.Context, messages []llms.Message, options ...llms.CallOption) (*llms.ContentResponse, error) {
	opts := llms.CallOptions{
		Model: l.modelID,
	}
	for _, opt := range options {
		opt(&opts)
	}

	input, err := newAnthropicRequest(messages, opts)
	if err != nil {
		return nil, err
	}
	body, err := json.Marshal(input)
	if err != nil {
		return nil, errors.Wrap(err, "bedrock: failed to marshal request")
	}

	out, err := l.client.InvokeModel(ctx, &bedrockruntime.InvokeModelInput{
		ModelId:     aws.String(opts.Model),
		Accept:      aws.String("application/json"),
		ContentType: aws.String("application/json"),
		Body:        body,
	})
	if err != nil {
		return nil, errors.Wrap(err, "bedrock: failed to invoke model")
	}

	var output anthropicResponse
	if err = json.Unmarshal(out.Body, &output); err != nil {
		return nil, errors.Wrap(err, "bedrock: failed to parse response")
	}
	if len(output.Content) == 0 {
		return nil, ErrEmptyResponse
	}

	choice := &llms.ContentChoice{
		StopReason: output.StopReason,
		GenerationInfo: map[string]any{
			"InputTokens":  output.Usage.InputTokens,
			"OutputTokens": output.Usage.OutputTokens,
			"TotalTokens":  output.Usage.InputTokens + output.Usage.OutputTokens,
			"ID":           output.ID,
		},
	}
	var text strings.Builder
	for _, block := range output.Content {
		switch block.Type {
		case "text":
			text.WriteString(block.Text)
		case "tool_use":
			args := string(block.Input)
			if args == "" || args == "null" {
				args = "{}"
			}
			choice.ToolCalls = append(choice.ToolCalls, llms.ToolCall{
				ID:   block.ID,
				Type: "function",
				FunctionCall: &llms.FunctionCall{
					Name:      block.Name,
					Arguments: args,
				},
			})
		}
	}
	choice.Content = text.String()

	return &llms.ContentResponse{
		Choices: []*llms.ContentChoice{choice},
	}, nil
}

// getProvider returns the model family of a model ID or inference profile,
// such as "anthropic.claude-3-haiku-20240307-v1:0" or
// "us.anthropic.claude-sonnet-4-5-20250929-v1:0".
func getProvider(modelID string) string {
	parts := strings.Split(modelID, ".")
	if len(parts) >= 2 {
		switch parts[0] {
		case "us", "eu", "apac", "global", "us-gov":
			return parts[1]
		}
	}
	return parts[0]
}
