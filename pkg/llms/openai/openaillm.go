// Package openai implements the chat completions provider for OpenAI
// and OpenAI compatible endpoints.
package openai

import (
	"context"
	"os"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/mcpbridge/pkg/llms"
	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
)

// ErrEmptyResponse is returned when the completion has no choices
var ErrEmptyResponse = errors.New("openai: no response")

type completionService interface {
	New(ctx context.Context, body openai.ChatCompletionNewParams, opts ...option.RequestOption) (*openai.ChatCompletion, error)
}

// LLM is the OpenAI chat model
type LLM struct {
	completions completionService
	model       string
}

var _ llms.Model = (*LLM)(nil)

// New returns a new OpenAI LLM.
func New(opts ...Option) (*LLM, error) {
	o := &options{
		token:      os.Getenv(tokenEnvVarName),
		baseURL:    os.Getenv(baseURLEnvVarName),
		model:      DefaultModel,
		maxRetries: 2,
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.token == "" {
		return nil, errors.WithMessage(llms.ErrMissingCredential, "OPENAI_API_KEY is not set")
	}

	sdkOpts := []option.RequestOption{
		option.WithAPIKey(o.token),
		option.WithMaxRetries(o.maxRetries),
	}
	if o.baseURL != "" {
		sdkOpts = append(sdkOpts, option.WithBaseURL(o.baseURL))
	}
	if o.organization != "" {
		sdkOpts = append(sdkOpts, option.WithOrganization(o.organization))
	}
	if o.httpClient != nil {
		sdkOpts = append(sdkOpts, option.WithHTTPClient(o.httpClient))
	}

	client := openai.NewClient(sdkOpts...)
	return &LLM{
		completions: &client.Chat.Completions,
		model:       o.model,
	}, nil
}

// GetName implements the Model interface.
func (o *LLM) GetName() string {
	return o.model
}

// GetProviderType implements the Model interface.
func (o *LLM) GetProviderType() llms.ProviderType {
	return llms.ProviderOpenAI
}

// GenerateContent implements the Model interface.
func (o *LLM) GenerateContent(ctx context.Context, messages []llms.Message, options ...llms.CallOption) (*llms.ContentResponse, error) {
	opts := llms.CallOptions{
		Model: o.model,
	}
	for _, opt := range options {
		opt(&opts)
	}

	msgs, err := ToMessages(messages)
	if err != nil {
		return nil, err
	}

	params := openai.ChatCompletionNewParams{
		Model:    opts.Model,
		Messages: msgs,
		Tools:    ToTools(opts.Tools),
	}
	if opts.MaxTokens > 0 {
		params.MaxCompletionTokens = openai.Int(int64(opts.MaxTokens))
	}
	if opts.Temperature > 0 {
		params.Temperature = openai.Float(opts.Temperature)
	}
	if opts.CandidateCount > 1 {
		params.N = openai.Int(int64(opts.CandidateCount))
	}
	if len(opts.StopWords) > 0 {
		params.Stop = openai.ChatCompletionNewParamsStopUnion{OfStringArray: opts.StopWords}
	}

	result, err := o.completions.New(ctx, params)
	if err != nil {
		return nil, errors.Wrap(err, "openai: failed to create completion")
	}
	if len(result.Choices) == 0 {
		return nil, ErrEmptyResponse
	}

	choices := make([]*llms.ContentChoice, 0, len(result.Choices))
	for _, c := range result.Choices {
		choice := &llms.ContentChoice{
			Content:    c.Message.Content,
			StopReason: c.FinishReason,
			GenerationInfo: map[string]any{
				"InputTokens":  result.Usage.PromptTokens,
				"OutputTokens": result.Usage.CompletionTokens,
				"TotalTokens":  result.Usage.TotalTokens,
				"ID":           result.ID,
			},
		}
		for _, tc := range c.Message.ToolCalls {
			if tc.Type != "function" {
				continue
			}
			choice.ToolCalls = append(choice.ToolCalls, llms.ToolCall{
				ID:   tc.ID,
				Type: tc.Type,
				FunctionCall: &llms.FunctionCall{
					Name:      tc.Function.Name,
					Arguments: tc.Function.Arguments,
				},
			})
		}
		choices = append(choices, choice)
	}

	return &llms.ContentResponse{Choices: choices}, nil
}

// ToTools converts the tool definitions to function tools
func ToTools(tools []llms.Tool) []openai.ChatCompletionToolUnionParam {
	if len(tools) == 0 {
		return nil
	}
	res := make([]openai.ChatCompletionToolUnionParam, 0, len(tools))
	for _, tool := range tools {
		if tool.Function == nil {
			continue
		}
		def := openai.FunctionDefinitionParam{
			Name: tool.Function.Name,
		}
		if tool.Function.Description != "" {
			def.Description = openai.String(tool.Function.Description)
		}
		if params := tool.Function.ParametersMap(); params != nil {
			def.Parameters = openai.FunctionParameters(params)
		}
		res = append(res, openai.ChatCompletionFunctionTool(def))
	}
	return res
}

// ToMessages converts the messages to chat completion messages
func ToMessages(messages []llms.Message) ([]openai.ChatCompletionMessageParamUnion, error) {
	res := make([]openai.ChatCompletionMessageParamUnion, 0, len(messages))
	for _, msg := range messages {
		switch msg.Role {
		case llms.RoleSystem:
			res = append(res, openai.SystemMessage(textOf(msg)))
		case llms.RoleHuman:
			res = append(res, openai.UserMessage(textOf(msg)))
		case llms.RoleAI:
			asst := openai.ChatCompletionAssistantMessageParam{}
			var text []string
			for _, part := range msg.Parts {
				switch p := part.(type) {
				case llms.TextContent:
					text = append(text, p.Text)
				case llms.ToolCall:
					if p.FunctionCall == nil {
						return nil, errors.Errorf("openai: tool call %q without function", p.ID)
					}
					asst.ToolCalls = append(asst.ToolCalls, openai.ChatCompletionMessageToolCallUnionParam{
						OfFunction: &openai.ChatCompletionMessageFunctionToolCallParam{
							ID: p.ID,
							Function: openai.ChatCompletionMessageFunctionToolCallFunctionParam{
								Name:      p.FunctionCall.Name,
								Arguments: p.FunctionCall.Arguments,
							},
						},
					})
				}
			}
			if len(text) > 0 {
				asst.Content.OfString = openai.String(strings.Join(text, "\n"))
			}
			res = append(res, openai.ChatCompletionMessageParamUnion{OfAssistant: &asst})
		case llms.RoleTool:
			for _, part := range msg.Parts {
				tr, ok := part.(llms.ToolCallResponse)
				if !ok {
					return nil, errors.Errorf("openai: unsupported tool message part %T", part)
				}
				res = append(res, openai.ToolMessage(tr.Content, tr.ToolCallID))
			}
		default:
			return nil, errors.Wrapf(llms.ErrUnexpectedRole, "openai: role %v", msg.Role)
		}
	}
	return res, nil
}

func textOf(msg llms.Message) string {
	var text []string
	for _, part := range msg.Parts {
		if tc, ok := part.(llms.TextContent); ok {
			text = append(text, tc.Text)
		}
	}
	return strings.Join(text, "\n")
}
