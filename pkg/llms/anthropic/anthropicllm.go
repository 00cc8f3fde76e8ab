package anthropic

import (
	"context"
	"encoding/json"
	"os"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/cockroachdb/errors"
	"github.com/effective-security/mcpbridge/pkg/llms"
	"github.com/effective-security/mcpbridge/pkg/llmutils"
	"github.com/effective-security/x/values"
)

var (
	// ErrEmptyResponse is returned when the response has no content blocks
	ErrEmptyResponse = errors.New("anthropic: no response")
	// ErrInvalidContentType is returned for message parts not valid for the role
	ErrInvalidContentType = errors.New("anthropic: invalid content type")
	// ErrUnsupportedMessageType is returned for unknown roles
	ErrUnsupportedMessageType = errors.New("anthropic: unsupported message type")
)

// DefaultMaxTokens is the max_tokens value when none is provided
const DefaultMaxTokens = 4096

type messageService interface {
	New(ctx context.Context, body anthropic.MessageNewParams, opts ...option.RequestOption) (*anthropic.Message, error)
}

// LLM is the Anthropic chat model
type LLM struct {
	messages messageService
	Options  *Options
}

var _ llms.Model = (*LLM)(nil)

// New creates a new Anthropic LLM client using the official Anthropic SDK.
// If no token is provided via options, the ANTHROPIC_API_KEY environment
// variable is used.
func New(opts ...Option) (*LLM, error) {
	options := &Options{
		Token:      os.Getenv(TokenEnvVarName),
		Model:      DefaultModel,
		MaxRetries: 2,
	}

	for _, opt := range opts {
		opt(options)
	}

	if len(options.Token) == 0 {
		return nil, errors.WithMessage(llms.ErrMissingCredential, "ANTHROPIC_API_KEY is not set")
	}

	sdkOpts := []option.RequestOption{
		option.WithAPIKey(options.Token),
		option.WithMaxRetries(options.MaxRetries),
		option.WithRequestTimeout(5 * time.Minute),
	}
	if options.BaseURL != "" {
		sdkOpts = append(sdkOpts, option.WithBaseURL(options.BaseURL))
	}
	if options.HTTPClient != nil {
		sdkOpts = append(sdkOpts, option.WithHTTPClient(options.HTTPClient))
	}

	client := anthropic.NewClient(sdkOpts...)
	return &LLM{
		messages: &client.Messages,
		Options:  options,
	}, nil
}

// GetName implements the Model interface.
func (o *LLM) GetName() string {
	return o.Options.Model
}

// GetProviderType implements the Model interface.
func (o *LLM) GetProviderType() llms.ProviderType {
	return llms.ProviderAnthropic
}

// GenerateContent implements the Model interface.
// Text and tool_use blocks of the reply are merged into a single choice.
func (o *LLM) GenerateContent(ctx context.Context, messages []llms.Message, options ...llms.CallOption) (*llms.ContentResponse, error) {
	opts := llms.CallOptions{
		Model: o.Options.Model,
	}
	for _, opt := range options {
		opt(&opts)
	}

	sdkMessages, systemPrompt, err := ProcessMessages(messages)
	if err != nil {
		return nil, errors.Wrap(err, "anthropic: failed to process messages")
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(opts.Model),
		Messages:  sdkMessages,
		MaxTokens: values.NumbersCoalesce(int64(opts.MaxTokens), DefaultMaxTokens),
	}
	if systemPrompt != "" {
		params.System = []anthropic.TextBlockParam{
			{Text: systemPrompt},
		}
	}
	if opts.Temperature > 0 {
		params.Temperature = anthropic.Float(opts.Temperature)
	}
	if len(opts.StopWords) > 0 {
		params.StopSequences = opts.StopWords
	}
	if tools := ToTools(opts.Tools); len(tools) > 0 {
		params.Tools = tools
	}

	result, err := o.messages.New(ctx, params)
	if err != nil {
		return nil, errors.Wrap(err, "anthropic: failed to create message")
	}
	if len(result.Content) == 0 {
		return nil, ErrEmptyResponse
	}

	choice := &llms.ContentChoice{
		StopReason: string(result.StopReason),
		GenerationInfo: map[string]any{
			"InputTokens":  result.Usage.InputTokens,
			"OutputTokens": result.Usage.OutputTokens,
			"TotalTokens":  result.Usage.InputTokens + result.Usage.OutputTokens,
			"ID":           result.ID,
		},
	}

	var text strings.Builder
	for _, block := range result.Content {
		switch content := block.AsAny().(type) {
		case anthropic.TextBlock:
			text.WriteString(content.Text)
		case anthropic.ToolUseBlock:
			args := string(content.Input)
			if args == "" {
				args = "{}"
			}
			choice.ToolCalls = append(choice.ToolCalls, llms.ToolCall{
				ID:   content.ID,
				Type: "function",
				FunctionCall: &llms.FunctionCall{
					Name:      content.Name,
					Arguments: args,
				},
			})
		default:
			// thinking and server tool blocks are not part of the answer
		}
	}
	choice.Content = text.String()

	return &llms.ContentResponse{
		Choices: []*llms.ContentChoice{choice},
	}, nil
}

// ToTools converts LLM tool definitions to Anthropic SDK tool parameters.
// Returns nil if no tools are provided.
func ToTools(tools []llms.Tool) []anthropic.ToolUnionParam {
	if len(tools) == 0 {
		return nil
	}

	sdkTools := make([]anthropic.ToolUnionParam, 0, len(tools))
	for _, tool := range tools {
		if tool.Function == nil {
			continue
		}
		inputSchema := anthropic.ToolInputSchemaParam{
			Type: "object",
		}
		if schema := tool.Function.ParametersMap(); schema != nil {
			inputSchema.Properties = schema["properties"]
			inputSchema.Required = toStrings(schema["required"])
			if defs, ok := schema["$defs"]; ok {
				inputSchema.ExtraFields = map[string]any{"$defs": defs}
			}
		}

		sdkTools = append(sdkTools, anthropic.ToolUnionParam{
			OfTool: &anthropic.ToolParam{
				Name:        tool.Function.Name,
				Description: anthropic.String(tool.Function.Description),
				InputSchema: inputSchema,
			},
		})
	}
	return sdkTools
}

func toStrings(v any) []string {
	switch vals := v.(type) {
	case []string:
		return vals
	case []any:
		res := make([]string, 0, len(vals))
		for _, s := range vals {
			if str, ok := s.(string); ok {
				res = append(res, str)
			}
		}
		return res
	}
	return nil
}

// ProcessMessages converts generic messages to Anthropic SDK message parameters.
// System messages are joined and returned as a separate system prompt.
func ProcessMessages(messages []llms.Message) ([]anthropic.MessageParam, string, error) {
	chatMessages := make([]anthropic.MessageParam, 0, len(messages))
	var systemPrompt []string
	for _, msg := range messages {
		if len(msg.Parts) == 0 {
			continue
		}
		switch msg.Role {
		case llms.RoleSystem:
			for _, part := range msg.Parts {
				tc, ok := part.(llms.TextContent)
				if !ok {
					return nil, "", errors.WithMessagef(ErrInvalidContentType, "system message part %T", part)
				}
				systemPrompt = append(systemPrompt, tc.Text)
			}
		case llms.RoleHuman:
			var contents []anthropic.ContentBlockParamUnion
			for _, part := range msg.Parts {
				tc, ok := part.(llms.TextContent)
				if !ok {
					return nil, "", errors.WithMessagef(ErrInvalidContentType, "human message part %T", part)
				}
				contents = append(contents, anthropic.NewTextBlock(tc.Text))
			}
			chatMessages = append(chatMessages, anthropic.NewUserMessage(contents...))
		case llms.RoleAI:
			chatMessage, err := handleAIMessage(msg)
			if err != nil {
				return nil, "", err
			}
			chatMessages = append(chatMessages, chatMessage)
		case llms.RoleTool:
			var contents []anthropic.ContentBlockParamUnion
			for _, part := range msg.Parts {
				tr, ok := part.(llms.ToolCallResponse)
				if !ok {
					return nil, "", errors.WithMessagef(ErrInvalidContentType, "tool message part %T", part)
				}
				contents = append(contents, anthropic.NewToolResultBlock(tr.ToolCallID, tr.Content, false))
			}
			chatMessages = append(chatMessages, anthropic.NewUserMessage(contents...))
		default:
			return nil, "", errors.WithMessagef(ErrUnsupportedMessageType, "role %v", msg.Role)
		}
	}
	return chatMessages, strings.Join(systemPrompt, "\n"), nil
}

func handleAIMessage(msg llms.Message) (anthropic.MessageParam, error) {
	var contents []anthropic.ContentBlockParamUnion

	for _, part := range msg.Parts {
		switch p := part.(type) {
		case llms.ToolCall:
			if p.FunctionCall == nil {
				return anthropic.MessageParam{}, errors.WithMessagef(ErrInvalidContentType, "tool call %q without function", p.ID)
			}
			args, err := llmutils.ParseArguments(p.FunctionCall.Arguments)
			if err != nil {
				return anthropic.MessageParam{}, err
			}
			input, _ := json.Marshal(args)
			contents = append(contents, anthropic.NewToolUseBlock(p.ID, json.RawMessage(input), p.FunctionCall.Name))
		case llms.TextContent:
			if p.Text != "" {
				contents = append(contents, anthropic.NewTextBlock(p.Text))
			}
		default:
			return anthropic.MessageParam{}, errors.WithMessagef(ErrInvalidContentType, "AI message part %T", part)
		}
	}

	return anthropic.NewAssistantMessage(contents...), nil
}
