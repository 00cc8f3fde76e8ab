package bedrock

import (
	"encoding/json"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/mcpbridge/pkg/llms"
	"github.com/effective-security/mcpbridge/pkg/llmutils"
	"github.com/effective-security/x/values"
)

const (
	// AnthropicLatestVersion is the messages API version accepted by Bedrock
	AnthropicLatestVersion = "bedrock-2023-05-31"
	// DefaultMaxTokens is the max_tokens value when none is provided
	DefaultMaxTokens = 4096

	roleUser      = "user"
	roleAssistant = "assistant"
)

type anthropicContent struct {
	Type      string          `json:"type"`
	Text      string          `json:"text,omitempty"`
	ID        string          `json:"id,omitempty"`
	Name      string          `json:"name,omitempty"`
	Input     json.RawMessage `json:"input,omitempty"`
	ToolUseID string          `json:"tool_use_id,omitempty"`
	Content   string          `json:"content,omitempty"`
}

type anthropicMessage struct {
	Role    string             `json:"role"`
	Content []anthropicContent `json:"content"`
}

type anthropicTool struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	InputSchema map[string]any `json:"input_schema"`
}

type anthropicRequest struct {
	AnthropicVersion string             `json:"anthropic_version"`
	MaxTokens        int                `json:"max_tokens"`
	System           string             `json:"system,omitempty"`
	Messages         []anthropicMessage `json:"messages"`
	Tools            []anthropicTool    `json:"tools,omitempty"`
	Temperature      float64            `json:"temperature,omitempty"`
	StopSequences    []string           `json:"stop_sequences,omitempty"`
}

type anthropicResponse struct {
	ID         string             `json:"id"`
	Type       string             `json:"type"`
	Role       string             `json:"role"`
	Content    []anthropicContent `json:"content"`
	StopReason string             `json:"stop_reason"`
	Usage      struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

func newAnthropicRequest(messages []llms.Message, opts llms.CallOptions) (*anthropicRequest, error) {
	msgs, system, err := processMessages(messages)
	if err != nil {
		return nil, err
	}
	return &anthropicRequest{
		AnthropicVersion: AnthropicLatestVersion,
		MaxTokens:        values.NumbersCoalesce(opts.MaxTokens, DefaultMaxTokens),
		System:           system,
		Messages:         msgs,
		Tools:            toTools(opts.Tools),
		Temperature:      opts.Temperature,
		StopSequences:    opts.StopWords,
	}, nil
}

func toTools(tools []llms.Tool) []anthropicTool {
	var res []anthropicTool
	for _, tool := range tools {
		if tool.Function == nil {
			continue
		}
		schema := tool.Function.ParametersMap()
		if schema == nil {
			schema = map[string]any{"type": "object", "properties": map[string]any{}}
		}
		res = append(res, anthropicTool{
			Name:        tool.Function.Name,
			Description: tool.Function.Description,
			InputSchema: schema,
		})
	}
	return res
}

// processMessages converts the messages to the messages API format.
// System messages are returned as the system prompt, and consecutive
// messages of the same role are merged as the API requires alternation.
func processMessages(messages []llms.Message) ([]anthropicMessage, string, error) {
	var system []string
	var res []anthropicMessage

	add := func(role string, content ...anthropicContent) {
		if len(content) == 0 {
			return
		}
		if n := len(res); n > 0 && res[n-1].Role == role {
			res[n-1].Content = append(res[n-1].Content, content...)
			return
		}
		res = append(res, anthropicMessage{Role: role, Content: content})
	}

	for _, msg := range messages {
		var content []anthropicContent
		for _, part := range msg.Parts {
			switch p := part.(type) {
			case llms.TextContent:
				if msg.Role == llms.RoleSystem {
					system = append(system, p.Text)
				} else if p.Text != "" {
					content = append(content, anthropicContent{Type: "text", Text: p.Text})
				}
			case llms.ToolCall:
				if msg.Role != llms.RoleAI || p.FunctionCall == nil {
					return nil, "", errors.Errorf("bedrock: invalid tool call %q in %s message", p.ID, msg.Role)
				}
				args, err := llmutils.ParseArguments(p.FunctionCall.Arguments)
				if err != nil {
					return nil, "", err
				}
				input, _ := json.Marshal(args)
				content = append(content, anthropicContent{
					Type:  "tool_use",
					ID:    p.ID,
					Name:  p.FunctionCall.Name,
					Input: input,
				})
			case llms.ToolCallResponse:
				if msg.Role != llms.RoleTool {
					return nil, "", errors.Errorf("bedrock: invalid tool response %q in %s message", p.ToolCallID, msg.Role)
				}
				content = append(content, anthropicContent{
					Type:      "tool_result",
					ToolUseID: p.ToolCallID,
					Content:   p.Content,
				})
			default:
				return nil, "", errors.Errorf("bedrock: unsupported message part %T", part)
			}
		}

		switch msg.Role {
		case llms.RoleSystem:
		case llms.RoleHuman, llms.RoleTool:
			add(roleUser, content...)
		case llms.RoleAI:
			add(roleAssistant, content...)
		default:
			return nil, "", errors.Wrapf(llms.ErrUnexpectedRole, "bedrock: role %v", msg.Role)
		}
	}
	return res, strings.Join(system, "\n"), nil
}
