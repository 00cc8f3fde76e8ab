package conversation_test

import (
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/mcpbridge/chatmodel"
	"github.com/effective-security/mcpbridge/conversation"
	"github.com/effective-security/mcpbridge/pkg/llms"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func toolCall(id, name, args string) llms.ToolCall {
	return llms.ToolCall{
		ID:           id,
		FunctionCall: &llms.FunctionCall{Name: name, Arguments: args},
	}
}

func TestClassify(t *testing.T) {
	t.Run("final", func(t *testing.T) {
		step, err := conversation.Classify(&llms.ContentResponse{
			Choices: []*llms.ContentChoice{{Content: "The sum is 5"}},
		})
		require.NoError(t, err)
		assert.Equal(t, conversation.FinalAnswer{Text: "The sum is 5"}, step)
	})
	t.Run("empty_final", func(t *testing.T) {
		step, err := conversation.Classify(&llms.ContentResponse{
			Choices: []*llms.ContentChoice{{}},
		})
		require.NoError(t, err)
		assert.Equal(t, conversation.FinalAnswer{}, step)
	})
	t.Run("tool_call", func(t *testing.T) {
		step, err := conversation.Classify(&llms.ContentResponse{
			Choices: []*llms.ContentChoice{{ToolCalls: []llms.ToolCall{toolCall("", "add", `{"a":2,"b":3}`)}}},
		})
		require.NoError(t, err)
		req, ok := step.(conversation.ToolCallRequested)
		require.True(t, ok)
		assert.Equal(t, "add_0", req.Call.ID)
		assert.Equal(t, "add", req.Call.ToolName)
		assert.Equal(t, map[string]any{"a": float64(2), "b": float64(3)}, req.Call.Arguments)
		assert.Equal(t, "add_0", req.ToolCall.ID)
		assert.Equal(t, "function", req.ToolCall.Type)
	})
	t.Run("empty_args", func(t *testing.T) {
		step, err := conversation.Classify(&llms.ContentResponse{
			Choices: []*llms.ContentChoice{{ToolCalls: []llms.ToolCall{toolCall("c1", "list", "")}}},
		})
		require.NoError(t, err)
		req := step.(conversation.ToolCallRequested)
		assert.Equal(t, "c1", req.Call.ID)
		assert.Empty(t, req.Call.Arguments)
		assert.NotNil(t, req.Call.Arguments)
	})

	errs := []struct {
		name string
		resp *llms.ContentResponse
		kind error
	}{
		{"nil", nil, chatmodel.ErrModel},
		{"no_choices", &llms.ContentResponse{}, chatmodel.ErrModel},
		{
			"candidates",
			&llms.ContentResponse{Choices: []*llms.ContentChoice{{Content: "a"}, {Content: "b"}}},
			chatmodel.ErrUnsupportedResponse,
		},
		{
			"multi_call",
			&llms.ContentResponse{Choices: []*llms.ContentChoice{{ToolCalls: []llms.ToolCall{
				toolCall("1", "add", `{}`),
				toolCall("2", "search", `{}`),
			}}}},
			chatmodel.ErrUnsupportedResponse,
		},
		{
			"no_function",
			&llms.ContentResponse{Choices: []*llms.ContentChoice{{ToolCalls: []llms.ToolCall{{ID: "1"}}}}},
			chatmodel.ErrModel,
		},
		{
			"bad_args",
			&llms.ContentResponse{Choices: []*llms.ContentChoice{{ToolCalls: []llms.ToolCall{toolCall("1", "add", "not json at all")}}}},
			chatmodel.ErrModel,
		},
	}
	for _, tc := range errs {
		t.Run(tc.name, func(t *testing.T) {
			_, err := conversation.Classify(tc.resp)
			require.Error(t, err)
			assert.True(t, errors.Is(err, tc.kind), err.Error())
			assert.True(t, errors.Is(err, chatmodel.ErrModel))
			if tc.kind == chatmodel.ErrModel {
				assert.False(t, errors.Is(err, chatmodel.ErrUnsupportedResponse))
			}
		})
	}
}
