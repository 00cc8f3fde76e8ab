package llmutils_test

import (
	"strings"
	"testing"

	"github.com/effective-security/mcpbridge/pkg/llms"
	"github.com/effective-security/mcpbridge/pkg/llmutils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_ParseArguments(t *testing.T) {
	tcases := []struct {
		in  string
		exp map[string]any
	}{
		{in: "", exp: map[string]any{}},
		{in: "  ", exp: map[string]any{}},
		{in: "null", exp: map[string]any{}},
		{in: "{}", exp: map[string]any{}},
		{in: `{"a":2,"b":3}`, exp: map[string]any{"a": float64(2), "b": float64(3)}},
		{in: "```json\n{\"query\": \"go\"}\n```", exp: map[string]any{"query": "go"}},
		{in: `Sure: {"query": "go"} hope it helps`, exp: map[string]any{"query": "go"}},
	}
	for _, tc := range tcases {
		t.Run(tc.in, func(t *testing.T) {
			res, err := llmutils.ParseArguments(tc.in)
			require.NoError(t, err)
			assert.Equal(t, tc.exp, res)
		})
	}

	_, err := llmutils.ParseArguments("not json at all")
	assert.Error(t, err)
}

func Test_CleanJSON(t *testing.T) {
	llmOutput := "\n```json\n\n{\"city\": \"Paris\", \"country\": \"France\"}\n\n```\n\n"
	clean := llmutils.CleanJSON([]byte(llmOutput))
	assert.Equal(t, "{\"city\": \"Paris\", \"country\": \"France\"}", string(clean))

	llmOutput = "Here you go:\n```json\n\n[{\"city\": \"Paris\"}]\n```\n\n"
	clean = llmutils.CleanJSON([]byte(llmOutput))
	assert.Equal(t, "[{\"city\": \"Paris\"}]", string(clean))

	assert.Equal(t, "no json", string(llmutils.CleanJSON([]byte("no json"))))
}

func Test_BytesTrimBackticks(t *testing.T) {
	expected := "{\"city\": \"Paris\", \"country\": \"France\"}"

	assert.Equal(t, expected, string(llmutils.BytesTrimBackticks([]byte("\n```json\n\n"+expected+"\n\n```\n\n"))))
	assert.Equal(t, expected, string(llmutils.BytesTrimBackticks([]byte(expected))))
	assert.Equal(t, expected, string(llmutils.BytesTrimBackticks([]byte("\n```"+expected+"\n\n```\n\n"))))
}

func Test_ToJSON(t *testing.T) {
	assert.Equal(t, `{"a":1}`, llmutils.ToJSON(map[string]int{"a": 1}))
	assert.Equal(t, "", llmutils.ToJSON(make(chan int)))
}

func Test_CountMessagesContentSize(t *testing.T) {
	msgs := []llms.Message{
		llms.MessageFromTextParts(llms.RoleHuman, "hello"),
		llms.MessageFromToolCalls(llms.RoleAI, llms.ToolCall{
			ID:           "1",
			Type:         "function",
			FunctionCall: &llms.FunctionCall{Name: "add", Arguments: "{}"},
		}),
		llms.MessageFromToolResponse(llms.RoleTool, llms.ToolCallResponse{ToolCallID: "1", Name: "add", Content: "5"}),
	}
	// human(5)+hello(5) + ai(2)+1+function(8)+add(3)+{}(2) + tool(4)+1+add(3)+5(1)
	assert.Equal(t, uint64(35), llmutils.CountMessagesContentSize(msgs))
}

func Test_CountTokens(t *testing.T) {
	in, out, total := llmutils.CountTokens(nil)
	assert.Zero(t, in+out+total)

	resp := &llms.ContentResponse{
		Choices: []*llms.ContentChoice{
			{GenerationInfo: map[string]any{"InputTokens": 10, "OutputTokens": int32(5), "TotalTokens": int64(15)}},
		},
	}
	in, out, total = llmutils.CountTokens(resp)
	assert.Equal(t, int64(10), in)
	assert.Equal(t, int64(5), out)
	assert.Equal(t, int64(15), total)
}

func TestPrintMessages(t *testing.T) {
	var w strings.Builder
	llmutils.PrintMessages(&w, []llms.Message{
		llms.MessageFromTextParts(llms.RoleHuman, "add 2 and 3"),
		llms.MessageFromToolCalls(llms.RoleAI, llms.ToolCall{
			ID:           "1",
			FunctionCall: &llms.FunctionCall{Name: "add", Arguments: `{"a":2,"b":3}`},
		}),
		llms.MessageFromToolResponse(llms.RoleTool, llms.ToolCallResponse{ToolCallID: "1", Name: "add", Content: "5"}),
	})
	exp := "HUMAN: add 2 and 3\nAI: ToolCall ID=1, Func=add({\"a\":2,\"b\":3})\nTOOL: ToolCallResponse ID=1, Name=add, Content=5\n"
	assert.Equal(t, exp, w.String())
}
