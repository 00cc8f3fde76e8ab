package llms_test

import (
	"encoding/json"
	"testing"

	"github.com/effective-security/mcpbridge/pkg/llms"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProviderSupports(t *testing.T) {
	for _, p := range []llms.ProviderType{llms.ProviderGoogleAI, llms.ProviderAnthropic, llms.ProviderOpenAI, llms.ProviderBedrock} {
		assert.True(t, p.Supports(llms.CapabilityFunctionCalling), p)
	}
	assert.False(t, llms.ProviderType("UNKNOWN").Supports(llms.CapabilityText))
}

func TestMessageGetContent(t *testing.T) {
	msg := llms.MessageFromTextParts(llms.RoleHuman, "what is 2+3?")
	assert.Equal(t, "what is 2+3?\n", msg.GetContent())

	msg = llms.MessageFromToolCalls(llms.RoleAI, llms.ToolCall{
		ID:   "call_1",
		Type: "function",
		FunctionCall: &llms.FunctionCall{
			Name:      "add",
			Arguments: `{"a":2,"b":3}`,
		},
	})
	require.Len(t, msg.Parts, 1)
	assert.Contains(t, msg.GetContent(), `"name":"add"`)

	msg = llms.MessageFromToolResponse(llms.RoleTool, llms.ToolCallResponse{
		ToolCallID: "call_1",
		Name:       "add",
		Content:    "5",
	})
	tr, ok := msg.Parts[0].(llms.ToolCallResponse)
	require.True(t, ok)
	assert.Equal(t, "5", tr.Content)
	assert.Equal(t, "ToolCallResponse: call_1 (add), response size: 1", tr.String())
}

func TestMessageFromToolCalls_NilFunction(t *testing.T) {
	msg := llms.MessageFromToolCalls(llms.RoleAI, llms.ToolCall{ID: "x"})
	tc := msg.Parts[0].(llms.ToolCall)
	assert.Nil(t, tc.FunctionCall)
	assert.Equal(t, "ToolCall: x", tc.String())
}

func TestFunctionDefinition_ParametersMap(t *testing.T) {
	schema := `{"type":"object","properties":{"a":{"type":"number"}},"required":["a"]}`

	tcases := []struct {
		name string
		in   any
		nilv bool
	}{
		{name: "nil", in: nil, nilv: true},
		{name: "raw", in: json.RawMessage(schema)},
		{name: "bytes", in: []byte(schema)},
		{name: "string", in: schema},
		{name: "map", in: map[string]any{"type": "object"}},
		{name: "struct", in: struct {
			Type string `json:"type"`
		}{Type: "object"}},
		{name: "invalid", in: "not a schema", nilv: true},
		{name: "empty", in: json.RawMessage{}, nilv: true},
	}
	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			fd := &llms.FunctionDefinition{Name: "add", Parameters: tc.in}
			m := fd.ParametersMap()
			if tc.nilv {
				assert.Nil(t, m)
				return
			}
			require.NotNil(t, m)
			assert.Equal(t, "object", m["type"])
		})
	}
}

func TestCallOptions(t *testing.T) {
	var opts llms.CallOptions
	for _, o := range []llms.CallOption{
		llms.WithModel("gemini-2.5-flash"),
		llms.WithMaxTokens(100),
		llms.WithCandidateCount(1),
		llms.WithTemperature(0.2),
		llms.WithStopWords([]string{"STOP"}),
		llms.WithTools([]llms.Tool{{Type: "function", Function: &llms.FunctionDefinition{Name: "add"}}}),
		llms.WithMetadata(map[string]any{"k": "v"}),
	} {
		o(&opts)
	}
	assert.Equal(t, "gemini-2.5-flash", opts.Model)
	assert.Equal(t, 100, opts.MaxTokens)
	assert.Equal(t, 1, opts.CandidateCount)
	assert.Equal(t, 0.2, opts.Temperature)
	assert.Equal(t, []string{"STOP"}, opts.StopWords)
	assert.Len(t, opts.Tools, 1)
	assert.Equal(t, "v", opts.Metadata["k"])
}
