package genaiutils

import (
	"encoding/json"
	"testing"

	"github.com/effective-security/mcpbridge/pkg/llms"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConvertTools(t *testing.T) {
	t.Parallel()

	res, err := ConvertTools(nil)
	require.NoError(t, err)
	assert.Nil(t, res)

	tools := []llms.Tool{
		{
			Type: "function",
			Function: &llms.FunctionDefinition{
				Name:        "add",
				Description: "Add two numbers",
				Parameters:  json.RawMessage(`{"$schema":"https://json-schema.org/draft/2020-12/schema","type":"object","properties":{"a":{"type":"number"},"b":{"type":"number"}},"required":["a","b"]}`),
			},
		},
		{
			Type: "function",
			Function: &llms.FunctionDefinition{
				Name:        "ping",
				Description: "No arguments",
			},
		},
	}

	res, err = ConvertTools(tools)
	require.NoError(t, err)
	require.Len(t, res, 1)
	decls := res[0].FunctionDeclarations
	require.Len(t, decls, 2)

	assert.Equal(t, "add", decls[0].Name)
	assert.Equal(t, "Add two numbers", decls[0].Description)
	params, ok := decls[0].ParametersJsonSchema.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "object", params["type"])
	assert.NotContains(t, params, "$schema")
	assert.Equal(t, []any{"a", "b"}, params["required"])

	assert.Equal(t, "ping", decls[1].Name)
	assert.Nil(t, decls[1].ParametersJsonSchema)
}

func TestConvertTools_Errors(t *testing.T) {
	t.Parallel()

	_, err := ConvertTools([]llms.Tool{{Type: "retrieval"}})
	assert.EqualError(t, err, `tool [0]: unsupported type "retrieval", want 'function'`)

	_, err = ConvertTools([]llms.Tool{{Type: "function", Function: &llms.FunctionDefinition{}}})
	assert.EqualError(t, err, "tool [0]: missing function name")
}

func TestSanitizeSchema(t *testing.T) {
	t.Parallel()

	assert.Nil(t, SanitizeSchema(nil))

	orig := map[string]any{"$id": "x", "$schema": "y", "type": "object"}
	res := SanitizeSchema(orig)
	assert.Equal(t, map[string]any{"type": "object"}, res)
	// the original is not modified
	assert.Len(t, orig, 3)
}

func TestPtr(t *testing.T) {
	t.Parallel()

	assert.Nil(t, Float32Ptr(0))
	assert.Equal(t, float32(0.5), *Float32Ptr(0.5))
	assert.Nil(t, Int32Ptr(0))
	assert.Equal(t, int32(3), *Int32Ptr(3))
}
