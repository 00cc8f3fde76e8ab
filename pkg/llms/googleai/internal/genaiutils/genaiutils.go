package genaiutils

import (
	"maps"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/mcpbridge/pkg/llms"
	"google.golang.org/genai"
)

// schemaKeysToDrop are JSON Schema keywords that Gemini rejects in
// function parameters.
var schemaKeysToDrop = []string{"$schema", "$id"}

// ConvertTools converts a list of llms tools to a genai tool with one
// function declaration per tool, in the same order.
// The parameter schemas are passed as is with ParametersJsonSchema.
func ConvertTools(tools []llms.Tool) ([]*genai.Tool, error) {
	if len(tools) == 0 {
		return nil, nil
	}

	decls := make([]*genai.FunctionDeclaration, 0, len(tools))
	for i, tool := range tools {
		if tool.Type != "function" {
			return nil, errors.Errorf("tool [%d]: unsupported type %q, want 'function'", i, tool.Type)
		}
		if tool.Function == nil || tool.Function.Name == "" {
			return nil, errors.Errorf("tool [%d]: missing function name", i)
		}

		decl := &genai.FunctionDeclaration{
			Name:        tool.Function.Name,
			Description: tool.Function.Description,
		}
		if params := SanitizeSchema(tool.Function.ParametersMap()); params != nil {
			decl.ParametersJsonSchema = params
		}
		decls = append(decls, decl)
	}

	return []*genai.Tool{
		{FunctionDeclarations: decls},
	}, nil
}

// SanitizeSchema returns a copy of the schema without the keywords
// that are not accepted by Gemini.
func SanitizeSchema(schema map[string]any) map[string]any {
	if schema == nil {
		return nil
	}
	res := maps.Clone(schema)
	for _, k := range schemaKeysToDrop {
		delete(res, k)
	}
	return res
}

// Float32Ptr returns a pointer to a float32 value, or nil if zero
func Float32Ptr(f float32) *float32 {
	if f == 0 {
		return nil
	}
	return &f
}

// Int32Ptr returns a pointer to a int32 value, or nil if zero
func Int32Ptr(i int32) *int32 {
	if i == 0 {
		return nil
	}
	return &i
}
