// Package catalog translates the tool list advertised by an MCP server
// into function declarations the model can call.
package catalog

import (
	"encoding/json"
	"strconv"

	"github.com/cespare/xxhash/v2"
	"github.com/cockroachdb/errors"
	"github.com/effective-security/mcpbridge/chatmodel"
	"github.com/effective-security/mcpbridge/pkg/llms"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// ToolDescriptor describes a tool advertised by the tool server
type ToolDescriptor struct {
	Name        string          `json:"name" yaml:"name"`
	Description string          `json:"description,omitempty" yaml:"description,omitempty"`
	InputSchema json.RawMessage `json:"input_schema,omitempty" yaml:"-"`
}

// FromTool returns the descriptor of the tool received from the server
func FromTool(tool *mcp.Tool) (ToolDescriptor, error) {
	if tool == nil {
		return ToolDescriptor{}, errors.Mark(errors.New("nil tool"), chatmodel.ErrCatalog)
	}
	d := ToolDescriptor{
		Name:        tool.Name,
		Description: tool.Description,
	}
	if tool.InputSchema != nil {
		raw, err := json.Marshal(tool.InputSchema)
		if err != nil {
			return ToolDescriptor{}, chatmodel.MarkErrorf(err, chatmodel.ErrCatalog, "tool %q: invalid input schema", tool.Name)
		}
		d.InputSchema = raw
	}
	return d, nil
}

// Adapt returns one function declaration per descriptor, in the same order.
// The input schema is passed through as is.
func Adapt(descriptors []ToolDescriptor) ([]llms.Tool, error) {
	specs := make([]llms.Tool, 0, len(descriptors))
	seen := make(map[string]struct{}, len(descriptors))
	for i, d := range descriptors {
		if d.Name == "" {
			return nil, errors.Mark(errors.Newf("tool at index %d has no name", i), chatmodel.ErrCatalog)
		}
		if _, ok := seen[d.Name]; ok {
			return nil, errors.Mark(errors.Newf("duplicate tool name %q", d.Name), chatmodel.ErrCatalog)
		}
		seen[d.Name] = struct{}{}

		var params any
		if len(d.InputSchema) > 0 && string(d.InputSchema) != "null" {
			if !json.Valid(d.InputSchema) {
				return nil, errors.Mark(errors.Newf("tool %q has malformed input schema", d.Name), chatmodel.ErrCatalog)
			}
			params = d.InputSchema
		}

		specs = append(specs, llms.Tool{
			Type: "function",
			Function: &llms.FunctionDefinition{
				Name:        d.Name,
				Description: d.Description,
				Parameters:  params,
			},
		})
	}
	return specs, nil
}

// Names returns the tool names, in catalog order
func Names(descriptors []ToolDescriptor) []string {
	names := make([]string, 0, len(descriptors))
	for _, d := range descriptors {
		names = append(names, d.Name)
	}
	return names
}

// Fingerprint returns the hash of the catalog.
// Two servers advertising the same tools have the same fingerprint.
func Fingerprint(descriptors []ToolDescriptor) string {
	if len(descriptors) == 0 {
		return ""
	}
	h := xxhash.New()
	for _, d := range descriptors {
		_, _ = h.WriteString(d.Name)
		_, _ = h.Write([]byte{0})
		_, _ = h.WriteString(d.Description)
		_, _ = h.Write([]byte{0})
		_, _ = h.Write(d.InputSchema)
		_, _ = h.Write([]byte{0})
	}
	return strconv.FormatUint(h.Sum64(), 16)
}
