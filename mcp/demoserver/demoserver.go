// Package demoserver provides a small MCP tool server with `add` and `search`
// tools, served over stdio by cmd/mcpbridge-demo and used in tests.
package demoserver

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"

	"github.com/effective-security/mcpbridge/pkg/schema"
	"github.com/effective-security/xlog"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

var logger = xlog.NewPackageLogger("github.com/effective-security/mcpbridge", "demoserver")

// ServerName is the implementation name reported in the handshake
const ServerName = "mcpbridge-demo"

// AddInput is the input of the add tool
type AddInput struct {
	A float64 `json:"a" jsonschema:"description=First number"`
	B float64 `json:"b" jsonschema:"description=Second number"`
}

// SearchInput is the input of the search tool
type SearchInput struct {
	Query string `json:"query" jsonschema:"description=Words to search for"`
	Limit int    `json:"limit,omitempty" jsonschema:"description=Maximum number of results,minimum=1"`
}

// Documents are searched by the search tool
var Documents = []string{
	"Don't communicate by sharing memory, share memory by communicating.",
	"Concurrency is not parallelism.",
	"Channels orchestrate; mutexes serialize.",
	"The bigger the interface, the weaker the abstraction.",
	"Make the zero value useful.",
	"A little copying is better than a little dependency.",
	"Clear is better than clever.",
	"Errors are values.",
	"Don't just check errors, handle them gracefully.",
	"Documentation is for users.",
}

// New returns the tool server
func New(version string) *mcp.Server {
	srv := mcp.NewServer(&mcp.Implementation{Name: ServerName, Version: version}, nil)
	srv.AddTool(&mcp.Tool{
		Name:        "add",
		Description: "Add two numbers and return the sum",
		InputSchema: schema.MustFor[AddInput]().Map(),
	}, handleAdd)
	srv.AddTool(&mcp.Tool{
		Name:        "search",
		Description: "Search the Go proverbs for documents containing all the words of the query",
		InputSchema: schema.MustFor[SearchInput]().Map(),
	}, handleSearch)
	return srv
}

// Run serves the tools over stdin/stdout until the client disconnects
// or ctx is cancelled
func Run(ctx context.Context, version string) error {
	logger.KV(xlog.INFO, "status", "starting", "server", ServerName, "version", version)
	return New(version).Run(ctx, &mcp.StdioTransport{})
}

func handleAdd(_ context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var in AddInput
	if err := unmarshalArgs(req, &in); err != nil {
		return errorResult("invalid arguments: " + err.Error()), nil
	}
	sum := in.A + in.B
	logger.KV(xlog.DEBUG, "tool", "add", "a", in.A, "b", in.B, "sum", sum)
	return textResult(strconv.FormatFloat(sum, 'f', -1, 64)), nil
}

func handleSearch(_ context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var in SearchInput
	if err := unmarshalArgs(req, &in); err != nil {
		return errorResult("invalid arguments: " + err.Error()), nil
	}
	words := strings.Fields(strings.ToLower(in.Query))
	if len(words) == 0 {
		return errorResult("query is required"), nil
	}

	found := Search(words, in.Limit)
	logger.KV(xlog.DEBUG, "tool", "search", "query", in.Query, "found", len(found))
	if len(found) == 0 {
		return textResult("No documents found for: " + in.Query), nil
	}
	return textResult(strings.Join(found, "\n")), nil
}

// Search returns the documents containing all the words, up to limit when positive
func Search(words []string, limit int) []string {
	var found []string
	for _, doc := range Documents {
		lower := strings.ToLower(doc)
		match := true
		for _, w := range words {
			if !strings.Contains(lower, strings.ToLower(w)) {
				match = false
				break
			}
		}
		if match {
			found = append(found, doc)
			if limit > 0 && len(found) >= limit {
				break
			}
		}
	}
	return found
}

func unmarshalArgs(req *mcp.CallToolRequest, v any) error {
	if req.Params == nil || len(req.Params.Arguments) == 0 {
		return json.Unmarshal([]byte("{}"), v)
	}
	return json.Unmarshal(req.Params.Arguments, v)
}

func textResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: text}},
	}
}

func errorResult(text string) *mcp.CallToolResult {
	res := textResult(text)
	res.IsError = true
	return res
}
