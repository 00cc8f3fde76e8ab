package conversation

import (
	"context"

	"github.com/effective-security/mcpbridge/chatmodel"
	"github.com/effective-security/xlog"
)

//go:generate mockgen -destination=../mocks/mockllms/llm_mock.gen.go -package mockllms github.com/effective-security/mcpbridge/pkg/llms Model
//go:generate mockgen -source=conversation.go -destination=../mocks/mockconversation/conversation_mock.gen.go -package mockconversation

var logger = xlog.NewPackageLogger("github.com/effective-security/mcpbridge", "conversation")

// ToolInvoker executes a tool by name.
// Implementations return chatmodel.ErrToolInvocation when the call fails.
type ToolInvoker interface {
	Invoke(ctx context.Context, name string, args map[string]any) (string, error)
}

// PendingToolCall is a tool call requested by the model,
// valid for one loop iteration.
type PendingToolCall struct {
	ID        string
	ToolName  string
	Arguments map[string]any
}

// Result is the outcome of a query
type Result struct {
	// Answer is the final text of the model, may be empty
	Answer string
	// Invocations are the tool calls performed, in order
	Invocations []chatmodel.ToolInvocation
	// ModelCalls is the number of model requests made for the query
	ModelCalls int
}
