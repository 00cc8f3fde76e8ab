package chatmodel

import (
	"strings"
	"time"
)

// Role of a conversation turn
type Role string

const (
	// RoleUser is the role of the user query
	RoleUser Role = "user"
	// RoleAssistant is the role of the model answer
	RoleAssistant Role = "assistant"
)

// ToolInvocation is a tool call performed while answering a query
type ToolInvocation struct {
	// ToolName is the name of the invoked tool
	ToolName string `json:"name" yaml:"name"`
	// Arguments are the model supplied arguments, passed to the tool verbatim
	Arguments map[string]any `json:"args" yaml:"args"`
	// ResultText is the text the tool returned
	ResultText string `json:"result,omitempty" yaml:"result,omitempty"`
}

// ConversationTurn is one entry of the conversation history
type ConversationTurn struct {
	ID              string           `json:"id,omitempty" yaml:"id,omitempty"`
	SessionID       string           `json:"session_id,omitempty" yaml:"session_id,omitempty"`
	Role            Role             `json:"role" yaml:"role"`
	Content         string           `json:"content" yaml:"content"`
	ToolInvocations []ToolInvocation `json:"tool_calls,omitempty" yaml:"tool_calls,omitempty"`
	CreatedAt       time.Time        `json:"created_at" yaml:"created_at"`
}

// NewTurn returns a new turn with generated ID and current time
func NewTurn(sessionID string, role Role, content string, invocations ...ToolInvocation) ConversationTurn {
	return ConversationTurn{
		ID:              NewChatID(),
		SessionID:       sessionID,
		Role:            role,
		Content:         content,
		ToolInvocations: invocations,
		CreatedAt:       time.Now().UTC(),
	}
}

// GetContent returns the content of the turn
func (t ConversationTurn) GetContent() string {
	return t.Content
}

// ToolNames returns the names of the invoked tools, in invocation order
func (t ConversationTurn) ToolNames() []string {
	if len(t.ToolInvocations) == 0 {
		return nil
	}
	names := make([]string, 0, len(t.ToolInvocations))
	for _, inv := range t.ToolInvocations {
		names = append(names, inv.ToolName)
	}
	return names
}

func (t ConversationTurn) String() string {
	var sb strings.Builder
	sb.WriteString(string(t.Role))
	sb.WriteString(": ")
	sb.WriteString(t.Content)
	if names := t.ToolNames(); len(names) > 0 {
		sb.WriteString(" [tools: ")
		sb.WriteString(strings.Join(names, ", "))
		sb.WriteString("]")
	}
	return sb.String()
}
