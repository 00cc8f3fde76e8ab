package lifecycle

import (
	"time"

	"github.com/effective-security/mcpbridge/conversation"
	"github.com/effective-security/mcpbridge/mcp/session"
	"github.com/effective-security/mcpbridge/store"
)

// Config of the Manager
type Config struct {
	// Models are the preferred model names, the default model of the
	// factory is used when empty or none is available
	Models []string
	// MaxToolCalls limits the tool calls per query
	MaxToolCalls int
	// HistoryWindow is the number of prior turns of the session sent to the model
	HistoryWindow int
	// QueryTimeout bounds a query, zero means no limit
	QueryTimeout time.Duration
	// SystemPrompt is the system prompt template,
	// `.Tools` and `.ServerPath` are available as inputs
	SystemPrompt string
}

// SessionOptionsFunc returns the options to open the session for the server
type SessionOptionsFunc func(identity string) []session.Option

// Option configures the Manager
type Option func(*Manager)

// WithSessionOptions sets the options for every opened session
func WithSessionOptions(opts ...session.Option) Option {
	return func(m *Manager) {
		m.sessionOpts = func(string) []session.Option {
			return opts
		}
	}
}

// WithSessionOptionsFunc sets the provider of the session options
func WithSessionOptionsFunc(fn SessionOptionsFunc) Option {
	return func(m *Manager) {
		m.sessionOpts = fn
	}
}

// WithHistoryStore sets the history store, in-memory store is used by default
func WithHistoryStore(st store.HistoryStore) Option {
	return func(m *Manager) {
		m.history = st
	}
}

// WithCallback sets the callback of the conversation loop
func WithCallback(cb conversation.Callback) Option {
	return func(m *Manager) {
		m.callback = cb
	}
}
