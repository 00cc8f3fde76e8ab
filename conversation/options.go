package conversation

import (
	"time"

	"github.com/effective-security/mcpbridge/pkg/llms"
	"github.com/effective-security/mcpbridge/pkg/prompts"
)

// DefaultMaxToolCalls is the number of tool calls allowed per query
const DefaultMaxToolCalls = 10

// Option configures the Loop
type Option func(*Loop)

// WithMaxToolCalls limits the tool calls per query,
// non-positive values keep the default
func WithMaxToolCalls(n int) Option {
	return func(l *Loop) {
		if n > 0 {
			l.maxToolCalls = n
		}
	}
}

// WithHistoryWindow sets the number of prior turns sent to the model,
// zero makes every query stateless
func WithHistoryWindow(n int) Option {
	return func(l *Loop) {
		if n >= 0 {
			l.historyWindow = n
		}
	}
}

// WithSystemPrompt sets the system prompt template
func WithSystemPrompt(tmpl *prompts.Template) Option {
	return func(l *Loop) {
		l.sysprompt = tmpl
	}
}

// WithPromptInputs sets the inputs for the system prompt template
func WithPromptInputs(inputs map[string]any) Option {
	return func(l *Loop) {
		l.promptInputs = inputs
	}
}

// WithCallOptions appends options to every model call
func WithCallOptions(opts ...llms.CallOption) Option {
	return func(l *Loop) {
		l.callOpts = append(l.callOpts, opts...)
	}
}

// WithQueryTimeout bounds a whole query, zero means no limit
func WithQueryTimeout(d time.Duration) Option {
	return func(l *Loop) {
		if d > 0 {
			l.queryTimeout = d
		}
	}
}

// WithCallback sets the callback handler
func WithCallback(cb Callback) Option {
	return func(l *Loop) {
		l.callback = cb
	}
}
