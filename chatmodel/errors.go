package chatmodel

import (
	"github.com/cockroachdb/errors"
	"github.com/effective-security/mcpbridge/pkg/llms"
)

// Error kinds surfaced by the orchestrator.
// Errors are attached with errors.Mark, test them with errors.Is.
var (
	// ErrConnection is returned when a tool server can not be started or
	// the handshake fails
	ErrConnection = errors.New("connection failed")
	// ErrCatalog is returned when a tool descriptor can not be adapted
	ErrCatalog = errors.New("invalid tool catalog")
	// ErrToolInvocation is returned when a tool call fails or reports an error
	ErrToolInvocation = errors.New("tool invocation failed")
	// ErrModel is returned when the model call fails
	ErrModel = errors.New("model request failed")
	// ErrUnsupportedResponse is returned when the model asks for several
	// tool calls at once, or returns several candidates.
	// The returned errors are also marked with ErrModel.
	ErrUnsupportedResponse = errors.New("unsupported model response")
	// ErrNotConnected is returned when a query arrives without a live session
	ErrNotConnected = errors.New("client not connected to any server")
	// ErrMissingCredential is returned when the model API key is not configured
	ErrMissingCredential = llms.ErrMissingCredential
	// ErrToolCallLimit is returned when the model keeps asking for tools
	// beyond the configured limit
	ErrToolCallLimit = errors.New("tool call limit exceeded")
)

// MarkError wraps err with msg and marks it with kind,
// returns nil if err is nil
func MarkError(err error, kind error, msg string) error {
	if err == nil {
		return nil
	}
	if msg != "" {
		err = errors.WithMessage(err, msg)
	}
	return errors.Mark(err, kind)
}

// UnsupportedResponsef returns ErrUnsupportedResponse with the message,
// marked with ErrModel
func UnsupportedResponsef(format string, args ...any) error {
	return errors.Mark(errors.WithMessagef(ErrUnsupportedResponse, format, args...), ErrModel)
}

// MarkErrorf is the formatted version of MarkError
func MarkErrorf(err error, kind error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return errors.Mark(errors.WithMessagef(err, format, args...), kind)
}
