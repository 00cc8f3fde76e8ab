package conversation

import (
	"fmt"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/mcpbridge/chatmodel"
	"github.com/effective-security/mcpbridge/pkg/llms"
	"github.com/effective-security/mcpbridge/pkg/llmutils"
	"github.com/effective-security/x/values"
)

// Step is the classified model response
type Step interface {
	isStep()
}

// FinalAnswer ends the query with Text
type FinalAnswer struct {
	Text string
}

// ToolCallRequested asks for one tool call
type ToolCallRequested struct {
	Call PendingToolCall
	// ToolCall is the call as returned by the model,
	// it is sent back with the tool response
	ToolCall llms.ToolCall
}

func (FinalAnswer) isStep()       {}
func (ToolCallRequested) isStep() {}

// Classify converts the model response to a Step.
// A response with several candidates or several tool calls is rejected
// with chatmodel.ErrUnsupportedResponse, no call is ever dropped.
func Classify(resp *llms.ContentResponse) (Step, error) {
	if resp == nil || len(resp.Choices) == 0 {
		return nil, errors.Mark(errors.New("model returned no choices"), chatmodel.ErrModel)
	}
	if len(resp.Choices) > 1 {
		return nil, chatmodel.UnsupportedResponsef("model returned %d candidates", len(resp.Choices))
	}

	choice := resp.Choices[0]
	switch len(choice.ToolCalls) {
	case 0:
		return FinalAnswer{Text: choice.Content}, nil
	case 1:
	default:
		return nil, chatmodel.UnsupportedResponsef("model requested %d tool calls", len(choice.ToolCalls))
	}

	tc := choice.ToolCalls[0]
	if tc.FunctionCall == nil || tc.FunctionCall.Name == "" {
		return nil, errors.Mark(errors.Newf("tool call %q has no function", tc.ID), chatmodel.ErrModel)
	}
	args, err := llmutils.ParseArguments(tc.FunctionCall.Arguments)
	if err != nil {
		return nil, chatmodel.MarkErrorf(err, chatmodel.ErrModel, "invalid arguments for tool %s", tc.FunctionCall.Name)
	}

	if tc.ID == "" {
		tc.ID = fmt.Sprintf("%s_%d", tc.FunctionCall.Name, 0)
	}
	tc.Type = values.StringsCoalesce(tc.Type, "function")

	return ToolCallRequested{
		Call: PendingToolCall{
			ID:        tc.ID,
			ToolName:  tc.FunctionCall.Name,
			Arguments: args,
		},
		ToolCall: tc,
	}, nil
}
