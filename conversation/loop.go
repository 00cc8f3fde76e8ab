package conversation

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/mcpbridge/chatmodel"
	"github.com/effective-security/mcpbridge/pkg/llms"
	"github.com/effective-security/mcpbridge/pkg/llmutils"
	"github.com/effective-security/mcpbridge/pkg/metricskey"
	"github.com/effective-security/mcpbridge/pkg/prompts"
	"github.com/effective-security/x/slices"
	"github.com/effective-security/xlog"
)

// Loop runs queries against the model, dispatching the tool calls
// the model asks for to the ToolInvoker until a final answer is produced.
// Loop is not safe for concurrent use, queries must be serialized by the caller.
type Loop struct {
	model     llms.Model
	tools     []llms.Tool
	toolNames map[string]struct{}
	invoker   ToolInvoker

	maxToolCalls  int
	historyWindow int
	queryTimeout  time.Duration
	sysprompt     *prompts.Template
	promptInputs  map[string]any
	callOpts      []llms.CallOption
	callback      Callback
}

// New returns a Loop for the model and the function specs of the tools
func New(model llms.Model, tools []llms.Tool, invoker ToolInvoker, opts ...Option) (*Loop, error) {
	if model == nil {
		return nil, errors.New("model is required")
	}
	if invoker == nil {
		return nil, errors.New("tool invoker is required")
	}

	l := &Loop{
		model:        model,
		tools:        tools,
		toolNames:    make(map[string]struct{}, len(tools)),
		invoker:      invoker,
		maxToolCalls: DefaultMaxToolCalls,
		callback:     Noop{},
	}
	for _, opt := range opts {
		opt(l)
	}
	if l.callback == nil {
		l.callback = Noop{}
	}

	for _, t := range tools {
		if t.Function != nil {
			l.toolNames[t.Function.Name] = struct{}{}
		}
	}
	if len(l.toolNames) > 0 && !model.GetProviderType().Supports(llms.CapabilityFunctionCalling) {
		return nil, errors.Newf("model %s does not support function calling", model.GetName())
	}
	return l, nil
}

// Model returns the model used by the loop
func (l *Loop) Model() llms.Model {
	return l.model
}

// Run answers the query. History is the prior conversation,
// only turns of the session in the context are sent to the model,
// limited by the history window.
func (l *Loop) Run(ctx context.Context, query string, history []chatmodel.ConversationTurn) (*Result, error) {
	if l.queryTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.queryTimeout)
		defer cancel()
	}

	l.callback.OnQueryStart(ctx, query)
	res, err := l.run(ctx, query, history)
	if err != nil {
		l.callback.OnQueryError(ctx, query, err)
		return nil, err
	}
	l.callback.OnQueryEnd(ctx, query, res)
	return res, nil
}

func (l *Loop) run(ctx context.Context, query string, history []chatmodel.ConversationTurn) (*Result, error) {
	messages, err := l.buildMessages(ctx, query, history)
	if err != nil {
		return nil, err
	}

	callOpts := append([]llms.CallOption{}, l.callOpts...)
	if len(l.tools) > 0 {
		callOpts = append(callOpts, llms.WithTools(l.tools))
	}

	res := &Result{}
	for {
		if err = ctx.Err(); err != nil {
			return nil, errors.WithMessage(err, "query canceled")
		}

		resp, err := l.generate(ctx, messages, callOpts)
		if err != nil {
			return nil, err
		}
		res.ModelCalls++

		step, err := Classify(resp)
		if err != nil {
			logger.ContextKV(ctx, xlog.ERROR,
				"status", "unsupported_response",
				"model", l.model.GetName(),
				"err", err.Error(),
			)
			return nil, err
		}

		switch s := step.(type) {
		case FinalAnswer:
			res.Answer = s.Text
			logger.ContextKV(ctx, xlog.DEBUG,
				"status", "final_answer",
				"run_id", chatmodel.GetRunID(ctx),
				"model_calls", res.ModelCalls,
				"tool_calls", len(res.Invocations),
				"answer", slices.StringUpto(s.Text, 64),
			)
			return res, nil
		case ToolCallRequested:
			if len(res.Invocations) >= l.maxToolCalls {
				return nil, errors.WithMessagef(chatmodel.ErrToolCallLimit, "more than %d tool calls requested", l.maxToolCalls)
			}
			if _, ok := l.toolNames[s.Call.ToolName]; !ok {
				return nil, errors.Mark(errors.Newf("model requested unknown tool %q", s.Call.ToolName), chatmodel.ErrModel)
			}

			output, err := l.dispatch(ctx, s.Call)
			if err != nil {
				return nil, err
			}
			res.Invocations = append(res.Invocations, chatmodel.ToolInvocation{
				ToolName:   s.Call.ToolName,
				Arguments:  s.Call.Arguments,
				ResultText: output,
			})

			messages = append(messages,
				llms.MessageFromToolCalls(llms.RoleAI, s.ToolCall),
				llms.MessageFromToolResponse(llms.RoleTool, llms.ToolCallResponse{
					ToolCallID: s.Call.ID,
					Name:       s.Call.ToolName,
					Content:    output,
				}),
			)
		default:
			return nil, errors.Newf("unexpected step %T", step)
		}
	}
}

func (l *Loop) generate(ctx context.Context, messages prompts.ChatPromptValue, callOpts []llms.CallOption) (*llms.ContentResponse, error) {
	modelName := l.model.GetName()
	started := time.Now()
	defer metricskey.PerfLLMCall.MeasureSince(started, modelName)

	l.callback.OnLLMCallStart(ctx, l.model, messages)
	metricskey.StatsLLMMessagesSent.IncrCounter(float64(len(messages)), modelName)

	resp, err := l.model.GenerateContent(ctx, messages, callOpts...)
	if err != nil {
		metricskey.StatsLLMCallsFailed.IncrCounter(1, modelName)
		logger.ContextKV(ctx, xlog.ERROR,
			"status", "llm_call_failed",
			"model", modelName,
			"messages", len(messages),
			"err", err.Error(),
		)
		return nil, chatmodel.MarkError(err, chatmodel.ErrModel, "failed to generate content from LLM")
	}
	l.callback.OnLLMCallEnd(ctx, l.model, resp)

	tokensIn, tokensOut, tokensTotal := llmutils.CountTokens(resp)
	metricskey.StatsLLMInputTokens.IncrCounter(float64(tokensIn), modelName)
	metricskey.StatsLLMOutputTokens.IncrCounter(float64(tokensOut), modelName)
	metricskey.StatsLLMTotalTokens.IncrCounter(float64(tokensTotal), modelName)
	return resp, nil
}

// dispatch runs the tool call on a context detached from cancellation,
// an in-flight tool call is never abandoned.
func (l *Loop) dispatch(ctx context.Context, call PendingToolCall) (string, error) {
	l.callback.OnToolStart(ctx, call)
	logger.ContextKV(ctx, xlog.DEBUG,
		"status", "tool_call",
		"tool_call_id", call.ID,
		"tool", call.ToolName,
	)

	output, err := l.invoker.Invoke(context.WithoutCancel(ctx), call.ToolName, call.Arguments)
	if err != nil {
		if !errors.Is(err, chatmodel.ErrToolInvocation) {
			err = errors.Mark(err, chatmodel.ErrToolInvocation)
		}
		l.callback.OnToolError(ctx, call, err)
		logger.ContextKV(ctx, xlog.WARNING,
			"status", "tool_call_failed",
			"tool", call.ToolName,
			"err", err.Error(),
		)
		return "", err
	}
	l.callback.OnToolEnd(ctx, call, output)
	return output, nil
}

func (l *Loop) buildMessages(ctx context.Context, query string, history []chatmodel.ConversationTurn) (prompts.ChatPromptValue, error) {
	var messages prompts.ChatPromptValue
	if l.sysprompt != nil {
		systemPrompt, err := l.sysprompt.Format(l.promptInputs)
		if err != nil {
			return nil, errors.WithMessage(err, "failed to format system prompt")
		}
		if systemPrompt != "" {
			messages = append(messages, llms.MessageFromTextParts(llms.RoleSystem, systemPrompt))
		}
	}

	prior := windowTurns(history, chatmodel.GetSessionID(ctx), l.historyWindow)
	for _, turn := range prior {
		switch turn.Role {
		case chatmodel.RoleUser:
			messages = append(messages, llms.MessageFromTextParts(llms.RoleHuman, turn.Content))
		case chatmodel.RoleAssistant:
			messages = append(messages, llms.MessageFromTextParts(llms.RoleAI, turn.Content))
		}
	}
	messages = append(messages, llms.MessageFromTextParts(llms.RoleHuman, query))

	logger.ContextKV(ctx, xlog.DEBUG,
		"status", "messages_built",
		"history", len(prior),
		"messages", len(messages),
		"size", messages.Size(),
	)
	return messages, nil
}

// windowTurns returns up to n last turns of the session
func windowTurns(history []chatmodel.ConversationTurn, sessionID string, n int) []chatmodel.ConversationTurn {
	if n <= 0 || len(history) == 0 {
		return nil
	}
	var res []chatmodel.ConversationTurn
	for _, turn := range history {
		if turn.SessionID == sessionID {
			res = append(res, turn)
		}
	}
	if len(res) > n {
		res = res[len(res)-n:]
	}
	return res
}
