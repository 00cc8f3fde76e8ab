package conversation

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/effective-security/mcpbridge/pkg/llms"
	"github.com/effective-security/mcpbridge/pkg/llmutils"
	"github.com/effective-security/x/slices"
)

// Callback receives the events of a query
type Callback interface {
	OnQueryStart(ctx context.Context, query string)
	OnQueryEnd(ctx context.Context, query string, res *Result)
	OnQueryError(ctx context.Context, query string, err error)
	OnLLMCallStart(ctx context.Context, model llms.Model, messages []llms.Message)
	OnLLMCallEnd(ctx context.Context, model llms.Model, resp *llms.ContentResponse)
	OnToolStart(ctx context.Context, call PendingToolCall)
	OnToolEnd(ctx context.Context, call PendingToolCall, output string)
	OnToolError(ctx context.Context, call PendingToolCall, err error)
}

var (
	_ Callback = (*Noop)(nil)
	_ Callback = (*Printer)(nil)
)

// Noop does nothing.
type Noop struct{}

func (Noop) OnQueryStart(context.Context, string)                            {}
func (Noop) OnQueryEnd(context.Context, string, *Result)                     {}
func (Noop) OnQueryError(context.Context, string, error)                     {}
func (Noop) OnLLMCallStart(context.Context, llms.Model, []llms.Message)      {}
func (Noop) OnLLMCallEnd(context.Context, llms.Model, *llms.ContentResponse) {}
func (Noop) OnToolStart(context.Context, PendingToolCall)                    {}
func (Noop) OnToolEnd(context.Context, PendingToolCall, string)              {}
func (Noop) OnToolError(context.Context, PendingToolCall, error)             {}

// Printer writes tool activity to Out, the chat CLI uses it to show
// which tools the model called.
type Printer struct {
	Noop

	Out     io.Writer
	Verbose bool

	lock sync.Mutex
}

// NewPrinter returns Printer
func NewPrinter(out io.Writer, verbose bool) *Printer {
	return &Printer{Out: out, Verbose: verbose}
}

func (l *Printer) OnToolStart(_ context.Context, call PendingToolCall) {
	l.lock.Lock()
	defer l.lock.Unlock()
	fmt.Fprintf(l.Out, "[Calling tool %s with args %s]\n", call.ToolName, llmutils.ToJSON(call.Arguments))
}

func (l *Printer) OnToolEnd(_ context.Context, call PendingToolCall, output string) {
	if !l.Verbose {
		return
	}
	l.lock.Lock()
	defer l.lock.Unlock()
	fmt.Fprintf(l.Out, "[Tool %s returned %s]\n", call.ToolName, slices.StringUpto(output, 256))
}

func (l *Printer) OnToolError(_ context.Context, call PendingToolCall, err error) {
	l.lock.Lock()
	defer l.lock.Unlock()
	fmt.Fprintf(l.Out, "[Tool %s failed: %s]\n", call.ToolName, err.Error())
}

func (l *Printer) OnLLMCallEnd(_ context.Context, model llms.Model, resp *llms.ContentResponse) {
	if !l.Verbose {
		return
	}
	in, out, _ := llmutils.CountTokens(resp)
	l.lock.Lock()
	defer l.lock.Unlock()
	fmt.Fprintf(l.Out, "[%s: %d input tokens, %d output tokens]\n", model.GetName(), in, out)
}
