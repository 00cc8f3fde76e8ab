// Package session manages the connection to a tool server process:
// start, handshake, tool listing, tool calls and teardown.
package session

import (
	"context"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/mcpbridge/chatmodel"
	"github.com/effective-security/mcpbridge/mcp/catalog"
	"github.com/effective-security/mcpbridge/pkg/metricskey"
	"github.com/effective-security/x/slices"
	"github.com/effective-security/xlog"
	"github.com/google/uuid"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

var logger = xlog.NewPackageLogger("github.com/effective-security/mcpbridge", "mcp/session")

// ErrClosed is returned when the session is used after Close
var ErrClosed = errors.New("session is closed")

// Session is a live connection to a tool server
type Session struct {
	id       string
	identity string
	server   string
	openedAt time.Time

	lock    sync.Mutex
	cs      *mcp.ClientSession
	cleanup cleanupStack
	tools   []catalog.ToolDescriptor
	listed  bool
	closed  bool
}

// Open starts the tool server identified by identity, usually a path to
// a .py or .js script, and performs the initialize handshake.
// Failures are marked with chatmodel.ErrConnection,
// and everything acquired so far is released.
func Open(ctx context.Context, identity string, opts ...Option) (*Session, error) {
	o := newOptions(opts...)
	s := &Session{
		id:       uuid.NewString(),
		identity: identity,
	}

	tag := serverTag(identity)
	started := time.Now()
	err := s.open(ctx, o)
	metricskey.PerfConnect.MeasureSince(started, tag)
	if err != nil {
		metricskey.StatsSessionsFailed.IncrCounter(1, tag)
		if cerr := s.cleanup.unwind(); cerr != nil {
			logger.ContextKV(ctx, xlog.DEBUG,
				"status", "cleanup_after_failed_open",
				"server", identity,
				"err", cerr.Error())
		}
		logger.ContextKV(ctx, xlog.ERROR,
			"status", "open_failed",
			"server", identity,
			"err", err.Error())
		return nil, chatmodel.MarkErrorf(err, chatmodel.ErrConnection, "failed to connect to %s", identity)
	}

	s.openedAt = time.Now()
	metricskey.StatsSessionsOpened.IncrCounter(1, tag)
	logger.ContextKV(ctx, xlog.INFO,
		"status", "opened",
		"session_id", s.id,
		"server", identity,
		"server_info", s.server,
		"elapsed", time.Since(started).String())
	return s, nil
}

func (s *Session) open(ctx context.Context, o *options) error {
	transport := o.transport
	var kill func()
	if transport == nil {
		cmd, err := buildCommand(s.identity, o.interpreters)
		if err != nil {
			return err
		}
		transport = &mcp.CommandTransport{
			Command:           cmd,
			TerminateDuration: o.terminateDuration,
		}
		kill = func() {
			if cmd.Process != nil {
				_ = cmd.Process.Kill()
			}
		}
		// fallback in case the process outlived the client session
		s.cleanup.push("process", func() error {
			kill()
			return nil
		})
	}

	client := mcp.NewClient(&mcp.Implementation{
		Name:    o.clientName,
		Version: o.clientVersion,
	}, nil)

	hctx, cancel := context.WithTimeout(ctx, o.handshakeTimeout)
	defer cancel()

	wt := &watchedTransport{Transport: transport, ctx: hctx, kill: kill}
	cs, err := client.Connect(hctx, wt, nil)
	if err != nil {
		if errors.Is(hctx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			return errors.WithMessagef(err, "handshake timed out after %s", o.handshakeTimeout)
		}
		return err
	}
	s.cs = cs
	s.cleanup.push("client session", cs.Close)

	if !wt.disarm() {
		// the deadline fired while the handshake was completing
		return errors.Newf("handshake timed out after %s", o.handshakeTimeout)
	}

	if res := cs.InitializeResult(); res != nil && res.ServerInfo != nil {
		s.server = strings.TrimSpace(res.ServerInfo.Name + " " + res.ServerInfo.Version)
	}
	return nil
}

// serverTag returns the metric tag for the server,
// the file name of the script, without the directory
func serverTag(identity string) string {
	identity = strings.TrimSpace(identity)
	if identity == "" {
		return "none"
	}
	return filepath.Base(identity)
}

// watchedTransport kills the server process, or closes the connection
// when there is no process, if ctx is done before disarm is called.
// Connect of the MCP client waits for the server to close its output
// when the handshake fails, a server that never exits would block it forever.
type watchedTransport struct {
	mcp.Transport
	ctx  context.Context
	kill func()

	lock sync.Mutex
	stop func() bool
}

func (t *watchedTransport) Connect(ctx context.Context) (mcp.Connection, error) {
	conn, err := t.Transport.Connect(ctx)
	if err != nil {
		return nil, err
	}

	t.lock.Lock()
	defer t.lock.Unlock()
	t.stop = context.AfterFunc(t.ctx, func() {
		if t.kill != nil {
			// the output is closed by the exiting process
			t.kill()
			return
		}
		_ = conn.Close()
	})
	return conn, nil
}

// disarm stops the watch, returns false if it has already fired
func (t *watchedTransport) disarm() bool {
	t.lock.Lock()
	defer t.lock.Unlock()
	if t.stop == nil {
		return true
	}
	return t.stop()
}

// ID returns the unique ID of the session
func (s *Session) ID() string {
	return s.id
}

// Identity returns the server path the session was opened with
func (s *Session) Identity() string {
	return s.identity
}

// ServerInfo returns the name and version reported by the server
func (s *Session) ServerInfo() string {
	return s.server
}

// OpenedAt returns the time the handshake completed
func (s *Session) OpenedAt() time.Time {
	return s.openedAt
}

func (s *Session) live() (*mcp.ClientSession, error) {
	s.lock.Lock()
	defer s.lock.Unlock()
	if s.closed || s.cs == nil {
		return nil, ErrClosed
	}
	return s.cs, nil
}

// ListTools returns the tools advertised by the server.
// The list is fetched once, later calls return the same snapshot.
func (s *Session) ListTools(ctx context.Context) ([]catalog.ToolDescriptor, error) {
	cs, err := s.live()
	if err != nil {
		return nil, chatmodel.MarkError(err, chatmodel.ErrConnection, "")
	}

	s.lock.Lock()
	if s.listed {
		tools := s.tools
		s.lock.Unlock()
		return tools, nil
	}
	s.lock.Unlock()

	var tools []catalog.ToolDescriptor
	for tool, err := range cs.Tools(ctx, nil) {
		if err != nil {
			return nil, chatmodel.MarkError(err, chatmodel.ErrConnection, "failed to list tools")
		}
		d, err := catalog.FromTool(tool)
		if err != nil {
			return nil, errors.Mark(err, chatmodel.ErrConnection)
		}
		tools = append(tools, d)
	}

	s.lock.Lock()
	defer s.lock.Unlock()
	if !s.listed {
		s.tools = tools
		s.listed = true
	}

	logger.ContextKV(ctx, xlog.DEBUG,
		"status", "listed_tools",
		"session_id", s.id,
		"tools", catalog.Names(s.tools))
	return s.tools, nil
}

// Invoke calls the tool with the arguments and returns the text of the result.
// Text blocks are joined with new line, other blocks are rendered as [type].
// A failed call, an error result or an empty result is marked with
// chatmodel.ErrToolInvocation.
func (s *Session) Invoke(ctx context.Context, name string, args map[string]any) (string, error) {
	cs, err := s.live()
	if err != nil {
		return "", chatmodel.MarkErrorf(err, chatmodel.ErrToolInvocation, "tool %s", name)
	}
	if args == nil {
		args = map[string]any{}
	}

	started := time.Now()
	res, err := cs.CallTool(ctx, &mcp.CallToolParams{
		Name:      name,
		Arguments: args,
	})
	metricskey.PerfToolCall.MeasureSince(started, name)

	if err == nil {
		switch {
		case res == nil || len(res.Content) == 0:
			err = errors.Newf("tool %s returned no content", name)
		case res.IsError:
			err = errors.Newf("tool %s reported an error: %s", name, ContentText(res.Content))
		}
	} else {
		err = errors.WithMessagef(err, "tool %s", name)
	}
	if err != nil {
		metricskey.StatsToolCallsFailed.IncrCounter(1, name)
		logger.ContextKV(ctx, xlog.WARNING,
			"status", "tool_call_failed",
			"session_id", s.id,
			"tool", name,
			"err", err.Error())
		return "", errors.Mark(err, chatmodel.ErrToolInvocation)
	}

	text := ContentText(res.Content)
	metricskey.StatsToolCallsSucceeded.IncrCounter(1, name)
	logger.ContextKV(ctx, xlog.DEBUG,
		"status", "tool_call",
		"session_id", s.id,
		"tool", name,
		"result", slices.StringUpto(text, 64),
		"elapsed", time.Since(started).String())
	return text, nil
}

// Close releases the client session and stops the server process.
// It is safe to call Close more than once.
func (s *Session) Close() error {
	s.lock.Lock()
	if s.closed {
		s.lock.Unlock()
		return nil
	}
	s.closed = true
	s.lock.Unlock()

	err := s.cleanup.unwind()
	logger.KV(xlog.INFO,
		"status", "closed",
		"session_id", s.id,
		"server", s.identity)
	return err
}

// ContentText renders the content blocks of a tool result as text
func ContentText(content []mcp.Content) string {
	parts := make([]string, 0, len(content))
	for _, c := range content {
		switch v := c.(type) {
		case *mcp.TextContent:
			parts = append(parts, v.Text)
		case *mcp.ImageContent:
			parts = append(parts, "[image]")
		case *mcp.AudioContent:
			parts = append(parts, "[audio]")
		case *mcp.ResourceLink:
			parts = append(parts, "[resource_link]")
		case *mcp.EmbeddedResource:
			if v.Resource != nil && v.Resource.Text != "" {
				parts = append(parts, v.Resource.Text)
			} else {
				parts = append(parts, "[resource]")
			}
		default:
			parts = append(parts, "[unknown]")
		}
	}
	return strings.Join(parts, "\n")
}
