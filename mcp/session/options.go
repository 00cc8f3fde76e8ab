package session

import (
	"maps"
	"time"

	"github.com/effective-security/x/values"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

const (
	// DefaultHandshakeTimeout bounds the start and initialize handshake
	DefaultHandshakeTimeout = 30 * time.Second
	// DefaultTerminateDuration is how long Close waits for the process to exit
	// before signalling it
	DefaultTerminateDuration = 5 * time.Second
)

// ClientName is the client name reported in the handshake
const ClientName = "mcpbridge"

type options struct {
	handshakeTimeout  time.Duration
	terminateDuration time.Duration
	interpreters      map[string]string
	clientName        string
	clientVersion     string
	transport         mcp.Transport
}

func newOptions(opts ...Option) *options {
	o := &options{
		clientName:    ClientName,
		clientVersion: "dev",
		interpreters:  maps.Clone(DefaultInterpreters),
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.handshakeTimeout <= 0 {
		o.handshakeTimeout = DefaultHandshakeTimeout
	}
	if o.terminateDuration <= 0 {
		o.terminateDuration = DefaultTerminateDuration
	}
	return o
}

// Option configures Open
type Option func(*options)

// WithHandshakeTimeout bounds the process start and the initialize handshake
func WithHandshakeTimeout(d time.Duration) Option {
	return func(o *options) {
		o.handshakeTimeout = d
	}
}

// WithTerminateDuration sets how long Close waits for the process to exit
func WithTerminateDuration(d time.Duration) Option {
	return func(o *options) {
		o.terminateDuration = d
	}
}

// WithInterpreters overrides the interpreters by script extension,
// for example {".py": "uv run python"}
func WithInterpreters(interpreters map[string]string) Option {
	return func(o *options) {
		for ext, cmd := range interpreters {
			o.interpreters[ext] = cmd
		}
	}
}

// WithClientInfo sets the client name and version reported to the server
func WithClientInfo(name, version string) Option {
	return func(o *options) {
		o.clientName = values.StringsCoalesce(name, o.clientName)
		o.clientVersion = values.StringsCoalesce(version, o.clientVersion)
	}
}

// WithTransport connects over the given transport instead of starting
// a process, for example to an in-process server
func WithTransport(t mcp.Transport) Option {
	return func(o *options) {
		o.transport = t
	}
}
