package chatmodel

import (
	"context"
	"strconv"
	"sync"

	"github.com/effective-security/x/values"
	"github.com/effective-security/xdb/pkg/flake"
)

// ChatContext is the context of a query,
// It contains the session ID of the tool server and the query run ID
type ChatContext interface {
	GetSessionID() string
	// RunID returns the unique ID of the query
	RunID() string
	// GetMetadata retrieves metadata by key
	GetMetadata(key string) (value any, ok bool)
	// SetMetadata sets metadata by key
	SetMetadata(key string, value any)
}

type chatContext struct {
	sessionID string
	runID     string
	metadata  sync.Map
}

func (c *chatContext) GetSessionID() string {
	return c.sessionID
}

func (c *chatContext) RunID() string {
	return c.runID
}

func (c *chatContext) GetMetadata(key string) (value any, ok bool) {
	return c.metadata.Load(key)
}

func (c *chatContext) SetMetadata(key string, value any) {
	c.metadata.Store(key, value)
}

// NewChatContext returns ChatContext for the session, with a new run ID
func NewChatContext(sessionID string) ChatContext {
	return &chatContext{
		sessionID: values.StringsCoalesce(sessionID, NewChatID()),
		runID:     NewChatID(),
	}
}

type contextKey int

const (
	keyContext contextKey = iota
)

// WithChatContext returns a new context with ChatContext value
func WithChatContext(ctx context.Context, chatCtx ChatContext) context.Context {
	return context.WithValue(ctx, keyContext, chatCtx)
}

// GetChatContext retrieves the ChatContext from the context
func GetChatContext(ctx context.Context) ChatContext {
	if v, ok := ctx.Value(keyContext).(ChatContext); ok {
		return v
	}
	return nil
}

// GetSessionID retrieves the session ID from the provided context.
// If the context does not contain a ChatContext, it returns an empty string.
func GetSessionID(ctx context.Context) string {
	if v, ok := ctx.Value(keyContext).(ChatContext); ok {
		return v.GetSessionID()
	}
	return ""
}

// GetRunID retrieves the run ID from the provided context.
func GetRunID(ctx context.Context) string {
	if v, ok := ctx.Value(keyContext).(ChatContext); ok {
		return v.RunID()
	}
	return ""
}

// NewChatID generates a new time ordered ID using the flake ID generator
func NewChatID() string {
	return strconv.FormatUint(flake.DefaultIDGenerator.NextID(), 10)
}
