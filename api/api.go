// Package api exposes the session orchestrator over HTTP.
package api

import (
	"context"

	"github.com/effective-security/mcpbridge/chatmodel"
	"github.com/effective-security/mcpbridge/lifecycle"
	"github.com/effective-security/xlog"
)

//go:generate mockgen -source=api.go -destination=../mocks/mockapi/api_mock.gen.go -package mockapi

var logger = xlog.NewPackageLogger("github.com/effective-security/mcpbridge", "api")

// NotConnectedDetail is returned on query without a live session
const NotConnectedDetail = "Client not connected to any server."

// Manager is the session orchestrator served by the API,
// implemented by lifecycle.Manager
type Manager interface {
	Connect(ctx context.Context, identity string) (lifecycle.Status, error)
	Disconnect(ctx context.Context) error
	Query(ctx context.Context, text string) (chatmodel.ConversationTurn, error)
	Status() lifecycle.Status
	History(ctx context.Context) ([]chatmodel.ConversationTurn, error)
	ClearHistory(ctx context.Context) error
}

var _ Manager = (*lifecycle.Manager)(nil)

// ConnectRequest is the body of POST /connect
type ConnectRequest struct {
	ServerPath string `json:"server_path" validate:"required"`
}

// ConnectResponse is returned by POST /connect
type ConnectResponse struct {
	Status    string   `json:"status"`
	Tools     []string `json:"tools"`
	SessionID string   `json:"session_id,omitempty"`
}

// QueryRequest is the body of POST /query
type QueryRequest struct {
	Query string `json:"query" validate:"required"`
}

// ErrorResponse is returned on failure
type ErrorResponse struct {
	Detail string `json:"detail"`
}
