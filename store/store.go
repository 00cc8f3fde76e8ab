// Package store keeps the conversation history of the running process.
package store

import (
	"context"

	"github.com/effective-security/mcpbridge/chatmodel"
	"github.com/effective-security/xlog"
)

var logger = xlog.NewPackageLogger("github.com/effective-security/mcpbridge", "store")

// HistoryStore is append-only storage of conversation turns.
// The history lives as long as the process, it is never restored after restart.
type HistoryStore interface {
	// Turns returns the turns in the order they were appended
	Turns(ctx context.Context) ([]chatmodel.ConversationTurn, error)
	// Append adds the turns atomically
	Append(ctx context.Context, turns ...chatmodel.ConversationTurn) error
	// Reset removes all turns
	Reset(ctx context.Context) error
}

// turnsLimit rounds maxTurns up to whole user and assistant pairs,
// so trimming never leaves a reply without its question
func turnsLimit(maxTurns int) int {
	if maxTurns > 0 && maxTurns%2 != 0 {
		return maxTurns + 1
	}
	return maxTurns
}

// SessionTurns returns the turns that belong to the session
func SessionTurns(turns []chatmodel.ConversationTurn, sessionID string) []chatmodel.ConversationTurn {
	var res []chatmodel.ConversationTurn
	for _, t := range turns {
		if t.SessionID == sessionID {
			res = append(res, t)
		}
	}
	return res
}
