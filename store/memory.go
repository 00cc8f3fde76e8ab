package store

import (
	"context"
	"slices"
	"sync"

	"github.com/effective-security/mcpbridge/chatmodel"
)

type inMemory struct {
	mu       sync.RWMutex
	turns    []chatmodel.ConversationTurn
	maxTurns int
}

// NewMemoryStore returns HistoryStore kept in memory,
// maxTurns limits the number of kept turns, zero means no limit.
// An odd limit is rounded up to keep user and assistant turns in pairs.
func NewMemoryStore(maxTurns int) HistoryStore {
	return &inMemory{maxTurns: turnsLimit(maxTurns)}
}

func (m *inMemory) Turns(_ context.Context) ([]chatmodel.ConversationTurn, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Clone(m.turns), nil
}

func (m *inMemory) Append(_ context.Context, turns ...chatmodel.ConversationTurn) error {
	if len(turns) == 0 {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.turns = append(m.turns, turns...)
	if m.maxTurns > 0 && len(m.turns) > m.maxTurns {
		m.turns = slices.Clone(m.turns[len(m.turns)-m.maxTurns:])
	}
	return nil
}

func (m *inMemory) Reset(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.turns = nil
	return nil
}
