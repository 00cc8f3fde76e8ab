// Package lifecycle owns the single live tool server session
// and serializes connect, disconnect and queries.
package lifecycle

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/mcpbridge/chatmodel"
	"github.com/effective-security/mcpbridge/conversation"
	"github.com/effective-security/mcpbridge/mcp/catalog"
	"github.com/effective-security/mcpbridge/mcp/session"
	"github.com/effective-security/mcpbridge/pkg/llmfactory"
	"github.com/effective-security/mcpbridge/pkg/llms"
	"github.com/effective-security/mcpbridge/pkg/metricskey"
	"github.com/effective-security/mcpbridge/pkg/prompts"
	"github.com/effective-security/mcpbridge/store"
	"github.com/effective-security/x/slices"
	"github.com/effective-security/xlog"
)

var logger = xlog.NewPackageLogger("github.com/effective-security/mcpbridge", "lifecycle")

type liveSession struct {
	sess  *session.Session
	loop  *conversation.Loop
	model llms.Model
	tools []catalog.ToolDescriptor
}

// Manager owns at most one live session.
// Connect, Disconnect and Query are serialized, Status never waits for them.
type Manager struct {
	factory     llmfactory.Factory
	cfg         Config
	sysprompt   *prompts.Template
	sessionOpts SessionOptionsFunc
	history     store.HistoryStore
	callback    conversation.Callback

	lock sync.Mutex
	live *liveSession

	statusLock sync.RWMutex
	status     Status
}

// New returns Manager
func New(factory llmfactory.Factory, cfg Config, opts ...Option) (*Manager, error) {
	if factory == nil {
		return nil, errors.New("model factory is required")
	}
	m := &Manager{
		factory: factory,
		cfg:     cfg,
		status:  disconnectedStatus(),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.history == nil {
		m.history = store.NewMemoryStore(0)
	}
	if m.sessionOpts == nil {
		m.sessionOpts = func(string) []session.Option { return nil }
	}
	if cfg.SystemPrompt != "" {
		tmpl, err := prompts.NewTemplate("system", cfg.SystemPrompt)
		if err != nil {
			return nil, err
		}
		m.sysprompt = tmpl
	}
	return m, nil
}

// Status returns the current status
func (m *Manager) Status() Status {
	m.statusLock.RLock()
	defer m.statusLock.RUnlock()
	st := m.status
	st.Tools = append([]string{}, m.status.Tools...)
	return st
}

// Connect closes the live session, if any, and connects to the tool server.
// On failure the Manager stays disconnected.
func (m *Manager) Connect(ctx context.Context, identity string) (Status, error) {
	m.lock.Lock()
	defer m.lock.Unlock()

	if err := m.closeLive(ctx); err != nil {
		logger.ContextKV(ctx, xlog.WARNING,
			"status", "close_previous_session",
			"err", err.Error())
	}

	live, err := m.open(ctx, strings.TrimSpace(identity))
	if err != nil {
		logger.ContextKV(ctx, xlog.ERROR,
			"status", "connect_failed",
			"server", identity,
			"err", err.Error())
		return m.Status(), err
	}

	m.live = live
	m.publish(live)

	st := m.Status()
	logger.ContextKV(ctx, xlog.INFO,
		"status", "connected",
		"server", st.ServerPath,
		"session_id", st.SessionID,
		"model", st.Model,
		"tools", st.Tools,
		"fingerprint", st.Fingerprint)
	return st, nil
}

func (m *Manager) open(ctx context.Context, identity string) (*liveSession, error) {
	if identity == "" {
		return nil, errors.Mark(errors.New("server path is required"), chatmodel.ErrConnection)
	}

	// the credential is checked before the server is started
	model, err := m.model()
	if err != nil {
		return nil, chatmodel.MarkError(err, chatmodel.ErrConnection, "failed to create model")
	}

	sess, err := session.Open(ctx, identity, m.sessionOpts(identity)...)
	if err != nil {
		return nil, err
	}

	live, err := m.prepare(ctx, sess, model)
	if err != nil {
		if cerr := sess.Close(); cerr != nil {
			logger.ContextKV(ctx, xlog.DEBUG,
				"status", "close_after_failed_connect",
				"err", cerr.Error())
		}
		return nil, err
	}
	return live, nil
}

func (m *Manager) prepare(ctx context.Context, sess *session.Session, model llms.Model) (*liveSession, error) {
	descriptors, err := sess.ListTools(ctx)
	if err != nil {
		return nil, err
	}
	tools, err := catalog.Adapt(descriptors)
	if err != nil {
		return nil, errors.Mark(err, chatmodel.ErrConnection)
	}

	loopOpts := []conversation.Option{
		conversation.WithMaxToolCalls(m.cfg.MaxToolCalls),
		conversation.WithHistoryWindow(m.cfg.HistoryWindow),
		conversation.WithQueryTimeout(m.cfg.QueryTimeout),
		conversation.WithCallback(m.callback),
	}
	if m.sysprompt != nil {
		loopOpts = append(loopOpts,
			conversation.WithSystemPrompt(m.sysprompt),
			conversation.WithPromptInputs(map[string]any{
				"Tools":      catalog.Names(descriptors),
				"ServerPath": sess.Identity(),
			}),
		)
	}

	loop, err := conversation.New(model, tools, sess, loopOpts...)
	if err != nil {
		return nil, errors.Mark(err, chatmodel.ErrConnection)
	}
	return &liveSession{
		sess:  sess,
		loop:  loop,
		model: model,
		tools: descriptors,
	}, nil
}

func (m *Manager) model() (llms.Model, error) {
	if len(m.cfg.Models) > 0 {
		return m.factory.ModelByName(m.cfg.Models...)
	}
	return m.factory.DefaultModel()
}

// Disconnect closes the live session, no-op when disconnected
func (m *Manager) Disconnect(ctx context.Context) error {
	m.lock.Lock()
	defer m.lock.Unlock()
	return m.closeLive(ctx)
}

// Close releases the live session at process exit
func (m *Manager) Close() error {
	return m.Disconnect(context.Background())
}

func (m *Manager) closeLive(ctx context.Context) error {
	live := m.live
	if live == nil {
		return nil
	}
	m.live = nil
	m.publish(nil)

	err := live.sess.Close()
	logger.ContextKV(ctx, xlog.INFO,
		"status", "disconnected",
		"server", live.sess.Identity(),
		"session_id", live.sess.ID())
	return err
}

func (m *Manager) publish(live *liveSession) {
	st := disconnectedStatus()
	if live != nil {
		connectedAt := live.sess.OpenedAt()
		st = Status{
			Connected:   true,
			ServerPath:  live.sess.Identity(),
			Tools:       catalog.Names(live.tools),
			SessionID:   live.sess.ID(),
			ServerInfo:  live.sess.ServerInfo(),
			Fingerprint: catalog.Fingerprint(live.tools),
			Provider:    string(live.model.GetProviderType()),
			Model:       live.model.GetName(),
			ConnectedAt: &connectedAt,
		}
		if st.Tools == nil {
			st.Tools = []string{}
		}
	}

	m.statusLock.Lock()
	m.status = st
	m.statusLock.Unlock()
}

// Query answers the query with the live session.
// On success the user and the assistant turns are appended to the history,
// on failure the history is not changed.
func (m *Manager) Query(ctx context.Context, text string) (chatmodel.ConversationTurn, error) {
	m.lock.Lock()
	defer m.lock.Unlock()

	live := m.live
	if live == nil {
		return chatmodel.ConversationTurn{}, errors.WithStack(chatmodel.ErrNotConnected)
	}

	modelName := live.model.GetName()
	started := time.Now()
	defer metricskey.PerfQuery.MeasureSince(started, modelName)

	sessionID := live.sess.ID()
	ctx = chatmodel.WithChatContext(ctx, chatmodel.NewChatContext(sessionID))

	turn, err := m.query(ctx, live, text)
	if err != nil {
		metricskey.StatsQueriesFailed.IncrCounter(1, modelName)
		logger.ContextKV(ctx, xlog.ERROR,
			"status", "query_failed",
			"session_id", sessionID,
			"run_id", chatmodel.GetRunID(ctx),
			"query", slices.StringUpto(text, 64),
			"err", err.Error())
		return chatmodel.ConversationTurn{}, err
	}

	metricskey.StatsQueriesSucceeded.IncrCounter(1, modelName)
	logger.ContextKV(ctx, xlog.INFO,
		"status", "query_answered",
		"session_id", sessionID,
		"run_id", chatmodel.GetRunID(ctx),
		"tools", turn.ToolNames(),
		"elapsed", time.Since(started).String())
	return turn, nil
}

func (m *Manager) query(ctx context.Context, live *liveSession, text string) (chatmodel.ConversationTurn, error) {
	sessionID := live.sess.ID()

	var history []chatmodel.ConversationTurn
	if m.cfg.HistoryWindow > 0 {
		turns, err := m.history.Turns(ctx)
		if err != nil {
			return chatmodel.ConversationTurn{}, errors.WithMessage(err, "failed to load history")
		}
		history = store.SessionTurns(turns, sessionID)
	}

	res, err := live.loop.Run(ctx, text, history)
	if err != nil {
		return chatmodel.ConversationTurn{}, err
	}

	user := chatmodel.NewTurn(sessionID, chatmodel.RoleUser, text)
	assistant := chatmodel.NewTurn(sessionID, chatmodel.RoleAssistant, res.Answer, res.Invocations...)
	if err = m.history.Append(ctx, user, assistant); err != nil {
		return chatmodel.ConversationTurn{}, errors.WithMessage(err, "failed to store history")
	}
	return assistant, nil
}

// History returns the conversation history
func (m *Manager) History(ctx context.Context) ([]chatmodel.ConversationTurn, error) {
	return m.history.Turns(ctx)
}

// ClearHistory removes the conversation history
func (m *Manager) ClearHistory(ctx context.Context) error {
	return m.history.Reset(ctx)
}
