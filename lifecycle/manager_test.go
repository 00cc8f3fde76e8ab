package lifecycle_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/mcpbridge/chatmodel"
	"github.com/effective-security/mcpbridge/lifecycle"
	"github.com/effective-security/mcpbridge/mcp/demoserver"
	"github.com/effective-security/mcpbridge/mcp/session"
	"github.com/effective-security/mcpbridge/mocks/mockllms"
	"github.com/effective-security/mcpbridge/pkg/llms"
	"github.com/effective-security/mcpbridge/store"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

type fakeFactory struct {
	model llms.Model
	err   error
}

func (f *fakeFactory) DefaultModel() (llms.Model, error) {
	return f.model, f.err
}

func (f *fakeFactory) ModelByType(string) (llms.Model, error) {
	return f.model, f.err
}

func (f *fakeFactory) ModelByName(...string) (llms.Model, error) {
	return f.model, f.err
}

// servers starts an in-memory demo server per identity
type servers struct {
	t      *testing.T
	lock   sync.Mutex
	opened []string
	done   map[string]chan struct{}
	// onOpen is called before the session for identity is opened
	onOpen func(identity string)
}

func newServers(t *testing.T) *servers {
	return &servers{t: t, done: make(map[string]chan struct{})}
}

func (s *servers) options(identity string) []session.Option {
	if s.onOpen != nil {
		s.onOpen(identity)
	}

	ctx := context.Background()
	st, ct := mcp.NewInMemoryTransports()
	ss, err := demoserver.New("test").Connect(ctx, st, nil)
	require.NoError(s.t, err)

	done := make(chan struct{})
	go func() {
		_ = ss.Wait()
		close(done)
	}()
	s.t.Cleanup(func() { _ = ss.Close() })

	s.lock.Lock()
	s.opened = append(s.opened, identity)
	s.done[identity] = done
	s.lock.Unlock()

	return []session.Option{session.WithTransport(ct), session.WithHandshakeTimeout(5 * time.Second)}
}

func (s *servers) closed(identity string) <-chan struct{} {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.done[identity]
}

func newMockModel(ctrl *gomock.Controller) *mockllms.MockModel {
	m := mockllms.NewMockModel(ctrl)
	m.EXPECT().GetName().Return("gemini-2.5-flash").AnyTimes()
	m.EXPECT().GetProviderType().Return(llms.ProviderGoogleAI).AnyTimes()
	return m
}

func answer(text string) *llms.ContentResponse {
	return &llms.ContentResponse{Choices: []*llms.ContentChoice{{Content: text}}}
}

func callTool(name, args string) *llms.ContentResponse {
	return &llms.ContentResponse{Choices: []*llms.ContentChoice{{
		ToolCalls: []llms.ToolCall{{
			ID:           name + "_call",
			Type:         "function",
			FunctionCall: &llms.FunctionCall{Name: name, Arguments: args},
		}},
	}}}
}

func newManager(t *testing.T, model llms.Model, srv *servers, cfg lifecycle.Config) *lifecycle.Manager {
	t.Helper()
	m, err := lifecycle.New(&fakeFactory{model: model}, cfg, lifecycle.WithSessionOptionsFunc(srv.options))
	require.NoError(t, err)
	t.Cleanup(func() { _ = m.Close() })
	return m
}

func TestNew(t *testing.T) {
	_, err := lifecycle.New(nil, lifecycle.Config{})
	assert.EqualError(t, err, "model factory is required")

	_, err = lifecycle.New(&fakeFactory{}, lifecycle.Config{SystemPrompt: "{{ .Tools "})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse system template")

	m, err := lifecycle.New(&fakeFactory{}, lifecycle.Config{})
	require.NoError(t, err)
	st := m.Status()
	assert.False(t, st.Connected)
	assert.Empty(t, st.ServerPath)
	assert.NotNil(t, st.Tools)
	assert.Empty(t, st.Tools)

	// no-op when disconnected
	assert.NoError(t, m.Disconnect(context.Background()))
	assert.NoError(t, m.Close())
	assert.NoError(t, m.Close())
}

func TestQuery_NotConnected(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	// no GenerateContent expectation: the model must never be called
	model := newMockModel(ctrl)
	m := newManager(t, model, newServers(t), lifecycle.Config{})

	_, err := m.Query(context.Background(), "add 2 and 3")
	require.Error(t, err)
	assert.True(t, errors.Is(err, chatmodel.ErrNotConnected))

	turns, err := m.History(context.Background())
	require.NoError(t, err)
	assert.Empty(t, turns)
}

func TestConnect_Status(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	model := newMockModel(ctrl)
	srv := newServers(t)
	m := newManager(t, model, srv, lifecycle.Config{})

	st, err := m.Connect(context.Background(), " demo.py ")
	require.NoError(t, err)
	assert.True(t, st.Connected)
	assert.Equal(t, "demo.py", st.ServerPath)
	assert.ElementsMatch(t, []string{"add", "search"}, st.Tools)
	assert.NotEmpty(t, st.SessionID)
	assert.NotEmpty(t, st.Fingerprint)
	assert.Equal(t, "mcpbridge-demo test", st.ServerInfo)
	assert.Equal(t, "GOOGLEAI", st.Provider)
	assert.Equal(t, "gemini-2.5-flash", st.Model)
	require.NotNil(t, st.ConnectedAt)
	assert.Equal(t, st, m.Status())

	require.NoError(t, m.Disconnect(context.Background()))
	select {
	case <-srv.closed("demo.py"):
	case <-time.After(5 * time.Second):
		t.Fatal("session was not closed")
	}
	st = m.Status()
	assert.False(t, st.Connected)
	assert.Empty(t, st.Tools)
	assert.Empty(t, st.SessionID)
}

func TestConnect_ClosesPreviousFirst(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	model := newMockModel(ctrl)
	srv := newServers(t)
	var events []string
	srv.onOpen = func(identity string) {
		if identity == "b.py" {
			select {
			case <-srv.closed("a.py"):
				events = append(events, "closed a.py")
			case <-time.After(5 * time.Second):
				events = append(events, "a.py still open")
			}
		}
		events = append(events, "open "+identity)
	}
	m := newManager(t, model, srv, lifecycle.Config{})

	stA, err := m.Connect(context.Background(), "a.py")
	require.NoError(t, err)
	stB, err := m.Connect(context.Background(), "b.py")
	require.NoError(t, err)

	assert.Equal(t, []string{"open a.py", "closed a.py", "open b.py"}, events)
	assert.NotEqual(t, stA.SessionID, stB.SessionID)
	assert.Equal(t, "b.py", m.Status().ServerPath)
}

func TestConnect_Failures(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	t.Run("missing_credential", func(t *testing.T) {
		srv := newServers(t)
		factory := &fakeFactory{err: errors.WithMessage(llms.ErrMissingCredential, "GEMINI_API_KEY is not set")}
		m, err := lifecycle.New(factory, lifecycle.Config{}, lifecycle.WithSessionOptionsFunc(srv.options))
		require.NoError(t, err)

		_, err = m.Connect(context.Background(), "demo.py")
		require.Error(t, err)
		assert.True(t, errors.Is(err, chatmodel.ErrMissingCredential))
		assert.True(t, errors.Is(err, chatmodel.ErrConnection))
		// nothing was started
		assert.Empty(t, srv.opened)
		assert.False(t, m.Status().Connected)
	})

	t.Run("empty_path", func(t *testing.T) {
		m := newManager(t, newMockModel(ctrl), newServers(t), lifecycle.Config{})
		_, err := m.Connect(context.Background(), "  ")
		require.Error(t, err)
		assert.True(t, errors.Is(err, chatmodel.ErrConnection))
	})

	t.Run("spawn", func(t *testing.T) {
		m, err := lifecycle.New(&fakeFactory{model: newMockModel(ctrl)}, lifecycle.Config{})
		require.NoError(t, err)

		_, err = m.Connect(context.Background(), "/nonexistent/mcpbridge-test-server")
		require.Error(t, err)
		assert.True(t, errors.Is(err, chatmodel.ErrConnection))
		assert.False(t, m.Status().Connected)

		_, err = m.Query(context.Background(), "hello")
		assert.True(t, errors.Is(err, chatmodel.ErrNotConnected))
	})

	t.Run("failed_reconnect_disconnects", func(t *testing.T) {
		srv := newServers(t)
		m := newManager(t, newMockModel(ctrl), srv, lifecycle.Config{})
		_, err := m.Connect(context.Background(), "a.py")
		require.NoError(t, err)

		_, err = m.Connect(context.Background(), "")
		require.Error(t, err)
		assert.False(t, m.Status().Connected)
		select {
		case <-srv.closed("a.py"):
		case <-time.After(5 * time.Second):
			t.Fatal("previous session was not closed")
		}
	})
}

func TestQuery_AddScenario(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	model := newMockModel(ctrl)
	m := newManager(t, model, newServers(t), lifecycle.Config{MaxToolCalls: 5})

	st, err := m.Connect(context.Background(), "demo.py")
	require.NoError(t, err)

	gomock.InOrder(
		model.EXPECT().GenerateContent(gomock.Any(), gomock.Any(), gomock.Any()).
			Return(callTool("add", `{"a":2,"b":3}`), nil),
		model.EXPECT().GenerateContent(gomock.Any(), gomock.Any(), gomock.Any()).
			DoAndReturn(func(_ context.Context, messages []llms.Message, _ ...llms.CallOption) (*llms.ContentResponse, error) {
				last := messages[len(messages)-1]
				require.Equal(t, llms.RoleTool, last.Role)
				assert.Equal(t, "5", last.Parts[0].(llms.ToolCallResponse).Content)
				return answer("The sum is 5"), nil
			}),
	)

	turn, err := m.Query(context.Background(), "What is 2 plus 3?")
	require.NoError(t, err)
	assert.Equal(t, chatmodel.RoleAssistant, turn.Role)
	assert.Equal(t, "The sum is 5", turn.Content)
	assert.Equal(t, st.SessionID, turn.SessionID)
	require.Len(t, turn.ToolInvocations, 1)
	assert.Equal(t, "add", turn.ToolInvocations[0].ToolName)
	assert.Equal(t, map[string]any{"a": float64(2), "b": float64(3)}, turn.ToolInvocations[0].Arguments)
	assert.Equal(t, "5", turn.ToolInvocations[0].ResultText)

	turns, err := m.History(context.Background())
	require.NoError(t, err)
	require.Len(t, turns, 2)
	assert.Equal(t, chatmodel.RoleUser, turns[0].Role)
	assert.Equal(t, "What is 2 plus 3?", turns[0].Content)
	assert.Empty(t, turns[0].ToolInvocations)
	assert.Equal(t, turn.ID, turns[1].ID)

	require.NoError(t, m.ClearHistory(context.Background()))
	turns, err = m.History(context.Background())
	require.NoError(t, err)
	assert.Empty(t, turns)
}

func TestQuery_NoToolCall(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	model := newMockModel(ctrl)
	m := newManager(t, model, newServers(t), lifecycle.Config{})
	_, err := m.Connect(context.Background(), "demo.py")
	require.NoError(t, err)

	model.EXPECT().GenerateContent(gomock.Any(), gomock.Any(), gomock.Any()).Return(answer("Hello!"), nil)

	turn, err := m.Query(context.Background(), "hi")
	require.NoError(t, err)
	assert.Equal(t, "Hello!", turn.Content)
	assert.Empty(t, turn.ToolInvocations)

	turns, err := m.History(context.Background())
	require.NoError(t, err)
	require.Len(t, turns, 2)
	assert.Empty(t, turns[0].ToolInvocations)
	assert.Empty(t, turns[1].ToolInvocations)
}

func TestQuery_ToolFailureThenRecovery(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	model := newMockModel(ctrl)
	m := newManager(t, model, newServers(t), lifecycle.Config{})
	_, err := m.Connect(context.Background(), "demo.py")
	require.NoError(t, err)

	model.EXPECT().GenerateContent(gomock.Any(), gomock.Any(), gomock.Any()).
		Return(callTool("search", `{"query":""}`), nil)

	_, err = m.Query(context.Background(), "search nothing")
	require.Error(t, err)
	assert.True(t, errors.Is(err, chatmodel.ErrToolInvocation))
	assert.Contains(t, err.Error(), "query is required")

	turns, err := m.History(context.Background())
	require.NoError(t, err)
	assert.Empty(t, turns)
	assert.True(t, m.Status().Connected)

	gomock.InOrder(
		model.EXPECT().GenerateContent(gomock.Any(), gomock.Any(), gomock.Any()).
			Return(callTool("search", `{"query":"errors"}`), nil),
		model.EXPECT().GenerateContent(gomock.Any(), gomock.Any(), gomock.Any()).
			Return(answer("Errors are values."), nil),
	)
	turn, err := m.Query(context.Background(), "search errors")
	require.NoError(t, err)
	assert.Equal(t, "Errors are values.", turn.Content)
	require.Len(t, turn.ToolInvocations, 1)
	assert.Contains(t, turn.ToolInvocations[0].ResultText, "Errors are values.")

	turns, err = m.History(context.Background())
	require.NoError(t, err)
	assert.Len(t, turns, 2)
}

func TestQuery_HistoryWindowAndPrompt(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	model := newMockModel(ctrl)
	history := store.NewMemoryStore(0)
	require.NoError(t, history.Append(context.Background(),
		chatmodel.NewTurn("old-session", chatmodel.RoleUser, "from another session"),
	))

	m, err := lifecycle.New(&fakeFactory{model: model}, lifecycle.Config{
		HistoryWindow: 4,
		SystemPrompt:  `Server {{ .ServerPath }} offers: {{ join ", " .Tools }}`,
		Models:        []string{"gemini-2.5-flash"},
	},
		lifecycle.WithSessionOptionsFunc(newServers(t).options),
		lifecycle.WithHistoryStore(history),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = m.Close() })

	_, err = m.Connect(context.Background(), "demo.py")
	require.NoError(t, err)

	gomock.InOrder(
		model.EXPECT().GenerateContent(gomock.Any(), gomock.Any(), gomock.Any()).
			DoAndReturn(func(_ context.Context, messages []llms.Message, _ ...llms.CallOption) (*llms.ContentResponse, error) {
				require.Len(t, messages, 2)
				assert.Equal(t, llms.RoleSystem, messages[0].Role)
				assert.Contains(t, messages[0].GetContent(), "Server demo.py offers: ")
				return answer("first answer"), nil
			}),
		model.EXPECT().GenerateContent(gomock.Any(), gomock.Any(), gomock.Any()).
			DoAndReturn(func(_ context.Context, messages []llms.Message, _ ...llms.CallOption) (*llms.ContentResponse, error) {
				// system, prior user and assistant turns of this session, query
				require.Len(t, messages, 4)
				assert.Equal(t, "first\n", messages[1].GetContent())
				assert.Equal(t, "first answer\n", messages[2].GetContent())
				assert.Equal(t, "second\n", messages[3].GetContent())
				return answer("second answer"), nil
			}),
	)

	_, err = m.Query(context.Background(), "first")
	require.NoError(t, err)
	_, err = m.Query(context.Background(), "second")
	require.NoError(t, err)

	turns, err := m.History(context.Background())
	require.NoError(t, err)
	assert.Len(t, turns, 5)
}

func TestStatus_NotBlockedByQuery(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	model := newMockModel(ctrl)
	m := newManager(t, model, newServers(t), lifecycle.Config{})
	_, err := m.Connect(context.Background(), "demo.py")
	require.NoError(t, err)

	entered := make(chan struct{})
	release := make(chan struct{})
	model.EXPECT().GenerateContent(gomock.Any(), gomock.Any(), gomock.Any()).
		DoAndReturn(func(context.Context, []llms.Message, ...llms.CallOption) (*llms.ContentResponse, error) {
			close(entered)
			<-release
			return answer("done"), nil
		})

	queryDone := make(chan error, 1)
	go func() {
		_, err := m.Query(context.Background(), "slow")
		queryDone <- err
	}()

	<-entered
	assert.True(t, m.Status().Connected)
	close(release)
	require.NoError(t, <-queryDone)
}
