package api_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/effective-security/mcpbridge/api"
	"github.com/effective-security/mcpbridge/chatmodel"
	"github.com/effective-security/mcpbridge/lifecycle"
	"github.com/effective-security/mcpbridge/mcp/demoserver"
	"github.com/effective-security/mcpbridge/mcp/session"
	"github.com/effective-security/mcpbridge/mocks/mockllms"
	"github.com/effective-security/mcpbridge/pkg/llms"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

type modelFactory struct {
	model llms.Model
}

func (f modelFactory) DefaultModel() (llms.Model, error)         { return f.model, nil }
func (f modelFactory) ModelByType(string) (llms.Model, error)    { return f.model, nil }
func (f modelFactory) ModelByName(...string) (llms.Model, error) { return f.model, nil }

func inMemoryServer(t *testing.T) lifecycle.SessionOptionsFunc {
	return func(string) []session.Option {
		st, ct := mcp.NewInMemoryTransports()
		ss, err := demoserver.New("e2e").Connect(context.Background(), st, nil)
		require.NoError(t, err)
		t.Cleanup(func() { _ = ss.Close() })
		return []session.Option{session.WithTransport(ct), session.WithHandshakeTimeout(5 * time.Second)}
	}
}

func TestServer_EndToEnd(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	model := mockllms.NewMockModel(ctrl)
	model.EXPECT().GetName().Return("gemini-2.5-flash").AnyTimes()
	model.EXPECT().GetProviderType().Return(llms.ProviderGoogleAI).AnyTimes()

	mgr, err := lifecycle.New(modelFactory{model: model}, lifecycle.Config{MaxToolCalls: 5},
		lifecycle.WithSessionOptionsFunc(inMemoryServer(t)))
	require.NoError(t, err)
	defer mgr.Close()

	srv := httptest.NewServer(api.New(mgr).Handler())
	defer srv.Close()

	post := func(path, body string) (*http.Response, []byte) {
		resp, err := http.Post(srv.URL+path, "application/json", strings.NewReader(body))
		require.NoError(t, err)
		defer resp.Body.Close()
		var raw json.RawMessage
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&raw))
		return resp, raw
	}

	resp, body := post("/query", `{"query":"What is 2 plus 3?"}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.JSONEq(t, `{"detail":"Client not connected to any server."}`, string(body))

	resp, body = post("/connect", `{"server_path":"demo.py"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	var connected api.ConnectResponse
	require.NoError(t, json.Unmarshal(body, &connected))
	assert.Equal(t, "connected", connected.Status)
	assert.ElementsMatch(t, []string{"add", "search"}, connected.Tools)

	gomock.InOrder(
		model.EXPECT().GenerateContent(gomock.Any(), gomock.Any(), gomock.Any()).
			Return(&llms.ContentResponse{Choices: []*llms.ContentChoice{{
				ToolCalls: []llms.ToolCall{{
					ID:           "add_call",
					Type:         "function",
					FunctionCall: &llms.FunctionCall{Name: "add", Arguments: `{"a":2,"b":3}`},
				}},
			}}}, nil),
		model.EXPECT().GenerateContent(gomock.Any(), gomock.Any(), gomock.Any()).
			Return(&llms.ContentResponse{Choices: []*llms.ContentChoice{{Content: "The sum is 5"}}}, nil),
	)

	resp, body = post("/query", `{"query":"What is 2 plus 3?"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	var turn chatmodel.ConversationTurn
	require.NoError(t, json.Unmarshal(body, &turn))
	assert.Equal(t, chatmodel.RoleAssistant, turn.Role)
	assert.Equal(t, "The sum is 5", turn.Content)
	require.Len(t, turn.ToolInvocations, 1)
	assert.Equal(t, "5", turn.ToolInvocations[0].ResultText)

	res, err := http.Get(srv.URL + "/status")
	require.NoError(t, err)
	var st lifecycle.Status
	require.NoError(t, json.NewDecoder(res.Body).Decode(&st))
	_ = res.Body.Close()
	assert.True(t, st.Connected)
	assert.Equal(t, "demo.py", st.ServerPath)
	assert.Equal(t, connected.SessionID, st.SessionID)

	res, err = http.Get(srv.URL + "/history")
	require.NoError(t, err)
	var turns []chatmodel.ConversationTurn
	require.NoError(t, json.NewDecoder(res.Body).Decode(&turns))
	_ = res.Body.Close()
	require.Len(t, turns, 2)
	assert.Equal(t, chatmodel.RoleUser, turns[0].Role)
	assert.Equal(t, turn.ID, turns[1].ID)

	resp, body = post("/disconnect", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), `"connected":false`)
}
