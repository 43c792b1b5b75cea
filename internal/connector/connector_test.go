package connector

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Djtony707/TITAN/internal/secrets"
	"github.com/Djtony707/TITAN/internal/store"
	"github.com/Djtony707/TITAN/internal/tools"
)

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "titan.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return st
}

func TestMediator_RegisterToolsAndExecuteRead(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/issues/1", r.URL.Path)
		require.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))
		w.Write([]byte(`{"title":"bug"}`))
	}))
	t.Cleanup(srv.Close)

	st := newTestStore(t)
	require.NoError(t, st.UpsertConnector(context.Background(), store.Connector{
		ID:          "gh1",
		Type:        "rest",
		DisplayName: "GitHub",
		Fields:      map[string]string{"base_url": srv.URL, "auth_header": "Authorization"},
		SecretKey:   "github_token",
	}))

	types := NewTypeRegistry()
	types.Register(RESTTypeDef())

	sec := secrets.Chain{secrets.EnvSecrets{Prefix: "TITAN_SECRET_"}}
	t.Setenv("TITAN_SECRET_github_token", "Bearer test-token")

	mediator := NewMediator(st, types, sec)
	reg := tools.NewRegistry()
	require.NoError(t, mediator.RegisterTools(context.Background(), reg))

	require.True(t, reg.Has(ToolName("gh1", "get")))
	require.True(t, reg.Has(ToolName("gh1", "post")))

	res, err := reg.Execute(context.Background(), ToolName("gh1", "get"), map[string]any{"path": "/issues/1"})
	require.NoError(t, err)
	require.Contains(t, res.Output, "bug")
}

func TestMediator_PostOperationIsMarkedConnectorWrite(t *testing.T) {
	st := newTestStore(t)
	require.NoError(t, st.UpsertConnector(context.Background(), store.Connector{
		ID: "gh2", Type: "rest", DisplayName: "GitHub", Fields: map[string]string{"base_url": "http://example.invalid"},
	}))

	types := NewTypeRegistry()
	types.Register(RESTTypeDef())
	mediator := NewMediator(st, types, nil)
	reg := tools.NewRegistry()
	require.NoError(t, mediator.RegisterTools(context.Background(), reg))

	tool := reg.Get(ToolName("gh2", "post"))
	require.NotNil(t, tool)
	require.True(t, tool.ConnectorWrite)
	require.Equal(t, tools.CapabilityWrite, tool.Capability)
}

func TestMediator_UnknownConnectorTypeFails(t *testing.T) {
	st := newTestStore(t)
	require.NoError(t, st.UpsertConnector(context.Background(), store.Connector{ID: "x1", Type: "does-not-exist"}))

	mediator := NewMediator(st, NewTypeRegistry(), nil)
	reg := tools.NewRegistry()
	err := mediator.RegisterTools(context.Background(), reg)
	require.Error(t, err)
}
