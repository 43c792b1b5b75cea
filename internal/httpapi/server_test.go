package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Djtony707/TITAN/internal/approval"
	"github.com/Djtony707/TITAN/internal/broker"
	"github.com/Djtony707/TITAN/internal/executor"
	"github.com/Djtony707/TITAN/internal/gateway"
	"github.com/Djtony707/TITAN/internal/planner"
	"github.com/Djtony707/TITAN/internal/policy"
	"github.com/Djtony707/TITAN/internal/scheduler"
	"github.com/Djtony707/TITAN/internal/store"
	"github.com/Djtony707/TITAN/internal/tools"
	"github.com/Djtony707/TITAN/internal/workspace"
)

func newTestServer(t *testing.T) (*Server, *store.Store, string) {
	t.Helper()
	root := t.TempDir()
	guard, err := workspace.New(root)
	require.NoError(t, err)

	st, err := store.Open(filepath.Join(t.TempDir(), "titan.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	reg := tools.NewRegistry()
	tools.RegisterFilesystemTools(reg)

	q := approval.New(st)
	t.Cleanup(q.Close)

	br := broker.New(reg, guard, policy.New(), q, st, 2)
	pl := planner.New(reg, st, planner.Weights{})
	ex := executor.New(st, pl, br, q, policy.Autonomous, policy.Secure, executor.DefaultLimits)

	gw := gateway.New(st, ex, q)
	t.Cleanup(gw.Stop)

	sched := scheduler.New(st, gw, 2, 20*time.Millisecond)
	sched.Start(context.Background())
	t.Cleanup(sched.Stop)

	srv, err := New("127.0.0.1:0", st, gw, sched)
	require.NoError(t, err)
	return srv, st, root
}

func TestNew_RejectsNonLoopbackAddress(t *testing.T) {
	_, _, root := newTestServer(t)
	_ = root
	_, err := New("0.0.0.0:8733", nil, nil, nil)
	require.Error(t, err)

	_, err = New(":8733", nil, nil, nil)
	require.Error(t, err)

	_, err = New("10.0.0.5:8733", nil, nil, nil)
	require.Error(t, err)
}

func TestNew_AcceptsLoopbackAddresses(t *testing.T) {
	for _, addr := range []string{"127.0.0.1:0", "localhost:0", "[::1]:0"} {
		_, err := New(addr, nil, nil, nil)
		require.NoError(t, err, addr)
	}
}

func TestServer_SubmitAndFetchGoal(t *testing.T) {
	srv, _, root := newTestServer(t)
	require.NoError(t, os.WriteFile(filepath.Join(root, "a.txt"), []byte("hi"), 0o644))

	body, err := json.Marshal(submitGoalRequest{Description: "read a.txt from the workspace"})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/goals", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	srv.router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusAccepted, rec.Code)

	var res gateway.Result
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	require.NotEmpty(t, res.GoalID)

	req = httptest.NewRequest(http.MethodGet, "/goals/"+res.GoalID, nil)
	rec = httptest.NewRecorder()
	srv.router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var goal store.Goal
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &goal))
	require.Equal(t, res.GoalID, goal.ID)
}

func TestServer_ListGoalsEmpty(t *testing.T) {
	srv, _, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/goals", nil)
	rec := httptest.NewRecorder()
	srv.router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "null\n", rec.Body.String())
}

func TestServer_ApproveApproval(t *testing.T) {
	srv, st, _ := newTestServer(t)
	ctx := context.Background()

	a := store.Approval{
		ID:             "appr-1",
		ToolName:       "fs.write",
		Scopes:         []string{"WRITE"},
		SignatureStatus: store.SignatureUnsigned,
		TTLDeadline:    time.Now().Add(time.Hour),
		CreatedAt:      time.Now(),
	}
	require.NoError(t, st.CreateApproval(ctx, a))

	body, err := json.Marshal(approvalDecisionRequest{Resolver: "operator", Reason: "fine"})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/approvals/appr-1/approve", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	srv.router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	resolved, err := st.GetApproval(ctx, "appr-1")
	require.NoError(t, err)
	require.Equal(t, store.DecisionApproved, resolved.Decision)
}

func TestServer_ApproveUnknownApprovalReturnsError(t *testing.T) {
	srv, _, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodPost, "/approvals/nope/approve", nil)
	rec := httptest.NewRecorder()
	srv.router.ServeHTTP(rec, req)
	require.NotEqual(t, http.StatusOK, rec.Code)
}

func TestServer_ListConnectorsEmpty(t *testing.T) {
	srv, _, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/connectors", nil)
	rec := httptest.NewRecorder()
	srv.router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
}
