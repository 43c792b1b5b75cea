package gateway

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Djtony707/TITAN/internal/approval"
	"github.com/Djtony707/TITAN/internal/broker"
	"github.com/Djtony707/TITAN/internal/executor"
	"github.com/Djtony707/TITAN/internal/planner"
	"github.com/Djtony707/TITAN/internal/policy"
	"github.com/Djtony707/TITAN/internal/store"
	"github.com/Djtony707/TITAN/internal/tools"
	"github.com/Djtony707/TITAN/internal/workspace"
)

func newTestGateway(t *testing.T) (*Gateway, *store.Store, *approval.Queue, string) {
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

	gw := New(st, ex, q)
	t.Cleanup(gw.Stop)
	return gw, st, q, root
}

func TestGateway_GoalSubmissionCreatesAndRunsGoal(t *testing.T) {
	gw, st, _, root := newTestGateway(t)
	ctx := context.Background()

	require.NoError(t, os.WriteFile(filepath.Join(root, "a.txt"), []byte("hi"), 0o644))

	res, err := gw.Dispatch(ctx, Event{
		Origin: OriginCLI,
		Kind:   PayloadGoalSubmission,
		Payload: GoalSubmission{
			Description: "read a.txt from the workspace",
		},
	})
	require.NoError(t, err)
	require.NotEmpty(t, res.GoalID)

	require.Eventually(t, func() bool {
		goal, err := st.GetGoal(ctx, res.GoalID)
		require.NoError(t, err)
		return goal.State.Terminal()
	}, 3*time.Second, 20*time.Millisecond)
}

func TestGateway_GoalSubmissionRejectsEmptyDescription(t *testing.T) {
	gw, _, _, _ := newTestGateway(t)
	_, err := gw.Dispatch(context.Background(), Event{
		Origin:  OriginCLI,
		Kind:    PayloadGoalSubmission,
		Payload: GoalSubmission{Description: ""},
	})
	require.Error(t, err)
}

func TestGateway_NotifiesChannelOnTerminalState(t *testing.T) {
	gw, _, _, root := newTestGateway(t)
	ctx := context.Background()
	require.NoError(t, os.WriteFile(filepath.Join(root, "a.txt"), []byte("hi"), 0o644))

	res, err := gw.Dispatch(ctx, Event{
		Origin:        OriginChat,
		ChannelTarget: "#ops",
		ActorID:       "u1",
		Kind:          PayloadGoalSubmission,
		Payload:       GoalSubmission{Description: "read a.txt from the workspace"},
	})
	require.NoError(t, err)

	select {
	case note := <-gw.Notifications():
		require.Equal(t, res.GoalID, note.GoalID)
		require.Equal(t, "#ops", note.ChannelTarget)
		require.Equal(t, store.GoalDone, note.Outcome)
	case <-time.After(3 * time.Second):
		t.Fatal("never received a terminal-state notification")
	}
}

func TestGateway_NoChannelTargetNeverWatched(t *testing.T) {
	gw, _, _, root := newTestGateway(t)
	ctx := context.Background()
	require.NoError(t, os.WriteFile(filepath.Join(root, "a.txt"), []byte("hi"), 0o644))

	_, err := gw.Dispatch(ctx, Event{
		Origin:  OriginCLI,
		Kind:    PayloadGoalSubmission,
		Payload: GoalSubmission{Description: "read a.txt from the workspace"},
	})
	require.NoError(t, err)

	select {
	case note := <-gw.Notifications():
		t.Fatalf("unexpected notification for a goal with no channel target: %+v", note)
	case <-time.After(500 * time.Millisecond):
	}
}

func TestGateway_CancelDispatchesToExecutor(t *testing.T) {
	gw, st, _, _ := newTestGateway(t)
	ctx := context.Background()

	res, err := gw.Dispatch(ctx, Event{
		Origin:  OriginCLI,
		Kind:    PayloadGoalSubmission,
		Payload: GoalSubmission{Description: "some long-running goal"},
	})
	require.NoError(t, err)

	_, err = gw.Dispatch(ctx, Event{
		Origin:  OriginCLI,
		Kind:    PayloadCancel,
		Payload: Cancel{GoalID: res.GoalID},
	})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		goal, err := st.GetGoal(ctx, res.GoalID)
		require.NoError(t, err)
		return goal.State.Terminal()
	}, 3*time.Second, 20*time.Millisecond)
}

func TestGateway_ApprovalDecisionResolvesPendingApproval(t *testing.T) {
	gw, st, q, _ := newTestGateway(t)
	ctx := context.Background()

	a, err := q.Request(ctx, "fs.write", "step-1", []string{"WRITE"}, nil, nil, "", store.SignatureUnsigned, time.Second)
	require.NoError(t, err)

	res, err := gw.Dispatch(ctx, Event{
		Origin: OriginHTTP,
		Kind:   PayloadApprovalDecision,
		Payload: ApprovalDecision{
			ApprovalID: a.ID,
			Decision:   store.DecisionApproved,
			Reason:     "looks fine",
			Resolver:   "operator",
		},
	})
	require.NoError(t, err)
	require.True(t, res.Claimed)

	resolved, err := st.GetApproval(ctx, a.ID)
	require.NoError(t, err)
	require.Equal(t, store.DecisionApproved, resolved.Decision)
}

func TestGateway_UnknownEventKindRejected(t *testing.T) {
	gw, _, _, _ := newTestGateway(t)
	_, err := gw.Dispatch(context.Background(), Event{Kind: PayloadKind("bogus")})
	require.Error(t, err)
}
