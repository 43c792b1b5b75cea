package executor

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Djtony707/TITAN/internal/apperr"
	"github.com/Djtony707/TITAN/internal/approval"
	"github.com/Djtony707/TITAN/internal/broker"
	"github.com/Djtony707/TITAN/internal/ids"
	"github.com/Djtony707/TITAN/internal/planner"
	"github.com/Djtony707/TITAN/internal/policy"
	"github.com/Djtony707/TITAN/internal/store"
	"github.com/Djtony707/TITAN/internal/tools"
	"github.com/Djtony707/TITAN/internal/workspace"
)

type testEnv struct {
	st     *store.Store
	reg    *tools.Registry
	q      *approval.Queue
	br     *broker.Broker
	pl     *planner.Planner
	root   string
}

func newTestEnv(t *testing.T) *testEnv {
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

	return &testEnv{st: st, reg: reg, q: q, br: br, pl: pl, root: root}
}

// singleStepGoal persists a goal already in the "running" state with one
// plan containing a single step for toolName, bypassing the Planner so the
// test controls exactly which tool runs.
func (e *testEnv) singleStepGoal(t *testing.T, goalID, toolName string, args map[string]any) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, e.st.CreateGoal(ctx, store.Goal{ID: goalID, Description: "test goal", State: store.GoalRunning, SubmittedAt: time.Now().UTC()}))

	planID := ids.New()
	plan := store.Plan{
		ID:            planID,
		GoalID:        goalID,
		SelectedIndex: 0,
		Candidates: []store.PlanCandidate{{
			Digest: "test-digest",
			Steps: []store.CandidateStep{{
				ToolName:        toolName,
				Args:            args,
				CapabilityClass: store.CapabilityRead,
			}},
		}},
		CreatedAt: time.Now().UTC(),
	}
	step := store.Step{
		ID:       ids.New(),
		PlanID:   planID,
		Ordinal:  0,
		ToolName: toolName,
		Args:     args,
		State:    store.StepQueued,
	}
	require.NoError(t, e.st.PersistRunBundle(ctx, plan, []store.Step{step}, nil))
}

func TestExecutor_SimpleGoalRunsToDone(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	require.NoError(t, os.WriteFile(filepath.Join(env.root, "a.txt"), []byte("hello"), 0o644))
	env.singleStepGoal(t, "g1", "fs.read", map[string]any{"path": "a.txt"})

	ex := New(env.st, env.pl, env.br, env.q, policy.Autonomous, policy.Secure, DefaultLimits)
	ex.Submit(ctx, "g1")
	ex.Wait()

	goal, err := env.st.GetGoal(ctx, "g1")
	require.NoError(t, err)
	require.Equal(t, store.GoalDone, goal.State)
}

func TestExecutor_RetryableFailureThenSuccess(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	attempts := 0
	require.NoError(t, env.reg.Register(&tools.Tool{
		Name:       "flaky.op",
		Capability: tools.CapabilityRead,
		Execute: func(ctx context.Context, args map[string]any) (string, error) {
			attempts++
			if attempts < 2 {
				return "", apperr.ToolTransient("simulated_transient", nil)
			}
			return "ok", nil
		},
	}))

	env.singleStepGoal(t, "g2", "flaky.op", map[string]any{})

	ex := New(env.st, env.pl, env.br, env.q, policy.Autonomous, policy.Secure, Limits{
		MaxAttemptsPerStep: 3,
		MaxReplansPerGoal:  0,
		BaseBackoff:        5 * time.Millisecond,
		MaxBackoff:         50 * time.Millisecond,
	})
	ex.Submit(ctx, "g2")
	ex.Wait()

	goal, err := env.st.GetGoal(ctx, "g2")
	require.NoError(t, err)
	require.Equal(t, store.GoalDone, goal.State)
	require.Equal(t, 2, attempts)
}

func TestExecutor_TerminalFailureFailsGoalWithNoReplanBudget(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	require.NoError(t, env.reg.Register(&tools.Tool{
		Name:       "broken.op",
		Capability: tools.CapabilityRead,
		Execute: func(ctx context.Context, args map[string]any) (string, error) {
			return "", apperr.ToolPermanent("simulated_permanent", nil)
		},
	}))

	env.singleStepGoal(t, "g3", "broken.op", map[string]any{})

	ex := New(env.st, env.pl, env.br, env.q, policy.Autonomous, policy.Secure, Limits{
		MaxAttemptsPerStep: 1,
		MaxReplansPerGoal:  0,
		BaseBackoff:        time.Millisecond,
		MaxBackoff:         time.Millisecond,
	})
	ex.Submit(ctx, "g3")
	ex.Wait()

	goal, err := env.st.GetGoal(ctx, "g3")
	require.NoError(t, err)
	require.Equal(t, store.GoalFailed, goal.State)
}

func TestExecutor_CancelBeforeStepBoundaryCancelsGoal(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	require.NoError(t, os.WriteFile(filepath.Join(env.root, "b.txt"), []byte("hello"), 0o644))
	env.singleStepGoal(t, "g4", "fs.read", map[string]any{"path": "b.txt"})

	ex := New(env.st, env.pl, env.br, env.q, policy.Autonomous, policy.Secure, DefaultLimits)
	ex.Cancel("g4")
	ex.Submit(ctx, "g4")
	ex.Wait()

	goal, err := env.st.GetGoal(ctx, "g4")
	require.NoError(t, err)
	require.Equal(t, store.GoalCancelled, goal.State)
}

func TestExecutor_ApprovalGatedStepResolvesAndCompletes(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.singleStepGoal(t, "g5", "fs.write", map[string]any{"path": "c.txt", "content": "hi"})

	ex := New(env.st, env.pl, env.br, env.q, policy.Supervised, policy.Secure, DefaultLimits)
	ex.Submit(ctx, "g5")

	var approvalID string
	require.Eventually(t, func() bool {
		pending, err := env.st.ListPendingApprovals(ctx)
		require.NoError(t, err)
		if len(pending) == 0 {
			return false
		}
		approvalID = pending[0].ID
		return true
	}, 2*time.Second, 10*time.Millisecond)

	require.Eventually(t, func() bool {
		goal, err := env.st.GetGoal(ctx, "g5")
		require.NoError(t, err)
		return goal.State == store.GoalAwaiting
	}, 2*time.Second, 10*time.Millisecond)

	claimed, err := env.q.Resolve(ctx, approvalID, "tester", store.DecisionApproved, "ok")
	require.NoError(t, err)
	require.True(t, claimed)

	ex.Wait()

	goal, err := env.st.GetGoal(ctx, "g5")
	require.NoError(t, err)
	require.Equal(t, store.GoalDone, goal.State)
}
