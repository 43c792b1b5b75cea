package executor

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Djtony707/TITAN/internal/apperr"
	"github.com/Djtony707/TITAN/internal/gateway"
	"github.com/Djtony707/TITAN/internal/ids"
	"github.com/Djtony707/TITAN/internal/policy"
	"github.com/Djtony707/TITAN/internal/scheduler"
	"github.com/Djtony707/TITAN/internal/store"
	"github.com/Djtony707/TITAN/internal/tools"
)

// S1 (read-only): a READ-only goal terminalizes done with no approval ever
// created and an episodic memory row written.
func TestScenario_S1_ReadOnlyGoalCompletesWithoutApproval(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	require.NoError(t, os.WriteFile(filepath.Join(env.root, "a.txt"), []byte("hi"), 0o644))
	env.singleStepGoal(t, "s1", "fs.list", map[string]any{"path": env.root})

	ex := New(env.st, env.pl, env.br, env.q, policy.Collaborative, policy.Secure, DefaultLimits)
	ex.Submit(ctx, "s1")
	ex.Wait()

	goal, err := env.st.GetGoal(ctx, "s1")
	require.NoError(t, err)
	require.Equal(t, store.GoalDone, goal.State)

	approvals, err := env.st.ListApprovals(ctx)
	require.NoError(t, err)
	require.Empty(t, approvals)

	mem, err := env.st.ListEpisodicMemory(ctx, 10)
	require.NoError(t, err)
	require.Len(t, mem, 1)
	require.Equal(t, "s1", mem[0].GoalID)
}

// S2 (write gated): under collaborative+secure, a WRITE step suspends at
// awaiting_approval with the canonicalized target path visible on the
// approval row, then completes once approved.
func TestScenario_S2_WriteStepSuspendsThenCompletesOnApproval(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.singleStepGoal(t, "s2", "fs.write", map[string]any{"path": "docs/readme.md", "content": "install steps"})

	ex := New(env.st, env.pl, env.br, env.q, policy.Collaborative, policy.Secure, DefaultLimits)
	ex.Submit(ctx, "s2")

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

	approval, err := env.st.GetApproval(ctx, approvalID)
	require.NoError(t, err)
	require.Contains(t, approval.Paths, filepath.Join(env.root, "docs/readme.md"))

	require.Eventually(t, func() bool {
		goal, err := env.st.GetGoal(ctx, "s2")
		require.NoError(t, err)
		return goal.State == store.GoalAwaiting
	}, 2*time.Second, 10*time.Millisecond)

	claimed, err := env.q.Resolve(ctx, approvalID, "tester", store.DecisionApproved, "ok")
	require.NoError(t, err)
	require.True(t, claimed)

	ex.Wait()

	goal, err := env.st.GetGoal(ctx, "s2")
	require.NoError(t, err)
	require.Equal(t, store.GoalDone, goal.State)

	traces, err := env.st.ListTraces(ctx, "s2")
	require.NoError(t, err)
	var sawWrite bool
	for _, tr := range traces {
		if tr.Kind == "tool_result" {
			sawWrite = true
		}
	}
	require.True(t, sawWrite, "expected a tool_result trace for the completed write")
}

// S3 (approval timeout): a WRITE step whose approval is never decided times
// out at its TTL, failing the step and the goal, with the approval row
// recording decision=timeout.
func TestScenario_S3_ApprovalTimeoutFailsStepAndGoal(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.singleStepGoal(t, "s3", "fs.write", map[string]any{"path": "docs/readme.md", "content": "install steps"})

	ex := New(env.st, env.pl, env.br, env.q, policy.Collaborative, policy.Secure, DefaultLimits)
	ex.SetApprovalTTL(50 * time.Millisecond)
	ex.Submit(ctx, "s3")
	ex.Wait()

	goal, err := env.st.GetGoal(ctx, "s3")
	require.NoError(t, err)
	require.Equal(t, store.GoalFailed, goal.State)

	approvals, err := env.st.ListApprovals(ctx)
	require.NoError(t, err)
	require.Len(t, approvals, 1)
	require.Equal(t, store.DecisionTimeout, approvals[0].Decision)
}

// S4 (path escape): a tool invoked with a path that resolves outside the
// workspace fails workspace_violation before any filesystem call, and the
// rejection (including the raw attempted path) lands in the trace.
func TestScenario_S4_PathEscapeRejectedBeforeFilesystemCall(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.singleStepGoal(t, "s4", "fs.read", map[string]any{"path": "../../etc/passwd"})

	ex := New(env.st, env.pl, env.br, env.q, policy.Autonomous, policy.Secure, Limits{
		MaxAttemptsPerStep: 1,
		MaxReplansPerGoal:  0,
		BaseBackoff:        time.Millisecond,
		MaxBackoff:         time.Millisecond,
	})
	ex.Submit(ctx, "s4")
	ex.Wait()

	goal, err := env.st.GetGoal(ctx, "s4")
	require.NoError(t, err)
	require.Equal(t, store.GoalFailed, goal.State)

	steps, err := env.st.ListSteps(ctx, mustPlanID(t, env.st, "s4"))
	require.NoError(t, err)
	require.Len(t, steps, 1)
	require.Equal(t, store.StepFailed, steps[0].State)
	require.Contains(t, steps[0].ErrorText, string(apperr.CodeWorkspaceViolation))
	require.Contains(t, steps[0].ErrorText, "path_escapes_workspace")

	traces, err := env.st.ListTraces(ctx, "s4")
	require.NoError(t, err)
	var sawRejection bool
	for _, tr := range traces {
		if tr.Kind != "tool_error" {
			continue
		}
		errMsg, _ := tr.Payload["error"].(string)
		if errMsg != "" {
			require.Contains(t, errMsg, "../../etc/passwd")
			require.Contains(t, errMsg, "path_escapes_workspace")
			sawRejection = true
		}
	}
	require.True(t, sawRejection, "expected a tool_error trace carrying the rejection reason")
}

// S5 (job fires, concurrency): an interval job whose goal template runs
// longer than the interval never has two overlapping job runs; the second
// run only starts once the first has finished.
//
// This goes through the real Planner rather than singleStepGoal, since the
// scheduler's per-job overlap lock only engages on the full
// pollOnce->Dispatch->Submit path. The registry still carries the fs.*
// catalogue from newTestEnv alongside slow.op, but the goal text only
// keyword-matches slow.op (score 0 for every fs.* tool's name/description
// tokens), so the "minimal" one-step candidate always wins on confidence and
// risk cost over any multi-tool candidate a low-selectivity strategy like
// "broad" might otherwise assemble.
func TestScenario_S5_SchedulerNeverOverlapsRunsOfTheSameJob(t *testing.T) {
	env := newTestEnv(t)

	var running int32
	require.NoError(t, env.reg.Register(&tools.Tool{
		Name:       "slow.op",
		Capability: tools.CapabilityRead,
		Execute: func(ctx context.Context, args map[string]any) (string, error) {
			require.True(t, atomic.CompareAndSwapInt32(&running, 0, 1), "a second run started before the first finished")
			time.Sleep(120 * time.Millisecond)
			atomic.StoreInt32(&running, 0)
			return "done", nil
		},
	}))

	ex := New(env.st, env.pl, env.br, env.q, policy.Autonomous, policy.Secure, DefaultLimits)
	gw := gateway.New(env.st, ex, env.q)
	t.Cleanup(gw.Stop)

	sched := scheduler.New(env.st, gw, 2, 20*time.Millisecond)
	t.Cleanup(sched.Stop)

	jobID := ids.New()
	now := time.Now().UTC()
	require.NoError(t, env.st.CreateJob(context.Background(), store.Job{
		ID:            jobID,
		Name:          "slow-job",
		ScheduleKind:  store.ScheduleInterval,
		ScheduleValue: "30ms",
		GoalTemplate:  "run slow op now",
		Enabled:       true,
		NextFireAt:    &now,
	}))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	sched.Start(ctx)

	require.Eventually(t, func() bool {
		runs, err := env.st.ListJobRuns(context.Background(), jobID)
		require.NoError(t, err)
		finished := 0
		for _, r := range runs {
			if r.FinishedAt != nil {
				finished++
			}
		}
		return finished >= 2
	}, 3*time.Second, 20*time.Millisecond)

	runs, err := env.st.ListJobRuns(context.Background(), jobID)
	require.NoError(t, err)
	for i := 0; i < len(runs); i++ {
		for j := i + 1; j < len(runs); j++ {
			a, b := runs[i], runs[j]
			if a.FinishedAt == nil || b.FinishedAt == nil {
				continue
			}
			overlap := a.StartedAt.Before(*b.FinishedAt) && b.StartedAt.Before(*a.FinishedAt)
			require.False(t, overlap, "job runs %s and %s overlapped", a.ID, b.ID)
		}
	}
}

// S6 (yolo bypass scoped to its arm window): a WRITE goal executed while a
// store-backed yolo arm is still unexpired completes without any approval
// and its traces carry risk_mode=yolo; once that wall-clock deadline has
// passed, an identical goal reverts to requiring approval again. The
// Executor itself is constructed once with a permanent risk floor of
// policy.Secure - the arm/expiry is driven entirely by a real
// time.Now()-vs-deadline check against store.SetYoloArmedUntil, exercising
// the same "armed_until" column `titan yolo arm` writes to.
func TestScenario_S6_YoloBypassExpiresWithItsArmWindow(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	ex := New(env.st, env.pl, env.br, env.q, policy.Collaborative, policy.Secure, DefaultLimits)

	require.NoError(t, env.st.SetYoloArmedUntil(ctx, time.Now().UTC().Add(150*time.Millisecond)))

	env.singleStepGoal(t, "s6a", "fs.write", map[string]any{"path": "docs/readme.md", "content": "install steps"})
	ex.Submit(ctx, "s6a")
	ex.Wait()

	goalA, err := env.st.GetGoal(ctx, "s6a")
	require.NoError(t, err)
	require.Equal(t, store.GoalDone, goalA.State)

	approvalsA, err := env.st.ListApprovals(ctx)
	require.NoError(t, err)
	require.Empty(t, approvalsA, "a write executed inside an unexpired yolo arm window must not create an approval")

	tracesA, err := env.st.ListTraces(ctx, "s6a")
	require.NoError(t, err)
	var sawYoloTag bool
	for _, tr := range tracesA {
		if tr.RiskMode == string(policy.Yolo) {
			sawYoloTag = true
		}
	}
	require.True(t, sawYoloTag, "expected at least one trace tagged risk_mode=yolo")

	time.Sleep(200 * time.Millisecond) // outlast the 150ms arm window

	env.singleStepGoal(t, "s6b", "fs.write", map[string]any{"path": "docs/readme.md", "content": "install steps"})
	ex.Submit(ctx, "s6b")

	require.Eventually(t, func() bool {
		goal, err := env.st.GetGoal(ctx, "s6b")
		require.NoError(t, err)
		return goal.State == store.GoalAwaiting
	}, 2*time.Second, 10*time.Millisecond)

	pending, err := env.st.ListPendingApprovals(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)

	claimed, err := env.q.Resolve(ctx, pending[0].ID, "tester", store.DecisionApproved, "ok")
	require.NoError(t, err)
	require.True(t, claimed)
	ex.Wait()
}

func mustPlanID(t *testing.T, st *store.Store, goalID string) string {
	t.Helper()
	plan, err := st.GetPlanByGoal(context.Background(), goalID)
	require.NoError(t, err)
	return plan.ID
}
