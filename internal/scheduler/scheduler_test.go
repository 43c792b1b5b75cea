package scheduler

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Djtony707/TITAN/internal/approval"
	"github.com/Djtony707/TITAN/internal/broker"
	"github.com/Djtony707/TITAN/internal/executor"
	"github.com/Djtony707/TITAN/internal/gateway"
	"github.com/Djtony707/TITAN/internal/ids"
	"github.com/Djtony707/TITAN/internal/planner"
	"github.com/Djtony707/TITAN/internal/policy"
	"github.com/Djtony707/TITAN/internal/store"
	"github.com/Djtony707/TITAN/internal/tools"
	"github.com/Djtony707/TITAN/internal/workspace"
)

func newTestScheduler(t *testing.T) (*Scheduler, *store.Store) {
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

	sched := New(st, gw, 2, 20*time.Millisecond)
	t.Cleanup(sched.Stop)
	return sched, st
}

func TestScheduler_DueIntervalJobFiresAndReleasesLock(t *testing.T) {
	sched, st := newTestScheduler(t)
	ctx := context.Background()

	jobID := ids.New()
	now := time.Now().UTC()
	require.NoError(t, st.CreateJob(ctx, store.Job{
		ID:            jobID,
		Name:          "list-files",
		ScheduleKind:  store.ScheduleInterval,
		ScheduleValue: "50ms",
		GoalTemplate:  "list the workspace contents",
		Enabled:       true,
		NextFireAt:    &now,
	}))

	sched.Start(ctx)

	require.Eventually(t, func() bool {
		runs, err := st.ListJobRuns(ctx, jobID)
		require.NoError(t, err)
		for _, r := range runs {
			if r.FinishedAt != nil {
				return true
			}
		}
		return false
	}, 3*time.Second, 20*time.Millisecond)

	_, active, err := st.ActiveJobRun(ctx, jobID)
	require.NoError(t, err)
	require.False(t, active)
}

func TestScheduler_BusyJobSkipsOverlappingFire(t *testing.T) {
	sched, st := newTestScheduler(t)
	ctx := context.Background()

	jobID := ids.New()
	now := time.Now().UTC()
	require.NoError(t, st.CreateJob(ctx, store.Job{
		ID:            jobID,
		Name:          "list-files",
		ScheduleKind:  store.ScheduleInterval,
		ScheduleValue: "50ms",
		GoalTemplate:  "list the workspace contents",
		Enabled:       true,
		NextFireAt:    &now,
	}))

	// Simulate an already-running job run so the next poll observes busy.
	require.NoError(t, st.CreateJobRun(ctx, store.JobRun{
		ID:        ids.New(),
		JobID:     jobID,
		StartedAt: now,
		Status:    store.JobRunRunning,
	}))

	sched.Start(ctx)
	time.Sleep(100 * time.Millisecond)

	runs, err := st.ListJobRuns(ctx, jobID)
	require.NoError(t, err)
	require.Len(t, runs, 1, "busy job must not accumulate a second concurrent run")
}

func TestScheduler_RunNowBypassesSchedule(t *testing.T) {
	sched, st := newTestScheduler(t)
	ctx := context.Background()

	jobID := ids.New()
	require.NoError(t, st.CreateJob(ctx, store.Job{
		ID:            jobID,
		Name:          "manual-job",
		ScheduleKind:  store.ScheduleInterval,
		ScheduleValue: time.Hour.String(),
		GoalTemplate:  "list the workspace contents",
		Enabled:       false,
		NextFireAt:    nil,
	}))

	goalID, err := sched.RunNow(ctx, jobID)
	require.NoError(t, err)
	require.NotEmpty(t, goalID)

	require.Eventually(t, func() bool {
		runs, err := st.ListJobRuns(ctx, jobID)
		require.NoError(t, err)
		return len(runs) == 1
	}, 2*time.Second, 20*time.Millisecond)
}

func TestScheduler_PauseResumeTogglesEnabled(t *testing.T) {
	sched, st := newTestScheduler(t)
	ctx := context.Background()

	jobID := ids.New()
	require.NoError(t, st.CreateJob(ctx, store.Job{
		ID:            jobID,
		Name:          "toggle-job",
		ScheduleKind:  store.ScheduleInterval,
		ScheduleValue: "1h",
		GoalTemplate:  "list the workspace contents",
		Enabled:       true,
	}))

	require.NoError(t, sched.Pause(ctx, jobID))
	job, err := st.GetJob(ctx, jobID)
	require.NoError(t, err)
	require.False(t, job.Enabled)

	require.NoError(t, sched.Resume(ctx, jobID))
	job, err = st.GetJob(ctx, jobID)
	require.NoError(t, err)
	require.True(t, job.Enabled)
}
