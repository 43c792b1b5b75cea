package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	dir := t.TempDir()
	s, err := Open(filepath.Join(dir, "titan.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestCreateGoal_DuplicateDedupeKeyRejected(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	g1 := Goal{ID: "g1", Description: "do a thing", Origin: "cli", DedupeKey: "dk1", SubmittedAt: time.Now(), State: GoalPending}
	require.NoError(t, s.CreateGoal(ctx, g1))

	g2 := Goal{ID: "g2", Description: "do a thing again", Origin: "cli", DedupeKey: "dk1", SubmittedAt: time.Now(), State: GoalPending}
	err := s.CreateGoal(ctx, g2)
	require.Error(t, err)
}

func TestCreateGoal_DedupeKeyReusableAfterTerminal(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	g1 := Goal{ID: "g1", Description: "do a thing", Origin: "cli", DedupeKey: "dk1", SubmittedAt: time.Now(), State: GoalPending}
	require.NoError(t, s.CreateGoal(ctx, g1))
	require.NoError(t, s.SetGoalState(ctx, "g1", GoalDone))

	g2 := Goal{ID: "g2", Description: "do a thing again", Origin: "cli", DedupeKey: "dk1", SubmittedAt: time.Now(), State: GoalPending}
	require.NoError(t, s.CreateGoal(ctx, g2))
}

func TestClaimPendingApproval_SecondClaimLoses(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	a := Approval{
		ID: "ap1", ToolName: "fs.write", SignatureStatus: SignatureUnsigned,
		TTLDeadline: time.Now().Add(time.Hour), CreatedAt: time.Now(),
	}
	require.NoError(t, s.CreateApproval(ctx, a))

	_, claimed1, err := s.ClaimPendingApproval(ctx, "ap1", "alice", DecisionApproved, "looks fine")
	require.NoError(t, err)
	require.True(t, claimed1)

	prev, claimed2, err := s.ClaimPendingApproval(ctx, "ap1", "bob", DecisionDenied, "too late")
	require.NoError(t, err)
	require.False(t, claimed2)
	require.Equal(t, DecisionApproved, prev.Decision)
}

func TestExpirePastDeadline_MarksTimeout(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	a := Approval{
		ID: "ap1", ToolName: "fs.write", SignatureStatus: SignatureUnsigned,
		TTLDeadline: time.Now().Add(-time.Minute), CreatedAt: time.Now().Add(-time.Hour),
	}
	require.NoError(t, s.CreateApproval(ctx, a))

	ids, err := s.ExpirePastDeadline(ctx, time.Now())
	require.NoError(t, err)
	require.Equal(t, []string{"ap1"}, ids)

	got, err := s.GetApproval(ctx, "ap1")
	require.NoError(t, err)
	require.Equal(t, DecisionTimeout, got.Decision)
}

func TestTraceEvents_MonotoneSequence(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.CreateGoal(ctx, Goal{ID: "g1", Description: "x", Origin: "cli", SubmittedAt: time.Now(), State: GoalPending}))

	for i := 0; i < 5; i++ {
		require.NoError(t, s.AppendTrace(ctx, TraceEvent{
			ID: ids(i), GoalID: "g1", Kind: "note", Payload: map[string]any{"i": i}, RiskMode: "secure", CreatedAt: time.Now(),
		}))
	}

	events, err := s.ListTraces(ctx, "g1")
	require.NoError(t, err)
	require.Len(t, events, 5)
	for i, e := range events {
		require.Equal(t, int64(i), e.Seq)
	}
}

func ids(i int) string {
	return "t" + string(rune('a'+i))
}

func TestPersistRunBundle_StepIdempotencyGuardsTerminalState(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.CreateGoal(ctx, Goal{ID: "g1", Description: "x", Origin: "cli", SubmittedAt: time.Now(), State: GoalPending}))

	plan := Plan{
		ID:     "p1",
		GoalID: "g1",
		Candidates: []PlanCandidate{{
			Digest: "d1",
			Steps: []CandidateStep{
				{ToolName: "fs.read", Args: map[string]any{"path": "a.txt"}, CapabilityClass: CapabilityRead},
			},
		}},
		SelectedIndex:      0,
		ScoreBreakdownJSON: "{}",
		CreatedAt:          time.Now(),
	}
	step := Step{
		ID: "s1", PlanID: "p1", Ordinal: 0, ToolName: "fs.read",
		Args: map[string]any{"path": "a.txt"}, ArgsDigest: "dig1",
		CapabilityClass: CapabilityRead, State: StepQueued,
	}
	require.NoError(t, s.PersistRunBundle(ctx, plan, []Step{step}, nil))

	steps, err := s.ListSteps(ctx, "p1")
	require.NoError(t, err)
	require.Len(t, steps, 1)

	stepID := steps[0].ID
	now := time.Now()
	require.NoError(t, s.RecordStepOutcome(ctx, stepID, StepOK, "ok result", "", &now))

	err = s.RecordStepOutcome(ctx, stepID, StepRunning, "", "", nil)
	require.Error(t, err, "re-transitioning a terminal step must be rejected")
}

func TestUpsertInstalledSkill_LockfileSortedBySlug(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	for _, slug := range []string{"zeta", "alpha", "mid"} {
		require.NoError(t, s.UpsertInstalledSkill(ctx, InstalledSkill{
			Slug: slug, Version: "1.0.0", Source: "registry", BundleHash: "h-" + slug,
			SignatureStatus: SignatureValid, InstalledAt: time.Now(),
		}))
	}

	lock, err := s.Lockfile(ctx)
	require.NoError(t, err)
	require.Len(t, lock, 3)
	require.Equal(t, []string{"alpha", "mid", "zeta"}, []string{lock[0].Slug, lock[1].Slug, lock[2].Slug})
}

func TestActiveJobRun_PerJobLock(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.CreateJob(ctx, Job{
		ID: "j1", Name: "nightly", ScheduleKind: ScheduleCron, ScheduleValue: "0 2 * * *",
		GoalTemplate: "run nightly sweep", Mode: "supervised", Enabled: true,
	}))

	_, active, err := s.ActiveJobRun(ctx, "j1")
	require.NoError(t, err)
	require.False(t, active)

	require.NoError(t, s.CreateJobRun(ctx, JobRun{ID: "r1", JobID: "j1", StartedAt: time.Now(), Status: JobRunRunning}))

	run, active, err := s.ActiveJobRun(ctx, "j1")
	require.NoError(t, err)
	require.True(t, active)
	require.Equal(t, "r1", run.ID)

	require.NoError(t, s.FinishJobRun(ctx, "r1", JobRunOK, time.Now(), ""))

	_, active, err = s.ActiveJobRun(ctx, "j1")
	require.NoError(t, err)
	require.False(t, active)
}

func TestPutSemanticFact_VersionsInsteadOfOverwrites(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.PutSemanticFact(ctx, SemanticFact{ID: "f1", Topic: "deploy-target", Content: "staging", Provenance: "user", CreatedAt: time.Now()}))
	require.NoError(t, s.PutSemanticFact(ctx, SemanticFact{ID: "f2", Topic: "deploy-target", Content: "production", Provenance: "user", CreatedAt: time.Now()}))

	latest, err := s.LatestSemanticFact(ctx, "deploy-target")
	require.NoError(t, err)
	require.Equal(t, "production", latest.Content)
	require.Equal(t, 2, latest.Version)
}

func TestSessions_UpsertAndResumeList(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.CreateGoal(ctx, Goal{ID: "g1", Description: "x", Origin: "cli", SubmittedAt: time.Now(), State: GoalRunning}))

	now := time.Now()
	require.NoError(t, s.UpsertSession(ctx, Session{GoalID: "g1", CurrentStepOrdinal: 2, SuspendedAt: &now, ResumeReason: "process_restart"}))

	suspended, err := s.ListSuspendedSessions(ctx)
	require.NoError(t, err)
	require.Len(t, suspended, 1)
	require.Equal(t, "g1", suspended[0].GoalID)

	require.NoError(t, s.DeleteSession(ctx, "g1"))
	suspended, err = s.ListSuspendedSessions(ctx)
	require.NoError(t, err)
	require.Len(t, suspended, 0)
}

func TestConnectors_CRUD(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	c := Connector{ID: "c1", Type: "slack", DisplayName: "team workspace", Fields: map[string]string{"channel": "#ops"}, SecretKey: "slack/c1"}
	require.NoError(t, s.UpsertConnector(ctx, c))

	got, err := s.GetConnector(ctx, "c1")
	require.NoError(t, err)
	require.Equal(t, "slack", got.Type)
	require.Equal(t, "#ops", got.Fields["channel"])

	all, err := s.ListConnectors(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)

	require.NoError(t, s.RemoveConnector(ctx, "c1"))
	all, err = s.ListConnectors(ctx)
	require.NoError(t, err)
	require.Len(t, all, 0)
}
