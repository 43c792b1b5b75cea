package planner

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Djtony707/TITAN/internal/store"
	"github.com/Djtony707/TITAN/internal/tools"
)

func newTestPlanner(t *testing.T) (*Planner, *store.Store) {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "titan.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	reg := tools.NewRegistry()
	tools.RegisterBuiltins(reg, nil, nil)

	return New(reg, st, Weights{}), st
}

func TestPlanner_Plan_GeneratesBetweenTwoAndFiveCandidates(t *testing.T) {
	p, st := newTestPlanner(t)
	ctx := context.Background()

	goalID := "goal-1"
	require.NoError(t, st.CreateGoal(ctx, store.Goal{ID: goalID, Description: "read the file contents"}))

	plan, err := p.Plan(ctx, goalID, "read the file contents and search for a string")
	require.NoError(t, err)

	require.GreaterOrEqual(t, len(plan.Candidates), minCandidates)
	require.LessOrEqual(t, len(plan.Candidates), maxCandidates)
	require.GreaterOrEqual(t, plan.SelectedIndex, 0)
	require.Less(t, plan.SelectedIndex, len(plan.Candidates))
	require.NotEmpty(t, plan.Selected().Steps)
	require.NotEmpty(t, plan.ScoreBreakdownJSON)
}

func TestPlanner_Plan_PrefersLowerRiskToolsForReadGoal(t *testing.T) {
	p, st := newTestPlanner(t)
	ctx := context.Background()

	goalID := "goal-2"
	require.NoError(t, st.CreateGoal(ctx, store.Goal{ID: goalID, Description: "read a file"}))

	plan, err := p.Plan(ctx, goalID, "read a file")
	require.NoError(t, err)

	selected := plan.Selected()
	for _, s := range selected.Steps {
		require.NotEqual(t, store.CapabilityClass("EXEC"), s.CapabilityClass)
	}
}

func TestPlanner_Plan_PersistsStepsAndTrace(t *testing.T) {
	p, st := newTestPlanner(t)
	ctx := context.Background()

	goalID := "goal-3"
	require.NoError(t, st.CreateGoal(ctx, store.Goal{ID: goalID, Description: "read a file"}))

	plan, err := p.Plan(ctx, goalID, "read a file")
	require.NoError(t, err)

	steps, err := st.ListSteps(ctx, plan.ID)
	require.NoError(t, err)
	require.Len(t, steps, len(plan.Selected().Steps))
	for _, s := range steps {
		require.Equal(t, store.StepQueued, s.State)
	}

	traces, err := st.ListTraces(ctx, goalID)
	require.NoError(t, err)
	var found bool
	for _, tr := range traces {
		if tr.Kind == "plan_selected" {
			found = true
		}
	}
	require.True(t, found)

	reloaded, err := st.GetPlanByGoal(ctx, goalID)
	require.NoError(t, err)
	require.Equal(t, plan.ID, reloaded.ID)
	require.Equal(t, len(plan.Candidates), len(reloaded.Candidates))
}

func TestPlanner_Plan_DeterministicAcrossReruns(t *testing.T) {
	p1, st1 := newTestPlanner(t)
	p2, st2 := newTestPlanner(t)
	ctx := context.Background()

	require.NoError(t, st1.CreateGoal(ctx, store.Goal{ID: "g", Description: "search for text in files"}))
	require.NoError(t, st2.CreateGoal(ctx, store.Goal{ID: "g", Description: "search for text in files"}))

	plan1, err := p1.Plan(ctx, "g", "search for text in files")
	require.NoError(t, err)
	plan2, err := p2.Plan(ctx, "g", "search for text in files")
	require.NoError(t, err)

	require.Equal(t, plan1.Selected().Digest, plan2.Selected().Digest)
	require.Equal(t, plan1.SelectedIndex, plan2.SelectedIndex)
	require.Equal(t, len(plan1.Candidates), len(plan2.Candidates))
}

func TestPlanner_Plan_NoToolsRegisteredFails(t *testing.T) {
	st, err := store.Open(filepath.Join(t.TempDir(), "titan.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	p := New(tools.NewRegistry(), st, Weights{})
	ctx := context.Background()
	require.NoError(t, st.CreateGoal(ctx, store.Goal{ID: "g", Description: "do something"}))

	_, err = p.Plan(ctx, "g", "do something")
	require.Error(t, err)
}

func TestSelectBest_TieBreaksOnDigestWhenScoreRiskCostEqual(t *testing.T) {
	a := store.PlanCandidate{Digest: "bbb", Score: 1, RiskCost: 1, TokenCost: 1}
	b := store.PlanCandidate{Digest: "aaa", Score: 1, RiskCost: 1, TokenCost: 1}
	p := &Planner{}
	require.Equal(t, 1, p.selectBest([]store.PlanCandidate{a, b}))
}
