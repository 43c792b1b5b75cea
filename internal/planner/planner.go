// Package planner implements the Planner (spec §4.7): deterministic
// generation of 2-5 candidate plans for a goal, scored by a weighted sum
// of risk, cost, and retrieval confidence, with a fully deterministic
// tie-break so reruns over the same inputs select the same candidate.
//
// Candidate generation is a deterministic keyword-matching scheme over the
// Tool Broker's registered catalogue, grounded on the teacher's
// internal/campaign.Decomposer (which also turns a free-text goal
// description into an ordered sequence of typed steps) but without its LLM
// round trip: the spec is explicit that v1 planning is deterministic, and
// an LLM call would make candidate generation nondeterministic tool call
// for tool call, which the tie-break rule cannot tolerate.
package planner

import (
	"context"
	"fmt"
	"time"

	"github.com/Djtony707/TITAN/internal/apperr"
	"github.com/Djtony707/TITAN/internal/ids"
	"github.com/Djtony707/TITAN/internal/store"
	"github.com/Djtony707/TITAN/internal/tools"
)

// Weights controls the scoring function's relative emphasis (spec §4.7:
// "weighted sum of (risk, cost, confidence)").
type Weights struct {
	Risk       float64
	Cost       float64
	Confidence float64
}

// DefaultWeights makes risk the dominant term, cost secondary, and
// confidence a meaningful but smaller contribution - mirroring the Policy
// Engine's own bias toward capability class above all else.
var DefaultWeights = Weights{Risk: 1.0, Cost: 0.4, Confidence: 0.6}

// Planner generates, scores, and persists candidate plans for goals.
type Planner struct {
	registry *tools.Registry
	st       *store.Store
	weights  Weights
}

// New constructs a Planner over the given tool catalogue and store. A zero
// Weights uses DefaultWeights.
func New(registry *tools.Registry, st *store.Store, weights Weights) *Planner {
	if weights == (Weights{}) {
		weights = DefaultWeights
	}
	return &Planner{registry: registry, st: st, weights: weights}
}

// Plan generates 2-5 candidates for goalDesc, scores and selects one
// deterministically, materializes its steps, and persists the full bundle
// (plan, candidates, selected steps, and a plan_selected trace event) via
// store.PersistRunBundle (spec §4.7: "Persist all candidates and the
// selection rationale").
func (p *Planner) Plan(ctx context.Context, goalID, goalDesc string) (store.Plan, error) {
	memoryConfidence, err := p.retrievalConfidence(ctx, goalDesc)
	if err != nil {
		return store.Plan{}, fmt.Errorf("retrieval confidence: %w", err)
	}

	candidates, err := p.generateCandidates(goalDesc, memoryConfidence)
	if err != nil {
		return store.Plan{}, err
	}

	selected := p.selectBest(candidates)

	breakdown, err := scoreBreakdownJSON(candidates, selected)
	if err != nil {
		return store.Plan{}, fmt.Errorf("marshal score breakdown: %w", err)
	}

	plan := store.Plan{
		ID:                 ids.New(),
		GoalID:             goalID,
		Candidates:         candidates,
		SelectedIndex:      selected,
		ScoreBreakdownJSON: breakdown,
		CreatedAt:          time.Now().UTC(),
	}

	steps := materializeSteps(plan.ID, plan.Selected())

	trace := store.TraceEvent{
		ID:     ids.New(),
		GoalID: goalID,
		Kind:   "plan_selected",
		Payload: map[string]any{
			"plan_id":         plan.ID,
			"selected_index":  plan.SelectedIndex,
			"candidate_count": len(candidates),
			"selected_digest": plan.Selected().Digest,
			"selected_score":  plan.Selected().Score,
			"memory_confidence": memoryConfidence,
		},
	}

	if err := p.st.PersistRunBundle(ctx, plan, steps, []store.TraceEvent{trace}); err != nil {
		return store.Plan{}, fmt.Errorf("persist run bundle: %w", err)
	}
	return plan, nil
}

func materializeSteps(planID string, candidate store.PlanCandidate) []store.Step {
	steps := make([]store.Step, 0, len(candidate.Steps))
	for i, cs := range candidate.Steps {
		digest, _ := ids.Digest(cs.Args)
		steps = append(steps, store.Step{
			ID:              ids.New(),
			PlanID:          planID,
			Ordinal:         i,
			ToolName:        cs.ToolName,
			Args:            cs.Args,
			ArgsDigest:      digest,
			CapabilityClass: cs.CapabilityClass,
			RequiredInputs:  cs.RequiredInputs,
			RequiredOutputs: cs.RequiredOutputs,
			State:           store.StepQueued,
		})
	}
	return steps
}

// errNoTools is returned when the catalogue has nothing the Planner can
// schedule a step against.
var errNoTools = apperr.Invariant("planner_no_tools_registered", fmt.Errorf("tool registry is empty"))
