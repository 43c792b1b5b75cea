// Package executor implements the Run Executor (spec §4.8): the state
// machine that drives a goal from pending through its plan's steps to a
// terminal state, suspending at approval gates and resuming across process
// restarts from whatever the store last persisted.
//
// The goroutine-per-goal shape with an idempotent cancel and a WaitGroup
// drain is grounded on the teacher's internal/session.SubAgent (atomic
// state, a stored context.CancelFunc invoked once via Stop, a Run/Wait
// pair) — generalized here from one LLM turn per subagent to one goal's
// plan-then-steps run.
package executor

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/Djtony707/TITAN/internal/apperr"
	"github.com/Djtony707/TITAN/internal/approval"
	"github.com/Djtony707/TITAN/internal/broker"
	"github.com/Djtony707/TITAN/internal/ids"
	"github.com/Djtony707/TITAN/internal/logging"
	"github.com/Djtony707/TITAN/internal/planner"
	"github.com/Djtony707/TITAN/internal/policy"
	"github.com/Djtony707/TITAN/internal/store"
)

// Limits bounds an individual goal's retry and replan behavior, independent
// of the process-wide concurrency ceiling in config.CoreLimits.
type Limits struct {
	MaxAttemptsPerStep int
	MaxReplansPerGoal  int
	BaseBackoff        time.Duration
	MaxBackoff         time.Duration
}

// DefaultLimits mirrors config.CoreLimits' defaults (max_retry_budget: 3,
// max_replan_budget: 2) so a caller that skips explicit Limits still gets a
// bounded retry/replan budget rather than an unbounded one.
var DefaultLimits = Limits{
	MaxAttemptsPerStep: 3,
	MaxReplansPerGoal:  2,
	BaseBackoff:        500 * time.Millisecond,
	MaxBackoff:         30 * time.Second,
}

// Executor owns every in-flight goal's run. One process runs one Executor;
// Submit is safe to call concurrently.
type Executor struct {
	st        *store.Store
	planner   *planner.Planner
	broker    *broker.Broker
	approvals *approval.Queue
	limits    Limits

	mode policy.AutonomyMode
	risk policy.RiskMode

	// approvalTTL overrides the Approval Queue's default TTL for every
	// approval this Executor's steps request; zero keeps the queue's own
	// built-in 5-minute default. The configured
	// config.ApprovalConfig.DefaultTTL arrives through SetApprovalTTL.
	approvalTTL time.Duration

	mu        sync.Mutex
	cancelled map[string]bool

	wg sync.WaitGroup
}

// New constructs an Executor. A zero Limits value is replaced with
// DefaultLimits.
func New(st *store.Store, pl *planner.Planner, br *broker.Broker, approvals *approval.Queue, mode policy.AutonomyMode, risk policy.RiskMode, limits Limits) *Executor {
	if limits == (Limits{}) {
		limits = DefaultLimits
	}
	return &Executor{
		st:        st,
		planner:   pl,
		broker:    br,
		approvals: approvals,
		limits:    limits,
		mode:      mode,
		risk:      risk,
		cancelled: make(map[string]bool),
	}
}

// SetApprovalTTL overrides the TTL every subsequent approval request this
// Executor issues will carry. Must be called before Submit.
func (e *Executor) SetApprovalTTL(ttl time.Duration) {
	e.approvalTTL = ttl
}

// effectiveRisk resolves the risk mode a single step is evaluated under.
// YOLO bypass is never a permanent config switch: it is a wall-clock arm
// persisted in the store by `titan yolo arm` (spec §4.3), re-checked fresh
// for every step so a goal queued while armed but executed after expiry
// still lands in Secure. e.risk is the static floor used when nothing is
// armed - production bootstraps it to policy.Secure; tests may still
// construct an Executor with policy.Yolo directly to bypass the store.
func (e *Executor) effectiveRisk(ctx context.Context) policy.RiskMode {
	if e.risk == policy.Yolo {
		return policy.Yolo
	}
	armedUntil, err := e.st.GetYoloArmedUntil(ctx)
	if err != nil || armedUntil == nil {
		return e.risk
	}
	if time.Now().UTC().Before(*armedUntil) {
		return policy.Yolo
	}
	return e.risk
}

// Submit starts (or resumes) a goal's run in its own goroutine and returns
// immediately. ctx bounds the whole process lifetime, not the goal: a step
// already running when Cancel is called is allowed to finish on its own
// per-invocation timeout (spec §4.8, cancellation semantics), so Submit
// never derives a per-goal cancellable context to pass into broker.Execute.
func (e *Executor) Submit(ctx context.Context, goalID string) {
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		e.runGoal(ctx, goalID)
	}()
}

// Cancel requests that goalID stop at its next step boundary. It is
// idempotent: cancelling a goal twice, or a goal that has already
// terminalized, is a harmless no-op.
func (e *Executor) Cancel(goalID string) {
	e.mu.Lock()
	e.cancelled[goalID] = true
	e.mu.Unlock()
}

func (e *Executor) cancelRequested(goalID string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cancelled[goalID]
}

// Wait blocks until every goal Submit has started has reached a terminal
// state.
func (e *Executor) Wait() {
	e.wg.Wait()
}

func (e *Executor) runGoal(ctx context.Context, goalID string) {
	log := logging.For(logging.CategoryExecutor).Sugar()

	goal, err := e.st.GetGoal(ctx, goalID)
	if err != nil {
		log.Errorf("load goal %s: %v", goalID, err)
		return
	}
	if goal.State.Terminal() {
		return
	}

	plan, steps, err := e.ensurePlan(ctx, goal)
	if err != nil {
		log.Errorf("plan goal %s: %v", goalID, err)
		e.finishGoal(ctx, goalID, store.GoalFailed, fmt.Sprintf("planning failed: %v", err))
		return
	}

	e.runSteps(ctx, goal, plan, steps)
}

// ensurePlan plans a fresh goal, or loads the already-persisted plan and
// steps for a goal resumed mid-run (spec §4.8: a restart continues "from
// the last completed step using the persisted plan/results").
func (e *Executor) ensurePlan(ctx context.Context, goal store.Goal) (store.Plan, []store.Step, error) {
	if goal.State == store.GoalPending {
		if err := e.st.SetGoalState(ctx, goal.ID, store.GoalPlanning); err != nil {
			return store.Plan{}, nil, err
		}
		plan, err := e.planner.Plan(ctx, goal.ID, goal.Description)
		if err != nil {
			return store.Plan{}, nil, err
		}
		if err := e.st.SetGoalState(ctx, goal.ID, store.GoalRunning); err != nil {
			return store.Plan{}, nil, err
		}
		steps, err := e.st.ListSteps(ctx, plan.ID)
		if err != nil {
			return store.Plan{}, nil, err
		}
		return plan, steps, nil
	}

	plan, err := e.st.GetPlanByGoal(ctx, goal.ID)
	if err != nil {
		return store.Plan{}, nil, err
	}
	steps, err := e.st.ListSteps(ctx, plan.ID)
	if err != nil {
		return store.Plan{}, nil, err
	}
	return plan, steps, nil
}

// runSteps drives steps[i] in order. It uses a manual index rather than a
// for-range so a retryable failure can loop without advancing i, and a
// replan can swap in a fresh plan/steps pair and reset i to 0.
func (e *Executor) runSteps(ctx context.Context, goal store.Goal, plan store.Plan, steps []store.Step) {
	log := logging.For(logging.CategoryExecutor).Sugar()
	replans := 0
	attempts := make(map[string]int)

	i := 0
	for i < len(steps) {
		step := steps[i]
		if step.State == store.StepOK || step.State == store.StepSkipped {
			i++
			continue
		}

		if e.cancelRequested(goal.ID) {
			if err := e.st.SetGoalState(ctx, goal.ID, store.GoalCancelled); err != nil {
				log.Errorf("set goal %s cancelled: %v", goal.ID, err)
			}
			_ = e.st.DeleteSession(ctx, goal.ID)
			e.finishGoal(ctx, goal.ID, store.GoalCancelled, "cancelled before step "+step.ToolName)
			return
		}

		outcome := e.runStep(ctx, goal, step)
		if outcome.Err == nil {
			result := outcome.Output
			if err := e.st.RecordStepOutcome(ctx, step.ID, store.StepOK, result, "", timePtr()); err != nil {
				log.Errorf("record step %s ok: %v", step.ID, err)
			}
			i++
			continue
		}

		attempts[step.ID]++
		if apperr.Retryable(outcome.Err) && attempts[step.ID] < e.limits.MaxAttemptsPerStep {
			log.Infof("step %s failed retryably (attempt %d): %v", step.ID, attempts[step.ID], outcome.Err)
			time.Sleep(backoff(e.limits, attempts[step.ID]))
			continue
		}

		if err := e.st.RecordStepOutcome(ctx, step.ID, store.StepFailed, "", outcome.Err.Error(), timePtr()); err != nil {
			log.Errorf("record step %s failed: %v", step.ID, err)
		}

		if replans < e.limits.MaxReplansPerGoal {
			replans++
			newPlan, newSteps, err := e.replanSuffix(ctx, goal, step, outcome.Err)
			if err != nil {
				log.Errorf("replan goal %s: %v", goal.ID, err)
				e.finishGoal(ctx, goal.ID, store.GoalFailed, fmt.Sprintf("step %s failed and replan failed: %v", step.ToolName, err))
				return
			}
			plan, steps = newPlan, newSteps
			attempts = make(map[string]int)
			i = 0
			continue
		}

		e.finishGoal(ctx, goal.ID, store.GoalFailed, fmt.Sprintf("step %s failed terminally: %v", step.ToolName, outcome.Err))
		return
	}

	e.finishGoal(ctx, goal.ID, store.GoalDone, fmt.Sprintf("completed %d steps", len(steps)))
}

// runStep invokes one step through the Broker, checkpointing a Session row
// at the moment the step actually suspends on approval (spec §5,
// suspension point 1) and clearing it unconditionally once Execute returns
// since the clear is a no-op when no suspension occurred.
func (e *Executor) runStep(ctx context.Context, goal store.Goal, step store.Step) broker.Outcome {
	log := logging.For(logging.CategoryExecutor).Sugar()

	resumeApprovalID := ""
	if step.State == store.StepAwaiting {
		if a, err := e.st.GetApprovalByStepID(ctx, step.ID); err == nil && a.Pending() {
			resumeApprovalID = a.ID
		}
	}

	if err := e.st.SetStepState(ctx, step.ID, store.StepRunning, timePtr()); err != nil {
		log.Errorf("set step %s running: %v", step.ID, err)
	}

	req := broker.Request{
		GoalID:           goal.ID,
		StepID:           step.ID,
		ToolName:         step.ToolName,
		Args:             step.Args,
		Mode:             e.mode,
		Risk:             e.effectiveRisk(ctx),
		ApprovalTTL:      e.approvalTTL,
		ResumeApprovalID: resumeApprovalID,
		OnApprovalRequested: func(approvalID string) {
			if err := e.st.SetGoalState(ctx, goal.ID, store.GoalAwaiting); err != nil {
				log.Errorf("set goal %s awaiting: %v", goal.ID, err)
			}
			if err := e.st.SetStepState(ctx, step.ID, store.StepAwaiting, nil); err != nil {
				log.Errorf("set step %s awaiting: %v", step.ID, err)
			}
			now := time.Now().UTC()
			if err := e.st.UpsertSession(ctx, store.Session{
				GoalID:             goal.ID,
				CurrentStepOrdinal: step.Ordinal,
				SuspendedAt:        &now,
				ResumeReason:       "awaiting_approval:" + approvalID,
			}); err != nil {
				log.Errorf("checkpoint session for goal %s: %v", goal.ID, err)
			}
		},
	}

	outcome := e.broker.Execute(ctx, req)

	if err := e.st.SetGoalState(ctx, goal.ID, store.GoalRunning); err != nil {
		log.Errorf("set goal %s running after step: %v", goal.ID, err)
	}
	_ = e.st.DeleteSession(ctx, goal.ID)

	return outcome
}

// replanSuffix regenerates a plan for the remaining work (spec §4.8 point
// 4: "bounded localized replan"). v1 replans the whole goal rather than
// literally splicing a new suffix onto completed steps, since the Planner
// always scores from the goal description and recent memory rather than
// from a partial step list — the replan budget still caps how many times
// this can happen per goal.
func (e *Executor) replanSuffix(ctx context.Context, goal store.Goal, failedStep store.Step, failErr error) (store.Plan, []store.Step, error) {
	desc := fmt.Sprintf("%s (replanning: step %q failed with %v)", goal.Description, failedStep.ToolName, failErr)
	plan, err := e.planner.Plan(ctx, goal.ID, desc)
	if err != nil {
		return store.Plan{}, nil, err
	}
	steps, err := e.st.ListSteps(ctx, plan.ID)
	if err != nil {
		return store.Plan{}, nil, err
	}
	return plan, steps, nil
}

// finishGoal writes the goal's terminal state, its episodic memory
// summary, and a summary trace event, then clears any session checkpoint
// (spec §3: goal lifecycle ends with "write episodic memory + summary
// trace + notify originating channel" — notification itself is the
// gateway's concern, driven off the trace event this writes).
func (e *Executor) finishGoal(ctx context.Context, goalID string, state store.GoalState, summary string) {
	log := logging.For(logging.CategoryExecutor).Sugar()

	if err := e.st.SetGoalState(ctx, goalID, state); err != nil {
		log.Errorf("set terminal state for goal %s: %v", goalID, err)
	}
	_ = e.st.DeleteSession(ctx, goalID)

	outcomeLabel := "done"
	switch state {
	case store.GoalFailed:
		outcomeLabel = "failed"
	case store.GoalCancelled:
		outcomeLabel = "cancelled"
	}

	if err := e.st.CreateEpisodicMemory(ctx, store.EpisodicMemory{
		ID:           ids.New(),
		GoalID:       goalID,
		Summary:      summary,
		OutcomeLabel: outcomeLabel,
		CreatedAt:    time.Now().UTC(),
	}); err != nil {
		log.Errorf("create episodic memory for goal %s: %v", goalID, err)
	}

	if err := e.st.AppendTrace(ctx, store.TraceEvent{
		ID:     ids.New(),
		GoalID: goalID,
		Kind:   "goal_" + outcomeLabel,
		Payload: map[string]any{
			"summary": summary,
		},
	}); err != nil {
		log.Errorf("append terminal trace for goal %s: %v", goalID, err)
	}
}

func timePtr() *time.Time {
	t := time.Now().UTC()
	return &t
}

// backoff computes an exponential delay bounded by limits.MaxBackoff,
// doubling per attempt from limits.BaseBackoff (spec §4.8: "exponential
// backoff, max attempts bounded per goal").
func backoff(limits Limits, attempt int) time.Duration {
	d := float64(limits.BaseBackoff) * math.Pow(2, float64(attempt-1))
	if d > float64(limits.MaxBackoff) {
		d = float64(limits.MaxBackoff)
	}
	return time.Duration(d)
}
