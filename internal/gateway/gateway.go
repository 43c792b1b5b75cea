package gateway

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/Djtony707/TITAN/internal/apperr"
	"github.com/Djtony707/TITAN/internal/approval"
	"github.com/Djtony707/TITAN/internal/executor"
	"github.com/Djtony707/TITAN/internal/ids"
	"github.com/Djtony707/TITAN/internal/logging"
	"github.com/Djtony707/TITAN/internal/store"
)

const notificationPollInterval = 250 * time.Millisecond

// Notification reports a goal's terminalization back to the surface that
// submitted it (spec §4.8 point 5: "notify the originating channel"). A
// goal submitted without a ChannelTarget (e.g. a bare CLI invocation that
// blocks on its own result) is never watched, since there is nowhere to
// deliver an asynchronous notification.
type Notification struct {
	GoalID        string
	ChannelTarget string
	ActorID       string
	Outcome       store.GoalState
}

// Result is what Dispatch returns for each PayloadKind: GoalID for
// goal-submission and cancel, Claimed for approval-decision.
type Result struct {
	GoalID  string
	Claimed bool
}

// Gateway is the single entry point for every inbound Event (spec §1
// component 11, §6). It translates an Event into the corresponding
// Store/Executor/Approval Queue call and, for goal submissions with a
// channel to notify, watches the goal to terminal state and emits a
// Notification.
type Gateway struct {
	st        *store.Store
	ex        *executor.Executor
	approvals *approval.Queue

	notifications chan Notification
	stop          chan struct{}
	wg            sync.WaitGroup
}

// New constructs a Gateway. Call Notifications to drain terminal-goal
// notifications and Stop to end background watches at shutdown.
func New(st *store.Store, ex *executor.Executor, approvals *approval.Queue) *Gateway {
	return &Gateway{
		st:            st,
		ex:            ex,
		approvals:     approvals,
		notifications: make(chan Notification, 64),
		stop:          make(chan struct{}),
	}
}

// Notifications returns the channel terminal-goal notifications arrive on.
func (g *Gateway) Notifications() <-chan Notification { return g.notifications }

// Stop ends every in-flight goal watch. It does not affect already-
// submitted goals, which the Executor continues to drive independently.
func (g *Gateway) Stop() {
	close(g.stop)
	g.wg.Wait()
}

// Dispatch routes ev to its handler by Kind. It is the only way any
// adapter (cmd/titan, internal/httpapi, internal/scheduler) reaches the
// Executor or Approval Queue.
func (g *Gateway) Dispatch(ctx context.Context, ev Event) (Result, error) {
	switch ev.Kind {
	case PayloadGoalSubmission:
		return g.submitGoal(ctx, ev)
	case PayloadApprovalDecision:
		return g.decideApproval(ctx, ev)
	case PayloadCancel:
		return g.cancelGoal(ev)
	case PayloadSchedulerTick:
		// Purely informational: the Scheduler still owns the job-level
		// lock and job_run bookkeeping (spec §4.9) and dispatches the
		// goal itself through this same Gateway as a goal-submission
		// event; a scheduler-tick event exists so any future observer
		// can correlate a submission back to the job that caused it.
		logging.For(logging.CategoryGateway).Sugar().Debugf("scheduler tick observed for job %s", payloadJobID(ev))
		return Result{}, nil
	default:
		return Result{}, apperr.Invariant("unknown_event_kind", fmt.Errorf("%q", ev.Kind))
	}
}

func payloadJobID(ev Event) string {
	if tick, ok := ev.Payload.(SchedulerTick); ok {
		return tick.JobID
	}
	return ""
}

func (g *Gateway) submitGoal(ctx context.Context, ev Event) (Result, error) {
	sub, ok := ev.Payload.(GoalSubmission)
	if !ok {
		return Result{}, apperr.Invariant("goal_submission_payload_mismatch", fmt.Errorf("got %T", ev.Payload))
	}

	goalID := ids.New()
	if err := g.st.CreateGoal(ctx, store.Goal{
		ID:            goalID,
		Description:   sub.Description,
		Origin:        string(ev.Origin),
		ChannelTarget: ev.ChannelTarget,
		ActorID:       ev.ActorID,
		DedupeKey:     sub.DedupeKey,
		SubmittedAt:   time.Now().UTC(),
		State:         store.GoalPending,
	}); err != nil {
		return Result{}, err
	}

	if ev.ChannelTarget != "" {
		g.watch(goalID, ev.ChannelTarget, ev.ActorID)
	}
	g.ex.Submit(ctx, goalID)
	return Result{GoalID: goalID}, nil
}

func (g *Gateway) decideApproval(ctx context.Context, ev Event) (Result, error) {
	dec, ok := ev.Payload.(ApprovalDecision)
	if !ok {
		return Result{}, apperr.Invariant("approval_decision_payload_mismatch", fmt.Errorf("got %T", ev.Payload))
	}
	resolver := dec.Resolver
	if resolver == "" {
		resolver = ev.ActorID
	}
	claimed, err := g.approvals.Resolve(ctx, dec.ApprovalID, resolver, dec.Decision, dec.Reason)
	return Result{Claimed: claimed}, err
}

func (g *Gateway) cancelGoal(ev Event) (Result, error) {
	c, ok := ev.Payload.(Cancel)
	if !ok {
		return Result{}, apperr.Invariant("cancel_payload_mismatch", fmt.Errorf("got %T", ev.Payload))
	}
	g.ex.Cancel(c.GoalID)
	return Result{GoalID: c.GoalID}, nil
}

// watch polls a submitted goal to terminal state and emits a Notification,
// mirroring the Scheduler's own poll-until-terminal idiom (spec §5: "the
// core treats busy... as a signal to retry with jitter") rather than
// requiring the Executor to know about the Gateway.
func (g *Gateway) watch(goalID, channelTarget, actorID string) {
	g.wg.Add(1)
	go func() {
		defer g.wg.Done()
		log := logging.For(logging.CategoryGateway).Sugar()
		ticker := time.NewTicker(notificationPollInterval)
		defer ticker.Stop()

		for {
			select {
			case <-g.stop:
				return
			case <-ticker.C:
				goal, err := g.st.GetGoal(context.Background(), goalID)
				if err != nil {
					log.Errorf("watch goal %s: %v", goalID, err)
					return
				}
				if !goal.State.Terminal() {
					continue
				}
				note := Notification{GoalID: goalID, ChannelTarget: channelTarget, ActorID: actorID, Outcome: goal.State}
				select {
				case g.notifications <- note:
				case <-g.stop:
				}
				return
			}
		}
	}()
}
