// Package scheduler implements the in-process Scheduler (spec §4.9): a
// fixed-tick poll loop over due jobs, a per-job lock preventing overlapping
// runs, bounded global concurrency, and pause/resume/run-now control.
package scheduler

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/Djtony707/TITAN/internal/gateway"
	"github.com/Djtony707/TITAN/internal/ids"
	"github.com/Djtony707/TITAN/internal/logging"
	"github.com/Djtony707/TITAN/internal/store"
)

const (
	defaultTick        = time.Second
	defaultConcurrency = 2
	goalPollInterval   = 250 * time.Millisecond
)

// errBusy signals a job's previous run is still in flight (spec §4.9
// testable property: "a job-level lock prevents overlapping runs").
var errBusy = errors.New("job already has an active run")

// Scheduler polls store.NextDueJobs at a fixed tick and submits one goal
// per due job through the Run Executor, never exceeding a bounded number
// of concurrently in-flight job runs.
type Scheduler struct {
	st *store.Store
	gw *gateway.Gateway

	tick time.Duration
	sem  chan struct{}

	stop chan struct{}
	wg   sync.WaitGroup
}

// New constructs a Scheduler. concurrency <= 0 uses the spec default of 2;
// tick <= 0 uses the spec's "≤1s granularity" default of one second. Every
// due job is submitted as a goal-submission Event through gw (spec §4.9:
// "synthesize an inbound event whose goal description is the job's
// template, submit it") rather than reaching the Executor directly.
func New(st *store.Store, gw *gateway.Gateway, concurrency int, tick time.Duration) *Scheduler {
	if concurrency <= 0 {
		concurrency = defaultConcurrency
	}
	if tick <= 0 {
		tick = defaultTick
	}
	return &Scheduler{
		st:   st,
		gw:   gw,
		tick: tick,
		sem:  make(chan struct{}, concurrency),
		stop: make(chan struct{}),
	}
}

// Start launches the poll loop in its own goroutine and returns
// immediately. Call Stop to end it.
func (s *Scheduler) Start(ctx context.Context) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.loop(ctx)
	}()
}

// Stop ends the poll loop and waits for in-flight job dispatches (not the
// goals they submitted, which the Executor tracks independently) to settle.
func (s *Scheduler) Stop() {
	close(s.stop)
	s.wg.Wait()
}

func (s *Scheduler) loop(ctx context.Context) {
	log := logging.For(logging.CategoryScheduler).Sugar()
	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()

	for {
		select {
		case <-s.stop:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.pollOnce(ctx); err != nil {
				log.Errorf("poll due jobs: %v", err)
			}
		}
	}
}

func (s *Scheduler) pollOnce(ctx context.Context) error {
	due, err := s.st.NextDueJobs(ctx, time.Now().UTC())
	if err != nil {
		return err
	}

	for _, job := range due {
		job := job
		select {
		case s.sem <- struct{}{}:
		default:
			// Concurrency cap reached this tick; the job stays due and is
			// retried on the next tick.
			continue
		}

		goalID, runID, nextFire, err := s.dispatch(ctx, job, false)
		if err != nil {
			<-s.sem
			if !errors.Is(err, errBusy) {
				logging.For(logging.CategoryScheduler).Sugar().Errorf("dispatch job %s: %v", job.ID, err)
				// Advance the schedule anyway so a permanently broken job
				// template doesn't spin the poll loop every tick.
				if next, cerr := computeNextFire(job, time.Now().UTC()); cerr == nil {
					_ = s.st.SetJobNextFire(ctx, job.ID, next, time.Now().UTC(), "dispatch_error")
				}
			}
			continue
		}

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			defer func() { <-s.sem }()
			s.finalize(job.ID, runID, goalID, nextFire)
		}()
	}
	return nil
}

// RunNow dispatches jobID immediately, bypassing its schedule, but still
// blocks until a concurrency slot is free (spec §4.9: "run-now bypasses the
// schedule but still respects the concurrency cap"). It returns the
// submitted goal's id.
func (s *Scheduler) RunNow(ctx context.Context, jobID string) (string, error) {
	job, err := s.st.GetJob(ctx, jobID)
	if err != nil {
		return "", err
	}

	select {
	case s.sem <- struct{}{}:
	case <-ctx.Done():
		return "", ctx.Err()
	}

	goalID, runID, _, err := s.dispatch(ctx, job, true)
	if err != nil {
		<-s.sem
		return "", err
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer func() { <-s.sem }()
		s.finalize(job.ID, runID, goalID, nil)
	}()

	return goalID, nil
}

// Pause disables a job (spec §4.9: "Pause/resume toggles the enabled flag").
func (s *Scheduler) Pause(ctx context.Context, jobID string) error {
	return s.st.SetJobEnabled(ctx, jobID, false)
}

// Resume re-enables a paused job.
func (s *Scheduler) Resume(ctx context.Context, jobID string) error {
	return s.st.SetJobEnabled(ctx, jobID, true)
}

// dispatch checks the per-job lock, submits the job's goal through the
// Gateway, and records the job run row. manual skips advancing the job's
// schedule bookkeeping, since a run-now call isn't the job's regularly
// scheduled fire.
func (s *Scheduler) dispatch(ctx context.Context, job store.Job, manual bool) (goalID, runID string, nextFire *time.Time, err error) {
	if _, active, aerr := s.st.ActiveJobRun(ctx, job.ID); aerr == nil && active {
		return "", "", nil, errBusy
	} else if aerr != nil {
		return "", "", nil, aerr
	}

	now := time.Now().UTC()
	result, err := s.gw.Dispatch(ctx, gateway.Event{
		Origin: gateway.OriginScheduler,
		Kind:   gateway.PayloadGoalSubmission,
		Payload: gateway.GoalSubmission{
			Description: job.GoalTemplate,
		},
	})
	if err != nil {
		return "", "", nil, err
	}
	goalID = result.GoalID

	runID = ids.New()
	if err := s.st.CreateJobRun(ctx, store.JobRun{
		ID:        runID,
		JobID:     job.ID,
		StartedAt: now,
		Status:    store.JobRunRunning,
		GoalID:    goalID,
	}); err != nil {
		return "", "", nil, err
	}

	if !manual {
		next, nerr := computeNextFire(job, now)
		if nerr != nil {
			return goalID, runID, nil, nerr
		}
		if err := s.st.SetJobNextFire(ctx, job.ID, next, now, string(store.JobRunRunning)); err != nil {
			return goalID, runID, nil, err
		}
		nextFire = &next
	}

	return goalID, runID, nextFire, nil
}

// finalize blocks (via polling, mirroring the Store's own busy-poll idiom
// for per-job locks) until the goal the job spawned reaches a terminal
// state, then records the job run's outcome. It deliberately uses a
// background context for the Store writes so a Scheduler.Stop mid-run
// still lets an already-dispatched goal's job run close out cleanly.
func (s *Scheduler) finalize(jobID, runID, goalID string, nextFire *time.Time) {
	log := logging.For(logging.CategoryScheduler).Sugar()
	bg := context.Background()

	status, errSummary := s.waitGoalTerminal(bg, goalID)
	finishedAt := time.Now().UTC()

	if err := s.st.FinishJobRun(bg, runID, status, finishedAt, errSummary); err != nil {
		log.Errorf("finish job run %s: %v", runID, err)
	}

	if nextFire != nil {
		if err := s.st.SetJobNextFire(bg, jobID, *nextFire, finishedAt, string(status)); err != nil {
			log.Errorf("update job %s last status: %v", jobID, err)
		}
	}
}

func (s *Scheduler) waitGoalTerminal(ctx context.Context, goalID string) (store.JobRunStatus, string) {
	ticker := time.NewTicker(goalPollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return store.JobRunFailed, "scheduler shutting down before goal terminalized"
		case <-ticker.C:
			goal, err := s.st.GetGoal(ctx, goalID)
			if err != nil {
				return store.JobRunFailed, err.Error()
			}
			switch goal.State {
			case store.GoalDone:
				return store.JobRunOK, ""
			case store.GoalFailed:
				return store.JobRunFailed, "goal failed"
			case store.GoalCancelled:
				return store.JobRunFailed, "goal cancelled"
			}
		}
	}
}
