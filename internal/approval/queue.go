// Package approval implements the Approval Queue (spec §4.4): a durable
// pending-decision registry with TTL, resolver identity, and wake-up
// semantics for blocked steps.
package approval

import (
	"container/heap"
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/Djtony707/TITAN/internal/ids"
	"github.com/Djtony707/TITAN/internal/logging"
	"github.com/Djtony707/TITAN/internal/store"
)

const defaultTTL = 5 * time.Minute

// Queue wraps the Store's approval table with the in-memory wake-up
// machinery the durable rows alone can't provide: a notifier channel per
// pending approval, and a single reaper goroutine that expires approvals
// past their TTL deadline.
type Queue struct {
	st *store.Store

	notifiers sync.Map // approval id -> chan store.Decision

	mu       sync.Mutex
	deadline *deadlineHeap

	wake chan struct{}
	stop chan struct{}
	done chan struct{}
}

// New constructs a Queue and starts its reaper goroutine. Callers must call
// Close to stop the reaper cleanly.
func New(st *store.Store) *Queue {
	q := &Queue{
		st:       st,
		deadline: &deadlineHeap{},
		wake:     make(chan struct{}, 1),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	heap.Init(q.deadline)
	go q.reap()
	return q
}

// Close stops the reaper goroutine.
func (q *Queue) Close() {
	close(q.stop)
	<-q.done
}

// Request creates a new pending approval (spec §4.4) and registers its
// notifier channel. ttl of zero uses the default 5-minute TTL.
func (q *Queue) Request(ctx context.Context, toolName, stepID string, scopes, paths, hosts []string, bundleHash string, sig store.SignatureStatus, ttl time.Duration) (store.Approval, error) {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	now := time.Now()
	a := store.Approval{
		ID:              ids.New(),
		ToolName:        toolName,
		StepID:          stepID,
		Scopes:          scopes,
		Paths:           paths,
		Hosts:           hosts,
		BundleHash:      bundleHash,
		SignatureStatus: sig,
		TTLDeadline:     now.Add(ttl),
		CreatedAt:       now,
	}
	if err := q.st.CreateApproval(ctx, a); err != nil {
		return store.Approval{}, err
	}

	q.notifiers.Store(a.ID, make(chan store.Decision, 1))

	q.mu.Lock()
	heap.Push(q.deadline, deadlineEntry{id: a.ID, at: a.TTLDeadline})
	q.mu.Unlock()
	q.nudge()

	return a, nil
}

// Rehydrate re-registers a notifier and deadline-heap entry for every
// still-pending approval found in the store, so a resumed goal's Await
// call actually blocks instead of reading a stale decision. Without this,
// a process restart loses both the in-memory notifier map and the reaper's
// deadline heap built by Request, leaving pending approvals from before
// the restart with no TTL enforcement and no wake-up path. Callers must
// run this once, before resuming any suspended goal, right after New.
func (q *Queue) Rehydrate(ctx context.Context) error {
	pending, err := q.st.ListPendingApprovals(ctx)
	if err != nil {
		return err
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, a := range pending {
		if _, loaded := q.notifiers.LoadOrStore(a.ID, make(chan store.Decision, 1)); !loaded {
			heap.Push(q.deadline, deadlineEntry{id: a.ID, at: a.TTLDeadline})
		}
	}
	q.nudge()
	return nil
}

// Await blocks until the approval identified by id is resolved (by
// Resolve, or by the reaper on TTL expiry), or ctx is cancelled first.
func (q *Queue) Await(ctx context.Context, id string) (store.Decision, error) {
	chAny, ok := q.notifiers.Load(id)
	if !ok {
		// Already resolved before Await was called (lost the race with a
		// fast resolver) — read the durable state directly.
		a, err := q.st.GetApproval(ctx, id)
		if err != nil {
			return "", err
		}
		return a.Decision, nil
	}
	ch := chAny.(chan store.Decision)

	select {
	case d := <-ch:
		return d, nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// Resolve records a human decision (spec §4.4: "validate still pending,
// then record atomically; losing races return already-resolved"). Web and
// CLI approval operations share this one path.
func (q *Queue) Resolve(ctx context.Context, id, resolver string, decision store.Decision, reason string) (claimed bool, err error) {
	_, claimed, err = q.st.ClaimPendingApproval(ctx, id, resolver, decision, reason)
	if err != nil || !claimed {
		return claimed, err
	}
	q.notify(id, decision)
	return true, nil
}

func (q *Queue) notify(id string, decision store.Decision) {
	if chAny, ok := q.notifiers.LoadAndDelete(id); ok {
		ch := chAny.(chan store.Decision)
		ch <- decision
		close(ch)
	}
}

func (q *Queue) nudge() {
	select {
	case q.wake <- struct{}{}:
	default:
	}
}

// reap is the single TTL-expiry goroutine (spec §5: "a single timer-reaper
// woken via time.Timer.Reset to the next deadline"), driven by a
// container/heap of pending deadlines instead of a full-table poll.
func (q *Queue) reap() {
	defer close(q.done)
	log := logging.For(logging.CategoryApproval)
	timer := time.NewTimer(time.Hour)
	defer timer.Stop()

	for {
		q.mu.Lock()
		next, ok := q.deadline.Peek()
		q.mu.Unlock()

		if ok {
			d := time.Until(next.at)
			if d < 0 {
				d = 0
			}
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
			timer.Reset(d)
		}

		select {
		case <-q.stop:
			return
		case <-q.wake:
			continue
		case <-timer.C:
			q.expirePastDeadlines(log)
		}
	}
}

func (q *Queue) expirePastDeadlines(log *zap.Logger) {
	ctx := context.Background()
	expired, err := q.st.ExpirePastDeadline(ctx, time.Now())
	if err != nil {
		log.Error("expire past deadline", zap.Error(err))
		return
	}
	for _, id := range expired {
		q.notify(id, store.DecisionTimeout)
	}

	q.mu.Lock()
	for q.deadline.Len() > 0 {
		top, _ := q.deadline.Peek()
		if top.at.After(time.Now()) {
			break
		}
		heap.Pop(q.deadline)
	}
	q.mu.Unlock()
}

type deadlineEntry struct {
	id string
	at time.Time
}

// deadlineHeap is a min-heap over deadlineEntry.at.
type deadlineHeap []deadlineEntry

func (h deadlineHeap) Len() int            { return len(h) }
func (h deadlineHeap) Less(i, j int) bool  { return h[i].at.Before(h[j].at) }
func (h deadlineHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *deadlineHeap) Push(x interface{}) { *h = append(*h, x.(deadlineEntry)) }
func (h *deadlineHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// Peek returns the earliest deadline without removing it.
func (h *deadlineHeap) Peek() (deadlineEntry, bool) {
	if h.Len() == 0 {
		return deadlineEntry{}, false
	}
	return (*h)[0], true
}
