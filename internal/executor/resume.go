package executor

import (
	"context"
	"fmt"

	"github.com/Djtony707/TITAN/internal/logging"
)

// Resume re-submits every non-terminal goal found in the store (spec §4.8:
// "awaiting_approval goals resume waiting on the still-pending approval...
// running goals... continue from the last completed step"). Callers must
// call approval.Queue.Rehydrate before Resume, so an awaiting_approval
// goal's resumed Await call actually has a notifier to block on. Call this
// once at boot, before accepting new goals.
func (e *Executor) Resume(ctx context.Context) error {
	log := logging.For(logging.CategoryExecutor).Sugar()

	goals, err := e.st.ListNonTerminalGoals(ctx)
	if err != nil {
		return fmt.Errorf("list non-terminal goals: %w", err)
	}

	for _, g := range goals {
		log.Infof("resuming goal %s (state=%s)", g.ID, g.State)
		e.Submit(ctx, g.ID)
	}
	return nil
}
