package scheduler

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/Djtony707/TITAN/internal/store"
)

// computeNextFire derives a job's next fire time from its schedule kind
// (spec §4.9): interval jobs fire at last_fire + interval; cron jobs fire
// at the next match of a standard five-field cron expression.
func computeNextFire(job store.Job, from time.Time) (time.Time, error) {
	switch job.ScheduleKind {
	case store.ScheduleInterval:
		d, err := time.ParseDuration(job.ScheduleValue)
		if err != nil {
			return time.Time{}, fmt.Errorf("parse interval %q: %w", job.ScheduleValue, err)
		}
		return from.Add(d), nil
	case store.ScheduleCron:
		sched, err := cron.ParseStandard(job.ScheduleValue)
		if err != nil {
			return time.Time{}, fmt.Errorf("parse cron %q: %w", job.ScheduleValue, err)
		}
		return sched.Next(from), nil
	default:
		return time.Time{}, fmt.Errorf("unknown schedule kind %q", job.ScheduleKind)
	}
}
