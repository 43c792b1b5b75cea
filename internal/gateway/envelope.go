// Package gateway implements the Gateway (spec §4.11, §1): the single
// ingress point for inbound events from every surface — chat, CLI, HTTP,
// scheduler, session resume. Every adapter (cmd/titan, internal/httpapi,
// internal/scheduler) translates its own shape into one Event and calls
// Dispatch; nothing downstream of the Gateway ever sees a channel-specific
// payload shape (spec §9 design note: "Callback-style Discord event
// handling → a single event envelope type enters the Gateway").
package gateway

import "github.com/Djtony707/TITAN/internal/store"

// Origin names the surface an Event arrived through.
type Origin string

const (
	OriginCLI       Origin = "cli"
	OriginHTTP      Origin = "http"
	OriginScheduler Origin = "scheduler"
	OriginChat      Origin = "chat"
)

// PayloadKind is the closed set of inbound event shapes (spec §6: "an event
// is {origin, channel-target, actor-id, payload-kind, payload}").
type PayloadKind string

const (
	PayloadGoalSubmission   PayloadKind = "goal-submission"
	PayloadApprovalDecision PayloadKind = "approval-decision"
	PayloadCancel           PayloadKind = "cancel"
	PayloadSchedulerTick    PayloadKind = "scheduler-tick"
)

// Event is the single envelope every surface adapts its own shape into.
// ChannelTarget and ActorID identify where a terminal-state notification
// should be routed back to; both may be empty for surfaces (CLI, loopback
// HTTP) that have no durable channel to notify.
type Event struct {
	Origin        Origin
	ChannelTarget string
	ActorID       string
	Kind          PayloadKind
	Payload       any
}

// GoalSubmission is the payload for PayloadGoalSubmission.
type GoalSubmission struct {
	Description string
	DedupeKey   string
}

// ApprovalDecision is the payload for PayloadApprovalDecision.
type ApprovalDecision struct {
	ApprovalID string
	Decision   store.Decision
	Reason     string
	Resolver   string
}

// Cancel is the payload for PayloadCancel.
type Cancel struct {
	GoalID string
}

// SchedulerTick is the payload for PayloadSchedulerTick, carrying the job
// whose schedule fired so a listener can correlate a submitted goal back to
// its job (the Scheduler itself still owns the job-level lock and job_run
// bookkeeping; this event only announces that a fire happened).
type SchedulerTick struct {
	JobID string
}
