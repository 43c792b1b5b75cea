package store

import "time"

// GoalState is the top-level state machine from spec §4.8.
type GoalState string

const (
	GoalPending   GoalState = "pending"
	GoalPlanning  GoalState = "planning"
	GoalRunning   GoalState = "running"
	GoalAwaiting  GoalState = "awaiting_approval"
	GoalDone      GoalState = "done"
	GoalFailed    GoalState = "failed"
	GoalCancelled GoalState = "cancelled"
)

// Terminal reports whether the state is one of the goal's terminal states.
func (s GoalState) Terminal() bool {
	switch s {
	case GoalDone, GoalFailed, GoalCancelled:
		return true
	}
	return false
}

// Goal is the durable record of a submitted intent (spec §3).
type Goal struct {
	ID            string
	Description   string
	Origin        string
	ChannelTarget string
	ActorID       string
	DedupeKey     string
	SubmittedAt   time.Time
	State         GoalState
}

// StepState is the per-step state machine from spec §4.8.
type StepState string

const (
	StepQueued    StepState = "queued"
	StepAwaiting  StepState = "awaiting_approval"
	StepRunning   StepState = "running"
	StepOK        StepState = "ok"
	StepFailed    StepState = "failed"
	StepSkipped   StepState = "skipped"
)

// Terminal reports whether the step has reached one of its terminal states.
func (s StepState) Terminal() bool {
	switch s {
	case StepOK, StepFailed, StepSkipped:
		return true
	}
	return false
}

// CapabilityClass coarsely categorizes a tool's effect (GLOSSARY).
type CapabilityClass string

const (
	CapabilityRead  CapabilityClass = "READ"
	CapabilityWrite CapabilityClass = "WRITE"
	CapabilityExec  CapabilityClass = "EXEC"
	CapabilityNet   CapabilityClass = "NET"
)

// Step is a single typed tool invocation within a plan (spec §3).
type Step struct {
	ID                  string
	PlanID              string
	Ordinal             int
	ToolName            string
	Args                map[string]any
	ArgsDigest          string
	CapabilityClass     CapabilityClass
	RequiredInputs      []string
	RequiredOutputs     []string
	State               StepState
	Result              string
	ErrorText           string
	StartedAt           *time.Time
	FinishedAt          *time.Time
}

// PlanCandidate is one of the 2-5 decompositions the Planner scores.
type PlanCandidate struct {
	Digest    string          `json:"digest"`
	Steps     []CandidateStep `json:"steps"`
	RiskCost  float64         `json:"risk_cost"`
	TokenCost float64         `json:"token_cost"`
	Confidence float64        `json:"confidence"`
	Score     float64         `json:"score"`
}

// CandidateStep is the planner-facing shape of a step before persistence
// assigns it an ID (kept distinct from Step to avoid partially-populated
// rows leaking into candidate scoring).
type CandidateStep struct {
	ToolName        string          `json:"tool_name"`
	Args            map[string]any  `json:"args"`
	CapabilityClass CapabilityClass `json:"capability_class"`
	RequiredInputs  []string        `json:"required_inputs"`
	RequiredOutputs []string        `json:"required_outputs"`
}

// Plan is the immutable, selected decomposition of a goal (spec §3).
type Plan struct {
	ID                 string
	GoalID              string
	Candidates          []PlanCandidate
	SelectedIndex       int
	ScoreBreakdownJSON  string
	CreatedAt           time.Time
}

// Selected returns the chosen candidate.
func (p Plan) Selected() PlanCandidate {
	return p.Candidates[p.SelectedIndex]
}

// TraceEvent is an append-only audit record (spec §3).
type TraceEvent struct {
	ID        string
	GoalID    string
	StepID    string // empty means no associated step
	Kind      string
	Payload   map[string]any
	Seq       int64
	RiskMode  string
	CreatedAt time.Time
}

// SignatureStatus describes a skill bundle's verification state.
type SignatureStatus string

const (
	SignatureValid   SignatureStatus = "valid"
	SignatureInvalid SignatureStatus = "invalid"
	SignatureUnsigned SignatureStatus = "unsigned"
)

// Decision is an approval's resolved outcome.
type Decision string

const (
	DecisionApproved Decision = "approved"
	DecisionDenied   Decision = "denied"
	DecisionTimeout  Decision = "timeout"
)

// Approval is a durable request for a human decision gating a step or a
// skill install (spec §3).
type Approval struct {
	ID               string
	ToolName         string
	StepID           string
	Scopes           []string
	Paths            []string
	Hosts            []string
	BundleHash       string
	SignatureStatus  SignatureStatus
	TTLDeadline      time.Time
	ResolverIdentity string
	Decision         Decision
	Reason           string
	SummaryNote      string
	CreatedAt        time.Time
	DecidedAt        *time.Time
}

// Pending reports whether the approval still awaits a decision.
func (a Approval) Pending() bool {
	return a.Decision == ""
}

// EpisodicMemory is the terminal-state summary row for a goal (spec §3).
type EpisodicMemory struct {
	ID           string
	GoalID       string
	Summary      string
	OutcomeLabel string
	CreatedAt    time.Time
}

// SemanticFact is an append-only, versioned knowledge entry (spec §3).
type SemanticFact struct {
	ID         string
	Topic      string
	Content    string
	Provenance string
	Version    int
	CreatedAt  time.Time
}

// InstalledSkill is a skill bundle's installed-state row (spec §3).
type InstalledSkill struct {
	Slug            string
	Version         string
	Source          string
	BundleHash      string
	Scopes          []string
	AllowedPaths    []string
	AllowedHosts    []string
	SignatureStatus SignatureStatus
	LastRunGoalID   string
	InstalledAt     time.Time
}

// SkillLockEntry pins a skill's resolved version (spec §3, §6).
type SkillLockEntry struct {
	Slug       string `json:"slug"`
	Version    string `json:"version"`
	Source     string `json:"source"`
	BundleHash string `json:"hash"`
}

// ScheduleKind distinguishes the two job scheduling policies (spec §3).
type ScheduleKind string

const (
	ScheduleInterval ScheduleKind = "interval"
	ScheduleCron     ScheduleKind = "cron"
)

// Job is a persistent schedule that spawns goals (spec §3).
type Job struct {
	ID             string
	Name           string
	ScheduleKind   ScheduleKind
	ScheduleValue  string
	GoalTemplate   string
	Mode           string
	AllowedScopes  []string
	Enabled        bool
	LastRunAt      *time.Time
	LastStatus     string
	NextFireAt     *time.Time
}

// JobRunStatus is a job run's terminal or in-flight status.
type JobRunStatus string

const (
	JobRunRunning JobRunStatus = "running"
	JobRunOK      JobRunStatus = "ok"
	JobRunFailed  JobRunStatus = "failed"
	JobRunBusy    JobRunStatus = "busy"
)

// JobRun is one execution record of a Job (spec §3).
type JobRun struct {
	ID           string
	JobID        string
	StartedAt    time.Time
	FinishedAt   *time.Time
	Status       JobRunStatus
	GoalID       string
	ErrorSummary string
}

// Connector is referenced non-secret metadata for an external API wrapper
// (spec §3); the secret itself lives behind internal/secrets.
type Connector struct {
	ID          string
	Type        string
	DisplayName string
	Fields      map[string]string
	SecretKey   string
}

// Session is a goal's resumable execution context across restarts (spec §3).
type Session struct {
	GoalID              string
	CurrentStepOrdinal  int
	SuspendedAt         *time.Time
	ResumeReason        string
}
