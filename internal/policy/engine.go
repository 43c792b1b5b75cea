// Package policy implements the Policy Engine (spec §4.3): it maps
// (autonomy mode, risk mode, capability class, step metadata) to one of
// {allow, require-approval, deny}.
//
// The mode×risk×class decision matrix is expressed as a small Datalog
// ruleset (rules.mg) evaluated by google/mangle rather than a hand-rolled
// switch, grounded on the teacher's internal/mangle.Engine wrapper. Each
// call builds a fresh engine instance, asserts the step's context as a
// transient fact, queries the derived decision, and discards the engine —
// equivalent in effect to assert-then-retract without needing a public
// fact-removal API.
package policy

import (
	"context"
	_ "embed"
	"fmt"

	"github.com/Djtony707/TITAN/internal/mangle"
)

//go:embed rules.mg
var rulesSource string

// AutonomyMode is the operator-selected supervision level (spec §4.3).
type AutonomyMode string

const (
	Supervised   AutonomyMode = "supervised"
	Collaborative AutonomyMode = "collaborative"
	Autonomous   AutonomyMode = "autonomous"
)

// RiskMode is whether YOLO bypass is armed (spec §4.3).
type RiskMode string

const (
	Secure RiskMode = "secure"
	Yolo   RiskMode = "yolo"
)

// Class mirrors store.CapabilityClass without importing the store package,
// keeping the Policy Engine's public surface storage-agnostic.
type Class string

const (
	ClassRead  Class = "READ"
	ClassWrite Class = "WRITE"
	ClassExec  Class = "EXEC"
	ClassNet   Class = "NET"
)

// Verdict is the Policy Engine's decision.
type Verdict string

const (
	Allow           Verdict = "allow"
	RequireApproval Verdict = "require_approval"
	Deny            Verdict = "deny"
)

// StepMeta carries the per-step facts the hard-denial rules inspect (spec
// §4.3: "Additional hard denials (before mode check)").
type StepMeta struct {
	PathGuardOK            bool // false if any path argument failed workspace.Guard.Validate
	IsUnsignedSkill         bool
	RequestsEXEC            bool
	RequestsNET             bool
	NetHostAllowlistBounded bool // true if the skill/connector declares a non-empty, non-wildcard host list
	ConnectorWrite          bool
	ConnectorPriorApproval  bool
}

// Engine evaluates policy decisions.
type Engine struct{}

// New returns a ready-to-use Engine. There is no persistent state: every
// Evaluate call is a self-contained Datalog program run.
func New() *Engine {
	return &Engine{}
}

// Evaluate applies the hard denials, then the mode×risk×class matrix (spec
// §4.3).
func (e *Engine) Evaluate(ctx context.Context, mode AutonomyMode, risk RiskMode, class Class, meta StepMeta) (Verdict, string, error) {
	if !meta.PathGuardOK {
		return Deny, "path_guard_denied", nil
	}
	if meta.IsUnsignedSkill && meta.RequestsEXEC {
		return Deny, "unsigned_skill_exec", nil
	}
	if meta.IsUnsignedSkill && meta.RequestsNET && !meta.NetHostAllowlistBounded {
		return Deny, "unsigned_skill_unbounded_net", nil
	}
	if meta.ConnectorWrite && risk == Secure && mode == Collaborative && !meta.ConnectorPriorApproval {
		return RequireApproval, "connector_write_needs_approval", nil
	}

	allowed, err := e.queryDecisionAllow(ctx, mode, risk, class)
	if err != nil {
		return "", "", fmt.Errorf("evaluate policy: %w", err)
	}
	if allowed {
		return Allow, "matrix_allow", nil
	}
	return RequireApproval, "matrix_require_approval", nil
}

func (e *Engine) queryDecisionAllow(ctx context.Context, mode AutonomyMode, risk RiskMode, class Class) (bool, error) {
	eng, err := mangle.NewEngine(mangle.DefaultConfig(), nil)
	if err != nil {
		return false, err
	}
	if err := eng.LoadSchemaString(rulesSource); err != nil {
		return false, fmt.Errorf("load policy rules: %w", err)
	}

	staticFacts := []mangle.Fact{
		{Predicate: "mode_class_allow", Args: []interface{}{"/collaborative", "/secure", "/read"}},
		{Predicate: "mode_class_allow", Args: []interface{}{"/autonomous", "/secure", "/read"}},
		{Predicate: "mode_class_allow", Args: []interface{}{"/autonomous", "/secure", "/write"}},
		{Predicate: "mode_class_allow", Args: []interface{}{"/autonomous", "/secure", "/exec"}},
		{Predicate: "mode_class_allow", Args: []interface{}{"/autonomous", "/secure", "/net"}},
	}
	if err := eng.AddFacts(staticFacts); err != nil {
		return false, fmt.Errorf("seed policy facts: %w", err)
	}

	modeName := "/" + string(mode)
	riskName := "/" + string(risk)
	className := "/" + classLowerName(class)

	if err := eng.AddFact("step_ctx", modeName, riskName, className); err != nil {
		return false, fmt.Errorf("assert step context: %w", err)
	}

	result, err := eng.Query(ctx, fmt.Sprintf("decision_allow(%s, %s, %s)", modeName, riskName, className))
	if err != nil {
		return false, err
	}
	return len(result.Bindings) > 0, nil
}

func classLowerName(c Class) string {
	switch c {
	case ClassRead:
		return "read"
	case ClassWrite:
		return "write"
	case ClassExec:
		return "exec"
	case ClassNet:
		return "net"
	default:
		return "read"
	}
}
