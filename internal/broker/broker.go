// Package broker implements the Tool Broker (spec §4.5): the single path
// every tool invocation passes through between the Run Executor and the
// built-in tool catalogue (internal/tools). It owns the execute(step)
// contract — schema check, Path Guard canonicalization, Policy Engine
// query, approval suspend/await, per-invocation bounds, invocation, and
// trace recording — so no caller can reach a tool's Execute func directly
// and skip a gate.
package broker

import (
	"context"
	"fmt"
	"net/url"
	"sort"
	"sync"
	"time"

	"github.com/Djtony707/TITAN/internal/apperr"
	"github.com/Djtony707/TITAN/internal/approval"
	"github.com/Djtony707/TITAN/internal/ids"
	"github.com/Djtony707/TITAN/internal/logging"
	"github.com/Djtony707/TITAN/internal/policy"
	"github.com/Djtony707/TITAN/internal/store"
	"github.com/Djtony707/TITAN/internal/tools"
	"github.com/Djtony707/TITAN/internal/workspace"
)

const (
	defaultTimeout        = 30 * time.Second
	defaultMaxOutputBytes = 1 << 20 // 1 MiB
	defaultClassCap       = 4       // max concurrent invocations per capability class
)

// Request is one step's invocation request, carrying the context the
// Policy Engine needs alongside the tool call itself.
type Request struct {
	GoalID string
	StepID string

	ToolName string
	Args     map[string]any

	Mode policy.AutonomyMode
	Risk policy.RiskMode

	// Meta carries the skill/connector facts the Policy Engine's hard
	// denials inspect. PathGuardOK is always overwritten by the Broker —
	// callers never set it.
	Meta policy.StepMeta

	// ApprovalTTL overrides the Approval Queue's default TTL; zero means
	// use the queue's default.
	ApprovalTTL time.Duration

	// ResumeApprovalID, if set, names an already-created approval for this
	// exact step (spec §4.8: a goal resumed from awaiting_approval "resumes
	// waiting on the (still-pending) approval"). When set, the Broker awaits
	// this approval directly instead of creating a new one, so a process
	// restart never issues a duplicate approval request for a step that was
	// already suspended awaiting one.
	ResumeApprovalID string

	// OnApprovalRequested, if set, is invoked with the approval id the
	// instant a require-approval verdict creates one, before the Broker
	// blocks awaiting it — the Run Executor uses this to flip the goal and
	// step to awaiting_approval at the true suspension point (spec §5,
	// suspension point 1).
	OnApprovalRequested func(approvalID string)
}

// Outcome is the result of one execute(step) call.
type Outcome struct {
	Verdict    policy.Verdict
	Output     string
	Err        error
	DurationMs int64
}

// Broker wires the tool catalogue to the Path Guard, Policy Engine, and
// Approval Queue, and records every call as a trace event.
type Broker struct {
	tools     *tools.Registry
	guard     *workspace.Guard
	policy    *policy.Engine
	approvals *approval.Queue
	st        *store.Store

	mu   sync.Mutex
	sems map[tools.CapabilityClass]chan struct{}

	// pathLocks holds one *sync.Mutex per canonical path, lazily created,
	// serializing invocations of any tool that declares
	// RequiresPathExclusion against the same path (spec §5: "tools that
	// need exclusion... queued behind a per-path mutex").
	pathLocks sync.Map

	timeout        time.Duration
	maxOutputBytes int
}

// New constructs a Broker. classCap bounds concurrent invocations per
// capability class (spec §4.5 step 4: "max concurrent invocations per
// capability class"); zero uses the default of 4.
func New(reg *tools.Registry, guard *workspace.Guard, pol *policy.Engine, approvals *approval.Queue, st *store.Store, classCap int) *Broker {
	if classCap <= 0 {
		classCap = defaultClassCap
	}
	sems := make(map[tools.CapabilityClass]chan struct{}, 4)
	for _, c := range []tools.CapabilityClass{tools.CapabilityRead, tools.CapabilityWrite, tools.CapabilityExec, tools.CapabilityNet} {
		sems[c] = make(chan struct{}, classCap)
	}
	return &Broker{
		tools:          reg,
		guard:          guard,
		policy:         pol,
		approvals:      approvals,
		st:             st,
		sems:           sems,
		timeout:        defaultTimeout,
		maxOutputBytes: defaultMaxOutputBytes,
	}
}

// Execute runs the full execute(step) contract (spec §4.5 steps 1-6).
func (b *Broker) Execute(ctx context.Context, req Request) Outcome {
	start := time.Now()
	log := logging.For(logging.CategoryBroker).Sugar()

	tool := b.tools.Get(req.ToolName)
	if tool == nil {
		return b.fail(ctx, req, start, apperr.ToolPermanent("tool_not_found", fmt.Errorf("no such tool: %s", req.ToolName)))
	}

	// 1. Validate input against schema.
	for _, required := range tool.Schema.Required {
		if _, ok := req.Args[required]; !ok {
			return b.fail(ctx, req, start, apperr.Validation("missing_required_arg", fmt.Errorf("%s: %s", req.ToolName, required)))
		}
	}

	// 2. Canonicalize all path-typed inputs via Path Guard.
	args := make(map[string]any, len(req.Args))
	for k, v := range req.Args {
		args[k] = v
	}
	intent := workspace.IntentRead
	if tool.Capability == tools.CapabilityWrite {
		intent = workspace.IntentWrite
	}
	var canonPaths []string
	req.Meta.PathGuardOK = true
	for _, pathArg := range tool.PathArgs {
		raw, _ := args[pathArg].(string)
		canon, err := b.guard.Validate(raw, intent)
		if err != nil {
			req.Meta.PathGuardOK = false
			return b.fail(ctx, req, start, err)
		}
		args[pathArg] = canon.String()
		canonPaths = append(canonPaths, canon.String())
	}

	req.Meta.RequestsEXEC = tool.ExecutesSubprocess
	req.Meta.RequestsNET = tool.InitiatesNetwork
	req.Meta.ConnectorWrite = tool.ConnectorWrite

	// 3. Query Policy Engine; if require-approval, create an approval and wait.
	class := policyClass(tool.Capability)
	verdict, reason, err := b.policy.Evaluate(ctx, req.Mode, req.Risk, class, req.Meta)
	if err != nil {
		return b.fail(ctx, req, start, apperr.Invariant("policy_evaluate_failed", err))
	}
	switch verdict {
	case policy.Deny:
		return b.fail(ctx, req, start, apperr.PolicyDenied(reason))
	case policy.RequireApproval:
		decision, err := b.awaitApproval(ctx, req, tool, canonPaths)
		if err != nil {
			return b.fail(ctx, req, start, err)
		}
		switch decision {
		case store.DecisionApproved:
			// proceed
		case store.DecisionTimeout:
			return b.fail(ctx, req, start, apperr.ApprovalTimeout("approval_timeout"))
		default:
			return b.fail(ctx, req, start, apperr.PolicyDenied("approval_"+string(decision)))
		}
	case policy.Allow:
		// proceed
	}

	// 4. Enforce per-invocation bounds: timeout, concurrency cap, and
	// per-path exclusion for tools that declare it.
	sem := b.sems[tool.Capability]
	select {
	case sem <- struct{}{}:
		defer func() { <-sem }()
	case <-ctx.Done():
		return b.fail(ctx, req, start, apperr.ToolTransient("context_cancelled_awaiting_slot", ctx.Err()))
	}

	if tool.RequiresPathExclusion && len(canonPaths) > 0 {
		unlock := b.lockPaths(canonPaths)
		defer unlock()
	}

	callCtx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	// 5. Invoke the operation.
	log.Debugf("broker invoking %s for step %s", req.ToolName, req.StepID)
	result, execErr := b.tools.ExecuteTool(callCtx, tool, args)

	output := result.Output
	if len(output) > b.maxOutputBytes {
		output = output[:b.maxOutputBytes] + "\n...[truncated]"
	}

	duration := time.Since(start)
	outcome := Outcome{Verdict: policy.Allow, Output: output, Err: execErr, DurationMs: duration.Milliseconds()}
	b.recordTrace(ctx, req, outcome, "tool_result")
	return outcome
}

// lockPaths acquires every path's mutex (creating it on first use) in
// sorted order, so two calls contending for overlapping path sets always
// take their locks in the same order and can never deadlock. It returns a
// func that releases them all in reverse order.
func (b *Broker) lockPaths(paths []string) func() {
	sorted := append([]string(nil), paths...)
	sort.Strings(sorted)

	locks := make([]*sync.Mutex, 0, len(sorted))
	var prev string
	for _, p := range sorted {
		if p == prev {
			continue // dedupe: a tool naming the same path twice must not self-deadlock
		}
		prev = p
		v, _ := b.pathLocks.LoadOrStore(p, &sync.Mutex{})
		mu := v.(*sync.Mutex)
		mu.Lock()
		locks = append(locks, mu)
	}
	return func() {
		for i := len(locks) - 1; i >= 0; i-- {
			locks[i].Unlock()
		}
	}
}

func (b *Broker) awaitApproval(ctx context.Context, req Request, tool *tools.Tool, canonPaths []string) (store.Decision, error) {
	approvalID := req.ResumeApprovalID
	if approvalID == "" {
		var hosts []string
		if tool.InitiatesNetwork {
			if target, ok := req.Args["url"].(string); ok {
				if u, err := url.Parse(target); err == nil {
					hosts = append(hosts, u.Hostname())
				}
			}
		}

		a, err := b.approvals.Request(ctx, req.ToolName, req.StepID, []string{string(tool.Capability)}, canonPaths, hosts, "", store.SignatureUnsigned, req.ApprovalTTL)
		if err != nil {
			return "", apperr.Invariant("create_approval_failed", err)
		}
		approvalID = a.ID
		b.recordTraceEvent(ctx, req.GoalID, req.StepID, "approval_requested", map[string]any{"approval_id": a.ID, "tool": req.ToolName}, req.Risk)
	}

	if req.OnApprovalRequested != nil {
		req.OnApprovalRequested(approvalID)
	}

	decision, err := b.approvals.Await(ctx, approvalID)
	if err != nil {
		return "", apperr.ApprovalTimeout("approval_await_failed")
	}
	return decision, nil
}

func (b *Broker) fail(ctx context.Context, req Request, start time.Time, err error) Outcome {
	outcome := Outcome{Verdict: policy.Deny, Err: err, DurationMs: time.Since(start).Milliseconds()}
	b.recordTrace(ctx, req, outcome, "tool_error")
	return outcome
}

// recordTrace writes the step's outcome trace event with inputs redacted
// to argument names only (spec §4.5 step 6: "inputs (redacted)") and the
// outcome summary size-capped.
func (b *Broker) recordTrace(ctx context.Context, req Request, outcome Outcome, kind string) {
	argNames := make([]string, 0, len(req.Args))
	for k := range req.Args {
		argNames = append(argNames, k)
	}

	summary := outcome.Output
	const maxSummary = 2048
	if len(summary) > maxSummary {
		summary = summary[:maxSummary] + "...[truncated]"
	}
	payload := map[string]any{
		"tool":        req.ToolName,
		"arg_names":   argNames,
		"duration_ms": outcome.DurationMs,
		"summary":     summary,
	}
	if outcome.Err != nil {
		payload["error"] = outcome.Err.Error()
	}
	b.recordTraceEvent(ctx, req.GoalID, req.StepID, kind, payload, req.Risk)
}

func (b *Broker) recordTraceEvent(ctx context.Context, goalID, stepID, kind string, payload map[string]any, risk policy.RiskMode) {
	ev := store.TraceEvent{
		ID:       ids.New(),
		GoalID:   goalID,
		StepID:   stepID,
		Kind:     kind,
		Payload:  payload,
		RiskMode: string(risk),
	}
	if err := b.st.AppendTrace(ctx, ev); err != nil {
		logging.For(logging.CategoryBroker).Sugar().Errorf("append trace: %v", err)
	}
}

func policyClass(c tools.CapabilityClass) policy.Class {
	switch c {
	case tools.CapabilityRead:
		return policy.ClassRead
	case tools.CapabilityWrite:
		return policy.ClassWrite
	case tools.CapabilityExec:
		return policy.ClassExec
	case tools.CapabilityNet:
		return policy.ClassNet
	default:
		return policy.ClassRead
	}
}
