package skills

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/template"

	"github.com/Djtony707/TITAN/internal/apperr"
	"github.com/Djtony707/TITAN/internal/broker"
	"github.com/Djtony707/TITAN/internal/logging"
	"github.com/Djtony707/TITAN/internal/policy"
	"github.com/Djtony707/TITAN/internal/store"
	"github.com/Djtony707/TITAN/internal/workspace"
)

// Runtime executes installed skills (spec §4.6 "Execution"). prompt
// entrypoints are rewritten to a Tool Broker call; wasm entrypoints run in
// the interpreter sandbox; http and script-stub are v1 stubs.
type Runtime struct {
	st      *store.Store
	guard   *workspace.Guard
	broker  *broker.Broker
	sandbox *wasmSandbox
}

// NewRuntime constructs a Runtime.
func NewRuntime(st *store.Store, guard *workspace.Guard, b *broker.Broker) *Runtime {
	return &Runtime{st: st, guard: guard, broker: b, sandbox: newWasmSandbox()}
}

// Execute runs the installed skill identified by slug (its currently
// locked version) with the given invocation args, as one step of goalID.
func (r *Runtime) Execute(ctx context.Context, goalID, stepID, slug string, args map[string]any, mode policy.AutonomyMode, risk policy.RiskMode) (string, error) {
	log := logging.For(logging.CategorySkills).Sugar()

	sk, err := r.st.GetInstalledSkill(ctx, slug)
	if err != nil {
		return "", apperr.Validation("skill_not_installed", err)
	}

	manifestPath, err := r.guard.Validate(filepath.Join("skills", sk.Slug, sk.Version, "manifest.yaml"), workspace.IntentRead)
	if err != nil {
		return "", err
	}
	data, err := os.ReadFile(manifestPath.String())
	if err != nil {
		return "", fmt.Errorf("read installed skill manifest: %w", err)
	}
	manifest, err := ParseManifest(data)
	if err != nil {
		return "", err
	}

	log.Debugf("executing skill %s@%s (%s)", manifest.Slug, manifest.Version, manifest.Entrypoint)

	switch manifest.Entrypoint {
	case EntrypointPrompt:
		return r.executePrompt(ctx, goalID, stepID, sk, manifest, args, mode, risk)
	case EntrypointWasm:
		return r.executeWasm(ctx, sk, manifest, args)
	case EntrypointHTTP, EntrypointScriptStub:
		return "", apperr.NotImplemented(fmt.Sprintf("skill entrypoint kind %q is not implemented in v1", manifest.Entrypoint))
	default:
		return "", apperr.Invariant("unknown_entrypoint", fmt.Errorf("%q", manifest.Entrypoint))
	}
}

// executePrompt renders the manifest's body template against args, parses
// the result as "tool:<name> <json-args>", and dispatches it through the
// Tool Broker (spec §4.6: "prompt entrypoints rewrite to a Tool Broker
// call").
func (r *Runtime) executePrompt(ctx context.Context, goalID, stepID string, sk store.InstalledSkill, m Manifest, args map[string]any, mode policy.AutonomyMode, risk policy.RiskMode) (string, error) {
	rendered, err := renderTemplate(m.Body, args)
	if err != nil {
		return "", apperr.Validation("skill_template_render_failed", err)
	}

	toolCall, ok := strings.CutPrefix(strings.TrimSpace(rendered), "tool:")
	if !ok {
		return "", apperr.Invariant("skill_body_not_tool_call", fmt.Errorf("prompt skill body must start with tool:, got %q", rendered))
	}
	toolName, rawArgs, _ := strings.Cut(toolCall, " ")
	toolArgs := map[string]any{}
	rawArgs = strings.TrimSpace(rawArgs)
	if rawArgs != "" {
		if err := json.Unmarshal([]byte(rawArgs), &toolArgs); err != nil {
			return "", apperr.Invariant("skill_tool_args_invalid_json", err)
		}
	}

	hostsBounded := len(sk.AllowedHosts) > 0
	for _, h := range sk.AllowedHosts {
		if h == "*" {
			hostsBounded = false
		}
	}

	outcome := r.broker.Execute(ctx, broker.Request{
		GoalID:   goalID,
		StepID:   stepID,
		ToolName: toolName,
		Args:     toolArgs,
		Mode:     mode,
		Risk:     risk,
		Meta: policy.StepMeta{
			IsUnsignedSkill:         sk.SignatureStatus != store.SignatureValid,
			NetHostAllowlistBounded: hostsBounded,
		},
	})
	return outcome.Output, outcome.Err
}

func (r *Runtime) executeWasm(ctx context.Context, sk store.InstalledSkill, m Manifest, args map[string]any) (string, error) {
	sourcePath, err := r.guard.Validate(filepath.Join("skills", sk.Slug, sk.Version, m.Body), workspace.IntentRead)
	if err != nil {
		return "", err
	}
	code, err := os.ReadFile(sourcePath.String())
	if err != nil {
		return "", fmt.Errorf("read skill source: %w", err)
	}
	input, err := json.Marshal(args)
	if err != nil {
		return "", err
	}
	return r.sandbox.Run(ctx, string(code), sk.Scopes, string(input))
}

func renderTemplate(body string, args map[string]any) (string, error) {
	tmpl, err := template.New("skill-body").Parse(body)
	if err != nil {
		return "", fmt.Errorf("parse skill body template: %w", err)
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, args); err != nil {
		return "", fmt.Errorf("render skill body template: %w", err)
	}
	return buf.String(), nil
}
