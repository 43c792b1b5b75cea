package tools

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

const (
	defaultExecTimeout  = 30 * time.Second
	defaultMaxOutputLen = 1 << 20 // 1 MiB, spec §4.5 "max output bytes (default 1 MiB)"
)

// RegisterExecTool adds the EXEC-class subprocess tool to reg. allowed
// names the binaries the tool may invoke by basename; any other binary is
// rejected before exec.Command is ever constructed. Subprocess execution
// never goes through a shell — args is an argument vector, not a command
// line (spec §4.5: "never goes through a shell interpreter; argument
// vectors only").
func RegisterExecTool(reg *Registry, allowed []string) {
	allowSet := make(map[string]struct{}, len(allowed))
	for _, a := range allowed {
		allowSet[a] = struct{}{}
	}

	reg.MustRegister(&Tool{
		Name:               "proc.exec",
		Description:        "Execute an allowlisted binary with an argument vector, no shell.",
		Capability:         CapabilityExec,
		ExecutesSubprocess: true,
		Idempotency:        NonIdempotent,
		Schema: Schema{
			Required: []string{"binary"},
			Properties: map[string]Property{
				"binary": {Type: "string", Description: "allowlisted binary name"},
				"args":   {Type: "array", Description: "argument vector", Items: &PropertyItems{Type: "string"}},
				"cwd":    {Type: "string", Description: "working directory, workspace-relative"},
			},
		},
		Execute: func(ctx context.Context, args map[string]any) (string, error) {
			return executeProc(ctx, allowSet, args)
		},
	})
}

func executeProc(ctx context.Context, allowSet map[string]struct{}, args map[string]any) (string, error) {
	binary, _ := args["binary"].(string)
	if _, ok := allowSet[binary]; !ok {
		return "", fmt.Errorf("proc.exec: %q is not in the allowed command set", binary)
	}

	var argv []string
	if raw, ok := args["args"].([]any); ok {
		for _, a := range raw {
			s, ok := a.(string)
			if !ok {
				return "", fmt.Errorf("proc.exec: args must be strings")
			}
			argv = append(argv, s)
		}
	}

	ctx, cancel := context.WithTimeout(ctx, defaultExecTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, binary, argv...)
	if cwd, ok := args["cwd"].(string); ok && cwd != "" {
		cmd.Dir = cwd
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	runErr := cmd.Run()

	out := stdout.String()
	if stderr.Len() > 0 {
		out += "\n--- stderr ---\n" + stderr.String()
	}
	if len(out) > defaultMaxOutputLen {
		out = out[:defaultMaxOutputLen] + "\n...[truncated]"
	}

	if ctx.Err() != nil {
		return out, fmt.Errorf("proc.exec: %s timed out", strings.TrimSpace(binary+" "+strings.Join(argv, " ")))
	}
	if runErr != nil {
		return out, fmt.Errorf("proc.exec: %w", runErr)
	}
	return out, nil
}
