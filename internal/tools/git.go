package tools

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
)

// RegisterGitTools adds git status/diff/commit equivalents to reg (spec
// §4.5: "git status/diff/commit equivalents"). status and diff are
// READ-class (they don't mutate the repository); commit is WRITE-class.
// All three shell out to the real git binary with a fixed argument vector,
// never a user-supplied command line.
func RegisterGitTools(reg *Registry) {
	reg.MustRegister(&Tool{
		Name:             "git.status",
		Description:      "Show git working tree status for a workspace directory.",
		Capability:       CapabilityRead,
		TouchesWorkspace: true,
		Idempotency:      Idempotent,
		PathArgs:         []string{"path"},
		Schema: Schema{
			Required:   []string{"path"},
			Properties: map[string]Property{"path": {Type: "string", Description: "repository directory"}},
		},
		Execute: func(ctx context.Context, args map[string]any) (string, error) {
			path, _ := args["path"].(string)
			return runGit(ctx, path, "status", "--porcelain=v1")
		},
	})

	reg.MustRegister(&Tool{
		Name:             "git.diff",
		Description:      "Show the unified diff of unstaged changes in a workspace directory.",
		Capability:       CapabilityRead,
		TouchesWorkspace: true,
		Idempotency:      Idempotent,
		PathArgs:         []string{"path"},
		Schema: Schema{
			Required:   []string{"path"},
			Properties: map[string]Property{"path": {Type: "string", Description: "repository directory"}},
		},
		Execute: func(ctx context.Context, args map[string]any) (string, error) {
			path, _ := args["path"].(string)
			return runGit(ctx, path, "diff")
		},
	})

	reg.MustRegister(&Tool{
		Name:                  "git.commit",
		Description:           "Stage all changes and commit with the given message.",
		Capability:            CapabilityWrite,
		TouchesWorkspace:      true,
		Idempotency:           NonIdempotent,
		PathArgs:              []string{"path"},
		RequiresPathExclusion: true,
		Schema: Schema{
			Required: []string{"path", "message"},
			Properties: map[string]Property{
				"path":    {Type: "string", Description: "repository directory"},
				"message": {Type: "string", Description: "commit message"},
			},
		},
		Execute: func(ctx context.Context, args map[string]any) (string, error) {
			path, _ := args["path"].(string)
			message, _ := args["message"].(string)
			if message == "" {
				return "", fmt.Errorf("git.commit: empty message")
			}
			if _, err := runGit(ctx, path, "add", "-A"); err != nil {
				return "", err
			}
			return runGit(ctx, path, "commit", "-m", message)
		},
	})
}

func runGit(ctx context.Context, dir string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = dir

	var out, stderr bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("git %v: %w: %s", args, err, stderr.String())
	}
	return out.String(), nil
}
