package tools

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/Djtony707/TITAN/internal/diff"
)

// RegisterDiffTool adds fs.diff: a READ-class preview of what fs.patch
// would change, rendered as context-grouped hunks via internal/diff's
// sergi/go-diff-backed engine. Useful for a planner/executor step to
// inspect a proposed change before a WRITE-class fs.patch step applies it.
func RegisterDiffTool(reg *Registry) {
	reg.MustRegister(&Tool{
		Name:             "fs.diff",
		Description:      "Preview the hunks between a workspace file's current contents and replacement content.",
		Capability:       CapabilityRead,
		TouchesWorkspace: true,
		Idempotency:      Idempotent,
		PathArgs:         []string{"path"},
		Schema: Schema{
			Required: []string{"path", "new_content"},
			Properties: map[string]Property{
				"path":        {Type: "string", Description: "file to compare against"},
				"new_content": {Type: "string", Description: "proposed replacement contents"},
			},
		},
		Execute: executeDiffPreview,
	})
}

func executeDiffPreview(_ context.Context, args map[string]any) (string, error) {
	path, _ := args["path"].(string)
	newContent, _ := args["new_content"].(string)

	old, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("fs.diff: %w", err)
	}

	fd := diff.ComputeDiff(path, path, string(old), newContent)
	if len(fd.Hunks) == 0 {
		return "no changes", nil
	}

	var b strings.Builder
	for _, h := range fd.Hunks {
		fmt.Fprintf(&b, "@@ -%d,%d +%d,%d @@\n", h.OldStart, h.OldCount, h.NewStart, h.NewCount)
		for _, l := range h.Lines {
			switch l.Type {
			case diff.LineAdded:
				fmt.Fprintf(&b, "+%s\n", l.Content)
			case diff.LineRemoved:
				fmt.Fprintf(&b, "-%s\n", l.Content)
			default:
				fmt.Fprintf(&b, " %s\n", l.Content)
			}
		}
	}
	return b.String(), nil
}
