package tools

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"
)

// RegisterFilesystemTools adds the workspace-local READ/WRITE tools to reg:
// directory listing, file read, text search, file write, and patch apply
// (spec §4.5 "built-in tool catalogue"). Every path argument is listed in
// PathArgs so the Tool Broker canonicalizes it through the Path Guard
// before Execute ever sees it.
func RegisterFilesystemTools(reg *Registry) {
	reg.MustRegister(&Tool{
		Name:             "fs.list",
		Description:      "List the entries of a directory inside the workspace.",
		Capability:       CapabilityRead,
		TouchesWorkspace: true,
		Idempotency:      Idempotent,
		PathArgs:         []string{"path"},
		Schema: Schema{
			Required: []string{"path"},
			Properties: map[string]Property{
				"path": {Type: "string", Description: "directory to list"},
			},
		},
		Execute: executeListDir,
	})

	reg.MustRegister(&Tool{
		Name:             "fs.read",
		Description:      "Read a file's contents from inside the workspace.",
		Capability:       CapabilityRead,
		TouchesWorkspace: true,
		Idempotency:      Idempotent,
		PathArgs:         []string{"path"},
		Schema: Schema{
			Required: []string{"path"},
			Properties: map[string]Property{
				"path": {Type: "string", Description: "file to read"},
			},
		},
		Execute: executeReadFile,
	})

	reg.MustRegister(&Tool{
		Name:             "fs.search",
		Description:      "Search file contents under a directory for a literal substring.",
		Capability:       CapabilityRead,
		TouchesWorkspace: true,
		Idempotency:      Idempotent,
		PathArgs:         []string{"path"},
		Schema: Schema{
			Required: []string{"path", "query"},
			Properties: map[string]Property{
				"path":  {Type: "string", Description: "directory to search under"},
				"query": {Type: "string", Description: "literal substring to search for"},
			},
		},
		Execute: executeSearch,
	})

	reg.MustRegister(&Tool{
		Name:                  "fs.write",
		Description:           "Write (create or overwrite) a file inside the workspace.",
		Capability:            CapabilityWrite,
		TouchesWorkspace:      true,
		Idempotency:           Idempotent,
		PathArgs:              []string{"path"},
		RequiresPathExclusion: true,
		Schema: Schema{
			Required: []string{"path", "content"},
			Properties: map[string]Property{
				"path":    {Type: "string", Description: "file to write"},
				"content": {Type: "string", Description: "full file contents"},
			},
		},
		Execute: executeWriteFile,
	})

	reg.MustRegister(&Tool{
		Name:                  "fs.patch",
		Description:           "Apply a unified diff patch to a file inside the workspace.",
		Capability:            CapabilityWrite,
		TouchesWorkspace:      true,
		Idempotency:           NonIdempotent,
		PathArgs:              []string{"path"},
		RequiresPathExclusion: true,
		Schema: Schema{
			Required: []string{"path", "patch"},
			Properties: map[string]Property{
				"path":  {Type: "string", Description: "file to patch"},
				"patch": {Type: "string", Description: "unified diff text"},
			},
		},
		Execute: executeApplyPatch,
	})
}

func executeListDir(_ context.Context, args map[string]any) (string, error) {
	path, _ := args["path"].(string)
	entries, err := os.ReadDir(path)
	if err != nil {
		return "", fmt.Errorf("list dir: %w", err)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	var b strings.Builder
	for _, e := range entries {
		if e.IsDir() {
			fmt.Fprintf(&b, "%s/\n", e.Name())
		} else {
			fmt.Fprintf(&b, "%s\n", e.Name())
		}
	}
	return b.String(), nil
}

func executeReadFile(_ context.Context, args map[string]any) (string, error) {
	path, _ := args["path"].(string)
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read file: %w", err)
	}
	return string(data), nil
}

func executeSearch(_ context.Context, args map[string]any) (string, error) {
	root, _ := args["path"].(string)
	query, _ := args["query"].(string)
	if query == "" {
		return "", fmt.Errorf("search: empty query")
	}

	var b strings.Builder
	err := filepath.WalkDir(root, func(p string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		f, err := os.Open(p)
		if err != nil {
			return nil // unreadable file, skip rather than abort the whole search
		}
		defer f.Close()

		scanner := bufio.NewScanner(f)
		lineNo := 0
		for scanner.Scan() {
			lineNo++
			if strings.Contains(scanner.Text(), query) {
				fmt.Fprintf(&b, "%s:%d:%s\n", p, lineNo, scanner.Text())
			}
		}
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("search: %w", err)
	}
	return b.String(), nil
}

func executeWriteFile(_ context.Context, args map[string]any) (string, error) {
	path, _ := args["path"].(string)
	content, _ := args["content"].(string)

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("write file: %w", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return "", fmt.Errorf("write file: %w", err)
	}
	return fmt.Sprintf("wrote %d bytes to %s", len(content), path), nil
}

func executeApplyPatch(_ context.Context, args map[string]any) (string, error) {
	path, _ := args["path"].(string)
	patchText, _ := args["patch"].(string)

	original, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("apply patch: read original: %w", err)
	}

	dmp := diffmatchpatch.New()
	patches, err := dmp.PatchFromText(patchText)
	if err != nil {
		return "", fmt.Errorf("apply patch: parse: %w", err)
	}

	patched, applied := dmp.PatchApply(patches, string(original))
	for i, ok := range applied {
		if !ok {
			return "", fmt.Errorf("apply patch: hunk %d did not apply cleanly", i)
		}
	}

	if err := os.WriteFile(path, []byte(patched), 0o644); err != nil {
		return "", fmt.Errorf("apply patch: write: %w", err)
	}
	return fmt.Sprintf("applied %d hunk(s) to %s", len(patches), path), nil
}
