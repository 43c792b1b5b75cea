// Package workspace implements the Path Guard & Workspace Sentinel (spec
// §4.1): the single canonicalization and boundary-enforcement surface every
// filesystem-touching tool call passes through.
package workspace

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/Djtony707/TITAN/internal/apperr"
)

// Intent describes why a path is being resolved, since read and write
// access carry different escape-tolerance in some tool classes.
type Intent string

const (
	IntentRead  Intent = "read"
	IntentWrite Intent = "write"
)

// Guard holds the process-wide workspace root and validates every path
// reference against it. Tools never call the OS path normalizer directly.
type Guard struct {
	root string
}

// New canonicalizes rootDir and returns a Guard rooted at it.
func New(rootDir string) (*Guard, error) {
	abs, err := filepath.Abs(rootDir)
	if err != nil {
		return nil, fmt.Errorf("resolve workspace root: %w", err)
	}
	canon, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return nil, fmt.Errorf("canonicalize workspace root: %w", err)
	}
	return &Guard{root: canon}, nil
}

// Root returns the canonical workspace root.
func (g *Guard) Root() string {
	return g.root
}

// CanonPath is a path that has passed validation: known to be an
// absolute, symlink-resolved descendant of the workspace root.
type CanonPath string

// String returns the underlying path.
func (p CanonPath) String() string {
	return string(p)
}

// Validate resolves raw (absolute or workspace-relative), canonicalizes it,
// and verifies it is a prefix-descendant of the workspace root (spec §4.1
// contract: "validate_path(raw, intent) -> CanonPath | Error").
//
// A path that does not yet exist is permitted for IntentWrite (the write
// target may not be created yet); its nearest existing ancestor must still
// resolve inside the root. A read target that does not exist is rejected.
func (g *Guard) Validate(raw string, intent Intent) (CanonPath, error) {
	if raw == "" {
		return "", apperr.Validation("empty_path", nil)
	}

	candidate := raw
	if !filepath.IsAbs(candidate) {
		candidate = filepath.Join(g.root, candidate)
	}
	candidate = filepath.Clean(candidate)

	canon, err := g.resolveExisting(candidate, intent)
	if err != nil {
		return "", err
	}

	if !g.isDescendant(canon) {
		return "", apperr.WorkspaceViolation("path_escapes_workspace", fmt.Errorf("%s resolves outside %s", raw, g.root))
	}
	return CanonPath(canon), nil
}

// resolveExisting walks candidate's existing prefix through EvalSymlinks,
// then rejoins the non-existent suffix (relevant for IntentWrite targets
// that don't exist yet).
func (g *Guard) resolveExisting(candidate string, intent Intent) (string, error) {
	if resolved, err := filepath.EvalSymlinks(candidate); err == nil {
		return resolved, nil
	} else if !os.IsNotExist(err) {
		return "", apperr.WorkspaceViolation("path_not_resolvable", err)
	} else if intent == IntentRead {
		return "", apperr.WorkspaceViolation("path_not_found", err)
	}

	// Walk up to the nearest existing ancestor, resolve it, and rejoin the
	// remaining (not-yet-created) suffix untouched.
	dir, base := filepath.Split(candidate)
	dir = filepath.Clean(dir)
	if dir == candidate {
		return "", apperr.WorkspaceViolation("path_not_found", fmt.Errorf("no existing ancestor for %s", candidate))
	}
	resolvedDir, err := g.resolveExisting(dir, intent)
	if err != nil {
		return "", err
	}
	return filepath.Join(resolvedDir, base), nil
}

func (g *Guard) isDescendant(canon string) bool {
	if canon == g.root {
		return true
	}
	rel, err := filepath.Rel(g.root, canon)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}
