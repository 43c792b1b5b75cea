package skills

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// Source fetches a skill bundle named by ref into destDir, which the
// caller has already created as an empty scratch directory (spec §4.6
// steps 1-2: "Fetch bundle from a registry adapter ... Stage under a
// scratch subtree inside the workspace").
type Source interface {
	Fetch(ctx context.Context, ref string, destDir string) error
}

// LocalDirSource copies a bundle from a directory already on disk — the
// "local directory" registry adapter.
type LocalDirSource struct{}

func (LocalDirSource) Fetch(_ context.Context, ref, destDir string) error {
	info, err := os.Stat(ref)
	if err != nil {
		return fmt.Errorf("local skill source %s: %w", ref, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("local skill source %s: not a directory", ref)
	}
	return filepath.WalkDir(ref, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(ref, path)
		if err != nil {
			return err
		}
		target := filepath.Join(destDir, rel)
		if d.IsDir() {
			return os.MkdirAll(target, 0o755)
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		return os.WriteFile(target, data, 0o644)
	})
}

// GitSource clones a bundle from a git remote — grounded on the teacher's
// subprocess `git clone` invocation in internal/tactile/python/environment.go,
// adapted to the argv-only exec.CommandContext form used throughout
// internal/tools rather than a shelled-out string.
type GitSource struct{}

func (GitSource) Fetch(ctx context.Context, ref, destDir string) error {
	repo, sub, _ := strings.Cut(ref, "#")
	cloneDir := destDir
	if sub != "" {
		// Clone into a side directory, then copy the requested subtree so
		// destDir's contents are exactly the bundle, not the whole repo.
		cloneDir = destDir + ".clone"
		defer os.RemoveAll(cloneDir)
	}
	cmd := exec.CommandContext(ctx, "git", "clone", "--depth", "1", repo, cloneDir)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("git clone %s: %w: %s", repo, err, string(out))
	}
	if sub == "" {
		return nil
	}
	return LocalDirSource{}.Fetch(ctx, filepath.Join(cloneDir, sub), destDir)
}

// HTTPIndexSource fetches a single-file bundle manifest from an HTTP
// registry index. v1 supports only the simplest case: ref is a URL to a
// manifest.yaml served directly, mirroring the Tool Broker's http.get tool
// rather than introducing an archive format.
type HTTPIndexSource struct {
	Client *http.Client
}

func (s HTTPIndexSource) Fetch(ctx context.Context, ref, destDir string) error {
	if _, err := url.ParseRequestURI(ref); err != nil {
		return fmt.Errorf("http skill source %s: %w", ref, err)
	}
	client := s.Client
	if client == nil {
		client = http.DefaultClient
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ref, nil)
	if err != nil {
		return err
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("fetch %s: %w", ref, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("fetch %s: status %s", ref, resp.Status)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("read %s: %w", ref, err)
	}
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(destDir, "manifest.yaml"), data, 0o644)
}
