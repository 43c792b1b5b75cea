package main

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Djtony707/TITAN/internal/config"
)

// testConfig returns a Config rooted at fresh temp directories so tests
// never touch a real ~/.titan installation. Autonomy defaults to
// autonomous/secure so ad-hoc tool and skill invocations resolve without
// stalling on an approval; tests that want require-approval behavior
// override Mode/RiskMode explicitly.
func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Workspace.Root = t.TempDir()
	cfg.Store.Path = filepath.Join(t.TempDir(), "titan.db")
	cfg.Autonomy.Mode = "autonomous"
	cfg.Autonomy.RiskMode = "secure"
	return cfg
}

// useConfig points the CLI's global --config flag at cfg for the
// duration of the test, restoring the prior value on cleanup.
func useConfig(t *testing.T, cfg *config.Config) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, cfg.Save(path))

	prevCfgPath := cfgPath
	cfgPath = path
	t.Cleanup(func() { cfgPath = prevCfgPath })
}

// captureOutput swaps cmdOut for a buffer for the duration of the test.
func captureOutput(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	prev := cmdOut
	cmdOut = &buf
	t.Cleanup(func() { cmdOut = prev })
	return &buf
}

// execCmd drives rootCmd with args, the same entrypoint main() uses.
func execCmd(t *testing.T, args ...string) error {
	t.Helper()
	rootCmd.SetArgs(args)
	return rootCmd.ExecuteContext(context.Background())
}

// firstLine returns buf's first line with its trailing newline trimmed,
// the shape of a bare fmt.Println(id)-style command output.
func firstLine(t *testing.T, buf *bytes.Buffer) string {
	t.Helper()
	line, _, _ := strings.Cut(buf.String(), "\n")
	return line
}
