package main

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Djtony707/TITAN/internal/store"
)

// emptyDirSHA256 is the sha256 hashDir returns for a bundle directory
// whose only file is the excluded manifest.yaml (internal/skills uses the
// same constant under a different name).
const emptyDirSHA256 = "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855"

// installSkillThroughRuntime drives the exact install path cmd_skill.go's
// skillInstallCmd calls, resolving the approval it blocks on directly
// against rt's own Approval Queue - the in-memory wake-up channel a
// second, separately-bootstrapped CLI invocation could never reach.
func installSkillThroughRuntime(t *testing.T, rt *runtime, bundleDir string) store.InstalledSkill {
	t.Helper()
	ctx := context.Background()

	type result struct {
		sk  store.InstalledSkill
		err error
	}
	done := make(chan result, 1)
	go func() {
		sk, err := rt.installer.Install(ctx, bundleDir, time.Minute)
		done <- result{sk, err}
	}()

	var approvalID string
	require.Eventually(t, func() bool {
		pending, err := rt.st.ListPendingApprovals(ctx)
		if err != nil || len(pending) == 0 {
			return false
		}
		approvalID = pending[0].ID
		return true
	}, 2*time.Second, 10*time.Millisecond)

	claimed, err := rt.approvals.Resolve(ctx, approvalID, "tester", store.DecisionApproved, "looks fine")
	require.NoError(t, err)
	require.True(t, claimed)

	res := <-done
	require.NoError(t, res.err)
	return res.sk
}

func TestSkillInstallListRunLockfileRemove(t *testing.T) {
	cfg := testConfig(t)

	bundleDir := filepath.Join(t.TempDir(), "echo-skill")
	require.NoError(t, os.MkdirAll(bundleDir, 0o755))
	manifestYAML := `
slug: echo-tool
version: "1.0.0"
entrypoint: prompt
body: 'tool:fs.list {"path": "."}'
scopes: ["READ"]
content_hash: ` + emptyDirSHA256 + `
`
	require.NoError(t, os.WriteFile(filepath.Join(bundleDir, "manifest.yaml"), []byte(manifestYAML), 0o644))

	rt, err := bootstrap(context.Background(), cfg)
	require.NoError(t, err)
	sk := installSkillThroughRuntime(t, rt, bundleDir)
	require.Equal(t, "echo-tool", sk.Slug)
	rt.Close()

	useConfig(t, cfg)
	out := captureOutput(t)

	require.NoError(t, execCmd(t, "skill", "list"))
	var listed []store.InstalledSkill
	require.NoError(t, json.Unmarshal(out.Bytes(), &listed))
	require.Len(t, listed, 1)
	require.Equal(t, "echo-tool", listed[0].Slug)

	out.Reset()
	require.NoError(t, execCmd(t, "skill", "inspect", "echo-tool"))
	var inspected store.InstalledSkill
	require.NoError(t, json.Unmarshal(out.Bytes(), &inspected))
	require.Equal(t, "echo-tool", inspected.Slug)

	out.Reset()
	skillArgsJSON = ""
	require.NoError(t, execCmd(t, "skill", "run", "echo-tool"))
	require.NotEmpty(t, out.String())

	out.Reset()
	require.NoError(t, execCmd(t, "skill", "lockfile"))
	var lockfile []store.SkillLockEntry
	require.NoError(t, json.Unmarshal(out.Bytes(), &lockfile))
	require.Len(t, lockfile, 1)

	require.NoError(t, execCmd(t, "skill", "remove", "echo-tool"))
}

func TestSkillSearchUpdateDoctorValidate_NotImplemented(t *testing.T) {
	cfg := testConfig(t)
	useConfig(t, cfg)
	_ = captureOutput(t)

	require.Error(t, execCmd(t, "skill", "search", "anything"))
	require.Error(t, execCmd(t, "skill", "update", "echo-tool"))
	require.Error(t, execCmd(t, "skill", "doctor", "echo-tool"))
	require.Error(t, execCmd(t, "skill", "validate", "/tmp/whatever"))
}
