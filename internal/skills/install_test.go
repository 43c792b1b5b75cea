package skills

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Djtony707/TITAN/internal/approval"
	"github.com/Djtony707/TITAN/internal/llm"
	"github.com/Djtony707/TITAN/internal/store"
	"github.com/Djtony707/TITAN/internal/workspace"
)

// emptySHA256 is the sha256 of zero bytes — what hashDir returns for a
// bundle whose only file is the excluded manifest.yaml.
const emptySHA256 = "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855"

func newTestInstaller(t *testing.T) (*Installer, *workspace.Guard, string) {
	t.Helper()
	root := t.TempDir()
	guard, err := workspace.New(root)
	require.NoError(t, err)

	st, err := store.Open(filepath.Join(t.TempDir(), "titan.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	q := approval.New(st)
	t.Cleanup(q.Close)

	return NewInstaller(guard, q, st, nil, nil), guard, root
}

func writeBundle(t *testing.T, dir, manifestYAML string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "manifest.yaml"), []byte(manifestYAML), 0o644))
}

func TestInstaller_InstallApproved(t *testing.T) {
	in, _, _ := newTestInstaller(t)
	bundleDir := t.TempDir()
	writeBundle(t, bundleDir, `
slug: echo-tool
version: "1.0.0"
entrypoint: prompt
body: 'tool:fs.read {"path": "{{.path}}"}'
scopes: ["READ"]
content_hash: `+emptySHA256+`
`)

	resultCh := make(chan struct {
		sk  store.InstalledSkill
		err error
	}, 1)
	go func() {
		sk, err := in.Install(context.Background(), bundleDir, time.Second)
		resultCh <- struct {
			sk  store.InstalledSkill
			err error
		}{sk, err}
	}()

	var approvalID string
	require.Eventually(t, func() bool {
		pending, err := in.st.ListPendingApprovals(context.Background())
		require.NoError(t, err)
		if len(pending) == 0 {
			return false
		}
		approvalID = pending[0].ID
		return true
	}, 2*time.Second, 10*time.Millisecond)

	claimed, err := in.approvals.Resolve(context.Background(), approvalID, "tester", store.DecisionApproved, "ok")
	require.NoError(t, err)
	require.True(t, claimed)

	select {
	case r := <-resultCh:
		require.NoError(t, r.err)
		require.Equal(t, "echo-tool", r.sk.Slug)
		require.Equal(t, store.SignatureUnsigned, r.sk.SignatureStatus)
	case <-time.After(3 * time.Second):
		t.Fatal("install never returned after approval")
	}
}

func TestInstaller_AttachesReviewNoteWhenReviewerConfigured(t *testing.T) {
	root := t.TempDir()
	guard, err := workspace.New(root)
	require.NoError(t, err)
	st, err := store.Open(filepath.Join(t.TempDir(), "titan.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	q := approval.New(st)
	t.Cleanup(q.Close)

	in := NewInstaller(guard, q, st, nil, llm.NewFake("test-reviewer"))

	bundleDir := t.TempDir()
	writeBundle(t, bundleDir, `
slug: reviewed-tool
version: "1.0.0"
entrypoint: prompt
body: 'tool:fs.read {"path": "{{.path}}"}'
description: "Reads a file from the workspace."
scopes: ["READ"]
content_hash: `+emptySHA256+`
`)

	resultCh := make(chan error, 1)
	go func() {
		_, err := in.Install(context.Background(), bundleDir, time.Second)
		resultCh <- err
	}()

	var approvalID string
	require.Eventually(t, func() bool {
		pending, err := st.ListPendingApprovals(context.Background())
		require.NoError(t, err)
		if len(pending) == 0 {
			return false
		}
		approvalID = pending[0].ID
		return true
	}, 2*time.Second, 10*time.Millisecond)

	require.Eventually(t, func() bool {
		a, err := st.GetApproval(context.Background(), approvalID)
		require.NoError(t, err)
		return a.SummaryNote != ""
	}, 2*time.Second, 10*time.Millisecond, "install should attach a review note before awaiting the decision")

	claimed, err := q.Resolve(context.Background(), approvalID, "tester", store.DecisionApproved, "ok")
	require.NoError(t, err)
	require.True(t, claimed)

	require.NoError(t, <-resultCh)
}

func TestInstaller_ContentHashMismatchRejected(t *testing.T) {
	in, _, _ := newTestInstaller(t)
	bundleDir := t.TempDir()
	writeBundle(t, bundleDir, `
slug: bad-hash
version: "1.0.0"
entrypoint: prompt
body: "tool:fs.read {}"
content_hash: deadbeef
`)

	_, err := in.Install(context.Background(), bundleDir, time.Second)
	require.Error(t, err)
}

func TestInstaller_UnsignedExecRejectedAtInstall(t *testing.T) {
	in, _, _ := newTestInstaller(t)
	bundleDir := t.TempDir()
	writeBundle(t, bundleDir, `
slug: needs-exec
version: "1.0.0"
entrypoint: prompt
body: "tool:proc.exec {}"
scopes: ["EXEC"]
content_hash: `+emptySHA256+`
`)

	_, err := in.Install(context.Background(), bundleDir, time.Second)
	require.Error(t, err)
}

func TestInstaller_UnsignedUnboundedNetRejectedAtInstall(t *testing.T) {
	in, _, _ := newTestInstaller(t)
	bundleDir := t.TempDir()
	writeBundle(t, bundleDir, `
slug: needs-net
version: "1.0.0"
entrypoint: prompt
body: "tool:http.get {}"
scopes: ["NET"]
allowed_hosts: ["*"]
content_hash: `+emptySHA256+`
`)

	_, err := in.Install(context.Background(), bundleDir, time.Second)
	require.Error(t, err)
}
