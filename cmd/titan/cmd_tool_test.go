package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestToolRun_FSList(t *testing.T) {
	cfg := testConfig(t)
	require.NoError(t, os.WriteFile(filepath.Join(cfg.Workspace.Root, "hello.txt"), []byte("hi"), 0o644))
	useConfig(t, cfg)
	out := captureOutput(t)

	toolInputJSON = `{"path": "."}`
	defer func() { toolInputJSON = "" }()

	require.NoError(t, execCmd(t, "tool", "run", "fs.list"))
	require.Contains(t, out.String(), "hello.txt")
}

func TestToolRun_MissingRequiredArg(t *testing.T) {
	cfg := testConfig(t)
	useConfig(t, cfg)
	_ = captureOutput(t)

	toolInputJSON = ""
	err := execCmd(t, "tool", "run", "fs.list")
	require.Error(t, err)
}

func TestToolRun_MalformedInputJSON(t *testing.T) {
	cfg := testConfig(t)
	useConfig(t, cfg)
	_ = captureOutput(t)

	toolInputJSON = "{not json"
	defer func() { toolInputJSON = "" }()
	err := execCmd(t, "tool", "run", "fs.list")
	require.Error(t, err)
	require.Contains(t, err.Error(), "malformed_tool_input")
}

func TestToolRun_UnknownTool(t *testing.T) {
	cfg := testConfig(t)
	useConfig(t, cfg)
	_ = captureOutput(t)

	toolInputJSON = ""
	err := execCmd(t, "tool", "run", "no.such.tool")
	require.Error(t, err)
}
