package main

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Djtony707/TITAN/internal/store"
)

func TestJobAddRequiresExactlyOneSchedule(t *testing.T) {
	cfg := testConfig(t)
	useConfig(t, cfg)
	_ = captureOutput(t)

	jobInterval, jobCron = "", ""
	err := execCmd(t, "job", "add", "nightly", "clean up stale files")
	require.Error(t, err)

	jobInterval, jobCron = "1h", "0 9 * * *"
	defer func() { jobInterval, jobCron = "", "" }()
	err = execCmd(t, "job", "add", "nightly", "clean up stale files")
	require.Error(t, err)
}

func TestJobAddListShowPauseResumeRunNowRemove(t *testing.T) {
	cfg := testConfig(t)
	useConfig(t, cfg)
	out := captureOutput(t)

	jobInterval = "1h"
	defer func() { jobInterval = "" }()
	require.NoError(t, execCmd(t, "job", "add", "nightly", "list the workspace root"))
	jobID := firstLine(t, out)
	require.NotEmpty(t, jobID)

	out.Reset()
	require.NoError(t, execCmd(t, "job", "list"))
	var jobs []store.Job
	require.NoError(t, json.Unmarshal(out.Bytes(), &jobs))
	require.Len(t, jobs, 1)
	require.Equal(t, jobID, jobs[0].ID)

	out.Reset()
	require.NoError(t, execCmd(t, "job", "show", jobID))
	var shown map[string]any
	require.NoError(t, json.Unmarshal(out.Bytes(), &shown))
	require.Contains(t, shown, "job")
	require.Contains(t, shown, "runs")

	require.NoError(t, execCmd(t, "job", "pause", jobID))
	require.NoError(t, execCmd(t, "job", "resume", jobID))

	out.Reset()
	require.NoError(t, execCmd(t, "job", "run-now", jobID))
	require.NotEmpty(t, firstLine(t, out))

	require.NoError(t, execCmd(t, "job", "remove", jobID))
}
