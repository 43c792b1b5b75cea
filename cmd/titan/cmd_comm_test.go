package main

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestCommSend_TimesOutWithoutHangingForever(t *testing.T) {
	cfg := testConfig(t)
	useConfig(t, cfg)
	out := captureOutput(t)

	commTimeout = 50 * time.Millisecond
	defer func() { commTimeout = 2 * time.Minute }()

	require.NoError(t, execCmd(t, "comm", "send", "#general", "list the workspace root"))
	require.NotEmpty(t, out.String())
}

func TestCommListStatus_NotImplemented(t *testing.T) {
	cfg := testConfig(t)
	useConfig(t, cfg)
	_ = captureOutput(t)

	require.Error(t, execCmd(t, "comm", "list"))
	require.Error(t, execCmd(t, "comm", "status"))
}
