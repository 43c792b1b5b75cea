package policy

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func okMeta() StepMeta {
	return StepMeta{PathGuardOK: true}
}

func TestEvaluate_SupervisedSecureAlwaysRequiresApproval(t *testing.T) {
	e := New()
	for _, class := range []Class{ClassRead, ClassWrite, ClassExec, ClassNet} {
		v, _, err := e.Evaluate(context.Background(), Supervised, Secure, class, okMeta())
		require.NoError(t, err)
		require.Equal(t, RequireApproval, v)
	}
}

func TestEvaluate_CollaborativeSecureAllowsReadOnly(t *testing.T) {
	e := New()

	v, _, err := e.Evaluate(context.Background(), Collaborative, Secure, ClassRead, okMeta())
	require.NoError(t, err)
	require.Equal(t, Allow, v)

	v, _, err = e.Evaluate(context.Background(), Collaborative, Secure, ClassWrite, okMeta())
	require.NoError(t, err)
	require.Equal(t, RequireApproval, v)
}

func TestEvaluate_AutonomousSecureAllowsEverything(t *testing.T) {
	e := New()
	for _, class := range []Class{ClassRead, ClassWrite, ClassExec, ClassNet} {
		v, _, err := e.Evaluate(context.Background(), Autonomous, Secure, class, okMeta())
		require.NoError(t, err)
		require.Equal(t, Allow, v)
	}
}

func TestEvaluate_YoloBypassesModeRegardlessOfMode(t *testing.T) {
	e := New()
	v, _, err := e.Evaluate(context.Background(), Supervised, Yolo, ClassExec, okMeta())
	require.NoError(t, err)
	require.Equal(t, Allow, v)
}

func TestEvaluate_PathGuardFailureDeniesBeforeModeCheck(t *testing.T) {
	e := New()
	meta := StepMeta{PathGuardOK: false}
	v, reason, err := e.Evaluate(context.Background(), Autonomous, Secure, ClassRead, meta)
	require.NoError(t, err)
	require.Equal(t, Deny, v)
	require.Equal(t, "path_guard_denied", reason)
}

func TestEvaluate_UnsignedSkillExecDenied(t *testing.T) {
	e := New()
	meta := StepMeta{PathGuardOK: true, IsUnsignedSkill: true, RequestsEXEC: true}
	v, reason, err := e.Evaluate(context.Background(), Autonomous, Secure, ClassExec, meta)
	require.NoError(t, err)
	require.Equal(t, Deny, v)
	require.Equal(t, "unsigned_skill_exec", reason)
}

func TestEvaluate_UnsignedSkillUnboundedNetDenied(t *testing.T) {
	e := New()
	meta := StepMeta{PathGuardOK: true, IsUnsignedSkill: true, RequestsNET: true, NetHostAllowlistBounded: false}
	v, reason, err := e.Evaluate(context.Background(), Autonomous, Secure, ClassNet, meta)
	require.NoError(t, err)
	require.Equal(t, Deny, v)
	require.Equal(t, "unsigned_skill_unbounded_net", reason)
}

func TestEvaluate_UnsignedSkillBoundedNetAllowedUnderAutonomous(t *testing.T) {
	e := New()
	meta := StepMeta{PathGuardOK: true, IsUnsignedSkill: true, RequestsNET: true, NetHostAllowlistBounded: true}
	v, _, err := e.Evaluate(context.Background(), Autonomous, Secure, ClassNet, meta)
	require.NoError(t, err)
	require.Equal(t, Allow, v)
}

func TestEvaluate_ConnectorWriteNeedsApprovalUnderCollaborativeSecure(t *testing.T) {
	e := New()
	meta := StepMeta{PathGuardOK: true, ConnectorWrite: true}
	v, reason, err := e.Evaluate(context.Background(), Collaborative, Secure, ClassWrite, meta)
	require.NoError(t, err)
	require.Equal(t, RequireApproval, v)
	require.Equal(t, "connector_write_needs_approval", reason)
}
