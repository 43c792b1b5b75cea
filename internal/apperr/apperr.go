// Package apperr implements the error taxonomy from spec §7: a closed set
// of typed errors the CLI, HTTP surface, and executor all map to a stable
// code, rather than pattern-matching error strings at each call site.
package apperr

import (
	"errors"
	"fmt"
)

// Code identifies a taxonomy bucket. CLI exit codes (spec §6) are derived
// from Code, not from the error's message.
type Code string

const (
	CodeValidation        Code = "validation"
	CodePolicyDenied      Code = "policy_denied"
	CodeApprovalTimeout   Code = "approval_timeout"
	CodeWorkspaceViolation Code = "workspace_violation"
	CodeToolTransient     Code = "tool_transient"
	CodeToolPermanent     Code = "tool_permanent"
	CodeSandboxViolation  Code = "sandbox_violation"
	CodeInvariant         Code = "invariant"
	CodeNotImplemented    Code = "not_implemented"
)

// Error is the concrete taxonomy type. Reason is a short machine-readable
// trigger ("unsigned_skill_exec", "duplicate_dedupe_key", ...) that the
// caller can surface to the originating channel without exposing internals.
type Error struct {
	Code   Code
	Reason string
	Err    error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Reason, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Reason)
}

func (e *Error) Unwrap() error { return e.Err }

func new_(code Code, reason string, err error) *Error {
	return &Error{Code: code, Reason: reason, Err: err}
}

func Validation(reason string, err error) *Error         { return new_(CodeValidation, reason, err) }
func PolicyDenied(reason string) *Error                  { return new_(CodePolicyDenied, reason, nil) }
func ApprovalTimeout(reason string) *Error                { return new_(CodeApprovalTimeout, reason, nil) }
func WorkspaceViolation(reason string, err error) *Error  { return new_(CodeWorkspaceViolation, reason, err) }
func ToolTransient(reason string, err error) *Error       { return new_(CodeToolTransient, reason, err) }
func ToolPermanent(reason string, err error) *Error       { return new_(CodeToolPermanent, reason, err) }
func SandboxViolation(reason string) *Error               { return new_(CodeSandboxViolation, reason, nil) }
func Invariant(reason string, err error) *Error           { return new_(CodeInvariant, reason, err) }
func NotImplemented(reason string) *Error                 { return new_(CodeNotImplemented, reason, nil) }

// As extracts an *Error from err, reporting whether one was found.
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// ExitCode maps a Code to the CLI exit codes from spec §6.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	e, ok := As(err)
	if !ok {
		return 4
	}
	switch e.Code {
	case CodeValidation:
		return 1
	case CodePolicyDenied, CodeWorkspaceViolation, CodeSandboxViolation:
		return 2
	case CodeApprovalTimeout:
		return 3
	default:
		return 4
	}
}

// Retryable reports whether the taxonomy bucket is eligible for the
// executor's exponential-backoff retry budget (spec §7).
func Retryable(err error) bool {
	e, ok := As(err)
	return ok && e.Code == CodeToolTransient
}
