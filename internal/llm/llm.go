// Package llm defines TITAN's provider-agnostic language model boundary: a
// narrow request/response interface any concrete provider can implement,
// plus a deterministic in-process fake used as the default and throughout
// tests. No concrete provider SDK is vendored (SPEC_FULL.md DOMAIN STACK: the
// spec treats LLM providers as external collaborators "specified only by
// their request/response shape").
//
// Grounded on the teacher's types.LLMClient (Complete/CompleteWithSystem/
// CompleteWithTools, ToolDefinition, LLMToolResponse) - narrowed to the one
// shape TITAN's core actually calls today (the Planner is deterministic
// for v1 and never calls this interface; it exists so a future LLM-assisted
// planning or summarization pass has a ready-made seam, and so the Skill
// Runtime's installer can request a natural-language bundle review).
package llm

import (
	"context"

	"github.com/Djtony707/TITAN/internal/apperr"
)

// ToolDefinition describes one tool a provider may be offered for
// tool-calling completions.
type ToolDefinition struct {
	Name        string
	Description string
	InputSchema map[string]any
}

// ToolCall is one tool invocation a provider's response requested.
type ToolCall struct {
	ID    string
	Name  string
	Input map[string]any
}

// Usage reports token accounting for a single completion.
type Usage struct {
	InputTokens  int
	OutputTokens int
	TotalTokens  int
}

// Request is one completion call.
type Request struct {
	SystemPrompt string
	UserPrompt   string
	Tools        []ToolDefinition
}

// Response is a provider's answer to a Request.
type Response struct {
	Text       string
	ToolCalls  []ToolCall
	StopReason string
	Usage      Usage
}

// Client is the interface every provider (and the fake) implements.
type Client interface {
	Complete(ctx context.Context, req Request) (Response, error)
}

// New resolves a Client from config.LLMConfig's provider name. "fake" (the
// default) returns a deterministic in-process Client; any other name
// returns apperr.NotImplemented, since no concrete provider SDK is vendored
// (matching the Non-goal of not owning the LLM layer).
func New(provider, model string) (Client, error) {
	switch provider {
	case "", "fake":
		return NewFake(model), nil
	default:
		return nil, apperr.NotImplemented("llm_provider_not_vendored: " + provider)
	}
}
