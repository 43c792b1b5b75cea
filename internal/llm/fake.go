package llm

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"strings"
)

// fakeClient is the default Client: a deterministic stand-in for a real
// provider. It never calls out to a network and never varies its output for
// the same input, so callers (and their tests) can depend on its responses
// without recording cassettes or seeding a mock.
type fakeClient struct {
	model string
}

// NewFake returns a Client whose responses are a deterministic function of
// the request text, labeled with model. It is what New returns for the
// "fake" provider (and for an unset provider, since "fake" is the default).
func NewFake(model string) Client {
	return &fakeClient{model: model}
}

// Complete summarizes req.UserPrompt (and, if present, req.SystemPrompt)
// into a short synthetic response. The summary is derived from the prompt's
// own content (its length and a stable digest), never from wall-clock time
// or randomness, so repeated calls with the same request produce byte-
// identical responses.
func (f *fakeClient) Complete(_ context.Context, req Request) (Response, error) {
	digest := sha256.Sum256([]byte(req.SystemPrompt + "\x00" + req.UserPrompt))
	tag := fmt.Sprintf("%08x", binary.BigEndian.Uint32(digest[:4]))

	var b strings.Builder
	fmt.Fprintf(&b, "[fake:%s/%s] ", f.model, tag)
	if req.SystemPrompt != "" {
		fmt.Fprintf(&b, "(system: %s) ", truncate(req.SystemPrompt, 80))
	}
	b.WriteString(truncate(req.UserPrompt, 400))

	return Response{
		Text:       b.String(),
		StopReason: "end_turn",
		Usage: Usage{
			InputTokens:  len(req.SystemPrompt) + len(req.UserPrompt),
			OutputTokens: b.Len(),
			TotalTokens:  len(req.SystemPrompt) + len(req.UserPrompt) + b.Len(),
		},
	}, nil
}

func truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
