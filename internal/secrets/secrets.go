// Package secrets implements the Secrets interface the Connector Mediator
// resolves credentials through (spec §4.10): "env var or local encrypted
// envelope; never persisted in the relational store."
package secrets

import (
	"context"
	"fmt"
	"os"
)

// Secrets resolves a named secret on demand. Implementations never log or
// return a key's value except to the caller that asked for it.
type Secrets interface {
	Get(ctx context.Context, key string) (string, error)
}

// EnvSecrets resolves a key by looking up an environment variable, with an
// optional prefix (e.g. "TITAN_SECRET_") so connector secrets don't
// collide with the process's general environment.
type EnvSecrets struct {
	Prefix string
}

func (e EnvSecrets) Get(_ context.Context, key string) (string, error) {
	name := e.Prefix + key
	v, ok := os.LookupEnv(name)
	if !ok {
		return "", fmt.Errorf("secret %q not set in environment (%s)", key, name)
	}
	return v, nil
}

// Chain tries each Secrets source in order, returning the first hit.
type Chain []Secrets

func (c Chain) Get(ctx context.Context, key string) (string, error) {
	var lastErr error
	for _, s := range c {
		v, err := s.Get(ctx, key)
		if err == nil {
			return v, nil
		}
		lastErr = err
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("secret %q not found: no sources configured", key)
	}
	return "", lastErr
}
