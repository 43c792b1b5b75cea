// Package skills implements the Skill Runtime (spec §4.6): manifest
// parsing, the approval-gated install flow, and execution of installed
// skill bundles through the Tool Broker or a capability-restricted
// interpreter sandbox.
package skills

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// EntrypointKind is how a skill's body is executed.
type EntrypointKind string

const (
	EntrypointPrompt     EntrypointKind = "prompt"
	EntrypointHTTP       EntrypointKind = "http"
	EntrypointWasm       EntrypointKind = "wasm"
	EntrypointScriptStub EntrypointKind = "script-stub"
)

// Manifest is a skill bundle's declared identity and capability footprint
// (spec §4.6: "a directory bundle with a manifest").
type Manifest struct {
	Name        string         `yaml:"name"`
	Slug        string         `yaml:"slug"`
	Version     string         `yaml:"version"`
	Description string         `yaml:"description"`
	Entrypoint  EntrypointKind `yaml:"entrypoint"`

	// Body is entrypoint-specific: for `prompt`, the tool-call template
	// rewritten to `tool:<name> <args>`; for `wasm`, the relative path to
	// the interpreted source within the bundle.
	Body string `yaml:"body"`

	Scopes       []string `yaml:"scopes"`
	AllowedPaths []string `yaml:"allowed_paths"`
	AllowedHosts []string `yaml:"allowed_hosts"`

	// SignaturePublicKeyID names the trust-store key the registry-declared
	// signature is checked against. Empty means the bundle is unsigned.
	SignaturePublicKeyID string `yaml:"signature_public_key_id"`
	Signature             string `yaml:"signature"`

	// ContentHash is the registry-declared hash verified over the staged
	// bundle (spec §4.6 step 3, required unconditionally).
	ContentHash string `yaml:"content_hash"`
}

// ParseManifest decodes a manifest.yaml's bytes and validates the required
// fields are present.
func ParseManifest(data []byte) (Manifest, error) {
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return Manifest{}, fmt.Errorf("parse skill manifest: %w", err)
	}
	if err := m.Validate(); err != nil {
		return Manifest{}, err
	}
	return m, nil
}

// Validate checks the manifest declares everything the install flow and
// executor depend on.
func (m Manifest) Validate() error {
	if m.Slug == "" {
		return fmt.Errorf("skill manifest: slug is required")
	}
	if m.Version == "" {
		return fmt.Errorf("skill manifest: version is required")
	}
	if m.ContentHash == "" {
		return fmt.Errorf("skill manifest: content_hash is required")
	}
	switch m.Entrypoint {
	case EntrypointPrompt, EntrypointHTTP, EntrypointWasm, EntrypointScriptStub:
	default:
		return fmt.Errorf("skill manifest: unknown entrypoint kind %q", m.Entrypoint)
	}
	if m.Body == "" {
		return fmt.Errorf("skill manifest: body is required")
	}
	return nil
}

// Unsigned reports whether the manifest carries no verifiable signature.
func (m Manifest) Unsigned() bool {
	return m.SignaturePublicKeyID == "" || m.Signature == ""
}

// netHostAllowlistBounded reports whether the manifest's host list is
// non-empty and contains no wildcard entry (spec §4.6 default-deny rule).
func (m Manifest) netHostAllowlistBounded() bool {
	if len(m.AllowedHosts) == 0 {
		return false
	}
	for _, h := range m.AllowedHosts {
		if h == "*" {
			return false
		}
	}
	return true
}

func (m Manifest) requestsScope(scope string) bool {
	for _, s := range m.Scopes {
		if s == scope {
			return true
		}
	}
	return false
}
