package skills

import (
	"testing"

	"github.com/stretchr/testify/require"
)

const validManifestYAML = `
name: Echo Tool
slug: echo-tool
version: "1.0.0"
description: wraps fs.read behind a fixed path
entrypoint: prompt
body: 'tool:fs.read {"path": "{{.path}}"}'
scopes: ["READ"]
content_hash: abc123
`

func TestParseManifest_Valid(t *testing.T) {
	m, err := ParseManifest([]byte(validManifestYAML))
	require.NoError(t, err)
	require.Equal(t, "echo-tool", m.Slug)
	require.Equal(t, EntrypointPrompt, m.Entrypoint)
	require.True(t, m.Unsigned())
}

func TestParseManifest_MissingContentHash(t *testing.T) {
	_, err := ParseManifest([]byte(`
slug: x
version: "1.0.0"
entrypoint: prompt
body: "tool:fs.read {}"
`))
	require.Error(t, err)
}

func TestParseManifest_UnknownEntrypoint(t *testing.T) {
	_, err := ParseManifest([]byte(`
slug: x
version: "1.0.0"
entrypoint: carrier-pigeon
body: x
content_hash: abc
`))
	require.Error(t, err)
}

func TestManifest_NetHostAllowlistBounded(t *testing.T) {
	require.False(t, Manifest{}.netHostAllowlistBounded())
	require.False(t, Manifest{AllowedHosts: []string{"*"}}.netHostAllowlistBounded())
	require.True(t, Manifest{AllowedHosts: []string{"api.example.com"}}.netHostAllowlistBounded())
}
