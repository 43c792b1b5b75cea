// Package ids provides the opaque identifiers and content digests shared by
// every entity in spec §3 (grounded on the teacher's pervasive use of
// google/uuid for entity identity throughout internal/core and internal/session).
package ids

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"

	"github.com/google/uuid"
)

// New returns a fresh opaque identifier.
func New() string {
	return uuid.New().String()
}

// Digest returns a stable hex digest of v, used for Step.ArgsDigest and
// Plan candidate tie-breaks (spec §4.7: "lexicographic on candidate
// digest"). Map keys are marshaled in sorted order by encoding/json, which
// is what makes this deterministic across runs.
func Digest(v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:]), nil
}
