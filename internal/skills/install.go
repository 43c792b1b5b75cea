package skills

import (
	"context"
	"crypto/ed25519"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/Djtony707/TITAN/internal/apperr"
	"github.com/Djtony707/TITAN/internal/approval"
	"github.com/Djtony707/TITAN/internal/llm"
	"github.com/Djtony707/TITAN/internal/logging"
	"github.com/Djtony707/TITAN/internal/store"
	"github.com/Djtony707/TITAN/internal/workspace"
)

// TrustStore resolves a manifest's declared public-key id to an ed25519
// public key for optional signature verification (spec §4.6 step 4).
type TrustStore interface {
	PublicKey(keyID string) (ed25519.PublicKey, bool)
}

// MapTrustStore is the simplest TrustStore: a fixed, in-memory key set
// loaded once at boot from config (spec's "trust store keyed by the
// manifest's public-key id").
type MapTrustStore map[string]ed25519.PublicKey

func (m MapTrustStore) PublicKey(keyID string) (ed25519.PublicKey, bool) {
	k, ok := m[keyID]
	return k, ok
}

// Installer runs the approval-gated install flow (spec §4.6 steps 1-6).
type Installer struct {
	guard     *workspace.Guard
	approvals *approval.Queue
	st        *store.Store
	trust     TrustStore
	reviewer  llm.Client
	sources   map[string]Source
}

// NewInstaller constructs an Installer. trust may be nil, in which case
// signature verification is skipped and every bundle is treated as
// unsigned for policy purposes. reviewer may be nil, in which case no
// bundle-review summary is attached to the install approval.
func NewInstaller(guard *workspace.Guard, approvals *approval.Queue, st *store.Store, trust TrustStore, reviewer llm.Client) *Installer {
	return &Installer{
		guard:     guard,
		approvals: approvals,
		st:        st,
		trust:     trust,
		reviewer:  reviewer,
		sources: map[string]Source{
			"local": LocalDirSource{},
			"git":   GitSource{},
			"http":  HTTPIndexSource{},
		},
	}
}

// sourceFor splits a "scheme:rest" ref into its adapter and the adapter-
// specific reference string. A ref with no scheme prefix is treated as a
// local path.
func (in *Installer) sourceFor(ref string) (Source, string, error) {
	scheme, rest, ok := strings.Cut(ref, ":")
	if !ok {
		return in.sources["local"], ref, nil
	}
	src, ok := in.sources[scheme]
	if !ok {
		return nil, "", fmt.Errorf("unknown skill source scheme %q", scheme)
	}
	return src, rest, nil
}

// Install runs the full install flow for ref and blocks until the
// resulting approval is resolved. A denied or expired approval returns an
// error and leaves nothing installed.
func (in *Installer) Install(ctx context.Context, ref string, approvalTTL time.Duration) (store.InstalledSkill, error) {
	log := logging.For(logging.CategorySkills).Sugar()

	src, adapterRef, err := in.sourceFor(ref)
	if err != nil {
		return store.InstalledSkill{}, apperr.Validation("unknown_skill_source", err)
	}

	// 2. Stage under a scratch subtree inside the workspace.
	stageRoot, err := in.guard.Validate(filepath.Join(".titan", "skill-stage", fmt.Sprintf("%d", time.Now().UnixNano())), workspace.IntentWrite)
	if err != nil {
		return store.InstalledSkill{}, err
	}
	stageDir := stageRoot.String()
	defer os.RemoveAll(stageDir)

	if err := os.MkdirAll(stageDir, 0o755); err != nil {
		return store.InstalledSkill{}, fmt.Errorf("create stage dir: %w", err)
	}

	// 1. Fetch bundle from the registry adapter.
	if err := src.Fetch(ctx, adapterRef, stageDir); err != nil {
		return store.InstalledSkill{}, apperr.ToolTransient("skill_fetch_failed", err)
	}

	manifestPath := filepath.Join(stageDir, "manifest.yaml")
	data, err := os.ReadFile(manifestPath)
	if err != nil {
		return store.InstalledSkill{}, apperr.Validation("manifest_missing", err)
	}
	manifest, err := ParseManifest(data)
	if err != nil {
		return store.InstalledSkill{}, apperr.Validation("manifest_invalid", err)
	}

	// 3. Verify the registry-declared content hash over the staged bundle.
	bundleHash, err := hashDir(stageDir)
	if err != nil {
		return store.InstalledSkill{}, fmt.Errorf("hash staged bundle: %w", err)
	}
	if bundleHash != manifest.ContentHash {
		return store.InstalledSkill{}, apperr.WorkspaceViolation("content_hash_mismatch",
			fmt.Errorf("staged bundle hash %s does not match manifest-declared %s", bundleHash, manifest.ContentHash))
	}

	// 4. Optionally verify an asymmetric signature against the trust store.
	sig := store.SignatureUnsigned
	if !manifest.Unsigned() && in.trust != nil {
		ok, err := verifySignature(in.trust, manifest, data)
		if err != nil {
			return store.InstalledSkill{}, fmt.Errorf("verify skill signature: %w", err)
		}
		if ok {
			sig = store.SignatureValid
		} else {
			sig = store.SignatureInvalid
		}
	}

	// Default-deny (spec §4.6): an unsigned skill requesting EXEC, or an
	// unsigned NET skill without a bounded host list, is rejected here
	// rather than ever reaching an approval request.
	unsigned := sig != store.SignatureValid
	if unsigned && manifest.requestsScope("EXEC") {
		return store.InstalledSkill{}, apperr.PolicyDenied("unsigned_skill_exec")
	}
	if unsigned && manifest.requestsScope("NET") && !manifest.netHostAllowlistBounded() {
		return store.InstalledSkill{}, apperr.PolicyDenied("unsigned_skill_unbounded_net")
	}

	// 5. Create an approval request carrying the install's full context.
	log.Infow("requesting skill install approval", "slug", manifest.Slug, "version", manifest.Version, "signature", sig)
	a, err := in.approvals.Request(ctx, "skill:"+manifest.Slug, "install:"+manifest.Slug,
		manifest.Scopes, manifest.AllowedPaths, manifest.AllowedHosts, bundleHash, sig, approvalTTL)
	if err != nil {
		return store.InstalledSkill{}, fmt.Errorf("create install approval: %w", err)
	}
	if in.reviewer != nil {
		if note, rerr := in.bundleReviewNote(ctx, manifest, sig); rerr != nil {
			log.Warnw("skill bundle review failed, approving without a summary", "slug", manifest.Slug, "err", rerr)
		} else if err := in.st.SetApprovalSummaryNote(ctx, a.ID, note); err != nil {
			log.Warnw("failed to attach bundle review note", "slug", manifest.Slug, "err", err)
		}
	}
	decision, err := in.approvals.Await(ctx, a.ID)
	if err != nil {
		return store.InstalledSkill{}, apperr.ApprovalTimeout("install_approval_await_failed")
	}
	if decision != store.DecisionApproved {
		return store.InstalledSkill{}, apperr.PolicyDenied("install_" + string(decision))
	}

	// 6. Move the staged bundle into its final home, upsert, and lock.
	finalDir, err := in.guard.Validate(filepath.Join("skills", manifest.Slug, manifest.Version), workspace.IntentWrite)
	if err != nil {
		return store.InstalledSkill{}, err
	}
	if err := os.RemoveAll(finalDir.String()); err != nil {
		return store.InstalledSkill{}, fmt.Errorf("clear install target: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(finalDir.String()), 0o755); err != nil {
		return store.InstalledSkill{}, fmt.Errorf("create skill parent dir: %w", err)
	}
	if err := os.Rename(stageDir, finalDir.String()); err != nil {
		return store.InstalledSkill{}, fmt.Errorf("move staged bundle into place: %w", err)
	}

	sk := store.InstalledSkill{
		Slug:            manifest.Slug,
		Version:         manifest.Version,
		Source:          ref,
		BundleHash:      bundleHash,
		Scopes:          manifest.Scopes,
		AllowedPaths:    manifest.AllowedPaths,
		AllowedHosts:    manifest.AllowedHosts,
		SignatureStatus: sig,
		InstalledAt:     time.Now(),
	}
	if err := in.st.UpsertInstalledSkill(ctx, sk); err != nil {
		return store.InstalledSkill{}, fmt.Errorf("persist installed skill: %w", err)
	}
	log.Infow("skill installed", "slug", sk.Slug, "version", sk.Version)
	return sk, nil
}

// bundleReviewNote asks the configured llm.Client for a short plain-
// language summary of what a skill bundle is requesting, so whoever
// resolves its install approval sees more than a bare list of scopes and
// hosts. The reviewer never gates the install decision itself (spec §4.6's
// approval flow stays entirely policy/TTL-driven); a reviewer error or nil
// reviewer only means the approval carries no note.
func (in *Installer) bundleReviewNote(ctx context.Context, m Manifest, sig store.SignatureStatus) (string, error) {
	prompt := fmt.Sprintf(
		"Skill %q version %s (signature: %s) requests scopes %v, path allowlist %v, host allowlist %v. Description: %s\nIn one or two sentences, summarize what this skill does and what it needs access to.",
		m.Slug, m.Version, sig, m.Scopes, m.AllowedPaths, m.AllowedHosts, m.Description,
	)
	resp, err := in.reviewer.Complete(ctx, llm.Request{
		SystemPrompt: "You summarize skill bundle manifests for a human approver. Be concise and factual.",
		UserPrompt:   prompt,
	})
	if err != nil {
		return "", err
	}
	return resp.Text, nil
}

// hashDir computes a deterministic sha256 over a bundle's file contents,
// sorted by relative path so the same bundle always hashes identically
// regardless of directory-walk order. manifest.yaml itself is excluded:
// its content_hash field declares this hash, so including the manifest
// would make the hash self-referential.
func hashDir(root string) (string, error) {
	var paths []string
	if err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			rel, err := filepath.Rel(root, path)
			if err != nil {
				return err
			}
			if rel == "manifest.yaml" {
				return nil
			}
			paths = append(paths, rel)
		}
		return nil
	}); err != nil {
		return "", err
	}
	sort.Strings(paths)

	h := sha256.New()
	for _, rel := range paths {
		data, err := os.ReadFile(filepath.Join(root, rel))
		if err != nil {
			return "", err
		}
		h.Write([]byte(rel))
		h.Write(data)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// verifySignature checks the manifest's signature over its slug, version,
// and content hash — not the raw manifest bytes, since those embed the
// signature field itself.
func verifySignature(trust TrustStore, m Manifest, _ []byte) (bool, error) {
	pub, ok := trust.PublicKey(m.SignaturePublicKeyID)
	if !ok {
		return false, nil
	}
	sigBytes, err := hex.DecodeString(m.Signature)
	if err != nil {
		return false, fmt.Errorf("decode signature: %w", err)
	}
	message := []byte(m.Slug + "\x00" + m.Version + "\x00" + m.ContentHash)
	return ed25519.Verify(pub, message, sigBytes), nil
}
