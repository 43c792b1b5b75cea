package secrets

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"
)

// FileEnvelope resolves secrets from a single local file holding an
// AES-256-GCM-encrypted JSON map of key -> value (spec §4.10's "local
// encrypted envelope"). The master key is itself supplied via environment
// variable, never written to disk alongside the envelope.
type FileEnvelope struct {
	Path      string
	MasterKey []byte // must be 32 bytes (AES-256)

	cache map[string]string
}

type envelopeFile struct {
	Nonce      string `json:"nonce"`
	Ciphertext string `json:"ciphertext"`
}

// NewFileEnvelope constructs a FileEnvelope over an existing encrypted
// file. masterKey must be exactly 32 bytes.
func NewFileEnvelope(path string, masterKey []byte) (*FileEnvelope, error) {
	if len(masterKey) != 32 {
		return nil, fmt.Errorf("file envelope master key must be 32 bytes, got %d", len(masterKey))
	}
	return &FileEnvelope{Path: path, MasterKey: masterKey}, nil
}

// Get decrypts the envelope (on first call only; subsequent calls reuse
// the in-memory plaintext map) and returns the value for key.
func (f *FileEnvelope) Get(_ context.Context, key string) (string, error) {
	if f.cache == nil {
		m, err := f.decrypt()
		if err != nil {
			return "", err
		}
		f.cache = m
	}
	v, ok := f.cache[key]
	if !ok {
		return "", fmt.Errorf("secret %q not present in envelope %s", key, f.Path)
	}
	return v, nil
}

func (f *FileEnvelope) decrypt() (map[string]string, error) {
	raw, err := os.ReadFile(f.Path)
	if err != nil {
		return nil, fmt.Errorf("read secrets envelope: %w", err)
	}
	var ef envelopeFile
	if err := json.Unmarshal(raw, &ef); err != nil {
		return nil, fmt.Errorf("parse secrets envelope: %w", err)
	}
	nonce, err := base64.StdEncoding.DecodeString(ef.Nonce)
	if err != nil {
		return nil, fmt.Errorf("decode envelope nonce: %w", err)
	}
	ciphertext, err := base64.StdEncoding.DecodeString(ef.Ciphertext)
	if err != nil {
		return nil, fmt.Errorf("decode envelope ciphertext: %w", err)
	}

	block, err := aes.NewCipher(f.MasterKey)
	if err != nil {
		return nil, fmt.Errorf("build cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("build gcm: %w", err)
	}
	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("decrypt secrets envelope: %w", err)
	}

	var m map[string]string
	if err := json.Unmarshal(plaintext, &m); err != nil {
		return nil, fmt.Errorf("parse decrypted secrets: %w", err)
	}
	return m, nil
}

// SealFileEnvelope encrypts secrets and writes them to path as a
// FileEnvelope-compatible JSON file. Used by the `titan secret set`
// CLI surface, never by the runtime read path.
func SealFileEnvelope(path string, masterKey []byte, secrets map[string]string) error {
	if len(masterKey) != 32 {
		return fmt.Errorf("file envelope master key must be 32 bytes, got %d", len(masterKey))
	}
	plaintext, err := json.Marshal(secrets)
	if err != nil {
		return err
	}
	block, err := aes.NewCipher(masterKey)
	if err != nil {
		return err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return fmt.Errorf("generate nonce: %w", err)
	}
	ciphertext := gcm.Seal(nil, nonce, plaintext, nil)

	out, err := json.Marshal(envelopeFile{
		Nonce:      base64.StdEncoding.EncodeToString(nonce),
		Ciphertext: base64.StdEncoding.EncodeToString(ciphertext),
	})
	if err != nil {
		return err
	}
	return os.WriteFile(path, out, 0o600)
}
