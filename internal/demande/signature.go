package demande

import (
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"os"
	"path/filepath"
	"strings"
)

// SignatureStore persists signature images attached to approvals. Files are
// named by the sha256 of their content, so re-submitting the same signature
// is idempotent and never collides.
type SignatureStore struct {
	dir     string
	baseURL string
}

func NewSignatureStore(dir, baseURL string) *SignatureStore {
	return &SignatureStore{dir: dir, baseURL: strings.TrimRight(baseURL, "/")}
}

// Save decodes a signature payload and writes it under the store directory,
// returning the public URL to record on the validation step. The payload may
// be a data URI; only the base64 body after the prefix is kept.
func (s *SignatureStore) Save(payload string) (string, error) {
	body := payload
	if idx := strings.Index(body, ";base64,"); idx >= 0 {
		body = body[idx+len(";base64,"):]
	}

	raw, err := base64.StdEncoding.DecodeString(strings.TrimSpace(body))
	if err != nil {
		return "", ErrInvalidSignature
	}

	sum := sha256.Sum256(raw)
	name := hex.EncodeToString(sum[:]) + ".png"

	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return "", err
	}
	path := filepath.Join(s.dir, name)
	if _, err := os.Stat(path); os.IsNotExist(err) {
		if err := os.WriteFile(path, raw, 0o644); err != nil {
			return "", err
		}
	}

	return s.baseURL + "/" + name, nil
}
