package integrity

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"

	"github.com/evault/evault/internal/apperr"
)

// Digest is the lowercase hex SHA-256 of a document's bytes.
type Digest string

// AnchorToken is the trust anchor recorded when a digest is committed.
type AnchorToken string

// ErrMalformedAnchor is returned by backends that cannot recover a digest.
var ErrMalformedAnchor = errors.New("malformed anchor token")

// AttestationBackend commits digests and recovers them from anchors.
type AttestationBackend interface {
	Name() string
	Commit(ctx context.Context, d Digest) (AnchorToken, error)
	Resolve(ctx context.Context, a AnchorToken) (Digest, error)
}

// Fingerprint returns the digest of b.
func Fingerprint(b []byte) Digest {
	sum := sha256.Sum256(b)
	return Digest(hex.EncodeToString(sum[:]))
}

// FingerprintReader digests everything readable from r.
func FingerprintReader(r io.Reader) (Digest, error) {
	h := sha256.New()
	if _, err := io.Copy(h, r); err != nil {
		return "", fmt.Errorf("fingerprint: %w", err)
	}
	return Digest(hex.EncodeToString(h.Sum(nil))), nil
}

// Engine binds fingerprinting to an attestation backend.
type Engine struct {
	backend AttestationBackend
}

func NewEngine(b AttestationBackend) *Engine {
	if b == nil {
		b = NewSuffixBackend()
	}
	return &Engine{backend: b}
}

func (e *Engine) Backend() string { return e.backend.Name() }

func (e *Engine) Fingerprint(b []byte) Digest { return Fingerprint(b) }

// Anchor commits d and returns the anchor to store next to it.
func (e *Engine) Anchor(ctx context.Context, d Digest) (AnchorToken, error) {
	if d == "" {
		return "", apperr.IntegrityInput("cannot anchor an empty digest")
	}
	a, err := e.backend.Commit(ctx, d)
	if err != nil {
		return "", fmt.Errorf("anchor via %s: %w", e.backend.Name(), err)
	}
	return a, nil
}

// Verify reports whether the digest embedded in anchor equals current.
// Missing input is an error, an anchor that cannot be resolved is a mismatch.
func (e *Engine) Verify(ctx context.Context, current Digest, anchor AnchorToken) (bool, error) {
	if current == "" || anchor == "" {
		return false, apperr.IntegrityInput("verification requires both a digest and an anchor")
	}
	stored, err := e.backend.Resolve(ctx, anchor)
	if err != nil {
		if errors.Is(err, ErrMalformedAnchor) {
			return false, nil
		}
		return false, fmt.Errorf("resolve anchor via %s: %w", e.backend.Name(), err)
	}
	return stored == current, nil
}
