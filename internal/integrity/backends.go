package integrity

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
)

// DefaultSuffix is the marker the suffix backend appends to a digest.
const DefaultSuffix = "_blockchain"

// SuffixBackend stands in for a ledger commitment by appending a fixed marker.
type SuffixBackend struct {
	Suffix string
}

func NewSuffixBackend() *SuffixBackend { return &SuffixBackend{Suffix: DefaultSuffix} }

func (b *SuffixBackend) Name() string { return "suffix" }

func (b *SuffixBackend) Commit(_ context.Context, d Digest) (AnchorToken, error) {
	return AnchorToken(string(d) + b.Suffix), nil
}

func (b *SuffixBackend) Resolve(_ context.Context, a AnchorToken) (Digest, error) {
	s := string(a)
	if !strings.HasSuffix(s, b.Suffix) || len(s) == len(b.Suffix) {
		return "", ErrMalformedAnchor
	}
	return Digest(strings.TrimSuffix(s, b.Suffix)), nil
}

// HMACBackend anchors a digest as "<digest>.<mac>" keyed by a server secret,
// so an anchor edited in the database no longer resolves.
type HMACBackend struct {
	key []byte
}

func NewHMACBackend(secret string) (*HMACBackend, error) {
	if secret == "" {
		return nil, errors.New("hmac attestation backend requires a secret")
	}
	return &HMACBackend{key: []byte(secret)}, nil
}

func (b *HMACBackend) Name() string { return "hmac" }

func (b *HMACBackend) mac(d Digest) string {
	m := hmac.New(sha256.New, b.key)
	m.Write([]byte(d))
	return hex.EncodeToString(m.Sum(nil))
}

func (b *HMACBackend) Commit(_ context.Context, d Digest) (AnchorToken, error) {
	return AnchorToken(string(d) + "." + b.mac(d)), nil
}

func (b *HMACBackend) Resolve(_ context.Context, a AnchorToken) (Digest, error) {
	digest, mac, ok := strings.Cut(string(a), ".")
	if !ok || digest == "" {
		return "", ErrMalformedAnchor
	}
	if !hmac.Equal([]byte(mac), []byte(b.mac(Digest(digest)))) {
		return "", ErrMalformedAnchor
	}
	return Digest(digest), nil
}
