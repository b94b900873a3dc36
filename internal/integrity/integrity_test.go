package integrity

import (
	"bytes"
	"context"
	"testing"

	"github.com/evault/evault/internal/apperr"
	"github.com/stretchr/testify/require"
)

func TestFingerprintDeterministic(t *testing.T) {
	b := []byte("quarterly report")
	require.Equal(t, Fingerprint(b), Fingerprint(b))
	require.Len(t, string(Fingerprint(b)), 64)

	// known vector: sha256("abc")
	require.Equal(t, Digest("ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad"), Fingerprint([]byte("abc")))

	fromReader, err := FingerprintReader(bytes.NewReader(b))
	require.NoError(t, err)
	require.Equal(t, Fingerprint(b), fromReader)
}

func TestFingerprintDistinguishesSingleByteChange(t *testing.T) {
	a := []byte("contract v1")
	b := []byte("contract v2")
	require.NotEqual(t, Fingerprint(a), Fingerprint(b))
}

func TestRoundTripForBothBackends(t *testing.T) {
	hb, err := NewHMACBackend("s3cret")
	require.NoError(t, err)
	ctx := context.Background()

	for _, backend := range []AttestationBackend{NewSuffixBackend(), hb} {
		e := NewEngine(backend)
		for _, payload := range [][]byte{{}, []byte("x"), bytes.Repeat([]byte{0xff}, 4096)} {
			d := e.Fingerprint(payload)
			a, err := e.Anchor(ctx, d)
			require.NoError(t, err)
			ok, err := e.Verify(ctx, d, a)
			require.NoError(t, err)
			require.True(t, ok, "backend %s", backend.Name())
		}
	}
}

func TestSuffixAnchorFormat(t *testing.T) {
	e := NewEngine(nil)
	a, err := e.Anchor(context.Background(), "abc123")
	require.NoError(t, err)
	require.Equal(t, AnchorToken("abc123_blockchain"), a)
	require.Equal(t, "suffix", e.Backend())
}

func TestVerifyDetectsChangedContent(t *testing.T) {
	ctx := context.Background()
	e := NewEngine(NewSuffixBackend())
	a, err := e.Anchor(ctx, Fingerprint([]byte("original")))
	require.NoError(t, err)

	ok, err := e.Verify(ctx, Fingerprint([]byte("tampered")), a)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestVerifyMissingInputIsError(t *testing.T) {
	ctx := context.Background()
	e := NewEngine(NewSuffixBackend())

	_, err := e.Verify(ctx, "", "abc_blockchain")
	require.ErrorIs(t, err, apperr.ErrIntegrityInput)

	_, err = e.Verify(ctx, "abc", "")
	require.ErrorIs(t, err, apperr.ErrIntegrityInput)

	_, err = e.Anchor(ctx, "")
	require.ErrorIs(t, err, apperr.ErrIntegrityInput)
}

func TestMalformedAnchorNeverVerifies(t *testing.T) {
	ctx := context.Background()
	d := Fingerprint([]byte("doc"))

	ok, err := NewEngine(NewSuffixBackend()).Verify(ctx, d, AnchorToken(d))
	require.NoError(t, err)
	require.False(t, ok)

	hb, err := NewHMACBackend("k1")
	require.NoError(t, err)
	forged := AnchorToken(string(d) + ".deadbeef")
	ok, err = NewEngine(hb).Verify(ctx, d, forged)
	require.NoError(t, err)
	require.False(t, ok)

	// anchor produced under another key does not resolve
	other, err := NewHMACBackend("k2")
	require.NoError(t, err)
	a, err := other.Commit(ctx, d)
	require.NoError(t, err)
	ok, err = NewEngine(hb).Verify(ctx, d, a)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestNewHMACBackendRequiresSecret(t *testing.T) {
	_, err := NewHMACBackend("")
	require.Error(t, err)
}
