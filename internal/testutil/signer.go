package testutil

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/zapletal-martin/fusion-idea-addin/internal/envelope"
)

// Signer builds validly signed command envelopes for tests, playing the role
// of the IDE-side plugin.
type Signer struct {
	key *rsa.PrivateKey
}

// NewSigner generates a fresh RSA keypair.
func NewSigner(t *testing.T) *Signer {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	return &Signer{key: key}
}

// Fingerprint returns the trust identity of the signer's key.
func (s *Signer) Fingerprint() string {
	return s.key.N.String() + ":65537"
}

// Envelope signs a command and wraps it in a wire envelope.
func (s *Signer) Envelope(t *testing.T, cmd envelope.Command) *envelope.Envelope {
	t.Helper()
	message, err := json.Marshal(cmd)
	require.NoError(t, err)
	return s.EnvelopeFromMessage(t, string(message))
}

// EnvelopeFromMessage signs a raw message string. Useful for malformed inner
// payloads that still carry a valid signature.
func (s *Signer) EnvelopeFromMessage(t *testing.T, message string) *envelope.Envelope {
	t.Helper()
	digest := sha256.Sum256([]byte(message))
	sig, err := rsa.SignPKCS1v15(rand.Reader, s.key, crypto.SHA256, digest[:])
	require.NoError(t, err)

	return &envelope.Envelope{
		PubkeyModulus:  s.key.N.String(),
		PubkeyExponent: "65537",
		Message:        message,
		Signature:      hex.EncodeToString(sig),
	}
}
