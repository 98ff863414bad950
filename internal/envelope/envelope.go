// Package envelope defines the signed wire objects of the command channel and
// the crypto needed to authenticate them.
package envelope

import (
	"crypto"
	"crypto/rsa"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
)

// ErrMalformed indicates a request body that could not be parsed.
var ErrMalformed = errors.New("malformed request")

// ErrAuthentication indicates a signature that does not verify against the
// embedded public key.
var ErrAuthentication = errors.New("signature verification failed")

// Envelope is the signed wire unit submitted to the command listener. The key
// material rides along with every request; trust in the key is decided
// separately by the trust store and the confirmation gate.
type Envelope struct {
	// PubkeyModulus is the RSA modulus as a decimal string.
	PubkeyModulus string `json:"pubkey_modulus"`

	// PubkeyExponent is the RSA public exponent as a decimal string.
	PubkeyExponent string `json:"pubkey_exponent"`

	// Message is the JSON-encoded inner command, kept as text so the
	// signature covers the exact bytes the caller signed.
	Message string `json:"message"`

	// Signature is the hex-encoded RSA signature over Message.
	Signature string `json:"signature"`
}

// Command is the payload of Envelope.Message.
type Command struct {
	// Nonce must be strictly greater than the last accepted nonce for the
	// signing key.
	Nonce int64 `json:"nonce"`

	// Script is the path of the script to run, empty when only debugging.
	Script string `json:"script,omitempty"`

	// Debug is 1 to attach a debugger before running, 0 otherwise.
	Debug int `json:"debug"`

	// DebugPort is the port the caller's debug server listens on. Required
	// when Debug is set.
	DebugPort int `json:"debug_port,omitempty"`

	// PydevdPath is the filesystem path of the caller's pydevd distribution.
	PydevdPath string `json:"pydevd_path"`
}

// Parse decodes an envelope from a request body.
func Parse(body []byte) (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if env.PubkeyModulus == "" || env.PubkeyExponent == "" {
		return nil, fmt.Errorf("%w: missing public key", ErrMalformed)
	}
	if env.Signature == "" {
		return nil, fmt.Errorf("%w: missing signature", ErrMalformed)
	}
	return &env, nil
}

// ParseCommand decodes the inner command carried by the envelope.
func (e *Envelope) ParseCommand() (*Command, error) {
	var cmd Command
	if err := json.Unmarshal([]byte(e.Message), &cmd); err != nil {
		return nil, fmt.Errorf("%w: inner command: %v", ErrMalformed, err)
	}
	if err := cmd.Validate(); err != nil {
		return nil, err
	}
	return &cmd, nil
}

// Validate checks the inner command's internal consistency.
func (c *Command) Validate() error {
	if c.Debug != 0 && c.DebugPort == 0 {
		return fmt.Errorf("%w: debug requested without debug_port", ErrMalformed)
	}
	return nil
}

// IsNoop reports whether the command requests neither a script run nor a
// debugger attach. Such commands are dropped with a warning.
func (c *Command) IsNoop() bool {
	return c.Script == "" && c.Debug == 0
}

// WantsDebug reports whether the caller asked to attach a debugger.
func (c *Command) WantsDebug() bool {
	return c.Debug != 0
}

// Fingerprint is the canonical trust identity of the signing key: the decimal
// modulus and exponent joined by a colon.
func (e *Envelope) Fingerprint() string {
	return e.PubkeyModulus + ":" + e.PubkeyExponent
}

// signatureHashes are the digests tried during verification, most likely
// first. The IDE side picks the digest when signing and does not declare it
// on the wire, so verification probes the same set python-rsa supports.
var signatureHashes = []crypto.Hash{
	crypto.SHA256,
	crypto.SHA512,
	crypto.SHA384,
	crypto.SHA1,
}

// Verify checks the envelope's signature over Message with the embedded
// public key, using RSA PKCS#1 v1.5. Any failure to reconstruct the key or
// match the signature is an authentication failure.
func (e *Envelope) Verify() error {
	modulus, ok := new(big.Int).SetString(e.PubkeyModulus, 10)
	if !ok {
		return fmt.Errorf("%w: modulus is not a decimal integer", ErrAuthentication)
	}
	exponent, ok := new(big.Int).SetString(e.PubkeyExponent, 10)
	if !ok || !exponent.IsInt64() || exponent.Int64() <= 0 {
		return fmt.Errorf("%w: exponent is not a positive integer", ErrAuthentication)
	}

	sig, err := hex.DecodeString(e.Signature)
	if err != nil {
		return fmt.Errorf("%w: signature is not hex", ErrAuthentication)
	}

	pub := &rsa.PublicKey{N: modulus, E: int(exponent.Int64())}

	for _, hash := range signatureHashes {
		digest := digestMessage(hash, []byte(e.Message))
		if err := rsa.VerifyPKCS1v15(pub, hash, digest, sig); err == nil {
			return nil
		}
	}
	return ErrAuthentication
}

func digestMessage(hash crypto.Hash, message []byte) []byte {
	switch hash {
	case crypto.SHA256:
		sum := sha256.Sum256(message)
		return sum[:]
	case crypto.SHA512:
		sum := sha512.Sum512(message)
		return sum[:]
	case crypto.SHA384:
		sum := sha512.Sum384(message)
		return sum[:]
	default:
		sum := sha1.Sum(message)
		return sum[:]
	}
}

// ConfirmationDigest is the short human-verifiable digest of a fingerprint
// that the operator compares against what their IDE displays. Hex-encoded
// SHA-1, compared case-insensitively.
func ConfirmationDigest(fingerprint string) string {
	sum := sha1.Sum([]byte(fingerprint))
	return hex.EncodeToString(sum[:])
}
