package signature

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"
	"time"
)

const (
	// SecretPrefix is the prefix for base64-encoded signing secrets
	SecretPrefix = "whsec_"

	// SignatureVersion is the version identifier for HMAC-SHA256 signatures
	SignatureVersion = "v1"

	// MinSecretBytes is the minimum recommended secret size (192 bits)
	MinSecretBytes = 24

	// MaxSecretBytes is the maximum recommended secret size (512 bits)
	MaxSecretBytes = 64
)

// Outbound header names; receivers recompute the signature from these plus the body
const (
	HeaderID        = "webhook-id"
	HeaderTimestamp = "webhook-timestamp"
	HeaderSignature = "webhook-signature"
)

// Secret represents a webhook signing secret
type Secret struct {
	raw    []byte
	base64 string
}

// GenerateSecret creates a new cryptographically secure signing secret
// between MinSecretBytes and MaxSecretBytes in size.
func GenerateSecret(size int) (Secret, error) {
	if size < MinSecretBytes || size > MaxSecretBytes {
		return Secret{}, fmt.Errorf("secret size must be between %d and %d bytes", MinSecretBytes, MaxSecretBytes)
	}

	bytes := make([]byte, size)
	if _, err := rand.Read(bytes); err != nil {
		return Secret{}, fmt.Errorf("generating random bytes: %w", err)
	}

	return Secret{
		raw:    bytes,
		base64: SecretPrefix + base64.StdEncoding.EncodeToString(bytes),
	}, nil
}

// ParseSecret parses a base64-encoded secret with the whsec_ prefix
func ParseSecret(encoded string) (Secret, error) {
	if !strings.HasPrefix(encoded, SecretPrefix) {
		return Secret{}, fmt.Errorf("secret must start with %s prefix", SecretPrefix)
	}

	b64 := strings.TrimPrefix(encoded, SecretPrefix)
	raw, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		return Secret{}, fmt.Errorf("decoding base64 secret: %w", err)
	}

	if len(raw) < MinSecretBytes || len(raw) > MaxSecretBytes {
		return Secret{}, fmt.Errorf("secret size must be between %d and %d bytes", MinSecretBytes, MaxSecretBytes)
	}

	return Secret{
		raw:    raw,
		base64: encoded,
	}, nil
}

/* SecretFromString accepts either the whsec_ base64 format or an arbitrary
 * shared-secret string, which is keyed as its raw bytes. Endpoint owners
 * registered through the sandbox UI often paste plain strings
 */
func SecretFromString(s string) (Secret, error) {
	if s == "" {
		return Secret{}, fmt.Errorf("secret is empty")
	}
	if strings.HasPrefix(s, SecretPrefix) {
		return ParseSecret(s)
	}
	return Secret{
		raw:    []byte(s),
		base64: SecretPrefix + base64.StdEncoding.EncodeToString([]byte(s)),
	}, nil
}

// String returns the base64-encoded secret with prefix
func (s Secret) String() string {
	return s.base64
}

// Bytes returns the raw secret bytes
func (s Secret) Bytes() []byte {
	return s.raw
}

// Signature represents a computed payload signature
type Signature struct {
	Version   string
	Signature string
}

// String returns the signature in the format: v1,<base64_signature>
func (s Signature) String() string {
	return fmt.Sprintf("%s,%s", s.Version, s.Signature)
}

// ParseSignature parses a signature string in the format: v1,<base64_signature>
func ParseSignature(sig string) (Signature, error) {
	parts := strings.SplitN(sig, ",", 2)
	if len(parts) != 2 {
		return Signature{}, fmt.Errorf("invalid signature format, expected 'version,signature'")
	}

	return Signature{
		Version:   parts[0],
		Signature: parts[1],
	}, nil
}

// Sign creates an HMAC-SHA256 signature over: {msgID}.{timestamp}.{payload}
func Sign(secret Secret, msgID string, timestamp time.Time, payload []byte) (Signature, error) {
	if strings.Contains(msgID, ".") {
		return Signature{}, fmt.Errorf("message ID must not contain '.'")
	}

	timestampStr := strconv.FormatInt(timestamp.Unix(), 10)
	signedContent := fmt.Sprintf("%s.%s.%s", msgID, timestampStr, payload)

	mac := hmac.New(sha256.New, secret.Bytes())
	mac.Write([]byte(signedContent))
	sig := mac.Sum(nil)

	return Signature{
		Version:   SignatureVersion,
		Signature: base64.StdEncoding.EncodeToString(sig),
	}, nil
}

// Verify verifies a payload signature using constant-time comparison
// Returns true if the signature is valid, false otherwise
func Verify(secret Secret, msgID string, timestamp time.Time, payload []byte, expectedSig Signature) (bool, error) {
	if expectedSig.Version != SignatureVersion {
		return false, fmt.Errorf("unsupported signature version: %s", expectedSig.Version)
	}

	calculatedSig, err := Sign(secret, msgID, timestamp, payload)
	if err != nil {
		return false, fmt.Errorf("calculating signature: %w", err)
	}

	expected, err := base64.StdEncoding.DecodeString(expectedSig.Signature)
	if err != nil {
		return false, fmt.Errorf("decoding expected signature: %w", err)
	}

	calculated, err := base64.StdEncoding.DecodeString(calculatedSig.Signature)
	if err != nil {
		return false, fmt.Errorf("decoding calculated signature: %w", err)
	}

	// Constant-time comparison to prevent timing attacks
	return subtle.ConstantTimeCompare(expected, calculated) == 1, nil
}
