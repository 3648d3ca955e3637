package sessionkey

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
)

const signatureLength = 16

// ErrInvalidKey is returned for keys that are malformed or carry a foreign signature.
var ErrInvalidKey = errors.New("invalid session key")

// Signer derives and verifies deterministic session keys for students.
// A key has the form <namespace>.<base64url(studentID)>.<signature>.
type Signer struct {
	namespace string
	secret    []byte
}

// NewSigner constructs a signer scoped to the provided namespace.
func NewSigner(namespace, secret string) *Signer {
	if namespace == "" {
		namespace = "reflection"
	}
	return &Signer{namespace: namespace, secret: []byte(secret)}
}

// Derive returns the session key of a student. The same student always yields the same key.
func (s *Signer) Derive(studentID string) (string, error) {
	if strings.TrimSpace(studentID) == "" {
		return "", fmt.Errorf("studentID required")
	}
	if len(s.secret) == 0 {
		return "", fmt.Errorf("signing secret missing")
	}
	encodedID := base64.RawURLEncoding.EncodeToString([]byte(studentID))
	return strings.Join([]string{s.namespace, encodedID, s.sign(encodedID)}, "."), nil
}

// Parse validates a key and returns the student identifier it was derived from.
func (s *Signer) Parse(key string) (string, error) {
	parts := strings.Split(key, ".")
	if len(parts) != 3 {
		return "", fmt.Errorf("%w: unexpected format", ErrInvalidKey)
	}
	namespace, encodedID, signature := parts[0], parts[1], parts[2]
	if namespace != s.namespace {
		return "", fmt.Errorf("%w: namespace mismatch", ErrInvalidKey)
	}

	rawID, err := base64.RawURLEncoding.DecodeString(encodedID)
	if err != nil || len(rawID) == 0 {
		return "", fmt.Errorf("%w: decode student id", ErrInvalidKey)
	}

	expected := s.sign(encodedID)
	if !hmac.Equal([]byte(expected), []byte(signature)) {
		return "", fmt.Errorf("%w: signature mismatch", ErrInvalidKey)
	}
	return string(rawID), nil
}

func (s *Signer) sign(encodedID string) string {
	mac := hmac.New(sha256.New, s.secret)
	_, _ = mac.Write([]byte(s.namespace + "|" + encodedID))
	return hex.EncodeToString(mac.Sum(nil))[:signatureLength]
}
