// Package crypto provides the keyed one-way derivation applied to consumer and
// access token secrets before anything touches the database. Secrets are never
// stored or transmitted in recoverable form: authentication re-derives the
// presented secret under the registry key and compares in constant time, so a
// database compromise yields nothing that can be replayed against the API. The
// derivation is HMAC-SHA256 rather than a salted password hash because consumer
// secrets are high-entropy machine credentials generated by the registry
// itself, not human-chosen passwords.
package crypto

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"errors"

	"golang.org/x/crypto/pbkdf2"
)

var (
	// ErrKeyLengthInvalid is returned when a registry key is not exactly 32 bytes.
	ErrKeyLengthInvalid = errors.New("crypto: key must be exactly 32 bytes")
	// ErrSaltTooShort is returned when the provided salt is fewer than 16 bytes,
	// which would weaken PBKDF2 key derivation.
	ErrSaltTooShort = errors.New("crypto: salt must be at least 16 bytes")
)

// SecretDeriver derives storage representations of secrets under the registry key.
type SecretDeriver struct {
	registryKey []byte
}

// NewSecretDeriver creates a deriver with a 32-byte registry key.
func NewSecretDeriver(registryKey []byte) (*SecretDeriver, error) {
	if len(registryKey) != 32 {
		return nil, ErrKeyLengthInvalid
	}
	keyCopy := make([]byte, 32)
	copy(keyCopy, registryKey)
	return &SecretDeriver{registryKey: keyCopy}, nil
}

// DeriveSecretDeriver creates a deriver by stretching a passphrase with PBKDF2.
func DeriveSecretDeriver(passphrase string, salt []byte, iterations int) (*SecretDeriver, error) {
	if len(salt) < 16 {
		return nil, ErrSaltTooShort
	}
	if iterations < 10000 {
		iterations = 100000 // Secure default
	}
	derivedKey := pbkdf2.Key([]byte(passphrase), salt, iterations, 32, sha256.New)
	return NewSecretDeriver(derivedKey)
}

// DeriveHash returns the hex-encoded HMAC-SHA256 of rawSecret under the
// registry key. Deterministic: the same secret under the same key always maps
// to the same hash, which is what equality-by-rederivation relies on.
func (d *SecretDeriver) DeriveHash(rawSecret string) string {
	mac := hmac.New(sha256.New, d.registryKey)
	mac.Write([]byte(rawSecret))
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify re-derives rawSecret and compares it with storedHash in constant time.
func (d *SecretDeriver) Verify(rawSecret, storedHash string) bool {
	derived := d.DeriveHash(rawSecret)
	return subtle.ConstantTimeCompare([]byte(derived), []byte(storedHash)) == 1
}

// ConsumerSecret derives the shared secret handed to a consumer at
// registration from its consumer key. Deriving rather than storing means the
// registry can re-issue the exact secret to the owner at creation time without
// ever persisting it.
func (d *SecretDeriver) ConsumerSecret(consumerKey string) string {
	mac := hmac.New(sha256.New, d.registryKey)
	mac.Write([]byte("consumer-secret:"))
	mac.Write([]byte(consumerKey))
	return hex.EncodeToString(mac.Sum(nil))
}

// NewTokenSecret generates a fresh random token secret. The raw value is
// surfaced to the caller exactly once; only DeriveHash of it is stored.
func NewTokenSecret() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// NewKey generates a random public identifier (consumer key or token key)
// with the given prefix, e.g. "ocr_3J98t1WpEZ73CNm".
func NewKey(prefix string) (string, error) {
	buf := make([]byte, 20)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return prefix + "_" + base64.RawURLEncoding.EncodeToString(buf), nil
}
