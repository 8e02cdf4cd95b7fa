package vault

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"

	"github.com/goliatone/go-errors"
	"golang.org/x/crypto/pbkdf2"
)

const (
	// DeriveIterations matches the browser-side CryptoJS.PBKDF2 configuration.
	DeriveIterations = 10000
	// DeriveKeyLength is the derived key size in bytes (512 bits).
	DeriveKeyLength = 64

	// credentialSuffix domain-separates credential hashing from the
	// encryption-key derivation that shares the same salt on the client.
	credentialSuffix = "hash"

	saltLength = 16
)

// Derive runs PBKDF2-HMAC-SHA256 over (secret, salt) and returns the key as
// a lowercase hex string. Output is bit-for-bit compatible with the client's
// CryptoJS.PBKDF2 for the same inputs.
func Derive(secret, salt []byte, iterations, keyLen int) string {
	key := pbkdf2.Key(secret, salt, iterations, keyLen, sha256.New)
	return hex.EncodeToString(key)
}

// HashCredential derives the storage-at-rest hash for a client-derived
// master password value.
func HashCredential(derivedHash, salt string) string {
	return Derive([]byte(derivedHash+credentialSuffix), []byte(salt), DeriveIterations, DeriveKeyLength)
}

// VerifyDerivedHash compares two derived hashes in constant time.
func VerifyDerivedHash(candidate, stored string) bool {
	return subtle.ConstantTimeCompare([]byte(candidate), []byte(stored)) == 1
}

// GenerateSalt returns a fresh random salt, hex encoded.
func GenerateSalt() (string, error) {
	buf := make([]byte, saltLength)
	if _, err := rand.Read(buf); err != nil {
		return "", errors.Wrap(err, errors.CategoryInternal, "failed to generate salt")
	}
	return hex.EncodeToString(buf), nil
}
