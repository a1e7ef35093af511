// Package crypto protects stored credentials and signs bearer tokens.
//
// Every primitive takes the raw application secret and derives a purpose
// specific key from it, so a single configured secret never doubles as both
// an encryption key and a signing key.
package crypto

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"
)

// Purpose selects which derived key is produced from a secret.
type Purpose string

const (
	PurposeEncrypt Purpose = "encrypt"
	PurposeSign    Purpose = "sign"
	PurposeState   Purpose = "state"
)

// KeySize is the length in bytes of every derived key.
const KeySize = 32

const separator = "."

var kdfSalt = []byte("contentoor/kdf/v1")

var (
	// ErrEmptySecret is returned when a zero-length secret is supplied.
	ErrEmptySecret = errors.New("secret must not be empty")

	// ErrDecryption covers every way an encrypted value can fail to open.
	// It deliberately carries no detail.
	ErrDecryption = errors.New("invalid encrypted value")
)

// DeriveKey stretches secret into a KeySize key bound to purpose.
func DeriveKey(secret string, purpose Purpose) ([]byte, error) {
	if secret == "" {
		return nil, ErrEmptySecret
	}

	switch purpose {
	case PurposeEncrypt, PurposeSign, PurposeState:
	default:
		return nil, fmt.Errorf("unknown key purpose %q", purpose)
	}

	reader := hkdf.New(sha256.New, []byte(secret), kdfSalt,
		[]byte("contentoor/"+string(purpose)))

	key := make([]byte, KeySize)
	if _, err := io.ReadFull(reader, key); err != nil {
		return nil, fmt.Errorf("deriving %s key: %w", purpose, err)
	}

	return key, nil
}

// Encrypt seals plaintext and returns "{nonce_b64}.{ciphertext+tag_b64}".
// A fresh random nonce is drawn on every call.
func Encrypt(plaintext, secret string) (string, error) {
	key, err := DeriveKey(secret, PurposeEncrypt)
	if err != nil {
		return "", err
	}

	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return "", fmt.Errorf("creating cipher: %w", err)
	}

	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("generating nonce: %w", err)
	}

	sealed := aead.Seal(nil, nonce, []byte(plaintext), nil)

	return base64.StdEncoding.EncodeToString(nonce) + separator +
		base64.StdEncoding.EncodeToString(sealed), nil
}

// Decrypt opens a value produced by Encrypt. Any malformed, truncated or
// tampered input, or the wrong secret, yields ErrDecryption and an empty
// string.
func Decrypt(encoded, secret string) (string, error) {
	if strings.Count(encoded, separator) != 1 {
		return "", ErrDecryption
	}

	nonceB64, sealedB64, _ := strings.Cut(encoded, separator)

	nonce, err := base64.StdEncoding.DecodeString(nonceB64)
	if err != nil {
		return "", ErrDecryption
	}

	sealed, err := base64.StdEncoding.DecodeString(sealedB64)
	if err != nil {
		return "", ErrDecryption
	}

	if len(nonce) != chacha20poly1305.NonceSize ||
		len(sealed) < chacha20poly1305.Overhead {
		return "", ErrDecryption
	}

	key, err := DeriveKey(secret, PurposeEncrypt)
	if err != nil {
		return "", err
	}

	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return "", ErrDecryption
	}

	plaintext, err := aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		return "", ErrDecryption
	}

	return string(plaintext), nil
}

// HMACSign returns the lower-case hex HMAC-SHA256 of message under the
// signing key derived from secret.
func HMACSign(message, secret string) (string, error) {
	key, err := DeriveKey(secret, PurposeSign)
	if err != nil {
		return "", err
	}

	mac := hmac.New(sha256.New, key)
	_, _ = mac.Write([]byte(message))

	return hex.EncodeToString(mac.Sum(nil)), nil
}

// HMACVerify reports whether signature is exactly HMACSign(message, secret).
func HMACVerify(message, signature, secret string) bool {
	expected, err := HMACSign(message, secret)
	if err != nil {
		return false
	}

	return hmac.Equal([]byte(expected), []byte(signature))
}

// GenerateRandomHex returns 2*byteCount lower-case hex characters drawn from
// the system CSPRNG.
func GenerateRandomHex(byteCount int) (string, error) {
	if byteCount < 0 {
		return "", fmt.Errorf("byte count must not be negative: %d", byteCount)
	}

	b := make([]byte, byteCount)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generating random bytes: %w", err)
	}

	return hex.EncodeToString(b), nil
}

// TimingSafeEqual compares two strings without an early exit on the first
// differing byte. Only the length check short-circuits.
func TimingSafeEqual(a, b string) bool {
	if len(a) != len(b) {
		return false
	}

	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
