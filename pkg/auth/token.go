package auth

import (
	"errors"
	"fmt"
	"strings"

	"github.com/ethpandaops/contentoor/pkg/crypto"
)

const (
	// TokenPrefix starts every application bearer token.
	TokenPrefix = "cms_"

	tokenIDBytes  = 20
	tokenIDLength = tokenIDBytes * 2
	signatureLen  = 64
)

// ErrMalformedToken is returned for bearer values that are not in the
// cms_{tokenId}.{signature} format.
var ErrMalformedToken = errors.New("malformed api token")

// NewTokenID returns a fresh random token id.
func NewTokenID() (string, error) {
	return crypto.GenerateRandomHex(tokenIDBytes)
}

// FormatAPIToken builds the bearer value for tokenID, signed with secret.
func FormatAPIToken(tokenID, secret string) (string, error) {
	sig, err := crypto.HMACSign(tokenID, secret)
	if err != nil {
		return "", fmt.Errorf("signing token: %w", err)
	}

	return TokenPrefix + tokenID + "." + sig, nil
}

// IsAPIToken reports whether raw claims the application token format.
func IsAPIToken(raw string) bool {
	return strings.HasPrefix(raw, TokenPrefix)
}

// ParseAPIToken splits raw into token id and signature, checking the shape
// of both halves without verifying the signature.
func ParseAPIToken(raw string) (tokenID, signature string, err error) {
	rest, ok := strings.CutPrefix(raw, TokenPrefix)
	if !ok {
		return "", "", ErrMalformedToken
	}

	tokenID, signature, ok = strings.Cut(rest, ".")
	if !ok || len(tokenID) != tokenIDLength || len(signature) != signatureLen {
		return "", "", ErrMalformedToken
	}

	if !isLowerHex(tokenID) || !isLowerHex(signature) {
		return "", "", ErrMalformedToken
	}

	return tokenID, signature, nil
}

// VerifyAPIToken parses raw and checks its signature, returning the token id.
func VerifyAPIToken(raw, secret string) (string, error) {
	tokenID, signature, err := ParseAPIToken(raw)
	if err != nil {
		return "", err
	}

	if !crypto.HMACVerify(tokenID, signature, secret) {
		return "", ErrMalformedToken
	}

	return tokenID, nil
}

func isLowerHex(s string) bool {
	for i := 0; i < len(s); i++ {
		c := s[i]
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return false
		}
	}

	return true
}
