package token

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
)

const (
	sessionIDBytes            = 32
	errGenerateRandomBytesFmt = "failed to generate random bytes: %w"
	errByteLengthPositiveFmt  = "byteLength must be positive"
)

func GenerateHex(byteLength int) (string, error) {
	if byteLength <= 0 {
		return "", fmt.Errorf(errByteLengthPositiveFmt)
	}

	bytes := make([]byte, byteLength)
	if _, err := rand.Read(bytes); err != nil {
		return "", fmt.Errorf(errGenerateRandomBytesFmt, err)
	}

	return hex.EncodeToString(bytes), nil
}

// GenerateSessionID returns 64 hex characters of randomness.
func GenerateSessionID() (string, error) {
	return GenerateHex(sessionIDBytes)
}

// IsSessionID reports whether s has the shape of a generated session id.
func IsSessionID(s string) bool {
	if len(s) != sessionIDBytes*2 {
		return false
	}
	_, err := hex.DecodeString(s)
	return err == nil
}

// Equal compares two secrets in constant time.
func Equal(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
