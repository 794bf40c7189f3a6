// Package token generates the secret tokens that identify invitations to invitees.
package token

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
)

// ByteLength is the number of random bytes behind each token.
const ByteLength = 32

// Length is the length of an encoded token in hex characters.
const Length = ByteLength * 2

// Generate returns a new URL-safe token of Length hex characters.
func Generate() (string, error) {
	tokenBytes := make([]byte, ByteLength)
	if _, err := rand.Read(tokenBytes); err != nil {
		return "", fmt.Errorf("reading random bytes: %w", err)
	}
	return hex.EncodeToString(tokenBytes), nil
}

// Valid reports whether s has the shape of a generated token.
func Valid(s string) bool {
	if len(s) != Length {
		return false
	}
	_, err := hex.DecodeString(s)
	return err == nil
}
