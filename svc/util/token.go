package util

import (
	"crypto/rand"
	"encoding/hex"

	"github.com/pkg/errors"
)

const (
	TokenBytes  = 16
	TokenLength = TokenBytes * 2
)

// NewToken returns 16 bytes from crypto/rand as 32 lowercase hex characters.
func NewToken() (string, error) {
	buf := make([]byte, TokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", errors.Wrap(err, "rand fail")
	}
	return hex.EncodeToString(buf), nil
}

// IsToken reports whether s has the shape of a token produced by NewToken.
func IsToken(s string) bool {
	if len(s) != TokenLength {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return false
		}
	}
	return true
}
