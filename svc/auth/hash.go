package auth

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"hash"
	"strings"

	"github.com/pkg/errors"
	"golang.org/x/crypto/blake2b"
)

const (
	AlgoSHA256  = "sha256"
	AlgoBLAKE2b = "blake2b"
)

// Hasher produces unsalted, deterministic password digests. Both supported
// algorithms yield 256-bit digests encoded as 64 hex characters.
type Hasher struct {
	algo  string
	newFn func() hash.Hash
}

func NewHasher(algo string) (*Hasher, error) {
	switch strings.ToLower(algo) {
	case "", AlgoSHA256:
		return &Hasher{algo: AlgoSHA256, newFn: sha256.New}, nil
	case AlgoBLAKE2b, "blake2b-256":
		return &Hasher{algo: AlgoBLAKE2b, newFn: func() hash.Hash {
			h, _ := blake2b.New256(nil)
			return h
		}}, nil
	}
	return nil, errors.Errorf("unsupported password digest %q", algo)
}

// Default is the SHA-256 hasher.
func Default() *Hasher {
	h, _ := NewHasher(AlgoSHA256)
	return h
}
func (h *Hasher) Algo() string { return h.algo }

func (h *Hasher) Digest(password string) string {
	d := h.newFn()
	d.Write([]byte(password))
	return hex.EncodeToString(d.Sum(nil))
}

// Verify recomputes the digest of password and compares it with digest in
// constant time. An empty password never matches.
func (h *Hasher) Verify(password, digest string) bool {
	if password == "" || digest == "" {
		return false
	}
	got := h.Digest(password)
	return subtle.ConstantTimeCompare([]byte(got), []byte(digest)) == 1
}
