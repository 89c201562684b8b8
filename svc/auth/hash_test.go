package auth

import (
	"testing"
)

func TestDigestSHA256KnownVector(t *testing.T) {
	h := Default()
	// sha256("password")
	want := "5e884898da28047151d0e56f8dc6292773603d0d6aabbdd62a11ef721d1542d8"
	if got := h.Digest("password"); got != want {
		t.Errorf("Digest = %s, want %s", got, want)
	}
}

func TestDigestDeterministic(t *testing.T) {
	for _, algo := range []string{AlgoSHA256, AlgoBLAKE2b} {
		h, err := NewHasher(algo)
		if err != nil {
			t.Fatalf("NewHasher(%s): %v", algo, err)
		}
		a, b := h.Digest("s3cret"), h.Digest("s3cret")
		if a != b {
			t.Errorf("%s: digest not deterministic", algo)
		}
		if len(a) != 64 {
			t.Errorf("%s: digest length = %d, want 64", algo, len(a))
		}
		if a == h.Digest("s3cret ") {
			t.Errorf("%s: different passwords share a digest", algo)
		}
	}
}

func TestAlgorithmsDiffer(t *testing.T) {
	b, _ := NewHasher(AlgoBLAKE2b)
	if Default().Digest("x") == b.Digest("x") {
		t.Error("sha256 and blake2b produced the same digest")
	}
}

func TestVerify(t *testing.T) {
	h := Default()
	digest := h.Digest("open sesame")
	tests := []struct {
		name     string
		password string
		digest   string
		want     bool
	}{
		{"match", "open sesame", digest, true},
		{"wrong", "open sesame!", digest, false},
		{"empty password", "", digest, false},
		{"empty digest", "open sesame", "", false},
		{"unicode", "pässwörd", h.Digest("pässwörd"), true},
	}
	for _, tt := range tests {
		if got := h.Verify(tt.password, tt.digest); got != tt.want {
			t.Errorf("%s: Verify = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestNewHasherRejectsUnknown(t *testing.T) {
	if _, err := NewHasher("md5"); err == nil {
		t.Error("expected error for md5")
	}
}
