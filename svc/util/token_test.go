package util

import (
	"strings"
	"testing"
)

func TestNewTokenShape(t *testing.T) {
	tok, err := NewToken()
	if err != nil {
		t.Fatalf("NewToken failed: %v", err)
	}
	if len(tok) != 32 {
		t.Errorf("token length = %d, want 32", len(tok))
	}
	if !IsToken(tok) {
		t.Errorf("IsToken(%q) = false", tok)
	}
}

func TestNewTokenUnique(t *testing.T) {
	seen := make(map[string]struct{}, 1000)
	for i := 0; i < 1000; i++ {
		tok, err := NewToken()
		if err != nil {
			t.Fatalf("NewToken failed: %v", err)
		}
		if _, dup := seen[tok]; dup {
			t.Fatalf("duplicate token after %d draws: %s", i, tok)
		}
		seen[tok] = struct{}{}
	}
}

func TestIsToken(t *testing.T) {
	tests := []struct {
		in   string
		want bool
	}{
		{"0123456789abcdef0123456789abcdef", true},
		{"0123456789ABCDEF0123456789ABCDEF", false},
		{"0123456789abcdef", false},
		{strings.Repeat("g", 32), false},
		{"", false},
		{"../../etc/passwd", false},
	}
	for _, tt := range tests {
		if got := IsToken(tt.in); got != tt.want {
			t.Errorf("IsToken(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestRedactTokenFromTokenTests(t *testing.T) {
	got := RedactToken("0123456789abcdef0123456789abcdef")
	if got != "0123...cdef" {
		t.Errorf("RedactToken = %q", got)
	}
	if RedactToken("short") != "[TOKEN-REDACTED]" {
		t.Error("short tokens must be fully redacted")
	}
}

func TestRedactIPFromTokenTests(t *testing.T) {
	if got := RedactIP("192.168.1.77:5555"); got != "192.168.1.0" {
		t.Errorf("RedactIP v4 = %q", got)
	}
	if got := RedactIP("not-an-ip"); !strings.HasPrefix(got, "hash:") {
		t.Errorf("RedactIP garbage = %q", got)
	}
}
