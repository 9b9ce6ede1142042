package util

import (
	"strings"
	"testing"
)

func TestNewID(t *testing.T) {
	id := NewID("")
	if !ValidID(id) {
		t.Fatalf("NewID() = %q, want 32 hex chars", id)
	}
	if other := NewID(""); other == id {
		t.Fatalf("NewID() returned duplicate %q", id)
	}
	prefixed := NewID("req")
	if !strings.HasPrefix(prefixed, "req_") || !ValidID(strings.TrimPrefix(prefixed, "req_")) {
		t.Fatalf("NewID(req) = %q", prefixed)
	}
}

func TestValidIDRejectsPaths(t *testing.T) {
	for _, id := range []string{"", "../etc/passwd", "ABCDEF0123456789ABCDEF0123456789", strings.Repeat("a", 31)} {
		if ValidID(id) {
			t.Fatalf("ValidID(%q) = true", id)
		}
	}
}
