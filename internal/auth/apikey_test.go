package auth

import (
	"context"
	"errors"
	"testing"

	"golang.org/x/crypto/bcrypt"

	"topictree/internal/rbac"
)

func TestOpenKeyringGrantsWriter(t *testing.T) {
	k := NewKeyring("", "", "")
	if k.Enabled() {
		t.Fatal("expected keyring without keys to be disabled")
	}
	role, err := k.Authenticate("")
	if err != nil || role != rbac.RoleWriter {
		t.Fatalf("Authenticate() = %q, %v", role, err)
	}
}

func TestPlainKeys(t *testing.T) {
	k := NewKeyring("write-secret", "", "read-secret")

	cases := []struct {
		key  string
		role rbac.Role
		err  error
	}{
		{key: "write-secret", role: rbac.RoleWriter},
		{key: " read-secret ", role: rbac.RoleReader},
		{key: "", err: ErrMissingKey},
		{key: "guess", err: ErrInvalidKey},
	}
	for _, tc := range cases {
		role, err := k.Authenticate(tc.key)
		if !errors.Is(err, tc.err) || role != tc.role {
			t.Errorf("Authenticate(%q) = %q, %v; want %q, %v", tc.key, role, err, tc.role, tc.err)
		}
	}
}

func TestHashedWriterKeyIsCached(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("hashed-secret"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("GenerateFromPassword() error = %v", err)
	}
	k := NewKeyring("", string(hash), "")

	for i := 0; i < 2; i++ {
		role, err := k.Authenticate("hashed-secret")
		if err != nil || role != rbac.RoleWriter {
			t.Fatalf("Authenticate() = %q, %v", role, err)
		}
	}
	if _, ok := k.verified[HashToken("hashed-secret")]; !ok {
		t.Fatal("verified key was not cached")
	}
	if _, err := k.Authenticate("other"); !errors.Is(err, ErrInvalidKey) {
		t.Fatalf("Authenticate(other) error = %v", err)
	}
}

func TestHashKey(t *testing.T) {
	hash, err := HashKey("s3cret")
	if err != nil {
		t.Fatalf("HashKey() error = %v", err)
	}
	if bcrypt.CompareHashAndPassword([]byte(hash), []byte("s3cret")) != nil {
		t.Fatal("hash does not verify")
	}
	if _, err := HashKey(" "); !errors.Is(err, ErrMissingKey) {
		t.Fatalf("HashKey(blank) error = %v", err)
	}
}

func TestRoleContext(t *testing.T) {
	ctx := context.Background()
	if got := RoleFrom(ctx); got != rbac.RoleReader {
		t.Fatalf("RoleFrom(empty) = %q", got)
	}
	if got := RoleFrom(WithRole(ctx, rbac.RoleWriter)); got != rbac.RoleWriter {
		t.Fatalf("RoleFrom() = %q", got)
	}
}
