package util

import (
	"strings"

	"github.com/google/uuid"
)

// NewID returns a random UUIDv4 in its 32-character hex form, optionally
// prefixed as "<prefix>_<hex>".
func NewID(prefix string) string {
	id := strings.ReplaceAll(uuid.NewString(), "-", "")
	if prefix == "" {
		return id
	}
	return prefix + "_" + id
}

// ValidID reports whether id looks like an identifier produced by NewID
// without a prefix. Ids are used as file and key names, so anything else is
// rejected before it reaches a backend.
func ValidID(id string) bool {
	if len(id) != 32 {
		return false
	}
	for _, r := range id {
		if (r < '0' || r > '9') && (r < 'a' || r > 'f') {
			return false
		}
	}
	return true
}
