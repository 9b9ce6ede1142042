// Package tree holds the comment topic tree: normalized topic keys, the
// node structure, and the insertion algorithm that merges comments into it.
package tree

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var apostrophes = strings.NewReplacer("'", "", "’", "", "‘", "", "`", "")

// Normalize turns a display label into its key: "Sweden's Internet!!"
// becomes "swedens_internet". Accents fold to ASCII, apostrophes are
// dropped, every other run of characters outside [a-z0-9] becomes a single
// underscore and edge underscores are trimmed. The result may be empty.
func Normalize(label string) string {
	folded := strings.ToLower(foldDiacritics(label))
	folded = apostrophes.Replace(folded)

	var b strings.Builder
	b.Grow(len(folded))
	pending := false
	for _, r := range folded {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			if pending && b.Len() > 0 {
				b.WriteByte('_')
			}
			pending = false
			b.WriteRune(r)
			continue
		}
		pending = true
	}
	return b.String()
}

// ValidLabel reports whether label normalizes to a non-empty key.
func ValidLabel(label string) bool {
	return Normalize(label) != ""
}

func foldDiacritics(s string) string {
	t := transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)))
	folded, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return folded
}
