// Package similarity holds the string comparisons used to match comments
// to existing topics and to fold near-duplicate subtopics together.
package similarity

import (
	"slices"
	"strings"

	"github.com/adrg/strutil"
	"github.com/adrg/strutil/metrics"

	"topictree/internal/tree"
)

// DuplicateRatio is the token sort ratio above which two labels are the
// same topic.
const DuplicateRatio = 80

// Coverage reports how much of candidate appears in text, from 0 to 1, as
// the overlap coefficient of their character bigrams. Both sides go
// through Phrase first so case, punctuation and plurals do not count.
func Coverage(text, candidate string) float64 {
	a, b := Phrase(text), Phrase(candidate)
	if a == "" || b == "" {
		return 0
	}
	m := metrics.NewOverlapCoefficient()
	m.NgramSize = 2
	return strutil.Similarity(a, b, m)
}

// TokenSortRatio compares a and b with their words sorted, scaled to
// 0..100, so word order does not matter.
func TokenSortRatio(a, b string) float64 {
	sa, sb := sortedTokens(a), sortedTokens(b)
	if sa == "" && sb == "" {
		return 100
	}
	if sa == "" || sb == "" {
		return 0
	}
	return strutil.Similarity(sa, sb, metrics.NewLevenshtein()) * 100
}

// Similar reports whether a and b are near-duplicate labels.
func Similar(a, b string) bool {
	return TokenSortRatio(a, b) > DuplicateRatio
}

// Dedupe keeps the first of every group of near-duplicate labels, in order.
func Dedupe(labels []string) []string {
	out := make([]string, 0, len(labels))
	for _, label := range labels {
		if !slices.ContainsFunc(out, func(kept string) bool { return Similar(label, kept) }) {
			out = append(out, label)
		}
	}
	return out
}

// Phrase is the normalized label with words separated by spaces and a
// trailing plural "s" dropped from longer words.
func Phrase(s string) string {
	key := tree.Normalize(s)
	if key == "" {
		return ""
	}
	words := strings.Split(key, "_")
	for i, w := range words {
		if len(w) > 3 {
			words[i] = strings.TrimSuffix(w, "s")
		}
	}
	return strings.Join(words, " ")
}

func sortedTokens(s string) string {
	words := strings.Fields(strings.ToLower(s))
	slices.Sort(words)
	return strings.Join(words, " ")
}
