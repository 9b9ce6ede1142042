// Package nlp extracts candidate subtopics from comment text using
// part-of-speech tagging.
package nlp

import (
	"context"
	"strings"
	"unicode/utf8"

	"github.com/jdkato/prose/v2"
)

const (
	DefaultMaxNouns = 4
	defaultTopic    = "general"
)

// NounExtractor returns the distinct nouns of a comment in order of
// appearance. It never fails: text without usable nouns yields
// ["general"].
type NounExtractor struct {
	Max int
}

func (e NounExtractor) Extract(_ context.Context, text string) []string {
	limit := e.Max
	if limit <= 0 {
		limit = DefaultMaxNouns
	}
	seen := make(map[string]bool)
	out := make([]string, 0, limit)
	for _, noun := range Nouns(text) {
		if seen[noun] {
			continue
		}
		seen[noun] = true
		out = append(out, noun)
		if len(out) == limit {
			break
		}
	}
	if len(out) == 0 {
		return []string{defaultTopic}
	}
	return out
}

// FirstNoun returns the first noun of text, or "" when there is none.
func FirstNoun(text string) string {
	nouns := Nouns(text)
	if len(nouns) == 0 {
		return ""
	}
	return nouns[0]
}

// Nouns lower-cases text and returns every token tagged as a noun that is
// longer than two characters.
func Nouns(text string) []string {
	text = strings.TrimSpace(strings.ToLower(text))
	if text == "" {
		return nil
	}
	doc, err := prose.NewDocument(text,
		prose.WithSegmentation(false),
		prose.WithExtraction(false),
	)
	if err != nil {
		return nil
	}
	var nouns []string
	for _, tok := range doc.Tokens() {
		if strings.HasPrefix(tok.Tag, "NN") && utf8.RuneCountInString(tok.Text) > 2 {
			nouns = append(nouns, tok.Text)
		}
	}
	return nouns
}
