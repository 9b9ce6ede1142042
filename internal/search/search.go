package search

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"topictree/internal/tree"
)

// Result is a single search hit returned to the caller.
type Result struct {
	ID        string   `json:"id"`
	TreeID    string   `json:"treeId"`
	MainTopic string   `json:"mainTopic"`
	Path      []string `json:"path"`
	Comment   string   `json:"comment"`
	Snippet   string   `json:"snippet"`
}

// Query describes a search request.
type Query struct {
	Text   string
	TreeID string // empty = all trees
	Limit  int
	Offset int
}

// Response is the envelope returned by the search endpoint.
type Response struct {
	Results []Result `json:"results"`
	Total   int      `json:"total"`
	Query   string   `json:"query"`
}

// Searcher can execute a full-text search.
type Searcher interface {
	Search(ctx context.Context, q Query) ([]Result, int, error)
	Healthy() bool
}

// Indexer replaces the indexed comments of one tree.
type Indexer interface {
	IndexTree(ctx context.Context, treeID string, records []CommentRecord) error
}

// CommentRecord is one comment filed at one node of a tree.
type CommentRecord struct {
	ID        string   `json:"id"`
	TreeID    string   `json:"treeId"`
	MainKey   string   `json:"mainKey"`
	MainTopic string   `json:"mainTopic"`
	PathKeys  []string `json:"pathKeys"`
	Path      []string `json:"path"`
	Comment   string   `json:"comment"`
}

// RecordsFor flattens a tree into one record per (node, comment) pair.
func RecordsFor(treeID string, t *tree.Tree) []CommentRecord {
	leaves := t.Leaves()
	records := make([]CommentRecord, 0, len(leaves))
	for _, leaf := range leaves {
		for _, comment := range leaf.Comments {
			records = append(records, CommentRecord{
				ID:        recordID(treeID, leaf.MainKey, leaf.Keys, comment),
				TreeID:    treeID,
				MainKey:   leaf.MainKey,
				MainTopic: leaf.MainLabel,
				PathKeys:  nonNilStrings(leaf.Keys),
				Path:      nonNilStrings(leaf.Labels),
				Comment:   comment,
			})
		}
	}
	return records
}

func recordID(treeID, mainKey string, keys []string, comment string) string {
	h := sha256.New()
	h.Write([]byte(treeID))
	h.Write([]byte{0})
	h.Write([]byte(mainKey))
	h.Write([]byte{0})
	h.Write([]byte(strings.Join(keys, "/")))
	h.Write([]byte{0})
	h.Write([]byte(comment))
	return hex.EncodeToString(h.Sum(nil))[:32]
}

func nonNilStrings(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}
