package search

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"topictree/internal/tree"
	"topictree/internal/treestore"
)

// TreeSource is the read side of the tree store needed for scanning and
// reindexing.
type TreeSource interface {
	List(ctx context.Context) ([]string, error)
	Get(ctx context.Context, id string) (*tree.Tree, error)
}

// Scan is the last-resort Searcher: it loads trees and matches every query
// term as a case-insensitive substring of the comment, main topic or path.
type Scan struct {
	source TreeSource
}

func NewScan(source TreeSource) *Scan {
	return &Scan{source: source}
}

func (s *Scan) Healthy() bool {
	return s.source != nil
}

func (s *Scan) Search(ctx context.Context, q Query) ([]Result, int, error) {
	terms := strings.Fields(strings.ToLower(q.Text))
	if len(terms) == 0 {
		return nil, 0, nil
	}

	ids := []string{q.TreeID}
	if q.TreeID == "" {
		var err error
		if ids, err = s.source.List(ctx); err != nil {
			return nil, 0, fmt.Errorf("scan list trees: %w", err)
		}
	}

	var matches []Result
	for _, id := range ids {
		t, err := s.source.Get(ctx, id)
		if errors.Is(err, treestore.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, 0, fmt.Errorf("scan load tree %s: %w", id, err)
		}
		for _, record := range RecordsFor(id, t) {
			if matchesAll(record, terms) {
				matches = append(matches, Result{
					ID:        record.ID,
					TreeID:    record.TreeID,
					MainTopic: record.MainTopic,
					Path:      record.Path,
					Comment:   record.Comment,
					Snippet:   record.Comment,
				})
			}
		}
	}

	total := len(matches)
	limit := q.Limit
	if limit <= 0 {
		limit = 20
	}
	offset := max(q.Offset, 0)
	if offset >= total {
		return nil, total, nil
	}
	end := min(offset+limit, total)
	return matches[offset:end], total, nil
}

func matchesAll(record CommentRecord, terms []string) bool {
	haystack := strings.ToLower(record.Comment + " " + record.MainTopic + " " + strings.Join(record.Path, " "))
	for _, term := range terms {
		if !strings.Contains(haystack, term) {
			return false
		}
	}
	return true
}
