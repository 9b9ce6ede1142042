package search

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
)

// PgFTS implements Searcher using PostgreSQL full-text search over the
// topic_comments table kept in sync by the postgres tree backend.
type PgFTS struct {
	db *sql.DB
}

// NewPgFTS creates a PostgreSQL FTS searcher.
func NewPgFTS(db *sql.DB) *PgFTS {
	return &PgFTS{db: db}
}

// Healthy always returns true; if Postgres is down, the tree store is down too.
func (p *PgFTS) Healthy() bool {
	return true
}

// Search ranks comments with plainto_tsquery and ts_rank, using ts_headline
// for snippets.
func (p *PgFTS) Search(ctx context.Context, q Query) ([]Result, int, error) {
	if strings.TrimSpace(q.Text) == "" {
		return nil, 0, nil
	}

	limit := q.Limit
	if limit <= 0 {
		limit = 20
	}
	offset := q.Offset
	if offset < 0 {
		offset = 0
	}

	tsQuery := "plainto_tsquery('english', $1)"
	args := []any{q.Text}
	argN := 2

	where := "c.fts @@ " + tsQuery
	if q.TreeID != "" {
		where += fmt.Sprintf(" AND c.tree_id = $%d", argN)
		args = append(args, q.TreeID)
		argN++
	}

	var total int
	countSQL := "SELECT count(*) FROM topic_comments c WHERE " + where
	if err := p.db.QueryRowContext(ctx, countSQL, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("pgfts count: %w", err)
	}

	searchSQL := fmt.Sprintf(`
		SELECT c.id, c.tree_id, c.main_label, c.path_labels::text, c.comment,
			ts_headline('english', c.comment, %s, 'MaxFragments=1,MaxWords=30,StartSel=<mark>,StopSel=</mark>') AS snippet
		FROM topic_comments c
		WHERE %s
		ORDER BY ts_rank(c.fts, %s) DESC, c.id
		LIMIT $%d OFFSET $%d`, tsQuery, where, tsQuery, argN, argN+1)
	args = append(args, limit, offset)

	rows, err := p.db.QueryContext(ctx, searchSQL, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("pgfts search: %w", err)
	}
	defer rows.Close()

	var results []Result
	for rows.Next() {
		var r Result
		var pathJSON string
		if err := rows.Scan(&r.ID, &r.TreeID, &r.MainTopic, &pathJSON, &r.Comment, &r.Snippet); err != nil {
			return nil, 0, fmt.Errorf("pgfts scan: %w", err)
		}
		r.Path = []string{}
		if err := json.Unmarshal([]byte(pathJSON), &r.Path); err != nil {
			return nil, 0, fmt.Errorf("pgfts decode path: %w", err)
		}
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("pgfts rows: %w", err)
	}
	return results, total, nil
}
