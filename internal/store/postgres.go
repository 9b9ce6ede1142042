package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"topictree/internal/search"
	"topictree/internal/tree"
	"topictree/internal/treestore"
)

// PostgresStore keeps each tree document in topic_trees and mirrors its
// comments into topic_comments for full-text search.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) DB() *sql.DB {
	return s.db
}

func (s *PostgresStore) Load(ctx context.Context, id string) ([]byte, error) {
	var document string
	err := s.db.QueryRowContext(ctx, `SELECT document::text FROM topic_trees WHERE id=$1`, id).Scan(&document)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, treestore.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load tree %s: %w", id, err)
	}
	return []byte(document), nil
}

// Save upserts the document and replaces the tree's comment rows in one
// transaction.
func (s *PostgresStore) Save(ctx context.Context, id string, document []byte) error {
	t, err := tree.Decode(document)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin save tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO topic_trees (id, document)
		VALUES ($1, $2::json)
		ON CONFLICT (id) DO UPDATE SET document = EXCLUDED.document, updated_at = NOW()
	`, id, string(document)); err != nil {
		return fmt.Errorf("upsert tree %s: %w", id, err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM topic_comments WHERE tree_id=$1`, id); err != nil {
		return fmt.Errorf("clear comments %s: %w", id, err)
	}

	for i, record := range search.RecordsFor(id, t) {
		keys, err := json.Marshal(record.PathKeys)
		if err != nil {
			return fmt.Errorf("encode path keys: %w", err)
		}
		labels, err := json.Marshal(record.Path)
		if err != nil {
			return fmt.Errorf("encode path labels: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO topic_comments (id, tree_id, position, main_key, main_label, path_keys, path_labels, path_text, comment)
			VALUES ($1, $2, $3, $4, $5, $6::json, $7::json, $8, $9)
			ON CONFLICT (tree_id, id) DO NOTHING
		`, record.ID, id, i, record.MainKey, record.MainTopic, string(keys), string(labels),
			strings.Join(record.Path, " "), record.Comment); err != nil {
			return fmt.Errorf("insert comment row: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit save tx: %w", err)
	}
	return nil
}

func (s *PostgresStore) Exists(ctx context.Context, id string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM topic_trees WHERE id=$1)`, id).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check tree %s: %w", id, err)
	}
	return exists, nil
}

func (s *PostgresStore) List(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id FROM topic_trees ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list trees: %w", err)
	}
	defer rows.Close()

	ids := make([]string, 0)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan tree id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate trees: %w", err)
	}
	return ids, nil
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}
