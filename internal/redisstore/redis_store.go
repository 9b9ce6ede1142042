// Package redisstore provides Redis-backed tree storage and a distributed
// per-tree lock.
package redisstore

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/redis/go-redis/v9"

	"topictree/internal/treestore"
)

const defaultPrefix = "topictree:"

// Store implements treestore.Backend on top of Redis strings, with a set
// indexing the known tree ids.
type Store struct {
	client *redis.Client
	prefix string
}

// NewStore parses redisURL, connects and pings the server.
func NewStore(redisURL string) (*Store, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	return connect(redis.NewClient(opts))
}

// connect pings client and closes it when Redis is unreachable.
func connect(client *redis.Client) (*Store, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}
	return NewStoreWithClient(client), nil
}

// NewStoreWithClient creates a store from an existing Redis client.
func NewStoreWithClient(client *redis.Client) *Store {
	return &Store{
		client: client,
		prefix: defaultPrefix,
	}
}

func (s *Store) Client() *redis.Client {
	return s.client
}

func (s *Store) treeKey(id string) string {
	return s.prefix + "tree:" + id
}

func (s *Store) indexKey() string {
	return s.prefix + "trees"
}

func (s *Store) Load(ctx context.Context, id string) ([]byte, error) {
	data, err := s.client.Get(ctx, s.treeKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, treestore.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load tree %s: %w", id, err)
	}
	return data, nil
}

// Save writes the document and records the id in one MULTI/EXEC.
func (s *Store) Save(ctx context.Context, id string, document []byte) error {
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, s.treeKey(id), document, 0)
		pipe.SAdd(ctx, s.indexKey(), id)
		return nil
	})
	if err != nil {
		return fmt.Errorf("save tree %s: %w", id, err)
	}
	return nil
}

func (s *Store) Exists(ctx context.Context, id string) (bool, error) {
	n, err := s.client.Exists(ctx, s.treeKey(id)).Result()
	if err != nil {
		return false, fmt.Errorf("check tree %s: %w", id, err)
	}
	return n > 0, nil
}

func (s *Store) List(ctx context.Context) ([]string, error) {
	ids, err := s.client.SMembers(ctx, s.indexKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("list trees: %w", err)
	}
	slices.Sort(ids)
	return ids, nil
}

// Close closes the Redis connection
func (s *Store) Close() error {
	return s.client.Close()
}

// Ping checks if Redis is reachable
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}
