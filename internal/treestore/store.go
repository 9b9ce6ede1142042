// Package treestore maps tree ids to persisted topic trees. Every read
// decodes a fresh tree and every write replaces the whole document.
package treestore

import (
	"context"
	"fmt"
	"time"

	"topictree/internal/tree"
	"topictree/internal/util"
)

const defaultLockTTL = 30 * time.Second

type Options struct {
	Locker  Locker
	LockTTL time.Duration
	// AfterSave runs once a document has been written, with a tree the
	// hook may keep.
	AfterSave func(ctx context.Context, id string, t *tree.Tree)
}

type Store struct {
	backend   Backend
	locker    Locker
	lockTTL   time.Duration
	afterSave func(ctx context.Context, id string, t *tree.Tree)
}

func New(backend Backend, opts Options) *Store {
	locker := opts.Locker
	if locker == nil {
		locker = NewLocalLocker()
	}
	ttl := opts.LockTTL
	if ttl <= 0 {
		ttl = defaultLockTTL
	}
	return &Store{
		backend:   backend,
		locker:    locker,
		lockTTL:   ttl,
		afterSave: opts.AfterSave,
	}
}

func (s *Store) Backend() Backend {
	return s.backend
}

// Create persists an empty tree under a fresh id.
func (s *Store) Create(ctx context.Context) (string, error) {
	id := util.NewID("")
	if err := s.write(ctx, id, tree.New()); err != nil {
		return "", err
	}
	return id, nil
}

func (s *Store) Get(ctx context.Context, id string) (*tree.Tree, error) {
	if !util.ValidID(id) {
		return nil, fmt.Errorf("load tree %q: %w", id, ErrNotFound)
	}
	doc, err := s.backend.Load(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load tree %s: %w", id, err)
	}
	t, err := tree.Decode(doc)
	if err != nil {
		return nil, fmt.Errorf("load tree %s: %w", id, err)
	}
	return t, nil
}

func (s *Store) Exists(ctx context.Context, id string) (bool, error) {
	if !util.ValidID(id) {
		return false, nil
	}
	return s.backend.Exists(ctx, id)
}

// ListMainTopics returns the display labels of the tree's main topics in
// stored order.
func (s *Store) ListMainTopics(ctx context.Context, id string) ([]string, error) {
	t, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return t.MainTopics(), nil
}

// Save overwrites the document stored under id.
func (s *Store) Save(ctx context.Context, id string, t *tree.Tree) error {
	if !util.ValidID(id) {
		return fmt.Errorf("save tree %q: %w", id, ErrNotFound)
	}
	unlock, err := s.locker.Lock(ctx, id, s.lockTTL)
	if err != nil {
		return fmt.Errorf("lock tree %s: %w", id, err)
	}
	defer unlock()
	return s.write(ctx, id, t)
}

// InsertComment files comment into an existing tree and returns the
// updated tree. Nothing is written when the id is unknown or the insertion
// is rejected.
func (s *Store) InsertComment(ctx context.Context, id, main string, paths [][]string, comment string) (*tree.Tree, error) {
	return s.Update(ctx, id, func(t *tree.Tree) error {
		return t.Insert(main, paths, comment)
	})
}

// Update runs fn on the current tree while holding the tree's lock and
// saves the result if fn succeeds.
func (s *Store) Update(ctx context.Context, id string, fn func(*tree.Tree) error) (*tree.Tree, error) {
	if !util.ValidID(id) {
		return nil, fmt.Errorf("update tree %q: %w", id, ErrNotFound)
	}
	unlock, err := s.locker.Lock(ctx, id, s.lockTTL)
	if err != nil {
		return nil, fmt.Errorf("lock tree %s: %w", id, err)
	}
	defer unlock()

	t, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := fn(t); err != nil {
		return nil, err
	}
	if err := s.write(ctx, id, t); err != nil {
		return nil, err
	}
	return t, nil
}

func (s *Store) List(ctx context.Context) ([]string, error) {
	ids, err := s.backend.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list trees: %w", err)
	}
	return ids, nil
}

func (s *Store) Ping(ctx context.Context) error {
	if pinger, ok := s.backend.(Pinger); ok {
		return pinger.Ping(ctx)
	}
	return nil
}

func (s *Store) write(ctx context.Context, id string, t *tree.Tree) error {
	doc, err := tree.Encode(t)
	if err != nil {
		return fmt.Errorf("save tree %s: %w", id, err)
	}
	if err := s.backend.Save(ctx, id, doc); err != nil {
		return fmt.Errorf("save tree %s: %w", id, err)
	}
	if s.afterSave != nil {
		s.afterSave(ctx, id, t.Clone())
	}
	return nil
}
