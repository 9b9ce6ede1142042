package search

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"topictree/internal/logger"
	"topictree/internal/tree"
)

const reindexConcurrency = 4

// Service is the facade that tries the primary index first and falls back
// to the next healthy searcher.
type Service struct {
	primary  Searcher
	indexer  Indexer
	fallback []Searcher
	log      *logger.Logger

	slotsMu sync.Mutex
	slots   map[string]*indexSlot
}

// indexSlot orders index writes for one tree. latest is the newest
// snapshot sequence handed out; mu is held across delete and add.
type indexSlot struct {
	mu     sync.Mutex
	latest atomic.Uint64
}

func (s *Service) slot(treeID string) *indexSlot {
	s.slotsMu.Lock()
	defer s.slotsMu.Unlock()
	if s.slots == nil {
		s.slots = map[string]*indexSlot{}
	}
	sl, ok := s.slots[treeID]
	if !ok {
		sl = &indexSlot{}
		s.slots[treeID] = sl
	}
	return sl
}

// indexLatest writes records for treeID unless a newer snapshot was
// queued after seq, in which case that one wins and this is skipped.
func (s *Service) indexLatest(ctx context.Context, sl *indexSlot, seq uint64, treeID string, records func() ([]CommentRecord, error)) error {
	sl.mu.Lock()
	defer sl.mu.Unlock()
	if sl.latest.Load() != seq {
		s.log.Debug("skipping stale index snapshot", "tree", treeID, "seq", seq)
		return nil
	}
	recs, err := records()
	if err != nil {
		return err
	}
	return s.indexer.IndexTree(ctx, treeID, recs)
}

// NewService creates a search service. meili may be nil if Meilisearch is
// not configured; fallbacks are tried in order.
func NewService(meili *Meili, log *logger.Logger, fallbacks ...Searcher) *Service {
	if log == nil {
		log = logger.NewNop()
	}
	s := &Service{log: log.With("component", "search")}
	if meili != nil {
		s.primary = meili
		s.indexer = meili
	}
	for _, fb := range fallbacks {
		if fb != nil {
			s.fallback = append(s.fallback, fb)
		}
	}
	return s
}

// newServiceWith wires arbitrary implementations; used by tests.
func newServiceWith(primary Searcher, indexer Indexer, log *logger.Logger, fallbacks ...Searcher) *Service {
	s := NewService(nil, log, fallbacks...)
	s.primary = primary
	s.indexer = indexer
	return s
}

// Search tries the primary index if healthy, otherwise the fallbacks.
func (s *Service) Search(ctx context.Context, q Query) Response {
	searchers := s.fallback
	if s.primary != nil {
		searchers = append([]Searcher{s.primary}, s.fallback...)
	}
	for _, searcher := range searchers {
		if !searcher.Healthy() {
			continue
		}
		results, total, err := searcher.Search(ctx, q)
		if err != nil {
			s.log.Warn("search backend failed, falling back", "error", err)
			continue
		}
		return Response{Results: nonNil(results), Total: total, Query: q.Text}
	}
	return Response{Results: []Result{}, Total: 0, Query: q.Text}
}

// IndexTree pushes the tree's comments to the index without blocking the
// caller. Writes for one tree run one at a time and a snapshot superseded
// before it starts is dropped, so the index ends on the newest save.
func (s *Service) IndexTree(ctx context.Context, treeID string, t *tree.Tree) {
	if s.indexer == nil || (s.primary != nil && !s.primary.Healthy()) {
		return
	}
	records := RecordsFor(treeID, t)
	sl := s.slot(treeID)
	seq := sl.latest.Add(1)
	ctx = context.WithoutCancel(ctx)
	go func() {
		err := s.indexLatest(ctx, sl, seq, treeID, func() ([]CommentRecord, error) { return records, nil })
		if err != nil {
			s.log.Warn("index tree failed", "tree", treeID, "error", err)
		}
	}()
}

// ReindexAll reads every tree from source and rebuilds its index entries,
// returning the number of trees indexed.
func (s *Service) ReindexAll(ctx context.Context, source TreeSource) (int, error) {
	if s.indexer == nil {
		return 0, fmt.Errorf("no search index configured")
	}
	ids, err := source.List(ctx)
	if err != nil {
		return 0, fmt.Errorf("list trees: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(reindexConcurrency)
	for _, id := range ids {
		sl := s.slot(id)
		seq := sl.latest.Add(1)
		g.Go(func() error {
			// the tree is loaded under the slot lock so a save queued
			// meanwhile either is already in it or indexes after it
			return s.indexLatest(gctx, sl, seq, id, func() ([]CommentRecord, error) {
				t, err := source.Get(gctx, id)
				if err != nil {
					return nil, fmt.Errorf("load tree %s: %w", id, err)
				}
				return RecordsFor(id, t), nil
			})
		})
	}
	if err := g.Wait(); err != nil {
		return 0, err
	}
	s.log.Info("reindex complete", "trees", len(ids))
	return len(ids), nil
}

func nonNil(r []Result) []Result {
	if r == nil {
		return []Result{}
	}
	return r
}
