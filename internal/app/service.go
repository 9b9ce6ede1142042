package app

import (
	"context"
	"net/http"
	"strings"

	"topictree/internal/export"
	"topictree/internal/gitrepo"
	"topictree/internal/logger"
	"topictree/internal/search"
	"topictree/internal/tagger"
	"topictree/internal/tree"
	"topictree/internal/treestore"
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 500
)

// historyStore is implemented by backends that keep past versions.
type historyStore interface {
	History(ctx context.Context, id string, limit int) ([]gitrepo.CommitInfo, error)
	LoadAt(ctx context.Context, id, hash string) ([]byte, error)
}

type InsertCommentInput struct {
	Main    string     `json:"main"`
	Paths   [][]string `json:"paths"`
	Comment string     `json:"comment"`
}

type Deps struct {
	Store  *treestore.Store
	Tagger *tagger.Tagger
	Search *search.Service
	Export *export.Service
	Logger *logger.Logger
}

type Service struct {
	store   *treestore.Store
	tagger  *tagger.Tagger
	search  *search.Service
	export  *export.Service
	history historyStore
	logger  *logger.Logger
}

// New builds the service. Version history is available when the store's
// backend keeps it.
func New(d Deps) *Service {
	log := d.Logger
	if log == nil {
		log = logger.NewNop()
	}
	s := &Service{
		store:  d.Store,
		tagger: d.Tagger,
		search: d.Search,
		export: d.Export,
		logger: log,
	}
	if h, ok := d.Store.Backend().(historyStore); ok {
		s.history = h
	}
	if s.search == nil {
		s.search = search.NewService(nil, log, search.NewScan(d.Store))
	}
	if s.export == nil {
		s.export = export.NewService(d.Store, nil)
	}
	return s
}

func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

func (s *Service) CreateTree(ctx context.Context) (string, error) {
	id, err := s.store.Create(ctx)
	if err != nil {
		return "", err
	}
	s.logger.Info("tree created", "tree_id", id)
	return id, nil
}

func (s *Service) ListTrees(ctx context.Context) ([]string, error) {
	return s.store.List(ctx)
}

func (s *Service) GetTree(ctx context.Context, id string) (*tree.Tree, error) {
	return s.store.Get(ctx, id)
}

// GetTreeAt returns the tree as of a past revision.
func (s *Service) GetTreeAt(ctx context.Context, id, revision string) (*tree.Tree, error) {
	if s.history == nil {
		return nil, historyUnsupported()
	}
	if err := s.requireTree(ctx, id); err != nil {
		return nil, err
	}
	doc, err := s.history.LoadAt(ctx, id, revision)
	if err != nil {
		return nil, err
	}
	return tree.Decode(doc)
}

func (s *Service) MainTopics(ctx context.Context, id string) ([]string, error) {
	return s.store.ListMainTopics(ctx, id)
}

func (s *Service) Tag(ctx context.Context, id, comment string) (tagger.Result, error) {
	if s.tagger == nil {
		return tagger.Result{}, domainError(http.StatusServiceUnavailable, "TAGGER_UNAVAILABLE", "Tagging is not configured", nil)
	}
	return s.tagger.Tag(ctx, id, comment)
}

// InsertComment files a comment under explicit paths, bypassing topic
// resolution.
func (s *Service) InsertComment(ctx context.Context, id string, in InsertCommentInput) (*tree.Tree, error) {
	if strings.TrimSpace(in.Main) == "" {
		return nil, validationError("main is required")
	}
	if strings.TrimSpace(in.Comment) == "" {
		return nil, validationError("comment is required")
	}
	return s.store.InsertComment(ctx, id, in.Main, in.Paths, in.Comment)
}

func (s *Service) History(ctx context.Context, id string, limit int) ([]gitrepo.CommitInfo, error) {
	if s.history == nil {
		return nil, historyUnsupported()
	}
	if err := s.requireTree(ctx, id); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	return s.history.History(ctx, id, min(limit, maxHistoryLimit))
}

func (s *Service) Export(ctx context.Context, id string, format export.Format) (*export.Result, error) {
	return s.export.Export(ctx, export.Request{TreeID: id, Format: format})
}

func (s *Service) Search(ctx context.Context, q search.Query) search.Response {
	return s.search.Search(ctx, q)
}

func (s *Service) Reindex(ctx context.Context) (int, error) {
	return s.search.ReindexAll(ctx, s.store)
}

func (s *Service) requireTree(ctx context.Context, id string) error {
	exists, err := s.store.Exists(ctx, id)
	if err != nil {
		return err
	}
	if !exists {
		return treestore.ErrNotFound
	}
	return nil
}

func historyUnsupported() *DomainError {
	return domainError(http.StatusNotImplemented, "HISTORY_UNSUPPORTED", "The configured store does not keep history", nil)
}
