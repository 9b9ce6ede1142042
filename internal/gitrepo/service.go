// Package gitrepo stores each tree as tree.json in its own git repository,
// so every save becomes a commit and past versions stay readable.
package gitrepo

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	git "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"

	"topictree/internal/treestore"
	"topictree/internal/util"
)

const (
	treeFile    = "tree.json"
	mainBranch  = "main"
	authorName  = "topictree"
	authorEmail = "topictree@localhost"
)

var ErrRevisionNotFound = errors.New("revision not found")

type CommitInfo struct {
	Hash      string    `json:"hash"`
	Message   string    `json:"message"`
	Author    string    `json:"author"`
	CreatedAt time.Time `json:"createdAt"`
}

type Service struct {
	baseDir string
	lockMu  sync.Mutex
	locks   map[string]*sync.Mutex
}

func New(baseDir string) *Service {
	return &Service{
		baseDir: baseDir,
		locks:   make(map[string]*sync.Mutex),
	}
}

func (s *Service) Ping(context.Context) error {
	if err := os.MkdirAll(s.baseDir, 0o755); err != nil {
		return fmt.Errorf("create trees dir: %w", err)
	}
	return nil
}

func (s *Service) Exists(_ context.Context, id string) (bool, error) {
	_, err := os.Stat(filepath.Join(s.repoPath(id), ".git"))
	if err == nil {
		return true, nil
	}
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	return false, fmt.Errorf("stat repo path: %w", err)
}

// Load returns tree.json as of the head of main.
func (s *Service) Load(_ context.Context, id string) ([]byte, error) {
	lock := s.treeLock(id)
	lock.Lock()
	defer lock.Unlock()

	repo, err := s.open(id)
	if err != nil {
		return nil, err
	}
	ref, err := repo.Reference(plumbing.NewBranchReferenceName(mainBranch), true)
	if err != nil {
		return nil, fmt.Errorf("resolve branch %s: %w", mainBranch, err)
	}
	commitObj, err := repo.CommitObject(ref.Hash())
	if err != nil {
		return nil, fmt.Errorf("load commit object: %w", err)
	}
	return readTreeFromCommit(commitObj)
}

// Save commits document as the new tree.json, creating the repository on
// first save. Saving an unchanged document adds no commit.
func (s *Service) Save(_ context.Context, id string, document []byte) error {
	lock := s.treeLock(id)
	lock.Lock()
	defer lock.Unlock()

	path := s.repoPath(id)
	repo, err := git.PlainOpen(path)
	message := "Update tree"
	if errors.Is(err, git.ErrRepositoryNotExists) {
		if repo, err = initRepo(path); err != nil {
			return err
		}
		message = "Create tree"
	} else if err != nil {
		return fmt.Errorf("open repo: %w", err)
	}
	_, err = commit(repo, document, message)
	return err
}

func (s *Service) List(context.Context) ([]string, error) {
	entries, err := os.ReadDir(s.baseDir)
	if errors.Is(err, os.ErrNotExist) {
		return []string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read trees dir: %w", err)
	}
	ids := make([]string, 0, len(entries))
	for _, entry := range entries {
		if !entry.IsDir() || !util.ValidID(entry.Name()) {
			continue
		}
		if _, err := os.Stat(filepath.Join(s.baseDir, entry.Name(), ".git")); err != nil {
			continue
		}
		ids = append(ids, entry.Name())
	}
	sort.Strings(ids)
	return ids, nil
}

// History lists commits on main, newest first. A limit of zero or less
// returns every commit.
func (s *Service) History(_ context.Context, id string, limit int) ([]CommitInfo, error) {
	lock := s.treeLock(id)
	lock.Lock()
	defer lock.Unlock()

	repo, err := s.open(id)
	if err != nil {
		return nil, err
	}
	ref, err := repo.Reference(plumbing.NewBranchReferenceName(mainBranch), true)
	if err != nil {
		return nil, fmt.Errorf("resolve branch %s: %w", mainBranch, err)
	}

	iter, err := repo.Log(&git.LogOptions{From: ref.Hash()})
	if err != nil {
		return nil, fmt.Errorf("read log: %w", err)
	}
	defer iter.Close()

	items := make([]CommitInfo, 0, max(limit, 0))
	err = iter.ForEach(func(commitObj *object.Commit) error {
		items = append(items, toCommitInfo(commitObj))
		if limit > 0 && len(items) >= limit {
			return io.EOF
		}
		return nil
	})
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("iterate log: %w", err)
	}
	return items, nil
}

// LoadAt returns tree.json as of the given commit; short hashes are accepted.
func (s *Service) LoadAt(_ context.Context, id, hash string) ([]byte, error) {
	lock := s.treeLock(id)
	lock.Lock()
	defer lock.Unlock()

	repo, err := s.open(id)
	if err != nil {
		return nil, err
	}
	resolvedHash, err := resolveHash(repo, hash)
	if err != nil {
		return nil, err
	}
	commitObj, err := repo.CommitObject(resolvedHash)
	if errors.Is(err, plumbing.ErrObjectNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrRevisionNotFound, hash)
	}
	if err != nil {
		return nil, fmt.Errorf("read commit %s: %w", hash, err)
	}
	return readTreeFromCommit(commitObj)
}

func (s *Service) open(id string) (*git.Repository, error) {
	repo, err := git.PlainOpen(s.repoPath(id))
	if errors.Is(err, git.ErrRepositoryNotExists) {
		return nil, treestore.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("open repo: %w", err)
	}
	return repo, nil
}

func (s *Service) repoPath(id string) string {
	return filepath.Join(s.baseDir, id)
}

func (s *Service) treeLock(id string) *sync.Mutex {
	s.lockMu.Lock()
	defer s.lockMu.Unlock()
	lock, ok := s.locks[id]
	if ok {
		return lock
	}
	lock = &sync.Mutex{}
	s.locks[id] = lock
	return lock
}

func initRepo(path string) (*git.Repository, error) {
	if err := os.MkdirAll(path, 0o755); err != nil {
		return nil, fmt.Errorf("create repo dir: %w", err)
	}
	repo, err := git.PlainInitWithOptions(path, &git.PlainInitOptions{
		InitOptions: git.InitOptions{DefaultBranch: plumbing.NewBranchReferenceName(mainBranch)},
	})
	if err != nil {
		return nil, fmt.Errorf("init repo: %w", err)
	}
	return repo, nil
}

func commit(repo *git.Repository, document []byte, message string) (plumbing.Hash, error) {
	worktree, err := repo.Worktree()
	if err != nil {
		return plumbing.ZeroHash, fmt.Errorf("open worktree: %w", err)
	}

	repoRoot := worktree.Filesystem.Root()
	payload := append(append([]byte{}, document...), '\n')
	if err := os.WriteFile(filepath.Join(repoRoot, treeFile), payload, 0o644); err != nil {
		return plumbing.ZeroHash, fmt.Errorf("write %s: %w", treeFile, err)
	}
	if _, err := worktree.Add(treeFile); err != nil {
		return plumbing.ZeroHash, fmt.Errorf("git add tree: %w", err)
	}

	hash, err := worktree.Commit(message, &git.CommitOptions{
		Author: &object.Signature{
			Name:  authorName,
			Email: authorEmail,
			When:  time.Now(),
		},
	})
	if errors.Is(err, git.ErrEmptyCommit) {
		return plumbing.ZeroHash, nil
	}
	if err != nil {
		return plumbing.ZeroHash, fmt.Errorf("commit tree: %w", err)
	}
	return hash, nil
}

func readTreeFromCommit(commitObj *object.Commit) ([]byte, error) {
	file, err := commitObj.File(treeFile)
	if err != nil {
		return nil, fmt.Errorf("load %s from commit: %w", treeFile, err)
	}
	reader, err := file.Reader()
	if err != nil {
		return nil, fmt.Errorf("open tree reader: %w", err)
	}
	defer reader.Close()

	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("read tree bytes: %w", err)
	}
	return data, nil
}

func toCommitInfo(commitObj *object.Commit) CommitInfo {
	return CommitInfo{
		Hash:      commitObj.Hash.String()[:7],
		Message:   commitObj.Message,
		Author:    commitObj.Author.Name,
		CreatedAt: commitObj.Author.When,
	}
}

func resolveHash(repo *git.Repository, hash string) (plumbing.Hash, error) {
	if len(hash) == 40 {
		return plumbing.NewHash(hash), nil
	}
	resolved, err := repo.ResolveRevision(plumbing.Revision(hash))
	if err != nil {
		return plumbing.ZeroHash, fmt.Errorf("%w: %s: %v", ErrRevisionNotFound, hash, err)
	}
	return *resolved, nil
}
