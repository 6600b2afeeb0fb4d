// Package gitrepo stores document revisions as commits in one git repository
// per document.
package gitrepo

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	git "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"

	"docdiff/api/internal/store"
)

const (
	contentFile = "content.json"
	mainBranch  = "main"
	emailDomain = "docdiff.local"
)

// Content is the committed snapshot of a document.
type Content struct {
	Title string `json:"title"`
	Text  string `json:"text"`
	State []byte `json:"state,omitempty"`
}

// ContentOf captures the fields of doc that a revision keeps.
func ContentOf(doc *store.Document) Content {
	return Content{Title: doc.Title, Text: doc.Text, State: doc.State}
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

// CommitRevision records content as a new revision of a document, creating
// the repository on first use.
func (s *Service) CommitRevision(documentID string, content Content, author, message string) (*store.Revision, error) {
	lock := s.documentLock(documentID)
	lock.Lock()
	defer lock.Unlock()

	repo, err := s.openOrInit(documentID)
	if err != nil {
		return nil, err
	}
	worktree, err := repo.Worktree()
	if err != nil {
		return nil, fmt.Errorf("open worktree: %w", err)
	}

	payload, err := json.MarshalIndent(content, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal content: %w", err)
	}
	if err := os.WriteFile(filepath.Join(worktree.Filesystem.Root(), contentFile), append(payload, '\n'), 0o644); err != nil {
		return nil, fmt.Errorf("write %s: %w", contentFile, err)
	}
	if _, err := worktree.Add(contentFile); err != nil {
		return nil, fmt.Errorf("git add content: %w", err)
	}

	hash, err := worktree.Commit(message, &git.CommitOptions{
		AllowEmptyCommits: true,
		Author: &object.Signature{
			Name:  author,
			Email: fmt.Sprintf("%s@%s", sanitizeEmail(author), emailDomain),
			When:  time.Now(),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("commit content: %w", err)
	}
	commit, err := repo.CommitObject(hash)
	if err != nil {
		return nil, fmt.Errorf("read commit object: %w", err)
	}
	return toRevision(documentID, commit, content), nil
}

// GetRevision loads a revision by full or abbreviated hash.
func (s *Service) GetRevision(documentID, revisionID string) (*store.Revision, error) {
	lock := s.documentLock(documentID)
	lock.Lock()
	defer lock.Unlock()

	repo, err := s.open(documentID)
	if err != nil {
		return nil, err
	}
	commit, err := resolveCommit(repo, documentID, revisionID)
	if err != nil {
		return nil, err
	}
	return readRevision(documentID, commit)
}

// LatestRevision returns the newest revision of a document.
func (s *Service) LatestRevision(documentID string) (*store.Revision, error) {
	history, err := s.History(documentID, 1)
	if err != nil {
		return nil, err
	}
	if len(history) == 0 {
		return nil, fmt.Errorf("revisions of %s: %w", documentID, store.ErrNotFound)
	}
	return history[0], nil
}

// PreviousRevision returns the revision before revisionID, or nil when
// revisionID is the first one.
func (s *Service) PreviousRevision(documentID, revisionID string) (*store.Revision, error) {
	lock := s.documentLock(documentID)
	lock.Lock()
	defer lock.Unlock()

	repo, err := s.open(documentID)
	if err != nil {
		return nil, err
	}
	commit, err := resolveCommit(repo, documentID, revisionID)
	if err != nil {
		return nil, err
	}
	if commit.NumParents() == 0 {
		return nil, nil
	}
	parent, err := commit.Parent(0)
	if err != nil {
		return nil, fmt.Errorf("read parent of %s: %w", revisionID, err)
	}
	return readRevision(documentID, parent)
}

// History lists revisions newest first. A limit of zero or less lists all.
func (s *Service) History(documentID string, limit int) ([]*store.Revision, error) {
	lock := s.documentLock(documentID)
	lock.Lock()
	defer lock.Unlock()

	repo, err := s.open(documentID)
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

	var items []*store.Revision
	err = iter.ForEach(func(commit *object.Commit) error {
		rev, err := readRevision(documentID, commit)
		if err != nil {
			return err
		}
		items = append(items, rev)
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

func (s *Service) repoPath(documentID string) string {
	return filepath.Join(s.baseDir, documentID)
}

func (s *Service) documentLock(documentID string) *sync.Mutex {
	s.lockMu.Lock()
	defer s.lockMu.Unlock()
	lock, ok := s.locks[documentID]
	if ok {
		return lock
	}
	lock = &sync.Mutex{}
	s.locks[documentID] = lock
	return lock
}

func (s *Service) open(documentID string) (*git.Repository, error) {
	repo, err := git.PlainOpen(s.repoPath(documentID))
	if errors.Is(err, git.ErrRepositoryNotExists) {
		return nil, fmt.Errorf("revisions of %s: %w", documentID, store.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("open repo: %w", err)
	}
	return repo, nil
}

func (s *Service) openOrInit(documentID string) (*git.Repository, error) {
	path := s.repoPath(documentID)
	repo, err := git.PlainOpen(path)
	if err == nil {
		return repo, nil
	}
	if !errors.Is(err, git.ErrRepositoryNotExists) {
		return nil, fmt.Errorf("open repo: %w", err)
	}

	if err := os.MkdirAll(path, 0o755); err != nil {
		return nil, fmt.Errorf("create repo dir: %w", err)
	}
	repo, err = git.PlainInit(path, false)
	if err != nil {
		return nil, fmt.Errorf("init repo: %w", err)
	}
	head := plumbing.NewSymbolicReference(plumbing.HEAD, plumbing.NewBranchReferenceName(mainBranch))
	if err := repo.Storer.SetReference(head); err != nil {
		return nil, fmt.Errorf("set HEAD to %s: %w", mainBranch, err)
	}
	return repo, nil
}

func resolveCommit(repo *git.Repository, documentID, revisionID string) (*object.Commit, error) {
	var hash plumbing.Hash
	if len(revisionID) == 40 {
		hash = plumbing.NewHash(revisionID)
	} else {
		resolved, err := repo.ResolveRevision(plumbing.Revision(revisionID))
		if err != nil {
			return nil, fmt.Errorf("revision %s of %s: %w", revisionID, documentID, store.ErrNotFound)
		}
		hash = *resolved
	}
	commit, err := repo.CommitObject(hash)
	if errors.Is(err, plumbing.ErrObjectNotFound) {
		return nil, fmt.Errorf("revision %s of %s: %w", revisionID, documentID, store.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("read commit %s: %w", revisionID, err)
	}
	return commit, nil
}

func readRevision(documentID string, commit *object.Commit) (*store.Revision, error) {
	file, err := commit.File(contentFile)
	if err != nil {
		return nil, fmt.Errorf("load %s from commit: %w", contentFile, err)
	}
	reader, err := file.Reader()
	if err != nil {
		return nil, fmt.Errorf("open content reader: %w", err)
	}
	defer reader.Close()

	raw, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("read content bytes: %w", err)
	}
	var content Content
	if err := json.Unmarshal(raw, &content); err != nil {
		return nil, fmt.Errorf("decode commit content: %w", err)
	}
	return toRevision(documentID, commit, content), nil
}

func toRevision(documentID string, commit *object.Commit, content Content) *store.Revision {
	return &store.Revision{
		ID:         commit.Hash.String(),
		DocumentID: documentID,
		Title:      content.Title,
		Text:       content.Text,
		State:      content.State,
		AuthorName: commit.Author.Name,
		Message:    commit.Message,
		CreatedAt:  commit.Author.When,
	}
}

func sanitizeEmail(input string) string {
	out := make([]rune, 0, len(input))
	for _, r := range input {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			out = append(out, r)
			continue
		}
		if r == ' ' || r == '-' || r == '_' {
			out = append(out, '.')
		}
	}
	if len(out) == 0 {
		return "user"
	}
	return string(out)
}
