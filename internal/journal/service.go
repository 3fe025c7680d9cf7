// Package journal keeps a per-user git repository of reflection entries so
// every edit is recoverable. Each entry lives at entries/<id>.json on the main
// branch; saves and deletes are commits.
package journal

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"bloom/api/internal/store"

	git "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
)

// Entry is the versioned snapshot of one reflection.
type Entry struct {
	Title     string   `json:"title"`
	Body      string   `json:"body"`
	Mood      string   `json:"mood,omitempty"`
	MoodScore int      `json:"mood_score,omitempty"`
	Tags      []string `json:"tags,omitempty"`
	EntryDate string   `json:"entry_date"`
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

// EnsureUserRepo initializes the user's journal repository if it does not
// exist yet.
func (s *Service) EnsureUserRepo(userID string) error {
	lock := s.userLock(userID)
	lock.Lock()
	defer lock.Unlock()
	return s.ensureRepoLocked(userID)
}

func (s *Service) ensureRepoLocked(userID string) error {
	path := s.repoPath(userID)
	if _, err := os.Stat(path); err == nil {
		return nil
	} else if !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("stat repo path: %w", err)
	}

	if err := os.MkdirAll(path, 0o755); err != nil {
		return fmt.Errorf("create repo dir: %w", err)
	}

	repo, err := git.PlainInit(path, false)
	if err != nil {
		return fmt.Errorf("init repo: %w", err)
	}

	worktree, err := repo.Worktree()
	if err != nil {
		return fmt.Errorf("open worktree: %w", err)
	}
	marker := []byte("# Journal\n\nManaged by Bloom. Do not edit by hand.\n")
	if err := os.WriteFile(filepath.Join(path, "README.md"), marker, 0o644); err != nil {
		return fmt.Errorf("write repo marker: %w", err)
	}
	if _, err := worktree.Add("README.md"); err != nil {
		return fmt.Errorf("git add marker: %w", err)
	}
	hash, err := worktree.Commit("Initialize journal", &git.CommitOptions{
		Author: signature("Bloom"),
	})
	if err != nil {
		return fmt.Errorf("commit repo marker: %w", err)
	}
	if err := repo.Storer.SetReference(plumbing.NewHashReference(plumbing.NewBranchReferenceName("main"), hash)); err != nil {
		return fmt.Errorf("set main branch ref: %w", err)
	}
	if err := repo.Storer.SetReference(plumbing.NewSymbolicReference(plumbing.HEAD, plumbing.NewBranchReferenceName("main"))); err != nil {
		return fmt.Errorf("set HEAD to main: %w", err)
	}
	return nil
}

// SaveEntry writes the entry snapshot and commits it. The repository is
// created on first save.
func (s *Service) SaveEntry(userID, entryID string, entry Entry, author, message string) (store.RevisionInfo, error) {
	lock := s.userLock(userID)
	lock.Lock()
	defer lock.Unlock()

	if err := s.ensureRepoLocked(userID); err != nil {
		return store.RevisionInfo{}, err
	}

	repo, err := git.PlainOpen(s.repoPath(userID))
	if err != nil {
		return store.RevisionInfo{}, fmt.Errorf("open repo: %w", err)
	}
	worktree, err := repo.Worktree()
	if err != nil {
		return store.RevisionInfo{}, fmt.Errorf("open worktree: %w", err)
	}

	payload, err := json.MarshalIndent(entry, "", "  ")
	if err != nil {
		return store.RevisionInfo{}, fmt.Errorf("marshal entry: %w", err)
	}

	repoRoot := worktree.Filesystem.Root()
	if err := os.MkdirAll(filepath.Join(repoRoot, "entries"), 0o755); err != nil {
		return store.RevisionInfo{}, fmt.Errorf("create entries dir: %w", err)
	}
	if err := os.WriteFile(filepath.Join(repoRoot, entryFile(entryID)), append(payload, '\n'), 0o644); err != nil {
		return store.RevisionInfo{}, fmt.Errorf("write entry: %w", err)
	}
	if _, err := worktree.Add(entryFile(entryID)); err != nil {
		return store.RevisionInfo{}, fmt.Errorf("git add entry: %w", err)
	}

	hash, err := worktree.Commit(message, &git.CommitOptions{
		Author: signature(author),
	})
	if err != nil {
		return store.RevisionInfo{}, fmt.Errorf("commit entry: %w", err)
	}

	commitObj, err := repo.CommitObject(hash)
	if err != nil {
		return store.RevisionInfo{}, fmt.Errorf("read commit object: %w", err)
	}
	return toRevisionInfo(commitObj), nil
}

// RemoveEntry commits the removal of an entry file. Missing files are a no-op
// so a storage row deleted twice does not fail.
func (s *Service) RemoveEntry(userID, entryID, author string) error {
	lock := s.userLock(userID)
	lock.Lock()
	defer lock.Unlock()

	repo, err := git.PlainOpen(s.repoPath(userID))
	if err != nil {
		if errors.Is(err, git.ErrRepositoryNotExists) {
			return nil
		}
		return fmt.Errorf("open repo: %w", err)
	}
	worktree, err := repo.Worktree()
	if err != nil {
		return fmt.Errorf("open worktree: %w", err)
	}

	if _, err := worktree.Remove(entryFile(entryID)); err != nil {
		if errors.Is(err, os.ErrNotExist) || errors.Is(err, plumbing.ErrObjectNotFound) {
			return nil
		}
		return fmt.Errorf("git rm entry: %w", err)
	}
	_, err = worktree.Commit(fmt.Sprintf("Delete entry %s", entryID), &git.CommitOptions{
		Author: signature(author),
	})
	if err != nil {
		return fmt.Errorf("commit removal: %w", err)
	}
	return nil
}

// History lists the commits that touched one entry, newest first.
func (s *Service) History(userID, entryID string, limit int) ([]store.RevisionInfo, error) {
	lock := s.userLock(userID)
	lock.Lock()
	defer lock.Unlock()

	repo, err := git.PlainOpen(s.repoPath(userID))
	if err != nil {
		return nil, fmt.Errorf("open repo: %w", err)
	}

	ref, err := repo.Reference(plumbing.NewBranchReferenceName("main"), true)
	if err != nil {
		return nil, fmt.Errorf("resolve main: %w", err)
	}

	path := entryFile(entryID)
	iter, err := repo.Log(&git.LogOptions{From: ref.Hash(), FileName: &path})
	if err != nil {
		return nil, fmt.Errorf("read log: %w", err)
	}
	defer iter.Close()

	items := make([]store.RevisionInfo, 0, limit)
	count := 0
	err = iter.ForEach(func(commitObj *object.Commit) error {
		items = append(items, toRevisionInfo(commitObj))
		count++
		if limit > 0 && count >= limit {
			return io.EOF
		}
		return nil
	})
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("iterate log: %w", err)
	}
	return items, nil
}

// EntryAtRevision reads the entry snapshot as of the given commit hash. Short
// hashes are resolved.
func (s *Service) EntryAtRevision(userID, entryID, hash string) (Entry, error) {
	lock := s.userLock(userID)
	lock.Lock()
	defer lock.Unlock()

	repo, err := git.PlainOpen(s.repoPath(userID))
	if err != nil {
		return Entry{}, fmt.Errorf("open repo: %w", err)
	}

	resolvedHash, err := resolveHash(repo, hash)
	if err != nil {
		return Entry{}, err
	}
	commitObj, err := repo.CommitObject(resolvedHash)
	if err != nil {
		return Entry{}, fmt.Errorf("read commit %s: %w", hash, err)
	}

	file, err := commitObj.File(entryFile(entryID))
	if err != nil {
		return Entry{}, fmt.Errorf("load entry from commit: %w", err)
	}
	reader, err := file.Reader()
	if err != nil {
		return Entry{}, fmt.Errorf("open entry reader: %w", err)
	}
	defer reader.Close()

	raw, err := io.ReadAll(reader)
	if err != nil {
		return Entry{}, fmt.Errorf("read entry bytes: %w", err)
	}

	var entry Entry
	if err := json.Unmarshal(raw, &entry); err != nil {
		return Entry{}, fmt.Errorf("decode entry: %w", err)
	}
	return entry, nil
}

// DeleteUserRepo removes the user's journal repository entirely. Used on
// account deletion.
func (s *Service) DeleteUserRepo(userID string) error {
	lock := s.userLock(userID)
	lock.Lock()
	defer lock.Unlock()

	if err := os.RemoveAll(s.repoPath(userID)); err != nil {
		return fmt.Errorf("remove repo: %w", err)
	}
	return nil
}

func (s *Service) repoPath(userID string) string {
	return filepath.Join(s.baseDir, userID)
}

func (s *Service) userLock(userID string) *sync.Mutex {
	s.lockMu.Lock()
	defer s.lockMu.Unlock()
	lock, ok := s.locks[userID]
	if ok {
		return lock
	}
	lock = &sync.Mutex{}
	s.locks[userID] = lock
	return lock
}

func entryFile(entryID string) string {
	return filepath.Join("entries", entryID+".json")
}

func signature(author string) *object.Signature {
	return &object.Signature{
		Name:  author,
		Email: fmt.Sprintf("%s@journal.bloom.local", sanitizeEmail(author)),
		When:  time.Now(),
	}
}

func toRevisionInfo(commitObj *object.Commit) store.RevisionInfo {
	return store.RevisionInfo{
		Hash:      commitObj.Hash.String()[:7],
		Message:   commitObj.Message,
		Author:    commitObj.Author.Name,
		CreatedAt: commitObj.Author.When,
	}
}

func sanitizeEmail(input string) string {
	runes := make([]rune, 0, len(input))
	for _, r := range input {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			runes = append(runes, r)
			continue
		}
		if r == ' ' || r == '-' || r == '_' {
			runes = append(runes, '.')
		}
	}
	if len(runes) == 0 {
		return "user"
	}
	return string(runes)
}

func resolveHash(repo *git.Repository, hash string) (plumbing.Hash, error) {
	if len(hash) == 40 {
		return plumbing.NewHash(hash), nil
	}
	resolved, err := repo.ResolveRevision(plumbing.Revision(hash))
	if err != nil {
		return plumbing.ZeroHash, fmt.Errorf("resolve hash %s: %w", hash, err)
	}
	return *resolved, nil
}
