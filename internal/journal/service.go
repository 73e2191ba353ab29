// Package journal keeps a git-backed archive of session transcripts, one
// repository per workspace. Every ended session becomes one commit, so the
// workspace history doubles as an audit trail that standard git tooling can
// inspect.
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

	git "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"

	"coedit/api/internal/collab"
)

// CommitInfo describes one journal commit.
type CommitInfo struct {
	Hash      string    `json:"hash"`
	Message   string    `json:"message"`
	Author    string    `json:"author"`
	CreatedAt time.Time `json:"createdAt"`
}

type workspaceMeta struct {
	WorkspaceID string    `json:"workspaceId"`
	CreatedAt   time.Time `json:"createdAt"`
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

// RecordTranscript commits a session transcript to its workspace journal,
// initializing the repository on first use.
func (s *Service) RecordTranscript(tr collab.Transcript) (CommitInfo, error) {
	workspaceID := tr.Session.WorkspaceID
	if workspaceID == "" {
		workspaceID = "default"
	}

	lock := s.workspaceLock(workspaceID)
	lock.Lock()
	defer lock.Unlock()

	repo, err := s.ensureRepoLocked(workspaceID)
	if err != nil {
		return CommitInfo{}, err
	}

	worktree, err := repo.Worktree()
	if err != nil {
		return CommitInfo{}, fmt.Errorf("open worktree: %w", err)
	}

	payload, err := json.MarshalIndent(tr, "", "  ")
	if err != nil {
		return CommitInfo{}, fmt.Errorf("marshal transcript: %w", err)
	}

	repoRoot := worktree.Filesystem.Root()
	relPath := filepath.Join("transcripts", tr.Session.ID+".json")
	if err := os.MkdirAll(filepath.Join(repoRoot, "transcripts"), 0o755); err != nil {
		return CommitInfo{}, fmt.Errorf("create transcripts dir: %w", err)
	}
	if err := os.WriteFile(filepath.Join(repoRoot, relPath), append(payload, '\n'), 0o644); err != nil {
		return CommitInfo{}, fmt.Errorf("write transcript: %w", err)
	}
	if _, err := worktree.Add(relPath); err != nil {
		return CommitInfo{}, fmt.Errorf("git add transcript: %w", err)
	}

	author := hostName(tr)
	message := fmt.Sprintf("Archive session %s (%s)", tr.Session.Name, tr.Session.ID)
	hash, err := worktree.Commit(message, &git.CommitOptions{
		Author: &object.Signature{
			Name:  author,
			Email: fmt.Sprintf("%s@local.coedit.dev", sanitizeEmail(author)),
			When:  time.Now(),
		},
	})
	if err != nil {
		return CommitInfo{}, fmt.Errorf("commit transcript: %w", err)
	}

	commitObj, err := repo.CommitObject(hash)
	if err != nil {
		return CommitInfo{}, fmt.Errorf("read commit object: %w", err)
	}
	return toCommitInfo(commitObj), nil
}

// ReadTranscript loads a transcript back from the journal head.
func (s *Service) ReadTranscript(workspaceID, sessionID string) (collab.Transcript, error) {
	lock := s.workspaceLock(workspaceID)
	lock.Lock()
	defer lock.Unlock()

	repo, err := git.PlainOpen(s.repoPath(workspaceID))
	if err != nil {
		return collab.Transcript{}, fmt.Errorf("open journal: %w", err)
	}

	ref, err := repo.Reference(plumbing.NewBranchReferenceName("main"), true)
	if err != nil {
		return collab.Transcript{}, fmt.Errorf("resolve main: %w", err)
	}
	commitObj, err := repo.CommitObject(ref.Hash())
	if err != nil {
		return collab.Transcript{}, fmt.Errorf("load head commit: %w", err)
	}

	file, err := commitObj.File(filepath.Join("transcripts", sessionID+".json"))
	if err != nil {
		return collab.Transcript{}, fmt.Errorf("transcript %s not in journal: %w", sessionID, err)
	}
	reader, err := file.Reader()
	if err != nil {
		return collab.Transcript{}, fmt.Errorf("open transcript reader: %w", err)
	}
	defer reader.Close()

	raw, err := io.ReadAll(reader)
	if err != nil {
		return collab.Transcript{}, fmt.Errorf("read transcript bytes: %w", err)
	}

	var tr collab.Transcript
	if err := json.Unmarshal(raw, &tr); err != nil {
		return collab.Transcript{}, fmt.Errorf("decode transcript: %w", err)
	}
	return tr, nil
}

// History lists journal commits for a workspace, newest first.
func (s *Service) History(workspaceID string, limit int) ([]CommitInfo, error) {
	lock := s.workspaceLock(workspaceID)
	lock.Lock()
	defer lock.Unlock()

	repo, err := git.PlainOpen(s.repoPath(workspaceID))
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}

	ref, err := repo.Reference(plumbing.NewBranchReferenceName("main"), true)
	if err != nil {
		return nil, fmt.Errorf("resolve main: %w", err)
	}

	iter, err := repo.Log(&git.LogOptions{From: ref.Hash()})
	if err != nil {
		return nil, fmt.Errorf("read log: %w", err)
	}
	defer iter.Close()

	items := make([]CommitInfo, 0, limit)
	count := 0
	err = iter.ForEach(func(commitObj *object.Commit) error {
		items = append(items, toCommitInfo(commitObj))
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

func (s *Service) ensureRepoLocked(workspaceID string) (*git.Repository, error) {
	path := s.repoPath(workspaceID)
	if _, err := os.Stat(path); err == nil {
		repo, err := git.PlainOpen(path)
		if err != nil {
			return nil, fmt.Errorf("open journal: %w", err)
		}
		return repo, nil
	} else if !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("stat journal path: %w", err)
	}

	if err := os.MkdirAll(path, 0o755); err != nil {
		return nil, fmt.Errorf("create journal dir: %w", err)
	}

	repo, err := git.PlainInit(path, false)
	if err != nil {
		return nil, fmt.Errorf("init journal: %w", err)
	}

	worktree, err := repo.Worktree()
	if err != nil {
		return nil, fmt.Errorf("open worktree: %w", err)
	}
	payload, err := json.MarshalIndent(workspaceMeta{
		WorkspaceID: workspaceID,
		CreatedAt:   time.Now().UTC(),
	}, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal journal meta: %w", err)
	}
	if err := os.WriteFile(filepath.Join(path, "journal.json"), append(payload, '\n'), 0o644); err != nil {
		return nil, fmt.Errorf("write journal meta: %w", err)
	}
	if _, err := worktree.Add("journal.json"); err != nil {
		return nil, fmt.Errorf("git add journal meta: %w", err)
	}
	hash, err := worktree.Commit("Initialize workspace journal", &git.CommitOptions{
		Author: &object.Signature{
			Name:  "coedit",
			Email: "journal@local.coedit.dev",
			When:  time.Now(),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("commit journal meta: %w", err)
	}
	if err := repo.Storer.SetReference(plumbing.NewHashReference(plumbing.NewBranchReferenceName("main"), hash)); err != nil {
		return nil, fmt.Errorf("set main branch ref: %w", err)
	}
	if err := repo.Storer.SetReference(plumbing.NewSymbolicReference(plumbing.HEAD, plumbing.NewBranchReferenceName("main"))); err != nil {
		return nil, fmt.Errorf("set HEAD to main: %w", err)
	}
	return repo, nil
}

func (s *Service) repoPath(workspaceID string) string {
	return filepath.Join(s.baseDir, workspaceID)
}

func (s *Service) workspaceLock(workspaceID string) *sync.Mutex {
	s.lockMu.Lock()
	defer s.lockMu.Unlock()
	lock, ok := s.locks[workspaceID]
	if ok {
		return lock
	}
	lock = &sync.Mutex{}
	s.locks[workspaceID] = lock
	return lock
}

func hostName(tr collab.Transcript) string {
	for _, p := range tr.Participants {
		if p.ID == tr.Session.HostUserID && p.DisplayName != "" {
			return p.DisplayName
		}
	}
	if tr.Session.HostUserID != "" {
		return tr.Session.HostUserID
	}
	return "coedit"
}

func toCommitInfo(commitObj *object.Commit) CommitInfo {
	return CommitInfo{
		Hash:      commitObj.Hash.String()[:7],
		Message:   commitObj.Message,
		Author:    commitObj.Author.Name,
		CreatedAt: commitObj.Author.When,
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
