package gitrepos

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Workspaces allocates per-(session, repository) working directories under a base directory.
//
// Layout:
//
//	<base>/repos/<session-hash>_<repo-id>/        checked-out tree
//	<base>/locks/<session-hash>_<repo-id>.lock    flock guarding the tree
type Workspaces struct {
	baseDir     string
	lockTimeout time.Duration
}

// NewWorkspaces creates a workspace allocator rooted at baseDir.
func NewWorkspaces(baseDir string, lockTimeout time.Duration) *Workspaces {
	return &Workspaces{baseDir: baseDir, lockTimeout: lockTimeout}
}

// Workspace is a locked working directory owned by one job.
type Workspace struct {
	Dir  string
	lock *FileLock
}

// Name returns the namespaced directory name for a session and repository.
// The session is hashed so opaque session handles never reach the filesystem.
func (w *Workspaces) Name(sessionID string, ref RepoRef) string {
	sum := sha256.Sum256([]byte(sessionID + "\x00" + ref.Key()))
	return hex.EncodeToString(sum[:8]) + "_" + ref.ID()
}

// Dir returns the working directory for a session and repository.
func (w *Workspaces) Dir(sessionID string, ref RepoRef) string {
	return filepath.Join(w.baseDir, "repos", w.Name(sessionID, ref))
}

// Acquire locks the working directory for a session and repository, then removes
// any stale content so the caller clones into a fresh location.
// The caller must Release the workspace.
func (w *Workspaces) Acquire(ctx context.Context, sessionID string, ref RepoRef) (*Workspace, error) {
	name := w.Name(sessionID, ref)
	lock := NewFileLock(filepath.Join(w.baseDir, "locks", name+".lock"))
	if err := lock.Lock(ctx, w.lockTimeout); err != nil {
		return nil, fmt.Errorf("failed to lock workspace: %w", err)
	}

	dir := filepath.Join(w.baseDir, "repos", name)
	if err := os.RemoveAll(dir); err != nil {
		_ = lock.Unlock()
		return nil, fmt.Errorf("failed to clear workspace: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(dir), 0755); err != nil {
		_ = lock.Unlock()
		return nil, fmt.Errorf("failed to create workspace parent: %w", err)
	}

	return &Workspace{Dir: dir, lock: lock}, nil
}

// Release unlocks the workspace. The checked-out tree is left in place.
func (ws *Workspace) Release() error {
	return ws.lock.Unlock()
}
