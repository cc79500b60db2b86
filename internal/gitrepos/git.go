package gitrepos

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/go-git/go-git/v5"
	githttp "github.com/go-git/go-git/v5/plumbing/transport/http"
	"github.com/sha1n/mcp-repo-ingest/internal/domain"
)

// CommandExecutor abstracts command execution for testing.
type CommandExecutor interface {
	// Run executes a command and returns its standard output.
	Run(ctx context.Context, dir string, name string, args ...string) ([]byte, error)
}

// DefaultExecutor executes commands using os/exec.
// Interactive credential prompts are disabled.
type DefaultExecutor struct{}

// Run executes a command and returns its standard output.
// Stderr is folded into the returned error.
func (e *DefaultExecutor) Run(ctx context.Context, dir string, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	if dir != "" {
		cmd.Dir = dir
	}
	cmd.Env = append(os.Environ(), "GIT_TERMINAL_PROMPT=0")

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("%w: %w", ctxErr, err)
		}
		if stderr.Len() > 0 {
			return nil, fmt.Errorf("%w: %s", err, strings.TrimSpace(stderr.String()))
		}
		return nil, err
	}

	return stdout.Bytes(), nil
}

// Cloner fetches a repository into a working directory.
// Implementations must return errors wrapping domain.ErrCloneFailure whose text
// never contains the credential.
type Cloner interface {
	Clone(ctx context.Context, ref RepoRef, credential, destDir string) error
}

// GitClient clones with the git command line.
type GitClient struct {
	executor CommandExecutor
}

// NewGitClient creates a new GitClient with the default command executor.
func NewGitClient() *GitClient {
	return &GitClient{
		executor: &DefaultExecutor{},
	}
}

// NewGitClientWithExecutor creates a GitClient with a custom executor (for testing).
func NewGitClientWithExecutor(executor CommandExecutor) *GitClient {
	return &GitClient{
		executor: executor,
	}
}

// Clone performs a shallow single-branch clone into destDir.
// The credential only ever appears in the transient command arguments.
func (g *GitClient) Clone(ctx context.Context, ref RepoRef, credential, destDir string) error {
	_, err := g.executor.Run(ctx, "", "git", "clone",
		"--depth", "1",
		"--single-branch",
		"--quiet",
		AuthenticatedURL(ref, credential),
		destDir,
	)
	if err != nil {
		return cloneError(err, credential)
	}
	return nil
}

// GoGitCloner clones in-process with go-git. It needs no git binary.
type GoGitCloner struct{}

// NewGoGitCloner creates an in-process cloner.
func NewGoGitCloner() *GoGitCloner {
	return &GoGitCloner{}
}

// Clone performs a single-branch clone into destDir. Remote clones are shallow.
func (c *GoGitCloner) Clone(ctx context.Context, ref RepoRef, credential, destDir string) error {
	opts := &git.CloneOptions{
		URL:          ref.CloneURL,
		SingleBranch: true,
		Tags:         git.NoTags,
	}
	if ref.Scheme != SchemeFile {
		opts.Depth = 1
	}
	if credential != "" && ref.Scheme == SchemeHTTPS {
		opts.Auth = &githttp.BasicAuth{Username: credentialUser, Password: credential}
	}

	if _, err := git.PlainCloneContext(ctx, destDir, false, opts); err != nil {
		return cloneError(err, credential)
	}
	return nil
}

func cloneError(err error, credential string) error {
	msg := Redact(err.Error(), credential)
	if errors.Is(err, context.Canceled) {
		return fmt.Errorf("%w: %w: %s", domain.ErrCloneFailure, context.Canceled, msg)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %w: %s", domain.ErrCloneFailure, context.DeadlineExceeded, msg)
	}
	return fmt.Errorf("%w: %s", domain.ErrCloneFailure, msg)
}

// HeadCommit returns the commit SHA that HEAD points to in repoDir.
func HeadCommit(repoDir string) (string, error) {
	repo, err := git.PlainOpen(repoDir)
	if err != nil {
		return "", fmt.Errorf("failed to open repository: %w", err)
	}
	head, err := repo.Head()
	if err != nil {
		return "", fmt.Errorf("failed to resolve HEAD: %w", err)
	}
	return head.Hash().String(), nil
}
