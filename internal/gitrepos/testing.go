package gitrepos

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"
)

// MockExecutor records commands and returns configured responses.
// It is safe for concurrent use and exported for use in other packages' tests.
type MockExecutor struct {
	mu       sync.Mutex
	commands []MockCommand
	calls    []ExecutorCall
	onClone  func(destDir string) error
}

// MockCommand defines a mock response for a command prefix.
type MockCommand struct {
	NamePrefix string
	Output     []byte
	Err        error
}

// ExecutorCall records a command invocation.
type ExecutorCall struct {
	Dir  string
	Name string
	Args []string
}

// NewMockExecutor creates a new mock executor.
func NewMockExecutor() *MockExecutor {
	return &MockExecutor{}
}

// AddResponse adds a one-shot mock response for commands matching the given prefix.
func (m *MockExecutor) AddResponse(namePrefix string, output []byte, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.commands = append(m.commands, MockCommand{
		NamePrefix: namePrefix,
		Output:     output,
		Err:        err,
	})
}

// OnClone installs a hook that populates the destination directory of a
// successful "git clone", which is always the last argument.
func (m *MockExecutor) OnClone(fn func(destDir string) error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onClone = fn
}

// Run executes a command and returns the configured mock response.
func (m *MockExecutor) Run(_ context.Context, dir string, name string, args ...string) ([]byte, error) {
	m.mu.Lock()
	m.calls = append(m.calls, ExecutorCall{Dir: dir, Name: name, Args: args})

	fullCmd := name + " " + strings.Join(args, " ")

	var (
		matched *MockCommand
		hook    = m.onClone
	)
	for i, cmd := range m.commands {
		if strings.HasPrefix(fullCmd, cmd.NamePrefix) {
			c := cmd
			matched = &c
			m.commands = append(m.commands[:i], m.commands[i+1:]...)
			break
		}
	}
	m.mu.Unlock()

	if matched == nil {
		return nil, errors.New("no mock response configured for: " + fullCmd)
	}
	if matched.Err != nil {
		return matched.Output, matched.Err
	}

	if hook != nil && len(args) > 0 && args[0] == "clone" {
		dest := args[len(args)-1]
		if err := os.MkdirAll(dest, 0755); err != nil {
			return nil, err
		}
		if err := hook(dest); err != nil {
			return nil, err
		}
	}
	return matched.Output, nil
}

// GetCalls returns a copy of all recorded command calls.
func (m *MockExecutor) GetCalls() []ExecutorCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]ExecutorCall(nil), m.calls...)
}

// MustGetLastCall returns the last recorded call, fails the test if no calls were made.
func (m *MockExecutor) MustGetLastCall(t *testing.T) ExecutorCall {
	t.Helper()
	calls := m.GetCalls()
	if len(calls) == 0 {
		t.Fatal("Expected at least one command call")
	}
	return calls[len(calls)-1]
}

// CreateFixtureRepo initializes a git repository in dir holding the given files
// (slash-separated relative paths) in a single commit, and returns the commit SHA.
func CreateFixtureRepo(t *testing.T, dir string, files map[string]string) string {
	t.Helper()

	repo, err := git.PlainInit(dir, false)
	if err != nil {
		t.Fatalf("Failed to init fixture repository: %v", err)
	}
	wt, err := repo.Worktree()
	if err != nil {
		t.Fatalf("Failed to open worktree: %v", err)
	}

	for rel, content := range files {
		path := filepath.Join(dir, filepath.FromSlash(rel))
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			t.Fatalf("Failed to create dir for %s: %v", rel, err)
		}
		if err := os.WriteFile(path, []byte(content), 0644); err != nil {
			t.Fatalf("Failed to write %s: %v", rel, err)
		}
		if _, err := wt.Add(rel); err != nil {
			t.Fatalf("Failed to stage %s: %v", rel, err)
		}
	}

	hash, err := wt.Commit("fixture", &git.CommitOptions{
		Author: &object.Signature{Name: "Fixture", Email: "fixture@example.com", When: time.Now()},
	})
	if err != nil {
		t.Fatalf("Failed to commit fixture: %v", err)
	}
	return hash.String()
}

// RequireGitBinary skips the test if the git executable is not on PATH.
// Local file:// transport relies on git-upload-pack.
func RequireGitBinary(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git binary not available")
	}
}
