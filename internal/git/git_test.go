package git

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	pexec "github.com/superclaude/superclaude/internal/exec"
)

const porcelain = `worktree /src/demo
HEAD 1111111111111111111111111111111111111111
branch refs/heads/main

worktree /src/demo-feature
HEAD 2222222222222222222222222222222222222222
branch refs/heads/feature/login

worktree /elsewhere/hotfix
HEAD 3333333333333333333333333333333333333333
detached
`

func TestParseWorktreeList(t *testing.T) {
	got := parseWorktreeList([]byte(porcelain), "demo")
	if len(got) != 3 {
		t.Fatalf("expected 3 worktrees, got %d: %+v", len(got), got)
	}

	tests := []struct {
		idx    int
		name   string
		branch string
		root   bool
	}{
		{0, RootWorktree, "main", true},
		{1, "feature", "feature/login", false},
		{2, "hotfix", "", false},
	}
	for _, tt := range tests {
		wt := got[tt.idx]
		if wt.Name != tt.name || wt.Branch != tt.branch || wt.Root != tt.root {
			t.Errorf("worktree[%d] = %+v, want name=%s branch=%s root=%v", tt.idx, wt, tt.name, tt.branch, tt.root)
		}
	}
}

func TestListWorktrees_FailureFallsBackToRoot(t *testing.T) {
	mock := pexec.NewMockExecutor(nil)
	mock.AddPrefixMatch("git", []string{"worktree", "list"}, pexec.MockResponse{
		Stderr: []byte("fatal: not a git repository"),
		Err:    errors.New("exit status 128"),
	})
	svc := NewGitServiceWithExecutor(mock)

	got := svc.ListWorktrees(context.Background(), "/src/plain")
	if len(got) != 1 {
		t.Fatalf("expected exactly one synthetic entry, got %+v", got)
	}
	if !got[0].Root || got[0].Name != RootWorktree || got[0].Path != "/src/plain" {
		t.Errorf("unexpected synthetic entry: %+v", got[0])
	}
}

func TestListWorktrees_EmptyOutputFallsBackToRoot(t *testing.T) {
	mock := pexec.NewMockExecutor(nil)
	mock.AddPrefixMatch("git", []string{"worktree", "list"}, pexec.MockResponse{})
	svc := NewGitServiceWithExecutor(mock)

	got := svc.ListWorktrees(context.Background(), "/src/empty")
	if len(got) != 1 || !got[0].Root {
		t.Errorf("expected synthetic root, got %+v", got)
	}
}

func TestListWorktrees_PinsRootPath(t *testing.T) {
	mock := pexec.NewMockExecutor(nil)
	mock.AddPrefixMatch("git", []string{"worktree", "list"}, pexec.MockResponse{Stdout: []byte(porcelain)})
	svc := NewGitServiceWithExecutor(mock)

	got := svc.ListWorktrees(context.Background(), "/projects/demo")
	if got[0].Path != "/projects/demo" {
		t.Errorf("root path = %q, want /projects/demo", got[0].Path)
	}
	if got[1].Path != "/src/demo-feature" {
		t.Errorf("secondary path = %q, want unchanged", got[1].Path)
	}
}

func TestCurrentBranch(t *testing.T) {
	tests := []struct {
		name string
		resp pexec.MockResponse
		want string
	}{
		{"branch", pexec.MockResponse{Stdout: []byte("main\n")}, "main"},
		{"detached", pexec.MockResponse{Stdout: []byte("HEAD\n")}, ""},
		{"error", pexec.MockResponse{Err: errors.New("boom")}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := pexec.NewMockExecutor(nil)
			mock.AddPrefixMatch("git", []string{"rev-parse"}, tt.resp)
			if got := NewGitServiceWithExecutor(mock).CurrentBranch(context.Background(), "/x"); got != tt.want {
				t.Errorf("CurrentBranch() = %q, want %q", got, tt.want)
			}
		})
	}
}

// createTestRepo creates a temporary git repository with one commit.
func createTestRepo(t *testing.T, dir string) {
	t.Helper()
	run := func(args ...string) {
		cmd := exec.Command("git", args...)
		cmd.Dir = dir
		if out, err := cmd.CombinedOutput(); err != nil {
			t.Fatalf("git %v failed: %v\n%s", args, err, out)
		}
	}
	run("init")
	run("config", "user.email", "test@example.com")
	run("config", "user.name", "Test User")
	if err := os.WriteFile(filepath.Join(dir, "test.txt"), []byte("test content"), 0644); err != nil {
		t.Fatalf("Failed to create test file: %v", err)
	}
	run("add", ".")
	run("commit", "-m", "Initial commit")
}

func TestListWorktrees_RealRepo(t *testing.T) {
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not installed")
	}
	root := t.TempDir()
	project := filepath.Join(root, "demo")
	if err := os.Mkdir(project, 0755); err != nil {
		t.Fatal(err)
	}
	createTestRepo(t, project)

	cmd := exec.Command("git", "worktree", "add", "-b", "feat", filepath.Join(root, "demo-feat"))
	cmd.Dir = project
	if out, err := cmd.CombinedOutput(); err != nil {
		t.Fatalf("worktree add failed: %v\n%s", err, out)
	}

	got := NewGitService().ListWorktrees(context.Background(), project)
	if len(got) != 2 {
		t.Fatalf("expected 2 worktrees, got %+v", got)
	}
	if got[1].Name != "feat" || got[1].Branch != "feat" {
		t.Errorf("secondary worktree = %+v, want name/branch feat", got[1])
	}
}

func TestListWorktrees_RealNonRepo(t *testing.T) {
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not installed")
	}
	dir := t.TempDir()
	got := NewGitService().ListWorktrees(context.Background(), dir)
	if len(got) != 1 || !got[0].Root || got[0].Path != dir {
		t.Errorf("expected synthetic root for non-repo, got %+v", got)
	}
}
