// Package git wraps the handful of git queries the bot needs: enumerating a
// project's worktrees and reading the checked-out branch.
package git

import (
	"bufio"
	"bytes"
	"context"
	"path/filepath"
	"strings"

	pexec "github.com/superclaude/superclaude/internal/exec"
	"github.com/superclaude/superclaude/internal/logger"
	"go.uber.org/zap"
)

// RootWorktree is the name of the synthetic entry that stands for the
// project's own checkout.
const RootWorktree = "root"

// Worktree describes one checked-out working copy of a project.
type Worktree struct {
	Name   string // Display name; RootWorktree for the main checkout
	Path   string // Absolute path on disk
	Branch string // Short branch name, empty when detached
	Root   bool   // Whether this is the project's main checkout
}

// GitService runs git commands through a CommandExecutor.
type GitService struct {
	executor pexec.CommandExecutor
}

// NewGitService returns a service that shells out to the real git binary.
func NewGitService() *GitService {
	return &GitService{executor: pexec.NewRealExecutor()}
}

// NewGitServiceWithExecutor returns a service using the given executor.
func NewGitServiceWithExecutor(e pexec.CommandExecutor) *GitService {
	return &GitService{executor: e}
}

// RootOnly returns the single synthetic entry for projectPath.
func RootOnly(projectPath string) []Worktree {
	return []Worktree{{Name: RootWorktree, Path: projectPath, Root: true}}
}

// ListWorktrees enumerates the worktrees of the project at projectPath.
// Any failure (not a repository, git missing, unparsable output) yields the
// synthetic root entry alone, so callers never have to special-case errors.
func (s *GitService) ListWorktrees(ctx context.Context, projectPath string) []Worktree {
	log := logger.ComponentLogger("git")

	out, err := s.executor.Output(ctx, projectPath, "git", "worktree", "list", "--porcelain")
	if err != nil {
		log.Debug("worktree list failed, using project root", zap.String("path", projectPath), zap.Error(err))
		return RootOnly(projectPath)
	}

	worktrees := parseWorktreeList(out, filepath.Base(projectPath))
	if len(worktrees) == 0 {
		return RootOnly(projectPath)
	}
	// The main checkout is reported with its real path; pin it to the
	// project directory we were asked about so callers see a stable path.
	worktrees[0].Path = projectPath
	return worktrees
}

// parseWorktreeList parses `git worktree list --porcelain`. The first record
// is always the main worktree.
func parseWorktreeList(out []byte, project string) []Worktree {
	var (
		worktrees []Worktree
		cur       *Worktree
	)
	flush := func() {
		if cur != nil {
			worktrees = append(worktrees, *cur)
			cur = nil
		}
	}

	scanner := bufio.NewScanner(bytes.NewReader(out))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		switch {
		case line == "":
			flush()
		case strings.HasPrefix(line, "worktree "):
			flush()
			cur = &Worktree{Path: strings.TrimPrefix(line, "worktree ")}
		case strings.HasPrefix(line, "branch ") && cur != nil:
			cur.Branch = strings.TrimPrefix(strings.TrimPrefix(line, "branch "), "refs/heads/")
		case line == "bare" && cur != nil:
			// A bare main repository has no working directory of its own.
			cur.Branch = ""
		}
	}
	flush()

	for i := range worktrees {
		if i == 0 {
			worktrees[i].Name = RootWorktree
			worktrees[i].Root = true
			continue
		}
		worktrees[i].Name = worktreeName(worktrees[i], project)
	}
	return worktrees
}

// worktreeName derives the display name from the directory basename, with the
// "{project}-" prefix used by sibling worktree directories stripped.
func worktreeName(wt Worktree, project string) string {
	base := filepath.Base(wt.Path)
	if name := strings.TrimPrefix(base, project+"-"); name != base && name != "" {
		return name
	}
	if base == "." || base == string(filepath.Separator) {
		return wt.Branch
	}
	return base
}

// CurrentBranch returns the checked-out branch in dir, or "" if it cannot be determined.
func (s *GitService) CurrentBranch(ctx context.Context, dir string) string {
	out, err := s.executor.Output(ctx, dir, "git", "rev-parse", "--abbrev-ref", "HEAD")
	if err != nil {
		return ""
	}
	branch := strings.TrimSpace(string(out))
	if branch == "HEAD" {
		return ""
	}
	return branch
}
