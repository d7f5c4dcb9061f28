// Package catalog discovers the projects under the configured projects root
// and the git worktrees available for each of them.
package catalog

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/superclaude/superclaude/internal/errors"
	"github.com/superclaude/superclaude/internal/git"
	"github.com/superclaude/superclaude/internal/logger"
	"go.uber.org/zap"
)

// Project is a directory directly under the projects root.
type Project struct {
	Name string
	Path string
}

// Catalog answers read-only questions about projects and worktrees.
// Nothing is cached: every call reflects the filesystem at that moment.
type Catalog struct {
	projectsDir  string
	worktreesDir string
	git          *git.GitService
}

// New creates a catalog rooted at projectsDir. Worktree directories named
// "{project}-{worktree}" are looked up under worktreesDir, which defaults to
// projectsDir when empty.
func New(projectsDir, worktreesDir string, gitSvc *git.GitService) *Catalog {
	if worktreesDir == "" {
		worktreesDir = projectsDir
	}
	if gitSvc == nil {
		gitSvc = git.NewGitService()
	}
	return &Catalog{projectsDir: projectsDir, worktreesDir: worktreesDir, git: gitSvc}
}

// ProjectsDir returns the configured projects root.
func (c *Catalog) ProjectsDir() string {
	return c.projectsDir
}

// ListProjects returns the visible subdirectories of the projects root,
// sorted by name. An unreadable root yields an empty list.
func (c *Catalog) ListProjects() []Project {
	entries, err := os.ReadDir(c.projectsDir)
	if err != nil {
		logger.ComponentLogger("catalog").Warn("cannot read projects dir",
			zap.String("dir", c.projectsDir), zap.Error(err))
		return []Project{}
	}

	projects := make([]Project, 0, len(entries))
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), ".") || !isDir(filepath.Join(c.projectsDir, e.Name())) {
			continue
		}
		projects = append(projects, Project{Name: e.Name(), Path: filepath.Join(c.projectsDir, e.Name())})
	}
	sort.Slice(projects, func(i, j int) bool { return projects[i].Name < projects[j].Name })
	return projects
}

// ListWorktrees returns the worktrees of project. A project that is not a git
// repository yields the single synthetic root entry.
func (c *Catalog) ListWorktrees(ctx context.Context, project string) ([]git.Worktree, error) {
	dir, err := c.projectDir(project)
	if err != nil {
		return nil, err
	}
	return c.git.ListWorktrees(ctx, dir), nil
}

// worktreeLookupTimeout bounds the git call made while resolving a worktree.
const worktreeLookupTimeout = 10 * time.Second

// ResolveWorkDir maps (project, worktree) to an existing directory. The path
// git reports for the worktree wins; then "{worktreesDir}/{project}-{worktree}".
// A missing worktree directory falls back to the project root without error.
func (c *Catalog) ResolveWorkDir(project, worktree string) (string, error) {
	dir, err := c.projectDir(project)
	if err != nil {
		return "", err
	}
	if worktree == "" || worktree == git.RootWorktree {
		return dir, nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), worktreeLookupTimeout)
	defer cancel()
	for _, wt := range c.git.ListWorktrees(ctx, dir) {
		if !wt.Root && wt.Name == worktree && isDir(wt.Path) {
			return wt.Path, nil
		}
	}

	candidate := filepath.Join(c.worktreesDir, project+"-"+worktree)
	if isDir(candidate) {
		return candidate, nil
	}
	logger.ComponentLogger("catalog").Debug("worktree dir missing, using project root",
		zap.String("project", project), zap.String("worktree", worktree))
	return dir, nil
}

func (c *Catalog) projectDir(project string) (string, error) {
	if project == "" || project != filepath.Base(project) || strings.HasPrefix(project, ".") {
		return "", errors.ProjectNotFound(project)
	}
	dir := filepath.Join(c.projectsDir, project)
	if !isDir(dir) {
		return "", errors.ProjectNotFound(project)
	}
	return dir, nil
}

func isDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
