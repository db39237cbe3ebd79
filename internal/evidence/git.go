// Package evidence gathers what the platform can tell about a pid beyond
// its name: cgroups, init-system labels, health flags and repository
// context. Every piece is optional.
package evidence

import (
	"os"
	"path/filepath"
	"strings"

	"ports/internal/model"
)

// Working directories that never belong to a checkout worth reporting.
var ignoredCwdPrefixes = []string{"/usr", "/var/run"}

// FindRepo walks up from cwd looking for a .git entry and reports the
// checkout root and current branch. A detached HEAD reports the short hash.
func FindRepo(cwd string) *model.RepoContext {
	if cwd == "" || cwd == "/" {
		return nil
	}
	for _, prefix := range ignoredCwdPrefixes {
		if strings.HasPrefix(cwd, prefix) {
			return nil
		}
	}

	dir := filepath.Clean(cwd)
	for {
		gitPath := filepath.Join(dir, ".git")
		if info, err := os.Stat(gitPath); err == nil {
			gitDir := gitPath
			if !info.IsDir() {
				gitDir = resolveGitFile(gitPath, dir)
			}
			return &model.RepoContext{Root: dir, Branch: readBranch(gitDir)}
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return nil
		}
		dir = parent
	}
}

// resolveGitFile follows a worktree/submodule ".git" file ("gitdir: <path>").
func resolveGitFile(path, base string) string {
	data, err := os.ReadFile(path)
	if err != nil {
		return path
	}
	target, ok := strings.CutPrefix(strings.TrimSpace(string(data)), "gitdir:")
	if !ok {
		return path
	}
	target = strings.TrimSpace(target)
	if !filepath.IsAbs(target) {
		target = filepath.Join(base, target)
	}
	return target
}

func readBranch(gitDir string) string {
	data, err := os.ReadFile(filepath.Join(gitDir, "HEAD"))
	if err != nil {
		return ""
	}
	head := strings.TrimSpace(string(data))
	if ref, ok := strings.CutPrefix(head, "ref:"); ok {
		ref = strings.TrimSpace(ref)
		if branch, ok := strings.CutPrefix(ref, "refs/heads/"); ok {
			return branch
		}
		return strings.TrimPrefix(ref, "refs/")
	}
	if len(head) > 8 {
		return head[:8]
	}
	return head
}
