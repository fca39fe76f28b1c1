package core

import (
	"os"
	"path/filepath"
	"strings"
)

// Project is a git repository which holds a ".github" directory.
type Project struct {
	root string
	// configPath is "" when the repository has no .github/pr-checks.yml
	configPath string
}

func getAbsolutePath(path string) string {
	if p, err := filepath.Abs(path); err == nil {
		path = p
	}
	return path
}

// locateProject walks up from path to the first directory containing both ".github"
// and ".git". It returns nil when no such directory exists.
func locateProject(path string) *Project {
	dir := getAbsolutePath(path)
	for {
		if s, err := os.Stat(filepath.Join(dir, ".github")); err == nil && s.IsDir() {
			if _, err := os.Stat(filepath.Join(dir, ".git")); err == nil {
				return NewProject(dir)
			}
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return nil
		}
		dir = parent
	}
}

// NewProject creates a Project rooted at root and looks up its config file.
func NewProject(root string) *Project {
	return &Project{root: root, configPath: findRepoConfig(root)}
}

// RootDirectory returns the root directory of the repository.
func (p *Project) RootDirectory() string {
	return p.root
}

// WorkflowDirectory returns the ".github/workflows" directory of the repository.
func (p *Project) WorkflowDirectory() string {
	return filepath.Join(p.root, ".github", "workflows")
}

// ConfigPath returns the path of the repository config file, or "" if there is none.
func (p *Project) ConfigPath() string {
	return p.configPath
}

// IsKnown reports whether path is inside the repository.
func (p *Project) IsKnown(path string) bool {
	rel, err := filepath.Rel(p.root, getAbsolutePath(path))
	return err == nil && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}
