// Package workspace manages the shellguide runtime directory structure.
// Learner sandboxes, scratch roots for one-off commands, user lesson packs
// and logs all live under a single workspace root.
//
// Default workspace: ~/.shellguide/workspace (configurable via config or SHELLGUIDE_WORKSPACE env var).
package workspace

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/jkaninda/shellguide/internal/sandbox"
)

// Default workspace location relative to user home directory.
const defaultRelativePath = ".shellguide/workspace"

// Workspace manages all shellguide runtime directories and derived paths.
type Workspace struct {
	Root string

	mu      sync.Mutex
	created map[string]bool // tracks which directories have been ensured
}

// New creates a Workspace rooted at the given path.
// It resolves ~ to the user's home directory and creates the root directory
// with appropriate permissions if it does not exist.
func New(root string) (*Workspace, error) {
	if root == "" {
		return Default()
	}
	resolved, err := resolvePath(root)
	if err != nil {
		return nil, fmt.Errorf("resolving workspace root %q: %w", root, err)
	}

	w := &Workspace{
		Root:    resolved,
		created: make(map[string]bool),
	}

	if err := w.ensureDir(resolved, 0750); err != nil {
		return nil, fmt.Errorf("creating workspace root: %w", err)
	}

	return w, nil
}

// Default creates a Workspace at ~/.shellguide/workspace.
func Default() (*Workspace, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("determining home directory: %w", err)
	}
	return New(filepath.Join(home, defaultRelativePath))
}

// SandboxDir returns <root>/sandbox/. Parent of every session root.
func (w *Workspace) SandboxDir() string {
	return w.dir("sandbox")
}

// ScratchDir returns <root>/scratch/. Parent of throwaway roots used by one-off commands.
func (w *Workspace) ScratchDir() string {
	return w.dir("scratch")
}

// LessonsDir returns <root>/lessons/. User lesson packs are picked up from here.
func (w *Workspace) LessonsDir() string {
	return w.dir("lessons")
}

// LogsDir returns <root>/logs/.
func (w *Workspace) LogsDir() string {
	return w.dir("logs")
}

// ConfigPath returns <root>/config.yaml.
func (w *Workspace) ConfigPath() string {
	return filepath.Join(w.Root, "config.yaml")
}

// CleanSandbox removes sandbox roots left behind by sessions that did not
// shut down. Only directories carrying the sandbox marker are removed;
// anything else under sandbox/ is reported and kept. Returns the number of
// roots removed.
func (w *Workspace) CleanSandbox() (int, error) {
	return cleanMarked(filepath.Join(w.Root, "sandbox"))
}

// CleanScratch removes stale scratch roots.
func (w *Workspace) CleanScratch() (int, error) {
	return cleanMarked(filepath.Join(w.Root, "scratch"))
}

func cleanMarked(dir string) (int, error) {
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return 0, nil
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, fmt.Errorf("reading %s: %w", dir, err)
	}
	removed := 0
	var skipped []string
	for _, entry := range entries {
		p := filepath.Join(dir, entry.Name())
		if !entry.IsDir() {
			skipped = append(skipped, entry.Name())
			continue
		}
		if _, err := os.Stat(filepath.Join(p, sandbox.MarkerFile)); err != nil {
			skipped = append(skipped, entry.Name())
			continue
		}
		if err := os.RemoveAll(p); err != nil {
			return removed, fmt.Errorf("removing sandbox entry %s: %w", entry.Name(), err)
		}
		removed++
	}
	if len(skipped) > 0 {
		return removed, fmt.Errorf("kept %d unmarked entries in %s: %s", len(skipped), dir, strings.Join(skipped, ", "))
	}
	return removed, nil
}

// EnsureAll creates all standard workspace directories.
// Call this during first startup.
func (w *Workspace) EnsureAll() error {
	dirs := []string{
		filepath.Join(w.Root, "sandbox"),
		filepath.Join(w.Root, "scratch"),
		filepath.Join(w.Root, "lessons"),
		filepath.Join(w.Root, "logs"),
	}
	for _, d := range dirs {
		if err := w.ensureDir(d, 0750); err != nil {
			return err
		}
	}
	return nil
}

// dir returns an absolute path under the workspace root and ensures the directory exists.
func (w *Workspace) dir(name string) string {
	p := filepath.Join(w.Root, name)
	_ = w.ensureDir(p, 0750)
	return p
}

// ensureDir creates a directory if it doesn't already exist.
// Uses a cache to avoid redundant stat/mkdir calls.
func (w *Workspace) ensureDir(path string, perm os.FileMode) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.created[path] {
		return nil
	}

	if err := os.MkdirAll(path, perm); err != nil {
		return fmt.Errorf("creating directory %s: %w", path, err)
	}
	w.created[path] = true
	return nil
}

// resolvePath expands ~ to the user home directory and returns an absolute path.
func resolvePath(path string) (string, error) {
	if strings.HasPrefix(path, "~/") || path == "~" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		path = filepath.Join(home, path[1:])
	}
	return filepath.Abs(path)
}
