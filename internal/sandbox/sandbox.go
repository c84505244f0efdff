// Package sandbox owns the confined directory a learner works in.
// A Manager creates one root per session, materializes challenge layouts
// into it, takes snapshots of its contents and removes it at the end.
//
// Every path the manager touches is resolved through Resolve, so no
// operation can reach outside the root even when the learner has created
// symlinks inside it.
package sandbox

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// MarkerFile is written into every root and hidden from snapshots.
const MarkerFile = ".shellguide_sandbox"

const markerContent = "This directory is managed by shellguide.\n"

var (
	// ErrSandboxInit is returned when a root cannot be created or written.
	ErrSandboxInit = errors.New("sandbox initialization failed")

	// ErrInvalidLayout is returned for layouts rejected before any mutation.
	ErrInvalidLayout = errors.New("invalid sandbox layout")

	// ErrOutsideRoot is returned when a path resolves outside the root.
	ErrOutsideRoot = errors.New("path escapes sandbox root")

	// ErrDestroyed is returned by operations on a destroyed manager.
	ErrDestroyed = errors.New("sandbox destroyed")
)

// Root is the absolute, symlink-resolved path of a sandbox directory.
type Root string

// String returns the root path.
func (r Root) String() string { return string(r) }

// Contains reports whether the absolute path p is the root or lies below it.
func (r Root) Contains(p string) bool {
	root := string(r)
	if root == "" {
		return false
	}
	p = filepath.Clean(p)
	return p == root || strings.HasPrefix(p, root+string(filepath.Separator))
}

// Rel returns p relative to the root using forward slashes.
// The root itself maps to ".".
func (r Root) Rel(p string) (string, error) {
	if !r.Contains(p) {
		return "", fmt.Errorf("%w: %s", ErrOutsideRoot, p)
	}
	rel, err := filepath.Rel(string(r), p)
	if err != nil {
		return "", err
	}
	return filepath.ToSlash(rel), nil
}

// Manager controls the lifecycle of a single sandbox root.
type Manager struct {
	root   Root
	logger *slog.Logger

	mu        sync.Mutex
	destroyed bool
}

// Create allocates a fresh root named name below parent. Leftovers from an
// earlier run with the same name are removed first. Failures wrap
// ErrSandboxInit.
func Create(parent, name string, logger *slog.Logger) (*Manager, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if !filepath.IsAbs(parent) {
		return nil, fmt.Errorf("%w: parent %q is not absolute", ErrSandboxInit, parent)
	}
	if err := os.MkdirAll(parent, 0750); err != nil {
		return nil, fmt.Errorf("%w: creating parent: %v", ErrSandboxInit, err)
	}
	resolvedParent, err := filepath.EvalSymlinks(parent)
	if err != nil {
		return nil, fmt.Errorf("%w: resolving parent: %v", ErrSandboxInit, err)
	}

	dir := filepath.Join(resolvedParent, sanitizeName(name))
	if err := forceRemove(dir); err != nil {
		return nil, fmt.Errorf("%w: removing stale root: %v", ErrSandboxInit, err)
	}
	if err := os.Mkdir(dir, 0750); err != nil {
		return nil, fmt.Errorf("%w: creating root: %v", ErrSandboxInit, err)
	}
	if err := writeMarker(dir); err != nil {
		_ = os.RemoveAll(dir)
		return nil, fmt.Errorf("%w: root not writable: %v", ErrSandboxInit, err)
	}

	logger.Debug("sandbox created", slog.String("root", dir))
	return &Manager{root: Root(dir), logger: logger}, nil
}

// Root returns the managed root.
func (m *Manager) Root() Root { return m.root }

// Resolve maps a root-relative path to an absolute path inside the root.
// Existing symlinks along the way are followed and must stay inside.
func (m *Manager) Resolve(rel string) (string, error) {
	return ResolveIn(m.root, string(m.root), rel)
}

// ApplyLayout replaces the contents of the root with layout. The layout is
// validated in full before anything on disk changes.
func (m *Manager) ApplyLayout(layout Layout) error {
	entries, err := layout.entries()
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.destroyed {
		return ErrDestroyed
	}

	if err := m.clear(); err != nil {
		return fmt.Errorf("clearing sandbox: %w", err)
	}

	for _, e := range entries {
		target, err := m.Resolve(e.path)
		if err != nil {
			return err
		}
		if e.node.Dir {
			if err := os.MkdirAll(target, 0750); err != nil {
				return fmt.Errorf("creating %s: %w", e.path, err)
			}
			continue
		}
		if err := os.MkdirAll(filepath.Dir(target), 0750); err != nil {
			return fmt.Errorf("creating parent of %s: %w", e.path, err)
		}
		if err := os.WriteFile(target, []byte(e.node.Content), 0640); err != nil {
			return fmt.Errorf("writing %s: %w", e.path, err)
		}
	}

	m.logger.Debug("sandbox layout applied",
		slog.String("root", string(m.root)),
		slog.Int("entries", len(entries)),
	)
	return nil
}

// Snapshot records every file and directory under the root. Symlinks are
// recorded but never traversed.
func (m *Manager) Snapshot() (State, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.destroyed {
		return State{}, ErrDestroyed
	}

	var files, dirs []string
	root := string(m.root)
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			// Unreadable directories (chmod 000) were already recorded on
			// the first visit.
			if d != nil && d.IsDir() && path != root {
				return nil
			}
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}
		if path == root {
			return nil
		}
		rel, err := m.root.Rel(path)
		if err != nil {
			return err
		}
		switch {
		case d.Type()&fs.ModeSymlink != 0:
			if m.symlinkToDir(path) {
				dirs = append(dirs, rel)
			} else {
				files = append(files, rel)
			}
		case d.IsDir():
			dirs = append(dirs, rel)
		case rel == MarkerFile:
		default:
			files = append(files, rel)
		}
		return nil
	})
	if err != nil {
		return State{}, fmt.Errorf("walking sandbox: %w", err)
	}
	return NewState(m.root, files, dirs), nil
}

// Destroy removes the root recursively. Calling it again is a no-op.
func (m *Manager) Destroy() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.destroyed {
		return nil
	}
	if err := forceRemove(string(m.root)); err != nil {
		return fmt.Errorf("removing sandbox %s: %w", m.root, err)
	}
	m.destroyed = true
	m.logger.Debug("sandbox destroyed", slog.String("root", string(m.root)))
	return nil
}

// clear removes everything under the root and rewrites the marker.
func (m *Manager) clear() error {
	root := string(m.root)
	restorePerms(root)
	entries, err := os.ReadDir(root)
	if err != nil {
		return err
	}
	for _, e := range entries {
		if err := os.RemoveAll(filepath.Join(root, e.Name())); err != nil {
			return err
		}
	}
	return writeMarker(root)
}

func (m *Manager) symlinkToDir(path string) bool {
	target, err := filepath.EvalSymlinks(path)
	if err != nil || !m.root.Contains(target) {
		return false
	}
	info, err := os.Stat(target)
	return err == nil && info.IsDir()
}

func writeMarker(dir string) error {
	return os.WriteFile(filepath.Join(dir, MarkerFile), []byte(markerContent), 0640)
}

// forceRemove deletes path, restoring owner permissions on directories a
// learner locked with chmod when the first attempt fails.
func forceRemove(path string) error {
	err := os.RemoveAll(path)
	if err == nil {
		return nil
	}
	restorePerms(path)
	return os.RemoveAll(path)
}

func restorePerms(path string) {
	info, err := os.Lstat(path)
	if err != nil || !info.IsDir() {
		return
	}
	_ = os.Chmod(path, 0750)
	entries, err := os.ReadDir(path)
	if err != nil {
		return
	}
	for _, e := range entries {
		if e.IsDir() {
			restorePerms(filepath.Join(path, e.Name()))
		}
	}
}

// sanitizeName replaces path separator characters to prevent directory traversal.
func sanitizeName(name string) string {
	name = strings.ReplaceAll(name, "/", "_")
	name = strings.ReplaceAll(name, "\\", "_")
	name = strings.ReplaceAll(name, "..", "_")
	if name == "" || name == "." {
		name = "_"
	}
	return name
}
