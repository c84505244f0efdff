package sandbox

import (
	"fmt"
	"path"
	"sort"
	"strings"
)

// Node is a single layout entry: a directory or a file with literal content.
type Node struct {
	Dir     bool
	Content string
}

// DirNode returns a directory node.
func DirNode() Node { return Node{Dir: true} }

// FileNode returns a file node holding content.
func FileNode(content string) Node { return Node{Content: content} }

// Layout maps root-relative paths to nodes. A trailing slash on a key marks
// the entry as a directory regardless of its node.
type Layout map[string]Node

type layoutEntry struct {
	path string
	node Node
}

// Validate checks every key without touching the filesystem.
func (l Layout) Validate() error {
	_, err := l.entries()
	return err
}

// entries validates and normalizes the layout, returning entries sorted so
// that parents precede children.
func (l Layout) entries() ([]layoutEntry, error) {
	out := make([]layoutEntry, 0, len(l))
	seen := make(map[string]bool, len(l))
	for key, node := range l {
		p, dir, err := normalizeKey(key)
		if err != nil {
			return nil, err
		}
		if dir {
			node = DirNode()
		}
		if seen[p] {
			return nil, fmt.Errorf("%w: duplicate entry %q", ErrInvalidLayout, key)
		}
		seen[p] = true
		out = append(out, layoutEntry{path: p, node: node})
	}

	files := make(map[string]bool)
	for _, e := range out {
		if !e.node.Dir {
			files[e.path] = true
		}
	}
	for _, e := range out {
		for parent := path.Dir(e.path); parent != "."; parent = path.Dir(parent) {
			if files[parent] {
				return nil, fmt.Errorf("%w: %q is a file but %q needs it as a directory",
					ErrInvalidLayout, parent, e.path)
			}
		}
	}

	sort.Slice(out, func(i, j int) bool { return out[i].path < out[j].path })
	return out, nil
}

func normalizeKey(key string) (string, bool, error) {
	if strings.ContainsRune(key, 0) {
		return "", false, fmt.Errorf("%w: entry contains NUL", ErrInvalidLayout)
	}
	k := strings.ReplaceAll(key, "\\", "/")
	dir := strings.HasSuffix(k, "/")
	k = strings.TrimRight(k, "/")
	if k == "" {
		return "", false, fmt.Errorf("%w: empty path", ErrInvalidLayout)
	}
	if strings.HasPrefix(k, "/") {
		return "", false, fmt.Errorf("%w: absolute path %q", ErrInvalidLayout, key)
	}
	for _, seg := range strings.Split(k, "/") {
		switch seg {
		case "..":
			return "", false, fmt.Errorf("%w: %q leaves the root", ErrInvalidLayout, key)
		case "", ".":
			return "", false, fmt.Errorf("%w: %q is not a clean relative path", ErrInvalidLayout, key)
		}
	}
	if k == MarkerFile {
		return "", false, fmt.Errorf("%w: %q is reserved", ErrInvalidLayout, key)
	}
	return k, dir, nil
}
