package sandbox

import (
	"slices"
	"sort"
)

// State is an immutable snapshot of a sandbox: the sorted, slash-separated
// relative paths of every file and directory under the root.
type State struct {
	root  Root
	files []string
	dirs  []string
}

// NewState builds a State from unsorted path lists. Duplicates are dropped.
func NewState(root Root, files, dirs []string) State {
	return State{root: root, files: sortedSet(files), dirs: sortedSet(dirs)}
}

// Root returns the root the snapshot was taken from.
func (s State) Root() Root { return s.root }

// Files returns a copy of the file paths.
func (s State) Files() []string { return slices.Clone(s.files) }

// Dirs returns a copy of the directory paths.
func (s State) Dirs() []string { return slices.Clone(s.dirs) }

// HasFile reports whether p is a file in the snapshot.
func (s State) HasFile(p string) bool {
	_, ok := slices.BinarySearch(s.files, p)
	return ok
}

// HasDir reports whether p is a directory in the snapshot.
func (s State) HasDir(p string) bool {
	_, ok := slices.BinarySearch(s.dirs, p)
	return ok
}

// Exists reports whether p is either a file or a directory.
func (s State) Exists(p string) bool { return s.HasFile(p) || s.HasDir(p) }

// Len returns the total number of entries.
func (s State) Len() int { return len(s.files) + len(s.dirs) }

// Equal compares file and directory sets. Roots are not compared.
func (s State) Equal(o State) bool {
	return slices.Equal(s.files, o.files) && slices.Equal(s.dirs, o.dirs)
}

// Change describes how a sandbox moved between two snapshots.
type Change struct {
	AddedFiles   []string `json:"added_files,omitempty"`
	RemovedFiles []string `json:"removed_files,omitempty"`
	AddedDirs    []string `json:"added_dirs,omitempty"`
	RemovedDirs  []string `json:"removed_dirs,omitempty"`
}

// Empty reports whether nothing changed.
func (c Change) Empty() bool {
	return len(c.AddedFiles) == 0 && len(c.RemovedFiles) == 0 &&
		len(c.AddedDirs) == 0 && len(c.RemovedDirs) == 0
}

// Diff computes the entries added and removed between before and after.
func Diff(before, after State) Change {
	return Change{
		AddedFiles:   minus(after.files, before.files),
		RemovedFiles: minus(before.files, after.files),
		AddedDirs:    minus(after.dirs, before.dirs),
		RemovedDirs:  minus(before.dirs, after.dirs),
	}
}

// minus returns the elements of a missing from b. Both inputs are sorted.
func minus(a, b []string) []string {
	var out []string
	for _, p := range a {
		if _, ok := slices.BinarySearch(b, p); !ok {
			out = append(out, p)
		}
	}
	return out
}

func sortedSet(in []string) []string {
	out := slices.Clone(in)
	sort.Strings(out)
	return slices.Compact(out)
}
