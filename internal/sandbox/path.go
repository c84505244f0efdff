package sandbox

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"syscall"
)

// maxSymlinkHops bounds symlink chains during resolution.
const maxSymlinkHops = 40

// ResolveIn resolves p against the absolute directory base the way the
// kernel would: component by component, following existing symlinks and
// applying ".." to the already resolved parent. Components that do not
// exist yet are joined lexically. The result must lie inside root.
func ResolveIn(root Root, base, p string) (string, error) {
	resolved, err := resolve(base, p)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %v", ErrOutsideRoot, p, err)
	}
	if !root.Contains(resolved) {
		return "", fmt.Errorf("%w: %s", ErrOutsideRoot, p)
	}
	return resolved, nil
}

func resolve(base, p string) (string, error) {
	cur := filepath.Clean(base)
	if filepath.IsAbs(p) {
		cur = string(filepath.Separator)
	}
	hops := 0
	parts := strings.Split(filepath.ToSlash(p), "/")
	for i, part := range parts {
		switch part {
		case "", ".":
			continue
		case "..":
			cur = filepath.Dir(cur)
			continue
		}

		next := filepath.Join(cur, part)
		info, err := os.Lstat(next)
		if err != nil {
			// Missing components, those below a locked directory and those
			// below a regular file are joined lexically. The command then
			// fails on its own.
			if errors.Is(err, fs.ErrNotExist) || errors.Is(err, fs.ErrPermission) ||
				errors.Is(err, syscall.ENOTDIR) {
				rest := append([]string{next}, parts[i+1:]...)
				return filepath.Clean(filepath.Join(rest...)), nil
			}
			return "", err
		}
		if info.Mode()&fs.ModeSymlink == 0 {
			cur = next
			continue
		}

		hops++
		if hops > maxSymlinkHops {
			return "", errors.New("too many levels of symbolic links")
		}
		target, err := filepath.EvalSymlinks(next)
		if err != nil {
			// Dangling links are never trusted.
			return "", err
		}
		cur = target
	}
	return cur, nil
}
