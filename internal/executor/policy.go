package executor

import (
	"sort"
	"strings"
)

// rootRule says which operands of a command may not name the root itself.
type rootRule int

const (
	rootAllowed rootRule = iota
	rootForbidden
	rootForbiddenExceptLast
)

// commandSpec describes how the arguments of one allowlisted program are
// classified.
type commandSpec struct {
	builtin bool

	// valueFlags consume the following token as a plain value.
	valueFlags map[string]bool
	// pathFlags consume the following token as a path.
	pathFlags map[string]bool
	// forbidden flags, matched exactly, as "--flag=..." or by any
	// abbreviation of a long option.
	forbidden map[string]string

	textOperands bool // operands are never opened (echo)
	modeOperand  bool // the first operand is a permission mode (chmod)
	primaries    bool // find-style expression after the start paths
	root         rootRule
}

func set(items ...string) map[string]bool {
	m := make(map[string]bool, len(items))
	for _, it := range items {
		m[it] = true
	}
	return m
}

// commands is the fixed allowlist.
var commands = map[string]commandSpec{
	"cd":  {builtin: true},
	"pwd": {builtin: true},
	"ls": {
		valueFlags: set("-I", "-w", "-T", "--ignore", "--hide", "--width", "--tabsize",
			"--color", "--sort", "--format", "--time-style", "--block-size", "--quoting-style"),
	},
	"mkdir": {valueFlags: set("-m", "--mode")},
	"touch": {
		valueFlags: set("-d", "-t", "--date", "--time"),
		pathFlags:  set("-r", "--reference"),
	},
	"rm":    {root: rootForbidden, forbidden: map[string]string{"--no-preserve-root": "not needed in the sandbox"}},
	"rmdir": {root: rootForbidden},
	"mv": {
		valueFlags: set("-S", "--suffix"),
		pathFlags:  set("-t", "--target-directory"),
		root:       rootForbiddenExceptLast,
	},
	"cp": {
		valueFlags: set("-S", "--suffix"),
		pathFlags:  set("-t", "--target-directory"),
	},
	"cat":  {},
	"head": {valueFlags: set("-n", "-c", "--lines", "--bytes")},
	"tail": {
		valueFlags: set("-n", "-c", "--lines", "--bytes"),
		forbidden: map[string]string{
			"-f":       "following a file never ends",
			"-F":       "following a file never ends",
			"--follow": "following a file never ends",
			"--retry":  "following a file never ends",
		},
	},
	"find": {
		primaries: true,
		valueFlags: set("-name", "-iname", "-path", "-ipath", "-wholename", "-iwholename",
			"-regex", "-iregex", "-regextype", "-type", "-xtype", "-size", "-mtime", "-mmin",
			"-atime", "-amin", "-ctime", "-cmin", "-maxdepth", "-mindepth", "-perm",
			"-user", "-group", "-uid", "-gid", "-links", "-inum", "-printf", "-used", "-fstype"),
		pathFlags: set("-newer", "-anewer", "-cnewer", "-samefile"),
		forbidden: map[string]string{
			"-exec":    "running other programs is not allowed",
			"-execdir": "running other programs is not allowed",
			"-ok":      "running other programs is not allowed",
			"-okdir":   "running other programs is not allowed",
			"-fprint":  "writing to files is not allowed",
			"-fprint0": "writing to files is not allowed",
			"-fprintf": "writing to files is not allowed",
			"-fls":     "writing to files is not allowed",
		},
	},
	"stat": {valueFlags: set("-c", "--format", "--printf")},
	"du": {
		valueFlags: set("-d", "-B", "-t", "--max-depth", "--block-size", "--threshold", "--exclude", "--time-style"),
		pathFlags:  set("-X", "--exclude-from"),
	},
	"echo": {textOperands: true},
	"wc":   {},
	"sort": {
		valueFlags: set("-k", "-t", "-S", "--key", "--field-separator", "--buffer-size",
			"--parallel", "--sort"),
		pathFlags: set("-o", "-T", "--output", "--temporary-directory", "--random-source"),
		forbidden: map[string]string{"--compress-program": "running other programs is not allowed"},
	},
	"chmod": {
		modeOperand: true,
		pathFlags:   set("--reference"),
		root:        rootForbidden,
	},
}

// findOperators are expression tokens of find that are not paths.
var findOperators = set("(", ")", "!", ",", "-o", "-a", "-or", "-and", "-not")

// Allowlist returns the names of every permitted program, sorted.
func Allowlist() []string {
	names := make([]string, 0, len(commands))
	for name := range commands {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// IsAllowed reports whether name is on the allowlist.
func IsAllowed(name string) bool {
	_, ok := commands[name]
	return ok
}

// forbiddenFlag returns the reason flag is forbidden for spec, if it is.
func (s commandSpec) forbiddenFlag(flag string) (string, bool) {
	if reason, ok := s.forbidden[flag]; ok {
		return reason, true
	}
	name, _, _ := strings.Cut(flag, "=")
	if reason, ok := s.forbidden[name]; ok {
		return reason, true
	}
	// getopt accepts any unambiguous prefix of a long option.
	if !strings.HasPrefix(name, "--") || len(name) < 3 {
		return "", false
	}
	for _, long := range s.forbiddenLong() {
		if strings.HasPrefix(long, name) {
			return s.forbidden[long], true
		}
	}
	return "", false
}

// forbiddenLong returns the forbidden long options in a stable order.
func (s commandSpec) forbiddenLong() []string {
	var out []string
	for f := range s.forbidden {
		if strings.HasPrefix(f, "--") {
			out = append(out, f)
		}
	}
	sort.Strings(out)
	return out
}

// Policy narrows the allowlist. It cannot widen it.
type Policy interface {
	CheckCommand(name string) error
}
